package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"wfmirror/internal/config"
	"wfmirror/internal/workflowy"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Interactive setup: save and verify the API key",
	Long: `Prompt for the Workflowy API key, verify it against the remote API,
and save it to the config file. Nothing is written until the key validates.`,
	Run: func(cmd *cobra.Command, args []string) {
		var apiKey string

		form := huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("Workflowy API key").
					Description("Generated under Settings > API in Workflowy").
					EchoMode(huh.EchoModePassword).
					Value(&apiKey).
					Validate(func(s string) error {
						if strings.TrimSpace(s) == "" {
							return fmt.Errorf("key cannot be empty")
						}
						return nil
					}),
			),
		)
		if err := form.Run(); err != nil {
			fatal(err)
		}
		apiKey = strings.TrimSpace(apiKey)

		cfg, err := config.Load()
		if err != nil {
			fatal(err)
		}
		client := workflowy.NewClient(apiKey, cfg.APIBaseURL)

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		fmt.Println("Verifying key...")
		if err := client.ValidateKey(ctx); err != nil {
			if errors.Is(err, workflowy.ErrUnauthorized) {
				fatal(fmt.Errorf("the API key was rejected; check it and try again"))
			}
			fatal(err)
		}

		path, err := config.Save(apiKey)
		if err != nil {
			fatal(err)
		}
		fmt.Printf("Key verified and saved to %s\n", path)
	},
}
