package main

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"wfmirror/internal/cache"
)

var (
	statusTitle = lipgloss.NewStyle().Bold(true)
	statusKey   = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Width(18)
	statusGood  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	statusWarn  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show mirror state and sync bookkeeping",
	Run: func(cmd *cobra.Command, args []string) {
		a, closer, err := openApp()
		if err != nil {
			fatal(err)
		}
		defer closer()

		ctx := context.Background()

		count, err := a.store.CountNodes()
		if err != nil {
			fatal(err)
		}
		lastSync, err := a.store.GetMeta(ctx, cache.MetaLastFullSync)
		if err != nil {
			fatal(err)
		}
		inProgress, err := a.store.GetMeta(ctx, cache.MetaSyncInProgress)
		if err != nil {
			fatal(err)
		}
		bookmarks, err := a.store.ListBookmarks(ctx)
		if err != nil {
			fatal(err)
		}

		fmt.Println(statusTitle.Render("wfmirror status"))
		fmt.Printf("%s %s\n", statusKey.Render("database"), a.cfg.DBPath)
		fmt.Printf("%s %d\n", statusKey.Render("cached nodes"), count)
		fmt.Printf("%s %s\n", statusKey.Render("last full sync"), renderLastSync(lastSync, a.cfg.StalenessThreshold))
		fmt.Printf("%s %d\n", statusKey.Render("bookmarks"), len(bookmarks))
		if inProgress == "1" {
			fmt.Printf("%s %s\n", statusKey.Render("sync"), statusWarn.Render("in progress"))
		}
	},
}

func renderLastSync(value string, staleAfter time.Duration) string {
	if value == "" {
		return statusWarn.Render("never")
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return value
	}
	age := time.Since(t).Round(time.Second)
	text := fmt.Sprintf("%s (%s ago)", t.Local().Format("2006-01-02 15:04:05"), age)
	if age > staleAfter {
		return statusWarn.Render(text)
	}
	return statusGood.Render(text)
}
