package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"wfmirror/internal/cache"
	"wfmirror/internal/config"
	"wfmirror/internal/engine"
	"wfmirror/internal/logging"
	"wfmirror/internal/workflowy"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "wfmirror",
	Short: "Local mirror and MCP server for a Workflowy outline",
	Long: `wfmirror keeps a local SQLite mirror of a Workflowy outline and serves
hierarchical reads, fuzzy search, and writes to an agent over MCP.

The mirror is refreshed by a rate-limited full sync plus targeted partial
syncs, so reads never cost one remote call per operation.`,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "also log to stderr")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(initCmd)
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// app bundles everything an opened command needs.
type app struct {
	cfg    *config.Config
	store  *cache.DB
	engine *engine.Engine
	logw   io.Writer
}

// openApp loads config, opens the mirror database, and wires the engine.
// The caller must call close().
func openApp() (*app, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if cfg.APIKey == "" {
		return nil, nil, fmt.Errorf("no API key configured; run 'wfmirror init' or set WFMIRROR_API_KEY")
	}

	store, err := cache.Open(cfg.DBPath)
	if err != nil {
		return nil, nil, err
	}
	if err := store.InitSchema(); err != nil {
		_ = store.Close()
		return nil, nil, err
	}

	logw := logging.Writer(cfg.LogPath, verbose)
	remote := workflowy.NewClient(cfg.APIKey, cfg.APIBaseURL)

	eng := engine.New(store, remote, engine.Config{
		FullSyncInterval:   cfg.FullSyncInterval,
		StalenessThreshold: cfg.StalenessThreshold,
		LeaseTTL:           cfg.LeaseTTL,
		ReconcileDepth:     cfg.ReconcileDepth,
		Logger:             logging.Component(logw, "engine"),
	})

	a := &app{cfg: cfg, store: store, engine: eng, logw: logw}
	closer := func() {
		eng.Wait()
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}
	return a, closer, nil
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
