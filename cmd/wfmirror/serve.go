package main

import (
	"context"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"wfmirror/internal/logging"
	"wfmirror/internal/tools"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the mirror to an agent over MCP on stdio",
	Long: `Start the MCP server on stdio.

On startup a best-effort background sync primes the mirror; the server
begins answering immediately, degrading to the existing snapshot until the
sync lands. Logs go to the log file, never stdout (the MCP transport owns
stdout).`,
	Run: func(cmd *cobra.Command, args []string) {
		a, closer, err := openApp()
		if err != nil {
			fatal(err)
		}
		defer closer()

		logger := logging.Component(a.logw, "serve")

		// Startup sync is fire-and-forget: serving must not wait on it.
		go func() {
			if err := a.engine.FullSync(context.Background()); err != nil {
				logger.Printf("Startup sync: %v", err)
			}
		}()

		mcpServer := server.NewMCPServer(
			"wfmirror",
			"1.0.0",
			server.WithToolCapabilities(true),
		)

		tools.Register(mcpServer, &tools.Deps{
			Engine:        a.engine,
			Store:         a.store,
			ExcludedNames: a.cfg.ExcludedNames,
			Logger:        logger,
		})

		logger.Printf("MCP server starting (db=%s)", a.cfg.DBPath)
		if err := server.ServeStdio(mcpServer); err != nil {
			fatal(err)
		}
	},
}
