package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/HendryAvila/recall/internal/config"
	recallserver "github.com/HendryAvila/recall/internal/server"
	"github.com/mark3labs/mcp-go/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server (stdio transport)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		// Best-effort update notice on stderr; stdout belongs to MCP.
		go checkForUpdates()

		// Graceful shutdown on interrupt; cancellation reaches the
		// scheduler and any in-flight summarization.
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-sigCh
			cancel()
		}()

		s, cleanup, err := recallserver.New(ctx, cfg)
		if err != nil {
			return fmt.Errorf("creating server: %w", err)
		}
		defer cleanup()

		return server.ServeStdio(s)
	},
}

// loadConfig resolves the config file path and loads it.
func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.Load(configPath)
	}
	return config.LoadDefault()
}
