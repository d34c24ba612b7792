package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pario-ai/medcache/pkg/classifier"
	"github.com/pario-ai/medcache/pkg/mcp"
	"github.com/pario-ai/medcache/pkg/sink/sqlite"
)

func newMCPCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve cache history and classification as an MCP server on stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}

			// stdout carries the protocol, so logs go nowhere.
			var history mcp.History
			if cfg.Sink.Enabled {
				s, err := sqlite.New(cfg.Sink.DBPath, 0, nil)
				if err != nil {
					return fmt.Errorf("open sink db: %w", err)
				}
				defer func() { _ = s.Close() }()
				history = s
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			srv := mcp.New(history, classifier.New(cfg.ClassifierConfig()), version, nil)
			return srv.Run(ctx, os.Stdin, os.Stdout)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	return cmd
}
