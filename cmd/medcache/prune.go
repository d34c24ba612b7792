package main

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newPruneCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete sink history older than the retention period",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, cleanup, err := openSink(configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			deleted, err := s.Cleanup(context.Background())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s history rows.\n", humanize.Comma(deleted))
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	return cmd
}
