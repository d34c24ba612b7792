package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/pario-ai/medcache/pkg/models"
	"github.com/pario-ai/medcache/pkg/sink/sqlite"
)

func newHistoryCmd() *cobra.Command {
	var (
		configPath string
		snapshots  int
		events     int
		reason     string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded cache snapshots and removal events",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, cleanup, err := openSink(configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx := context.Background()
			out := cmd.OutOrStdout()

			snaps, err := s.Snapshots(ctx, snapshots)
			if err != nil {
				return err
			}
			if err := writeSnapshots(out, snaps, time.Now()); err != nil {
				return err
			}

			if events <= 0 {
				return nil
			}
			fmt.Fprintln(out)
			evs, err := s.Removals(ctx, sqlite.QueryOpts{Reason: models.RemovalReason(reason), Limit: events})
			if err != nil {
				return err
			}
			counts, err := s.RemovalCounts(ctx)
			if err != nil {
				return err
			}
			return writeRemovals(out, evs, counts, time.Now())
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	cmd.Flags().IntVar(&snapshots, "snapshots", 10, "number of snapshots to show")
	cmd.Flags().IntVar(&events, "events", 20, "number of removal events to show (0 hides them)")
	cmd.Flags().StringVar(&reason, "reason", "", "filter events by reason (expired, evicted, invalidated)")
	return cmd
}

func openSink(configPath string) (*sqlite.Sink, func(), error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	s, err := sqlite.New(cfg.Sink.DBPath, cfg.Sink.RetentionDays, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("open sink db: %w", err)
	}
	return s, func() { _ = s.Close() }, nil
}

func writeSnapshots(out io.Writer, snaps []models.Snapshot, now time.Time) error {
	if len(snaps) == 0 {
		fmt.Fprintln(out, "No snapshots recorded.")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "WHEN\tENTRIES\tHITS\tMISSES\tHIT RATE\tEVICTIONS\tEXPIRATIONS\tSTRATEGY\tCOST SAVED")
	for _, s := range snaps {
		fmt.Fprintf(w, "%s\t%s/%s\t%s\t%s\t%.1f%%\t%s\t%s\t%s\t%s\n",
			humanize.RelTime(s.CreatedAt, now, "ago", "from now"),
			humanize.Comma(s.Cache.Entries), humanize.Comma(s.Cache.Capacity),
			humanize.Comma(s.Cache.Hits), humanize.Comma(s.Cache.Misses),
			s.Cache.HitRate*100,
			humanize.Comma(s.Cache.Evictions), humanize.Comma(s.Cache.Expirations),
			s.Prioritizer.Strategy,
			humanize.FormatFloat("#,###.##", s.Prioritizer.EstimatedCostSaved))
	}
	return w.Flush()
}

func writeRemovals(out io.Writer, events []models.RemovalEvent, counts []sqlite.ReasonCount, now time.Time) error {
	if len(counts) > 0 {
		parts := make([]string, len(counts))
		for i, c := range counts {
			parts[i] = fmt.Sprintf("%s %s", c.Reason, humanize.Comma(c.Count))
		}
		fmt.Fprintf(out, "Removals: %s\n", strings.Join(parts, ", "))
	}
	if len(events) == 0 {
		fmt.Fprintln(out, "No removal events recorded.")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "WHEN\tREASON\tCATEGORY\tPRIORITY\tSTRATEGY\tKEY")
	for _, e := range events {
		strategy := e.Strategy
		if strategy == "" {
			strategy = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
			humanize.RelTime(e.CreatedAt, now, "ago", "from now"),
			e.Reason, e.Category, e.Priority, strategy, truncate(e.Key, 60))
	}
	return w.Flush()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
