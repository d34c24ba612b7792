package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pario-ai/medcache/pkg/admin"
	"github.com/pario-ai/medcache/pkg/classifier"
	"github.com/pario-ai/medcache/pkg/prioritizer"
	"github.com/pario-ai/medcache/pkg/sink/sqlite"
	"github.com/pario-ai/medcache/pkg/store"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the cache behind its HTTP API",
		Long: `Run the cache behind its HTTP API.

Clients store responses with PUT /v1/cache, read them back with
POST /v1/cache/lookup and link entries with POST /v1/cache/dependencies.
Statistics, invalidation and prioritizer settings live under /v1 as well.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}

			logger, err := cfg.Logger()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			c := classifier.New(cfg.ClassifierConfig())
			p, err := prioritizer.New(cfg.Prioritizer, prioritizer.WithLogger(logger))
			if err != nil {
				return fmt.Errorf("init prioritizer: %w", err)
			}

			reg := prometheus.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)

			opts := []store.Option{
				store.WithLogger(logger),
				store.WithMetrics(store.NewMetrics(reg)),
			}
			if cfg.Sink.Enabled {
				sink, err := sqlite.New(cfg.Sink.DBPath, cfg.Sink.RetentionDays, logger)
				if err != nil {
					return fmt.Errorf("init sink: %w", err)
				}
				defer func() { _ = sink.Close() }()
				opts = append(opts, store.WithSink(sink))
			}

			s := store.New(cfg.StoreConfig(), c, p, opts...)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			s.Start(ctx)
			defer s.Stop()

			logger.Info("starting medcache",
				zap.String("config", configPath),
				zap.Int("max_entries", cfg.Cache.MaxEntries),
				zap.String("strategy", string(cfg.Prioritizer.Strategy)),
				zap.Bool("sink", cfg.Sink.Enabled))
			return admin.New(cfg.Listen, s, p, c, reg, logger).ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	return cmd
}
