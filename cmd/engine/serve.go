package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/neurobridge-backend/orcaengine/internal/engine/worker"
	"github.com/neurobridge-backend/orcaengine/internal/platform/elog"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the worker pool: poll -> dispatch -> ack/nack until signaled",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			log, err := elog.New(cfg.LogMode)
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			shutdownOTel, err := initOTel(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer shutdownOTel(context.Background())

			eng, q, _, err := buildEngine(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer q.Close()

			pool := worker.New(q, eng, log, worker.Options{
				Concurrency:     cfg.WorkerConcurrency,
				MinPollInterval: cfg.MinPollInterval,
				MaxPollInterval: cfg.MaxPollInterval,
				HeartbeatEvery:  10 * time.Second,
			})
			log.Info("worker pool starting", "concurrency", cfg.WorkerConcurrency, "queue_backend", cfg.QueueBackend)
			return pool.Run(ctx)
		},
	}
}
