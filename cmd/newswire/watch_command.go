package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/deusflow/newswire/internal/app"
	"github.com/deusflow/newswire/internal/metrics"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var (
		dryRun      bool
		monitorAddr string
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run the pipeline now and then on every schedule interval",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if dryRun {
				cfg.Telegram.DryRun = true
			}
			if monitorAddr != "" {
				cfg.Monitor.Addr = monitorAddr
			}
			if err := cfg.ValidateDelivery(); err != nil {
				return err
			}

			base := cmd.Context()
			pipeline, cleanup, err := app.Build(base, cfg, log)
			if err != nil {
				return err
			}
			defer cleanup()

			if cfg.Monitor.Addr != "" {
				srv := newMonitorServer(cfg.Monitor.Addr, metrics.Global)
				go func() {
					log.Info("starting monitoring server", "addr", cfg.Monitor.Addr)
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						log.Error("monitoring server error", "error", err)
					}
				}()
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					_ = srv.Shutdown(shutdownCtx)
				}()
			}

			log.Info("watching for news", "interval", cfg.Schedule.Interval.String(), "run_timeout", cfg.Schedule.RunTimeout.String())
			ticker := time.NewTicker(cfg.Schedule.Interval)
			defer ticker.Stop()
			for {
				runOnce(base, pipeline, cfg.Schedule.RunTimeout, log)
				select {
				case <-base.Done():
					log.Info("stopping watch")
					return nil
				case <-ticker.C:
				}
			}
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Log messages instead of sending them")
	cmd.Flags().StringVar(&monitorAddr, "monitor-addr", "", "Serve /health and /metrics on this address")
	return cmd
}

// runOnce runs the pipeline bounded by timeout. Failures are logged so the
// next tick can try again.
func runOnce(ctx context.Context, pipeline *app.Pipeline, timeout time.Duration, log *slog.Logger) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if _, err := pipeline.Run(ctx); err != nil {
		if errors.Is(err, app.ErrPersistence) {
			log.Error("run failed, store unavailable", "error", err)
			return
		}
		log.Error("run failed", "error", err)
	}
}
