package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/deusflow/newswire/internal/app"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline once",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if dryRun {
				cfg.Telegram.DryRun = true
			}
			if err := cfg.ValidateDelivery(); err != nil {
				return err
			}

			runCtx := cmd.Context()
			if cfg.Schedule.RunTimeout > 0 {
				var cancel context.CancelFunc
				runCtx, cancel = context.WithTimeout(runCtx, cfg.Schedule.RunTimeout)
				defer cancel()
			}

			pipeline, cleanup, err := app.Build(runCtx, cfg, log)
			if err != nil {
				return err
			}
			defer cleanup()

			res, err := pipeline.Run(runCtx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "run %s: fetched %d, unique %d, added %d, delivered %d, failed %d\n",
				res.RunID, res.Fetched, res.Unique, res.Added, res.Delivered, res.Failed)
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Log messages instead of sending them")
	return cmd
}
