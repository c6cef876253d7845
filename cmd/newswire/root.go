package main

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/deusflow/newswire/internal/config"
	"github.com/deusflow/newswire/internal/logger"
)

type commandContext struct {
	configFlag *string
	envFlag    *string

	once   sync.Once
	config *config.Config
	logger *slog.Logger
	err    error
}

func (c *commandContext) ensureConfig() (*config.Config, *slog.Logger, error) {
	c.once.Do(func() {
		var envFiles []string
		if f := strings.TrimSpace(*c.envFlag); f != "" {
			envFiles = append(envFiles, f)
		}
		cfg, err := config.Load(strings.TrimSpace(*c.configFlag), envFiles...)
		if err != nil {
			c.err = err
			return
		}
		log, err := logger.Init(logger.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
		if err != nil {
			c.err = err
			return
		}
		c.config = cfg
		c.logger = log
	})
	return c.config, c.logger, c.err
}

func newRootCommand() *cobra.Command {
	var configFlag, envFlag string
	ctx := &commandContext{configFlag: &configFlag, envFlag: &envFlag}

	rootCmd := &cobra.Command{
		Use:           "newswire",
		Short:         "Collect, deduplicate and deliver news articles",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_, _, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path (YAML)")
	rootCmd.PersistentFlags().StringVar(&envFlag, "env-file", "", "Dotenv file to load (default .env)")

	rootCmd.AddCommand(newRunCommand(ctx))
	rootCmd.AddCommand(newWatchCommand(ctx))
	rootCmd.AddCommand(newRecordsCommand(ctx))
	rootCmd.AddCommand(newCursorCommand(ctx))

	return rootCmd
}
