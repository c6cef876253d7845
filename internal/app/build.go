package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/deusflow/newswire/internal/config"
	"github.com/deusflow/newswire/internal/gemini"
	"github.com/deusflow/newswire/internal/metrics"
	"github.com/deusflow/newswire/internal/rss"
	"github.com/deusflow/newswire/internal/scraper"
	"github.com/deusflow/newswire/internal/sources"
	"github.com/deusflow/newswire/internal/storage"
	"github.com/deusflow/newswire/internal/telegram"
)

// Build creates a pipeline with the real sources, store and delivery
// selected by cfg. The returned function releases their resources.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Pipeline, func(), error) {
	if logger == nil {
		logger = slog.Default()
	}
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	store, err := storage.Open(ctx, cfg.Store, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: open store: %w", ErrPersistence, err)
	}
	closers = append(closers, func() {
		if err := store.Close(); err != nil {
			logger.Warn("failed to close store", "error", err)
		}
	})

	deps := Deps{
		Search:  sources.FromConfig(cfg.Sources, logger),
		Store:   store,
		Metrics: metrics.Global,
	}

	if cfg.RSS.Enabled {
		feeds := append([]string(nil), cfg.RSS.Feeds...)
		if cfg.RSS.FeedsFile != "" {
			extra, err := rss.LoadFeeds(cfg.RSS.FeedsFile)
			if err != nil {
				cleanup()
				return nil, nil, err
			}
			feeds = append(feeds, extra...)
		}
		if len(feeds) > 0 {
			deps.Feeds = rss.NewReader(feeds, cfg.Keywords, cfg.Sources.RequestTimeout, logger)
		}
	}

	if cfg.Telegram.DryRun {
		logger.Info("dry run enabled, messages will only be logged")
		deps.Deliverer = telegram.NewLogDeliverer(logger)
	} else {
		deps.Deliverer = telegram.New(cfg.Telegram, logger)
	}

	if cfg.Enrich.FullText {
		s := scraper.New(cfg.Enrich, logger)
		closers = append(closers, s.Close)
		deps.Scraper = s
	}

	if cfg.Gemini.Enabled() {
		summarizer, closeGemini, err := gemini.FromConfig(ctx, cfg.Gemini, logger)
		if err != nil {
			// Summaries are optional; run without them.
			logger.Warn("Gemini unavailable, summaries disabled", "error", err)
		} else {
			closers = append(closers, closeGemini)
			deps.Summarizer = summarizer
		}
	}

	return New(cfg, deps, logger), cleanup, nil
}
