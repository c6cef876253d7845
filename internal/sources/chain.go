package sources

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/deusflow/newswire/internal/config"
	"github.com/deusflow/newswire/internal/news"
	"github.com/deusflow/newswire/internal/retry"
)

// Chain asks providers in order until it holds max articles for a keyword.
type Chain struct {
	providers []Provider
	max       int
	logger    *slog.Logger
}

// NewChain builds a chain over providers. Disabled providers are skipped.
func NewChain(max int, logger *slog.Logger, providers ...Provider) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{providers: providers, max: max, logger: logger}
}

// FromConfig builds the GNews, NewsAPI, Mediastack chain.
func FromConfig(cfg config.SourcesConfig, logger *slog.Logger) *Chain {
	client := &http.Client{Timeout: cfg.RequestTimeout}
	rc := retry.RetryConfig{MaxAttempts: cfg.RetryAttempts, Delay: cfg.RetryDelay, Backoff: true}
	pc := func(key, endpoint string) ProviderConfig {
		return ProviderConfig{APIKey: key, Endpoint: endpoint, Language: cfg.Language, Client: client, Retry: rc}
	}
	return NewChain(cfg.MaxResultsPerKeyword, logger,
		NewGNews(pc(cfg.GNewsAPIKey, cfg.GNewsURL)),
		NewNewsAPI(pc(cfg.NewsAPIKey, cfg.NewsAPIURL)),
		NewMediastack(pc(cfg.MediastackAPIKey, cfg.MediastackURL)),
	)
}

// Fetch returns up to the configured maximum of articles for keyword. Failing
// providers are logged and skipped; an error is returned only when every
// enabled provider failed.
func (c *Chain) Fetch(ctx context.Context, keyword string) ([]news.Article, error) {
	if keyword == "" {
		return nil, nil
	}

	var (
		articles []news.Article
		errs     []error
		tried    int
	)
	for _, p := range c.providers {
		if len(articles) >= c.max {
			break
		}
		if !p.Enabled() {
			c.logger.Debug("provider disabled, skipping", "provider", p.Name())
			continue
		}
		tried++

		remaining := c.max - len(articles)
		found, err := p.Search(ctx, keyword, remaining)
		if err != nil {
			c.logger.Warn("provider failed", "provider", p.Name(), "keyword", keyword, "error", err)
			errs = append(errs, err)
			if ctx.Err() != nil {
				break
			}
			continue
		}
		if len(found) > remaining {
			found = found[:remaining]
		}
		c.logger.Info("provider fetched articles", "provider", p.Name(), "keyword", keyword, "count", len(found))
		articles = append(articles, found...)
	}

	if tried > 0 && len(errs) == tried {
		return nil, fmt.Errorf("all providers failed for %q: %w", keyword, errors.Join(errs...))
	}
	return articles, nil
}
