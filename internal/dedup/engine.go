// Package dedup removes near-duplicate articles from a fetched batch.
package dedup

import (
	"log/slog"
	"strings"

	"github.com/deusflow/newswire/internal/metrics"
	"github.com/deusflow/newswire/internal/news"
	"github.com/deusflow/newswire/internal/textutil"
)

// Stats summarizes one deduplication pass.
type Stats struct {
	Total      int
	Unique     int
	Duplicates int
	Invalid    int
}

// Engine keeps the first article of every story in a batch.
type Engine struct {
	scorer   *Scorer
	newIndex IndexFactory
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// Option customizes an Engine.
type Option func(*Engine)

// WithIndex swaps the seen-text index implementation.
func WithIndex(f IndexFactory) Option {
	return func(e *Engine) { e.newIndex = f }
}

// WithMetrics records duplicate counts into m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine creates an engine comparing texts with scorer.
func NewEngine(scorer *Scorer, logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if scorer == nil {
		scorer = NewScorer(DefaultThreshold, logger)
	}
	e := &Engine{
		scorer:   scorer,
		newIndex: NewLinearIndex,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Deduplicate returns the first-seen article of every story in input order.
// Articles without title and url, or whose text normalizes to nothing, are dropped.
func (e *Engine) Deduplicate(articles []news.Article) []news.Article {
	unique, _ := e.DeduplicateWithStats(articles)
	return unique
}

// DeduplicateWithStats is Deduplicate plus the pass counters.
func (e *Engine) DeduplicateWithStats(articles []news.Article) ([]news.Article, Stats) {
	stats := Stats{Total: len(articles)}
	index := e.newIndex(e.scorer)
	unique := make([]news.Article, 0, len(articles))

	for _, a := range articles {
		if strings.TrimSpace(a.Title) == "" && strings.TrimSpace(a.URL) == "" {
			stats.Invalid++
			continue
		}
		combined := textutil.Normalize(a.CombinedText())
		if combined == "" {
			stats.Invalid++
			continue
		}
		if pos, dup := index.Match(combined); dup {
			stats.Duplicates++
			e.logger.Debug("duplicate article dropped", "title", a.Title, "url", a.URL, "matched", pos)
			continue
		}
		index.Add(combined)
		unique = append(unique, a)
	}

	stats.Unique = len(unique)
	if e.metrics != nil {
		e.metrics.AddDuplicatesFiltered(stats.Duplicates)
	}
	e.logger.Info("deduplication completed",
		"unique", stats.Unique,
		"total", stats.Total,
		"duplicates", stats.Duplicates,
		"invalid", stats.Invalid,
	)
	return unique, stats
}
