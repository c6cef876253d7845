// Package app wires the sources, deduplication, store and delivery into one
// pipeline run.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/deusflow/newswire/internal/config"
	"github.com/deusflow/newswire/internal/dedup"
	"github.com/deusflow/newswire/internal/metrics"
	"github.com/deusflow/newswire/internal/news"
	"github.com/deusflow/newswire/internal/sources"
	"github.com/deusflow/newswire/internal/storage"
)

// ErrPersistence marks runs that could not read or write the store.
var ErrPersistence = errors.New("persistence failure")

// Fetcher returns articles for a keyword. An empty keyword means every
// configured keyword.
type Fetcher interface {
	Fetch(ctx context.Context, keyword string) ([]news.Article, error)
}

// Deliverer sends one record downstream.
type Deliverer interface {
	Deliver(ctx context.Context, rec news.Record) error
}

// Enricher adds data to articles in place and returns how many changed.
type Enricher interface {
	Enrich(ctx context.Context, articles []news.Article) int
}

// SummaryFiller writes summaries for articles without one.
type SummaryFiller interface {
	Fill(ctx context.Context, articles []news.Article) int
}

// Deps are the collaborators of a Pipeline. Search, Store and Deliverer are
// required.
type Deps struct {
	Search     Fetcher
	Feeds      Fetcher
	Store      *storage.Store
	Deliverer  Deliverer
	Scraper    Enricher
	Summarizer SummaryFiller
	Metrics    *metrics.Metrics
}

// Result reports what one run did.
type Result struct {
	RunID     string
	Cursor    time.Time
	Fetched   int
	Fresh     int
	Unique    int
	Added     int
	Delivered int
	Failed    int
}

// Pipeline runs fetch, filter, enrich, dedup, merge and delivery.
type Pipeline struct {
	deps            Deps
	keywords        []string
	keywordPause    time.Duration
	maxAge          time.Duration
	checkpointEvery int
	engine          *dedup.Engine
	logger          *slog.Logger
	now             func() time.Time
}

// New builds a pipeline from cfg and deps.
func New(cfg *config.Config, deps Deps, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.Global
	}

	scorer := dedup.NewScorer(cfg.Dedup.SimilarityThreshold, logger).WithMetrics(deps.Metrics)
	scorer.LexicalThreshold = cfg.Dedup.Lexical()
	scorer.CosineThreshold = cfg.Dedup.Cosine()

	return &Pipeline{
		deps:            deps,
		keywords:        cfg.Keywords,
		keywordPause:    cfg.Sources.KeywordPause,
		maxAge:          cfg.Sources.MaxAge,
		checkpointEvery: cfg.Store.CheckpointEvery,
		engine:          dedup.NewEngine(scorer, logger, dedup.WithMetrics(deps.Metrics)),
		logger:          logger,
		now:             time.Now,
	}
}

// Run executes one pipeline pass. Pending records are delivered even when
// nothing new was fetched. When ctx ends, delivery stops and the merged
// collection with every completed delivery is still written. Store failures
// return an error matching ErrPersistence; source and delivery failures are
// only logged and counted.
func (p *Pipeline) Run(ctx context.Context) (Result, error) {
	start := p.now()
	res := Result{RunID: uuid.NewString()}
	log := p.logger.With("run_id", res.RunID)
	m := p.deps.Metrics

	cursor, hasCursor, err := p.deps.Store.LastPublished(ctx)
	if err != nil {
		return res, p.persistenceError(log, "read cursor", err)
	}
	if hasCursor {
		res.Cursor = cursor
		log.Info("fetching news published after cursor", "cursor", cursor.Format(time.RFC3339))
	} else {
		log.Info("no cursor in store, fetching without lower bound")
	}

	articles := p.fetch(ctx, log, cursor, hasCursor)
	res.Fetched = len(articles)
	m.AddArticlesFetched(len(articles))

	fresh := p.filterFresh(articles, cursor, hasCursor)
	res.Fresh = len(fresh)

	if p.deps.Scraper != nil && len(fresh) > 0 {
		p.deps.Scraper.Enrich(ctx, fresh)
	}
	if p.deps.Summarizer != nil && len(fresh) > 0 {
		p.deps.Summarizer.Fill(ctx, fresh)
	}

	unique := p.engine.Deduplicate(fresh)
	res.Unique = len(unique)
	if len(unique) == 0 {
		log.Info("no new articles")
	}

	// The store write must survive the run deadline; deliveries stop at it.
	storeCtx := context.WithoutCancel(ctx)
	err = p.deps.Store.Update(storeCtx, func(tx *storage.Tx) error {
		res.Added = countNew(tx.Records(), unique)
		merged := storage.Merge(tx.Records(), unique)
		tx.Replace(merged)

		pending := news.Unsent(merged)
		if len(pending) > 0 {
			log.Info("delivering pending records", "count", len(pending))
		}
		for n, i := range pending {
			if ctx.Err() != nil {
				log.Warn("run stopped before delivery finished", "left", len(pending)-n, "error", ctx.Err())
				break
			}
			if err := p.deps.Deliverer.Deliver(ctx, merged[i]); err != nil {
				if ctx.Err() != nil {
					log.Warn("run stopped before delivery finished", "left", len(pending)-n, "error", err)
					break
				}
				res.Failed++
				m.IncrementDeliveriesFailed()
				log.Warn("delivery failed", "title", merged[i].Title, "url", merged[i].URL, "error", err)
				continue
			}
			merged[i].Delivered = true
			res.Delivered++
			m.IncrementDeliveriesSucceeded()
			if p.checkpointEvery > 0 && res.Delivered%p.checkpointEvery == 0 {
				if err := tx.Commit(); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return res, p.persistenceError(log, "update store", err)
	}

	m.AddRecordsAdded(res.Added)
	m.RecordProcessingTime(p.now().Sub(start))
	m.SetLastRun()
	log.Info("run finished",
		"fetched", res.Fetched,
		"fresh", res.Fresh,
		"unique", res.Unique,
		"added", res.Added,
		"delivered", res.Delivered,
		"failed", res.Failed,
	)
	return res, nil
}

func (p *Pipeline) persistenceError(log *slog.Logger, op string, err error) error {
	p.deps.Metrics.IncrementPersistenceFailures()
	p.deps.Metrics.SetError(err.Error())
	log.Error("store failure", "op", op, "error", err)
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}

// countNew returns how many distinct identity keys of batch are not in records.
func countNew(records []news.Record, batch []news.Article) int {
	seen := make(map[news.Key]bool, len(records)+len(batch))
	for _, r := range records {
		seen[r.Key()] = true
	}
	added := 0
	for _, a := range batch {
		k := news.KeyOf(a)
		if !seen[k] {
			seen[k] = true
			added++
		}
	}
	return added
}

// fetch queries the search chain per keyword, pausing between keywords,
// then reads the feeds once.
func (p *Pipeline) fetch(ctx context.Context, log *slog.Logger, cursor time.Time, hasCursor bool) []news.Article {
	searchCtx := ctx
	if hasCursor {
		searchCtx = sources.WithSince(ctx, cursor)
	}

	var all []news.Article
	for i, kw := range p.keywords {
		if i > 0 && !sleep(ctx, p.keywordPause) {
			return all
		}
		found, err := p.deps.Search.Fetch(searchCtx, kw)
		if err != nil {
			log.Warn("keyword search failed", "keyword", kw, "error", err)
		}
		log.Info("keyword search finished", "keyword", kw, "articles", len(found))
		all = append(all, found...)
	}

	if p.deps.Feeds != nil && ctx.Err() == nil {
		found, err := p.deps.Feeds.Fetch(ctx, "")
		if err != nil {
			log.Warn("RSS fetch failed", "error", err)
		}
		all = append(all, found...)
	}
	return all
}

// filterFresh drops articles published at or before the cursor or older than
// the max age. Articles without a publish time are kept.
func (p *Pipeline) filterFresh(articles []news.Article, cursor time.Time, hasCursor bool) []news.Article {
	var oldest time.Time
	if p.maxAge > 0 {
		oldest = p.now().Add(-p.maxAge)
	}
	fresh := make([]news.Article, 0, len(articles))
	for _, a := range articles {
		if a.HasPublished() {
			if hasCursor && !a.PublishedAt.After(cursor) {
				continue
			}
			if !oldest.IsZero() && a.PublishedAt.Before(oldest) {
				continue
			}
		}
		fresh = append(fresh, a)
	}
	return fresh
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
