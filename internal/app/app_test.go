package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"github.com/deusflow/newswire/internal/config"
	"github.com/deusflow/newswire/internal/metrics"
	"github.com/deusflow/newswire/internal/news"
	"github.com/deusflow/newswire/internal/sources"
	"github.com/deusflow/newswire/internal/storage"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeFetcher struct {
	mu       sync.Mutex
	byKey    map[string][]news.Article
	err      error
	keywords []string
	since    []time.Time
}

func (f *fakeFetcher) Fetch(ctx context.Context, keyword string) ([]news.Article, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keywords = append(f.keywords, keyword)
	if t, ok := sources.SinceFrom(ctx); ok {
		f.since = append(f.since, t)
	}
	return f.byKey[keyword], f.err
}

type fakeDeliverer struct {
	fail map[string]bool
	sent []string
}

func (d *fakeDeliverer) Deliver(_ context.Context, rec news.Record) error {
	if d.fail[rec.Title] {
		return errors.New("telegram down")
	}
	d.sent = append(d.sent, rec.Title)
	return nil
}

type countingEnricher struct{ seen int }

func (e *countingEnricher) Enrich(_ context.Context, articles []news.Article) int {
	e.seen += len(articles)
	for i := range articles {
		articles[i].FullText = "scraped"
	}
	return len(articles)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Keywords = []string{"India housing"}
	cfg.Sources.KeywordPause = 0
	cfg.Store.Path = filepath.Join(t.TempDir(), "articles.csv")
	cfg.Store.LockTimeout = 200 * time.Millisecond
	return cfg
}

func newPipeline(t *testing.T, cfg *config.Config, search Fetcher, d Deliverer) (*Pipeline, *storage.Store) {
	t.Helper()
	store, err := storage.Open(context.Background(), cfg.Store, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	p := New(cfg, Deps{Search: search, Store: store, Deliverer: d, Metrics: metrics.New()}, quietLogger())
	return p, store
}

func records(t *testing.T, s *storage.Store) []news.Record {
	t.Helper()
	recs, err := s.Records(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return recs
}

func TestRunDeduplicatesAndDelivers(t *testing.T) {
	cfg := testConfig(t)
	search := &fakeFetcher{byKey: map[string][]news.Article{
		"India housing": {
			{Title: "India housing prices rise 5%", URL: "https://a.example/1"},
			{Title: "India housing prices rise 5 percent", URL: "https://b.example/2"},
		},
	}}

	failing := &fakeDeliverer{fail: map[string]bool{"India housing prices rise 5%": true}}
	p, store := newPipeline(t, cfg, search, failing)

	res, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Fetched != 2 || res.Unique != 1 || res.Added != 1 || res.Failed != 1 || res.Delivered != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
	recs := records(t, store)
	if len(recs) != 1 || recs[0].Delivered || recs[0].URL != "https://a.example/1" {
		t.Fatalf("unexpected records %+v", recs)
	}

	ok := &fakeDeliverer{}
	p.deps.Deliverer = ok
	res, err = p.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Added != 0 || res.Delivered != 1 {
		t.Fatalf("unexpected second result %+v", res)
	}
	recs = records(t, store)
	if len(recs) != 1 || !recs[0].Delivered {
		t.Fatalf("expected one delivered record, got %+v", recs)
	}

	res, err = p.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Delivered != 0 || len(ok.sent) != 1 {
		t.Fatalf("delivered record must not be sent again: %+v %v", res, ok.sent)
	}
	if recs := records(t, store); len(recs) != 1 || !recs[0].Delivered {
		t.Fatalf("re-merging the same batch changed the store: %+v", recs)
	}
}

func TestRunFiltersByCursor(t *testing.T) {
	cfg := testConfig(t)
	day := func(d int) time.Time { return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC) }

	search := &fakeFetcher{byKey: map[string][]news.Article{
		"India housing": {
			{Title: "older story about Mumbai towers", URL: "u2", PublishedAt: day(2)},
			{Title: "same day story about Pune flats", URL: "u3", PublishedAt: day(3)},
			{Title: "newer story about Kolkata metro homes", URL: "u4", PublishedAt: day(4)},
			{Title: "undated story about Delhi rents", URL: "u5"},
		},
	}}
	d := &fakeDeliverer{}
	p, store := newPipeline(t, cfg, search, d)

	seed := []news.Record{{Article: news.Article{Title: "seed", URL: "u1", PublishedAt: day(3)}, Delivered: true}}
	if err := store.Update(context.Background(), func(tx *storage.Tx) error {
		tx.Replace(seed)
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	res, err := p.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !res.Cursor.Equal(day(3)) || res.Fresh != 2 || res.Added != 2 {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(search.since) != 1 || !search.since[0].Equal(day(3)) {
		t.Fatalf("search did not receive the cursor: %v", search.since)
	}
	// Oldest known first, unknown dates last.
	if len(d.sent) != 2 || d.sent[0] != "newer story about Kolkata metro homes" || d.sent[1] != "undated story about Delhi rents" {
		t.Fatalf("unexpected delivery order %v", d.sent)
	}
}

func TestRunMaxAge(t *testing.T) {
	cfg := testConfig(t)
	cfg.Sources.MaxAge = 24 * time.Hour
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

	search := &fakeFetcher{byKey: map[string][]news.Article{
		"India housing": {
			{Title: "stale report on cement prices", URL: "u1", PublishedAt: now.Add(-48 * time.Hour)},
			{Title: "fresh report on rental yields", URL: "u2", PublishedAt: now.Add(-time.Hour)},
		},
	}}
	p, _ := newPipeline(t, cfg, search, &fakeDeliverer{})
	p.now = func() time.Time { return now }

	res, err := p.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Fresh != 1 || res.Added != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestRunDeliversPendingWithoutNewArticles(t *testing.T) {
	cfg := testConfig(t)
	search := &fakeFetcher{err: errors.New("all providers failed")}
	d := &fakeDeliverer{}
	p, store := newPipeline(t, cfg, search, d)

	if err := store.Update(context.Background(), func(tx *storage.Tx) error {
		tx.Replace([]news.Record{{Article: news.Article{Title: "pending", URL: "u"}}})
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	res, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("source failures must not fail the run: %v", err)
	}
	if res.Unique != 0 || res.Delivered != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	if recs := records(t, store); !recs[0].Delivered {
		t.Fatal("pending record should be delivered")
	}
}

func TestRunUsesFeedsAndEnricher(t *testing.T) {
	cfg := testConfig(t)
	cfg.Keywords = []string{"India housing", "Kolkata property"}
	search := &fakeFetcher{}
	feeds := &fakeFetcher{byKey: map[string][]news.Article{
		"": {{Title: "Feed story on township launch", URL: "f1"}},
	}}
	enricher := &countingEnricher{}

	store, err := storage.Open(context.Background(), cfg.Store, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	p := New(cfg, Deps{
		Search:    search,
		Feeds:     feeds,
		Store:     store,
		Deliverer: &fakeDeliverer{},
		Scraper:   enricher,
		Metrics:   metrics.New(),
	}, quietLogger())

	if _, err := p.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(search.keywords) != 2 || search.keywords[1] != "Kolkata property" {
		t.Fatalf("unexpected keywords %v", search.keywords)
	}
	if len(feeds.keywords) != 1 || feeds.keywords[0] != "" {
		t.Fatalf("feeds should be read once without keyword, got %v", feeds.keywords)
	}
	if enricher.seen != 1 {
		t.Fatalf("enricher saw %d articles", enricher.seen)
	}
	recs, err := store.Records(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].FullText != "scraped" {
		t.Fatalf("unexpected records %+v", recs)
	}
}

func TestRunPersistenceErrors(t *testing.T) {
	t.Run("unwritable store", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Store.Path = filepath.Join(t.TempDir(), "missing", "articles.csv")
		m := metrics.New()
		store, err := storage.Open(context.Background(), cfg.Store, quietLogger())
		if err != nil {
			t.Fatal(err)
		}
		p := New(cfg, Deps{Search: &fakeFetcher{}, Store: store, Deliverer: &fakeDeliverer{}, Metrics: m}, quietLogger())

		_, err = p.Run(context.Background())
		if !errors.Is(err, ErrPersistence) {
			t.Fatalf("expected ErrPersistence, got %v", err)
		}
		if m.Healthy() {
			t.Fatal("metrics should report unhealthy")
		}
	})

	t.Run("locked store", func(t *testing.T) {
		cfg := testConfig(t)
		held := flock.New(cfg.Store.Lock())
		if err := held.Lock(); err != nil {
			t.Fatal(err)
		}
		defer held.Unlock()

		p, _ := newPipeline(t, cfg, &fakeFetcher{}, &fakeDeliverer{})
		_, err := p.Run(context.Background())
		if !errors.Is(err, ErrPersistence) || !errors.Is(err, storage.ErrLocked) {
			t.Fatalf("expected locked persistence error, got %v", err)
		}
	})
}

// cancellingDeliverer succeeds and then ends the run context, like a run
// deadline expiring right after a send.
type cancellingDeliverer struct {
	cancel context.CancelFunc
	sent   []string
}

func (d *cancellingDeliverer) Deliver(_ context.Context, rec news.Record) error {
	d.sent = append(d.sent, rec.Title)
	d.cancel()
	return nil
}

func TestRunKeepsDeliveriesWhenContextEnds(t *testing.T) {
	for _, every := range []int{1, 0} {
		t.Run(fmt.Sprintf("checkpoint every %d", every), func(t *testing.T) {
			cfg := testConfig(t)
			cfg.Store.CheckpointEvery = every
			search := &fakeFetcher{byKey: map[string][]news.Article{
				"India housing": {
					{Title: "Kolkata metro extension lifts flat prices", URL: "u1"},
					{Title: "Pune developers cut launch volumes", URL: "u2"},
				},
			}}
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			d := &cancellingDeliverer{cancel: cancel}
			m := metrics.New()

			store, err := storage.Open(context.Background(), cfg.Store, quietLogger())
			if err != nil {
				t.Fatal(err)
			}
			defer store.Close()
			p := New(cfg, Deps{Search: search, Store: store, Deliverer: d, Metrics: m}, quietLogger())

			res, err := p.Run(ctx)
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if res.Delivered != 1 || res.Failed != 0 || len(d.sent) != 1 {
				t.Fatalf("unexpected result %+v, sent %v", res, d.sent)
			}
			if !m.Healthy() {
				t.Fatal("a cancelled run is not a store failure")
			}

			recs := records(t, store)
			if len(recs) != 2 {
				t.Fatalf("merged batch was not persisted: %+v", recs)
			}
			delivered := 0
			for _, r := range recs {
				if r.Delivered {
					delivered++
					if r.Title != d.sent[0] {
						t.Fatalf("wrong record marked delivered: %+v", r)
					}
				}
			}
			if delivered != 1 {
				t.Fatalf("expected one delivered record, got %+v", recs)
			}
		})
	}
}

func TestRunAddedIgnoresDuplicateRowsInStore(t *testing.T) {
	cfg := testConfig(t)
	legacy := "\ufefftitle,url,summary,full_text,publishedAt,source,delivered\n" +
		"Kolkata metro extension lifts flat prices,u1,,,,,true\n" +
		"Kolkata metro extension lifts flat prices,u1,,,,,true\n"
	if err := os.WriteFile(cfg.Store.Path, []byte(legacy), 0o644); err != nil {
		t.Fatal(err)
	}
	search := &fakeFetcher{byKey: map[string][]news.Article{
		"India housing": {
			{Title: "Kolkata metro extension lifts flat prices", URL: "u1"},
			{Title: "Pune developers cut launch volumes", URL: "u2"},
		},
	}}
	m := metrics.New()
	store, err := storage.Open(context.Background(), cfg.Store, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	p := New(cfg, Deps{Search: search, Store: store, Deliverer: &fakeDeliverer{}, Metrics: m}, quietLogger())

	res, err := p.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Added != 1 {
		t.Fatalf("Added = %d, want 1", res.Added)
	}
	if got := m.GetStats()["records_added"]; got != int64(1) {
		t.Fatalf("records_added = %v", got)
	}
	if recs := records(t, store); len(recs) != 2 {
		t.Fatalf("expected duplicate rows collapsed to 2 records, got %d", len(recs))
	}
}
