package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"

	"github.com/deusflow/newswire/internal/cache"
	"github.com/deusflow/newswire/internal/config"
	"github.com/deusflow/newswire/internal/news"
)

const maxContentLen = 1800

// Scraper downloads article pages and extracts their body text.
type Scraper struct {
	client      *http.Client
	cache       *cache.Cache[string]
	ttl         time.Duration
	concurrency int
	max         int
	logger      *slog.Logger
}

// New creates a scraper from the enrichment settings.
func New(cfg config.EnrichConfig, logger *slog.Logger) *Scraper {
	if logger == nil {
		logger = slog.Default()
	}
	concurrency := cfg.ScrapeConcurrency
	if concurrency < 1 {
		concurrency = 1
	}
	return &Scraper{
		client:      &http.Client{Timeout: cfg.ScrapeTimeout},
		cache:       cache.New[string](time.Hour),
		ttl:         cfg.CacheTTL,
		concurrency: concurrency,
		max:         cfg.ScrapeMaxArticles,
		logger:      logger,
	}
}

// Close stops the cache cleanup loop.
func (s *Scraper) Close() {
	s.cache.Close()
}

// Enrich fills FullText of articles that have a url but no text yet, up to
// the configured maximum, fetching pages concurrently. Failures leave the
// article unchanged. It returns the number of articles enriched.
func (s *Scraper) Enrich(ctx context.Context, articles []news.Article) int {
	var targets []int
	for i, a := range articles {
		if s.max > 0 && len(targets) >= s.max {
			break
		}
		if a.FullText == "" && strings.HasPrefix(a.URL, "http") {
			targets = append(targets, i)
		}
	}
	if len(targets) == 0 {
		return 0
	}

	texts := make([]string, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for n, idx := range targets {
		url := articles[idx].URL
		g.Go(func() error {
			text, err := s.Extract(gctx, url)
			if err != nil {
				s.logger.Warn("can't get article content", "url", url, "error", err)
				return nil
			}
			texts[n] = text
			return nil
		})
	}
	_ = g.Wait()

	enriched := 0
	for n, idx := range targets {
		if texts[n] != "" {
			articles[idx].FullText = texts[n]
			enriched++
		}
	}
	s.logger.Info("full text extraction finished", "requested", len(targets), "enriched", enriched)
	return enriched
}

// Extract returns the cleaned body text of the page at url.
func (s *Scraper) Extract(ctx context.Context, url string) (string, error) {
	if text, ok := s.cache.Get(url); ok {
		return text, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; newswire/1.0)")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("error loading page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP error: %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", fmt.Errorf("error parsing HTML: %w", err)
	}

	content := ExtractContent(doc)
	if content == "" {
		return "", fmt.Errorf("can't get content")
	}
	s.cache.Set(url, content, s.ttl)
	return content, nil
}

// ExtractContent collects article paragraphs using the first selector that
// yields enough text.
func ExtractContent(doc *goquery.Document) string {
	selectors := []string{
		"article p",
		".article-body p",
		".article p",
		".story-content p",
		".content p",
		".post-content p",
		".entry-content p",
		"main p",
		"#content p",
		"p",
	}

	var paragraphs []string
	for _, selector := range selectors {
		paragraphs = paragraphs[:0]
		doc.Find(selector).Each(func(i int, s *goquery.Selection) {
			text := strings.Join(strings.Fields(s.Text()), " ")
			if len(text) > 20 && !isJunk(text) {
				paragraphs = append(paragraphs, text)
			}
		})
		// Three paragraphs are enough to trust a selector.
		if len(paragraphs) >= 3 {
			break
		}
	}
	return limitParagraphs(paragraphs, maxContentLen)
}

var junkIndicators = []string{
	"cookie", "subscribe to", "sign up for", "newsletter", "advertisement",
	"also read", "read more", "follow us", "share this", "click here",
	"all rights reserved",
}

func isJunk(paragraph string) bool {
	lower := strings.ToLower(paragraph)
	for _, indicator := range junkIndicators {
		if strings.Contains(lower, indicator) {
			return true
		}
	}
	return false
}

// limitParagraphs joins whole paragraphs while the text stays under max bytes.
func limitParagraphs(paragraphs []string, max int) string {
	var b strings.Builder
	for _, p := range paragraphs {
		sep := 0
		if b.Len() > 0 {
			sep = 2
		}
		if b.Len()+sep+len(p) > max {
			if b.Len() == 0 {
				return truncateRunes(p, max)
			}
			break
		}
		if sep > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(p)
	}
	return b.String()
}

func truncateRunes(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	cut := 0
	for i := range s {
		if i > maxBytes {
			break
		}
		cut = i
	}
	return strings.TrimSpace(s[:cut])
}
