package rss

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"gopkg.in/yaml.v3"

	"github.com/deusflow/newswire/internal/news"
)

// FeedsConfig is YAML config structure
// feeds:
//   - https://...
type FeedsConfig struct {
	Feeds []string `yaml:"feeds"`
}

// LoadFeeds reads RSS feeds list from YAML file
func LoadFeeds(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg FeedsConfig
	dec := yaml.NewDecoder(f)
	if err := dec.Decode(&cfg); err != nil {
		return nil, err
	}
	return cfg.Feeds, nil
}

// Reader fetches the configured feeds and keeps entries mentioning a keyword.
type Reader struct {
	feeds    []string
	keywords []string
	parser   *gofeed.Parser
	logger   *slog.Logger
}

// NewReader reads feeds; keywords filter entries when Fetch gets no keyword.
func NewReader(feeds, keywords []string, timeout time.Duration, logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	parser := gofeed.NewParser()
	parser.Client = &http.Client{Timeout: timeout}
	return &Reader{feeds: feeds, keywords: keywords, parser: parser, logger: logger}
}

// Fetch downloads every feed and returns entries whose title or summary
// contains keyword, or any configured keyword when keyword is empty.
// Feeds that fail are logged and skipped.
func (r *Reader) Fetch(ctx context.Context, keyword string) ([]news.Article, error) {
	match := r.keywords
	if keyword != "" {
		match = []string{keyword}
	}

	var articles []news.Article
	ok := 0
	for _, url := range r.feeds {
		if err := ctx.Err(); err != nil {
			return articles, err
		}
		feed, err := r.parser.ParseURLWithContext(url, ctx)
		if err != nil {
			r.logger.Warn("error parsing RSS feed", "feed", url, "error", err)
			continue
		}
		ok++

		found := FromFeed(feed, url, match)
		r.logger.Info("loaded RSS feed", "feed", url, "items", len(feed.Items), "matched", len(found))
		articles = append(articles, found...)
	}

	r.logger.Info("processed RSS feeds", "ok", ok, "total", len(r.feeds), "articles", len(articles))
	if ok == 0 && len(r.feeds) > 0 {
		return nil, fmt.Errorf("all %d RSS feeds failed", len(r.feeds))
	}
	return articles, nil
}

// FromFeed converts the items of feed that mention one of keywords.
func FromFeed(feed *gofeed.Feed, feedURL string, keywords []string) []news.Article {
	source := strings.TrimSpace(feed.Title)
	if source == "" {
		source = feedURL
	}

	var out []news.Article
	for _, item := range feed.Items {
		a := news.Article{
			Title:   strings.TrimSpace(item.Title),
			URL:     strings.TrimSpace(item.Link),
			Summary: strings.TrimSpace(item.Description),
			Source:  source,
		}
		if !Matches(a, keywords) {
			continue
		}
		a.SetPublished(published(item))
		out = append(out, a)
	}
	return out
}

func published(item *gofeed.Item) string {
	switch {
	case item.PublishedParsed != nil:
		return item.PublishedParsed.UTC().Format(time.RFC3339Nano)
	case item.Published != "":
		return item.Published
	case item.UpdatedParsed != nil:
		return item.UpdatedParsed.UTC().Format(time.RFC3339Nano)
	default:
		return item.Updated
	}
}

// Matches reports whether title or summary contains any keyword, ignoring case.
func Matches(a news.Article, keywords []string) bool {
	text := strings.ToLower(a.Title + " " + a.Summary)
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" && strings.Contains(text, k) {
			return true
		}
	}
	return false
}
