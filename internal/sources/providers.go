package sources

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/deusflow/newswire/internal/news"
	"github.com/deusflow/newswire/internal/retry"
)

// Provider is one keyword search API.
type Provider interface {
	Name() string
	// Enabled is false when the provider has no API key.
	Enabled() bool
	// Search returns at most limit articles matching keyword.
	Search(ctx context.Context, keyword string, limit int) ([]news.Article, error)
}

// ProviderConfig configures a search API client.
type ProviderConfig struct {
	APIKey   string
	Endpoint string
	Language string
	Client   *http.Client
	Retry    retry.RetryConfig
}

type base struct {
	name     string
	apiKey   string
	endpoint string
	language string
	http     httpClient
}

func newBase(name string, cfg ProviderConfig) base {
	lang := cfg.Language
	if lang == "" {
		lang = "en"
	}
	return base{
		name:     name,
		apiKey:   strings.TrimSpace(cfg.APIKey),
		endpoint: cfg.Endpoint,
		language: lang,
		http:     newHTTPClient(cfg.Client, cfg.Retry),
	}
}

func (b base) Name() string  { return b.name }
func (b base) Enabled() bool { return b.apiKey != "" && b.endpoint != "" }

func toArticle(title, link, summary, published, source string) news.Article {
	a := news.Article{
		Title:   strings.TrimSpace(title),
		URL:     strings.TrimSpace(link),
		Summary: strings.TrimSpace(summary),
		Source:  strings.TrimSpace(source),
	}
	a.SetPublished(published)
	return a
}

// GNews queries https://gnews.io.
type GNews struct{ base }

func NewGNews(cfg ProviderConfig) *GNews {
	return &GNews{base: newBase("GNews", cfg)}
}

type gnewsResponse struct {
	Articles []struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		URL         string `json:"url"`
		PublishedAt string `json:"publishedAt"`
		Source      struct {
			Name string `json:"name"`
		} `json:"source"`
	} `json:"articles"`
}

func (g *GNews) Search(ctx context.Context, keyword string, limit int) ([]news.Article, error) {
	params := url.Values{}
	params.Set("q", keyword)
	params.Set("lang", g.language)
	params.Set("max", strconv.Itoa(limit))
	params.Set("token", g.apiKey)
	if since, ok := SinceFrom(ctx); ok {
		params.Set("from", since.UTC().Format(time.RFC3339))
	}

	var resp gnewsResponse
	if err := g.http.getJSON(ctx, g.name, g.endpoint, params, &resp); err != nil {
		return nil, err
	}
	out := make([]news.Article, 0, len(resp.Articles))
	for _, item := range resp.Articles {
		out = append(out, toArticle(item.Title, item.URL, item.Description, item.PublishedAt, firstNonEmpty(item.Source.Name, g.name)))
	}
	return out, nil
}

// NewsAPI queries https://newsapi.org.
type NewsAPI struct{ base }

func NewNewsAPI(cfg ProviderConfig) *NewsAPI {
	return &NewsAPI{base: newBase("NewsAPI", cfg)}
}

type newsAPIResponse struct {
	Status   string `json:"status"`
	Articles []struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		URL         string `json:"url"`
		PublishedAt string `json:"publishedAt"`
		Source      struct {
			Name string `json:"name"`
		} `json:"source"`
	} `json:"articles"`
}

func (n *NewsAPI) Search(ctx context.Context, keyword string, limit int) ([]news.Article, error) {
	params := url.Values{}
	params.Set("q", keyword)
	params.Set("language", n.language)
	params.Set("pageSize", strconv.Itoa(limit))
	params.Set("sortBy", "publishedAt")
	params.Set("apiKey", n.apiKey)
	if since, ok := SinceFrom(ctx); ok {
		params.Set("from", since.UTC().Format(time.RFC3339))
	}

	var resp newsAPIResponse
	if err := n.http.getJSON(ctx, n.name, n.endpoint, params, &resp); err != nil {
		return nil, err
	}
	out := make([]news.Article, 0, len(resp.Articles))
	for _, item := range resp.Articles {
		// NewsAPI reports articles taken down by the publisher with this placeholder.
		if item.Title == "[Removed]" {
			continue
		}
		out = append(out, toArticle(item.Title, item.URL, item.Description, item.PublishedAt, firstNonEmpty(item.Source.Name, n.name)))
	}
	return out, nil
}

// Mediastack queries https://mediastack.com.
type Mediastack struct {
	base
	now func() time.Time
}

func NewMediastack(cfg ProviderConfig) *Mediastack {
	return &Mediastack{base: newBase("Mediastack", cfg), now: time.Now}
}

type mediastackResponse struct {
	Data []struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		URL         string `json:"url"`
		Source      string `json:"source"`
		PublishedAt string `json:"published_at"`
	} `json:"data"`
}

func (m *Mediastack) Search(ctx context.Context, keyword string, limit int) ([]news.Article, error) {
	params := url.Values{}
	params.Set("access_key", m.apiKey)
	params.Set("keywords", keyword)
	params.Set("languages", m.language)
	params.Set("limit", strconv.Itoa(limit))
	params.Set("sort", "published_desc")
	if since, ok := SinceFrom(ctx); ok {
		// Mediastack filters by whole days only.
		params.Set("date", since.UTC().Format("2006-01-02")+","+m.now().UTC().Format("2006-01-02"))
	}

	var resp mediastackResponse
	if err := m.http.getJSON(ctx, m.name, m.endpoint, params, &resp); err != nil {
		return nil, err
	}
	out := make([]news.Article, 0, len(resp.Data))
	for _, item := range resp.Data {
		out = append(out, toArticle(item.Title, item.URL, item.Description, item.PublishedAt, firstNonEmpty(item.Source, m.name)))
	}
	return out, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
