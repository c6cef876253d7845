package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/deusflow/newswire/internal/config"
	"github.com/deusflow/newswire/internal/news"
	"github.com/deusflow/newswire/internal/ratelimit"
)

const (
	maxPromptChars  = 6000
	maxSummaryChars = 600
)

// Generator turns a prompt into model text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Client is a Generator backed by the Gemini API.
type Client struct {
	client *genai.Client
	model  string
}

func NewClient(ctx context.Context, apiKey, model string) (*Client, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &Client{client: client, model: model}, nil
}

func (c *Client) Close() {
	if c.client != nil {
		c.client.Close()
	}
}

func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	model := c.client.GenerativeModel(c.model)
	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("no response from Gemini")
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	return b.String(), nil
}

// Summarizer writes short summaries for articles that arrive without one.
type Summarizer struct {
	gen    Generator
	budget *ratelimit.Budget
	logger *slog.Logger
}

// NewSummarizer wraps gen with a per-run request budget (0 = unlimited).
func NewSummarizer(gen Generator, maxRequests int, logger *slog.Logger) *Summarizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Summarizer{
		gen:    gen,
		budget: ratelimit.NewBudget("gemini", maxRequests, 0, logger),
		logger: logger,
	}
}

// FromConfig builds a Summarizer talking to Gemini. The returned close
// function releases the API client.
func FromConfig(ctx context.Context, cfg config.GeminiConfig, logger *slog.Logger) (*Summarizer, func(), error) {
	client, err := NewClient(ctx, cfg.APIKey, cfg.Model)
	if err != nil {
		return nil, nil, err
	}
	return NewSummarizer(client, cfg.MaxRequests, logger), client.Close, nil
}

// Fill summarizes articles with an empty Summary, in order, until the run
// budget is spent. Failures are logged and leave the article unchanged.
// It returns the number of summaries written.
func (s *Summarizer) Fill(ctx context.Context, articles []news.Article) int {
	s.budget.Reset()
	filled := 0
	for i := range articles {
		a := &articles[i]
		if strings.TrimSpace(a.Summary) != "" {
			continue
		}
		if ctx.Err() != nil || !s.budget.Allow() {
			break
		}
		summary, err := s.Summarize(ctx, *a)
		if err != nil {
			s.logger.Warn("summary failed", "title", a.Title, "error", err)
			continue
		}
		a.Summary = summary
		filled++
	}
	if filled > 0 {
		s.logger.Info("summaries generated", "count", filled)
	}
	return filled
}

// Summarize asks the model for a summary of one article.
func (s *Summarizer) Summarize(ctx context.Context, a news.Article) (string, error) {
	content := a.FullText
	if strings.TrimSpace(content) == "" {
		content = a.Title
	}
	if err := s.budget.Use(); err != nil {
		return "", err
	}
	resp, err := s.gen.Generate(ctx, BuildPrompt(a.Title, content))
	if err != nil {
		return "", err
	}
	return ParseSummary(resp)
}

// BuildPrompt renders the summary request for one article.
func BuildPrompt(title, content string) string {
	content = strings.Join(strings.Fields(strings.ReplaceAll(content, "\r", "")), " ")
	if utf8.RuneCountInString(content) > maxPromptChars {
		trimmed := string([]rune(content)[:maxPromptChars])
		// Prefer ending on a sentence when it keeps enough text.
		if idx := strings.LastIndex(trimmed, ". "); idx > 1200 {
			trimmed = trimmed[:idx+1]
		}
		content = trimmed + "\n[TRUNCATED]"
	}

	return fmt.Sprintf(`Summarize this news article for a real estate news channel.

ARTICLE:
Title: %s
Content: %s

RULES:
- At most three sentences and %d characters.
- Keep names of people, companies and places unchanged.
- No introductory phrases like "The article says".

Answer strictly in this format:

SUMMARY: <summary>
`, title, content, maxSummaryChars)
}

var summaryLabel = regexp.MustCompile(`(?i)^\**\s*summary\s*\**\s*:\s*`)

// ParseSummary extracts the summary text from a model response. Text after
// the SUMMARY label (and its continuation lines) is preferred; otherwise the
// whole response is used.
func ParseSummary(response string) (string, error) {
	var (
		labelled []string
		all      []string
		inside   bool
	)
	for _, raw := range strings.Split(response, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		all = append(all, line)
		if summaryLabel.MatchString(line) {
			inside = true
			if rest := strings.TrimSpace(summaryLabel.ReplaceAllString(line, "")); rest != "" {
				labelled = append(labelled, rest)
			}
			continue
		}
		if inside {
			labelled = append(labelled, line)
		}
	}

	parts := labelled
	if len(parts) == 0 {
		parts = all
	}
	summary := strings.TrimSpace(strings.Join(parts, " "))
	if summary == "" {
		return "", errors.New("could not parse Gemini response: empty summary")
	}
	if utf8.RuneCountInString(summary) > maxSummaryChars {
		summary = strings.TrimSpace(string([]rune(summary)[:maxSummaryChars-1])) + "…"
	}
	return summary, nil
}
