package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"github.com/deusflow/newswire/internal/config"
	"github.com/deusflow/newswire/internal/news"
	"github.com/deusflow/newswire/internal/retry"
)

// MaxMessageRunes keeps messages under the 4096 character Bot API limit.
const MaxMessageRunes = 4000

// Client posts article messages to a chat with MarkdownV2 formatting.
type Client struct {
	token   string
	chatID  string
	apiURL  string
	http    *http.Client
	retry   retry.RetryConfig
	limiter *rate.Limiter
	logger  *slog.Logger
}

// New creates a client. Transport failures are retried with exponential
// backoff; any non-200 answer fails at once. Messages are spaced by
// cfg.MessagePause.
func New(cfg config.TelegramConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	limit := rate.Inf
	if cfg.MessagePause > 0 {
		limit = rate.Every(cfg.MessagePause)
	}
	apiURL := strings.TrimRight(cfg.APIURL, "/")
	if apiURL == "" {
		apiURL = "https://api.telegram.org"
	}
	return &Client{
		token:  cfg.BotToken,
		chatID: cfg.ChatID,
		apiURL: apiURL,
		http:   &http.Client{Timeout: cfg.Timeout},
		retry: retry.RetryConfig{
			MaxAttempts: cfg.MaxAttempts,
			Delay:       cfg.InitialBackoff,
			Backoff:     true,
		},
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
	}
}

// Deliver sends one record as a message.
func (c *Client) Deliver(ctx context.Context, rec news.Record) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	text := FormatMessage(rec.Title, rec.Summary, rec.URL)
	if err := c.SendMessage(ctx, text); err != nil {
		return err
	}
	c.logger.Info("message sent", "title", rec.Title)
	return nil
}

// SendMessage posts text, retrying only when the request itself fails.
func (c *Client) SendMessage(ctx context.Context, text string) error {
	payload := map[string]interface{}{
		"chat_id":                  c.chatID,
		"text":                     text,
		"parse_mode":               "MarkdownV2",
		"disable_web_page_preview": false,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("error make JSON: %w", err)
	}
	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", c.apiURL, c.token)

	attempt := 0
	return retry.WithRetry(ctx, c.retry, func() error {
		attempt++
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return retry.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return retry.Permanent(ctx.Err())
			}
			c.logger.Warn("telegram send failed", "attempt", attempt, "error", redact(err.Error(), c.token))
			return fmt.Errorf("error HTTP request: %s", redact(err.Error(), c.token))
		}
		defer func(Body io.ReadCloser) {
			if err := Body.Close(); err != nil {
				c.logger.Debug("failed to close response body", "error", err)
			}
		}(resp.Body)

		if resp.StatusCode != http.StatusOK {
			detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return retry.Permanent(fmt.Errorf("telegram API error: status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail))))
		}
		return nil
	})
}

func redact(s, token string) string {
	if token == "" {
		return s
	}
	return strings.ReplaceAll(s, token, "<token>")
}

const markdownSpecial = "\\_*[]()~`>#+-=|{}.!"

// EscapeMarkdown escapes every MarkdownV2 reserved character.
func EscapeMarkdown(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if strings.ContainsRune(markdownSpecial, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// FormatMessage renders a bold title, the summary and a "Read more" link,
// shortening the summary (then the title) to stay within MaxMessageRunes.
func FormatMessage(title, summary, url string) string {
	if strings.TrimSpace(title) == "" {
		title = "No Title"
	}
	titleEsc := EscapeMarkdown(title)
	summaryEsc := EscapeMarkdown(summary)

	var link string
	if url != "" {
		link = "[Read more](" + escapeLinkURL(url) + ")"
	}

	build := func(t, s string) string {
		msg := "*" + t + "*\n\n"
		if s != "" {
			msg += s + "\n\n"
		}
		return msg + link
	}

	msg := build(titleEsc, summaryEsc)
	if over := utf8.RuneCountInString(msg) - MaxMessageRunes; over > 0 {
		keep := utf8.RuneCountInString(summaryEsc) - over - 1
		if keep > 0 {
			return build(titleEsc, truncateEscaped(summaryEsc, keep)+"…")
		}
		msg = build(titleEsc, "")
		if over := utf8.RuneCountInString(msg) - MaxMessageRunes; over > 0 {
			keep := utf8.RuneCountInString(titleEsc) - over - 1
			msg = build(truncateEscaped(titleEsc, max(keep, 0))+"…", "")
		}
	}
	return msg
}

// escapeLinkURL escapes the characters MarkdownV2 reserves inside (...).
func escapeLinkURL(url string) string {
	return strings.NewReplacer(`\`, `\\`, `)`, `\)`).Replace(url)
}

// truncateEscaped keeps at most n runes without splitting an escape sequence.
func truncateEscaped(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	runes = runes[:n]
	trailing := 0
	for i := len(runes) - 1; i >= 0 && runes[i] == '\\'; i-- {
		trailing++
	}
	if trailing%2 == 1 {
		runes = runes[:len(runes)-1]
	}
	return string(runes)
}

// LogDeliverer writes messages to the log instead of sending them.
type LogDeliverer struct {
	logger *slog.Logger
}

func NewLogDeliverer(logger *slog.Logger) *LogDeliverer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogDeliverer{logger: logger}
}

func (d *LogDeliverer) Deliver(ctx context.Context, rec news.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.logger.Info("dry run: message not sent", "title", rec.Title, "url", rec.URL, "text", FormatMessage(rec.Title, rec.Summary, rec.URL))
	return nil
}
