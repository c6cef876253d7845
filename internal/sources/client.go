// Package sources queries the keyword news search APIs (GNews, NewsAPI and
// Mediastack) and chains them into a single fetcher.
package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/deusflow/newswire/internal/retry"
)

const userAgent = "newswire/1.0 (+https://github.com/deusflow/newswire)"

type sinceKey struct{}

// WithSince asks providers to return only articles published after t.
func WithSince(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, sinceKey{}, t)
}

// SinceFrom returns the cursor set by WithSince.
func SinceFrom(ctx context.Context) (time.Time, bool) {
	t, ok := ctx.Value(sinceKey{}).(time.Time)
	return t, ok && !t.IsZero()
}

// StatusError is a non-2xx API response.
type StatusError struct {
	Provider string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: HTTP %d: %s", e.Provider, e.Code, e.Body)
}

// httpClient performs JSON GET requests with retries.
type httpClient struct {
	client *http.Client
	retry  retry.RetryConfig
}

func newHTTPClient(client *http.Client, rc retry.RetryConfig) httpClient {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return httpClient{client: client, retry: rc}
}

// getJSON decodes the response of endpoint?params into out. Client errors
// (4xx) are not retried.
func (h httpClient) getJSON(ctx context.Context, provider, endpoint string, params url.Values, out any) error {
	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("%s: invalid endpoint: %w", provider, err)
	}
	u.RawQuery = params.Encode()

	return retry.WithRetry(ctx, h.retry, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return retry.Permanent(err)
		}
		req.Header.Set("User-Agent", userAgent)
		req.Header.Set("Accept", "application/json")

		resp, err := h.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return retry.Permanent(ctx.Err())
			}
			// url.Error repeats the query string, which carries the API key.
			var uerr *url.Error
			if errors.As(err, &uerr) {
				err = uerr.Err
			}
			return fmt.Errorf("%s: GET %s: %w", provider, endpoint, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			serr := &StatusError{Provider: provider, Code: resp.StatusCode, Body: string(body)}
			if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				return retry.Permanent(serr)
			}
			return serr
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return retry.Permanent(fmt.Errorf("%s: decode response: %w", provider, err))
		}
		return nil
	})
}
