package external

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/milhau/tradesim/internal/domain"
)

// getter performs GET requests with retry on 429 and maps failures onto the domain taxonomy.
type getter struct {
	name       string
	httpClient *http.Client
	maxRetries int
	baseDelay  time.Duration
}

func newGetter(name string, timeout time.Duration, maxRetries int, baseDelay time.Duration) *getter {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &getter{
		name:       name,
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: max(maxRetries, 0),
		baseDelay:  baseDelay,
	}
}

// get returns the body of a 200 response. A 429 that survives all retries yields
// domain.ErrRateLimited; anything else non-200 yields domain.ErrUpstreamUnavailable.
func (g *getter) get(ctx context.Context, url string, header http.Header) ([]byte, error) {
	var lastErr error
	for attempt := range g.maxRetries + 1 {
		if attempt > 0 {
			delay := g.baseDelay * time.Duration(1<<uint(attempt-1))
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%s: %w: %w", g.name, domain.ErrUpstreamUnavailable, ctx.Err())
			case <-time.After(delay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("creating %s request: %w", g.name, err)
		}
		for k, vs := range header {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}
		req.Header.Set("Accept", "application/json")

		resp, err := g.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%s request failed: %w: %w", g.name, domain.ErrUpstreamUnavailable, err)
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("reading %s response: %w: %w", g.name, domain.ErrUpstreamUnavailable, err)
		}

		if resp.StatusCode == http.StatusOK {
			return body, nil
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("%s HTTP 429 (attempt %d/%d): %w", g.name, attempt+1, g.maxRetries+1, domain.ErrRateLimited)
			continue
		}

		return nil, fmt.Errorf("%s HTTP %d: %s: %w", g.name, resp.StatusCode, truncate(body, 256), domain.ErrUpstreamUnavailable)
	}

	return nil, lastErr
}

func truncate(body []byte, n int) string {
	if len(body) <= n {
		return string(body)
	}
	return string(body[:n]) + "..."
}
