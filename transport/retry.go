package transport

import (
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// retryableStatus lists the statuses retried with backoff. Everything
// else is returned to the caller as-is.
var retryableStatus = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

const (
	maxAttempts = 3
	baseBackoff = 1 * time.Second
)

// retryRoundTripper retries GETs on retryable statuses with exponential
// backoff and rate-limits every attempt. Requests here are always GETs,
// so replaying is safe.
type retryRoundTripper struct {
	base    http.RoundTripper
	limiter *rate.Limiter
}

func (r *retryRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	var resp *http.Response
	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			backoff := baseBackoff << (attempt - 1)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("transport: rate limit wait: %w", err)
		}

		resp, err = r.base.RoundTrip(req)
		if err != nil {
			// Connection-level failures are not replayed; overlay
			// links fail slowly and the site worker has its own
			// retry rounds.
			return nil, err
		}
		if !retryableStatus[resp.StatusCode] || attempt == maxAttempts-1 {
			return resp, nil
		}
		// Close so the connection can be reused, then retry.
		resp.Body.Close()
	}
	return resp, err
}
