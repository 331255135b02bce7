package netutil

import (
	"context"
	"errors"
	"time"
)

// RetryDownloader decorates a Downloader with bounded retry on transient
// network failures. Setup errors and non-200 responses are not retried.
type RetryDownloader struct {
	Direct Downloader
	// Attempts is the total attempt count including the first. Defaults to 3.
	Attempts int
	// Backoff is the delay before each retry. Defaults to 2s.
	Backoff time.Duration

	sleep func(time.Duration)
}

// Download runs the direct download, retrying transient failures.
func (r *RetryDownloader) Download(ctx context.Context, url string) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	attempts := r.Attempts
	if attempts <= 0 {
		attempts = 3
	}
	backoff := r.Backoff
	if backoff <= 0 {
		backoff = 2 * time.Second
	}
	sleep := r.sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if ctx.Err() != nil {
			if lastErr != nil {
				return nil, lastErr
			}
			return nil, ctx.Err()
		}
		if i > 0 {
			sleep(backoff)
		}
		body, err := r.Direct.Download(ctx, url)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !isTransient(err) {
			return nil, err
		}
	}
	return nil, lastErr
}

func isTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		// Only server-side statuses are worth another attempt.
		return statusErr.StatusCode == 429 || statusErr.StatusCode >= 500
	}
	var nonRetryable *NonRetryableError
	return !errors.As(err, &nonRetryable)
}
