package probe

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/http/httptrace"
	"time"
)

// Fetcher executes one health-check request against the provider and
// returns the HTTP status plus time to first response byte. Injectable for
// testing.
type Fetcher func(ctx context.Context, url, apiKey, fieldMask string) (status int, latency time.Duration, err error)

// DirectFetcher creates a Fetcher that issues a plain HTTPS GET with the
// provider auth headers. Latency is measured to the first response byte via
// httptrace so body download time does not skew the health signal.
//
// timeout is a closure so the current value is read per request.
func DirectFetcher(timeout func() time.Duration) Fetcher {
	transport := &http.Transport{}

	return func(ctx context.Context, url, apiKey, fieldMask string) (int, time.Duration, error) {
		t := timeout()
		if t <= 0 {
			t = 10 * time.Second
		}

		ctx, cancel := context.WithTimeout(ctx, t)
		defer cancel()

		var firstByte time.Time
		trace := &httptrace.ClientTrace{
			TLSHandshakeDone:     func(_ tls.ConnectionState, _ error) {},
			GotFirstResponseByte: func() { firstByte = time.Now() },
		}

		req, err := http.NewRequestWithContext(
			httptrace.WithClientTrace(ctx, trace),
			http.MethodGet, url, nil,
		)
		if err != nil {
			return 0, 0, fmt.Errorf("probe: create request: %w", err)
		}
		req.Header.Set("X-Goog-Api-Key", apiKey)
		req.Header.Set("X-Goog-FieldMask", fieldMask)

		requestStart := time.Now()
		resp, err := transport.RoundTrip(req)
		if err != nil {
			return 0, 0, fmt.Errorf("probe: do request: %w", err)
		}
		defer resp.Body.Close()

		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

		latency := time.Since(requestStart)
		if !firstByte.IsZero() {
			latency = firstByte.Sub(requestStart)
		}
		return resp.StatusCode, latency, nil
	}
}
