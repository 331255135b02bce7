package probe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestDirectFetcherSendsAuthHeaders(t *testing.T) {
	var gotKey, gotMask string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-Goog-Api-Key")
		gotMask = r.Header.Get("X-Goog-FieldMask")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	fetch := DirectFetcher(func() time.Duration { return 5 * time.Second })
	status, latency, err := fetch(context.Background(), srv.URL, "key-123", "id")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	if latency <= 0 {
		t.Fatalf("latency = %v, want > 0", latency)
	}
	if gotKey != "key-123" || gotMask != "id" {
		t.Fatalf("headers: key=%q mask=%q", gotKey, gotMask)
	}
}

func TestDirectFetcherReturnsStatusWithoutError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	fetch := DirectFetcher(func() time.Duration { return 5 * time.Second })
	status, _, err := fetch(context.Background(), srv.URL, "k", "id")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if status != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", status)
	}
}

func TestDirectFetcherTimeout(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	fetch := DirectFetcher(func() time.Duration { return 50 * time.Millisecond })
	if _, _, err := fetch(context.Background(), srv.URL, "k", "id"); err == nil {
		t.Fatal("expected timeout error")
	}
}
