package redact

import (
	"strings"
	"testing"
)

func TestRedactDeniedValues(t *testing.T) {
	cases := []struct {
		in      string
		leaked  string
		keyKept string
	}{
		{
			in:      `{"id":"abc","displayName":{"text":"Cafe Clock"},"rating":4.6}`,
			leaked:  "Cafe Clock",
			keyKept: "displayName",
		},
		{
			in:      `formattedAddress: "Derb Chtouka, Marrakech 40000"`,
			leaked:  "Marrakech",
			keyKept: "formattedAddress",
		},
		{
			in:      `nationalPhoneNumber=+212 5243-78367 status=400`,
			leaked:  "5243",
			keyKept: "nationalPhoneNumber",
		},
		{
			in:      `"photos":[{"name":"places/abc/photos/xyz"}]`,
			leaked:  "photos/xyz",
			keyKept: "photos",
		},
	}
	for _, tc := range cases {
		got := Redact(tc.in)
		if strings.Contains(got, tc.leaked) {
			t.Fatalf("Redact(%q) leaked %q: %q", tc.in, tc.leaked, got)
		}
		if !strings.Contains(got, tc.keyKept) {
			t.Fatalf("Redact(%q) dropped key %q: %q", tc.in, tc.keyKept, got)
		}
		if !strings.Contains(got, "[REDACTED]") {
			t.Fatalf("Redact(%q) missing placeholder: %q", tc.in, got)
		}
	}
}

func TestRedactPassThrough(t *testing.T) {
	in := `provider returned status 503 for request 9b2f`
	if got := Redact(in); got != in {
		t.Fatalf("clean text changed: %q", got)
	}
	if ContainsDenied(in) {
		t.Fatal("clean text flagged as denied")
	}
}

func TestContainsDenied(t *testing.T) {
	if !ContainsDenied(`"websiteUri":"https://example.com"`) {
		t.Fatal("want denied match")
	}
	if ContainsDenied(`"id":"ChIJabc"`) {
		t.Fatal("id is not a denied key")
	}
}

func TestStatusToCode(t *testing.T) {
	cases := map[int]string{
		400: "INVALID_REQUEST",
		401: "UNAUTHORIZED",
		403: "FORBIDDEN",
		404: "NOT_FOUND",
		429: "RATE_LIMITED",
		500: "INTERNAL_ERROR",
		502: "BAD_GATEWAY",
		503: "SERVICE_UNAVAILABLE",
		504: "GATEWAY_TIMEOUT",
		418: "HTTP_418",
	}
	for status, want := range cases {
		if got := StatusToCode(status); got != want {
			t.Fatalf("StatusToCode(%d): got %q, want %q", status, got, want)
		}
	}
}

func TestIsRetryable(t *testing.T) {
	for _, status := range []int{429, 500, 502, 503, 504} {
		if !IsRetryable(status) {
			t.Fatalf("%d should be retryable", status)
		}
	}
	for _, status := range []int{400, 401, 404, 418, 505} {
		if IsRetryable(status) {
			t.Fatalf("%d should not be retryable", status)
		}
	}
}
