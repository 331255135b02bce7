package popsearch

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestContainsPII(t *testing.T) {
	pii := []string{
		"contact me at someone@example.com",
		"call 212-555-123-4567 now",
		"1234567890",
		"visit https://example.com/menu",
		"see www.cafeclock.ma",
		"+212 612 345 678",
		"00212612345678",
		"0612345678",
		"07 12 34 56 78",
	}
	for _, q := range pii {
		if !ContainsPII(q) {
			t.Fatalf("ContainsPII(%q): want true", q)
		}
	}

	clean := []string{
		"best tagine in marrakech",
		"cafe near jemaa el-fnaa",
		"riad with rooftop 4 stars",
		"open until 23h",
		"couscous friday 12",
	}
	for _, q := range clean {
		if ContainsPII(q) {
			t.Fatalf("ContainsPII(%q): want false", q)
		}
	}
}

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"  Best   TAGINE  ": "best tagine",
		"CAFE\tCLOCK":       "cafe clock",
		"":                  "",
		"   ":               "",
		"Jemaa el-Fnaa":     "jemaa el-fnaa",
	}
	for in, want := range cases {
		if got := Normalize(in); got != want {
			t.Fatalf("Normalize(%q): got %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeTransliteratesArabic(t *testing.T) {
	cases := map[string]string{
		"كسكس":        "ksks",
		"طاجين":       "tajyn",
		"مطعم الرباط": "mtam alrbat",
	}
	for in, want := range cases {
		if got := Normalize(in); got != want {
			t.Fatalf("Normalize(%q): got %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeTruncates(t *testing.T) {
	long := strings.Repeat("a", 500)
	if got := Normalize(long); len(got) != maxNormalizedLen {
		t.Fatalf("got len %d", len(got))
	}
}

func TestNormalizeTruncatesOnRuneBoundary(t *testing.T) {
	// "a" shifts every 2-byte rune onto an odd offset, so the byte cap
	// lands mid-rune unless truncation backs up to a boundary.
	long := "a" + strings.Repeat("é", 300)
	got := Normalize(long)
	if !utf8.ValidString(got) {
		t.Fatalf("truncated query is not valid UTF-8: %q", got)
	}
	if len(got) > maxNormalizedLen {
		t.Fatalf("got len %d, want <= %d", len(got), maxNormalizedLen)
	}
}
