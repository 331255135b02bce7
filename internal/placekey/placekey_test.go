package placekey

import "testing"

func TestParseRoundTrip(t *testing.T) {
	cases := []struct {
		in     string
		scheme Scheme
		opaque string
	}{
		{"g:ChIJd8BlQ2BZwokRAFUEcm_qrcA", SchemeProvider, "ChIJd8BlQ2BZwokRAFUEcm_qrcA"},
		{"c:cafe-clock-marrakech", SchemeCurated, "cafe-clock-marrakech"},
		{"g:id:with:colons", SchemeProvider, "id:with:colons"},
	}
	for _, tc := range cases {
		k, err := Parse(tc.in)
		if err != nil {
			t.Fatalf("Parse(%q): %v", tc.in, err)
		}
		if k.Scheme != tc.scheme || k.Opaque != tc.opaque {
			t.Fatalf("Parse(%q): got %+v", tc.in, k)
		}
		if k.String() != tc.in {
			t.Fatalf("String: got %q, want %q", k.String(), tc.in)
		}
	}
}

func TestParseInvalid(t *testing.T) {
	for _, in := range []string{"", "nocolon", "x:abc", "g:", ":abc"} {
		if _, err := Parse(in); err == nil {
			t.Fatalf("Parse(%q): want error", in)
		}
	}
}

func TestFromProviderID(t *testing.T) {
	k := FromProviderID("ChIJABC")
	if k.String() != "g:ChIJABC" {
		t.Fatalf("got %q", k.String())
	}
	if FromCuratedSlug("medina-walk").String() != "c:medina-walk" {
		t.Fatalf("curated slug tag wrong")
	}
}
