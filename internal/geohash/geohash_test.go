package geohash

import "testing"

func TestEncodeKnownValues(t *testing.T) {
	cases := []struct {
		lat, lng  float64
		precision int
		want      string
	}{
		// Marrakech Jemaa el-Fnaa.
		{31.6258, -7.9891, 5, "evd7f"},
		{57.64911, 10.40744, 11, "u4pruydqqvj"},
		{0, 0, 1, "s"},
	}
	for _, tc := range cases {
		if got := Encode(tc.lat, tc.lng, tc.precision); got != tc.want {
			t.Fatalf("Encode(%v, %v, %d): got %q, want %q", tc.lat, tc.lng, tc.precision, got, tc.want)
		}
	}
}

func TestDecodeBoundsRoundTrip(t *testing.T) {
	for _, hash := range []string{"evd7f", "u4pru", "s", "gbsuv7z"} {
		b := DecodeBounds(hash)
		clat, clng := b.Center()
		if got := Encode(clat, clng, len(hash)); got != hash {
			t.Fatalf("re-encode center of %q: got %q", hash, got)
		}
		if !b.Contains(clat, clng) {
			t.Fatalf("bounds of %q do not contain own center", hash)
		}
	}
}

func TestNeighboursInterior(t *testing.T) {
	got := Neighbours("evd7f")
	if len(got) != 9 {
		t.Fatalf("interior cell: got %d neighbours, want 9", len(got))
	}
	seen := map[string]bool{}
	for _, h := range got {
		if len(h) != 5 {
			t.Fatalf("neighbour %q has wrong precision", h)
		}
		if seen[h] {
			t.Fatalf("duplicate neighbour %q", h)
		}
		seen[h] = true
	}
	if !seen["evd7f"] {
		t.Fatalf("neighbours must include the cell itself")
	}
}

func TestNeighboursAtPole(t *testing.T) {
	// A cell touching the pole has fewer distinct neighbours after clamping.
	hash := Encode(89.9, 0, 3)
	got := Neighbours(hash)
	if len(got) == 0 || len(got) > 9 {
		t.Fatalf("pole cell: got %d neighbours", len(got))
	}
}

func TestPrecisionForZoom(t *testing.T) {
	cases := map[int]int{5: 3, 7: 3, 8: 4, 10: 4, 11: 5, 13: 5, 14: 6, 16: 6, 17: 7, 20: 7}
	for zoom, want := range cases {
		if got := PrecisionForZoom(zoom); got != want {
			t.Fatalf("PrecisionForZoom(%d): got %d, want %d", zoom, got, want)
		}
	}
}

func TestTilesForBoundsCoversCorners(t *testing.T) {
	b := Bounds{North: 31.65, South: 31.60, East: -7.96, West: -8.02}
	tiles := TilesForBounds(b, 14)

	set := map[string]bool{}
	for _, h := range tiles {
		set[h] = true
	}
	p := PrecisionForZoom(14)
	for _, pt := range [][2]float64{
		{b.North, b.West}, {b.North, b.East},
		{b.South, b.West}, {b.South, b.East},
	} {
		if !set[Encode(pt[0], pt[1], p)] {
			t.Fatalf("corner (%v, %v) not covered", pt[0], pt[1])
		}
	}
	clat, clng := b.Center()
	if !set[Encode(clat, clng, p)] {
		t.Fatalf("center not covered")
	}
}
