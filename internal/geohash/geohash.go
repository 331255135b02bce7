// Package geohash implements geohash encoding and the tile math used by the
// map-tile cache: zoom-to-precision mapping, neighbour expansion, and
// viewport tile-set computation.
package geohash

import "strings"

// base32 is the standard geohash alphabet.
const base32 = "0123456789bcdefghjkmnpqrstuvwxyz"

var base32Index = func() map[byte]int {
	m := make(map[byte]int, len(base32))
	for i := 0; i < len(base32); i++ {
		m[base32[i]] = i
	}
	return m
}()

// Bounds is a lat/lng bounding box.
type Bounds struct {
	North float64 `json:"north"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	West  float64 `json:"west"`
}

// Contains reports whether the point lies within the bounds (inclusive).
func (b Bounds) Contains(lat, lng float64) bool {
	return lat >= b.South && lat <= b.North && lng >= b.West && lng <= b.East
}

// Center returns the center point of the bounds.
func (b Bounds) Center() (lat, lng float64) {
	return (b.North + b.South) / 2, (b.East + b.West) / 2
}

// Encode computes the geohash of (lat, lng) at the given precision
// (number of base-32 characters). Precision is clamped to [1, 12].
func Encode(lat, lng float64, precision int) string {
	if precision < 1 {
		precision = 1
	}
	if precision > 12 {
		precision = 12
	}

	latMin, latMax := -90.0, 90.0
	lngMin, lngMax := -180.0, 180.0

	var sb strings.Builder
	sb.Grow(precision)

	evenBit := true
	idx := 0
	bit := 0
	for sb.Len() < precision {
		if evenBit {
			mid := (lngMin + lngMax) / 2
			if lng >= mid {
				idx = idx*2 + 1
				lngMin = mid
			} else {
				idx = idx * 2
				lngMax = mid
			}
		} else {
			mid := (latMin + latMax) / 2
			if lat >= mid {
				idx = idx*2 + 1
				latMin = mid
			} else {
				idx = idx * 2
				latMax = mid
			}
		}
		evenBit = !evenBit
		bit++
		if bit == 5 {
			sb.WriteByte(base32[idx])
			bit = 0
			idx = 0
		}
	}
	return sb.String()
}

// DecodeBounds returns the bounding box of a geohash cell.
// Unknown characters are ignored (they do not refine the cell).
func DecodeBounds(hash string) Bounds {
	latMin, latMax := -90.0, 90.0
	lngMin, lngMax := -180.0, 180.0

	evenBit := true
	for i := 0; i < len(hash); i++ {
		idx, ok := base32Index[hash[i]]
		if !ok {
			continue
		}
		for n := 4; n >= 0; n-- {
			bit := (idx >> n) & 1
			if evenBit {
				mid := (lngMin + lngMax) / 2
				if bit == 1 {
					lngMin = mid
				} else {
					lngMax = mid
				}
			} else {
				mid := (latMin + latMax) / 2
				if bit == 1 {
					latMin = mid
				} else {
					latMax = mid
				}
			}
			evenBit = !evenBit
		}
	}
	return Bounds{North: latMax, South: latMin, East: lngMax, West: lngMin}
}

// Neighbours returns the 8 surrounding cells plus the cell itself,
// deduplicated. Cells are computed by re-encoding offsets from the cell
// center, so pole/antimeridian clamping falls out of Encode's bisection.
func Neighbours(hash string) []string {
	b := DecodeBounds(hash)
	clat, clng := b.Center()
	dlat := b.North - b.South
	dlng := b.East - b.West

	seen := make(map[string]struct{}, 9)
	out := make([]string, 0, 9)
	for _, dy := range []float64{-1, 0, 1} {
		for _, dx := range []float64{-1, 0, 1} {
			lat := clat + dy*dlat
			lng := clng + dx*dlng
			if lat > 90 {
				lat = 90
			}
			if lat < -90 {
				lat = -90
			}
			// Wrap longitude across the antimeridian.
			if lng > 180 {
				lng -= 360
			}
			if lng < -180 {
				lng += 360
			}
			h := Encode(lat, lng, len(hash))
			if _, dup := seen[h]; !dup {
				seen[h] = struct{}{}
				out = append(out, h)
			}
		}
	}
	return out
}

// PrecisionForZoom maps a map zoom level to a geohash precision.
// Zoom 5-7 -> 3, 8-10 -> 4, 11-13 -> 5, 14-16 -> 6, 17+ -> 7.
func PrecisionForZoom(zoom int) int {
	switch {
	case zoom < 8:
		return 3
	case zoom < 11:
		return 4
	case zoom < 14:
		return 5
	case zoom < 17:
		return 6
	default:
		return 7
	}
}

// TilesForBounds returns the set of geohash tiles covering the viewport at
// the given zoom. The four corners and the center are hashed, and each
// result is unioned with its neighbours to guarantee boundary coverage.
func TilesForBounds(b Bounds, zoom int) []string {
	p := PrecisionForZoom(zoom)
	clat, clng := b.Center()

	points := [][2]float64{
		{b.North, b.West},
		{b.North, b.East},
		{b.South, b.West},
		{b.South, b.East},
		{clat, clng},
	}

	seen := make(map[string]struct{})
	var out []string
	for _, pt := range points {
		for _, h := range Neighbours(Encode(pt[0], pt[1], p)) {
			if _, dup := seen[h]; !dup {
				seen[h] = struct{}{}
				out = append(out, h)
			}
		}
	}
	return out
}
