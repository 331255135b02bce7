// Package placecache implements the two ID-only cache tiers: the short-TTL
// search-result cache and the longer-TTL geohash map-tile cache. Rows store
// nothing but place keys, the provider tag, and timestamps.
package placecache

import (
	"math"
	"strconv"
	"strings"

	"github.com/medina-app/medina/internal/geohash"
)

// LocationBias is a circular search bias.
type LocationBias struct {
	Lat          float64 `json:"lat"`
	Lng          float64 `json:"lng"`
	RadiusMeters float64 `json:"radiusMeters"`
}

// LocationRestriction is a rectangular search restriction.
type LocationRestriction struct {
	North float64 `json:"north"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	West  float64 `json:"west"`
}

// SearchKeyParams are the normalised inputs of a search cache key.
type SearchKeyParams struct {
	Query       string
	City        string
	Language    string
	Bias        *LocationBias
	Restriction *LocationRestriction
}

// round3 rounds to 3 decimal places; formatting then trims trailing zeros so
// the same coordinate always yields the same text.
func round3(v float64) string {
	r := math.Round(v*1000) / 1000
	return strconv.FormatFloat(r, 'f', -1, 64)
}

// collapseWhitespace lowercases, trims, and collapses runs of whitespace to
// a single space.
func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(s))), " ")
}

// SearchCacheKey builds the deterministic, human-readable search cache key.
// Parts are joined with "|": q, optional c, l (default en), optional lb,
// optional lr. Coordinates are rounded to 3 decimal places so that jittery
// client locations still coalesce onto one key.
func SearchCacheKey(p SearchKeyParams) string {
	parts := make([]string, 0, 5)
	parts = append(parts, "q:"+collapseWhitespace(p.Query))

	if city := strings.ToLower(strings.TrimSpace(p.City)); city != "" {
		parts = append(parts, "c:"+city)
	}

	lang := strings.TrimSpace(p.Language)
	if lang == "" {
		lang = "en"
	}
	parts = append(parts, "l:"+lang)

	if p.Bias != nil {
		parts = append(parts, "lb:"+round3(p.Bias.Lat)+","+round3(p.Bias.Lng)+","+
			strconv.FormatInt(int64(math.Round(p.Bias.RadiusMeters)), 10))
	}
	if p.Restriction != nil {
		parts = append(parts, "lr:"+round3(p.Restriction.North)+","+round3(p.Restriction.South)+","+
			round3(p.Restriction.East)+","+round3(p.Restriction.West))
	}

	return strings.Join(parts, "|")
}

// TileKey builds the tile cache key "gh:{precision}:{geohash}" for a hash.
func TileKey(hash string) string {
	return "gh:" + strconv.Itoa(len(hash)) + ":" + hash
}

// TileKeysForBounds returns the tile keys covering a viewport at a zoom.
func TileKeysForBounds(b geohash.Bounds, zoom int) []string {
	hashes := geohash.TilesForBounds(b, zoom)
	keys := make([]string, len(hashes))
	for i, h := range hashes {
		keys[i] = TileKey(h)
	}
	return keys
}
