package gateway

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/zeebo/xxh3"

	"github.com/medina-app/medina/internal/fieldset"
	"github.com/medina-app/medina/internal/placecache"
)

// flightKey composes the coalescing key for an idempotent call. The key
// describes the full outbound identity; two calls with equal keys would hit
// the provider with byte-identical requests, so they may share one outcome.
// The priority suffix keeps different shedding classes from sharing results.
// The readable key is fingerprinted with xxh3 so the in-flight map never
// holds raw query text.
func flightKey(p Params, fs fieldset.FieldSet, cacheKey string, priority int) string {
	var raw string
	switch p.EndpointClass {
	case fieldset.ClassPlaceDetails:
		raw = "details:" + p.PlaceID + "|fs:" + fs.Name +
			"|lang:" + p.Language + "|region:" + p.RegionCode
	case fieldset.ClassAutocomplete:
		raw = "autocomplete:" + strings.ToLower(strings.TrimSpace(p.Input)) +
			"|lang:" + p.Language + "|region:" + p.RegionCode +
			"|lb:" + biasPart(p.LocationBias) +
			"|types:" + sortedCSV(p.IncludedTypes) +
			"|fs:" + fs.Name
	case fieldset.ClassTextSearch:
		raw = "text_search:" + p.RegionCode + "|" + fs.Name + "|" + cacheKey
	default:
		return ""
	}

	h := xxh3.Hash128([]byte(raw))
	return fmt.Sprintf("%016x%016x:p%d", h.Hi, h.Lo, priority)
}

func biasPart(b *placecache.LocationBias) string {
	if b == nil {
		return ""
	}
	return strconv.FormatFloat(b.Lat, 'f', -1, 64) + "," +
		strconv.FormatFloat(b.Lng, 'f', -1, 64) + "," +
		strconv.FormatFloat(b.RadiusMeters, 'f', -1, 64)
}

func sortedCSV(types []string) string {
	if len(types) == 0 {
		return ""
	}
	cp := make([]string, len(types))
	copy(cp, types)
	sort.Strings(cp)
	return strings.Join(cp, ",")
}
