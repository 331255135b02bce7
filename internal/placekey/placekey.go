// Package placekey provides the tagged place identifier used everywhere in
// place of provider-native IDs. A PlaceKey is "{scheme}:{opaque}": scheme "g"
// for external-provider places (opaque = the provider's place ID) and "c" for
// curated places (opaque = slug). PlaceKeys are the only cross-system
// reference to a place; no provider content ever travels with them.
package placekey

import (
	"fmt"
	"strings"
)

// Scheme tags the origin of a place identifier.
type Scheme string

const (
	// SchemeProvider marks an external-provider place ID.
	SchemeProvider Scheme = "g"
	// SchemeCurated marks an internally curated place slug.
	SchemeCurated Scheme = "c"
)

// IsValid reports whether s is a known scheme.
func (s Scheme) IsValid() bool {
	return s == SchemeProvider || s == SchemeCurated
}

// PlaceKey is an opaque tagged place identifier.
type PlaceKey struct {
	Scheme Scheme
	Opaque string
}

// FromProviderID tags a raw provider place ID as "g:{id}".
func FromProviderID(id string) PlaceKey {
	return PlaceKey{Scheme: SchemeProvider, Opaque: id}
}

// FromCuratedSlug tags a curated slug as "c:{slug}".
func FromCuratedSlug(slug string) PlaceKey {
	return PlaceKey{Scheme: SchemeCurated, Opaque: slug}
}

// Parse splits a "{scheme}:{opaque}" string into a PlaceKey.
func Parse(s string) (PlaceKey, error) {
	scheme, opaque, found := strings.Cut(s, ":")
	if !found {
		return PlaceKey{}, fmt.Errorf("place key %q: missing scheme separator", s)
	}
	k := PlaceKey{Scheme: Scheme(scheme), Opaque: opaque}
	if !k.Scheme.IsValid() {
		return PlaceKey{}, fmt.Errorf("place key %q: unknown scheme %q", s, scheme)
	}
	if k.Opaque == "" {
		return PlaceKey{}, fmt.Errorf("place key %q: empty identifier", s)
	}
	return k, nil
}

// String implements fmt.Stringer.
func (k PlaceKey) String() string {
	return string(k.Scheme) + ":" + k.Opaque
}

// IsZero reports whether k is the zero value.
func (k PlaceKey) IsZero() bool {
	return k.Scheme == "" && k.Opaque == ""
}
