package servicemode

import (
	"time"

	"github.com/medina-app/medina/internal/model"
)

// Known feature flag keys.
const (
	FlagPhotos               = "photos_enabled"
	FlagOpenNow              = "open_now_enabled"
	FlagTextSearch           = "text_search_enabled"
	FlagNearbySearch         = "nearby_search_enabled"
	FlagAutocomplete         = "autocomplete_enabled"
	FlagPlaceDetailsEnhanced = "place_details_enhanced"
)

// allFlags lists every externally-dependent flag, i.e. every flag whose
// feature calls the provider.
var allFlags = []string{
	FlagPhotos,
	FlagOpenNow,
	FlagTextSearch,
	FlagNearbySearch,
	FlagAutocomplete,
	FlagPlaceDetailsEnhanced,
}

// flagsByMode is the static per-mode flag table applied on transitions.
// Mode 0 enables everything; mode 1 (cost saver) drops photos and open-now;
// modes 2 and 3 drop every externally-dependent flag.
var flagsByMode = map[int]map[string]bool{
	0: {
		FlagPhotos: true, FlagOpenNow: true, FlagTextSearch: true,
		FlagNearbySearch: true, FlagAutocomplete: true, FlagPlaceDetailsEnhanced: true,
	},
	1: {
		FlagPhotos: false, FlagOpenNow: false, FlagTextSearch: true,
		FlagNearbySearch: true, FlagAutocomplete: true, FlagPlaceDetailsEnhanced: true,
	},
	2: {
		FlagPhotos: false, FlagOpenNow: false, FlagTextSearch: false,
		FlagNearbySearch: false, FlagAutocomplete: false, FlagPlaceDetailsEnhanced: false,
	},
	3: {
		FlagPhotos: false, FlagOpenNow: false, FlagTextSearch: false,
		FlagNearbySearch: false, FlagAutocomplete: false, FlagPlaceDetailsEnhanced: false,
	},
}

// FlagStore is the write interface for feature flags. It satisfies
// budget.FlagDisabler for auto-mitigation.
type FlagStore struct {
	repo *Repo
	now  func() time.Time
}

// NewFlagStore creates a FlagStore over the repo.
func NewFlagStore(repo *Repo) *FlagStore {
	return &FlagStore{repo: repo, now: time.Now}
}

// Enabled reports whether a flag is on. Unknown flags read as enabled.
func (f *FlagStore) Enabled(key string) bool {
	flag, err := f.repo.GetFlag(key)
	if err != nil {
		return true
	}
	return flag.Enabled
}

// Set writes a flag with a reason.
func (f *FlagStore) Set(key string, enabled bool, reason string) error {
	return f.repo.SetFlag(model.FeatureFlag{
		Key:         key,
		Enabled:     enabled,
		Reason:      reason,
		UpdatedAtNs: f.now().UnixNano(),
	})
}

// Disable turns a flag off.
func (f *FlagStore) Disable(key, reason string) error {
	return f.Set(key, false, reason)
}

// applyModeFlags writes the whole per-mode flag table for a mode.
func (f *FlagStore) applyModeFlags(mode int, reason string) error {
	table, ok := flagsByMode[mode]
	if !ok {
		return nil
	}
	for _, key := range allFlags {
		if err := f.Set(key, table[key], reason); err != nil {
			return err
		}
	}
	return nil
}
