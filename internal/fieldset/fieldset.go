// Package fieldset holds the static registry of approved provider field
// masks. The gateway refuses any call whose field-set name is not registered,
// which keeps ad-hoc masks (and their cost surprises) out of the system.
package fieldset

import "fmt"

// CostTier classifies a field set by provider pricing tier.
type CostTier string

const (
	TierBasic     CostTier = "basic"
	TierAdvanced  CostTier = "advanced"
	TierPreferred CostTier = "preferred"
)

// EndpointClass groups provider endpoints for budgets and priorities.
type EndpointClass string

const (
	ClassHealth       EndpointClass = "health"
	ClassAutocomplete EndpointClass = "autocomplete"
	ClassTextSearch   EndpointClass = "text_search"
	ClassNearbySearch EndpointClass = "nearby_search"
	ClassPlaceDetails EndpointClass = "place_details"
	ClassPhotos       EndpointClass = "photos"
)

// IsValid reports whether c is a known endpoint class.
func (c EndpointClass) IsValid() bool {
	switch c {
	case ClassHealth, ClassAutocomplete, ClassTextSearch,
		ClassNearbySearch, ClassPlaceDetails, ClassPhotos:
		return true
	}
	return false
}

// Priority returns the load-shedding priority class (1 = most important).
func (c EndpointClass) Priority() int {
	switch c {
	case ClassPlaceDetails, ClassHealth:
		return 1
	case ClassTextSearch, ClassNearbySearch:
		return 2
	case ClassAutocomplete:
		return 3
	case ClassPhotos:
		return 4
	default:
		return 4
	}
}

// FieldSet is one approved field-mask definition.
type FieldSet struct {
	Name string
	// Mask is the X-Goog-FieldMask header value sent to the provider.
	Mask string
	Tier CostTier
	// MaxCostMillicents is the worst-case per-call cost charged against
	// the daily budget.
	MaxCostMillicents int64
	Description       string
}

// Registered field sets. Masks follow Places API v1 field paths; only opaque
// identifiers and geometry are ever requested at the basic tier.
var registry = map[string]FieldSet{
	"HEALTH_CHECK": {
		Name: "HEALTH_CHECK", Mask: "id", Tier: TierBasic,
		MaxCostMillicents: 0,
		Description:       "Minimal probe used to confirm provider availability.",
	},
	"SEARCH_LITE": {
		Name: "SEARCH_LITE", Mask: "places.id,places.location", Tier: TierBasic,
		MaxCostMillicents: 500,
		Description:       "ID-only search used to refresh tile and search caches.",
	},
	"PLACE_HEADER": {
		Name: "PLACE_HEADER", Mask: "id,displayName,location,primaryType", Tier: TierBasic,
		MaxCostMillicents: 500,
		Description:       "Name and location for list rows.",
	},
	"PLACE_DETAILS_STANDARD": {
		Name:              "PLACE_DETAILS_STANDARD",
		Mask:              "id,displayName,location,formattedAddress,rating,userRatingCount,currentOpeningHours,primaryType",
		Tier:              TierAdvanced,
		MaxCostMillicents: 1700,
		Description:       "Standard detail page fields.",
	},
	"PLACE_DETAILS_WITH_PHOTOS": {
		Name:              "PLACE_DETAILS_WITH_PHOTOS",
		Mask:              "id,displayName,location,formattedAddress,rating,userRatingCount,currentOpeningHours,primaryType,photos,nationalPhoneNumber,websiteUri",
		Tier:              TierPreferred,
		MaxCostMillicents: 2500,
		Description:       "Detail page with photo references and contact fields.",
	},
	"NEARBY_SEARCH": {
		Name:              "NEARBY_SEARCH",
		Mask:              "places.id,places.displayName,places.location,places.rating,places.primaryType",
		Tier:              TierAdvanced,
		MaxCostMillicents: 3200,
		Description:       "Nearby search with headline fields.",
	},
	"TEXT_SEARCH": {
		Name:              "TEXT_SEARCH",
		Mask:              "places.id,places.displayName,places.location,places.rating,places.primaryType",
		Tier:              TierAdvanced,
		MaxCostMillicents: 3200,
		Description:       "Text search with headline fields.",
	},
	"AUTOCOMPLETE": {
		Name:              "AUTOCOMPLETE",
		Mask:              "suggestions.placePrediction.placeId,suggestions.placePrediction.text",
		Tier:              TierBasic,
		MaxCostMillicents: 283,
		Description:       "Session-priced query predictions.",
	},
}

// ErrInvalidFieldSet is returned for unregistered field-set names.
type ErrInvalidFieldSet struct{ Name string }

func (e *ErrInvalidFieldSet) Error() string {
	return fmt.Sprintf("field set %q is not registered", e.Name)
}

// Get returns the field set registered under name.
func Get(name string) (FieldSet, error) {
	fs, ok := registry[name]
	if !ok {
		return FieldSet{}, &ErrInvalidFieldSet{Name: name}
	}
	return fs, nil
}

// CostTierOf returns the cost tier of a registered field set.
func CostTierOf(name string) (CostTier, error) {
	fs, err := Get(name)
	if err != nil {
		return "", err
	}
	return fs.Tier, nil
}

// MaxCost returns the maximum per-call cost of a registered field set
// in millicents.
func MaxCost(name string) (int64, error) {
	fs, err := Get(name)
	if err != nil {
		return 0, err
	}
	return fs.MaxCostMillicents, nil
}

// Names returns all registered field-set names. Order is unspecified.
func Names() []string {
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	return out
}
