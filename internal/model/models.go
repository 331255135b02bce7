// Package model defines the persisted row types shared across repos.
// Every entity here is ID-only, user-owned, or aggregate: provider content
// (names, addresses, ratings, photos, hours) is never represented.
package model

// SearchCacheEntry is one row of the ID-only search-result cache.
type SearchCacheEntry struct {
	CacheKey    string
	PlaceKeys   []string
	Provider    string
	ExpiresAtNs int64
	CreatedAtNs int64
}

// TileCacheChunk is one chunk of a geohash map tile. A tile's place keys are
// split across chunks; the tile is a valid hit only when every chunk is
// unexpired.
type TileCacheChunk struct {
	TileKey     string
	Zoom        int
	ChunkIndex  int
	Provider    string
	PlaceKeys   []string
	ExpiresAtNs int64
	CreatedAtNs int64
}

// BudgetCounter is the daily spend cell for one endpoint class.
type BudgetCounter struct {
	EndpointClass   string
	DateKey         string // UTC day, YYYY-MM-DD
	UsedMillicents  int64
	LimitMillicents int64
}

// ServiceModeRecord is the process-wide degradation-state singleton.
type ServiceModeRecord struct {
	CurrentMode     int
	Reason          string
	EnteredAtNs     int64
	ProviderHealthy bool
	BudgetOk        bool
	LatencyOk       bool
	BreakerClosed   bool
	UpdatedAtNs     int64
}

// ServiceModeTransition is one appended history row.
type ServiceModeTransition struct {
	ID               int64
	FromMode         int
	ToMode           int
	Reason           string
	TransitionedAtNs int64
}

// FeatureFlag is a persisted on/off switch with its last-change reason.
type FeatureFlag struct {
	Key         string
	Enabled     bool
	Reason      string
	UpdatedAtNs int64
}

// ServiceHealth is the per-external-service health record the mode
// controller reads.
type ServiceHealth struct {
	Service             string
	Healthy             bool
	ConsecutiveFailures int
	LastCheckedAtNs     int64
	LastErrorCode       string
}

// MetricEvent is one append-only timestamped measurement.
type MetricEvent struct {
	ID          int64
	Name        string
	Value       float64
	Endpoint    string
	CostTier    string
	CacheHit    bool
	ServiceMode int
	City        string
	TimestampNs int64
}

// RawSearchLog is a per-user search record, retained strictly <= 24 h.
type RawSearchLog struct {
	ID              int64
	UserID          string
	Query           string
	NormalizedQuery string
	City            string
	ResultCount     int
	SearchedAtNs    int64
}

// SearchAggregate is a k-anonymous daily rollup of search queries.
type SearchAggregate struct {
	NormalizedQuery string
	City            string
	Count           int64
	UniqueUsers     int64
	PeriodStartNs   int64
	PeriodEndNs     int64
}

// AlertThreshold is one evaluated alerting rule.
type AlertThreshold struct {
	Key            string
	Metric         string
	Comparison     string // "gt" or "lt"
	Threshold      float64
	WindowNs       int64
	Severity       string
	AutoMitigation string
	Enabled        bool
}

// Alert is one fired threshold breach.
type Alert struct {
	ID            int64
	ThresholdKey  string
	Severity      string
	Message       string
	Value         float64
	TriggeredAtNs int64
	ResolvedAtNs  int64 // 0 while unresolved
}
