// Package config handles environment-based configuration loading.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// EnvConfig holds all environment-variable-driven settings.
type EnvConfig struct {
	// Directories
	DataDir string

	// Network
	ListenAddress string
	APIPort       int

	APIMaxBodyBytes int

	// Provider
	GooglePlacesAPIKey     string
	ProviderBaseURL        string
	ProviderRequestTimeout time.Duration
	DefaultLanguage        string
	DefaultRegionCode      string

	// Caches
	SearchCacheTTL     time.Duration
	TileCacheTTL       time.Duration
	SearchCacheHotSize int

	// Circuit breaker
	BreakerFailureThreshold int
	BreakerHalfOpenDelay    time.Duration

	// Budgets (millicents per UTC day, per endpoint class)
	BudgetHealth       int64
	BudgetAutocomplete int64
	BudgetTextSearch   int64
	BudgetNearbySearch int64
	BudgetPlaceDetails int64
	BudgetPhotos       int64

	// Load shedding
	MaxConcurrentRequests int

	// Metrics
	MetricQueueSize        int
	MetricFlushBatchSize   int
	MetricFlushInterval    time.Duration
	MetricRetention        time.Duration
	MetricCleanupBatchSize int

	// Popular searches
	RawSearchRetention      time.Duration
	AggregateRetention      time.Duration
	AggregateMinUniqueUsers int
	AggregationSchedule     string
	AggregatePurgeSchedule  string
	RawPurgeSchedule        string

	// Provider health probe
	ProbePlaceID  string
	ProbeInterval time.Duration

	// GeoIP
	GeoIPDBURL          string
	GeoIPUpdateSchedule string

	// Auth
	AdminToken string
}

// LoadEnvConfig reads environment variables and returns a validated EnvConfig.
// Returns an error listing every invalid or missing value.
func LoadEnvConfig() (*EnvConfig, error) {
	cfg := &EnvConfig{}
	var errs []string

	// --- Directories ---
	cfg.DataDir = envStr("MEDINA_DATA_DIR", "/var/lib/medina")

	// --- Network ---
	cfg.ListenAddress = strings.TrimSpace(envStr("MEDINA_LISTEN_ADDRESS", "0.0.0.0"))
	cfg.APIPort = envInt("MEDINA_PORT", 2310, &errs)
	cfg.APIMaxBodyBytes = envInt("MEDINA_API_MAX_BODY_BYTES", 1<<20, &errs)

	// --- Provider ---
	cfg.GooglePlacesAPIKey = os.Getenv("GOOGLE_PLACES_API_KEY")
	cfg.ProviderBaseURL = envStr("MEDINA_PROVIDER_BASE_URL", "https://places.googleapis.com/v1")
	cfg.ProviderRequestTimeout = envDuration("MEDINA_PROVIDER_REQUEST_TIMEOUT", 10*time.Second, &errs)
	cfg.DefaultLanguage = envStr("MEDINA_DEFAULT_LANGUAGE", "en")
	cfg.DefaultRegionCode = envStr("MEDINA_DEFAULT_REGION_CODE", "MA")

	// --- Caches ---
	cfg.SearchCacheTTL = envDuration("MEDINA_SEARCH_CACHE_TTL", 15*time.Minute, &errs)
	cfg.TileCacheTTL = envDuration("MEDINA_TILE_CACHE_TTL", 45*time.Minute, &errs)
	cfg.SearchCacheHotSize = envInt("MEDINA_SEARCH_CACHE_HOT_SIZE", 4096, &errs)

	// --- Circuit breaker ---
	cfg.BreakerFailureThreshold = envInt("MEDINA_BREAKER_FAILURE_THRESHOLD", 5, &errs)
	cfg.BreakerHalfOpenDelay = envDuration("MEDINA_BREAKER_HALF_OPEN_DELAY", 30*time.Second, &errs)

	// --- Budgets ---
	cfg.BudgetHealth = envInt64("MEDINA_BUDGET_HEALTH_MILLICENTS", 100_000, &errs)
	cfg.BudgetAutocomplete = envInt64("MEDINA_BUDGET_AUTOCOMPLETE_MILLICENTS", 1_500_000, &errs)
	cfg.BudgetTextSearch = envInt64("MEDINA_BUDGET_TEXT_SEARCH_MILLICENTS", 3_000_000, &errs)
	cfg.BudgetNearbySearch = envInt64("MEDINA_BUDGET_NEARBY_SEARCH_MILLICENTS", 3_000_000, &errs)
	cfg.BudgetPlaceDetails = envInt64("MEDINA_BUDGET_PLACE_DETAILS_MILLICENTS", 5_000_000, &errs)
	cfg.BudgetPhotos = envInt64("MEDINA_BUDGET_PHOTOS_MILLICENTS", 1_000_000, &errs)

	// --- Load shedding ---
	cfg.MaxConcurrentRequests = envInt("MEDINA_MAX_CONCURRENT_REQUESTS", 25, &errs)

	// --- Metrics ---
	cfg.MetricQueueSize = envInt("MEDINA_METRIC_QUEUE_SIZE", 8192, &errs)
	cfg.MetricFlushBatchSize = envInt("MEDINA_METRIC_FLUSH_BATCH_SIZE", 512, &errs)
	cfg.MetricFlushInterval = envDuration("MEDINA_METRIC_FLUSH_INTERVAL", 5*time.Second, &errs)
	cfg.MetricRetention = envDuration("MEDINA_METRIC_RETENTION", 7*24*time.Hour, &errs)
	cfg.MetricCleanupBatchSize = envInt("MEDINA_METRIC_CLEANUP_BATCH_SIZE", 1000, &errs)

	// --- Popular searches ---
	cfg.RawSearchRetention = envDuration("MEDINA_RAW_SEARCH_RETENTION", 24*time.Hour, &errs)
	cfg.AggregateRetention = envDuration("MEDINA_AGGREGATE_RETENTION", 30*24*time.Hour, &errs)
	cfg.AggregateMinUniqueUsers = envInt("MEDINA_AGGREGATE_MIN_UNIQUE_USERS", 20, &errs)
	cfg.AggregationSchedule = envStr("MEDINA_AGGREGATION_SCHEDULE", "0 4 * * *")
	cfg.AggregatePurgeSchedule = envStr("MEDINA_AGGREGATE_PURGE_SCHEDULE", "0 5 * * *")
	cfg.RawPurgeSchedule = envStr("MEDINA_RAW_PURGE_SCHEDULE", "0 */6 * * *")

	// --- Provider health probe ---
	// Any syntactically valid place ID works as a probe target: a non-5xx
	// answer proves the provider is reachable even when the place is unknown.
	cfg.ProbePlaceID = envStr("MEDINA_PROBE_PLACE_ID", "medina-health-probe")
	cfg.ProbeInterval = envDuration("MEDINA_PROBE_INTERVAL", 5*time.Minute, &errs)

	// --- GeoIP ---
	cfg.GeoIPDBURL = envStr("MEDINA_GEOIP_DB_URL", "")
	cfg.GeoIPUpdateSchedule = envStr("MEDINA_GEOIP_UPDATE_SCHEDULE", "0 7 * * *")

	// --- Auth (must be defined; empty means auth disabled) ---
	adminToken, hasAdminToken := os.LookupEnv("MEDINA_ADMIN_TOKEN")
	cfg.AdminToken = adminToken

	// --- Validation ---
	if !hasAdminToken {
		errs = append(errs, "MEDINA_ADMIN_TOKEN must be defined (can be empty)")
	} else if IsWeakToken(cfg.AdminToken) {
		errs = append(errs, "MEDINA_ADMIN_TOKEN is too weak; use a longer random token")
	}
	if cfg.ListenAddress == "" {
		errs = append(errs, "MEDINA_LISTEN_ADDRESS must not be empty")
	}
	// GOOGLE_PLACES_API_KEY may be absent at startup; the gateway fails
	// individual calls with CONFIG_ERROR so health endpoints stay usable.

	validatePort("MEDINA_PORT", cfg.APIPort, &errs)
	validatePositive("MEDINA_API_MAX_BODY_BYTES", cfg.APIMaxBodyBytes, &errs)
	validatePositive("MEDINA_SEARCH_CACHE_HOT_SIZE", cfg.SearchCacheHotSize, &errs)
	validatePositive("MEDINA_BREAKER_FAILURE_THRESHOLD", cfg.BreakerFailureThreshold, &errs)
	validatePositive("MEDINA_MAX_CONCURRENT_REQUESTS", cfg.MaxConcurrentRequests, &errs)
	validatePositive("MEDINA_METRIC_QUEUE_SIZE", cfg.MetricQueueSize, &errs)
	validatePositive("MEDINA_METRIC_FLUSH_BATCH_SIZE", cfg.MetricFlushBatchSize, &errs)
	validatePositive("MEDINA_METRIC_CLEANUP_BATCH_SIZE", cfg.MetricCleanupBatchSize, &errs)
	validatePositive("MEDINA_AGGREGATE_MIN_UNIQUE_USERS", cfg.AggregateMinUniqueUsers, &errs)

	for _, d := range []struct {
		name string
		val  time.Duration
	}{
		{"MEDINA_PROVIDER_REQUEST_TIMEOUT", cfg.ProviderRequestTimeout},
		{"MEDINA_SEARCH_CACHE_TTL", cfg.SearchCacheTTL},
		{"MEDINA_TILE_CACHE_TTL", cfg.TileCacheTTL},
		{"MEDINA_BREAKER_HALF_OPEN_DELAY", cfg.BreakerHalfOpenDelay},
		{"MEDINA_METRIC_FLUSH_INTERVAL", cfg.MetricFlushInterval},
		{"MEDINA_METRIC_RETENTION", cfg.MetricRetention},
		{"MEDINA_RAW_SEARCH_RETENTION", cfg.RawSearchRetention},
		{"MEDINA_AGGREGATE_RETENTION", cfg.AggregateRetention},
		{"MEDINA_PROBE_INTERVAL", cfg.ProbeInterval},
	} {
		if d.val <= 0 {
			errs = append(errs, d.name+" must be positive")
		}
	}

	for _, s := range []struct {
		name string
		expr string
	}{
		{"MEDINA_AGGREGATION_SCHEDULE", cfg.AggregationSchedule},
		{"MEDINA_AGGREGATE_PURGE_SCHEDULE", cfg.AggregatePurgeSchedule},
		{"MEDINA_RAW_PURGE_SCHEDULE", cfg.RawPurgeSchedule},
		{"MEDINA_GEOIP_UPDATE_SCHEDULE", cfg.GeoIPUpdateSchedule},
	} {
		if _, err := cron.ParseStandard(s.expr); err != nil {
			errs = append(errs, fmt.Sprintf("%s: invalid cron expression %q: %v", s.name, s.expr, err))
		}
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("config validation failed:\n  %s", strings.Join(errs, "\n  "))
	}
	return cfg, nil
}

// BudgetLimits returns the per-endpoint-class daily limits in millicents.
func (c *EnvConfig) BudgetLimits() map[string]int64 {
	return map[string]int64{
		"health":        c.BudgetHealth,
		"autocomplete":  c.BudgetAutocomplete,
		"text_search":   c.BudgetTextSearch,
		"nearby_search": c.BudgetNearbySearch,
		"place_details": c.BudgetPlaceDetails,
		"photos":        c.BudgetPhotos,
	}
}

// --- helpers ---

func envStr(key, defaultVal string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int, errs *[]string) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: invalid integer %q", key, v))
		return defaultVal
	}
	return n
}

func envInt64(key string, defaultVal int64, errs *[]string) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: invalid integer %q", key, v))
		return defaultVal
	}
	return n
}

func envDuration(key string, defaultVal time.Duration, errs *[]string) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: invalid duration %q", key, v))
		return defaultVal
	}
	return d
}

func validatePort(name string, value int, errs *[]string) {
	if value < 1 || value > 65535 {
		*errs = append(*errs, fmt.Sprintf("%s: port must be 1-65535, got %d", name, value))
	}
}

func validatePositive(name string, value int, errs *[]string) {
	if value <= 0 {
		*errs = append(*errs, fmt.Sprintf("%s must be positive, got %d", name, value))
	}
}
