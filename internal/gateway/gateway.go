// Package gateway is the single entry point for outbound provider calls.
// Every call runs the same pipeline: validation, defaults, cache probe,
// singleflight coalescing, then the load-shed, breaker, and budget gates
// before the HTTPS exchange. Only place keys ever leave this package; all
// error text passes through redaction.
package gateway

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/medina-app/medina/internal/breaker"
	"github.com/medina-app/medina/internal/budget"
	"github.com/medina-app/medina/internal/fieldset"
	"github.com/medina-app/medina/internal/loadshed"
	"github.com/medina-app/medina/internal/metrics"
	"github.com/medina-app/medina/internal/model"
	"github.com/medina-app/medina/internal/placecache"
	"github.com/medina-app/medina/internal/servicemode"
)

// Stable wire error codes produced by the gateway pipeline. Provider HTTP
// statuses map through redact.StatusToCode; these cover everything upstream
// of the outbound call.
const (
	CodeInvalidFieldSet        = "INVALID_FIELD_SET"
	CodeInvalidEndpointClass   = "INVALID_ENDPOINT_CLASS"
	CodeEndpointNotImplemented = "ENDPOINT_NOT_IMPLEMENTED"
	CodeMissingParameter       = "MISSING_PARAMETER"
	CodeInvalidParameter       = "INVALID_PARAMETER"
	CodeLoadShed               = "LOAD_SHED"
	CodeCircuitOpen            = "CIRCUIT_OPEN"
	CodeBudgetExceeded         = "BUDGET_EXCEEDED"
	CodeConfigError            = "CONFIG_ERROR"
	CodeTimeout                = "TIMEOUT"
	CodeNetworkError           = "NETWORK_ERROR"
	CodeInternalError          = "INTERNAL_ERROR"
)

// ProviderService is the breaker and health-record key for the places
// provider.
const ProviderService = servicemode.ProviderService

// Params is one provider call request.
type Params struct {
	FieldSet      string                 `json:"fieldSet"`
	EndpointClass fieldset.EndpointClass `json:"endpointClass"`

	PlaceID string `json:"placeId,omitempty"`
	Query   string `json:"query,omitempty"`
	Input   string `json:"input,omitempty"`

	Language   string `json:"language,omitempty"`
	RegionCode string `json:"regionCode,omitempty"`
	City       string `json:"city,omitempty"`

	SessionToken  string   `json:"sessionToken,omitempty"`
	IncludedTypes []string `json:"includedTypes,omitempty"`

	LocationBias        *placecache.LocationBias        `json:"locationBias,omitempty"`
	LocationRestriction *placecache.LocationRestriction `json:"locationRestriction,omitempty"`

	// Priority overrides the endpoint-class default (1..4) when non-zero.
	Priority int `json:"priority,omitempty"`

	// SkipBudgetCheck is honoured only for the HEALTH_CHECK field set.
	SkipBudgetCheck bool `json:"skipBudgetCheck,omitempty"`

	// AllowIDOnlySearchCacheResponse lets a text search be answered from the
	// ID-only cache without an outbound call.
	AllowIDOnlySearchCacheResponse bool `json:"allowIdOnlySearchCacheResponse,omitempty"`
}

// ProviderError is the typed failure half of a ProviderResult.
type ProviderError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

func (e *ProviderError) Error() string {
	return e.Code + ": " + e.Message
}

// Metadata describes one call regardless of outcome. Coalesced passengers
// get their own RequestID and LatencyMs but share Data and Error with the
// flight owner.
type Metadata struct {
	RequestID     string                 `json:"requestId"`
	LatencyMs     int64                  `json:"latencyMs"`
	CostClass     string                 `json:"costClass"`
	FieldSet      string                 `json:"fieldSet"`
	EndpointClass fieldset.EndpointClass `json:"endpointClass"`
	CacheHit      bool                   `json:"cacheHit"`
}

// ProviderResult is the uniform outcome of ProviderRequest.
type ProviderResult struct {
	Success  bool           `json:"success"`
	Data     map[string]any `json:"data,omitempty"`
	Error    *ProviderError `json:"error,omitempty"`
	Metadata Metadata       `json:"metadata"`
}

// FlagReader reads feature flags. Implemented by servicemode.FlagStore.
type FlagReader interface {
	Enabled(key string) bool
}

// Config wires a Gateway.
type Config struct {
	BaseURL string
	Timeout time.Duration

	// APIKey returns the provider API key; empty fails calls with
	// CONFIG_ERROR. Read per call so key rotation needs no restart.
	APIKey func() string

	DefaultLanguage   string
	DefaultRegionCode string

	Client *http.Client
}

// Gateway orchestrates provider calls.
type Gateway struct {
	baseURL string
	timeout time.Duration
	apiKey  func() string

	defaultLanguage string
	defaultRegion   string

	client *http.Client
	flight singleflight.Group

	searchCache *placecache.SearchCache
	breaker     *breaker.Breaker
	budget      *budget.Enforcer
	shedder     *loadshed.Shedder
	metrics     *metrics.Service
	flags       FlagReader
	health      *servicemode.Repo

	now func() time.Time
}

// New creates a Gateway. searchCache, metrics, flags, and health may be nil;
// the corresponding steps are skipped.
func New(cfg Config, sc *placecache.SearchCache, br *breaker.Breaker,
	en *budget.Enforcer, sh *loadshed.Shedder, ms *metrics.Service,
	flags FlagReader, health *servicemode.Repo) *Gateway {

	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.DefaultLanguage == "" {
		cfg.DefaultLanguage = "en"
	}
	if cfg.DefaultRegionCode == "" {
		cfg.DefaultRegionCode = "MA"
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{}
	}
	if cfg.APIKey == nil {
		cfg.APIKey = func() string { return "" }
	}
	return &Gateway{
		baseURL:         cfg.BaseURL,
		timeout:         cfg.Timeout,
		apiKey:          cfg.APIKey,
		defaultLanguage: cfg.DefaultLanguage,
		defaultRegion:   cfg.DefaultRegionCode,
		client:          cfg.Client,
		searchCache:     sc,
		breaker:         br,
		budget:          en,
		shedder:         sh,
		metrics:         ms,
		flags:           flags,
		health:          health,
		now:             time.Now,
	}
}

// implementedClasses are the endpoint classes with an outbound mapping.
func implemented(class fieldset.EndpointClass) bool {
	switch class {
	case fieldset.ClassPlaceDetails, fieldset.ClassTextSearch, fieldset.ClassAutocomplete:
		return true
	}
	return false
}

// validate checks the field set, endpoint class, and required parameters.
func validate(p Params) *ProviderError {
	if _, err := fieldset.Get(p.FieldSet); err != nil {
		return &ProviderError{Code: CodeInvalidFieldSet, Message: err.Error()}
	}
	if !p.EndpointClass.IsValid() {
		return &ProviderError{Code: CodeInvalidEndpointClass,
			Message: "unrecognised endpoint class " + string(p.EndpointClass)}
	}
	if !implemented(p.EndpointClass) {
		return &ProviderError{Code: CodeEndpointNotImplemented,
			Message: "endpoint class " + string(p.EndpointClass) + " has no outbound mapping"}
	}
	switch p.EndpointClass {
	case fieldset.ClassPlaceDetails:
		if p.PlaceID == "" {
			return &ProviderError{Code: CodeMissingParameter, Message: "placeId is required for place_details"}
		}
	case fieldset.ClassTextSearch:
		if p.Query == "" {
			return &ProviderError{Code: CodeMissingParameter, Message: "query is required for text_search"}
		}
	case fieldset.ClassAutocomplete:
		if p.Input == "" {
			return &ProviderError{Code: CodeMissingParameter, Message: "input is required for autocomplete"}
		}
		if len(p.Input) < 2 {
			return &ProviderError{Code: CodeInvalidParameter, Message: "input must be at least 2 characters"}
		}
	}
	return nil
}

// callOutcome is the shared payload of one singleflight execution.
type callOutcome struct {
	data      map[string]any
	err       *ProviderError
	costClass string
}

// ProviderRequest runs one provider call through the full pipeline.
func (g *Gateway) ProviderRequest(ctx context.Context, p Params) ProviderResult {
	requestID := uuid.NewString()
	start := g.now()

	fail := func(err *ProviderError) ProviderResult {
		r := ProviderResult{
			Success: false,
			Error:   err,
			Metadata: Metadata{
				RequestID:     requestID,
				LatencyMs:     time.Since(start).Milliseconds(),
				CostClass:     "none",
				FieldSet:      p.FieldSet,
				EndpointClass: p.EndpointClass,
			},
		}
		g.emitCallMetrics(p, r)
		return r
	}

	if verr := validate(p); verr != nil {
		return fail(verr)
	}
	if p.Language == "" {
		p.Language = g.defaultLanguage
	}
	if p.RegionCode == "" {
		p.RegionCode = g.defaultRegion
	}

	// Cost-Saver downgrade: the enhanced detail mask falls back to the
	// standard one while place_details_enhanced is off.
	if p.FieldSet == "PLACE_DETAILS_WITH_PHOTOS" && g.flags != nil &&
		!g.flags.Enabled(servicemode.FlagPlaceDetailsEnhanced) {
		p.FieldSet = "PLACE_DETAILS_STANDARD"
	}

	fs, _ := fieldset.Get(p.FieldSet)

	var cacheKey string
	if p.EndpointClass == fieldset.ClassTextSearch && g.searchCache != nil {
		cacheKey = placecache.SearchCacheKey(placecache.SearchKeyParams{
			Query:       p.Query,
			City:        p.City,
			Language:    p.Language,
			Bias:        p.LocationBias,
			Restriction: p.LocationRestriction,
		})
		keys, hit := g.searchCache.Lookup(cacheKey)
		if hit && p.AllowIDOnlySearchCacheResponse {
			g.emit(model.MetricEvent{
				Name: metrics.EventCacheHit, Value: 1,
				Endpoint: string(p.EndpointClass), CacheHit: true, City: p.City,
			})
			places := make([]map[string]any, len(keys))
			for i, k := range keys {
				places[i] = map[string]any{"placeKey": k}
			}
			r := ProviderResult{
				Success: true,
				Data:    map[string]any{"places": places, "cachedResult": true},
				Metadata: Metadata{
					RequestID:     requestID,
					LatencyMs:     time.Since(start).Milliseconds(),
					CostClass:     "none",
					FieldSet:      p.FieldSet,
					EndpointClass: p.EndpointClass,
					CacheHit:      true,
				},
			}
			g.emitCallMetrics(p, r)
			return r
		}
		// A hit the caller cannot accept (full fields wanted) still goes
		// outbound, but does not count as a miss.
		if !hit {
			g.emit(model.MetricEvent{
				Name: metrics.EventCacheMiss, Value: 1,
				Endpoint: string(p.EndpointClass), City: p.City,
			})
		}
	}

	priority := p.Priority
	if priority < 1 || priority > 4 {
		priority = p.EndpointClass.Priority()
	}

	exec := func() (any, error) {
		return g.exec(ctx, p, fs, cacheKey, priority), nil
	}

	var outcome *callOutcome
	if key := flightKey(p, fs, cacheKey, priority); key != "" {
		v, _, _ := g.flight.Do(key, exec)
		outcome = v.(*callOutcome)
	} else {
		v, _ := exec()
		outcome = v.(*callOutcome)
	}

	r := ProviderResult{
		Success: outcome.err == nil,
		Data:    outcome.data,
		Error:   outcome.err,
		Metadata: Metadata{
			RequestID:     requestID,
			LatencyMs:     time.Since(start).Milliseconds(),
			CostClass:     outcome.costClass,
			FieldSet:      p.FieldSet,
			EndpointClass: p.EndpointClass,
		},
	}
	g.emitCallMetrics(p, r)
	return r
}

// exec runs the gated core of one call. It is the singleflight body, so it
// returns a shared outcome instead of per-caller metadata.
func (g *Gateway) exec(ctx context.Context, p Params, fs fieldset.FieldSet, cacheKey string, priority int) *callOutcome {
	release, err := g.shedder.Acquire(priority)
	if err != nil {
		shed := err.(*loadshed.ShedError)
		return &callOutcome{costClass: "none", err: &ProviderError{
			Code:      CodeLoadShed,
			Message:   "request shed (" + string(shed.Reason) + ") at load " + string(shed.Level),
			Retryable: true,
		}}
	}
	defer release()

	admitted, _ := g.breaker.Allow(ProviderService)
	if !admitted {
		return &callOutcome{costClass: "none", err: &ProviderError{
			Code:      CodeCircuitOpen,
			Message:   "provider circuit is open",
			Retryable: true,
		}}
	}

	skipBudget := p.SkipBudgetCheck && p.FieldSet == "HEALTH_CHECK"
	if !skipBudget {
		st, err := g.budget.Check(p.EndpointClass)
		if err != nil {
			return &callOutcome{costClass: "none", err: &ProviderError{
				Code: CodeInternalError, Message: "budget check: " + err.Error(),
			}}
		}
		if !st.Allowed {
			return &callOutcome{costClass: "none", err: &ProviderError{
				Code:      CodeBudgetExceeded,
				Message:   "daily budget exhausted for " + string(p.EndpointClass),
				Retryable: false,
			}}
		}
	}

	apiKey := g.apiKey()
	if apiKey == "" {
		return &callOutcome{costClass: "none", err: &ProviderError{
			Code:    CodeConfigError,
			Message: "provider API key is not configured",
		}}
	}

	callStart := g.now()
	data, provErr, breakerFail := g.callProvider(ctx, p, fs, apiKey)
	latency := g.now().Sub(callStart)

	// The provider charges attempted calls, so spend is recorded regardless
	// of outcome, asynchronously off the hot path.
	go func() {
		if _, err := g.budget.Record(p.EndpointClass, fs.MaxCostMillicents); err != nil {
			log.Printf("[gateway] budget record failed class=%s: %v", p.EndpointClass, err)
		}
	}()

	g.emit(model.MetricEvent{
		Name:     metrics.EventProviderLatency,
		Value:    float64(latency.Milliseconds()),
		Endpoint: string(p.EndpointClass),
		CostTier: string(fs.Tier),
		City:     p.City,
	})

	if breakerFail {
		g.breaker.RecordFailure(ProviderService)
		g.recordHealth(false, provErr)
	} else {
		// Any response outside the failure class (429/5xx/network) proves
		// the provider is reachable; a 404 for a bad place ID says nothing
		// about its health. The circuit must see a Record call either way,
		// or a half-open probe answered with a plain 4xx never resolves.
		g.breaker.RecordSuccess(ProviderService)
		g.recordHealth(true, nil)
	}

	if provErr != nil {
		return &callOutcome{costClass: string(fs.Tier), err: provErr}
	}

	if p.EndpointClass == fieldset.ClassTextSearch && g.searchCache != nil && cacheKey != "" {
		if keys := extractPlaceKeys(data); len(keys) > 0 {
			go func() {
				if err := g.searchCache.Write(cacheKey, keys, "google_places"); err != nil {
					log.Printf("[gateway] search cache write failed: %v", err)
				}
			}()
		}
	}

	return &callOutcome{data: data, costClass: string(fs.Tier)}
}

// recordHealth patches the provider health record after an outbound attempt.
func (g *Gateway) recordHealth(success bool, provErr *ProviderError) {
	if g.health == nil {
		return
	}
	h, err := g.health.GetHealth(ProviderService)
	if err != nil {
		log.Printf("[gateway] health read failed: %v", err)
		return
	}
	h.LastCheckedAtNs = g.now().UnixNano()
	if success {
		h.Healthy = true
		h.ConsecutiveFailures = 0
		h.LastErrorCode = ""
	} else {
		h.ConsecutiveFailures++
		h.Healthy = h.ConsecutiveFailures < 5
		if provErr != nil {
			h.LastErrorCode = provErr.Code
		}
	}
	if err := g.health.SetHealth(h); err != nil {
		log.Printf("[gateway] health write failed: %v", err)
	}
}

func (g *Gateway) emit(e model.MetricEvent) {
	if g.metrics != nil {
		g.metrics.Emit(e)
	}
}

// emitCallMetrics writes the per-call success/error events and, for text
// search, the end-to-end search latency. Passengers emit their own events
// with their own latency.
func (g *Gateway) emitCallMetrics(p Params, r ProviderResult) {
	name := metrics.EventAPISuccess
	value := float64(r.Metadata.LatencyMs)
	if !r.Success {
		name = metrics.EventAPIError
		value = 1
	}
	g.emit(model.MetricEvent{
		Name:     name,
		Value:    value,
		Endpoint: string(p.EndpointClass),
		CostTier: r.Metadata.CostClass,
		CacheHit: r.Metadata.CacheHit,
		City:     p.City,
	})
	if p.EndpointClass == fieldset.ClassTextSearch {
		g.emit(model.MetricEvent{
			Name:     metrics.EventSearchLatency,
			Value:    float64(r.Metadata.LatencyMs),
			Endpoint: string(p.EndpointClass),
			CacheHit: r.Metadata.CacheHit,
			City:     p.City,
		})
	}
}
