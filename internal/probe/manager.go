// Package probe actively health-checks the places provider. The gateway
// updates the provider health record as a side effect of real traffic; the
// probe manager covers the idle gaps, so the service-mode controller always
// reads a recent signal. Probes use the zero-cost HEALTH_CHECK field mask.
package probe

import (
	"context"
	"log"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/medina-app/medina/internal/fieldset"
	"github.com/medina-app/medina/internal/metrics"
	"github.com/medina-app/medina/internal/model"
	"github.com/medina-app/medina/internal/scanloop"
	"github.com/medina-app/medina/internal/servicemode"
)

// unhealthyThreshold matches the gateway's consecutive-failure count before
// the health record flips to unhealthy.
const unhealthyThreshold = 5

// dueLookahead fires a probe slightly early so jittered scans do not leave
// the record stale for almost two intervals.
const dueLookahead = 15 * time.Second

// Config configures the Manager.
type Config struct {
	Health  *servicemode.Repo
	Metrics *metrics.Service // optional

	BaseURL string
	APIKey  func() string

	// PlaceID is the well-known probe target.
	PlaceID string

	// Interval is the maximum health-record staleness before an active
	// probe fires. A closure so reconfiguration needs no restart.
	Interval func() time.Duration

	// Fetcher executes the HTTP exchange. Injectable for testing.
	Fetcher Fetcher
}

// Manager schedules active provider health probes.
type Manager struct {
	health  *servicemode.Repo
	metrics *metrics.Service

	baseURL  string
	apiKey   func() string
	placeID  string
	interval func() time.Duration
	fetcher  Fetcher

	stopCh chan struct{}
	wg     sync.WaitGroup

	now func() time.Time
}

// NewManager creates a Manager.
func NewManager(cfg Config) *Manager {
	if cfg.Interval == nil {
		cfg.Interval = func() time.Duration { return 5 * time.Minute }
	}
	if cfg.APIKey == nil {
		cfg.APIKey = func() string { return "" }
	}
	return &Manager{
		health:   cfg.Health,
		metrics:  cfg.Metrics,
		baseURL:  cfg.BaseURL,
		apiKey:   cfg.APIKey,
		placeID:  cfg.PlaceID,
		interval: cfg.Interval,
		fetcher:  cfg.Fetcher,
		stopCh:   make(chan struct{}),
		now:      time.Now,
	}
}

// Start launches the background probe loop.
func (m *Manager) Start() {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		scanloop.Run(m.stopCh, scanloop.DefaultMinInterval, scanloop.DefaultJitterRange, m.scan)
	}()
}

// Stop signals the probe loop to stop and waits for completion.
func (m *Manager) Stop() {
	close(m.stopCh)
	m.wg.Wait()
}

// scan probes when the health record is older than the configured interval.
// Real gateway traffic refreshes the record and pushes the next probe out.
func (m *Manager) scan() {
	h, err := m.health.GetHealth(servicemode.ProviderService)
	if err != nil {
		log.Printf("[probe] health read failed: %v", err)
		return
	}
	if h.LastCheckedAtNs > 0 {
		nextDue := time.Unix(0, h.LastCheckedAtNs).Add(m.interval()).Add(-dueLookahead)
		if m.now().Before(nextDue) {
			return
		}
	}
	if _, err := m.ProbeSync(context.Background()); err != nil {
		log.Printf("[probe] provider probe failed: %v", err)
	}
}

// Result holds the outcome of one synchronous probe.
type Result struct {
	Healthy   bool  `json:"healthy"`
	Status    int   `json:"status,omitempty"`
	LatencyMs int64 `json:"latencyMs"`
}

// ProbeSync performs one blocking probe and patches the health record. The
// returned error covers transport failures only; an unhealthy status is a
// valid result.
func (m *Manager) ProbeSync(ctx context.Context) (Result, error) {
	if m.fetcher == nil || m.apiKey() == "" {
		// Not probing is not evidence of provider failure.
		return Result{}, nil
	}

	fs, err := fieldset.Get("HEALTH_CHECK")
	if err != nil {
		return Result{}, err
	}

	q := url.Values{}
	q.Set("languageCode", "en")
	probeURL := m.baseURL + "/places/" + url.PathEscape(m.placeID) + "?" + q.Encode()

	status, latency, err := m.fetcher(ctx, probeURL, m.apiKey(), fs.Mask)
	if err != nil {
		m.markHealth(false, "NETWORK_ERROR")
		return Result{}, err
	}

	// 4xx other than 429 means the provider answered; only 429 and 5xx
	// count as unhealthy, same as the gateway's breaker accounting.
	healthy := status != 429 && status < 500
	code := ""
	if !healthy {
		code = "HTTP_" + strconv.Itoa(status)
	}
	m.markHealth(healthy, code)

	if m.metrics != nil {
		m.metrics.Emit(model.MetricEvent{
			Name:     metrics.EventProviderLatency,
			Value:    float64(latency.Milliseconds()),
			Endpoint: string(fieldset.ClassHealth),
		})
	}
	return Result{Healthy: healthy, Status: status, LatencyMs: latency.Milliseconds()}, nil
}

func (m *Manager) markHealth(success bool, errorCode string) {
	h, err := m.health.GetHealth(servicemode.ProviderService)
	if err != nil {
		log.Printf("[probe] health read failed: %v", err)
		return
	}
	h.LastCheckedAtNs = m.now().UnixNano()
	if success {
		h.Healthy = true
		h.ConsecutiveFailures = 0
		h.LastErrorCode = ""
	} else {
		h.ConsecutiveFailures++
		h.Healthy = h.ConsecutiveFailures < unhealthyThreshold
		h.LastErrorCode = errorCode
	}
	if err := m.health.SetHealth(h); err != nil {
		log.Printf("[probe] health write failed: %v", err)
	}
}
