// Package breaker implements the per-service circuit breaker guarding
// outbound provider calls: closed / open / half-open with a single probe
// admitted after the half-open delay.
package breaker

import (
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
)

// State is the breaker state for one service.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// Config holds breaker tuning.
type Config struct {
	// FailureThreshold is the consecutive-failure count that opens the circuit.
	FailureThreshold int
	// HalfOpenDelay is how long the circuit stays open before admitting a probe.
	HalfOpenDelay time.Duration
}

// DefaultConfig matches the provider gateway defaults.
func DefaultConfig() Config {
	return Config{FailureThreshold: 5, HalfOpenDelay: 30 * time.Second}
}

// Snapshot is a point-in-time copy of one service's circuit state.
type Snapshot struct {
	State               State     `json:"state"`
	ConsecutiveFailures int       `json:"consecutiveFailures"`
	LastFailureAt       time.Time `json:"lastFailureAt"`
	LastSuccessAt       time.Time `json:"lastSuccessAt"`
	OpenedAt            time.Time `json:"openedAt"`
	HalfOpenAttempts    int       `json:"halfOpenAttempts"`
}

// circuit serializes transitions for one service.
type circuit struct {
	mu sync.Mutex
	s  Snapshot
}

// Breaker tracks one circuit per service name.
type Breaker struct {
	cfg      Config
	circuits *xsync.Map[string, *circuit]

	now func() time.Time
}

// New creates a Breaker with the given config.
func New(cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.HalfOpenDelay <= 0 {
		cfg.HalfOpenDelay = 30 * time.Second
	}
	return &Breaker{
		cfg:      cfg,
		circuits: xsync.NewMap[string, *circuit](),
		now:      time.Now,
	}
}

func (b *Breaker) circuitFor(service string) *circuit {
	c, _ := b.circuits.LoadOrCompute(service, func() (*circuit, bool) {
		return &circuit{s: Snapshot{State: StateClosed}}, false
	})
	return c
}

// Allow reports whether a request to service may proceed. When the circuit
// is open and the half-open delay has elapsed, the next caller is admitted
// as the single probe and the state moves to half-open; concurrent callers
// are rejected until the probe resolves.
func (b *Breaker) Allow(service string) (admitted, probe bool) {
	c := b.circuitFor(service)
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.s.State {
	case StateClosed:
		return true, false
	case StateOpen:
		if b.now().Sub(c.s.OpenedAt) < b.cfg.HalfOpenDelay {
			return false, false
		}
		c.s.State = StateHalfOpen
		c.s.HalfOpenAttempts = 1
		return true, true
	case StateHalfOpen:
		if c.s.HalfOpenAttempts > 0 {
			// A probe is already in flight.
			return false, false
		}
		c.s.HalfOpenAttempts = 1
		return true, true
	}
	return false, false
}

// RecordSuccess resets the circuit to closed.
func (b *Breaker) RecordSuccess(service string) {
	c := b.circuitFor(service)
	c.mu.Lock()
	defer c.mu.Unlock()

	c.s.State = StateClosed
	c.s.ConsecutiveFailures = 0
	c.s.HalfOpenAttempts = 0
	c.s.LastSuccessAt = b.now()
}

// RecordFailure counts a failure. In closed state it opens the circuit at
// the threshold; in half-open it re-opens immediately.
func (b *Breaker) RecordFailure(service string) {
	c := b.circuitFor(service)
	c.mu.Lock()
	defer c.mu.Unlock()

	now := b.now()
	c.s.LastFailureAt = now

	switch c.s.State {
	case StateHalfOpen:
		c.s.State = StateOpen
		c.s.OpenedAt = now
		c.s.HalfOpenAttempts = 0
		c.s.ConsecutiveFailures++
	default:
		c.s.ConsecutiveFailures++
		if c.s.State == StateClosed && c.s.ConsecutiveFailures >= b.cfg.FailureThreshold {
			c.s.State = StateOpen
			c.s.OpenedAt = now
		}
	}
}

// Snapshot returns a copy of the circuit state for service.
func (b *Breaker) Snapshot(service string) Snapshot {
	c := b.circuitFor(service)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.s
}

// Closed reports whether the circuit for service is closed.
func (b *Breaker) Closed(service string) bool {
	return b.Snapshot(service).State == StateClosed
}
