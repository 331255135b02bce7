package servicemode

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/medina-app/medina/internal/breaker"
	"github.com/medina-app/medina/internal/budget"
	"github.com/medina-app/medina/internal/fieldset"
	"github.com/medina-app/medina/internal/metrics"
	"github.com/medina-app/medina/internal/model"
)

// Service modes.
const (
	ModeNormal          = 0
	ModeCostSaver       = 1
	ModeProviderLimited = 2
	ModeOfflineOwned    = 3
)

// ProviderService is the health-record key for the external places provider.
const ProviderService = "google_places"

const (
	latencyWindow     = 10 * time.Minute
	latencyP95LimitMs = 2000
	latencyMinSamples = 20
)

// Triggers are the evaluated health signals behind a mode decision.
type Triggers struct {
	ProviderHealthy bool `json:"providerHealthy"`
	BudgetOk        bool `json:"budgetOk"`
	LatencyOk       bool `json:"latencyOk"`
	BreakerClosed   bool `json:"breakerClosed"`
}

// Controller periodically picks the service mode from health, budget, and
// breaker signals and applies the per-mode feature-flag table.
type Controller struct {
	repo    *Repo
	flags   *FlagStore
	budget  *budget.Enforcer
	breaker *breaker.Breaker
	metrics *metrics.Repo

	now func() time.Time
}

// NewController wires the controller. metrics may be nil, in which case the
// latency trigger always reads OK.
func NewController(repo *Repo, flags *FlagStore, b *budget.Enforcer, br *breaker.Breaker, m *metrics.Repo) *Controller {
	return &Controller{repo: repo, flags: flags, budget: b, breaker: br, metrics: m, now: time.Now}
}

// gatherTriggers evaluates the four mode triggers.
func (c *Controller) gatherTriggers() Triggers {
	t := Triggers{ProviderHealthy: true, BudgetOk: true, LatencyOk: true, BreakerClosed: true}

	if h, err := c.repo.GetHealth(ProviderService); err == nil {
		t.ProviderHealthy = h.Healthy
	} else {
		log.Printf("[servicemode] health read failed: %v", err)
	}

	if c.breaker != nil {
		t.BreakerClosed = c.breaker.Closed(ProviderService)
	}

	if c.budget != nil {
		worst, err := c.budget.WorstUsagePercent(
			fieldset.ClassPlaceDetails, fieldset.ClassTextSearch,
			fieldset.ClassAutocomplete, fieldset.ClassPhotos)
		if err != nil {
			log.Printf("[servicemode] budget read failed: %v", err)
		} else {
			t.BudgetOk = worst < budget.WarningPercent
		}
	}

	if c.metrics != nil {
		now := c.now()
		s, err := c.metrics.QuerySummary(metrics.EventProviderLatency,
			now.Add(-latencyWindow).UnixNano(), now.UnixNano(), "")
		if err != nil {
			log.Printf("[servicemode] latency read failed: %v", err)
		} else if s.Count >= latencyMinSamples {
			t.LatencyOk = s.P95 <= latencyP95LimitMs
		}
	}
	return t
}

// modeFor maps triggers to the target mode. Mode 3 is manual-only.
func modeFor(t Triggers) int {
	if !t.ProviderHealthy || !t.BreakerClosed {
		return ModeProviderLimited
	}
	if !t.BudgetOk || !t.LatencyOk {
		return ModeCostSaver
	}
	return ModeNormal
}

func reasonFor(t Triggers, mode int) string {
	if mode == ModeNormal {
		return "auto_all_clear"
	}
	var causes []string
	if !t.ProviderHealthy {
		causes = append(causes, "provider_unhealthy")
	}
	if !t.BreakerClosed {
		causes = append(causes, "breaker_open")
	}
	if !t.BudgetOk {
		causes = append(causes, "budget_pressure")
	}
	if !t.LatencyOk {
		causes = append(causes, "latency_degraded")
	}
	return "auto_" + strings.Join(causes, "+")
}

// Evaluate runs one controller pass: gather triggers, pick the mode, and on
// change apply flags and append history. A manually-set mode 3 is sticky;
// automatic evaluation never leaves it.
func (c *Controller) Evaluate() error {
	current, err := c.repo.GetMode()
	if err != nil {
		return fmt.Errorf("load mode: %w", err)
	}
	now := c.now()
	if current == nil {
		current = &model.ServiceModeRecord{
			CurrentMode: ModeNormal, Reason: "init",
			ProviderHealthy: true, BudgetOk: true, LatencyOk: true, BreakerClosed: true,
			EnteredAtNs: now.UnixNano(),
		}
	}
	if current.CurrentMode == ModeOfflineOwned {
		return nil
	}

	t := c.gatherTriggers()
	target := modeFor(t)

	rec := *current
	rec.ProviderHealthy = t.ProviderHealthy
	rec.BudgetOk = t.BudgetOk
	rec.LatencyOk = t.LatencyOk
	rec.BreakerClosed = t.BreakerClosed
	rec.UpdatedAtNs = now.UnixNano()

	if target != current.CurrentMode {
		reason := reasonFor(t, target)
		rec.CurrentMode = target
		rec.Reason = reason
		rec.EnteredAtNs = now.UnixNano()
		if err := c.transition(current.CurrentMode, target, reason, now); err != nil {
			return err
		}
		log.Printf("[servicemode] mode %d -> %d (%s)", current.CurrentMode, target, reason)
	}
	return c.repo.SaveMode(rec)
}

// transition appends history and applies the per-mode flag table.
func (c *Controller) transition(from, to int, reason string, now time.Time) error {
	if err := c.repo.AppendTransition(model.ServiceModeTransition{
		FromMode: from, ToMode: to, Reason: reason,
		TransitionedAtNs: now.UnixNano(),
	}); err != nil {
		return fmt.Errorf("append transition: %w", err)
	}
	if err := c.flags.applyModeFlags(to, reason); err != nil {
		return fmt.Errorf("apply flags: %w", err)
	}
	return nil
}

// SetMode applies a manual or auto-mitigation override. mode must be 0..3.
// The reason is stored as given; callers prefix "manual_" or
// "auto_mitigation_".
func (c *Controller) SetMode(mode int, reason string) error {
	if mode < ModeNormal || mode > ModeOfflineOwned {
		return fmt.Errorf("invalid mode %d: must be 0..3", mode)
	}
	current, err := c.repo.GetMode()
	if err != nil {
		return fmt.Errorf("load mode: %w", err)
	}
	now := c.now()
	fromMode := ModeNormal
	rec := model.ServiceModeRecord{
		ProviderHealthy: true, BudgetOk: true, LatencyOk: true, BreakerClosed: true,
	}
	if current != nil {
		rec = *current
		fromMode = current.CurrentMode
	}

	rec.CurrentMode = mode
	rec.Reason = reason
	rec.UpdatedAtNs = now.UnixNano()
	if fromMode != mode {
		rec.EnteredAtNs = now.UnixNano()
		if err := c.transition(fromMode, mode, reason, now); err != nil {
			return err
		}
		log.Printf("[servicemode] mode %d -> %d (%s)", fromMode, mode, reason)
	}
	return c.repo.SaveMode(rec)
}

// Mode returns the current mode record, synthesising the mode-0 default when
// the singleton has never been written.
func (c *Controller) Mode() (model.ServiceModeRecord, error) {
	rec, err := c.repo.GetMode()
	if err != nil {
		return model.ServiceModeRecord{}, err
	}
	if rec == nil {
		now := c.now().UnixNano()
		return model.ServiceModeRecord{
			CurrentMode: ModeNormal, Reason: "default",
			ProviderHealthy: true, BudgetOk: true, LatencyOk: true, BreakerClosed: true,
			EnteredAtNs: now, UpdatedAtNs: now,
		}, nil
	}
	return *rec, nil
}

// History returns recent transitions, newest first.
func (c *Controller) History(limit int) ([]model.ServiceModeTransition, error) {
	return c.repo.ListHistory(limit)
}
