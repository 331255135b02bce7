// Package budget enforces the per-endpoint-class daily provider spend
// quotas, in millicents, keyed by UTC day. Crossing the critical threshold
// on an increment auto-disables the class's dependent feature flags.
package budget

import (
	"log"
	"time"

	"github.com/medina-app/medina/internal/fieldset"
)

const (
	// WarningPercent flags usage worth watching.
	WarningPercent = 80.0
	// CriticalPercent triggers flag auto-mitigation.
	CriticalPercent = 95.0
)

// FlagDisabler turns feature flags off. Implemented by servicemode.FlagStore.
type FlagDisabler interface {
	Disable(key, reason string) error
}

// Status is the result of a budget check.
type Status struct {
	Allowed         bool    `json:"allowed"`
	UsedMillicents  int64   `json:"usedMillicents"`
	LimitMillicents int64   `json:"limitMillicents"`
	UsagePercent    float64 `json:"usagePercent"`
	Warning         bool    `json:"warning"`
	WarningLevel    string  `json:"warningLevel,omitempty"` // "approaching" | "critical"
}

// autoMitigationFlags maps an endpoint class to the feature flags disabled
// when its budget goes critical. Autocomplete and health never auto-disable.
var autoMitigationFlags = map[fieldset.EndpointClass][]string{
	fieldset.ClassPhotos:       {"photos_enabled"},
	fieldset.ClassTextSearch:   {"text_search_enabled"},
	fieldset.ClassNearbySearch: {"nearby_search_enabled"},
	fieldset.ClassPlaceDetails: {"place_details_enhanced"},
}

// Enforcer tracks daily spend per endpoint class.
type Enforcer struct {
	repo   *Repo
	limits map[string]int64
	flags  FlagDisabler

	now func() time.Time
}

// NewEnforcer creates an Enforcer. limits maps endpoint-class names to their
// daily millicent budgets; flags may be nil to disable auto-mitigation.
func NewEnforcer(repo *Repo, limits map[string]int64, flags FlagDisabler) *Enforcer {
	return &Enforcer{repo: repo, limits: limits, flags: flags, now: time.Now}
}

// DateKey returns the UTC day key for t.
func DateKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

func (e *Enforcer) limitFor(class fieldset.EndpointClass) int64 {
	if l, ok := e.limits[string(class)]; ok {
		return l
	}
	return 0
}

func status(used, limit int64) Status {
	s := Status{UsedMillicents: used, LimitMillicents: limit}
	if limit <= 0 {
		// No configured limit: never blocks.
		s.Allowed = true
		return s
	}
	s.UsagePercent = float64(used) / float64(limit) * 100
	s.Allowed = used < limit
	switch {
	case s.UsagePercent >= CriticalPercent:
		s.Warning = true
		s.WarningLevel = "critical"
	case s.UsagePercent >= WarningPercent:
		s.Warning = true
		s.WarningLevel = "approaching"
	}
	return s
}

// Check returns the current budget status for class without charging it.
func (e *Enforcer) Check(class fieldset.EndpointClass) (Status, error) {
	limit := e.limitFor(class)
	used, err := e.repo.Used(string(class), DateKey(e.now()))
	if err != nil {
		return Status{}, err
	}
	return status(used, limit), nil
}

// Record atomically charges cost millicents against today's counter for
// class. If this increment crosses the critical or blocking threshold, the
// class's auto-mitigation flags are disabled.
func (e *Enforcer) Record(class fieldset.EndpointClass, cost int64) (Status, error) {
	limit := e.limitFor(class)
	newUsed, err := e.repo.Add(string(class), DateKey(e.now()), limit, cost)
	if err != nil {
		return Status{}, err
	}
	s := status(newUsed, limit)

	if limit > 0 && cost > 0 {
		oldPct := float64(newUsed-cost) / float64(limit) * 100
		crossedCritical := oldPct < CriticalPercent && s.UsagePercent >= CriticalPercent
		crossedBlocking := oldPct < 100 && s.UsagePercent >= 100
		if crossedCritical || crossedBlocking {
			e.disableFlags(class)
		}
	}
	return s, nil
}

func (e *Enforcer) disableFlags(class fieldset.EndpointClass) {
	if e.flags == nil {
		return
	}
	for _, key := range autoMitigationFlags[class] {
		if err := e.flags.Disable(key, "budget_critical_"+string(class)); err != nil {
			log.Printf("[budget] failed to disable flag %q: %v", key, err)
		}
	}
}

// WorstUsagePercent returns the highest usage percentage across the given
// classes for today. Classes without a configured limit report 0.
func (e *Enforcer) WorstUsagePercent(classes ...fieldset.EndpointClass) (float64, error) {
	worst := 0.0
	for _, class := range classes {
		s, err := e.Check(class)
		if err != nil {
			return 0, err
		}
		if s.UsagePercent > worst {
			worst = s.UsagePercent
		}
	}
	return worst, nil
}
