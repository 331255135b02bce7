package alerting

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/medina-app/medina/internal/metrics"
	"github.com/medina-app/medina/internal/model"
	"github.com/medina-app/medina/internal/servicemode"
)

// dedupeWindow suppresses re-firing while an unresolved alert for the same
// threshold was triggered recently.
const dedupeWindow = 5 * time.Minute

// Evaluator runs the per-minute threshold pass.
type Evaluator struct {
	repo    *Repo
	metrics *metrics.Repo
	modes   *servicemode.Controller
	flags   *servicemode.FlagStore

	now func() time.Time
}

// NewEvaluator wires the evaluator. modes and flags may be nil when
// auto-mitigation is unwanted (tests).
func NewEvaluator(repo *Repo, m *metrics.Repo, modes *servicemode.Controller, flags *servicemode.FlagStore) *Evaluator {
	return &Evaluator{repo: repo, metrics: m, modes: modes, flags: flags, now: time.Now}
}

// metricValue computes the current value of a threshold's metric over its
// window. ok is false when there is no data to judge, which never breaches.
func (e *Evaluator) metricValue(t model.AlertThreshold, now time.Time) (float64, bool, error) {
	fromNs := now.Add(-time.Duration(t.WindowNs)).UnixNano()
	toNs := now.UnixNano()

	switch {
	case t.Metric == "api_error_rate":
		return e.metrics.ErrorRate(fromNs, toNs)
	case t.Metric == "cache_hit_rate":
		return e.metrics.CacheHitRate(fromNs, toNs, "")
	case strings.HasSuffix(t.Metric, "_p95"):
		// search_p95 reads the P95 of search_latency_ms, and so on.
		name := strings.TrimSuffix(t.Metric, "_p95") + "_latency_ms"
		s, err := e.metrics.QuerySummary(name, fromNs, toNs, "")
		if err != nil {
			return 0, false, err
		}
		return s.P95, s.Count > 0, nil
	default:
		// Plain metrics alert on their count per window.
		s, err := e.metrics.QuerySummary(t.Metric, fromNs, toNs, "")
		if err != nil {
			return 0, false, err
		}
		return float64(s.Count), s.Count > 0, nil
	}
}

func breaches(t model.AlertThreshold, value float64) bool {
	switch t.Comparison {
	case "lt":
		return value < t.Threshold
	default:
		return value > t.Threshold
	}
}

// Evaluate runs one pass over every enabled threshold.
func (e *Evaluator) Evaluate() error {
	thresholds, err := e.repo.ListEnabled()
	if err != nil {
		return fmt.Errorf("list thresholds: %w", err)
	}
	now := e.now()
	for _, t := range thresholds {
		if err := e.evaluateOne(t, now); err != nil {
			log.Printf("[alerting] %s: %v", t.Key, err)
		}
	}
	return nil
}

func (e *Evaluator) evaluateOne(t model.AlertThreshold, now time.Time) error {
	value, ok, err := e.metricValue(t, now)
	if err != nil {
		return err
	}
	if !ok || !breaches(t, value) {
		if n, err := e.repo.ResolveAll(t.Key, now.UnixNano()); err != nil {
			return err
		} else if n > 0 {
			log.Printf("[alerting] resolved %s (value %.4f)", t.Key, value)
		}
		return nil
	}

	existing, err := e.repo.LatestUnresolved(t.Key)
	if err != nil {
		return err
	}
	if existing != nil && now.UnixNano()-existing.TriggeredAtNs < int64(dedupeWindow) {
		return nil
	}

	alert := model.Alert{
		ThresholdKey: t.Key,
		Severity:     t.Severity,
		Message: fmt.Sprintf("%s: %s %.4f breaches %s %.4f over %s",
			t.Key, t.Metric, value, t.Comparison, t.Threshold,
			time.Duration(t.WindowNs)),
		Value:         value,
		TriggeredAtNs: now.UnixNano(),
	}
	if err := e.repo.Insert(alert); err != nil {
		return err
	}
	log.Printf("[alerting] fired %s (%s): %s", t.Key, t.Severity, alert.Message)

	if t.AutoMitigation != "" {
		if err := e.mitigate(t); err != nil {
			log.Printf("[alerting] mitigation %s for %s failed: %v", t.AutoMitigation, t.Key, err)
		}
	}
	return nil
}

// mitigate applies a threshold's auto-mitigation action.
func (e *Evaluator) mitigate(t model.AlertThreshold) error {
	switch t.AutoMitigation {
	case "set_service_mode_1":
		if e.modes == nil {
			return nil
		}
		return e.modes.SetMode(servicemode.ModeCostSaver, "auto_mitigation_"+t.Key)
	case "set_service_mode_2":
		if e.modes == nil {
			return nil
		}
		return e.modes.SetMode(servicemode.ModeProviderLimited, "auto_mitigation_"+t.Key)
	case "disable_photos":
		if e.flags == nil {
			return nil
		}
		return e.flags.Disable(servicemode.FlagPhotos, "auto_mitigation_"+t.Key)
	default:
		return fmt.Errorf("unknown auto_mitigation %q", t.AutoMitigation)
	}
}
