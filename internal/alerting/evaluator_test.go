package alerting

import (
	"strings"
	"testing"
	"time"

	"github.com/medina-app/medina/internal/breaker"
	"github.com/medina-app/medina/internal/budget"
	"github.com/medina-app/medina/internal/metrics"
	"github.com/medina-app/medina/internal/model"
	"github.com/medina-app/medina/internal/servicemode"
	"github.com/medina-app/medina/internal/testutil"
)

type fixture struct {
	eval    *Evaluator
	repo    *Repo
	metrics *metrics.Repo
	modes   *servicemode.Controller
	flags   *servicemode.FlagStore
	now     *time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.OpenTestDB(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	repo := NewRepo(db)
	metricRepo := metrics.NewRepo(db)
	modeRepo := servicemode.NewRepo(db)
	flags := servicemode.NewFlagStore(modeRepo)
	enforcer := budget.NewEnforcer(budget.NewRepo(db), nil, flags)
	modes := servicemode.NewController(modeRepo, flags, enforcer, breaker.New(breaker.DefaultConfig()), metricRepo)

	eval := NewEvaluator(repo, metricRepo, modes, flags)
	eval.now = func() time.Time { return now }
	return &fixture{eval: eval, repo: repo, metrics: metricRepo, modes: modes, flags: flags, now: &now}
}

func errorRateThreshold() model.AlertThreshold {
	return model.AlertThreshold{
		Key: "api_error_rate_high", Metric: "api_error_rate", Comparison: "gt",
		Threshold: 0.05, WindowNs: int64(5 * time.Minute), Severity: "critical",
		AutoMitigation: "set_service_mode_2", Enabled: true,
	}
}

func insertCalls(t *testing.T, f *fixture, successes, errors int) {
	t.Helper()
	var events []model.MetricEvent
	base := f.now.Add(-time.Minute).UnixNano()
	for i := 0; i < successes; i++ {
		events = append(events, model.MetricEvent{Name: metrics.EventAPISuccess, Value: 100, TimestampNs: base + int64(i)})
	}
	for i := 0; i < errors; i++ {
		events = append(events, model.MetricEvent{Name: metrics.EventAPIError, Value: 1, TimestampNs: base + int64(successes+i)})
	}
	if err := f.metrics.BulkInsert(events); err != nil {
		t.Fatalf("BulkInsert: %v", err)
	}
}

func TestSeedDefaults(t *testing.T) {
	f := newFixture(t)
	if err := f.repo.SeedDefaults(); err != nil {
		t.Fatalf("SeedDefaults: %v", err)
	}
	thresholds, err := f.repo.ListEnabled()
	if err != nil {
		t.Fatalf("ListEnabled: %v", err)
	}
	if len(thresholds) < 4 {
		t.Fatalf("got %d thresholds", len(thresholds))
	}

	// Operator edits survive a reseed.
	edited := thresholds[0]
	edited.Threshold = 0.42
	if err := f.repo.SetThreshold(edited); err != nil {
		t.Fatalf("SetThreshold: %v", err)
	}
	if err := f.repo.SeedDefaults(); err != nil {
		t.Fatalf("SeedDefaults: %v", err)
	}
	after, _ := f.repo.ListEnabled()
	for _, th := range after {
		if th.Key == edited.Key && th.Threshold != 0.42 {
			t.Fatalf("reseed clobbered operator edit: %+v", th)
		}
	}
}

func TestBreachFiresAlert(t *testing.T) {
	f := newFixture(t)
	if err := f.repo.SetThreshold(errorRateThreshold()); err != nil {
		t.Fatalf("SetThreshold: %v", err)
	}
	insertCalls(t, f, 8, 2) // 20% error rate

	if err := f.eval.Evaluate(); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	alerts, err := f.repo.ListRecent(10)
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("got %d alerts", len(alerts))
	}
	a := alerts[0]
	if a.ThresholdKey != "api_error_rate_high" || a.Severity != "critical" {
		t.Fatalf("alert: %+v", a)
	}
	if a.Value != 0.2 {
		t.Fatalf("value: got %v", a.Value)
	}
	if a.ResolvedAtNs != 0 {
		t.Fatal("fresh alert must be unresolved")
	}
	if !strings.Contains(a.Message, "api_error_rate") {
		t.Fatalf("message: %q", a.Message)
	}
}

func TestNoDataNeverBreaches(t *testing.T) {
	f := newFixture(t)
	if err := f.repo.SetThreshold(errorRateThreshold()); err != nil {
		t.Fatalf("SetThreshold: %v", err)
	}
	if err := f.eval.Evaluate(); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	alerts, _ := f.repo.ListRecent(10)
	if len(alerts) != 0 {
		t.Fatalf("alert fired with no data: %+v", alerts)
	}
}

func TestDedupeWithinWindow(t *testing.T) {
	f := newFixture(t)
	if err := f.repo.SetThreshold(errorRateThreshold()); err != nil {
		t.Fatalf("SetThreshold: %v", err)
	}
	insertCalls(t, f, 8, 2)

	if err := f.eval.Evaluate(); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	*f.now = f.now.Add(time.Minute)
	insertCalls(t, f, 8, 2)
	if err := f.eval.Evaluate(); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	alerts, _ := f.repo.ListRecent(10)
	if len(alerts) != 1 {
		t.Fatalf("dedupe failed: %d alerts", len(alerts))
	}

	// Past the dedupe window a still-breaching threshold re-fires.
	*f.now = f.now.Add(5 * time.Minute)
	insertCalls(t, f, 8, 2)
	if err := f.eval.Evaluate(); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	alerts, _ = f.repo.ListRecent(10)
	if len(alerts) != 2 {
		t.Fatalf("re-fire failed: %d alerts", len(alerts))
	}
}

func TestRecoveryResolves(t *testing.T) {
	f := newFixture(t)
	if err := f.repo.SetThreshold(errorRateThreshold()); err != nil {
		t.Fatalf("SetThreshold: %v", err)
	}
	insertCalls(t, f, 8, 2)
	if err := f.eval.Evaluate(); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	// Ten minutes later the bad window has aged out and traffic is clean.
	*f.now = f.now.Add(10 * time.Minute)
	insertCalls(t, f, 50, 0)
	if err := f.eval.Evaluate(); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	unresolved, err := f.repo.LatestUnresolved("api_error_rate_high")
	if err != nil {
		t.Fatalf("LatestUnresolved: %v", err)
	}
	if unresolved != nil {
		t.Fatalf("alert not resolved: %+v", unresolved)
	}
	alerts, _ := f.repo.ListRecent(10)
	if len(alerts) != 1 || alerts[0].ResolvedAtNs == 0 {
		t.Fatalf("alerts: %+v", alerts)
	}
}

func TestMitigationSetsServiceMode(t *testing.T) {
	f := newFixture(t)
	if err := f.repo.SetThreshold(errorRateThreshold()); err != nil {
		t.Fatalf("SetThreshold: %v", err)
	}
	insertCalls(t, f, 0, 10)

	if err := f.eval.Evaluate(); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	rec, err := f.modes.Mode()
	if err != nil {
		t.Fatalf("Mode: %v", err)
	}
	if rec.CurrentMode != servicemode.ModeProviderLimited {
		t.Fatalf("mode: got %d", rec.CurrentMode)
	}
	if rec.Reason != "auto_mitigation_api_error_rate_high" {
		t.Fatalf("reason: got %q", rec.Reason)
	}
}

func TestMitigationDisablePhotos(t *testing.T) {
	f := newFixture(t)
	th := model.AlertThreshold{
		Key: "photo_spend_spike", Metric: metrics.EventAPIError, Comparison: "gt",
		Threshold: 3, WindowNs: int64(5 * time.Minute), Severity: "warning",
		AutoMitigation: "disable_photos", Enabled: true,
	}
	if err := f.repo.SetThreshold(th); err != nil {
		t.Fatalf("SetThreshold: %v", err)
	}
	insertCalls(t, f, 0, 5)

	if err := f.eval.Evaluate(); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if f.flags.Enabled(servicemode.FlagPhotos) {
		t.Fatal("photos flag not disabled")
	}
}

func TestLessThanComparison(t *testing.T) {
	f := newFixture(t)
	th := model.AlertThreshold{
		Key: "cache_hit_rate_low", Metric: "cache_hit_rate", Comparison: "lt",
		Threshold: 0.5, WindowNs: int64(time.Hour), Severity: "warning", Enabled: true,
	}
	if err := f.repo.SetThreshold(th); err != nil {
		t.Fatalf("SetThreshold: %v", err)
	}

	base := f.now.Add(-time.Minute).UnixNano()
	events := []model.MetricEvent{
		{Name: metrics.EventCacheHit, Value: 1, TimestampNs: base},
		{Name: metrics.EventCacheMiss, Value: 1, TimestampNs: base + 1},
		{Name: metrics.EventCacheMiss, Value: 1, TimestampNs: base + 2},
		{Name: metrics.EventCacheMiss, Value: 1, TimestampNs: base + 3},
	}
	if err := f.metrics.BulkInsert(events); err != nil {
		t.Fatalf("BulkInsert: %v", err)
	}

	if err := f.eval.Evaluate(); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	alerts, _ := f.repo.ListRecent(10)
	if len(alerts) != 1 || alerts[0].Value != 0.25 {
		t.Fatalf("alerts: %+v", alerts)
	}
}

func TestP95Threshold(t *testing.T) {
	f := newFixture(t)
	th := model.AlertThreshold{
		Key: "search_p95_slow", Metric: "search_p95", Comparison: "gt",
		Threshold: 2000, WindowNs: int64(10 * time.Minute), Severity: "warning", Enabled: true,
	}
	if err := f.repo.SetThreshold(th); err != nil {
		t.Fatalf("SetThreshold: %v", err)
	}

	base := f.now.Add(-time.Minute).UnixNano()
	events := make([]model.MetricEvent, 30)
	for i := range events {
		events[i] = model.MetricEvent{Name: metrics.EventSearchLatency, Value: 3500, TimestampNs: base + int64(i)}
	}
	if err := f.metrics.BulkInsert(events); err != nil {
		t.Fatalf("BulkInsert: %v", err)
	}

	if err := f.eval.Evaluate(); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	alerts, _ := f.repo.ListRecent(10)
	if len(alerts) != 1 || alerts[0].Value != 3500 {
		t.Fatalf("alerts: %+v", alerts)
	}
}

func TestDisabledThresholdSkipped(t *testing.T) {
	f := newFixture(t)
	th := errorRateThreshold()
	th.Enabled = false
	if err := f.repo.SetThreshold(th); err != nil {
		t.Fatalf("SetThreshold: %v", err)
	}
	insertCalls(t, f, 0, 10)

	if err := f.eval.Evaluate(); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	alerts, _ := f.repo.ListRecent(10)
	if len(alerts) != 0 {
		t.Fatalf("disabled threshold fired: %+v", alerts)
	}
}

func TestDefaultThresholdsParse(t *testing.T) {
	defaults, err := DefaultThresholds()
	if err != nil {
		t.Fatalf("DefaultThresholds: %v", err)
	}
	keys := map[string]bool{}
	for _, th := range defaults {
		if th.Key == "" || th.Metric == "" || th.WindowNs <= 0 {
			t.Fatalf("bad default: %+v", th)
		}
		if th.Comparison != "gt" && th.Comparison != "lt" {
			t.Fatalf("comparison: %+v", th)
		}
		if keys[th.Key] {
			t.Fatalf("duplicate key %s", th.Key)
		}
		keys[th.Key] = true
	}
	if !keys["api_error_rate_high"] {
		t.Fatal("missing api_error_rate_high")
	}
}
