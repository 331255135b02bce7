package metrics

import (
	"testing"
	"time"

	"github.com/medina-app/medina/internal/model"
	"github.com/medina-app/medina/internal/testutil"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC).UnixNano()

func insertValues(t *testing.T, r *Repo, name string, values []float64) {
	t.Helper()
	events := make([]model.MetricEvent, len(values))
	for i, v := range values {
		events[i] = model.MetricEvent{Name: name, Value: v, TimestampNs: t0 + int64(i)}
	}
	if err := r.BulkInsert(events); err != nil {
		t.Fatalf("BulkInsert: %v", err)
	}
}

func TestQuerySummaryBasics(t *testing.T) {
	r := NewRepo(testutil.OpenTestDB(t))
	insertValues(t, r, EventProviderLatency, []float64{10, 20, 30, 40})

	s, err := r.QuerySummary(EventProviderLatency, t0, t0+1000, "")
	if err != nil {
		t.Fatalf("QuerySummary: %v", err)
	}
	if s.Count != 4 || s.Sum != 100 || s.Avg != 25 || s.Min != 10 || s.Max != 40 {
		t.Fatalf("summary: %+v", s)
	}
}

func TestQuerySummaryPercentiles(t *testing.T) {
	r := NewRepo(testutil.OpenTestDB(t))
	// 100 values 1..100; index floor(n*q) picks 51, 96, and 100.
	vals := make([]float64, 100)
	for i := range vals {
		vals[i] = float64(i + 1)
	}
	insertValues(t, r, EventSearchLatency, vals)

	s, err := r.QuerySummary(EventSearchLatency, t0, t0+1000, "")
	if err != nil {
		t.Fatalf("QuerySummary: %v", err)
	}
	if s.P50 != 51 {
		t.Fatalf("P50: got %v", s.P50)
	}
	if s.P95 != 96 {
		t.Fatalf("P95: got %v", s.P95)
	}
	if s.P99 != 100 {
		t.Fatalf("P99: got %v", s.P99)
	}
}

func TestQuerySummarySingleValue(t *testing.T) {
	r := NewRepo(testutil.OpenTestDB(t))
	insertValues(t, r, EventProviderLatency, []float64{42})

	s, err := r.QuerySummary(EventProviderLatency, t0, t0+1000, "")
	if err != nil {
		t.Fatalf("QuerySummary: %v", err)
	}
	if s.P50 != 42 || s.P95 != 42 || s.P99 != 42 {
		t.Fatalf("single value percentiles: %+v", s)
	}
}

func TestQuerySummaryEmptyWindow(t *testing.T) {
	r := NewRepo(testutil.OpenTestDB(t))
	insertValues(t, r, EventProviderLatency, []float64{10})

	s, err := r.QuerySummary(EventProviderLatency, t0+100, t0+200, "")
	if err != nil {
		t.Fatalf("QuerySummary: %v", err)
	}
	if s.Count != 0 {
		t.Fatalf("empty window: %+v", s)
	}
}

func TestQuerySummaryEndpointFilter(t *testing.T) {
	r := NewRepo(testutil.OpenTestDB(t))
	if err := r.BulkInsert([]model.MetricEvent{
		{Name: EventProviderLatency, Value: 100, Endpoint: "text_search", TimestampNs: t0},
		{Name: EventProviderLatency, Value: 900, Endpoint: "place_details", TimestampNs: t0 + 1},
	}); err != nil {
		t.Fatalf("BulkInsert: %v", err)
	}

	s, err := r.QuerySummary(EventProviderLatency, t0, t0+1000, "text_search")
	if err != nil {
		t.Fatalf("QuerySummary: %v", err)
	}
	if s.Count != 1 || s.Max != 100 {
		t.Fatalf("filtered summary: %+v", s)
	}
}

func TestCacheHitRate(t *testing.T) {
	r := NewRepo(testutil.OpenTestDB(t))
	events := []model.MetricEvent{
		{Name: EventCacheHit, Value: 1, Endpoint: "text_search", TimestampNs: t0},
		{Name: EventCacheHit, Value: 1, Endpoint: "text_search", TimestampNs: t0 + 1},
		{Name: EventCacheHit, Value: 1, Endpoint: "text_search", TimestampNs: t0 + 2},
		{Name: EventCacheMiss, Value: 1, Endpoint: "text_search", TimestampNs: t0 + 3},
	}
	if err := r.BulkInsert(events); err != nil {
		t.Fatalf("BulkInsert: %v", err)
	}

	rate, ok, err := r.CacheHitRate(t0, t0+1000, "")
	if err != nil {
		t.Fatalf("CacheHitRate: %v", err)
	}
	if !ok || rate != 0.75 {
		t.Fatalf("rate: got %v ok=%v", rate, ok)
	}
}

func TestCacheHitRateNoData(t *testing.T) {
	r := NewRepo(testutil.OpenTestDB(t))
	_, ok, err := r.CacheHitRate(t0, t0+1000, "")
	if err != nil {
		t.Fatalf("CacheHitRate: %v", err)
	}
	if ok {
		t.Fatal("ok must be false with no cache events")
	}
}

func TestErrorRate(t *testing.T) {
	r := NewRepo(testutil.OpenTestDB(t))
	events := []model.MetricEvent{
		{Name: EventAPISuccess, Value: 120, TimestampNs: t0},
		{Name: EventAPISuccess, Value: 80, TimestampNs: t0 + 1},
		{Name: EventAPISuccess, Value: 95, TimestampNs: t0 + 2},
		{Name: EventAPIError, Value: 1, TimestampNs: t0 + 3},
	}
	if err := r.BulkInsert(events); err != nil {
		t.Fatalf("BulkInsert: %v", err)
	}

	rate, ok, err := r.ErrorRate(t0, t0+1000)
	if err != nil {
		t.Fatalf("ErrorRate: %v", err)
	}
	if !ok || rate != 0.25 {
		t.Fatalf("rate: got %v ok=%v", rate, ok)
	}
}

func TestDeleteOlderThanBatches(t *testing.T) {
	r := NewRepo(testutil.OpenTestDB(t))
	vals := make([]float64, 25)
	insertValues(t, r, EventProviderLatency, vals)

	// Cutoff above 20 of the 25 timestamps, batch size forces multiple loops.
	n, err := r.DeleteOlderThan(t0+20, 7)
	if err != nil {
		t.Fatalf("DeleteOlderThan: %v", err)
	}
	if n != 20 {
		t.Fatalf("deleted: got %d", n)
	}

	s, err := r.QuerySummary(EventProviderLatency, t0, t0+1000, "")
	if err != nil {
		t.Fatalf("QuerySummary: %v", err)
	}
	if s.Count != 5 {
		t.Fatalf("remaining: got %d", s.Count)
	}
}

func TestServiceFlushOnStop(t *testing.T) {
	repo := NewRepo(testutil.OpenTestDB(t))
	svc := NewService(ServiceConfig{Repo: repo, QueueSize: 64, FlushBatch: 512, FlushInterval: time.Hour})
	svc.Start()

	for i := 0; i < 10; i++ {
		svc.Emit(model.MetricEvent{Name: EventAPISuccess, Value: 1, TimestampNs: t0 + int64(i)})
	}
	svc.Stop()

	s, err := repo.QuerySummary(EventAPISuccess, t0, t0+1000, "")
	if err != nil {
		t.Fatalf("QuerySummary: %v", err)
	}
	if s.Count != 10 {
		t.Fatalf("flushed on stop: got %d", s.Count)
	}
}

func TestServiceEmitStampsTimestamp(t *testing.T) {
	repo := NewRepo(testutil.OpenTestDB(t))
	svc := NewService(ServiceConfig{Repo: repo, FlushInterval: time.Hour})
	svc.Start()

	before := time.Now().UnixNano()
	svc.Emit(model.MetricEvent{Name: EventCacheHit, Value: 1})
	svc.Stop()

	rate, ok, err := repo.CacheHitRate(before, time.Now().UnixNano()+1, "")
	if err != nil || !ok || rate != 1 {
		t.Fatalf("stamped event not found: rate=%v ok=%v err=%v", rate, ok, err)
	}
}
