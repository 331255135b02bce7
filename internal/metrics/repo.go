// Package metrics ingests append-only timestamped events and answers
// windowed summary queries (count/avg/min/max and P50/P95/P99). The hot path
// enqueues; a background goroutine batch-flushes to sqlite.
package metrics

import (
	"database/sql"
	"fmt"
	"sort"
	"sync"

	"github.com/medina-app/medina/internal/model"
)

// Well-known event names emitted by the gateway.
const (
	EventProviderLatency = "provider_latency_ms"
	EventSearchLatency   = "search_latency_ms"
	EventAPISuccess      = "api_success"
	EventAPIError        = "api_error"
	EventCacheHit        = "CACHE_HIT"
	EventCacheMiss       = "CACHE_MISS"
	EventRequestShed     = "request_shed"
)

// Repo persists metric events.
type Repo struct {
	db *sql.DB
	mu sync.Mutex
}

// NewRepo creates a Repo on an opened, migrated database.
func NewRepo(db *sql.DB) *Repo {
	return &Repo{db: db}
}

// BulkInsert writes a batch of events in one transaction.
func (r *Repo) BulkInsert(events []model.MetricEvent) error {
	if len(events) == 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO metric_events
			(name, value, endpoint, cost_tier, cache_hit, service_mode, city, timestamp_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range events {
		if _, err := stmt.Exec(e.Name, e.Value, e.Endpoint, e.CostTier,
			boolToInt(e.CacheHit), e.ServiceMode, e.City, e.TimestampNs); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Summary aggregates one metric over a window.
type Summary struct {
	Count int     `json:"count"`
	Sum   float64 `json:"sum"`
	Avg   float64 `json:"avg"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	P50   float64 `json:"p50"`
	P95   float64 `json:"p95"`
	P99   float64 `json:"p99"`
}

// values loads the raw values for (name, window, optional endpoint).
func (r *Repo) values(name string, fromNs, toNs int64, endpoint string) ([]float64, error) {
	query := "SELECT value FROM metric_events WHERE name = ? AND timestamp_ns >= ? AND timestamp_ns < ?"
	args := []any{name, fromNs, toNs}
	if endpoint != "" {
		query += " AND endpoint = ?"
		args = append(args, endpoint)
	}
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []float64
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// percentile returns the q-quantile of sorted values using index floor(n*q),
// clamped to the max when the index overshoots.
func percentile(sorted []float64, q float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	idx := int(float64(n) * q)
	if idx >= n {
		idx = n - 1
	}
	return sorted[idx]
}

// QuerySummary computes the summary of one metric over [fromNs, toNs).
func (r *Repo) QuerySummary(name string, fromNs, toNs int64, endpoint string) (Summary, error) {
	vals, err := r.values(name, fromNs, toNs, endpoint)
	if err != nil {
		return Summary{}, fmt.Errorf("metrics summary %s: %w", name, err)
	}
	if len(vals) == 0 {
		return Summary{}, nil
	}
	sort.Float64s(vals)

	s := Summary{Count: len(vals), Min: vals[0], Max: vals[len(vals)-1]}
	for _, v := range vals {
		s.Sum += v
	}
	s.Avg = s.Sum / float64(len(vals))
	s.P50 = percentile(vals, 0.50)
	s.P95 = percentile(vals, 0.95)
	s.P99 = percentile(vals, 0.99)
	return s, nil
}

func (r *Repo) countEvents(name string, fromNs, toNs int64, endpoint string) (int64, error) {
	query := "SELECT COUNT(*) FROM metric_events WHERE name = ? AND timestamp_ns >= ? AND timestamp_ns < ?"
	args := []any{name, fromNs, toNs}
	if endpoint != "" {
		query += " AND endpoint = ?"
		args = append(args, endpoint)
	}
	var n int64
	if err := r.db.QueryRow(query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// CacheHitRate returns hits/(hits+misses) over the window, for an optional
// endpoint. ok is false when there were no cache events at all.
func (r *Repo) CacheHitRate(fromNs, toNs int64, endpoint string) (rate float64, ok bool, err error) {
	hits, err := r.countEvents(EventCacheHit, fromNs, toNs, endpoint)
	if err != nil {
		return 0, false, err
	}
	misses, err := r.countEvents(EventCacheMiss, fromNs, toNs, endpoint)
	if err != nil {
		return 0, false, err
	}
	total := hits + misses
	if total == 0 {
		return 0, false, nil
	}
	return float64(hits) / float64(total), true, nil
}

// ErrorRate returns errors/(errors+successes) over the window. ok is false
// when no calls were recorded.
func (r *Repo) ErrorRate(fromNs, toNs int64) (rate float64, ok bool, err error) {
	errs, err := r.countEvents(EventAPIError, fromNs, toNs, "")
	if err != nil {
		return 0, false, err
	}
	successes, err := r.countEvents(EventAPISuccess, fromNs, toNs, "")
	if err != nil {
		return 0, false, err
	}
	total := errs + successes
	if total == 0 {
		return 0, false, nil
	}
	return float64(errs) / float64(total), true, nil
}

// DeleteOlderThan removes events with timestamp_ns below cutoff in batches
// of batchSize, looping until none remain. Returns the total deleted.
func (r *Repo) DeleteOlderThan(cutoffNs int64, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 1000
	}
	var total int64
	for {
		r.mu.Lock()
		res, err := r.db.Exec(`
			DELETE FROM metric_events WHERE id IN (
				SELECT id FROM metric_events WHERE timestamp_ns < ? LIMIT ?
			)`, cutoffNs, batchSize)
		r.mu.Unlock()
		if err != nil {
			return total, err
		}
		n, _ := res.RowsAffected()
		total += n
		if n < int64(batchSize) {
			return total, nil
		}
	}
}
