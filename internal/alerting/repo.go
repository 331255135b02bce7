package alerting

import (
	"database/sql"
	"fmt"
	"sync"

	"github.com/medina-app/medina/internal/model"
)

// Repo persists thresholds and fired alerts.
type Repo struct {
	db *sql.DB
	mu sync.Mutex
}

// NewRepo creates a Repo on an opened, migrated database.
func NewRepo(db *sql.DB) *Repo {
	return &Repo{db: db}
}

// SeedDefaults inserts the embedded defaults for any threshold key not
// already present. Existing rows are left untouched so operator edits
// survive restarts.
func (r *Repo) SeedDefaults() error {
	defaults, err := DefaultThresholds()
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, t := range defaults {
		_, err := r.db.Exec(`
			INSERT INTO alert_thresholds
				(key, metric, comparison, threshold, window_ns, severity, auto_mitigation, enabled)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(key) DO NOTHING
		`, t.Key, t.Metric, t.Comparison, t.Threshold, t.WindowNs,
			t.Severity, t.AutoMitigation, boolToInt(t.Enabled))
		if err != nil {
			return fmt.Errorf("seed threshold %s: %w", t.Key, err)
		}
	}
	return nil
}

// ListEnabled returns every enabled threshold.
func (r *Repo) ListEnabled() ([]model.AlertThreshold, error) {
	rows, err := r.db.Query(`
		SELECT key, metric, comparison, threshold, window_ns, severity, auto_mitigation, enabled
		FROM alert_thresholds WHERE enabled = 1`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.AlertThreshold
	for rows.Next() {
		var t model.AlertThreshold
		var enabled int
		if err := rows.Scan(&t.Key, &t.Metric, &t.Comparison, &t.Threshold,
			&t.WindowNs, &t.Severity, &t.AutoMitigation, &enabled); err != nil {
			return nil, err
		}
		t.Enabled = enabled != 0
		out = append(out, t)
	}
	return out, rows.Err()
}

// SetThreshold upserts one threshold row.
func (r *Repo) SetThreshold(t model.AlertThreshold) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`
		INSERT INTO alert_thresholds
			(key, metric, comparison, threshold, window_ns, severity, auto_mitigation, enabled)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			metric          = excluded.metric,
			comparison      = excluded.comparison,
			threshold       = excluded.threshold,
			window_ns       = excluded.window_ns,
			severity        = excluded.severity,
			auto_mitigation = excluded.auto_mitigation,
			enabled         = excluded.enabled
	`, t.Key, t.Metric, t.Comparison, t.Threshold, t.WindowNs,
		t.Severity, t.AutoMitigation, boolToInt(t.Enabled))
	return err
}

// LatestUnresolved returns the newest unresolved alert for a threshold, or
// nil when every alert for it has been resolved.
func (r *Repo) LatestUnresolved(thresholdKey string) (*model.Alert, error) {
	row := r.db.QueryRow(`
		SELECT id, threshold_key, severity, message, value, triggered_at_ns, resolved_at_ns
		FROM alerts WHERE threshold_key = ? AND resolved_at_ns = 0
		ORDER BY triggered_at_ns DESC LIMIT 1`, thresholdKey)
	var a model.Alert
	if err := row.Scan(&a.ID, &a.ThresholdKey, &a.Severity, &a.Message,
		&a.Value, &a.TriggeredAtNs, &a.ResolvedAtNs); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan alert: %w", err)
	}
	return &a, nil
}

// Insert appends a fired alert.
func (r *Repo) Insert(a model.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`
		INSERT INTO alerts (threshold_key, severity, message, value, triggered_at_ns, resolved_at_ns)
		VALUES (?, ?, ?, ?, ?, 0)`,
		a.ThresholdKey, a.Severity, a.Message, a.Value, a.TriggeredAtNs)
	return err
}

// ResolveAll marks every unresolved alert for a threshold as resolved.
func (r *Repo) ResolveAll(thresholdKey string, resolvedAtNs int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, err := r.db.Exec(`
		UPDATE alerts SET resolved_at_ns = ?
		WHERE threshold_key = ? AND resolved_at_ns = 0`, resolvedAtNs, thresholdKey)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// ListRecent returns the newest alerts, resolved or not.
func (r *Repo) ListRecent(limit int) ([]model.Alert, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(`
		SELECT id, threshold_key, severity, message, value, triggered_at_ns, resolved_at_ns
		FROM alerts ORDER BY triggered_at_ns DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Alert
	for rows.Next() {
		var a model.Alert
		if err := rows.Scan(&a.ID, &a.ThresholdKey, &a.Severity, &a.Message,
			&a.Value, &a.TriggeredAtNs, &a.ResolvedAtNs); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
