// Package servicemode owns the four-level degradation state machine: the
// persisted mode singleton, its transition history, the feature flags toggled
// per mode, and the per-service health records the evaluator reads.
package servicemode

import (
	"database/sql"
	"fmt"
	"sync"

	"github.com/medina-app/medina/internal/model"
)

// Repo persists the mode singleton, history, flags, and health records.
type Repo struct {
	db *sql.DB
	mu sync.Mutex
}

// NewRepo creates a Repo on an opened, migrated database.
func NewRepo(db *sql.DB) *Repo {
	return &Repo{db: db}
}

// --- service_mode singleton ---

// GetMode loads the mode record. Returns nil when never initialised.
func (r *Repo) GetMode() (*model.ServiceModeRecord, error) {
	row := r.db.QueryRow(`
		SELECT current_mode, reason, entered_at_ns, provider_healthy, budget_ok,
		       latency_ok, breaker_closed, updated_at_ns
		FROM service_mode WHERE id = 1`)
	var rec model.ServiceModeRecord
	var ph, bo, lo, bc int
	if err := row.Scan(&rec.CurrentMode, &rec.Reason, &rec.EnteredAtNs,
		&ph, &bo, &lo, &bc, &rec.UpdatedAtNs); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan service_mode: %w", err)
	}
	rec.ProviderHealthy = ph != 0
	rec.BudgetOk = bo != 0
	rec.LatencyOk = lo != 0
	rec.BreakerClosed = bc != 0
	return &rec, nil
}

// SaveMode upserts the mode singleton.
func (r *Repo) SaveMode(rec model.ServiceModeRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`
		INSERT INTO service_mode
			(id, current_mode, reason, entered_at_ns, provider_healthy, budget_ok,
			 latency_ok, breaker_closed, updated_at_ns)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			current_mode     = excluded.current_mode,
			reason           = excluded.reason,
			entered_at_ns    = excluded.entered_at_ns,
			provider_healthy = excluded.provider_healthy,
			budget_ok        = excluded.budget_ok,
			latency_ok       = excluded.latency_ok,
			breaker_closed   = excluded.breaker_closed,
			updated_at_ns    = excluded.updated_at_ns
	`, rec.CurrentMode, rec.Reason, rec.EnteredAtNs,
		boolToInt(rec.ProviderHealthy), boolToInt(rec.BudgetOk),
		boolToInt(rec.LatencyOk), boolToInt(rec.BreakerClosed), rec.UpdatedAtNs)
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// AppendTransition records one mode change.
func (r *Repo) AppendTransition(t model.ServiceModeTransition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`
		INSERT INTO service_mode_history (from_mode, to_mode, reason, transitioned_at_ns)
		VALUES (?, ?, ?, ?)`,
		t.FromMode, t.ToMode, t.Reason, t.TransitionedAtNs)
	return err
}

// ListHistory returns the most recent transitions, newest first.
func (r *Repo) ListHistory(limit int) ([]model.ServiceModeTransition, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.Query(`
		SELECT id, from_mode, to_mode, reason, transitioned_at_ns
		FROM service_mode_history ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ServiceModeTransition
	for rows.Next() {
		var t model.ServiceModeTransition
		if err := rows.Scan(&t.ID, &t.FromMode, &t.ToMode, &t.Reason, &t.TransitionedAtNs); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// --- feature_flags ---

// GetFlag returns a flag. Unknown flags default to enabled, so new flags
// are safe to read before any controller has written them.
func (r *Repo) GetFlag(key string) (model.FeatureFlag, error) {
	row := r.db.QueryRow(
		"SELECT key, enabled, reason, updated_at_ns FROM feature_flags WHERE key = ?", key)
	var f model.FeatureFlag
	var enabled int
	if err := row.Scan(&f.Key, &enabled, &f.Reason, &f.UpdatedAtNs); err != nil {
		if err == sql.ErrNoRows {
			return model.FeatureFlag{Key: key, Enabled: true}, nil
		}
		return model.FeatureFlag{}, fmt.Errorf("scan feature_flags: %w", err)
	}
	f.Enabled = enabled != 0
	return f, nil
}

// SetFlag upserts a flag.
func (r *Repo) SetFlag(f model.FeatureFlag) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`
		INSERT INTO feature_flags (key, enabled, reason, updated_at_ns)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			enabled       = excluded.enabled,
			reason        = excluded.reason,
			updated_at_ns = excluded.updated_at_ns
	`, f.Key, boolToInt(f.Enabled), f.Reason, f.UpdatedAtNs)
	return err
}

// ListFlags returns all persisted flags.
func (r *Repo) ListFlags() ([]model.FeatureFlag, error) {
	rows, err := r.db.Query("SELECT key, enabled, reason, updated_at_ns FROM feature_flags")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.FeatureFlag
	for rows.Next() {
		var f model.FeatureFlag
		var enabled int
		if err := rows.Scan(&f.Key, &enabled, &f.Reason, &f.UpdatedAtNs); err != nil {
			return nil, err
		}
		f.Enabled = enabled != 0
		out = append(out, f)
	}
	return out, rows.Err()
}

// --- service_health ---

// GetHealth returns the health record for a service. Absent records default
// to healthy.
func (r *Repo) GetHealth(service string) (model.ServiceHealth, error) {
	row := r.db.QueryRow(`
		SELECT service, healthy, consecutive_failures, last_checked_at_ns, last_error_code
		FROM service_health WHERE service = ?`, service)
	var h model.ServiceHealth
	var healthy int
	if err := row.Scan(&h.Service, &healthy, &h.ConsecutiveFailures, &h.LastCheckedAtNs, &h.LastErrorCode); err != nil {
		if err == sql.ErrNoRows {
			return model.ServiceHealth{Service: service, Healthy: true}, nil
		}
		return model.ServiceHealth{}, fmt.Errorf("scan service_health: %w", err)
	}
	h.Healthy = healthy != 0
	return h, nil
}

// SetHealth upserts a health record.
func (r *Repo) SetHealth(h model.ServiceHealth) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`
		INSERT INTO service_health
			(service, healthy, consecutive_failures, last_checked_at_ns, last_error_code)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(service) DO UPDATE SET
			healthy              = excluded.healthy,
			consecutive_failures = excluded.consecutive_failures,
			last_checked_at_ns   = excluded.last_checked_at_ns,
			last_error_code      = excluded.last_error_code
	`, h.Service, boolToInt(h.Healthy), h.ConsecutiveFailures, h.LastCheckedAtNs, h.LastErrorCode)
	return err
}
