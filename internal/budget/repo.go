package budget

import (
	"database/sql"
	"fmt"
	"sync"
)

// Repo persists daily budget counters. The day cell for any
// (endpoint_class, date_key) pair only ever grows within the day.
type Repo struct {
	db *sql.DB
	mu sync.Mutex
}

// NewRepo creates a Repo on an opened, migrated database.
func NewRepo(db *sql.DB) *Repo {
	return &Repo{db: db}
}

// Used returns today's spend for the class, 0 when no row exists.
func (r *Repo) Used(class, dateKey string) (int64, error) {
	row := r.db.QueryRow(
		"SELECT used_millicents FROM budget_counters WHERE endpoint_class = ? AND date_key = ?",
		class, dateKey)
	var used int64
	if err := row.Scan(&used); err != nil {
		if err == sql.ErrNoRows {
			return 0, nil
		}
		return 0, fmt.Errorf("scan budget_counters: %w", err)
	}
	return used, nil
}

// Add atomically adds cost to the counter, creating the day cell on first
// use, and returns the new total.
func (r *Repo) Add(class, dateKey string, limit, cost int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	row := r.db.QueryRow(`
		INSERT INTO budget_counters (endpoint_class, date_key, used_millicents, limit_millicents)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(endpoint_class, date_key) DO UPDATE SET
			used_millicents = used_millicents + excluded.used_millicents
		RETURNING used_millicents
	`, class, dateKey, cost, limit)

	var used int64
	if err := row.Scan(&used); err != nil {
		return 0, fmt.Errorf("add budget counter: %w", err)
	}
	return used, nil
}
