package popsearch

import (
	"database/sql"
	"fmt"
	"sync"

	"github.com/medina-app/medina/internal/model"
)

// Repo persists raw search logs and k-anonymous aggregates.
type Repo struct {
	db *sql.DB
	mu sync.Mutex
}

// NewRepo creates a Repo on an opened, migrated database.
func NewRepo(db *sql.DB) *Repo {
	return &Repo{db: db}
}

// InsertRaw appends one raw search log row.
func (r *Repo) InsertRaw(s model.RawSearchLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`
		INSERT INTO recent_searches (user_id, query, normalized_query, city, result_count, searched_at_ns)
		VALUES (?, ?, ?, ?, ?, ?)`,
		s.UserID, s.Query, s.NormalizedQuery, s.City, s.ResultCount, s.SearchedAtNs)
	return err
}

// RecentForUser returns a user's own raw searches, newest first.
func (r *Repo) RecentForUser(userID string, limit int) ([]model.RawSearchLog, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.db.Query(`
		SELECT id, user_id, query, normalized_query, city, result_count, searched_at_ns
		FROM recent_searches WHERE user_id = ?
		ORDER BY searched_at_ns DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.RawSearchLog
	for rows.Next() {
		var s model.RawSearchLog
		if err := rows.Scan(&s.ID, &s.UserID, &s.Query, &s.NormalizedQuery,
			&s.City, &s.ResultCount, &s.SearchedAtNs); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// DeleteForUser removes every raw search row owned by userID.
func (r *Repo) DeleteForUser(userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, err := r.db.Exec("DELETE FROM recent_searches WHERE user_id = ?", userID)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// PurgeRawOlderThan removes raw rows below cutoff in batches, looping until
// none remain. Returns the total deleted.
func (r *Repo) PurgeRawOlderThan(cutoffNs int64, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 500
	}
	var total int64
	for {
		r.mu.Lock()
		res, err := r.db.Exec(`
			DELETE FROM recent_searches WHERE id IN (
				SELECT id FROM recent_searches WHERE searched_at_ns < ? LIMIT ?
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

// groupRow is one (city, normalizedQuery) rollup over a period.
type groupRow struct {
	City            string
	NormalizedQuery string
	Count           int64
	UniqueUsers     int64
}

// GroupRaw rolls up raw rows in [fromNs, toNs) per city and per the "global"
// pseudo-city, counting occurrences and distinct users.
func (r *Repo) GroupRaw(fromNs, toNs int64) ([]groupRow, error) {
	rows, err := r.db.Query(`
		SELECT city, normalized_query, COUNT(*), COUNT(DISTINCT user_id)
		FROM recent_searches
		WHERE searched_at_ns >= ? AND searched_at_ns < ? AND normalized_query != ''
		GROUP BY city, normalized_query
		UNION ALL
		SELECT 'global', normalized_query, COUNT(*), COUNT(DISTINCT user_id)
		FROM recent_searches
		WHERE searched_at_ns >= ? AND searched_at_ns < ? AND normalized_query != ''
		GROUP BY normalized_query`,
		fromNs, toNs, fromNs, toNs)
	if err != nil {
		return nil, fmt.Errorf("group raw searches: %w", err)
	}
	defer rows.Close()

	var out []groupRow
	for rows.Next() {
		var g groupRow
		if err := rows.Scan(&g.City, &g.NormalizedQuery, &g.Count, &g.UniqueUsers); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// UpsertAggregate merges one rollup into search_aggregates; re-running the
// same period adds counts rather than duplicating rows.
func (r *Repo) UpsertAggregate(a model.SearchAggregate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`
		INSERT INTO search_aggregates
			(normalized_query, city, count, unique_users, period_start_ns, period_end_ns)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(city, normalized_query, period_start_ns) DO UPDATE SET
			count         = search_aggregates.count + excluded.count,
			unique_users  = MAX(search_aggregates.unique_users, excluded.unique_users),
			period_end_ns = excluded.period_end_ns
	`, a.NormalizedQuery, a.City, a.Count, a.UniqueUsers, a.PeriodStartNs, a.PeriodEndNs)
	return err
}

// TopAggregates returns the most-searched queries for a city (or "global"),
// summed across retained periods.
func (r *Repo) TopAggregates(city string, limit int) ([]model.SearchAggregate, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.db.Query(`
		SELECT normalized_query, city, SUM(count), MIN(period_start_ns), MAX(period_end_ns)
		FROM search_aggregates WHERE city = ?
		GROUP BY normalized_query
		ORDER BY SUM(count) DESC LIMIT ?`, city, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.SearchAggregate
	for rows.Next() {
		var a model.SearchAggregate
		if err := rows.Scan(&a.NormalizedQuery, &a.City, &a.Count,
			&a.PeriodStartNs, &a.PeriodEndNs); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// PurgeAggregatesOlderThan removes aggregates whose period started before
// cutoff, in batches.
func (r *Repo) PurgeAggregatesOlderThan(cutoffNs int64, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 500
	}
	var total int64
	for {
		r.mu.Lock()
		res, err := r.db.Exec(`
			DELETE FROM search_aggregates WHERE rowid IN (
				SELECT rowid FROM search_aggregates WHERE period_start_ns < ? LIMIT ?
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
