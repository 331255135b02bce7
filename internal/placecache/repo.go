package placecache

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/medina-app/medina/internal/model"
)

// Repo provides sqlite persistence for both cache tiers.
// Writes are serialized by an internal mutex.
type Repo struct {
	db *sql.DB
	mu sync.Mutex
}

// NewRepo creates a Repo on an opened, migrated database.
func NewRepo(db *sql.DB) *Repo {
	return &Repo{db: db}
}

func marshalKeys(keys []string) string {
	if keys == nil {
		keys = []string{}
	}
	data, _ := json.Marshal(keys)
	return string(data)
}

func unmarshalKeys(data string) ([]string, error) {
	var keys []string
	if err := json.Unmarshal([]byte(data), &keys); err != nil {
		return nil, fmt.Errorf("unmarshal place keys: %w", err)
	}
	return keys, nil
}

// --- search_cache ---

// GetSearchEntry loads one search cache row. Returns nil when absent.
// Expiry is the caller's concern: an expired row is still returned.
func (r *Repo) GetSearchEntry(cacheKey string) (*model.SearchCacheEntry, error) {
	row := r.db.QueryRow(
		"SELECT cache_key, place_keys_json, provider, expires_at_ns, created_at_ns FROM search_cache WHERE cache_key = ?",
		cacheKey)
	var e model.SearchCacheEntry
	var keysJSON string
	if err := row.Scan(&e.CacheKey, &keysJSON, &e.Provider, &e.ExpiresAtNs, &e.CreatedAtNs); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan search_cache: %w", err)
	}
	keys, err := unmarshalKeys(keysJSON)
	if err != nil {
		return nil, err
	}
	e.PlaceKeys = keys
	return &e, nil
}

// UpsertSearchEntry inserts or replaces one search cache row.
func (r *Repo) UpsertSearchEntry(e model.SearchCacheEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`
		INSERT INTO search_cache (cache_key, place_keys_json, provider, expires_at_ns, created_at_ns)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET
			place_keys_json = excluded.place_keys_json,
			provider        = excluded.provider,
			expires_at_ns   = excluded.expires_at_ns,
			created_at_ns   = excluded.created_at_ns
	`, e.CacheKey, marshalKeys(e.PlaceKeys), e.Provider, e.ExpiresAtNs, e.CreatedAtNs)
	return err
}

// PurgeExpiredSearch deletes up to limit expired search rows.
// Returns the number of rows deleted.
func (r *Repo) PurgeExpiredSearch(nowNs int64, limit int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, err := r.db.Exec(`
		DELETE FROM search_cache WHERE cache_key IN (
			SELECT cache_key FROM search_cache WHERE expires_at_ns <= ? LIMIT ?
		)`, nowNs, limit)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// --- tile_cache_chunks ---

// GetTileChunks loads all chunks for (tileKey, zoom) ordered by chunk index.
func (r *Repo) GetTileChunks(tileKey string, zoom int) ([]model.TileCacheChunk, error) {
	rows, err := r.db.Query(`
		SELECT tile_key, zoom, chunk_index, provider, place_keys_json, expires_at_ns, created_at_ns
		FROM tile_cache_chunks WHERE tile_key = ? AND zoom = ? ORDER BY chunk_index`,
		tileKey, zoom)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.TileCacheChunk
	for rows.Next() {
		var c model.TileCacheChunk
		var keysJSON string
		if err := rows.Scan(&c.TileKey, &c.Zoom, &c.ChunkIndex, &c.Provider,
			&keysJSON, &c.ExpiresAtNs, &c.CreatedAtNs); err != nil {
			return nil, err
		}
		keys, err := unmarshalKeys(keysJSON)
		if err != nil {
			return nil, err
		}
		c.PlaceKeys = keys
		out = append(out, c)
	}
	return out, rows.Err()
}

// ReplaceTileChunks deletes every existing chunk for (tileKey, zoom) and
// inserts the given chunks in one transaction (full tile refresh).
func (r *Repo) ReplaceTileChunks(tileKey string, zoom int, chunks []model.TileCacheChunk) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		"DELETE FROM tile_cache_chunks WHERE tile_key = ? AND zoom = ?", tileKey, zoom); err != nil {
		return err
	}
	for _, c := range chunks {
		if _, err := tx.Exec(`
			INSERT INTO tile_cache_chunks
				(tile_key, zoom, chunk_index, provider, place_keys_json, expires_at_ns, created_at_ns)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			c.TileKey, c.Zoom, c.ChunkIndex, c.Provider,
			marshalKeys(c.PlaceKeys), c.ExpiresAtNs, c.CreatedAtNs); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// PurgeExpiredTiles deletes up to limit expired tile chunks.
func (r *Repo) PurgeExpiredTiles(nowNs int64, limit int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, err := r.db.Exec(`
		DELETE FROM tile_cache_chunks WHERE rowid IN (
			SELECT rowid FROM tile_cache_chunks WHERE expires_at_ns <= ? LIMIT ?
		)`, nowNs, limit)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}
