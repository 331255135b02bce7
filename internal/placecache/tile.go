package placecache

import (
	"log"
	"time"

	"github.com/medina-app/medina/internal/geohash"
	"github.com/medina-app/medina/internal/model"
)

const (
	// ChunkSize is the max place keys per tile chunk.
	ChunkSize = 100
	// MaxChunksPerTile caps chunks per tile; writes are truncated to
	// ChunkSize * MaxChunksPerTile keys.
	MaxChunksPerTile = 10
	// tilePurgeBatch bounds one purge invocation.
	tilePurgeBatch = 500
)

// TileCache is the geohash map-tile cache. A tile's keys are chunked; the
// tile is a valid hit only when every chunk is unexpired, so a half-written
// or half-expired tile reads as a miss rather than partial content.
type TileCache struct {
	repo *Repo
	ttl  time.Duration

	now func() time.Time
}

// NewTileCache creates a TileCache with the given TTL.
func NewTileCache(repo *Repo, ttl time.Duration) *TileCache {
	if ttl <= 0 {
		ttl = 45 * time.Minute
	}
	return &TileCache{repo: repo, ttl: ttl, now: time.Now}
}

// Lookup returns the concatenated place keys for a tile, or ok=false when
// the tile has no chunks or any chunk has expired.
func (c *TileCache) Lookup(tileKey string, zoom int) (placeKeys []string, ok bool) {
	chunks, err := c.repo.GetTileChunks(tileKey, zoom)
	if err != nil {
		log.Printf("[placecache] tile lookup failed key=%q zoom=%d: %v", tileKey, zoom, err)
		return nil, false
	}
	if len(chunks) == 0 {
		return nil, false
	}
	nowNs := c.now().UnixNano()
	keys := make([]string, 0, len(chunks)*ChunkSize)
	for _, chunk := range chunks {
		if chunk.ExpiresAtNs <= nowNs {
			return nil, false
		}
		keys = append(keys, chunk.PlaceKeys...)
	}
	return keys, true
}

// Write fully refreshes a tile: existing chunks are deleted, the input is
// truncated to ChunkSize*MaxChunksPerTile keys and split into chunks of
// ChunkSize. An empty input still writes one empty chunk so the tile reads
// as "checked and empty" rather than a miss.
func (c *TileCache) Write(tileKey string, zoom int, placeKeys []string, provider string) error {
	if max := ChunkSize * MaxChunksPerTile; len(placeKeys) > max {
		placeKeys = placeKeys[:max]
	}

	now := c.now()
	expiresAtNs := now.Add(c.ttl).UnixNano()
	createdAtNs := now.UnixNano()

	chunkCount := (len(placeKeys) + ChunkSize - 1) / ChunkSize
	if chunkCount == 0 {
		chunkCount = 1
	}

	chunks := make([]model.TileCacheChunk, 0, chunkCount)
	for i := 0; i < chunkCount; i++ {
		start := i * ChunkSize
		end := start + ChunkSize
		if end > len(placeKeys) {
			end = len(placeKeys)
		}
		chunks = append(chunks, model.TileCacheChunk{
			TileKey:     tileKey,
			Zoom:        zoom,
			ChunkIndex:  i,
			Provider:    provider,
			PlaceKeys:   placeKeys[start:end],
			ExpiresAtNs: expiresAtNs,
			CreatedAtNs: createdAtNs,
		})
	}
	return c.repo.ReplaceTileChunks(tileKey, zoom, chunks)
}

// TileHit is one cached tile in a batch check result.
type TileHit struct {
	TileKey   string   `json:"tileKey"`
	PlaceKeys []string `json:"placeKeys"`
}

// TileMiss is one uncached (or expired) tile in a batch check result.
type TileMiss struct {
	TileKey string `json:"tileKey"`
	Zoom    int    `json:"zoom"`
}

// CheckBatch resolves a set of tiles in one pass.
func (c *TileCache) CheckBatch(tileKeys []string, zoom int) (hits []TileHit, misses []TileMiss) {
	hits = make([]TileHit, 0, len(tileKeys))
	misses = make([]TileMiss, 0, len(tileKeys))
	for _, key := range tileKeys {
		if keys, ok := c.Lookup(key, zoom); ok {
			hits = append(hits, TileHit{TileKey: key, PlaceKeys: keys})
		} else {
			misses = append(misses, TileMiss{TileKey: key, Zoom: zoom})
		}
	}
	return hits, misses
}

// TilesForViewport computes the covering tile set for a viewport and
// batch-resolves it against the cache.
func (c *TileCache) TilesForViewport(b geohash.Bounds, zoom int) (hits []TileHit, misses []TileMiss) {
	return c.CheckBatch(TileKeysForBounds(b, zoom), zoom)
}

// PurgeExpired removes a bounded batch of expired chunks.
func (c *TileCache) PurgeExpired() (int64, error) {
	return c.repo.PurgeExpiredTiles(c.now().UnixNano(), tilePurgeBatch)
}
