package placecache

import (
	"log"
	"time"

	"github.com/maypok86/otter"

	"github.com/medina-app/medina/internal/model"
)

const (
	// MaxSearchPlaceKeys caps the keys stored per search cache entry.
	MaxSearchPlaceKeys = 50
	// searchPurgeBatch bounds one purge invocation.
	searchPurgeBatch = 100
)

// SearchCache is the ID-only search-result cache: sqlite rows fronted by a
// bounded otter hot layer so repeated identical searches skip the database.
type SearchCache struct {
	repo *Repo
	hot  otter.Cache[string, model.SearchCacheEntry]
	ttl  time.Duration

	now func() time.Time
}

// NewSearchCache creates a SearchCache with the given TTL and hot-layer size.
func NewSearchCache(repo *Repo, ttl time.Duration, hotSize int) *SearchCache {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	if hotSize <= 0 {
		hotSize = 4096
	}
	hot, err := otter.MustBuilder[string, model.SearchCacheEntry](hotSize).
		Cost(func(_ string, _ model.SearchCacheEntry) uint32 { return 1 }).
		Build()
	if err != nil {
		panic("placecache: failed to create search hot cache: " + err.Error())
	}
	return &SearchCache{repo: repo, hot: hot, ttl: ttl, now: time.Now}
}

// Lookup returns the cached place keys for cacheKey, or ok=false on miss.
// An expired row counts as a miss but is not deleted here; PurgeExpired
// reclaims it later.
func (c *SearchCache) Lookup(cacheKey string) (placeKeys []string, ok bool) {
	nowNs := c.now().UnixNano()

	if e, found := c.hot.Get(cacheKey); found {
		if e.ExpiresAtNs > nowNs {
			return e.PlaceKeys, true
		}
		c.hot.Delete(cacheKey)
	}

	e, err := c.repo.GetSearchEntry(cacheKey)
	if err != nil {
		log.Printf("[placecache] search lookup failed key=%q: %v", cacheKey, err)
		return nil, false
	}
	if e == nil || e.ExpiresAtNs <= nowNs {
		return nil, false
	}
	c.hot.Set(cacheKey, *e)
	return e.PlaceKeys, true
}

// Write upserts the entry, truncating to MaxSearchPlaceKeys and stamping
// expiry at now + TTL.
func (c *SearchCache) Write(cacheKey string, placeKeys []string, provider string) error {
	if len(placeKeys) > MaxSearchPlaceKeys {
		placeKeys = placeKeys[:MaxSearchPlaceKeys]
	}
	now := c.now()
	e := model.SearchCacheEntry{
		CacheKey:    cacheKey,
		PlaceKeys:   placeKeys,
		Provider:    provider,
		ExpiresAtNs: now.Add(c.ttl).UnixNano(),
		CreatedAtNs: now.UnixNano(),
	}
	if err := c.repo.UpsertSearchEntry(e); err != nil {
		return err
	}
	c.hot.Set(cacheKey, e)
	return nil
}

// PurgeExpired removes up to 100 expired rows. Returns the count removed.
func (c *SearchCache) PurgeExpired() (int64, error) {
	return c.repo.PurgeExpiredSearch(c.now().UnixNano(), searchPurgeBatch)
}
