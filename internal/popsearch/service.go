package popsearch

import (
	"log"
	"strings"
	"time"

	"github.com/medina-app/medina/internal/model"
)

const (
	rawPurgeBatch       = 500
	aggregatePurgeBatch = 500
)

// PopularSearch is the public shape of one aggregate row. Unique-user counts
// stay internal; only occurrence counts are exposed.
type PopularSearch struct {
	Query string `json:"query"`
	City  string `json:"city"`
	Count int64  `json:"count"`
}

// RecentSearch is the public shape of one of the caller's own searches.
type RecentSearch struct {
	Query       string `json:"query"`
	City        string `json:"city,omitempty"`
	ResultCount int    `json:"resultCount"`
	SearchedAt  int64  `json:"searchedAtNs"`
}

// Config tunes the aggregator.
type Config struct {
	RawRetention       time.Duration
	AggregateRetention time.Duration
	MinUniqueUsers     int
}

// Service implements search logging and the popularity rollup.
type Service struct {
	repo *Repo
	cfg  Config

	now func() time.Time
}

// NewService creates the Service with the given retention config.
func NewService(repo *Repo, cfg Config) *Service {
	if cfg.RawRetention <= 0 {
		cfg.RawRetention = 24 * time.Hour
	}
	if cfg.AggregateRetention <= 0 {
		cfg.AggregateRetention = 30 * 24 * time.Hour
	}
	if cfg.MinUniqueUsers <= 0 {
		cfg.MinUniqueUsers = 20
	}
	return &Service{repo: repo, cfg: cfg, now: time.Now}
}

// LogRecentSearch records one search for an authenticated user. Anonymous
// callers and queries containing PII are silently dropped; logging never
// fails a search.
func (s *Service) LogRecentSearch(userID, query, city string, resultCount int) {
	if userID == "" {
		return
	}
	if ContainsPII(query) {
		return
	}
	normalized := Normalize(query)
	if normalized == "" {
		return
	}
	err := s.repo.InsertRaw(model.RawSearchLog{
		UserID:          userID,
		Query:           strings.TrimSpace(query),
		NormalizedQuery: normalized,
		City:            strings.ToLower(strings.TrimSpace(city)),
		ResultCount:     resultCount,
		SearchedAtNs:    s.now().UnixNano(),
	})
	if err != nil {
		log.Printf("[popsearch] log search failed: %v", err)
	}
}

// GetPopularSearches returns the top aggregated queries for a city, or the
// global rollup when city is empty.
func (s *Service) GetPopularSearches(city string, limit int) ([]PopularSearch, error) {
	c := strings.ToLower(strings.TrimSpace(city))
	if c == "" {
		c = "global"
	}
	aggs, err := s.repo.TopAggregates(c, limit)
	if err != nil {
		return nil, err
	}
	out := make([]PopularSearch, len(aggs))
	for i, a := range aggs {
		out[i] = PopularSearch{Query: a.NormalizedQuery, City: a.City, Count: a.Count}
	}
	return out, nil
}

// GetMyRecentSearches returns the caller's own raw searches, newest first.
func (s *Service) GetMyRecentSearches(userID string, limit int) ([]RecentSearch, error) {
	if userID == "" {
		return nil, nil
	}
	rows, err := s.repo.RecentForUser(userID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]RecentSearch, len(rows))
	for i, r := range rows {
		out[i] = RecentSearch{
			Query: r.Query, City: r.City,
			ResultCount: r.ResultCount, SearchedAt: r.SearchedAtNs,
		}
	}
	return out, nil
}

// ClearMySearchHistory deletes every raw search row the caller owns.
func (s *Service) ClearMySearchHistory(userID string) (int64, error) {
	if userID == "" {
		return 0, nil
	}
	return s.repo.DeleteForUser(userID)
}

// PurgeRaw deletes raw logs past the 24 h retention. Scheduled every 6 h.
func (s *Service) PurgeRaw() (int64, error) {
	cutoff := s.now().Add(-s.cfg.RawRetention).UnixNano()
	return s.repo.PurgeRawOlderThan(cutoff, rawPurgeBatch)
}

// Aggregate rolls the last 24 h of raw logs into search_aggregates, keeping
// only groups seen by at least MinUniqueUsers distinct users. Scheduled
// daily at 04:00 UTC.
func (s *Service) Aggregate() error {
	now := s.now()
	fromNs := now.Add(-24 * time.Hour).UnixNano()
	toNs := now.UnixNano()
	periodStart := now.UTC().Truncate(24 * time.Hour).UnixNano()

	groups, err := s.repo.GroupRaw(fromNs, toNs)
	if err != nil {
		return err
	}
	var kept, dropped int
	for _, g := range groups {
		if g.UniqueUsers < int64(s.cfg.MinUniqueUsers) {
			dropped++
			continue
		}
		err := s.repo.UpsertAggregate(model.SearchAggregate{
			NormalizedQuery: g.NormalizedQuery,
			City:            g.City,
			Count:           g.Count,
			UniqueUsers:     g.UniqueUsers,
			PeriodStartNs:   periodStart,
			PeriodEndNs:     toNs,
		})
		if err != nil {
			return err
		}
		kept++
	}
	log.Printf("[popsearch] aggregated %d groups, %d below anonymity floor", kept, dropped)
	return nil
}

// PurgeAggregates deletes aggregates past the 30 d retention. Scheduled
// daily at 05:00 UTC.
func (s *Service) PurgeAggregates() (int64, error) {
	cutoff := s.now().Add(-s.cfg.AggregateRetention).UnixNano()
	return s.repo.PurgeAggregatesOlderThan(cutoff, aggregatePurgeBatch)
}
