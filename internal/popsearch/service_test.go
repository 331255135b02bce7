package popsearch

import (
	"fmt"
	"testing"
	"time"

	"github.com/medina-app/medina/internal/testutil"
)

func newTestService(t *testing.T, minUsers int) (*Service, *time.Time) {
	t.Helper()
	s := NewService(NewRepo(testutil.OpenTestDB(t)), Config{MinUniqueUsers: minUsers})
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	return s, &now
}

// logSpread logs the same query from n distinct users.
func logSpread(s *Service, query, city string, n int) {
	for i := 0; i < n; i++ {
		s.LogRecentSearch(fmt.Sprintf("user-%s-%03d", query, i), query, city, 5)
	}
}

func TestLogAndRecentSearches(t *testing.T) {
	s, now := newTestService(t, 20)

	s.LogRecentSearch("user-1", "Best Tagine", "Marrakech", 12)
	*now = now.Add(time.Minute)
	s.LogRecentSearch("user-1", "rooftop cafe", "marrakech", 7)
	s.LogRecentSearch("user-2", "riad", "fes", 3)

	got, err := s.GetMyRecentSearches("user-1", 10)
	if err != nil {
		t.Fatalf("GetMyRecentSearches: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d rows", len(got))
	}
	// Newest first, original casing preserved.
	if got[0].Query != "rooftop cafe" || got[1].Query != "Best Tagine" {
		t.Fatalf("order: %+v", got)
	}
	if got[1].City != "marrakech" || got[1].ResultCount != 12 {
		t.Fatalf("row: %+v", got[1])
	}
}

func TestAnonymousSearchesDropped(t *testing.T) {
	s, _ := newTestService(t, 20)
	s.LogRecentSearch("", "best tagine", "marrakech", 5)

	got, err := s.GetMyRecentSearches("", 10)
	if err != nil || got != nil {
		t.Fatalf("got %v, %v", got, err)
	}
}

func TestPIISearchesDropped(t *testing.T) {
	s, _ := newTestService(t, 20)
	s.LogRecentSearch("user-1", "call me 0612345678", "marrakech", 0)
	s.LogRecentSearch("user-1", "someone@example.com", "", 0)
	s.LogRecentSearch("user-1", "   ", "", 0)

	got, err := s.GetMyRecentSearches("user-1", 10)
	if err != nil {
		t.Fatalf("GetMyRecentSearches: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("PII rows stored: %+v", got)
	}
}

func TestClearMySearchHistory(t *testing.T) {
	s, _ := newTestService(t, 20)
	s.LogRecentSearch("user-1", "tagine", "marrakech", 5)
	s.LogRecentSearch("user-1", "couscous", "marrakech", 5)
	s.LogRecentSearch("user-2", "riad", "fes", 5)

	n, err := s.ClearMySearchHistory("user-1")
	if err != nil {
		t.Fatalf("ClearMySearchHistory: %v", err)
	}
	if n != 2 {
		t.Fatalf("deleted %d rows", n)
	}
	other, _ := s.GetMyRecentSearches("user-2", 10)
	if len(other) != 1 {
		t.Fatal("other users' rows must survive")
	}
}

func TestAggregateAnonymityFloor(t *testing.T) {
	s, _ := newTestService(t, 20)

	logSpread(s, "best tagine", "marrakech", 25)
	logSpread(s, "obscure riad name", "marrakech", 3)

	if err := s.Aggregate(); err != nil {
		t.Fatalf("Aggregate: %v", err)
	}

	popular, err := s.GetPopularSearches("marrakech", 10)
	if err != nil {
		t.Fatalf("GetPopularSearches: %v", err)
	}
	if len(popular) != 1 {
		t.Fatalf("got %d aggregates", len(popular))
	}
	if popular[0].Query != "best tagine" || popular[0].Count != 25 {
		t.Fatalf("aggregate: %+v", popular[0])
	}
}

func TestAggregateGlobalRollup(t *testing.T) {
	s, _ := newTestService(t, 20)

	// 12 users per city for the same query: below the floor per city,
	// above it globally.
	logSpread(s, "vegan food", "marrakech", 12)
	for i := 0; i < 12; i++ {
		s.LogRecentSearch(fmt.Sprintf("fes-user-%03d", i), "vegan food", "fes", 5)
	}

	if err := s.Aggregate(); err != nil {
		t.Fatalf("Aggregate: %v", err)
	}

	perCity, _ := s.GetPopularSearches("marrakech", 10)
	if len(perCity) != 0 {
		t.Fatalf("below-floor city rollup leaked: %+v", perCity)
	}
	global, err := s.GetPopularSearches("", 10)
	if err != nil {
		t.Fatalf("GetPopularSearches: %v", err)
	}
	if len(global) != 1 || global[0].Count != 24 || global[0].City != "global" {
		t.Fatalf("global rollup: %+v", global)
	}
}

func TestAggregateMergesRerun(t *testing.T) {
	s, _ := newTestService(t, 5)

	logSpread(s, "tagine", "marrakech", 6)
	if err := s.Aggregate(); err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	// Re-running the same period must not duplicate rows.
	if err := s.Aggregate(); err != nil {
		t.Fatalf("Aggregate: %v", err)
	}

	popular, _ := s.GetPopularSearches("marrakech", 10)
	if len(popular) != 1 {
		t.Fatalf("got %d rows", len(popular))
	}
	if popular[0].Count != 12 {
		t.Fatalf("merged count: got %d", popular[0].Count)
	}
}

func TestPurgeRaw(t *testing.T) {
	s, now := newTestService(t, 20)

	s.LogRecentSearch("user-1", "old search", "marrakech", 5)
	*now = now.Add(25 * time.Hour)
	s.LogRecentSearch("user-1", "fresh search", "marrakech", 5)

	n, err := s.PurgeRaw()
	if err != nil {
		t.Fatalf("PurgeRaw: %v", err)
	}
	if n != 1 {
		t.Fatalf("purged %d rows", n)
	}
	got, _ := s.GetMyRecentSearches("user-1", 10)
	if len(got) != 1 || got[0].Query != "fresh search" {
		t.Fatalf("remaining: %+v", got)
	}
}

func TestPurgeAggregates(t *testing.T) {
	s, now := newTestService(t, 5)

	logSpread(s, "tagine", "marrakech", 6)
	if err := s.Aggregate(); err != nil {
		t.Fatalf("Aggregate: %v", err)
	}

	*now = now.Add(31 * 24 * time.Hour)
	n, err := s.PurgeAggregates()
	if err != nil {
		t.Fatalf("PurgeAggregates: %v", err)
	}
	if n == 0 {
		t.Fatal("expired aggregates not purged")
	}
	popular, _ := s.GetPopularSearches("marrakech", 10)
	if len(popular) != 0 {
		t.Fatalf("stale aggregates remain: %+v", popular)
	}
}

func TestPopularSearchesNeverExposeUniqueUsers(t *testing.T) {
	s, _ := newTestService(t, 5)
	logSpread(s, "tagine", "marrakech", 6)
	if err := s.Aggregate(); err != nil {
		t.Fatalf("Aggregate: %v", err)
	}

	popular, _ := s.GetPopularSearches("marrakech", 10)
	if len(popular) != 1 {
		t.Fatalf("got %d rows", len(popular))
	}
	// The public shape carries query, city, and count only.
	p := popular[0]
	if p.Query == "" || p.City == "" || p.Count == 0 {
		t.Fatalf("aggregate: %+v", p)
	}
}
