package loadshed

import (
	"errors"
	"testing"
)

// acquireN admits n priority-1 requests to raise the active count.
func acquireN(t *testing.T, s *Shedder, n int) []func() {
	t.Helper()
	releases := make([]func(), 0, n)
	for i := 0; i < n; i++ {
		rel, err := s.Acquire(1)
		if err != nil {
			t.Fatalf("Acquire(1) #%d: %v", i, err)
		}
		releases = append(releases, rel)
	}
	return releases
}

func TestLevelThresholds(t *testing.T) {
	s := New(20)
	cases := []struct {
		active int64
		want   Level
	}{
		{0, LevelNormal},
		{9, LevelNormal},
		{10, LevelElevated},
		{14, LevelElevated},
		{15, LevelHigh},
		{17, LevelHigh},
		{18, LevelCritical},
		{20, LevelCritical},
	}
	for _, tc := range cases {
		if got := s.levelFor(tc.active); got != tc.want {
			t.Fatalf("levelFor(%d): got %s, want %s", tc.active, got, tc.want)
		}
	}
}

func TestNormalLoadAdmitsAll(t *testing.T) {
	s := New(25)
	for p := 1; p <= 4; p++ {
		rel, err := s.Acquire(p)
		if err != nil {
			t.Fatalf("Acquire(%d) under normal load: %v", p, err)
		}
		rel()
	}
}

func TestElevatedLoadShedsPhotos(t *testing.T) {
	s := New(20)
	rels := acquireN(t, s, 10) // 0.5 -> elevated
	defer func() {
		for _, r := range rels {
			r()
		}
	}()

	if _, err := s.Acquire(4); err == nil {
		t.Fatal("priority 4 must shed at elevated load")
	}
	rel, err := s.Acquire(3)
	if err != nil {
		t.Fatalf("priority 3 must pass at elevated load: %v", err)
	}
	rel()
}

func TestHighLoadShedsP3AndP4(t *testing.T) {
	s := New(20)
	rels := acquireN(t, s, 15) // 0.75 -> high
	defer func() {
		for _, r := range rels {
			r()
		}
	}()

	for _, p := range []int{3, 4} {
		_, err := s.Acquire(p)
		var shed *ShedError
		if !errors.As(err, &shed) {
			t.Fatalf("priority %d at high load: got %v", p, err)
		}
		if shed.Reason != ReasonLoadShed {
			t.Fatalf("reason: got %s", shed.Reason)
		}
	}
	rel, err := s.Acquire(2)
	if err != nil {
		t.Fatalf("priority 2 must pass at high load: %v", err)
	}
	rel()
}

func TestCriticalLoadStillAdmitsP1(t *testing.T) {
	s := New(20)
	rels := acquireN(t, s, 19)
	defer func() {
		for _, r := range rels {
			r()
		}
	}()

	rel, err := s.Acquire(1)
	if err != nil {
		t.Fatalf("priority 1 is never shed by level: %v", err)
	}
	rel()
}

func TestQueueDepthCap(t *testing.T) {
	s := New(1000) // high ceiling keeps the level normal
	var rels []func()
	for i := 0; i < 5; i++ {
		rel, err := s.Acquire(4)
		if err != nil {
			t.Fatalf("Acquire(4) #%d: %v", i, err)
		}
		rels = append(rels, rel)
	}

	_, err := s.Acquire(4)
	var shed *ShedError
	if !errors.As(err, &shed) || shed.Reason != ReasonQueueFull {
		t.Fatalf("sixth priority-4 request: got %v", err)
	}

	rels[0]()
	rel, err := s.Acquire(4)
	if err != nil {
		t.Fatalf("after release: %v", err)
	}
	rel()
	for _, r := range rels[1:] {
		r()
	}
}

func TestPriority1Unbounded(t *testing.T) {
	s := New(1000)
	rels := acquireN(t, s, 120)
	for _, r := range rels {
		r()
	}
	if got := s.Snapshot().ActiveRequests; got != 0 {
		t.Fatalf("active after release: got %d", got)
	}
}

func TestReleaseIdempotent(t *testing.T) {
	s := New(25)
	rel, err := s.Acquire(2)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	rel()
	rel()
	st := s.Snapshot()
	if st.ActiveRequests != 0 || st.QueueDepths[2] != 0 {
		t.Fatalf("double release skewed counters: %+v", st)
	}
}

func TestPriorityClamped(t *testing.T) {
	s := New(25)
	rel, err := s.Acquire(0)
	if err != nil {
		t.Fatalf("Acquire(0): %v", err)
	}
	if got := s.Snapshot().QueueDepths[1]; got != 1 {
		t.Fatalf("priority 0 should clamp to 1, queue depth %d", got)
	}
	rel()

	rel, err = s.Acquire(9)
	if err != nil {
		t.Fatalf("Acquire(9): %v", err)
	}
	if got := s.Snapshot().QueueDepths[4]; got != 1 {
		t.Fatalf("priority 9 should clamp to 4, queue depth %d", got)
	}
	rel()
}

func TestShedCountsAndCallback(t *testing.T) {
	s := New(20)
	var observed []Reason
	s.OnShed = func(priority int, reason Reason) {
		if priority != 4 {
			t.Fatalf("callback priority: got %d", priority)
		}
		observed = append(observed, reason)
	}

	rels := acquireN(t, s, 10)
	defer func() {
		for _, r := range rels {
			r()
		}
	}()

	for i := 0; i < 3; i++ {
		if _, err := s.Acquire(4); err == nil {
			t.Fatal("expected shed")
		}
	}
	if len(observed) != 3 {
		t.Fatalf("callback invocations: got %d", len(observed))
	}
	if got := s.Snapshot().TodayShedCounts[4]; got != 3 {
		t.Fatalf("shed count: got %d", got)
	}
}

func TestSnapshotShape(t *testing.T) {
	s := New(25)
	rel, err := s.Acquire(2)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer rel()

	st := s.Snapshot()
	if st.MaxConcurrent != 25 || st.ActiveRequests != 1 {
		t.Fatalf("snapshot: %+v", st)
	}
	if st.LoadPercent != 4 {
		t.Fatalf("load percent: got %v", st.LoadPercent)
	}
	if st.LoadLevel != LevelNormal {
		t.Fatalf("level: got %s", st.LoadLevel)
	}
}
