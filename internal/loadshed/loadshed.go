// Package loadshed accounts concurrent provider requests and sheds low
// priority traffic as load rises. Priorities run 1 (place details, health)
// to 4 (photos); the shedding policy drops P4 at elevated load and P3+P4 at
// high or critical load.
package loadshed

import (
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
)

// Level is the coarse load level derived from the active/max ratio.
type Level string

const (
	LevelNormal   Level = "normal"   // < 0.5
	LevelElevated Level = "elevated" // < 0.75
	LevelHigh     Level = "high"     // < 0.9
	LevelCritical Level = "critical" // >= 0.9
)

// Reason says why a request was shed.
type Reason string

const (
	ReasonQueueFull Reason = "queue_full"
	ReasonLoadShed  Reason = "load_shed"
)

// ShedError is returned when a request is rejected by the shedder.
type ShedError struct {
	Reason   Reason
	Priority int
	Level    Level
}

func (e *ShedError) Error() string {
	return "request shed (" + string(e.Reason) + ") at priority " +
		string(rune('0'+e.Priority)) + " load " + string(e.Level)
}

// maxQueueDepth caps queued requests per priority. Priority 1 is unbounded.
var maxQueueDepth = map[int]int64{2: 50, 3: 20, 4: 5}

// Shedder tracks global active requests and per-priority queues.
type Shedder struct {
	maxConcurrent int64
	active        atomic.Int64
	queueDepth    [5]atomic.Int64 // index by priority 1..4

	// shedCounts keys are "{date}:p{priority}".
	shedCounts *xsync.Map[string, *atomic.Int64]

	// OnShed, when set, observes every shed decision (metric emission).
	OnShed func(priority int, reason Reason)

	now func() time.Time
}

// New creates a Shedder with the given concurrency ceiling.
func New(maxConcurrent int) *Shedder {
	if maxConcurrent <= 0 {
		maxConcurrent = 25
	}
	return &Shedder{
		maxConcurrent: int64(maxConcurrent),
		shedCounts:    xsync.NewMap[string, *atomic.Int64](),
		now:           time.Now,
	}
}

// levelFor derives the load level from the active count.
func (s *Shedder) levelFor(active int64) Level {
	ratio := float64(active) / float64(s.maxConcurrent)
	switch {
	case ratio < 0.5:
		return LevelNormal
	case ratio < 0.75:
		return LevelElevated
	case ratio < 0.9:
		return LevelHigh
	default:
		return LevelCritical
	}
}

// shedAtLevel reports whether a priority class is shed at a load level.
func shedAtLevel(level Level, priority int) bool {
	switch level {
	case LevelElevated:
		return priority >= 4
	case LevelHigh, LevelCritical:
		return priority >= 3
	default:
		return false
	}
}

func clampPriority(p int) int {
	if p < 1 {
		return 1
	}
	if p > 4 {
		return 4
	}
	return p
}

// Acquire admits or sheds a request at the given priority. On admission it
// returns a release function that MUST run on every exit path; callers defer
// it immediately. On rejection release is nil and err is a *ShedError.
func (s *Shedder) Acquire(priority int) (release func(), err error) {
	priority = clampPriority(priority)
	level := s.levelFor(s.active.Load())

	if max, bounded := maxQueueDepth[priority]; bounded && s.queueDepth[priority].Load() >= max {
		s.countShed(priority, ReasonQueueFull)
		return nil, &ShedError{Reason: ReasonQueueFull, Priority: priority, Level: level}
	}
	if shedAtLevel(level, priority) {
		s.countShed(priority, ReasonLoadShed)
		return nil, &ShedError{Reason: ReasonLoadShed, Priority: priority, Level: level}
	}

	s.active.Add(1)
	s.queueDepth[priority].Add(1)

	var released atomic.Bool
	return func() {
		// Idempotent: double release must not skew the counters.
		if released.CompareAndSwap(false, true) {
			s.active.Add(-1)
			s.queueDepth[priority].Add(-1)
		}
	}, nil
}

func (s *Shedder) countShed(priority int, reason Reason) {
	key := s.now().UTC().Format("2006-01-02") + ":p" + string(rune('0'+priority))
	ctr, _ := s.shedCounts.LoadOrStore(key, new(atomic.Int64))
	ctr.Add(1)
	if s.OnShed != nil {
		s.OnShed(priority, reason)
	}
}

// State is a snapshot for the load-monitoring endpoint.
type State struct {
	LoadLevel       Level         `json:"loadLevel"`
	ActiveRequests  int64         `json:"activeRequests"`
	MaxConcurrent   int64         `json:"maxConcurrent"`
	LoadPercent     float64       `json:"loadPercent"`
	QueueDepths     map[int]int64 `json:"queueDepths"`
	TodayShedCounts map[int]int64 `json:"todayShedCounts"`
}

// Snapshot returns the current load state.
func (s *Shedder) Snapshot() State {
	active := s.active.Load()
	st := State{
		LoadLevel:       s.levelFor(active),
		ActiveRequests:  active,
		MaxConcurrent:   s.maxConcurrent,
		LoadPercent:     float64(active) / float64(s.maxConcurrent) * 100,
		QueueDepths:     make(map[int]int64, 4),
		TodayShedCounts: make(map[int]int64, 4),
	}
	day := s.now().UTC().Format("2006-01-02")
	for p := 1; p <= 4; p++ {
		st.QueueDepths[p] = s.queueDepth[p].Load()
		if ctr, ok := s.shedCounts.Load(day + ":p" + string(rune('0'+p))); ok {
			st.TodayShedCounts[p] = ctr.Load()
		}
	}
	return st
}
