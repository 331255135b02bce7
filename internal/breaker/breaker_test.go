package breaker

import (
	"testing"
	"time"
)

const svc = "google_places"

func newTestBreaker(threshold int, delay time.Duration) (*Breaker, *time.Time) {
	b := New(Config{FailureThreshold: threshold, HalfOpenDelay: delay})
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return now }
	return b, &now
}

func TestOpensAtThreshold(t *testing.T) {
	b, _ := newTestBreaker(5, 30*time.Second)

	for i := 0; i < 4; i++ {
		b.RecordFailure(svc)
		if !b.Closed(svc) {
			t.Fatalf("circuit opened after %d failures", i+1)
		}
	}
	b.RecordFailure(svc)
	if b.Closed(svc) {
		t.Fatal("circuit should open at the fifth consecutive failure")
	}
	if admitted, _ := b.Allow(svc); admitted {
		t.Fatal("open circuit must reject requests")
	}
}

func TestSuccessResetsFailureCount(t *testing.T) {
	b, _ := newTestBreaker(5, 30*time.Second)

	for i := 0; i < 4; i++ {
		b.RecordFailure(svc)
	}
	b.RecordSuccess(svc)
	for i := 0; i < 4; i++ {
		b.RecordFailure(svc)
	}
	if !b.Closed(svc) {
		t.Fatal("non-consecutive failures must not open the circuit")
	}
}

func TestHalfOpenAdmitsSingleProbe(t *testing.T) {
	b, now := newTestBreaker(2, 30*time.Second)

	b.RecordFailure(svc)
	b.RecordFailure(svc)

	// Still inside the open window.
	*now = now.Add(10 * time.Second)
	if admitted, _ := b.Allow(svc); admitted {
		t.Fatal("admitted before half-open delay elapsed")
	}

	*now = now.Add(25 * time.Second)
	admitted, probe := b.Allow(svc)
	if !admitted || !probe {
		t.Fatalf("first caller after delay: admitted=%v probe=%v", admitted, probe)
	}
	if b.Snapshot(svc).State != StateHalfOpen {
		t.Fatalf("state: got %s", b.Snapshot(svc).State)
	}

	// Concurrent callers are rejected while the probe is in flight.
	if admitted, _ := b.Allow(svc); admitted {
		t.Fatal("second caller admitted during probe")
	}
}

func TestProbeSuccessCloses(t *testing.T) {
	b, now := newTestBreaker(2, 30*time.Second)
	b.RecordFailure(svc)
	b.RecordFailure(svc)
	*now = now.Add(time.Minute)

	if admitted, _ := b.Allow(svc); !admitted {
		t.Fatal("probe not admitted")
	}
	b.RecordSuccess(svc)
	if !b.Closed(svc) {
		t.Fatal("probe success must close the circuit")
	}
	if admitted, probe := b.Allow(svc); !admitted || probe {
		t.Fatalf("closed circuit: admitted=%v probe=%v", admitted, probe)
	}
}

func TestProbeFailureReopens(t *testing.T) {
	b, now := newTestBreaker(2, 30*time.Second)
	b.RecordFailure(svc)
	b.RecordFailure(svc)
	*now = now.Add(time.Minute)

	if admitted, _ := b.Allow(svc); !admitted {
		t.Fatal("probe not admitted")
	}
	b.RecordFailure(svc)

	snap := b.Snapshot(svc)
	if snap.State != StateOpen {
		t.Fatalf("state after failed probe: got %s", snap.State)
	}
	// The open window restarts from the probe failure.
	if admitted, _ := b.Allow(svc); admitted {
		t.Fatal("admitted immediately after failed probe")
	}
	*now = now.Add(31 * time.Second)
	if admitted, probe := b.Allow(svc); !admitted || !probe {
		t.Fatal("next probe not admitted after renewed delay")
	}
}

func TestCircuitsAreIndependent(t *testing.T) {
	b, _ := newTestBreaker(1, 30*time.Second)
	b.RecordFailure("flaky")
	if b.Closed("flaky") {
		t.Fatal("flaky circuit should be open")
	}
	if !b.Closed(svc) {
		t.Fatal("unrelated circuit tripped")
	}
}

func TestSnapshotTimestamps(t *testing.T) {
	b, now := newTestBreaker(5, 30*time.Second)
	b.RecordSuccess(svc)
	wantSuccess := *now
	*now = now.Add(time.Minute)
	b.RecordFailure(svc)

	snap := b.Snapshot(svc)
	if !snap.LastSuccessAt.Equal(wantSuccess) {
		t.Fatalf("LastSuccessAt: got %v", snap.LastSuccessAt)
	}
	if !snap.LastFailureAt.Equal(*now) {
		t.Fatalf("LastFailureAt: got %v", snap.LastFailureAt)
	}
	if snap.ConsecutiveFailures != 1 {
		t.Fatalf("ConsecutiveFailures: got %d", snap.ConsecutiveFailures)
	}
}
