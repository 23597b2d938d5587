package status

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestTracker_Lifecycle(t *testing.T) {
	tr := New()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tr.now = func() time.Time { return now }

	tr.SetPhase("owner-index", PhaseStarting)
	tr.SetPosition("owner-index", 9)
	tr.SetPhase("owner-index", PhaseCatchingUp)
	tr.Advance("owner-index", 10)
	tr.Advance("owner-index", 11)
	tr.SetPhase("owner-index", PhaseLive)

	e, ok := tr.Get("owner-index")
	if !ok {
		t.Fatal("owner-index not tracked")
	}
	if e.Phase != PhaseLive || e.Position != 11 || e.Processed != 2 {
		t.Errorf("unexpected entry: %+v", e)
	}
	if !e.StartedAt.Equal(now) {
		t.Errorf("StartedAt = %v, want %v", e.StartedAt, now)
	}
	if _, ok := tr.Get("missing"); ok {
		t.Error("missing projection should not be tracked")
	}
}

func TestTracker_Dropped(t *testing.T) {
	tr := New()
	tr.Dropped("owner-index", "ServerError", errors.New("connection reset"), PhaseRestarting)
	tr.Dropped("owner-index", "ServerError", errors.New("connection reset"), PhaseRestarting)

	e, _ := tr.Get("owner-index")
	if e.Restarts != 2 || e.LastReason != "ServerError" || e.LastError != "connection reset" {
		t.Errorf("unexpected entry: %+v", e)
	}
	if !tr.Healthy() {
		t.Error("restarting projection should not make the tracker unhealthy")
	}

	tr.Dropped("available-ads", "AccessDenied", nil, PhaseFailed)
	if tr.Healthy() {
		t.Error("failed projection should make the tracker unhealthy")
	}
	e, _ = tr.Get("available-ads")
	if e.Restarts != 0 || e.LastError != "" {
		t.Errorf("unexpected entry: %+v", e)
	}
}

func TestTracker_SnapshotSorted(t *testing.T) {
	tr := New()
	for _, name := range []string{"b", "c", "a"} {
		tr.SetPhase(name, PhaseLive)
	}
	snap := tr.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("got %d entries, want 3", len(snap))
	}
	for i, want := range []string{"a", "b", "c"} {
		if snap[i].Projection != want {
			t.Errorf("snap[%d] = %q, want %q", i, snap[i].Projection, want)
		}
	}
}

func TestTracker_OnChange(t *testing.T) {
	tr := New()
	var (
		mu     sync.Mutex
		phases []Phase
	)
	tr.OnChange(func(e Entry) {
		mu.Lock()
		defer mu.Unlock()
		phases = append(phases, e.Phase)
		// Listeners may read the tracker.
		_ = tr.Healthy()
	})

	tr.SetPhase("owner-index", PhaseStarting)
	tr.SetPhase("owner-index", PhaseLive)

	mu.Lock()
	defer mu.Unlock()
	if len(phases) != 2 || phases[1] != PhaseLive {
		t.Fatalf("phases = %v", phases)
	}
}

func TestTracker_Concurrent(t *testing.T) {
	tr := New()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				tr.Advance("owner-index", 1)
				_ = tr.Snapshot()
			}
		}()
	}
	wg.Wait()

	e, _ := tr.Get("owner-index")
	if e.Processed != 1000 {
		t.Errorf("Processed = %d, want 1000", e.Processed)
	}
}
