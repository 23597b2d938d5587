// Package status tracks the live state of every projection for the
// operational surfaces (HTTP, gRPC health, CLI).
//
// The projection manager reports phase changes and progress directly;
// readers get sorted snapshots. Nothing in here feeds back into the
// runtime's control flow.
package status

import (
	"sort"
	"sync"
	"time"

	"github.com/alfredjeanlab/marketplace/internal/model"
)

// Phase is the lifecycle phase of one projection.
type Phase string

const (
	PhaseStarting   Phase = "starting"
	PhaseCatchingUp Phase = "catching_up"
	PhaseLive       Phase = "live"
	PhaseRestarting Phase = "restarting"
	PhaseStopped    Phase = "stopped"
	PhaseFailed     Phase = "failed"
)

// Entry is a snapshot of one projection's state.
type Entry struct {
	Projection string         `json:"projection"`
	Phase      Phase          `json:"phase"`
	Position   model.Position `json:"position"`
	Restarts   int            `json:"restarts"`
	Processed  int64          `json:"processed"`
	LastReason string         `json:"last_reason,omitempty"`
	LastError  string         `json:"last_error,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// Tracker holds the state of every projection. The zero value is not
// usable; call New.
type Tracker struct {
	mu        sync.RWMutex
	entries   map[string]*Entry
	listeners []func(Entry)
	now       func() time.Time
}

// New creates an empty tracker.
func New() *Tracker {
	return &Tracker{
		entries: make(map[string]*Entry),
		now:     time.Now,
	}
}

// OnChange registers fn to be called after every change. Listeners run
// outside the lock, on the goroutine that made the change.
func (t *Tracker) OnChange(fn func(Entry)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listeners = append(t.listeners, fn)
}

// SetPhase moves a projection to a new phase.
func (t *Tracker) SetPhase(projection string, phase Phase) {
	t.update(projection, func(e *Entry) {
		e.Phase = phase
		if phase == PhaseStarting && e.StartedAt.IsZero() {
			e.StartedAt = e.UpdatedAt
		}
	})
}

// Advance records that the projection has processed pos.
func (t *Tracker) Advance(projection string, pos model.Position) {
	t.update(projection, func(e *Entry) {
		e.Position = pos
		e.Processed++
	})
}

// SetPosition records the checkpoint a projection resumed from.
func (t *Tracker) SetPosition(projection string, pos model.Position) {
	t.update(projection, func(e *Entry) { e.Position = pos })
}

// Dropped records a subscription drop and the phase that follows it.
func (t *Tracker) Dropped(projection, reason string, err error, next Phase) {
	t.update(projection, func(e *Entry) {
		e.Phase = next
		e.LastReason = reason
		e.LastError = ""
		if err != nil {
			e.LastError = err.Error()
		}
		if next == PhaseRestarting {
			e.Restarts++
		}
	})
}

func (t *Tracker) update(projection string, fn func(e *Entry)) {
	t.mu.Lock()
	e, ok := t.entries[projection]
	if !ok {
		e = &Entry{Projection: projection}
		t.entries[projection] = e
	}
	e.UpdatedAt = t.now()
	fn(e)
	snapshot := *e
	listeners := t.listeners
	t.mu.Unlock()

	for _, fn := range listeners {
		fn(snapshot)
	}
}

// Get returns the state of one projection.
func (t *Tracker) Get(projection string) (Entry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.entries[projection]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Snapshot returns every projection sorted by name.
func (t *Tracker) Snapshot() []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	entries := make([]Entry, 0, len(t.entries))
	for _, e := range t.entries {
		entries = append(entries, *e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Projection < entries[j].Projection
	})
	return entries
}

// Healthy reports whether no projection has failed.
func (t *Tracker) Healthy() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, e := range t.entries {
		if e.Phase == PhaseFailed {
			return false
		}
	}
	return true
}
