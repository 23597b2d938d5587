package projection

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alfredjeanlab/marketplace/internal/codec"
	"github.com/alfredjeanlab/marketplace/internal/events"
	"github.com/alfredjeanlab/marketplace/internal/model"
	"github.com/alfredjeanlab/marketplace/internal/status"
	"github.com/alfredjeanlab/marketplace/internal/store/memory"
	"github.com/alfredjeanlab/marketplace/internal/subscription"
	"github.com/alfredjeanlab/marketplace/internal/typemap"
)

const (
	wireRegistered = "Marketplace.V1.ClassifiedAdRegistered"
	wireSold       = "Marketplace.V1.ClassifiedAdMarkedAsSold"
	waitTimeout    = 3 * time.Second
)

type adRegistered struct {
	ID  string
	Seq int
}

type adSold struct {
	ID string
}

// --- logging ---

type logRecord struct {
	Level   slog.Level
	Message string
	Attrs   map[string]any
}

// recorder is a slog.Handler that keeps every record.
type recorder struct {
	mu      *sync.Mutex
	records *[]logRecord
	attrs   []slog.Attr
}

func newRecorder() *recorder {
	return &recorder{mu: &sync.Mutex{}, records: &[]logRecord{}}
}

func (r *recorder) Enabled(context.Context, slog.Level) bool { return true }

func (r *recorder) Handle(_ context.Context, rec slog.Record) error {
	attrs := make(map[string]any, len(r.attrs)+rec.NumAttrs())
	for _, a := range r.attrs {
		attrs[a.Key] = a.Value.Any()
	}
	rec.Attrs(func(a slog.Attr) bool {
		attrs[a.Key] = a.Value.Any()
		return true
	})
	r.mu.Lock()
	*r.records = append(*r.records, logRecord{Level: rec.Level, Message: rec.Message, Attrs: attrs})
	r.mu.Unlock()
	return nil
}

func (r *recorder) WithAttrs(as []slog.Attr) slog.Handler {
	attrs := append(append([]slog.Attr{}, r.attrs...), as...)
	return &recorder{mu: r.mu, records: r.records, attrs: attrs}
}

func (r *recorder) WithGroup(string) slog.Handler { return r }

func (r *recorder) find(level slog.Level, projection string) []logRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []logRecord
	for _, rec := range *r.records {
		if rec.Level == level && rec.Attrs["projection"] == projection {
			out = append(out, rec)
		}
	}
	return out
}

// --- projections ---

// recordingProjection remembers every event it handled. failOn lets a test
// inject one failure per Seq value.
type recordingProjection struct {
	name string

	mu      sync.Mutex
	handled []any
	failOn  map[int]error
	panicOn map[int]bool
}

func newRecordingProjection(name string) *recordingProjection {
	return &recordingProjection{name: name, failOn: map[int]error{}, panicOn: map[int]bool{}}
}

func (p *recordingProjection) Name() string { return p.name }

func (p *recordingProjection) Handle(_ context.Context, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handled = append(p.handled, event)
	if e, ok := event.(adRegistered); ok {
		if err, ok := p.failOn[e.Seq]; ok {
			delete(p.failOn, e.Seq)
			return err
		}
		if p.panicOn[e.Seq] {
			delete(p.panicOn, e.Seq)
			panic("read model exploded")
		}
	}
	return nil
}

func (p *recordingProjection) events() []any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]any(nil), p.handled...)
}

func (p *recordingProjection) seqs() []int {
	var out []int
	for _, e := range p.events() {
		if r, ok := e.(adRegistered); ok {
			out = append(out, r.Seq)
		}
	}
	return out
}

// --- checkpoints ---

// spyCheckpoints wraps a store and records checkpoint traffic.
type spyCheckpoints struct {
	Checkpoints

	mu     sync.Mutex
	gets   map[string]int
	sets   map[string][]model.Position
	getErr error
}

func newSpyCheckpoints(inner Checkpoints) *spyCheckpoints {
	return &spyCheckpoints{Checkpoints: inner, gets: map[string]int{}, sets: map[string][]model.Position{}}
}

func (s *spyCheckpoints) GetLastCheckpoint(ctx context.Context, projection string) (model.Position, error) {
	s.mu.Lock()
	s.gets[projection]++
	err := s.getErr
	s.mu.Unlock()
	if err != nil {
		return 0, err
	}
	return s.Checkpoints.GetLastCheckpoint(ctx, projection)
}

func (s *spyCheckpoints) SetCheckpoint(ctx context.Context, projection string, pos model.Position) error {
	s.mu.Lock()
	s.sets[projection] = append(s.sets[projection], pos)
	s.mu.Unlock()
	return s.Checkpoints.SetCheckpoint(ctx, projection, pos)
}

func (s *spyCheckpoints) getCount(projection string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gets[projection]
}

func (s *spyCheckpoints) setCalls(projection string) []model.Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Position(nil), s.sets[projection]...)
}

// --- fake subscriptions ---

type fakeStream struct {
	events chan *model.Event
	live   chan struct{}
	done   chan struct{}
	once   sync.Once
	drop   subscription.Drop
}

func newFakeStream() *fakeStream {
	return &fakeStream{
		events: make(chan *model.Event),
		live:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// droppedStream has already ended with the given reason.
func droppedStream(reason subscription.DropReason) *fakeStream {
	s := newFakeStream()
	s.end(reason, errors.New("injected drop"))
	return s
}

// idleStream is live and ends when ctx is cancelled.
func idleStream(ctx context.Context) *fakeStream {
	s := newFakeStream()
	close(s.live)
	go func() {
		select {
		case <-ctx.Done():
			s.end(subscription.UserInitiated, nil)
		case <-s.done:
		}
	}()
	return s
}

func (s *fakeStream) end(reason subscription.DropReason, err error) {
	s.once.Do(func() {
		s.drop = subscription.Drop{Reason: reason, Err: err}
		close(s.done)
	})
}

func (s *fakeStream) Events() <-chan *model.Event { return s.events }
func (s *fakeStream) Live() <-chan struct{}       { return s.live }
func (s *fakeStream) Done() <-chan struct{}       { return s.done }

func (s *fakeStream) Drop() subscription.Drop {
	<-s.done
	return s.drop
}

func (s *fakeStream) Close(reason subscription.DropReason, err error) { s.end(reason, err) }

// --- fixtures ---

type fixture struct {
	log         *memory.Store
	bus         *events.MemoryBus
	checkpoints *spyCheckpoints
	types       *typemap.Mapper
	logs        *recorder
	status      *status.Tracker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := memory.New()
	types := typemap.New()
	if err := errors.Join(
		typemap.Map[adRegistered](types, wireRegistered),
		typemap.Map[adSold](types, wireSold),
	); err != nil {
		t.Fatalf("map types: %v", err)
	}
	return &fixture{
		log:         log,
		bus:         events.NewMemoryBus(),
		checkpoints: newSpyCheckpoints(log),
		types:       types,
		logs:        newRecorder(),
		status:      status.New(),
	}
}

func (f *fixture) manager(t *testing.T, cfg Config) *Manager {
	t.Helper()
	if cfg.RestartDelay == 0 {
		cfg.RestartDelay = 10 * time.Millisecond
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 10 * time.Millisecond
	}
	m, err := NewManager(Options{
		Log:         f.log,
		Watcher:     f.bus,
		Checkpoints: f.checkpoints,
		Types:       f.types,
		Codec:       codec.JSON{},
		Logger:      slog.New(f.logs),
		Status:      f.status,
		Config:      cfg,
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	t.Cleanup(m.Stop)
	return m
}

func (f *fixture) appendEvent(t *testing.T, wire string, payload any) model.Position {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	pos := f.log.AppendRaw("ClassifiedAd-test", model.NewEvent{Type: wire, Data: data})
	_ = f.bus.Publish(context.Background(), events.TopicLogAppended, events.Appended{Position: pos})
	return pos
}

func (f *fixture) appendRegistered(t *testing.T, seqs ...int) {
	t.Helper()
	for _, seq := range seqs {
		f.appendEvent(t, wireRegistered, adRegistered{ID: "ad", Seq: seq})
	}
}

func (f *fixture) checkpoint(t *testing.T, projection string) model.Position {
	t.Helper()
	pos, err := f.log.GetLastCheckpoint(context.Background(), projection)
	if err != nil {
		return 0
	}
	return pos
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func waitDone(t *testing.T, m *Manager) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		m.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(waitTimeout):
		t.Fatal("projection loops did not finish")
	}
}
