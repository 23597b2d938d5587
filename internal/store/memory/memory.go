// Package memory implements store.Store in process memory. It backs tests
// and the single-process "memory" storage mode.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alfredjeanlab/marketplace/internal/model"
	"github.com/alfredjeanlab/marketplace/internal/store"
)

// Store is an in-memory store.Store.
type Store struct {
	mu           sync.RWMutex
	events       []*model.Event
	versions     map[string]int64
	checkpoints  map[string]*model.Checkpoint
	ownerAds     map[string]*model.OwnerAd
	availableAds map[string]*model.AvailableAd
	now          func() time.Time
}

var _ store.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		versions:     make(map[string]int64),
		checkpoints:  make(map[string]*model.Checkpoint),
		ownerAds:     make(map[string]*model.OwnerAd),
		availableAds: make(map[string]*model.AvailableAd),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Close() error { return nil }

// AppendRaw appends events with explicit types and data to a stream without
// a concurrency check. Tests use it to seed system events and gaps.
func (s *Store) AppendRaw(streamID string, events ...model.NewEvent) model.Position {
	pos, _ := s.AppendToStream(context.Background(), streamID, store.ExpectedAny, events)
	return pos
}

// SkipPositions advances the global position counter without writing
// events, mimicking positions that belong to other log partitions.
func (s *Store) SkipPositions(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < n; i++ {
		s.events = append(s.events, nil)
	}
}

func (s *Store) AppendToStream(ctx context.Context, streamID string, expectedVersion int64, events []model.NewEvent) (model.Position, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if strings.TrimSpace(streamID) == "" {
		return 0, fmt.Errorf("stream id is required")
	}
	if len(events) == 0 {
		return 0, fmt.Errorf("no events to append to %s", streamID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.versions[streamID]
	if expectedVersion != store.ExpectedAny && expectedVersion != current {
		return 0, fmt.Errorf("%w: stream %s is at version %d, expected %d",
			store.ErrWrongExpectedVersion, streamID, current, expectedVersion)
	}

	now := s.now()
	for _, e := range events {
		current++
		id := e.ID
		if id == "" {
			id = uuid.NewString()
		}
		s.events = append(s.events, &model.Event{
			ID:            id,
			Position:      model.Position(len(s.events) + 1),
			StreamID:      streamID,
			StreamVersion: current,
			Type:          e.Type,
			Data:          append([]byte(nil), e.Data...),
			CreatedAt:     now,
		})
	}
	s.versions[streamID] = current
	return model.Position(len(s.events)), nil
}

func (s *Store) ReadAll(ctx context.Context, after model.Position, limit int) ([]*model.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("read limit must be positive, got %d", limit)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*model.Event
	for i := int(after); i < len(s.events) && len(out) < limit; i++ {
		if e := s.events[i]; e != nil {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *Store) ReadStream(ctx context.Context, streamID string) ([]*model.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*model.Event
	for _, e := range s.events {
		if e != nil && e.StreamID == streamID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

// Head returns the position of the last event in the log.
func (s *Store) Head() model.Position {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return model.Position(len(s.events))
}

func (s *Store) GetLastCheckpoint(ctx context.Context, projection string) (model.Position, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if projection == "" {
		return 0, store.ErrProjectionRequired
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp, ok := s.checkpoints[projection]
	if !ok {
		return 0, store.ErrCheckpointNotFound
	}
	return cp.Position, nil
}

func (s *Store) SetCheckpoint(ctx context.Context, projection string, pos model.Position) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if projection == "" {
		return store.ErrProjectionRequired
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkpoints[projection] = &model.Checkpoint{Projection: projection, Position: pos, UpdatedAt: s.now()}
	return nil
}

func (s *Store) ListCheckpoints(ctx context.Context) ([]*model.Checkpoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.Checkpoint, 0, len(s.checkpoints))
	for _, cp := range s.checkpoints {
		c := *cp
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Projection < out[j].Projection })
	return out, nil
}

func (s *Store) DeleteCheckpoint(ctx context.Context, projection string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if projection == "" {
		return store.ErrProjectionRequired
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.checkpoints[projection]; !ok {
		return store.ErrCheckpointNotFound
	}
	delete(s.checkpoints, projection)
	return nil
}

func (s *Store) UpdateOwnerAd(ctx context.Context, adID string, fn func(ad *model.OwnerAd)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ad := &model.OwnerAd{AdID: adID, Status: model.AdStatusDraft}
	if cur, ok := s.ownerAds[adID]; ok {
		c := *cur
		ad = &c
	}
	fn(ad)
	ad.AdID = adID
	ad.UpdatedAt = s.now()
	s.ownerAds[adID] = ad
	return nil
}

func (s *Store) ListOwnerAds(ctx context.Context, ownerID string) ([]*model.OwnerAd, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.OwnerAd
	for _, ad := range s.ownerAds {
		if ownerID != "" && ad.OwnerID != ownerID {
			continue
		}
		c := *ad
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OwnerID != out[j].OwnerID {
			return out[i].OwnerID < out[j].OwnerID
		}
		return out[i].AdID < out[j].AdID
	})
	return out, nil
}

func (s *Store) UpdateAvailableAd(ctx context.Context, adID string, fn func(ad *model.AvailableAd)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ad := &model.AvailableAd{AdID: adID}
	if cur, ok := s.availableAds[adID]; ok {
		c := *cur
		ad = &c
	}
	fn(ad)
	ad.AdID = adID
	ad.UpdatedAt = s.now()
	s.availableAds[adID] = ad
	return nil
}

func (s *Store) ListAvailableAds(ctx context.Context, onlyAvailable bool) ([]*model.AvailableAd, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.AvailableAd
	for _, ad := range s.availableAds {
		if onlyAvailable && !ad.Available {
			continue
		}
		c := *ad
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AdID < out[j].AdID })
	return out, nil
}
