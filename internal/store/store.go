package store

import (
	"context"
	"errors"

	"github.com/alfredjeanlab/marketplace/internal/model"
)

// Expected stream versions accepted by AppendToStream in addition to a
// concrete version number.
const (
	// ExpectedAny skips the concurrency check.
	ExpectedAny int64 = -1
	// ExpectedNoStream requires that the stream has no events yet.
	ExpectedNoStream int64 = 0
)

var (
	// ErrCheckpointNotFound indicates that a projection has never recorded
	// a checkpoint.
	ErrCheckpointNotFound = errors.New("checkpoint not found")
	// ErrWrongExpectedVersion indicates an optimistic concurrency conflict
	// on append.
	ErrWrongExpectedVersion = errors.New("wrong expected stream version")
	// ErrProjectionRequired indicates an empty projection name.
	ErrProjectionRequired = errors.New("projection name is required")
)

// EventLog is the append-only, globally ordered event log.
type EventLog interface {
	// AppendToStream appends events to a stream and returns the global
	// position of the last appended event.
	AppendToStream(ctx context.Context, streamID string, expectedVersion int64, events []model.NewEvent) (model.Position, error)
	// ReadAll returns up to limit events with a position strictly greater
	// than after, in position order.
	ReadAll(ctx context.Context, after model.Position, limit int) ([]*model.Event, error)
	// ReadStream returns every event of one stream in version order. An
	// unknown stream yields no events and no error.
	ReadStream(ctx context.Context, streamID string) ([]*model.Event, error)
}

// CheckpointStore persists projection progress. Implementations must be
// safe for concurrent use by different projections.
type CheckpointStore interface {
	// GetLastCheckpoint returns ErrCheckpointNotFound when the projection
	// has not recorded any progress.
	GetLastCheckpoint(ctx context.Context, projection string) (model.Position, error)
	SetCheckpoint(ctx context.Context, projection string, pos model.Position) error
	ListCheckpoints(ctx context.Context) ([]*model.Checkpoint, error)
	DeleteCheckpoint(ctx context.Context, projection string) error
}

// ReadModelStore holds the materialized views maintained by projections.
// Update functions receive the current document (a zero document with only
// the id set when none exists) and mutate it in place; the result is saved
// atomically.
type ReadModelStore interface {
	UpdateOwnerAd(ctx context.Context, adID string, fn func(ad *model.OwnerAd)) error
	// ListOwnerAds lists the ads of one owner, or of all owners when
	// ownerID is empty.
	ListOwnerAds(ctx context.Context, ownerID string) ([]*model.OwnerAd, error)

	UpdateAvailableAd(ctx context.Context, adID string, fn func(ad *model.AvailableAd)) error
	// ListAvailableAds lists ad documents; onlyAvailable filters out drafts
	// and sold ads.
	ListAvailableAds(ctx context.Context, onlyAvailable bool) ([]*model.AvailableAd, error)
}

// Store bundles every persistence concern of the service.
type Store interface {
	EventLog
	CheckpointStore
	ReadModelStore

	Close() error
}
