// Package projection runs read-model projections over the global event log.
//
// A Manager owns one supervised loop per projection. Each loop resumes from
// the projection's checkpoint, consumes a catch-up subscription, hands every
// mapped domain event to the projection and records the event's position as
// the new checkpoint. When the subscription drops, the loop classifies the
// drop reason: graceful drops end the loop, transient drops restart it from
// a fresh checkpoint read after RestartDelay, and fatal drops end it and
// mark the projection failed. Loops never share state, so a failing
// projection cannot stall its siblings.
package projection

import (
	"context"
	"errors"
	"reflect"
	"time"

	"github.com/alfredjeanlab/marketplace/internal/model"
	"github.com/alfredjeanlab/marketplace/internal/subscription"
)

var (
	ErrEventLogRequired        = errors.New("event log is required")
	ErrCheckpointStoreRequired = errors.New("checkpoint store is required")
	ErrTypeMapperRequired      = errors.New("type mapper is required")
	ErrCodecRequired           = errors.New("codec is required")
	ErrProjectionName          = errors.New("projection name is required")
	ErrDuplicateProjection     = errors.New("duplicate projection name")
	ErrAlreadyActivated        = errors.New("projections already activated")
)

// Projection maintains a read model from domain events. Handle must be
// idempotent: after a restart the same event may be delivered again.
type Projection interface {
	// Name identifies the projection and keys its checkpoint.
	Name() string
	// Handle applies one decoded event. The context is cancelled when the
	// manager stops.
	Handle(ctx context.Context, event any) error
}

// Checkpoints is the part of the checkpoint store the runtime uses.
type Checkpoints interface {
	GetLastCheckpoint(ctx context.Context, projection string) (model.Position, error)
	SetCheckpoint(ctx context.Context, projection string, pos model.Position) error
}

// Resolver maps wire type names to payload types.
type Resolver interface {
	Resolve(wire string) (reflect.Type, bool)
}

// Decoder turns stored payload bytes into a value of the given type.
type Decoder interface {
	Deserialize(data []byte, t reflect.Type) (any, error)
}

// SkipPolicy decides whether an event with an unmapped type advances the
// checkpoint.
type SkipPolicy int

const (
	// SkipAndCheckpoint records the skipped event's position.
	SkipAndCheckpoint SkipPolicy = iota
	// SkipWithoutCheckpoint leaves the checkpoint where it was.
	SkipWithoutCheckpoint
)

// Config tunes the runtime. Zero fields take the defaults of DefaultConfig.
type Config struct {
	MaxLiveQueueSize int
	ReadBatchSize    int
	// Verbose logs every batch read by the subscriptions.
	Verbose      bool
	RestartDelay time.Duration
	// PollInterval is the live-phase polling period; negative disables
	// polling when a watcher is configured.
	PollInterval time.Duration
	Skipped      SkipPolicy
}

// DefaultConfig returns the runtime defaults.
func DefaultConfig() Config {
	return Config{
		MaxLiveQueueSize: subscription.DefaultMaxLiveQueueSize,
		ReadBatchSize:    subscription.DefaultReadBatchSize,
		RestartDelay:     time.Second,
		PollInterval:     subscription.DefaultPollInterval,
		Skipped:          SkipAndCheckpoint,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxLiveQueueSize <= 0 {
		c.MaxLiveQueueSize = d.MaxLiveQueueSize
	}
	if c.ReadBatchSize <= 0 {
		c.ReadBatchSize = d.ReadBatchSize
	}
	if c.RestartDelay <= 0 {
		c.RestartDelay = d.RestartDelay
	}
	if c.PollInterval == 0 {
		c.PollInterval = d.PollInterval
	}
	return c
}
