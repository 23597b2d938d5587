// Package subscription implements catch-up subscriptions over the global
// event log: historical events after a position are replayed in batches,
// then the subscription follows the log live. Events reach the consumer
// through a bounded channel; a consumer that falls too far behind in the
// live phase drops the subscription with ProcessingQueueOverflow.
package subscription

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/alfredjeanlab/marketplace/internal/events"
	"github.com/alfredjeanlab/marketplace/internal/logging"
	"github.com/alfredjeanlab/marketplace/internal/model"
)

// Defaults applied to zero Settings fields.
const (
	DefaultMaxLiveQueueSize = 10000
	DefaultReadBatchSize    = 500
	DefaultPollInterval     = time.Second
)

var errQueueOverflow = errors.New("live queue is full")

// Reader reads the global log in position order.
type Reader interface {
	ReadAll(ctx context.Context, after model.Position, limit int) ([]*model.Event, error)
}

// Settings tune a subscription.
type Settings struct {
	// Name labels log records.
	Name string
	// MaxLiveQueueSize bounds the events channel.
	MaxLiveQueueSize int
	// ReadBatchSize is the page size of every log read.
	ReadBatchSize int
	// PollInterval is how often the live phase re-reads the log without a
	// notification. Negative disables polling.
	PollInterval time.Duration
	// Verbose logs every batch read.
	Verbose bool
}

func (s Settings) withDefaults() Settings {
	if s.MaxLiveQueueSize <= 0 {
		s.MaxLiveQueueSize = DefaultMaxLiveQueueSize
	}
	if s.ReadBatchSize <= 0 {
		s.ReadBatchSize = DefaultReadBatchSize
	}
	if s.PollInterval == 0 {
		s.PollInterval = DefaultPollInterval
	}
	return s
}

// Subscription is one running catch-up subscription.
type Subscription struct {
	settings Settings
	reader   Reader
	watcher  events.Watcher
	logger   *slog.Logger

	events chan *model.Event
	live   chan struct{}
	done   chan struct{}
	cancel context.CancelFunc

	dropOnce sync.Once
	drop     Drop
}

// Start opens a subscription delivering every event after from. The watcher
// may be nil, in which case the live phase relies on polling alone.
func Start(ctx context.Context, reader Reader, watcher events.Watcher, from model.Position, settings Settings, logger *slog.Logger) *Subscription {
	settings = settings.withDefaults()
	if logger == nil {
		logger = logging.Discard()
	}
	ctx, cancel := context.WithCancel(ctx)
	s := &Subscription{
		settings: settings,
		reader:   reader,
		watcher:  watcher,
		logger:   logger,
		events:   make(chan *model.Event, settings.MaxLiveQueueSize),
		live:     make(chan struct{}),
		done:     make(chan struct{}),
		cancel:   cancel,
	}
	go s.run(ctx, from)
	return s
}

// Events delivers events in position order. The channel is never closed;
// select on Done to learn that no more events will arrive.
func (s *Subscription) Events() <-chan *model.Event { return s.events }

// Live is closed once every historical event has been queued.
func (s *Subscription) Live() <-chan struct{} { return s.live }

// Done is closed when the subscription has stopped.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Drop reports why the subscription stopped. It is only meaningful after
// Done is closed.
func (s *Subscription) Drop() Drop {
	<-s.done
	return s.drop
}

// Stop drops the subscription with UserInitiated.
func (s *Subscription) Stop() {
	s.Close(UserInitiated, nil)
}

// Close drops the subscription with the given reason unless it has already
// dropped, and waits for it to stop.
func (s *Subscription) Close(reason DropReason, err error) {
	s.setDrop(reason, err)
	s.cancel()
	<-s.done
}

func (s *Subscription) setDrop(reason DropReason, err error) {
	s.dropOnce.Do(func() {
		s.drop = Drop{Reason: reason, Err: err}
	})
}

// fail records a drop caused by the subscription itself. Errors observed
// after cancellation are reported as UserInitiated.
func (s *Subscription) fail(ctx context.Context, reason DropReason, err error) {
	if ctx.Err() != nil {
		s.setDrop(UserInitiated, nil)
		return
	}
	s.setDrop(reason, err)
}

func (s *Subscription) run(ctx context.Context, from model.Position) {
	defer close(s.done)
	defer s.cancel()

	pos := from
	var err error
	if pos, err = s.catchUp(ctx, pos); err != nil {
		s.fail(ctx, CatchUpError, err)
		return
	}

	var notify <-chan model.Position
	if s.watcher != nil {
		ch, stop, err := s.watcher.Watch(ctx)
		if err != nil {
			s.fail(ctx, SubscribingError, err)
			return
		}
		defer stop()
		notify = ch
	}

	// Events appended between the first catch-up and the watch are picked
	// up here.
	if pos, err = s.catchUp(ctx, pos); err != nil {
		s.fail(ctx, CatchUpError, err)
		return
	}
	close(s.live)

	var tick <-chan time.Time
	if s.settings.PollInterval > 0 {
		ticker := time.NewTicker(s.settings.PollInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			s.setDrop(UserInitiated, nil)
			return
		case _, ok := <-notify:
			if !ok {
				s.fail(ctx, ConnectionClosed, errors.New("notification channel closed"))
				return
			}
		case <-tick:
		}

		if pos, err = s.follow(ctx, pos); err != nil {
			if errors.Is(err, errQueueOverflow) {
				s.fail(ctx, ProcessingQueueOverflow, err)
			} else {
				s.fail(ctx, ServerError, err)
			}
			return
		}
	}
}

// catchUp reads every event after pos, blocking on a full queue.
func (s *Subscription) catchUp(ctx context.Context, pos model.Position) (model.Position, error) {
	for {
		batch, err := s.read(ctx, pos)
		if err != nil {
			return pos, err
		}
		for _, e := range batch {
			select {
			case s.events <- e:
				pos = e.Position
			case <-ctx.Done():
				return pos, ctx.Err()
			}
		}
		if len(batch) < s.settings.ReadBatchSize {
			return pos, nil
		}
	}
}

// follow reads every event after pos without blocking on the queue.
func (s *Subscription) follow(ctx context.Context, pos model.Position) (model.Position, error) {
	for {
		batch, err := s.read(ctx, pos)
		if err != nil {
			return pos, err
		}
		for _, e := range batch {
			select {
			case s.events <- e:
				pos = e.Position
			default:
				return pos, errQueueOverflow
			}
		}
		if len(batch) < s.settings.ReadBatchSize {
			return pos, nil
		}
	}
}

func (s *Subscription) read(ctx context.Context, after model.Position) ([]*model.Event, error) {
	batch, err := s.reader.ReadAll(ctx, after, s.settings.ReadBatchSize)
	if err != nil {
		return nil, err
	}
	if s.settings.Verbose && len(batch) > 0 {
		s.logger.Log(ctx, logging.LevelVerbose, "read batch",
			"projection", s.settings.Name,
			"after", after,
			"count", len(batch))
	}
	return batch, nil
}
