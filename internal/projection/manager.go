package projection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/errgroup"

	"github.com/alfredjeanlab/marketplace/internal/events"
	"github.com/alfredjeanlab/marketplace/internal/logging"
	"github.com/alfredjeanlab/marketplace/internal/model"
	"github.com/alfredjeanlab/marketplace/internal/status"
	"github.com/alfredjeanlab/marketplace/internal/store"
	"github.com/alfredjeanlab/marketplace/internal/subscription"
)

// Options wires a Manager to its collaborators.
type Options struct {
	// Log is read by every subscription. Required.
	Log subscription.Reader
	// Watcher wakes live subscriptions on appends. Optional; without it
	// subscriptions poll.
	Watcher     events.Watcher
	Checkpoints Checkpoints
	Types       Resolver
	Codec       Decoder
	Logger      *slog.Logger
	// Status receives phase and progress updates. Optional.
	Status *status.Tracker
	Config Config
}

// stream is the consumer side of a subscription.
type stream interface {
	Events() <-chan *model.Event
	Live() <-chan struct{}
	Done() <-chan struct{}
	Drop() subscription.Drop
	Close(reason subscription.DropReason, err error)
}

type openFunc func(ctx context.Context, from model.Position, settings subscription.Settings) stream

// Manager runs and supervises projections.
type Manager struct {
	checkpoints Checkpoints
	types       Resolver
	codec       Decoder
	logger      *slog.Logger
	status      *status.Tracker
	cfg         Config
	open        openFunc

	mu        sync.Mutex
	activated bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewManager validates the options and returns an idle manager.
func NewManager(opts Options) (*Manager, error) {
	switch {
	case opts.Log == nil:
		return nil, ErrEventLogRequired
	case opts.Checkpoints == nil:
		return nil, ErrCheckpointStoreRequired
	case opts.Types == nil:
		return nil, ErrTypeMapperRequired
	case opts.Codec == nil:
		return nil, ErrCodecRequired
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	tracker := opts.Status
	if tracker == nil {
		tracker = status.New()
	}

	reader, watcher := opts.Log, opts.Watcher
	return &Manager{
		checkpoints: opts.Checkpoints,
		types:       opts.Types,
		codec:       opts.Codec,
		logger:      logger,
		status:      tracker,
		cfg:         opts.Config.withDefaults(),
		open: func(ctx context.Context, from model.Position, settings subscription.Settings) stream {
			return subscription.Start(ctx, reader, watcher, from, settings, logger)
		},
	}, nil
}

// Activate starts every projection. The initial checkpoint lookups run
// concurrently; if any fails, nothing is started and the error is returned.
// Activate returns once all loops are running. Cancelling ctx stops them,
// as does Stop.
func (m *Manager) Activate(ctx context.Context, projections ...Projection) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.activated {
		return ErrAlreadyActivated
	}
	seen := make(map[string]bool, len(projections))
	for _, p := range projections {
		name := p.Name()
		if name == "" {
			return ErrProjectionName
		}
		if seen[name] {
			return fmt.Errorf("%w: %s", ErrDuplicateProjection, name)
		}
		seen[name] = true
	}

	positions := make([]model.Position, len(projections))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range projections {
		g.Go(func() error {
			pos, err := m.resumePosition(gctx, p.Name())
			if err != nil {
				return fmt.Errorf("load checkpoint for %s: %w", p.Name(), err)
			}
			positions[i] = pos
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.activated = true

	for i, p := range projections {
		m.status.SetPhase(p.Name(), status.PhaseStarting)
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.supervise(runCtx, p, positions[i])
		}()
	}

	m.logger.Info("projections activated", "count", len(projections))
	return nil
}

// Stop cancels every projection loop and waits for them to return. An
// in-flight handler call sees its context cancelled and is waited for.
func (m *Manager) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	m.wg.Wait()
}

// Wait blocks until every projection loop has returned.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Statuses returns the state of every projection, sorted by name.
func (m *Manager) Statuses() []status.Entry {
	return m.status.Snapshot()
}

func (m *Manager) resumePosition(ctx context.Context, name string) (model.Position, error) {
	pos, err := m.checkpoints.GetLastCheckpoint(ctx, name)
	if errors.Is(err, store.ErrCheckpointNotFound) {
		return model.Start, nil
	}
	if err != nil {
		return 0, err
	}
	return pos, nil
}

// supervise runs one projection until a graceful or fatal drop.
func (m *Manager) supervise(ctx context.Context, p Projection, from model.Position) {
	name := p.Name()
	logger := m.logger.With("projection", name)
	delay := backoff.NewConstantBackOff(m.cfg.RestartDelay)

	for attempt := 0; ; attempt++ {
		var (
			drop subscription.Drop
			err  error
		)
		if attempt > 0 {
			from, err = m.resumePosition(ctx, name)
		}
		if err != nil {
			drop = subscription.Drop{Reason: subscription.SubscribingError, Err: fmt.Errorf("load checkpoint: %w", err)}
		} else {
			drop = m.run(ctx, p, from, logger)
		}
		if ctx.Err() != nil {
			drop = subscription.Drop{Reason: subscription.UserInitiated}
		}

		switch drop.Reason.Class() {
		case subscription.Graceful:
			logger.Info("projection stopped gracefully", "reason", drop.Reason)
			m.status.Dropped(name, drop.Reason.String(), nil, status.PhaseStopped)
			return

		case subscription.Transient:
			wait := delay.NextBackOff()
			logger.Error("projection stopped because of a transient error, restarting",
				"reason", drop.Reason, "err", drop.Err, "delay", wait)
			m.status.Dropped(name, drop.Reason.String(), drop.Err, status.PhaseRestarting)
			if !sleep(ctx, wait) {
				logger.Info("projection stopped gracefully", "reason", subscription.UserInitiated)
				m.status.Dropped(name, subscription.UserInitiated.String(), nil, status.PhaseStopped)
				return
			}

		default:
			logger.Log(context.Background(), logging.LevelFatal,
				"projection stopped because of an internal error, not restarting",
				"reason", drop.Reason, "err", drop.Err)
			m.status.Dropped(name, drop.Reason.String(), drop.Err, status.PhaseFailed)
			return
		}
	}
}

// run consumes one subscription from the given position and returns why it
// ended.
func (m *Manager) run(ctx context.Context, p Projection, from model.Position, logger *slog.Logger) subscription.Drop {
	name := p.Name()
	m.status.SetPosition(name, from)
	m.status.SetPhase(name, status.PhaseCatchingUp)
	logger.Debug("projection subscribing", "position", from)

	sub := m.open(ctx, from, subscription.Settings{
		Name:             name,
		MaxLiveQueueSize: m.cfg.MaxLiveQueueSize,
		ReadBatchSize:    m.cfg.ReadBatchSize,
		PollInterval:     m.cfg.PollInterval,
		Verbose:          m.cfg.Verbose,
	})
	defer sub.Close(subscription.UserInitiated, nil)

	goLive := func() {
		logger.Debug("projection has caught up, now processing live")
		m.status.SetPhase(name, status.PhaseLive)
	}

	last := from
	live := sub.Live()
	// queued is the number of events still buffered when the live signal
	// arrived, or -1 before it. Every historical event is buffered by then.
	queued := -1
	for {
		select {
		case <-sub.Done():
			return sub.Drop()

		case <-live:
			live = nil
			queued = len(sub.Events())
			if queued == 0 {
				goLive()
			}

		case e := <-sub.Events():
			if e.Position <= last {
				logger.Log(ctx, logging.LevelVerbose, "skipping redelivered event", "position", e.Position)
			} else {
				if err := m.process(ctx, p, e, logger); err != nil {
					if ctx.Err() != nil {
						sub.Close(subscription.UserInitiated, nil)
					} else {
						sub.Close(subscription.EventHandlerException, err)
					}
					return sub.Drop()
				}
				last = e.Position
			}
			if queued > 0 {
				queued--
				if queued == 0 {
					goLive()
				}
			}
		}
	}
}

// process filters, dispatches and checkpoints one event.
func (m *Manager) process(ctx context.Context, p Projection, e *model.Event, logger *slog.Logger) error {
	if e.IsSystem() {
		return nil
	}

	t, ok := m.types.Resolve(e.Type)
	if !ok {
		logger.Log(ctx, logging.LevelVerbose, "no type mapped for event, skipping",
			"type", e.Type, "position", e.Position)
		if m.cfg.Skipped == SkipWithoutCheckpoint {
			return nil
		}
		return m.checkpoint(ctx, p.Name(), e.Position)
	}

	payload, err := m.codec.Deserialize(e.Data, t)
	if err != nil {
		return fmt.Errorf("deserialize %s at %s: %w", e.Type, e.Position, err)
	}
	if err := invoke(ctx, p, payload); err != nil {
		return fmt.Errorf("handle %s at %s: %w", e.Type, e.Position, err)
	}
	logger.Debug("projection handled event", "type", e.Type, "position", e.Position)

	return m.checkpoint(ctx, p.Name(), e.Position)
}

func (m *Manager) checkpoint(ctx context.Context, name string, pos model.Position) error {
	if err := m.checkpoints.SetCheckpoint(ctx, name, pos); err != nil {
		return fmt.Errorf("store checkpoint %s: %w", pos, err)
	}
	m.status.Advance(name, pos)
	return nil
}

// invoke calls the handler, turning a panic into an error.
func invoke(ctx context.Context, p Projection, event any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("projection %s panicked: %v", p.Name(), r)
		}
	}()
	return p.Handle(ctx, event)
}

// sleep waits for d or until ctx is done, reporting whether the full
// duration elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
