package events

import (
	"context"
	"sync"

	"github.com/alfredjeanlab/marketplace/internal/model"
)

// MemoryBus is an in-process Publisher and Watcher. Only Appended events
// published on TopicLogAppended reach watchers; everything else is dropped.
type MemoryBus struct {
	mu       sync.Mutex
	nextID   int
	watchers map[int]chan model.Position
}

var (
	_ Publisher = (*MemoryBus)(nil)
	_ Watcher   = (*MemoryBus)(nil)
)

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{watchers: make(map[int]chan model.Position)}
}

func (b *MemoryBus) Publish(ctx context.Context, topic string, event any) error {
	if topic != TopicLogAppended {
		return nil
	}
	var pos model.Position
	switch e := event.(type) {
	case Appended:
		pos = e.Position
	case *Appended:
		pos = e.Position
	default:
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.watchers {
		select {
		case ch <- pos:
		default:
		}
	}
	return nil
}

func (b *MemoryBus) Watch(ctx context.Context) (<-chan model.Position, func(), error) {
	ch := make(chan model.Position, 1)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.watchers[id] = ch
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.watchers[id]; ok {
			delete(b.watchers, id)
			close(ch)
		}
	}
	return ch, cancel, nil
}

// Watchers returns the number of active watches.
func (b *MemoryBus) Watchers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.watchers)
}

// Disconnect closes every active watch, as a dropped broker connection
// would.
func (b *MemoryBus) Disconnect() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.watchers {
		delete(b.watchers, id)
		close(ch)
	}
}

func (b *MemoryBus) Close() error {
	b.Disconnect()
	return nil
}
