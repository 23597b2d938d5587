// Package events carries "log appended" notifications between the writers
// of the event log and the projection subscriptions. Notifications are
// hints: subscribers always re-read the log, so a lost or coalesced
// notification only delays delivery until the next poll.
package events

import (
	"context"

	"github.com/alfredjeanlab/marketplace/internal/model"
)

// Event topic constants
const (
	TopicLogAppended = "marketplace.log.appended"
)

// Appended announces that the log grew up to Position.
type Appended struct {
	StreamID string         `json:"stream_id"`
	Position model.Position `json:"position"`
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}

// Watcher delivers the positions announced by Appended notifications. The
// returned channel is closed when the underlying connection goes away or
// the returned cancel function is called.
type Watcher interface {
	Watch(ctx context.Context) (<-chan model.Position, func(), error)
}
