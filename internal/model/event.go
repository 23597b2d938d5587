package model

import (
	"strconv"
	"strings"
	"time"
)

// SystemEventPrefix marks control events written by the log itself
// (statistics, stream metadata, links). They never reach projections.
const SystemEventPrefix = "$"

// Position is the place of an event in the global log. Positions are
// assigned by the log on append, start at 1 and only grow. The zero value
// means "before the first event".
type Position uint64

// Start is the position preceding every event in the log.
const Start Position = 0

// String returns the decimal form of the position.
func (p Position) String() string {
	return strconv.FormatUint(uint64(p), 10)
}

// Event is an immutable record read from the global log.
type Event struct {
	ID            string    `json:"id"`
	Position      Position  `json:"position"`
	StreamID      string    `json:"stream_id"`
	StreamVersion int64     `json:"stream_version"`
	Type          string    `json:"type"`
	Data          []byte    `json:"data"`
	CreatedAt     time.Time `json:"created_at"`
}

// IsSystem reports whether the event is a log control event.
func (e *Event) IsSystem() bool {
	return strings.HasPrefix(e.Type, SystemEventPrefix)
}

// NewEvent is an event that has not been appended to the log yet.
type NewEvent struct {
	ID   string
	Type string
	Data []byte
}
