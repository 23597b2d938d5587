package subscription

import "fmt"

// DropReason says why a subscription stopped delivering events.
type DropReason int

const (
	UserInitiated DropReason = iota
	NotAuthenticated
	AccessDenied
	SubscribingError
	ServerError
	ConnectionClosed
	CatchUpError
	ProcessingQueueOverflow
	EventHandlerException
	MaxSubscribersReached
	PersistentSubscriptionDeleted
	NotFound
	Unknown

	numReasons
)

var reasonNames = [numReasons]string{
	UserInitiated:                 "UserInitiated",
	NotAuthenticated:              "NotAuthenticated",
	AccessDenied:                  "AccessDenied",
	SubscribingError:              "SubscribingError",
	ServerError:                   "ServerError",
	ConnectionClosed:              "ConnectionClosed",
	CatchUpError:                  "CatchUpError",
	ProcessingQueueOverflow:       "ProcessingQueueOverflow",
	EventHandlerException:         "EventHandlerException",
	MaxSubscribersReached:         "MaxSubscribersReached",
	PersistentSubscriptionDeleted: "PersistentSubscriptionDeleted",
	NotFound:                      "NotFound",
	Unknown:                       "Unknown",
}

func (r DropReason) String() string {
	if r < 0 || r >= numReasons {
		return fmt.Sprintf("DropReason(%d)", int(r))
	}
	return reasonNames[r]
}

// Reasons returns every drop reason.
func Reasons() []DropReason {
	out := make([]DropReason, 0, numReasons)
	for r := DropReason(0); r < numReasons; r++ {
		out = append(out, r)
	}
	return out
}

// Class decides what the runtime does after a drop.
type Class int

const (
	// Unclassified is never assigned to a known reason.
	Unclassified Class = iota
	// Graceful drops stop the projection quietly.
	Graceful
	// Transient drops restart the projection after a delay.
	Transient
	// Fatal drops stop the projection for good.
	Fatal
)

func (c Class) String() string {
	switch c {
	case Graceful:
		return "graceful"
	case Transient:
		return "transient"
	case Fatal:
		return "fatal"
	default:
		return "unclassified"
	}
}

var classes = [numReasons]Class{
	UserInitiated:                 Graceful,
	SubscribingError:              Transient,
	ServerError:                   Transient,
	ConnectionClosed:              Transient,
	CatchUpError:                  Transient,
	ProcessingQueueOverflow:       Transient,
	EventHandlerException:         Transient,
	NotAuthenticated:              Fatal,
	AccessDenied:                  Fatal,
	NotFound:                      Fatal,
	MaxSubscribersReached:         Fatal,
	PersistentSubscriptionDeleted: Fatal,
	Unknown:                       Fatal,
}

// Class returns the reason's class. Values outside the known set are
// Fatal.
func (r DropReason) Class() Class {
	if r < 0 || r >= numReasons {
		return Fatal
	}
	return classes[r]
}

// Drop records how a subscription ended.
type Drop struct {
	Reason DropReason
	Err    error
}

func (d Drop) String() string {
	if d.Err == nil {
		return d.Reason.String()
	}
	return fmt.Sprintf("%s: %v", d.Reason, d.Err)
}
