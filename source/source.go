// Package source defines the lazy, ordered event producer contract (spec
// §4.1) and a handful of concrete sources: an in-memory slice source for
// tests and synthetic scenarios, a bar CSV source for historical replay,
// and a channel-backed live source driven by a background Producer.
package source

import (
	"context"
	"time"

	"github.com/colinmarc/eventrader/event"
)

// EventSource is a lazy, ordered producer of events. Two consecutive Pop()s
// from the same source must yield non-decreasing When()s (spec §4.1).
type EventSource interface {
	// PeekWhen returns the earliest When() this source can deliver right
	// now. ok is false if the source is transiently empty or terminated.
	PeekWhen() (when time.Time, ok bool)
	// Pop removes and returns the next event. ok is false under the same
	// conditions as PeekWhen.
	Pop() (ev event.Event, ok bool)
	// Terminated reports whether this source will never again produce.
	Terminated() bool
}

// Producer is a background task that feeds a source. Start and Stop are
// both idempotent; if Start succeeds the dispatcher guarantees Stop runs on
// every exit path (spec §4.1, §5).
type Producer interface {
	Start(ctx context.Context) error
	Stop() error
}

// Producing is implemented by sources that have an attached Producer.
type Producing interface {
	Producer() (Producer, bool)
}
