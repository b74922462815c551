package source

import (
	"time"

	"github.com/colinmarc/eventrader/event"
)

// SliceSource is an in-memory, pre-ordered EventSource. It is the simplest
// possible source and is used heavily in tests and for synthetic
// end-to-end scenarios (spec §8's E1–E6). Events are served in slice
// order; callers are responsible for supplying a non-decreasing When()
// sequence, matching the contract every source must uphold.
type SliceSource struct {
	events []event.Event
	cursor int
}

// NewSliceSource wraps events as an EventSource.
func NewSliceSource(events ...event.Event) *SliceSource {
	return &SliceSource{events: events}
}

// PeekWhen implements EventSource.
func (s *SliceSource) PeekWhen() (time.Time, bool) {
	if s.cursor >= len(s.events) {
		return time.Time{}, false
	}
	return s.events[s.cursor].When(), true
}

// Pop implements EventSource.
func (s *SliceSource) Pop() (event.Event, bool) {
	if s.cursor >= len(s.events) {
		return nil, false
	}
	ev := s.events[s.cursor]
	s.cursor++
	return ev, true
}

// Terminated implements EventSource.
func (s *SliceSource) Terminated() bool {
	return s.cursor >= len(s.events)
}
