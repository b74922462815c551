// Package scheduler implements the dispatcher's timed-callback queue: a
// min-heap of (when, sequence, callback) triples where sequence breaks ties
// deterministically (spec §4.3).
package scheduler

import (
	"container/heap"
	"fmt"
	"time"

	"github.com/colinmarc/eventrader/sequence"
	"github.com/colinmarc/eventrader/tradeerr"
)

// Callback is invoked when its scheduled instant is reached. It carries no
// arguments beyond what the caller closed over when scheduling it, per the
// "narrow context on invocation" guidance in spec §9 — callers should pass
// a small value, not capture the whole dispatcher by reference.
type Callback func()

// entry is one scheduled callback.
type entry struct {
	when  time.Time
	seq   int64
	cb    Callback
	index int
}

type entryHeap []*entry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	if h[i].when.Equal(h[j].when) {
		return h[i].seq < h[j].seq
	}
	return h[i].when.Before(h[j].when)
}

func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *entryHeap) Push(x any) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// Queue is a priority queue of scheduled callbacks. The zero value is not
// ready to use; construct with New.
type Queue struct {
	heap       entryHeap
	seq        sequence.Counter
	backtest   bool
	virtualNow time.Time
}

// New creates a Queue. backtest controls whether Schedule rejects
// instants before the current virtual time (true) or coerces them to "now"
// (false, realtime mode) per spec §4.3.
func New(backtest bool) *Queue {
	q := &Queue{backtest: backtest}
	heap.Init(&q.heap)
	return q
}

// AdvanceTo moves the queue's notion of "now" forward. The dispatcher calls
// this as the virtual (or wall) clock advances; it never moves backward.
func (q *Queue) AdvanceTo(now time.Time) {
	if now.After(q.virtualNow) {
		q.virtualNow = now
	}
}

// Schedule enqueues cb to run at when. In backtesting mode a when before
// the queue's current virtual time fails with tradeerr.ErrPastSchedule; in
// realtime mode such a when is coerced to "immediately" (the current
// virtual time).
func (q *Queue) Schedule(when time.Time, cb Callback) error {
	if cb == nil {
		return fmt.Errorf("scheduler: nil callback")
	}
	if when.Before(q.virtualNow) {
		if q.backtest {
			return fmt.Errorf("scheduler: %w: requested %s, now %s", tradeerr.ErrPastSchedule, when, q.virtualNow)
		}
		when = q.virtualNow
	}
	heap.Push(&q.heap, &entry{when: when, seq: q.seq.Next(), cb: cb})
	return nil
}

// PeekWhen returns the instant of the earliest pending callback, or false
// if the queue is empty.
func (q *Queue) PeekWhen() (time.Time, bool) {
	if q.heap.Len() == 0 {
		return time.Time{}, false
	}
	return q.heap[0].when, true
}

// PopDue removes and returns, in (when, seq) order, every callback whose
// scheduled instant is at or before now.
func (q *Queue) PopDue(now time.Time) []Callback {
	var due []Callback
	for q.heap.Len() > 0 && !q.heap[0].when.After(now) {
		e := heap.Pop(&q.heap).(*entry)
		due = append(due, e.cb)
	}
	return due
}

// Len reports the number of pending callbacks.
func (q *Queue) Len() int { return q.heap.Len() }
