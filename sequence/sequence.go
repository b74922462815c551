// Package sequence provides a single monotonically increasing counter used
// to break ties between events (or orders) that share an identical instant.
package sequence

import "sync/atomic"

// Counter hands out strictly increasing int64 values. The zero value is
// ready to use.
type Counter struct {
	next int64
}

// Next returns the next value in the sequence, starting at 0.
func (c *Counter) Next() int64 {
	return atomic.AddInt64(&c.next, 1) - 1
}
