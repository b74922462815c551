package source

import (
	"context"
	"sync"
	"time"

	"github.com/colinmarc/eventrader/event"
)

// Feed is what a live collaborator (a WebSocket client, out of scope per
// spec §1) hands to a ChannelSource's Producer: a channel of events and a
// Run method that blocks until ctx is done or the feed is exhausted.
type Feed interface {
	Run(ctx context.Context, out chan<- event.Event) error
}

// ChannelSource buffers events pushed by a background Producer so the
// EventMultiplexer can drain them serially on the dispatcher's task, per
// the realtime concurrency model in spec §5 ("Producers communicate with
// the core only by appending to source buffers").
type ChannelSource struct {
	feed Feed

	mu       sync.Mutex
	buffered []event.Event
	done     bool
	ch       chan event.Event
	runErr   error
	producer *channelProducer
}

// NewChannelSource wraps feed as an EventSource with an attached Producer.
// bufferSize bounds the channel the Producer goroutine writes into.
func NewChannelSource(feed Feed, bufferSize int) *ChannelSource {
	s := &ChannelSource{
		feed: feed,
		ch:   make(chan event.Event, bufferSize),
	}
	s.producer = &channelProducer{source: s}
	return s
}

// Producer implements Producing.
func (s *ChannelSource) Producer() (Producer, bool) { return s.producer, true }

// drain moves whatever is currently sitting in the channel into the
// buffered slice without blocking, so PeekWhen/Pop can serve it.
func (s *ChannelSource) drain() {
	for {
		select {
		case ev, ok := <-s.ch:
			if !ok {
				s.done = true
				return
			}
			s.buffered = append(s.buffered, ev)
		default:
			return
		}
	}
}

// PeekWhen implements EventSource.
func (s *ChannelSource) PeekWhen() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drain()
	if len(s.buffered) == 0 {
		return time.Time{}, false
	}
	return s.buffered[0].When(), true
}

// Pop implements EventSource.
func (s *ChannelSource) Pop() (event.Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drain()
	if len(s.buffered) == 0 {
		return nil, false
	}
	ev := s.buffered[0]
	s.buffered = s.buffered[1:]
	return ev, true
}

// Terminated implements EventSource.
func (s *ChannelSource) Terminated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done && len(s.buffered) == 0
}

// Err returns the error the feed's Run returned, if any, once the producer
// has stopped.
func (s *ChannelSource) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runErr
}

// channelProducer is the background task that drives Feed.Run and owns
// closing the channel exactly once, scoped to a successful Start (spec
// §4.1's "scoped acquisition" contract).
type channelProducer struct {
	source  *ChannelSource
	cancel  context.CancelFunc
	started bool
	stopped bool
	wg      sync.WaitGroup
	mu      sync.Mutex
}

// Start implements Producer. Idempotent: a second call is a no-op.
func (p *channelProducer) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return nil
	}
	p.started = true

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		err := p.source.feed.Run(runCtx, p.source.ch)
		p.source.mu.Lock()
		p.source.runErr = err
		p.source.mu.Unlock()
		close(p.source.ch)
	}()
	return nil
}

// Stop implements Producer. Idempotent: safe to call even if Start never
// ran or already stopped.
func (p *channelProducer) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started || p.stopped {
		return nil
	}
	p.stopped = true
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	return nil
}
