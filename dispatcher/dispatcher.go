// Package dispatcher implements the single-threaded event loop (spec
// §4.4/§4.5): merge every registered source through an EventMultiplexer,
// interleave due scheduled callbacks, and hand each event to its
// subscribed handlers. BacktestingDispatcher drives a virtual clock at
// the pace of its sources; RealtimeDispatcher drives a wall clock and
// runs Producers as background goroutines.
package dispatcher

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/colinmarc/eventrader/event"
	"github.com/colinmarc/eventrader/logging"
	"github.com/colinmarc/eventrader/multiplex"
	"github.com/colinmarc/eventrader/scheduler"
	"github.com/colinmarc/eventrader/source"
)

// Handler processes one event. A non-nil return is logged and, outside
// StrictMode, otherwise ignored; in StrictMode it is fatal to Run (§7).
type Handler func(ctx context.Context, ev event.Event) error

// Callback is a scheduled, argument-less task (spec §4.3's narrow-context
// guidance: close over a small value, not the whole dispatcher).
type Callback = scheduler.Callback

// Dispatcher is the shared contract both run modes satisfy, so a strategy
// can be written against it without caring which mode is active (spec
// §4.9's façade-interchangeability guidance, one layer down).
type Dispatcher interface {
	// Subscribe registers h for events of kind whose pair matches
	// sourceID ("" subscribes to every pair).
	Subscribe(kind event.Kind, sourceID string, h Handler)
	// Schedule enqueues cb to run at when (tradeerr.ErrPastSchedule in
	// backtesting mode if when has already passed).
	Schedule(when time.Time, cb Callback) error
	// AddSource registers a new EventSource (and starts its Producer, if
	// any) to be merged into the dispatch stream.
	AddSource(s source.EventSource) error
	// Run drives the event loop until ctx is canceled or Stop is called;
	// the backtesting variant also returns once no source has an event
	// left and no callback remains pending.
	Run(ctx context.Context) error
	// Stop requests the run loop to exit at its next safe point.
	Stop()
}

type subscription struct {
	pair string
	h    Handler
}

func pairOf(ev event.Event) string {
	switch v := ev.(type) {
	case event.Bar:
		return v.Pair
	case event.OrderBookUpdate:
		return v.Pair
	default:
		return ""
	}
}

// core holds the state common to both dispatcher variants.
type core struct {
	mux    *multiplex.Multiplexer
	sched  *scheduler.Queue
	subs   map[event.Kind][]subscription
	strict bool
	logger zerolog.Logger

	stopCh  chan struct{}
	stopped bool
}

func newCore(backtest bool, strict bool, component string) core {
	return core{
		mux:    multiplex.New(),
		sched:  scheduler.New(backtest),
		subs:   make(map[event.Kind][]subscription),
		strict: strict,
		logger: logging.WithComponent(component),
		stopCh: make(chan struct{}),
	}
}

func (c *core) Subscribe(kind event.Kind, sourceID string, h Handler) {
	c.subs[kind] = append(c.subs[kind], subscription{pair: sourceID, h: h})
}

func (c *core) Schedule(when time.Time, cb Callback) error {
	return c.sched.Schedule(when, cb)
}

func (c *core) AddSource(s source.EventSource) error {
	c.mux.Add(s)
	if producing, ok := s.(source.Producing); ok {
		if p, ok := producing.Producer(); ok {
			if err := p.Start(context.Background()); err != nil {
				return fmt.Errorf("dispatcher: starting producer: %w", err)
			}
		}
	}
	return nil
}

func (c *core) Stop() {
	if c.stopped {
		return
	}
	c.stopped = true
	close(c.stopCh)
}

// runCallbacks advances the scheduler's clock to now and runs every
// callback due at or before now, in (when, seq) order.
func (c *core) runCallbacks(ctx context.Context, now time.Time) error {
	c.sched.AdvanceTo(now)
	for _, cb := range c.sched.PopDue(now) {
		cb()
	}
	return ctx.Err()
}

func (c *core) dispatch(ctx context.Context, ev event.Event) error {
	pair := pairOf(ev)
	for _, sub := range c.subs[ev.Kind()] {
		if sub.pair != "" && sub.pair != pair {
			continue
		}
		if err := sub.h(ctx, ev); err != nil {
			c.logger.Error().Err(err).Str("kind", string(ev.Kind())).Str("pair", pair).Time("when", ev.When()).Msg("handler error")
			if c.strict {
				return fmt.Errorf("dispatcher: handler for %s/%s: %w", ev.Kind(), pair, err)
			}
		}
	}
	return nil
}

// BacktestingDispatcher drives a virtual clock: time only ever advances to
// the instant of the next scheduled callback or the next event, whichever
// comes first, so replay is deterministic and as fast as CPU allows (spec
// §4.4, invariant 5).
type BacktestingDispatcher struct {
	core
}

// NewBacktesting creates a BacktestingDispatcher. strict promotes handler
// errors to fatal (§7).
func NewBacktesting(strict bool) *BacktestingDispatcher {
	return &BacktestingDispatcher{core: newCore(true, strict, "dispatcher.backtest")}
}

// Run implements Dispatcher. It exits cleanly once the scheduler queue is
// empty and no source has an event ready (every source has terminated, or
// the remaining ones are idle).
func (d *BacktestingDispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-d.stopCh:
			return nil
		default:
		}

		status, evAt := d.mux.Peek()
		schedAt, haveSched := d.sched.PeekWhen()

		if status == multiplex.Exhausted && !haveSched {
			return nil
		}
		if status == multiplex.Idle && !haveSched {
			// Nothing ready and nothing scheduled, but sources remain. In
			// backtesting nothing else can feed them, so Idle ends the run
			// the same way Exhausted does.
			return nil
		}

		// Resolve the next instant to advance to, and whether the
		// scheduler or the multiplexer produces it. Per §9's Open
		// Question resolution, a due callback strictly before the next
		// event's instant runs first; at an exact tie the callback still
		// runs first (callback-before-event tie-break).
		runSched := haveSched && (status != multiplex.Ready || !schedAt.After(evAt))
		if runSched {
			if err := d.runCallbacks(ctx, schedAt); err != nil {
				return err
			}
			continue
		}

		if status != multiplex.Ready {
			continue
		}
		d.sched.AdvanceTo(evAt)
		ev, ok := d.mux.Pop()
		if !ok {
			continue
		}
		if err := d.dispatch(ctx, ev); err != nil {
			return err
		}
	}
}

// RealtimeDispatcher drives a wall clock: Producer goroutines push events
// onto their sources asynchronously, and Run polls for due callbacks and
// ready events at a fixed tick (spec §4.5).
type RealtimeDispatcher struct {
	core
	tick      time.Duration
	producers []source.Producer
}

// NewRealtime creates a RealtimeDispatcher polling at the given tick
// interval (a small duration, e.g. 10ms, keeps dispatch latency low
// without busy-spinning).
func NewRealtime(strict bool, tick time.Duration) *RealtimeDispatcher {
	return &RealtimeDispatcher{core: newCore(false, strict, "dispatcher.realtime"), tick: tick}
}

// AddSource overrides core.AddSource: it does not start the source's
// Producer, it only records it, so that Run starts it and stops it again
// on the way out.
func (d *RealtimeDispatcher) AddSource(s source.EventSource) error {
	d.mux.Add(s)
	if producing, ok := s.(source.Producing); ok {
		if p, ok := producing.Producer(); ok {
			d.producers = append(d.producers, p)
		}
	}
	return nil
}

// Run starts every registered Producer, then polls the multiplexer and
// scheduler at the configured tick until ctx is canceled or Stop is
// called, stopping every Producer on the way out regardless of which exit
// path is taken (spec §4.1's Producer-lifecycle guarantee).
func (d *RealtimeDispatcher) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Start every producer concurrently against runCtx, which lives for
	// the whole Run call, and propagate the first failure. This uses a
	// plain errgroup.Group rather than errgroup.WithContext: the latter's
	// derived context cancels itself "the first time Wait returns"
	// regardless of error, and every Producer.Start here (e.g.
	// channelProducer.Start) spawns its own goroutine and returns
	// immediately — so Wait would return almost instantly and cancel
	// every producer's context before it delivered a single event.
	// Producers get runCtx directly, which only ends when Run itself
	// does, per §5's "independent goroutines" model.
	var g errgroup.Group
	for _, p := range d.producers {
		p := p
		g.Go(func() error { return p.Start(runCtx) })
	}
	if err := g.Wait(); err != nil {
		d.stopProducers()
		return fmt.Errorf("dispatcher: starting producers: %w", err)
	}
	defer d.stopProducers()

	ticker := time.NewTicker(d.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-d.stopCh:
			return nil
		case <-ticker.C:
		}

		now := time.Now()
		if err := d.runCallbacks(ctx, now); err != nil {
			return err
		}

		for {
			status, _ := d.mux.Peek()
			if status != multiplex.Ready {
				break
			}
			ev, ok := d.mux.Pop()
			if !ok {
				break
			}
			if err := d.dispatch(ctx, ev); err != nil {
				return err
			}
		}
	}
}

func (d *RealtimeDispatcher) stopProducers() {
	for _, p := range d.producers {
		if err := p.Stop(); err != nil {
			d.logger.Warn().Err(err).Msg("producer stop failed")
		}
	}
}
