// Package event defines the timestamped values that flow through the
// dispatcher: the Event contract, the concrete Bar payload, and the tagged
// event-kind used for subscription routing.
package event

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Kind tags the concrete shape of an Event for O(1) subscription-table
// routing, replacing runtime type switches on the dispatch hot path.
type Kind string

const (
	// KindBar identifies Bar events.
	KindBar Kind = "bar"
	// KindOrderBookUpdate identifies live order-book delta events.
	KindOrderBookUpdate Kind = "order_book_update"
)

// Event is any timestamped occurrence delivered through the dispatcher.
// Implementations are immutable after construction.
type Event interface {
	// When returns the timezone-aware instant the event occurred at. It
	// must never change across the life of the value.
	When() time.Time
	// Kind identifies the concrete payload for subscription routing.
	Kind() Kind
}

// RequireAware panics if t carries the zero value. Go's time.Time is always
// offset-aware internally; the naive/aware distinction the spec guards
// against is enforced earlier, at the point an external representation
// (e.g. a CSV row without an explicit offset) is parsed into a time.Time —
// see source.NewCSVBarSource. RequireAware exists as a defensive boundary
// check against the zero value slipping through uninitialized.
func RequireAware(t time.Time) {
	if t.IsZero() {
		panic("event: zero-value instant crossed a public boundary")
	}
}

// Bar is an OHLCV aggregate over Period, timestamped at the period's close.
type Bar struct {
	Pair   string
	Period time.Duration

	Open   decimal.Decimal
	High   decimal.Decimal
	Low    decimal.Decimal
	Close  decimal.Decimal
	Volume decimal.Decimal

	// CloseTime is the instant this bar closed; Event.When returns this.
	CloseTime time.Time
}

// When implements Event.
func (b Bar) When() time.Time { return b.CloseTime }

// Kind implements Event.
func (b Bar) Kind() Kind { return KindBar }

// Validate checks the invariants from the data model: low <= open,close <=
// high; volume >= 0; period > 0.
func (b Bar) Validate() error {
	if b.Period <= 0 {
		return fmt.Errorf("event: bar period must be positive, got %s", b.Period)
	}
	if b.Volume.IsNegative() {
		return fmt.Errorf("event: bar volume must be non-negative, got %s", b.Volume)
	}
	if b.Low.GreaterThan(b.Open) || b.Open.GreaterThan(b.High) {
		return fmt.Errorf("event: bar violates low <= open <= high (low=%s open=%s high=%s)", b.Low, b.Open, b.High)
	}
	if b.Low.GreaterThan(b.Close) || b.Close.GreaterThan(b.High) {
		return fmt.Errorf("event: bar violates low <= close <= high (low=%s close=%s high=%s)", b.Low, b.Close, b.High)
	}
	RequireAware(b.CloseTime)
	return nil
}

// OrderBookUpdate is a live order-book delta event. It is specified only by
// shape here; the concrete WebSocket producers that emit it are out of
// scope (see spec §1, §6).
type OrderBookUpdate struct {
	Pair    string
	Instant time.Time
	Bids    []PriceLevel
	Asks    []PriceLevel
}

// PriceLevel is one entry of a live order-book snapshot or delta.
type PriceLevel struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// When implements Event.
func (u OrderBookUpdate) When() time.Time { return u.Instant }

// Kind implements Event.
func (u OrderBookUpdate) Kind() Kind { return KindOrderBookUpdate }
