// Package matching implements the backtesting OrderManager: the order
// state machine and the bar-matching algorithm from spec §4.6, generalized
// from the teacher's (mkhoshkam/orderbook) live price-time-priority
// order-book matcher.
package matching

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of an order.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// Type is the order type.
type Type string

const (
	Market    Type = "market"
	Limit     Type = "limit"
	StopLimit Type = "stop_limit"
)

// State is a position in the order state machine:
//
//	NEW -> PENDING_TRIGGER -> OPEN -> (PARTIALLY_FILLED)* -> FILLED
//	                                                       -> CANCELED
//	                                                       -> REJECTED
//
// FILLED, CANCELED, and REJECTED are absorbing.
type State string

const (
	StateNew             State = "NEW"
	StatePendingTrigger  State = "PENDING_TRIGGER"
	StateOpen            State = "OPEN"
	StatePartiallyFilled State = "PARTIALLY_FILLED"
	StateFilled          State = "FILLED"
	StateCanceled        State = "CANCELED"
	StateRejected        State = "REJECTED"
)

// Terminal reports whether s is an absorbing state.
func (s State) Terminal() bool {
	return s == StateFilled || s == StateCanceled || s == StateRejected
}

// resting reports whether s is eligible for matching against a bar.
func (s State) resting() bool {
	return s == StateOpen || s == StatePartiallyFilled
}

// Order is a single order tracked by the OrderManager.
type Order struct {
	ID   string
	Pair string
	Side Side
	Type Type

	Amount     decimal.Decimal
	LimitPrice *decimal.Decimal
	StopPrice  *decimal.Decimal

	State        State
	Filled       decimal.Decimal
	AvgFillPrice decimal.Decimal
	FeeTotal     decimal.Decimal // always denominated in the pair's quote symbol

	CreatedAt time.Time
	Seq       int64

	BasePrecision  int32
	QuotePrecision int32

	heldSymbol string
	heldAmount decimal.Decimal

	// triggeredThisBar marks a stop-limit order that transitioned
	// PENDING_TRIGGER -> OPEN during the bar currently being matched; it
	// is a taker fill (never sat on the book as a limit order) and is
	// ordered ahead of every other resting order on its side, whatever its
	// price, per §4.6 step 2's "stop-triggered first" rule.
	triggeredThisBar bool
}

// Remaining returns the unfilled portion of the order's amount.
func (o *Order) Remaining() decimal.Decimal {
	return o.Amount.Sub(o.Filled)
}

// Maker reports whether this order was resting on the book before the bar
// currently being matched began — i.e. everything except a market order or
// an order that just triggered this bar (spec §4.6 step 4, maker/taker fee
// split).
func (o *Order) Maker() bool {
	return o.Type != Market && !o.triggeredThisBar
}

// Trade is an immutable fill record.
type Trade struct {
	OrderID   string
	Pair      string
	Side      Side
	Amount    decimal.Decimal
	Price     decimal.Decimal
	FeeSymbol string
	FeeAmount decimal.Decimal
	When      time.Time
}

// Fill reports an order's execution status after one matching step,
// mirroring the teacher's OrderFill event but generalized to bar matching.
type Fill struct {
	OrderID      string
	Pair         string
	Side         Side
	ExecutedQty  decimal.Decimal
	RemainingQty decimal.Decimal
	FillPrice    decimal.Decimal
	State        State
	When         time.Time
}

// Precision holds the per-pair base/quote decimal precision used for
// quantity truncation and price rounding (spec §4.6's numeric semantics).
type Precision struct {
	Base  int32
	Quote int32
}

// Symbols splits a "BASE/QUOTE" pair identifier into its two symbols.
func Symbols(pair string) (base, quote string, err error) {
	parts := strings.SplitN(pair, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("matching: malformed pair %q, want \"BASE/QUOTE\"", pair)
	}
	return parts[0], parts[1], nil
}

// TruncateAmount truncates a quantity toward zero to the given precision
// (spec §4.6: "quantities truncate toward zero").
func TruncateAmount(amount decimal.Decimal, precision int32) decimal.Decimal {
	return amount.Truncate(precision)
}

// RoundPrice rounds a price half-up to the given precision (spec §4.6:
// "prices round half-up").
func RoundPrice(price decimal.Decimal, precision int32) decimal.Decimal {
	return price.Round(precision)
}

// RoundFeeUp rounds a fee up (away from zero) to the given precision,
// exchange-favoring per spec §4.6.
func RoundFeeUp(fee decimal.Decimal, precision int32) decimal.Decimal {
	return fee.RoundUp(precision)
}
