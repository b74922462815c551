// Package liquidity bounds how much volume a bar can fill and derives the
// representative fill price used by market orders and as the floor/ceiling
// for limit fills (spec §4.6 step 3, §9's open question on the default
// liquidity model's exact shape).
package liquidity

import (
	"github.com/shopspring/decimal"

	"github.com/colinmarc/eventrader/event"
	"github.com/colinmarc/eventrader/matching"
)

// Model bounds per-bar fillable volume and derives a representative price
// as that volume is consumed.
type Model interface {
	// AvailableVolume returns the total quantity fillable within bar,
	// across all orders and both sides.
	AvailableVolume(bar event.Bar) decimal.Decimal

	// RepresentativePrice returns the price a fill at this point in the
	// bar would execute at. consumed is the quantity already filled in
	// this bar (across all orders so far, in priority order); side
	// determines whether consuming liquidity moves the price up (buys)
	// or down (sells).
	RepresentativePrice(bar event.Bar, consumed decimal.Decimal, side matching.Side) decimal.Decimal
}

// Default is the exchange's default Model: available volume is a fixed
// fraction of the bar's volume (0.25 per spec §4.6), and the representative
// price is the bar's open plus a slippage term proportional to the
// fraction of the bar's total volume consumed so far, scaled by the bar's
// high-low range. SlippageFactor defaults to zero — the spec's E1 scenario
// requires exactly zero slippage for a fill consuming 10% of a bar's
// volume under default configuration, so the default curve is flat; a
// non-zero SlippageFactor is there for callers who want to parameterize it
// (per spec §9's "leaves room to parameterize").
type Default struct {
	VolumeFraction decimal.Decimal
	SlippageFactor decimal.Decimal
}

// NewDefault returns the default model: 0.25x bar volume available, zero
// slippage.
func NewDefault() Default {
	return Default{
		VolumeFraction: decimal.NewFromFloat(0.25),
		SlippageFactor: decimal.Zero,
	}
}

// AvailableVolume implements Model.
func (d Default) AvailableVolume(bar event.Bar) decimal.Decimal {
	return bar.Volume.Mul(d.VolumeFraction)
}

// RepresentativePrice implements Model.
func (d Default) RepresentativePrice(bar event.Bar, consumed decimal.Decimal, side matching.Side) decimal.Decimal {
	if d.SlippageFactor.IsZero() || bar.Volume.IsZero() {
		return bar.Open
	}
	fractionOfBar := consumed.Div(bar.Volume)
	spread := bar.High.Sub(bar.Low)
	slippage := fractionOfBar.Mul(d.SlippageFactor).Mul(spread)
	if side == matching.Buy {
		return bar.Open.Add(slippage)
	}
	return bar.Open.Sub(slippage)
}
