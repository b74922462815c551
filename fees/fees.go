// Package fees computes the per-fill fee charged by the backtesting
// exchange, distinguishing maker and taker rates (spec §4.6 step 4).
package fees

import "github.com/shopspring/decimal"

// Model computes the fee for a single fill. The fee is always returned
// denominated in the pair's quote symbol, matching the exchange's
// quote-fee convention (see matching.Order.FeeTotal and DESIGN.md's
// resolution of the fee-symbol Open Question).
type Model interface {
	// Fee returns the fee owed on a fill of amount at price. maker is
	// true if the filling order was resting on the book before the bar.
	Fee(amount, price decimal.Decimal, maker bool) decimal.Decimal
}

// Schedule is the default Model: flat maker/taker basis-point rates
// applied to fill notional (amount * price).
type Schedule struct {
	// MakerRate and TakerRate are fractions, e.g. 0.001 for 10bps.
	MakerRate decimal.Decimal
	TakerRate decimal.Decimal
}

// DefaultSchedule returns the exchange's default fee schedule: 10bps
// maker, 10bps taker (a conservative, symmetric starting point — real
// exchanges differ and callers are expected to override this).
func DefaultSchedule() Schedule {
	tenBps := decimal.NewFromFloat(0.001)
	return Schedule{MakerRate: tenBps, TakerRate: tenBps}
}

// Fee implements Model.
func (s Schedule) Fee(amount, price decimal.Decimal, maker bool) decimal.Decimal {
	rate := s.TakerRate
	if maker {
		rate = s.MakerRate
	}
	notional := amount.Mul(price)
	return notional.Mul(rate)
}
