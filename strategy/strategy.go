// Package strategy holds example strategies exercising the Exchange
// façade (spec §4.9): a moving-average crossover and a grid strategy,
// both written once against exchange.Exchange so they run unchanged in
// backtesting or live mode.
package strategy

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/colinmarc/eventrader/event"
	"github.com/colinmarc/eventrader/exchange"
	"github.com/colinmarc/eventrader/logging"
	"github.com/colinmarc/eventrader/matching"
)

// MovingAverageCrossover buys when the fast SMA crosses above the slow SMA
// and sells (closing any open position) when it crosses back below.
type MovingAverageCrossover struct {
	Pair       string
	FastPeriod int
	SlowPeriod int
	OrderSize  decimal.Decimal

	ex     exchange.Exchange
	closes []decimal.Decimal
	long   bool
}

// NewMovingAverageCrossover creates a crossover strategy trading pair on
// ex, sized orderSize, comparing a fastPeriod-bar SMA against a
// slowPeriod-bar SMA.
func NewMovingAverageCrossover(ex exchange.Exchange, pair string, fastPeriod, slowPeriod int, orderSize decimal.Decimal) *MovingAverageCrossover {
	return &MovingAverageCrossover{
		Pair: pair, FastPeriod: fastPeriod, SlowPeriod: slowPeriod, OrderSize: orderSize,
		ex: ex,
	}
}

// OnBar implements exchange.BarHandler. It is meant to be passed directly
// to Exchange.SubscribeToBarEvents.
func (s *MovingAverageCrossover) OnBar(ctx context.Context, bar event.Bar) error {
	s.closes = append(s.closes, bar.Close)
	if len(s.closes) > s.SlowPeriod {
		s.closes = s.closes[len(s.closes)-s.SlowPeriod:]
	}
	if len(s.closes) < s.SlowPeriod {
		return nil
	}

	fast := sma(s.closes[len(s.closes)-s.FastPeriod:])
	slow := sma(s.closes)

	logger := logging.WithComponent("strategy.ma_crossover")

	switch {
	case fast.GreaterThan(slow) && !s.long:
		if _, err := s.ex.CreateMarketOrder(s.Pair, matching.Buy, s.OrderSize); err != nil {
			return fmt.Errorf("strategy: entering long: %w", err)
		}
		s.long = true
		logger.Info().Str("pair", s.Pair).Msg("entered long")
	case fast.LessThan(slow) && s.long:
		if _, err := s.ex.CreateMarketOrder(s.Pair, matching.Sell, s.OrderSize); err != nil {
			return fmt.Errorf("strategy: exiting long: %w", err)
		}
		s.long = false
		logger.Info().Str("pair", s.Pair).Msg("exited long")
	}
	return nil
}

func sma(values []decimal.Decimal) decimal.Decimal {
	sum := decimal.Zero
	for _, v := range values {
		sum = sum.Add(v)
	}
	return sum.Div(decimal.NewFromInt(int64(len(values))))
}

// Grid places a static ladder of buy limit orders below, and sell limit
// orders above, a center price, re-arming each rung as it fills.
type Grid struct {
	Pair      string
	Center    decimal.Decimal
	StepPct   decimal.Decimal
	Levels    int
	OrderSize decimal.Decimal

	ex      exchange.Exchange
	armed   bool
	buyIDs  map[string]int
	sellIDs map[string]int
}

// NewGrid creates a Grid strategy trading pair on ex, with levels rungs
// each side of center spaced stepPct apart.
func NewGrid(ex exchange.Exchange, pair string, center, stepPct decimal.Decimal, levels int, orderSize decimal.Decimal) *Grid {
	return &Grid{
		Pair: pair, Center: center, StepPct: stepPct, Levels: levels, OrderSize: orderSize,
		ex: ex, buyIDs: make(map[string]int), sellIDs: make(map[string]int),
	}
}

// OnBar implements exchange.BarHandler. On the first bar it lays down the
// initial ladder; on every bar it re-arms any rung whose order has since
// filled or been canceled.
func (g *Grid) OnBar(ctx context.Context, bar event.Bar) error {
	if !g.armed {
		g.armed = true
		return g.layLadder()
	}

	for id, level := range g.buyIDs {
		order, err := orderInfo(g.ex, id)
		if err != nil || order.State.Terminal() {
			delete(g.buyIDs, id)
			if err := g.placeBuy(level); err != nil {
				return err
			}
		}
	}
	for id, level := range g.sellIDs {
		order, err := orderInfo(g.ex, id)
		if err != nil || order.State.Terminal() {
			delete(g.sellIDs, id)
			if err := g.placeSell(level); err != nil {
				return err
			}
		}
	}
	return nil
}

func (g *Grid) layLadder() error {
	for level := 1; level <= g.Levels; level++ {
		if err := g.placeBuy(level); err != nil {
			return err
		}
		if err := g.placeSell(level); err != nil {
			return err
		}
	}
	return nil
}

func (g *Grid) placeBuy(level int) error {
	price := g.levelPrice(-level)
	order, err := g.ex.CreateLimitOrder(g.Pair, matching.Buy, g.OrderSize, price)
	if err != nil {
		return fmt.Errorf("strategy: grid buy level %d: %w", level, err)
	}
	g.buyIDs[order.ID] = level
	return nil
}

func (g *Grid) placeSell(level int) error {
	price := g.levelPrice(level)
	order, err := g.ex.CreateLimitOrder(g.Pair, matching.Sell, g.OrderSize, price)
	if err != nil {
		return fmt.Errorf("strategy: grid sell level %d: %w", level, err)
	}
	g.sellIDs[order.ID] = level
	return nil
}

func (g *Grid) levelPrice(level int) decimal.Decimal {
	factor := decimal.NewFromInt(1).Add(g.StepPct.Mul(decimal.NewFromInt(int64(level))))
	return g.Center.Mul(factor)
}

func orderInfo(ex exchange.Exchange, id string) (matching.Order, error) {
	type infoGetter interface {
		GetOrderInfo(id string) (matching.Order, error)
	}
	if g, ok := ex.(infoGetter); ok {
		return g.GetOrderInfo(id)
	}
	return matching.Order{}, fmt.Errorf("strategy: exchange does not support order lookup")
}
