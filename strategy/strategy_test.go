package strategy

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/colinmarc/eventrader/balances"
	"github.com/colinmarc/eventrader/event"
	"github.com/colinmarc/eventrader/exchange"
	"github.com/colinmarc/eventrader/matching"
)

// fakeExchange is a minimal in-memory exchange.Exchange double for testing
// strategies without a full BacktestingExchange/dispatcher wiring.
type fakeExchange struct {
	orders       map[string]*matching.Order
	nextID       int
	marketOrders []matching.Side
	supportsInfo bool
}

func newFakeExchange(supportsInfo bool) *fakeExchange {
	return &fakeExchange{orders: make(map[string]*matching.Order), supportsInfo: supportsInfo}
}

func (f *fakeExchange) newOrder(side matching.Side, typ matching.Type, amount decimal.Decimal, limitPrice *decimal.Decimal) matching.Order {
	f.nextID++
	id := fmt.Sprintf("order-%d", f.nextID)
	o := &matching.Order{ID: id, Side: side, Type: typ, Amount: amount, LimitPrice: limitPrice, State: matching.StateOpen}
	f.orders[id] = o
	return *o
}

func (f *fakeExchange) SubscribeToBarEvents(pair string, period time.Duration, h exchange.BarHandler) error {
	return nil
}

func (f *fakeExchange) CreateMarketOrder(pair string, side matching.Side, amount decimal.Decimal) (matching.Order, error) {
	f.marketOrders = append(f.marketOrders, side)
	return f.newOrder(side, matching.Market, amount, nil), nil
}

func (f *fakeExchange) CreateLimitOrder(pair string, side matching.Side, amount, limitPrice decimal.Decimal) (matching.Order, error) {
	return f.newOrder(side, matching.Limit, amount, &limitPrice), nil
}

func (f *fakeExchange) CreateStopLimitOrder(pair string, side matching.Side, amount, stopPrice, limitPrice decimal.Decimal) (matching.Order, error) {
	return f.newOrder(side, matching.StopLimit, amount, &limitPrice), nil
}

func (f *fakeExchange) CancelOrder(id string) error {
	if o, ok := f.orders[id]; ok {
		o.State = matching.StateCanceled
		return nil
	}
	return fmt.Errorf("not found")
}

func (f *fakeExchange) GetBalance(symbol string) (balances.Balance, error) {
	return balances.Balance{}, nil
}

func (f *fakeExchange) GetOpenOrders(pair string) ([]matching.Order, error) {
	return nil, nil
}

func (f *fakeExchange) GetOrderInfo(id string) (matching.Order, error) {
	if !f.supportsInfo {
		return matching.Order{}, fmt.Errorf("strategy: exchange does not support order lookup")
	}
	o, ok := f.orders[id]
	if !ok {
		return matching.Order{}, fmt.Errorf("not found")
	}
	return *o, nil
}

func maBar(close string, seconds int) event.Bar {
	return event.Bar{
		Pair: "BTC/USD", Period: time.Minute,
		Close:     decimal.RequireFromString(close),
		Open:      decimal.RequireFromString(close),
		High:      decimal.RequireFromString(close),
		Low:       decimal.RequireFromString(close),
		Volume:    decimal.Zero,
		CloseTime: time.Date(2024, 1, 1, 0, 0, seconds, 0, time.UTC),
	}
}

func TestSMAComputesArithmeticMean(t *testing.T) {
	got := sma([]decimal.Decimal{decimal.NewFromInt(1), decimal.NewFromInt(2), decimal.NewFromInt(3)})
	if !got.Equal(decimal.NewFromInt(2)) {
		t.Errorf("expected mean 2, got %s", got)
	}
}

func TestMovingAverageCrossoverBuysOnUpwardCross(t *testing.T) {
	fx := newFakeExchange(false)
	s := NewMovingAverageCrossover(fx, "BTC/USD", 2, 4, decimal.NewFromInt(1))

	closes := []string{"100", "100", "100", "100", "110", "120"}
	for i, c := range closes {
		if err := s.OnBar(context.Background(), maBar(c, i)); err != nil {
			t.Fatalf("OnBar: %v", err)
		}
	}

	if len(fx.marketOrders) != 1 || fx.marketOrders[0] != matching.Buy {
		t.Errorf("expected exactly one market buy once the fast SMA crosses above the slow SMA, got %v", fx.marketOrders)
	}
	if !s.long {
		t.Error("expected strategy to record itself as long after crossing up")
	}
}

func TestMovingAverageCrossoverSellsOnDownwardCross(t *testing.T) {
	fx := newFakeExchange(false)
	s := NewMovingAverageCrossover(fx, "BTC/USD", 2, 4, decimal.NewFromInt(1))

	up := []string{"100", "100", "100", "100", "110", "120"}
	for i, c := range up {
		_ = s.OnBar(context.Background(), maBar(c, i))
	}
	down := []string{"90", "80"}
	for i, c := range down {
		if err := s.OnBar(context.Background(), maBar(c, len(up)+i)); err != nil {
			t.Fatalf("OnBar: %v", err)
		}
	}

	if len(fx.marketOrders) != 2 || fx.marketOrders[1] != matching.Sell {
		t.Errorf("expected a buy then a sell once the fast SMA crosses back below, got %v", fx.marketOrders)
	}
	if s.long {
		t.Error("expected strategy to no longer be long after crossing down")
	}
}

func TestGridLaysInitialLadderOnFirstBar(t *testing.T) {
	fx := newFakeExchange(true)
	g := NewGrid(fx, "BTC/USD", decimal.NewFromInt(100), decimal.NewFromFloat(0.01), 3, decimal.NewFromInt(1))

	if err := g.OnBar(context.Background(), maBar("100", 0)); err != nil {
		t.Fatalf("OnBar: %v", err)
	}
	if len(g.buyIDs) != 3 || len(g.sellIDs) != 3 {
		t.Fatalf("expected 3 buy and 3 sell rungs, got %d buy %d sell", len(g.buyIDs), len(g.sellIDs))
	}
}

func TestGridReArmsFilledRungs(t *testing.T) {
	fx := newFakeExchange(true)
	g := NewGrid(fx, "BTC/USD", decimal.NewFromInt(100), decimal.NewFromFloat(0.01), 1, decimal.NewFromInt(1))

	if err := g.OnBar(context.Background(), maBar("100", 0)); err != nil {
		t.Fatalf("first OnBar: %v", err)
	}
	var filledID string
	for id := range g.buyIDs {
		filledID = id
	}
	fx.orders[filledID].State = matching.StateFilled

	if err := g.OnBar(context.Background(), maBar("99", 1)); err != nil {
		t.Fatalf("second OnBar: %v", err)
	}
	if _, stillThere := g.buyIDs[filledID]; stillThere {
		t.Error("expected the filled rung's old order ID to be replaced")
	}
	if len(g.buyIDs) != 1 {
		t.Errorf("expected the buy side to still have exactly 1 rung after re-arming, got %d", len(g.buyIDs))
	}
}

func TestGridOnBarReArmsEveryRungWhenExchangeLacksOrderLookup(t *testing.T) {
	fx := newFakeExchange(false)
	g := NewGrid(fx, "BTC/USD", decimal.NewFromInt(100), decimal.NewFromFloat(0.01), 1, decimal.NewFromInt(1))
	if err := g.OnBar(context.Background(), maBar("100", 0)); err != nil {
		t.Fatalf("first OnBar: %v", err)
	}

	// Without order-lookup support, orderInfo always errors, so every rung
	// is treated as terminal and re-armed (re-placed) on each subsequent bar.
	before := len(g.buyIDs)
	if err := g.OnBar(context.Background(), maBar("99", 1)); err != nil {
		t.Fatalf("second OnBar: %v", err)
	}
	if len(g.buyIDs) != before {
		t.Errorf("expected rung count unchanged (old IDs dropped, same count replaced), got %d vs %d", len(g.buyIDs), before)
	}
}

func TestLevelPriceStepsAwayFromCenter(t *testing.T) {
	g := &Grid{Center: decimal.NewFromInt(100), StepPct: decimal.NewFromFloat(0.01)}
	if !g.levelPrice(1).Equal(decimal.NewFromInt(101)) {
		t.Errorf("expected level 1 price 101, got %s", g.levelPrice(1))
	}
	if !g.levelPrice(-1).Equal(decimal.NewFromInt(99)) {
		t.Errorf("expected level -1 price 99, got %s", g.levelPrice(-1))
	}
}
