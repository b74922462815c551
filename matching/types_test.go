package matching

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestSymbolsSplitsPair(t *testing.T) {
	base, quote, err := Symbols("BTC/USD")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if base != "BTC" || quote != "USD" {
		t.Errorf("expected BTC/USD, got %s/%s", base, quote)
	}
}

func TestSymbolsRejectsMalformedPair(t *testing.T) {
	if _, _, err := Symbols("BTCUSD"); err == nil {
		t.Error("expected error for pair without a separator, got nil")
	}
	if _, _, err := Symbols("BTC/"); err == nil {
		t.Error("expected error for pair with empty quote symbol, got nil")
	}
}

func TestTruncateAmountTruncatesTowardZero(t *testing.T) {
	got := TruncateAmount(decimal.RequireFromString("1.23456789"), 4)
	want := decimal.RequireFromString("1.2345")
	if !got.Equal(want) {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestRoundPriceRoundsHalfUp(t *testing.T) {
	got := RoundPrice(decimal.RequireFromString("100.005"), 2)
	want := decimal.RequireFromString("100.01")
	if !got.Equal(want) {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestRoundFeeUpRoundsAwayFromZero(t *testing.T) {
	got := RoundFeeUp(decimal.RequireFromString("0.1001"), 2)
	want := decimal.RequireFromString("0.11")
	if !got.Equal(want) {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestOrderRemainingIsAmountMinusFilled(t *testing.T) {
	o := Order{Amount: decimal.NewFromInt(10), Filled: decimal.NewFromInt(3)}
	if !o.Remaining().Equal(decimal.NewFromInt(7)) {
		t.Errorf("expected remaining 7, got %s", o.Remaining())
	}
}

func TestOrderMakerIsFalseForMarketOrders(t *testing.T) {
	o := Order{Type: Market}
	if o.Maker() {
		t.Error("expected market order to never be a maker")
	}
}

func TestOrderMakerIsFalseForJustTriggeredStopLimit(t *testing.T) {
	o := Order{Type: StopLimit, triggeredThisBar: true}
	if o.Maker() {
		t.Error("expected a stop-limit order that just triggered this bar to be a taker")
	}
}

func TestOrderMakerIsTrueForRestingLimit(t *testing.T) {
	o := Order{Type: Limit}
	if !o.Maker() {
		t.Error("expected a resting limit order to be a maker")
	}
}

func TestStateTerminalClassification(t *testing.T) {
	terminal := []State{StateFilled, StateCanceled, StateRejected}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("expected %s to be terminal", s)
		}
	}
	nonTerminal := []State{StateNew, StatePendingTrigger, StateOpen, StatePartiallyFilled}
	for _, s := range nonTerminal {
		if s.Terminal() {
			t.Errorf("expected %s to not be terminal", s)
		}
	}
}

func TestStateRestingClassification(t *testing.T) {
	if !StateOpen.resting() || !StatePartiallyFilled.resting() {
		t.Error("expected OPEN and PARTIALLY_FILLED to be resting")
	}
	if StateNew.resting() || StatePendingTrigger.resting() || StateFilled.resting() {
		t.Error("expected NEW, PENDING_TRIGGER, and FILLED to not be resting")
	}
}
