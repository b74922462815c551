package event

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func newValidBar() Bar {
	return Bar{
		Pair:      "BTC/USD",
		Period:    time.Minute,
		Open:      decimal.NewFromFloat(100),
		High:      decimal.NewFromFloat(110),
		Low:       decimal.NewFromFloat(95),
		Close:     decimal.NewFromFloat(105),
		Volume:    decimal.NewFromFloat(10),
		CloseTime: time.Date(2024, 1, 1, 0, 1, 0, 0, time.UTC),
	}
}

func TestBarValidateAcceptsWellFormedBar(t *testing.T) {
	bar := newValidBar()
	if err := bar.Validate(); err != nil {
		t.Errorf("expected valid bar to pass validation, got %v", err)
	}
}

func TestBarValidateRejectsNonPositivePeriod(t *testing.T) {
	bar := newValidBar()
	bar.Period = 0
	if err := bar.Validate(); err == nil {
		t.Error("expected error for zero period, got nil")
	}
}

func TestBarValidateRejectsNegativeVolume(t *testing.T) {
	bar := newValidBar()
	bar.Volume = decimal.NewFromFloat(-1)
	if err := bar.Validate(); err == nil {
		t.Error("expected error for negative volume, got nil")
	}
}

func TestBarValidateRejectsOpenAboveHigh(t *testing.T) {
	bar := newValidBar()
	bar.Open = decimal.NewFromFloat(111)
	if err := bar.Validate(); err == nil {
		t.Error("expected error for open above high, got nil")
	}
}

func TestBarValidateRejectsCloseBelowLow(t *testing.T) {
	bar := newValidBar()
	bar.Close = decimal.NewFromFloat(90)
	if err := bar.Validate(); err == nil {
		t.Error("expected error for close below low, got nil")
	}
}

func TestBarValidateRejectsZeroCloseTime(t *testing.T) {
	bar := newValidBar()
	bar.CloseTime = time.Time{}
	defer func() {
		if recover() == nil {
			t.Error("expected RequireAware to panic on zero CloseTime")
		}
	}()
	_ = bar.Validate()
}

func TestBarWhenReturnsCloseTime(t *testing.T) {
	bar := newValidBar()
	if !bar.When().Equal(bar.CloseTime) {
		t.Errorf("expected When() to equal CloseTime, got %v vs %v", bar.When(), bar.CloseTime)
	}
}

func TestBarKindIsBar(t *testing.T) {
	if newValidBar().Kind() != KindBar {
		t.Errorf("expected Kind() to be %q", KindBar)
	}
}

func TestOrderBookUpdateWhenReturnsInstant(t *testing.T) {
	instant := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	u := OrderBookUpdate{Pair: "BTC/USD", Instant: instant}
	if !u.When().Equal(instant) {
		t.Errorf("expected When() to equal Instant, got %v vs %v", u.When(), instant)
	}
	if u.Kind() != KindOrderBookUpdate {
		t.Errorf("expected Kind() to be %q", KindOrderBookUpdate)
	}
}
