package liquidity

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/colinmarc/eventrader/event"
	"github.com/colinmarc/eventrader/matching"
)

func sampleBar() event.Bar {
	return event.Bar{
		Pair:      "BTC/USD",
		Period:    time.Minute,
		Open:      decimal.NewFromFloat(100),
		High:      decimal.NewFromFloat(110),
		Low:       decimal.NewFromFloat(90),
		Close:     decimal.NewFromFloat(105),
		Volume:    decimal.NewFromFloat(40),
		CloseTime: time.Date(2024, 1, 1, 0, 1, 0, 0, time.UTC),
	}
}

func TestNewDefaultIsQuarterVolumeZeroSlippage(t *testing.T) {
	m := NewDefault()
	if !m.VolumeFraction.Equal(decimal.NewFromFloat(0.25)) {
		t.Errorf("expected 0.25 volume fraction, got %s", m.VolumeFraction)
	}
	if !m.SlippageFactor.IsZero() {
		t.Errorf("expected zero slippage factor, got %s", m.SlippageFactor)
	}
}

func TestAvailableVolumeIsFractionOfBarVolume(t *testing.T) {
	m := NewDefault()
	got := m.AvailableVolume(sampleBar())
	want := decimal.NewFromFloat(10) // 40 * 0.25
	if !got.Equal(want) {
		t.Errorf("expected available volume %s, got %s", want, got)
	}
}

func TestRepresentativePriceIsOpenWhenSlippageDisabled(t *testing.T) {
	m := NewDefault()
	bar := sampleBar()
	got := m.RepresentativePrice(bar, decimal.NewFromFloat(4), matching.Buy)
	if !got.Equal(bar.Open) {
		t.Errorf("expected representative price to equal bar open %s, got %s", bar.Open, got)
	}
}

func TestRepresentativePriceMovesUpForBuysWhenSlippageEnabled(t *testing.T) {
	m := Default{VolumeFraction: decimal.NewFromFloat(0.25), SlippageFactor: decimal.NewFromFloat(1)}
	bar := sampleBar()
	consumed := bar.Volume.Div(decimal.NewFromFloat(2)) // half the bar's volume
	got := m.RepresentativePrice(bar, consumed, matching.Buy)
	if !got.GreaterThan(bar.Open) {
		t.Errorf("expected buy slippage to push price above open %s, got %s", bar.Open, got)
	}
}

func TestRepresentativePriceMovesDownForSellsWhenSlippageEnabled(t *testing.T) {
	m := Default{VolumeFraction: decimal.NewFromFloat(0.25), SlippageFactor: decimal.NewFromFloat(1)}
	bar := sampleBar()
	consumed := bar.Volume.Div(decimal.NewFromFloat(2))
	got := m.RepresentativePrice(bar, consumed, matching.Sell)
	if !got.LessThan(bar.Open) {
		t.Errorf("expected sell slippage to push price below open %s, got %s", bar.Open, got)
	}
}
