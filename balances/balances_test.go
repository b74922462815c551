package balances

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/colinmarc/eventrader/tradeerr"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestCreditIncreasesAvailable(t *testing.T) {
	l := New()
	l.Credit("USD", d("100"))
	bal := l.Get("USD")
	if !bal.Available.Equal(d("100")) {
		t.Errorf("expected available 100, got %s", bal.Available)
	}
}

func TestHoldMovesFromAvailableToHold(t *testing.T) {
	l := New()
	l.Credit("USD", d("100"))
	if err := l.Hold("USD", d("40")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	bal := l.Get("USD")
	if !bal.Available.Equal(d("60")) {
		t.Errorf("expected available 60, got %s", bal.Available)
	}
	if !bal.Hold.Equal(d("40")) {
		t.Errorf("expected hold 40, got %s", bal.Hold)
	}
}

func TestHoldFailsOnInsufficientAvailable(t *testing.T) {
	l := New()
	l.Credit("USD", d("10"))
	err := l.Hold("USD", d("11"))
	if !errors.Is(err, tradeerr.ErrInsufficientBalance) {
		t.Errorf("expected ErrInsufficientBalance, got %v", err)
	}
	bal := l.Get("USD")
	if !bal.Available.Equal(d("10")) {
		t.Errorf("expected available unchanged at 10, got %s", bal.Available)
	}
}

func TestHoldThenReleaseRoundTripsToOriginalBalance(t *testing.T) {
	l := New()
	l.Credit("USD", d("100"))
	if err := l.Hold("USD", d("40")); err != nil {
		t.Fatalf("hold: %v", err)
	}
	if err := l.Release("USD", d("40")); err != nil {
		t.Fatalf("release: %v", err)
	}
	bal := l.Get("USD")
	if !bal.Available.Equal(d("100")) || !bal.Hold.IsZero() {
		t.Errorf("expected round-trip to restore available=100 hold=0, got available=%s hold=%s", bal.Available, bal.Hold)
	}
}

func TestReleaseFailsWhenExceedingHold(t *testing.T) {
	l := New()
	l.Credit("USD", d("100"))
	_ = l.Hold("USD", d("10"))
	if err := l.Release("USD", d("20")); err == nil {
		t.Error("expected error releasing more than held, got nil")
	}
}

func TestTransferCommitsAllLegsAtomically(t *testing.T) {
	l := New()
	l.Credit("USD", d("1000"))
	_ = l.Hold("USD", d("500"))

	err := l.Transfer(Leg{
		FromSymbol: "USD", FromHold: d("500"),
		ToSymbol: "BTC", ToAmount: d("0.01"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	usd := l.Get("USD")
	btc := l.Get("BTC")
	if !usd.Hold.IsZero() {
		t.Errorf("expected USD hold drained to 0, got %s", usd.Hold)
	}
	if !btc.Available.Equal(d("0.01")) {
		t.Errorf("expected BTC available 0.01, got %s", btc.Available)
	}
}

func TestTransferRejectsWhenAnyLegOverdraws(t *testing.T) {
	l := New()
	l.Credit("USD", d("100"))
	_ = l.Hold("USD", d("50"))
	l.Credit("EUR", d("10"))

	err := l.Transfer(
		Leg{FromSymbol: "USD", FromHold: d("50"), ToSymbol: "BTC", ToAmount: d("1")},
		Leg{FromSymbol: "EUR", FromAvailable: d("100"), ToSymbol: "BTC", ToAmount: d("1")},
	)
	if !errors.Is(err, tradeerr.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}

	// No leg should have committed.
	usd := l.Get("USD")
	if !usd.Hold.Equal(d("50")) {
		t.Errorf("expected USD hold unchanged at 50 after rejected transfer, got %s", usd.Hold)
	}
	btc := l.Get("BTC")
	if !btc.Available.IsZero() {
		t.Errorf("expected BTC untouched after rejected transfer, got %s", btc.Available)
	}
}

func TestBorrowThenRepayRoundTripsBorrowedToZero(t *testing.T) {
	l := New()
	l.Borrow("USD", d("200"))
	bal := l.Get("USD")
	if !bal.Borrowed.Equal(d("200")) || !bal.Available.Equal(d("200")) {
		t.Fatalf("expected borrow to credit available and record borrowed, got %+v", bal)
	}

	if err := l.Repay("USD", d("200")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	bal = l.Get("USD")
	if !bal.Borrowed.IsZero() || !bal.Available.IsZero() {
		t.Errorf("expected round-trip to restore borrowed=0 available=0, got %+v", bal)
	}
}

func TestEquityAccountsForBorrowed(t *testing.T) {
	bal := Balance{Available: d("50"), Hold: d("10"), Borrowed: d("20")}
	if !bal.Equity().Equal(d("40")) {
		t.Errorf("expected equity 40, got %s", bal.Equity())
	}
}

func TestAllReturnsEverySymbol(t *testing.T) {
	l := New()
	l.Credit("USD", d("1"))
	l.Credit("BTC", d("1"))
	all := l.All()
	if len(all) != 2 {
		t.Errorf("expected 2 tracked symbols, got %d", len(all))
	}
}
