// Package balances implements the transactional per-symbol balance ledger
// (spec §4.7): available/hold/borrowed, with atomic hold/release/transfer
// operations and an overdraft guard.
package balances

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/colinmarc/eventrader/tradeerr"
)

// Balance is one symbol's ledger entry. available + hold - borrowed is
// that symbol's equity.
type Balance struct {
	Available decimal.Decimal
	Hold      decimal.Decimal
	Borrowed  decimal.Decimal
}

// Equity returns available + hold - borrowed.
func (b Balance) Equity() decimal.Decimal {
	return b.Available.Add(b.Hold).Sub(b.Borrowed)
}

// Ledger tracks per-symbol balances. All mutating operations are
// transactional: either every line of a transfer commits, or none does.
// The OrderManager is the ledger's sole owner and touches it only from the
// dispatcher task, so no internal locking would be strictly necessary
// (spec §5); a mutex is kept anyway so façade callers (GetBalance) can read
// a consistent snapshot without routing through the dispatcher task.
type Ledger struct {
	mu       sync.Mutex
	balances map[string]*Balance
}

// New creates an empty Ledger.
func New() *Ledger {
	return &Ledger{balances: make(map[string]*Balance)}
}

// Credit adds amount to symbol's available balance, unconditionally. Used
// to fund a backtest's starting balances.
func (l *Ledger) Credit(symbol string, amount decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b := l.get(symbol)
	b.Available = b.Available.Add(amount)
}

// Get returns a copy of symbol's balance.
func (l *Ledger) Get(symbol string) Balance {
	l.mu.Lock()
	defer l.mu.Unlock()
	return *l.get(symbol)
}

// All returns a copy of every tracked symbol's balance.
func (l *Ledger) All() map[string]Balance {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]Balance, len(l.balances))
	for sym, b := range l.balances {
		out[sym] = *b
	}
	return out
}

func (l *Ledger) get(symbol string) *Balance {
	b, ok := l.balances[symbol]
	if !ok {
		b = &Balance{Available: decimal.Zero, Hold: decimal.Zero, Borrowed: decimal.Zero}
		l.balances[symbol] = b
	}
	return b
}

// Hold moves amount from symbol's available balance into hold. Fails with
// tradeerr.ErrInsufficientBalance (and changes nothing) if available is
// short.
func (l *Ledger) Hold(symbol string, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("balances: hold amount must be non-negative, got %s", amount)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	b := l.get(symbol)
	if b.Available.LessThan(amount) {
		return fmt.Errorf("balances: %w: %s available %s, need %s", tradeerr.ErrInsufficientBalance, symbol, b.Available, amount)
	}
	b.Available = b.Available.Sub(amount)
	b.Hold = b.Hold.Add(amount)
	return nil
}

// Release moves amount from symbol's hold back into available. It is the
// exact inverse of Hold: Hold(s, a) followed by Release(s, a) restores the
// balance unchanged (spec §8's round-trip property).
func (l *Ledger) Release(symbol string, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("balances: release amount must be non-negative, got %s", amount)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	b := l.get(symbol)
	if b.Hold.LessThan(amount) {
		return fmt.Errorf("balances: release amount %s exceeds held %s for %s", amount, b.Hold, symbol)
	}
	b.Hold = b.Hold.Sub(amount)
	b.Available = b.Available.Add(amount)
	return nil
}

// Leg is one line of a Transfer: debit fromHold (if > 0) and fromAvailable
// (if > 0) of fromSymbol, then credit toSymbol's available balance with
// toAmount.
type Leg struct {
	FromSymbol    string
	FromHold      decimal.Decimal
	FromAvailable decimal.Decimal
	ToSymbol      string
	ToAmount      decimal.Decimal
}

// Transfer atomically debits each leg's from-side and credits its to-side.
// If any leg would overdraw, no leg commits and
// tradeerr.ErrInsufficientBalance is returned. Used on every fill: release
// (or consume) the hold placed at order submission, debit the paid symbol,
// credit the received symbol minus fees (spec §4.6 step 5, §4.7).
func (l *Ledger) Transfer(legs ...Leg) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, leg := range legs {
		from := l.get(leg.FromSymbol)
		if from.Hold.LessThan(leg.FromHold) {
			return fmt.Errorf("balances: %w: %s hold %s, need %s", tradeerr.ErrInsufficientBalance, leg.FromSymbol, from.Hold, leg.FromHold)
		}
		if from.Available.LessThan(leg.FromAvailable) {
			return fmt.Errorf("balances: %w: %s available %s, need %s", tradeerr.ErrInsufficientBalance, leg.FromSymbol, from.Available, leg.FromAvailable)
		}
	}

	for _, leg := range legs {
		from := l.get(leg.FromSymbol)
		from.Hold = from.Hold.Sub(leg.FromHold)
		from.Available = from.Available.Sub(leg.FromAvailable)
		to := l.get(leg.ToSymbol)
		to.Available = to.Available.Add(leg.ToAmount)
	}
	return nil
}

// Borrow credits symbol's available balance by amount and records it as
// borrowed, for use by the lending package.
func (l *Ledger) Borrow(symbol string, amount decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b := l.get(symbol)
	b.Available = b.Available.Add(amount)
	b.Borrowed = b.Borrowed.Add(amount)
}

// Repay debits symbol's available balance by amount and reduces borrowed
// by the same amount. Fails if available is short.
func (l *Ledger) Repay(symbol string, amount decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	b := l.get(symbol)
	if b.Available.LessThan(amount) {
		return fmt.Errorf("balances: %w: %s available %s, need %s to repay", tradeerr.ErrInsufficientBalance, symbol, b.Available, amount)
	}
	b.Available = b.Available.Sub(amount)
	b.Borrowed = b.Borrowed.Sub(amount)
	if b.Borrowed.IsNegative() {
		b.Borrowed = decimal.Zero
	}
	return nil
}

// AccrueInterest adds amount directly to symbol's borrowed balance,
// without touching available — interest owed but not yet funded.
func (l *Ledger) AccrueInterest(symbol string, amount decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b := l.get(symbol)
	b.Borrowed = b.Borrowed.Add(amount)
}
