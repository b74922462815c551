// Package lending implements the optional margin-lending collaborator
// (spec §4.8): borrowing against a symbol, per-tick interest accrual, and
// repayment, backed by a balances.Ledger's borrowed field.
package lending

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/colinmarc/eventrader/balances"
)

// Loan is an open or closed margin loan against one symbol.
type Loan struct {
	ID        string
	Symbol    string
	Principal decimal.Decimal
	Accrued   decimal.Decimal
	OpenedAt  time.Time
	ClosedAt  time.Time
	closed    bool
}

// Outstanding returns the amount still owed: principal plus accrued
// interest.
func (l *Loan) Outstanding() decimal.Decimal {
	return l.Principal.Add(l.Accrued)
}

// Closed reports whether the loan has been fully repaid.
func (l *Loan) Closed() bool { return l.closed }

// Pool is the exchange's optional margin-lending collaborator. It is
// installed only for margin exchange variants (spec §9's composition
// guidance); spot exchanges never construct one.
type Pool struct {
	ledger *balances.Ledger
	rate   decimal.Decimal // interest rate per accrual tick, as a fraction

	mu    sync.Mutex
	loans map[string]*Loan
}

// NewPool creates a lending Pool backed by ledger, charging rate interest
// (a fraction, e.g. 0.0001 for 1bp) on each loan's outstanding balance
// (principal plus accrued interest) each time Accrue runs.
func NewPool(ledger *balances.Ledger, rate decimal.Decimal) *Pool {
	return &Pool{ledger: ledger, rate: rate, loans: make(map[string]*Loan)}
}

// Borrow opens a new loan crediting symbol's available balance with
// amount.
func (p *Pool) Borrow(symbol string, amount decimal.Decimal, when time.Time) (*Loan, error) {
	if amount.IsNegative() || amount.IsZero() {
		return nil, fmt.Errorf("lending: borrow amount must be positive, got %s", amount)
	}
	loan := &Loan{
		ID:        uuid.NewString(),
		Symbol:    symbol,
		Principal: amount,
		Accrued:   decimal.Zero,
		OpenedAt:  when,
	}
	p.ledger.Borrow(symbol, amount)

	p.mu.Lock()
	p.loans[loan.ID] = loan
	p.mu.Unlock()
	return loan, nil
}

// Repay pays down loan by amount, crediting principal first then accrued
// interest. Repaying the full outstanding balance (principal + accrued)
// closes the loan and restores zero outstanding borrowed balance for that
// symbol (spec §8's round-trip property).
func (p *Pool) Repay(loan *Loan, amount decimal.Decimal, when time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if loan.closed {
		return fmt.Errorf("lending: loan %s already closed", loan.ID)
	}
	if err := p.ledger.Repay(loan.Symbol, amount); err != nil {
		return err
	}

	remaining := amount
	toPrincipal := decimal.Min(remaining, loan.Principal)
	loan.Principal = loan.Principal.Sub(toPrincipal)
	remaining = remaining.Sub(toPrincipal)

	toAccrued := decimal.Min(remaining, loan.Accrued)
	loan.Accrued = loan.Accrued.Sub(toAccrued)

	if loan.Principal.IsZero() && loan.Accrued.IsZero() {
		loan.closed = true
		loan.ClosedAt = when
	}
	return nil
}

// Accrue adds interest to every open loan: Outstanding() * rate (principal
// plus interest already accrued), added to Accrued, so interest compounds. The dispatcher drives this via a scheduled callback at a
// fixed cadence (spec §4.8).
func (p *Pool) Accrue(until time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, loan := range p.loans {
		if loan.closed {
			continue
		}
		interest := loan.Outstanding().Mul(p.rate)
		loan.Accrued = loan.Accrued.Add(interest)
		p.ledger.AccrueInterest(loan.Symbol, interest)
	}
}

// OpenLoans returns every loan that has not been fully repaid.
func (p *Pool) OpenLoans() []*Loan {
	p.mu.Lock()
	defer p.mu.Unlock()
	var open []*Loan
	for _, loan := range p.loans {
		if !loan.closed {
			open = append(open, loan)
		}
	}
	return open
}

// CloseAllLoans is the shutdown guard from spec §4.8: it returns every
// still-open loan for reporting, without modifying ledger state (an
// operator decides out-of-band whether to force-liquidate).
func (p *Pool) CloseAllLoans() []*Loan {
	return p.OpenLoans()
}
