// Package exchange provides the uniform order/trading façade strategies
// are written against (spec §4.9): subscribe to bar events, place and
// cancel orders, query balances and open orders. BacktestingExchange
// routes to an in-process OrderManager; LiveExchange routes to an
// out-of-scope REST/WebSocket collaborator, specified here only by its
// interface shape.
package exchange

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/colinmarc/eventrader/balances"
	"github.com/colinmarc/eventrader/dispatcher"
	"github.com/colinmarc/eventrader/event"
	"github.com/colinmarc/eventrader/fees"
	"github.com/colinmarc/eventrader/lending"
	"github.com/colinmarc/eventrader/logging"
	"github.com/colinmarc/eventrader/matching"
	"github.com/colinmarc/eventrader/source"
)

// BarHandler processes a bar event for the pair it was subscribed under.
type BarHandler func(ctx context.Context, bar event.Bar) error

// Exchange is the façade both the backtesting and live variants satisfy,
// so a strategy built against it runs unchanged in either mode (spec
// §4.9's interchangeability guarantee).
type Exchange interface {
	SubscribeToBarEvents(pair string, period time.Duration, h BarHandler) error
	CreateMarketOrder(pair string, side matching.Side, amount decimal.Decimal) (matching.Order, error)
	CreateLimitOrder(pair string, side matching.Side, amount, limitPrice decimal.Decimal) (matching.Order, error)
	CreateStopLimitOrder(pair string, side matching.Side, amount, stopPrice, limitPrice decimal.Decimal) (matching.Order, error)
	CancelOrder(id string) error
	GetBalance(symbol string) (balances.Balance, error)
	GetOpenOrders(pair string) ([]matching.Order, error)
}

// TradeObserver is notified of every trade the backtesting exchange
// executes, mirroring the teacher's TradeStream channel (engine/engine.go)
// generalized from live streaming to a synchronous callback appropriate
// for single-threaded backtesting.
type TradeObserver func(matching.Trade)

// FillObserver is notified of every order-fill status change.
type FillObserver func(matching.Fill)

// BacktestingExchange wires an OrderManager, Ledger, Fees model,
// Liquidity model, and optional LendingPool behind the Exchange façade,
// driven by bar events from a Dispatcher (spec §4.9, §2 item 6).
type BacktestingExchange struct {
	disp    dispatcher.Dispatcher
	manager *matching.Manager
	ledger  *balances.Ledger
	pool    *lending.Pool
	now     func() time.Time
	logger  zerolog.Logger

	accrualCadence time.Duration
	accrualArmed   bool

	tradeObservers []TradeObserver
	fillObservers  []FillObserver
}

// Option configures a BacktestingExchange at construction.
type Option func(*BacktestingExchange)

// WithLendingPool installs a lending pool behind CloseAllLoans and the
// exchange's internal accrual callback. Omit for a spot-only exchange
// variant.
func WithLendingPool(pool *lending.Pool) Option {
	return func(e *BacktestingExchange) { e.pool = pool }
}

// WithLendingAccrualCadence overrides the interval between scheduled
// lending.Pool.Accrue calls (spec §4.8: "accrual is driven by a
// dispatcher-scheduled callback at a fixed cadence"). Only meaningful
// alongside WithLendingPool. Defaults to one simulated hour, matching
// spec §8's E5 scenario.
func WithLendingAccrualCadence(cadence time.Duration) Option {
	return func(e *BacktestingExchange) { e.accrualCadence = cadence }
}

// NewBacktestingExchange creates a BacktestingExchange. disp is used to
// subscribe to bar events and to schedule lending accrual. Order
// timestamps come from the wall clock (time.Now), not from disp.
func NewBacktestingExchange(disp dispatcher.Dispatcher, ledger *balances.Ledger, feesModel fees.Model, liqModel matching.LiquidityModel, opts ...Option) *BacktestingExchange {
	e := &BacktestingExchange{
		disp:   disp,
		ledger: ledger,
		now:    time.Now,
		logger: logging.WithComponent("exchange"),
	}
	var managerOpts []matching.Option
	for _, opt := range opts {
		opt(e)
	}
	if e.pool != nil {
		managerOpts = append(managerOpts, matching.WithLendingPool(e.pool))
		if e.accrualCadence <= 0 {
			e.accrualCadence = time.Hour
		}
	}
	e.manager = matching.NewManager(ledger, feesModel, liqModel, managerOpts...)
	return e
}

// armAccrual schedules the first lending accrual tick, anchored at
// first — the close time of the first bar this exchange ever processes.
// It is a no-op without a lending pool installed, and only arms once.
// Anchoring on a bar's own close time (rather than scheduling up front,
// before the virtual clock has ever advanced) keeps the schedule grounded
// in simulated time instead of wall-clock time.
func (e *BacktestingExchange) armAccrual(first time.Time) {
	if e.pool == nil || e.accrualCadence <= 0 || e.accrualArmed {
		return
	}
	e.accrualArmed = true
	e.scheduleAccrual(first.Add(e.accrualCadence))
}

// scheduleAccrual schedules a single accrual tick at at, which re-arms
// itself for the next tick once it runs (spec §4.8's "driven by a
// dispatcher-scheduled callback at a fixed cadence").
func (e *BacktestingExchange) scheduleAccrual(at time.Time) {
	if err := e.disp.Schedule(at, func() {
		e.pool.Accrue(at)
		e.logger.Debug().Time("at", at).Msg("lending interest accrued")
		e.scheduleAccrual(at.Add(e.accrualCadence))
	}); err != nil {
		e.logger.Warn().Err(err).Time("at", at).Msg("failed to schedule lending accrual")
	}
}

// RegisterPair declares a pair's precision to the order manager. It does
// not subscribe to the dispatcher: bars for the pair are matched only
// after SubscribeToBarEvents has been called for it.
func (e *BacktestingExchange) RegisterPair(pair string, precision matching.Precision) error {
	return e.manager.RegisterPair(pair, precision)
}

// OnTrade registers an observer invoked synchronously for every trade
// executed by ProcessBar, in execution order.
func (e *BacktestingExchange) OnTrade(obs TradeObserver) { e.tradeObservers = append(e.tradeObservers, obs) }

// OnFill registers an observer invoked synchronously for every order-fill
// status change produced by ProcessBar.
func (e *BacktestingExchange) OnFill(obs FillObserver) { e.fillObservers = append(e.fillObservers, obs) }

// SubscribeToBarEvents implements Exchange: it subscribes h to be called
// after the exchange's own ProcessBar has run for the bar, and ensures the
// pair's matching book processes every bar on this pair even if no
// strategy subscribes directly.
func (e *BacktestingExchange) SubscribeToBarEvents(pair string, period time.Duration, h BarHandler) error {
	e.disp.Subscribe(event.KindBar, pair, func(ctx context.Context, ev event.Event) error {
		bar, ok := ev.(event.Bar)
		if !ok {
			return fmt.Errorf("exchange: expected event.Bar, got %T", ev)
		}
		e.armAccrual(bar.CloseTime)
		trades, fills, err := e.manager.ProcessBar(bar)
		if err != nil {
			return fmt.Errorf("exchange: processing bar for %s: %w", pair, err)
		}
		e.logger.Debug().Str("pair", pair).Int("trades", len(trades)).Int("fills", len(fills)).Msg("bar processed")
		for _, t := range trades {
			for _, obs := range e.tradeObservers {
				obs(t)
			}
		}
		for _, f := range fills {
			for _, obs := range e.fillObservers {
				obs(f)
			}
		}
		if h == nil {
			return nil
		}
		return h(ctx, bar)
	})
	return nil
}

// CreateMarketOrder implements Exchange.
func (e *BacktestingExchange) CreateMarketOrder(pair string, side matching.Side, amount decimal.Decimal) (matching.Order, error) {
	o, err := e.manager.CreateMarketOrder(pair, side, amount, e.now())
	if o != nil {
		return *o, err
	}
	return matching.Order{}, err
}

// CreateLimitOrder implements Exchange.
func (e *BacktestingExchange) CreateLimitOrder(pair string, side matching.Side, amount, limitPrice decimal.Decimal) (matching.Order, error) {
	o, err := e.manager.CreateLimitOrder(pair, side, amount, limitPrice, e.now())
	if o != nil {
		return *o, err
	}
	return matching.Order{}, err
}

// CreateStopLimitOrder implements Exchange.
func (e *BacktestingExchange) CreateStopLimitOrder(pair string, side matching.Side, amount, stopPrice, limitPrice decimal.Decimal) (matching.Order, error) {
	o, err := e.manager.CreateStopLimitOrder(pair, side, amount, stopPrice, limitPrice, e.now())
	if o != nil {
		return *o, err
	}
	return matching.Order{}, err
}

// CancelOrder implements Exchange.
func (e *BacktestingExchange) CancelOrder(id string) error {
	return e.manager.CancelOrder(id)
}

// GetBalance implements Exchange.
func (e *BacktestingExchange) GetBalance(symbol string) (balances.Balance, error) {
	return e.ledger.Get(symbol), nil
}

// GetOpenOrders implements Exchange.
func (e *BacktestingExchange) GetOpenOrders(pair string) ([]matching.Order, error) {
	return e.manager.OpenOrdersForPair(pair), nil
}

// GetOrderInfo looks up a single order by ID. It is not part of the
// Exchange façade (spec §4.9 enumerates a narrower surface), but a
// strategy that needs it can optionally type-assert for this method, the
// same pattern strategy.orderInfo uses.
func (e *BacktestingExchange) GetOrderInfo(id string) (matching.Order, error) {
	return e.manager.GetOrderInfo(id)
}

// CloseAllLoans runs the lending.Pool shutdown guard from spec §4.8,
// returning every loan still open when the dispatcher stops, for
// reporting. It is a no-op returning nil if no lending pool was
// installed. The caller runs this after Dispatcher.Run returns.
func (e *BacktestingExchange) CloseAllLoans() []*lending.Loan {
	if e.pool == nil {
		return nil
	}
	return e.pool.CloseAllLoans()
}

// LiveCollaborator is the out-of-scope REST/WebSocket client interface
// (spec §6): the concrete Binance/Bitstamp implementations are not part
// of this repository, only the shape a LiveExchange drives.
type LiveCollaborator interface {
	SubscribeBars(pair string, period time.Duration) (source.EventSource, error)
	SubscribeOrderBook(pair string) (source.EventSource, error)
	SubmitOrder(order matching.Order) (string, error)
	CancelOrder(id string) error
	Balances() (map[string]balances.Balance, error)
	Start(ctx context.Context) error
	Stop() error
}

// LiveExchange satisfies Exchange by routing every call to a
// LiveCollaborator, letting a strategy written against Exchange run
// unchanged against a live venue (spec §4.9). It carries no matching
// logic of its own — all matching happens at the venue.
type LiveExchange struct {
	disp          dispatcher.Dispatcher
	collaborator  LiveCollaborator
	pendingOrders map[string]matching.Order
}

// NewLiveExchange creates a LiveExchange driven by disp and collaborator.
func NewLiveExchange(disp dispatcher.Dispatcher, collaborator LiveCollaborator) *LiveExchange {
	return &LiveExchange{disp: disp, collaborator: collaborator, pendingOrders: make(map[string]matching.Order)}
}

// SubscribeToBarEvents implements Exchange by registering a live bar
// source with the dispatcher and wiring h to its bar events.
func (e *LiveExchange) SubscribeToBarEvents(pair string, period time.Duration, h BarHandler) error {
	src, err := e.collaborator.SubscribeBars(pair, period)
	if err != nil {
		return fmt.Errorf("exchange: subscribing live bars for %s: %w", pair, err)
	}
	if err := e.disp.AddSource(src); err != nil {
		return err
	}
	e.disp.Subscribe(event.KindBar, pair, func(ctx context.Context, ev event.Event) error {
		bar, ok := ev.(event.Bar)
		if !ok {
			return fmt.Errorf("exchange: expected event.Bar, got %T", ev)
		}
		if h == nil {
			return nil
		}
		return h(ctx, bar)
	})
	return nil
}

func (e *LiveExchange) submit(pair string, side matching.Side, typ matching.Type, amount decimal.Decimal, limitPrice, stopPrice *decimal.Decimal) (matching.Order, error) {
	order := matching.Order{
		Pair: pair, Side: side, Type: typ, Amount: amount,
		LimitPrice: limitPrice, StopPrice: stopPrice, State: matching.StateNew,
	}
	id, err := e.collaborator.SubmitOrder(order)
	if err != nil {
		return matching.Order{}, fmt.Errorf("exchange: submitting order: %w", err)
	}
	order.ID = id
	order.State = matching.StateOpen
	e.pendingOrders[id] = order
	return order, nil
}

// CreateMarketOrder implements Exchange.
func (e *LiveExchange) CreateMarketOrder(pair string, side matching.Side, amount decimal.Decimal) (matching.Order, error) {
	return e.submit(pair, side, matching.Market, amount, nil, nil)
}

// CreateLimitOrder implements Exchange.
func (e *LiveExchange) CreateLimitOrder(pair string, side matching.Side, amount, limitPrice decimal.Decimal) (matching.Order, error) {
	return e.submit(pair, side, matching.Limit, amount, &limitPrice, nil)
}

// CreateStopLimitOrder implements Exchange.
func (e *LiveExchange) CreateStopLimitOrder(pair string, side matching.Side, amount, stopPrice, limitPrice decimal.Decimal) (matching.Order, error) {
	return e.submit(pair, side, matching.StopLimit, amount, &limitPrice, &stopPrice)
}

// CancelOrder implements Exchange.
func (e *LiveExchange) CancelOrder(id string) error {
	if err := e.collaborator.CancelOrder(id); err != nil {
		return err
	}
	delete(e.pendingOrders, id)
	return nil
}

// GetBalance implements Exchange.
func (e *LiveExchange) GetBalance(symbol string) (balances.Balance, error) {
	all, err := e.collaborator.Balances()
	if err != nil {
		return balances.Balance{}, err
	}
	return all[symbol], nil
}

// GetOpenOrders implements Exchange.
func (e *LiveExchange) GetOpenOrders(pair string) ([]matching.Order, error) {
	var out []matching.Order
	for _, o := range e.pendingOrders {
		if o.Pair == pair && !o.State.Terminal() {
			out = append(out, o)
		}
	}
	return out, nil
}
