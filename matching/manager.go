package matching

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/colinmarc/eventrader/balances"
	"github.com/colinmarc/eventrader/event"
	"github.com/colinmarc/eventrader/fees"
	"github.com/colinmarc/eventrader/lending"
	"github.com/colinmarc/eventrader/logging"
	"github.com/colinmarc/eventrader/sequence"
	"github.com/colinmarc/eventrader/tradeerr"
)

// LiquidityModel bounds per-bar fillable volume and derives a
// representative fill price as that volume is consumed (spec §4.6 step 3).
// It is declared here, rather than imported from package liquidity, so
// that package can depend on matching.Side without an import cycle; the
// liquidity package's Default type satisfies this interface structurally.
type LiquidityModel interface {
	// AvailableVolume returns the total quantity fillable within bar,
	// across all orders and both sides.
	AvailableVolume(bar event.Bar) decimal.Decimal
	// RepresentativePrice returns the price a fill at this point in the
	// bar would execute at, given consumed quantity so far this bar.
	RepresentativePrice(bar event.Bar, consumed decimal.Decimal, side Side) decimal.Decimal
}

// Manager is the backtesting OrderManager: it owns every order, the
// per-pair resting books, and drives the matching algorithm against each
// incoming bar (spec §4.6).
type Manager struct {
	ledger    *balances.Ledger
	feesModel fees.Model
	liqModel  LiquidityModel
	lending   *lending.Pool

	precisions map[string]Precision
	books      map[string]*book
	orders     map[string]*Order
	lastPrice  map[string]decimal.Decimal

	seq    sequence.Counter
	logger zerolog.Logger
}

// Option configures a Manager at construction time.
type Option func(*Manager)

// WithLendingPool stores a lending pool on the Manager. The Manager never
// borrows from it: holds and fills are always funded from the ledger's
// own balances, and an order the balance cannot cover is rejected.
func WithLendingPool(pool *lending.Pool) Option {
	return func(m *Manager) { m.lending = pool }
}

// NewManager creates a Manager over ledger, using feesModel and liqModel
// for fill pricing and fee accounting.
func NewManager(ledger *balances.Ledger, feesModel fees.Model, liqModel LiquidityModel, opts ...Option) *Manager {
	m := &Manager{
		ledger:     ledger,
		feesModel:  feesModel,
		liqModel:   liqModel,
		precisions: make(map[string]Precision),
		books:      make(map[string]*book),
		orders:     make(map[string]*Order),
		lastPrice:  make(map[string]decimal.Decimal),
		logger:     logging.WithComponent("matching"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RegisterPair declares a pair's precision. Orders and bars for a pair
// that was never registered are rejected / ignored respectively.
func (m *Manager) RegisterPair(pair string, precision Precision) error {
	if _, _, err := Symbols(pair); err != nil {
		return err
	}
	m.precisions[pair] = precision
	m.books[pair] = newBook()
	return nil
}

func (m *Manager) bookFor(pair string) *book {
	b, ok := m.books[pair]
	if !ok {
		b = newBook()
		m.books[pair] = b
	}
	return b
}

// CreateMarketOrder submits a market order. It returns before any matching
// occurs; matching happens only when a bar event arrives for this pair
// (spec §4.6).
func (m *Manager) CreateMarketOrder(pair string, side Side, amount decimal.Decimal, when time.Time) (*Order, error) {
	return m.place(pair, side, Market, amount, nil, nil, when)
}

// CreateLimitOrder submits a limit order.
func (m *Manager) CreateLimitOrder(pair string, side Side, amount, limitPrice decimal.Decimal, when time.Time) (*Order, error) {
	return m.place(pair, side, Limit, amount, &limitPrice, nil, when)
}

// CreateStopLimitOrder submits a stop-limit order. It starts in
// PENDING_TRIGGER and transitions to OPEN once a bar observes the stop
// condition (spec §4.6 step 1).
func (m *Manager) CreateStopLimitOrder(pair string, side Side, amount, stopPrice, limitPrice decimal.Decimal, when time.Time) (*Order, error) {
	return m.place(pair, side, StopLimit, amount, &limitPrice, &stopPrice, when)
}

func (m *Manager) place(pair string, side Side, typ Type, amount decimal.Decimal, limitPrice, stopPrice *decimal.Decimal, when time.Time) (*Order, error) {
	prec, ok := m.precisions[pair]
	if !ok {
		return nil, fmt.Errorf("matching: %w: unregistered pair %q", tradeerr.ErrInvalidOrder, pair)
	}
	base, quote, err := Symbols(pair)
	if err != nil {
		return nil, err
	}

	amount = TruncateAmount(amount, prec.Base)
	if !amount.IsPositive() {
		return nil, fmt.Errorf("matching: %w: amount must be positive after truncation, got %s", tradeerr.ErrInvalidOrder, amount)
	}
	if limitPrice != nil {
		rounded := RoundPrice(*limitPrice, prec.Quote)
		limitPrice = &rounded
		if !limitPrice.IsPositive() {
			return nil, fmt.Errorf("matching: %w: limit price must be positive", tradeerr.ErrInvalidOrder)
		}
	}
	if stopPrice != nil {
		rounded := RoundPrice(*stopPrice, prec.Quote)
		stopPrice = &rounded
		if !stopPrice.IsPositive() {
			return nil, fmt.Errorf("matching: %w: stop price must be positive", tradeerr.ErrInvalidOrder)
		}
	}

	order := &Order{
		ID:             uuid.NewString(),
		Pair:           pair,
		Side:           side,
		Type:           typ,
		Amount:         amount,
		LimitPrice:     limitPrice,
		StopPrice:      stopPrice,
		State:          StateOpen,
		Filled:         decimal.Zero,
		AvgFillPrice:   decimal.Zero,
		FeeTotal:       decimal.Zero,
		CreatedAt:      when,
		Seq:            m.seq.Next(),
		BasePrecision:  prec.Base,
		QuotePrecision: prec.Quote,
	}
	if typ == StopLimit {
		order.State = StatePendingTrigger
	}

	var holdSymbol string
	var holdAmount decimal.Decimal
	skipHold := false
	if side == Buy {
		holdSymbol = quote
		refPrice, haveRef := m.referencePrice(pair, limitPrice)
		if !haveRef {
			// A market buy submitted before any bar for this pair has
			// been observed has no price basis to size a hold against
			// (spec §8's E1 places a market buy ahead of the pair's very
			// first bar and still expects it to fill). Defer the balance
			// check to the fill itself, which debits the real notional
			// from available directly instead of a pre-reserved hold.
			skipHold = true
		} else {
			estFee := m.feesModel.Fee(amount, refPrice, false)
			holdAmount = RoundFeeUp(amount.Mul(refPrice).Add(estFee), prec.Quote)
		}
	} else {
		holdSymbol = base
		holdAmount = amount
	}

	if !skipHold {
		if err := m.ledger.Hold(holdSymbol, holdAmount); err != nil {
			order.State = StateRejected
			m.orders[order.ID] = order
			return order, fmt.Errorf("matching: order %s rejected: %w", order.ID, err)
		}
	}
	order.heldSymbol = holdSymbol
	order.heldAmount = holdAmount

	m.orders[order.ID] = order
	b := m.bookFor(pair)
	switch {
	case typ == StopLimit:
		b.pendingTrigger = append(b.pendingTrigger, order)
	case side == Buy:
		b.bids = append(b.bids, order)
	default:
		b.asks = append(b.asks, order)
	}

	m.logger.Debug().Str("order_id", order.ID).Str("pair", pair).Str("side", string(side)).Str("type", string(typ)).Msg("order submitted")
	return order, nil
}

// referencePrice picks the price used to size a submission-time hold:
// the order's own limit price when it has one, otherwise the last
// observed bar close for the pair.
func (m *Manager) referencePrice(pair string, limitPrice *decimal.Decimal) (decimal.Decimal, bool) {
	if limitPrice != nil {
		return *limitPrice, true
	}
	p, ok := m.lastPrice[pair]
	return p, ok
}

// CancelOrder cancels an OPEN, PARTIALLY_FILLED, or PENDING_TRIGGER order,
// releasing its remaining hold atomically (spec §8's E6).
func (m *Manager) CancelOrder(id string) error {
	order, ok := m.orders[id]
	if !ok {
		return fmt.Errorf("matching: %w: %s", tradeerr.ErrOrderNotFound, id)
	}
	if order.State.Terminal() {
		return fmt.Errorf("matching: order %s is already %s", id, order.State)
	}
	if order.heldAmount.IsPositive() {
		if err := m.ledger.Release(order.heldSymbol, order.heldAmount); err != nil {
			return err
		}
		order.heldAmount = decimal.Zero
	}
	order.State = StateCanceled
	if b, ok := m.books[order.Pair]; ok {
		b.compact()
	}
	return nil
}

// GetOrderInfo returns a copy of the order state for id.
func (m *Manager) GetOrderInfo(id string) (Order, error) {
	order, ok := m.orders[id]
	if !ok {
		return Order{}, fmt.Errorf("matching: %w: %s", tradeerr.ErrOrderNotFound, id)
	}
	return *order, nil
}

// OpenOrdersForPair returns every non-terminal order for pair, in creation
// order.
func (m *Manager) OpenOrdersForPair(pair string) []Order {
	var out []Order
	for _, o := range m.orders {
		if o.Pair == pair && !o.State.Terminal() {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

// ProcessBar runs the matching algorithm for one bar (spec §4.6): trigger
// pending stops, then fill eligible OPEN orders against the liquidity
// model's per-bar cap, in priority order.
func (m *Manager) ProcessBar(bar event.Bar) ([]Trade, []Fill, error) {
	if err := bar.Validate(); err != nil {
		return nil, nil, err
	}
	b, ok := m.books[bar.Pair]
	if !ok {
		m.lastPrice[bar.Pair] = bar.Close
		return nil, nil, nil
	}

	var trades []Trade
	var fills []Fill

	fills = append(fills, m.triggerPendingStops(b, bar)...)

	buyList := b.priorityList(Buy)
	sellList := b.priorityList(Sell)

	available := m.liqModel.AvailableVolume(bar)
	consumed := decimal.Zero

	bi, si := 0, 0
	for bi < len(buyList) || si < len(sellList) {
		remaining := available.Sub(consumed)
		if !remaining.IsPositive() {
			break
		}

		var side Side
		switch {
		case bi >= len(buyList):
			side = Sell
		case si >= len(sellList):
			side = Buy
		case buyList[bi].Seq <= sellList[si].Seq:
			side = Buy
		default:
			side = Sell
		}

		var order *Order
		if side == Buy {
			order = buyList[bi]
			bi++
		} else {
			order = sellList[si]
			si++
		}
		if !order.State.resting() {
			continue
		}

		fillable, ok := m.fillable(order, bar)
		if !ok {
			continue
		}
		amt := minDecimal(fillable, remaining, order.Remaining())
		if !amt.IsPositive() {
			continue
		}

		price := m.fillPrice(order, bar, consumed, side)
		trade, fill, err := m.applyFill(order, amt, price, bar.CloseTime)
		if err != nil {
			m.logger.Warn().Err(err).Str("order_id", order.ID).Msg("fill skipped: balance transfer failed")
			continue
		}
		trades = append(trades, trade)
		fills = append(fills, fill)
		consumed = consumed.Add(amt)
	}

	for _, o := range buyList {
		o.triggeredThisBar = false
	}
	for _, o := range sellList {
		o.triggeredThisBar = false
	}
	b.compact()
	m.lastPrice[bar.Pair] = bar.Close

	return trades, fills, nil
}

// triggerPendingStops activates any PENDING_TRIGGER order on the bar's
// pair whose stop condition the bar satisfies (spec §4.6 step 1): buy
// stops trigger if the bar's high reaches the stop, sell stops if the
// bar's low reaches it.
func (m *Manager) triggerPendingStops(b *book, bar event.Bar) []Fill {
	var fills []Fill
	var stillPending []*Order
	for _, o := range b.pendingTrigger {
		if o.State.Terminal() {
			// Canceled while pending: drop it instead of reopening it.
			continue
		}
		triggered := false
		switch o.Side {
		case Buy:
			triggered = bar.High.GreaterThanOrEqual(*o.StopPrice)
		case Sell:
			triggered = bar.Low.LessThanOrEqual(*o.StopPrice)
		}
		if !triggered {
			stillPending = append(stillPending, o)
			continue
		}
		o.State = StateOpen
		o.triggeredThisBar = true
		if o.Side == Buy {
			b.bids = append(b.bids, o)
		} else {
			b.asks = append(b.asks, o)
		}
		fills = append(fills, Fill{
			OrderID:      o.ID,
			Pair:         o.Pair,
			Side:         o.Side,
			ExecutedQty:  decimal.Zero,
			RemainingQty: o.Remaining(),
			FillPrice:    decimal.Zero,
			State:        StateOpen,
			When:         bar.CloseTime,
		})
	}
	b.pendingTrigger = stillPending
	return fills
}

// fillable reports whether order can fill at all against this bar, given
// only its own price condition (not the liquidity cap, applied by the
// caller).
func (m *Manager) fillable(order *Order, bar event.Bar) (decimal.Decimal, bool) {
	switch order.Type {
	case Market:
		return order.Remaining(), true
	case Limit, StopLimit:
		if order.Side == Buy {
			if bar.Low.GreaterThan(*order.LimitPrice) {
				return decimal.Zero, false
			}
		} else {
			if bar.High.LessThan(*order.LimitPrice) {
				return decimal.Zero, false
			}
		}
		return order.Remaining(), true
	default:
		return decimal.Zero, false
	}
}

// fillPrice derives the execution price for one fill of order, per spec
// §4.6 step 2: market orders fill at the liquidity model's representative
// price; limit (and triggered stop-limit) orders fill at the better of
// their limit price and the representative price.
func (m *Manager) fillPrice(order *Order, bar event.Bar, consumedSoFar decimal.Decimal, side Side) decimal.Decimal {
	rep := m.liqModel.RepresentativePrice(bar, consumedSoFar, side)
	switch order.Type {
	case Market:
		return RoundPrice(rep, order.QuotePrecision)
	default:
		if side == Buy {
			return RoundPrice(minDecimal(*order.LimitPrice, rep), order.QuotePrecision)
		}
		return RoundPrice(maxDecimal(*order.LimitPrice, rep), order.QuotePrecision)
	}
}

// applyFill commits one fill: computes the fee, moves balances atomically,
// and advances the order's fill state.
func (m *Manager) applyFill(order *Order, amt, price decimal.Decimal, when time.Time) (Trade, Fill, error) {
	base, quote, err := Symbols(order.Pair)
	if err != nil {
		return Trade{}, Fill{}, err
	}

	fee := RoundFeeUp(m.feesModel.Fee(amt, price, order.Maker()), order.QuotePrecision)
	notional := amt.Mul(price)

	var legs []balances.Leg
	if order.Side == Buy {
		debit := notional.Add(fee)
		fromHold := minDecimal(debit, order.heldAmount)
		fromAvail := debit.Sub(fromHold)
		legs = []balances.Leg{{FromSymbol: quote, FromHold: fromHold, FromAvailable: fromAvail, ToSymbol: base, ToAmount: amt}}
		if err := m.ledger.Transfer(legs...); err != nil {
			return Trade{}, Fill{}, err
		}
		order.heldAmount = order.heldAmount.Sub(fromHold)
	} else {
		fromHold := minDecimal(amt, order.heldAmount)
		fromAvail := amt.Sub(fromHold)
		credited := notional.Sub(fee)
		legs = []balances.Leg{{FromSymbol: base, FromHold: fromHold, FromAvailable: fromAvail, ToSymbol: quote, ToAmount: credited}}
		if err := m.ledger.Transfer(legs...); err != nil {
			return Trade{}, Fill{}, err
		}
		order.heldAmount = order.heldAmount.Sub(fromHold)
	}

	priorNotional := order.AvgFillPrice.Mul(order.Filled)
	order.Filled = order.Filled.Add(amt)
	order.AvgFillPrice = priorNotional.Add(amt.Mul(price)).Div(order.Filled)
	order.FeeTotal = order.FeeTotal.Add(fee)

	if !order.Remaining().IsPositive() {
		order.State = StateFilled
		if order.heldAmount.IsPositive() {
			_ = m.ledger.Release(order.heldSymbol, order.heldAmount)
			order.heldAmount = decimal.Zero
		}
	} else {
		order.State = StatePartiallyFilled
	}

	trade := Trade{
		OrderID: order.ID, Pair: order.Pair, Side: order.Side,
		Amount: amt, Price: price, FeeSymbol: quote, FeeAmount: fee, When: when,
	}
	fill := Fill{
		OrderID: order.ID, Pair: order.Pair, Side: order.Side,
		ExecutedQty: amt, RemainingQty: order.Remaining(), FillPrice: price,
		State: order.State, When: when,
	}
	return trade, fill, nil
}

func minDecimal(values ...decimal.Decimal) decimal.Decimal {
	min := values[0]
	for _, v := range values[1:] {
		if v.LessThan(min) {
			min = v
		}
	}
	return min
}

func maxDecimal(values ...decimal.Decimal) decimal.Decimal {
	max := values[0]
	for _, v := range values[1:] {
		if v.GreaterThan(max) {
			max = v
		}
	}
	return max
}
