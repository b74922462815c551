package matching

import "sort"

// book holds one pair's live order state: two resting slices (bids, asks)
// and a separate pending-trigger slice for stop-limit orders awaiting
// activation.
//
// The teacher (mkhoshkam/orderbook engine/orderbook.go) keeps bids/asks as
// persistent container/heap priority queues, because its incoming orders
// are matched once against a stable resting book. Here, priority is
// recomputed every bar — the "stop-triggered first" tie-break (§4.6 step
// 2) flips for whichever orders just triggered this bar, so the ordering
// isn't stable across bars the way live order-book priority is. A
// persistent heap would need a full re-heapify on every bar anyway, so
// these are plain slices re-sorted per bar with the same comparator shape
// as the teacher's bidHeap.Less/askHeap.Less (price priority, then FIFO by
// creation sequence).
type book struct {
	bids           []*Order
	asks           []*Order
	pendingTrigger []*Order
}

func newBook() *book {
	return &book{}
}

// priorityList returns this side's orders ordered: triggered-this-bar
// first, then market orders, then limit/stop-limit orders by best price,
// finally FIFO by creation sequence. It also drops terminal orders.
func (b *book) priorityList(side Side) []*Order {
	src := b.bids
	if side == Sell {
		src = b.asks
	}

	var list []*Order
	for _, o := range src {
		if o.State.resting() {
			list = append(list, o)
		}
	}

	sort.SliceStable(list, func(i, j int) bool {
		a, c := list[i], list[j]
		if a.triggeredThisBar != c.triggeredThisBar {
			return a.triggeredThisBar
		}
		aMarket, cMarket := a.Type == Market, c.Type == Market
		if aMarket != cMarket {
			return aMarket
		}
		if !aMarket && a.LimitPrice != nil && c.LimitPrice != nil && !a.LimitPrice.Equal(*c.LimitPrice) {
			if side == Buy {
				return a.LimitPrice.GreaterThan(*c.LimitPrice)
			}
			return a.LimitPrice.LessThan(*c.LimitPrice)
		}
		return a.Seq < c.Seq
	})
	return list
}

// compact drops terminal orders from both resting slices, keeping the rest
// in place.
func (b *book) compact() {
	b.bids = compactSlice(b.bids)
	b.asks = compactSlice(b.asks)
}

func compactSlice(orders []*Order) []*Order {
	kept := orders[:0]
	for _, o := range orders {
		if !o.State.Terminal() {
			kept = append(kept, o)
		}
	}
	return kept
}
