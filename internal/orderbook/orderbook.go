// Package orderbook maintains a bounded-depth limit-order book for a
// single instrument. Books are built and mutated exclusively by a feed
// session applying decoded order operations; they are not safe for
// concurrent use.
package orderbook

import (
	"errors"

	"github.com/tidwall/btree"

	"github.com/pincex/feedhandler/internal/protocol"
	"github.com/pincex/feedhandler/pkg/metrics"
)

// ErrCrossedBook reports an attempted crossed steady state (best bid at or
// above best ask). A crossed book is a decoder or venue error, never a
// valid outcome of applying a well-formed feed.
var ErrCrossedBook = errors.New("crossed order book")

// Execution is the book-side context of an executed order, consumed by
// trade derivation.
type Execution struct {
	Side  protocol.Side
	Price protocol.Price
	Size  uint64
}

type order struct {
	side  protocol.Side
	price protocol.Price
	size  uint64
}

// level aggregates all resting orders at one price.
type level struct {
	price  protocol.Price
	size   uint64
	orders []uint64
}

func (l *level) removeOrder(id uint64) {
	for i, oid := range l.orders {
		if oid == id {
			l.orders[i] = l.orders[len(l.orders)-1]
			l.orders = l.orders[:len(l.orders)-1]
			return
		}
	}
}

// Book is a per-instrument price ladder pair with an order index for O(1)
// cancels and executions. Bid levels are kept strictly descending and ask
// levels strictly ascending by price; each side retains at most maxOrders
// price levels, evicting the worst-priced level when the bound is hit.
type Book struct {
	symbol    string
	state     protocol.TradingState
	timestamp uint64
	maxOrders int

	bids   *btree.Map[protocol.Price, *level]
	asks   *btree.Map[protocol.Price, *level]
	orders map[uint64]*order
}

// New creates an empty book for symbol retaining at most maxOrders price
// levels per side. A maxOrders of zero means unbounded depth.
func New(symbol string, maxOrders int) *Book {
	return &Book{
		symbol:    symbol,
		maxOrders: maxOrders,
		bids:      btree.NewMap[protocol.Price, *level](32),
		asks:      btree.NewMap[protocol.Price, *level](32),
		orders:    make(map[uint64]*order, 256),
	}
}

// Symbol returns the instrument symbol the book tracks.
func (b *Book) Symbol() string { return b.symbol }

// State returns the instrument trading state.
func (b *Book) State() protocol.TradingState { return b.state }

// Timestamp returns the timestamp of the last applied update.
func (b *Book) Timestamp() uint64 { return b.timestamp }

// MaxOrders returns the per-side price level bound.
func (b *Book) MaxOrders() int { return b.maxOrders }

// OrderCount returns the number of resting orders across both sides.
func (b *Book) OrderCount() int { return len(b.orders) }

// SetTradingState updates the trading state and timestamp. Ladder
// contents are untouched: a halt freezes dissemination semantics at the
// consumer's discretion, not book content.
func (b *Book) SetTradingState(state protocol.TradingState, ts uint64) {
	b.state = state
	b.timestamp = ts
}

// Add inserts a new resting order, creating its price level if needed.
// Duplicate order IDs are ignored. When the side exceeds the maxOrders
// level bound the worst-priced level is evicted along with its orders:
// depth beyond the bound is silently dropped, it is not an error.
// A resulting crossed top of book is reported as ErrCrossedBook with the
// order already applied; the caller decides whether to tear the session
// down.
func (b *Book) Add(id uint64, side protocol.Side, price protocol.Price, size uint64, ts uint64) error {
	if size == 0 {
		return nil
	}
	if _, dup := b.orders[id]; dup {
		return nil
	}
	b.timestamp = ts
	ladder := b.ladder(side)
	lv, ok := ladder.Get(price)
	if !ok {
		lv = &level{price: price}
		ladder.Set(price, lv)
	}
	lv.size += size
	lv.orders = append(lv.orders, id)
	b.orders[id] = &order{side: side, price: price, size: size}

	if b.maxOrders > 0 && ladder.Len() > b.maxOrders {
		b.evictWorst(side)
	}

	if bid, ok := b.BestBid(); ok {
		if ask, ok := b.BestAsk(); ok && bid >= ask {
			return ErrCrossedBook
		}
	}
	return nil
}

// Reduce decrements the order's resident size by size, removing the order
// when nothing remains and the level when it empties. It reports the side
// the order rested on and whether the order was known.
func (b *Book) Reduce(id, size, ts uint64) (protocol.Side, bool) {
	o, ok := b.orders[id]
	if !ok {
		return 0, false
	}
	b.timestamp = ts
	b.reduceOrder(id, o, size)
	return o.side, true
}

// Delete removes the order outright, removing its level if it was the
// last occupant.
func (b *Book) Delete(id, ts uint64) (protocol.Side, bool) {
	o, ok := b.orders[id]
	if !ok {
		return 0, false
	}
	b.timestamp = ts
	b.reduceOrder(id, o, o.size)
	return o.side, true
}

// Execute has the same book effect as Reduce and additionally yields the
// execution context: the resting side and price, and the executed size
// clamped to what actually rested.
func (b *Book) Execute(id, size, ts uint64) (Execution, bool) {
	o, ok := b.orders[id]
	if !ok {
		return Execution{}, false
	}
	b.timestamp = ts
	if size > o.size {
		size = o.size
	}
	exec := Execution{Side: o.side, Price: o.price, Size: size}
	b.reduceOrder(id, o, size)
	return exec, true
}

// Replace atomically deletes the original order and adds its replacement
// on the same side. It reports the side and whether the original existed;
// an unknown original leaves the book untouched.
func (b *Book) Replace(oldID, newID uint64, price protocol.Price, size, ts uint64) (protocol.Side, bool, error) {
	o, ok := b.orders[oldID]
	if !ok {
		return 0, false, nil
	}
	side := o.side
	b.timestamp = ts
	b.reduceOrder(oldID, o, o.size)
	err := b.Add(newID, side, price, size, ts)
	return side, true, err
}

// OrderSide reports the resting side of a tracked order.
func (b *Book) OrderSide(id uint64) (protocol.Side, bool) {
	o, ok := b.orders[id]
	if !ok {
		return 0, false
	}
	return o.side, true
}

// BestBid returns the highest bid price, if any.
func (b *Book) BestBid() (protocol.Price, bool) {
	price, _, ok := b.bids.Max()
	return price, ok
}

// BestAsk returns the lowest ask price, if any.
func (b *Book) BestAsk() (protocol.Price, bool) {
	price, _, ok := b.asks.Min()
	return price, ok
}

// BidLevels returns the number of resident bid price levels.
func (b *Book) BidLevels() int { return b.bids.Len() }

// AskLevels returns the number of resident ask price levels.
func (b *Book) AskLevels() int { return b.asks.Len() }

// BidPrice returns the bid price at depth i (0 = best). Out-of-range
// depth yields zero.
func (b *Book) BidPrice(i int) protocol.Price {
	lv := b.bidAt(i)
	if lv == nil {
		return 0
	}
	return lv.price
}

// BidSize returns the aggregate bid size at depth i (0 = best).
func (b *Book) BidSize(i int) uint64 {
	lv := b.bidAt(i)
	if lv == nil {
		return 0
	}
	return lv.size
}

// AskPrice returns the ask price at depth i (0 = best).
func (b *Book) AskPrice(i int) protocol.Price {
	lv := b.askAt(i)
	if lv == nil {
		return 0
	}
	return lv.price
}

// AskSize returns the aggregate ask size at depth i (0 = best).
func (b *Book) AskSize(i int) uint64 {
	lv := b.askAt(i)
	if lv == nil {
		return 0
	}
	return lv.size
}

// BidOrders returns the number of orders resting at bid depth i.
func (b *Book) BidOrders(i int) int {
	lv := b.bidAt(i)
	if lv == nil {
		return 0
	}
	return len(lv.orders)
}

// AskOrders returns the number of orders resting at ask depth i.
func (b *Book) AskOrders(i int) int {
	lv := b.askAt(i)
	if lv == nil {
		return 0
	}
	return len(lv.orders)
}

// Midprice returns the midpoint of the bid and ask prices at depth i, or
// zero when either side lacks that depth.
func (b *Book) Midprice(i int) protocol.Price {
	bid, ask := b.bidAt(i), b.askAt(i)
	if bid == nil || ask == nil {
		return 0
	}
	return (bid.price + ask.price) / 2
}

func (b *Book) ladder(side protocol.Side) *btree.Map[protocol.Price, *level] {
	if side == protocol.Buy {
		return b.bids
	}
	return b.asks
}

// reduceOrder decrements the order by size, deleting the order and its
// level once empty.
func (b *Book) reduceOrder(id uint64, o *order, size uint64) {
	ladder := b.ladder(o.side)
	lv, ok := ladder.Get(o.price)
	if !ok {
		// Level already evicted; drop the dangling order.
		delete(b.orders, id)
		return
	}
	if size > o.size {
		size = o.size
	}
	o.size -= size
	if lv.size > size {
		lv.size -= size
	} else {
		lv.size = 0
	}
	if o.size == 0 {
		lv.removeOrder(id)
		delete(b.orders, id)
	}
	if lv.size == 0 && len(lv.orders) == 0 {
		ladder.Delete(o.price)
	}
}

// evictWorst drops the worst-priced level on the side: the lowest bid or
// the highest ask. Its resting orders leave the index with it.
func (b *Book) evictWorst(side protocol.Side) {
	var lv *level
	var ok bool
	if side == protocol.Buy {
		_, lv, ok = b.bids.PopMin()
	} else {
		_, lv, ok = b.asks.PopMax()
	}
	if !ok {
		return
	}
	for _, id := range lv.orders {
		delete(b.orders, id)
	}
	metrics.LevelsEvicted.Inc()
}

func (b *Book) bidAt(i int) *level {
	if i < 0 || i >= b.bids.Len() {
		return nil
	}
	var found *level
	b.bids.Reverse(func(_ protocol.Price, lv *level) bool {
		if i == 0 {
			found = lv
			return false
		}
		i--
		return true
	})
	return found
}

func (b *Book) askAt(i int) *level {
	if i < 0 || i >= b.asks.Len() {
		return nil
	}
	var found *level
	b.asks.Scan(func(_ protocol.Price, lv *level) bool {
		if i == 0 {
			found = lv
			return false
		}
		i--
		return true
	})
	return found
}
