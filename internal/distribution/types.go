// Package distribution fans normalized feed events out to operational
// sinks: a websocket hub, a kafka writer and a redis snapshot store. The
// session core stays transport-free; everything here feeds from the
// session callback and copies what it needs before crossing a goroutine
// boundary.
package distribution

import (
	"github.com/pincex/feedhandler/internal/orderbook"
	"github.com/pincex/feedhandler/internal/session"
)

// Level is one price level in a serialized snapshot. Prices are rendered
// as decimal strings at the protocol's implied scale.
type Level struct {
	Price string `json:"price"`
	Size  uint64 `json:"size"`
}

// BookSnapshot is a copy of the top of a book, safe to hand to another
// goroutine or serialize.
type BookSnapshot struct {
	Symbol    string  `json:"symbol"`
	State     string  `json:"state"`
	Timestamp uint64  `json:"timestamp"`
	Bids      []Level `json:"bids"`
	Asks      []Level `json:"asks"`
}

// TradePayload is a copied trade.
type TradePayload struct {
	Symbol    string `json:"symbol"`
	Timestamp uint64 `json:"timestamp"`
	Sign      string `json:"sign"`
	Price     string `json:"price"`
	Size      uint64 `json:"size"`
}

// EventPayload is the serialized form of one subscriber event.
type EventPayload struct {
	Symbol    string        `json:"symbol"`
	Timestamp uint64        `json:"timestamp"`
	Sweep     bool          `json:"sweep,omitempty"`
	Book      *BookSnapshot `json:"book,omitempty"`
	Trade     *TradePayload `json:"trade,omitempty"`
}

// SnapshotFromBook copies the top depth levels of a book. The event
// contract forbids retaining the book past the callback, so this is the
// copy subscribers make.
func SnapshotFromBook(b *orderbook.Book, depth int, scale int32) BookSnapshot {
	snap := BookSnapshot{
		Symbol:    b.Symbol(),
		State:     b.State().String(),
		Timestamp: b.Timestamp(),
	}
	bids := b.BidLevels()
	if bids > depth {
		bids = depth
	}
	asks := b.AskLevels()
	if asks > depth {
		asks = depth
	}
	snap.Bids = make([]Level, 0, bids)
	for i := 0; i < bids; i++ {
		snap.Bids = append(snap.Bids, Level{
			Price: b.BidPrice(i).Decimal(scale).String(),
			Size:  b.BidSize(i),
		})
	}
	snap.Asks = make([]Level, 0, asks)
	for i := 0; i < asks; i++ {
		snap.Asks = append(snap.Asks, Level{
			Price: b.AskPrice(i).Decimal(scale).String(),
			Size:  b.AskSize(i),
		})
	}
	return snap
}

// PayloadFromEvent copies a borrowed session event into an owned payload.
func PayloadFromEvent(ev *session.Event, depth int, scale int32) EventPayload {
	payload := EventPayload{
		Symbol:    ev.Symbol,
		Timestamp: ev.Timestamp,
		Sweep:     ev.Mask.Has(session.EventSweep),
	}
	if ev.Mask.Has(session.EventOrderBookUpdate) && ev.Book != nil {
		snap := SnapshotFromBook(ev.Book, depth, scale)
		payload.Book = &snap
	}
	if ev.Mask.Has(session.EventTrade) && ev.Trade != nil {
		payload.Trade = &TradePayload{
			Symbol:    ev.Symbol,
			Timestamp: ev.Trade.Timestamp,
			Sign:      ev.Trade.Sign.String(),
			Price:     ev.Trade.Price.Decimal(scale).String(),
			Size:      ev.Trade.Size,
		}
	}
	return payload
}
