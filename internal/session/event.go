package session

import (
	"github.com/pincex/feedhandler/internal/orderbook"
	"github.com/pincex/feedhandler/internal/protocol"
)

// EventMask is a bitmask of the kinds of change one decoded message
// produced. Bits combine: an execution that clears several price levels
// carries the order-book-update, trade and sweep bits at once.
type EventMask uint32

const (
	// EventOrderBookUpdate marks a change to the book's ladder or state.
	EventOrderBookUpdate EventMask = 1 << 0
	// EventTrade marks a derived trade.
	EventTrade EventMask = 1 << 1
	// EventSweep marks a top-of-book move that consumed more than one
	// price level in a single update.
	EventSweep EventMask = 1 << 2
)

// Has reports whether all bits in kind are set.
func (m EventMask) Has(kind EventMask) bool { return m&kind == kind }

// TradeSign classifies who initiated an execution.
type TradeSign uint8

const (
	// SignBuyerInitiated: the incoming buyer lifted a resting sell.
	SignBuyerInitiated TradeSign = iota
	// SignSellerInitiated: the incoming seller hit a resting buy.
	SignSellerInitiated
	// SignCrossing: an explicit auction/cross execution.
	SignCrossing
	// SignNonDisplayable: matched against hidden liquidity.
	SignNonDisplayable
)

var tradeSignNames = [...]string{
	SignBuyerInitiated:  "buyer-initiated",
	SignSellerInitiated: "seller-initiated",
	SignCrossing:        "crossing",
	SignNonDisplayable:  "non-displayable",
}

func (s TradeSign) String() string {
	if int(s) < len(tradeSignNames) {
		return tradeSignNames[s]
	}
	return "unknown"
}

// Trade is one derived execution. Instances handed to the event callback
// alias a session-owned buffer that is overwritten by the next decoded
// message; copy the fields to retain them.
type Trade struct {
	Timestamp uint64
	Sign      TradeSign
	Price     protocol.Price
	Size      uint64
}

// Event is the borrowed view passed to the subscriber callback. It is
// valid only for the duration of the callback invocation: Book and Trade
// point into session-owned state the very next message may overwrite.
type Event struct {
	Mask      EventMask
	Symbol    string
	Timestamp uint64

	// Book is the updated order book when Mask has EventOrderBookUpdate.
	Book *orderbook.Book
	// Trade is the derived trade when Mask has EventTrade.
	Trade *Trade
}

// ClassifyTrade derives the trade sign from an execution's decoded
// context. It is a pure function of the message fields: explicit crosses
// and hidden matches take precedence, anything else is inferred from the
// resting side being sold into or bought from. There is no failure mode.
func ClassifyTrade(restingSide protocol.Side, cross, hidden bool) TradeSign {
	switch {
	case cross:
		return SignCrossing
	case hidden:
		return SignNonDisplayable
	case restingSide == protocol.Sell:
		return SignBuyerInitiated
	default:
		return SignSellerInitiated
	}
}
