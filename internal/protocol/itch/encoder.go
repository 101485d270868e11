package itch

import (
	"encoding/binary"

	"github.com/pincex/feedhandler/internal/protocol"
)

// Append-style encoders for the ITCH message set. They exist for the feed
// simulator and for tests; a production venue writes this wire format on
// its own side.

// AppendSystemEvent appends a system event message to dst.
func AppendSystemEvent(dst []byte, ts uint64, code byte) []byte {
	dst = append(dst, TypeSystemEvent)
	dst = binary.BigEndian.AppendUint64(dst, ts)
	return append(dst, code)
}

// AppendAddOrder appends an add-order message to dst.
func AppendAddOrder(dst []byte, ts, orderID uint64, side protocol.Side, size uint64, symbol string, price protocol.Price) []byte {
	dst = append(dst, TypeAddOrder)
	dst = binary.BigEndian.AppendUint64(dst, ts)
	dst = binary.BigEndian.AppendUint64(dst, orderID)
	dst = append(dst, encodeSide(side))
	dst = binary.BigEndian.AppendUint32(dst, uint32(size))
	dst = appendSymbol(dst, symbol)
	return binary.BigEndian.AppendUint32(dst, uint32(price))
}

// AppendOrderExecuted appends an execution at the resting price to dst.
func AppendOrderExecuted(dst []byte, ts, orderID, size, matchID uint64) []byte {
	dst = append(dst, TypeOrderExecuted)
	dst = binary.BigEndian.AppendUint64(dst, ts)
	dst = binary.BigEndian.AppendUint64(dst, orderID)
	dst = binary.BigEndian.AppendUint32(dst, uint32(size))
	return binary.BigEndian.AppendUint64(dst, matchID)
}

// AppendOrderExecutedPx appends an execution with an explicit price to dst.
func AppendOrderExecutedPx(dst []byte, ts, orderID, size, matchID uint64, printable bool, price protocol.Price) []byte {
	dst = append(dst, TypeOrderExecutedPx)
	dst = binary.BigEndian.AppendUint64(dst, ts)
	dst = binary.BigEndian.AppendUint64(dst, orderID)
	dst = binary.BigEndian.AppendUint32(dst, uint32(size))
	dst = binary.BigEndian.AppendUint64(dst, matchID)
	if printable {
		dst = append(dst, 'Y')
	} else {
		dst = append(dst, 'N')
	}
	return binary.BigEndian.AppendUint32(dst, uint32(price))
}

// AppendOrderCancel appends a partial cancel message to dst.
func AppendOrderCancel(dst []byte, ts, orderID, canceled uint64) []byte {
	dst = append(dst, TypeOrderCancel)
	dst = binary.BigEndian.AppendUint64(dst, ts)
	dst = binary.BigEndian.AppendUint64(dst, orderID)
	return binary.BigEndian.AppendUint32(dst, uint32(canceled))
}

// AppendOrderDelete appends an order delete message to dst.
func AppendOrderDelete(dst []byte, ts, orderID uint64) []byte {
	dst = append(dst, TypeOrderDelete)
	dst = binary.BigEndian.AppendUint64(dst, ts)
	return binary.BigEndian.AppendUint64(dst, orderID)
}

// AppendOrderReplace appends an order replace message to dst.
func AppendOrderReplace(dst []byte, ts, orderID, newOrderID, size uint64, price protocol.Price) []byte {
	dst = append(dst, TypeOrderReplace)
	dst = binary.BigEndian.AppendUint64(dst, ts)
	dst = binary.BigEndian.AppendUint64(dst, orderID)
	dst = binary.BigEndian.AppendUint64(dst, newOrderID)
	dst = binary.BigEndian.AppendUint32(dst, uint32(size))
	return binary.BigEndian.AppendUint32(dst, uint32(price))
}

// AppendTrade appends a non-displayed trade message to dst.
func AppendTrade(dst []byte, ts, orderID uint64, side protocol.Side, size uint64, symbol string, price protocol.Price, matchID uint64) []byte {
	dst = append(dst, TypeTrade)
	dst = binary.BigEndian.AppendUint64(dst, ts)
	dst = binary.BigEndian.AppendUint64(dst, orderID)
	dst = append(dst, encodeSide(side))
	dst = binary.BigEndian.AppendUint32(dst, uint32(size))
	dst = appendSymbol(dst, symbol)
	dst = binary.BigEndian.AppendUint32(dst, uint32(price))
	return binary.BigEndian.AppendUint64(dst, matchID)
}

// AppendCrossTrade appends a cross trade message to dst.
func AppendCrossTrade(dst []byte, ts, size uint64, symbol string, price protocol.Price, matchID uint64, crossType byte) []byte {
	dst = append(dst, TypeCrossTrade)
	dst = binary.BigEndian.AppendUint64(dst, ts)
	dst = binary.BigEndian.AppendUint64(dst, size)
	dst = appendSymbol(dst, symbol)
	dst = binary.BigEndian.AppendUint32(dst, uint32(price))
	dst = binary.BigEndian.AppendUint64(dst, matchID)
	return append(dst, crossType)
}

// AppendTradingAction appends a trading action message to dst. The state
// byte is the wire code: 'H', 'P', 'Q', 'T' or 'A'.
func AppendTradingAction(dst []byte, ts uint64, symbol string, state byte) []byte {
	dst = append(dst, TypeTradingAction)
	dst = binary.BigEndian.AppendUint64(dst, ts)
	dst = appendSymbol(dst, symbol)
	return append(dst, state)
}

func encodeSide(s protocol.Side) byte {
	if s == protocol.Sell {
		return 'S'
	}
	return 'B'
}

func appendSymbol(dst []byte, symbol string) []byte {
	for i := 0; i < 8; i++ {
		if i < len(symbol) {
			dst = append(dst, symbol[i])
		} else {
			dst = append(dst, ' ')
		}
	}
	return dst
}
