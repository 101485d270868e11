// Package itch implements the big-endian ITCH-style feed decoder and
// registers it with the protocol registry under the name "itch".
//
// Every message starts with a one-byte type tag followed by a fixed-size
// body. Prices are 4-byte unsigned fixed-point with four implied decimals,
// timestamps are 8-byte nanoseconds since the session epoch, and symbols
// are 8-byte ASCII right-padded with spaces.
package itch

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/pincex/feedhandler/internal/protocol"
)

// Name is the registry name of this protocol.
const Name = "itch"

// PriceScale is the implied decimal scale of wire prices.
const PriceScale = 4

// Message type tags.
const (
	TypeSystemEvent     = 'S'
	TypeAddOrder        = 'A'
	TypeAddOrderMPID    = 'F'
	TypeOrderExecuted   = 'E'
	TypeOrderExecutedPx = 'C'
	TypeOrderCancel     = 'X'
	TypeOrderDelete     = 'D'
	TypeOrderReplace    = 'U'
	TypeTrade           = 'P'
	TypeCrossTrade      = 'Q'
	TypeTradingAction   = 'H'
)

// System event codes that mandate an outbound receipt.
const (
	SystemEventStart = 'O'
	SystemEventEnd   = 'C'
)

// receiptType tags the ack frame emitted for start/end system events.
const receiptType = 'R'

// messageSize maps a type tag to its total encoded length, including the
// tag byte. A zero entry marks an unknown tag.
var messageSize = [256]int{
	TypeSystemEvent:     10,
	TypeAddOrder:        34,
	TypeAddOrderMPID:    38,
	TypeOrderExecuted:   29,
	TypeOrderExecutedPx: 34,
	TypeOrderCancel:     21,
	TypeOrderDelete:     17,
	TypeOrderReplace:    33,
	TypeTrade:           42,
	TypeCrossTrade:      38,
	TypeTradingAction:   18,
}

func init() {
	protocol.Register(Name, func() protocol.Decoder { return &Decoder{} })
}

// Decoder decodes ITCH messages. It carries no per-message state, so the
// zero value is ready to use and a single instance could serve any number
// of byte streams.
type Decoder struct{}

// Decode implements protocol.Decoder.
func (d *Decoder) Decode(buf []byte) (protocol.WireEvent, int, error) {
	var ev protocol.WireEvent
	if len(buf) == 0 {
		return ev, 0, protocol.ErrTruncatedPacket
	}
	tag := buf[0]
	size := messageSize[tag]
	if size == 0 {
		return ev, 0, fmt.Errorf("%w: tag 0x%02x", protocol.ErrUnknownMessageType, tag)
	}
	if len(buf) < size {
		return ev, 0, protocol.ErrTruncatedPacket
	}
	msg := buf[:size]
	ev.Timestamp = binary.BigEndian.Uint64(msg[1:9])

	switch tag {
	case TypeSystemEvent:
		ev.Kind = protocol.KindSystem
		ev.Code = msg[9]

	case TypeAddOrder, TypeAddOrderMPID:
		ev.Kind = protocol.KindAddOrder
		ev.OrderID = binary.BigEndian.Uint64(msg[9:17])
		ev.Side = decodeSide(msg[17])
		ev.Size = uint64(binary.BigEndian.Uint32(msg[18:22]))
		ev.Symbol = decodeSymbol(msg[22:30])
		ev.Price = protocol.Price(binary.BigEndian.Uint32(msg[30:34]))
		ev.HasPrice = true
		ev.Printable = true

	case TypeOrderExecuted:
		ev.Kind = protocol.KindExecuteOrder
		ev.OrderID = binary.BigEndian.Uint64(msg[9:17])
		ev.Size = uint64(binary.BigEndian.Uint32(msg[17:21]))
		ev.Printable = true

	case TypeOrderExecutedPx:
		ev.Kind = protocol.KindExecuteOrder
		ev.OrderID = binary.BigEndian.Uint64(msg[9:17])
		ev.Size = uint64(binary.BigEndian.Uint32(msg[17:21]))
		ev.Printable = msg[29] == 'Y'
		ev.Price = protocol.Price(binary.BigEndian.Uint32(msg[30:34]))
		ev.HasPrice = true

	case TypeOrderCancel:
		ev.Kind = protocol.KindReduceOrder
		ev.OrderID = binary.BigEndian.Uint64(msg[9:17])
		ev.Size = uint64(binary.BigEndian.Uint32(msg[17:21]))

	case TypeOrderDelete:
		ev.Kind = protocol.KindDeleteOrder
		ev.OrderID = binary.BigEndian.Uint64(msg[9:17])

	case TypeOrderReplace:
		ev.Kind = protocol.KindReplaceOrder
		ev.OrderID = binary.BigEndian.Uint64(msg[9:17])
		ev.NewOrderID = binary.BigEndian.Uint64(msg[17:25])
		ev.Size = uint64(binary.BigEndian.Uint32(msg[25:29]))
		ev.Price = protocol.Price(binary.BigEndian.Uint32(msg[29:33]))
		ev.HasPrice = true

	case TypeTrade:
		ev.Kind = protocol.KindHiddenTrade
		ev.OrderID = binary.BigEndian.Uint64(msg[9:17])
		ev.Side = decodeSide(msg[17])
		ev.Size = uint64(binary.BigEndian.Uint32(msg[18:22]))
		ev.Symbol = decodeSymbol(msg[22:30])
		ev.Price = protocol.Price(binary.BigEndian.Uint32(msg[30:34]))
		ev.HasPrice = true

	case TypeCrossTrade:
		ev.Kind = protocol.KindCrossTrade
		ev.Size = binary.BigEndian.Uint64(msg[9:17])
		ev.Symbol = decodeSymbol(msg[17:25])
		ev.Price = protocol.Price(binary.BigEndian.Uint32(msg[25:29]))
		ev.HasPrice = true
		ev.Code = msg[37]

	case TypeTradingAction:
		ev.Kind = protocol.KindTradingAction
		ev.Symbol = decodeSymbol(msg[9:17])
		ev.State = decodeTradingState(msg[17])
	}
	return ev, size, nil
}

// Ack implements protocol.Acker: start and end of session mandate a
// receipt frame back to the venue.
func (d *Decoder) Ack(ev protocol.WireEvent) []byte {
	if ev.Kind != protocol.KindSystem {
		return nil
	}
	switch ev.Code {
	case SystemEventStart, SystemEventEnd:
		return []byte{receiptType, ev.Code}
	}
	return nil
}

func decodeSide(b byte) protocol.Side {
	if b == 'S' {
		return protocol.Sell
	}
	return protocol.Buy
}

func decodeSymbol(b []byte) string {
	return strings.TrimRight(string(b), " ")
}

func decodeTradingState(b byte) protocol.TradingState {
	switch b {
	case 'H':
		return protocol.StateHalted
	case 'P':
		return protocol.StatePaused
	case 'Q':
		return protocol.StateQuotationOnly
	case 'T':
		return protocol.StateTrading
	case 'A':
		return protocol.StateAuction
	default:
		return protocol.StateUnknown
	}
}
