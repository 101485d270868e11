// Package protocol defines the wire-level vocabulary shared by every feed
// decoder: normalized wire events, the Decoder contract, and the named
// protocol registry sessions use to locate a decoder implementation.
package protocol

import (
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
)

// Price is an integer fixed-point price. The implied decimal scale is
// defined by the protocol that produced it.
type Price uint64

// Decimal renders the price at the given implied decimal scale.
func (p Price) Decimal(scale int32) decimal.Decimal {
	return decimal.New(int64(p), -scale)
}

// Side identifies which side of the book an order rests on.
type Side uint8

const (
	// Buy orders rest on the bid ladder.
	Buy Side = iota
	// Sell orders rest on the ask ladder.
	Sell
)

// Opposite returns the other side of the book.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

func (s Side) String() string {
	if s == Buy {
		return "buy"
	}
	return "sell"
}

// TradingState is the instrument trading state disseminated by the venue.
type TradingState uint8

const (
	StateUnknown TradingState = iota
	StateHalted
	StatePaused
	StateQuotationOnly
	StateTrading
	StateAuction
)

var tradingStateNames = [...]string{
	StateUnknown:       "unknown",
	StateHalted:        "halted",
	StatePaused:        "paused",
	StateQuotationOnly: "quotation-only",
	StateTrading:       "trading",
	StateAuction:       "auction",
}

func (t TradingState) String() string {
	if int(t) < len(tradingStateNames) {
		return tradingStateNames[t]
	}
	return "unknown"
}

// Kind discriminates the normalized wire events a decoder can produce.
type Kind uint8

const (
	// KindSystem is a protocol housekeeping message (session start/end,
	// heartbeat). It never touches a book.
	KindSystem Kind = iota + 1
	// KindAddOrder inserts a new resting order.
	KindAddOrder
	// KindReduceOrder cancels part or all of a resting order's size.
	KindReduceOrder
	// KindDeleteOrder removes a resting order outright.
	KindDeleteOrder
	// KindExecuteOrder executes size against a resting order.
	KindExecuteOrder
	// KindReplaceOrder atomically replaces a resting order with a new
	// order ID, price and size on the same side.
	KindReplaceOrder
	// KindTradingAction changes the instrument trading state.
	KindTradingAction
	// KindCrossTrade reports an auction/cross execution with no book impact.
	KindCrossTrade
	// KindHiddenTrade reports an execution against a non-displayed order.
	KindHiddenTrade
)

// WireEvent is one decoded protocol message in normalized form. Field
// validity depends on Kind; unused fields are zero.
type WireEvent struct {
	Kind      Kind
	Timestamp uint64

	// Symbol is set for events the wire format addresses by instrument
	// (add, trading action, cross and hidden trades). Order-referencing
	// events carry only OrderID; routing is the session's job.
	Symbol string

	OrderID    uint64
	NewOrderID uint64 // replace only

	Side  Side
	Price Price
	// HasPrice reports whether Price was carried on the wire. Executions
	// without an explicit price print at the resting order's price.
	HasPrice bool
	Size     uint64

	// Printable is false when the execution must not update trade feeds
	// (already reported elsewhere, or matched hidden liquidity).
	Printable bool

	State TradingState // trading action only
	Code  byte         // system event code
}

// Decoder decodes exactly one message from the head of buf, returning the
// normalized event and the number of bytes consumed.
//
// Decoding is pure and stateless with respect to protocol identity: the
// same bytes always produce the same event regardless of call history. Any
// sequence or gap tracking belongs to the caller.
//
// Errors: ErrUnknownMessageType when the leading type tag is not part of
// the protocol, ErrTruncatedPacket when buf holds fewer bytes than the
// message requires. Truncation is expected at packet boundaries; the
// caller retains the tail and retries once more data arrives.
type Decoder interface {
	Decode(buf []byte) (WireEvent, int, error)
}

// Acker is optionally implemented by decoders whose protocol mandates an
// outbound acknowledgement for certain messages. The session forwards the
// returned frame to its send callback; a nil frame means no ack is due.
type Acker interface {
	Ack(ev WireEvent) []byte
}

// Protocol is an immutable descriptor for a registered feed protocol. It
// has no per-session state and may be shared read-only across any number
// of sessions.
type Protocol struct {
	name       string
	newDecoder func() Decoder
}

// Name returns the name the protocol was registered under.
func (p *Protocol) Name() string { return p.name }

// NewDecoder constructs a fresh decoder for one session.
func (p *Protocol) NewDecoder() Decoder { return p.newDecoder() }

var (
	registryMu sync.RWMutex
	registry   = make(map[string]*Protocol)
)

// Register makes a protocol available to Lookup under the given name.
// It is intended to be called from a decoder package's init function,
// mirroring the database/sql driver convention. Registering the same name
// twice panics: that is a programming error, not a runtime condition.
func Register(name string, factory func() Decoder) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if factory == nil {
		panic("protocol: Register factory is nil")
	}
	if _, dup := registry[name]; dup {
		panic(fmt.Sprintf("protocol: Register called twice for %q", name))
	}
	registry[name] = &Protocol{name: name, newDecoder: factory}
}

// Lookup returns the protocol registered under name, or
// ErrProtocolNotFound.
func Lookup(name string) (*Protocol, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	p, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrProtocolNotFound, name)
	}
	return p, nil
}

// Protocols returns the sorted names of all registered protocols.
func Protocols() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
