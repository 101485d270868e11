// Package session ties packet ingestion, subscription management and
// event dispatch together: it feeds raw packets through a protocol
// decoder, applies the resulting wire events to per-symbol order books,
// derives trades and sweeps, and invokes the subscriber callback.
//
// A session and everything it owns is single-threaded: all calls must be
// serialized by the caller. Running independent sessions on independent
// goroutines is the supported fan-out model.
package session

import (
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pincex/feedhandler/internal/orderbook"
	"github.com/pincex/feedhandler/internal/protocol"
	"github.com/pincex/feedhandler/pkg/metrics"
)

// ErrSessionClosed is returned by ProcessPacket after Close.
var ErrSessionClosed = errors.New("session closed")

// Default regular-trading-hours window, nanoseconds from the session
// epoch (midnight): 09:30 to 16:00.
const (
	DefaultRTHOpen  = 9*3600*1e9 + 30*60*1e9
	DefaultRTHClose = 16 * 3600 * 1e9
)

// EventHandler receives derived events. It is invoked synchronously and
// re-entrantly from within ProcessPacket; the Event is valid only until
// the handler returns.
type EventHandler func(*Session, *Event)

// SendFunc receives protocol-mandated outbound frames (acks, heartbeats).
// The session treats it as a notification sink, not a transport.
type SendFunc func(*Session, []byte)

// Options tune a session. The zero value is usable: default RTH window,
// no sweep tick tolerance, nop logging.
type Options struct {
	// Logger for session lifecycle and anomaly logging. Nil means no
	// logging.
	Logger *zap.Logger
	// Data is opaque caller context returned by Data(), for callback
	// correlation.
	Data any
	// RTHOpen and RTHClose bound the regular-trading-hours window in
	// nanoseconds from the session epoch. Both zero selects the default
	// 09:30-16:00 window.
	RTHOpen  uint64
	RTHClose uint64
	// SweepTolerance additionally tags a mutation as a sweep when the
	// best price jumps by more than this many ticks even within a single
	// level. Zero disables the tolerance clause.
	SweepTolerance protocol.Price
}

// Subscription binds a symbol to its order book for the lifetime of the
// subscription. It is owned by the session that created it.
type Subscription struct {
	sess      *Session
	symbol    string
	maxOrders int
	book      *orderbook.Book
}

// Symbol returns the subscribed instrument symbol.
func (sub *Subscription) Symbol() string { return sub.symbol }

// Book returns the subscription's order book.
func (sub *Subscription) Book() *orderbook.Book { return sub.book }

// Unsubscribe removes the subscription from its session and frees the
// book. Further feed messages for the symbol are dropped by the session
// router; unsubscribing twice is a no-op.
func (sub *Subscription) Unsubscribe() {
	sub.sess.unsubscribe(sub)
}

// Session is the decode-and-reconstruct engine for one feed connection.
type Session struct {
	id      string
	proto   *protocol.Protocol
	decoder protocol.Decoder
	handler EventHandler
	send    SendFunc
	data    any
	log     *zap.Logger

	rthOpen  uint64
	rthClose uint64
	sweepTol protocol.Price

	subs   map[string]*Subscription
	orders map[uint64]*Subscription // order ID -> owning subscription

	tail   []byte // unconsumed suffix of a truncated message
	closed bool

	// Reused event/trade buffers; handed to the callback by pointer and
	// overwritten on the next decoded message.
	event Event
	trade Trade
}

// New creates an active session speaking the given protocol. The handler
// is required; everything else comes from opts.
func New(proto *protocol.Protocol, handler EventHandler, opts Options) (*Session, error) {
	if proto == nil {
		return nil, errors.New("session: nil protocol")
	}
	if handler == nil {
		return nil, errors.New("session: nil event handler")
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	s := &Session{
		id:       uuid.New().String(),
		proto:    proto,
		decoder:  proto.NewDecoder(),
		handler:  handler,
		data:     opts.Data,
		rthOpen:  opts.RTHOpen,
		rthClose: opts.RTHClose,
		sweepTol: opts.SweepTolerance,
		subs:     make(map[string]*Subscription),
		orders:   make(map[uint64]*Subscription),
	}
	if s.rthOpen == 0 && s.rthClose == 0 {
		s.rthOpen, s.rthClose = DefaultRTHOpen, DefaultRTHClose
	}
	s.log = log.With(zap.String("session_id", s.id), zap.String("protocol", proto.Name()))
	s.log.Info("session created")
	return s, nil
}

// ID returns the session's correlation ID.
func (s *Session) ID() string { return s.id }

// Data returns the opaque caller context passed at construction.
func (s *Session) Data() any { return s.data }

// Protocol returns the protocol descriptor the session decodes.
func (s *Session) Protocol() *protocol.Protocol { return s.proto }

// SetSendCallback registers the sink for protocol-mandated outbound
// frames. A nil callback drops them.
func (s *Session) SetSendCallback(send SendFunc) { s.send = send }

// IsRTHTimestamp reports whether ts falls inside the regular trading
// hours window: at/after open and strictly before close. It is a pure
// predicate, valid in any session state.
func (s *Session) IsRTHTimestamp(ts uint64) bool {
	return ts >= s.rthOpen && ts < s.rthClose
}

// Subscribe starts maintaining a book for symbol, bounded to maxOrders
// price levels per side. Subscribing an already-subscribed symbol
// replaces the book outright, discarding accumulated depth rather than
// merging. Returns nil after Close.
func (s *Session) Subscribe(symbol string, maxOrders int) *Subscription {
	if s.closed {
		return nil
	}
	if old, ok := s.subs[symbol]; ok {
		s.dropRouting(old)
	}
	sub := &Subscription{
		sess:      s,
		symbol:    symbol,
		maxOrders: maxOrders,
		book:      orderbook.New(symbol, maxOrders),
	}
	s.subs[symbol] = sub
	s.log.Info("subscribed", zap.String("symbol", symbol), zap.Int("max_orders", maxOrders))
	return sub
}

func (s *Session) unsubscribe(sub *Subscription) {
	if s.closed {
		return
	}
	if current, ok := s.subs[sub.symbol]; !ok || current != sub {
		return
	}
	s.dropRouting(sub)
	delete(s.subs, sub.symbol)
	s.log.Info("unsubscribed", zap.String("symbol", sub.symbol))
}

// dropRouting purges the order routing index of entries owned by sub.
func (s *Session) dropRouting(sub *Subscription) {
	for id, owner := range s.orders {
		if owner == sub {
			delete(s.orders, id)
		}
	}
}

// Subscriptions returns the active subscriptions in no particular order.
func (s *Session) Subscriptions() []*Subscription {
	subs := make([]*Subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	return subs
}

// Close destroys the session: the registry, books, routing index and any
// buffered tail are released. Close is terminal and idempotent.
func (s *Session) Close() {
	if s.closed {
		return
	}
	s.closed = true
	s.subs = nil
	s.orders = nil
	s.tail = nil
	metrics.TailBytes.Set(0)
	s.log.Info("session destroyed")
}

// ProcessPacket decodes and applies every complete message in buf,
// prepending any tail buffered by a previous truncated decode.
//
// A trailing truncated message is not an error: the unconsumed suffix is
// buffered for the next call and ProcessPacket returns nil. An unknown
// message type stops processing and is returned; messages already applied
// from the same packet stand, there are no transactional semantics across
// a packet. ProcessPacket never blocks.
func (s *Session) ProcessPacket(buf []byte) error {
	if s.closed {
		metrics.PacketsProcessed.WithLabelValues("closed").Inc()
		return ErrSessionClosed
	}
	data := buf
	if len(s.tail) > 0 {
		s.tail = append(s.tail, buf...)
		data = s.tail
	}
	for len(data) > 0 {
		ev, n, err := s.decoder.Decode(data)
		if err != nil {
			if errors.Is(err, protocol.ErrTruncatedPacket) {
				// Message spans packets: keep the suffix, await more data.
				s.tail = append(s.tail[:0], data...)
				metrics.TailBytes.Set(float64(len(s.tail)))
				metrics.PacketsProcessed.WithLabelValues("ok").Inc()
				return nil
			}
			s.tail = s.tail[:0]
			metrics.TailBytes.Set(0)
			metrics.DecodeErrors.WithLabelValues(protocol.StatusOf(err).String()).Inc()
			metrics.PacketsProcessed.WithLabelValues("error").Inc()
			s.log.Warn("decode failed", zap.Error(err))
			return err
		}
		data = data[n:]
		metrics.MessagesDecoded.WithLabelValues(kindName(ev.Kind)).Inc()
		if err := s.apply(&ev); err != nil {
			s.tail = s.tail[:0]
			metrics.TailBytes.Set(0)
			metrics.PacketsProcessed.WithLabelValues("error").Inc()
			s.log.Error("apply failed", zap.Error(err), zap.Uint64("timestamp", ev.Timestamp))
			return err
		}
	}
	s.tail = s.tail[:0]
	metrics.TailBytes.Set(0)
	metrics.PacketsProcessed.WithLabelValues("ok").Inc()
	return nil
}

// apply routes one decoded wire event to the owning book, derives trades
// and sweeps, and dispatches at most one subscriber event.
func (s *Session) apply(ev *protocol.WireEvent) error {
	switch ev.Kind {
	case protocol.KindSystem:
		s.ack(ev)
		return nil

	case protocol.KindAddOrder:
		sub := s.subs[ev.Symbol]
		if sub == nil {
			return nil
		}
		err := sub.book.Add(ev.OrderID, ev.Side, ev.Price, ev.Size, ev.Timestamp)
		if _, resident := sub.book.OrderSide(ev.OrderID); resident {
			s.orders[ev.OrderID] = sub
		}
		if err != nil {
			return err
		}
		s.dispatch(sub, EventOrderBookUpdate, ev.Timestamp, nil)
		return nil

	case protocol.KindReduceOrder, protocol.KindDeleteOrder:
		sub := s.orders[ev.OrderID]
		if sub == nil {
			return nil
		}
		side, ok := sub.book.OrderSide(ev.OrderID)
		if !ok {
			delete(s.orders, ev.OrderID)
			return nil
		}
		pre := captureTop(sub.book, side)
		if ev.Kind == protocol.KindDeleteOrder {
			sub.book.Delete(ev.OrderID, ev.Timestamp)
		} else {
			sub.book.Reduce(ev.OrderID, ev.Size, ev.Timestamp)
		}
		s.cleanupRouting(sub, ev.OrderID)
		mask := EventOrderBookUpdate
		if s.sweepOccurred(sub.book, side, pre) {
			mask |= EventSweep
		}
		s.dispatch(sub, mask, ev.Timestamp, nil)
		return nil

	case protocol.KindExecuteOrder:
		sub := s.orders[ev.OrderID]
		if sub == nil {
			return nil
		}
		side, ok := sub.book.OrderSide(ev.OrderID)
		if !ok {
			delete(s.orders, ev.OrderID)
			return nil
		}
		pre := captureTop(sub.book, side)
		exec, ok := sub.book.Execute(ev.OrderID, ev.Size, ev.Timestamp)
		if !ok {
			return nil
		}
		s.cleanupRouting(sub, ev.OrderID)
		mask := EventOrderBookUpdate
		if s.sweepOccurred(sub.book, side, pre) {
			mask |= EventSweep
		}
		var trade *Trade
		if ev.Printable {
			price := exec.Price
			if ev.HasPrice {
				price = ev.Price
			}
			s.trade = Trade{
				Timestamp: ev.Timestamp,
				Sign:      ClassifyTrade(exec.Side, false, false),
				Price:     price,
				Size:      exec.Size,
			}
			trade = &s.trade
			mask |= EventTrade
		}
		s.dispatch(sub, mask, ev.Timestamp, trade)
		return nil

	case protocol.KindReplaceOrder:
		sub := s.orders[ev.OrderID]
		if sub == nil {
			return nil
		}
		side, ok := sub.book.OrderSide(ev.OrderID)
		if !ok {
			delete(s.orders, ev.OrderID)
			return nil
		}
		pre := captureTop(sub.book, side)
		_, replaced, err := sub.book.Replace(ev.OrderID, ev.NewOrderID, ev.Price, ev.Size, ev.Timestamp)
		delete(s.orders, ev.OrderID)
		if replaced {
			if _, resident := sub.book.OrderSide(ev.NewOrderID); resident {
				s.orders[ev.NewOrderID] = sub
			}
		}
		if err != nil {
			return err
		}
		if !replaced {
			return nil
		}
		mask := EventOrderBookUpdate
		if s.sweepOccurred(sub.book, side, pre) {
			mask |= EventSweep
		}
		s.dispatch(sub, mask, ev.Timestamp, nil)
		return nil

	case protocol.KindHiddenTrade:
		sub := s.subs[ev.Symbol]
		if sub == nil {
			return nil
		}
		s.trade = Trade{
			Timestamp: ev.Timestamp,
			Sign:      ClassifyTrade(ev.Side, false, true),
			Price:     ev.Price,
			Size:      ev.Size,
		}
		s.dispatch(sub, EventTrade, ev.Timestamp, &s.trade)
		return nil

	case protocol.KindCrossTrade:
		sub := s.subs[ev.Symbol]
		if sub == nil {
			return nil
		}
		s.trade = Trade{
			Timestamp: ev.Timestamp,
			Sign:      ClassifyTrade(ev.Side, true, false),
			Price:     ev.Price,
			Size:      ev.Size,
		}
		s.dispatch(sub, EventTrade, ev.Timestamp, &s.trade)
		return nil

	case protocol.KindTradingAction:
		sub := s.subs[ev.Symbol]
		if sub == nil {
			return nil
		}
		sub.book.SetTradingState(ev.State, ev.Timestamp)
		s.dispatch(sub, EventOrderBookUpdate, ev.Timestamp, nil)
		return nil
	}
	return nil
}

// ack forwards a protocol-mandated outbound frame, if the decoder demands
// one for this event and a send callback is registered.
func (s *Session) ack(ev *protocol.WireEvent) {
	if s.send == nil {
		return
	}
	acker, ok := s.decoder.(protocol.Acker)
	if !ok {
		return
	}
	if frame := acker.Ack(*ev); frame != nil {
		s.send(s, frame)
	}
}

// cleanupRouting drops the routing entry once the book no longer tracks
// the order.
func (s *Session) cleanupRouting(sub *Subscription, id uint64) {
	if _, resident := sub.book.OrderSide(id); !resident {
		delete(s.orders, id)
	}
}

// dispatch invokes the handler exactly once with a borrowed event. An
// empty mask is not dispatched.
func (s *Session) dispatch(sub *Subscription, mask EventMask, ts uint64, trade *Trade) {
	if mask == 0 {
		return
	}
	s.event = Event{
		Mask:      mask,
		Symbol:    sub.symbol,
		Timestamp: ts,
		Book:      sub.book,
		Trade:     trade,
	}
	countDispatch(mask)
	s.handler(s, &s.event)
}

// topState is the pre-mutation top of book on one side.
type topState struct {
	best   protocol.Price
	second protocol.Price
	levels int
}

func captureTop(b *orderbook.Book, side protocol.Side) topState {
	if side == protocol.Buy {
		return topState{best: b.BidPrice(0), second: b.BidPrice(1), levels: b.BidLevels()}
	}
	return topState{best: b.AskPrice(0), second: b.AskPrice(1), levels: b.AskLevels()}
}

// sweepOccurred reports whether a mutation consumed more than one price
// level on the side: the side emptied from two or more levels, the new
// best moved strictly past the pre-mutation second level, or the best
// price jumped beyond the configured tick tolerance.
func (s *Session) sweepOccurred(b *orderbook.Book, side protocol.Side, pre topState) bool {
	if pre.levels < 2 {
		return false
	}
	var best protocol.Price
	var levels int
	if side == protocol.Buy {
		best, levels = b.BidPrice(0), b.BidLevels()
	} else {
		best, levels = b.AskPrice(0), b.AskLevels()
	}
	if levels == 0 {
		return true
	}
	if best == pre.best {
		return false
	}
	if worse(side, best, pre.second) {
		return true
	}
	if s.sweepTol > 0 && priceGap(best, pre.best) > s.sweepTol {
		return true
	}
	return false
}

// worse reports whether a is strictly less aggressive than b on side.
func worse(side protocol.Side, a, b protocol.Price) bool {
	if side == protocol.Buy {
		return a < b
	}
	return a > b
}

func priceGap(a, b protocol.Price) protocol.Price {
	if a > b {
		return a - b
	}
	return b - a
}

func countDispatch(mask EventMask) {
	if mask.Has(EventOrderBookUpdate) {
		metrics.EventsDispatched.WithLabelValues("order_book_update").Inc()
	}
	if mask.Has(EventTrade) {
		metrics.EventsDispatched.WithLabelValues("trade").Inc()
	}
	if mask.Has(EventSweep) {
		metrics.EventsDispatched.WithLabelValues("sweep").Inc()
	}
}

func kindName(k protocol.Kind) string {
	switch k {
	case protocol.KindSystem:
		return "system"
	case protocol.KindAddOrder:
		return "add_order"
	case protocol.KindReduceOrder:
		return "reduce_order"
	case protocol.KindDeleteOrder:
		return "delete_order"
	case protocol.KindExecuteOrder:
		return "execute_order"
	case protocol.KindReplaceOrder:
		return "replace_order"
	case protocol.KindTradingAction:
		return "trading_action"
	case protocol.KindCrossTrade:
		return "cross_trade"
	case protocol.KindHiddenTrade:
		return "hidden_trade"
	default:
		return "unknown"
	}
}
