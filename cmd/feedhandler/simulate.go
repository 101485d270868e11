package main

import (
	"context"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/pincex/feedhandler/internal/protocol"
	"github.com/pincex/feedhandler/internal/protocol/itch"
	"github.com/pincex/feedhandler/internal/session"
)

// simSymbol is the synthetic feed state for one instrument.
type simSymbol struct {
	name string
	mid  protocol.Price
	live []uint64 // resting order IDs
}

// simulateFeed generates a synthetic ITCH stream: a random walk of adds,
// executions, cancels and deletes around a drifting midpoint. It exists
// for local development and demos when no venue connection is available.
func simulateFeed(ctx context.Context, symbols []string, sess *session.Session, zapLogger *zap.Logger) error {
	if len(symbols) == 0 {
		symbols = []string{"PINCEX"}
		sess.Subscribe("PINCEX", 64)
	}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	state := make([]*simSymbol, 0, len(symbols))
	for _, name := range symbols {
		state = append(state, &simSymbol{
			name: name,
			mid:  protocol.Price(1_000_000 + rng.Intn(500_000)), // ~100-150 at 4 decimals
		})
	}

	zapLogger.Info("Simulating feed", zap.Strings("symbols", symbols))
	var (
		ts      = uint64(session.DefaultRTHOpen)
		orderID uint64
		matchID uint64
		packet  []byte
	)
	packet = itch.AppendSystemEvent(packet, ts, itch.SystemEventStart)
	if err := sess.ProcessPacket(packet); err != nil {
		return err
	}

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		packet = packet[:0]
		for i := 0; i < 16; i++ {
			sym := state[rng.Intn(len(state))]
			ts += uint64(rng.Intn(1_000_000))
			switch {
			case len(sym.live) < 8 || rng.Intn(4) == 0:
				orderID++
				side := protocol.Buy
				offset := protocol.Price(rng.Intn(50) * 100)
				price := sym.mid - offset
				if rng.Intn(2) == 1 {
					side = protocol.Sell
					price = sym.mid + offset + 100
				}
				size := uint64(100 * (1 + rng.Intn(10)))
				packet = itch.AppendAddOrder(packet, ts, orderID, side, size, sym.name, price)
				sym.live = append(sym.live, orderID)
			case rng.Intn(3) == 0:
				id := sym.takeOrder(rng)
				matchID++
				packet = itch.AppendOrderExecuted(packet, ts, id, uint64(100*(1+rng.Intn(3))), matchID)
			case rng.Intn(2) == 0:
				id := sym.takeOrder(rng)
				packet = itch.AppendOrderCancel(packet, ts, id, 100)
			default:
				id := sym.takeOrder(rng)
				packet = itch.AppendOrderDelete(packet, ts, id)
			}
			// Drift the midpoint.
			sym.mid += protocol.Price(rng.Intn(200))
			sym.mid -= protocol.Price(rng.Intn(200))
		}
		if err := sess.ProcessPacket(packet); err != nil {
			return err
		}
	}
}

// takeOrder picks and removes a random live order ID.
func (s *simSymbol) takeOrder(rng *rand.Rand) uint64 {
	if len(s.live) == 0 {
		return 0
	}
	i := rng.Intn(len(s.live))
	id := s.live[i]
	s.live[i] = s.live[len(s.live)-1]
	s.live = s.live[:len(s.live)-1]
	return id
}
