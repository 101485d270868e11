package orderbook

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pincex/feedhandler/internal/protocol"
)

func checkLadderInvariants(t *testing.T, b *Book) {
	t.Helper()
	for i := 1; i < b.BidLevels(); i++ {
		assert.Less(t, b.BidPrice(i), b.BidPrice(i-1), "bid ladder must be strictly descending")
	}
	for i := 1; i < b.AskLevels(); i++ {
		assert.Greater(t, b.AskPrice(i), b.AskPrice(i-1), "ask ladder must be strictly ascending")
	}
	if bid, ok := b.BestBid(); ok {
		if ask, ok := b.BestAsk(); ok {
			assert.Less(t, bid, ask, "book must not be crossed")
		}
	}
}

func TestBookAddCreatesSortedLevels(t *testing.T) {
	b := New("TEST", 0)
	require.NoError(t, b.Add(1, protocol.Buy, 1000, 10, 1))
	require.NoError(t, b.Add(2, protocol.Buy, 1010, 5, 2))
	require.NoError(t, b.Add(3, protocol.Buy, 990, 7, 3))
	require.NoError(t, b.Add(4, protocol.Sell, 1020, 4, 4))
	require.NoError(t, b.Add(5, protocol.Sell, 1030, 9, 5))

	assert.Equal(t, 3, b.BidLevels())
	assert.Equal(t, 2, b.AskLevels())
	assert.Equal(t, protocol.Price(1010), b.BidPrice(0))
	assert.Equal(t, protocol.Price(1000), b.BidPrice(1))
	assert.Equal(t, protocol.Price(990), b.BidPrice(2))
	assert.Equal(t, protocol.Price(1020), b.AskPrice(0))
	assert.Equal(t, protocol.Price(1030), b.AskPrice(1))
	assert.Equal(t, uint64(5), b.BidSize(0))
	assert.Equal(t, 5, b.OrderCount())
	assert.Equal(t, uint64(5), b.Timestamp())
	checkLadderInvariants(t, b)
}

func TestBookAddAggregatesSamePrice(t *testing.T) {
	b := New("TEST", 0)
	require.NoError(t, b.Add(1, protocol.Buy, 1000, 10, 1))
	require.NoError(t, b.Add(2, protocol.Buy, 1000, 15, 2))

	assert.Equal(t, 1, b.BidLevels())
	assert.Equal(t, uint64(25), b.BidSize(0))
	assert.Equal(t, 2, b.BidOrders(0))
}

func TestBookAddDuplicateIDIgnored(t *testing.T) {
	b := New("TEST", 0)
	require.NoError(t, b.Add(1, protocol.Buy, 1000, 10, 1))
	require.NoError(t, b.Add(1, protocol.Buy, 2000, 99, 2))

	assert.Equal(t, 1, b.BidLevels())
	assert.Equal(t, uint64(10), b.BidSize(0))
}

func TestBookAddZeroSizeIgnored(t *testing.T) {
	b := New("TEST", 0)
	require.NoError(t, b.Add(1, protocol.Buy, 1000, 0, 1))
	assert.Equal(t, 0, b.BidLevels())
	assert.Equal(t, 0, b.OrderCount())
}

func TestBookCrossedBookReported(t *testing.T) {
	b := New("TEST", 0)
	require.NoError(t, b.Add(1, protocol.Sell, 1000, 10, 1))
	err := b.Add(2, protocol.Buy, 1000, 10, 2)
	assert.ErrorIs(t, err, ErrCrossedBook)
}

func TestBookExecuteReducesAndReports(t *testing.T) {
	b := New("TEST", 0)
	require.NoError(t, b.Add(1, protocol.Sell, 1050, 100, 1))

	exec, ok := b.Execute(1, 40, 2)
	require.True(t, ok)
	assert.Equal(t, protocol.Sell, exec.Side)
	assert.Equal(t, protocol.Price(1050), exec.Price)
	assert.Equal(t, uint64(40), exec.Size)
	assert.Equal(t, uint64(60), b.AskSize(0))

	// Executing more than rests clamps to the resident size.
	exec, ok = b.Execute(1, 1000, 3)
	require.True(t, ok)
	assert.Equal(t, uint64(60), exec.Size)
	assert.Equal(t, 0, b.AskLevels())
	assert.Equal(t, 0, b.OrderCount())
}

func TestBookExecuteUnknownOrder(t *testing.T) {
	b := New("TEST", 0)
	_, ok := b.Execute(42, 10, 1)
	assert.False(t, ok)
}

func TestBookReduceToZeroRemovesLevel(t *testing.T) {
	b := New("TEST", 0)
	require.NoError(t, b.Add(1, protocol.Buy, 1000, 10, 1))
	side, ok := b.Reduce(1, 10, 2)
	require.True(t, ok)
	assert.Equal(t, protocol.Buy, side)
	assert.Equal(t, 0, b.BidLevels())
	assert.Equal(t, 0, b.OrderCount())
}

func TestBookPartialReduceKeepsLevel(t *testing.T) {
	b := New("TEST", 0)
	require.NoError(t, b.Add(1, protocol.Buy, 1000, 10, 1))
	_, ok := b.Reduce(1, 4, 2)
	require.True(t, ok)
	assert.Equal(t, 1, b.BidLevels())
	assert.Equal(t, uint64(6), b.BidSize(0))
	assert.Equal(t, 1, b.OrderCount())
}

func TestBookDeleteRemovesLastOccupantLevel(t *testing.T) {
	b := New("TEST", 0)
	require.NoError(t, b.Add(1, protocol.Buy, 1000, 10, 1))
	require.NoError(t, b.Add(2, protocol.Buy, 1000, 5, 2))

	_, ok := b.Delete(1, 3)
	require.True(t, ok)
	assert.Equal(t, 1, b.BidLevels(), "level still has an occupant")
	assert.Equal(t, uint64(5), b.BidSize(0))

	_, ok = b.Delete(2, 4)
	require.True(t, ok)
	assert.Equal(t, 0, b.BidLevels())
}

func TestBookReplaceMovesOrder(t *testing.T) {
	b := New("TEST", 0)
	require.NoError(t, b.Add(1, protocol.Sell, 1100, 10, 1))

	side, ok, err := b.Replace(1, 2, 1200, 20, 2)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, protocol.Sell, side)
	assert.Equal(t, 1, b.AskLevels())
	assert.Equal(t, protocol.Price(1200), b.AskPrice(0))
	assert.Equal(t, uint64(20), b.AskSize(0))

	_, resident := b.OrderSide(1)
	assert.False(t, resident)
	newSide, resident := b.OrderSide(2)
	assert.True(t, resident)
	assert.Equal(t, protocol.Sell, newSide)
}

func TestBookReplaceUnknownOrderNoop(t *testing.T) {
	b := New("TEST", 0)
	_, ok, err := b.Replace(1, 2, 1200, 20, 2)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, b.OrderCount())
}

func TestBookMaxOrdersEvictsWorstLevel(t *testing.T) {
	b := New("TEST", 3)
	for i := uint64(1); i <= 5; i++ {
		require.NoError(t, b.Add(i, protocol.Buy, protocol.Price(1000+i*10), 10, i))
		assert.LessOrEqual(t, b.BidLevels(), 3, "eviction must keep the side within the bound")
	}
	// Worst (lowest) bids were evicted: 1010 and 1020 are gone.
	assert.Equal(t, 3, b.BidLevels())
	assert.Equal(t, protocol.Price(1050), b.BidPrice(0))
	assert.Equal(t, protocol.Price(1030), b.BidPrice(2))
	assert.Equal(t, 3, b.OrderCount(), "evicted levels drop their orders")

	// Ask side evicts the highest prices.
	for i := uint64(10); i <= 14; i++ {
		require.NoError(t, b.Add(i, protocol.Sell, protocol.Price(2000+(i-10)*10), 10, i))
	}
	assert.Equal(t, 3, b.AskLevels())
	assert.Equal(t, protocol.Price(2000), b.AskPrice(0))
	assert.Equal(t, protocol.Price(2020), b.AskPrice(2))
}

func TestBookEvictedOrderOperationsIgnored(t *testing.T) {
	b := New("TEST", 1)
	require.NoError(t, b.Add(1, protocol.Buy, 1000, 10, 1))
	require.NoError(t, b.Add(2, protocol.Buy, 1010, 10, 2)) // evicts 1000 with order 1

	_, ok := b.Execute(1, 5, 3)
	assert.False(t, ok, "evicted orders are forgotten")
	assert.Equal(t, 1, b.BidLevels())
	assert.Equal(t, protocol.Price(1010), b.BidPrice(0))
}

func TestBookAccessorsOutOfRange(t *testing.T) {
	b := New("TEST", 0)
	require.NoError(t, b.Add(1, protocol.Buy, 1000, 10, 1))

	// Out-of-range depth indexes yield zero values, by contract.
	assert.Equal(t, protocol.Price(0), b.BidPrice(5))
	assert.Equal(t, uint64(0), b.BidSize(5))
	assert.Equal(t, protocol.Price(0), b.AskPrice(0))
	assert.Equal(t, uint64(0), b.AskSize(0))
	assert.Equal(t, protocol.Price(0), b.BidPrice(-1))
	assert.Equal(t, 0, b.BidOrders(3))
	assert.Equal(t, 0, b.AskOrders(0))
}

func TestBookMidprice(t *testing.T) {
	b := New("TEST", 0)
	require.NoError(t, b.Add(1, protocol.Buy, 1000, 10, 1))
	require.NoError(t, b.Add(2, protocol.Sell, 1010, 10, 2))
	require.NoError(t, b.Add(3, protocol.Buy, 990, 10, 3))
	require.NoError(t, b.Add(4, protocol.Sell, 1030, 10, 4))

	assert.Equal(t, protocol.Price(1005), b.Midprice(0))
	assert.Equal(t, protocol.Price(1010), b.Midprice(1))
	assert.Equal(t, protocol.Price(0), b.Midprice(2), "midprice requires both sides at the depth")
}

func TestBookSetTradingState(t *testing.T) {
	b := New("TEST", 0)
	require.NoError(t, b.Add(1, protocol.Buy, 1000, 10, 1))

	b.SetTradingState(protocol.StateHalted, 99)
	assert.Equal(t, protocol.StateHalted, b.State())
	assert.Equal(t, uint64(99), b.Timestamp())
	assert.Equal(t, 1, b.BidLevels(), "trading state changes leave the ladder alone")
}

func TestBookInvariantsUnderRandomOperations(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	b := New("TEST", 16)
	var live []uint64
	var nextID uint64

	for i := 0; i < 5000; i++ {
		ts := uint64(i + 1)
		switch rng.Intn(4) {
		case 0, 1:
			nextID++
			side := protocol.Buy
			price := protocol.Price(10000 - rng.Intn(100))
			if rng.Intn(2) == 1 {
				side = protocol.Sell
				price = protocol.Price(10001 + rng.Intn(100))
			}
			if err := b.Add(nextID, side, price, uint64(1+rng.Intn(500)), ts); err == nil {
				live = append(live, nextID)
			}
		case 2:
			if len(live) > 0 {
				j := rng.Intn(len(live))
				b.Execute(live[j], uint64(1+rng.Intn(300)), ts)
				live = append(live[:j], live[j+1:]...)
			}
		case 3:
			if len(live) > 0 {
				j := rng.Intn(len(live))
				b.Delete(live[j], ts)
				live = append(live[:j], live[j+1:]...)
			}
		}
		assert.LessOrEqual(t, b.BidLevels(), 16)
		assert.LessOrEqual(t, b.AskLevels(), 16)
		checkLadderInvariants(t, b)
	}
}

func BenchmarkBookAddDelete(b *testing.B) {
	book := New("BENCH", 0)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		id := uint64(i + 1)
		book.Add(id, protocol.Buy, protocol.Price(10000+i%100), 100, uint64(i))
		book.Delete(id, uint64(i))
	}
}

func BenchmarkBookExecuteTopOfBook(b *testing.B) {
	book := New("BENCH", 0)
	for i := 0; i < 1024; i++ {
		book.Add(uint64(i+1), protocol.Buy, protocol.Price(10000+i), 1<<40, 0)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		book.Execute(uint64(i%1024+1), 1, uint64(i))
	}
}
