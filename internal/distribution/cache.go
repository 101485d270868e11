package distribution

import "sync"

// SnapshotCache holds the latest serialized snapshot per symbol. The
// session goroutine writes, HTTP handlers read; it exists so API reads
// never touch the single-threaded session state.
type SnapshotCache struct {
	mu    sync.RWMutex
	books map[string][]byte
}

// NewSnapshotCache creates an empty cache.
func NewSnapshotCache() *SnapshotCache {
	return &SnapshotCache{books: make(map[string][]byte)}
}

// Put stores the serialized snapshot for symbol. The cache owns data
// after the call.
func (c *SnapshotCache) Put(symbol string, data []byte) {
	c.mu.Lock()
	c.books[symbol] = data
	c.mu.Unlock()
}

// Get returns the latest serialized snapshot for symbol.
func (c *SnapshotCache) Get(symbol string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	data, ok := c.books[symbol]
	return data, ok
}

// Symbols lists the cached symbols in no particular order.
func (c *SnapshotCache) Symbols() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	symbols := make([]string, 0, len(c.books))
	for symbol := range c.books {
		symbols = append(symbols, symbol)
	}
	return symbols
}
