package distribution

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// snapshotKeyPrefix namespaces book snapshots in redis.
const snapshotKeyPrefix = "feed:book:"

// SnapshotStore persists the latest top-N book snapshot per symbol in
// redis, giving dashboards and restarting consumers a warm view without
// replaying the feed.
type SnapshotStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSnapshotStore connects to redis at addr. A zero ttl keeps snapshots
// until overwritten.
func NewSnapshotStore(addr, password string, db int, ttl time.Duration) *SnapshotStore {
	return &SnapshotStore{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
		ttl: ttl,
	}
}

// Save stores the snapshot under its symbol key.
func (s *SnapshotStore) Save(ctx context.Context, snap BookSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, snapshotKeyPrefix+snap.Symbol, data, s.ttl).Err()
}

// SaveRaw stores an already-serialized snapshot under the symbol key.
func (s *SnapshotStore) SaveRaw(ctx context.Context, symbol string, data []byte) error {
	return s.client.Set(ctx, snapshotKeyPrefix+symbol, data, s.ttl).Err()
}

// Load fetches the stored snapshot for symbol.
func (s *SnapshotStore) Load(ctx context.Context, symbol string) (BookSnapshot, error) {
	var snap BookSnapshot
	data, err := s.client.Get(ctx, snapshotKeyPrefix+symbol).Bytes()
	if err != nil {
		return snap, fmt.Errorf("load snapshot %q: %w", symbol, err)
	}
	if err := json.Unmarshal(data, &snap); err != nil {
		return snap, fmt.Errorf("decode snapshot %q: %w", symbol, err)
	}
	return snap, nil
}

// Close releases the redis connection.
func (s *SnapshotStore) Close() error {
	return s.client.Close()
}
