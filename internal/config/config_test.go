package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "itch", cfg.Feed.Protocol)
	assert.Equal(t, "simulate", cfg.Feed.Mode)
	assert.Equal(t, 1024, cfg.Feed.ChunkSize)
	assert.Equal(t, 64, cfg.Feed.MaxOrders)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.False(t, cfg.Kafka.Enabled)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, time.Second, cfg.Redis.Interval)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	yaml := `
log:
  level: debug
feed:
  mode: replay
  capture: /data/feed.bin
  chunk_size: 4096
  symbols: [AAPL, MSFT]
session:
  sweep_tolerance_ticks: 50
kafka:
  enabled: true
  brokers: [localhost:9092]
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o600))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "replay", cfg.Feed.Mode)
	assert.Equal(t, "/data/feed.bin", cfg.Feed.Capture)
	assert.Equal(t, 4096, cfg.Feed.ChunkSize)
	assert.Equal(t, []string{"AAPL", "MSFT"}, cfg.Feed.Symbols)
	assert.Equal(t, uint64(50), cfg.Session.SweepToleranceTicks)
	assert.True(t, cfg.Kafka.Enabled)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "feed.events", cfg.Kafka.Topic, "defaults still fill unset keys")
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			Feed: FeedConfig{Protocol: "itch", Mode: "simulate", ChunkSize: 1024},
		}
	}

	cfg := base()
	assert.NoError(t, cfg.Validate())

	cfg = base()
	cfg.Feed.Protocol = ""
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Feed.Mode = "carrier-pigeon"
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Feed.Mode = "replay"
	assert.Error(t, cfg.Validate(), "replay needs a capture path")
	cfg.Feed.Capture = "/data/feed.bin"
	assert.NoError(t, cfg.Validate())

	cfg = base()
	cfg.Feed.Mode = "udp"
	assert.Error(t, cfg.Validate(), "udp needs a listen address")
	cfg.Feed.UDPListen = ":5000"
	assert.NoError(t, cfg.Validate())

	cfg = base()
	cfg.Feed.ChunkSize = 0
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Kafka.Enabled = true
	assert.Error(t, cfg.Validate(), "kafka needs brokers")

	cfg = base()
	cfg.Redis.Enabled = true
	assert.Error(t, cfg.Validate(), "redis needs an address")
}

// chdir changes into dir for the duration of the test (t.Chdir needs Go 1.24+).
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
}
