// Package config loads the feed handler configuration from file and
// environment using viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full feed handler configuration.
type Config struct {
	Log     LogConfig     `mapstructure:"log"`
	Feed    FeedConfig    `mapstructure:"feed"`
	Session SessionConfig `mapstructure:"session"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Kafka   KafkaConfig   `mapstructure:"kafka"`
	Redis   RedisConfig   `mapstructure:"redis"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// FeedConfig controls the packet source.
type FeedConfig struct {
	// Protocol is the registered decoder name, e.g. "itch".
	Protocol string `mapstructure:"protocol"`
	// Mode selects the packet source: "replay", "udp" or "simulate".
	Mode string `mapstructure:"mode"`
	// Capture is the capture file replayed in replay mode.
	Capture string `mapstructure:"capture"`
	// ChunkSize is the replay read size in bytes. Reads deliberately cut
	// across message boundaries to exercise tail buffering.
	ChunkSize int `mapstructure:"chunk_size"`
	// UDPListen is the listen address in udp mode.
	UDPListen string `mapstructure:"udp_listen"`
	// Symbols are subscribed at startup.
	Symbols []string `mapstructure:"symbols"`
	// MaxOrders bounds retained price levels per book side.
	MaxOrders int `mapstructure:"max_orders"`
}

// SessionConfig tunes the decode session.
type SessionConfig struct {
	// RTHOpen and RTHClose bound regular trading hours, nanoseconds from
	// the session epoch. Zero for both selects the default 09:30-16:00.
	RTHOpen  uint64 `mapstructure:"rth_open_ns"`
	RTHClose uint64 `mapstructure:"rth_close_ns"`
	// SweepToleranceTicks widens sweep detection: a best-price jump of
	// more than this many ticks is tagged as a sweep.
	SweepToleranceTicks uint64 `mapstructure:"sweep_tolerance_ticks"`
}

// HTTPConfig controls the API/metrics server.
type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

// KafkaConfig controls the kafka event sink.
type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// RedisConfig controls the redis snapshot store.
type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Interval time.Duration `mapstructure:"interval"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// Load reads config.yaml from the working directory, ./config or
// /etc/pincex, applies PINCEX_FEED_* environment overrides and returns
// the populated configuration. A missing config file is not an error:
// defaults apply.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/pincex")
	v.SetEnvPrefix("PINCEX_FEED")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("feed.protocol", "itch")
	v.SetDefault("feed.mode", "simulate")
	v.SetDefault("feed.chunk_size", 1024)
	v.SetDefault("feed.max_orders", 64)
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("kafka.topic", "feed.events")
	v.SetDefault("redis.interval", time.Second)
	v.SetDefault("redis.ttl", time.Minute)
}

// Validate rejects configurations the binary cannot run with.
func (c *Config) Validate() error {
	if c.Feed.Protocol == "" {
		return fmt.Errorf("feed.protocol is required")
	}
	switch c.Feed.Mode {
	case "replay", "udp", "simulate":
	default:
		return fmt.Errorf("feed.mode must be replay, udp or simulate, got %q", c.Feed.Mode)
	}
	if c.Feed.Mode == "replay" && c.Feed.Capture == "" {
		return fmt.Errorf("feed.capture is required in replay mode")
	}
	if c.Feed.Mode == "udp" && c.Feed.UDPListen == "" {
		return fmt.Errorf("feed.udp_listen is required in udp mode")
	}
	if c.Feed.ChunkSize <= 0 {
		return fmt.Errorf("feed.chunk_size must be positive")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required when kafka is enabled")
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when redis is enabled")
	}
	return nil
}
