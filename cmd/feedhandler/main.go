package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/pincex/feedhandler/internal/config"
	"github.com/pincex/feedhandler/internal/distribution"
	"github.com/pincex/feedhandler/internal/protocol"
	_ "github.com/pincex/feedhandler/internal/protocol/itch"
	"github.com/pincex/feedhandler/internal/session"
	"github.com/pincex/feedhandler/pkg/logger"
)

// snapshotDepth is how many levels per side the API and sinks expose.
const snapshotDepth = 10

// priceScale is the implied decimal scale of the wire protocol's prices.
const priceScale = 4

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zapLogger, err := logger.New(cfg.Log.Level)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zapLogger.Sync()

	proto, err := protocol.Lookup(cfg.Feed.Protocol)
	if err != nil {
		zapLogger.Fatal("Unknown feed protocol", zap.String("protocol", cfg.Feed.Protocol), zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Distribution sinks.
	hub := distribution.NewHub(logger.ForComponent(zapLogger, "hub"))
	defer hub.Close()
	cache := distribution.NewSnapshotCache()

	var kafkaSink *distribution.KafkaSink
	if cfg.Kafka.Enabled {
		kafkaSink = distribution.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic,
			logger.ForComponent(zapLogger, "kafka"))
		defer kafkaSink.Close()
	}

	var snapshots *distribution.SnapshotStore
	if cfg.Redis.Enabled {
		snapshots = distribution.NewSnapshotStore(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.TTL)
		defer snapshots.Close()
		go persistSnapshots(ctx, snapshots, cache, cfg.Redis.Interval, zapLogger)
	}

	handler := func(s *session.Session, ev *session.Event) {
		payload := distribution.PayloadFromEvent(ev, snapshotDepth, priceScale)
		data, err := json.Marshal(payload)
		if err != nil {
			zapLogger.Error("Failed to serialize event", zap.Error(err))
			return
		}
		hub.Broadcast(data)
		if payload.Book != nil {
			if snap, err := json.Marshal(payload.Book); err == nil {
				cache.Put(ev.Symbol, snap)
			}
		}
		if kafkaSink != nil {
			// Best effort: the sink logs its own failures.
			_ = kafkaSink.Publish(ctx, ev.Symbol, payload)
		}
	}

	sess, err := session.New(proto, handler, session.Options{
		Logger:         logger.ForComponent(zapLogger, "session"),
		RTHOpen:        cfg.Session.RTHOpen,
		RTHClose:       cfg.Session.RTHClose,
		SweepTolerance: protocol.Price(cfg.Session.SweepToleranceTicks),
	})
	if err != nil {
		zapLogger.Fatal("Failed to create session", zap.Error(err))
	}
	defer sess.Close()

	sess.SetSendCallback(func(_ *session.Session, frame []byte) {
		zapLogger.Debug("Outbound protocol frame", zap.Int("bytes", len(frame)))
	})

	for _, symbol := range cfg.Feed.Symbols {
		sess.Subscribe(symbol, cfg.Feed.MaxOrders)
	}

	// HTTP API: health, book snapshots, websocket stream, metrics.
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "session": sess.ID()})
	})
	router.GET("/api/v1/symbols", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"symbols": cache.Symbols()})
	})
	router.GET("/api/v1/book/:symbol", func(c *gin.Context) {
		data, ok := cache.Get(c.Param("symbol"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown or inactive symbol"})
			return
		}
		c.Data(http.StatusOK, "application/json", data)
	})
	router.GET("/ws", gin.WrapH(hub))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	server := &http.Server{Addr: cfg.HTTP.Addr, Handler: router}
	go func() {
		zapLogger.Info("HTTP server listening", zap.String("addr", cfg.HTTP.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Error("HTTP server failed", zap.Error(err))
		}
	}()

	// The feed loop owns the session: every ProcessPacket call happens on
	// this goroutine.
	if err := runFeed(ctx, cfg, sess, zapLogger); err != nil && ctx.Err() == nil {
		zapLogger.Error("Feed loop failed", zap.Error(err))
	}

	stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLogger.Warn("HTTP shutdown incomplete", zap.Error(err))
	}
	zapLogger.Info("Feed handler stopped")
}

// persistSnapshots periodically copies the latest cached snapshots into
// redis.
func persistSnapshots(ctx context.Context, store *distribution.SnapshotStore, cache *distribution.SnapshotCache, interval time.Duration, zapLogger *zap.Logger) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, symbol := range cache.Symbols() {
				data, ok := cache.Get(symbol)
				if !ok {
					continue
				}
				if err := store.SaveRaw(ctx, symbol, data); err != nil && ctx.Err() == nil {
					zapLogger.Warn("Snapshot persist failed", zap.String("symbol", symbol), zap.Error(err))
				}
			}
		}
	}
}
