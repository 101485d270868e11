package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/pincex/feedhandler/internal/config"
	"github.com/pincex/feedhandler/internal/session"
)

// runFeed pumps packets into the session until the source drains or the
// context is canceled. It is the only goroutine touching the session.
func runFeed(ctx context.Context, cfg *config.Config, sess *session.Session, zapLogger *zap.Logger) error {
	switch cfg.Feed.Mode {
	case "replay":
		return replayCapture(ctx, cfg.Feed.Capture, cfg.Feed.ChunkSize, sess, zapLogger)
	case "udp":
		return listenUDP(ctx, cfg.Feed.UDPListen, sess, zapLogger)
	case "simulate":
		return simulateFeed(ctx, cfg.Feed.Symbols, sess, zapLogger)
	default:
		return fmt.Errorf("unsupported feed mode %q", cfg.Feed.Mode)
	}
}

// replayCapture streams a capture file through the session in fixed-size
// chunks. Chunks cut across message boundaries on purpose: the session's
// tail buffering makes fragmentation invisible.
func replayCapture(ctx context.Context, path string, chunkSize int, sess *session.Session, zapLogger *zap.Logger) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open capture: %w", err)
	}
	defer f.Close()

	zapLogger.Info("Replaying capture", zap.String("path", path), zap.Int("chunk_size", chunkSize))
	buf := make([]byte, chunkSize)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		n, err := f.Read(buf)
		if n > 0 {
			if perr := sess.ProcessPacket(buf[:n]); perr != nil {
				return fmt.Errorf("process packet: %w", perr)
			}
		}
		if err == io.EOF {
			zapLogger.Info("Capture replay complete")
			return nil
		}
		if err != nil {
			return fmt.Errorf("read capture: %w", err)
		}
	}
}

// listenUDP feeds datagrams into the session as they arrive.
func listenUDP(ctx context.Context, addr string, sess *session.Session, zapLogger *zap.Logger) error {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return fmt.Errorf("resolve %q: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return fmt.Errorf("listen %q: %w", addr, err)
	}
	defer conn.Close()

	zapLogger.Info("Listening for feed datagrams", zap.String("addr", addr))
	buf := make([]byte, 64*1024)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn.SetReadDeadline(time.Now().Add(time.Second))
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if nerr, ok := err.(net.Error); ok && nerr.Timeout() {
				continue
			}
			return fmt.Errorf("read datagram: %w", err)
		}
		if perr := sess.ProcessPacket(buf[:n]); perr != nil {
			// A malformed datagram is not fatal to a live listener: log
			// it and keep the session running on subsequent packets.
			zapLogger.Warn("Dropped malformed packet", zap.Error(perr))
		}
	}
}
