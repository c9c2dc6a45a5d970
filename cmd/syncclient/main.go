// syncclient joins a room on a relay and keeps its state trees and shared
// playback in sync until interrupted.
// Usage: go run ./cmd/syncclient --config configs/syncclient.example.yaml
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/roomsync/internal/auth"
	"github.com/rickgao/roomsync/internal/config"
	"github.com/rickgao/roomsync/internal/session"
	"github.com/rickgao/roomsync/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/syncclient.example.yaml", "path to config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Set up structured logging
	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	logger.Info("starting syncclient",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	creds, err := auth.LoadCredentials(cfg.Client.UserID, cfg.Client.Key, cfg.Client.KeyFile)
	if err != nil {
		logger.Error("failed to load credentials", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"room", cfg.Client.Room,
		"relay_url", cfg.Connection.URL,
		"credentials", creds.String(),
	)

	sess, err := session.New(session.FromConfig(cfg, creds), logger)
	if err != nil {
		logger.Error("failed to create session", "error", err)
		os.Exit(1)
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sess.Run(gctx)
	})

	if cfg.Debug.Enabled {
		debugServer := &http.Server{
			Addr:              cfg.Debug.Addr,
			Handler:           newDebugHandler(sess, logger),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logger.Info("starting debug server", "addr", cfg.Debug.Addr)
			if err := debugServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("debug server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			return debugServer.Shutdown(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("syncclient failed", "error", err)
		os.Exit(1)
	}

	logger.Info("syncclient stopped")
}

// newLogger builds the process logger from the logging section.
func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
