// tradefeed follows live trades for one token and serves the trade window,
// connection status and buy-pressure signals over HTTP.
//
// Usage: go run ./cmd/tradefeed --config configs/tradefeed.example.yaml
//
// The provider key is read from the config file, normally as ${CODEX_API_KEY}.
// Without it the feed reports unauthorized.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/tradefeed/internal/config"
	"github.com/rickgao/tradefeed/internal/connection"
	"github.com/rickgao/tradefeed/internal/feed"
	"github.com/rickgao/tradefeed/internal/model"
	"github.com/rickgao/tradefeed/internal/provider"
	"github.com/rickgao/tradefeed/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/tradefeed.example.yaml", "path to config file")
	envPath := flag.String("env", ".env", "optional dotenv file loaded before the config")
	flag.Parse()

	bootLogger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	if err := config.LoadEnvFile(*envPath); err != nil {
		bootLogger.Error("failed to load env file", "error", err)
		os.Exit(1)
	}

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		bootLogger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	logger.Info("starting tradefeed",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("tradefeed failed", "error", err)
		os.Exit(1)
	}

	logger.Info("tradefeed stopped")
}

func run(ctx context.Context, cfg *config.TradefeedConfig, logger *slog.Logger) error {
	factory := provider.NewFactory(provider.Config{
		HTTPURL:          cfg.Provider.HTTPURL,
		WSURL:            cfg.Provider.WSURL,
		Variant:          provider.Variant(cfg.Provider.Variant),
		Timeout:          cfg.Provider.Timeout,
		MaxRetries:       cfg.Provider.MaxRetries,
		RetryBackoff:     cfg.Provider.RetryBackoff,
		HandshakeTimeout: cfg.Provider.HandshakeTimeout,
		PingInterval:     cfg.Provider.PingInterval,
	}, logger)
	registry := connection.NewRegistry(factory)

	mgrCfg := connection.DefaultManagerConfig()
	mgrCfg.APIKey = cfg.Provider.APIKey
	mgrCfg.Target = model.Target{Address: cfg.Target.Address, NetworkID: cfg.Target.NetworkID}
	mgrCfg.MaxEvents = cfg.Feed.MaxEvents
	mgrCfg.ReconnectBaseWait = cfg.Feed.ReconnectBaseDelay
	mgrCfg.ReconnectMaxWait = cfg.Feed.ReconnectMaxDelay

	mgr := connection.NewManager(mgrCfg, registry, logger)

	f := feed.New(feed.Config{
		PressureWindow: cfg.Feed.PressureWindow,
		TickInterval:   cfg.Feed.TickInterval,
		FallbackPrice:  cfg.Feed.FallbackPrice,
	}, mgr, logger)

	if cfg.Provider.APIKey == "" {
		logger.Warn("provider api key not set, feed will report unauthorized")
	}
	logger.Info("configuration loaded",
		"target", mgrCfg.Target.String(),
		"variant", cfg.Provider.Variant,
		"ws_url", cfg.Provider.WSURL,
		"max_events", cfg.Feed.MaxEvents,
	)

	if err := f.Start(ctx); err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := f.Stop(shutdownCtx); err != nil {
			logger.Warn("feed stop", "error", err)
		}
	}()

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           createStatusHandler(f, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting status server", "addr", cfg.Server.Addr)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		logStatus(gctx, f, logger)
		return nil
	})

	return g.Wait()
}

// logStatus logs status transitions and periodic stats until ctx is done.
func logStatus(ctx context.Context, f *feed.Feed, logger *slog.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	last := f.Status()
	for {
		select {
		case <-ctx.Done():
			return
		case <-f.Updates():
			if s := f.Status(); s != last {
				logger.Info("feed status", "from", last, "to", s, "error", f.Err())
				last = s
			}
		case <-ticker.C:
			stats := f.Stats()
			signals := f.Signals()
			logger.Info("stats",
				"status", f.Status(),
				"trades_in_window", signals.TradeCount,
				"events_received", stats.EventsReceived,
				"events_rejected", stats.EventsRejected,
				"reconnects", stats.Reconnects,
				"stream_errors", stats.StreamErrors,
				"backfill_failures", stats.BackfillFailures,
			)
		}
	}
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	level, err := cfg.SlogLevel()
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
