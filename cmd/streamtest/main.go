// streamtest follows one token's live trades and prints them to the console.
// Usage: go run ./cmd/streamtest --config configs/tradefeed.example.yaml --address 0x... --network 1
//
// Required environment variables:
//
//	CODEX_API_KEY - provider API key (may be set in .env)
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rickgao/tradefeed/internal/config"
	"github.com/rickgao/tradefeed/internal/connection"
	"github.com/rickgao/tradefeed/internal/feed"
	"github.com/rickgao/tradefeed/internal/model"
	"github.com/rickgao/tradefeed/internal/provider"
)

func main() {
	configPath := flag.String("config", "configs/tradefeed.example.yaml", "path to config file")
	envPath := flag.String("env", ".env", "optional dotenv file")
	address := flag.String("address", "", "token address (overrides config)")
	network := flag.Int("network", 0, "network id (overrides config)")
	verbose := flag.Bool("verbose", false, "print full trade JSON")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	if err := config.LoadEnvFile(*envPath); err != nil {
		logger.Error("failed to load env file", "error", err)
		os.Exit(1)
	}

	cfg, err := config.LoadWithDefaults(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	target := model.Target{Address: cfg.Target.Address, NetworkID: cfg.Target.NetworkID}
	if *address != "" {
		target.Address = *address
	}
	if *network != 0 {
		target.NetworkID = *network
	}
	if !target.Valid() {
		logger.Error("target required", "address", target.Address, "network", target.NetworkID)
		logger.Info("set target.address and target.network_id or pass --address and --network")
		os.Exit(1)
	}
	if cfg.Provider.APIKey == "" {
		logger.Warn("provider api key not set", "hint", "export CODEX_API_KEY or add it to .env")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	factory := provider.NewFactory(provider.Config{
		HTTPURL:      cfg.Provider.HTTPURL,
		WSURL:        cfg.Provider.WSURL,
		Variant:      provider.Variant(cfg.Provider.Variant),
		Timeout:      cfg.Provider.Timeout,
		PingInterval: cfg.Provider.PingInterval,
	}, logger)

	mgrCfg := connection.DefaultManagerConfig()
	mgrCfg.APIKey = cfg.Provider.APIKey
	mgrCfg.Target = target
	mgrCfg.MaxEvents = cfg.Feed.MaxEvents
	mgrCfg.ReconnectBaseWait = cfg.Feed.ReconnectBaseDelay
	mgrCfg.ReconnectMaxWait = cfg.Feed.ReconnectMaxDelay

	f := feed.New(feed.Config{
		PressureWindow: cfg.Feed.PressureWindow,
		TickInterval:   cfg.Feed.TickInterval,
	}, connection.NewManager(mgrCfg, connection.NewRegistry(factory), logger), logger)

	logger.Info("connecting", "target", target.String(), "variant", cfg.Provider.Variant)
	if err := f.Start(ctx); err != nil {
		logger.Error("failed to start feed", "error", err)
		os.Exit(1)
	}

	go printSignals(ctx, f, logger)
	printTrades(ctx, f, *verbose)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	logger.Info("shutting down...")
	f.Stop(shutdownCtx)

	logger.Info("shutdown complete")
}

// printTrades prints every trade not seen before, oldest first.
func printTrades(ctx context.Context, f *feed.Feed, verbose bool) {
	seen := make(map[string]struct{})
	status := f.Status()

	for {
		select {
		case <-ctx.Done():
			return
		case <-f.Updates():
		}

		if s := f.Status(); s != status {
			fmt.Printf("[STATUS] %s -> %s %s\n", status, s, f.Err())
			status = s
		}

		trades := f.Trades()
		for i := len(trades) - 1; i >= 0; i-- {
			t := trades[i]
			if _, ok := seen[t.Key()]; ok {
				continue
			}
			seen[t.Key()] = struct{}{}

			if verbose {
				data, _ := json.MarshalIndent(t, "", "  ")
				fmt.Printf("[TRADE] %s\n", data)
				continue
			}

			price := "-"
			if t.PriceUSD != nil {
				price = fmt.Sprintf("%.8g", *t.PriceUSD)
			}
			fmt.Printf("[TRADE] %s %-4s usd=%.2f tokens=%.4f price=%s maker=%s\n",
				time.UnixMilli(t.Timestamp).Format(time.TimeOnly),
				t.Side, t.AmountUSD, t.AmountToken, price, t.MakerAddress,
			)
		}

		// The window is bounded, so the seen set only needs its current keys.
		if len(seen) > 4*len(trades)+64 {
			next := make(map[string]struct{}, len(trades))
			for _, t := range trades {
				next[t.Key()] = struct{}{}
			}
			seen = next
		}
	}
}

func printSignals(ctx context.Context, f *feed.Feed, logger *slog.Logger) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := f.Signals()
			stats := f.Stats()
			logger.Info("signals",
				"status", f.Status(),
				"buy_pressure", formatPtr(s.BuyPressure),
				"latest_price", formatPtr(s.LatestPrice),
				"buy_usd", s.BuyUSD,
				"sell_usd", s.SellUSD,
				"trades_in_window", s.TradeCount,
				"events_received", stats.EventsReceived,
				"events_rejected", stats.EventsRejected,
				"reconnects", stats.Reconnects,
			)
		}
	}
}

func formatPtr(p *float64) string {
	if p == nil {
		return "null"
	}
	return fmt.Sprintf("%.4f", *p)
}
