package feed

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/tradefeed/internal/aggregate"
	"github.com/rickgao/tradefeed/internal/connection"
	"github.com/rickgao/tradefeed/internal/model"
)

// Config configures a Feed.
type Config struct {
	PressureWindow time.Duration    // Buy-pressure window for Signals (default 5m)
	TickInterval   time.Duration    // Clock period (default 1s)
	FallbackPrice  *float64         // Snapshot price used when no trade has one
	Now            func() time.Time // Clock source (nil = time.Now)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		PressureWindow: aggregate.DefaultPressureWindow,
		TickInterval:   time.Second,
	}
}

// Feed exposes trades, connection status and derived signals.
type Feed struct {
	cfg    Config
	mgr    connection.Manager
	logger *slog.Logger

	mu       sync.RWMutex
	clock    time.Time
	fallback *float64
	signals  aggregate.Signals

	updates chan struct{}

	lifeMu  sync.Mutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a Feed over mgr.
func New(cfg Config, mgr connection.Manager, logger *slog.Logger) *Feed {
	if logger == nil {
		logger = slog.Default()
	}

	d := DefaultConfig()
	if cfg.PressureWindow <= 0 {
		cfg.PressureWindow = d.PressureWindow
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = d.TickInterval
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	f := &Feed{
		cfg:      cfg,
		mgr:      mgr,
		logger:   logger,
		clock:    cfg.Now(),
		fallback: copyPrice(cfg.FallbackPrice),
		updates:  make(chan struct{}, 1),
	}
	f.recompute()
	return f
}

// Start starts the manager and the clock.
func (f *Feed) Start(ctx context.Context) error {
	f.lifeMu.Lock()
	defer f.lifeMu.Unlock()

	if f.running {
		return connection.ErrAlreadyStarted
	}

	if err := f.mgr.Start(ctx); err != nil {
		return err
	}

	f.ctx, f.cancel = context.WithCancel(ctx)
	f.running = true

	f.wg.Add(1)
	go f.run()

	f.logger.Info("feed started",
		"pressure_window", f.cfg.PressureWindow,
		"tick", f.cfg.TickInterval,
	)
	return nil
}

// Stop stops the clock and then the manager.
func (f *Feed) Stop(ctx context.Context) error {
	f.lifeMu.Lock()
	running := f.running
	f.running = false
	f.lifeMu.Unlock()

	if running {
		f.cancel()
		f.wg.Wait()
	}
	return f.mgr.Stop(ctx)
}

// run ticks the clock and follows manager changes.
func (f *Feed) run() {
	defer f.wg.Done()

	ticker := time.NewTicker(f.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-f.ctx.Done():
			return
		case <-ticker.C:
			f.mu.Lock()
			f.clock = f.cfg.Now()
			f.mu.Unlock()
			f.recompute()
		case <-f.mgr.Changes():
			f.recompute()
		}
	}
}

// recompute refreshes the cached signals and signals an update.
func (f *Feed) recompute() {
	trades := f.mgr.Trades()

	f.mu.Lock()
	f.signals = aggregate.Compute(trades, f.clock, f.cfg.PressureWindow, f.fallback)
	f.mu.Unlock()

	select {
	case f.updates <- struct{}{}:
	default:
	}
}

// SetTarget switches the feed to a new target.
func (f *Feed) SetTarget(target model.Target) {
	f.mgr.SetTarget(target)
}

// SetAPIKey replaces the provider credential.
func (f *Feed) SetAPIKey(apiKey string) {
	f.mgr.SetAPIKey(apiKey)
}

// SetFallbackPrice sets the snapshot price used by LatestPrice when the
// newest trade has none. nil clears it.
func (f *Feed) SetFallbackPrice(price *float64) {
	f.mu.Lock()
	f.fallback = copyPrice(price)
	f.mu.Unlock()
	f.recompute()
}

// Trades returns the current window, newest first.
func (f *Feed) Trades() []model.Trade {
	return f.mgr.Trades()
}

// Status returns the connection state.
func (f *Feed) Status() model.ConnectionState {
	return f.mgr.Status()
}

// Err returns the last recorded error message, or "".
func (f *Feed) Err() string {
	return f.mgr.Err()
}

// Snapshot returns trades, status and error as one view.
func (f *Feed) Snapshot() connection.Snapshot {
	return f.mgr.Snapshot()
}

// Stats returns the manager's counters.
func (f *Feed) Stats() connection.ManagerStats {
	return f.mgr.Stats()
}

// Clock returns the time of the last tick.
func (f *Feed) Clock() time.Time {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.clock
}

// BuyPressure computes buy pressure over an arbitrary window against the
// current clock.
func (f *Feed) BuyPressure(window time.Duration) *float64 {
	return aggregate.BuyPressure(f.mgr.Trades(), f.Clock(), window)
}

// LatestPrice returns the newest trade price, else the fallback price.
func (f *Feed) LatestPrice() *float64 {
	f.mu.RLock()
	fallback := f.fallback
	f.mu.RUnlock()
	return aggregate.LatestPrice(f.mgr.Trades(), fallback)
}

// Signals returns the signals from the last recompute.
func (f *Feed) Signals() aggregate.Signals {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.signals
}

// Updates is signalled (coalesced) after every recompute.
func (f *Feed) Updates() <-chan struct{} {
	return f.updates
}

func copyPrice(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
