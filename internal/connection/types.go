package connection

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rickgao/tradefeed/internal/model"
	"github.com/rickgao/tradefeed/internal/window"
)

// Errors
var (
	ErrMissingAPIKey  = errors.New("missing provider API key")
	ErrAlreadyStarted = errors.New("already started")
	ErrAlreadyClosed  = errors.New("already closed")
	ErrNoFactory      = errors.New("no provider factory")
)

// Provider is the market-data boundary the manager consumes.
type Provider interface {
	// FetchRecentEvents returns up to limit recent raw events for the target.
	// Ordering is unspecified; callers re-sort.
	FetchRecentEvents(ctx context.Context, address string, networkID, limit int) ([]json.RawMessage, error)

	// Subscribe opens a live feed. It returns once the subscription is
	// established. After a successful return the handlers may be called from
	// any goroutine until Unsubscribe is called. OnError is terminal for the
	// subscription.
	Subscribe(ctx context.Context, address string, networkID int, h Handlers) (Unsubscribe, error)
}

// Handlers receive live-feed callbacks.
type Handlers struct {
	OnEvents func(events []json.RawMessage)
	OnError  func(message string)
}

// Unsubscribe tears down a live subscription. It must be safe to call more
// than once.
type Unsubscribe func()

// ProviderFactory builds a Provider for a credential.
type ProviderFactory func(apiKey string) (Provider, error)

// Timer is a pending reconnect. *time.Timer satisfies it.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d.
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// ManagerConfig configures the Connection Manager.
type ManagerConfig struct {
	APIKey            string        // Provider credential; empty means unauthorized
	Target            model.Target  // Initial target (zero = idle until SetTarget)
	MaxEvents         int           // Trade window size and backfill limit
	ReconnectBaseWait time.Duration // Base wait time for reconnection
	ReconnectMaxWait  time.Duration // Max wait time for reconnection

	// Now is the clock used for unparseable event timestamps (nil = time.Now).
	Now func() time.Time

	// AfterFunc schedules reconnects (nil = time.AfterFunc).
	AfterFunc AfterFunc
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		MaxEvents:         window.DefaultMaxEvents,
		ReconnectBaseWait: 1 * time.Second,
		ReconnectMaxWait:  30 * time.Second,
	}
}

// withDefaults fills zero values from DefaultManagerConfig.
func (c ManagerConfig) withDefaults() ManagerConfig {
	d := DefaultManagerConfig()
	if c.MaxEvents <= 0 {
		c.MaxEvents = d.MaxEvents
	}
	if c.ReconnectBaseWait <= 0 {
		c.ReconnectBaseWait = d.ReconnectBaseWait
	}
	if c.ReconnectMaxWait <= 0 {
		c.ReconnectMaxWait = d.ReconnectMaxWait
	}
	if c.ReconnectMaxWait < c.ReconnectBaseWait {
		c.ReconnectMaxWait = c.ReconnectBaseWait
	}
	if c.AfterFunc == nil {
		c.AfterFunc = realAfterFunc
	}
	return c
}

// Snapshot is a consistent view of the manager's outputs.
type Snapshot struct {
	Trades  []model.Trade         `json:"trades"`
	Status  model.ConnectionState `json:"status"`
	Error   string                `json:"error,omitempty"`
	Attempt int                   `json:"attempt"`
	Target  model.Target          `json:"target"`
}

// ManagerStats provides statistics about the connection manager.
type ManagerStats struct {
	EventsReceived   int64      `json:"events_received"` // Raw events from backfill and live feed
	EventsRejected   int64      `json:"events_rejected"` // Dropped by the normalizer or network filter
	Subscribes       int64      `json:"subscribes"`      // Subscribe attempts
	Reconnects       int64      `json:"reconnects"`      // Reconnects scheduled
	StreamErrors     int64      `json:"stream_errors"`   // Subscribe failures and stream errors
	BackfillFailures int64      `json:"backfill_failures"`
	StaleDiscarded   int64      `json:"stale_discarded"` // Callbacks dropped after a target change or stop
	Queue            QueueStats `json:"queue"`           // Event loop inbox
}
