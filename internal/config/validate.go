package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Validate checks that values are in range. The API key is optional: without
// one the feed reports unauthorized instead of failing to start.
func (c *TradefeedConfig) Validate() error {
	switch strings.ToLower(c.Provider.Variant) {
	case "evm", "sol":
	default:
		return fmt.Errorf("provider.variant must be evm or sol, got %q", c.Provider.Variant)
	}
	if c.Provider.MaxRetries < 0 {
		return errors.New("provider.max_retries must be >= 0")
	}

	if c.Target.Address != "" && c.Target.NetworkID < 1 {
		return errors.New("target.network_id is required when target.address is set")
	}

	if c.Feed.MaxEvents < 1 {
		return errors.New("feed.max_events must be >= 1")
	}
	if c.Feed.ReconnectMaxDelay < c.Feed.ReconnectBaseDelay {
		return fmt.Errorf("feed.reconnect_max_delay (%s) cannot be less than reconnect_base_delay (%s)",
			c.Feed.ReconnectMaxDelay, c.Feed.ReconnectBaseDelay)
	}
	if c.Feed.PressureWindow <= 0 {
		return errors.New("feed.pressure_window must be > 0")
	}
	if c.Feed.TickInterval <= 0 {
		return errors.New("feed.tick_interval must be > 0")
	}

	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}

	return nil
}

// SlogLevel parses Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}
