package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultHTTPURL            = "https://graph.codex.io/graphql"
	DefaultWSURL              = "wss://graph.codex.io/graphql"
	DefaultVariant            = "evm"
	DefaultProviderTimeout    = 30 * time.Second
	DefaultMaxRetries         = 3
	DefaultRetryBackoff       = 1 * time.Second
	DefaultHandshakeTimeout   = 10 * time.Second
	DefaultPingInterval       = 30 * time.Second
	DefaultMaxEvents          = 60
	DefaultReconnectBaseDelay = 1 * time.Second
	DefaultReconnectMaxDelay  = 30 * time.Second
	DefaultPressureWindow     = 5 * time.Minute
	DefaultTickInterval       = 1 * time.Second
	DefaultServerAddr         = ":8080"
	DefaultShutdownTimeout    = 10 * time.Second
	DefaultLogLevel           = "info"
	DefaultLogFormat          = "text"
)

func (c *TradefeedConfig) applyDefaults() {
	// Provider defaults
	if c.Provider.HTTPURL == "" {
		c.Provider.HTTPURL = DefaultHTTPURL
	}
	if c.Provider.WSURL == "" {
		c.Provider.WSURL = DefaultWSURL
	}
	if c.Provider.Variant == "" {
		c.Provider.Variant = DefaultVariant
	}
	if c.Provider.Timeout == 0 {
		c.Provider.Timeout = DefaultProviderTimeout
	}
	if c.Provider.MaxRetries == 0 {
		c.Provider.MaxRetries = DefaultMaxRetries
	}
	if c.Provider.RetryBackoff == 0 {
		c.Provider.RetryBackoff = DefaultRetryBackoff
	}
	if c.Provider.HandshakeTimeout == 0 {
		c.Provider.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Provider.PingInterval == 0 {
		c.Provider.PingInterval = DefaultPingInterval
	}

	// Feed defaults
	if c.Feed.MaxEvents == 0 {
		c.Feed.MaxEvents = DefaultMaxEvents
	}
	if c.Feed.ReconnectBaseDelay == 0 {
		c.Feed.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.Feed.ReconnectMaxDelay == 0 {
		c.Feed.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if c.Feed.PressureWindow == 0 {
		c.Feed.PressureWindow = DefaultPressureWindow
	}
	if c.Feed.TickInterval == 0 {
		c.Feed.TickInterval = DefaultTickInterval
	}

	if c.Server.Addr == "" {
		c.Server.Addr = DefaultServerAddr
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}

	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
}
