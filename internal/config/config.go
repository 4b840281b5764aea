package config

import "time"

// TradefeedConfig is the root configuration for a tradefeed instance.
type TradefeedConfig struct {
	Provider ProviderConfig `yaml:"provider"`
	Target   TargetConfig   `yaml:"target"`
	Feed     FeedConfig     `yaml:"feed"`
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
}

// ProviderConfig holds market-data provider settings.
type ProviderConfig struct {
	APIKey           string        `yaml:"api_key"` // Empty leaves the feed unauthorized
	HTTPURL          string        `yaml:"http_url"`
	WSURL            string        `yaml:"ws_url"`
	Variant          string        `yaml:"variant"` // "evm" or "sol"
	Timeout          time.Duration `yaml:"timeout"`
	MaxRetries       int           `yaml:"max_retries"`
	RetryBackoff     time.Duration `yaml:"retry_backoff"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	PingInterval     time.Duration `yaml:"ping_interval"`
}

// TargetConfig is the token to follow at startup.
type TargetConfig struct {
	Address   string `yaml:"address"`
	NetworkID int    `yaml:"network_id"`
}

// FeedConfig holds window, reconnect and signal settings.
type FeedConfig struct {
	MaxEvents          int           `yaml:"max_events"`
	ReconnectBaseDelay time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay  time.Duration `yaml:"reconnect_max_delay"`
	PressureWindow     time.Duration `yaml:"pressure_window"`
	TickInterval       time.Duration `yaml:"tick_interval"`
	FallbackPrice      *float64      `yaml:"fallback_price"`
}

// ServerConfig holds the HTTP status server settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}
