package provider

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/rickgao/tradefeed/internal/connection"
)

// Default endpoints.
const (
	DefaultHTTPURL = "https://graph.codex.io/graphql"
	DefaultWSURL   = "wss://graph.codex.io/graphql"
)

// Client provides access to the provider's GraphQL API.
type Client struct {
	httpURL    string
	wsURL      string
	apiKey     string
	variant    Variant
	httpClient *http.Client
	logger     *slog.Logger

	maxRetries   int
	retryBackoff time.Duration

	handshakeTimeout time.Duration
	writeTimeout     time.Duration
	pingInterval     time.Duration
}

var _ connection.Provider = (*Client)(nil)

// ClientOption configures a Client.
type ClientOption func(*Client)

// NewClient creates a new provider client.
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		httpURL: DefaultHTTPURL,
		wsURL:   DefaultWSURL,
		apiKey:  apiKey,
		variant: VariantEVM,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger:           slog.Default(),
		maxRetries:       3,
		retryBackoff:     time.Second,
		handshakeTimeout: 10 * time.Second,
		writeTimeout:     5 * time.Second,
		pingInterval:     30 * time.Second,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// WithEndpoints overrides the HTTP and WebSocket URLs. Empty values keep
// the defaults.
func WithEndpoints(httpURL, wsURL string) ClientOption {
	return func(c *Client) {
		if httpURL != "" {
			c.httpURL = httpURL
		}
		if wsURL != "" {
			c.wsURL = wsURL
		}
	}
}

// WithVariant selects the subscription flavour.
func WithVariant(v Variant) ClientOption {
	return func(c *Client) {
		c.variant = v
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// minRetryBackoff keeps the jittered retry delay well defined.
const minRetryBackoff = time.Millisecond

// WithRetries sets the retry configuration. The backoff is at least 1ms.
func WithRetries(retries int, backoff time.Duration) ClientOption {
	return func(c *Client) {
		c.maxRetries = max(retries, 0)
		c.retryBackoff = max(backoff, minRetryBackoff)
	}
}

// WithHandshakeTimeout bounds the WebSocket dial and connection_ack wait.
func WithHandshakeTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.handshakeTimeout = d
	}
}

// WithPingInterval sets the keepalive ping period. Zero disables pings.
func WithPingInterval(d time.Duration) ClientOption {
	return func(c *Client) {
		c.pingInterval = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// Config holds the settings shared by every client a factory builds.
type Config struct {
	HTTPURL          string
	WSURL            string
	Variant          Variant
	Timeout          time.Duration
	MaxRetries       int
	RetryBackoff     time.Duration
	HandshakeTimeout time.Duration
	PingInterval     time.Duration
}

// NewFactory returns a ProviderFactory that builds a Client per API key.
func NewFactory(cfg Config, logger *slog.Logger) connection.ProviderFactory {
	if logger == nil {
		logger = slog.Default()
	}

	return func(apiKey string) (connection.Provider, error) {
		opts := []ClientOption{
			WithEndpoints(cfg.HTTPURL, cfg.WSURL),
			WithLogger(logger),
		}
		if cfg.Variant != "" {
			v, err := ParseVariant(string(cfg.Variant))
			if err != nil {
				return nil, err
			}
			opts = append(opts, WithVariant(v))
		}
		if cfg.Timeout > 0 {
			opts = append(opts, WithTimeout(cfg.Timeout))
		}
		if cfg.MaxRetries > 0 || cfg.RetryBackoff > 0 {
			retries, backoff := cfg.MaxRetries, cfg.RetryBackoff
			if backoff <= 0 {
				backoff = time.Second
			}
			opts = append(opts, WithRetries(retries, backoff))
		}
		if cfg.HandshakeTimeout > 0 {
			opts = append(opts, WithHandshakeTimeout(cfg.HandshakeTimeout))
		}
		if cfg.PingInterval > 0 {
			opts = append(opts, WithPingInterval(cfg.PingInterval))
		}
		return NewClient(apiKey, opts...), nil
	}
}
