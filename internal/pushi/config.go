package pushi

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hivesolutions/pushi-go/internal/api"
	"github.com/hivesolutions/pushi-go/internal/metrics"
	"github.com/hivesolutions/pushi-go/internal/transport"
)

// Default values for optional configuration fields.
const (
	DefaultTimeout     = 5 * time.Second
	DefaultBaseURL     = "wss://puxiapp.com/"
	DefaultAuthTimeout = 10 * time.Second
	DefaultLatestCount = 10
)

// Errors
var (
	ErrNoAuthEndpoint = errors.New("no auth endpoint defined")
	ErrEmptyAuth      = errors.New("empty channel auth token")
)

// Authorizer issues the token required to subscribe a private-class channel.
type Authorizer interface {
	Authorize(ctx context.Context, socketID, channel string) (*api.ChannelAuth, error)
}

// Config configures a Connection.
type Config struct {
	Timeout      time.Duration // Fixed delay before a reconnect attempt
	BaseURL      string        // Websocket root, the app key is appended
	BaseWebURL   string        // Web API root (empty = derived from BaseURL)
	AuthEndpoint string        // Private channel auth URL (empty = none)
	AuthTimeout  time.Duration // Deadline for one authorization round trip
	AppID        string        // Web API login id
	AppSecret    string        // Web API login secret

	Authorizer Authorizer         // Overrides AuthEndpoint when set
	Dialer     transport.Dialer   // nil = websocket transport with defaults
	Registry   *Registry          // nil = DefaultRegistry
	Logger     *slog.Logger       // nil = slog.Default()
	Metrics    *metrics.Collector // nil = no metrics
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:     DefaultTimeout,
		BaseURL:     DefaultBaseURL,
		AuthTimeout: DefaultAuthTimeout,
	}
}

func (c *Config) applyDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.AuthTimeout <= 0 {
		c.AuthTimeout = DefaultAuthTimeout
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Registry == nil {
		c.Registry = DefaultRegistry
	}
	if c.Dialer == nil {
		c.Dialer = transport.NewWebsocketDialer(transport.DefaultConfig(), nil, c.Logger)
	}
}

// SendOption configures an outbound frame.
type SendOption func(*sendOptions)

type sendOptions struct {
	echo    bool
	persist bool
}

func newSendOptions(opts []SendOption) sendOptions {
	o := sendOptions{echo: false, persist: true}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithEcho asks the server to deliver the frame back to this socket.
func WithEcho(echo bool) SendOption {
	return func(o *sendOptions) {
		o.echo = echo
	}
}

// WithPersist controls whether the server stores the frame for later replay.
func WithPersist(persist bool) SendOption {
	return func(o *sendOptions) {
		o.persist = persist
	}
}
