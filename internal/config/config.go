package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hivesolutions/pushi-go/internal/auth"
	"github.com/hivesolutions/pushi-go/internal/metrics"
	"github.com/hivesolutions/pushi-go/internal/pushi"
	"github.com/hivesolutions/pushi-go/internal/transport"
	"github.com/hivesolutions/pushi-go/internal/version"
)

// Config is the root configuration for a pushi client process.
type Config struct {
	App        AppConfig        `yaml:"app"`
	Server     ServerConfig     `yaml:"server"`
	Connection ConnectionConfig `yaml:"connection"`
	Channels   []string         `yaml:"channels"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Log        LogConfig        `yaml:"log"`
}

// AppConfig identifies the Pushi app.
type AppConfig struct {
	Key        string `yaml:"key"`
	ID         string `yaml:"id"`          // Web API login id
	Secret     string `yaml:"secret"`      // Web API login secret, also signs private channels
	SecretPath string `yaml:"secret_path"` // File holding the secret (alternative to secret)
	UserData   string `yaml:"user_data"`   // JSON member data for presence channels
}

// ServerConfig holds the Pushi server endpoints.
type ServerConfig struct {
	BaseURL      string `yaml:"base_url"`
	BaseWebURL   string `yaml:"base_web_url"`
	AuthEndpoint string `yaml:"auth_endpoint"`
}

// ConnectionConfig holds socket and reconnection settings.
type ConnectionConfig struct {
	ReconnectTimeout time.Duration `yaml:"reconnect_timeout"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	PingInterval     time.Duration `yaml:"ping_interval"`
	PingTimeout      time.Duration `yaml:"ping_timeout"`
	AuthTimeout      time.Duration `yaml:"auth_timeout"`
}

// MetricsConfig holds the Prometheus endpoint settings.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level"`
}

// SlogLevel maps the configured level name to a slog level.
func (l LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Transport returns the websocket transport settings.
func (c *ConnectionConfig) Transport() transport.Config {
	return transport.Config{
		HandshakeTimeout: c.HandshakeTimeout,
		WriteTimeout:     c.WriteTimeout,
		PingInterval:     c.PingInterval,
		PingTimeout:      c.PingTimeout,
	}
}

// Credentials returns the local signing credentials, or nil when no secret
// is configured.
func (c *AppConfig) Credentials() (*auth.Credentials, error) {
	var creds *auth.Credentials
	switch {
	case c.Secret != "":
		creds = &auth.Credentials{AppKey: c.Key, AppSecret: c.Secret}
	case c.SecretPath != "":
		var err error
		creds, err = auth.LoadCredentials(c.Key, c.SecretPath)
		if err != nil {
			return nil, err
		}
	default:
		return nil, nil
	}

	if c.UserData != "" {
		creds.UserData = json.RawMessage(c.UserData)
	}
	return creds, nil
}

// ToPushi builds the connection configuration. Private channels are
// authorized through the auth endpoint when one is set, otherwise signed
// locally when the app secret is available.
func (c *Config) ToPushi(logger *slog.Logger, collector *metrics.Collector) (pushi.Config, error) {
	cfg := pushi.Config{
		Timeout:      c.Connection.ReconnectTimeout,
		BaseURL:      c.Server.BaseURL,
		BaseWebURL:   c.Server.BaseWebURL,
		AuthEndpoint: c.Server.AuthEndpoint,
		AuthTimeout:  c.Connection.AuthTimeout,
		AppID:        c.App.ID,
		AppSecret:    c.App.Secret,
		Dialer:       transport.NewWebsocketDialer(c.Connection.Transport(), version.Header(), logger),
		Logger:       logger,
		Metrics:      collector,
	}

	if c.Server.AuthEndpoint == "" {
		creds, err := c.App.Credentials()
		if err != nil {
			return pushi.Config{}, fmt.Errorf("app credentials: %w", err)
		}
		if creds != nil {
			cfg.Authorizer = creds
			if cfg.AppSecret == "" {
				cfg.AppSecret = creds.AppSecret
			}
		}
	}

	return cfg, nil
}
