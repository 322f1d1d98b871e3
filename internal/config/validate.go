package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.App.Key == "" {
		return errors.New("app.key is required")
	}
	if c.App.Secret != "" && c.App.SecretPath != "" {
		return errors.New("app.secret and app.secret_path are mutually exclusive")
	}
	if c.App.UserData != "" && !json.Valid([]byte(c.App.UserData)) {
		return errors.New("app.user_data must be valid JSON")
	}

	if err := validateURL("server.base_url", c.Server.BaseURL, "ws", "wss"); err != nil {
		return err
	}
	if c.Server.BaseWebURL != "" {
		if err := validateURL("server.base_web_url", c.Server.BaseWebURL, "http", "https"); err != nil {
			return err
		}
	}
	if c.Server.AuthEndpoint != "" {
		if err := validateURL("server.auth_endpoint", c.Server.AuthEndpoint, "http", "https"); err != nil {
			return err
		}
	}

	if c.Connection.ReconnectTimeout < 0 {
		return errors.New("connection.reconnect_timeout must be >= 0")
	}
	if c.Connection.PingInterval > 0 && c.Connection.PingTimeout <= c.Connection.PingInterval {
		return fmt.Errorf("connection.ping_timeout (%s) must exceed ping_interval (%s)",
			c.Connection.PingTimeout, c.Connection.PingInterval)
	}

	for i, name := range c.Channels {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("channels[%d] is empty", i)
		}
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}
	if !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /, got %q", c.Metrics.Path)
	}

	return nil
}

func validateURL(field, raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	for _, scheme := range schemes {
		if u.Scheme == scheme && u.Host != "" {
			return nil
		}
	}
	return fmt.Errorf("%s must be a %s URL, got %q", field, strings.Join(schemes, "/"), raw)
}
