package api

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Errors
var (
	ErrAppIDRequired     = errors.New("app ID is required")
	ErrAppSecretRequired = errors.New("app secret is required")
	ErrLoginRequired     = errors.New("login required")
)

// PushSubscription identifies a browser push subscription.
type PushSubscription struct {
	Endpoint string `json:"endpoint"`
	P256dh   string `json:"p256dh"`
	Auth     string `json:"auth"`
}

type loginRequest struct {
	AppID     string `json:"app_id"`
	AppSecret string `json:"app_secret"`
}

type webPushRequest struct {
	PushSubscription
	Event string `json:"event"`
}

// Login opens an app session used by the web push calls.
func (c *Client) Login(ctx context.Context, appID, appSecret string) error {
	if appID == "" {
		return ErrAppIDRequired
	}
	if appSecret == "" {
		return ErrAppSecretRequired
	}

	_, err := c.doWithRetry(ctx, http.MethodPost, "/login", nil, loginRequest{
		AppID:     appID,
		AppSecret: appSecret,
	})
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}

	c.mu.Lock()
	c.authenticated = true
	c.mu.Unlock()

	c.logger.Debug("logged in", "app_id", appID)
	return nil
}

// RegisterWebPush registers sub to receive event notifications.
func (c *Client) RegisterWebPush(ctx context.Context, sub PushSubscription, event string) error {
	if !c.Authenticated() {
		return ErrLoginRequired
	}

	_, err := c.doWithRetry(ctx, http.MethodPost, "/web_pushes", nil, webPushRequest{
		PushSubscription: sub,
		Event:            event,
	})
	if err != nil {
		return fmt.Errorf("register web push: %w", err)
	}
	return nil
}

// UnregisterWebPush removes the registration of sub for event.
func (c *Client) UnregisterWebPush(ctx context.Context, sub PushSubscription, event string) error {
	if !c.Authenticated() {
		return ErrLoginRequired
	}

	query := url.Values{}
	if event != "" {
		query.Set("event", event)
	}

	path := "/web_pushes/" + url.PathEscape(sub.Endpoint)
	if _, err := c.doWithRetry(ctx, http.MethodDelete, path, query, nil); err != nil {
		return fmt.Errorf("unregister web push: %w", err)
	}
	return nil
}

// DecodeVAPIDKey decodes a base64url application server key, with or
// without padding.
func DecodeVAPIDKey(key string) ([]byte, error) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(key, "="))
	if err != nil {
		return nil, fmt.Errorf("decode vapid key: %w", err)
	}
	return raw, nil
}
