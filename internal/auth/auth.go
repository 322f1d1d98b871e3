// Package auth signs private-class channel subscriptions locally.
//
// A process that holds the app secret does not need the HTTP auth endpoint:
// the token is key:hex(hmac_sha256(secret, socket_id:channel[:channel_data])),
// the same value the endpoint would return.
package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/hivesolutions/pushi-go/internal/api"
	"github.com/hivesolutions/pushi-go/internal/protocol"
)

// Credentials holds the app key and secret used to sign subscriptions.
type Credentials struct {
	AppKey    string          // App key, prefix of every token
	AppSecret string          // App secret, HMAC key
	UserData  json.RawMessage // Presence channel member data (nil = none)
}

// LoadCredentials builds credentials reading the secret from secretPath.
func LoadCredentials(appKey, secretPath string) (*Credentials, error) {
	if appKey == "" {
		return nil, fmt.Errorf("app key is required")
	}
	if secretPath == "" {
		return nil, fmt.Errorf("secret path is required")
	}

	secret, err := LoadSecret(secretPath)
	if err != nil {
		return nil, fmt.Errorf("load secret: %w", err)
	}

	return &Credentials{
		AppKey:    appKey,
		AppSecret: secret,
	}, nil
}

// LoadSecret reads an app secret from a file, trimming surrounding whitespace.
func LoadSecret(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read secret file: %w", err)
	}

	secret := strings.TrimSpace(string(data))
	if secret == "" {
		return "", fmt.Errorf("secret file %s is empty", path)
	}
	return secret, nil
}

// Sign returns the subscription token for socketID on channel.
func (c *Credentials) Sign(socketID, channel string, channelData json.RawMessage) string {
	message := socketID + ":" + channel
	if len(channelData) > 0 {
		message += ":" + string(channelData)
	}

	mac := hmac.New(sha256.New, []byte(c.AppSecret))
	mac.Write([]byte(message))

	return c.AppKey + ":" + hex.EncodeToString(mac.Sum(nil))
}

// Authorize signs the subscription locally. Presence channels carry the
// configured user data.
func (c *Credentials) Authorize(_ context.Context, socketID, channel string) (*api.ChannelAuth, error) {
	if c.AppSecret == "" {
		return nil, fmt.Errorf("app secret is required")
	}

	var channelData json.RawMessage
	if strings.HasPrefix(channel, protocol.PrefixPresence) && len(c.UserData) > 0 {
		channelData = c.UserData
	}

	return &api.ChannelAuth{
		Auth:        c.Sign(socketID, channel, channelData),
		ChannelData: channelData,
	}, nil
}
