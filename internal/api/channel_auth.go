package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// ChannelAuth is the authorization returned for a private-class channel.
type ChannelAuth struct {
	Auth        string          `json:"auth"`
	ChannelData json.RawMessage `json:"channel_data,omitempty"`
}

// AuthorizeChannel asks endpoint for the token allowing socketID to join
// channel. It makes a single attempt.
func (c *Client) AuthorizeChannel(ctx context.Context, endpoint, socketID, channel string) (*ChannelAuth, error) {
	query := url.Values{}
	query.Set("socket_id", socketID)
	query.Set("channel", channel)

	body, err := c.doRequest(ctx, http.MethodGet, endpoint, query, nil)
	if err != nil {
		return nil, fmt.Errorf("authorize channel %s: %w", channel, err)
	}

	var result ChannelAuth
	if err := decode(body, &result); err != nil {
		return nil, fmt.Errorf("authorize channel %s: %w", channel, err)
	}

	return &result, nil
}

// EndpointAuthorizer authorizes channels against a fixed auth endpoint.
type EndpointAuthorizer struct {
	Client   *Client
	Endpoint string
}

// Authorize implements the connection's authorizer contract.
func (a *EndpointAuthorizer) Authorize(ctx context.Context, socketID, channel string) (*ChannelAuth, error) {
	return a.Client.AuthorizeChannel(ctx, a.Endpoint, socketID, channel)
}
