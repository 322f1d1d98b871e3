package protocol

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// Reserved event names.
const (
	EventConnectionEstablished   = "pusher:connection_established"
	EventSubscribe               = "pusher:subscribe"
	EventUnsubscribe             = "pusher:unsubscribe"
	EventLatest                  = "pusher:latest"
	EventSubscriptionSucceeded   = "pusher_internal:subscription_succeeded"
	EventUnsubscriptionSucceeded = "pusher_internal:unsubscription_succeeded"
	EventLatestReply             = "pusher_internal:latest"
	EventMemberAdded             = "pusher:member_added"
	EventMemberRemoved           = "pusher:member_removed"
)

// Channel name prefixes.
const (
	PrefixPrivate  = "private-"
	PrefixPresence = "presence-"
	PrefixPersonal = "personal-"
	PrefixPeer     = "peer-"
)

// Frame is a single protocol message.
type Frame struct {
	Event     string          `json:"event"`
	Data      json.RawMessage `json:"data,omitempty"`
	Channel   string          `json:"channel,omitempty"`
	Echo      bool            `json:"echo"`
	Persist   bool            `json:"persist"`
	Mid       string          `json:"mid,omitempty"`
	Timestamp float64         `json:"timestamp,omitempty"`
	Member    json.RawMessage `json:"member,omitempty"`
}

// SubscribeData is the payload of a subscribe frame.
type SubscribeData struct {
	Channel     string          `json:"channel"`
	Auth        string          `json:"auth,omitempty"`
	ChannelData json.RawMessage `json:"channel_data,omitempty"`
}

// UnsubscribeData is the payload of an unsubscribe frame.
type UnsubscribeData struct {
	Channel string `json:"channel"`
}

// LatestData is the payload of a latest (history) request frame.
type LatestData struct {
	Channel string `json:"channel"`
	Skip    int    `json:"skip"`
	Count   int    `json:"count"`
}

// Decode parses a raw frame.
func Decode(raw []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return Frame{}, fmt.Errorf("decode frame: %w", err)
	}
	if f.Event == "" {
		return Frame{}, fmt.Errorf("decode frame: missing event")
	}
	return f, nil
}

// Encode builds the wire representation of an outbound frame.
func Encode(event, channel string, data any, echo, persist bool) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode %s data: %w", event, err)
	}

	f := Frame{
		Event:   event,
		Data:    raw,
		Channel: channel,
		Echo:    echo,
		Persist: persist,
	}

	out, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("encode %s frame: %w", event, err)
	}
	return out, nil
}

// Payload unwraps data sent as a JSON string holding a JSON document.
// Anything else is returned unchanged.
func Payload(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return raw
	}
	result := gjson.ParseBytes(raw)
	if result.Type != gjson.String {
		return raw
	}
	inner := result.String()
	if !gjson.Valid(inner) {
		return raw
	}
	return json.RawMessage(inner)
}

// SocketID extracts the session identifier from a connection-established payload.
func SocketID(payload json.RawMessage) string {
	return gjson.GetBytes(payload, "socket_id").String()
}

// Aliases extracts the alias channel names from a subscription payload.
func Aliases(payload json.RawMessage) []string {
	if len(payload) == 0 {
		return nil
	}
	values := gjson.GetBytes(payload, "alias").Array()
	if len(values) == 0 {
		return nil
	}
	names := make([]string, 0, len(values))
	for _, v := range values {
		if name := v.String(); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// IsPrivate reports whether a channel requires authentication before subscription.
func IsPrivate(channel string) bool {
	return strings.HasPrefix(channel, PrefixPrivate) ||
		strings.HasPrefix(channel, PrefixPresence) ||
		strings.HasPrefix(channel, PrefixPersonal)
}

// IsPeer reports whether a channel may receive messages without a prior subscribe.
func IsPeer(channel string) bool {
	return strings.HasPrefix(channel, PrefixPeer)
}
