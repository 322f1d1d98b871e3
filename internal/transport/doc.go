// Package transport implements the persistent socket used by a Pushi connection.
//
// The websocket transport:
//   - Dials asynchronously so opening never blocks the caller
//   - Delivers inbound frames in order from a single read loop
//   - Sends keepalive pings and reports stale connections
//   - Reports exactly one close per transport, whatever the cause
package transport
