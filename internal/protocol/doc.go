// Package protocol defines the wire format exchanged with a Pushi server.
//
// Every unit on the socket is one JSON object (a Frame). Internal events
// carry their payload as a JSON string holding another JSON document, which
// Payload unwraps.
package protocol
