// Package metrics exposes Prometheus collectors for Pushi connections.
//
// Metrics:
//   - frames received and sent, by event class
//   - dropped inbound frames (unknown channel, undecodable)
//   - transport opens and reconnect attempts
//   - abandoned private-channel authorizations
//   - connected handles
package metrics
