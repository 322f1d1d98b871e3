// Package pushi implements the client side of the Pushi real-time protocol.
//
// A Connection is a logical handle on one persistent socket. Handles created
// for an app key that already has a live Connection in the same Registry are
// clones: they share the physical transport and its lifecycle, keep their own
// channel map and listeners, and never reconnect on their own.
//
// Inbound frames are routed twice: to the Connection's listeners with
// (data, channel, mid, timestamp) and, when the frame names a known channel,
// to that Channel's listeners with (data, mid, timestamp).
//
// All handles of one socket share a mutex. Listeners are always invoked
// after that mutex is released, in the order the frames produced them, so a
// listener may call back into the Connection or its Channels.
package pushi
