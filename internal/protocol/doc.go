// Package protocol defines the JSON envelope exchanged with signaling
// clients over the WebSocket transport.
//
// SDP payloads are opaque strings and ICE candidates are opaque structured
// values; this package models the wire surface, not WebRTC semantics.
package protocol
