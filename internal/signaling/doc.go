// Package signaling terminates WebSocket signaling connections and routes
// decoded envelopes to the room registry.
//
// Media never flows through this process; it only brokers the offer/answer
// and ICE candidate exchange browsers need to connect directly.
package signaling
