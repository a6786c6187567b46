// Package room owns the in-memory mapping of rooms to users and users to
// live connections, and performs all membership transitions and message
// delivery.
//
// State is ephemeral: nothing survives a process restart. A room emptied by
// a leave is deleted synchronously inside that leave operation; only a room
// created explicitly, before anyone joins it, can be observed empty.
package room
