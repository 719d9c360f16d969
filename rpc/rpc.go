// Package rpc is the RPC core: the client call
// path, the server accept/dispatch loop, and the streaming engine that
// enforces the four RPC shapes on top of the Transport SPI. It never
// touches an adapter-specific type — only spi.Transport/Connection/Stream
// — so a third adapter (HTTP/2, HTTP/3, UDS) drops in unchanged. The
// dispatch loop shape and per-connection supervision (errgroup-driven)
// follow the same pattern as h2mux.Muxer and its connection manager,
// generalized from a fixed tunnel-registration protocol to an open
// method registry.
package rpc

import "time"

// DefaultDeadline is used for calls that specify no deadline, matching
// h2mux's defaultTimeout fallback.
const DefaultDeadline = 30 * time.Second

// DefaultConnectionIdleBudget is the idle budget a dialed Client starts
// with; every call's deadline is capped at it (Client.effectiveDeadline).
// The client does not track connection idleness itself.
const DefaultConnectionIdleBudget = 5 * time.Minute
