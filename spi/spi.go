// Package spi defines the Transport Service Provider Interface: the
// capability contracts (Transport, Listener, Connection, Stream) that every
// wire-protocol adapter implements, and that the RPC core drives without
// ever touching an adapter-specific type.
package spi

import (
	"context"
	"crypto/tls"
)

// TlsConfig is the caller-owned TLS bundle adapters read but never mutate.
// ServerName, ALPN and the certificate material are supplied
// by the application; adapters translate it into their underlying stack's
// native config (crypto/tls.Config for QUIC/WS-over-TLS).
type TlsConfig struct {
	Cert              tls.Certificate
	HasCert           bool
	CA                *tls.Config // if set, CA.RootCAs/ClientCAs are reused as-is
	ServerName        string
	ALPN              []string
	VerifyPeer        bool
	RequireClientCert bool
}

// Transport is the top-level capability an adapter implements: dial as a
// client, or listen as a server.
type Transport interface {
	// Connect dials endpoint and returns an established Connection.
	Connect(ctx context.Context, endpoint string, tlsConfig *TlsConfig) (Connection, error)
	// Listen binds endpoint and returns a Listener accepting Connections.
	Listen(ctx context.Context, endpoint string, tlsConfig *TlsConfig) (Listener, error)
}

// Listener accepts incoming Connections.
type Listener interface {
	// Accept blocks until a new peer handshake completes, or the listener
	// is closed, in which case it returns an *Error{Kind: Closed}.
	Accept(ctx context.Context) (Connection, error)
	// Close is idempotent; any Accept in flight fails with Kind Closed.
	Close() error
	// Addr reports the bound local address.
	Addr() string
}

// Connection owns a set of live Streams, a keepalive clock, and a
// flow-control window. No Stream outlives its Connection:
// closing a Connection ends every live Stream, whose operations then fail
// with a Kind that surfaces to applications as status.Unavailable.
type Connection interface {
	// OpenStream allocates and returns a new Stream. Fails with
	// ResourceExhausted if peer limits are reached.
	OpenStream(ctx context.Context) (Stream, error)
	// AcceptStream blocks until the peer opens a new Stream, or the
	// connection closes.
	AcceptStream(ctx context.Context) (Stream, error)
	// Ping sends a transport-level keepalive probe.
	Ping(ctx context.Context) error
	// IsConnected reports current liveness without blocking.
	IsConnected() bool
	// Close tears down the connection and every stream rooted in it.
	Close() error
	// LocalAddr / RemoteAddr report endpoint strings for logging.
	LocalAddr() string
	RemoteAddr() string
}

// Stream is a half-duplex pair (send side, recv side), the unit of a single
// RPC. write_frame/read_frame/cancel/close map directly to the
// operations named in.
type Stream interface {
	// WriteFrame writes one frame on the send side. Suspends
	// (cooperatively) when flow-control-blocked.
	WriteFrame(ctx context.Context, typ FrameType, flags uint8, payload []byte) error
	// ReadFrame reads the next frame on the recv side. Suspends when no
	// frame is buffered and END_STREAM has not yet been observed.
	ReadFrame(ctx context.Context) (Frame, error)
	// Cancel aborts the stream with the given reason kind, mapping to an
	// abrupt reset (QUIC STOP_SENDING+RESET_STREAM, or an RST_STREAM
	// control frame on WebSocket). Idempotent: further calls are no-ops.
	Cancel(reason Kind)
	// Close gracefully closes the send side (sets END_STREAM). Does not
	// affect the recv side.
	Close() error
	// ID returns the transport-local stream identifier.
	ID() uint32
}

// FrameType mirrors frame.Type without importing the frame package, so spi
// stays the narrow, dependency-free contract adapters implement against.
type FrameType = uint8

// Frame is the adapter-facing mirror of frame.Frame, kept field-identical
// so callers can convert with a single struct literal at the boundary.
type Frame struct {
	Type    FrameType
	Flags   uint8
	Payload []byte
}

// EndStream reports whether the END_STREAM flag is set, mirroring
// frame.Frame.EndStream without depending on the frame package.
func (f Frame) EndStream() bool { return f.Flags&0x01 != 0 }
