package quicmux

import (
	"context"
	"errors"
	"time"

	quicgo "github.com/quic-go/quic-go"
	"github.com/rs/zerolog"

	"github.com/ghostkellz/zrpc/rpcmetrics"
	"github.com/ghostkellz/zrpc/spi"
)

// keepAlivePeriod matches h2mux's default heartbeat cadence
// (h2mux/idletimer.go), handed to quic-go's own PING scheduler rather than
// driven by an IdleTimer in this package: QUIC's transport already owns
// keepalive framing, so the adapter only needs to expose Ping/IsConnected.
const keepAlivePeriod = 15 * time.Second

// closeErrCode is the application error code used for a local, graceful
// Close(); Cancel on a stream uses the reset reason's Kind
// value instead (see stream.go).
const closeErrCode quicgo.ApplicationErrorCode = 0

// Connection adapts a quic-go Connection to spi.Connection.
type Connection struct {
	sess quicgo.Connection
	log  *zerolog.Logger
}

func newConnection(sess quicgo.Connection, log *zerolog.Logger) *Connection {
	rpcmetrics.ActiveConnections.Inc()
	return &Connection{sess: sess, log: log}
}

func (c *Connection) OpenStream(ctx context.Context) (spi.Stream, error) {
	qs, err := c.sess.OpenStreamSync(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, spi.Wrap(spi.Cancelled, err)
		}
		return nil, spi.Wrap(spi.ResourceExhausted, err)
	}
	rpcmetrics.ActiveStreams.Inc()
	return newStream(qs), nil
}

func (c *Connection) AcceptStream(ctx context.Context) (spi.Stream, error) {
	qs, err := c.sess.AcceptStream(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, spi.Wrap(spi.Cancelled, err)
		}
		return nil, mapConnError(err)
	}
	rpcmetrics.ActiveStreams.Inc()
	return newStream(qs), nil
}

// Ping sends an unreliable QUIC datagram as a liveness probe. quic-go does not expose a bare application PING frame API, so a
// zero-length datagram (enabled via quic.Config.EnableDatagrams) is used
// instead; like a PING it carries no application semantics and the peer
// need not acknowledge it for Ping to report success — only that the local
// transport accepted it for send.
func (c *Connection) Ping(ctx context.Context) error {
	if err := c.sess.SendDatagram(nil); err != nil {
		return spi.Wrap(spi.Network, err)
	}
	return nil
}

func (c *Connection) IsConnected() bool {
	select {
	case <-c.sess.Context().Done():
		return false
	default:
		return true
	}
}

func (c *Connection) Close() error {
	rpcmetrics.ActiveConnections.Dec()
	return c.sess.CloseWithError(closeErrCode, "connection closed")
}

func (c *Connection) LocalAddr() string  { return c.sess.LocalAddr().String() }
func (c *Connection) RemoteAddr() string { return c.sess.RemoteAddr().String() }

// mapConnError translates a quic-go AcceptStream failure (peer closed the
// connection, idle timeout, etc.) into the SPI taxonomy: a peer's
// application close maps to ConnectionReset, an idle timeout to
// ConnectionTimeout, and anything else to Network.
func mapConnError(err error) *spi.Error {
	var appErr *quicgo.ApplicationError
	if errors.As(err, &appErr) {
		return spi.Wrap(spi.ConnectionReset, err)
	}
	var idleErr *quicgo.IdleTimeoutError
	if errors.As(err, &idleErr) {
		return spi.Wrap(spi.ConnectionTimeout, err)
	}
	return spi.Wrap(spi.Network, err)
}
