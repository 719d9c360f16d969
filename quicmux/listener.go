package quicmux

import (
	"context"
	"net"

	quicgo "github.com/quic-go/quic-go"
	"github.com/rs/zerolog"

	"github.com/ghostkellz/zrpc/spi"
)

// Listener accepts native-QUIC connections.
type Listener struct {
	ln      *quicgo.Listener
	udpConn *net.UDPConn
	log     *zerolog.Logger
}

func (l *Listener) Accept(ctx context.Context) (spi.Connection, error) {
	sess, err := l.ln.Accept(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, spi.Wrap(spi.Cancelled, err)
		}
		return nil, spi.Wrap(spi.Closed, err)
	}
	return newConnection(sess, l.log), nil
}

func (l *Listener) Close() error {
	err := l.ln.Close()
	l.udpConn.Close()
	return err
}

func (l *Listener) Addr() string {
	return l.ln.Addr().String()
}
