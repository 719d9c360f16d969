package wsmux

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ghostkellz/zrpc/spi"
)

var errListenerClosed = errors.New("wsmux: listener closed")

// Listener accepts WebSocket handshakes on path and hands each completed
// connection to the RPC core as an spi.Connection. It uses acceptHandshake
// in place of gorilla's Upgrader so the resulting net.Conn can be driven
// by wsutil directly (see conn.go).
type Listener struct {
	netListener net.Listener
	httpServer  *http.Server
	path        string
	log         *zerolog.Logger

	acceptC chan spi.Connection
	errC    chan error
	closed  chan struct{}
	once    sync.Once
}

func (l *Listener) handle(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != l.path {
		http.NotFound(w, r)
		return
	}
	conn, err := acceptHandshake(w, r)
	if err != nil {
		l.log.Debug().Err(err).Msg("wsmux: handshake failed")
		return
	}
	local := conn.rw.LocalAddr().String()
	remote := conn.rw.RemoteAddr().String()
	wsConn := newConnection(conn, false, l.log, local, remote)

	select {
	case l.acceptC <- wsConn:
	case <-l.closed:
		wsConn.Close()
	}
}

func (l *Listener) Accept(ctx context.Context) (spi.Connection, error) {
	select {
	case c := <-l.acceptC:
		return c, nil
	case err := <-l.errC:
		return nil, spi.Wrap(spi.ConnectionFailed, err)
	case <-l.closed:
		return nil, spi.Wrap(spi.Closed, errListenerClosed)
	case <-ctx.Done():
		return nil, spi.Wrap(spi.Cancelled, ctx.Err())
	}
}

func (l *Listener) Close() error {
	var err error
	l.once.Do(func() {
		close(l.closed)
		err = l.httpServer.Close()
	})
	return err
}

func (l *Listener) Addr() string {
	return l.netListener.Addr().String()
}
