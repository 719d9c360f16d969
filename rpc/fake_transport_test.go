package rpc

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/ghostkellz/zrpc/spi"
)

// fakeStream, fakeConnection, fakeListener and fakeTransport give the rpc
// package tests an in-process spi.Transport, the same way wsmux's
// pipeMsgConn exercises the multiplexer without a real socket
// (wsmux/wsmux_test.go) — here the SPI boundary itself is faked so the
// tests exercise Client/Server/Handler wiring, not a real adapter.
type fakeStream struct {
	id        uint32
	sendCh    chan spi.Frame
	recvCh    chan spi.Frame
	cancelled chan struct{}
	once      sync.Once
}

func newFakeStreamPair(id uint32) (a, b *fakeStream) {
	ab := make(chan spi.Frame, 64)
	ba := make(chan spi.Frame, 64)
	cancelled := make(chan struct{})
	a = &fakeStream{id: id, sendCh: ab, recvCh: ba, cancelled: cancelled}
	b = &fakeStream{id: id, sendCh: ba, recvCh: ab, cancelled: cancelled}
	return a, b
}

func (s *fakeStream) WriteFrame(ctx context.Context, typ spi.FrameType, flags uint8, payload []byte) error {
	cp := append([]byte(nil), payload...)
	select {
	case s.sendCh <- spi.Frame{Type: typ, Flags: flags, Payload: cp}:
		return nil
	case <-s.cancelled:
		return spi.Wrap(spi.Closed, errors.New("fake stream cancelled"))
	case <-ctx.Done():
		return spi.Wrap(spi.Cancelled, ctx.Err())
	}
}

func (s *fakeStream) ReadFrame(ctx context.Context) (spi.Frame, error) {
	select {
	case fr := <-s.recvCh:
		return fr, nil
	case <-s.cancelled:
		return spi.Frame{}, spi.Wrap(spi.Cancelled, errors.New("fake stream cancelled"))
	case <-ctx.Done():
		return spi.Frame{}, spi.Wrap(spi.Cancelled, ctx.Err())
	}
}

func (s *fakeStream) Cancel(reason spi.Kind) {
	s.once.Do(func() { close(s.cancelled) })
}

func (s *fakeStream) Close() error { return nil }
func (s *fakeStream) ID() uint32   { return s.id }

type fakeConnection struct {
	incoming chan spi.Stream
	closed   chan struct{}
	closeOne sync.Once
	peer     *fakeConnection
	nextID   uint32
}

func (c *fakeConnection) OpenStream(ctx context.Context) (spi.Stream, error) {
	id := atomic.AddUint32(&c.nextID, 2)
	a, b := newFakeStreamPair(id)
	select {
	case c.peer.incoming <- b:
		return a, nil
	case <-ctx.Done():
		return nil, spi.Wrap(spi.Cancelled, ctx.Err())
	}
}

func (c *fakeConnection) AcceptStream(ctx context.Context) (spi.Stream, error) {
	select {
	case st := <-c.incoming:
		return st, nil
	case <-c.closed:
		return nil, spi.Wrap(spi.Closed, errors.New("fake connection closed"))
	case <-ctx.Done():
		return nil, spi.Wrap(spi.Cancelled, ctx.Err())
	}
}

func (c *fakeConnection) Ping(ctx context.Context) error { return nil }

func (c *fakeConnection) IsConnected() bool {
	select {
	case <-c.closed:
		return false
	default:
		return true
	}
}

func (c *fakeConnection) Close() error {
	c.closeOne.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConnection) LocalAddr() string  { return "fake-local" }
func (c *fakeConnection) RemoteAddr() string { return "fake-remote" }

type fakeListener struct {
	connCh chan spi.Connection
	closed chan struct{}
	once   sync.Once
}

func (l *fakeListener) Accept(ctx context.Context) (spi.Connection, error) {
	select {
	case c := <-l.connCh:
		return c, nil
	case <-l.closed:
		return nil, spi.Wrap(spi.Closed, errors.New("fake listener closed"))
	case <-ctx.Done():
		return nil, spi.Wrap(spi.Cancelled, ctx.Err())
	}
}

func (l *fakeListener) Close() error {
	l.once.Do(func() { close(l.closed) })
	return nil
}

func (l *fakeListener) Addr() string { return "fake-addr" }

// fakeTransport implements spi.Transport entirely in memory: every Connect
// call synthesizes a fresh paired fakeConnection and hands the server side
// to the single fakeListener created by Listen.
type fakeTransport struct {
	ln *fakeListener
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{ln: &fakeListener{connCh: make(chan spi.Connection, 16), closed: make(chan struct{})}}
}

func (t *fakeTransport) Connect(ctx context.Context, endpoint string, tlsConfig *spi.TlsConfig) (spi.Connection, error) {
	client := &fakeConnection{incoming: make(chan spi.Stream, 16), closed: make(chan struct{})}
	server := &fakeConnection{incoming: make(chan spi.Stream, 16), closed: make(chan struct{}), peer: client}
	client.peer = server

	select {
	case t.ln.connCh <- server:
	case <-ctx.Done():
		return nil, spi.Wrap(spi.Cancelled, ctx.Err())
	}
	return client, nil
}

func (t *fakeTransport) Listen(ctx context.Context, endpoint string, tlsConfig *spi.TlsConfig) (spi.Listener, error) {
	return t.ln, nil
}
