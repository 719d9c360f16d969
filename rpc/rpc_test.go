package rpc

import (
	"context"
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghostkellz/zrpc/status"
	"github.com/ghostkellz/zrpc/zlog"
)

// newServerAndClient wires a Server over a fakeTransport's Listener and a
// Client dialed against the same transport, mirroring the S1-style
// end-to-end scenarios in.
func newServerAndClient(t *testing.T, register func(*Server)) (*Client, func()) {
	t.Helper()
	transport := newFakeTransport()
	log := zlog.Nop()

	server := NewServer(log)
	register(server)

	ctx, cancel := context.WithCancel(context.Background())
	ln, err := transport.Listen(ctx, "fake://server", nil)
	require.NoError(t, err)

	go func() { _ = server.Serve(ctx, ln) }()

	client, err := Dial(context.Background(), transport, "fake://client", nil, log)
	require.NoError(t, err)

	return client, func() {
		client.Close()
		cancel()
	}
}

func TestUnaryCallEcho(t *testing.T) {
	client, stop := newServerAndClient(t, func(s *Server) {
		s.Register("zrpc.Echo/Say", HandlerFunc(func(ctx context.Context, call *ServerCall) error {
			payload, _, err := call.Recv(ctx)
			if err != nil {
				return err
			}
			return call.Send(ctx, payload)
		}))
	})
	defer stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	resp, err := client.Call(ctx, "zrpc.Echo/Say", []byte("hello"), time.Second)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), resp)
}

func TestUnimplementedMethodReturnsUnimplementedStatus(t *testing.T) {
	client, stop := newServerAndClient(t, func(s *Server) {})
	defer stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := client.Call(ctx, "zrpc.Missing/Method", nil, time.Second)
	require.Error(t, err)
	se := status.FromError(err)
	assert.Equal(t, status.Unimplemented, se.Code)
}

func TestClientStreamSumsRequestMessages(t *testing.T) {
	client, stop := newServerAndClient(t, func(s *Server) {
		s.Register("zrpc.Math/Sum", HandlerFunc(func(ctx context.Context, call *ServerCall) error {
			var total uint32
			for {
				payload, final, err := call.Recv(ctx)
				if err != nil {
					return err
				}
				if len(payload) == 4 {
					total += binary.BigEndian.Uint32(payload)
				}
				if final {
					break
				}
			}
			result := make([]byte, 4)
			binary.BigEndian.PutUint32(result, total)
			return call.Send(ctx, result)
		}))
	})
	defer stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	send, resultC, err := client.OpenClientStream(ctx, "zrpc.Math/Sum", time.Second)
	require.NoError(t, err)

	for _, n := range []uint32{1, 2, 3} {
		buf := make([]byte, 4)
		binary.BigEndian.PutUint32(buf, n)
		require.NoError(t, send.Send(ctx, buf))
	}
	require.NoError(t, send.Close(ctx))

	result := <-resultC
	require.NoError(t, result.Err)
	assert.Equal(t, uint32(6), binary.BigEndian.Uint32(result.Response))
}

func TestServerStreamFansOutMultipleMessages(t *testing.T) {
	client, stop := newServerAndClient(t, func(s *Server) {
		s.Register("zrpc.Count/UpTo", HandlerFunc(func(ctx context.Context, call *ServerCall) error {
			payload, _, err := call.Recv(ctx)
			if err != nil {
				return err
			}
			n := binary.BigEndian.Uint32(payload)
			for i := uint32(1); i <= n; i++ {
				buf := make([]byte, 4)
				binary.BigEndian.PutUint32(buf, i)
				if err := call.Send(ctx, buf); err != nil {
					return err
				}
			}
			return nil
		}))
	})
	defer stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req := make([]byte, 4)
	binary.BigEndian.PutUint32(req, 3)
	recv, done, err := client.OpenServerStream(ctx, "zrpc.Count/UpTo", req, time.Second)
	require.NoError(t, err)
	defer done()

	var got []uint32
	for {
		payload, final, err := recv.Recv(ctx)
		require.NoError(t, err)
		if len(payload) == 4 {
			got = append(got, binary.BigEndian.Uint32(payload))
		}
		if final {
			break
		}
	}
	assert.Equal(t, []uint32{1, 2, 3}, got)
}

func TestBidiEchoesEveryMessageThenTrailers(t *testing.T) {
	client, stop := newServerAndClient(t, func(s *Server) {
		s.Register("zrpc.Echo/Stream", HandlerFunc(func(ctx context.Context, call *ServerCall) error {
			for {
				payload, final, err := call.Recv(ctx)
				if err != nil {
					return err
				}
				if err := call.Send(ctx, payload); err != nil {
					return err
				}
				if final {
					return nil
				}
			}
		}))
	})
	defer stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	send, recv, done, err := client.OpenBidi(ctx, "zrpc.Echo/Stream", time.Second)
	require.NoError(t, err)
	defer done()

	require.NoError(t, send.Send(ctx, []byte("one")))
	payload, _, err := recv.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("one"), payload)

	require.NoError(t, send.SendLast(ctx, []byte("two")))
	payload, _, err = recv.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("two"), payload)

	_, final, err := recv.Recv(ctx)
	require.NoError(t, err)
	assert.True(t, final)
}

func TestHandlerPanicMapsToInternalStatus(t *testing.T) {
	client, stop := newServerAndClient(t, func(s *Server) {
		s.Register("zrpc.Bad/Panic", HandlerFunc(func(ctx context.Context, call *ServerCall) error {
			panic("boom")
		}))
	})
	defer stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := client.Call(ctx, "zrpc.Bad/Panic", nil, time.Second)
	require.Error(t, err)
	assert.Equal(t, status.Internal, status.FromError(err).Code)
}

func TestHandlerDeadlineExceededMapsToDeadlineExceededStatus(t *testing.T) {
	client, stop := newServerAndClient(t, func(s *Server) {
		s.Register("zrpc.Slow/Method", HandlerFunc(func(ctx context.Context, call *ServerCall) error {
			<-ctx.Done()
			return ctx.Err()
		}))
	})
	defer stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := client.Call(ctx, "zrpc.Slow/Method", nil, 50*time.Millisecond)
	require.Error(t, err)
	assert.Equal(t, status.DeadlineExceeded, status.FromError(err).Code)
}

func TestSetTrailerDoesNotDisturbUnaryResponse(t *testing.T) {
	client, stop := newServerAndClient(t, func(s *Server) {
		s.Register("zrpc.Meta/Tag", HandlerFunc(func(ctx context.Context, call *ServerCall) error {
			call.SetTrailer("x-handled-by", "test")
			_, _, err := call.Recv(ctx)
			if err != nil {
				return err
			}
			return call.Send(ctx, []byte("ok"))
		}))
	})
	defer stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	resp, err := client.Call(ctx, "zrpc.Meta/Tag", []byte("req"), time.Second)
	require.NoError(t, err)
	assert.Equal(t, []byte("ok"), resp)
}
