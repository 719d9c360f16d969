package rpc

import (
	"context"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/ghostkellz/zrpc/headers"
	"github.com/ghostkellz/zrpc/retry"
	"github.com/ghostkellz/zrpc/spi"
	"github.com/ghostkellz/zrpc/status"
	"github.com/ghostkellz/zrpc/zlog"
)

// Client is the RPC core's client half: one dialed
// Connection, driving the four call shapes over freshly opened Streams.
type Client struct {
	conn       spi.Connection
	log        *zerolog.Logger
	idleBudget time.Duration
}

// Dial selects transport explicitly
// and establishes a Connection.
func Dial(ctx context.Context, transport spi.Transport, rawEndpoint string, tlsCfg *spi.TlsConfig, log *zerolog.Logger) (*Client, error) {
	if log == nil {
		log = zlog.Nop()
	}
	conn, err := transport.Connect(ctx, rawEndpoint, tlsCfg)
	if err != nil {
		return nil, mapTransportErr(err)
	}
	return &Client{conn: conn, log: log, idleBudget: DefaultConnectionIdleBudget}, nil
}

// DialWithRetry wraps Dial with a retry.BackoffHandler: Client.Dial itself
// never retries, but applications commonly want a reconnect loop on top of
// it.
func DialWithRetry(ctx context.Context, transport spi.Transport, rawEndpoint string, tlsCfg *spi.TlsConfig, backoff retry.BackoffHandler, log *zerolog.Logger) (*Client, error) {
	for {
		c, err := Dial(ctx, transport, rawEndpoint, tlsCfg, log)
		if err == nil {
			return c, nil
		}
		wait := backoff.BackoffTimer()
		if wait == nil {
			return nil, err
		}
		select {
		case <-wait:
		case <-ctx.Done():
			return nil, mapTransportErr(spi.Wrap(spi.Cancelled, ctx.Err()))
		}
	}
}

// Close tears down the underlying Connection and every live Stream rooted
// in it.
func (c *Client) Close() error { return c.conn.Close() }

func (c *Client) effectiveDeadline(deadline time.Duration) time.Duration {
	if deadline <= 0 {
		deadline = DefaultDeadline
	}
	if c.idleBudget > 0 && c.idleBudget < deadline {
		return c.idleBudget
	}
	return deadline
}

// openCall opens a Stream and writes the request HEADERS frame common to
// every shape. The returned context
// carries the armed deadline; callers must eventually call cancel.
func (c *Client) openCall(ctx context.Context, method string, deadline time.Duration, metadata headers.Headers) (spi.Stream, context.Context, context.CancelFunc, error) {
	d := c.effectiveDeadline(deadline)
	callCtx, cancel := context.WithTimeout(ctx, d)

	stream, err := c.conn.OpenStream(callCtx)
	if err != nil {
		cancel()
		return nil, nil, nil, wrapAsCallErr(err, callCtx)
	}

	h := headers.New(
		headers.Method, method,
		headers.DeadlineMS, strconv.FormatInt(d.Milliseconds(), 10),
		headers.ContentType, headers.DefaultCT,
	)
	h = append(h, metadata...)

	send := newSendHalf(stream)
	if err := send.sendHeaders(callCtx, h, false); err != nil {
		stream.Cancel(cancelReasonFor(callCtx))
		cancel()
		return nil, nil, nil, wrapAsCallErr(err, callCtx)
	}
	return stream, callCtx, cancel, nil
}

// Call performs a unary RPC. It blocks until a
// terminal response is observed or the deadline/ctx expires.
func (c *Client) Call(ctx context.Context, method string, request []byte, deadline time.Duration) ([]byte, error) {
	stream, callCtx, cancel, err := c.openCall(ctx, method, deadline, nil)
	if err != nil {
		return nil, err
	}
	defer cancel()

	send := newSendHalf(stream)
	if err := send.SendLast(callCtx, request); err != nil {
		stream.Cancel(cancelReasonFor(callCtx))
		return nil, wrapAsCallErr(err, callCtx)
	}

	recv := newRecvHalf(stream)
	var response []byte
	for {
		payload, final, err := recv.Recv(callCtx)
		if err != nil {
			if callCtx.Err() != nil {
				stream.Cancel(cancelReasonFor(callCtx))
			}
			return nil, wrapAsCallErr(err, callCtx)
		}
		response = append(response, payload...)
		if final {
			return response, nil
		}
	}
}

// ClientStreamResult is delivered once the server's final response to an
// OpenClientStream call is observed.
type ClientStreamResult struct {
	Response []byte
	Err      error
}

// OpenClientStream opens a client-streaming call: the
// caller sends N messages via the returned SendHalf, then Close()s it; the
// single terminal response arrives on the returned channel.
func (c *Client) OpenClientStream(ctx context.Context, method string, deadline time.Duration) (*SendHalf, <-chan ClientStreamResult, error) {
	stream, callCtx, cancel, err := c.openCall(ctx, method, deadline, nil)
	if err != nil {
		return nil, nil, err
	}
	send := newSendHalf(stream)
	result := make(chan ClientStreamResult, 1)
	go func() {
		defer cancel()
		recv := newRecvHalf(stream)
		var response []byte
		for {
			payload, final, err := recv.Recv(callCtx)
			if err != nil {
				if callCtx.Err() != nil {
					stream.Cancel(cancelReasonFor(callCtx))
				}
				result <- ClientStreamResult{Err: wrapAsCallErr(err, callCtx)}
				return
			}
			response = append(response, payload...)
			if final {
				result <- ClientStreamResult{Response: response}
				return
			}
		}
	}()
	return send, result, nil
}

// OpenServerStream opens a server-streaming call: the
// request is a single message, the response is N messages read off the
// returned RecvHalf. cancel releases the call's resources and must be
// called once the caller is done reading.
func (c *Client) OpenServerStream(ctx context.Context, method string, request []byte, deadline time.Duration) (recv *RecvHalf, cancel func(), err error) {
	stream, callCtx, ctxCancel, err := c.openCall(ctx, method, deadline, nil)
	if err != nil {
		return nil, nil, err
	}
	send := newSendHalf(stream)
	if err := send.SendLast(callCtx, request); err != nil {
		stream.Cancel(cancelReasonFor(callCtx))
		ctxCancel()
		return nil, nil, wrapAsCallErr(err, callCtx)
	}
	return newRecvHalf(stream), ctxCancel, nil
}

// OpenBidi opens a bidirectional-streaming call: send and
// recv halves are independent, exactly as the SPI Stream contract
// describes. cancel releases the call's resources.
func (c *Client) OpenBidi(ctx context.Context, method string, deadline time.Duration) (send *SendHalf, recv *RecvHalf, cancel func(), err error) {
	stream, callCtx, ctxCancel, err := c.openCall(ctx, method, deadline, nil)
	if err != nil {
		return nil, nil, nil, err
	}
	wrappedCancel := func() {
		stream.Cancel(cancelReasonFor(callCtx))
		ctxCancel()
	}
	return newSendHalf(stream), newRecvHalf(stream), wrappedCancel, nil
}

// wrapAsCallErr maps err through mapTransportErr, then re-surfaces a
// context deadline as DEADLINE_EXCEEDED specifically: the adapters only distinguish "ctx done" from "explicit cancel" as
// Cancelled, so the deadline/cancel distinction is resolved here, where
// the original caller-supplied deadline is in scope.
func wrapAsCallErr(err error, ctx context.Context) *status.Error {
	se := mapTransportErr(err)
	if se != nil && ctx.Err() == context.DeadlineExceeded {
		return status.New(status.DeadlineExceeded, "%v", err)
	}
	return se
}
