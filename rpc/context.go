package rpc

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ghostkellz/zrpc/headers"
)

// ServerCall is the RequestContext/ResponseContext pair,
// folded into one value handed to Handler.Serve: the immutable request
// headers, the streaming halves, and the place a handler leaves trailing
// metadata for the engine to frame into the response trailers.
type ServerCall struct {
	ctx context.Context

	// RequestID identifies this call in logs, generated fresh per stream,
	// stamped with a uuid the way a span id would be.
	RequestID string
	// Method is the dispatched Service/Method name.
	Method string
	// Metadata is the request's immutable headers, already stripped of the
	// :method/:deadline-ms pseudo-headers the engine consumed to build this
	// ServerCall.
	Metadata headers.Headers
	// Deadline is the earliest of the caller-supplied deadline and any
	// server policy in effect.
	Deadline time.Time
	// PeerIdentity is opaque to the core, which only forwards it. The
	// server does not fill it in: no spi interface reports a peer
	// identity, so it is empty on every ServerCall that dispatch builds.
	PeerIdentity string

	recv *RecvHalf
	send *SendHalf

	trailerMu sync.Mutex
	trailer   map[string]string
}

// Context returns a context.Context whose Done channel fires when the
// call's deadline passes or the context given to Serve ends. A stream
// reset or a closed connection does not close it; the handler sees those
// only as errors from Recv or Send.
func (c *ServerCall) Context() context.Context { return c.ctx }

// Recv reads the next inbound message (client-stream and bidi shapes).
func (c *ServerCall) Recv(ctx context.Context) ([]byte, bool, error) {
	return c.recv.Recv(ctx)
}

// Send writes one response message, in every shape. It never sets
// END_STREAM: the server ends the response with the trailers frame it
// sends after the handler returns.
func (c *ServerCall) Send(ctx context.Context, payload []byte) error {
	return c.send.Send(ctx, payload)
}

// SetTrailer attaches a key/value pair to the response trailers framed
// after the handler returns.
func (c *ServerCall) SetTrailer(key, value string) {
	c.trailerMu.Lock()
	defer c.trailerMu.Unlock()
	if c.trailer == nil {
		c.trailer = make(map[string]string)
	}
	c.trailer[key] = value
}

func (c *ServerCall) trailers() headers.Headers {
	c.trailerMu.Lock()
	defer c.trailerMu.Unlock()
	if len(c.trailer) == 0 {
		return nil
	}
	h := make(headers.Headers, 0, len(c.trailer))
	for k, v := range c.trailer {
		h.Add(k, v)
	}
	return h
}
