package rpc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ghostkellz/zrpc/frame"
	"github.com/ghostkellz/zrpc/headers"
	"github.com/ghostkellz/zrpc/rpcmetrics"
	"github.com/ghostkellz/zrpc/spi"
	"github.com/ghostkellz/zrpc/status"
	"github.com/ghostkellz/zrpc/zlog"
)

// Server is the RPC core's server half: a sealed method
// registry served over every Connection a Listener accepts. Serve's
// accept/dispatch supervision mirrors h2mux.Muxer.Serve's errgroup use
// (h2mux/h2mux.go), generalized from one Muxer's reader/writer pair to one
// goroutine per accepted Connection plus one per accepted Stream.
type Server struct {
	reg *registry
	log *zerolog.Logger

	// Deadline is the server's own bound on every request; a shorter
	// caller-supplied :deadline-ms takes precedence. Zero means
	// DefaultDeadline.
	Deadline time.Duration
}

// NewServer returns a Server with an empty, unsealed registry.
func NewServer(log *zerolog.Logger) *Server {
	if log == nil {
		log = zlog.Nop()
	}
	return &Server{reg: newRegistry(), log: log}
}

// Register binds method to h. Must be called before Serve; panics
// otherwise").
func (s *Server) Register(method string, h Handler) {
	s.reg.register(method, h)
}

// Serve accepts Connections from ln until ctx is cancelled or ln closes,
// dispatching every Stream to its registered Handler. It seals the
// registry on entry.
func (s *Server) Serve(ctx context.Context, ln spi.Listener) error {
	s.reg.seal()

	g, ctx := errgroup.WithContext(ctx)
	for {
		conn, err := ln.Accept(ctx)
		if err != nil {
			if spi.KindOf(err) == spi.Closed || ctx.Err() != nil {
				break
			}
			s.log.Warn().Err(err).Msg("rpc: accept failed")
			continue
		}
		g.Go(func() error {
			return s.serveConnection(ctx, conn)
		})
	}
	return g.Wait()
}

func (s *Server) serveConnection(ctx context.Context, conn spi.Connection) error {
	defer conn.Close()

	g, ctx := errgroup.WithContext(ctx)
	for {
		stream, err := conn.AcceptStream(ctx)
		if err != nil {
			if spi.KindOf(err) == spi.Closed || ctx.Err() != nil {
				break
			}
			s.log.Warn().Err(err).Str("peer", conn.RemoteAddr()).Msg("rpc: accept stream failed")
			continue
		}
		g.Go(func() error {
			s.dispatch(ctx, stream)
			return nil
		})
	}
	return g.Wait()
}

// dispatch implements per-stream algorithm: read the
// request HEADERS, resolve the method, run the handler (or the
// UNIMPLEMENTED fast path), and frame the terminal trailers.
func (s *Server) dispatch(ctx context.Context, stream spi.Stream) {
	start := time.Now()
	recv := newRecvHalf(stream)
	send := newSendHalf(stream)

	reqHeaders, err := s.readRequestHeaders(ctx, stream)
	if err != nil {
		se := mapInboundErr(err)
		s.finish(ctx, send, se, nil, "")
		stream.Cancel(cancelReasonFor(ctx))
		return
	}

	method := reqHeaders.Method()
	handler, ok := s.reg.lookup(method)
	if !ok {
		s.finish(ctx, send, status.New(status.Unimplemented, "unknown method %q", method), nil, method)
		return
	}

	deadline := s.Deadline
	if deadline <= 0 {
		deadline = DefaultDeadline
	}
	if ms, ok := reqHeaders.DeadlineMillis(); ok {
		if d := time.Duration(ms) * time.Millisecond; d > 0 && d < deadline {
			deadline = d
		}
	}
	callCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	call := &ServerCall{
		ctx:       callCtx,
		RequestID: uuid.NewString(),
		Method:    method,
		Metadata:  stripPseudoHeaders(reqHeaders),
		Deadline:  time.Now().Add(deadline),
		recv:      recv,
		send:      send,
	}

	se := s.runHandler(callCtx, handler, call)
	rpcmetrics.CallsTotal.WithLabelValues(method, se.Code.String()).Inc()
	rpcmetrics.HandlerDuration.WithLabelValues(method, se.Code.String()).Observe(time.Since(start).Seconds())

	s.finish(callCtx, send, se, call.trailers(), method)
	if se.Code != status.OK {
		stream.Cancel(cancelReasonFor(callCtx))
	}
}

// runHandler invokes h.Serve, converting a panic into an INTERNAL status
// instead of crashing the accept loop.
func (s *Server) runHandler(ctx context.Context, h Handler, call *ServerCall) (se *status.Error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Str("method", call.Method).Str("request_id", call.RequestID).Msg("rpc: handler panicked")
			se = status.New(status.Internal, "handler panic: %v", r)
		}
	}()
	err := h.Serve(ctx, call)
	// A context that already ended is the authoritative signal: it takes
	// precedence over whatever error the handler happened to return (it
	// may just be propagating ctx.Err() itself, or may have returned nil
	// without noticing the deadline).
	if ctx.Err() != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return status.New(status.DeadlineExceeded, "handler context ended: %v", ctx.Err())
		}
		return status.New(status.Cancelled, "handler context ended: %v", ctx.Err())
	}
	if err != nil {
		return mapTransportErr(err)
	}
	return &status.Error{Code: status.OK}
}

// readRequestHeaders blocks for the stream's first frame, which must be a
// HEADERS frame carrying :method.
func (s *Server) readRequestHeaders(ctx context.Context, stream spi.Stream) (headers.Headers, error) {
	fr, err := stream.ReadFrame(ctx)
	if err != nil {
		return nil, err
	}
	if frame.Type(fr.Type) != frame.TypeHeaders {
		return nil, spi.New(spi.Protocol, fmt.Errorf("expected HEADERS frame, got %v", frame.Type(fr.Type)))
	}
	h, err := headers.Decode(fr.Payload)
	if err != nil {
		return nil, spi.Wrap(spi.InvalidHeader, err)
	}
	if h.Method() == "" {
		return nil, spi.New(spi.InvalidHeader, fmt.Errorf("request headers missing :method"))
	}
	return h, nil
}

// finish frames the terminal trailers HEADERS: the
// response's only HEADERS frame, carrying :status-code/:status-reason plus any
// trailer metadata the handler set, with END_STREAM.
func (s *Server) finish(ctx context.Context, send *SendHalf, se *status.Error, trailer headers.Headers, method string) {
	h := withStatus(trailer, se.Code, se.Message)
	if err := send.sendHeaders(ctx, h, true); err != nil {
		s.log.Debug().Err(err).Str("method", method).Msg("rpc: failed to send response trailers")
	}
}

func stripPseudoHeaders(h headers.Headers) headers.Headers {
	out := make(headers.Headers, 0, len(h))
	for _, kv := range h {
		switch kv.Name {
		case headers.Method, headers.DeadlineMS:
			continue
		}
		out = append(out, kv)
	}
	return out
}
