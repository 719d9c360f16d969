package rpc

import (
	"context"
	"fmt"
	"sync"
)

// Handler serves one RPC stream bound to a registered method. Exactly one Serve call occurs per stream.
type Handler interface {
	Serve(ctx context.Context, call *ServerCall) error
}

// HandlerFunc adapts a plain function to Handler, the way
// h2mux.MuxedStreamFunc adapts a func to MuxedStreamHandler.
type HandlerFunc func(ctx context.Context, call *ServerCall) error

func (f HandlerFunc) Serve(ctx context.Context, call *ServerCall) error { return f(ctx, call) }

// registry is the server's dispatch table: append-only until
// seal is called by Serve, after which lookups take no lock — "the
// dispatch table on the server is read-only after serve(); no locking."
type registry struct {
	mu       sync.Mutex
	handlers map[string]Handler
	sealed   bool
}

func newRegistry() *registry {
	return &registry{handlers: make(map[string]Handler)}
}

// register adds method -> h. Panics if called after seal, matching the
// spec's "registration is append-only... and must be complete before
// serve()" — a programming error, not a runtime condition to recover from.
func (r *registry) register(method string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		panic(fmt.Sprintf("rpc: Register(%q) called after Serve", method))
	}
	r.handlers[method] = h
}

func (r *registry) seal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sealed = true
}

// lookup is called from every connection's dispatch goroutine and takes no
// lock: the table is immutable by the time Serve is running.
func (r *registry) lookup(method string) (Handler, bool) {
	h, ok := r.handlers[method]
	return h, ok
}
