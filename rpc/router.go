package rpc

import (
	"fmt"

	"github.com/ghostkellz/zrpc/endpoint"
	"github.com/ghostkellz/zrpc/spi"
)

// Router maps endpoint schemes to the spi.Transport that serves them. The
// SPI itself does not interpret schemes — Router is the small,
// explicit, no-hidden-singleton registry callers use to satisfy that
// concern, instead of a package-level global map.
type Router struct {
	transports map[endpoint.Scheme]spi.Transport
}

// NewRouter returns an empty Router.
func NewRouter() *Router {
	return &Router{transports: make(map[endpoint.Scheme]spi.Transport)}
}

// Register binds scheme to t. Typically called once per scheme at startup
// — e.g. r.Register(endpoint.SchemeZR, &quicmux.Transport{}).
func (r *Router) Register(scheme endpoint.Scheme, t spi.Transport) {
	r.transports[scheme] = t
}

// Resolve parses raw and returns the Transport registered for its scheme.
func (r *Router) Resolve(raw string) (spi.Transport, endpoint.Endpoint, error) {
	ep, err := endpoint.Parse(raw)
	if err != nil {
		return nil, endpoint.Endpoint{}, spi.Wrap(spi.InvalidArgument, err)
	}
	t, ok := r.transports[ep.Scheme]
	if !ok {
		return nil, endpoint.Endpoint{}, spi.Wrap(spi.InvalidArgument, fmt.Errorf("rpc: no transport registered for scheme %q", ep.Scheme))
	}
	return t, ep, nil
}
