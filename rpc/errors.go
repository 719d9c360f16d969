package rpc

import (
	"context"
	"errors"

	"github.com/ghostkellz/zrpc/spi"
	"github.com/ghostkellz/zrpc/status"
)

// mapTransportErr translates a transport-level spi.Error into the
// application-visible status carried back to the caller.
func mapTransportErr(err error) *status.Error {
	if err == nil {
		return nil
	}
	var se *status.Error
	if errors.As(err, &se) {
		return se
	}
	switch spi.KindOf(err) {
	case spi.ConnectionFailed, spi.Network:
		return status.New(status.Unavailable, "%v", err)
	case spi.ConnectionTimeout:
		return status.New(status.DeadlineExceeded, "%v", err)
	case spi.DeadlineExceeded:
		return status.New(status.DeadlineExceeded, "%v", err)
	case spi.ConnectionReset:
		return status.New(status.Unavailable, "%v", err)
	case spi.Closed:
		return status.New(status.Unavailable, "%v", err)
	case spi.InvalidFrame, spi.InvalidHeader, spi.Protocol:
		return status.New(status.Internal, "%v", err)
	case spi.ResourceExhausted:
		return status.New(status.ResourceExhausted, "%v", err)
	case spi.InvalidArgument:
		return status.New(status.InvalidArgument, "%v", err)
	case spi.Cancelled:
		return status.New(status.Cancelled, "%v", err)
	default:
		return status.New(status.Unknown, "%v", err)
	}
}

// mapInboundErr is mapTransportErr's server-side counterpart: a malformed
// frame arriving from a client is the client's fault, not ours, so it maps
// to InvalidArgument instead of Internal.
func mapInboundErr(err error) *status.Error {
	switch spi.KindOf(err) {
	case spi.InvalidFrame, spi.InvalidHeader, spi.Protocol:
		return status.New(status.InvalidArgument, "%v", err)
	default:
		return mapTransportErr(err)
	}
}

// cancelReasonFor picks the spi.Kind a local Stream.Cancel should carry
// from the call's context: DeadlineExceeded once its deadline has passed,
// Cancelled otherwise, so the peer's mapTransportErr recovers a sensible
// code.
func cancelReasonFor(ctx context.Context) spi.Kind {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return spi.DeadlineExceeded
	}
	return spi.Cancelled
}
