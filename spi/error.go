package spi

import "fmt"

// Kind is the exhaustive transport-error taxonomy every adapter must map
// its errors into. Adapters must never leak underlying
// library error types past their SPI boundary.
type Kind int

const (
	ConnectionFailed Kind = iota
	ConnectionReset
	ConnectionTimeout
	NotConnected
	InvalidFrame
	InvalidHeader
	Protocol
	ResourceExhausted
	InvalidArgument
	Closed
	Network
	DeadlineExceeded
	Cancelled
)

var kindNames = [...]string{
	"CONNECTION_FAILED", "CONNECTION_RESET", "CONNECTION_TIMEOUT", "NOT_CONNECTED",
	"INVALID_FRAME", "INVALID_HEADER", "PROTOCOL", "RESOURCE_EXHAUSTED",
	"INVALID_ARGUMENT", "CLOSED", "NETWORK", "DEADLINE_EXCEEDED", "CANCELLED",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("KIND(%d)", int(k))
	}
	return kindNames[k]
}

// Error is the concrete error type every SPI operation fails with. Every
// adapter error that crosses the SPI boundary must be (or be wrapped as) an
// *Error so the RPC core can map it to a status code.
type Error struct {
	Kind  Kind
	Cause error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// New wraps cause as an *Error of the given Kind. It always returns a
// non-nil *Error, even when cause is nil — callers that only have a Kind
// and no underlying error (e.g. a locally detected protocol violation)
// still get a valid error to return.
func New(kind Kind, cause error) *Error {
	return &Error{Kind: kind, Cause: cause}
}

// Wrap is an alias for New kept for call-site readability at adapter
// boundaries (`return spi.Wrap(spi.Network, err)`).
func Wrap(kind Kind, cause error) *Error { return New(kind, cause) }

// KindOf extracts the Kind from err, defaulting to Network for errors that
// did not originate in the SPI (e.g. raw I/O errors an adapter forgot to
// wrap — treated conservatively as a network failure, never as success).
func KindOf(err error) Kind {
	if err == nil {
		return -1
	}
	var se *Error
	if ok := asError(err, &se); ok {
		return se.Kind
	}
	return Network
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
