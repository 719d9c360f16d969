// Package status defines the application-visible RPC status codes and the error type that carries them across the client/server
// boundary. The mapping from transport-level errors (spi.Kind) to these
// codes lives in package rpc (mapTransportErr).
package status

import "fmt"

// Code is an application-visible RPC status, exposed to callers and
// handlers. It is distinct from spi.Kind, which is transport-internal.
type Code int

const (
	OK Code = iota
	Cancelled
	Unknown
	InvalidArgument
	DeadlineExceeded
	NotFound
	AlreadyExists
	PermissionDenied
	ResourceExhausted
	FailedPrecondition
	Aborted
	OutOfRange
	Unimplemented
	Internal
	Unavailable
	DataLoss
	Unauthenticated
)

var names = [...]string{
	"OK", "CANCELLED", "UNKNOWN", "INVALID_ARGUMENT", "DEADLINE_EXCEEDED",
	"NOT_FOUND", "ALREADY_EXISTS", "PERMISSION_DENIED", "RESOURCE_EXHAUSTED",
	"FAILED_PRECONDITION", "ABORTED", "OUT_OF_RANGE", "UNIMPLEMENTED",
	"INTERNAL", "UNAVAILABLE", "DATA_LOSS", "UNAUTHENTICATED",
}

func (c Code) String() string {
	if c < 0 || int(c) >= len(names) {
		return fmt.Sprintf("CODE(%d)", int(c))
	}
	return names[c]
}

// Error is the user-visible failure carried by a terminal RPC outcome: a
// status code, a diagnostic message, and optional trailing metadata
//. The code is the semantic signal; the message is diagnostic
// only and must never be parsed by callers.
type Error struct {
	Code     Code
	Message  string
	Trailers map[string]string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code.String()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// New constructs a status Error.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// FromError extracts a *Error from err, or reports Unknown if err does not
// carry a status (e.g. it originated outside the RPC core).
func FromError(err error) *Error {
	if err == nil {
		return &Error{Code: OK}
	}
	if se, ok := err.(*Error); ok {
		return se
	}
	return &Error{Code: Unknown, Message: err.Error()}
}

// Is reports whether err is a status Error with the given code.
func Is(err error, code Code) bool {
	se, ok := err.(*Error)
	return ok && se.Code == code
}
