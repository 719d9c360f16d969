// Package headers implements the ordered, case-insensitive header multimap
// carried on every stream's HEADERS frame, including the
// pseudo-headers (:method, :deadline-ms) and free-form application
// metadata. The Name/Value pair shape and ordered-multimap semantics
// generalize the usual HTTP/1↔HTTP/2 header conversion to a
// transport-neutral encoding.
package headers

import (
	"strconv"
	"strings"
)

// Pseudo-header names.
const (
	Method       = ":method"
	DeadlineMS   = ":deadline-ms"
	ContentType  = "content-type"
	DefaultCT    = "application/zrpc+zpb"
	StatusCode   = ":status-code"
	StatusReason = ":status-reason"
)

// Header is a single ordered (name, value) pair.
type Header struct {
	Name  string
	Value string
}

// Headers is an ordered multimap of case-insensitive names to values. Order
// of insertion is preserved so wire encodings (and logs) are deterministic.
type Headers []Header

// New builds a Headers value from name/value pairs, e.g.
// headers.New(headers.Method, "Echo/Say", "x-trace-id", traceID).
func New(kv ...string) Headers {
	if len(kv)%2 != 0 {
		panic("headers.New: odd number of arguments")
	}
	h := make(Headers, 0, len(kv)/2)
	for i := 0; i < len(kv); i += 2 {
		h = append(h, Header{Name: kv[i], Value: kv[i+1]})
	}
	return h
}

// Add appends a (name, value) pair, preserving any existing values under
// the same name (this is a multimap, not a map).
func (h *Headers) Add(name, value string) {
	*h = append(*h, Header{Name: name, Value: value})
}

// Get returns the first value for name (case-insensitive), or "" if absent.
func (h Headers) Get(name string) string {
	for _, kv := range h {
		if strings.EqualFold(kv.Name, name) {
			return kv.Value
		}
	}
	return ""
}

// Values returns every value for name, in insertion order.
func (h Headers) Values(name string) []string {
	var out []string
	for _, kv := range h {
		if strings.EqualFold(kv.Name, name) {
			out = append(out, kv.Value)
		}
	}
	return out
}

// Method returns the :method pseudo-header value (Service/Method).
func (h Headers) Method() string { return h.Get(Method) }

// DeadlineMillis parses the :deadline-ms pseudo-header. ok is false if the
// header is absent or not a valid unsigned decimal.
func (h Headers) DeadlineMillis() (ms uint64, ok bool) {
	v := h.Get(DeadlineMS)
	if v == "" {
		return 0, false
	}
	parsed, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return parsed, true
}

// WithDeadlineMillis returns a copy of h with :deadline-ms set.
func WithDeadlineMillis(h Headers, ms uint64) Headers {
	out := make(Headers, 0, len(h)+1)
	out = append(out, h...)
	out.Add(DeadlineMS, strconv.FormatUint(ms, 10))
	return out
}

// Clone returns a deep copy safe for independent mutation.
func (h Headers) Clone() Headers {
	out := make(Headers, len(h))
	copy(out, h)
	return out
}
