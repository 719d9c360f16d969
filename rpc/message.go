package rpc

import (
	"context"
	"strconv"
	"sync"

	"github.com/ghostkellz/zrpc/frame"
	"github.com/ghostkellz/zrpc/headers"
	"github.com/ghostkellz/zrpc/spi"
	"github.com/ghostkellz/zrpc/status"
)

// SendHalf is the send side of a Stream's streaming engine.
// A message is carried as exactly one DATA frame — the configured
// max_frame_size (negotiable up to the 16 MiB absolute ceiling) is
// large enough that a single frame per application message is the
// simplest reading of "a message boundary corresponds to a contiguous
// sequence of data frames"; this implementation does not also chunk one
// message across multiple DATA frames.
type SendHalf struct {
	stream spi.Stream

	mu   sync.Mutex
	done bool
}

func newSendHalf(s spi.Stream) *SendHalf { return &SendHalf{stream: s} }

// Send writes one non-final message.
func (s *SendHalf) Send(ctx context.Context, payload []byte) error {
	return s.write(ctx, payload, 0)
}

// SendLast writes the final message of this half, setting END_STREAM in
// the same frame so no extra empty frame is needed on the wire.
func (s *SendHalf) SendLast(ctx context.Context, payload []byte) error {
	return s.write(ctx, payload, frame.FlagEndStream)
}

// Close half-closes the send side with no further payload. Idempotent.
func (s *SendHalf) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()
	return s.write(ctx, nil, frame.FlagEndStream)
}

func (s *SendHalf) write(ctx context.Context, payload []byte, flags uint8) error {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return status.New(status.FailedPrecondition, "send half already closed")
	}
	if flags&frame.FlagEndStream != 0 {
		s.done = true
	}
	s.mu.Unlock()

	if err := s.stream.WriteFrame(ctx, frame.TypeData, flags, payload); err != nil {
		return mapTransportErr(err)
	}
	return nil
}

func (s *SendHalf) sendHeaders(ctx context.Context, h headers.Headers, endStream bool) error {
	flags := frame.FlagEndHeaders
	if endStream {
		flags |= frame.FlagEndStream
		s.mu.Lock()
		s.done = true
		s.mu.Unlock()
	}
	if err := s.stream.WriteFrame(ctx, frame.TypeHeaders, flags, headers.Encode(h)); err != nil {
		return mapTransportErr(err)
	}
	return nil
}

// RecvHalf is the receive side of a Stream's streaming engine. Messages are delivered in order; Recv never reorders.
type RecvHalf struct {
	stream spi.Stream
	err    error
}

func newRecvHalf(s spi.Stream) *RecvHalf { return &RecvHalf{stream: s} }

// Recv returns the next message. final reports whether this was the last
// message on this half (END_STREAM observed). Once Recv returns a
// non-nil err, every subsequent call returns the same terminal outcome.
func (r *RecvHalf) Recv(ctx context.Context) (payload []byte, final bool, err error) {
	if r.err != nil {
		return nil, true, r.err
	}
	defer func() {
		if err != nil {
			r.err = err
		}
	}()
	for {
		fr, err := r.stream.ReadFrame(ctx)
		if err != nil {
			return nil, true, mapTransportErr(err)
		}
		switch frame.Type(fr.Type) {
		case frame.TypeData:
			return fr.Payload, fr.EndStream(), nil
		case frame.TypeHeaders:
			h, decErr := headers.Decode(fr.Payload)
			if decErr != nil {
				return nil, true, status.New(status.Internal, "decoding headers: %v", decErr)
			}
			if code, reason, ok := statusFrom(h); ok {
				if code != status.OK {
					se := &status.Error{Code: code, Message: reason}
					for _, kv := range h {
						if kv.Name == headers.StatusCode || kv.Name == headers.StatusReason {
							continue
						}
						if se.Trailers == nil {
							se.Trailers = make(map[string]string)
						}
						se.Trailers[kv.Name] = kv.Value
					}
					return nil, true, se
				}
				if fr.EndStream() {
					return nil, true, nil
				}
				// OK status with more to come (unusual but legal): keep reading.
				continue
			}
			if fr.EndStream() {
				return nil, true, nil
			}
			// Initial headers frame with no status yet: not a message, keep reading.
			continue
		default:
			return nil, true, status.New(status.Internal, "unexpected frame type %v on RPC stream", frame.Type(fr.Type))
		}
	}
}

func statusFrom(h headers.Headers) (code status.Code, reason string, ok bool) {
	v := h.Get(headers.StatusCode)
	if v == "" {
		return 0, "", false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return status.Unknown, "", true
	}
	return status.Code(n), h.Get(headers.StatusReason), true
}

func withStatus(h headers.Headers, code status.Code, message string) headers.Headers {
	out := h.Clone()
	out.Add(headers.StatusCode, strconv.Itoa(int(code)))
	if message != "" {
		out.Add(headers.StatusReason, message)
	}
	return out
}
