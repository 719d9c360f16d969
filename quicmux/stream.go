package quicmux

import (
	"context"
	"errors"
	"io"
	"sync"

	quicgo "github.com/quic-go/quic-go"

	"github.com/ghostkellz/zrpc/frame"
	"github.com/ghostkellz/zrpc/rpcmetrics"
	"github.com/ghostkellz/zrpc/spi"
)

// Stream adapts one QUIC bidirectional stream to spi.Stream: one RPC
// Stream per QUIC stream, no further multiplexing, unlike
// the WebSocket adapter's substream header.
type Stream struct {
	qs quicgo.Stream
	fr *frame.Reader

	writeMu  sync.Mutex
	mu       sync.Mutex
	sendDone bool
	closed   bool

	doneOnce sync.Once
}

// newStream wraps qs and watches its Context, which quic-go closes once the
// stream is fully closed in both directions, to decrement ActiveStreams
// exactly once regardless of whether the stream ends via Cancel or a
// graceful two-sided close.
func newStream(qs quicgo.Stream) *Stream {
	s := &Stream{qs: qs, fr: frame.NewReader(qs, 0)}
	go func() {
		<-qs.Context().Done()
		s.markDone()
	}()
	return s
}

func (s *Stream) markDone() {
	s.doneOnce.Do(rpcmetrics.ActiveStreams.Dec)
}

func (s *Stream) ID() uint32 { return uint32(s.qs.StreamID()) }

// WriteFrame suspends cooperatively when the QUIC stream's flow-control
// window is exhausted: the underlying (*quic.Stream).Write blocks exactly
// at that point, so no additional buffering is layered on top.
func (s *Stream) WriteFrame(ctx context.Context, typ spi.FrameType, flags uint8, payload []byte) error {
	s.mu.Lock()
	if s.sendDone {
		s.mu.Unlock()
		return spi.Wrap(spi.Closed, errors.New("write on closed send side"))
	}
	endStream := flags&frame.FlagEndStream != 0
	if endStream {
		s.sendDone = true
	}
	s.mu.Unlock()

	encoded, err := frame.Encode(frame.Frame{Type: frame.Type(typ), Flags: flags, Payload: payload}, 0)
	if err != nil {
		return spi.Wrap(spi.InvalidFrame, err)
	}

	s.writeMu.Lock()
	_, werr := s.qs.Write(encoded)
	s.writeMu.Unlock()
	if werr != nil {
		return mapStreamError(werr)
	}
	if endStream {
		// END_STREAM on the send side translates to QUIC FIN.
		if err := s.qs.Close(); err != nil {
			return mapStreamError(err)
		}
	}
	if ctx.Err() != nil {
		return spi.Wrap(spi.Cancelled, ctx.Err())
	}
	return nil
}

// ReadFrame suspends when no more bytes are buffered and FIN has not yet
// been observed: frame.Reader.ReadFrame
// blocks inside (*quic.Stream).Read for exactly that reason.
func (s *Stream) ReadFrame(ctx context.Context) (spi.Frame, error) {
	type result struct {
		fr  frame.Frame
		err error
	}
	done := make(chan result, 1)
	go func() {
		fr, err := s.fr.ReadFrame()
		done <- result{fr, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			if r.err == io.EOF || r.err == io.ErrUnexpectedEOF {
				return spi.Frame{}, spi.Wrap(spi.Closed, r.err)
			}
			return spi.Frame{}, mapStreamError(r.err)
		}
		rpcmetrics.FramesRead.WithLabelValues("quic", r.fr.Type.String()).Inc()
		return spi.Frame{Type: spi.FrameType(r.fr.Type), Flags: r.fr.Flags, Payload: r.fr.Payload}, nil
	case <-ctx.Done():
		return spi.Frame{}, spi.Wrap(spi.Cancelled, ctx.Err())
	}
}

// Cancel maps to QUIC STOP_SENDING + RESET_STREAM with reason as the
// application error code. Idempotent.
func (s *Stream) Cancel(reason spi.Kind) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.sendDone = true
	s.mu.Unlock()

	code := quicgo.StreamErrorCode(reason)
	s.qs.CancelRead(code)
	s.qs.CancelWrite(code)
	s.markDone()
}

// Close gracefully closes the send side only.
func (s *Stream) Close() error {
	s.mu.Lock()
	if s.sendDone {
		s.mu.Unlock()
		return nil
	}
	s.sendDone = true
	s.mu.Unlock()
	if err := s.qs.Close(); err != nil {
		return mapStreamError(err)
	}
	return nil
}

func mapStreamError(err error) *spi.Error {
	var se *quicgo.StreamError
	if errors.As(err, &se) {
		if int(se.ErrorCode) < int(spi.Cancelled)+1 {
			return spi.Wrap(spi.Kind(se.ErrorCode), err)
		}
		return spi.Wrap(spi.Cancelled, err)
	}
	return spi.Wrap(spi.Network, err)
}
