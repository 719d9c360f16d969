package wsmux

import (
	"context"
	"io"
	"sync"

	"github.com/pkg/errors"

	"github.com/ghostkellz/zrpc/frame"
	"github.com/ghostkellz/zrpc/spi"
)

// inboxDepth bounds each stream's receive buffer by frame count rather
// than by bytes, since a WS message already carries one complete frame;
// 64 slots hold up to 1 MiB of full DefaultMaxPayload (16 KiB) frames, or
// 64 KiB when frames average 1 KiB.
const inboxDepth = 64

// Stream is one multiplexed half-duplex RPC over a wsmux Connection,
// identified on the wire by a 2-byte substream ID. Grounded
// on h2mux.MuxedStream's separation of send/receive halves, simplified
// because the underlying WS connection already delivers whole frames.
type Stream struct {
	wireID uint16
	conn   *Connection

	inbox      chan frame.Frame
	closeOnce  sync.Once

	mu        sync.Mutex
	sendDone  bool
	cancelled bool
	abortErr  error
}

func newStream(wireID uint16, c *Connection) *Stream {
	return &Stream{
		wireID: wireID,
		conn:   c,
		inbox:  make(chan frame.Frame, inboxDepth),
	}
}

func (s *Stream) ID() uint32 { return uint32(s.wireID) }

// deliver is called only from the connection's single reader goroutine.
func (s *Stream) deliver(fr frame.Frame) {
	select {
	case s.inbox <- fr:
	case <-s.conn.closed:
		return
	}
	if fr.EndStream() {
		s.closeOnce.Do(func() { close(s.inbox) })
	}
}

// abort unblocks any pending ReadFrame with err, discarding the recv half.
func (s *Stream) abort(err *spi.Error) {
	s.mu.Lock()
	if s.abortErr == nil {
		s.abortErr = err
	}
	s.mu.Unlock()
	s.closeOnce.Do(func() { close(s.inbox) })
}

func (s *Stream) WriteFrame(ctx context.Context, typ spi.FrameType, flags uint8, payload []byte) error {
	s.mu.Lock()
	if s.sendDone {
		s.mu.Unlock()
		return spi.Wrap(spi.Closed, errors.New("write on closed send side"))
	}
	if flags&frame.FlagEndStream != 0 {
		s.sendDone = true
	}
	s.mu.Unlock()

	fr := frame.Frame{Type: frame.Type(typ), Flags: flags, Payload: payload}
	select {
	case <-ctx.Done():
		return spi.Wrap(spi.Cancelled, ctx.Err())
	default:
	}
	return s.conn.writeFrame(s.wireID, fr)
}

func (s *Stream) ReadFrame(ctx context.Context) (spi.Frame, error) {
	select {
	case fr, ok := <-s.inbox:
		if !ok {
			s.mu.Lock()
			err := s.abortErr
			s.mu.Unlock()
			if err != nil {
				return spi.Frame{}, err
			}
			return spi.Frame{}, spi.Wrap(spi.Closed, io.EOF)
		}
		return spi.Frame{Type: spi.FrameType(fr.Type), Flags: fr.Flags, Payload: fr.Payload}, nil
	case <-ctx.Done():
		return spi.Frame{}, spi.Wrap(spi.Cancelled, ctx.Err())
	}
}

// Cancel sends an RPC-level RST_STREAM control frame rather than tearing
// down the whole WS connection, so sibling substreams are unaffected.
func (s *Stream) Cancel(reason spi.Kind) {
	s.mu.Lock()
	if s.cancelled {
		s.mu.Unlock()
		return
	}
	s.cancelled = true
	s.sendDone = true
	s.mu.Unlock()

	_ = s.conn.writeFrame(s.wireID, frame.Frame{
		Type:    frame.TypeRstStream,
		Payload: []byte{byte(reason)},
	})
	s.abort(spi.New(reason, errors.New("stream cancelled locally")))
	s.conn.dropStream(s.wireID)
}

// Close sets END_STREAM on the send side only; the recv side keeps
// delivering until the peer does the same.
func (s *Stream) Close() error {
	s.mu.Lock()
	if s.sendDone {
		s.mu.Unlock()
		return nil
	}
	s.sendDone = true
	s.mu.Unlock()
	return s.conn.writeFrame(s.wireID, frame.Frame{Type: frame.TypeData, Flags: frame.FlagEndStream})
}
