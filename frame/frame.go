// Package frame implements the transport-neutral in-stream framing protocol
// shared by every zRPC adapter. A Frame is the atomic unit carried inside an
// SPI Stream: [type:u8][flags:u8][length:u32 BE][payload:length].
package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Type identifies the kind of frame on the wire.
type Type uint8

const (
	TypeData Type = iota + 1
	TypeHeaders
	TypePriority
	TypeRstStream
	TypeSettings
	TypePing
	TypeGoAway
)

func (t Type) String() string {
	switch t {
	case TypeData:
		return "DATA"
	case TypeHeaders:
		return "HEADERS"
	case TypePriority:
		return "PRIORITY"
	case TypeRstStream:
		return "RST_STREAM"
	case TypeSettings:
		return "SETTINGS"
	case TypePing:
		return "PING"
	case TypeGoAway:
		return "GOAWAY"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(t))
	}
}

// Flag bits.
const (
	FlagEndStream  uint8 = 0x01
	FlagEndHeaders uint8 = 0x04
)

const (
	// HeaderSize is the fixed-size prefix of every frame: type, flags, length.
	HeaderSize = 6

	// DefaultMaxPayload is the negotiated-upward default of 16 KiB.
	DefaultMaxPayload = 16 * 1024

	// AbsoluteMaxPayload is the hard ceiling no negotiation may exceed.
	AbsoluteMaxPayload = 16 * 1024 * 1024
)

// ErrInvalidFrame is returned by Decode when the input cannot possibly be a
// well-formed frame: bad type, oversize length, or corrupt header. It never
// panics on arbitrary input.
var ErrInvalidFrame = errors.New("frame: invalid frame")

// ErrNeedMore indicates the reader does not yet hold a complete frame; the
// caller should read more bytes and retry. No bytes were consumed.
var ErrNeedMore = errors.New("frame: need more data")

// Frame is the decoded, transport-neutral unit exchanged inside a Stream.
type Frame struct {
	Type    Type
	Flags   uint8
	Payload []byte
}

// EndStream reports whether the END_STREAM flag is set.
func (f Frame) EndStream() bool { return f.Flags&FlagEndStream != 0 }

// EndHeaders reports whether the END_HEADERS flag is set.
func (f Frame) EndHeaders() bool { return f.Flags&FlagEndHeaders != 0 }

// Encode serializes f per the wire format: a 6-byte header followed by
// payload. maxPayload of 0 means DefaultMaxPayload.
func Encode(f Frame, maxPayload uint32) ([]byte, error) {
	if maxPayload == 0 {
		maxPayload = DefaultMaxPayload
	}
	if len(f.Payload) > int(maxPayload) || len(f.Payload) > AbsoluteMaxPayload {
		return nil, fmt.Errorf("%w: payload %d bytes exceeds max %d", ErrInvalidFrame, len(f.Payload), maxPayload)
	}
	buf := make([]byte, HeaderSize+len(f.Payload))
	buf[0] = byte(f.Type)
	buf[1] = f.Flags
	binary.BigEndian.PutUint32(buf[2:6], uint32(len(f.Payload)))
	copy(buf[HeaderSize:], f.Payload)
	return buf, nil
}

// Decode attempts to parse a single frame from the front of buf.
// It returns the frame, the number of bytes consumed, and an error.
// On ErrNeedMore, consumed is always 0 and buf is untouched by the caller's
// contract — decode is resumable and never discards partial input.
func Decode(buf []byte, maxPayload uint32) (f Frame, consumed int, err error) {
	if maxPayload == 0 {
		maxPayload = DefaultMaxPayload
	}
	if len(buf) < HeaderSize {
		return Frame{}, 0, ErrNeedMore
	}
	typ := Type(buf[0])
	if !validType(typ) {
		return Frame{}, 0, fmt.Errorf("%w: unknown frame type %d", ErrInvalidFrame, buf[0])
	}
	flags := buf[1]
	length := binary.BigEndian.Uint32(buf[2:6])
	if length > AbsoluteMaxPayload || length > maxPayload {
		return Frame{}, 0, fmt.Errorf("%w: oversize length %d", ErrInvalidFrame, length)
	}
	total := HeaderSize + int(length)
	if len(buf) < total {
		return Frame{}, 0, ErrNeedMore
	}
	payload := make([]byte, length)
	copy(payload, buf[HeaderSize:total])
	return Frame{Type: typ, Flags: flags, Payload: payload}, total, nil
}

func validType(t Type) bool {
	return t >= TypeData && t <= TypeGoAway
}
