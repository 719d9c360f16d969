package frame

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	f := Frame{Type: TypeData, Flags: FlagEndStream, Payload: []byte("hello")}
	buf, err := Encode(f, 0)
	require.NoError(t, err)

	decoded, consumed, err := Decode(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, len(buf), consumed)
	assert.Equal(t, f.Type, decoded.Type)
	assert.Equal(t, f.Flags, decoded.Flags)
	assert.Equal(t, f.Payload, decoded.Payload)
	assert.True(t, decoded.EndStream())
	assert.False(t, decoded.EndHeaders())
}

func TestDecodeNeedsMore(t *testing.T) {
	f := Frame{Type: TypeHeaders, Flags: FlagEndHeaders, Payload: []byte("headers-payload")}
	buf, err := Encode(f, 0)
	require.NoError(t, err)

	for i := 0; i < len(buf); i++ {
		_, _, err := Decode(buf[:i], 0)
		assert.ErrorIs(t, err, ErrNeedMore, "prefix of length %d should need more", i)
	}
	_, consumed, err := Decode(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, len(buf), consumed)
}

func TestDecodeNeverPanicsOnArbitraryInput(t *testing.T) {
	inputs := [][]byte{
		nil,
		{},
		{0x00},
		{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF},
		bytes.Repeat([]byte{0xAB}, 3),
		append([]byte{byte(TypeData), 0, 0xFF, 0xFF, 0xFF, 0xFF}, make([]byte, 10)...),
	}
	for _, in := range inputs {
		assert.NotPanics(t, func() {
			_, _, err := Decode(in, 0)
			if err != nil {
				assert.True(t, err == ErrNeedMore || isInvalid(err))
			}
		})
	}
}

func isInvalid(err error) bool {
	return err != nil && (err == ErrInvalidFrame || errorsIsInvalid(err))
}

func errorsIsInvalid(err error) bool {
	type unwrapper interface{ Unwrap() error }
	for err != nil {
		if err == ErrInvalidFrame {
			return true
		}
		u, ok := err.(unwrapper)
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

func TestDecodeRejectsOversizeLength(t *testing.T) {
	buf := make([]byte, HeaderSize)
	buf[0] = byte(TypeData)
	buf[2], buf[3], buf[4], buf[5] = 0xFF, 0xFF, 0xFF, 0xFF
	_, _, err := Decode(buf, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidFrame)
}

func TestEncodeRejectsOversizePayload(t *testing.T) {
	_, err := Encode(Frame{Type: TypeData, Payload: make([]byte, 100)}, 10)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidFrame)
}

func TestReaderReadsFramesSequentially(t *testing.T) {
	var buf bytes.Buffer
	want := []Frame{
		{Type: TypeHeaders, Flags: FlagEndHeaders, Payload: []byte("h")},
		{Type: TypeData, Payload: []byte("d1")},
		{Type: TypeData, Flags: FlagEndStream, Payload: []byte("d2")},
	}
	for _, f := range want {
		require.NoError(t, WriteFrame(&buf, f, 0))
	}

	r := NewReader(&buf, 0)
	for _, expected := range want {
		got, err := r.ReadFrame()
		require.NoError(t, err)
		assert.Equal(t, expected.Type, got.Type)
		assert.Equal(t, expected.Payload, got.Payload)
	}
	_, err := r.ReadFrame()
	assert.Equal(t, io.EOF, err)
}

func TestReaderTruncatedFrameIsUnexpectedEOF(t *testing.T) {
	f := Frame{Type: TypeData, Payload: []byte("truncated-payload")}
	buf, err := Encode(f, 0)
	require.NoError(t, err)

	r := NewReader(bytes.NewReader(buf[:len(buf)-3]), 0)
	_, err = r.ReadFrame()
	assert.Equal(t, io.ErrUnexpectedEOF, err)
}
