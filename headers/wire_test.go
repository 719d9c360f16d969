package headers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	h := New(Method, "Echo/Say", DeadlineMS, "5000", "x-trace-id", "abc;def:ghi")
	encoded := Encode(h)

	decoded, err := Decode(encoded)
	require.NoError(t, err)
	require.Len(t, decoded, len(h))
	for i := range h {
		assert.Equal(t, h[i].Name, decoded[i].Name)
		assert.Equal(t, h[i].Value, decoded[i].Value)
	}
}

func TestEncodeDecodeEmptyHeaders(t *testing.T) {
	decoded, err := Decode(Encode(nil))
	require.NoError(t, err)
	assert.Empty(t, decoded)
}

func TestDecodeRejectsMalformedPayload(t *testing.T) {
	_, err := Decode([]byte("not-base64-pairs!!"))
	assert.Error(t, err)
}

func TestWithDeadlineMillisAndParse(t *testing.T) {
	h := WithDeadlineMillis(New(Method, "Svc/Op"), 1500)
	ms, ok := h.DeadlineMillis()
	require.True(t, ok)
	assert.Equal(t, uint64(1500), ms)
}

func TestCloneIsIndependent(t *testing.T) {
	h := New(Method, "Svc/Op")
	clone := h.Clone()
	clone.Add("x-extra", "1")
	assert.Len(t, h, 1)
	assert.Len(t, clone, 2)
}
