package endpoint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseZRRequiresExplicitPort(t *testing.T) {
	_, err := Parse("zr://example.com")
	assert.Error(t, err)

	ep, err := Parse("zr://example.com:9443")
	require.NoError(t, err)
	assert.Equal(t, SchemeZR, ep.Scheme)
	assert.Equal(t, 9443, ep.Port)
	assert.Equal(t, "example.com:9443", ep.NetAddr())
}

func TestParseDefaultPorts(t *testing.T) {
	cases := map[string]int{
		"wss://host": 443,
		"ws://host":  80,
		"h2://host":  443,
		"h3://host":  443,
	}
	for raw, port := range cases {
		ep, err := Parse(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, port, ep.Port, raw)
	}
}

func TestParseUnixEndpoint(t *testing.T) {
	ep, err := Parse("unix:///tmp/zrpc.sock")
	require.NoError(t, err)
	assert.Equal(t, SchemeUnix, ep.Scheme)
	assert.Equal(t, "/tmp/zrpc.sock", ep.Path)
}

func TestParseRejectsUnknownScheme(t *testing.T) {
	_, err := Parse("ftp://host:21")
	assert.Error(t, err)
}

func TestParseRejectsMissingHost(t *testing.T) {
	_, err := Parse("ws:///path-only")
	assert.Error(t, err)
}

func TestIsHTTPFamily(t *testing.T) {
	ep, err := Parse("h3://host:443")
	require.NoError(t, err)
	assert.True(t, ep.IsHTTPFamily())

	ep, err = Parse("zr://host:1")
	require.NoError(t, err)
	assert.False(t, ep.IsHTTPFamily())
}
