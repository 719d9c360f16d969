package headers

import (
	"bytes"
	"encoding/base64"

	"github.com/pkg/errors"
)

// wireEncoding matches h2mux/header.go's SerializeHeaders/DeserializeHeaders
// scheme: each header name and value is base64-encoded independently (so
// neither can contain the ':' or ';' delimiters), joined "name:value", and
// pairs joined with ";". A HEADERS frame's payload is this
// byte string; unlike h2mux's HTTP/1 net.Header target, Headers here is an
// ordered slice, so insertion order survives the round trip.
var wireEncoding = base64.RawStdEncoding

// Encode serializes h into a HEADERS frame payload.
func Encode(h Headers) []byte {
	pairs := make([][]byte, 0, len(h))
	for _, kv := range h {
		name := make([]byte, wireEncoding.EncodedLen(len(kv.Name)))
		wireEncoding.Encode(name, []byte(kv.Name))
		value := make([]byte, wireEncoding.EncodedLen(len(kv.Value)))
		wireEncoding.Encode(value, []byte(kv.Value))
		pairs = append(pairs, bytes.Join([][]byte{name, value}, []byte(":")))
	}
	return bytes.Join(pairs, []byte(";"))
}

// Decode parses a HEADERS frame payload produced by Encode.
func Decode(payload []byte) (Headers, error) {
	if len(payload) == 0 {
		return nil, nil
	}
	var out Headers
	for _, pair := range bytes.Split(payload, []byte(";")) {
		if len(pair) == 0 {
			continue
		}
		parts := bytes.SplitN(pair, []byte(":"), 2)
		if len(parts) != 2 {
			return nil, errors.New("headers: malformed wire pair")
		}
		name := make([]byte, wireEncoding.DecodedLen(len(parts[0])))
		n, err := wireEncoding.Decode(name, parts[0])
		if err != nil {
			return nil, errors.Wrap(err, "headers: decoding name")
		}
		value := make([]byte, wireEncoding.DecodedLen(len(parts[1])))
		v, err := wireEncoding.Decode(value, parts[1])
		if err != nil {
			return nil, errors.Wrap(err, "headers: decoding value")
		}
		out.Add(string(name[:n]), string(value[:v]))
	}
	return out, nil
}
