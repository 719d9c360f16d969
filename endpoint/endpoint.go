// Package endpoint parses and validates zRPC endpoint strings:
// scheme://host:port[/path], with unix-socket and default-port handling.
// Follows the same shape as a typical parse-validate package: parse,
// validate, return named wrapped errors.
package endpoint

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Scheme enumerates the schemes recognized by the core.
type Scheme string

const (
	SchemeZR   Scheme = "zr"
	SchemeH2   Scheme = "h2"
	SchemeH3   Scheme = "h3"
	SchemeUnix Scheme = "unix"
	SchemeWS   Scheme = "ws"
	SchemeWSS  Scheme = "wss"
)

// defaultPorts. unix has no port.
var defaultPorts = map[Scheme]int{
	SchemeH3:  443,
	SchemeH2:  443,
	SchemeWSS: 443,
	SchemeWS:  80,
}

// maxUnixPathLen is the UDS path cap.
const maxUnixPathLen = 107

// Endpoint is a parsed, validated zRPC endpoint.
type Endpoint struct {
	Scheme Scheme
	Host   string
	Port   int
	Path   string
}

func (e Endpoint) String() string {
	if e.Scheme == SchemeUnix {
		return fmt.Sprintf("unix://%s", e.Path)
	}
	if e.Path != "" {
		return fmt.Sprintf("%s://%s:%d%s", e.Scheme, e.Host, e.Port, e.Path)
	}
	return fmt.Sprintf("%s://%s:%d", e.Scheme, e.Host, e.Port)
}

// NetAddr returns the "host:port" form suitable for net.Dial / net.Listen.
func (e Endpoint) NetAddr() string {
	return fmt.Sprintf("%s:%d", e.Host, e.Port)
}

// Parse validates and decomposes a raw endpoint string.
// An unrecognized scheme, or a malformed unix path, returns a wrapped
// error the caller should surface as spi.InvalidArgument.
func Parse(raw string) (Endpoint, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Endpoint{}, errors.Wrapf(err, "endpoint %q is not a valid URL", raw)
	}
	if u.Scheme == "" {
		return Endpoint{}, errors.Errorf("endpoint %q is missing a scheme", raw)
	}
	scheme := Scheme(strings.ToLower(u.Scheme))

	if scheme == SchemeUnix {
		path := u.Path
		if path == "" {
			// url.Parse puts "unix:///tmp/x.sock" path in u.Path; but
			// "unix:/tmp/x.sock" (no //) puts it in u.Opaque.
			path = u.Opaque
		}
		if path == "" || !strings.HasPrefix(path, "/") {
			return Endpoint{}, errors.Errorf("unix endpoint %q must carry an absolute path", raw)
		}
		if len(path) > maxUnixPathLen {
			return Endpoint{}, errors.Errorf("unix endpoint path %q exceeds %d bytes", path, maxUnixPathLen)
		}
		return Endpoint{Scheme: SchemeUnix, Path: path}, nil
	}

	if scheme != SchemeZR {
		if _, known := defaultPorts[scheme]; !known {
			return Endpoint{}, errors.Errorf("unknown endpoint scheme %q", u.Scheme)
		}
	}

	host := u.Hostname()
	if host == "" {
		return Endpoint{}, errors.Errorf("endpoint %q is missing a host", raw)
	}
	port := defaultPorts[scheme] // zr has no default port; rejected below if absent
	if p := u.Port(); p != "" {
		parsed, err := strconv.Atoi(p)
		if err != nil {
			return Endpoint{}, errors.Wrapf(err, "endpoint %q has an invalid port", raw)
		}
		port = parsed
	} else if scheme == SchemeZR {
		return Endpoint{}, errors.Errorf("zr endpoint %q requires an explicit port", raw)
	}

	return Endpoint{Scheme: scheme, Host: host, Port: port, Path: u.Path}, nil
}

// IsHTTPFamily reports whether scheme is handled by an out-of-core h2/h3
// adapter rather than the native-QUIC or WebSocket
// adapters shipped with this repository.
func (e Endpoint) IsHTTPFamily() bool {
	return e.Scheme == SchemeH2 || e.Scheme == SchemeH3
}
