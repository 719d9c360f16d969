// Package quicmux implements the native-QUIC adapter: one
// RPC Stream maps to exactly one QUIC bidirectional stream, with ALPN
// `zr/1`. The dial path binds its own UDP socket before calling
// quic.Dial so the adapter controls the local address. Connections expose
// the SPI's general-purpose open/accept-stream contract directly; the
// adapter runs no per-connection supervisor goroutines, and keepalive is
// left to quic-go's own KeepAlivePeriod.
package quicmux

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"

	quicgo "github.com/quic-go/quic-go"
	"github.com/rs/zerolog"

	"github.com/ghostkellz/zrpc/endpoint"
	"github.com/ghostkellz/zrpc/spi"
	"github.com/ghostkellz/zrpc/tlsconfig"
	"github.com/ghostkellz/zrpc/zlog"
)

// ALPN is the protocol negotiated over TLS 1.3 for native zRPC-over-QUIC.
const ALPN = "zr/1"

// Transport implements spi.Transport for the zr scheme.
type Transport struct {
	Log *zerolog.Logger
}

func (t *Transport) log() *zerolog.Logger {
	if t.Log == nil {
		return zlog.Nop()
	}
	return t.Log
}

func (t *Transport) Connect(ctx context.Context, rawEndpoint string, tlsCfg *spi.TlsConfig) (spi.Connection, error) {
	ep, err := endpoint.Parse(rawEndpoint)
	if err != nil {
		return nil, spi.Wrap(spi.InvalidArgument, err)
	}
	if ep.Scheme != endpoint.SchemeZR {
		return nil, spi.Wrap(spi.InvalidArgument, fmt.Errorf("quicmux: unsupported scheme %q", ep.Scheme))
	}

	remoteAddr, err := net.ResolveUDPAddr("udp", ep.NetAddr())
	if err != nil {
		return nil, spi.Wrap(spi.ConnectionFailed, err)
	}
	// Bind an ephemeral local UDP socket ourselves, the way
	// createUDPConnForConnIndex does, rather than letting quic-go pick one
	// implicitly, so a future connIndex-style multi-homed client has a hook.
	udpConn, err := net.ListenUDP("udp", nil)
	if err != nil {
		return nil, spi.Wrap(spi.ConnectionFailed, err)
	}

	tlsConf, err := tlsconfig.Build(tlsCfg)
	if err != nil {
		udpConn.Close()
		return nil, spi.Wrap(spi.InvalidArgument, err)
	}
	tlsConf = withALPN(tlsConf)

	sess, err := quicgo.Dial(ctx, udpConn, remoteAddr, tlsConf, quicConfig())
	if err != nil {
		udpConn.Close()
		return nil, spi.Wrap(spi.ConnectionFailed, err)
	}
	return newConnection(closeWithSocket{sess, udpConn}, t.log()), nil
}

func (t *Transport) Listen(ctx context.Context, rawEndpoint string, tlsCfg *spi.TlsConfig) (spi.Listener, error) {
	ep, err := endpoint.Parse(rawEndpoint)
	if err != nil {
		return nil, spi.Wrap(spi.InvalidArgument, err)
	}
	if ep.Scheme != endpoint.SchemeZR {
		return nil, spi.Wrap(spi.InvalidArgument, fmt.Errorf("quicmux: unsupported scheme %q", ep.Scheme))
	}
	if tlsCfg == nil || !tlsCfg.HasCert {
		return nil, spi.Wrap(spi.InvalidArgument, fmt.Errorf("quicmux: listen requires a server certificate"))
	}

	localAddr, err := net.ResolveUDPAddr("udp", ep.NetAddr())
	if err != nil {
		return nil, spi.Wrap(spi.InvalidArgument, err)
	}
	udpConn, err := net.ListenUDP("udp", localAddr)
	if err != nil {
		return nil, spi.Wrap(spi.ConnectionFailed, err)
	}

	tlsConf, err := tlsconfig.Build(tlsCfg)
	if err != nil {
		udpConn.Close()
		return nil, spi.Wrap(spi.InvalidArgument, err)
	}
	tlsConf = withALPN(tlsConf)

	ln, err := quicgo.Listen(udpConn, tlsConf, quicConfig())
	if err != nil {
		udpConn.Close()
		return nil, spi.Wrap(spi.ConnectionFailed, err)
	}
	return &Listener{ln: ln, udpConn: udpConn, log: t.log()}, nil
}

// withALPN defaults NextProtos to zr/1 when the caller's TlsConfig didn't
// already set one.
func withALPN(cfg *tls.Config) *tls.Config {
	if cfg == nil {
		cfg = &tls.Config{}
	}
	if len(cfg.NextProtos) == 0 {
		cfg.NextProtos = []string{ALPN}
	}
	return cfg
}

func quicConfig() *quicgo.Config {
	return &quicgo.Config{
		EnableDatagrams: true,
		KeepAlivePeriod: keepAlivePeriod,
	}
}

// closeWithSocket closes the owned UDP socket alongside the QUIC session,
// mirroring connection/quic.go's wrapCloseableConnQuicConnection.
type closeWithSocket struct {
	quicgo.Connection
	udpConn *net.UDPConn
}

func (c closeWithSocket) CloseWithError(code quicgo.ApplicationErrorCode, msg string) error {
	err := c.Connection.CloseWithError(code, msg)
	c.udpConn.Close()
	return err
}
