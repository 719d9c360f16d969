package wsmux

import (
	"context"
	"crypto/sha1"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	gobwas "github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/gorilla/websocket"
)

// wsMagicGUID is the RFC 6455 §1.3 handshake constant.
const wsMagicGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// msgConn is the minimal message-oriented surface wsmux needs from an
// established WebSocket connection. Two distinct implementations back it:
// a client side built on gorilla/websocket's own framing, and a server
// side built directly on github.com/gobwas/ws + wsutil over the raw
// hijacked net.Conn. Because each call reads or writes exactly one WS message, the
// connection mux can treat every message as one already-delimited frame
// payload with no additional length-prefixing of its own.
type msgConn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(p []byte) error
	WritePing() error
	Close() error
}

// gorillaMsgConn is the client-side msgConn, dialed with gorilla/websocket
// (grounded on websocket/websocket.go ClientConnect).
type gorillaMsgConn struct {
	conn *websocket.Conn
}

func dialGorilla(ctx context.Context, rawURL string, tlsCfg *tls.Config) (*gorillaMsgConn, error) {
	d := &websocket.Dialer{
		TLSClientConfig:  tlsCfg,
		HandshakeTimeout: 10 * time.Second,
	}
	conn, _, err := d.DialContext(ctx, rawURL, nil)
	if err != nil {
		return nil, err
	}
	return &gorillaMsgConn{conn: conn}, nil
}

func (c *gorillaMsgConn) ReadMessage() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	return data, err
}

func (c *gorillaMsgConn) WriteMessage(p []byte) error {
	return c.conn.WriteMessage(websocket.BinaryMessage, p)
}

func (c *gorillaMsgConn) WritePing() error {
	return c.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(writeWait))
}

func (c *gorillaMsgConn) Close() error { return c.conn.Close() }

// serverMsgConn is the accept-side msgConn: a raw hijacked net.Conn driven
// with github.com/gobwas/ws/wsutil, matching websocket/connection.go's Conn
// (wsutil.ReadClientBinary enforces the client-must-mask rule for free;
// WriteServerBinary writes unmasked server frames).
type serverMsgConn struct {
	rw net.Conn
}

func (c *serverMsgConn) ReadMessage() ([]byte, error) {
	return wsutil.ReadClientBinary(c.rw)
}

func (c *serverMsgConn) WriteMessage(p []byte) error {
	return wsutil.WriteServerBinary(c.rw, p)
}

func (c *serverMsgConn) WritePing() error {
	return wsutil.WriteServerMessage(c.rw, gobwas.OpPing, []byte{})
}

func (c *serverMsgConn) Close() error { return c.rw.Close() }

// acceptHandshake performs the server side of the RFC 6455 handshake over a
// hijacked HTTP connection, then hands the raw net.Conn to a serverMsgConn.
// The handshake is done by hand (rather than through gorilla's Upgrader)
// because the server-side Conn needs the raw net.Conn underneath wsutil
// instead of gorilla's wrapped Conn.
func acceptHandshake(w http.ResponseWriter, r *http.Request) (*serverMsgConn, error) {
	if !websocketUpgradeRequest(r) {
		return nil, errors.New("wsmux: not a websocket upgrade request")
	}
	key := r.Header.Get("Sec-WebSocket-Key")
	if key == "" {
		return nil, errors.New("wsmux: missing Sec-WebSocket-Key")
	}

	hj, ok := w.(http.Hijacker)
	if !ok {
		return nil, errors.New("wsmux: ResponseWriter does not support hijacking")
	}
	conn, brw, err := hj.Hijack()
	if err != nil {
		return nil, fmt.Errorf("wsmux: hijack: %w", err)
	}
	if brw.Reader.Buffered() > 0 {
		conn.Close()
		return nil, errors.New("wsmux: unexpected buffered bytes before handshake response")
	}

	accept := acceptKey(key)
	resp := "HTTP/1.1 101 Switching Protocols\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Accept: " + accept + "\r\n" +
		"Sec-WebSocket-Protocol: " + subProtocol + "\r\n\r\n"
	if _, err := brw.WriteString(resp); err != nil {
		conn.Close()
		return nil, fmt.Errorf("wsmux: writing handshake response: %w", err)
	}
	if err := brw.Flush(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("wsmux: flushing handshake response: %w", err)
	}
	return &serverMsgConn{rw: conn}, nil
}

func websocketUpgradeRequest(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket") &&
		strings.Contains(strings.ToLower(r.Header.Get("Connection")), "upgrade")
}

// acceptKey computes Sec-WebSocket-Accept per RFC 6455 §1.3.
func acceptKey(clientKey string) string {
	h := sha1.New()
	h.Write([]byte(clientKey))
	h.Write([]byte(wsMagicGUID))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

func wsURL(tlsEnabled bool, hostport, path string) string {
	scheme := "ws"
	if tlsEnabled {
		scheme = "wss"
	}
	u := url.URL{Scheme: scheme, Host: hostport, Path: path}
	return u.String()
}

// writeWait bounds how long a ping control write may block.
const writeWait = 10 * time.Second

// subProtocol is advertised so intermediaries and peers can identify the
// multiplexed framing in use.
const subProtocol = "zrpc.ws.v1"
