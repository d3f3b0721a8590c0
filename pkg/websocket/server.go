package websocket

import (
	"bufio"
	"encoding/base64"
	"errors"
	"net"
	"net/http"
	"strings"

	"golang.org/x/net/http/httpguts"

	"github.com/tzrikka/ws/internal/logger"
)

// Upgrader upgrades incoming HTTP requests to WebSocket connections, per
// https://datatracker.ietf.org/doc/html/rfc6455#section-4.2.2. A single
// Upgrader may be reused concurrently across many requests; it carries
// no per-connection state of its own.
type Upgrader struct {
	opts []Option

	// CheckOrigin, when set, decides whether to accept the handshake
	// based on the request's Origin header. The default policy accepts
	// same-origin requests and requests with no Origin header at all
	// (non-browser clients).
	CheckOrigin func(r *http.Request) bool
}

// NewUpgrader creates an [Upgrader] that applies opts to every connection
// it establishes. Options not applicable to the server role (such as
// [WithHTTPClient]) are silently ignored.
func NewUpgrader(opts ...Option) *Upgrader {
	return &Upgrader{opts: opts}
}

// Upgrade performs the server side of the opening handshake: it
// validates the request, hijacks the underlying [net.Conn] out of the
// ResponseWriter, and writes the "101 Switching Protocols" response.
//
// It is based on https://datatracker.ietf.org/doc/html/rfc6455#section-4.2.2.
func (u *Upgrader) Upgrade(w http.ResponseWriter, r *http.Request) (*Conn, error) {
	cfg := newConfig(u.opts)
	log := logger.FromContext(r.Context())

	if err := checkUpgradeRequest(r); err != nil {
		status := http.StatusBadRequest
		var he *HandshakeError
		if errors.As(err, &he) && he.VersionMismatch {
			status = http.StatusUpgradeRequired
		}
		http.Error(w, err.Error(), status)
		return nil, err
	}

	checkOrigin := u.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = checkSameOrigin
	}
	if !checkOrigin(r) {
		err := &HandshakeError{Reason: "origin not allowed"}
		http.Error(w, err.Error(), http.StatusForbidden)
		return nil, err
	}

	key := r.Header.Get("Sec-WebSocket-Key")

	var negotiated *deflateParams
	if cfg.deflateEnabled {
		for _, offer := range parseExtensions(r.Header) {
			if offer.name != permessageDeflateToken {
				continue
			}
			if p, ok := negotiateServerSide(offer, cfg); ok {
				negotiated = &p
			}
			break
		}
	}

	hijacker, ok := w.(http.Hijacker)
	if !ok {
		err := &HandshakeError{Reason: "response writer does not support hijacking"}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return nil, err
	}

	netConn, brw, err := hijacker.Hijack()
	if err != nil {
		err := &HandshakeError{Reason: "hijacking connection: " + err.Error()}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return nil, err
	}

	if err := writeUpgradeResponse(brw.Writer, key, negotiated); err != nil {
		_ = netConn.Close()
		return nil, &HandshakeError{Reason: "writing handshake response: " + err.Error()}
	}

	c := newConn(roleServer, log, cfg)
	if negotiated != nil {
		c.deflate = newDeflateContext(roleServer, *negotiated)
	}

	c.start(&hijackedConn{conn: netConn, br: brw.Reader})

	return c, nil
}

// checkUpgradeRequest validates the request-line fields of the opening
// handshake defined in https://datatracker.ietf.org/doc/html/rfc6455#section-4.2.1.
func checkUpgradeRequest(r *http.Request) error {
	if r.Method != http.MethodGet {
		return &HandshakeError{Reason: "expected GET method"}
	}
	if !r.ProtoAtLeast(1, 1) {
		return &HandshakeError{Reason: "expected HTTP/1.1 or later"}
	}
	if r.Host == "" {
		return &HandshakeError{Reason: "missing Host header"}
	}
	if !httpguts.HeaderValuesContainsToken(r.Header["Connection"], "Upgrade") {
		return &HandshakeError{Reason: "missing Connection: Upgrade header"}
	}
	if !httpguts.HeaderValuesContainsToken(r.Header["Upgrade"], "websocket") {
		return &HandshakeError{Reason: "missing Upgrade: websocket header"}
	}
	if r.Header.Get("Sec-WebSocket-Version") != "13" {
		return &HandshakeError{Reason: "unsupported Sec-WebSocket-Version, only 13 is supported", VersionMismatch: true}
	}
	if err := checkWebSocketKey(r.Header.Get("Sec-WebSocket-Key")); err != nil {
		return err
	}
	return nil
}

// checkWebSocketKey validates that the request's Sec-WebSocket-Key header
// decodes to exactly 16 raw bytes, per
// https://datatracker.ietf.org/doc/html/rfc6455#section-4.2.1.
func checkWebSocketKey(key string) error {
	if key == "" {
		return &HandshakeError{Reason: "missing Sec-WebSocket-Key header"}
	}
	raw, err := base64.StdEncoding.DecodeString(key)
	if err != nil {
		return &HandshakeError{Reason: "Sec-WebSocket-Key is not valid base64"}
	}
	if len(raw) != 16 {
		return &HandshakeError{Reason: "Sec-WebSocket-Key must decode to 16 bytes"}
	}
	return nil
}

func checkSameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return strings.EqualFold(origin, "http://"+r.Host) || strings.EqualFold(origin, "https://"+r.Host)
}

// writeUpgradeResponse writes the "101 Switching Protocols" response
// defined in https://datatracker.ietf.org/doc/html/rfc6455#section-4.2.2.
func writeUpgradeResponse(buf *bufio.Writer, key string, p *deflateParams) error {
	buf.WriteString("HTTP/1.1 101 Switching Protocols\r\n") //nolint:errcheck
	buf.WriteString("Upgrade: websocket\r\n")               //nolint:errcheck
	buf.WriteString("Connection: Upgrade\r\n")              //nolint:errcheck
	buf.WriteString("Sec-WebSocket-Accept: ")                //nolint:errcheck
	buf.WriteString(expectedServerAcceptValue(key))          //nolint:errcheck
	buf.WriteString("\r\n")                                  //nolint:errcheck

	if p != nil {
		buf.WriteString("Sec-WebSocket-Extensions: ") //nolint:errcheck
		buf.WriteString(responseExtensionHeader(*p))  //nolint:errcheck
		buf.WriteString("\r\n")                       //nolint:errcheck
	}

	buf.WriteString("\r\n") //nolint:errcheck
	return buf.Flush()
}

// hijackedConn adapts a hijacked [net.Conn] plus its possibly non-empty
// buffered reader (data the HTTP server already read off the wire before
// handing the connection over) into a single [io.ReadWriteCloser].
type hijackedConn struct {
	conn net.Conn
	br   *bufio.Reader
}

func (h *hijackedConn) Read(p []byte) (int, error)  { return h.br.Read(p) }
func (h *hijackedConn) Write(p []byte) (int, error) { return h.conn.Write(p) }
func (h *hijackedConn) Close() error                { return h.conn.Close() }
