package websocket

import (
	"context"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/tzrikka/ws/internal/logger"
)

var defaultClient = adjustHTTPClient(*http.DefaultClient)

// Dial performs the client side of the [opening handshake] to establish
// a connection to the given URL ("ws://..." or "wss://"), and starts the
// connection's reader and writer tasks once it succeeds.
//
// The handshake is bounded by [DefaultHandshakeTimeout], or whatever
// duration [WithHandshakeTimeout] configured, in addition to ctx's own
// deadline, if any.
//
// [opening handshake]: https://datatracker.ietf.org/doc/html/rfc6455#section-4.1
func Dial(ctx context.Context, wsURL string, opts ...Option) (*Conn, error) {
	cfg := newConfig(opts)

	ctx, cancel := context.WithTimeout(ctx, cfg.handshakeTimeout)
	defer cancel()

	c := newConn(roleClient, logger.FromContext(ctx), cfg)

	client := cfg.httpClient
	if client == nil {
		client = defaultClient
	} else {
		client = adjustHTTPClient(*client)
	}
	if cfg.caFile != "" {
		tlsCfg, err := tlsConfigWithCA(cfg.caFile)
		if err != nil {
			return nil, &HandshakeError{Reason: err.Error()}
		}
		client = withTLSConfig(client, tlsCfg)
	}

	nonceSrc := io.Reader(rand.Reader)
	if cfg.nonceGen != nil {
		nonceSrc = cfg.nonceGen
	}
	nonce, err := generateNonce(nonceSrc)
	if err != nil {
		return nil, &HandshakeError{Reason: "generating handshake nonce: " + err.Error()}
	}

	req, err := handshakeRequest(ctx, wsURL, nonce, cfg)
	if err != nil {
		return nil, err
	}

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ErrHandshakeTimeout
		}
		return nil, &HandshakeError{Reason: "sending handshake request: " + err.Error()}
	}

	negotiated, err := checkHandshakeResponse(resp, nonce, cfg)
	if err != nil {
		_ = resp.Body.Close()
		return nil, err
	}

	rwc, ok := resp.Body.(io.ReadWriteCloser)
	if !ok {
		return nil, &HandshakeError{Reason: fmt.Sprintf("handshake response body type: got %T, want io.ReadWriteCloser", resp.Body)}
	}

	if negotiated != nil {
		c.deflate = newDeflateContext(roleClient, *negotiated)
	}
	c.start(rwc)

	return c, nil
}

// adjustHTTPClient returns a modified shallow copy of the given [http.Client].
func adjustHTTPClient(c http.Client) *http.Client {
	// Wrap the HTTP client's CheckRedirect function, to convert
	// ws/wss URL schemes to http/https, respectively.
	origCheckRedirect := c.CheckRedirect
	c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		switch req.URL.Scheme {
		case "ws":
			req.URL.Scheme = "http"
		case "wss":
			req.URL.Scheme = "https"
		}

		if origCheckRedirect != nil {
			return origCheckRedirect(req, via)
		}
		return nil
	}

	return &c
}

// withTLSConfig returns a shallow copy of c with its transport's TLS
// configuration replaced, for [WithCAFile].
func withTLSConfig(c *http.Client, tlsCfg *tls.Config) *http.Client {
	cc := *c

	t, ok := cc.Transport.(*http.Transport)
	if !ok || t == nil {
		t = http.DefaultTransport.(*http.Transport).Clone() //nolint:errcheck
	} else {
		t = t.Clone()
	}
	t.TLSClientConfig = tlsCfg
	cc.Transport = t

	return &cc
}

// tlsConfigWithCA builds a [tls.Config] that trusts only the certificate
// authorities in the PEM file at path, for [WithCAFile].
func tlsConfigWithCA(path string) (*tls.Config, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading CA file: %w", err)
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no valid certificates found in %q", path)
	}

	return &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
}

// generateNonce generates a nonce consisting of a randomly
// selected 16-byte value that has been Base64-encoded. The
// nonce MUST be selected randomly for each connection.
func generateNonce(r io.Reader) (string, error) {
	b := make([]byte, 16)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// handshakeRequest implements the client request details
// in https://datatracker.ietf.org/doc/html/rfc6455#section-4.1.
func handshakeRequest(ctx context.Context, wsURL, nonce string, cfg *config) (*http.Request, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, &HandshakeError{Reason: "parsing URL: " + err.Error()}
	}

	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	case "http", "https":
		// Do nothing.
	default:
		return nil, &HandshakeError{Reason: fmt.Sprintf("unexpected URL scheme: %q", u.Scheme)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, &HandshakeError{Reason: "creating handshake request: " + err.Error()}
	}

	req.Header = cfg.headers.Clone()
	req.Header.Set("Upgrade", "websocket")
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Sec-WebSocket-Key", nonce)
	req.Header.Set("Sec-WebSocket-Version", "13")
	if cfg.deflateEnabled {
		req.Header.Set("Sec-WebSocket-Extensions", offerExtensionHeader(cfg))
	}

	return req, nil
}

// checkHandshakeResponse checks the server response details in
// https://datatracker.ietf.org/doc/html/rfc6455#section-4.2.2, and
// parses any negotiated permessage-deflate parameters.
func checkHandshakeResponse(resp *http.Response, nonce string, cfg *config) (*deflateParams, error) {
	if resp.StatusCode != http.StatusSwitchingProtocols {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024)) //nolint:errcheck
		reason := fmt.Sprintf("response status: got %d, want %d", resp.StatusCode, http.StatusSwitchingProtocols)
		if len(body) > 0 {
			reason = fmt.Sprintf("%s (%s)", reason, string(body))
		}
		return nil, &HandshakeError{Reason: reason}
	}

	if err := checkHTTPHeader(resp.Header, "Upgrade", "websocket"); err != nil {
		return nil, err
	}
	if err := checkHTTPHeader(resp.Header, "Connection", "Upgrade"); err != nil {
		return nil, err
	}

	want := expectedServerAcceptValue(nonce)
	if err := checkHTTPHeader(resp.Header, "Sec-WebSocket-Accept", want); err != nil {
		return nil, err
	}

	if !cfg.deflateEnabled {
		return nil, nil //nolint:nilnil
	}

	for _, offer := range parseExtensions(resp.Header) {
		if offer.name != permessageDeflateToken {
			continue
		}
		p, err := parseClientSideResponse(offer, cfg)
		if err != nil {
			return nil, err
		}
		return &p, nil
	}

	return nil, nil //nolint:nilnil
}

func checkHTTPHeader(headers http.Header, key, want string) error {
	if got := headers.Get(key); !strings.EqualFold(got, want) {
		return &HandshakeError{Reason: fmt.Sprintf("response header %q: got %q, want %q", key, got, want)}
	}
	return nil
}
