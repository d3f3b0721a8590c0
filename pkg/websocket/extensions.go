package websocket

import (
	"net/http"
	"strconv"
	"strings"
)

// permessageDeflateToken is the extension name registered at
// https://www.iana.org/assignments/websocket/websocket.xhtml#extension-name.
const permessageDeflateToken = "permessage-deflate"

// extensionOffer is one `;`-separated entry of a Sec-WebSocket-Extensions
// header, as defined in https://datatracker.ietf.org/doc/html/rfc6455#section-9.1.
type extensionOffer struct {
	name   string
	params map[string]string
}

// parseExtensions parses every Sec-WebSocket-Extensions header value
// (there may be more than one, and/or a single comma-separated value)
// into individual extension offers, preserving declaration order.
func parseExtensions(h http.Header) []extensionOffer {
	var offers []extensionOffer

	for _, line := range h.Values("Sec-WebSocket-Extensions") {
		for _, part := range strings.Split(line, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}

			fields := strings.Split(part, ";")
			o := extensionOffer{
				name:   strings.TrimSpace(fields[0]),
				params: map[string]string{},
			}
			for _, f := range fields[1:] {
				f = strings.TrimSpace(f)
				if f == "" {
					continue
				}
				if i := strings.IndexByte(f, '='); i >= 0 {
					k := strings.TrimSpace(f[:i])
					v := strings.Trim(strings.TrimSpace(f[i+1:]), `"`)
					o.params[k] = v
				} else {
					o.params[f] = ""
				}
			}
			offers = append(offers, o)
		}
	}

	return offers
}

// deflateParams holds the negotiated parameters of a permessage-deflate
// extension instance, from either role's point of view.
type deflateParams struct {
	clientNoContextTakeover bool
	serverNoContextTakeover bool
	clientMaxWindowBits     int
	serverMaxWindowBits     int
}

// negotiateServerSide computes the server's response parameters to a
// client's permessage-deflate offer, per
// https://datatracker.ietf.org/doc/html/rfc7692#section-7.1.
//
// Unknown parameters cause the whole extension to be declined rather than
// failing the handshake (ok=false), per the Handshake Engine's rule that
// extension negotiation failures are non-fatal.
func negotiateServerSide(offer extensionOffer, cfg *config) (deflateParams, bool) {
	p := deflateParams{
		clientMaxWindowBits: defaultWindowBits,
		serverMaxWindowBits: defaultWindowBits,
	}

	for name, value := range offer.params {
		switch name {
		case "client_no_context_takeover":
			p.clientNoContextTakeover = true
		case "server_no_context_takeover":
			p.serverNoContextTakeover = true
		case "client_max_window_bits":
			bits, ok := parseWindowBits(value, true)
			if !ok {
				return deflateParams{}, false
			}
			p.clientMaxWindowBits = bits
		case "server_max_window_bits":
			bits, ok := parseWindowBits(value, false)
			if !ok {
				return deflateParams{}, false
			}
			p.serverMaxWindowBits = bits
		default:
			return deflateParams{}, false
		}
	}

	if cfg.clientNoContextTakeover {
		p.clientNoContextTakeover = true
	}
	if cfg.serverNoContextTakeover {
		p.serverNoContextTakeover = true
	}

	// "respond with a value <= the client's offered value and <= the
	// server's configured value; absent means 15".
	if cfg.clientMaxWindowBits != 0 && cfg.clientMaxWindowBits < p.clientMaxWindowBits {
		p.clientMaxWindowBits = cfg.clientMaxWindowBits
	}
	if cfg.serverMaxWindowBits != 0 && cfg.serverMaxWindowBits < p.serverMaxWindowBits {
		p.serverMaxWindowBits = cfg.serverMaxWindowBits
	}

	return p, true
}

// parseWindowBits parses a `client_max_window_bits`/`server_max_window_bits`
// value. The client-side parameter MAY appear with no value (meaning "any
// value is acceptable"), while the server-side parameter always carries one.
func parseWindowBits(value string, allowEmpty bool) (int, bool) {
	if value == "" {
		if allowEmpty {
			return defaultWindowBits, true
		}
		return 0, false
	}

	n, err := strconv.Atoi(value)
	if err != nil || n < 8 || n > 15 {
		return 0, false
	}
	return n, true
}

// responseExtensionHeader formats the server's Sec-WebSocket-Extensions
// response header value for a negotiated permessage-deflate instance.
func responseExtensionHeader(p deflateParams) string {
	parts := []string{permessageDeflateToken}

	if p.serverNoContextTakeover {
		parts = append(parts, "server_no_context_takeover")
	}
	if p.clientNoContextTakeover {
		parts = append(parts, "client_no_context_takeover")
	}
	if p.serverMaxWindowBits != defaultWindowBits {
		parts = append(parts, "server_max_window_bits="+strconv.Itoa(p.serverMaxWindowBits))
	}
	if p.clientMaxWindowBits != defaultWindowBits {
		parts = append(parts, "client_max_window_bits="+strconv.Itoa(p.clientMaxWindowBits))
	}

	return strings.Join(parts, "; ")
}

// offerExtensionHeader formats the client's Sec-WebSocket-Extensions
// request header value, based on its configured preferences.
func offerExtensionHeader(cfg *config) string {
	parts := []string{permessageDeflateToken}

	if cfg.clientNoContextTakeover {
		parts = append(parts, "client_no_context_takeover")
	}
	if cfg.serverNoContextTakeover {
		parts = append(parts, "server_no_context_takeover")
	}
	if cfg.clientMaxWindowBits != 0 && cfg.clientMaxWindowBits != defaultWindowBits {
		parts = append(parts, "client_max_window_bits="+strconv.Itoa(cfg.clientMaxWindowBits))
	}
	if cfg.serverMaxWindowBits != 0 && cfg.serverMaxWindowBits != defaultWindowBits {
		parts = append(parts, "server_max_window_bits="+strconv.Itoa(cfg.serverMaxWindowBits))
	}

	return strings.Join(parts, "; ")
}

// parseClientSideResponse validates the server's chosen permessage-deflate
// parameters against what the client offered, per
// https://datatracker.ietf.org/doc/html/rfc7692#section-7.1: neither
// window size may be larger than what the client offered (15 when it
// offered none), and an unknown parameter fails the handshake. Either
// no_context_takeover parameter is accepted whether or not the client
// offered it.
func parseClientSideResponse(offer extensionOffer, cfg *config) (deflateParams, error) {
	p := deflateParams{
		clientMaxWindowBits: defaultWindowBits,
		serverMaxWindowBits: defaultWindowBits,
	}

	for name, value := range offer.params {
		switch name {
		case "client_no_context_takeover":
			p.clientNoContextTakeover = true
		case "server_no_context_takeover":
			p.serverNoContextTakeover = true
		case "client_max_window_bits":
			bits, ok := parseWindowBits(value, false)
			if !ok {
				return deflateParams{}, &HandshakeError{Reason: "invalid client_max_window_bits in server response"}
			}
			p.clientMaxWindowBits = bits
		case "server_max_window_bits":
			bits, ok := parseWindowBits(value, false)
			if !ok {
				return deflateParams{}, &HandshakeError{Reason: "invalid server_max_window_bits in server response"}
			}
			p.serverMaxWindowBits = bits
		default:
			return deflateParams{}, &HandshakeError{Reason: "unsupported extension parameter: " + name}
		}
	}

	maxClientBits := cfg.clientMaxWindowBits
	if maxClientBits == 0 {
		maxClientBits = defaultWindowBits
	}
	if p.clientMaxWindowBits > maxClientBits {
		return deflateParams{}, &HandshakeError{Reason: "server requested a client window larger than offered"}
	}
	maxServerBits := cfg.serverMaxWindowBits
	if maxServerBits == 0 {
		maxServerBits = defaultWindowBits
	}
	if p.serverMaxWindowBits > maxServerBits {
		return deflateParams{}, &HandshakeError{Reason: "server chose a server window larger than offered"}
	}

	return p, nil
}
