package websocket

import (
	"net/http"
	"time"
)

// Default values for the configuration surface, as suggested in the
// "Ambiguity" design notes: unbounded frame/message sizes would let a
// misbehaving peer exhaust memory, so both default to a safe upper
// bound rather than to "unlimited".
const (
	DefaultMaxFrameSize   = 64 << 20 // 64 MiB.
	DefaultMaxMessageSize = 64 << 20 // 64 MiB.

	// DefaultCompressionThreshold is the smallest message size, in bytes,
	// that gets compressed when permessage-deflate is negotiated. Smaller
	// messages are sent uncompressed (rsv1=0): DEFLATE's framing overhead
	// would otherwise make tiny messages larger on the wire, not smaller.
	DefaultCompressionThreshold = 8 << 10 // 8 KiB.

	// DefaultHandshakeTimeout bounds how long [Dial]'s opening handshake
	// may take before it fails with [ErrHandshakeTimeout]. [Upgrader.Upgrade]
	// does not apply a handshake timeout.
	DefaultHandshakeTimeout = 10 * time.Second

	// DefaultQueueSize is the default capacity of the bounded outbound and
	// inbound channels that separate the caller from the reader/writer
	// tasks (see the Connection Runtime's back-pressure policy).
	DefaultQueueSize = 16

	// defaultWindowBits is what RFC 7692 calls "absent", i.e. the maximum
	// LZ77 window the DEFLATE implementation supports.
	defaultWindowBits = 15
)

// config holds the immutable-after-handshake configuration shared by
// [Dial] and [Upgrader.Upgrade]. It is assembled from a slice of [Option]s and
// never mutated once a [Conn] starts its reader/writer tasks.
type config struct {
	id string

	maxFrameSize   uint64
	maxMessageSize uint64

	outboundQueueSize int
	inboundQueueSize  int

	handshakeTimeout time.Duration

	// Extension negotiation preferences (both roles read these; only the
	// client also uses httpClient/headers/caFile below).
	deflateEnabled          bool
	clientNoContextTakeover bool
	serverNoContextTakeover bool
	clientMaxWindowBits     int
	serverMaxWindowBits     int
	compressionThreshold    int

	// Client-only.
	httpClient *http.Client
	headers    http.Header
	caFile     string

	// For unit tests only: lets tests substitute a deterministic nonce
	// source for the client handshake key, and a deterministic mask-key
	// source for outgoing frames.
	nonceGen randSource
	maskGen  randSource
}

type randSource interface {
	Read(p []byte) (int, error)
}

func defaultConfig() *config {
	return &config{
		maxFrameSize:         DefaultMaxFrameSize,
		maxMessageSize:       DefaultMaxMessageSize,
		outboundQueueSize:    DefaultQueueSize,
		inboundQueueSize:     DefaultQueueSize,
		handshakeTimeout:     DefaultHandshakeTimeout,
		compressionThreshold: DefaultCompressionThreshold,
		clientMaxWindowBits:  defaultWindowBits,
		serverMaxWindowBits:  defaultWindowBits,
		headers:              http.Header{},
	}
}

// Option configures a [Conn] before it is created, via [Dial] or
// [Upgrader.Upgrade]. Options not applicable to a given role are no-ops
// on that role (e.g. [WithCAFile] on the server side).
type Option func(*config)

// WithID overrides the connection's auto-generated identity, which is
// otherwise a fresh short UUID. The ID never appears on the wire; it
// only labels log lines for correlation.
func WithID(id string) Option {
	return func(c *config) { c.id = id }
}

// WithMaxFrameSize rejects any incoming frame whose payload length header
// exceeds n bytes, closing the connection with StatusMessageTooBig.
func WithMaxFrameSize(n uint64) Option {
	return func(c *config) { c.maxFrameSize = n }
}

// WithMaxMessageSize rejects a reassembled message once its running size
// exceeds n bytes, closing the connection with StatusMessageTooBig.
func WithMaxMessageSize(n uint64) Option {
	return func(c *config) { c.maxMessageSize = n }
}

// WithQueueSizes sets the capacity of the bounded outbound (caller to
// writer task) and inbound (reader task to caller) channels.
func WithQueueSizes(outbound, inbound int) Option {
	return func(c *config) {
		c.outboundQueueSize = outbound
		c.inboundQueueSize = inbound
	}
}

// WithHandshakeTimeout overrides [DefaultHandshakeTimeout].
func WithHandshakeTimeout(d time.Duration) Option {
	return func(c *config) { c.handshakeTimeout = d }
}

// WithPermessageDeflate enables negotiation of the permessage-deflate
// extension (RFC 7692). threshold overrides [DefaultCompressionThreshold];
// pass 0 to keep the default.
func WithPermessageDeflate(threshold int) Option {
	return func(c *config) {
		c.deflateEnabled = true
		if threshold > 0 {
			c.compressionThreshold = threshold
		}
	}
}

// WithClientNoContextTakeover requests/requires (depending on role) that
// the client side resets its compressor after every message.
func WithClientNoContextTakeover() Option {
	return func(c *config) { c.clientNoContextTakeover = true }
}

// WithServerNoContextTakeover requests/requires (depending on role) that
// the server side resets its compressor after every message.
func WithServerNoContextTakeover() Option {
	return func(c *config) { c.serverNoContextTakeover = true }
}

// WithWindowBits requests a client- and/or server-side LZ77 window size,
// in bits (8-15). Pass 0 for either argument to leave it at the default
// (15, i.e. "absent" per RFC 7692).
func WithWindowBits(client, server int) Option {
	return func(c *config) {
		if client != 0 {
			c.clientMaxWindowBits = client
		}
		if server != 0 {
			c.serverMaxWindowBits = server
		}
	}
}

// WithHTTPClient lets callers of [Dial] specify a custom [http.Client] to
// use for the WebSocket handshake, instead of [http.DefaultClient].
//
// Do not specify a custom timeout in the HTTP client! This will interfere
// with the long-lived WebSocket connection beyond the scope of its
// initial handshake. Use [WithHandshakeTimeout] instead.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *config) { c.httpClient = hc }
}

// WithHTTPHeader adds a single HTTP header to the WebSocket handshake's
// HTTP request. Use [WithHTTPHeaders] to specify multiple ones.
func WithHTTPHeader(key, value string) Option {
	return func(c *config) { c.headers.Add(key, value) }
}

// WithHTTPHeaders adds multiple HTTP headers to the WebSocket handshake's
// HTTP request, instead of calling [WithHTTPHeader] repeatedly.
func WithHTTPHeaders(hs http.Header) Option {
	return func(c *config) { c.headers = hs.Clone() }
}

// WithCAFile configures a trust-root bundle (PEM file) for the TLS
// handshake performed by the underlying HTTP client when dialing a
// "wss://" URL. The TLS handshake itself remains an external concern;
// this only selects which roots it trusts.
func WithCAFile(path string) Option {
	return func(c *config) { c.caFile = path }
}

func newConfig(opts []Option) *config {
	c := defaultConfig()
	for _, opt := range opts {
		opt(c)
	}
	return c
}
