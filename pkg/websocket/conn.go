package websocket

import (
	"bufio"
	"crypto/rand"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"github.com/tzrikka/ws/pkg/metrics"
)

// role distinguishes a client-role [Conn] (created by [Dial]) from a
// server-role one (created by [Upgrader.Upgrade]): the two sides of the protocol
// differ in masking requirements and in which permessage-deflate
// parameters they apply to their own outbound messages.
type role int

const (
	roleClient role = iota
	roleServer
)

func (r role) String() string {
	if r == roleServer {
		return "server"
	}
	return "client"
}

// Conn represents the configuration and state of an open WebSocket
// connection, on either the client or the server role.
type Conn struct {
	id     string
	role   role
	cfg    *config
	logger *slog.Logger

	// Initialized after the opening handshake completes.
	bufio  *bufio.ReadWriter
	closer io.ReadWriteCloser

	reader chan Message
	writer chan internalMessage

	// Non-nil only if permessage-deflate was negotiated.
	deflate *deflateContext

	// No need for synchronization: value changes are possible only in
	// one direction (false to true), and are always done by a single
	// function, which is guaranteed to run in a single goroutine.
	closeReceived bool

	closeSent   bool
	closeErr    *CloseError
	closeSentMu sync.RWMutex

	// Only for the purpose of minimizing memory allocations (safely),
	// not for state management or memory sharing of any kind.
	readBuf  [8]byte
	writeBuf [8]byte
	closeBuf [maxControlPayload]byte

	// maskSrc generates outgoing frame masking keys. Only used on the
	// client role; defaults to [crypto/rand.Reader].
	maskSrc io.Reader
}

// Message with WebSocket data, from one or more (defragmented) data
// frames, as defined in https://datatracker.ietf.org/doc/html/rfc6455#section-5.6.
// Returned by the Go channel that is exposed by [Conn.IncomingMessages].
type Message struct {
	Opcode Opcode
	Data   []byte
}

// internalMessage is used to synchronize concurrent calls to [Conn.writeFrame].
type internalMessage struct {
	Opcode Opcode
	Data   []byte
	err    chan<- error
}

// newConn allocates a [Conn] shared by both [Dial] and [Upgrader.Upgrade], before
// the handshake-specific setup each role performs.
func newConn(r role, logger *slog.Logger, cfg *config) *Conn {
	id := cfg.id
	if id == "" {
		id = shortuuid.New()
	}

	maskSrc := io.Reader(rand.Reader)
	if cfg.maskGen != nil {
		maskSrc = cfg.maskGen
	}

	return &Conn{
		id:      id,
		role:    r,
		cfg:     cfg,
		logger:  logger.With(slog.String("conn_id", id), slog.String("role", r.String())),
		maskSrc: maskSrc,
	}
}

// start wires the transport and launches the reader/writer tasks. Called
// once the opening handshake (on either role) has succeeded.
func (c *Conn) start(rwc io.ReadWriteCloser) {
	c.bufio = bufio.NewReadWriter(bufio.NewReader(rwc), bufio.NewWriter(rwc))
	c.closer = rwc
	c.reader = make(chan Message, c.cfg.inboundQueueSize)
	c.writer = make(chan internalMessage, c.cfg.outboundQueueSize)

	go c.readMessages()
	go c.writeMessages()

	metrics.IncrementHandshakeCounter(c.logger, time.Now(), c.role.String(), 101)
	c.logger.Debug("WebSocket connection established")
}

// ID returns the connection's identity, used to correlate log lines.
// It never appears on the wire.
func (c *Conn) ID() string {
	return c.id
}

// IncomingMessages returns the connection's channel that publishes data
// [Message]s as they are received from the peer. The channel is closed
// once the connection terminates; call [Conn.CloseErr] afterward to learn
// the negotiated close code and reason, or whether the closure was abnormal.
//
// [Message]: https://pkg.go.dev/github.com/tzrikka/ws/pkg/websocket#Message
func (c *Conn) IncomingMessages() <-chan Message {
	return c.reader
}

// CloseErr returns the reason this connection ended: the negotiated close
// code and reason, whichever side initiated the closing handshake, or a
// synthesized [StatusAbnormalClosure] if the transport ended before one
// completed. It returns nil while the connection is still open.
func (c *Conn) CloseErr() *CloseError {
	c.closeSentMu.RLock()
	defer c.closeSentMu.RUnlock()

	return c.closeErr
}

// readMessages runs as a [Conn] goroutine, to call [Conn.readMessage]
// continuously, in order to process control and data frames, and
// publish data [Message]s to the connection's subscribers.
func (c *Conn) readMessages() {
	for {
		msg, done := c.readMessage()
		if msg != nil {
			c.reader <- *msg
		}
		if done {
			close(c.reader)
			return
		}
	}
}

// writeMessages runs as a [Conn] goroutine, to synchronize concurrent
// calls to [Conn.writeFrame]/[Conn.writeMessage].
func (c *Conn) writeMessages() {
	for msg := range c.writer {
		var err error
		switch msg.Opcode {
		case OpcodeText, OpcodeBinary:
			err = c.writeMessage(msg.Opcode, msg.Data)
		default:
			err = c.writeFrame(msg.Opcode, msg.Data, frameOptions{fin: true})
		}
		msg.err <- err
		// The message's error channel can be used at most once.
		close(msg.err)
	}
}
