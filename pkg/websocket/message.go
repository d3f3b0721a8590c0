package websocket

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"unicode/utf8"
)

// readMessage reads incoming frames from the peer, responds to control
// frames (whether or not they're interleaved with data frames), and
// defragments data frames if needed. This function handles errors and
// connection closures gracefully, and returns done=true once the reader
// task must stop.
//
// Do not call this function directly, it is meant to be used
// exclusively (and continuously) by [Conn.readMessages]!
//
// It is based on:
//   - Base framing protocol: https://datatracker.ietf.org/doc/html/rfc6455#section-5.2
//   - Fragmentation: https://datatracker.ietf.org/doc/html/rfc6455#section-5.4
//   - Control frames: https://datatracker.ietf.org/doc/html/rfc6455#section-5.5
//   - Data frames: https://datatracker.ietf.org/doc/html/rfc6455#section-5.6
//   - Receiving data: https://datatracker.ietf.org/doc/html/rfc6455#section-6.2
//   - Closing the connection: https://datatracker.ietf.org/doc/html/rfc6455#section-7
//   - Handling Errors in UTF-8-Encoded Data: https://datatracker.ietf.org/doc/html/rfc6455#section-8.1
func (c *Conn) readMessage() (msg *Message, done bool) {
	var buf bytes.Buffer
	var op Opcode
	var compressed bool

	for {
		h, err := c.readFrameHeader()
		if err != nil {
			if errors.Is(err, io.EOF) {
				c.logger.Debug("WebSocket transport closed")
				c.closeReceived = true
				c.closeSent = true
				c.recordAbnormalClosure("transport closed before a close handshake completed")
				return nil, true
			}
			var fe *FrameError
			if errors.As(err, &fe) {
				c.logger.Error("protocol error due to invalid frame", slog.Any("error", err))
				c.sendCloseControlFrame(fe.Kind.closeStatus(), err.Error())
				return nil, true
			}
			c.logger.Error("failed to read WebSocket frame header", slog.Any("error", err))
			c.sendCloseControlFrame(StatusInternalError, "frame header reading error")
			return nil, true
		}

		c.logger.Debug("received WebSocket frame", slog.Bool("fin", h.fin),
			slog.String("opcode", h.opcode.String()), slog.Any("length", h.payloadLength))

		if err := c.checkFrameHeader(h, op); err != nil {
			c.logger.Error("protocol error due to invalid frame", slog.Any("error", err))
			var fe *FrameError
			status := StatusProtocolError
			if errors.As(err, &fe) {
				status = fe.Kind.closeStatus()
			}
			c.sendCloseControlFrame(status, err.Error())
			return nil, true
		}

		var data []byte
		if h.payloadLength > 0 {
			data, err = c.readFramePayload(h, h.payloadLength)
			if err != nil {
				c.logger.Error("failed to read WebSocket frame payload", slog.Any("error", err))
				c.sendCloseControlFrame(StatusInternalError, "frame payload reading error")
				return nil, true
			}
		}

		switch h.opcode {
		// "A fragmented message consists of a single frame with the FIN bit
		// clear and an opcode other than 0, followed by zero or more frames
		// with the FIN bit clear and the opcode set to 0, and terminated by
		// a single frame with the FIN bit set and an opcode of 0".
		case opcodeContinuation, OpcodeText, OpcodeBinary:
			if h.opcode != opcodeContinuation {
				op = h.opcode
				compressed = h.rsv1
			}
			if uint64(buf.Len()+len(data)) > c.cfg.maxMessageSize {
				c.logger.Error("incoming WebSocket message exceeds configured size limit")
				c.sendCloseControlFrame(StatusMessageTooBig, "message too big")
				return nil, true
			}
			if len(data) > 0 {
				buf.Write(data) //nolint:errcheck // bytes.Buffer.Write never fails
			}

		// "If an endpoint receives a Close frame and did not previously send
		// a Close frame, the endpoint MUST send a Close frame in response".
		case opcodeClose:
			c.closeReceived = true
			status, reason := c.parseClosePayload(data)
			c.sendCloseControlFrame(status, reason)
			return nil, true // Not an error, but we no longer need to receive new frames.

		// "An endpoint MUST be capable of handling control
		// frames in the middle of a fragmented message".
		case opcodePing:
			if err := <-c.sendControlFrame(opcodePong, data); err != nil {
				c.logger.Error("failed to send WebSocket pong control frame", slog.Any("error", err))
			}

		case opcodePong:
			// No unsolicited "Ping" control frames are sent by this library yet,
			// so there's nothing to correlate an incoming "Pong" with.
		}

		if h.fin && h.opcode <= OpcodeBinary {
			return c.finalizeMessage(op, buf.Bytes(), compressed)
		}
	}
}

func (c *Conn) finalizeMessage(op Opcode, data []byte, compressed bool) (*Message, bool) {
	if data == nil {
		data = []byte{}
	}

	if compressed {
		if c.deflate == nil {
			c.logger.Error("received compressed message without a negotiated extension")
			c.sendCloseControlFrame(StatusProtocolError, "unexpected compressed message")
			return nil, true
		}

		decompressed, err := c.deflate.decompress(data, c.cfg.maxMessageSize)
		if err != nil {
			c.logger.Error("failed to decompress WebSocket message", slog.Any("error", err))
			var tooLarge *MessageTooLargeError
			if errors.As(err, &tooLarge) {
				c.sendCloseControlFrame(StatusMessageTooBig, "decompressed message too big")
			} else {
				c.sendCloseControlFrame(StatusProtocolError, "decompression failure")
			}
			return nil, true
		}
		data = decompressed
	}

	c.logger.Debug("finished receiving WebSocket data message",
		slog.String("opcode", op.String()), slog.Int("length", len(data)))

	// "When an endpoint is to interpret a byte stream as UTF-8 but finds
	// that the byte stream is not, in fact, a valid UTF-8 stream, that
	// endpoint MUST _Fail the WebSocket Connection_. This rule applies both
	// during the opening handshake and during subsequent data exchange".
	if op == OpcodeText && len(data) > 0 && !utf8.Valid(data) {
		c.logger.Error("protocol error due to invalid UTF-8 text")
		c.sendCloseControlFrame(StatusInvalidData, "invalid UTF-8 text")
		return nil, true
	}

	return &Message{Opcode: op, Data: data}, false
}

// writeMessage sends a data message, fragmenting it across multiple
// frames only if its compressed-or-not size exceeds the configured
// maximum frame size. Messages below [DefaultCompressionThreshold]
// (or the configured threshold) are never compressed, since DEFLATE's
// framing overhead makes tiny payloads larger, not smaller.
func (c *Conn) writeMessage(op Opcode, data []byte) error {
	rsv1 := false

	if c.deflate != nil && len(data) >= c.cfg.compressionThreshold {
		compressed, err := c.deflate.compress(data)
		if err != nil {
			return err
		}
		data = compressed
		rsv1 = true
	}

	max := int(c.cfg.maxFrameSize)
	if max <= 0 || len(data) <= max {
		return c.writeFrame(op, data, frameOptions{fin: true, rsv1: rsv1})
	}

	for len(data) > 0 {
		chunk := data
		if len(chunk) > max {
			chunk = chunk[:max]
		}
		data = data[len(chunk):]

		fin := len(data) == 0
		if err := c.writeFrame(op, chunk, frameOptions{fin: fin, rsv1: rsv1}); err != nil {
			return err
		}
		op = opcodeContinuation
		rsv1 = false
	}

	return nil
}

// SendTextMessage sends a [UTF-8 text] message to the peer.
//
// This is done asynchronously, to manage [isolation or safe multiplexing]
// of multiple concurrent calls, including interleaved control frames.
// Despite that, this function enables the caller to block and/or
// handle errors, with the returned channel.
//
// [UTF-8 text]: https://datatracker.ietf.org/doc/html/rfc6455#section-5.6
// [isolation or safe multiplexing]: https://datatracker.ietf.org/doc/html/rfc6455#section-5.4
func (c *Conn) SendTextMessage(data []byte) <-chan error {
	err := make(chan error)
	c.writer <- internalMessage{Opcode: OpcodeText, Data: data, err: err}
	return err
}

// SendBinaryMessage sends a [binary] message to the peer.
//
// This is done asynchronously, to manage [isolation or safe multiplexing]
// of multiple concurrent calls, including interleaved control frames.
// Despite that, this function enables the caller to block and/or
// handle errors, with the returned channel.
//
// [binary]: https://datatracker.ietf.org/doc/html/rfc6455#section-5.6
// [isolation or safe multiplexing]: https://datatracker.ietf.org/doc/html/rfc6455#section-5.4
func (c *Conn) SendBinaryMessage(data []byte) <-chan error {
	err := make(chan error)
	c.writer <- internalMessage{Opcode: OpcodeBinary, Data: data, err: err}
	return err
}

// sendControlFrame sends a [WebSocket control frame] to the peer.
//
// This is done asynchronously, to manage [isolation or safe multiplexing]
// of multiple concurrent calls, including interleaved control frames.
// Despite that, this function enables the caller to block and/or
// handle errors, with the returned channel.
//
// Use this function instead of calling [Conn.writeFrame] directly!
//
// [WebSocket control frame]: https://datatracker.ietf.org/doc/html/rfc6455#section-5.5
func (c *Conn) sendControlFrame(op Opcode, payload []byte) <-chan error {
	err := make(chan error)
	c.writer <- internalMessage{Opcode: op, Data: payload, err: err}
	return err
}
