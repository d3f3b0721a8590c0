// Compression support for the permessage-deflate extension (RFC 7692).
// This extension uses the DEFLATE algorithm (RFC 1951) to compress
// message payloads.
package websocket

import (
	"io"
	"sync"

	"github.com/klauspost/compress/flate"
)

const defaultCompressionLevel = flate.DefaultCompression

var deflateTail = [4]byte{0x00, 0x00, 0xff, 0xff}

var (
	flateReaderPool sync.Pool
	flateWriterPool sync.Pool
)

func getFlateReader(r io.Reader) io.ReadCloser {
	if fr, ok := flateReaderPool.Get().(io.ReadCloser); ok && fr != nil {
		_ = fr.(flate.Resetter).Reset(r, nil) //nolint:errcheck
		return fr
	}
	return flate.NewReader(r)
}

func putFlateReader(fr io.ReadCloser) {
	flateReaderPool.Put(fr)
}

// deflateContext holds the permessage-deflate compression state private
// to one [Conn], once the extension has been negotiated during the
// opening handshake. Both the compressor and decompressor operate on
// whole messages: a message's payload is the concatenation of every
// frame in its fragmentation sequence, compressed or decompressed as
// a unit before (re)fragmentation.
//
// Decompression always drops its sliding-window dictionary between
// messages, regardless of the negotiated no_context_takeover parameters:
// resetting never produces incorrect output, it only forgoes a
// compression-ratio optimization the peer may have been counting on if
// it, in turn, kept its own compressor's context across messages. See
// the design notes for why a persistent decompressor isn't used here.
type deflateContext struct {
	params deflateParams
	role   role

	// Compression (this Conn's outbound messages).
	compressNoContextTakeover bool
	fw                        *flate.Writer
	fwBuf                     flateBuffer
}

// flateBuffer is the in-memory sink that [flate.Writer] writes its
// compressed output into; it supports being drained and reused across
// messages without reallocating.
type flateBuffer struct {
	buf []byte
}

func (b *flateBuffer) Write(p []byte) (int, error) {
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *flateBuffer) reset() {
	b.buf = b.buf[:0]
}

// newDeflateContext creates the per-connection compression state once
// permessage-deflate has been negotiated, per role: a client's outbound
// messages respect client_no_context_takeover, a server's respect
// server_no_context_takeover.
func newDeflateContext(r role, p deflateParams) *deflateContext {
	d := &deflateContext{params: p, role: r}

	if r == roleClient {
		d.compressNoContextTakeover = p.clientNoContextTakeover
	} else {
		d.compressNoContextTakeover = p.serverNoContextTakeover
	}

	d.fw, _ = flate.NewWriter(&d.fwBuf, defaultCompressionLevel) //nolint:errcheck // level is a known-valid constant

	return d
}

// compress deflates a whole message payload, stripping the trailing
// empty stored block (0x00 0x00 0xff 0xff) that [flate.Writer.Flush]
// appends, per https://datatracker.ietf.org/doc/html/rfc7692#section-7.2.1.
func (d *deflateContext) compress(payload []byte) ([]byte, error) {
	d.fwBuf.reset()

	if _, err := d.fw.Write(payload); err != nil {
		return nil, &CompressionError{Err: err}
	}
	if err := d.fw.Flush(); err != nil {
		return nil, &CompressionError{Err: err}
	}

	out := d.fwBuf.buf
	if len(out) >= 4 {
		out = out[:len(out)-4]
	}

	result := make([]byte, len(out))
	copy(result, out)

	if d.compressNoContextTakeover {
		d.fw.Reset(&d.fwBuf)
	}

	return result, nil
}

// decompress inflates a whole message payload, first appending the
// trailing empty stored block that the sender stripped, per
// https://datatracker.ietf.org/doc/html/rfc7692#section-7.2.2.
//
// The inflated output is capped at maxSize+1 bytes read, so a small
// compressed payload engineered to expand without bound (a compression
// bomb) is rejected with [MessageTooLargeError] instead of exhausting
// memory.
func (d *deflateContext) decompress(payload []byte, maxSize uint64) ([]byte, error) {
	r := io.MultiReader(&byteSliceReader{data: payload}, &tailReader{})

	fr := getFlateReader(r)
	defer putFlateReader(fr)

	limit := io.LimitReader(fr, int64(maxSize)+1) //nolint:gosec // maxSize is a configured byte count
	out, err := io.ReadAll(limit)
	if err != nil {
		return nil, &CompressionError{Err: err}
	}
	if uint64(len(out)) > maxSize {
		return nil, &MessageTooLargeError{Limit: maxSize}
	}

	return out, nil
}

// byteSliceReader is an [io.Reader] over a fixed byte slice, equivalent
// to [bytes.Reader] but without pulling in the extra seek/size methods.
type byteSliceReader struct {
	data []byte
	pos  int
}

func (r *byteSliceReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	n := copy(p, r.data[r.pos:])
	r.pos += n
	return n, nil
}

// tailReader yields the four-byte DEFLATE empty-block suffix required
// to restore a sync-flushed stream to a decodable state, then EOF.
type tailReader struct {
	done bool
}

func (r *tailReader) Read(p []byte) (int, error) {
	if r.done {
		return 0, io.EOF
	}
	r.done = true
	return copy(p, deflateTail[:]), nil
}
