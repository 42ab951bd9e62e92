package protocol

import (
	"bufio"
	"bytes"
	"crypto/cipher"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/klauspost/compress/zlib"
)

// MaxFrameSize caps a single on-wire frame. Anything larger is a protocol
// error and fatal to the session.
const MaxFrameSize = 2 << 20

// CompressionDisabled is the threshold value that turns compression off.
const CompressionDisabled int32 = -1

var (
	// ErrFrameTooLarge is returned when a frame length exceeds MaxFrameSize.
	ErrFrameTooLarge = errors.New("frame too large")
	// ErrCompression is returned when a compressed frame fails to inflate or
	// inflates to a size other than the declared one.
	ErrCompression = errors.New("frame decompression failed")
)

// Frame is one decoded frame: the packet id plus the uncompressed id||body
// bytes. Raw is handed back so that packets the proxy does not rewrite can be
// forwarded byte-identical.
type Frame struct {
	ID  int32
	Raw []byte // varint id followed by the body, decompressed

	bodyOff int
}

// Body returns the packet body (Raw without the id prefix).
func (f Frame) Body() []byte {
	return f.Raw[f.bodyOff:]
}

// NewFrame builds a frame from id and body, shaped exactly as ReadFrame
// would return it.
func NewFrame(id int32, body []byte) Frame {
	raw := AppendVarInt(make([]byte, 0, VarIntLen(id)+len(body)), id)
	return Frame{ID: id, Raw: append(raw, body...), bodyOff: VarIntLen(id)}
}

// FrameCodec owns one socket exclusively and translates between frames and
// the stream: varint length prefix, optional zlib compression above a
// per-direction threshold, optional CFB8 encryption.
//
// ReadFrame may only be called from one goroutine (the half's read loop);
// writes are internally serialized so the write loop and the login handler
// can both emit frames.
type FrameCodec struct {
	conn net.Conn

	r  io.Reader // decrypt layer (if any) over br
	br *bufio.Reader
	zr io.ReadCloser // cached inflater, Reset per compressed frame

	wmu sync.Mutex
	w   io.Writer // encrypt layer (if any) over bw
	bw  *bufio.Writer
	zw  *zlib.Writer

	threshold atomic.Int32
}

// NewFrameCodec wraps conn. Compression starts disabled.
func NewFrameCodec(conn net.Conn) *FrameCodec {
	br := bufio.NewReader(conn)
	bw := bufio.NewWriter(conn)
	c := &FrameCodec{
		conn: conn,
		r:    br,
		br:   br,
		w:    bw,
		bw:   bw,
	}
	c.threshold.Store(CompressionDisabled)
	return c
}

// SetThreshold switches the compression threshold; it takes effect from the
// next frame in each direction. CompressionDisabled turns compression off.
func (c *FrameCodec) SetThreshold(t int32) {
	c.threshold.Store(t)
}

// Threshold returns the current compression threshold.
func (c *FrameCodec) Threshold() int32 {
	return c.threshold.Load()
}

// EnableEncryption wraps both directions in AES/CFB8 keyed with secret (the
// shared secret doubles as the iv). enc and dec are the two directional
// streams; the caller builds them so this package stays cipher-agnostic.
func (c *FrameCodec) EnableEncryption(enc, dec cipher.Stream) {
	c.wmu.Lock()
	c.w = cipher.StreamWriter{S: enc, W: c.bw}
	c.wmu.Unlock()
	c.r = cipher.StreamReader{S: dec, R: c.br}
}

// ReadFrame consumes exactly one frame from the stream, inflating it if the
// compressed form is in effect. It blocks until a full frame is available.
func (c *FrameCodec) ReadFrame() (Frame, error) {
	length, _, err := ReadVarInt(c.r)
	if err != nil {
		return Frame{}, fmt.Errorf("reading frame length: %w", err)
	}
	if length <= 0 || length > MaxFrameSize {
		return Frame{}, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, length)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(c.r, payload); err != nil {
		return Frame{}, fmt.Errorf("reading frame payload: %w", err)
	}

	raw := payload
	if c.threshold.Load() != CompressionDisabled {
		pr := bytes.NewReader(payload)
		dataLen, _, err := ReadVarInt(pr)
		if err != nil {
			return Frame{}, fmt.Errorf("reading uncompressed length: %w", err)
		}
		rest := payload[len(payload)-pr.Len():]
		if dataLen == 0 {
			raw = rest
		} else {
			if dataLen < 0 || dataLen > MaxFrameSize {
				return Frame{}, fmt.Errorf("%w: declared %d bytes", ErrFrameTooLarge, dataLen)
			}
			raw, err = c.inflate(rest, int(dataLen))
			if err != nil {
				return Frame{}, err
			}
		}
	}

	rr := bytes.NewReader(raw)
	id, idLen, err := ReadVarInt(rr)
	if err != nil {
		return Frame{}, fmt.Errorf("reading packet id: %w", err)
	}
	return Frame{ID: id, Raw: raw, bodyOff: idLen}, nil
}

func (c *FrameCodec) inflate(compressed []byte, dataLen int) ([]byte, error) {
	src := bytes.NewReader(compressed)
	if c.zr == nil {
		zr, err := zlib.NewReader(src)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCompression, err)
		}
		c.zr = zr
	} else if err := c.zr.(zlib.Resetter).Reset(src, nil); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCompression, err)
	}

	out := make([]byte, dataLen)
	if _, err := io.ReadFull(c.zr, out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCompression, err)
	}
	// Declared size must be exact.
	var extra [1]byte
	if n, _ := c.zr.Read(extra[:]); n != 0 {
		return nil, fmt.Errorf("%w: inflated past declared length %d", ErrCompression, dataLen)
	}
	return out, nil
}

// WriteFrame encodes id||body and emits one complete frame.
func (c *FrameCodec) WriteFrame(id int32, body []byte) error {
	raw := make([]byte, 0, VarIntLen(id)+len(body))
	raw = AppendVarInt(raw, id)
	raw = append(raw, body...)
	return c.WriteRaw(raw)
}

// WriteRaw emits one complete frame from pre-encoded id||body bytes,
// compressing per the current threshold. Data is buffered; call Flush to
// push it to the socket.
func (c *FrameCodec) WriteRaw(raw []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	t := c.threshold.Load()
	if t == CompressionDisabled {
		if err := WriteVarInt(c.w, int32(len(raw))); err != nil {
			return fmt.Errorf("writing frame length: %w", err)
		}
		if _, err := c.w.Write(raw); err != nil {
			return fmt.Errorf("writing frame: %w", err)
		}
		return nil
	}

	var payload bytes.Buffer
	if int32(len(raw)) >= t {
		payload.Grow(len(raw)/2 + MaxVarIntBytes)
		if err := WriteVarInt(&payload, int32(len(raw))); err != nil {
			return fmt.Errorf("writing uncompressed length: %w", err)
		}
		if c.zw == nil {
			c.zw = zlib.NewWriter(&payload)
		} else {
			c.zw.Reset(&payload)
		}
		if _, err := c.zw.Write(raw); err != nil {
			return fmt.Errorf("compressing frame: %w", err)
		}
		if err := c.zw.Close(); err != nil {
			return fmt.Errorf("compressing frame: %w", err)
		}
	} else {
		payload.Grow(len(raw) + 1)
		payload.WriteByte(0) // varint 0: uncompressed
		payload.Write(raw)
	}

	if err := WriteVarInt(c.w, int32(payload.Len())); err != nil {
		return fmt.Errorf("writing frame length: %w", err)
	}
	if _, err := c.w.Write(payload.Bytes()); err != nil {
		return fmt.Errorf("writing frame: %w", err)
	}
	return nil
}

// Flush pushes buffered frames to the socket.
func (c *FrameCodec) Flush() error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.bw.Flush()
}

// Close closes the underlying socket.
func (c *FrameCodec) Close() error {
	return c.conn.Close()
}
