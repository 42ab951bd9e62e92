package proxy

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/craftwrap/craftwrap/internal/protocol"
)

const (
	// outboundQueueCap bounds each half's send queue; a full queue blocks
	// the producing read loop, backpressuring the whole pipeline.
	outboundQueueCap = 64
	// flushInterval coalesces small packets into one socket write.
	flushInterval = 30 * time.Millisecond
	// lastPacketsKept is the depth of the diagnostic ring.
	lastPacketsKept = 10
)

// packetRecord is one (id, length) entry in the diagnostic ring.
type packetRecord struct {
	ID   int32
	Size int
}

// Conn is the connection actor for one half of a session: it owns the socket
// and codec exclusively, serializes outbound writes through a bounded queue,
// and records recent inbound packets for post-mortem logging.
type Conn struct {
	label string
	sock  net.Conn
	codec *protocol.FrameCodec

	out  chan []byte
	done chan struct{}

	closeOnce sync.Once

	ringMu sync.Mutex
	ring   []packetRecord
}

func newConn(label string, sock net.Conn) *Conn {
	return &Conn{
		label: label,
		sock:  sock,
		codec: protocol.NewFrameCodec(sock),
		out:   make(chan []byte, outboundQueueCap),
		done:  make(chan struct{}),
	}
}

// ReadFrame reads the next frame and records it in the diagnostic ring.
func (c *Conn) ReadFrame() (protocol.Frame, error) {
	f, err := c.codec.ReadFrame()
	if err != nil {
		return f, err
	}
	c.record(f.ID, len(f.Raw))
	return f, nil
}

func (c *Conn) record(id int32, size int) {
	c.ringMu.Lock()
	defer c.ringMu.Unlock()
	c.ring = append(c.ring, packetRecord{ID: id, Size: size})
	if len(c.ring) > lastPacketsKept {
		c.ring = c.ring[1:]
	}
}

// LastPackets returns the most recent (id, length) pairs, oldest first.
func (c *Conn) LastPackets() []packetRecord {
	c.ringMu.Lock()
	defer c.ringMu.Unlock()
	out := make([]packetRecord, len(c.ring))
	copy(out, c.ring)
	return out
}

// Send enqueues pre-encoded id||body bytes for the write loop. Blocks when
// the queue is full; silently discards after close.
func (c *Conn) Send(raw []byte) {
	select {
	case c.out <- raw:
	case <-c.done:
	}
}

// SendPacket encodes id||body and enqueues it.
func (c *Conn) SendPacket(id int32, body []byte) {
	raw := make([]byte, 0, protocol.VarIntLen(id)+len(body))
	raw = protocol.AppendVarInt(raw, id)
	c.Send(append(raw, body...))
}

// sendNow writes a frame synchronously, bypassing the queue. Used for the
// handshake/login responses and for final disconnect packets, where ordering
// against the write loop does not matter but immediate delivery does.
func (c *Conn) sendNow(id int32, body []byte) error {
	if err := c.codec.WriteFrame(id, body); err != nil {
		return err
	}
	return c.codec.Flush()
}

// writeLoop drains the outbound queue, flushing when the queue empties or
// every flushInterval, whichever comes sooner.
func (c *Conn) writeLoop() error {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return nil
		case raw := <-c.out:
			if err := c.codec.WriteRaw(raw); err != nil {
				return fmt.Errorf("%s write: %w", c.label, err)
			}
		drain:
			for {
				select {
				case more := <-c.out:
					if err := c.codec.WriteRaw(more); err != nil {
						return fmt.Errorf("%s write: %w", c.label, err)
					}
				default:
					break drain
				}
			}
			if err := c.codec.Flush(); err != nil {
				return fmt.Errorf("%s flush: %w", c.label, err)
			}
		case <-ticker.C:
			if err := c.codec.Flush(); err != nil {
				return fmt.Errorf("%s flush: %w", c.label, err)
			}
		}
	}
}

// Close shuts the actor down: pending writes are dropped and the socket is
// closed, unblocking the read loop. Idempotent.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.sock.Close()
	})
}

// Closed reports whether Close has been called.
func (c *Conn) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// RemoteAddr returns the socket's remote address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.sock.RemoteAddr()
}

// Codec exposes the frame codec for compression/encryption switches.
func (c *Conn) Codec() *protocol.FrameCodec {
	return c.codec
}
