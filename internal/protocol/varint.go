package protocol

import (
	"errors"
	"io"
)

// MaxVarIntBytes is the longest legal varint encoding of an int32.
const MaxVarIntBytes = 5

// ErrVarIntTooBig is returned when a varint runs past 5 bytes.
var ErrVarIntTooBig = errors.New("varint too big")

// ReadVarInt reads a protocol varint from r: 7-bit groups, little-endian,
// high bit set on continuation bytes. Returns the value and the number of
// bytes consumed.
func ReadVarInt(r io.Reader) (int32, int, error) {
	var result uint32
	var n int
	var buf [1]byte
	for {
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return 0, n, err
		}
		b := buf[0]
		result |= uint32(b&0x7F) << (7 * n)
		n++
		if b&0x80 == 0 {
			return int32(result), n, nil
		}
		if n >= MaxVarIntBytes {
			return 0, n, ErrVarIntTooBig
		}
	}
}

// AppendVarInt appends the varint encoding of v to dst.
func AppendVarInt(dst []byte, v int32) []byte {
	u := uint32(v)
	for {
		b := byte(u & 0x7F)
		u >>= 7
		if u != 0 {
			b |= 0x80
		}
		dst = append(dst, b)
		if u == 0 {
			return dst
		}
	}
}

// WriteVarInt writes the varint encoding of v to w.
func WriteVarInt(w io.Writer, v int32) error {
	var buf [MaxVarIntBytes]byte
	_, err := w.Write(AppendVarInt(buf[:0], v))
	return err
}

// VarIntLen returns the encoded size of v in bytes.
func VarIntLen(v int32) int {
	u := uint32(v)
	n := 1
	for u >= 0x80 {
		u >>= 7
		n++
	}
	return n
}
