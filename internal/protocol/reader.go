package protocol

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/google/uuid"
)

// MaxStringLength is the protocol cap on string fields.
const MaxStringLength = 32767

// Reader decodes packet fields from a frame body. All multi-byte values are
// big-endian. A Reader never copies: byte-slice results alias the frame body
// and are only valid until the next frame is read.
type Reader struct {
	data []byte
	pos  int
}

// NewReader creates a reader over one frame body.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

func (r *Reader) need(n int) error {
	if r.pos+n > len(r.data) {
		return fmt.Errorf("not enough data (pos=%d, need=%d, len=%d)", r.pos, n, len(r.data))
	}
	return nil
}

// ReadByte reads a single unsigned byte.
func (r *Reader) ReadByte() (byte, error) {
	if err := r.need(1); err != nil {
		return 0, fmt.Errorf("ReadByte: %w", err)
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

// ReadSByte reads a single signed byte.
func (r *Reader) ReadSByte() (int8, error) {
	b, err := r.ReadByte()
	return int8(b), err
}

// ReadBool reads a single-byte boolean.
func (r *Reader) ReadBool() (bool, error) {
	b, err := r.ReadByte()
	return b != 0, err
}

// ReadShort reads an int16.
func (r *Reader) ReadShort() (int16, error) {
	if err := r.need(2); err != nil {
		return 0, fmt.Errorf("ReadShort: %w", err)
	}
	v := int16(binary.BigEndian.Uint16(r.data[r.pos:]))
	r.pos += 2
	return v, nil
}

// ReadUShort reads a uint16.
func (r *Reader) ReadUShort() (uint16, error) {
	v, err := r.ReadShort()
	return uint16(v), err
}

// ReadInt reads an int32.
func (r *Reader) ReadInt() (int32, error) {
	if err := r.need(4); err != nil {
		return 0, fmt.Errorf("ReadInt: %w", err)
	}
	v := int32(binary.BigEndian.Uint32(r.data[r.pos:]))
	r.pos += 4
	return v, nil
}

// ReadLong reads an int64.
func (r *Reader) ReadLong() (int64, error) {
	if err := r.need(8); err != nil {
		return 0, fmt.Errorf("ReadLong: %w", err)
	}
	v := int64(binary.BigEndian.Uint64(r.data[r.pos:]))
	r.pos += 8
	return v, nil
}

// ReadFloat reads an IEEE-754 float32.
func (r *Reader) ReadFloat() (float32, error) {
	if err := r.need(4); err != nil {
		return 0, fmt.Errorf("ReadFloat: %w", err)
	}
	bits := binary.BigEndian.Uint32(r.data[r.pos:])
	r.pos += 4
	return math.Float32frombits(bits), nil
}

// ReadDouble reads an IEEE-754 float64.
func (r *Reader) ReadDouble() (float64, error) {
	if err := r.need(8); err != nil {
		return 0, fmt.Errorf("ReadDouble: %w", err)
	}
	bits := binary.BigEndian.Uint64(r.data[r.pos:])
	r.pos += 8
	return math.Float64frombits(bits), nil
}

// ReadVarInt reads a varint field.
func (r *Reader) ReadVarInt() (int32, error) {
	var result uint32
	for n := 0; n < MaxVarIntBytes; n++ {
		b, err := r.ReadByte()
		if err != nil {
			return 0, fmt.Errorf("ReadVarInt: %w", err)
		}
		result |= uint32(b&0x7F) << (7 * n)
		if b&0x80 == 0 {
			return int32(result), nil
		}
	}
	return 0, ErrVarIntTooBig
}

// ReadString reads a varint-prefixed UTF-8 string.
func (r *Reader) ReadString() (string, error) {
	n, err := r.ReadVarInt()
	if err != nil {
		return "", fmt.Errorf("ReadString: %w", err)
	}
	if n < 0 || n > MaxStringLength {
		return "", fmt.Errorf("ReadString: length %d out of range", n)
	}
	if err := r.need(int(n)); err != nil {
		return "", fmt.Errorf("ReadString: %w", err)
	}
	s := string(r.data[r.pos : r.pos+int(n)])
	r.pos += int(n)
	return s, nil
}

// ReadUUID reads 16 raw bytes (two big-endian longs).
func (r *Reader) ReadUUID() (uuid.UUID, error) {
	if err := r.need(16); err != nil {
		return uuid.Nil, fmt.Errorf("ReadUUID: %w", err)
	}
	var u uuid.UUID
	copy(u[:], r.data[r.pos:r.pos+16])
	r.pos += 16
	return u, nil
}

// ReadBlockPos reads a packed-long position using the layout for version.
func (r *Reader) ReadBlockPos(version int32) (BlockPos, error) {
	v, err := r.ReadLong()
	if err != nil {
		return BlockPos{}, fmt.Errorf("ReadBlockPos: %w", err)
	}
	return unpackBlockPos(v, version), nil
}

// ReadBytes reads n raw bytes (zero-copy subslice of the frame body).
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("ReadBytes: negative count %d", n)
	}
	if err := r.need(n); err != nil {
		return nil, fmt.Errorf("ReadBytes: %w", err)
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// ReadByteArray reads a varint-prefixed byte array.
func (r *Reader) ReadByteArray() ([]byte, error) {
	n, err := r.ReadVarInt()
	if err != nil {
		return nil, fmt.Errorf("ReadByteArray: %w", err)
	}
	if n < 0 {
		return nil, fmt.Errorf("ReadByteArray: negative length %d", n)
	}
	return r.ReadBytes(int(n))
}

// ReadByteArrayShort reads a short-prefixed byte array.
func (r *Reader) ReadByteArrayShort() ([]byte, error) {
	n, err := r.ReadShort()
	if err != nil {
		return nil, fmt.Errorf("ReadByteArrayShort: %w", err)
	}
	if n < 0 {
		return nil, fmt.Errorf("ReadByteArrayShort: negative length %d", n)
	}
	return r.ReadBytes(int(n))
}

// ReadRest returns everything from the current position to frame end. Also
// how metadata streams are consumed: the proxy never decodes them, it skips
// to frame end and preserves the bytes for re-emission.
func (r *Reader) ReadRest() []byte {
	b := r.data[r.pos:]
	r.pos = len(r.data)
	return b
}

// ReadSlot reads a trailing slot field. The proxy only decodes slots that end
// a frame, so any NBT payload is simply the rest of the body and round-trips
// verbatim.
func (r *Reader) ReadSlot() (Slot, error) {
	id, err := r.ReadShort()
	if err != nil {
		return Slot{}, fmt.Errorf("ReadSlot: %w", err)
	}
	if id == -1 {
		return Slot{}, nil
	}
	count, err := r.ReadByte()
	if err != nil {
		return Slot{}, fmt.Errorf("ReadSlot: %w", err)
	}
	damage, err := r.ReadShort()
	if err != nil {
		return Slot{}, fmt.Errorf("ReadSlot: %w", err)
	}
	return Slot{
		Present: true,
		ItemID:  id,
		Count:   count,
		Damage:  damage,
		NBT:     r.ReadRest(),
	}, nil
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.data) - r.pos
}

// Pos returns the current read position within the frame body.
func (r *Reader) Pos() int {
	return r.pos
}
