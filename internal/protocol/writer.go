package protocol

import (
	"bytes"
	"encoding/binary"
	"math"
	"sync"

	"github.com/google/uuid"
)

// Writer builds packet bodies. All multi-byte values are big-endian.
type Writer struct {
	buf *bytes.Buffer
}

// writerPool reuses Writers across packets to keep encode allocations flat.
var writerPool = sync.Pool{
	New: func() any {
		return &Writer{
			buf: bytes.NewBuffer(make([]byte, 0, 512)),
		}
	},
}

// GetWriter returns a pooled Writer, already reset.
func GetWriter() *Writer {
	w := writerPool.Get().(*Writer)
	w.Reset()
	return w
}

// Put returns the Writer to the pool. The Writer (and any slice obtained
// from Bytes) must not be used afterwards.
func (w *Writer) Put() {
	writerPool.Put(w)
}

// NewWriter creates an unpooled writer with the given initial capacity.
func NewWriter(capacity int) *Writer {
	return &Writer{buf: bytes.NewBuffer(make([]byte, 0, capacity))}
}

// WriteByte writes a single byte.
func (w *Writer) WriteByte(b byte) {
	w.buf.WriteByte(b)
}

// WriteSByte writes a signed byte.
func (w *Writer) WriteSByte(v int8) {
	w.buf.WriteByte(byte(v))
}

// WriteBool writes a single-byte boolean.
func (w *Writer) WriteBool(v bool) {
	if v {
		w.buf.WriteByte(1)
	} else {
		w.buf.WriteByte(0)
	}
}

// WriteShort writes an int16.
func (w *Writer) WriteShort(v int16) {
	w.buf.WriteByte(byte(v >> 8))
	w.buf.WriteByte(byte(v))
}

// WriteUShort writes a uint16.
func (w *Writer) WriteUShort(v uint16) {
	w.WriteShort(int16(v))
}

// WriteInt writes an int32.
func (w *Writer) WriteInt(v int32) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], uint32(v))
	w.buf.Write(tmp[:])
}

// WriteLong writes an int64.
func (w *Writer) WriteLong(v int64) {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], uint64(v))
	w.buf.Write(tmp[:])
}

// WriteFloat writes an IEEE-754 float32.
func (w *Writer) WriteFloat(v float32) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], math.Float32bits(v))
	w.buf.Write(tmp[:])
}

// WriteDouble writes an IEEE-754 float64.
func (w *Writer) WriteDouble(v float64) {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], math.Float64bits(v))
	w.buf.Write(tmp[:])
}

// WriteVarInt writes a varint field.
func (w *Writer) WriteVarInt(v int32) {
	var tmp [MaxVarIntBytes]byte
	w.buf.Write(AppendVarInt(tmp[:0], v))
}

// WriteString writes a varint-prefixed UTF-8 string.
func (w *Writer) WriteString(s string) {
	w.WriteVarInt(int32(len(s)))
	w.buf.WriteString(s)
}

// WriteUUID writes 16 raw bytes.
func (w *Writer) WriteUUID(u uuid.UUID) {
	w.buf.Write(u[:])
}

// WriteBlockPos writes a packed-long position using the layout for version.
func (w *Writer) WriteBlockPos(p BlockPos, version int32) {
	w.WriteLong(packBlockPos(p, version))
}

// WriteBytes writes raw bytes.
func (w *Writer) WriteBytes(data []byte) {
	w.buf.Write(data)
}

// WriteByteArray writes a varint-prefixed byte array.
func (w *Writer) WriteByteArray(data []byte) {
	w.WriteVarInt(int32(len(data)))
	w.buf.Write(data)
}

// WriteByteArrayShort writes a short-prefixed byte array.
func (w *Writer) WriteByteArrayShort(data []byte) {
	w.WriteShort(int16(len(data)))
	w.buf.Write(data)
}

// WriteSlot writes a slot field, re-emitting any preserved NBT tail.
func (w *Writer) WriteSlot(s Slot) {
	if !s.Present {
		w.WriteShort(-1)
		return
	}
	w.WriteShort(s.ItemID)
	w.WriteByte(s.Count)
	w.WriteShort(s.Damage)
	w.buf.Write(s.NBT)
}

// Bytes returns the accumulated body. The slice is owned by the Writer.
func (w *Writer) Bytes() []byte {
	return w.buf.Bytes()
}

// Len returns the current body length.
func (w *Writer) Len() int {
	return w.buf.Len()
}

// Reset clears the buffer for reuse.
func (w *Writer) Reset() {
	w.buf.Reset()
}
