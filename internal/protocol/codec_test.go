package protocol

import (
	"math/rand"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReaderWriter_Primitives_RoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		wantByte := byte(rng.Uint32())
		wantBool := rng.Uint32()%2 == 0
		wantShort := int16(rng.Uint32())
		wantUShort := uint16(rng.Uint32())
		wantInt := int32(rng.Uint32())
		wantLong := int64(rng.Uint64())
		wantFloat := rng.Float32()
		wantDouble := rng.Float64()
		wantVarInt := int32(rng.Uint32())
		wantString := uuid.New().String()
		wantUUID := uuid.New()

		w := NewWriter(128)
		w.WriteByte(wantByte)
		w.WriteBool(wantBool)
		w.WriteShort(wantShort)
		w.WriteUShort(wantUShort)
		w.WriteInt(wantInt)
		w.WriteLong(wantLong)
		w.WriteFloat(wantFloat)
		w.WriteDouble(wantDouble)
		w.WriteVarInt(wantVarInt)
		w.WriteString(wantString)
		w.WriteUUID(wantUUID)

		r := NewReader(w.Bytes())
		gotByte, err := r.ReadByte()
		require.NoError(t, err)
		gotBool, err := r.ReadBool()
		require.NoError(t, err)
		gotShort, err := r.ReadShort()
		require.NoError(t, err)
		gotUShort, err := r.ReadUShort()
		require.NoError(t, err)
		gotInt, err := r.ReadInt()
		require.NoError(t, err)
		gotLong, err := r.ReadLong()
		require.NoError(t, err)
		gotFloat, err := r.ReadFloat()
		require.NoError(t, err)
		gotDouble, err := r.ReadDouble()
		require.NoError(t, err)
		gotVarInt, err := r.ReadVarInt()
		require.NoError(t, err)
		gotString, err := r.ReadString()
		require.NoError(t, err)
		gotUUID, err := r.ReadUUID()
		require.NoError(t, err)

		require.Equal(t, wantByte, gotByte)
		require.Equal(t, wantBool, gotBool)
		require.Equal(t, wantShort, gotShort)
		require.Equal(t, wantUShort, gotUShort)
		require.Equal(t, wantInt, gotInt)
		require.Equal(t, wantLong, gotLong)
		require.Equal(t, wantFloat, gotFloat)
		require.Equal(t, wantDouble, gotDouble)
		require.Equal(t, wantVarInt, gotVarInt)
		require.Equal(t, wantString, gotString)
		require.Equal(t, wantUUID, gotUUID)
		require.Equal(t, 0, r.Remaining())
	}
}

func TestBlockPos_RoundTrip_BothLayouts(t *testing.T) {
	positions := []BlockPos{
		{0, 0, 0},
		{100, 64, -100},
		{-30000000 + 1, 255, 29999999},
		{1, -2048, -1},
	}
	for _, version := range []int32{Version18, EpochPositionXZY} {
		for _, p := range positions {
			w := NewWriter(8)
			w.WriteBlockPos(p, version)
			r := NewReader(w.Bytes())
			got, err := r.ReadBlockPos(version)
			require.NoError(t, err)
			assert.Equal(t, p, got, "version %d", version)
		}
	}
}

func TestBlockPos_LayoutsDiffer(t *testing.T) {
	p := BlockPos{X: 1, Y: 2, Z: 3}
	w18 := NewWriter(8)
	w18.WriteBlockPos(p, Version18)
	wNew := NewWriter(8)
	wNew.WriteBlockPos(p, EpochPositionXZY)
	assert.NotEqual(t, w18.Bytes(), wNew.Bytes())
}

func TestSlot_RoundTrip(t *testing.T) {
	slots := []Slot{
		{},
		{Present: true, ItemID: 276, Count: 1, Damage: 10},
		{Present: true, ItemID: 1, Count: 64, Damage: 0, NBT: []byte{0x0A, 0x00, 0x00, 0x00}},
	}
	for _, s := range slots {
		w := NewWriter(32)
		w.WriteSlot(s)
		r := NewReader(w.Bytes())
		got, err := r.ReadSlot()
		require.NoError(t, err)
		if s.NBT == nil {
			// Empty tails come back as empty, not nil.
			got.NBT = nil
		}
		assert.Equal(t, s, got)
	}
}

func TestReader_ByteArrays(t *testing.T) {
	w := NewWriter(64)
	w.WriteByteArray([]byte{1, 2, 3})
	w.WriteByteArrayShort([]byte{4, 5})
	w.WriteBytes([]byte{6, 7, 8})

	r := NewReader(w.Bytes())
	a, err := r.ReadByteArray()
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, a)
	b, err := r.ReadByteArrayShort()
	require.NoError(t, err)
	assert.Equal(t, []byte{4, 5}, b)
	rest := r.ReadRest()
	assert.Equal(t, []byte{6, 7, 8}, rest)
	assert.Equal(t, 0, r.Remaining())
}

func TestReader_StringTooLong(t *testing.T) {
	w := NewWriter(8)
	w.WriteVarInt(MaxStringLength + 1)
	r := NewReader(w.Bytes())
	_, err := r.ReadString()
	assert.Error(t, err)
}

func TestReader_Truncated(t *testing.T) {
	r := NewReader([]byte{0x00, 0x01})
	_, err := r.ReadInt()
	assert.Error(t, err)
}
