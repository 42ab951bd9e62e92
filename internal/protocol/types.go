package protocol

// BlockPos is a block coordinate triple carried on the wire as a packed long.
type BlockPos struct {
	X, Y, Z int32
}

// packBlockPos encodes p using the layout for the given protocol version.
// The classic layout is x(26)|y(12)|z(26); versions at or past
// EpochPositionXZY moved Y into the low 12 bits: x(26)|z(26)|y(12).
func packBlockPos(p BlockPos, version int32) int64 {
	x := uint64(p.X) & 0x3FFFFFF
	z := uint64(p.Z) & 0x3FFFFFF
	if version >= EpochPositionXZY {
		y := uint64(p.Y) & 0xFFF
		return int64(x<<38 | z<<12 | y)
	}
	y := uint64(p.Y) & 0xFFF
	return int64(x<<38 | y<<26 | z)
}

// unpackBlockPos decodes a packed long using the layout for version.
func unpackBlockPos(v int64, version int32) BlockPos {
	u := uint64(v)
	x := signExtend26(int32(u >> 38 & 0x3FFFFFF))
	if version >= EpochPositionXZY {
		return BlockPos{
			X: x,
			Y: signExtend12(int32(u & 0xFFF)),
			Z: signExtend26(int32(u >> 12 & 0x3FFFFFF)),
		}
	}
	return BlockPos{
		X: x,
		Y: signExtend12(int32(u >> 26 & 0xFFF)),
		Z: signExtend26(int32(u & 0x3FFFFFF)),
	}
}

func signExtend26(v int32) int32 {
	if v >= 1<<25 {
		return v - 1<<26
	}
	return v
}

func signExtend12(v int32) int32 {
	if v >= 1<<11 {
		return v - 1<<12
	}
	return v
}

// Slot is one inventory slot as the proxy sees it. The proxy only needs the
// item identity; any NBT payload (and any layout tail it does not understand)
// is kept verbatim in NBT so the slot re-emits byte-identical.
type Slot struct {
	Present bool
	ItemID  int16
	Count   byte
	Damage  int16
	NBT     []byte
}
