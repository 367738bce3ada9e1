package bitbuf

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBitsRoundTrip(t *testing.T) {
	b := New(0)
	b.WriteBits(0x1a, 5)
	b.WriteBits(0x3ff, 10)
	b.WriteBits(1, 1)
	b.WriteBits(0x12345678, 32)

	require.Equal(t, 48, b.LengthBits())

	require.EqualValues(t, 0x1a, b.ReadBits(5))
	require.EqualValues(t, 0x3ff, b.ReadBits(10))
	require.EqualValues(t, 1, b.ReadBits(1))
	require.EqualValues(t, 0x12345678, b.ReadBits(32))
}

func TestPrimitiveRoundTrip(t *testing.T) {
	b := New(0)
	b.WriteBool(true)
	b.WriteByte(200)
	b.WriteUInt16(60000)
	b.WriteInt16(-12345)
	b.WriteUInt32(4000000000)
	b.WriteInt32(-2000000000)
	b.WriteUInt64(18000000000000000000)
	b.WriteInt64(-9000000000000000000)
	b.WriteFloat32(3.14159)
	b.WriteFloat64(2.718281828459045)

	require.Equal(t, true, b.ReadBool())
	require.EqualValues(t, 200, b.ReadByte())
	require.EqualValues(t, 60000, b.ReadUInt16())
	require.EqualValues(t, -12345, b.ReadInt16())
	require.EqualValues(t, 4000000000, b.ReadUInt32())
	require.EqualValues(t, -2000000000, b.ReadInt32())
	require.EqualValues(t, uint64(18000000000000000000), b.ReadUInt64())
	require.EqualValues(t, -9000000000000000000, b.ReadInt64())
	require.InDelta(t, 3.14159, b.ReadFloat32(), 1e-5)
	require.InDelta(t, 2.718281828459045, b.ReadFloat64(), 1e-12)

	require.Equal(t, 0, b.BitsAvailable())
}

func TestVarUInt(t *testing.T) {
	cases := []uint32{0, 1, 127, 128, 300, 16384, math.MaxUint32}
	for _, v := range cases {
		b := New(0)
		b.WriteVarUInt32(v)
		require.EqualValues(t, v, b.ReadVarUInt32(), "value %d", v)
	}
}

func TestVarInt(t *testing.T) {
	cases := []int32{0, -1, 1, -128, 128, math.MinInt32, math.MaxInt32}
	for _, v := range cases {
		b := New(0)
		b.WriteVarInt32(v)
		require.EqualValues(t, v, b.ReadVarInt32(), "value %d", v)
	}
}

func TestByteStringAndString(t *testing.T) {
	b := New(0)
	b.WriteByteString([]byte{1, 2, 3, 4, 5})
	b.WriteString("hello, 世界")
	b.WriteBytes([]byte{0xff, 0x00})

	require.Equal(t, []byte{1, 2, 3, 4, 5}, b.ReadByteString())
	require.Equal(t, "hello, 世界", b.ReadString())
	require.Equal(t, []byte{0xff, 0x00}, b.ReadBytes(2))
}

func TestRangedInteger(t *testing.T) {
	b := New(0)
	b.WriteRangedInteger(-10, 500, -10)
	b.WriteRangedInteger(-10, 500, 500)
	b.WriteRangedInteger(-10, 500, 17)
	b.WriteRangedInteger(0, 0, 0)

	require.EqualValues(t, -10, b.ReadRangedInteger(-10, 500))
	require.EqualValues(t, 500, b.ReadRangedInteger(-10, 500))
	require.EqualValues(t, 17, b.ReadRangedInteger(-10, 500))
	require.EqualValues(t, 0, b.ReadRangedInteger(0, 0))
}

func TestRangedSingle(t *testing.T) {
	b := New(0)
	b.WriteRangedSingle(0, 1, 0.01, 0.5)

	require.InDelta(t, 0.5, b.ReadRangedSingle(0, 1, 0.01), 0.01)
}

func TestLengthBytesAndBytes(t *testing.T) {
	b := New(0)
	b.WriteBits(0x7, 3)
	require.Equal(t, 1, b.LengthBytes())
	require.Len(t, b.Bytes(), 1)

	b.WriteBits(0, 5)
	b.WriteByte(1)
	require.Equal(t, 2, b.LengthBytes())
}

func TestFromBytes(t *testing.T) {
	orig := New(0)
	orig.WriteUInt32(0xdeadbeef)
	orig.WriteString("round trip")

	dup := FromBytes(orig.Bytes())
	require.EqualValues(t, 0xdeadbeef, dup.ReadUInt32())
	require.Equal(t, "round trip", dup.ReadString())
}

func TestResetReuse(t *testing.T) {
	b := New(0)
	b.WriteUInt32(1)
	b.Reset()
	require.Equal(t, 0, b.LengthBits())
	require.Equal(t, 0, b.ReadPosition())

	b.WriteUInt16(42)
	require.EqualValues(t, 42, b.ReadUInt16())
}

func TestPeekBitsDoesNotAdvance(t *testing.T) {
	b := New(0)
	b.WriteByte(0x5a)

	require.EqualValues(t, 0x5a, b.PeekBits(8))
	require.Equal(t, 0, b.ReadPosition())
	require.EqualValues(t, 0x5a, b.ReadBits(8))
}
