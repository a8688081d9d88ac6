package mem

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegionWordRoundTrip(t *testing.T) {
	assert := assert.New(t)
	r := NewRegion(0x1000, 64)

	require.NoError(t, r.WriteWord(0x1000, 0xDEADBEEF))
	v, err := r.ReadWord(0x1000)
	require.NoError(t, err)
	assert.Equal(uint32(0xDEADBEEF), v)

	// Words are little-endian byte sequences.
	b, err := r.ReadByte(0x1000)
	require.NoError(t, err)
	assert.Equal(byte(0xEF), b)
	b, err = r.ReadByte(0x1003)
	require.NoError(t, err)
	assert.Equal(byte(0xDE), b)
}

func TestRegionByteRoundTrip(t *testing.T) {
	assert := assert.New(t)
	r := NewRegion(0x200, 16)

	require.NoError(t, r.WriteByte(0x205, 0x7F))
	v, err := r.ReadByte(0x205)
	require.NoError(t, err)
	assert.Equal(byte(0x7F), v)
}

func TestRegionBounds(t *testing.T) {
	assert := assert.New(t)
	r := NewRegion(0x100, 16)

	_, err := r.ReadByte(0xFF)
	assert.ErrorIs(err, ErrAddressOutOfRange)
	_, err = r.ReadByte(0x110)
	assert.ErrorIs(err, ErrAddressOutOfRange)
	assert.ErrorIs(r.WriteWord(0x10E, 1), ErrAddressOutOfRange) // word straddles the end
	_, err = r.ReadWord(0x10D)
	assert.ErrorIs(err, ErrAddressOutOfRange)

	// Unaligned word access inside bounds is fine at the region layer.
	require.NoError(t, r.WriteWord(0x101, 0x01020304))
	v, err := r.ReadWord(0x101)
	require.NoError(t, err)
	assert.Equal(uint32(0x01020304), v)
}

func TestRegionSnapshot(t *testing.T) {
	r := NewRegion(0, 8)
	require.NoError(t, r.WriteWord(0, 0x11223344))
	dst := make([]byte, 8)
	r.Snapshot(dst)
	assert.Equal(t, []byte{0x44, 0x33, 0x22, 0x11, 0, 0, 0, 0}, dst)
}
