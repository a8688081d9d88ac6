package mem

import (
	"encoding/binary"
	"fmt"
)

// Region is a byte-array backing store covering [base, base+size).
// Word accesses are little-endian. The region itself enforces no
// alignment; callers address it byte-granular.
type Region struct {
	base uint32
	data []byte
}

func NewRegion(base, size uint32) *Region {
	return &Region{base: base, data: make([]byte, size)}
}

func (r *Region) Base() uint32 { return r.base }
func (r *Region) Size() uint32 { return uint32(len(r.data)) }

func (r *Region) Contains(addr uint32) bool {
	return addr >= r.base && addr-r.base < uint32(len(r.data))
}

// offset translates addr into an index, checking that n bytes starting
// there stay inside the region.
func (r *Region) offset(addr, n uint32) (uint32, error) {
	off := addr - r.base
	if addr < r.base || off >= uint32(len(r.data)) || uint32(len(r.data))-off < n {
		return 0, fmt.Errorf("%w: 0x%08X", ErrAddressOutOfRange, addr)
	}
	return off, nil
}

func (r *Region) ReadByte(addr uint32) (byte, error) {
	off, err := r.offset(addr, 1)
	if err != nil {
		return 0, err
	}
	return r.data[off], nil
}

func (r *Region) WriteByte(addr uint32, v byte) error {
	off, err := r.offset(addr, 1)
	if err != nil {
		return err
	}
	r.data[off] = v
	return nil
}

func (r *Region) ReadWord(addr uint32) (uint32, error) {
	off, err := r.offset(addr, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(r.data[off:]), nil
}

func (r *Region) WriteWord(addr uint32, v uint32) error {
	off, err := r.offset(addr, 4)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(r.data[off:], v)
	return nil
}

// Snapshot copies the region contents into dst, which must be at least
// Size() bytes long. Used by renderers that poll VRAM between steps.
func (r *Region) Snapshot(dst []byte) {
	copy(dst, r.data)
}
