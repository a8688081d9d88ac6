package mem

import "fmt"

// IOHandler is what the bus delegates the I/O window to. The devices
// package provides the implementation; keeping the interface here avoids
// an import cycle.
type IOHandler interface {
	ReadWord(addr uint32) uint32
	WriteWord(addr uint32, v uint32)
	ReadByte(addr uint32) byte
	WriteByte(addr uint32, v byte)
}

// Bus routes byte and word accesses to ROM, RAM, VRAM or the I/O window,
// in that order. ROM rejects writes; the assembler bypasses that policy
// via RegionFor while loading.
type Bus struct {
	mmap Map
	rom  *Region
	ram  *Region
	vram *Region
	io   IOHandler
}

func NewBus(m Map) *Bus {
	return &Bus{
		mmap: m,
		rom:  NewRegion(RomStart, RomSize),
		ram:  NewRegion(m.RamStart, m.RamSize),
		vram: NewRegion(m.VramStart, VramSize),
	}
}

// AttachIO connects the I/O window to a device dispatcher. Until one is
// attached, I/O reads return 0 and writes are dropped.
func (b *Bus) AttachIO(h IOHandler) { b.io = h }

func (b *Bus) Rom() *Region  { return b.rom }
func (b *Bus) Ram() *Region  { return b.ram }
func (b *Bus) Vram() *Region { return b.vram }

func (b *Bus) ReadWord(addr uint32) (uint32, error) {
	switch {
	case b.rom.Contains(addr):
		return b.rom.ReadWord(addr)
	case b.ram.Contains(addr):
		return b.ram.ReadWord(addr)
	case b.vram.Contains(addr):
		return b.vram.ReadWord(addr)
	case b.mmap.InIo(addr):
		if b.io == nil {
			return 0, nil
		}
		return b.io.ReadWord(addr), nil
	}
	return 0, fmt.Errorf("%w: read at 0x%08X", ErrInvalidAddress, addr)
}

func (b *Bus) WriteWord(addr uint32, v uint32) error {
	switch {
	case b.rom.Contains(addr):
		return fmt.Errorf("%w: 0x%08X", ErrRomWrite, addr)
	case b.ram.Contains(addr):
		return b.ram.WriteWord(addr, v)
	case b.vram.Contains(addr):
		return b.vram.WriteWord(addr, v)
	case b.mmap.InIo(addr):
		if b.io != nil {
			b.io.WriteWord(addr, v)
		}
		return nil
	}
	return fmt.Errorf("%w: write at 0x%08X", ErrInvalidAddress, addr)
}

func (b *Bus) ReadByte(addr uint32) (byte, error) {
	switch {
	case b.rom.Contains(addr):
		return b.rom.ReadByte(addr)
	case b.ram.Contains(addr):
		return b.ram.ReadByte(addr)
	case b.vram.Contains(addr):
		return b.vram.ReadByte(addr)
	case b.mmap.InIo(addr):
		if b.io == nil {
			return 0, nil
		}
		return b.io.ReadByte(addr), nil
	}
	return 0, fmt.Errorf("%w: read at 0x%08X", ErrInvalidAddress, addr)
}

func (b *Bus) WriteByte(addr uint32, v byte) error {
	switch {
	case b.rom.Contains(addr):
		return fmt.Errorf("%w: 0x%08X", ErrRomWrite, addr)
	case b.ram.Contains(addr):
		return b.ram.WriteByte(addr, v)
	case b.vram.Contains(addr):
		return b.vram.WriteByte(addr, v)
	case b.mmap.InIo(addr):
		if b.io != nil {
			b.io.WriteByte(addr, v)
		}
		return nil
	}
	return fmt.Errorf("%w: write at 0x%08X", ErrInvalidAddress, addr)
}

// RegionFor resolves addr to the backing region, ROM included. This is
// the assembler's load path: it may write ROM before execution starts.
// The I/O window has no backing region and cannot hold code or data.
func (b *Bus) RegionFor(addr uint32) (*Region, error) {
	switch {
	case b.rom.Contains(addr):
		return b.rom, nil
	case b.ram.Contains(addr):
		return b.ram, nil
	case b.vram.Contains(addr):
		return b.vram, nil
	}
	return nil, fmt.Errorf("%w: 0x%08X", ErrInvalidAddress, addr)
}
