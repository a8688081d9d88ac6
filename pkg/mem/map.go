package mem

import (
	"fmt"
	"strings"
)

// Fixed parts of the physical address space. RAM size and heap placement
// vary between layouts; everything else is anchored to them.
const (
	RomStart = 0x00000000
	RomSize  = 8 * 1024

	SyscallTableStart = RomStart + 0x10
	SyscallEntryCount = 64
	SyscallTableSize  = SyscallEntryCount * 4
	SyscallCodeStart  = SyscallTableStart + SyscallTableSize
	SyscallCodeSize   = 2 * 1024

	VramWidth         = 128
	VramHeight        = 128
	VramBytesPerPixel = 4 // RGBA32
	VramSize          = VramWidth * VramHeight * VramBytesPerPixel

	IoSize = 4 * 1024
)

// Map describes the statically partitioned address space: ROM with the
// syscall table, RAM hosting program/heap/stack, the RGBA32 framebuffer
// and the memory-mapped I/O window.
type Map struct {
	RamStart uint32
	RamSize  uint32

	VramStart uint32
	IoStart   uint32

	HeapStart    uint32
	StackStart   uint32
	ProgramStart uint32
}

// layout derives a Map from the two knobs that differ between variants:
// how big RAM is and how far into RAM the heap begins.
func layout(ramSize, heapOffset uint32) Map {
	ramStart := uint32(RomStart + RomSize)
	vramStart := ramStart + ramSize
	return Map{
		RamStart:     ramStart,
		RamSize:      ramSize,
		VramStart:    vramStart,
		IoStart:      vramStart + VramSize,
		HeapStart:    ramStart + heapOffset,
		StackStart:   ramStart + ramSize - 4,
		ProgramStart: ramStart,
	}
}

// DefaultMap is the canonical layout: 128 KB of RAM with the heap 8 KB in.
func DefaultMap() Map {
	return layout(128*1024, 8*1024)
}

// LargeMap is the layout the original boot ROM was written against:
// 1 MB of RAM with the heap 512 KB in.
func LargeMap() Map {
	return layout(1024*1024, 512*1024)
}

func (m Map) TotalSize() uint32 { return m.IoStart + IoSize }

func (m Map) HeapSize() uint32 { return m.StackStart - m.HeapStart }

// Contains reports whether addr falls inside any mapped region.
func (m Map) Contains(addr uint32) bool {
	return addr < m.TotalSize()
}

func (m Map) InRom(addr uint32) bool  { return addr < RomStart+RomSize }
func (m Map) InRam(addr uint32) bool  { return addr >= m.RamStart && addr < m.RamStart+m.RamSize }
func (m Map) InVram(addr uint32) bool { return addr >= m.VramStart && addr < m.VramStart+VramSize }
func (m Map) InIo(addr uint32) bool   { return addr >= m.IoStart && addr < m.IoStart+IoSize }

// PixelAddress returns the VRAM address of pixel (x, y), row-major,
// 4 bytes per pixel in R, G, B, A order.
func (m Map) PixelAddress(x, y int) uint32 {
	return m.VramStart + uint32(y*VramWidth+x)*VramBytesPerPixel
}

// SyscallEntry returns the ROM address of slot n in the syscall table.
func (m Map) SyscallEntry(n uint32) uint32 {
	return SyscallTableStart + n*4
}

// Describe renders the memory layout as a table for external tooling and
// the frontends' -layout flag.
func (m Map) Describe() string {
	var b strings.Builder
	row := func(name string, start, end, size uint32, desc string) {
		fmt.Fprintf(&b, "%-18s 0x%08X  0x%08X  %8s  %s\n", name, start, end, formatSize(size), desc)
	}
	b.WriteString("NEPTUNE MEMORY MAP\n")
	fmt.Fprintf(&b, "%-18s %-10s  %-10s  %8s  %s\n", "REGION", "START", "END", "SIZE", "")
	row("ROM", RomStart, RomStart+RomSize-1, RomSize, "boot ROM")
	row("  boot code", RomStart, SyscallTableStart-1, SyscallTableStart-RomStart, "")
	row("  syscall table", SyscallTableStart, SyscallTableStart+SyscallTableSize-1, SyscallTableSize,
		fmt.Sprintf("%d entries", SyscallEntryCount))
	row("  syscall code", SyscallCodeStart, SyscallCodeStart+SyscallCodeSize-1, SyscallCodeSize, "handlers")
	row("RAM", m.RamStart, m.RamStart+m.RamSize-1, m.RamSize, "")
	row("  program", m.RamStart, m.HeapStart-1, m.HeapStart-m.RamStart, "loaded at RAM start")
	row("  heap", m.HeapStart, m.StackStart-1, m.HeapSize(), "grows up")
	row("  stack", m.StackStart, m.RamStart+m.RamSize-1, m.RamStart+m.RamSize-m.StackStart, "grows down")
	row("VRAM", m.VramStart, m.VramStart+VramSize-1, VramSize,
		fmt.Sprintf("%dx%d RGBA32", VramWidth, VramHeight))
	row("I/O", m.IoStart, m.IoStart+IoSize-1, IoSize, "memory-mapped devices")
	return b.String()
}

func formatSize(bytes uint32) string {
	switch {
	case bytes >= 1024*1024 && bytes%(1024*1024) == 0:
		return fmt.Sprintf("%dMB", bytes/(1024*1024))
	case bytes >= 1024 && bytes%1024 == 0:
		return fmt.Sprintf("%dKB", bytes/1024)
	default:
		return fmt.Sprintf("%dB", bytes)
	}
}
