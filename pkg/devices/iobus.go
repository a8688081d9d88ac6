package devices

import (
	"fmt"
	"sort"
	"strings"
)

// IOBus owns the I/O window and routes addresses to registered devices.
// Devices are placed sequentially from the window base; the slice stays
// address-ordered so lookups can binary-search. Reads outside any device
// return 0, writes are dropped.
type IOBus struct {
	base       uint32
	size       uint32
	nextOffset uint32
	devices    []Device
}

func NewIOBus(base, size uint32) *IOBus {
	return &IOBus{base: base, size: size}
}

func (b *IOBus) Base() uint32 { return b.base }
func (b *IOBus) Size() uint32 { return b.size }

// Register places dev at the next free offset in the window.
func (b *IOBus) Register(dev Device) error {
	if dev.Size()%4 != 0 {
		return fmt.Errorf("device %q size %d is not a multiple of 4", dev.Description(), dev.Size())
	}
	if b.nextOffset+dev.Size() > b.size {
		return fmt.Errorf("device %q does not fit in the I/O window", dev.Description())
	}
	dev.SetBase(b.base + b.nextOffset)
	b.nextOffset += dev.Size()
	b.devices = append(b.devices, dev)
	return nil
}

// find locates the device claiming addr, or nil.
func (b *IOBus) find(addr uint32) Device {
	i := sort.Search(len(b.devices), func(i int) bool {
		d := b.devices[i]
		return addr < d.Base()+d.Size()
	})
	if i < len(b.devices) && b.devices[i].Handles(addr) {
		return b.devices[i]
	}
	return nil
}

func (b *IOBus) ReadWord(addr uint32) uint32 {
	if d := b.find(addr); d != nil {
		return d.ReadWord(addr)
	}
	return 0
}

func (b *IOBus) WriteWord(addr uint32, v uint32) {
	if d := b.find(addr); d != nil {
		d.WriteWord(addr, v)
	}
}

func (b *IOBus) ReadByte(addr uint32) byte {
	if d := b.find(addr); d != nil {
		return d.ReadByte(addr)
	}
	return 0
}

func (b *IOBus) WriteByte(addr uint32, v byte) {
	if d := b.find(addr); d != nil {
		d.WriteByte(addr, v)
	}
}

// Devices returns the registered devices in address order.
func (b *IOBus) Devices() []Device {
	out := make([]Device, len(b.devices))
	copy(out, b.devices)
	return out
}

// Describe renders the device map for external tooling.
func (b *IOBus) Describe() string {
	var sb strings.Builder
	sb.WriteString("IO DEVICE MAP\n")
	if len(b.devices) == 0 {
		sb.WriteString("no devices registered\n")
	}
	for _, d := range b.devices {
		fmt.Fprintf(&sb, "%-24s 0x%08X  0x%08X  %3dB\n",
			d.Description(), d.Base(), d.Base()+d.Size()-1, d.Size())
		names := d.OffsetNames()
		for off := uint32(0); off < d.Size(); off += 4 {
			if name, ok := names[off]; ok {
				fmt.Fprintf(&sb, "  +0x%02X (0x%08X) %s\n", off, d.Base()+off, name)
			}
		}
	}
	fmt.Fprintf(&sb, "total IO range: 0x%08X - 0x%08X\n", b.base, b.base+b.size-1)
	return sb.String()
}
