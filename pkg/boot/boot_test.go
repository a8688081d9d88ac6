package boot

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"neptune/pkg/asm"
	"neptune/pkg/cpu"
	"neptune/pkg/devices"
	"neptune/pkg/mem"
)

// buildMachine wires a default-layout VM with the standard device set,
// console-out captured into a buffer.
func buildMachine(t *testing.T) (*cpu.CPU, *bytes.Buffer) {
	t.Helper()
	m := mem.DefaultMap()
	vm := cpu.New(m, cpu.NewSet(), 0)
	iobus := devices.NewIOBus(m.IoStart, mem.IoSize)
	var out bytes.Buffer
	tm := devices.NewTimer()
	t.Cleanup(tm.Close)
	for _, d := range []devices.Device{devices.NewKeyboard(), devices.NewConsole(&out), tm} {
		require.NoError(t, iobus.Register(d))
	}
	vm.Bus().AttachIO(iobus)
	require.NoError(t, LoadRom(vm))
	return vm, &out
}

func TestVramInfoSyscall(t *testing.T) {
	assert := assert.New(t)
	vm, _ := buildMachine(t)
	m := vm.MemoryMap()

	require.NoError(t, asm.New(vm).AssembleAndLoad([]string{
		"MOVI r0, 1",
		"SYSCALL",
		"HLT",
	}, m.RamStart))
	require.NoError(t, vm.Run())

	v1, _ := vm.Register(1)
	v2, _ := vm.Register(2)
	assert.Equal(m.VramStart, v1)
	assert.Equal(uint32(mem.VramSize), v2)
}

func TestPutCharSyscall(t *testing.T) {
	vm, out := buildMachine(t)

	require.NoError(t, asm.New(vm).AssembleAndLoad([]string{
		"MOVI r1, 0x21", // '!'
		"MOVI r0, 2",
		"SYSCALL",
		"HLT",
	}, vm.MemoryMap().RamStart))
	require.NoError(t, vm.Run())
	assert.Equal(t, "!", out.String())
}

func TestDemoProgram(t *testing.T) {
	assert := assert.New(t)
	vm, out := buildMachine(t)
	m := vm.MemoryMap()

	require.NoError(t, asm.New(vm).AssembleAndLoad(Lines(DemoSource), m.RamStart))
	require.NoError(t, vm.Run())
	assert.True(vm.Halted())

	assert.Equal("NEPTUNE\n", out.String())

	// The fill loop painted every pixel; the base color carries an
	// opaque alpha byte.
	fb := vm.FramebufferRGBA()
	assert.Equal(byte(0x1D), fb[0])
	assert.Equal(byte(0xFF), fb[3])
	last := (mem.VramWidth*mem.VramHeight - 1) * 4
	assert.Equal(byte(0xFF), fb[last+3])

	// frame_count lives right after the palette words in the data
	// section.
	v, err := vm.Bus().ReadWord(m.RamStart + 16)
	require.NoError(t, err)
	assert.Equal(uint32(1), v)
}
