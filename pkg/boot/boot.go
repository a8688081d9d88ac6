// Package boot embeds the stock boot ROM and demo program sources used
// by the frontends.
package boot

import (
	_ "embed"
	"strings"

	"neptune/pkg/asm"
	"neptune/pkg/cpu"
	"neptune/pkg/mem"
)

//go:embed boot.rom.asm
var RomSource string

//go:embed demo.asm
var DemoSource string

// Lines splits an assembly source into the line slice the assembler
// consumes.
func Lines(src string) []string {
	return strings.Split(strings.ReplaceAll(src, "\r\n", "\n"), "\n")
}

// LoadRom assembles the stock boot ROM into the syscall-code area.
func LoadRom(c *cpu.CPU) error {
	return asm.New(c).AssembleAndLoad(Lines(RomSource), mem.SyscallCodeStart)
}
