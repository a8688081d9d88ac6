// Package cpu implements the Neptune execution core: the register file
// with its PC/SP/HP aliases, condition flags, the instruction set and
// the fetch-decode-execute loop.
package cpu

import (
	"fmt"

	"neptune/pkg/mem"
)

// DefaultRegCount is the size of the general-purpose register file.
const DefaultRegCount = 32

// Register indices 252-254 alias the program counter, stack pointer and
// heap pointer; reads and writes map through transparently.
const (
	AliasPC = 252
	AliasSP = 253
	AliasHP = 254
)

// CPU owns the register file, pointers, flags and halt state, and drives
// instructions over the memory bus. A single host thread calls Step.
type CPU struct {
	regs   []uint32
	pc     uint32
	sp     uint32
	hp     uint32
	halted bool
	flags  Flags

	mmap mem.Map
	bus  *mem.Bus
	set  *Set
}

// New builds a CPU over a fresh memory bus for the given map. A
// regCount of 0 uses DefaultRegCount; the file is capped below the
// alias indices so 252-254 always reach PC/SP/HP.
func New(m mem.Map, set *Set, regCount int) *CPU {
	if regCount <= 0 {
		regCount = DefaultRegCount
	}
	if regCount > AliasPC {
		regCount = AliasPC
	}
	return &CPU{
		regs: make([]uint32, regCount),
		pc:   m.ProgramStart,
		sp:   m.StackStart,
		hp:   m.HeapStart,
		mmap: m,
		bus:  mem.NewBus(m),
		set:  set,
	}
}

func (c *CPU) Bus() *mem.Bus        { return c.bus }
func (c *CPU) MemoryMap() mem.Map   { return c.mmap }
func (c *CPU) InstructionSet() *Set { return c.set }
func (c *CPU) PC() uint32           { return c.pc }
func (c *CPU) SP() uint32           { return c.sp }
func (c *CPU) HP() uint32           { return c.hp }
func (c *CPU) SetPC(addr uint32)    { c.pc = addr }
func (c *CPU) Halted() bool         { return c.halted }
func (c *CPU) Halt()                { c.halted = true }

// Flags returns a copy of the condition codes.
func (c *CPU) Flags() Flags { return c.flags }

// Registers returns a copy of the general-purpose register file.
func (c *CPU) Registers() []uint32 {
	out := make([]uint32, len(c.regs))
	copy(out, c.regs)
	return out
}

// Register reads register index. The PC/SP/HP aliases take precedence
// over the general-purpose file regardless of its size.
func (c *CPU) Register(index int) (uint32, error) {
	switch {
	case index == AliasPC:
		return c.pc, nil
	case index == AliasSP:
		return c.sp, nil
	case index == AliasHP:
		return c.hp, nil
	case index >= 0 && index < len(c.regs):
		return c.regs[index], nil
	}
	return 0, fmt.Errorf("%w: %d", ErrInvalidRegister, index)
}

// SetRegister writes register index, honoring the PC/SP/HP aliases.
func (c *CPU) SetRegister(index int, v uint32) error {
	switch {
	case index == AliasPC:
		c.pc = v
	case index == AliasSP:
		c.sp = v
	case index == AliasHP:
		c.hp = v
	case index >= 0 && index < len(c.regs):
		c.regs[index] = v
	default:
		return fmt.Errorf("%w: %d", ErrInvalidRegister, index)
	}
	return nil
}

// Jump redirects the program counter. Bounds are enforced by the bus on
// the next fetch.
func (c *CPU) Jump(addr uint32) { c.pc = addr }

// Push predecrements SP by a word and stores v. The collision check
// runs after the decrement, before the store.
func (c *CPU) Push(v uint32) error {
	c.sp -= 4
	if c.hp >= c.sp {
		return fmt.Errorf("%w: SP 0x%08X, HP 0x%08X", ErrHeapStackCollision, c.sp, c.hp)
	}
	return c.bus.WriteWord(c.sp, v)
}

// Pop loads the word at SP and postincrements.
func (c *CPU) Pop() (uint32, error) {
	v, err := c.bus.ReadWord(c.sp)
	if err != nil {
		return 0, err
	}
	c.sp += 4
	return v, nil
}

// AllocateHeap bumps HP by size rounded up to a word multiple and
// returns the allocation address.
func (c *CPU) AllocateHeap(size uint32) (uint32, error) {
	aligned := (size + 3) &^ 3
	if c.hp+aligned >= c.sp {
		return 0, fmt.Errorf("%w: HP 0x%08X + %d, SP 0x%08X", ErrHeapStackCollision, c.hp, aligned, c.sp)
	}
	addr := c.hp
	c.hp += aligned
	return addr, nil
}

// Step fetches, decodes and executes one instruction. Instructions that
// alter PC supply the new value themselves; everything else falls
// through to the word after the encoding. Errors are fatal to the step
// and left to the host.
func (c *CPU) Step() error {
	if c.halted {
		return nil
	}
	w0, err := c.bus.ReadWord(c.pc)
	if err != nil {
		return err
	}
	c.pc += 4
	ins, err := c.set.Lookup(w0)
	if err != nil {
		return fmt.Errorf("at 0x%08X: %w", c.pc-4, err)
	}
	var buf [4]uint32
	words := buf[:ins.Words]
	words[0] = w0
	for i := 1; i < ins.Words; i++ {
		w, err := c.bus.ReadWord(c.pc)
		if err != nil {
			return err
		}
		c.pc += 4
		words[i] = w
	}
	return ins.Exec(c, words)
}

// Run steps until the CPU halts or a step fails.
func (c *CPU) Run() error {
	for !c.halted {
		if err := c.Step(); err != nil {
			return err
		}
	}
	return nil
}

// syscall dispatches through the ROM-resident table: slot r0 holds the
// handler address, 0 meaning unimplemented. The handler returns by RET.
func (c *CPU) syscall() error {
	n, err := c.Register(0)
	if err != nil {
		return err
	}
	entry := c.mmap.SyscallEntry(n)
	if n >= mem.SyscallEntryCount || !c.mmap.InRom(entry) {
		return fmt.Errorf("%w: %d", ErrSyscallOutOfRange, n)
	}
	target, err := c.bus.ReadWord(entry)
	if err != nil {
		return err
	}
	if target == 0 {
		return fmt.Errorf("%w: %d", ErrSyscallNotImplemented, n)
	}
	if !c.mmap.Contains(target) {
		return fmt.Errorf("%w: syscall %d -> 0x%08X", ErrSyscallInvalidTarget, n, target)
	}
	if err := c.Push(c.pc); err != nil {
		return err
	}
	c.pc = target
	return nil
}
