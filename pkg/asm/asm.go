// Package asm implements the two-pass Neptune assembler: macro
// expansion, data-section layout, label and constant resolution,
// instruction encoding and syscall-table population.
package asm

import (
	"fmt"
	"strconv"
	"strings"

	"neptune/pkg/cpu"
	"neptune/pkg/mem"
)

// Assembler writes program words into memory before execution starts.
// ROM is written through a direct region handle, bypassing the bus's
// read-only policy, which only binds executing code.
type Assembler struct {
	c    *cpu.CPU
	set  *cpu.Set
	mmap mem.Map
	bus  *mem.Bus

	labels       map[string]uint32
	consts       map[string]uint32
	syscalls     map[uint32]string
	syscallOrder []uint32
}

func New(c *cpu.CPU) *Assembler {
	return &Assembler{
		c:    c,
		set:  c.InstructionSet(),
		mmap: c.MemoryMap(),
		bus:  c.Bus(),
	}
}

// codeLine is an instruction whose address was fixed in pass one.
type codeLine struct {
	no   int
	addr uint32
	ins  *cpu.Instruction
	op   byte
	args string
}

// AssembleAndLoad assembles lines and writes the encoded words into the
// region owning base. Loading into RAM sets the entry point: the `main`
// label if present, the computed code start otherwise.
func (a *Assembler) AssembleAndLoad(lines []string, base uint32) error {
	a.labels = make(map[string]uint32)
	a.consts = make(map[string]uint32)
	a.syscalls = make(map[uint32]string)
	a.syscallOrder = nil

	var src []srcLine
	for i, raw := range lines {
		if text := cleanLine(raw); text != "" {
			src = append(src, srcLine{no: i + 1, text: text})
		}
	}

	macros, rest, err := collectMacros(src)
	if err != nil {
		return err
	}
	expanded, err := expandMacros(rest, macros, 0)
	if err != nil {
		return err
	}

	dataEnd, hasData, code, err := a.layoutData(expanded)
	if err != nil {
		return err
	}

	codeStart := base
	if a.mmap.InRam(base) && hasData {
		codeStart = dataEnd + 16
	}

	parsed, err := a.passOne(code, codeStart)
	if err != nil {
		return err
	}
	if err := a.passTwo(parsed); err != nil {
		return err
	}

	if a.mmap.InRam(base) {
		if addr, ok := a.labels["main"]; ok {
			a.c.SetPC(addr)
		} else {
			a.c.SetPC(codeStart)
		}
	}

	return a.finalizeSyscalls()
}

func (a *Assembler) addLabel(name string, addr uint32, lineNo int) error {
	if !isIdentifier(name) {
		return lineErrf(lineNo, ErrBadArgument, "invalid label %q", name)
	}
	if _, dup := a.labels[name]; dup {
		return lineErrf(lineNo, ErrDuplicateLabel, "%q", name)
	}
	a.labels[name] = addr
	return nil
}

// ---- data section ----

// layoutData walks the line stream, laying .data declarations out from
// the RAM base, recording .const values and collecting everything else
// as code. It returns the
// next free data address and whether a data section was present.
func (a *Assembler) layoutData(lines []srcLine) (uint32, bool, []srcLine, error) {
	dataAddr := a.mmap.RamStart
	inData := false
	hasData := false
	var code []srcLine
	for _, ln := range lines {
		fields := strings.Fields(ln.text)
		switch strings.ToLower(fields[0]) {
		case ".data":
			inData = true
			hasData = true
		case ".code":
			inData = false
		case ".const":
			if err := a.constDecl(ln, fields); err != nil {
				return 0, false, nil, err
			}
		default:
			if !inData {
				code = append(code, ln)
				continue
			}
			if err := a.dataDecl(ln, fields, &dataAddr); err != nil {
				return 0, false, nil, err
			}
		}
	}
	return dataAddr, hasData, code, nil
}

// constDecl handles `.const NAME VALUE`: a symbolic value, not an
// address.
func (a *Assembler) constDecl(ln srcLine, fields []string) error {
	if len(fields) != 3 {
		return lineErrf(ln.no, ErrBadArgument, ".const expects a name and a value")
	}
	name := fields[1]
	if !isIdentifier(name) {
		return lineErrf(ln.no, ErrBadArgument, "invalid constant name %q", name)
	}
	if _, dup := a.consts[name]; dup {
		return lineErrf(ln.no, ErrDuplicateLabel, "constant %q", name)
	}
	v, err := cpu.ParseImmediate(fields[2])
	if err != nil {
		return lineErrf(ln.no, ErrBadNumericLiteral, "%q", fields[2])
	}
	a.consts[name] = v
	return nil
}

func alignWord(addr uint32) uint32 { return (addr + 3) &^ 3 }

func (a *Assembler) dataDecl(ln srcLine, fields []string, dataAddr *uint32) error {
	kind := strings.ToLower(fields[0])
	switch kind {
	case "string":
		return a.stringDecl(ln, dataAddr)
	case "int", "word":
		return a.wordDecl(ln, fields, dataAddr)
	case "byte":
		return a.byteDecl(ln, fields, dataAddr)
	case "array":
		return a.arrayDecl(ln, dataAddr)
	case "buffer":
		return a.bufferDecl(ln, dataAddr)
	}
	return lineErrf(ln.no, ErrBadArgument, "unknown data declaration %q", fields[0])
}

// stringDecl handles `string NAME = "literal"`: UTF-8 bytes plus a
// trailing NUL, next slot word-aligned.
func (a *Assembler) stringDecl(ln srcLine, dataAddr *uint32) error {
	fields := strings.Fields(ln.text)
	if len(fields) < 3 {
		return lineErrf(ln.no, ErrBadArgument, "string declaration needs a name and a literal")
	}
	name := fields[1]
	open := strings.Index(ln.text, `"`)
	end := strings.LastIndex(ln.text, `"`)
	if open == -1 || end == open {
		return lineErrf(ln.no, ErrBadArgument, "missing string literal")
	}
	lit, err := unescapeString(ln.text[open+1 : end])
	if err != nil {
		return lineErrf(ln.no, ErrBadArgument, "%v", err)
	}
	if err := a.addLabel(name, *dataAddr, ln.no); err != nil {
		return err
	}
	for i := 0; i < len(lit); i++ {
		if err := a.writeDataByte(*dataAddr+uint32(i), lit[i]); err != nil {
			return lineErr(ln.no, err)
		}
	}
	if err := a.writeDataByte(*dataAddr+uint32(len(lit)), 0); err != nil {
		return lineErr(ln.no, err)
	}
	*dataAddr = alignWord(*dataAddr + uint32(len(lit)) + 1)
	return nil
}

// wordDecl handles `int NAME = VALUE` and `word NAME = VALUE`.
func (a *Assembler) wordDecl(ln srcLine, fields []string, dataAddr *uint32) error {
	if len(fields) != 4 || fields[2] != "=" {
		return lineErrf(ln.no, ErrBadArgument, "expected %s NAME = VALUE", fields[0])
	}
	v, err := cpu.ParseImmediate(fields[3])
	if err != nil {
		return lineErrf(ln.no, ErrBadNumericLiteral, "%q", fields[3])
	}
	if err := a.addLabel(fields[1], *dataAddr, ln.no); err != nil {
		return err
	}
	if err := a.writeDataWord(*dataAddr, v); err != nil {
		return lineErr(ln.no, err)
	}
	*dataAddr += 4
	return nil
}

// byteDecl handles `byte NAME = VALUE` with VALUE in -128..255; the next
// slot is word-aligned.
func (a *Assembler) byteDecl(ln srcLine, fields []string, dataAddr *uint32) error {
	if len(fields) != 4 || fields[2] != "=" {
		return lineErrf(ln.no, ErrBadArgument, "expected byte NAME = VALUE")
	}
	v, err := strconv.ParseInt(fields[3], 0, 64)
	if err != nil {
		return lineErrf(ln.no, ErrBadNumericLiteral, "%q", fields[3])
	}
	if v < -128 || v > 255 {
		return lineErrf(ln.no, ErrByteOutOfRange, "%d", v)
	}
	if err := a.addLabel(fields[1], *dataAddr, ln.no); err != nil {
		return err
	}
	if err := a.writeDataByte(*dataAddr, byte(v)); err != nil {
		return lineErr(ln.no, err)
	}
	*dataAddr = alignWord(*dataAddr + 1)
	return nil
}

// arrayDecl handles `array NAME[SIZE] = v1, v2, ...`; missing
// initializers are zero, extras are an error.
func (a *Assembler) arrayDecl(ln srcLine, dataAddr *uint32) error {
	name, size, rest, err := parseSizedName(ln)
	if err != nil {
		return err
	}
	var inits []string
	if rest != "" {
		if !strings.HasPrefix(rest, "=") {
			return lineErrf(ln.no, ErrBadArgument, "expected = after array size")
		}
		inits = splitArgs(rest[1:])
	}
	if uint32(len(inits)) > size {
		return lineErrf(ln.no, ErrArrayOverflow, "%s[%d] given %d values", name, size, len(inits))
	}
	if err := a.addLabel(name, *dataAddr, ln.no); err != nil {
		return err
	}
	for i := uint32(0); i < size; i++ {
		var v uint32
		if int(i) < len(inits) {
			v, err = cpu.ParseImmediate(inits[i])
			if err != nil {
				return lineErrf(ln.no, ErrBadNumericLiteral, "%q", inits[i])
			}
		}
		if err := a.writeDataWord(*dataAddr+i*4, v); err != nil {
			return lineErr(ln.no, err)
		}
	}
	*dataAddr += size * 4
	return nil
}

// bufferDecl handles `buffer NAME[SIZE]`: SIZE zeroed bytes, rounded up
// to a word.
func (a *Assembler) bufferDecl(ln srcLine, dataAddr *uint32) error {
	name, size, rest, err := parseSizedName(ln)
	if err != nil {
		return err
	}
	if rest != "" {
		return lineErrf(ln.no, ErrBadArgument, "buffer takes no initializer")
	}
	if err := a.addLabel(name, *dataAddr, ln.no); err != nil {
		return err
	}
	// The region is zero-initialized; just reserve the space.
	*dataAddr += alignWord(size)
	return nil
}

// parseSizedName parses the `NAME[SIZE]` head of array/buffer
// declarations and returns whatever follows the closing bracket.
func parseSizedName(ln srcLine) (string, uint32, string, error) {
	fields := strings.Fields(ln.text)
	decl := strings.TrimSpace(strings.TrimPrefix(ln.text, fields[0]))
	open := strings.Index(decl, "[")
	end := strings.Index(decl, "]")
	if open == -1 || end < open {
		return "", 0, "", lineErrf(ln.no, ErrBadArgument, "expected NAME[SIZE]")
	}
	name := strings.TrimSpace(decl[:open])
	sizeTok := strings.TrimSpace(decl[open+1 : end])
	size, err := strconv.ParseUint(sizeTok, 0, 32)
	if err != nil || size == 0 {
		return "", 0, "", lineErrf(ln.no, ErrBadNumericLiteral, "size %q", sizeTok)
	}
	rest := strings.TrimSpace(decl[end+1:])
	return name, uint32(size), rest, nil
}

func (a *Assembler) writeDataByte(addr uint32, v byte) error {
	region, err := a.bus.RegionFor(addr)
	if err != nil {
		return err
	}
	return region.WriteByte(addr, v)
}

func (a *Assembler) writeDataWord(addr uint32, v uint32) error {
	region, err := a.bus.RegionFor(addr)
	if err != nil {
		return err
	}
	return region.WriteWord(addr, v)
}

// ---- pass one ----

// passOne records code labels and syscall declarations, and fixes every
// instruction's address. Constants were already recorded by layoutData.
func (a *Assembler) passOne(lines []srcLine, start uint32) ([]codeLine, error) {
	addr := start
	var out []codeLine
	for _, ln := range lines {
		text := ln.text
		fields := strings.Fields(text)

		// syscall N LABEL: binds LABEL here and fills table slot N.
		if strings.EqualFold(fields[0], "syscall") && len(fields) >= 3 && strings.HasSuffix(text, ":") {
			if err := a.syscallDecl(ln, fields, addr); err != nil {
				return nil, err
			}
			continue
		}

		// Peel leading LABEL: prefixes; an instruction may follow on
		// the same line.
		for len(fields) > 0 && strings.HasSuffix(fields[0], ":") && len(fields[0]) > 1 {
			name := strings.TrimSuffix(fields[0], ":")
			if err := a.addLabel(name, addr, ln.no); err != nil {
				return nil, err
			}
			text = strings.TrimSpace(strings.TrimPrefix(text, fields[0]))
			fields = strings.Fields(text)
		}
		if len(fields) == 0 {
			continue
		}

		mnemonic := fields[0]
		ins, op, ok := a.set.ByName(mnemonic)
		if !ok {
			return nil, lineErrf(ln.no, ErrUnknownInstruction, "%q", mnemonic)
		}
		args := strings.TrimSpace(strings.TrimPrefix(text, fields[0]))
		out = append(out, codeLine{no: ln.no, addr: addr, ins: ins, op: op, args: args})
		addr += uint32(ins.Words) * 4
	}
	return out, nil
}

func (a *Assembler) syscallDecl(ln srcLine, fields []string, addr uint32) error {
	n, err := strconv.ParseUint(fields[1], 0, 32)
	if err != nil {
		return lineErrf(ln.no, ErrBadNumericLiteral, "syscall number %q", fields[1])
	}
	if n >= mem.SyscallEntryCount {
		return lineErrf(ln.no, ErrBadArgument, "syscall number %d exceeds table size %d", n, mem.SyscallEntryCount)
	}
	if _, dup := a.syscalls[uint32(n)]; dup {
		return lineErrf(ln.no, ErrDuplicateSyscall, "%d", n)
	}
	label := strings.TrimSuffix(fields[2], ":")
	if err := a.addLabel(label, addr, ln.no); err != nil {
		return err
	}
	a.syscalls[uint32(n)] = label
	a.syscallOrder = append(a.syscallOrder, uint32(n))
	return nil
}

// ---- pass two ----

// passTwo resolves argument tokens against labels and constants, then
// encodes and writes each instruction into the region owning its
// address.
func (a *Assembler) passTwo(parsed []codeLine) error {
	for _, cl := range parsed {
		args := splitArgs(cl.args)
		for i, tok := range args {
			if v, ok := a.labels[tok]; ok {
				args[i] = strconv.FormatUint(uint64(v), 10)
			} else if v, ok := a.consts[tok]; ok {
				args[i] = strconv.FormatUint(uint64(v), 10)
			}
		}
		words, err := cl.ins.Encode(cl.op, args)
		if err != nil {
			return lineErrf(cl.no, ErrBadArgument, "%s: %v", cl.ins.Name, err)
		}
		addr := cl.addr
		for _, w := range words {
			region, err := a.bus.RegionFor(addr)
			if err != nil {
				return lineErr(cl.no, err)
			}
			if err := region.WriteWord(addr, w); err != nil {
				return lineErr(cl.no, err)
			}
			addr += 4
		}
	}
	return nil
}

// finalizeSyscalls writes each declared handler address into its ROM
// table slot. Undeclared slots stay 0, meaning "not implemented".
func (a *Assembler) finalizeSyscalls() error {
	rom := a.bus.Rom()
	for _, n := range a.syscallOrder {
		target, ok := a.labels[a.syscalls[n]]
		if !ok {
			return fmt.Errorf("%w: syscall %d label %q unresolved", ErrBadArgument, n, a.syscalls[n])
		}
		if err := rom.WriteWord(a.mmap.SyscallEntry(n), target); err != nil {
			return err
		}
	}
	return nil
}
