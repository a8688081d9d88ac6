package cpu

import (
	"fmt"
	"strconv"
	"strings"
)

// Instruction word layout (little-endian 32-bit):
//
//	[31:24] rDest   [23:16] rSrc or shift amount   [15:8] reserved   [7:0] opcode
//
// Two-word forms carry a 32-bit immediate in the following word.

// EncodeWord packs an instruction word.
func EncodeWord(rDest, rSrc, opcode byte) uint32 {
	return uint32(rDest)<<24 | uint32(rSrc)<<16 | uint32(opcode)
}

func OpcodeOf(word uint32) byte { return byte(word) }
func DestOf(word uint32) byte   { return byte(word >> 24) }
func SrcOf(word uint32) byte    { return byte(word >> 16) }

// Instruction couples one mnemonic's decoder, encoder and semantics.
type Instruction struct {
	Name  string
	Words int

	// Exec runs the semantic action. words holds the fetched
	// instruction words; PC has already advanced past them.
	Exec func(c *CPU, words []uint32) error

	// Encode turns resolved argument tokens into instruction words.
	// Labels and constants have been substituted by the assembler.
	Encode func(op byte, args []string) ([]uint32, error)
}

// Set maps opcode bytes to instructions. Opcodes are assigned in
// registration order starting from 1, so the canonical catalog below has
// a stable encoding across a VM's lifetime.
type Set struct {
	table    [256]*Instruction
	opByName map[string]byte
	next     int
}

// NewSet builds the canonical Neptune instruction set.
func NewSet() *Set {
	s := &Set{opByName: make(map[string]byte), next: 1}
	s.registerArithmetic()
	s.registerLogical()
	s.registerShifts()
	s.registerMemory()
	s.registerBlock()
	s.registerDataMovement()
	s.registerComparison()
	s.registerJumps()
	s.registerCallStack()
	s.registerSystem()
	return s
}

// Register adds an instruction under the next free opcode and returns
// it. Registration order determines opcode values; external extensions
// must register in a deterministic order.
func (s *Set) Register(name string, ins *Instruction) byte {
	if s.next > 0xFF {
		panic("instruction set: opcode space exhausted")
	}
	name = strings.ToUpper(name)
	if _, dup := s.opByName[name]; dup {
		panic("instruction set: duplicate mnemonic " + name)
	}
	op := byte(s.next)
	s.next++
	ins.Name = name
	if ins.Words == 0 {
		ins.Words = 1
	}
	s.table[op] = ins
	s.opByName[name] = op
	return op
}

// Lookup resolves the opcode byte of an instruction word.
func (s *Set) Lookup(word uint32) (*Instruction, error) {
	op := OpcodeOf(word)
	ins := s.table[op]
	if ins == nil {
		return nil, fmt.Errorf("%w: 0x%02X", ErrUnknownOpcode, op)
	}
	return ins, nil
}

// Opcode returns the opcode assigned to a mnemonic.
func (s *Set) Opcode(name string) (byte, bool) {
	op, ok := s.opByName[strings.ToUpper(name)]
	return op, ok
}

// ByName returns the instruction and opcode for a mnemonic.
func (s *Set) ByName(name string) (*Instruction, byte, bool) {
	op, ok := s.opByName[strings.ToUpper(name)]
	if !ok {
		return nil, 0, false
	}
	return s.table[op], op, true
}

// NameOf returns the mnemonic registered for an opcode byte.
func (s *Set) NameOf(op byte) (string, bool) {
	if ins := s.table[op]; ins != nil {
		return ins.Name, true
	}
	return "", false
}

// Names lists registered mnemonics in opcode order.
func (s *Set) Names() []string {
	var names []string
	for op := 1; op <= 0xFF; op++ {
		if ins := s.table[op]; ins != nil {
			names = append(names, ins.Name)
		}
	}
	return names
}

// ---- argument parsing ----

// ParseRegister resolves a register token: r0..r255 case-insensitive,
// plus the aliases pc, sp and hp.
func ParseRegister(token string) (byte, error) {
	switch strings.ToLower(token) {
	case "pc":
		return AliasPC, nil
	case "sp":
		return AliasSP, nil
	case "hp":
		return AliasHP, nil
	}
	t := strings.ToLower(token)
	if !strings.HasPrefix(t, "r") {
		return 0, fmt.Errorf("%w: %q", ErrInvalidRegister, token)
	}
	n, err := strconv.ParseUint(t[1:], 10, 8)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidRegister, token)
	}
	return byte(n), nil
}

// ParseImmediate resolves a numeric literal: 0x hex, 0b binary,
// otherwise signed decimal. The result wraps into a 32-bit word.
func ParseImmediate(token string) (uint32, error) {
	base := 10
	if l := strings.ToLower(token); strings.HasPrefix(l, "0x") || strings.HasPrefix(l, "0b") {
		base = 0
	}
	v, err := strconv.ParseInt(token, base, 64)
	if err != nil {
		// Unsigned hex/binary literals above MaxInt32 still fit a word.
		u, uerr := strconv.ParseUint(token, base, 64)
		if uerr != nil || u > 0xFFFFFFFF {
			return 0, fmt.Errorf("bad numeric literal %q", token)
		}
		return uint32(u), nil
	}
	if v < -(1<<31) || v > 0xFFFFFFFF {
		return 0, fmt.Errorf("numeric literal %q out of 32-bit range", token)
	}
	return uint32(v), nil
}

// ---- encoder helpers ----

func encodeNone(op byte, args []string) ([]uint32, error) {
	if len(args) != 0 {
		return nil, fmt.Errorf("expected no arguments, got %d", len(args))
	}
	return []uint32{EncodeWord(0, 0, op)}, nil
}

func encodeReg(op byte, args []string) ([]uint32, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("expected 1 argument, got %d", len(args))
	}
	r, err := ParseRegister(args[0])
	if err != nil {
		return nil, err
	}
	return []uint32{EncodeWord(r, 0, op)}, nil
}

func encodeRegReg(op byte, args []string) ([]uint32, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("expected 2 arguments, got %d", len(args))
	}
	rd, err := ParseRegister(args[0])
	if err != nil {
		return nil, err
	}
	rs, err := ParseRegister(args[1])
	if err != nil {
		return nil, err
	}
	return []uint32{EncodeWord(rd, rs, op)}, nil
}

func encodeRegImm(op byte, args []string) ([]uint32, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("expected 2 arguments, got %d", len(args))
	}
	rd, err := ParseRegister(args[0])
	if err != nil {
		return nil, err
	}
	imm, err := ParseImmediate(args[1])
	if err != nil {
		return nil, err
	}
	return []uint32{EncodeWord(rd, 0, op), imm}, nil
}

func encodeRegShift(op byte, args []string) ([]uint32, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("expected 2 arguments, got %d", len(args))
	}
	rd, err := ParseRegister(args[0])
	if err != nil {
		return nil, err
	}
	n, err := ParseImmediate(args[1])
	if err != nil {
		return nil, err
	}
	if n > 0xFF {
		return nil, fmt.Errorf("shift amount %d out of range", n)
	}
	return []uint32{EncodeWord(rd, byte(n), op)}, nil
}

func encodeImm(op byte, args []string) ([]uint32, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("expected 1 argument, got %d", len(args))
	}
	imm, err := ParseImmediate(args[0])
	if err != nil {
		return nil, err
	}
	return []uint32{EncodeWord(0, 0, op), imm}, nil
}

// ---- semantic helpers ----

type flagMode int

const (
	flagsUpdate flagMode = iota // Z, N
	flagsAdd                    // Z, N, C, V via UpdateAdd
	flagsSub                    // Z, N, C, V via UpdateSub
)

type binaryFn func(a, b uint32) (uint32, error)

func add(a, b uint32) (uint32, error) { return a + b, nil }
func sub(a, b uint32) (uint32, error) { return a - b, nil }
func mul(a, b uint32) (uint32, error) { return a * b, nil }

func div(a, b uint32) (uint32, error) {
	if b == 0 {
		return 0, ErrDivByZero
	}
	if a == 0x80000000 && b == 0xFFFFFFFF {
		return 0x80000000, nil // MinInt32 / -1 wraps
	}
	return uint32(int32(a) / int32(b)), nil
}

func mod(a, b uint32) (uint32, error) {
	if b == 0 {
		return 0, ErrDivByZero
	}
	if a == 0x80000000 && b == 0xFFFFFFFF {
		return 0, nil
	}
	return uint32(int32(a) % int32(b)), nil
}

func and(a, b uint32) (uint32, error) { return a & b, nil }
func or(a, b uint32) (uint32, error)  { return a | b, nil }
func xor(a, b uint32) (uint32, error) { return a ^ b, nil }

func (s *Set) applyFlags(c *CPU, mode flagMode, a, b, r uint32) {
	switch mode {
	case flagsAdd:
		c.flags.UpdateAdd(a, b, r)
	case flagsSub:
		c.flags.UpdateSub(a, b, r)
	default:
		c.flags.Update(r)
	}
}

// registerBinary registers a reg-reg binary operation.
func (s *Set) registerBinary(name string, fn binaryFn, mode flagMode) {
	s.Register(name, &Instruction{
		Words:  1,
		Encode: encodeRegReg,
		Exec: func(c *CPU, words []uint32) error {
			rd, rs := DestOf(words[0]), SrcOf(words[0])
			a, err := c.Register(int(rd))
			if err != nil {
				return err
			}
			b, err := c.Register(int(rs))
			if err != nil {
				return err
			}
			r, err := fn(a, b)
			if err != nil {
				return err
			}
			if err := c.SetRegister(int(rd), r); err != nil {
				return err
			}
			s.applyFlags(c, mode, a, b, r)
			return nil
		},
	})
}

// registerBinaryImm registers the two-word reg-imm variant.
func (s *Set) registerBinaryImm(name string, fn binaryFn, mode flagMode) {
	s.Register(name, &Instruction{
		Words:  2,
		Encode: encodeRegImm,
		Exec: func(c *CPU, words []uint32) error {
			rd := DestOf(words[0])
			a, err := c.Register(int(rd))
			if err != nil {
				return err
			}
			b := words[1]
			r, err := fn(a, b)
			if err != nil {
				return err
			}
			if err := c.SetRegister(int(rd), r); err != nil {
				return err
			}
			s.applyFlags(c, mode, a, b, r)
			return nil
		},
	})
}

// registerUnary registers a single-register transform updating Z and N.
func (s *Set) registerUnary(name string, fn func(v uint32) uint32) {
	s.Register(name, &Instruction{
		Words:  1,
		Encode: encodeReg,
		Exec: func(c *CPU, words []uint32) error {
			rd := DestOf(words[0])
			v, err := c.Register(int(rd))
			if err != nil {
				return err
			}
			r := fn(v)
			if err := c.SetRegister(int(rd), r); err != nil {
				return err
			}
			c.flags.Update(r)
			return nil
		},
	})
}

// registerShift registers SHL/SHR. The shift amount lives in the rSrc
// field as a literal, masked to 0..31. For a non-zero count C takes the
// last bit shifted out; a zero count leaves C untouched.
func (s *Set) registerShift(name string, left bool) {
	s.Register(name, &Instruction{
		Words:  1,
		Encode: encodeRegShift,
		Exec: func(c *CPU, words []uint32) error {
			rd := DestOf(words[0])
			n := uint32(SrcOf(words[0])) & 31
			a, err := c.Register(int(rd))
			if err != nil {
				return err
			}
			var r uint32
			var lastOut bool
			if left {
				r = a << n
				if n > 0 {
					lastOut = (a>>(32-n))&1 != 0
				}
			} else {
				r = a >> n
				if n > 0 {
					lastOut = (a>>(n-1))&1 != 0
				}
			}
			if err := c.SetRegister(int(rd), r); err != nil {
				return err
			}
			c.flags.Update(r)
			if n > 0 {
				c.flags.Carry = lastOut
			}
			return nil
		},
	})
}

func (s *Set) registerJump(name string, pred func(f *Flags) bool) {
	s.Register(name, &Instruction{
		Words:  2,
		Encode: encodeImm,
		Exec: func(c *CPU, words []uint32) error {
			if pred(&c.flags) {
				c.Jump(words[1])
			}
			return nil
		},
	})
}

// ---- catalog ----

func (s *Set) registerArithmetic() {
	s.registerBinary("ADD", add, flagsAdd)
	s.registerBinary("SUB", sub, flagsSub)
	s.registerBinary("MUL", mul, flagsUpdate)
	s.registerBinary("DIV", div, flagsUpdate)
	s.registerBinary("MOD", mod, flagsUpdate)
	s.registerBinaryImm("ADDI", add, flagsAdd)
	s.registerBinaryImm("SUBI", sub, flagsSub)
	s.registerBinaryImm("MULI", mul, flagsUpdate)
	s.registerBinaryImm("DIVI", div, flagsUpdate)
	s.registerBinaryImm("MODI", mod, flagsUpdate)
	s.registerUnary("INC", func(v uint32) uint32 { return v + 1 })
	s.registerUnary("DEC", func(v uint32) uint32 { return v - 1 })
	s.registerUnary("NEG", func(v uint32) uint32 { return -v })
}

func (s *Set) registerLogical() {
	s.registerBinary("AND", and, flagsUpdate)
	s.registerBinary("OR", or, flagsUpdate)
	s.registerBinary("XOR", xor, flagsUpdate)
	s.registerBinaryImm("ANDI", and, flagsUpdate)
	s.registerBinaryImm("ORI", or, flagsUpdate)
	s.registerBinaryImm("XORI", xor, flagsUpdate)
	s.registerUnary("NOT", func(v uint32) uint32 { return ^v })
}

func (s *Set) registerShifts() {
	s.registerShift("SHL", true)
	s.registerShift("SHR", false)
}

func (s *Set) registerMemory() {
	s.Register("LOAD", &Instruction{
		Words:  1,
		Encode: encodeRegReg,
		Exec: func(c *CPU, words []uint32) error {
			rd, rs := DestOf(words[0]), SrcOf(words[0])
			addr, err := c.Register(int(rs))
			if err != nil {
				return err
			}
			v, err := c.bus.ReadWord(addr)
			if err != nil {
				return err
			}
			if err := c.SetRegister(int(rd), v); err != nil {
				return err
			}
			c.flags.Update(v)
			return nil
		},
	})

	s.Register("STORE", &Instruction{
		Words:  1,
		Encode: encodeRegReg,
		Exec: func(c *CPU, words []uint32) error {
			rd, rs := DestOf(words[0]), SrcOf(words[0])
			v, err := c.Register(int(rd))
			if err != nil {
				return err
			}
			addr, err := c.Register(int(rs))
			if err != nil {
				return err
			}
			return c.bus.WriteWord(addr, v)
		},
	})

	// LOADI is immediate-to-register, matching the assembler the boot
	// ROM was written against; register-indirect reads go through LOAD.
	s.Register("LOADI", &Instruction{
		Words:  2,
		Encode: encodeRegImm,
		Exec: func(c *CPU, words []uint32) error {
			rd := DestOf(words[0])
			if err := c.SetRegister(int(rd), words[1]); err != nil {
				return err
			}
			c.flags.Update(words[1])
			return nil
		},
	})

	s.Register("STORI", &Instruction{
		Words:  2,
		Encode: encodeRegImm,
		Exec: func(c *CPU, words []uint32) error {
			rd := DestOf(words[0])
			v, err := c.Register(int(rd))
			if err != nil {
				return err
			}
			return c.bus.WriteWord(words[1], v)
		},
	})
}

func (s *Set) registerBlock() {
	// MSET and MCPY take their word count from r1.
	s.Register("MSET", &Instruction{
		Words:  1,
		Encode: encodeRegReg,
		Exec: func(c *CPU, words []uint32) error {
			rd, rs := DestOf(words[0]), SrcOf(words[0])
			dst, err := c.Register(int(rd))
			if err != nil {
				return err
			}
			val, err := c.Register(int(rs))
			if err != nil {
				return err
			}
			count, err := c.Register(1)
			if err != nil {
				return err
			}
			for i := uint32(0); i < count; i++ {
				if err := c.bus.WriteWord(dst+i*4, val); err != nil {
					return err
				}
			}
			return nil
		},
	})

	s.Register("MCPY", &Instruction{
		Words:  1,
		Encode: encodeRegReg,
		Exec: func(c *CPU, words []uint32) error {
			rd, rs := DestOf(words[0]), SrcOf(words[0])
			dst, err := c.Register(int(rd))
			if err != nil {
				return err
			}
			src, err := c.Register(int(rs))
			if err != nil {
				return err
			}
			count, err := c.Register(1)
			if err != nil {
				return err
			}
			// Destination overlapping ahead of the source copies
			// backward so no source word is clobbered before use.
			if dst > src && dst < src+count*4 {
				for i := count; i > 0; i-- {
					v, err := c.bus.ReadWord(src + (i-1)*4)
					if err != nil {
						return err
					}
					if err := c.bus.WriteWord(dst+(i-1)*4, v); err != nil {
						return err
					}
				}
				return nil
			}
			for i := uint32(0); i < count; i++ {
				v, err := c.bus.ReadWord(src + i*4)
				if err != nil {
					return err
				}
				if err := c.bus.WriteWord(dst+i*4, v); err != nil {
					return err
				}
			}
			return nil
		},
	})
}

func (s *Set) registerDataMovement() {
	s.Register("MOV", &Instruction{
		Words:  1,
		Encode: encodeRegReg,
		Exec: func(c *CPU, words []uint32) error {
			rd, rs := DestOf(words[0]), SrcOf(words[0])
			v, err := c.Register(int(rs))
			if err != nil {
				return err
			}
			if err := c.SetRegister(int(rd), v); err != nil {
				return err
			}
			c.flags.Update(v)
			return nil
		},
	})

	s.Register("MOVI", &Instruction{
		Words:  2,
		Encode: encodeRegImm,
		Exec: func(c *CPU, words []uint32) error {
			rd := DestOf(words[0])
			if err := c.SetRegister(int(rd), words[1]); err != nil {
				return err
			}
			c.flags.Update(words[1])
			return nil
		},
	})

	s.registerUnary("CLR", func(uint32) uint32 { return 0 })
}

func (s *Set) registerComparison() {
	s.Register("CMP", &Instruction{
		Words:  1,
		Encode: encodeRegReg,
		Exec: func(c *CPU, words []uint32) error {
			a, err := c.Register(int(DestOf(words[0])))
			if err != nil {
				return err
			}
			b, err := c.Register(int(SrcOf(words[0])))
			if err != nil {
				return err
			}
			c.flags.UpdateSub(a, b, a-b)
			return nil
		},
	})

	s.Register("CMPI", &Instruction{
		Words:  2,
		Encode: encodeRegImm,
		Exec: func(c *CPU, words []uint32) error {
			a, err := c.Register(int(DestOf(words[0])))
			if err != nil {
				return err
			}
			b := words[1]
			c.flags.UpdateSub(a, b, a-b)
			return nil
		},
	})

	s.Register("TEST", &Instruction{
		Words:  1,
		Encode: encodeRegReg,
		Exec: func(c *CPU, words []uint32) error {
			a, err := c.Register(int(DestOf(words[0])))
			if err != nil {
				return err
			}
			b, err := c.Register(int(SrcOf(words[0])))
			if err != nil {
				return err
			}
			c.flags.Update(a & b)
			return nil
		},
	})

	s.Register("TESTI", &Instruction{
		Words:  2,
		Encode: encodeRegImm,
		Exec: func(c *CPU, words []uint32) error {
			a, err := c.Register(int(DestOf(words[0])))
			if err != nil {
				return err
			}
			c.flags.Update(a & words[1])
			return nil
		},
	})
}

func (s *Set) registerJumps() {
	s.registerJump("JMP", func(*Flags) bool { return true })
	s.registerJump("JZ", func(f *Flags) bool { return f.Zero })
	s.registerJump("JE", func(f *Flags) bool { return f.Zero })
	s.registerJump("JNZ", func(f *Flags) bool { return !f.Zero })
	s.registerJump("JNE", func(f *Flags) bool { return !f.Zero })
	s.registerJump("JN", func(f *Flags) bool { return f.Negative })
	s.registerJump("JP", func(f *Flags) bool { return !f.Negative })
	s.registerJump("JG", func(f *Flags) bool { return !f.Zero && !f.Negative })
	s.registerJump("JGE", func(f *Flags) bool { return !f.Negative })
	s.registerJump("JL", func(f *Flags) bool { return f.Negative })
	s.registerJump("JLE", func(f *Flags) bool { return f.Negative || f.Zero })
	s.registerJump("JC", func(f *Flags) bool { return f.Carry })
	s.registerJump("JNC", func(f *Flags) bool { return !f.Carry })
	s.registerJump("JA", func(f *Flags) bool { return !f.Carry && !f.Zero })
	s.registerJump("JAE", func(f *Flags) bool { return !f.Carry })
	s.registerJump("JB", func(f *Flags) bool { return f.Carry })
	s.registerJump("JBE", func(f *Flags) bool { return f.Carry || f.Zero })
}

func (s *Set) registerCallStack() {
	s.Register("CALL", &Instruction{
		Words:  2,
		Encode: encodeImm,
		Exec: func(c *CPU, words []uint32) error {
			if err := c.Push(c.pc); err != nil {
				return err
			}
			c.Jump(words[1])
			return nil
		},
	})

	s.Register("RET", &Instruction{
		Words:  1,
		Encode: encodeNone,
		Exec: func(c *CPU, words []uint32) error {
			addr, err := c.Pop()
			if err != nil {
				return err
			}
			c.Jump(addr)
			return nil
		},
	})

	s.Register("PUSH", &Instruction{
		Words:  1,
		Encode: encodeReg,
		Exec: func(c *CPU, words []uint32) error {
			v, err := c.Register(int(DestOf(words[0])))
			if err != nil {
				return err
			}
			return c.Push(v)
		},
	})

	s.Register("POP", &Instruction{
		Words:  1,
		Encode: encodeReg,
		Exec: func(c *CPU, words []uint32) error {
			v, err := c.Pop()
			if err != nil {
				return err
			}
			if err := c.SetRegister(int(DestOf(words[0])), v); err != nil {
				return err
			}
			c.flags.Update(v)
			return nil
		},
	})
}

func (s *Set) registerSystem() {
	s.Register("SYSCALL", &Instruction{
		Words:  1,
		Encode: encodeNone,
		Exec: func(c *CPU, words []uint32) error {
			return c.syscall()
		},
	})

	s.Register("NOP", &Instruction{
		Words:  1,
		Encode: encodeNone,
		Exec:   func(c *CPU, words []uint32) error { return nil },
	})

	s.Register("HLT", &Instruction{
		Words:  1,
		Encode: encodeNone,
		Exec: func(c *CPU, words []uint32) error {
			c.halted = true
			return nil
		},
	})
}
