package cpu

// Flags holds the four condition codes. Logical and data-movement
// operations update Z and N only; ADD/SUB-class arithmetic updates all
// four via UpdateAdd/UpdateSub.
type Flags struct {
	Zero     bool
	Negative bool
	Carry    bool
	Overflow bool
}

func (f *Flags) Update(result uint32) {
	f.Zero = result == 0
	f.Negative = int32(result) < 0
}

func (f *Flags) Clear() {
	*f = Flags{}
}

func (f *Flags) UpdateAdd(a, b, result uint32) {
	f.Update(result)
	f.Carry = uint64(a)+uint64(b) > 0xFFFFFFFF
	f.Overflow = (a^result)&(b^result)&0x80000000 != 0
}

func (f *Flags) UpdateSub(a, b, result uint32) {
	f.Update(result)
	f.Carry = a < b // unsigned borrow
	f.Overflow = (a^b)&(a^result)&0x80000000 != 0
}
