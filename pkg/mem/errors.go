package mem

import "errors"

var (
	// ErrAddressOutOfRange is returned by a Region for accesses outside
	// its backing store.
	ErrAddressOutOfRange = errors.New("address out of range")

	// ErrInvalidAddress is returned by the Bus for addresses that do not
	// fall inside ROM, RAM, VRAM or the I/O window.
	ErrInvalidAddress = errors.New("address does not map to any region")

	// ErrRomWrite is returned for write attempts to ROM through the bus.
	// The assembler loads ROM through a direct region handle instead.
	ErrRomWrite = errors.New("write to ROM")
)
