package vm

import (
	"fmt"
	"math"
	"strconv"
)

const (
	NumRegisters = 32 // R0-R31: 32-bit untyped registers

	RegBP uint8 = 28 // frame base pointer (convention only)
	RegRA uint8 = 29 // return address
	RegSP uint8 = 30 // stack pointer
	RegIP uint8 = 31 // instruction pointer
)

// Word is an untyped 32-bit register value. Each opcode picks the
// interpretation it needs.
type Word uint32

// FromSigned returns the two's complement bit pattern of v.
func FromSigned(v int32) Word { return Word(uint32(v)) }

// FromFloat returns the IEEE-754 single precision bit pattern of f.
func FromFloat(f float32) Word { return Word(math.Float32bits(f)) }

// Unsigned interprets the word as an unsigned integer.
func (w Word) Unsigned() uint32 { return uint32(w) }

// Signed interprets the word as a two's complement integer.
func (w Word) Signed() int32 { return int32(uint32(w)) }

// Float interprets the word as an IEEE-754 single precision float.
func (w Word) Float() float32 { return math.Float32frombits(uint32(w)) }

// IntToFloat converts the signed integer value of w to the nearest float.
func (w Word) IntToFloat() Word {
	return FromFloat(float32(w.Signed()))
}

// FloatToInt truncates the float value of w toward zero. NaN becomes 0 and
// values outside [-2^31, 2^32-1] saturate; the result keeps the low 32 bits.
func (w Word) FloatToInt() Word {
	f := float64(w.Float())
	switch {
	case math.IsNaN(f):
		return 0
	case f <= math.MinInt32:
		return FromSigned(math.MinInt32)
	case f >= math.MaxUint32:
		return Word(math.MaxUint32)
	}
	return Word(uint32(int64(f)))
}

// RegisterFile holds VM register state.
type RegisterFile struct {
	R [NumRegisters]Word
}

// NewRegisterFile creates a new register file with all registers zeroed.
func NewRegisterFile() *RegisterFile {
	return &RegisterFile{}
}

// Get returns the value of register idx.
func (rf *RegisterFile) Get(idx uint8) (Word, error) {
	if int(idx) >= NumRegisters {
		return 0, fmt.Errorf("%w: %d", ErrInvalidRegister, idx)
	}
	return rf.R[idx], nil
}

// Set stores w into register idx.
func (rf *RegisterFile) Set(idx uint8, w Word) error {
	if int(idx) >= NumRegisters {
		return fmt.Errorf("%w: %d", ErrInvalidRegister, idx)
	}
	rf.R[idx] = w
	return nil
}

// Reset clears all registers.
func (rf *RegisterFile) Reset() {
	for i := range rf.R {
		rf.R[i] = 0
	}
}

// RegisterName returns the assembler name of register idx.
func RegisterName(idx uint8) string {
	switch idx {
	case RegBP:
		return "bp"
	case RegRA:
		return "ra"
	case RegSP:
		return "sp"
	case RegIP:
		return "ip"
	}
	return "r" + strconv.Itoa(int(idx))
}

// RegisterByName resolves an assembler register name. Besides r0-r31 it
// accepts t0-t9 (aliases for r6-r15), bp, ra, sp and ip.
func RegisterByName(name string) (uint8, bool) {
	switch name {
	case "bp":
		return RegBP, true
	case "ra":
		return RegRA, true
	case "sp":
		return RegSP, true
	case "ip":
		return RegIP, true
	}
	if len(name) < 2 {
		return 0, false
	}
	n, err := strconv.ParseUint(name[1:], 10, 8)
	if err != nil {
		return 0, false
	}
	switch name[0] {
	case 'r':
		if n < NumRegisters {
			return uint8(n), true
		}
	case 't':
		if n < 10 {
			return uint8(6 + n), true
		}
	}
	return 0, false
}
