package vm

import (
	"errors"
	"fmt"
)

// Error definitions
var (
	ErrAddressOutOfRange    = errors.New("data address out of range")
	ErrStackOverflow        = errors.New("stack overflow")
	ErrStackUnderflow       = errors.New("stack underflow")
	ErrInvalidRegister      = errors.New("invalid register")
	ErrDivisionByZero       = errors.New("division by zero")
	ErrInvalidOpcode        = errors.New("invalid opcode")
	ErrTruncatedInstruction = errors.New("truncated instruction")
	ErrJumpOutOfRange       = errors.New("jump target out of program")
	ErrHardware             = errors.New("hardware i/o failed")
	ErrInstructionLimit     = errors.New("instruction limit exceeded")
	ErrDataTooLarge         = errors.New("data segment exceeds 64 KiB")
	ErrHalted               = errors.New("machine is halted")
)

// FaultKind classifies a terminal execution error.
type FaultKind uint8

const (
	FaultAddress    FaultKind = iota + 1 // data segment, stack or register out of range
	FaultArithmetic                      // integer division or modulo by zero
	FaultDecode                          // undefined opcode or truncated operands
	FaultControl                         // jump or fetch outside the program
	FaultIO                              // hardware or text output failure
	FaultLimit                           // instruction budget or context cancellation
)

// String returns the string representation of a fault kind.
func (k FaultKind) String() string {
	switch k {
	case FaultAddress:
		return "addressing fault"
	case FaultArithmetic:
		return "arithmetic fault"
	case FaultDecode:
		return "decode fault"
	case FaultControl:
		return "control-flow fault"
	case FaultIO:
		return "i/o fault"
	case FaultLimit:
		return "limit fault"
	default:
		return "fault"
	}
}

// Fault is returned by Run and Step when execution stops abnormally.
// It records which instruction failed.
type Fault struct {
	Kind   FaultKind
	Offset uint32 // program offset of the faulting instruction
	Op     Opcode
	Err    error
}

func (f *Fault) Error() string {
	if f.Op.Valid() {
		return fmt.Sprintf("%s at 0x%04X (%s): %v", f.Kind, f.Offset, f.Op, f.Err)
	}
	return fmt.Sprintf("%s at 0x%04X: %v", f.Kind, f.Offset, f.Err)
}

func (f *Fault) Unwrap() error { return f.Err }

// AsFault returns the fault wrapped in err, if any.
func AsFault(err error) (*Fault, bool) {
	var f *Fault
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// classify maps an execution error to its fault kind.
func classify(err error) FaultKind {
	switch {
	case errors.Is(err, ErrAddressOutOfRange),
		errors.Is(err, ErrStackOverflow),
		errors.Is(err, ErrStackUnderflow),
		errors.Is(err, ErrInvalidRegister):
		return FaultAddress
	case errors.Is(err, ErrDivisionByZero):
		return FaultArithmetic
	case errors.Is(err, ErrInvalidOpcode), errors.Is(err, ErrTruncatedInstruction):
		return FaultDecode
	case errors.Is(err, ErrJumpOutOfRange):
		return FaultControl
	case errors.Is(err, ErrInstructionLimit):
		return FaultLimit
	default:
		return FaultIO
	}
}
