package asm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/akhildatla/mcvm/pkg/vm"
)

// Error definitions
var (
	ErrSyntax          = errors.New("syntax error")
	ErrUnknownMnemonic = errors.New("unknown mnemonic")
	ErrOperandCount    = errors.New("wrong number of operands")
	ErrOperandType     = errors.New("invalid operand")
	ErrOutOfRange      = errors.New("value out of range")
	ErrUndefined       = errors.New("undefined symbol")
	ErrDuplicate       = errors.New("duplicate definition")
	ErrTooLarge        = errors.New("image too large")
)

// MaxProgramSize is the largest program a 16-bit jump target can address.
const MaxProgramSize = 1 << 16

// Assemble assembles source into a bytecode image.
func Assemble(source string) (*vm.Image, error) {
	return AssembleNamed("", source)
}

// AssembleFile reads and assembles a source file.
func AssembleFile(path string) (*vm.Image, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return AssembleNamed(path, string(src))
}

// AssembleNamed assembles source, using filename in error positions.
func AssembleNamed(filename, source string) (*vm.Image, error) {
	file, err := Parse(filename, source)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSyntax, err)
	}
	a := &assembler{
		labels: make(map[string]uint32),
		data:   make(map[string]uint32),
	}
	return a.assemble(file)
}

type assembler struct {
	labels map[string]uint32 // label -> program offset
	data   map[string]uint32 // data name -> data segment address
	img    vm.Image
}

type pending struct {
	line int
	op   vm.Opcode
	inst *Instruction
}

func (a *assembler) assemble(file *File) (*vm.Image, error) {
	// Pass 1: lay out labels and build the data segment.
	var code []pending
	var pc uint32
	for _, ln := range file.Lines {
		line := ln.Pos.Line
		if ln.Label != nil {
			name := strings.TrimSuffix(strings.TrimPrefix(*ln.Label, "."), ":")
			if _, ok := a.labels[name]; ok {
				return nil, fmt.Errorf("line %d: %w: label %s", line, ErrDuplicate, name)
			}
			a.labels[name] = pc
		}

		switch {
		case ln.Sizing != nil:
			if err := a.sizing(ln.Sizing); err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}

		case ln.Directive != nil:
			if err := a.directive(ln.Directive); err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}

		case ln.Inst != nil:
			op, ok := vm.OpcodeFromString(strings.ToUpper(ln.Inst.Mnemonic))
			if !ok {
				return nil, fmt.Errorf("line %d: %w: %s", line, ErrUnknownMnemonic, ln.Inst.Mnemonic)
			}
			if got, want := len(ln.Inst.Operands), len(op.Operands()); got != want {
				return nil, fmt.Errorf("line %d: %w: %s takes %d, got %d", line, ErrOperandCount, op, want, got)
			}
			code = append(code, pending{line: line, op: op, inst: ln.Inst})
			pc += uint32(op.Size())
			if pc > MaxProgramSize {
				return nil, fmt.Errorf("line %d: %w: program exceeds %d bytes", line, ErrTooLarge, MaxProgramSize)
			}
		}
	}

	// Pass 2: encode with every symbol known.
	program := make([]byte, 0, pc)
	for _, p := range code {
		args := make([]uint32, len(p.inst.Operands))
		for i, kind := range p.op.Operands() {
			v, err := a.operand(kind, p.inst.Operands[i])
			if err != nil {
				return nil, fmt.Errorf("line %d: %s operand %d: %w", p.line, p.op, i+1, err)
			}
			args[i] = v
		}
		var err error
		if program, err = vm.Encode(program, p.op, args...); err != nil {
			return nil, fmt.Errorf("line %d: %w", p.line, err)
		}
	}

	a.img.Program = program
	if len(a.img.Data)+int(a.img.Scratch) > vm.MaxDataSize {
		return nil, fmt.Errorf("%w: data segment %d bytes", ErrTooLarge, len(a.img.Data)+int(a.img.Scratch))
	}
	return &a.img, nil
}

func (a *assembler) sizing(s *Sizing) error {
	n, err := parseInt(s.Value)
	if err != nil {
		return err
	}
	if n < 0 || n > math.MaxUint16 {
		return fmt.Errorf("%w: %s %d", ErrOutOfRange, s.Kind, n)
	}
	switch s.Kind {
	case ".scratch":
		a.img.Scratch = uint16(n)
	case ".stack":
		a.img.StackSize = uint16(n)
	}
	return nil
}

func (a *assembler) directive(d *Directive) error {
	if _, ok := a.data[d.Name]; ok {
		return fmt.Errorf("%w: data %s", ErrDuplicate, d.Name)
	}
	addr := uint32(len(a.img.Data))
	if addr >= vm.MaxDataSize {
		return fmt.Errorf("%w: data segment full at %s", ErrTooLarge, d.Name)
	}
	a.data[d.Name] = addr

	switch d.Kind {
	case ".asciz":
		if len(d.Values) != 1 || d.Values[0].Str == nil {
			return fmt.Errorf("%w: .asciz takes one string", ErrOperandType)
		}
		s, err := strconv.Unquote(*d.Values[0].Str)
		if err != nil {
			return fmt.Errorf("%w: %s", ErrOperandType, *d.Values[0].Str)
		}
		a.img.Data = append(append(a.img.Data, s...), 0)

	case ".zero":
		if len(d.Values) != 1 || d.Values[0].Int == nil {
			return fmt.Errorf("%w: .zero takes a byte count", ErrOperandType)
		}
		n, err := parseInt(*d.Values[0].Int)
		if err != nil {
			return err
		}
		if n < 0 || n > vm.MaxDataSize {
			return fmt.Errorf("%w: .zero %d", ErrOutOfRange, n)
		}
		a.img.Data = append(a.img.Data, make([]byte, n)...)

	default:
		width := map[string]int{".byte": 1, ".word": 2, ".long": 4}[d.Kind]
		if len(d.Values) == 0 {
			return fmt.Errorf("%w: %s needs at least one value", ErrOperandCount, d.Kind)
		}
		for _, v := range d.Values {
			n, err := a.immediate(v, width, width == 4)
			if err != nil {
				return err
			}
			switch width {
			case 1:
				a.img.Data = append(a.img.Data, byte(n))
			case 2:
				a.img.Data = binary.LittleEndian.AppendUint16(a.img.Data, uint16(n))
			case 4:
				a.img.Data = binary.LittleEndian.AppendUint32(a.img.Data, n)
			}
		}
	}

	if len(a.img.Data) > vm.MaxDataSize {
		return fmt.Errorf("%w: data segment exceeds %d bytes", ErrTooLarge, vm.MaxDataSize)
	}
	return nil
}

// operand resolves one instruction operand against its encoded kind.
func (a *assembler) operand(kind vm.OperandKind, o *Operand) (uint32, error) {
	switch kind {
	case vm.OperandReg:
		if o.Reg == nil {
			return 0, fmt.Errorf("%w: expected register, got %s", ErrOperandType, o)
		}
		r, ok := vm.RegisterByName(strings.ToLower(*o.Reg))
		if !ok {
			return 0, fmt.Errorf("%w: unknown register %s", ErrOperandType, *o.Reg)
		}
		return uint32(r), nil

	case vm.OperandImm8:
		return a.immediate(o, 1, false)

	case vm.OperandImm16:
		return a.immediate(o, 2, false)

	case vm.OperandImm32:
		return a.immediate(o, 4, true)

	case vm.OperandAddr:
		if o.Label != nil || o.Float != nil || o.Str != nil || o.Reg != nil {
			return 0, fmt.Errorf("%w: expected &name or address, got %s", ErrOperandType, o)
		}
		return a.immediate(o, 2, false)

	case vm.OperandTarget:
		if o.Ref != nil || o.Float != nil || o.Str != nil || o.Reg != nil {
			return 0, fmt.Errorf("%w: expected .label or offset, got %s", ErrOperandType, o)
		}
		return a.immediate(o, 2, false)
	}
	return 0, fmt.Errorf("%w: %s", ErrOperandType, kind)
}

// immediate resolves a numeric, label or data reference operand into a value
// of width bytes. Negative numbers are stored as two's complement.
func (a *assembler) immediate(o *Operand, width int, allowFloat bool) (uint32, error) {
	switch {
	case o.Int != nil:
		n, err := parseInt(*o.Int)
		if err != nil {
			return 0, err
		}
		bits := uint(8 * width)
		lo, hi := -(int64(1) << (bits - 1)), int64(1)<<bits-1
		if n < lo || n > hi {
			return 0, fmt.Errorf("%w: %d does not fit in %d bits", ErrOutOfRange, n, bits)
		}
		return uint32(n) & uint32(uint64(1)<<bits-1), nil

	case o.Float != nil:
		if !allowFloat {
			return 0, fmt.Errorf("%w: float %s needs a 32-bit operand", ErrOperandType, *o.Float)
		}
		f, err := strconv.ParseFloat(*o.Float, 32)
		if err != nil {
			return 0, fmt.Errorf("%w: %s", ErrOperandType, *o.Float)
		}
		return math.Float32bits(float32(f)), nil

	case o.Label != nil:
		off, ok := a.labels[strings.TrimPrefix(*o.Label, ".")]
		if !ok {
			return 0, fmt.Errorf("%w: label %s", ErrUndefined, *o.Label)
		}
		return a.fit(off, width)

	case o.Ref != nil:
		addr, ok := a.data[strings.TrimPrefix(*o.Ref, "&")]
		if !ok {
			return 0, fmt.Errorf("%w: data %s", ErrUndefined, *o.Ref)
		}
		return a.fit(addr, width)
	}
	return 0, fmt.Errorf("%w: expected number, got %s", ErrOperandType, o)
}

func (a *assembler) fit(v uint32, width int) (uint32, error) {
	if width < 4 && v >= uint32(1)<<(8*width) {
		return 0, fmt.Errorf("%w: 0x%X does not fit in %d bits", ErrOutOfRange, v, 8*width)
	}
	return v, nil
}

// parseInt accepts decimal, 0x hex and 0b binary with an optional sign.
// A leading zero does not select octal.
func parseInt(s string) (int64, error) {
	digits := strings.TrimLeft(s, "+-")
	base := 10
	if len(digits) > 1 && digits[0] == '0' && strings.ContainsAny(digits[1:2], "xXbB") {
		base = 0
	}
	n, err := strconv.ParseInt(s, base, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrOutOfRange, s)
	}
	return n, nil
}
