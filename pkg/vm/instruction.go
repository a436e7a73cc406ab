package vm

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// MaxOperands is the largest operand count of any opcode.
const MaxOperands = 3

// Instruction is one decoded instruction.
//
// Encoding: one opcode byte followed by the opcode's fixed operand layout.
// There is no length prefix; the opcode determines the size.
//
//	┌────────┬───────────┬───────────┬───────────┐
//	│ opcode │ operand 0 │ operand 1 │ operand 2 │
//	│ 1 byte │ 0-4 bytes │ 0-4 bytes │ 0-4 bytes │
//	└────────┴───────────┴───────────┴───────────┘
//
// Multi-byte operands are little-endian.
type Instruction struct {
	Offset uint32              // program offset of the opcode byte
	Op     Opcode              // opcode
	Args   [MaxOperands]uint32 // operand values, zero-extended
	Size   uint32              // encoded length including the opcode byte
}

// Decode decodes the instruction at offset in program.
func Decode(program []byte, offset uint32) (Instruction, error) {
	if uint64(offset) >= uint64(len(program)) {
		return Instruction{Offset: offset}, ErrJumpOutOfRange
	}

	op := Opcode(program[offset])
	if !op.Valid() {
		return Instruction{Offset: offset, Op: op, Size: 1}, ErrInvalidOpcode
	}

	inst := Instruction{Offset: offset, Op: op}
	pos := uint64(offset) + 1
	for i, kind := range op.Operands() {
		n := uint64(kind.Size())
		if pos+n > uint64(len(program)) {
			return inst, ErrTruncatedInstruction
		}
		b := program[pos : pos+n]
		switch n {
		case 1:
			inst.Args[i] = uint32(b[0])
		case 2:
			inst.Args[i] = uint32(binary.LittleEndian.Uint16(b))
		case 4:
			inst.Args[i] = binary.LittleEndian.Uint32(b)
		}
		pos += n
	}
	inst.Size = uint32(pos - uint64(offset))
	return inst, nil
}

// Encode appends the encoding of op with the given operand values to dst.
// Values are truncated to their operand width.
func Encode(dst []byte, op Opcode, args ...uint32) ([]byte, error) {
	kinds := op.Operands()
	if kinds == nil {
		return dst, fmt.Errorf("%w: 0x%02X", ErrInvalidOpcode, uint8(op))
	}
	if len(args) != len(kinds) {
		return dst, fmt.Errorf("%s takes %d operands, got %d", op, len(kinds), len(args))
	}
	dst = append(dst, byte(op))
	for i, kind := range kinds {
		switch kind.Size() {
		case 1:
			dst = append(dst, byte(args[i]))
		case 2:
			dst = binary.LittleEndian.AppendUint16(dst, uint16(args[i]))
		case 4:
			dst = binary.LittleEndian.AppendUint32(dst, args[i])
		}
	}
	return dst, nil
}

// MustEncode is like Encode but panics on error. Intended for tests and
// hand-built programs.
func MustEncode(dst []byte, op Opcode, args ...uint32) []byte {
	out, err := Encode(dst, op, args...)
	if err != nil {
		panic(err)
	}
	return out
}

// Next returns the offset of the instruction that follows i.
func (i Instruction) Next() uint32 {
	return i.Offset + i.Size
}

// String returns a human-readable representation of the instruction.
func (i Instruction) String() string {
	kinds := i.Op.Operands()
	if len(kinds) == 0 {
		return i.Op.String()
	}
	parts := make([]string, len(kinds))
	for n, kind := range kinds {
		parts[n] = formatOperand(kind, i.Args[n])
	}
	return fmt.Sprintf("%-8s %s", i.Op.String(), strings.Join(parts, ", "))
}

func formatOperand(kind OperandKind, v uint32) string {
	switch kind {
	case OperandReg:
		return RegisterName(uint8(v))
	case OperandAddr, OperandTarget:
		return fmt.Sprintf("0x%04X", v)
	default:
		return fmt.Sprintf("%d", v)
	}
}
