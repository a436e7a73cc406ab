package vm

import (
	"fmt"
	"math"
	"strconv"

	"github.com/akhildatla/mcvm/pkg/hw"
)

// exec runs one decoded instruction and returns the offset of the next one.
func (vm *VM) exec(inst Instruction) (uint32, error) {
	a := inst.Args
	vm.redirected = false

	var err error
	switch inst.Op {
	// ===== Move / Load Constant =====
	case OpMov:
		err = vm.unary(a[0], a[1], func(w Word) Word { return w })

	case OpLcons, OpLconsW, OpLconsB:
		err = vm.set(a[0], Word(a[1]))

	// ===== Stack / Call =====
	case OpPush:
		var w Word
		if w, err = vm.reg(a[0]); err == nil {
			err = vm.push(w)
		}

	case OpPop:
		err = vm.pop(a[0])

	case OpPop2:
		if err = vm.pop(a[0]); err == nil {
			err = vm.pop(a[1])
		}

	case OpDup:
		var top Word
		if top, err = vm.stack.Peek(vm.SP()); err == nil {
			err = vm.push(top)
		}

	case OpCall:
		vm.registers.R[RegRA] = Word(inst.Next())
		vm.jump(a[0])

	case OpRet:
		vm.jump(uint32(vm.registers.R[RegRA]))

	// ===== Memory =====
	case OpStor:
		err = vm.store(a[1], func(w Word) error { return vm.memory.Store32(a[0], uint32(w)) })

	case OpStorW:
		err = vm.store(a[1], func(w Word) error { return vm.memory.Store16(a[0], uint16(w)) })

	case OpStorB:
		err = vm.store(a[1], func(w Word) error { return vm.memory.Store8(a[0], uint8(w)) })

	case OpLoad:
		var v uint32
		if v, err = vm.memory.Load32(a[1]); err == nil {
			err = vm.set(a[0], Word(v))
		}

	case OpLoadW:
		var v uint16
		if v, err = vm.memory.Load16(a[1]); err == nil {
			err = vm.set(a[0], Word(v))
		}

	case OpLoadB:
		var v uint8
		if v, err = vm.memory.Load8(a[1]); err == nil {
			err = vm.set(a[0], Word(v))
		}

	case OpMemcpy:
		err = vm.memory.Copy(a[1], a[2], int(a[0]))

	// ===== Increment / Decrement =====
	case OpInc:
		err = vm.unary(a[0], a[0], func(w Word) Word { return w + 1 })

	case OpDec:
		err = vm.unary(a[0], a[0], func(w Word) Word { return w - 1 })

	case OpFinc:
		err = vm.unary(a[0], a[0], func(w Word) Word { return FromFloat(w.Float() + 1) })

	case OpFdec:
		err = vm.unary(a[0], a[0], func(w Word) Word { return FromFloat(w.Float() - 1) })

	// ===== Arithmetic =====
	case OpAdd:
		err = vm.binary(a, func(x, y Word) (Word, error) { return x + y, nil })

	case OpSub:
		err = vm.binary(a, func(x, y Word) (Word, error) { return x - y, nil })

	case OpMul:
		err = vm.binary(a, func(x, y Word) (Word, error) { return x * y, nil })

	case OpDiv:
		err = vm.binary(a, func(x, y Word) (Word, error) {
			if y == 0 {
				return 0, ErrDivisionByZero
			}
			return x / y, nil
		})

	case OpMod:
		err = vm.binary(a, func(x, y Word) (Word, error) {
			if y == 0 {
				return 0, ErrDivisionByZero
			}
			return x % y, nil
		})

	case OpImul:
		err = vm.binary(a, func(x, y Word) (Word, error) {
			return FromSigned(x.Signed() * y.Signed()), nil
		})

	case OpIdiv:
		// MinInt32 / -1 wraps to MinInt32 without trapping.
		err = vm.binary(a, func(x, y Word) (Word, error) {
			if y == 0 {
				return 0, ErrDivisionByZero
			}
			return FromSigned(x.Signed() / y.Signed()), nil
		})

	case OpImod:
		err = vm.binary(a, func(x, y Word) (Word, error) {
			if y == 0 {
				return 0, ErrDivisionByZero
			}
			return FromSigned(x.Signed() % y.Signed()), nil
		})

	case OpFadd:
		err = vm.binary(a, func(x, y Word) (Word, error) { return FromFloat(x.Float() + y.Float()), nil })

	case OpFsub:
		err = vm.binary(a, func(x, y Word) (Word, error) { return FromFloat(x.Float() - y.Float()), nil })

	case OpFmul:
		err = vm.binary(a, func(x, y Word) (Word, error) { return FromFloat(x.Float() * y.Float()), nil })

	case OpFdiv:
		err = vm.binary(a, func(x, y Word) (Word, error) { return FromFloat(x.Float() / y.Float()), nil })

	// ===== Bitwise =====
	case OpShl:
		err = vm.binary(a, func(x, y Word) (Word, error) { return x << uint32(y), nil })

	case OpShr:
		err = vm.binary(a, func(x, y Word) (Word, error) { return x >> uint32(y), nil })

	case OpIshr:
		err = vm.binary(a, func(x, y Word) (Word, error) { return FromSigned(x.Signed() >> uint32(y)), nil })

	case OpAnd:
		err = vm.binary(a, func(x, y Word) (Word, error) { return x & y, nil })

	case OpOr:
		err = vm.binary(a, func(x, y Word) (Word, error) { return x | y, nil })

	case OpXor:
		err = vm.binary(a, func(x, y Word) (Word, error) { return x ^ y, nil })

	case OpNot:
		err = vm.unary(a[0], a[1], func(w Word) Word { return ^w })

	// ===== Conversion =====
	case OpU2I, OpI2U:
		// Registers carry no type tag; only the register index is checked.
		_, err = vm.reg(a[0])

	case OpI2F:
		err = vm.unary(a[0], a[0], Word.IntToFloat)

	case OpF2I:
		err = vm.unary(a[0], a[0], Word.FloatToInt)

	// ===== Jumps =====
	case OpJmp:
		vm.jump(a[0])

	case OpJr:
		var w Word
		if w, err = vm.reg(a[0]); err == nil {
			vm.jump(uint32(w))
		}

	case OpJz:
		err = vm.branch1(a, func(w Word) bool { return w == 0 })

	case OpJnz:
		err = vm.branch1(a, func(w Word) bool { return w != 0 })

	case OpJe:
		err = vm.branch2(a, func(x, y Word) bool { return x == y })

	case OpJne:
		err = vm.branch2(a, func(x, y Word) bool { return x != y })

	case OpJa:
		err = vm.branch2(a, func(x, y Word) bool { return x.Unsigned() > y.Unsigned() })

	case OpJg:
		err = vm.branch2(a, func(x, y Word) bool { return x.Signed() > y.Signed() })

	case OpJae:
		err = vm.branch2(a, func(x, y Word) bool { return x.Unsigned() >= y.Unsigned() })

	case OpJge:
		err = vm.branch2(a, func(x, y Word) bool { return x.Signed() >= y.Signed() })

	case OpJb:
		err = vm.branch2(a, func(x, y Word) bool { return x.Unsigned() < y.Unsigned() })

	case OpJl:
		err = vm.branch2(a, func(x, y Word) bool { return x.Signed() < y.Signed() })

	case OpJbe:
		err = vm.branch2(a, func(x, y Word) bool { return x.Unsigned() <= y.Unsigned() })

	case OpJle:
		err = vm.branch2(a, func(x, y Word) bool { return x.Signed() <= y.Signed() })

	// ===== Text Output =====
	case OpPrint:
		var w Word
		if w, err = vm.reg(a[0]); err == nil {
			err = vm.print("%d", w.Unsigned())
		}

	case OpPrinti:
		var w Word
		if w, err = vm.reg(a[0]); err == nil {
			err = vm.print("%d", w.Signed())
		}

	case OpPrintf:
		var w Word
		if w, err = vm.reg(a[0]); err == nil {
			err = vm.print("%s", FormatFloat(w.Float()))
		}

	case OpPrintp:
		var w Word
		if w, err = vm.reg(a[0]); err == nil {
			var s []byte
			if s, err = vm.memory.CString(uint32(w)); err == nil {
				err = vm.print("%s", s)
			}
		}

	case OpPrintln:
		err = vm.print("\n")

	// ===== String Conversion =====
	case OpI2S:
		var w Word
		if w, err = vm.reg(a[1]); err == nil {
			text := strconv.AppendInt(nil, int64(w.Signed()), 10)
			var buf []byte
			if buf, err = vm.memory.Slice(a[0], len(text)+1); err == nil {
				copy(buf, text)
				buf[len(text)] = 0
			}
		}

	case OpS2I:
		var buf []byte
		if buf, err = vm.memory.Slice(a[1], 1); err == nil {
			buf = vm.memory.Bytes()[a[1]:]
			if v, ok := ParseDecimal(buf); ok {
				err = vm.set(a[0], v)
			} else {
				_, err = vm.reg(a[0])
			}
		}

	// ===== Hardware I/O =====
	case OpDigitalRead:
		var level hw.Level
		if level, err = vm.pins().DigitalRead(uint8(a[1])); err == nil {
			err = vm.set(a[0], Word(level))
		} else {
			err = hwErr(err)
		}

	case OpAnalogRead:
		var v uint32
		if v, err = vm.pins().AnalogRead(uint8(a[1])); err == nil {
			err = vm.set(a[0], Word(v))
		} else {
			err = hwErr(err)
		}

	case OpDigitalWrite:
		err = hwErr(vm.pins().DigitalWrite(uint8(a[0]), hw.Level(a[1])))

	case OpAnalogWrite:
		err = hwErr(vm.pins().AnalogWrite(uint8(a[0]), a[1]))

	case OpDigitalWriteReg:
		var w Word
		if w, err = vm.reg(a[1]); err == nil {
			err = hwErr(vm.pins().DigitalWrite(uint8(a[0]), hw.Level(uint8(w))))
		}

	case OpAnalogWriteReg:
		var w Word
		if w, err = vm.reg(a[1]); err == nil {
			err = hwErr(vm.pins().AnalogWrite(uint8(a[0]), w.Unsigned()))
		}

	case OpPinMode:
		err = hwErr(vm.pins().PinMode(uint8(a[0]), hw.PinMode(a[1])))

	// ===== Control =====
	case OpHalt:
		vm.halt()
		return 0, nil

	default:
		return 0, fmt.Errorf("%w: 0x%02X", ErrInvalidOpcode, uint8(inst.Op))
	}

	if err != nil {
		return 0, err
	}
	if !vm.redirected {
		return inst.Next(), nil
	}
	target := uint32(vm.registers.R[RegIP])
	if uint64(target) >= uint64(len(vm.program)) {
		return 0, fmt.Errorf("%w: 0x%04X (program size %d)", ErrJumpOutOfRange, target, len(vm.program))
	}
	return target, nil
}

func (vm *VM) reg(idx uint32) (Word, error) {
	if idx > math.MaxUint8 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidRegister, idx)
	}
	return vm.registers.Get(uint8(idx))
}

// set writes a register. Writing IP redirects control flow to the value.
func (vm *VM) set(idx uint32, w Word) error {
	if idx > math.MaxUint8 {
		return fmt.Errorf("%w: %d", ErrInvalidRegister, idx)
	}
	if err := vm.registers.Set(uint8(idx), w); err != nil {
		return err
	}
	if uint8(idx) == RegIP {
		vm.redirected = true
	}
	return nil
}

func (vm *VM) jump(target uint32) {
	vm.registers.R[RegIP] = Word(target)
	vm.redirected = true
}

func (vm *VM) push(w Word) error {
	sp, err := vm.stack.Push(vm.SP(), w)
	if err != nil {
		return err
	}
	vm.registers.R[RegSP] = Word(sp)
	return nil
}

// pop moves the top of stack into register dst. SP is updated before dst
// is written, so "pop sp" leaves SP holding the popped value.
func (vm *VM) pop(dst uint32) error {
	if _, err := vm.reg(dst); err != nil {
		return err
	}
	w, sp, err := vm.stack.Pop(vm.SP())
	if err != nil {
		return err
	}
	vm.registers.R[RegSP] = Word(sp)
	return vm.set(dst, w)
}

func (vm *VM) store(src uint32, write func(Word) error) error {
	w, err := vm.reg(src)
	if err != nil {
		return err
	}
	return write(w)
}

func (vm *VM) unary(dst, src uint32, f func(Word) Word) error {
	w, err := vm.reg(src)
	if err != nil {
		return err
	}
	return vm.set(dst, f(w))
}

func (vm *VM) binary(a [MaxOperands]uint32, f func(x, y Word) (Word, error)) error {
	x, err := vm.reg(a[1])
	if err != nil {
		return err
	}
	y, err := vm.reg(a[2])
	if err != nil {
		return err
	}
	r, err := f(x, y)
	if err != nil {
		return err
	}
	return vm.set(a[0], r)
}

func (vm *VM) branch1(a [MaxOperands]uint32, cond func(Word) bool) error {
	w, err := vm.reg(a[0])
	if err != nil {
		return err
	}
	if cond(w) {
		vm.jump(a[1])
	}
	return nil
}

func (vm *VM) branch2(a [MaxOperands]uint32, cond func(x, y Word) bool) error {
	x, err := vm.reg(a[0])
	if err != nil {
		return err
	}
	y, err := vm.reg(a[1])
	if err != nil {
		return err
	}
	if cond(x, y) {
		vm.jump(a[2])
	}
	return nil
}

func hwErr(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrHardware, err)
}

// FormatFloat formats f the way C's "%f" does: six decimals, and
// "inf", "-inf" or "nan" for non-finite values.
func FormatFloat(f float32) string {
	d := float64(f)
	switch {
	case math.IsNaN(d):
		return "nan"
	case math.IsInf(d, 1):
		return "inf"
	case math.IsInf(d, -1):
		return "-inf"
	}
	return strconv.FormatFloat(d, 'f', 6, 64)
}

// ParseDecimal parses a decimal integer the way C's "%d" conversion does:
// leading whitespace is skipped, an optional sign is accepted, and digits
// are consumed until the first non-digit. Overflow wraps modulo 2^32.
// ok is false when no digits were found.
func ParseDecimal(b []byte) (w Word, ok bool) {
	i := 0
	for i < len(b) && (b[i] == ' ' || (b[i] >= '\t' && b[i] <= '\r')) {
		i++
	}
	neg := false
	if i < len(b) && (b[i] == '+' || b[i] == '-') {
		neg = b[i] == '-'
		i++
	}
	var v uint32
	start := i
	for i < len(b) && b[i] >= '0' && b[i] <= '9' {
		v = v*10 + uint32(b[i]-'0')
		i++
	}
	if i == start {
		return 0, false
	}
	if neg {
		v = -v
	}
	return Word(v), true
}
