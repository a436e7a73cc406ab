package vm

// Opcode represents a VM instruction opcode.
type Opcode uint8

const (
	// ===== Move / Load Constant (0x01-0x07) =====
	OpMov    Opcode = 0x01 // R[d] = R[s]
	OpLcons  Opcode = 0x02 // R[d] = imm32
	OpLconsW Opcode = 0x03 // R[d] = imm16 (zero-extended)
	OpLconsB Opcode = 0x04 // R[d] = imm8 (zero-extended)

	// ===== Stack / Call (0x08-0x0F) =====
	OpPush Opcode = 0x08 // stack[++SP] = R[s]
	OpPop  Opcode = 0x09 // R[d] = stack[SP--]
	OpPop2 Opcode = 0x0A // R[a] = pop; R[b] = pop
	OpDup  Opcode = 0x0B // SP++; stack[SP] = stack[SP-1]
	OpCall Opcode = 0x0C // RA = IP+3; IP = target
	OpRet  Opcode = 0x0D // IP = RA

	// ===== Memory (0x10-0x17) =====
	OpStor   Opcode = 0x10 // data[addr:4] = R[s]
	OpStorW  Opcode = 0x11 // data[addr:2] = low16(R[s])
	OpStorB  Opcode = 0x12 // data[addr] = low8(R[s])
	OpLoad   Opcode = 0x13 // R[d] = data[addr:4]
	OpLoadW  Opcode = 0x14 // R[d] = data[addr:2]
	OpLoadB  Opcode = 0x15 // R[d] = data[addr]
	OpMemcpy Opcode = 0x16 // copy imm16 bytes from src to dst

	// ===== Increment / Decrement (0x18-0x1F) =====
	OpInc  Opcode = 0x18 // R[d]++
	OpDec  Opcode = 0x19 // R[d]--
	OpFinc Opcode = 0x1A // float(R[d]) += 1
	OpFdec Opcode = 0x1B // float(R[d]) -= 1

	// ===== Arithmetic (0x20-0x2F) =====
	OpAdd  Opcode = 0x20 // R[r] = R[a] + R[b] (uint32)
	OpSub  Opcode = 0x21 // R[r] = R[a] - R[b] (uint32)
	OpMul  Opcode = 0x22 // R[r] = R[a] * R[b] (uint32)
	OpDiv  Opcode = 0x23 // R[r] = R[a] / R[b] (uint32)
	OpMod  Opcode = 0x24 // R[r] = R[a] % R[b] (uint32)
	OpImul Opcode = 0x25 // R[r] = R[a] * R[b] (int32)
	OpIdiv Opcode = 0x26 // R[r] = R[a] / R[b] (int32)
	OpImod Opcode = 0x27 // R[r] = R[a] % R[b] (int32)
	OpFadd Opcode = 0x28 // R[r] = R[a] + R[b] (float32)
	OpFsub Opcode = 0x29 // R[r] = R[a] - R[b] (float32)
	OpFmul Opcode = 0x2A // R[r] = R[a] * R[b] (float32)
	OpFdiv Opcode = 0x2B // R[r] = R[a] / R[b] (float32)

	// ===== Bitwise (0x30-0x37) =====
	OpShl  Opcode = 0x30 // R[r] = R[a] << R[b]
	OpShr  Opcode = 0x31 // R[r] = R[a] >> R[b] (logical)
	OpIshr Opcode = 0x32 // R[r] = R[a] >> R[b] (arithmetic)
	OpAnd  Opcode = 0x33 // R[r] = R[a] & R[b]
	OpOr   Opcode = 0x34 // R[r] = R[a] | R[b]
	OpXor  Opcode = 0x35 // R[r] = R[a] ^ R[b]
	OpNot  Opcode = 0x36 // R[r] = ^R[a]

	// ===== Conversion (0x38-0x3F) =====
	OpU2I Opcode = 0x38 // relabel unsigned as signed (no bit change)
	OpI2U Opcode = 0x39 // relabel signed as unsigned (no bit change)
	OpI2F Opcode = 0x3A // R[d] = float32(int32(R[d]))
	OpF2I Opcode = 0x3B // R[d] = int(float32(R[d])), truncated toward zero

	// ===== Jumps (0x40-0x4F) =====
	OpJmp Opcode = 0x40 // IP = target
	OpJr  Opcode = 0x41 // IP = R[s]
	OpJz  Opcode = 0x42 // if R[s] == 0
	OpJnz Opcode = 0x43 // if R[s] != 0
	OpJe  Opcode = 0x44 // if R[a] == R[b]
	OpJne Opcode = 0x45 // if R[a] != R[b]
	OpJa  Opcode = 0x46 // if R[a] > R[b] (unsigned)
	OpJg  Opcode = 0x47 // if R[a] > R[b] (signed)
	OpJae Opcode = 0x48 // if R[a] >= R[b] (unsigned)
	OpJge Opcode = 0x49 // if R[a] >= R[b] (signed)
	OpJb  Opcode = 0x4A // if R[a] < R[b] (unsigned)
	OpJl  Opcode = 0x4B // if R[a] < R[b] (signed)
	OpJbe Opcode = 0x4C // if R[a] <= R[b] (unsigned)
	OpJle Opcode = 0x4D // if R[a] <= R[b] (signed)

	// ===== Text Output (0x50-0x57) =====
	OpPrint   Opcode = 0x50 // unsigned decimal
	OpPrinti  Opcode = 0x51 // signed decimal
	OpPrintf  Opcode = 0x52 // float
	OpPrintp  Opcode = 0x53 // NUL-terminated string at data[R[s]]
	OpPrintln Opcode = 0x54 // newline

	// ===== String Conversion (0x58-0x5F) =====
	OpI2S Opcode = 0x58 // data[addr] = itoa(int32(R[s])) + NUL
	OpS2I Opcode = 0x59 // R[d] = atoi(data[addr])

	// ===== Hardware I/O (0x60-0x6F) =====
	OpDigitalRead     Opcode = 0x60 // R[d] = digitalRead(pin)
	OpAnalogRead      Opcode = 0x61 // R[d] = analogRead(pin)
	OpDigitalWrite    Opcode = 0x62 // digitalWrite(pin, imm8)
	OpAnalogWrite     Opcode = 0x63 // analogWrite(pin, imm16)
	OpDigitalWriteReg Opcode = 0x64 // digitalWrite(pin, low8(R[s]))
	OpAnalogWriteReg  Opcode = 0x65 // analogWrite(pin, R[s])
	OpPinMode         Opcode = 0x66 // pinMode(pin, imm8)

	// ===== Control (0xF0-0xFF) =====
	OpHalt Opcode = 0xFF // stop execution
)

// OperandKind describes how one operand is encoded after the opcode byte.
type OperandKind uint8

const (
	OperandReg    OperandKind = iota // register index, 1 byte
	OperandImm8                      // 8-bit immediate
	OperandImm16                     // 16-bit little-endian immediate
	OperandImm32                     // 32-bit little-endian immediate
	OperandAddr                      // 16-bit data segment offset
	OperandTarget                    // 16-bit program offset
)

// Size returns the number of encoded bytes for the operand kind.
func (k OperandKind) Size() int {
	switch k {
	case OperandReg, OperandImm8:
		return 1
	case OperandImm16, OperandAddr, OperandTarget:
		return 2
	case OperandImm32:
		return 4
	default:
		return 0
	}
}

// String returns the string representation of an operand kind.
func (k OperandKind) String() string {
	switch k {
	case OperandReg:
		return "reg"
	case OperandImm8:
		return "imm8"
	case OperandImm16:
		return "imm16"
	case OperandImm32:
		return "imm32"
	case OperandAddr:
		return "addr"
	case OperandTarget:
		return "target"
	default:
		return "unknown"
	}
}

type opInfo struct {
	name     string
	operands []OperandKind
}

var (
	none     = []OperandKind{}
	reg1     = []OperandKind{OperandReg}
	reg2     = []OperandKind{OperandReg, OperandReg}
	reg3     = []OperandKind{OperandReg, OperandReg, OperandReg}
	regTgt   = []OperandKind{OperandReg, OperandTarget}
	reg2Tgt  = []OperandKind{OperandReg, OperandReg, OperandTarget}
	addrReg  = []OperandKind{OperandAddr, OperandReg}
	regAddr  = []OperandKind{OperandReg, OperandAddr}
	regPin   = []OperandKind{OperandReg, OperandImm8}
	pinImm8  = []OperandKind{OperandImm8, OperandImm8}
	pinReg   = []OperandKind{OperandImm8, OperandReg}
	pinImm16 = []OperandKind{OperandImm8, OperandImm16}
)

// opTable is indexed by opcode byte; a zero entry marks an undefined opcode.
var opTable = [256]*opInfo{
	OpMov:    {"MOV", reg2},
	OpLcons:  {"LCONS", []OperandKind{OperandReg, OperandImm32}},
	OpLconsW: {"LCONSW", []OperandKind{OperandReg, OperandImm16}},
	OpLconsB: {"LCONSB", []OperandKind{OperandReg, OperandImm8}},

	OpPush: {"PUSH", reg1},
	OpPop:  {"POP", reg1},
	OpPop2: {"POP2", reg2},
	OpDup:  {"DUP", none},
	OpCall: {"CALL", []OperandKind{OperandTarget}},
	OpRet:  {"RET", none},

	OpStor:   {"STOR", addrReg},
	OpStorW:  {"STORW", addrReg},
	OpStorB:  {"STORB", addrReg},
	OpLoad:   {"LOAD", regAddr},
	OpLoadW:  {"LOADW", regAddr},
	OpLoadB:  {"LOADB", regAddr},
	OpMemcpy: {"MEMCPY", []OperandKind{OperandImm16, OperandAddr, OperandAddr}},

	OpInc:  {"INC", reg1},
	OpDec:  {"DEC", reg1},
	OpFinc: {"FINC", reg1},
	OpFdec: {"FDEC", reg1},

	OpAdd:  {"ADD", reg3},
	OpSub:  {"SUB", reg3},
	OpMul:  {"MUL", reg3},
	OpDiv:  {"DIV", reg3},
	OpMod:  {"MOD", reg3},
	OpImul: {"IMUL", reg3},
	OpIdiv: {"IDIV", reg3},
	OpImod: {"IMOD", reg3},
	OpFadd: {"FADD", reg3},
	OpFsub: {"FSUB", reg3},
	OpFmul: {"FMUL", reg3},
	OpFdiv: {"FDIV", reg3},

	OpShl:  {"SHL", reg3},
	OpShr:  {"SHR", reg3},
	OpIshr: {"ISHR", reg3},
	OpAnd:  {"AND", reg3},
	OpOr:   {"OR", reg3},
	OpXor:  {"XOR", reg3},
	OpNot:  {"NOT", reg2},

	OpU2I: {"U2I", reg1},
	OpI2U: {"I2U", reg1},
	OpI2F: {"I2F", reg1},
	OpF2I: {"F2I", reg1},

	OpJmp: {"JMP", []OperandKind{OperandTarget}},
	OpJr:  {"JR", reg1},
	OpJz:  {"JZ", regTgt},
	OpJnz: {"JNZ", regTgt},
	OpJe:  {"JE", reg2Tgt},
	OpJne: {"JNE", reg2Tgt},
	OpJa:  {"JA", reg2Tgt},
	OpJg:  {"JG", reg2Tgt},
	OpJae: {"JAE", reg2Tgt},
	OpJge: {"JGE", reg2Tgt},
	OpJb:  {"JB", reg2Tgt},
	OpJl:  {"JL", reg2Tgt},
	OpJbe: {"JBE", reg2Tgt},
	OpJle: {"JLE", reg2Tgt},

	OpPrint:   {"PRINT", reg1},
	OpPrinti:  {"PRINTI", reg1},
	OpPrintf:  {"PRINTF", reg1},
	OpPrintp:  {"PRINTP", reg1},
	OpPrintln: {"PRINTLN", none},

	OpI2S: {"I2S", addrReg},
	OpS2I: {"S2I", regAddr},

	OpDigitalRead:     {"A_DR", regPin},
	OpAnalogRead:      {"A_AR", regPin},
	OpDigitalWrite:    {"A_DW", pinImm8},
	OpAnalogWrite:     {"A_AW", pinImm16},
	OpDigitalWriteReg: {"A_DWR", pinReg},
	OpAnalogWriteReg:  {"A_AWR", pinReg},
	OpPinMode:         {"A_PM", pinImm8},

	OpHalt: {"HALT", none},
}

var opByName = func() map[string]Opcode {
	m := make(map[string]Opcode)
	for i, info := range opTable {
		if info != nil {
			m[info.name] = Opcode(i)
		}
	}
	return m
}()

// Valid reports whether the opcode has a handler.
func (o Opcode) Valid() bool {
	return opTable[o] != nil
}

// Operands returns the operand layout that follows the opcode byte.
// It returns nil for undefined opcodes.
func (o Opcode) Operands() []OperandKind {
	if info := opTable[o]; info != nil {
		return info.operands
	}
	return nil
}

// Size returns the encoded length of the instruction including the opcode byte.
func (o Opcode) Size() int {
	n := 1
	for _, k := range o.Operands() {
		n += k.Size()
	}
	return n
}

// String returns the string representation of an opcode.
func (o Opcode) String() string {
	if info := opTable[o]; info != nil {
		return info.name
	}
	return "UNKNOWN"
}

// OpcodeFromString returns the opcode for a mnemonic (upper case).
func OpcodeFromString(s string) (Opcode, bool) {
	op, ok := opByName[s]
	return op, ok
}

// AllOpcodes returns every defined opcode in ascending order.
func AllOpcodes() []Opcode {
	ops := make([]Opcode, 0, len(opByName))
	for i, info := range opTable {
		if info != nil {
			ops = append(ops, Opcode(i))
		}
	}
	return ops
}
