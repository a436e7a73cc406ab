package asm

import (
	"bytes"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akhildatla/mcvm/pkg/vm"
)

func TestAssemble_Encoding(t *testing.T) {
	img, err := Assemble(`lcons r1, 0x12345678
lconsw r2, 513
lconsb t0, 7
add r3, r1, r2
halt`)
	require.NoError(t, err)

	want := []byte{
		0x02, 0x01, 0x78, 0x56, 0x34, 0x12,
		0x03, 0x02, 0x01, 0x02,
		0x04, 0x06, 0x07,
		0x20, 0x03, 0x01, 0x02,
		0xFF,
	}
	assert.Equal(t, want, img.Program)
	assert.Empty(t, img.Data)
}

func TestAssemble_NumberForms(t *testing.T) {
	tests := []struct {
		src  string
		want uint32
	}{
		{"lcons r0, 42", 42},
		{"lcons r0, -1", 0xFFFFFFFF},
		{"lcons r0, 0xff", 0xFF},
		{"lcons r0, 0b1010", 10},
		{"lcons r0, +5", 5},
		{"lcons r0, 010", 10},
		{"lcons r0, 1.5", math.Float32bits(1.5)},
		{"lcons r0, -0.25", math.Float32bits(-0.25)},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			img, err := Assemble(tt.src)
			require.NoError(t, err)
			inst, err := vm.Decode(img.Program, 0)
			require.NoError(t, err)
			assert.Equal(t, tt.want, inst.Args[1])
		})
	}
}

func TestAssemble_RegisterAliases(t *testing.T) {
	img, err := Assemble("mov t9, bp\nmov ra, sp\npush ip\nmov R5, T0")
	require.NoError(t, err)
	assert.Equal(t, []byte{
		0x01, 15, 28,
		0x01, 29, 30,
		0x08, 31,
		0x01, 5, 6,
	}, img.Program)
}

func TestAssemble_LabelsForwardAndBackward(t *testing.T) {
	img, err := Assemble(`
.start:
    jmp .end        ; forward
.mid:
    jmp .start      ; backward
.end: halt
`)
	require.NoError(t, err)
	assert.Equal(t, []byte{
		0x40, 0x06, 0x00,
		0x40, 0x00, 0x00,
		0xFF,
	}, img.Program)
}

func TestAssemble_DataDirectives(t *testing.T) {
	img, err := Assemble(`.asciz msg "hi\n"
.byte b 1, 255, -1
.word w 0x1234
.long l -2, 1.0
.zero buf 3
loadb r1, &b
stor &l, r1
lcons r2, &buf`)
	require.NoError(t, err)

	want := []byte{'h', 'i', '\n', 0}
	want = append(want, 1, 255, 255)
	want = append(want, 0x34, 0x12)
	want = append(want, 0xFE, 0xFF, 0xFF, 0xFF, 0x00, 0x00, 0x80, 0x3F)
	want = append(want, 0, 0, 0)
	assert.Equal(t, want, img.Data)

	inst, err := vm.Decode(img.Program, 0)
	require.NoError(t, err)
	assert.Equal(t, uint32(4), inst.Args[1], "&b")

	inst, err = vm.Decode(img.Program, inst.Next())
	require.NoError(t, err)
	assert.Equal(t, uint32(9), inst.Args[0], "&l")

	inst, err = vm.Decode(img.Program, inst.Next())
	require.NoError(t, err)
	assert.Equal(t, uint32(17), inst.Args[1], "&buf")
}

func TestAssemble_Sizing(t *testing.T) {
	img, err := Assemble(".scratch 128\n.stack 32\nhalt")
	require.NoError(t, err)
	assert.Equal(t, uint16(128), img.Scratch)
	assert.Equal(t, uint16(32), img.StackSize)
}

func TestAssemble_CaseInsensitiveMnemonics(t *testing.T) {
	img, err := Assemble("HALT\nHaLt\nhalt")
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF, 0xFF, 0xFF}, img.Program)
}

func TestAssemble_HardwareOps(t *testing.T) {
	img, err := Assemble(`a_pm 13, 1
a_dw 13, 1
a_aw 9, 300
a_dr r1, 2
a_ar r2, 0
a_dwr 13, r1
a_awr 9, r2`)
	require.NoError(t, err)
	assert.Equal(t, []byte{
		0x66, 13, 1,
		0x62, 13, 1,
		0x63, 9, 0x2C, 0x01,
		0x60, 1, 2,
		0x61, 2, 0,
		0x64, 13, 1,
		0x65, 9, 2,
	}, img.Program)
}

func TestAssemble_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		err  error
		line string
	}{
		{"unknown mnemonic", "nop", ErrUnknownMnemonic, "line 1"},
		{"operand count", "\nadd r1, r2", ErrOperandCount, "line 2"},
		{"register expected", "push 5", ErrOperandType, "line 1"},
		{"unknown register", "push r32", ErrOperandType, "line 1"},
		{"imm8 range", "lconsb r1, 256", ErrOutOfRange, "line 1"},
		{"imm16 range", "lconsw r1, 70000", ErrOutOfRange, "line 1"},
		{"float in imm16", "lconsw r1, 1.5", ErrOperandType, "line 1"},
		{"undefined label", "jmp .nowhere", ErrUndefined, "line 1"},
		{"undefined data", "load r1, &nothing", ErrUndefined, "line 1"},
		{"duplicate label", ".a:\n.a:\nhalt", ErrDuplicate, "line 2"},
		{"duplicate data", ".byte x 1\n.byte x 2", ErrDuplicate, "line 2"},
		{"label as address", ".a: load r1, .a", ErrOperandType, "line 1"},
		{"ref as target", ".byte x 1\njmp &x", ErrOperandType, "line 2"},
		{"asciz without string", ".asciz s 5", ErrOperandType, "line 1"},
		{"syntax", "lcons r1,, 2", ErrSyntax, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Assemble(tt.src)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.err)
			if tt.line != "" {
				assert.Contains(t, err.Error(), tt.line)
			}
		})
	}
}

func TestAssemble_DataTooLarge(t *testing.T) {
	_, err := Assemble(".zero big 65000\n.scratch 1000\nhalt")
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestAssemble_RunsOnVM(t *testing.T) {
	img, err := Assemble(`; count down from 3, printing each value
.asciz sep " "
    lconsb r1, 3
    lcons r2, &sep
.loop:
    print r1
    printp r2
    dec r1
    jnz r1, .loop
    println
    halt`)
	require.NoError(t, err)

	v, err := vm.NewVMFromImage(img)
	require.NoError(t, err)
	var out bytes.Buffer
	v.SetOutput(&out)
	require.NoError(t, v.Run())
	assert.Equal(t, "3 2 1 \n", out.String())
}

func TestAssemble_DisassemblyRoundTrip(t *testing.T) {
	src := `lcons r1, 10
.top:
dec r1
jnz r1, .top
stor &slot, r1
halt
.word slot 0`
	img, err := Assemble(src)
	require.NoError(t, err)

	// Re-assemble the instruction text produced by the decoder.
	var lines []byte
	for off := uint32(0); int(off) < len(img.Program); {
		inst, err := vm.Decode(img.Program, off)
		require.NoError(t, err)
		lines = append(lines, inst.String()+"\n"...)
		off = inst.Next()
	}
	again, err := Assemble(string(lines))
	require.NoError(t, err)
	assert.Equal(t, img.Program, again.Program)
}
