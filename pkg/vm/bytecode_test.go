package vm

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestSerializeImage_RoundTrip(t *testing.T) {
	img := &Image{
		Program:   code(ins(OpLconsB, 1, 7), ins(OpPrint, 1), ins(OpHalt)),
		Data:      []byte("hello\x00"),
		Scratch:   128,
		StackSize: 64,
	}
	data, err := SerializeImage(img)
	if err != nil {
		t.Fatalf("SerializeImage failed: %v", err)
	}
	if !bytes.HasPrefix(data, []byte(BytecodeMagic)) {
		t.Errorf("missing magic: % X", data[:4])
	}

	got, err := DeserializeImage(data)
	if err != nil {
		t.Fatalf("DeserializeImage failed: %v", err)
	}
	if !bytes.Equal(got.Program, img.Program) || !bytes.Equal(got.Data, img.Data) {
		t.Errorf("contents differ: %+v vs %+v", got, img)
	}
	if got.Scratch != 128 || got.StackSize != 64 {
		t.Errorf("sizing lost: scratch %d stack %d", got.Scratch, got.StackSize)
	}
}

func TestSerializeImage_Layout(t *testing.T) {
	data, err := SerializeImage(&Image{Program: []byte{0xFF}, Data: []byte{1, 2}, Scratch: 3})
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{
		'M', 'C', 'B', 'C',
		1, 0, // version
		3, 0, // scratch
		0, 0, // stack size
		1, 0, 0, 0, 0xFF,
		2, 0, 0, 0, 1, 2,
	}
	if !bytes.Equal(data, want) {
		t.Errorf("expected % X, got % X", want, data)
	}
}

func TestSerializeImage_TooLarge(t *testing.T) {
	_, err := SerializeImage(&Image{Data: make([]byte, 10), Scratch: 0xFFFF})
	if !errors.Is(err, ErrDataTooLarge) {
		t.Errorf("expected ErrDataTooLarge, got %v", err)
	}
}

func TestDeserializeImage_Errors(t *testing.T) {
	good, err := SerializeImage(&Image{Program: []byte{0xFF}, Data: []byte{1}})
	if err != nil {
		t.Fatal(err)
	}

	badVersion := append([]byte(nil), good...)
	badVersion[4] = 9

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"bad magic", append([]byte("XXXX"), good[4:]...), ErrInvalidMagic},
		{"bad version", badVersion, ErrInvalidVersion},
		{"truncated program", good[:13], io.ErrUnexpectedEOF},
		{"truncated data", good[:len(good)-1], io.ErrUnexpectedEOF},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := DeserializeImage(tc.data); !errors.Is(err, tc.want) {
				t.Errorf("expected %v, got %v", tc.want, err)
			}
		})
	}

	if _, err := DeserializeImage([]byte("MC")); err == nil {
		t.Error("expected error for short input")
	}
}

func TestDisassemble(t *testing.T) {
	img := &Image{
		Program: append(code(ins(OpLconsB, 1, 5), ins(OpJmp, 0)), 0x07, byte(OpHalt)),
		Data:    []byte("ab"),
	}
	out := Disassemble(img)

	for _, want := range []string{
		"; Disassembled from MCVM bytecode",
		"0000: LCONSB   r1, 5",
		"0003: JMP      0x0000",
		"0006: .byte 0x07 ; invalid opcode",
		"0007: HALT",
		"; 0000: 61 62",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
}
