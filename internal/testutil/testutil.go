// Package testutil provides testing utilities for mcvm tests.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	dataframe "github.com/rocketlaunchr/dataframe-go"

	"github.com/akhildatla/mcvm/pkg/vm"
)

// TempFile creates a file with the given name and content in a fresh
// temporary directory. The file is removed when the test finishes.
func TempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

// TempImage serializes img into a temporary .mcbc file.
func TempImage(t *testing.T, img *vm.Image) string {
	t.Helper()
	data, err := vm.SerializeImage(img)
	if err != nil {
		t.Fatalf("failed to serialize image: %v", err)
	}
	return TempFile(t, "test.mcbc", string(data))
}

// Inst is one hand-encoded instruction.
type Inst struct {
	Op   vm.Opcode
	Args []uint32
}

// I builds an Inst.
func I(op vm.Opcode, args ...uint32) Inst {
	return Inst{Op: op, Args: args}
}

// Program encodes insts back to back. It panics on a malformed instruction.
func Program(insts ...Inst) []byte {
	var out []byte
	for _, in := range insts {
		out = vm.MustEncode(out, in.Op, in.Args...)
	}
	return out
}

// StimulusCSV returns a small scripted reading table: pin 2 goes low then
// high, pin 0 reads two analog values.
func StimulusCSV() string {
	return `pin,kind,value
2,digital,0
2,digital,1
0,analog,100
0,analog,300`
}

// MakeStimulusFrame returns the StimulusCSV table as a frame.
func MakeStimulusFrame() *dataframe.DataFrame {
	return dataframe.NewDataFrame(
		dataframe.NewSeriesInt64("pin", nil, 2, 2, 0, 0),
		dataframe.NewSeriesString("kind", nil, "digital", "digital", "analog", "analog"),
		dataframe.NewSeriesInt64("value", nil, 0, 1, 100, 300),
	)
}

// AssertRegister checks one register of a final register file.
func AssertRegister(t *testing.T, regs [vm.NumRegisters]vm.Word, idx uint8, want vm.Word) {
	t.Helper()
	if regs[idx] != want {
		t.Errorf("%s: expected %d (0x%X), got %d (0x%X)",
			vm.RegisterName(idx), want, uint32(want), regs[idx], uint32(regs[idx]))
	}
}
