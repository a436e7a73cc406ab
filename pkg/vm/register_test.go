package vm

import (
	"errors"
	"math"
	"testing"
)

func TestRegisterFile_GetSet(t *testing.T) {
	rf := NewRegisterFile()
	if err := rf.Set(5, 42); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if w, err := rf.Get(5); err != nil || w != 42 {
		t.Errorf("expected 42, got %d (%v)", w, err)
	}
	if err := rf.Set(NumRegisters, 1); !errors.Is(err, ErrInvalidRegister) {
		t.Errorf("expected ErrInvalidRegister, got %v", err)
	}
	if _, err := rf.Get(255); !errors.Is(err, ErrInvalidRegister) {
		t.Errorf("expected ErrInvalidRegister, got %v", err)
	}

	rf.Reset()
	if w, _ := rf.Get(5); w != 0 {
		t.Errorf("expected 0 after reset, got %d", w)
	}
}

func TestWord_Interpretations(t *testing.T) {
	w := FromSigned(-1)
	if w.Unsigned() != math.MaxUint32 || w.Signed() != -1 {
		t.Errorf("unexpected views of -1: %d %d", w.Unsigned(), w.Signed())
	}
	f := FromFloat(1.0)
	if uint32(f) != 0x3F800000 || f.Float() != 1.0 {
		t.Errorf("unexpected float bits 0x%X", uint32(f))
	}
}

func TestWord_FloatToInt(t *testing.T) {
	tests := []struct {
		in   float32
		want Word
	}{
		{2.9, 2},
		{-2.9, FromSigned(-2)},
		{0.5, 0},
		{float32(math.NaN()), 0},
		{-1e20, FromSigned(math.MinInt32)},
		{1e20, math.MaxUint32},
		{3e9, 3000000000},
	}
	for _, tc := range tests {
		if got := FromFloat(tc.in).FloatToInt(); got != tc.want {
			t.Errorf("FloatToInt(%v) = 0x%X, want 0x%X", tc.in, uint32(got), uint32(tc.want))
		}
	}
}

func TestWord_IntToFloat(t *testing.T) {
	if got := FromSigned(-5).IntToFloat().Float(); got != -5 {
		t.Errorf("expected -5, got %v", got)
	}
	if got := Word(16777217).IntToFloat().Float(); got != 16777216 {
		t.Errorf("expected rounding to 16777216, got %v", got)
	}
	// The register is read as signed: all ones is -1, not 2^32-1.
	if got := Word(0xFFFFFFFF).IntToFloat().Float(); got != -1 {
		t.Errorf("expected -1, got %v", got)
	}
	if got := Word(0x80000000).IntToFloat().Float(); got != -2147483648 {
		t.Errorf("expected -2147483648, got %v", got)
	}
}

func TestRegisterNames(t *testing.T) {
	tests := []struct {
		name string
		idx  uint8
	}{
		{"r0", 0},
		{"r27", 27},
		{"bp", RegBP},
		{"ra", RegRA},
		{"sp", RegSP},
		{"ip", RegIP},
		{"t0", 6},
		{"t9", 15},
	}
	for _, tc := range tests {
		idx, ok := RegisterByName(tc.name)
		if !ok || idx != tc.idx {
			t.Errorf("RegisterByName(%q) = %d, %v; want %d", tc.name, idx, ok, tc.idx)
		}
	}
	for _, bad := range []string{"r32", "t10", "x1", "r", "rx"} {
		if _, ok := RegisterByName(bad); ok {
			t.Errorf("RegisterByName(%q) should fail", bad)
		}
	}

	if RegisterName(31) != "ip" || RegisterName(28) != "bp" || RegisterName(7) != "r7" {
		t.Error("unexpected register names")
	}
}
