package repl

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/akhildatla/mcvm/pkg/hw"
	"github.com/akhildatla/mcvm/pkg/vm"
)

func newTestREPL() (*REPL, *bytes.Buffer) {
	var out bytes.Buffer
	return New(&out), &out
}

func TestREPL_New(t *testing.T) {
	r, _ := newTestREPL()
	if r.Machine() == nil {
		t.Fatal("New returned a REPL without a machine")
	}
	if r.Machine().Memory().Size() != DefaultDataSize {
		t.Errorf("expected %d byte data segment, got %d", DefaultDataSize, r.Machine().Memory().Size())
	}
}

func TestREPL_EvalPrints(t *testing.T) {
	r, out := newTestREPL()
	r.Eval("lconsb r1, 5\nprint r1")
	if out.String() != "5\n" {
		t.Errorf("expected \"5\\n\", got %q", out.String())
	}
}

func TestREPL_EvalNoTrailingNewlineWhenOutputEndsLine(t *testing.T) {
	r, out := newTestREPL()
	r.Eval("lconsb r1, 5\nprint r1\nprintln")
	if out.String() != "5\n" {
		t.Errorf("expected a single newline, got %q", out.String())
	}
}

func TestREPL_RegistersPersist(t *testing.T) {
	r, out := newTestREPL()
	r.Eval("lconsb r1, 20")
	r.Eval("lconsb r2, 22")
	r.Eval("add r3, r1, r2\nprint r3")
	if out.String() != "42\n" {
		t.Errorf("expected 42, got %q", out.String())
	}
	if r.Machine().Register(3) != 42 {
		t.Errorf("expected r3 = 42, got %d", r.Machine().Register(3))
	}
}

func TestREPL_StackPersists(t *testing.T) {
	r, out := newTestREPL()
	r.Eval("lconsb r1, 7\npush r1\nlconsb r1, 8\npush r1")
	if r.Machine().SP() != 2 {
		t.Fatalf("expected SP = 2 after two pushes, got %d", r.Machine().SP())
	}
	r.Eval("pop r2\npop r3\nprint r2\nprint r3")
	if out.String() != "87\n" {
		t.Errorf("expected 87, got %q", out.String())
	}
	if r.Machine().SP() != 0 {
		t.Errorf("expected empty stack, got SP = %d", r.Machine().SP())
	}
}

func TestREPL_DataPersists(t *testing.T) {
	r, out := newTestREPL()
	r.Eval(`.asciz greet "hi"`)
	r.Eval(`.long n 5`)
	r.Eval("lcons r1, &greet\nprintp r1\nload r2, &n\nprint r2")
	if out.String() != "hi5\n" {
		t.Errorf("expected hi5, got %q", out.String())
	}

	out.Reset()
	r.Feed(":symbols")
	if !strings.Contains(out.String(), "&greet = 0x0000") || !strings.Contains(out.String(), "&n = 0x0003") {
		t.Errorf("unexpected symbols output %q", out.String())
	}
}

func TestREPL_ProgramWritesSurviveNewDirectives(t *testing.T) {
	r, out := newTestREPL()
	r.Eval(".long n 1")
	r.Eval("lconsb r1, 9\nstor &n, r1")
	r.Eval(".long m 2")
	r.Eval("load r2, &n\nprint r2")
	if out.String() != "9\n" {
		t.Errorf("expected earlier store to be kept, got %q", out.String())
	}
}

func TestREPL_EvalErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"unknown mnemonic", "frobnicate r1", "Error:"},
		{"division by zero", "lconsb r1, 1\ndiv r2, r1, r0", "arithmetic fault"},
		{"undefined data", "lcons r1, &missing", "Error:"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r, out := newTestREPL()
			r.Eval(tc.input)
			if !strings.Contains(out.String(), tc.want) {
				t.Errorf("expected %q in output, got %q", tc.want, out.String())
			}
		})
	}
}

func TestREPL_StepLimitReturnsControl(t *testing.T) {
	r, out := newTestREPL()
	r.SetMaxSteps(100)
	r.Eval(".l: jmp .l")
	if !strings.Contains(out.String(), "instruction limit exceeded") {
		t.Fatalf("expected limit error, got %q", out.String())
	}

	out.Reset()
	r.Eval("lconsb r1, 1\nprint r1")
	if out.String() != "1\n" {
		t.Errorf("session should continue after a fault, got %q", out.String())
	}
}

func TestREPL_Multiline(t *testing.T) {
	r, out := newTestREPL()
	if r.Feed("lconsb r1, 3 \\") {
		t.Fatal("unexpected quit")
	}
	r.Feed("print r1")
	if !r.Continuing() {
		t.Error("expected continuation prompt state")
	}
	if out.Len() != 0 {
		t.Fatalf("multiline input ran early: %q", out.String())
	}
	r.Feed("")
	if out.String() != "3\n" {
		t.Errorf("expected 3, got %q", out.String())
	}
	if len(r.History()) != 1 {
		t.Errorf("expected one history entry, got %d", len(r.History()))
	}
}

func TestREPL_Quit(t *testing.T) {
	for _, cmd := range []string{":quit", ":exit", ":q", "quit", "exit"} {
		r, out := newTestREPL()
		if !r.Feed(cmd) {
			t.Errorf("expected %q to quit", cmd)
		}
		if !strings.Contains(out.String(), "Goodbye!") {
			t.Errorf("expected farewell for %q, got %q", cmd, out.String())
		}
	}
}

func TestREPL_LoadMnemonicIsNotACommand(t *testing.T) {
	r, out := newTestREPL()
	r.Eval(".long n 77")
	r.Feed("load r1, &n")
	r.Feed("print r1")
	if out.String() != "77\n" {
		t.Errorf("expected 77, got %q", out.String())
	}
}

func TestREPL_Help(t *testing.T) {
	for _, cmd := range []string{"help", ":help", ":h", ":?"} {
		r, out := newTestREPL()
		r.Feed(cmd)
		if !strings.Contains(out.String(), "mcvm REPL Commands") {
			t.Errorf("expected help text for %q, got %q", cmd, out.String())
		}
	}
}

func TestREPL_UnknownCommand(t *testing.T) {
	r, out := newTestREPL()
	r.Feed(":frob")
	if !strings.Contains(out.String(), "Unknown command :frob") {
		t.Errorf("unexpected output %q", out.String())
	}
}

func TestREPL_Regs(t *testing.T) {
	r, out := newTestREPL()
	r.Eval("lcons r4, -1")
	out.Reset()
	r.Feed(":regs")
	if !strings.Contains(out.String(), "r4   0xFFFFFFFF          -1") {
		t.Errorf("expected r4 line, got %q", out.String())
	}
	if !strings.Contains(out.String(), "ip ") {
		t.Errorf("expected named special registers, got %q", out.String())
	}
}

func TestREPL_Mem(t *testing.T) {
	r, out := newTestREPL()
	r.Eval(`.asciz s "AB"`)
	out.Reset()
	r.Feed(":mem 0 4")
	if out.String() != "0000: 41 42 00 00\n" {
		t.Errorf("unexpected dump %q", out.String())
	}

	out.Reset()
	r.Feed(fmt.Sprintf(":mem 0x%X 8", DefaultDataSize-4))
	if !strings.Contains(out.String(), "Error:") {
		t.Errorf("expected out of range error, got %q", out.String())
	}

	out.Reset()
	r.Feed(":mem")
	if !strings.Contains(out.String(), "Usage:") {
		t.Errorf("expected usage, got %q", out.String())
	}
}

func TestREPL_Stack(t *testing.T) {
	r, out := newTestREPL()
	r.Feed(":stack")
	if out.String() != "Stack is empty\n" {
		t.Errorf("unexpected output %q", out.String())
	}

	r.Eval("lconsb r1, 1\npush r1\nlconsb r1, 2\npush r1")
	out.Reset()
	r.Feed(":stack")
	want := "[  2] 0x00000002 2\n[  1] 0x00000001 1\n"
	if out.String() != want {
		t.Errorf("expected %q, got %q", want, out.String())
	}
}

func TestREPL_Reset(t *testing.T) {
	r, out := newTestREPL()
	r.Eval(".byte b 1\nlconsb r1, 9")
	r.Feed(":reset")
	if !strings.Contains(out.String(), "Session reset") {
		t.Errorf("unexpected output %q", out.String())
	}
	if r.Machine().Register(1) != 0 {
		t.Error("registers survived reset")
	}
	out.Reset()
	r.Feed(":symbols")
	if out.String() != "No data defined\n" {
		t.Errorf("data names survived reset: %q", out.String())
	}
}

func TestREPL_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.cbor")

	r, out := newTestREPL()
	r.Eval(".byte b 5\nlconsb r5, 99\npush r5")
	r.Feed(":save " + path)
	if !strings.Contains(out.String(), "Saved machine state") {
		t.Fatalf("save failed: %q", out.String())
	}

	r.Feed(":reset")
	if r.Machine().Register(5) != 0 {
		t.Fatal("reset did not clear r5")
	}

	out.Reset()
	r.Feed(":load " + path)
	if !strings.Contains(out.String(), "Loaded machine state") {
		t.Fatalf("load failed: %q", out.String())
	}
	if r.Machine().Register(5) != 99 {
		t.Errorf("expected r5 = 99, got %d", r.Machine().Register(5))
	}
	if b, _ := r.Machine().Memory().Load8(0); b != 5 {
		t.Errorf("expected data byte 5, got %d", b)
	}

	out.Reset()
	r.Eval("pop r6\nprint r6")
	if out.String() != "99\n" {
		t.Errorf("stack did not survive save/load, got %q", out.String())
	}
}

func TestREPL_LoadEmptyDataSnapshot(t *testing.T) {
	m, err := vm.NewVM(nil, nil, 0)
	if err != nil {
		t.Fatalf("NewVM: %v", err)
	}
	data, err := vm.MarshalSnapshot(m.Snapshot())
	if err != nil {
		t.Fatalf("MarshalSnapshot: %v", err)
	}
	path := filepath.Join(t.TempDir(), "empty.cbor")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write snapshot: %v", err)
	}

	r, out := newTestREPL()
	r.Feed(":load " + path)
	if !strings.Contains(out.String(), "Loaded machine state") {
		t.Fatalf("load failed: %q", out.String())
	}

	out.Reset()
	r.Eval(".byte b 7")
	if !strings.HasPrefix(out.String(), "Error:") {
		t.Errorf("expected an error for data in an empty segment, got %q", out.String())
	}
	if len(r.Machine().Memory().Bytes()) != 0 {
		t.Errorf("data segment changed size")
	}

	out.Reset()
	r.Eval("lconsb r1, 3\nprint r1")
	if out.String() != "3\n" {
		t.Errorf("session unusable after rejected data, got %q", out.String())
	}
}

func TestREPL_LoadMissingFile(t *testing.T) {
	r, out := newTestREPL()
	r.Feed(":load " + filepath.Join(t.TempDir(), "nope.cbor"))
	if !strings.Contains(out.String(), "Error:") {
		t.Errorf("expected error, got %q", out.String())
	}
}

func TestREPL_History(t *testing.T) {
	r, out := newTestREPL()
	r.Eval("lconsb r1, 1")
	r.Eval("inc r1\ninc r1")
	out.Reset()
	r.Feed(":history")
	want := "  1: lconsb r1, 1\n  2: inc r1; inc r1\n"
	if out.String() != want {
		t.Errorf("expected %q, got %q", want, out.String())
	}
}

func TestREPL_Disasm(t *testing.T) {
	r, out := newTestREPL()
	r.Feed(":disasm")
	if out.String() != "Nothing assembled yet\n" {
		t.Errorf("unexpected output %q", out.String())
	}

	r.Eval("lconsb r1, 5")
	out.Reset()
	r.Feed(":disasm")
	if !strings.Contains(out.String(), "LCONSB") || !strings.Contains(out.String(), "HALT") {
		t.Errorf("unexpected disassembly %q", out.String())
	}
}

func TestREPL_Hardware(t *testing.T) {
	r, _ := newTestREPL()
	rec := hw.NewRecorder(hw.Null{})
	r.SetHardware(rec)
	r.Eval("a_dw 13, 1")
	r.Feed(":reset")
	r.Eval("a_dw 13, 0")
	if rec.Len() != 2 {
		t.Errorf("expected backend to survive reset, got %d events", rec.Len())
	}
}

func TestREPL_SetSizes(t *testing.T) {
	r, out := newTestREPL()
	r.SetSizes(8, 3)
	if r.Machine().Memory().Size() != 8 {
		t.Errorf("expected 8 byte data segment, got %d", r.Machine().Memory().Size())
	}
	r.Eval(".zero big 16")
	if !strings.Contains(out.String(), "Error:") {
		t.Errorf("expected data limit error, got %q", out.String())
	}
	out.Reset()
	r.Eval("push r0\npush r0\npush r0")
	if !strings.Contains(out.String(), vm.ErrStackOverflow.Error()) {
		t.Errorf("expected stack overflow, got %q", out.String())
	}
}

func TestREPL_Start(t *testing.T) {
	r, out := newTestREPL()
	in := strings.NewReader("lconsb r1, 4\nprint r1\n:quit\nprint r1\n")
	r.Start(in)

	got := out.String()
	if !strings.HasPrefix(got, "mcvm REPL") {
		t.Errorf("expected banner, got %q", got)
	}
	if strings.Count(got, "4\n") != 1 {
		t.Errorf("expected input after quit to be ignored, got %q", got)
	}
	if !strings.Contains(got, "Goodbye!") {
		t.Errorf("expected farewell, got %q", got)
	}
}
