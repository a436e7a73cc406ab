// Package repl implements an interactive session against one persistent
// machine. Each input is assembled and run; registers, data and the stack
// carry over to the next input.
package repl

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/akhildatla/mcvm/pkg/asm"
	"github.com/akhildatla/mcvm/pkg/hw"
	"github.com/akhildatla/mcvm/pkg/vm"
)

var log = commonlog.GetLogger("mcvm.repl")

const (
	Prompt     = "mcvm> "
	PromptCont = "...> "

	// DefaultDataSize is the session data segment: directives fill it from
	// address 0, the rest is free scratch.
	DefaultDataSize = 4096

	// DefaultMaxSteps bounds each input so a runaway loop returns control.
	DefaultMaxSteps = 1_000_000
)

// REPL provides an interactive Read-Eval-Print Loop.
type REPL struct {
	machine  *vm.VM
	asm      *asm.Incremental
	hardware hw.Hardware
	out      io.Writer
	progOut  *outputTracker

	dataSize  int
	stackSize int
	maxSteps  int64

	history     []string
	last        *vm.Image
	multiline   strings.Builder
	inMultiline bool
}

// New creates a new REPL instance writing program output to out.
func New(out io.Writer) *REPL {
	r := &REPL{
		out:       out,
		progOut:   &outputTracker{w: out},
		dataSize:  DefaultDataSize,
		stackSize: vm.DefaultStackSize,
		maxSteps:  DefaultMaxSteps,
	}
	r.reset()
	return r
}

// SetHardware sets the pin backend used by every input.
func (r *REPL) SetHardware(h hw.Hardware) {
	r.hardware = h
	r.machine.SetHardware(h)
}

// SetMaxSteps sets the per-input instruction budget. Zero means unlimited.
func (r *REPL) SetMaxSteps(n int64) {
	r.maxSteps = n
	r.machine.SetMaxSteps(n)
}

// SetSizes sets the data segment and stack size and resets the session.
func (r *REPL) SetSizes(data, stack int) {
	if data > 0 && data <= vm.MaxDataSize {
		r.dataSize = data
	}
	if stack > 0 {
		r.stackSize = stack
	}
	r.reset()
}

// Machine returns the session VM.
func (r *REPL) Machine() *vm.VM { return r.machine }

// Continuing reports whether multiline input is being collected.
func (r *REPL) Continuing() bool { return r.inMultiline }

// History returns the evaluated inputs.
func (r *REPL) History() []string { return r.history }

func (r *REPL) reset() {
	// NewVM cannot fail: dataSize is bounded by SetSizes.
	m, _ := vm.NewVM(nil, nil, r.dataSize)
	m.SetStackSize(r.stackSize)
	m.SetOutput(r.progOut)
	m.SetMaxSteps(r.maxSteps)
	if r.hardware != nil {
		m.SetHardware(r.hardware)
	}
	r.machine = m
	r.asm = asm.NewIncremental()
	r.asm.MaxData = r.dataSize
	r.last = nil
}

// Start reads lines from in until EOF or quit.
func (r *REPL) Start(in io.Reader) {
	scanner := bufio.NewScanner(in)

	fmt.Fprintln(r.out, "mcvm REPL - type :help for commands, :quit to exit")

	for {
		if r.inMultiline {
			fmt.Fprint(r.out, PromptCont)
		} else {
			fmt.Fprint(r.out, Prompt)
		}
		if !scanner.Scan() {
			break
		}
		if r.Feed(scanner.Text()) {
			break
		}
	}
}

// Feed processes one line of input and reports whether the session should
// end. A line ending in \ starts multiline input, which runs at the next
// empty line.
func (r *REPL) Feed(line string) (quit bool) {
	if r.inMultiline {
		if strings.TrimSpace(line) == "" {
			r.inMultiline = false
			input := r.multiline.String()
			r.multiline.Reset()
			r.Eval(input)
		} else {
			r.multiline.WriteString(strings.TrimSuffix(line, "\\"))
			r.multiline.WriteString("\n")
		}
		return false
	}

	if handled, q := r.handleCommand(line); handled {
		return q
	}

	if strings.HasSuffix(line, "\\") {
		r.inMultiline = true
		r.multiline.WriteString(strings.TrimSuffix(line, "\\"))
		r.multiline.WriteString("\n")
		return false
	}

	r.Eval(line)
	return false
}

// Eval assembles and runs input on the session machine. A HALT is appended;
// when execution reaches it the stack pointer is kept for the next input.
func (r *REPL) Eval(input string) {
	if strings.TrimSpace(input) == "" {
		return
	}
	r.history = append(r.history, input)

	prev := r.asm.DataSize()
	img, err := r.asm.Assemble(input + "\nhalt\n")
	if err != nil {
		fmt.Fprintf(r.out, "Error: %v\n", err)
		return
	}
	// Only bytes from new directives are copied; earlier data may have
	// been modified by the program.
	mem := r.machine.Memory().Bytes()
	if len(img.Data) > len(mem) {
		fmt.Fprintf(r.out, "Error: data directives need %d bytes, session has %d\n", len(img.Data), len(mem))
		return
	}
	copy(mem[prev:len(img.Data)], img.Data[prev:])
	r.last = img

	// The appended HALT is the last byte of the program.
	final := uint32(len(img.Program) - 1)
	var keepSP, keepRA vm.Word
	reachedEnd := false
	r.machine.SetTracer(vm.FuncTracer{OnBefore: func(m *vm.VM, inst vm.Instruction) {
		if inst.Offset == final && inst.Op == vm.OpHalt {
			reachedEnd = true
			keepSP = m.Register(vm.RegSP)
			keepRA = m.Register(vm.RegRA)
		}
	}})

	r.machine.LoadProgram(img.Program)
	r.progOut.open = false
	err = r.machine.Run()
	if reachedEnd {
		_ = r.machine.SetRegister(vm.RegSP, keepSP)
		_ = r.machine.SetRegister(vm.RegRA, keepRA)
	}
	if err != nil {
		log.Debugf("input failed: %v", err)
		r.endLine()
		fmt.Fprintf(r.out, "Error: %v\n", err)
		return
	}
	r.endLine()
}

func (r *REPL) endLine() {
	if r.progOut.open {
		fmt.Fprintln(r.out)
		r.progOut.open = false
	}
}

// outputTracker remembers whether program output ended mid-line.
type outputTracker struct {
	w    io.Writer
	open bool
}

func (t *outputTracker) Write(p []byte) (int, error) {
	if len(p) > 0 {
		t.open = p[len(p)-1] != '\n'
	}
	return t.w.Write(p)
}

func (r *REPL) handleCommand(line string) (handled, quit bool) {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return true, false
	}

	// Commands take a ':' prefix so they never shadow a mnemonic such as
	// LOAD. The words below are not mnemonics and also work bare.
	cmd := strings.ToLower(parts[0])
	switch cmd {
	case "help", "quit", "exit":
		cmd = ":" + cmd
	}
	if !strings.HasPrefix(cmd, ":") {
		return false, false
	}

	switch cmd[1:] {
	case "quit", "exit", "q":
		fmt.Fprintln(r.out, "Goodbye!")
		return true, true

	case "help", "h", "?":
		r.printHelp()

	case "regs":
		r.printRegisters()

	case "mem":
		r.printMemory(parts[1:])

	case "stack":
		r.printStack()

	case "reset":
		r.reset()
		fmt.Fprintln(r.out, "Session reset")

	case "save":
		if len(parts) != 2 {
			fmt.Fprintln(r.out, "Usage: :save <file>")
			break
		}
		r.save(parts[1])

	case "load":
		if len(parts) != 2 {
			fmt.Fprintln(r.out, "Usage: :load <file>")
			break
		}
		r.load(parts[1])

	case "history":
		for i, cmd := range r.history {
			fmt.Fprintf(r.out, "%3d: %s\n", i+1, strings.ReplaceAll(cmd, "\n", "; "))
		}

	case "disasm":
		if r.last == nil {
			fmt.Fprintln(r.out, "Nothing assembled yet")
			break
		}
		fmt.Fprint(r.out, vm.Disassemble(&vm.Image{Program: r.last.Program}))

	case "symbols":
		r.printSymbols()

	default:
		fmt.Fprintf(r.out, "Unknown command %s. Type :help for a list.\n", parts[0])
	}
	return true, false
}

func (r *REPL) printRegisters() {
	regs := r.machine.Registers()
	for i, w := range regs {
		fmt.Fprintf(r.out, "%-4s 0x%08X %11d", vm.RegisterName(uint8(i)), uint32(w), w.Signed())
		if i%2 == 1 {
			fmt.Fprintln(r.out)
		} else {
			fmt.Fprint(r.out, "    ")
		}
	}
}

func (r *REPL) printMemory(args []string) {
	if len(args) == 0 {
		fmt.Fprintln(r.out, "Usage: :mem <addr> [n]")
		return
	}
	addr, err := strconv.ParseUint(args[0], 0, 16)
	if err != nil {
		fmt.Fprintf(r.out, "Error: bad address %q\n", args[0])
		return
	}
	n := uint64(16)
	if len(args) > 1 {
		if n, err = strconv.ParseUint(args[1], 0, 16); err != nil {
			fmt.Fprintf(r.out, "Error: bad length %q\n", args[1])
			return
		}
	}
	b, err := r.machine.Memory().Slice(uint32(addr), int(n))
	if err != nil {
		fmt.Fprintf(r.out, "Error: %v\n", err)
		return
	}
	for i := 0; i < len(b); i += 16 {
		end := min(i+16, len(b))
		fmt.Fprintf(r.out, "%04X: % X\n", int(addr)+i, b[i:end])
	}
}

func (r *REPL) printStack() {
	slots := r.machine.Stack().Slots(r.machine.SP())
	if len(slots) == 0 {
		fmt.Fprintln(r.out, "Stack is empty")
		return
	}
	for i := len(slots) - 1; i >= 0; i-- {
		fmt.Fprintf(r.out, "[%3d] 0x%08X %d\n", i+1, uint32(slots[i]), slots[i].Signed())
	}
}

func (r *REPL) printSymbols() {
	syms := r.asm.Symbols()
	if len(syms) == 0 {
		fmt.Fprintln(r.out, "No data defined")
		return
	}
	names := make([]string, 0, len(syms))
	for name := range syms {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(r.out, "  &%s = 0x%04X\n", name, syms[name])
	}
}

func (r *REPL) save(path string) {
	data, err := vm.MarshalSnapshot(r.machine.Snapshot())
	if err == nil {
		err = os.WriteFile(path, data, 0644)
	}
	if err != nil {
		fmt.Fprintf(r.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(r.out, "Saved machine state to %s\n", path)
}

func (r *REPL) load(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(r.out, "Error: %v\n", err)
		return
	}
	snap, err := vm.UnmarshalSnapshot(data)
	if err == nil {
		err = r.machine.Restore(snap)
	}
	if err != nil {
		fmt.Fprintf(r.out, "Error: %v\n", err)
		return
	}
	// Data names are not part of a snapshot.
	r.asm = asm.NewIncremental()
	r.asm.MaxData = r.machine.Memory().Size()
	r.last = nil
	fmt.Fprintf(r.out, "Loaded machine state from %s (data names cleared)\n", path)
}

func (r *REPL) printHelp() {
	help := `
mcvm REPL Commands:
  :help, :h, :?      Show this help message
  :quit, :exit, :q   Exit the REPL
  :regs              Show all registers
  :mem <addr> [n]    Dump n bytes of data memory (default 16)
  :stack             Show live stack slots, top first
  :symbols           List data names defined so far
  :reset             Start a fresh machine
  :save <file>       Write the machine state (CBOR)
  :load <file>       Restore a saved machine state
  :history           Show evaluated inputs
  :disasm            Disassemble the last input

Anything else is assembled and run. Registers, data and the stack persist.

Examples:
  lconsb r1, 42
  print r1
  .asciz greet "hi"
  lcons r2, &greet \
  printp r2

Tips:
  - End a line with \ for multiline input
  - Press Enter on an empty line to run multiline input
`
	fmt.Fprint(r.out, help)
}
