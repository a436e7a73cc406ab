// Package vm implements the mcvm virtual machine.
//
// The VM is a register-based bytecode interpreter sized for
// microcontroller-class targets:
//   - 32 untyped 32-bit registers; r29-r31 are RA, SP and IP
//   - a byte-addressable data segment with 16-bit addresses
//   - a fixed-capacity stack of 32-bit slots indexed by SP
//   - pin I/O delegated to a hw.Hardware backend
//
// Basic usage:
//
//	v, err := vm.NewVM(program, data, 256)
//	if err != nil { ... }
//	err = v.Run()
//
// With resource limits:
//
//	v.SetMaxSteps(10000)
//	v.SetContext(ctx)
//	err = v.Run()
//
// Every abnormal stop is reported as a *Fault carrying the fault kind and
// the program offset of the instruction that caused it.
package vm

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/tliron/commonlog"

	"github.com/akhildatla/mcvm/pkg/hw"
)

var log = commonlog.GetLogger("mcvm.vm")

// ExecutionStats contains metrics about VM execution for observability.
type ExecutionStats struct {
	StepsExecuted   int64          // Total instructions executed
	ExecutionTimeNs int64          // Execution time in nanoseconds
	OpCounts        map[string]int // Count of each opcode executed
}

// VM represents the virtual machine.
type VM struct {
	registers RegisterFile
	program   []byte
	memory    *Memory
	stack     *Stack
	hardware  hw.Hardware
	out       io.Writer
	running   bool

	// set when the current instruction wrote IP
	redirected bool

	// Resource limits
	maxSteps  int64
	stepCount int64

	// Context for cancellation
	ctx context.Context

	tracer Tracer

	// Observability - execution statistics
	stats        ExecutionStats
	statsEnabled bool
}

// NewVM creates a VM for program. The data segment holds a copy of data
// followed by scratch zero bytes. The program is borrowed and never modified.
func NewVM(program []byte, data []byte, scratch int) (*VM, error) {
	mem, err := NewMemory(data, scratch)
	if err != nil {
		return nil, err
	}
	return &VM{
		program: program,
		memory:  mem,
		stack:   NewStack(DefaultStackSize),
		out:     os.Stdout,
	}, nil
}

// NewVMFromImage creates a VM from a bytecode image.
func NewVMFromImage(img *Image) (*VM, error) {
	v, err := NewVM(img.Program, img.Data, int(img.Scratch))
	if err != nil {
		return nil, err
	}
	if img.StackSize > 0 {
		v.SetStackSize(int(img.StackSize))
	}
	return v, nil
}

// LoadProgram replaces the program store and moves IP to its start.
// Registers, memory and stack are kept.
func (vm *VM) LoadProgram(program []byte) {
	vm.program = program
	vm.registers.R[RegIP] = 0
	vm.running = false
}

// SetStackSize replaces the stack with an empty one of n slots.
func (vm *VM) SetStackSize(n int) {
	vm.stack = NewStack(n)
	vm.registers.R[RegSP] = 0
}

// SetOutput sets the destination of PRINT* instructions.
func (vm *VM) SetOutput(w io.Writer) {
	vm.out = w
}

// SetHardware sets the pin I/O backend. When unset, a simulation backend
// writing to the VM output is used.
func (vm *VM) SetHardware(h hw.Hardware) {
	vm.hardware = h
}

// SetMaxSteps sets the maximum number of execution steps. Zero means unlimited.
func (vm *VM) SetMaxSteps(n int64) {
	vm.maxSteps = n
}

// SetContext sets the context for cancellation/timeout.
func (vm *VM) SetContext(ctx context.Context) {
	vm.ctx = ctx
}

// SetTracer installs per-instruction hooks. Pass nil to disable.
func (vm *VM) SetTracer(t Tracer) {
	vm.tracer = t
}

// EnableStats enables execution statistics collection.
// When enabled, the VM tracks steps executed, timing, and opcode counts.
func (vm *VM) EnableStats() {
	vm.statsEnabled = true
	vm.stats = ExecutionStats{
		OpCounts: make(map[string]int),
	}
}

// Stats returns the execution statistics from the last Run() call.
// Returns nil if stats were not enabled via EnableStats().
func (vm *VM) Stats() *ExecutionStats {
	if !vm.statsEnabled {
		return nil
	}
	return &vm.stats
}

// Program returns the program store.
func (vm *VM) Program() []byte { return vm.program }

// Memory returns the data segment.
func (vm *VM) Memory() *Memory { return vm.memory }

// Stack returns the operand stack.
func (vm *VM) Stack() *Stack { return vm.stack }

// Running reports whether Run is executing and has not yet halted.
func (vm *VM) Running() bool { return vm.running }

// Register returns register idx, or zero for an invalid index.
func (vm *VM) Register(idx uint8) Word {
	w, _ := vm.registers.Get(idx)
	return w
}

// SetRegister sets register idx.
func (vm *VM) SetRegister(idx uint8, w Word) error {
	return vm.registers.Set(idx, w)
}

// Registers returns a copy of the register file.
func (vm *VM) Registers() [NumRegisters]Word {
	return vm.registers.R
}

// Steps returns the number of instructions dispatched by the last Run.
func (vm *VM) Steps() int64 { return vm.stepCount }

// IP returns the instruction pointer.
func (vm *VM) IP() uint32 { return uint32(vm.registers.R[RegIP]) }

// SP returns the stack pointer.
func (vm *VM) SP() uint32 { return uint32(vm.registers.R[RegSP]) }

// Run executes from the current IP until a HALT instruction or a fault.
// After HALT, IP, SP and RA are zero and Run returns nil.
func (vm *VM) Run() error {
	if vm.statsEnabled {
		startTime := time.Now()
		vm.stats.StepsExecuted = 0
		defer func() {
			vm.stats.ExecutionTimeNs = time.Since(startTime).Nanoseconds()
		}()
	}
	vm.stepCount = 0
	vm.running = true

	for vm.running {
		// Context cancellation check
		if vm.ctx != nil {
			select {
			case <-vm.ctx.Done():
				return vm.abort(vm.ctx.Err())
			default:
			}
		}

		// Resource limit check
		if vm.maxSteps > 0 && vm.stepCount >= vm.maxSteps {
			return vm.abort(ErrInstructionLimit)
		}
		vm.stepCount++

		if err := vm.Step(); err != nil {
			return err
		}
	}

	log.Debugf("halted after %d steps", vm.stepCount)
	return nil
}

// Step executes exactly one instruction. It is the building block of Run
// and the hook for single-step debuggers.
func (vm *VM) Step() error {
	ip := vm.IP()
	inst, err := Decode(vm.program, ip)
	if err != nil {
		return vm.fault(inst, err)
	}

	if vm.statsEnabled {
		vm.stats.StepsExecuted++
		vm.stats.OpCounts[inst.Op.String()]++
	}
	if vm.tracer != nil {
		vm.tracer.Before(vm, inst)
	}

	next, err := vm.exec(inst)

	if vm.tracer != nil {
		vm.tracer.After(vm, inst, err)
	}
	if err != nil {
		return vm.fault(inst, err)
	}
	if inst.Op == OpHalt {
		return nil
	}
	vm.registers.R[RegIP] = Word(next)
	return nil
}

// halt stops the machine and clears the special registers.
func (vm *VM) halt() {
	vm.running = false
	vm.registers.R[RegIP] = 0
	vm.registers.R[RegSP] = 0
	vm.registers.R[RegRA] = 0
}

func (vm *VM) fault(inst Instruction, err error) error {
	vm.running = false
	f := &Fault{Kind: classify(err), Offset: inst.Offset, Op: inst.Op, Err: err}
	log.Errorf("%v", f)
	return f
}

// abort stops the machine before the instruction at IP runs.
func (vm *VM) abort(err error) error {
	vm.running = false
	ip := vm.IP()
	f := &Fault{Kind: FaultLimit, Offset: ip, Err: err}
	if uint64(ip) < uint64(len(vm.program)) {
		f.Op = Opcode(vm.program[ip])
	}
	log.Warningf("%v", f)
	return f
}

func (vm *VM) pins() hw.Hardware {
	if vm.hardware == nil {
		vm.hardware = hw.NewSim(vm.out)
	}
	return vm.hardware
}

func (vm *VM) print(format string, args ...any) error {
	if _, err := fmt.Fprintf(vm.out, format, args...); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}
	return nil
}
