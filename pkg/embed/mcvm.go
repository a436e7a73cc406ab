// Package embed provides the Go embedding API for mcvm.
//
// Pass assembly source, get the program's text output and final registers.
//
// Basic usage:
//
//	result, err := embed.Execute(`
//	    lconsb r1, 42
//	    print  r1
//	    halt
//	`)
//	fmt.Println(result.Output) // "42"
//
// With resource limits and a scripted input pin:
//
//	st := hw.NewStimulus()
//	st.Add(2, hw.Digital, 0)
//	result, err := embed.Execute(src,
//	    embed.WithTimeout(time.Second),
//	    embed.WithMaxInstructions(10000),
//	    embed.WithStimulus(st),
//	)
package embed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/akhildatla/mcvm/pkg/asm"
	"github.com/akhildatla/mcvm/pkg/hw"
	"github.com/akhildatla/mcvm/pkg/vm"
)

// Common errors
var (
	ErrTimeout          = errors.New("execution timeout exceeded")
	ErrInstructionLimit = errors.New("instruction limit exceeded")
)

// DefaultScratch is the scratch size used when neither the image nor the
// options set one.
const DefaultScratch = 256

// Result is the machine state after a run.
type Result struct {
	Output    string                   // everything the program printed
	Registers [vm.NumRegisters]vm.Word // register file after the run
	Steps     int64                    // instructions dispatched
	Data      []byte                   // final data segment

	// Snapshot is the complete final machine state, set by WithSnapshot.
	Snapshot *vm.Snapshot
}

// Register returns register idx of the final state.
func (r *Result) Register(idx uint8) vm.Word {
	if int(idx) >= len(r.Registers) {
		return 0
	}
	return r.Registers[idx]
}

// Options configures execution behavior.
type Options struct {
	// Hardware is the pin backend. Nil selects a simulation backend writing
	// to the program output.
	Hardware hw.Hardware

	// Stimulus scripts the readings of the default simulation backend.
	Stimulus *hw.Stimulus

	// Output additionally receives everything the program prints.
	Output io.Writer

	// Scratch overrides the image scratch size when not negative, so zero
	// requests a segment holding only the image data.
	Scratch int

	// StackSize overrides the image stack size when non-zero.
	StackSize int

	// Timeout sets maximum execution time. Zero means no timeout.
	Timeout time.Duration

	// MaxInstructions limits the number of instructions executed.
	// Zero means unlimited.
	MaxInstructions int64

	// Tracer receives per-instruction callbacks.
	Tracer vm.Tracer

	// Context for cancellation. If nil, context.Background() is used.
	Context context.Context

	// Snapshot requests a full machine snapshot in the Result.
	Snapshot bool
}

// Option is a functional option for configuring execution.
type Option func(*Options)

// WithHardware sets the pin backend.
func WithHardware(h hw.Hardware) Option {
	return func(o *Options) {
		o.Hardware = h
	}
}

// WithStimulus scripts the simulated pin readings.
func WithStimulus(st *hw.Stimulus) Option {
	return func(o *Options) {
		o.Stimulus = st
	}
}

// WithOutput copies program output to w.
func WithOutput(w io.Writer) Option {
	return func(o *Options) {
		o.Output = w
	}
}

// WithScratch sets the scratch bytes appended to the data segment. Zero is
// honored; negative values keep the image sizing.
func WithScratch(n int) Option {
	return func(o *Options) {
		o.Scratch = n
	}
}

// WithStackSize sets the number of stack slots.
func WithStackSize(n int) Option {
	return func(o *Options) {
		o.StackSize = n
	}
}

// WithTimeout sets execution timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.Timeout = d
	}
}

// WithMaxInstructions sets instruction limit.
func WithMaxInstructions(n int64) Option {
	return func(o *Options) {
		o.MaxInstructions = n
	}
}

// WithTracer installs a per-instruction tracer.
func WithTracer(t vm.Tracer) Option {
	return func(o *Options) {
		o.Tracer = t
	}
}

// WithContext sets the context for cancellation.
func WithContext(ctx context.Context) Option {
	return func(o *Options) {
		o.Context = ctx
	}
}

// WithSnapshot records the full final machine state in Result.Snapshot.
func WithSnapshot() Option {
	return func(o *Options) {
		o.Snapshot = true
	}
}

// Execute assembles and runs source.
func Execute(source string, opts ...Option) (*Result, error) {
	img, err := asm.Assemble(source)
	if err != nil {
		return nil, err
	}
	return ExecuteImage(img, opts...)
}

// ExecuteFile reads an assembly file and executes it.
func ExecuteFile(path string, opts ...Option) (*Result, error) {
	img, err := asm.AssembleFile(path)
	if err != nil {
		return nil, err
	}
	return ExecuteImage(img, opts...)
}

// ExecuteImage runs an already assembled image. On a fault the partial
// Result is returned together with the error.
func ExecuteImage(img *vm.Image, opts ...Option) (*Result, error) {
	options := &Options{
		Context: context.Background(),
		Scratch: -1,
	}
	for _, opt := range opts {
		opt(options)
	}

	scratch := int(img.Scratch)
	if options.Scratch >= 0 {
		scratch = options.Scratch
	} else if scratch == 0 {
		scratch = DefaultScratch
	}
	if len(img.Data)+scratch > vm.MaxDataSize {
		scratch = vm.MaxDataSize - len(img.Data)
	}

	machine, err := vm.NewVM(img.Program, img.Data, scratch)
	if err != nil {
		return nil, err
	}
	switch {
	case options.StackSize > 0:
		machine.SetStackSize(options.StackSize)
	case img.StackSize > 0:
		machine.SetStackSize(int(img.StackSize))
	}

	var captured bytes.Buffer
	var out io.Writer = &captured
	if options.Output != nil {
		out = io.MultiWriter(&captured, options.Output)
	}
	machine.SetOutput(out)

	switch {
	case options.Hardware != nil:
		machine.SetHardware(options.Hardware)
	case options.Stimulus != nil:
		sim := hw.NewSim(out)
		sim.SetStimulus(options.Stimulus)
		machine.SetHardware(sim)
	}
	if options.Tracer != nil {
		machine.SetTracer(options.Tracer)
	}
	machine.SetMaxSteps(options.MaxInstructions)

	ctx := options.Context
	if options.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, options.Timeout)
		defer cancel()
	}
	machine.SetContext(ctx)

	err = machine.Run()
	result := &Result{
		Output:    captured.String(),
		Registers: machine.Registers(),
		Steps:     machine.Steps(),
		Data:      append([]byte(nil), machine.Memory().Bytes()...),
	}
	if options.Snapshot {
		result.Snapshot = machine.Snapshot()
	}
	if err != nil {
		// Map VM errors to embed package errors; the *vm.Fault stays in the chain.
		switch {
		case errors.Is(err, vm.ErrInstructionLimit):
			return result, fmt.Errorf("%w: %w", ErrInstructionLimit, err)
		case errors.Is(err, context.DeadlineExceeded):
			return result, fmt.Errorf("%w: %w", ErrTimeout, err)
		}
		return result, err
	}
	return result, nil
}
