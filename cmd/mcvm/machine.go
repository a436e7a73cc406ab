package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/akhildatla/mcvm/pkg/config"
	"github.com/akhildatla/mcvm/pkg/embed"
	"github.com/akhildatla/mcvm/pkg/hw"
	"github.com/akhildatla/mcvm/pkg/loader"
	"github.com/akhildatla/mcvm/pkg/vm"
)

var log = commonlog.GetLogger("mcvm.cli")

// machineOptions are the flags shared by run, exec and repl. Flags that are
// set override the configuration file.
type machineOptions struct {
	fs *flag.FlagSet

	configPath string
	verbose    bool
	trace      bool
	maxSteps   int64
	timeout    time.Duration
	scratch    int
	stack      int
	backend    string
	stimulus   string
	record     string
	dump       string
}

func addMachineFlags(fs *flag.FlagSet) *machineOptions {
	o := &machineOptions{fs: fs}
	fs.StringVar(&o.configPath, "config", "", "configuration file (default: nearest "+config.FileName+")")
	fs.BoolVar(&o.verbose, "v", false, "verbose output")
	fs.BoolVar(&o.trace, "trace", false, "log every instruction")
	fs.Int64Var(&o.maxSteps, "max-steps", 0, "instruction limit (0 = unlimited)")
	fs.DurationVar(&o.timeout, "timeout", 0, "execution timeout (0 = none)")
	fs.IntVar(&o.scratch, "scratch", 0, "scratch bytes after the data segment")
	fs.IntVar(&o.stack, "stack", 0, "stack slots")
	fs.StringVar(&o.backend, "backend", "", "pin backend: sim, gpio or null")
	fs.StringVar(&o.stimulus, "stimulus", "", "scripted pin readings (CSV, JSON or Parquet)")
	fs.StringVar(&o.record, "record", "", "write pin activity to a CSV or JSON file")
	fs.StringVar(&o.dump, "dump", "", "write the machine state (CBOR) after a fault")
	return o
}

// load reads the configuration, applies explicitly set flags and configures
// logging. Without -config the nearest mcvm.toml above dir is used.
func (o *machineOptions) load(dir string) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if o.configPath != "" {
		cfg, err = config.Load(o.configPath)
	} else {
		cfg, err = config.FindAndLoad(dir)
	}
	if err != nil {
		return nil, err
	}

	set := make(map[string]bool)
	o.fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if set["max-steps"] {
		cfg.Machine.MaxSteps = o.maxSteps
	}
	if set["timeout"] {
		cfg.Machine.Timeout = o.timeout
	}
	if set["scratch"] {
		cfg.Machine.Scratch = o.scratch
	}
	if set["stack"] {
		cfg.Machine.Stack = o.stack
	}
	if set["backend"] {
		cfg.Hardware.Backend = o.backend
	}
	// Paths given on the command line are relative to the working directory.
	if set["stimulus"] {
		cfg.Hardware.Stimulus = absPath(o.stimulus)
	}
	if set["record"] {
		cfg.Hardware.Record = absPath(o.record)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	verbosity := cfg.Log.Verbosity
	if o.verbose && verbosity < 1 {
		verbosity = 1
	}
	if o.trace {
		verbosity = 2
	}
	var logPath *string
	if cfg.Log.File != "" {
		p := cfg.Resolve(cfg.Log.File)
		logPath = &p
	}
	commonlog.Configure(verbosity, logPath)

	return cfg, nil
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

// execute runs img with the configured machine and pin backend.
func (o *machineOptions) execute(img *vm.Image, dir string) error {
	cfg, err := o.load(dir)
	if err != nil {
		return err
	}

	pins, rec, err := newHardware(cfg, os.Stdout)
	if err != nil {
		return err
	}

	opts := []embed.Option{
		embed.WithOutput(os.Stdout),
		embed.WithHardware(pins),
		embed.WithMaxInstructions(cfg.Machine.MaxSteps),
		embed.WithTimeout(cfg.Machine.Timeout),
		embed.WithTracer(newStepTracer(rec, o.trace)),
	}
	// Sizing stored in the image wins over the configuration defaults;
	// explicit flags win over both.
	if img.Scratch == 0 || o.isSet("scratch") {
		opts = append(opts, embed.WithScratch(cfg.Machine.Scratch))
	}
	if img.StackSize == 0 || o.isSet("stack") {
		opts = append(opts, embed.WithStackSize(cfg.Machine.Stack))
	}
	if o.dump != "" {
		opts = append(opts, embed.WithSnapshot())
	}

	start := time.Now()
	result, runErr := embed.ExecuteImage(img, opts...)
	elapsed := time.Since(start)

	if rec != nil {
		if err := writeRecording(rec, cfg.Resolve(cfg.Hardware.Record)); err != nil {
			log.Errorf("%v", err)
		}
	}
	if runErr != nil && o.dump != "" && result != nil && result.Snapshot != nil {
		if err := writeSnapshot(result.Snapshot, o.dump); err != nil {
			log.Errorf("%v", err)
		} else {
			fmt.Fprintf(os.Stderr, "Machine state written to %s\n", o.dump)
		}
	}
	if o.verbose && result != nil {
		fmt.Fprintf(os.Stderr, "\nExecuted %d instructions in %s\n", result.Steps, elapsed)
	}
	return runErr
}

func (o *machineOptions) isSet(name string) bool {
	found := false
	o.fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

// newHardware builds the configured pin backend, wrapped in a Recorder when
// a record file is set.
func newHardware(cfg *config.Config, out io.Writer) (hw.Hardware, *hw.Recorder, error) {
	var pins hw.Hardware

	switch cfg.Hardware.Backend {
	case config.BackendGPIO:
		names, err := cfg.PinMap()
		if err != nil {
			return nil, nil, err
		}
		g, err := hw.NewGPIO(names)
		if err != nil {
			return nil, nil, err
		}
		pins = g
	case config.BackendNull:
		pins = hw.Null{}
	default:
		sim := hw.NewSim(out)
		if cfg.Hardware.Stimulus != "" {
			st, err := loader.LoadStimulus(cfg.Resolve(cfg.Hardware.Stimulus))
			if err != nil {
				return nil, nil, err
			}
			log.Infof("loaded %d scripted readings", st.Len())
			sim.SetStimulus(st)
		}
		pins = sim
	}

	if cfg.Hardware.Record == "" {
		return pins, nil, nil
	}
	rec := hw.NewRecorder(pins)
	return rec, rec, nil
}

// newStepTracer keeps the recorder clock at the current step and forwards to
// a LogTracer when tracing.
func newStepTracer(rec *hw.Recorder, trace bool) vm.Tracer {
	var logTracer *vm.LogTracer
	if trace {
		logTracer = vm.NewLogTracer()
	}
	var step int64
	if rec != nil {
		rec.Clock = func() int64 { return step }
	}
	return vm.FuncTracer{
		OnBefore: func(v *vm.VM, inst vm.Instruction) {
			step = v.Steps()
			if logTracer != nil {
				logTracer.Before(v, inst)
			}
		},
		OnAfter: func(v *vm.VM, inst vm.Instruction, err error) {
			if logTracer != nil {
				logTracer.After(v, inst, err)
			}
		},
	}
}

func writeRecording(rec *hw.Recorder, path string) error {
	format := "csv"
	if strings.EqualFold(filepath.Ext(path), ".json") {
		format = "json"
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("writing recording: %w", err)
	}
	if err := rec.Export(f, format); err != nil {
		f.Close()
		return fmt.Errorf("writing recording: %w", err)
	}
	log.Infof("recorded %d pin events to %s", rec.Len(), path)
	return f.Close()
}

func writeSnapshot(s *vm.Snapshot, path string) error {
	data, err := vm.MarshalSnapshot(s)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	return nil
}
