// Package main provides the CLI entry point for mcvm, a register bytecode VM
// for microcontroller-class targets.
//
// Usage:
//
//	mcvm run program.asm           # Assemble and execute
//	mcvm run -v program.asm        # Execute with verbose output
//	mcvm compile program.asm       # Assemble to bytecode (.mcbc)
//	mcvm exec program.mcbc         # Execute compiled bytecode
//	mcvm disasm program.mcbc       # Disassemble bytecode
//	mcvm repl                      # Interactive session
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/akhildatla/mcvm/pkg/asm"
	"github.com/akhildatla/mcvm/pkg/vm"
)

// Version info set by GoReleaser via ldflags
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Exit statuses.
const (
	exitError = 1
	exitFault = 2
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		if _, ok := vm.AsFault(err); ok {
			os.Exit(exitFault)
		}
		os.Exit(exitError)
	}
}

func run(args []string) error {
	if len(args) < 1 {
		return printUsage()
	}

	cmd := args[0]

	switch cmd {
	case "run":
		return runCommand(args[1:])
	case "compile":
		return compileCommand(args[1:])
	case "exec":
		return execCommand(args[1:])
	case "disasm":
		return disasmCommand(args[1:])
	case "repl":
		return replCommand(args[1:])
	case "version":
		fmt.Printf("mcvm version %s\n", version)
		if commit != "none" {
			fmt.Printf("  commit: %s\n", commit)
		}
		if date != "unknown" {
			fmt.Printf("  built:  %s\n", date)
		}
		return nil
	case "help", "-h", "--help":
		return printUsage()
	default:
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

// parseArgs parses flags that may appear before or after positional
// arguments and returns the positional ones.
func parseArgs(fs *flag.FlagSet, args []string) ([]string, error) {
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		args = fs.Args()
		if len(args) == 0 {
			return positional, nil
		}
		positional = append(positional, args[0])
		args = args[1:]
	}
}

func runCommand(args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	opts := addMachineFlags(fs)

	files, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	if len(files) < 1 {
		return errors.New("usage: mcvm run [flags] <file.asm>")
	}

	path := files[0]
	if opts.verbose {
		fmt.Fprintf(os.Stderr, "Executing: %s\n", path)
	}

	img, err := asm.AssembleFile(path)
	if err != nil {
		return err
	}
	return opts.execute(img, filepath.Dir(path))
}

func compileCommand(args []string) error {
	fs := flag.NewFlagSet("compile", flag.ContinueOnError)
	output := fs.String("o", "", "output file (default: input with .mcbc extension)")
	verbose := fs.Bool("v", false, "verbose output")
	scratch := fs.Int("scratch", -1, "override the image scratch size")
	stack := fs.Int("stack", -1, "override the image stack size")

	files, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	if len(files) < 1 {
		return errors.New("usage: mcvm compile <file.asm> [-o output.mcbc]")
	}

	inputPath := files[0]
	outputPath := *output

	if outputPath == "" {
		ext := filepath.Ext(inputPath)
		outputPath = strings.TrimSuffix(inputPath, ext) + ".mcbc"
	}

	if *verbose {
		fmt.Printf("Compiling: %s -> %s\n", inputPath, outputPath)
	}

	img, err := asm.AssembleFile(inputPath)
	if err != nil {
		return err
	}
	if *scratch >= 0 {
		if *scratch > 0xFFFF {
			return fmt.Errorf("scratch %d out of range", *scratch)
		}
		img.Scratch = uint16(*scratch)
	}
	if *stack >= 0 {
		if *stack > 0xFFFF {
			return fmt.Errorf("stack %d out of range", *stack)
		}
		img.StackSize = uint16(*stack)
	}

	bytecode, err := vm.SerializeImage(img)
	if err != nil {
		return fmt.Errorf("serializing: %w", err)
	}

	if err := os.WriteFile(outputPath, bytecode, 0644); err != nil {
		return fmt.Errorf("writing bytecode: %w", err)
	}

	if *verbose {
		fmt.Printf("Compiled %d program bytes, %d data bytes\n", len(img.Program), len(img.Data))
		fmt.Printf("Output: %s (%d bytes)\n", outputPath, len(bytecode))
	} else {
		fmt.Printf("Compiled: %s\n", outputPath)
	}

	return nil
}

func execCommand(args []string) error {
	fs := flag.NewFlagSet("exec", flag.ContinueOnError)
	opts := addMachineFlags(fs)

	files, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	if len(files) < 1 {
		return errors.New("usage: mcvm exec [flags] <file.mcbc>")
	}

	path := files[0]
	img, err := readImage(path)
	if err != nil {
		return err
	}

	if opts.verbose {
		fmt.Fprintf(os.Stderr, "Loaded %s: %d program bytes, %d data bytes\n", path, len(img.Program), len(img.Data))
	}

	return opts.execute(img, filepath.Dir(path))
}

func disasmCommand(args []string) error {
	fs := flag.NewFlagSet("disasm", flag.ContinueOnError)
	output := fs.String("o", "", "output file (default: stdout)")

	files, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	if len(files) < 1 {
		return errors.New("usage: mcvm disasm <file.mcbc> [-o output.asm]")
	}

	img, err := readImage(files[0])
	if err != nil {
		return err
	}

	listing := vm.Disassemble(img)

	if *output != "" {
		if err := os.WriteFile(*output, []byte(listing), 0644); err != nil {
			return fmt.Errorf("writing output: %w", err)
		}
		fmt.Printf("Disassembled to: %s\n", *output)
	} else {
		fmt.Print(listing)
	}

	return nil
}

func readImage(path string) (*vm.Image, error) {
	bytecode, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading bytecode: %w", err)
	}
	img, err := vm.DeserializeImage(bytecode)
	if err != nil {
		return nil, fmt.Errorf("deserializing: %w", err)
	}
	return img, nil
}

func printUsage() error {
	fmt.Println(`mcvm - register bytecode VM for microcontroller-class targets

Usage:
  mcvm <command> [arguments]

Commands:
  run <file.asm>        Assemble and execute a program
  compile <file.asm>    Assemble to bytecode (.mcbc)
  exec <file.mcbc>      Execute compiled bytecode
  disasm <file.mcbc>    Disassemble bytecode
  repl                  Start interactive REPL
  version               Print version information
  help                  Show this help message

Run/Exec Options:
  -config <file>        Configuration file (default: nearest mcvm.toml)
  -v                    Verbose output and info logging
  -trace                Log every instruction (debug level)
  -max-steps <n>        Stop after n instructions
  -timeout <d>          Stop after duration d (e.g. 2s)
  -scratch <n>          Scratch bytes after the data segment
  -stack <n>            Stack slots
  -backend <name>       Pin backend: sim, gpio or null
  -stimulus <file>      Scripted pin readings (CSV, JSON or Parquet)
  -record <file>        Write pin activity to a CSV or JSON file
  -dump <file>          Write the machine state (CBOR) after a fault

Compile Options:
  -o <file>             Output file (default: input with .mcbc extension)
  -scratch <n>          Override the scratch size in the image
  -stack <n>            Override the stack size in the image
  -v                    Verbose output

Disasm Options:
  -o <file>             Output file (default: stdout)

REPL Options:
  -data <n>             Session data segment size (default 4096)
  -history <file>       Line history file (default ~/.mcvm_history)
  plus -config, -v, -max-steps, -stack, -backend, -stimulus, -record

Exit status is 2 when the program faults and 1 for any other error.

Examples:
  mcvm run examples/blink.asm
  mcvm run -stimulus readings.csv -record pins.csv sensor.asm
  mcvm compile program.asm -o program.mcbc
  mcvm exec -max-steps 100000 program.mcbc
  mcvm disasm program.mcbc
  mcvm repl`)
	return nil
}
