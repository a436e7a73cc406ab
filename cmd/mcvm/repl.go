package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/peterh/liner"

	"github.com/akhildatla/mcvm/pkg/repl"
)

const historyFile = ".mcvm_history"

func replCommand(args []string) error {
	fs := flag.NewFlagSet("repl", flag.ContinueOnError)
	opts := addMachineFlags(fs)
	dataSize := fs.Int("data", repl.DefaultDataSize, "session data segment size")
	history := fs.String("history", "", "line history file (default ~/"+historyFile+")")

	if _, err := parseArgs(fs, args); err != nil {
		return err
	}

	wd, err := os.Getwd()
	if err != nil {
		return err
	}
	cfg, err := opts.load(wd)
	if err != nil {
		return err
	}

	r := repl.New(os.Stdout)
	pins, rec, err := newHardware(cfg, os.Stdout)
	if err != nil {
		return err
	}
	r.SetHardware(pins)
	if cfg.Machine.MaxSteps > 0 {
		r.SetMaxSteps(cfg.Machine.MaxSteps)
	}
	r.SetSizes(*dataSize, cfg.Machine.Stack)

	if rec != nil {
		defer func() {
			if err := writeRecording(rec, cfg.Resolve(cfg.Hardware.Record)); err != nil {
				log.Errorf("%v", err)
			}
		}()
	}

	if !isTerminal(os.Stdin) {
		r.Start(os.Stdin)
		return nil
	}

	histPath := *history
	if histPath == "" {
		home, _ := os.UserHomeDir()
		histPath = filepath.Join(home, historyFile)
	}
	interactive(r, histPath)
	return nil
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

// watchSignals restores the terminal and exits on SIGTERM or SIGHUP until
// the returned stop function runs. stop waits for the watcher to exit.
func watchSignals(restore func() error) (stop func()) {
	sigc := make(chan os.Signal, 1)
	done := make(chan struct{})
	exited := make(chan struct{})
	signal.Notify(sigc, syscall.SIGTERM, syscall.SIGHUP)
	go func() {
		defer close(exited)
		select {
		case <-sigc:
			_ = restore()
			os.Exit(130)
		case <-done:
		}
	}()
	return func() {
		signal.Stop(sigc)
		close(done)
		<-exited
	}
}

// interactive drives r from a line editor with persistent history.
func interactive(r *repl.REPL, histPath string) {
	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}
	defer func() {
		if f, err := os.Create(histPath); err == nil {
			_, _ = ln.WriteHistory(f)
			_ = f.Close()
		}
	}()

	stop := watchSignals(ln.Close)
	defer stop()

	fmt.Println("mcvm REPL - type :help for commands, :quit to exit")

	for {
		prompt := repl.Prompt
		if r.Continuing() {
			prompt = repl.PromptCont
		}
		line, err := ln.Prompt(prompt)
		if errors.Is(err, liner.ErrPromptAborted) {
			continue
		}
		if errors.Is(err, io.EOF) {
			fmt.Println()
			return
		}
		if err != nil {
			log.Errorf("reading input: %v", err)
			return
		}
		if strings.TrimSpace(line) != "" {
			ln.AppendHistory(line)
		}
		if r.Feed(line) {
			return
		}
	}
}
