// Package config handles mcvm.toml machine configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/akhildatla/mcvm/pkg/vm"
)

// FileName is the configuration file looked up by FindAndLoad.
const FileName = "mcvm.toml"

// Backend names accepted by [hardware] backend.
const (
	BackendSim  = "sim"
	BackendGPIO = "gpio"
	BackendNull = "null"
)

var ErrInvalid = errors.New("invalid configuration")

// Config represents an mcvm.toml file.
type Config struct {
	Machine  Machine  `toml:"machine"`
	Hardware Hardware `toml:"hardware"`
	Log      Log      `toml:"log"`

	// Dir is the directory containing the mcvm.toml file (set at load time).
	Dir string `toml:"-"`
}

// Machine sizes the VM and bounds its execution.
type Machine struct {
	Scratch  int           `toml:"scratch"`
	Stack    int           `toml:"stack"`
	MaxSteps int64         `toml:"max-steps"`
	Timeout  time.Duration `toml:"timeout"`
}

// Hardware selects the pin I/O backend.
type Hardware struct {
	Backend  string `toml:"backend"`
	Stimulus string `toml:"stimulus"`
	Record   string `toml:"record"`

	// Pins maps VM pin numbers to periph pin names for the gpio backend.
	Pins map[string]string `toml:"pins"`
}

// Log configures commonlog.
type Log struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Machine: Machine{
			Scratch: 256,
			Stack:   vm.DefaultStackSize,
		},
		Hardware: Hardware{Backend: BackendSim},
	}
}

// Load parses a configuration file. Unset values keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	c := Default()
	if _, err := toml.Decode(string(data), c); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	c.Dir, err = filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// FindAndLoad walks up from startDir to find an mcvm.toml file and loads it.
// Returns Default() if no file is found.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return Default(), nil
		}
		dir = parent
	}
}

// Validate checks value ranges and the backend name.
func (c *Config) Validate() error {
	m := c.Machine
	if m.Scratch < 0 || m.Scratch > vm.MaxDataSize {
		return fmt.Errorf("%w: scratch %d out of range", ErrInvalid, m.Scratch)
	}
	if m.Stack < 0 || m.Stack > 1<<16 {
		return fmt.Errorf("%w: stack %d out of range", ErrInvalid, m.Stack)
	}
	if m.MaxSteps < 0 {
		return fmt.Errorf("%w: negative max-steps", ErrInvalid)
	}
	if m.Timeout < 0 {
		return fmt.Errorf("%w: negative timeout", ErrInvalid)
	}

	switch c.Hardware.Backend {
	case BackendSim, BackendGPIO, BackendNull:
	case "":
		c.Hardware.Backend = BackendSim
	default:
		return fmt.Errorf("%w: unknown hardware backend %q", ErrInvalid, c.Hardware.Backend)
	}
	if _, err := c.PinMap(); err != nil {
		return err
	}
	return nil
}

// PinMap returns [hardware.pins] keyed by VM pin number.
func (c *Config) PinMap() (map[uint8]string, error) {
	pins := make(map[uint8]string, len(c.Hardware.Pins))
	for k, name := range c.Hardware.Pins {
		n, err := strconv.ParseUint(strings.TrimSpace(k), 10, 8)
		if err != nil {
			return nil, fmt.Errorf("%w: pin key %q is not 0-255", ErrInvalid, k)
		}
		pins[uint8(n)] = name
	}
	return pins, nil
}

// Resolve returns path relative to the configuration directory. Absolute
// and empty paths are returned unchanged.
func (c *Config) Resolve(path string) string {
	if path == "" || filepath.IsAbs(path) || c.Dir == "" {
		return path
	}
	return filepath.Join(c.Dir, path)
}
