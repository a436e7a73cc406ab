// Package hw defines the pin I/O interface the VM drives and the backends
// that implement it.
//
// A backend is chosen at runtime:
//   - Sim prints every write and returns fixed or scripted readings
//   - GPIO drives real pins through periph.io
//   - Null discards writes and reads zero
//
// Recorder wraps any backend and keeps a timeline of the calls made.
package hw

import (
	"errors"
	"fmt"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("mcvm.hw")

// Level is a digital pin level. Any non-zero value drives the pin high.
type Level uint8

const (
	Low  Level = 0
	High Level = 1
)

// PinMode is the direction/pull configuration of a pin.
type PinMode uint8

const (
	Input       PinMode = 0
	Output      PinMode = 1
	InputPullup PinMode = 2
)

// String returns the string representation of a pin mode.
func (m PinMode) String() string {
	switch m {
	case Input:
		return "input"
	case Output:
		return "output"
	case InputPullup:
		return "input-pullup"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// Error definitions
var (
	ErrUnsupported  = errors.New("operation not supported by backend")
	ErrUnmappedPin  = errors.New("pin is not mapped")
	ErrInvalidMode  = errors.New("invalid pin mode")
	ErrUnknownKind  = errors.New("unknown reading kind")
	ErrExportFormat = errors.New("unsupported export format")
)

// Hardware is the pin I/O surface used by the A_* instructions.
// Implementations serialise their own state; the VM does no locking.
type Hardware interface {
	DigitalRead(pin uint8) (Level, error)
	AnalogRead(pin uint8) (uint32, error)
	DigitalWrite(pin uint8, level Level) error
	AnalogWrite(pin uint8, value uint32) error
	PinMode(pin uint8, mode PinMode) error
}

// Null discards writes and reads zero.
type Null struct{}

func (Null) DigitalRead(uint8) (Level, error) { return Low, nil }
func (Null) AnalogRead(uint8) (uint32, error) { return 0, nil }
func (Null) DigitalWrite(uint8, Level) error  { return nil }
func (Null) AnalogWrite(uint8, uint32) error  { return nil }
func (Null) PinMode(uint8, PinMode) error     { return nil }
