package hw

import (
	"fmt"
	"io"
	"sync"
)

// Readings returned by Sim when no stimulus is scripted for a pin.
const (
	SimDigitalValue Level  = 1
	SimAnalogValue  uint32 = 1024
)

// PinState is the last state written to a simulated pin.
type PinState struct {
	Mode   PinMode
	Level  Level
	Analog uint32
}

// Sim is a deterministic host-side backend. Writes are reported as text
// lines on its writer.
type Sim struct {
	mu       sync.Mutex
	out      io.Writer
	stimulus *Stimulus
	pins     map[uint8]PinState
}

// NewSim creates a simulation backend printing to w. A nil w discards output.
func NewSim(w io.Writer) *Sim {
	if w == nil {
		w = io.Discard
	}
	return &Sim{out: w, pins: make(map[uint8]PinState)}
}

// SetStimulus installs scripted readings.
func (s *Sim) SetStimulus(st *Stimulus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stimulus = st
}

// Pin returns the last state written to pin.
func (s *Sim) Pin(pin uint8) PinState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pins[pin]
}

func (s *Sim) DigitalRead(pin uint8) (Level, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	level := SimDigitalValue
	if s.stimulus != nil {
		if v, ok := s.stimulus.Next(pin, Digital); ok {
			level = Level(v)
		}
	}
	log.Debugf("digital read pin %d: %d", pin, level)
	return level, nil
}

func (s *Sim) AnalogRead(pin uint8) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value := SimAnalogValue
	if s.stimulus != nil {
		if v, ok := s.stimulus.Next(pin, Analog); ok {
			value = v
		}
	}
	log.Debugf("analog read pin %d: %d", pin, value)
	return value, nil
}

func (s *Sim) DigitalWrite(pin uint8, level Level) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.pins[pin]
	st.Level = level
	s.pins[pin] = st
	return s.report("set pin %d to D%d", pin, level)
}

func (s *Sim) AnalogWrite(pin uint8, value uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.pins[pin]
	st.Analog = value
	s.pins[pin] = st
	return s.report("set pin %d to A%d", pin, value)
}

func (s *Sim) PinMode(pin uint8, mode PinMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.pins[pin]
	st.Mode = mode
	s.pins[pin] = st
	return s.report("set pin %d to mode %d", pin, mode)
}

func (s *Sim) report(format string, args ...any) error {
	log.Debugf(format, args...)
	if _, err := fmt.Fprintf(s.out, format+"\n", args...); err != nil {
		return fmt.Errorf("sim output: %w", err)
	}
	return nil
}
