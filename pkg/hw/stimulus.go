package hw

import (
	"fmt"
	"strings"
	"sync"
)

// Kind selects which read a stimulus value answers.
type Kind uint8

const (
	Digital Kind = iota
	Analog
)

// String returns the string representation of a reading kind.
func (k Kind) String() string {
	if k == Analog {
		return "analog"
	}
	return "digital"
}

// ParseKind parses "digital" or "analog" (case-insensitive, "d"/"a" accepted).
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "digital", "d":
		return Digital, nil
	case "analog", "a":
		return Analog, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

type stimulusKey struct {
	pin  uint8
	kind Kind
}

type track struct {
	values []uint32
	pos    int
}

// Stimulus holds scripted pin readings. Each pin replays its values in the
// order they were added and keeps returning the last one once exhausted.
type Stimulus struct {
	mu     sync.Mutex
	tracks map[stimulusKey]*track
}

// NewStimulus returns an empty stimulus table.
func NewStimulus() *Stimulus {
	return &Stimulus{tracks: make(map[stimulusKey]*track)}
}

// Add appends a reading for pin.
func (s *Stimulus) Add(pin uint8, kind Kind, value uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := stimulusKey{pin, kind}
	t := s.tracks[k]
	if t == nil {
		t = &track{}
		s.tracks[k] = t
	}
	t.values = append(t.values, value)
}

// Len returns the number of scripted readings.
func (s *Stimulus) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.tracks {
		n += len(t.values)
	}
	return n
}

// Next returns the next reading for pin. ok is false when the pin has no
// script for kind.
func (s *Stimulus) Next(pin uint8, kind Kind) (value uint32, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tracks[stimulusKey{pin, kind}]
	if t == nil || len(t.values) == 0 {
		return 0, false
	}
	value = t.values[t.pos]
	if t.pos < len(t.values)-1 {
		t.pos++
	}
	return value, true
}

// Rewind restarts every track from its first value.
func (s *Stimulus) Rewind() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tracks {
		t.pos = 0
	}
}
