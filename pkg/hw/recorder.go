package hw

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	dataframe "github.com/rocketlaunchr/dataframe-go"
	"github.com/rocketlaunchr/dataframe-go/exports"
)

// Recorder wraps a Hardware backend and records every call as a row of an
// event timeline: step, op, pin, value.
type Recorder struct {
	hw Hardware

	// Clock, when set, supplies the step column. Otherwise rows are
	// numbered in call order.
	Clock func() int64

	mu     sync.Mutex
	seq    int64
	events *dataframe.DataFrame
}

// NewRecorder returns a recorder in front of h.
func NewRecorder(h Hardware) *Recorder {
	return &Recorder{
		hw: h,
		events: dataframe.NewDataFrame(
			dataframe.NewSeriesInt64("step", nil),
			dataframe.NewSeriesString("op", nil),
			dataframe.NewSeriesInt64("pin", nil),
			dataframe.NewSeriesInt64("value", nil),
		),
	}
}

func (r *Recorder) record(op string, pin uint8, value int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	step := r.seq
	if r.Clock != nil {
		step = r.Clock()
	}
	r.events.Append(nil, step, op, int64(pin), value)
}

// Events returns the recorded timeline.
func (r *Recorder) Events() *dataframe.DataFrame {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events.Copy()
}

// Len returns the number of recorded events.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events.NRows()
}

// Export writes the timeline as "csv" or "json".
func (r *Recorder) Export(w io.Writer, format string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ctx := context.Background()
	switch strings.ToLower(format) {
	case "csv":
		return exports.ExportToCSV(ctx, w, r.events)
	case "json":
		return exports.ExportToJSON(ctx, w, r.events)
	default:
		return fmt.Errorf("%w: %q", ErrExportFormat, format)
	}
}

func (r *Recorder) DigitalRead(pin uint8) (Level, error) {
	level, err := r.hw.DigitalRead(pin)
	if err == nil {
		r.record("digital-read", pin, int64(level))
	}
	return level, err
}

func (r *Recorder) AnalogRead(pin uint8) (uint32, error) {
	v, err := r.hw.AnalogRead(pin)
	if err == nil {
		r.record("analog-read", pin, int64(v))
	}
	return v, err
}

func (r *Recorder) DigitalWrite(pin uint8, level Level) error {
	if err := r.hw.DigitalWrite(pin, level); err != nil {
		return err
	}
	r.record("digital-write", pin, int64(level))
	return nil
}

func (r *Recorder) AnalogWrite(pin uint8, value uint32) error {
	if err := r.hw.AnalogWrite(pin, value); err != nil {
		return err
	}
	r.record("analog-write", pin, int64(value))
	return nil
}

func (r *Recorder) PinMode(pin uint8, mode PinMode) error {
	if err := r.hw.PinMode(pin, mode); err != nil {
		return err
	}
	r.record("pin-mode", pin, int64(mode))
	return nil
}
