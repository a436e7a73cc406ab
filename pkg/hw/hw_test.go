package hw

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
)

func TestSimDefaults(t *testing.T) {
	var out bytes.Buffer
	s := NewSim(&out)

	level, err := s.DigitalRead(3)
	require.NoError(t, err)
	assert.Equal(t, Level(1), level)

	v, err := s.AnalogRead(3)
	require.NoError(t, err)
	assert.Equal(t, uint32(1024), v)

	assert.Empty(t, out.String(), "reads must not print")
}

func TestSimWrites(t *testing.T) {
	var out bytes.Buffer
	s := NewSim(&out)

	require.NoError(t, s.PinMode(13, Output))
	require.NoError(t, s.DigitalWrite(13, High))
	require.NoError(t, s.AnalogWrite(9, 200))

	assert.Equal(t, "set pin 13 to mode 1\nset pin 13 to D1\nset pin 9 to A200\n", out.String())
	assert.Equal(t, PinState{Mode: Output, Level: High}, s.Pin(13))
	assert.Equal(t, uint32(200), s.Pin(9).Analog)
}

func TestSimNilWriter(t *testing.T) {
	s := NewSim(nil)
	assert.NoError(t, s.DigitalWrite(1, Low))
}

type failWriter struct{}

func (failWriter) Write([]byte) (int, error) { return 0, errors.New("closed") }

func TestSimWriteError(t *testing.T) {
	s := NewSim(failWriter{})
	assert.Error(t, s.DigitalWrite(1, High))
}

func TestStimulusReplay(t *testing.T) {
	st := NewStimulus()
	st.Add(2, Digital, 0)
	st.Add(2, Digital, 1)
	st.Add(5, Analog, 300)
	assert.Equal(t, 3, st.Len())

	s := NewSim(nil)
	s.SetStimulus(st)

	var got []Level
	for i := 0; i < 4; i++ {
		l, err := s.DigitalRead(2)
		require.NoError(t, err)
		got = append(got, l)
	}
	assert.Equal(t, []Level{0, 1, 1, 1}, got, "last value is held")

	v, _ := s.AnalogRead(5)
	assert.Equal(t, uint32(300), v)

	// unscripted pins and kinds fall back to the defaults
	v, _ = s.AnalogRead(2)
	assert.Equal(t, SimAnalogValue, v)
	l, _ := s.DigitalRead(5)
	assert.Equal(t, SimDigitalValue, l)

	st.Rewind()
	l, _ = s.DigitalRead(2)
	assert.Equal(t, Level(0), l)
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		in   string
		want Kind
		ok   bool
	}{
		{"digital", Digital, true},
		{"Analog", Analog, true},
		{" d ", Digital, true},
		{"a", Analog, true},
		{"pwm", 0, false},
	}
	for _, tt := range tests {
		k, err := ParseKind(tt.in)
		if !tt.ok {
			assert.ErrorIs(t, err, ErrUnknownKind, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, k, tt.in)
	}
}

func TestNull(t *testing.T) {
	var h Hardware = Null{}
	l, err := h.DigitalRead(1)
	assert.NoError(t, err)
	assert.Equal(t, Low, l)
	v, err := h.AnalogRead(1)
	assert.NoError(t, err)
	assert.Zero(t, v)
	assert.NoError(t, h.DigitalWrite(1, High))
	assert.NoError(t, h.AnalogWrite(1, 9))
	assert.NoError(t, h.PinMode(1, Output))
}

func TestRecorder(t *testing.T) {
	rec := NewRecorder(NewSim(nil))
	var step int64 = 41
	rec.Clock = func() int64 { step++; return step }

	require.NoError(t, rec.PinMode(13, Output))
	require.NoError(t, rec.DigitalWrite(13, High))
	_, err := rec.AnalogRead(0)
	require.NoError(t, err)
	assert.Equal(t, 3, rec.Len())

	var csv bytes.Buffer
	require.NoError(t, rec.Export(&csv, "csv"))
	lines := strings.Split(strings.TrimSpace(csv.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "step,op,pin,value", lines[0])
	assert.Equal(t, "42,pin-mode,13,1", lines[1])
	assert.Equal(t, "43,digital-write,13,1", lines[2])
	assert.Equal(t, "44,analog-read,0,1024", lines[3])

	var js bytes.Buffer
	require.NoError(t, rec.Export(&js, "JSON"))
	assert.Contains(t, js.String(), `"digital-write"`)

	assert.ErrorIs(t, rec.Export(&js, "xml"), ErrExportFormat)
}

func TestRecorderSkipsFailedCalls(t *testing.T) {
	rec := NewRecorder(NewGPIOFromPins(nil))
	assert.Error(t, rec.DigitalWrite(1, High))
	_, err := rec.AnalogRead(1)
	assert.ErrorIs(t, err, ErrUnsupported)
	assert.Zero(t, rec.Len())
}

func TestGPIO(t *testing.T) {
	p := &gpiotest.Pin{N: "GPIO13"}
	g := NewGPIOFromPins(map[uint8]gpio.PinIO{13: p})

	require.NoError(t, g.PinMode(13, Output))
	require.NoError(t, g.DigitalWrite(13, High))
	assert.Equal(t, gpio.High, p.L)

	level, err := g.DigitalRead(13)
	require.NoError(t, err)
	assert.Equal(t, High, level)

	require.NoError(t, g.DigitalWrite(13, Low))
	level, _ = g.DigitalRead(13)
	assert.Equal(t, Low, level)

	require.NoError(t, g.PinMode(13, InputPullup))
	assert.Equal(t, gpio.PullUp, p.P)

	assert.ErrorIs(t, g.PinMode(13, PinMode(7)), ErrInvalidMode)
	assert.ErrorIs(t, g.DigitalWrite(4, High), ErrUnmappedPin)
	_, err = g.AnalogRead(13)
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestPinModeString(t *testing.T) {
	assert.Equal(t, "output", Output.String())
	assert.Equal(t, "input-pullup", InputPullup.String())
	assert.Equal(t, "mode(9)", PinMode(9).String())
}
