package hw

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

// Analog writes use the 8-bit range of the Arduino analogWrite call and are
// mapped onto a PWM duty cycle at PWMFrequency.
const (
	AnalogWriteMax = 255
	PWMFrequency   = 490 * physic.Hertz
)

// GPIO drives real pins through periph.io. VM pin numbers are mapped to
// periph pin names such as "GPIO13".
type GPIO struct {
	mu   sync.Mutex
	pins map[uint8]gpio.PinIO
}

// NewGPIO initialises the host drivers and resolves every mapped pin name.
func NewGPIO(names map[uint8]string) (*GPIO, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("initialising periph host: %w", err)
	}
	pins := make(map[uint8]gpio.PinIO, len(names))
	for n, name := range names {
		p := gpioreg.ByName(name)
		if p == nil {
			return nil, fmt.Errorf("%w: %d (no pin named %q)", ErrUnmappedPin, n, name)
		}
		pins[n] = p
	}
	return NewGPIOFromPins(pins), nil
}

// NewGPIOFromPins uses already resolved pins.
func NewGPIOFromPins(pins map[uint8]gpio.PinIO) *GPIO {
	return &GPIO{pins: pins}
}

func (g *GPIO) pin(n uint8) (gpio.PinIO, error) {
	p, ok := g.pins[n]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnmappedPin, n)
	}
	return p, nil
}

func (g *GPIO) DigitalRead(n uint8) (Level, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, err := g.pin(n)
	if err != nil {
		return Low, err
	}
	if p.Read() == gpio.High {
		return High, nil
	}
	return Low, nil
}

func (g *GPIO) AnalogRead(n uint8) (uint32, error) {
	return 0, fmt.Errorf("%w: analog read on pin %d", ErrUnsupported, n)
}

func (g *GPIO) DigitalWrite(n uint8, level Level) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, err := g.pin(n)
	if err != nil {
		return err
	}
	log.Debugf("gpio %s = %d", p.Name(), level)
	return p.Out(level != Low)
}

func (g *GPIO) AnalogWrite(n uint8, value uint32) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, err := g.pin(n)
	if err != nil {
		return err
	}
	if value > AnalogWriteMax {
		value = AnalogWriteMax
	}
	duty := gpio.Duty(int64(gpio.DutyMax) * int64(value) / AnalogWriteMax)
	log.Debugf("gpio %s pwm %s", p.Name(), duty)
	return p.PWM(duty, PWMFrequency)
}

func (g *GPIO) PinMode(n uint8, mode PinMode) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, err := g.pin(n)
	if err != nil {
		return err
	}
	switch mode {
	case Input:
		return p.In(gpio.Float, gpio.NoEdge)
	case InputPullup:
		return p.In(gpio.PullUp, gpio.NoEdge)
	case Output:
		return p.Out(gpio.Low)
	default:
		return fmt.Errorf("%w: %d", ErrInvalidMode, mode)
	}
}
