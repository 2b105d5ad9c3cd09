package led

import (
	"fmt"
	"sync"

	"github.com/espressif/esp-matter-sub221/pkg/hal"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
)

// DefaultPWMFrequency is used when no frequency is configured.
const DefaultPWMFrequency = 1 * physic.KiloHertz

// GPIO drives a mono LED from one PWM pin or an RGB LED from three.
type GPIO struct {
	mu     sync.Mutex
	pins   []gpio.PinOut
	freq   physic.Frequency
	state  State
	closed bool
}

// NewGPIO returns an LED on pins. One pin is a mono LED, three pins are
// the red, green and blue channels. A zero freq uses DefaultPWMFrequency.
func NewGPIO(pins []gpio.PinOut, freq physic.Frequency) (*GPIO, error) {
	if len(pins) != 1 && len(pins) != 3 {
		return nil, fmt.Errorf("%w: got %d", ErrPins, len(pins))
	}
	if freq == 0 {
		freq = DefaultPWMFrequency
	}
	g := &GPIO{
		pins:  pins,
		freq:  freq,
		state: State{Brightness: MaxPercent, Temperature: 4000},
	}
	return g, g.render()
}

func openGPIO(cfg Config) (Driver, error) {
	pins := make([]gpio.PinOut, 0, len(cfg.Pins))
	for _, name := range cfg.Pins {
		p, err := hal.Pin(name)
		if err != nil {
			return nil, err
		}
		pins = append(pins, p)
	}
	return NewGPIO(pins, physic.Frequency(cfg.PWMFrequency)*physic.Hertz)
}

// State returns the current LED state.
func (g *GPIO) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

func (g *GPIO) update(fn func(*State)) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return ErrClosed
	}
	fn(&g.state)
	return g.render()
}

// SetPower switches the LED.
func (g *GPIO) SetPower(on bool) error {
	return g.update(func(st *State) { st.On = on })
}

// SetBrightness sets the PWM duty cycle in percent.
func (g *GPIO) SetBrightness(percent uint8) error {
	if percent > MaxPercent {
		return fmt.Errorf("%w: brightness %d", ErrOutOfRange, percent)
	}
	return g.update(func(st *State) { st.Brightness = percent })
}

// SetHue sets the hue of an RGB LED. A mono LED stores it only.
func (g *GPIO) SetHue(deg uint16) error {
	if deg > MaxHue {
		return fmt.Errorf("%w: hue %d", ErrOutOfRange, deg)
	}
	return g.update(func(st *State) { st.Hue, st.ColorMode = deg, ModeHS })
}

// SetSaturation sets the saturation of an RGB LED.
func (g *GPIO) SetSaturation(percent uint8) error {
	if percent > MaxPercent {
		return fmt.Errorf("%w: saturation %d", ErrOutOfRange, percent)
	}
	return g.update(func(st *State) { st.Saturation, st.ColorMode = percent, ModeHS })
}

// SetTemperature sets the white point of an RGB LED.
func (g *GPIO) SetTemperature(kelvin uint32) error {
	if kelvin < MinTemperature || kelvin > MaxTemperature {
		return fmt.Errorf("%w: temperature %d", ErrOutOfRange, kelvin)
	}
	return g.update(func(st *State) { st.Temperature, st.ColorMode = kelvin, ModeTemperature })
}

// Close turns the LED off and releases the pins.
func (g *GPIO) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil
	}
	g.closed = true
	var first error
	for _, p := range g.pins {
		if err := p.Out(gpio.Low); err != nil && first == nil {
			first = err
		}
		if err := p.Halt(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// render writes the state to the pins. Called with mu held.
func (g *GPIO) render() error {
	st := g.state
	if !st.On {
		for _, p := range g.pins {
			if err := p.Out(gpio.Low); err != nil {
				return err
			}
		}
		return nil
	}
	if len(g.pins) == 1 {
		return g.drive(g.pins[0], uint32(st.Brightness), MaxPercent)
	}
	var c RGB
	if st.ColorMode == ModeHS {
		c = HSVToRGB(st.Hue, st.Saturation, st.Brightness)
	} else {
		c = KelvinToRGB(st.Temperature).Scale(st.Brightness)
	}
	for i, v := range []uint8{c.R, c.G, c.B} {
		if err := g.drive(g.pins[i], uint32(v), 255); err != nil {
			return err
		}
	}
	return nil
}

// drive sets p to v/full of the duty cycle. Pins without PWM are driven
// high from half duty up.
func (g *GPIO) drive(p gpio.PinOut, v, full uint32) error {
	duty := gpio.Duty(uint64(gpio.DutyMax) * uint64(v) / uint64(full))
	if err := p.PWM(duty, g.freq); err == nil {
		return nil
	}
	return p.Out(duty >= gpio.DutyHalf)
}
