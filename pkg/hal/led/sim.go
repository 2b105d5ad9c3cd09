package led

import (
	"errors"
	"fmt"
	"sync"

	"github.com/pion/logging"
)

// ErrOutOfRange is returned for channel values beyond their limits.
var ErrOutOfRange = errors.New("led: value out of range")

// Sim is an in-memory LED that logs every change.
type Sim struct {
	mu     sync.Mutex
	log    logging.LeveledLogger
	state  State
	closed bool
}

// NewSim returns a simulated LED. It starts off at full brightness with a
// 4000K white point.
func NewSim(log logging.LeveledLogger) *Sim {
	return &Sim{
		log:   log,
		state: State{Brightness: MaxPercent, Temperature: 4000},
	}
}

// State returns the current LED state.
func (s *Sim) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Sim) update(fn func(*State) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return fn(&s.state)
}

// SetPower switches the LED.
func (s *Sim) SetPower(on bool) error {
	return s.update(func(st *State) error {
		st.On = on
		s.log.Infof("LED set power: %t", on)
		return nil
	})
}

// SetBrightness sets the brightness in percent.
func (s *Sim) SetBrightness(percent uint8) error {
	if percent > MaxPercent {
		return fmt.Errorf("%w: brightness %d", ErrOutOfRange, percent)
	}
	return s.update(func(st *State) error {
		st.Brightness = percent
		s.log.Infof("LED set brightness: %d", percent)
		return nil
	})
}

// SetHue sets the hue in degrees.
func (s *Sim) SetHue(deg uint16) error {
	if deg > MaxHue {
		return fmt.Errorf("%w: hue %d", ErrOutOfRange, deg)
	}
	return s.update(func(st *State) error {
		st.Hue = deg
		st.ColorMode = ModeHS
		s.log.Infof("LED set hue: %d", deg)
		return nil
	})
}

// SetSaturation sets the saturation in percent.
func (s *Sim) SetSaturation(percent uint8) error {
	if percent > MaxPercent {
		return fmt.Errorf("%w: saturation %d", ErrOutOfRange, percent)
	}
	return s.update(func(st *State) error {
		st.Saturation = percent
		st.ColorMode = ModeHS
		s.log.Infof("LED set saturation: %d", percent)
		return nil
	})
}

// SetTemperature sets the white point in kelvin.
func (s *Sim) SetTemperature(kelvin uint32) error {
	if kelvin < MinTemperature || kelvin > MaxTemperature {
		return fmt.Errorf("%w: temperature %d", ErrOutOfRange, kelvin)
	}
	return s.update(func(st *State) error {
		st.Temperature = kelvin
		st.ColorMode = ModeTemperature
		s.log.Infof("LED set temperature: %d", kelvin)
		return nil
	})
}

// Close marks the LED closed. Later calls fail with ErrClosed.
func (s *Sim) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
