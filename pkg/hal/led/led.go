// Package led drives the status or light LED of a device.
package led

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/pion/logging"
)

// Driver is an LED backend. Brightness and saturation are percentages,
// hue is in degrees and temperature in kelvin.
type Driver interface {
	SetPower(on bool) error
	SetBrightness(percent uint8) error
	SetHue(deg uint16) error
	SetSaturation(percent uint8) error
	SetTemperature(kelvin uint32) error
	Close() error
}

// State is the last value set for every channel.
type State struct {
	On          bool
	Brightness  uint8
	Hue         uint16
	Saturation  uint8
	Temperature uint32
	// ColorMode is ModeHS after SetHue or SetSaturation and ModeTemperature
	// after SetTemperature.
	ColorMode ColorMode
}

// ColorMode selects how a color LED mixes its channels.
type ColorMode uint8

// Color modes.
const (
	ModeTemperature ColorMode = iota
	ModeHS
)

// Limits for the channel values.
const (
	MaxPercent     = 100
	MaxHue         = 360
	MinTemperature = 1000
	MaxTemperature = 40000
)

// Driver types.
const (
	TypeNone = "none"
	TypeSim  = "sim"
	TypeGPIO = "gpio"
)

// Config selects and configures a driver.
type Config struct {
	Type string `yaml:"type"`
	// Pins lists one pin for a mono LED or three pins, red, green and
	// blue, for an RGB LED.
	Pins []string `yaml:"pins"`
	// PWMFrequency in hertz. Zero uses DefaultPWMFrequency.
	PWMFrequency uint32 `yaml:"pwm_frequency"`

	LoggerFactory logging.LoggerFactory `yaml:"-"`
}

// Errors returned by New and the drivers.
var (
	ErrUnknownType = errors.New("led: unknown driver type")
	ErrClosed      = errors.New("led: driver closed")
	ErrPins        = errors.New("led: need one or three pins")
)

// Factory builds a driver from a config.
type Factory func(cfg Config) (Driver, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register makes a driver type available to New. It replaces an earlier
// registration of the same type.
func Register(typ string, f Factory) {
	registryMu.Lock()
	registry[typ] = f
	registryMu.Unlock()
}

// Types returns the registered driver types.
func Types() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]string, 0, len(registry))
	for t := range registry {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// New builds the driver registered for cfg.Type. An empty type is "none".
func New(cfg Config) (Driver, error) {
	if cfg.Type == "" {
		cfg.Type = TypeNone
	}
	if cfg.LoggerFactory == nil {
		cfg.LoggerFactory = logging.NewDefaultLoggerFactory()
	}
	registryMu.RLock()
	f, ok := registry[cfg.Type]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, cfg.Type)
	}
	return f(cfg)
}

func init() {
	Register(TypeNone, func(Config) (Driver, error) { return nop{}, nil })
	Register(TypeSim, func(cfg Config) (Driver, error) {
		return NewSim(cfg.LoggerFactory.NewLogger("hal")), nil
	})
	Register(TypeGPIO, openGPIO)
}

type nop struct{}

func (nop) SetPower(bool) error { return nil }
func (nop) SetBrightness(uint8) error { return nil }
func (nop) SetHue(uint16) error { return nil }
func (nop) SetSaturation(uint8) error { return nil }
func (nop) SetTemperature(uint32) error { return nil }
func (nop) Close() error { return nil }
