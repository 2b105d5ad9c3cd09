// Package device describes boards: which LED and button drivers to use
// and on which pins.
package device

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/espressif/esp-matter-sub221/pkg/hal/button"
	"github.com/espressif/esp-matter-sub221/pkg/hal/led"
	"github.com/pion/logging"
	"gopkg.in/yaml.v3"
)

// Profile is a board definition.
type Profile struct {
	Name   string        `yaml:"name"`
	LED    led.Config    `yaml:"led"`
	Button button.Config `yaml:"button"`
}

// Built-in profile names.
const (
	HostSim = "host-sim"
	RPiGPIO = "rpi-gpio"
	RPiRGB  = "rpi-rgb"
)

// Errors returned by Lookup and LoadFile.
var (
	ErrUnknownProfile = errors.New("device: unknown profile")
	ErrInvalidProfile = errors.New("device: invalid profile")
)

var (
	mu       sync.RWMutex
	profiles = map[string]Profile{
		HostSim: {
			Name:   HostSim,
			LED:    led.Config{Type: led.TypeSim},
			Button: button.Config{Type: button.TypeSim},
		},
		RPiGPIO: {
			Name:   RPiGPIO,
			LED:    led.Config{Type: led.TypeGPIO, Pins: []string{"GPIO18"}},
			Button: button.Config{Type: button.TypeGPIO, Pin: "GPIO17", ActiveLow: true},
		},
		RPiRGB: {
			Name:   RPiRGB,
			LED:    led.Config{Type: led.TypeGPIO, Pins: []string{"GPIO12", "GPIO13", "GPIO19"}},
			Button: button.Config{Type: button.TypeGPIO, Pin: "GPIO17", ActiveLow: true},
		},
	}
)

// Default returns the profile selected at build time.
func Default() Profile {
	p, _ := Lookup(defaultProfile)
	return p
}

// Lookup returns the profile called name.
func Lookup(name string) (Profile, error) {
	mu.RLock()
	defer mu.RUnlock()
	p, ok := profiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %q", ErrUnknownProfile, name)
	}
	return p.clone(), nil
}

// Names returns the registered profile names.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(profiles))
	for n := range profiles {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Register adds or replaces a profile.
func Register(p Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	mu.Lock()
	profiles[p.Name] = p.clone()
	mu.Unlock()
	return nil
}

// file is the YAML layout of a board file.
type file struct {
	Boards []Profile `yaml:"boards"`
}

// LoadFile reads board definitions from a YAML file and registers them.
// It returns the names it registered.
func LoadFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("device: parse %s: %w", path, err)
	}
	names := make([]string, 0, len(f.Boards))
	for _, p := range f.Boards {
		if err := Register(p); err != nil {
			return names, fmt.Errorf("device: %s: %w", path, err)
		}
		names = append(names, p.Name)
	}
	return names, nil
}

// Validate checks the profile name and pin counts.
func (p Profile) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidProfile)
	}
	if p.LED.Type == led.TypeGPIO && len(p.LED.Pins) != 1 && len(p.LED.Pins) != 3 {
		return fmt.Errorf("%w: %s: led needs one or three pins", ErrInvalidProfile, p.Name)
	}
	if p.Button.Type == button.TypeGPIO && p.Button.Pin == "" {
		return fmt.Errorf("%w: %s: button needs a pin", ErrInvalidProfile, p.Name)
	}
	return nil
}

func (p Profile) clone() Profile {
	p.LED.Pins = append([]string(nil), p.LED.Pins...)
	return p
}

// Open builds the LED and button drivers of p.
func (p Profile) Open(lf logging.LoggerFactory) (led.Driver, button.Driver, error) {
	if lf == nil {
		lf = logging.NewDefaultLoggerFactory()
	}
	log := lf.NewLogger("hal")

	lc := p.LED
	lc.LoggerFactory = lf
	l, err := led.New(lc)
	if err != nil {
		return nil, nil, fmt.Errorf("device: %s: led: %w", p.Name, err)
	}
	bc := p.Button
	bc.LoggerFactory = lf
	b, err := button.New(bc)
	if err != nil {
		_ = l.Close()
		return nil, nil, fmt.Errorf("device: %s: button: %w", p.Name, err)
	}
	log.Infof("Board %s: led %s, button %s", p.Name, lc.Type, bc.Type)
	return l, b, nil
}
