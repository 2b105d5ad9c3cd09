// Package button turns raw button levels into press, click and long press
// events.
package button

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pion/logging"
)

// Kind is the kind of a button event.
type Kind uint8

// Event kinds.
const (
	PressDown Kind = iota
	PressUp
	SingleClick
	DoubleClick
	LongPressStart
	LongPressHold
)

func (k Kind) String() string {
	switch k {
	case PressDown:
		return "PressDown"
	case PressUp:
		return "PressUp"
	case SingleClick:
		return "SingleClick"
	case DoubleClick:
		return "DoubleClick"
	case LongPressStart:
		return "LongPressStart"
	case LongPressHold:
		return "LongPressHold"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Event is a debounced button event. Held is the time since PressDown
// for PressUp, LongPressStart and LongPressHold.
type Event struct {
	Kind Kind
	Time time.Time
	Held time.Duration
}

// Driver is a button backend.
type Driver interface {
	// Events is closed by Close.
	Events() <-chan Event
	Close() error
}

// Driver types.
const (
	TypeNone = "none"
	TypeSim  = "sim"
	TypeGPIO = "gpio"
)

// Config selects and configures a driver.
type Config struct {
	Type      string `yaml:"type"`
	Pin       string `yaml:"pin"`
	ActiveLow bool   `yaml:"active_low"`
	// LongPress overrides DefaultLongPress.
	LongPress time.Duration `yaml:"long_press"`

	LoggerFactory logging.LoggerFactory `yaml:"-"`
}

// ErrUnknownType is returned by New for an unregistered type.
var ErrUnknownType = errors.New("button: unknown driver type")

// Factory builds a driver from a config.
type Factory func(cfg Config) (Driver, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register makes a driver type available to New.
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

func (c Config) detectorConfig() DetectorConfig {
	dc := DefaultDetectorConfig()
	if c.LongPress > 0 {
		dc.LongPress = c.LongPress
	}
	return dc
}

func init() {
	Register(TypeNone, func(Config) (Driver, error) { return newNop(), nil })
	Register(TypeSim, func(cfg Config) (Driver, error) {
		dc := cfg.detectorConfig()
		dc.Debounce = 0
		return NewSimWithConfig(dc), nil
	})
	Register(TypeGPIO, openGPIO)
}

type nop struct {
	ch   chan Event
	once sync.Once
}

func newNop() *nop { return &nop{ch: make(chan Event)} }

func (n *nop) Events() <-chan Event { return n.ch }

func (n *nop) Close() error {
	n.once.Do(func() { close(n.ch) })
	return nil
}
