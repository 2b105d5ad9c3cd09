// Package hal gives the LED and button drivers access to host GPIO through
// periph.io. Drivers take pins as gpio interfaces so tests can use
// gpiotest pins without touching the host.
package hal

import (
	"errors"
	"fmt"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// ErrPinNotFound is returned when a pin name is not registered.
var ErrPinNotFound = errors.New("hal: pin not found")

var (
	initOnce sync.Once
	initErr  error
)

// Init loads the periph.io host drivers once per process.
func Init() error {
	initOnce.Do(func() {
		_, initErr = host.Init()
	})
	return initErr
}

// Pin initialises the host and returns the pin called name, e.g.
// "GPIO17".
func Pin(name string) (gpio.PinIO, error) {
	if err := Init(); err != nil {
		return nil, fmt.Errorf("hal: host init: %w", err)
	}
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("%w: %s", ErrPinNotFound, name)
	}
	return p, nil
}
