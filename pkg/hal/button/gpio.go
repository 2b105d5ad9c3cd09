package button

import (
	"sync"
	"time"

	"github.com/espressif/esp-matter-sub221/pkg/hal"
	"periph.io/x/conn/v3/gpio"
)

// edgePoll bounds how long the edge loop blocks, so Close returns
// promptly.
const edgePoll = 100 * time.Millisecond

// GPIO is a button on an input pin with edge detection.
type GPIO struct {
	*Detector
	pin       gpio.PinIn
	activeLow bool
	stop      chan struct{}
	wg        sync.WaitGroup
	once      sync.Once
}

// NewGPIO configures pin as an input with both edges enabled. An
// active-low button gets a pull-up, otherwise a pull-down.
func NewGPIO(pin gpio.PinIn, activeLow bool, cfg DetectorConfig) (*GPIO, error) {
	pull := gpio.PullDown
	if activeLow {
		pull = gpio.PullUp
	}
	if err := pin.In(pull, gpio.BothEdges); err != nil {
		return nil, err
	}
	g := &GPIO{
		Detector:  NewDetector(cfg),
		pin:       pin,
		activeLow: activeLow,
		stop:      make(chan struct{}),
	}
	g.wg.Add(1)
	go g.watch()
	return g, nil
}

func openGPIO(cfg Config) (Driver, error) {
	p, err := hal.Pin(cfg.Pin)
	if err != nil {
		return nil, err
	}
	return NewGPIO(p, cfg.ActiveLow, cfg.detectorConfig())
}

func (g *GPIO) pressed() bool {
	return bool(g.pin.Read()) != g.activeLow
}

func (g *GPIO) watch() {
	defer g.wg.Done()
	last := g.pressed()
	for {
		select {
		case <-g.stop:
			return
		default:
		}
		if !g.pin.WaitForEdge(edgePoll) {
			continue
		}
		if p := g.pressed(); p != last {
			last = p
			g.Feed(p)
		}
	}
}

// Close stops edge detection and the detector.
func (g *GPIO) Close() error {
	var err error
	g.once.Do(func() {
		close(g.stop)
		g.wg.Wait()
		err = g.pin.Halt()
		_ = g.Detector.Close()
	})
	return err
}
