package app

import (
	"sync"
	"time"

	"github.com/espressif/esp-matter-sub221/pkg/datamodel"
)

// Blink timings used by identification.
const (
	BlinkPeriod  = 500 * time.Millisecond
	EffectBlinks = 3
)

// blinker toggles the LED until stopped or until count toggles are done.
type blinker struct {
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

func (b *blinker) halt() {
	b.once.Do(func() { close(b.stop) })
	<-b.done
}

// Blinking reports whether identification is blinking the LED.
func (l *Light) Blinking() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.blink != nil
}

// startBlink replaces a running blink. A zero count blinks until
// stopBlink.
func (l *Light) startBlink(period time.Duration, count int) {
	l.stopBlink()

	b := &blinker{stop: make(chan struct{}), done: make(chan struct{})}
	l.mu.Lock()
	l.blink = b
	on := l.power
	l.mu.Unlock()

	go func() {
		defer close(b.done)
		t := time.NewTicker(period)
		defer t.Stop()
		for n := 0; count == 0 || n < count*2; n++ {
			on = !on
			if err := l.led.SetPower(on); err != nil {
				l.log.Warnf("Blink failed: %v", err)
			}
			select {
			case <-b.stop:
				return
			case <-t.C:
			}
		}
		l.mu.Lock()
		if l.blink == b {
			l.blink = nil
		}
		power := l.power
		l.mu.Unlock()
		_ = l.led.SetPower(power)
	}()
}

// stopBlink stops a running blink and restores the LED power.
func (l *Light) stopBlink() {
	l.mu.Lock()
	b := l.blink
	l.blink = nil
	power := l.power
	l.mu.Unlock()
	if b == nil {
		return
	}
	b.halt()
	if err := l.led.SetPower(power); err != nil {
		l.log.Warnf("Restoring LED failed: %v", err)
	}
}

// Identify is the node identification callback. Start blinks the LED
// every BlinkPeriod, Stop restores it and an effect blinks EffectBlinks
// times. Other endpoints are ignored.
func (l *Light) Identify(typ datamodel.IdentifyCallbackType, endpointID datamodel.EndpointID,
	effectID, effectVariant uint8, _ any) error {
	if endpointID != l.endpoint {
		return nil
	}
	switch typ {
	case datamodel.IdentifyStart:
		l.log.Infof("Identification started")
		l.startBlink(BlinkPeriod, 0)
	case datamodel.IdentifyStop:
		l.log.Infof("Identification stopped")
		l.stopBlink()
	case datamodel.IdentifyEffect:
		l.log.Infof("Identification effect 0x%02X variant 0x%02X", effectID, effectVariant)
		l.startBlink(BlinkPeriod/2, EffectBlinks)
	}
	return nil
}

// Close stops any identification blink.
func (l *Light) Close() { l.stopBlink() }
