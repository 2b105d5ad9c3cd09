package app

import (
	"context"
	"time"

	"github.com/espressif/esp-matter-sub221/pkg/clusters/onoff"
	"github.com/espressif/esp-matter-sub221/pkg/datamodel"
	"github.com/espressif/esp-matter-sub221/pkg/hal/button"
	"github.com/pion/logging"
)

// DefaultResetHold is how long the button must be held for a factory
// reset.
const DefaultResetHold = 5 * time.Second

// ButtonHandler toggles the light on a single click and factory resets
// the device after a long hold.
type ButtonHandler struct {
	Node     *datamodel.Node
	Endpoint datamodel.EndpointID
	// ResetHold zero means DefaultResetHold.
	ResetHold    time.Duration
	FactoryReset func() error

	LoggerFactory logging.LoggerFactory

	log   logging.LeveledLogger
	armed bool
}

// Run handles events until ctx is done or events is closed.
func (h *ButtonHandler) Run(ctx context.Context, events <-chan button.Event) {
	if h.LoggerFactory == nil {
		h.LoggerFactory = logging.NewDefaultLoggerFactory()
	}
	h.log = h.LoggerFactory.NewLogger("app")
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			h.handle(ev)
		}
	}
}

func (h *ButtonHandler) handle(ev button.Event) {
	switch ev.Kind {
	case button.SingleClick:
		if err := h.toggle(); err != nil {
			h.log.Errorf("Toggle failed: %v", err)
		}
	case button.LongPressStart:
		h.armed = true
		h.log.Infof("Factory reset armed, release after %s", h.resetHold())
	case button.PressUp:
		if !h.armed {
			return
		}
		h.armed = false
		if ev.Held < h.resetHold() {
			h.log.Infof("Factory reset cancelled")
			return
		}
		h.log.Warnf("Factory reset triggered")
		if h.FactoryReset == nil {
			return
		}
		if err := h.FactoryReset(); err != nil {
			h.log.Errorf("Factory reset failed: %v", err)
		}
	}
}

func (h *ButtonHandler) resetHold() time.Duration {
	if h.ResetHold > 0 {
		return h.ResetHold
	}
	return DefaultResetHold
}

// toggle reads OnOff and writes its negation through the server path, so
// the attribute callback drives the LED.
func (h *ButtonHandler) toggle() error {
	v, err := h.Node.GetVal(h.Endpoint, onoff.ClusterID, onoff.AttrOnOff)
	if err != nil {
		return err
	}
	return h.Node.Update(h.Endpoint, onoff.ClusterID, onoff.AttrOnOff, datamodel.Bool(!v.Bool()))
}
