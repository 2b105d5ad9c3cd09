package datamodel

import (
	"sync"
	"time"
)

// Identify cluster ids needed to set up identification on enable.
const (
	IdentifyClusterID       ClusterID   = 0x0003
	IdentifyTimeAttributeID AttributeID = 0x0000
	IdentifyTypeAttributeID AttributeID = 0x0001
)

// Identify drives the identification callback for one endpoint.
type Identify struct {
	ep  *Endpoint
	typ uint8

	mu     sync.Mutex
	active bool
	timer  *time.Timer
}

func newIdentify(ep *Endpoint, typ uint8) *Identify {
	return &Identify{ep: ep, typ: typ}
}

// Type returns the IdentifyType the handle was created with.
func (i *Identify) Type() uint8 { return i.typ }

// Active reports whether identification is running.
func (i *Identify) Active() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.active
}

// Start begins identification. A positive d stops it automatically.
func (i *Identify) Start(d time.Duration) error {
	i.mu.Lock()
	if i.timer != nil {
		i.timer.Stop()
		i.timer = nil
	}
	wasActive := i.active
	i.active = true
	if d > 0 {
		i.timer = time.AfterFunc(d, func() { _ = i.Stop() })
	}
	i.mu.Unlock()
	if wasActive {
		return nil
	}
	return i.call(IdentifyStart, 0, 0)
}

// Stop ends identification.
func (i *Identify) Stop() error {
	i.mu.Lock()
	if i.timer != nil {
		i.timer.Stop()
		i.timer = nil
	}
	wasActive := i.active
	i.active = false
	i.mu.Unlock()
	if !wasActive {
		return nil
	}
	return i.call(IdentifyStop, 0, 0)
}

// TriggerEffect asks the application to play an identify effect.
func (i *Identify) TriggerEffect(effectID, effectVariant uint8) error {
	return i.call(IdentifyEffect, effectID, effectVariant)
}

func (i *Identify) cancel() {
	i.mu.Lock()
	if i.timer != nil {
		i.timer.Stop()
		i.timer = nil
	}
	i.active = false
	i.mu.Unlock()
}

func (i *Identify) call(typ IdentifyCallbackType, effectID, effectVariant uint8) error {
	n := i.ep.node
	cb := n.identifyCallback()
	if cb == nil {
		return nil
	}
	n.log.Infof("Identification callback: type: %s, effect: %d", typ, effectID)
	return cb(typ, i.ep.id, effectID, effectVariant, i.ep.PrivData())
}
