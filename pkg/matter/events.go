package matter

import (
	"fmt"
	"time"

	"github.com/espressif/esp-matter-sub221/pkg/clusters/otarequestor"
	"github.com/espressif/esp-matter-sub221/pkg/commissioning"
	"github.com/espressif/esp-matter-sub221/pkg/datamodel"
)

// EventType identifies a device event.
type EventType int

const (
	EventStarted EventType = iota + 1
	EventCommissioningWindowOpened
	EventCommissioningWindowClosed
	EventCommissioningComplete
	EventFabricRemoved
	EventFactoryReset
	EventOTAStateChanged
)

func (t EventType) String() string {
	switch t {
	case EventStarted:
		return "Started"
	case EventCommissioningWindowOpened:
		return "CommissioningWindowOpened"
	case EventCommissioningWindowClosed:
		return "CommissioningWindowClosed"
	case EventCommissioningComplete:
		return "CommissioningComplete"
	case EventFabricRemoved:
		return "FabricRemoved"
	case EventFactoryReset:
		return "FactoryReset"
	case EventOTAStateChanged:
		return "OTAStateChanged"
	}
	return fmt.Sprintf("EventType(%d)", int(t))
}

// DeviceEvent is delivered to NodeConfig.OnEvent. Only the fields
// relevant to Type are set.
type DeviceEvent struct {
	Type EventType

	// Timeout of an opened commissioning window.
	Timeout time.Duration
	// CloseReason of a closed commissioning window.
	CloseReason commissioning.CloseReason
	// FabricIndex of a completed commissioning or a removed fabric.
	FabricIndex datamodel.FabricIndex

	OTAPrevious otarequestor.UpdateState
	OTACurrent  otarequestor.UpdateState
	OTAReason   otarequestor.ChangeReason
}

func (e DeviceEvent) String() string {
	switch e.Type {
	case EventCommissioningWindowOpened:
		return fmt.Sprintf("%s timeout=%s", e.Type, e.Timeout)
	case EventCommissioningWindowClosed:
		return fmt.Sprintf("%s reason=%s", e.Type, e.CloseReason)
	case EventCommissioningComplete, EventFabricRemoved:
		return fmt.Sprintf("%s fabric=%d", e.Type, e.FabricIndex)
	case EventOTAStateChanged:
		return fmt.Sprintf("%s %s -> %s", e.Type, e.OTAPrevious, e.OTACurrent)
	}
	return e.Type.String()
}

// emit delivers ev to the configured callback. It must be called without
// n.mu held.
func (n *Node) emit(ev DeviceEvent) {
	n.log.Debugf("Device event: %s", ev)
	if n.config.OnEvent != nil {
		n.config.OnEvent(ev)
	}
}

// OTAStateChanged reports an OTA requestor transition as a device event.
// It has the signature of ota.RequestorConfig.OnStateChange.
func (n *Node) OTAStateChanged(prev, next otarequestor.UpdateState, reason otarequestor.ChangeReason) {
	n.emit(DeviceEvent{
		Type:        EventOTAStateChanged,
		OTAPrevious: prev,
		OTACurrent:  next,
		OTAReason:   reason,
	})
}
