// Package app connects the data model of the example applications to the
// board drivers: attribute changes drive the LED, button events update
// attributes.
package app

import (
	"sync"

	"github.com/espressif/esp-matter-sub221/pkg/clusters/colorcontrol"
	"github.com/espressif/esp-matter-sub221/pkg/clusters/levelcontrol"
	"github.com/espressif/esp-matter-sub221/pkg/clusters/onoff"
	"github.com/espressif/esp-matter-sub221/pkg/datamodel"
	"github.com/espressif/esp-matter-sub221/pkg/hal/led"
	"github.com/pion/logging"
)

// Attribute ranges of the light clusters.
const (
	maxLevel      = 254
	maxHue        = 254
	maxSaturation = 254
)

// Light drives an LED from the attributes of one light endpoint.
type Light struct {
	led      led.Driver
	endpoint datamodel.EndpointID
	log      logging.LeveledLogger

	mu    sync.Mutex
	power bool
	blink *blinker
}

// NewLight returns the glue for the light on endpoint.
func NewLight(driver led.Driver, endpoint datamodel.EndpointID, lf logging.LoggerFactory) *Light {
	if lf == nil {
		lf = logging.NewDefaultLoggerFactory()
	}
	return &Light{led: driver, endpoint: endpoint, log: lf.NewLogger("app")}
}

// Endpoint returns the light endpoint id.
func (l *Light) Endpoint() datamodel.EndpointID { return l.endpoint }

// remap scales v from [0, from] to [0, to].
func remap(v, from, to uint64) uint64 {
	if v > from {
		v = from
	}
	return v * to / from
}

// AttributeUpdate pushes a new attribute value to the LED. Paths outside
// the light endpoint and its OnOff, LevelControl and ColorControl
// attributes are ignored.
func (l *Light) AttributeUpdate(endpointID datamodel.EndpointID, clusterID datamodel.ClusterID,
	attributeID datamodel.AttributeID, val datamodel.Val) error {
	if endpointID != l.endpoint || val.IsNull() {
		return nil
	}
	switch clusterID {
	case onoff.ClusterID:
		if attributeID == onoff.AttrOnOff {
			l.mu.Lock()
			l.power = val.Bool()
			blinking := l.blink != nil
			l.mu.Unlock()
			if blinking {
				return nil
			}
			return l.led.SetPower(val.Bool())
		}
	case levelcontrol.ClusterID:
		if attributeID == levelcontrol.AttrCurrentLevel {
			return l.led.SetBrightness(uint8(remap(val.Uint(), maxLevel, led.MaxPercent)))
		}
	case colorcontrol.ClusterID:
		switch attributeID {
		case colorcontrol.AttrCurrentHue:
			return l.led.SetHue(uint16(remap(val.Uint(), maxHue, led.MaxHue)))
		case colorcontrol.AttrCurrentSaturation:
			return l.led.SetSaturation(uint8(remap(val.Uint(), maxSaturation, led.MaxPercent)))
		case colorcontrol.AttrColorTemperatureMireds:
			if m := val.Uint(); m > 0 {
				return l.led.SetTemperature(uint32(1000000 / m))
			}
		}
	}
	return nil
}

// SetDefaults reads the current light attributes from node and pushes
// them to the LED. ColorMode picks between hue and saturation or color
// temperature.
func (l *Light) SetDefaults(node *datamodel.Node) error {
	get := func(c datamodel.ClusterID, a datamodel.AttributeID) (datamodel.Val, bool) {
		v, err := node.GetVal(l.endpoint, c, a)
		return v, err == nil && !v.IsNull()
	}
	push := func(c datamodel.ClusterID, a datamodel.AttributeID) error {
		if v, ok := get(c, a); ok {
			return l.AttributeUpdate(l.endpoint, c, a, v)
		}
		return nil
	}

	if err := push(levelcontrol.ClusterID, levelcontrol.AttrCurrentLevel); err != nil {
		return err
	}
	if mode, ok := get(colorcontrol.ClusterID, colorcontrol.AttrColorMode); ok {
		switch uint8(mode.Uint()) {
		case colorcontrol.ModeHueSaturation:
			if err := push(colorcontrol.ClusterID, colorcontrol.AttrCurrentHue); err != nil {
				return err
			}
			if err := push(colorcontrol.ClusterID, colorcontrol.AttrCurrentSaturation); err != nil {
				return err
			}
		case colorcontrol.ModeColorTemperature:
			if err := push(colorcontrol.ClusterID, colorcontrol.AttrColorTemperatureMireds); err != nil {
				return err
			}
		default:
			l.log.Warnf("Color mode %d not supported by the LED", mode.Uint())
		}
	}
	return push(onoff.ClusterID, onoff.AttrOnOff)
}

// Callbacks returns the node attribute callback. PreUpdate drives the
// light, PostUpdate is logged. light may be nil for devices without one.
func Callbacks(light *Light, lf logging.LoggerFactory) datamodel.AttributeCallback {
	if lf == nil {
		lf = logging.NewDefaultLoggerFactory()
	}
	log := lf.NewLogger("app")
	return func(typ datamodel.CallbackType, endpointID datamodel.EndpointID, clusterID datamodel.ClusterID,
		attributeID datamodel.AttributeID, val *datamodel.Val, _ any) error {
		switch typ {
		case datamodel.PreUpdate:
			if light == nil || val == nil {
				return nil
			}
			return light.AttributeUpdate(endpointID, clusterID, attributeID, *val)
		case datamodel.PostUpdate:
			if val != nil {
				log.Debugf("Attribute updated: endpoint 0x%04X cluster 0x%08X attribute 0x%08X = %s",
					uint16(endpointID), uint32(clusterID), uint32(attributeID), *val)
			}
		}
		return nil
	}
}
