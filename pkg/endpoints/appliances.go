package endpoints

import (
	"github.com/espressif/esp-matter-sub221/pkg/clusters/doorlock"
	"github.com/espressif/esp-matter-sub221/pkg/clusters/fancontrol"
	"github.com/espressif/esp-matter-sub221/pkg/clusters/groups"
	"github.com/espressif/esp-matter-sub221/pkg/clusters/identify"
	"github.com/espressif/esp-matter-sub221/pkg/clusters/thermostat"
	"github.com/espressif/esp-matter-sub221/pkg/datamodel"
)

// FanConfig configures a fan.
type FanConfig struct {
	Identify   identify.Config
	Groups     groups.Config
	FanControl fancontrol.Config
}

// DefaultFanConfig returns an off fan with an Off/Low/Med/High/Auto
// sequence.
func DefaultFanConfig() *FanConfig {
	cfg := &FanConfig{Identify: *identify.DefaultConfig(), FanControl: *fancontrol.DefaultConfig()}
	cfg.Identify.IdentifyType = identify.TypeActuator
	return cfg
}

// CreateFan creates a fan endpoint.
func CreateFan(node *datamodel.Node, cfg *FanConfig, flags datamodel.EndpointFlags, priv any) (*datamodel.Endpoint, error) {
	return create(node, flags, priv, func(ep *datamodel.Endpoint) error { return AddFan(ep, cfg) })
}

// AddFan adds the fan device type to ep.
func AddFan(ep *datamodel.Endpoint, cfg *FanConfig) error {
	if cfg == nil {
		cfg = DefaultFanConfig()
	}
	return apply(ep, DeviceTypeFan,
		server(identify.Create, &cfg.Identify),
		server(groups.Create, &cfg.Groups),
		server(fancontrol.Create, &cfg.FanControl),
	)
}

// ThermostatConfig configures a thermostat.
type ThermostatConfig struct {
	Identify   identify.Config
	Thermostat thermostat.Config
}

// DefaultThermostatConfig returns a heating and cooling thermostat.
func DefaultThermostatConfig() *ThermostatConfig {
	cfg := &ThermostatConfig{Identify: *identify.DefaultConfig(), Thermostat: *thermostat.DefaultConfig()}
	cfg.Identify.IdentifyType = identify.TypeDisplay
	return cfg
}

// CreateThermostat creates a thermostat endpoint.
func CreateThermostat(node *datamodel.Node, cfg *ThermostatConfig, flags datamodel.EndpointFlags, priv any) (*datamodel.Endpoint, error) {
	return create(node, flags, priv, func(ep *datamodel.Endpoint) error { return AddThermostat(ep, cfg) })
}

// AddThermostat adds the thermostat device type to ep.
func AddThermostat(ep *datamodel.Endpoint, cfg *ThermostatConfig) error {
	if cfg == nil {
		cfg = DefaultThermostatConfig()
	}
	return apply(ep, DeviceTypeThermostat,
		server(identify.Create, &cfg.Identify),
		server(thermostat.Create, &cfg.Thermostat),
	)
}

// DoorLockConfig configures a door lock.
type DoorLockConfig struct {
	Identify identify.Config
	DoorLock doorlock.Config
}

// DefaultDoorLockConfig returns a locked deadbolt.
func DefaultDoorLockConfig() *DoorLockConfig {
	cfg := &DoorLockConfig{Identify: *identify.DefaultConfig(), DoorLock: *doorlock.DefaultConfig()}
	cfg.Identify.IdentifyType = identify.TypeAudibleBeep
	return cfg
}

// CreateDoorLock creates a door lock endpoint.
func CreateDoorLock(node *datamodel.Node, cfg *DoorLockConfig, flags datamodel.EndpointFlags, priv any) (*datamodel.Endpoint, error) {
	return create(node, flags, priv, func(ep *datamodel.Endpoint) error { return AddDoorLock(ep, cfg) })
}

// AddDoorLock adds the door lock device type to ep.
func AddDoorLock(ep *datamodel.Endpoint, cfg *DoorLockConfig) error {
	if cfg == nil {
		cfg = DefaultDoorLockConfig()
	}
	return apply(ep, DeviceTypeDoorLock,
		server(identify.Create, &cfg.Identify),
		server(doorlock.Create, &cfg.DoorLock),
	)
}
