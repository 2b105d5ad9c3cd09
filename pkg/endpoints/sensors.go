package endpoints

import (
	"github.com/espressif/esp-matter-sub221/pkg/clusters/booleanstate"
	"github.com/espressif/esp-matter-sub221/pkg/clusters/genericswitch"
	"github.com/espressif/esp-matter-sub221/pkg/clusters/identify"
	"github.com/espressif/esp-matter-sub221/pkg/clusters/occupancysensing"
	"github.com/espressif/esp-matter-sub221/pkg/clusters/temperaturemeasurement"
	"github.com/espressif/esp-matter-sub221/pkg/datamodel"
)

func defaultIdentify() identify.Config {
	cfg := *identify.DefaultConfig()
	cfg.IdentifyType = identify.TypeVisibleIndicator
	return cfg
}

// GenericSwitchConfig configures a generic switch.
type GenericSwitchConfig struct {
	Identify identify.Config
	Switch   genericswitch.Config
}

// DefaultGenericSwitchConfig returns a momentary two position switch.
func DefaultGenericSwitchConfig() *GenericSwitchConfig {
	return &GenericSwitchConfig{Identify: defaultIdentify(), Switch: *genericswitch.DefaultConfig()}
}

// CreateGenericSwitch creates a generic switch endpoint.
func CreateGenericSwitch(node *datamodel.Node, cfg *GenericSwitchConfig, flags datamodel.EndpointFlags, priv any) (*datamodel.Endpoint, error) {
	return create(node, flags, priv, func(ep *datamodel.Endpoint) error { return AddGenericSwitch(ep, cfg) })
}

// AddGenericSwitch adds the generic switch device type to ep.
func AddGenericSwitch(ep *datamodel.Endpoint, cfg *GenericSwitchConfig) error {
	if cfg == nil {
		cfg = DefaultGenericSwitchConfig()
	}
	return apply(ep, DeviceTypeGenericSwitch,
		server(identify.Create, &cfg.Identify),
		server(genericswitch.Create, &cfg.Switch),
	)
}

// TemperatureSensorConfig configures a temperature sensor.
type TemperatureSensorConfig struct {
	Identify    identify.Config
	Temperature temperaturemeasurement.Config
}

// DefaultTemperatureSensorConfig returns a sensor with unknown value
// and range.
func DefaultTemperatureSensorConfig() *TemperatureSensorConfig {
	return &TemperatureSensorConfig{Identify: defaultIdentify()}
}

// CreateTemperatureSensor creates a temperature sensor endpoint.
func CreateTemperatureSensor(node *datamodel.Node, cfg *TemperatureSensorConfig, flags datamodel.EndpointFlags, priv any) (*datamodel.Endpoint, error) {
	return create(node, flags, priv, func(ep *datamodel.Endpoint) error { return AddTemperatureSensor(ep, cfg) })
}

// AddTemperatureSensor adds the temperature sensor device type to ep.
func AddTemperatureSensor(ep *datamodel.Endpoint, cfg *TemperatureSensorConfig) error {
	if cfg == nil {
		cfg = DefaultTemperatureSensorConfig()
	}
	return apply(ep, DeviceTypeTemperatureSensor,
		server(identify.Create, &cfg.Identify),
		server(temperaturemeasurement.Create, &cfg.Temperature),
	)
}

// OccupancySensorConfig configures an occupancy sensor.
type OccupancySensorConfig struct {
	Identify  identify.Config
	Occupancy occupancysensing.Config
}

// DefaultOccupancySensorConfig returns an unoccupied PIR sensor.
func DefaultOccupancySensorConfig() *OccupancySensorConfig {
	return &OccupancySensorConfig{Identify: defaultIdentify(), Occupancy: *occupancysensing.DefaultConfig()}
}

// CreateOccupancySensor creates an occupancy sensor endpoint.
func CreateOccupancySensor(node *datamodel.Node, cfg *OccupancySensorConfig, flags datamodel.EndpointFlags, priv any) (*datamodel.Endpoint, error) {
	return create(node, flags, priv, func(ep *datamodel.Endpoint) error { return AddOccupancySensor(ep, cfg) })
}

// AddOccupancySensor adds the occupancy sensor device type to ep.
func AddOccupancySensor(ep *datamodel.Endpoint, cfg *OccupancySensorConfig) error {
	if cfg == nil {
		cfg = DefaultOccupancySensorConfig()
	}
	return apply(ep, DeviceTypeOccupancySensor,
		server(identify.Create, &cfg.Identify),
		server(occupancysensing.Create, &cfg.Occupancy),
	)
}

// ContactSensorConfig configures a contact sensor. StateValue true means
// contact.
type ContactSensorConfig struct {
	Identify     identify.Config
	BooleanState booleanstate.Config
}

// DefaultContactSensorConfig returns an open contact sensor.
func DefaultContactSensorConfig() *ContactSensorConfig {
	return &ContactSensorConfig{Identify: defaultIdentify()}
}

// CreateContactSensor creates a contact sensor endpoint.
func CreateContactSensor(node *datamodel.Node, cfg *ContactSensorConfig, flags datamodel.EndpointFlags, priv any) (*datamodel.Endpoint, error) {
	return create(node, flags, priv, func(ep *datamodel.Endpoint) error { return AddContactSensor(ep, cfg) })
}

// AddContactSensor adds the contact sensor device type to ep.
func AddContactSensor(ep *datamodel.Endpoint, cfg *ContactSensorConfig) error {
	if cfg == nil {
		cfg = DefaultContactSensorConfig()
	}
	return apply(ep, DeviceTypeContactSensor,
		server(identify.Create, &cfg.Identify),
		server(booleanstate.Create, &cfg.BooleanState),
	)
}
