package endpoints

import (
	"github.com/espressif/esp-matter-sub221/pkg/clusters/binding"
	"github.com/espressif/esp-matter-sub221/pkg/clusters/colorcontrol"
	"github.com/espressif/esp-matter-sub221/pkg/clusters/groups"
	"github.com/espressif/esp-matter-sub221/pkg/clusters/identify"
	"github.com/espressif/esp-matter-sub221/pkg/clusters/levelcontrol"
	"github.com/espressif/esp-matter-sub221/pkg/clusters/onoff"
	"github.com/espressif/esp-matter-sub221/pkg/datamodel"
)

// OnOffLightConfig configures an on/off light.
type OnOffLightConfig struct {
	Identify identify.Config
	Groups   groups.Config
	OnOff    onoff.Config
}

// DimmableLightConfig configures a dimmable light.
type DimmableLightConfig struct {
	OnOffLightConfig
	LevelControl levelcontrol.Config
}

// ColorLightConfig configures color temperature and extended color
// lights.
type ColorLightConfig struct {
	DimmableLightConfig
	ColorControl colorcontrol.Config
}

func defaultOnOffLight(identifyType uint8, features uint32) OnOffLightConfig {
	cfg := OnOffLightConfig{
		Identify: *identify.DefaultConfig(),
		OnOff:    *onoff.DefaultConfig(),
	}
	cfg.Identify.IdentifyType = identifyType
	cfg.OnOff.Features |= features
	return cfg
}

// DefaultOnOffLightConfig returns a light that starts off.
func DefaultOnOffLightConfig() *OnOffLightConfig {
	cfg := defaultOnOffLight(identify.TypeLightOutput, onoff.FeatureLighting)
	return &cfg
}

// DefaultDimmableLightConfig returns a light at full level.
func DefaultDimmableLightConfig() *DimmableLightConfig {
	return &DimmableLightConfig{
		OnOffLightConfig: *DefaultOnOffLightConfig(),
		LevelControl:     *levelcontrol.DefaultConfig(),
	}
}

// DefaultColorTemperatureLightConfig returns a tunable white light.
func DefaultColorTemperatureLightConfig() *ColorLightConfig {
	cc := colorcontrol.DefaultConfig()
	cc.Features = colorcontrol.FeatureColorTemperature
	cc.ColorMode = colorcontrol.ModeColorTemperature
	cc.EnhancedColorMode = colorcontrol.ModeColorTemperature
	return &ColorLightConfig{DimmableLightConfig: *DefaultDimmableLightConfig(), ColorControl: *cc}
}

// DefaultExtendedColorLightConfig returns a full color light.
func DefaultExtendedColorLightConfig() *ColorLightConfig {
	return &ColorLightConfig{DimmableLightConfig: *DefaultDimmableLightConfig(), ColorControl: *colorcontrol.DefaultConfig()}
}

// CreateOnOffLight creates an on/off light endpoint.
func CreateOnOffLight(node *datamodel.Node, cfg *OnOffLightConfig, flags datamodel.EndpointFlags, priv any) (*datamodel.Endpoint, error) {
	return create(node, flags, priv, func(ep *datamodel.Endpoint) error { return AddOnOffLight(ep, cfg) })
}

// AddOnOffLight adds the on/off light device type to ep.
func AddOnOffLight(ep *datamodel.Endpoint, cfg *OnOffLightConfig) error {
	if cfg == nil {
		cfg = DefaultOnOffLightConfig()
	}
	return apply(ep, DeviceTypeOnOffLight, onOffSteps(cfg)...)
}

func onOffSteps(cfg *OnOffLightConfig) []step {
	return []step{
		server(identify.Create, &cfg.Identify),
		server(groups.Create, &cfg.Groups),
		server(onoff.Create, &cfg.OnOff),
	}
}

// CreateDimmableLight creates a dimmable light endpoint.
func CreateDimmableLight(node *datamodel.Node, cfg *DimmableLightConfig, flags datamodel.EndpointFlags, priv any) (*datamodel.Endpoint, error) {
	return create(node, flags, priv, func(ep *datamodel.Endpoint) error { return AddDimmableLight(ep, cfg) })
}

// AddDimmableLight adds the dimmable light device type to ep.
func AddDimmableLight(ep *datamodel.Endpoint, cfg *DimmableLightConfig) error {
	if cfg == nil {
		cfg = DefaultDimmableLightConfig()
	}
	return apply(ep, DeviceTypeDimmableLight, dimmableSteps(cfg)...)
}

func dimmableSteps(cfg *DimmableLightConfig) []step {
	return append(onOffSteps(&cfg.OnOffLightConfig), server(levelcontrol.Create, &cfg.LevelControl))
}

// CreateColorTemperatureLight creates a color temperature light
// endpoint.
func CreateColorTemperatureLight(node *datamodel.Node, cfg *ColorLightConfig, flags datamodel.EndpointFlags, priv any) (*datamodel.Endpoint, error) {
	return create(node, flags, priv, func(ep *datamodel.Endpoint) error { return AddColorTemperatureLight(ep, cfg) })
}

// AddColorTemperatureLight adds the color temperature light device type
// to ep. ColorControl must carry the CT feature.
func AddColorTemperatureLight(ep *datamodel.Endpoint, cfg *ColorLightConfig) error {
	if cfg == nil {
		cfg = DefaultColorTemperatureLightConfig()
	}
	return apply(ep, DeviceTypeColorTemperatureLight,
		append(dimmableSteps(&cfg.DimmableLightConfig), server(colorcontrol.Create, &cfg.ColorControl))...)
}

// CreateExtendedColorLight creates an extended color light endpoint.
func CreateExtendedColorLight(node *datamodel.Node, cfg *ColorLightConfig, flags datamodel.EndpointFlags, priv any) (*datamodel.Endpoint, error) {
	return create(node, flags, priv, func(ep *datamodel.Endpoint) error { return AddExtendedColorLight(ep, cfg) })
}

// AddExtendedColorLight adds the extended color light device type to ep.
func AddExtendedColorLight(ep *datamodel.Endpoint, cfg *ColorLightConfig) error {
	if cfg == nil {
		cfg = DefaultExtendedColorLightConfig()
	}
	return apply(ep, DeviceTypeExtendedColorLight,
		append(dimmableSteps(&cfg.DimmableLightConfig), server(colorcontrol.Create, &cfg.ColorControl))...)
}

// PlugInUnitConfig configures on/off and dimmable plug-in units. Level
// control is only used by the dimmable variant.
type PlugInUnitConfig struct {
	Identify     identify.Config
	Groups       groups.Config
	OnOff        onoff.Config
	LevelControl levelcontrol.Config
}

// DefaultPlugInUnitConfig returns a plug-in unit config usable for both
// variants.
func DefaultPlugInUnitConfig() *PlugInUnitConfig {
	lc := levelcontrol.DefaultConfig()
	lc.Features = levelcontrol.FeatureOnOff
	light := defaultOnOffLight(identify.TypeVisibleIndicator, onoff.FeatureLighting)
	return &PlugInUnitConfig{
		Identify:     light.Identify,
		OnOff:        light.OnOff,
		LevelControl: *lc,
	}
}

// CreateOnOffPlugInUnit creates an on/off plug-in unit endpoint.
func CreateOnOffPlugInUnit(node *datamodel.Node, cfg *PlugInUnitConfig, flags datamodel.EndpointFlags, priv any) (*datamodel.Endpoint, error) {
	return create(node, flags, priv, func(ep *datamodel.Endpoint) error { return AddOnOffPlugInUnit(ep, cfg) })
}

// AddOnOffPlugInUnit adds the on/off plug-in unit device type to ep.
func AddOnOffPlugInUnit(ep *datamodel.Endpoint, cfg *PlugInUnitConfig) error {
	if cfg == nil {
		cfg = DefaultPlugInUnitConfig()
	}
	return apply(ep, DeviceTypeOnOffPlugInUnit,
		server(identify.Create, &cfg.Identify),
		server(groups.Create, &cfg.Groups),
		server(onoff.Create, &cfg.OnOff),
	)
}

// CreateDimmablePlugInUnit creates a dimmable plug-in unit endpoint.
func CreateDimmablePlugInUnit(node *datamodel.Node, cfg *PlugInUnitConfig, flags datamodel.EndpointFlags, priv any) (*datamodel.Endpoint, error) {
	return create(node, flags, priv, func(ep *datamodel.Endpoint) error { return AddDimmablePlugInUnit(ep, cfg) })
}

// AddDimmablePlugInUnit adds the dimmable plug-in unit device type to ep.
func AddDimmablePlugInUnit(ep *datamodel.Endpoint, cfg *PlugInUnitConfig) error {
	if cfg == nil {
		cfg = DefaultPlugInUnitConfig()
	}
	return apply(ep, DeviceTypeDimmablePlugInUnit,
		server(identify.Create, &cfg.Identify),
		server(groups.Create, &cfg.Groups),
		server(onoff.Create, &cfg.OnOff),
		server(levelcontrol.Create, &cfg.LevelControl),
	)
}

// OnOffLightSwitchConfig configures a light switch. The switch controls
// bound lights through its OnOff client.
type OnOffLightSwitchConfig struct {
	Identify identify.Config
	Binding  binding.Config
}

// DefaultOnOffLightSwitchConfig returns a switch with the default
// binding capacity.
func DefaultOnOffLightSwitchConfig() *OnOffLightSwitchConfig {
	cfg := &OnOffLightSwitchConfig{Identify: *identify.DefaultConfig()}
	cfg.Identify.IdentifyType = identify.TypeVisibleIndicator
	return cfg
}

// CreateOnOffLightSwitch creates an on/off light switch endpoint.
func CreateOnOffLightSwitch(node *datamodel.Node, cfg *OnOffLightSwitchConfig, flags datamodel.EndpointFlags, priv any) (*datamodel.Endpoint, error) {
	return create(node, flags, priv, func(ep *datamodel.Endpoint) error { return AddOnOffLightSwitch(ep, cfg) })
}

// AddOnOffLightSwitch adds the on/off light switch device type to ep.
func AddOnOffLightSwitch(ep *datamodel.Endpoint, cfg *OnOffLightSwitchConfig) error {
	if cfg == nil {
		cfg = DefaultOnOffLightSwitchConfig()
	}
	return apply(ep, DeviceTypeOnOffLightSwitch,
		server(identify.Create, &cfg.Identify),
		server(binding.Create, &cfg.Binding),
		client(onoff.Create),
	)
}
