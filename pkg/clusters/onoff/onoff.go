// Package onoff implements the On/Off cluster (0x0006).
//
// The server side keeps OnOff in the data model and mutates it from the
// Off, On and Toggle command callbacks, so the application attribute
// callback observes every change. The Lighting (LT) feature adds the
// global scene and timed-off attributes and commands.
package onoff

import (
	"context"

	"github.com/espressif/esp-matter-sub221/pkg/clusters"
	"github.com/espressif/esp-matter-sub221/pkg/datamodel"
	"github.com/espressif/esp-matter-sub221/pkg/tlv"
)

// Cluster constants.
const (
	ClusterID       datamodel.ClusterID = 0x0006
	ClusterRevision uint16              = 6
)

// Attribute IDs.
const (
	AttrOnOff              datamodel.AttributeID = 0x0000
	AttrGlobalSceneControl datamodel.AttributeID = 0x4000
	AttrOnTime             datamodel.AttributeID = 0x4001
	AttrOffWaitTime        datamodel.AttributeID = 0x4002
	AttrStartUpOnOff       datamodel.AttributeID = 0x4003
)

// Command IDs.
const (
	CmdOff                     datamodel.CommandID = 0x00
	CmdOn                      datamodel.CommandID = 0x01
	CmdToggle                  datamodel.CommandID = 0x02
	CmdOffWithEffect           datamodel.CommandID = 0x40
	CmdOnWithRecallGlobalScene datamodel.CommandID = 0x41
	CmdOnWithTimedOff          datamodel.CommandID = 0x42
)

// Feature bits.
const (
	FeatureLighting          uint32 = 1 << 0 // LT
	FeatureDeadFrontBehavior uint32 = 1 << 1 // DF
	FeatureOffOnly           uint32 = 1 << 2 // OFFONLY
)

// StartUpOnOff values.
const (
	StartUpOff    uint8 = 0
	StartUpOn     uint8 = 1
	StartUpToggle uint8 = 2
)

// onOffControlAcceptOnlyWhenOn is bit 0 of the OnWithTimedOff control field.
const onOffControlAcceptOnlyWhenOn = 0x01

// LightingConfig holds the LT feature attributes.
type LightingConfig struct {
	GlobalSceneControl bool
	OnTime             uint16
	OffWaitTime        uint16
	// StartUpOnOff is applied when the cluster initialises. Nil keeps the
	// persisted OnOff value.
	StartUpOnOff *uint8
}

// Config holds the initial OnOff value and features.
type Config struct {
	OnOff    bool
	Features uint32
	Lighting LightingConfig
}

// DefaultConfig returns the defaults used by the light device types.
func DefaultConfig() *Config {
	return &Config{Lighting: LightingConfig{GlobalSceneControl: true}}
}

var pluginInit = clusters.Once(func() {})

// Create adds the On/Off cluster to ep. Off is created for both roles, On
// and Toggle unless the OFFONLY feature is requested.
func Create(ep *datamodel.Endpoint, cfg *Config, flags datamodel.ClusterFlags) (*datamodel.Cluster, error) {
	c, err := clusters.Create(ep, clusters.Spec{
		ID:         ClusterID,
		Revision:   ClusterRevision,
		PluginInit: pluginInit,
	}, flags)
	if err != nil {
		return nil, err
	}
	if flags&datamodel.ClusterFlagServer != 0 {
		c.SetFunctions(datamodel.ClusterFunctions{
			Init: func(datamodel.EndpointID) { applyStartUp(c) },
		})
		c.SetAddBoundsCallback(addBounds)
		if cfg == nil {
			ep.Node().LoggerFactory().NewLogger("cluster").Errorf("Config is NULL. Cannot add some attributes.")
		} else if err := clusters.CreateAttributes(c, clusters.Attr{
			ID: AttrOnOff, Flags: datamodel.AttributeFlagNonvolatile, Val: datamodel.Bool(cfg.OnOff),
		}); err != nil {
			return nil, clusters.Abort(c, err)
		}
	}

	if err := clusters.CreateCommands(c, clusters.Cmd{ID: CmdOff, Flags: datamodel.CommandFlagAccepted, Callback: handleOff(c)}); err != nil {
		return nil, clusters.Abort(c, err)
	}
	if cfg != nil && cfg.Features&FeatureOffOnly != 0 {
		if err := clusters.AddFeature(c, FeatureOffOnly); err != nil {
			return nil, clusters.Abort(c, err)
		}
		return c, nil
	}
	if err := clusters.CreateCommands(c,
		clusters.Cmd{ID: CmdOn, Flags: datamodel.CommandFlagAccepted, Callback: handleOn(c)},
		clusters.Cmd{ID: CmdToggle, Flags: datamodel.CommandFlagAccepted, Callback: handleToggle(c)},
	); err != nil {
		return nil, clusters.Abort(c, err)
	}
	if cfg != nil && cfg.Features&FeatureLighting != 0 {
		if err := FeatureLightingAdd(c, &cfg.Lighting); err != nil {
			return nil, clusters.Abort(c, err)
		}
	}
	if cfg != nil && cfg.Features&FeatureDeadFrontBehavior != 0 {
		if err := clusters.AddFeature(c, FeatureDeadFrontBehavior); err != nil {
			return nil, clusters.Abort(c, err)
		}
	}
	return c, nil
}

// FeatureLightingAdd adds the LT feature attributes and commands.
func FeatureLightingAdd(c *datamodel.Cluster, cfg *LightingConfig) error {
	if cfg == nil {
		cfg = &LightingConfig{GlobalSceneControl: true}
	}
	if err := clusters.AddFeature(c, FeatureLighting); err != nil {
		return err
	}
	startUp := datamodel.NullEnum8()
	if cfg.StartUpOnOff != nil {
		startUp = datamodel.NullableEnum8(*cfg.StartUpOnOff)
	}
	rw := datamodel.AttributeFlagWritable | datamodel.AttributeFlagNullable
	if err := clusters.CreateAttributes(c,
		clusters.Attr{ID: AttrGlobalSceneControl, Val: datamodel.Bool(cfg.GlobalSceneControl)},
		clusters.Attr{ID: AttrOnTime, Flags: rw, Val: datamodel.NullableUint16(cfg.OnTime)},
		clusters.Attr{ID: AttrOffWaitTime, Flags: rw, Val: datamodel.NullableUint16(cfg.OffWaitTime)},
		clusters.Attr{ID: AttrStartUpOnOff, Flags: rw | datamodel.AttributeFlagNonvolatile, Val: startUp},
	); err != nil {
		return err
	}
	return clusters.CreateCommands(c,
		clusters.Cmd{ID: CmdOffWithEffect, Flags: datamodel.CommandFlagAccepted, Callback: handleOffWithEffect(c)},
		clusters.Cmd{ID: CmdOnWithRecallGlobalScene, Flags: datamodel.CommandFlagAccepted, Callback: handleOnWithRecallGlobalScene(c)},
		clusters.Cmd{ID: CmdOnWithTimedOff, Flags: datamodel.CommandFlagAccepted, Callback: handleOnWithTimedOff(c)},
	)
}

func addBounds(c *datamodel.Cluster) {
	if a := c.Attribute(AttrStartUpOnOff); a != nil {
		_ = a.AddBounds(datamodel.NullableEnum8(StartUpOff), datamodel.NullableEnum8(StartUpToggle))
	}
}

// applyStartUp applies StartUpOnOff on top of the persisted OnOff value.
func applyStartUp(c *datamodel.Cluster) {
	v := clusters.Get(c, AttrStartUpOnOff)
	if v.Type == datamodel.ValTypeInvalid || v.IsNull() {
		return
	}
	on := clusters.Get(c, AttrOnOff).Bool()
	switch uint8(v.Uint()) {
	case StartUpOff:
		on = false
	case StartUpOn:
		on = true
	case StartUpToggle:
		on = !on
	default:
		return
	}
	_ = clusters.Set(c, AttrOnOff, datamodel.Bool(on))
}

func lighting(c *datamodel.Cluster) bool { return clusters.HasFeature(c, FeatureLighting) }

func setOn(c *datamodel.Cluster, on bool) error {
	if err := clusters.Set(c, AttrOnOff, datamodel.Bool(on)); err != nil {
		return err
	}
	if !lighting(c) {
		return nil
	}
	if on {
		if clusters.Get(c, AttrOnTime).Uint() == 0 {
			_ = clusters.Set(c, AttrOffWaitTime, datamodel.NullableUint16(0))
		}
		return clusters.Set(c, AttrGlobalSceneControl, datamodel.Bool(true))
	}
	return clusters.Set(c, AttrOnTime, datamodel.NullableUint16(0))
}

func handleOff(c *datamodel.Cluster) datamodel.CommandCallback {
	return func(ctx context.Context, path datamodel.CommandPath, r *tlv.Reader, priv any) ([]byte, error) {
		return nil, setOn(c, false)
	}
}

func handleOn(c *datamodel.Cluster) datamodel.CommandCallback {
	return func(ctx context.Context, path datamodel.CommandPath, r *tlv.Reader, priv any) ([]byte, error) {
		return nil, setOn(c, true)
	}
}

func handleToggle(c *datamodel.Cluster) datamodel.CommandCallback {
	return func(ctx context.Context, path datamodel.CommandPath, r *tlv.Reader, priv any) ([]byte, error) {
		return nil, setOn(c, !clusters.Get(c, AttrOnOff).Bool())
	}
}

func handleOffWithEffect(c *datamodel.Cluster) datamodel.CommandCallback {
	return func(ctx context.Context, path datamodel.CommandPath, r *tlv.Reader, priv any) ([]byte, error) {
		if _, err := clusters.DecodeFields(r); err != nil {
			return nil, err
		}
		if err := clusters.Set(c, AttrGlobalSceneControl, datamodel.Bool(false)); err != nil {
			return nil, err
		}
		return nil, setOn(c, false)
	}
}

func handleOnWithRecallGlobalScene(c *datamodel.Cluster) datamodel.CommandCallback {
	return func(ctx context.Context, path datamodel.CommandPath, r *tlv.Reader, priv any) ([]byte, error) {
		if clusters.Get(c, AttrGlobalSceneControl).Bool() {
			return nil, nil
		}
		return nil, setOn(c, true)
	}
}

// handleOnWithTimedOff turns the device on and records the on and
// off-wait times. Counting them down belongs to the stack's timer.
func handleOnWithTimedOff(c *datamodel.Cluster) datamodel.CommandCallback {
	return func(ctx context.Context, path datamodel.CommandPath, r *tlv.Reader, priv any) ([]byte, error) {
		f, err := clusters.DecodeFields(r)
		if err != nil {
			return nil, err
		}
		control := f.UintOr(0, 0)
		onTime := f.UintOr(1, 0)
		offWait := f.UintOr(2, 0)
		if onTime > 0xFFFE || offWait > 0xFFFE {
			return nil, clusters.ErrInvalidRequest
		}
		isOn := clusters.Get(c, AttrOnOff).Bool()
		if control&onOffControlAcceptOnlyWhenOn != 0 && !isOn {
			return nil, nil
		}
		if !isOn && clusters.Get(c, AttrOffWaitTime).Uint() > 0 {
			return nil, clusters.Set(c, AttrOffWaitTime, datamodel.NullableUint16(uint16(min(offWait, clusters.Get(c, AttrOffWaitTime).Uint()))))
		}
		cur := clusters.Get(c, AttrOnTime).Uint()
		if err := clusters.Set(c, AttrOnTime, datamodel.NullableUint16(uint16(max(cur, onTime)))); err != nil {
			return nil, err
		}
		if err := clusters.Set(c, AttrOffWaitTime, datamodel.NullableUint16(uint16(offWait))); err != nil {
			return nil, err
		}
		return nil, clusters.Set(c, AttrOnOff, datamodel.Bool(true))
	}
}
