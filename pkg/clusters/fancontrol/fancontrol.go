// Package fancontrol implements the Fan Control cluster (0x0202).
//
// FanMode and PercentSetting are kept consistent the way a fan controller
// expects: Off drives the setting to zero, Auto clears it, and a zero
// setting turns the fan off. PercentCurrent follows PercentSetting until
// the application reports the real speed with SetPercentCurrent.
package fancontrol

import (
	"github.com/espressif/esp-matter-sub221/pkg/clusters"
	"github.com/espressif/esp-matter-sub221/pkg/datamodel"
)

// Cluster constants.
const (
	ClusterID       datamodel.ClusterID = 0x0202
	ClusterRevision uint16              = 4
)

// Attribute IDs.
const (
	AttrFanMode         datamodel.AttributeID = 0x0000
	AttrFanModeSequence datamodel.AttributeID = 0x0001
	AttrPercentSetting  datamodel.AttributeID = 0x0002
	AttrPercentCurrent  datamodel.AttributeID = 0x0003
)

// FanMode values.
const (
	ModeOff    uint8 = 0
	ModeLow    uint8 = 1
	ModeMedium uint8 = 2
	ModeHigh   uint8 = 3
	ModeOn     uint8 = 4
	ModeAuto   uint8 = 5
	ModeSmart  uint8 = 6
)

// FanModeSequence values.
const (
	SequenceOffLowMedHigh     uint8 = 0
	SequenceOffLowHigh        uint8 = 1
	SequenceOffLowMedHighAuto uint8 = 2
	SequenceOffLowHighAuto    uint8 = 3
	SequenceOffHighAuto       uint8 = 4
	SequenceOffHigh           uint8 = 5
)

// Config holds the initial attribute values.
type Config struct {
	FanMode         uint8
	FanModeSequence uint8
	PercentSetting  uint8
	PercentCurrent  uint8
}

// DefaultConfig returns the values used by the fan device type.
func DefaultConfig() *Config {
	return &Config{FanModeSequence: SequenceOffLowMedHighAuto}
}

var pluginInit = clusters.Once(func() {})

// Create adds the Fan Control cluster to ep.
func Create(ep *datamodel.Endpoint, cfg *Config, flags datamodel.ClusterFlags) (*datamodel.Cluster, error) {
	var c *datamodel.Cluster
	c, err := clusters.Create(ep, clusters.Spec{
		ID:       ClusterID,
		Revision: ClusterRevision,
		Functions: datamodel.ClusterFunctions{
			AttributeChanged: func(path datamodel.AttributePath) { attributeChanged(c, path) },
		},
		PluginInit: pluginInit,
	}, flags)
	if err != nil {
		return nil, err
	}
	if flags&datamodel.ClusterFlagServer == 0 {
		return c, nil
	}
	c.SetAddBoundsCallback(addBounds)
	if cfg == nil {
		ep.Node().LoggerFactory().NewLogger("cluster").Errorf("Config is NULL. Cannot add some attributes.")
		return c, nil
	}
	w := datamodel.AttributeFlagWritable
	if err := clusters.CreateAttributes(c,
		clusters.Attr{ID: AttrFanMode, Flags: w | datamodel.AttributeFlagNonvolatile, Val: datamodel.Enum8(cfg.FanMode)},
		clusters.Attr{ID: AttrFanModeSequence, Flags: w, Val: datamodel.Enum8(cfg.FanModeSequence)},
		clusters.Attr{ID: AttrPercentSetting, Flags: w | datamodel.AttributeFlagNullable, Val: datamodel.NullableUint8(cfg.PercentSetting)},
		clusters.Attr{ID: AttrPercentCurrent, Val: datamodel.Uint8(cfg.PercentCurrent)},
	); err != nil {
		return nil, clusters.Abort(c, err)
	}
	return c, nil
}

func addBounds(c *datamodel.Cluster) {
	if a := c.Attribute(AttrFanMode); a != nil {
		_ = a.AddBounds(datamodel.Enum8(ModeOff), datamodel.Enum8(ModeSmart))
	}
	if a := c.Attribute(AttrFanModeSequence); a != nil {
		_ = a.AddBounds(datamodel.Enum8(SequenceOffLowMedHigh), datamodel.Enum8(SequenceOffHigh))
	}
	if a := c.Attribute(AttrPercentSetting); a != nil {
		_ = a.AddBounds(datamodel.NullableUint8(0), datamodel.NullableUint8(100))
	}
	if a := c.Attribute(AttrPercentCurrent); a != nil {
		_ = a.AddBounds(datamodel.Uint8(0), datamodel.Uint8(100))
	}
}

// SupportsAuto reports whether sequence includes the Auto mode.
func SupportsAuto(sequence uint8) bool {
	switch sequence {
	case SequenceOffLowMedHighAuto, SequenceOffLowHighAuto, SequenceOffHighAuto:
		return true
	}
	return false
}

func attributeChanged(c *datamodel.Cluster, path datamodel.AttributePath) {
	switch path.Attribute {
	case AttrFanMode:
		switch mode := uint8(clusters.Get(c, AttrFanMode).Uint()); mode {
		case ModeOff:
			_ = clusters.Set(c, AttrPercentSetting, datamodel.NullableUint8(0))
			_ = clusters.Set(c, AttrPercentCurrent, datamodel.Uint8(0))
		case ModeOn:
			_ = clusters.Set(c, AttrFanMode, datamodel.Enum8(ModeHigh))
		case ModeSmart:
			next := ModeHigh
			if SupportsAuto(uint8(clusters.Get(c, AttrFanModeSequence).Uint())) {
				next = ModeAuto
			}
			_ = clusters.Set(c, AttrFanMode, datamodel.Enum8(next))
		case ModeAuto:
			_ = clusters.Set(c, AttrPercentSetting, datamodel.NullUint8())
		}
	case AttrPercentSetting:
		v := clusters.Get(c, AttrPercentSetting)
		if v.IsNull() {
			return
		}
		_ = clusters.Set(c, AttrPercentCurrent, datamodel.Uint8(uint8(v.Uint())))
		if v.Uint() == 0 {
			_ = clusters.Set(c, AttrFanMode, datamodel.Enum8(ModeOff))
		}
	}
}

// SetPercentCurrent reports the measured fan speed.
func SetPercentCurrent(c *datamodel.Cluster, percent uint8) error {
	return clusters.Set(c, AttrPercentCurrent, datamodel.Uint8(min(percent, 100)))
}

// FanMode returns the FanMode attribute of c.
func FanMode(c *datamodel.Cluster) uint8 {
	return uint8(clusters.Get(c, AttrFanMode).Uint())
}
