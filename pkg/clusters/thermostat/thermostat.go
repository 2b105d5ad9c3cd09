// Package thermostat implements the Thermostat cluster (0x0201).
//
// Temperatures are in hundredths of a degree Celsius. A thermostat
// supports heating, cooling or both; the occupied setpoint of each
// supported mode is bounded by its absolute limits.
package thermostat

import (
	"context"
	"fmt"

	"github.com/espressif/esp-matter-sub221/pkg/clusters"
	"github.com/espressif/esp-matter-sub221/pkg/datamodel"
	"github.com/espressif/esp-matter-sub221/pkg/tlv"
)

// Cluster constants.
const (
	ClusterID       datamodel.ClusterID = 0x0201
	ClusterRevision uint16              = 6
)

// Attribute IDs.
const (
	AttrLocalTemperature           datamodel.AttributeID = 0x0000
	AttrAbsMinHeatSetpointLimit    datamodel.AttributeID = 0x0003
	AttrAbsMaxHeatSetpointLimit    datamodel.AttributeID = 0x0004
	AttrAbsMinCoolSetpointLimit    datamodel.AttributeID = 0x0005
	AttrAbsMaxCoolSetpointLimit    datamodel.AttributeID = 0x0006
	AttrOccupiedCoolingSetpoint    datamodel.AttributeID = 0x0011
	AttrOccupiedHeatingSetpoint    datamodel.AttributeID = 0x0012
	AttrMinSetpointDeadBand        datamodel.AttributeID = 0x0019
	AttrControlSequenceOfOperation datamodel.AttributeID = 0x001B
	AttrSystemMode                 datamodel.AttributeID = 0x001C
)

// CmdSetpointRaiseLower is the only accepted command.
const CmdSetpointRaiseLower datamodel.CommandID = 0x00

// Feature bits.
const (
	FeatureHeating   uint32 = 1 << 0 // HEAT
	FeatureCooling   uint32 = 1 << 1 // COOL
	FeatureOccupancy uint32 = 1 << 2 // OCC
	FeatureAutoMode  uint32 = 1 << 5 // AUTO
)

// ControlSequenceOfOperation values.
const (
	SequenceCoolingOnly                 uint8 = 0
	SequenceCoolingWithReheat           uint8 = 1
	SequenceHeatingOnly                 uint8 = 2
	SequenceHeatingWithReheat           uint8 = 3
	SequenceCoolingAndHeating           uint8 = 4
	SequenceCoolingAndHeatingWithReheat uint8 = 5
)

// SystemMode values.
const (
	SystemModeOff           uint8 = 0
	SystemModeAuto          uint8 = 1
	SystemModeCool          uint8 = 3
	SystemModeHeat          uint8 = 4
	SystemModeEmergencyHeat uint8 = 5
	SystemModePrecooling    uint8 = 6
	SystemModeFanOnly       uint8 = 7
	SystemModeDry           uint8 = 8
	SystemModeSleep         uint8 = 9
)

// SetpointRaiseLower modes.
const (
	RaiseLowerHeat uint8 = 0
	RaiseLowerCool uint8 = 1
	RaiseLowerBoth uint8 = 2
)

// HeatingConfig holds the HEAT feature attributes.
type HeatingConfig struct {
	OccupiedHeatingSetpoint int16
	AbsMinHeatSetpointLimit int16
	AbsMaxHeatSetpointLimit int16
}

// CoolingConfig holds the COOL feature attributes.
type CoolingConfig struct {
	OccupiedCoolingSetpoint int16
	AbsMinCoolSetpointLimit int16
	AbsMaxCoolSetpointLimit int16
}

// Config holds the initial attribute values and features. At least one of
// FeatureHeating and FeatureCooling is required.
type Config struct {
	// LocalTemperature is nil until the first measurement.
	LocalTemperature           *int16
	ControlSequenceOfOperation uint8
	SystemMode                 uint8
	Features                   uint32
	Heating                    HeatingConfig
	Cooling                    CoolingConfig
	// MinSetpointDeadBand is in tenths of a degree, used with AUTO.
	MinSetpointDeadBand int8
}

// DefaultConfig returns a heating and cooling thermostat in Auto mode.
func DefaultConfig() *Config {
	return &Config{
		ControlSequenceOfOperation: SequenceCoolingAndHeating,
		SystemMode:                 SystemModeAuto,
		Features:                   FeatureHeating | FeatureCooling,
		Heating:                    HeatingConfig{OccupiedHeatingSetpoint: 2000, AbsMinHeatSetpointLimit: 700, AbsMaxHeatSetpointLimit: 3000},
		Cooling:                    CoolingConfig{OccupiedCoolingSetpoint: 2600, AbsMinCoolSetpointLimit: 1600, AbsMaxCoolSetpointLimit: 3200},
		MinSetpointDeadBand:        25,
	}
}

var pluginInit = clusters.Once(func() {})

// Create adds the Thermostat cluster to ep.
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
		c.SetAddBoundsCallback(addBounds)
		if cfg == nil {
			ep.Node().LoggerFactory().NewLogger("cluster").Errorf("Config is NULL. Cannot add some attributes.")
		} else {
			local := datamodel.NullInt16()
			if cfg.LocalTemperature != nil {
				local = datamodel.NullableInt16(*cfg.LocalTemperature)
			}
			rw := datamodel.AttributeFlagWritable | datamodel.AttributeFlagNonvolatile
			if err := clusters.CreateAttributes(c,
				clusters.Attr{ID: AttrLocalTemperature, Flags: datamodel.AttributeFlagNullable, Val: local},
				clusters.Attr{ID: AttrControlSequenceOfOperation, Flags: rw, Val: datamodel.Enum8(cfg.ControlSequenceOfOperation)},
				clusters.Attr{ID: AttrSystemMode, Flags: rw, Val: datamodel.Enum8(cfg.SystemMode)},
			); err != nil {
				return nil, clusters.Abort(c, err)
			}
		}
	}
	if err := clusters.CreateCommands(c, clusters.Cmd{
		ID: CmdSetpointRaiseLower, Flags: datamodel.CommandFlagAccepted, Callback: handleSetpointRaiseLower(c),
	}); err != nil {
		return nil, clusters.Abort(c, err)
	}

	if flags&datamodel.ClusterFlagServer == 0 || cfg == nil {
		return c, nil
	}
	if err := clusters.ValidateFeatures(cfg.Features, clusters.AtLeastOne,
		clusters.FeatureNames("Heating", "Cooling"), FeatureHeating, FeatureCooling); err != nil {
		return nil, clusters.Abort(c, err)
	}
	if cfg.Features&FeatureHeating != 0 {
		if err := FeatureHeatingAdd(c, &cfg.Heating); err != nil {
			return nil, clusters.Abort(c, err)
		}
	}
	if cfg.Features&FeatureCooling != 0 {
		if err := FeatureCoolingAdd(c, &cfg.Cooling); err != nil {
			return nil, clusters.Abort(c, err)
		}
	}
	if cfg.Features&FeatureOccupancy != 0 {
		if err := clusters.AddFeature(c, FeatureOccupancy); err != nil {
			return nil, clusters.Abort(c, err)
		}
	}
	if cfg.Features&FeatureAutoMode != 0 {
		if err := FeatureAutoModeAdd(c, cfg.MinSetpointDeadBand); err != nil {
			return nil, clusters.Abort(c, err)
		}
	}
	return c, nil
}

// FeatureHeatingAdd adds the HEAT feature attributes.
func FeatureHeatingAdd(c *datamodel.Cluster, cfg *HeatingConfig) error {
	if cfg == nil {
		return fmt.Errorf("%w: nil heating config", datamodel.ErrInvalidArg)
	}
	if err := clusters.AddFeature(c, FeatureHeating); err != nil {
		return err
	}
	return clusters.CreateAttributes(c,
		clusters.Attr{ID: AttrAbsMinHeatSetpointLimit, Val: datamodel.Int16(cfg.AbsMinHeatSetpointLimit)},
		clusters.Attr{ID: AttrAbsMaxHeatSetpointLimit, Val: datamodel.Int16(cfg.AbsMaxHeatSetpointLimit)},
		clusters.Attr{
			ID:    AttrOccupiedHeatingSetpoint,
			Flags: datamodel.AttributeFlagWritable | datamodel.AttributeFlagNonvolatile,
			Val:   datamodel.Int16(cfg.OccupiedHeatingSetpoint),
		},
	)
}

// FeatureCoolingAdd adds the COOL feature attributes.
func FeatureCoolingAdd(c *datamodel.Cluster, cfg *CoolingConfig) error {
	if cfg == nil {
		return fmt.Errorf("%w: nil cooling config", datamodel.ErrInvalidArg)
	}
	if err := clusters.AddFeature(c, FeatureCooling); err != nil {
		return err
	}
	return clusters.CreateAttributes(c,
		clusters.Attr{ID: AttrAbsMinCoolSetpointLimit, Val: datamodel.Int16(cfg.AbsMinCoolSetpointLimit)},
		clusters.Attr{ID: AttrAbsMaxCoolSetpointLimit, Val: datamodel.Int16(cfg.AbsMaxCoolSetpointLimit)},
		clusters.Attr{
			ID:    AttrOccupiedCoolingSetpoint,
			Flags: datamodel.AttributeFlagWritable | datamodel.AttributeFlagNonvolatile,
			Val:   datamodel.Int16(cfg.OccupiedCoolingSetpoint),
		},
	)
}

// FeatureAutoModeAdd adds the AUTO feature. It needs both HEAT and COOL.
func FeatureAutoModeAdd(c *datamodel.Cluster, deadBand int8) error {
	if !clusters.HasFeature(c, FeatureHeating) || !clusters.HasFeature(c, FeatureCooling) {
		return fmt.Errorf("%w: AUTO needs HEAT and COOL", clusters.ErrInvalidFeatures)
	}
	if err := clusters.AddFeature(c, FeatureAutoMode); err != nil {
		return err
	}
	return clusters.CreateAttributes(c, clusters.Attr{ID: AttrMinSetpointDeadBand, Val: datamodel.Int8(deadBand)})
}

func addBounds(c *datamodel.Cluster) {
	if a := c.Attribute(AttrOccupiedHeatingSetpoint); a != nil {
		lo, hi := limits(c, AttrAbsMinHeatSetpointLimit, AttrAbsMaxHeatSetpointLimit)
		_ = a.AddBounds(datamodel.Int16(lo), datamodel.Int16(hi))
	}
	if a := c.Attribute(AttrOccupiedCoolingSetpoint); a != nil {
		lo, hi := limits(c, AttrAbsMinCoolSetpointLimit, AttrAbsMaxCoolSetpointLimit)
		_ = a.AddBounds(datamodel.Int16(lo), datamodel.Int16(hi))
	}
	if a := c.Attribute(AttrControlSequenceOfOperation); a != nil {
		_ = a.AddBounds(datamodel.Enum8(SequenceCoolingOnly), datamodel.Enum8(SequenceCoolingAndHeatingWithReheat))
	}
	if a := c.Attribute(AttrSystemMode); a != nil {
		_ = a.AddBounds(datamodel.Enum8(SystemModeOff), datamodel.Enum8(SystemModeSleep))
	}
}

func limits(c *datamodel.Cluster, minID, maxID datamodel.AttributeID) (int16, int16) {
	return int16(clusters.Get(c, minID).Int()), int16(clusters.Get(c, maxID).Int())
}

// SetLocalTemperature reports a measurement. A nil value marks it unknown.
func SetLocalTemperature(c *datamodel.Cluster, v *int16) error {
	if v == nil {
		return clusters.Set(c, AttrLocalTemperature, datamodel.NullInt16())
	}
	return clusters.Set(c, AttrLocalTemperature, datamodel.NullableInt16(*v))
}

// adjust moves the setpoint id by delta hundredths of a degree, clamped
// to its absolute limits.
func adjust(c *datamodel.Cluster, id, minID, maxID datamodel.AttributeID, delta int) error {
	if c.Attribute(id) == nil {
		return fmt.Errorf("%w: setpoint 0x%04X not supported", clusters.ErrInvalidRequest, uint32(id))
	}
	lo, hi := limits(c, minID, maxID)
	v := int(clusters.Get(c, id).Int()) + delta
	v = max(int(lo), min(int(hi), v))
	return clusters.Set(c, id, datamodel.Int16(int16(v)))
}

func handleSetpointRaiseLower(c *datamodel.Cluster) datamodel.CommandCallback {
	return func(ctx context.Context, path datamodel.CommandPath, r *tlv.Reader, priv any) ([]byte, error) {
		f, err := clusters.DecodeFields(r)
		if err != nil {
			return nil, err
		}
		mode, err := f.Uint(0)
		if err != nil {
			return nil, err
		}
		amount, err := f.Int(1)
		if err != nil {
			return nil, err
		}
		if amount < -128 || amount > 127 {
			return nil, clusters.ErrInvalidRequest
		}
		delta := int(amount) * 10
		heat := func() error {
			return adjust(c, AttrOccupiedHeatingSetpoint, AttrAbsMinHeatSetpointLimit, AttrAbsMaxHeatSetpointLimit, delta)
		}
		cool := func() error {
			return adjust(c, AttrOccupiedCoolingSetpoint, AttrAbsMinCoolSetpointLimit, AttrAbsMaxCoolSetpointLimit, delta)
		}
		switch uint8(mode) {
		case RaiseLowerHeat:
			return nil, heat()
		case RaiseLowerCool:
			return nil, cool()
		case RaiseLowerBoth:
			if c.Attribute(AttrOccupiedHeatingSetpoint) != nil {
				if err := heat(); err != nil {
					return nil, err
				}
			}
			if c.Attribute(AttrOccupiedCoolingSetpoint) != nil {
				return nil, cool()
			}
			return nil, nil
		}
		return nil, fmt.Errorf("%w: mode %d", clusters.ErrInvalidRequest, mode)
	}
}
