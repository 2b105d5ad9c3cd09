// Package levelcontrol implements the Level Control cluster (0x0008).
//
// Transitions complete immediately: the command callbacks write the final
// CurrentLevel and leave RemainingTime at zero.
package levelcontrol

import (
	"context"

	"github.com/espressif/esp-matter-sub221/pkg/clusters"
	"github.com/espressif/esp-matter-sub221/pkg/clusters/onoff"
	"github.com/espressif/esp-matter-sub221/pkg/datamodel"
	"github.com/espressif/esp-matter-sub221/pkg/tlv"
)

// Cluster constants.
const (
	ClusterID       datamodel.ClusterID = 0x0008
	ClusterRevision uint16              = 5
)

// Attribute IDs.
const (
	AttrCurrentLevel        datamodel.AttributeID = 0x0000
	AttrRemainingTime       datamodel.AttributeID = 0x0001
	AttrMinLevel            datamodel.AttributeID = 0x0002
	AttrMaxLevel            datamodel.AttributeID = 0x0003
	AttrOptions             datamodel.AttributeID = 0x000F
	AttrOnLevel             datamodel.AttributeID = 0x0011
	AttrStartUpCurrentLevel datamodel.AttributeID = 0x4000
)

// Command IDs.
const (
	CmdMoveToLevel          datamodel.CommandID = 0x00
	CmdMove                 datamodel.CommandID = 0x01
	CmdStep                 datamodel.CommandID = 0x02
	CmdStop                 datamodel.CommandID = 0x03
	CmdMoveToLevelWithOnOff datamodel.CommandID = 0x04
	CmdMoveWithOnOff        datamodel.CommandID = 0x05
	CmdStepWithOnOff        datamodel.CommandID = 0x06
	CmdStopWithOnOff        datamodel.CommandID = 0x07
)

// Feature bits.
const (
	FeatureOnOff     uint32 = 1 << 0 // OO
	FeatureLighting  uint32 = 1 << 1 // LT
	FeatureFrequency uint32 = 1 << 2 // FQ
)

// Options bits.
const (
	OptionExecuteIfOff    uint8 = 1 << 0
	OptionCoupleColorTemp uint8 = 1 << 1
)

const optionsMax = OptionExecuteIfOff | OptionCoupleColorTemp

// Move and step directions.
const (
	ModeUp   uint8 = 0
	ModeDown uint8 = 1
)

// Level limits.
const (
	MinLevel         uint8 = 0
	MinLightingLevel uint8 = 1
	MaxLevel         uint8 = 254
)

// LightingConfig holds the LT feature attributes.
type LightingConfig struct {
	RemainingTime uint16
	MinLevel      uint8
	MaxLevel      uint8
	// StartUpCurrentLevel nil keeps the persisted CurrentLevel.
	StartUpCurrentLevel *uint8
}

// Config holds the initial values and features.
type Config struct {
	// CurrentLevel nil is the null level.
	CurrentLevel *uint8
	// OnLevel nil is the null level.
	OnLevel  *uint8
	Options  uint8
	Features uint32
	Lighting LightingConfig
}

// DefaultConfig returns the dimmable light defaults.
func DefaultConfig() *Config {
	level := MaxLevel
	return &Config{
		CurrentLevel: &level,
		Features:     FeatureOnOff | FeatureLighting,
		Lighting:     LightingConfig{MinLevel: MinLightingLevel, MaxLevel: MaxLevel},
	}
}

func nullableLevel(p *uint8) datamodel.Val {
	if p == nil {
		return datamodel.NullUint8()
	}
	return datamodel.NullableUint8(*p)
}

var pluginInit = clusters.Once(func() {})

// Create adds the Level Control cluster to ep.
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
		c.SetFunctions(datamodel.ClusterFunctions{
			Init: func(datamodel.EndpointID) { applyStartUp(c) },
		})
		if cfg == nil {
			ep.Node().LoggerFactory().NewLogger("cluster").Errorf("Config is NULL. Cannot add some attributes.")
		} else if err := clusters.CreateAttributes(c,
			clusters.Attr{ID: AttrCurrentLevel, Flags: datamodel.AttributeFlagNonvolatile | datamodel.AttributeFlagNullable, Val: nullableLevel(cfg.CurrentLevel)},
			clusters.Attr{ID: AttrOnLevel, Flags: datamodel.AttributeFlagWritable | datamodel.AttributeFlagNullable, Val: nullableLevel(cfg.OnLevel)},
			clusters.Attr{ID: AttrOptions, Flags: datamodel.AttributeFlagWritable, Val: datamodel.Bitmap8(cfg.Options)},
		); err != nil {
			return nil, clusters.Abort(c, err)
		}
	}

	if err := clusters.CreateCommands(c,
		clusters.Cmd{ID: CmdMoveToLevel, Flags: datamodel.CommandFlagAccepted, Callback: handleMoveToLevel(c, false)},
		clusters.Cmd{ID: CmdMove, Flags: datamodel.CommandFlagAccepted, Callback: handleMove(c, false)},
		clusters.Cmd{ID: CmdStep, Flags: datamodel.CommandFlagAccepted, Callback: handleStep(c, false)},
		clusters.Cmd{ID: CmdStop, Flags: datamodel.CommandFlagAccepted, Callback: handleStop(c)},
		clusters.Cmd{ID: CmdMoveToLevelWithOnOff, Flags: datamodel.CommandFlagAccepted, Callback: handleMoveToLevel(c, true)},
		clusters.Cmd{ID: CmdMoveWithOnOff, Flags: datamodel.CommandFlagAccepted, Callback: handleMove(c, true)},
		clusters.Cmd{ID: CmdStepWithOnOff, Flags: datamodel.CommandFlagAccepted, Callback: handleStep(c, true)},
		clusters.Cmd{ID: CmdStopWithOnOff, Flags: datamodel.CommandFlagAccepted, Callback: handleStop(c)},
	); err != nil {
		return nil, clusters.Abort(c, err)
	}

	if cfg != nil {
		if cfg.Features&FeatureOnOff != 0 {
			if err := clusters.AddFeature(c, FeatureOnOff); err != nil {
				return nil, clusters.Abort(c, err)
			}
		}
		if cfg.Features&FeatureLighting != 0 {
			if err := FeatureLightingAdd(c, &cfg.Lighting); err != nil {
				return nil, clusters.Abort(c, err)
			}
		}
		if cfg.Features&FeatureFrequency != 0 {
			if err := clusters.AddFeature(c, FeatureFrequency); err != nil {
				return nil, clusters.Abort(c, err)
			}
		}
	}
	return c, nil
}

// FeatureLightingAdd adds the LT feature attributes.
func FeatureLightingAdd(c *datamodel.Cluster, cfg *LightingConfig) error {
	if cfg == nil {
		cfg = &LightingConfig{MinLevel: MinLightingLevel, MaxLevel: MaxLevel}
	}
	if err := clusters.AddFeature(c, FeatureLighting); err != nil {
		return err
	}
	minLevel := max(cfg.MinLevel, MinLightingLevel)
	maxLevel := cfg.MaxLevel
	if maxLevel == 0 || maxLevel > MaxLevel {
		maxLevel = MaxLevel
	}
	return clusters.CreateAttributes(c,
		clusters.Attr{ID: AttrRemainingTime, Val: datamodel.Uint16(cfg.RemainingTime)},
		clusters.Attr{ID: AttrMinLevel, Val: datamodel.Uint8(minLevel)},
		clusters.Attr{ID: AttrMaxLevel, Val: datamodel.Uint8(maxLevel)},
		clusters.Attr{
			ID:    AttrStartUpCurrentLevel,
			Flags: datamodel.AttributeFlagWritable | datamodel.AttributeFlagNonvolatile | datamodel.AttributeFlagNullable,
			Val:   nullableLevel(cfg.StartUpCurrentLevel),
		},
	)
}

func addBounds(c *datamodel.Cluster) {
	lo, hi := levelRange(c)
	if a := c.Attribute(AttrCurrentLevel); a != nil {
		_ = a.AddBounds(datamodel.NullableUint8(lo), datamodel.NullableUint8(hi))
	}
	if a := c.Attribute(AttrOnLevel); a != nil {
		_ = a.AddBounds(datamodel.NullableUint8(lo), datamodel.NullableUint8(hi))
	}
	if a := c.Attribute(AttrOptions); a != nil {
		_ = a.AddBounds(datamodel.Bitmap8(0), datamodel.Bitmap8(optionsMax))
	}
}

// levelRange returns MinLevel and MaxLevel, or the defaults when the
// attributes are absent.
func levelRange(c *datamodel.Cluster) (uint8, uint8) {
	lo, hi := MinLevel, MaxLevel
	if clusters.HasFeature(c, FeatureLighting) {
		lo = MinLightingLevel
	}
	if v := clusters.Get(c, AttrMinLevel); v.Type != datamodel.ValTypeInvalid {
		lo = uint8(v.Uint())
	}
	if v := clusters.Get(c, AttrMaxLevel); v.Type != datamodel.ValTypeInvalid {
		hi = uint8(v.Uint())
	}
	return lo, hi
}

func clamp(c *datamodel.Cluster, level int) uint8 {
	lo, hi := levelRange(c)
	return uint8(min(max(level, int(lo)), int(hi)))
}

func applyStartUp(c *datamodel.Cluster) {
	v := clusters.Get(c, AttrStartUpCurrentLevel)
	if v.Type == datamodel.ValTypeInvalid || v.IsNull() {
		return
	}
	level := uint8(v.Uint())
	switch level {
	case 0:
		lo, _ := levelRange(c)
		level = lo
	case 0xFF:
		return
	}
	_ = clusters.Set(c, AttrCurrentLevel, datamodel.NullableUint8(clamp(c, int(level))))
}

func currentLevel(c *datamodel.Cluster) int {
	v := clusters.Get(c, AttrCurrentLevel)
	if v.IsNull() {
		lo, _ := levelRange(c)
		return int(lo)
	}
	return int(v.Uint())
}

func onOffCluster(c *datamodel.Cluster) *datamodel.Cluster {
	return c.Endpoint().Cluster(onoff.ClusterID)
}

// shouldExecute applies the ExecuteIfOff option for commands without
// OnOff coupling. maskTag is the field tag of OptionsMask, OptionsOverride
// follows it.
func shouldExecute(c *datamodel.Cluster, f clusters.Fields, maskTag uint32, withOnOff bool) bool {
	if withOnOff {
		return true
	}
	oc := onOffCluster(c)
	if oc == nil || clusters.Get(oc, onoff.AttrOnOff).Bool() {
		return true
	}
	options := uint8(clusters.Get(c, AttrOptions).Uint())
	if f.Has(maskTag) && f.Has(maskTag+1) {
		mask := uint8(f.UintOr(maskTag, 0))
		override := uint8(f.UintOr(maskTag+1, 0))
		options = (options &^ mask) | (override & mask)
	}
	return options&OptionExecuteIfOff != 0
}

// setLevel writes CurrentLevel and, for the WithOnOff variants, couples
// OnOff to it.
func setLevel(c *datamodel.Cluster, level uint8, withOnOff bool) error {
	lo, _ := levelRange(c)
	if withOnOff && level > lo {
		if oc := onOffCluster(c); oc != nil {
			if err := clusters.Set(oc, onoff.AttrOnOff, datamodel.Bool(true)); err != nil {
				return err
			}
		}
	}
	if err := clusters.Set(c, AttrCurrentLevel, datamodel.NullableUint8(level)); err != nil {
		return err
	}
	if withOnOff && level <= lo {
		if oc := onOffCluster(c); oc != nil {
			return clusters.Set(oc, onoff.AttrOnOff, datamodel.Bool(false))
		}
	}
	return nil
}

func handleMoveToLevel(c *datamodel.Cluster, withOnOff bool) datamodel.CommandCallback {
	return func(ctx context.Context, path datamodel.CommandPath, r *tlv.Reader, priv any) ([]byte, error) {
		f, err := clusters.DecodeFields(r)
		if err != nil {
			return nil, err
		}
		level, err := f.Uint(0)
		if err != nil {
			return nil, err
		}
		if level > uint64(MaxLevel) {
			return nil, clusters.ErrInvalidRequest
		}
		if !shouldExecute(c, f, 2, withOnOff) {
			return nil, nil
		}
		return nil, setLevel(c, clamp(c, int(level)), withOnOff)
	}
}

func handleMove(c *datamodel.Cluster, withOnOff bool) datamodel.CommandCallback {
	return func(ctx context.Context, path datamodel.CommandPath, r *tlv.Reader, priv any) ([]byte, error) {
		f, err := clusters.DecodeFields(r)
		if err != nil {
			return nil, err
		}
		mode, err := f.Uint(0)
		if err != nil {
			return nil, err
		}
		if !shouldExecute(c, f, 2, withOnOff) {
			return nil, nil
		}
		lo, hi := levelRange(c)
		switch uint8(mode) {
		case ModeUp:
			return nil, setLevel(c, hi, withOnOff)
		case ModeDown:
			return nil, setLevel(c, lo, withOnOff)
		}
		return nil, clusters.ErrInvalidRequest
	}
}

func handleStep(c *datamodel.Cluster, withOnOff bool) datamodel.CommandCallback {
	return func(ctx context.Context, path datamodel.CommandPath, r *tlv.Reader, priv any) ([]byte, error) {
		f, err := clusters.DecodeFields(r)
		if err != nil {
			return nil, err
		}
		mode, err := f.Uint(0)
		if err != nil {
			return nil, err
		}
		size, err := f.Uint(1)
		if err != nil {
			return nil, err
		}
		if size == 0 {
			return nil, clusters.ErrInvalidRequest
		}
		if !shouldExecute(c, f, 3, withOnOff) {
			return nil, nil
		}
		level := currentLevel(c)
		switch uint8(mode) {
		case ModeUp:
			level += int(size)
		case ModeDown:
			level -= int(size)
		default:
			return nil, clusters.ErrInvalidRequest
		}
		return nil, setLevel(c, clamp(c, level), withOnOff)
	}
}

func handleStop(c *datamodel.Cluster) datamodel.CommandCallback {
	return func(ctx context.Context, path datamodel.CommandPath, r *tlv.Reader, priv any) ([]byte, error) {
		if a := c.Attribute(AttrRemainingTime); a != nil {
			return nil, clusters.Set(c, AttrRemainingTime, datamodel.Uint16(0))
		}
		return nil, nil
	}
}
