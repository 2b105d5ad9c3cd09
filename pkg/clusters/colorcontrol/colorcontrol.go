// Package colorcontrol implements the Color Control cluster (0x0300) with
// the hue/saturation, color temperature and XY features.
//
// Every command completes immediately and switches ColorMode to the mode
// it drives.
package colorcontrol

import (
	"context"
	"errors"

	"github.com/espressif/esp-matter-sub221/pkg/clusters"
	"github.com/espressif/esp-matter-sub221/pkg/datamodel"
	"github.com/espressif/esp-matter-sub221/pkg/tlv"
)

// Cluster constants.
const (
	ClusterID       datamodel.ClusterID = 0x0300
	ClusterRevision uint16              = 7
)

// Attribute IDs.
const (
	AttrCurrentHue                      datamodel.AttributeID = 0x0000
	AttrCurrentSaturation               datamodel.AttributeID = 0x0001
	AttrRemainingTime                   datamodel.AttributeID = 0x0002
	AttrCurrentX                        datamodel.AttributeID = 0x0003
	AttrCurrentY                        datamodel.AttributeID = 0x0004
	AttrColorTemperatureMireds          datamodel.AttributeID = 0x0007
	AttrColorMode                       datamodel.AttributeID = 0x0008
	AttrOptions                         datamodel.AttributeID = 0x000F
	AttrNumberOfPrimaries               datamodel.AttributeID = 0x0010
	AttrEnhancedColorMode               datamodel.AttributeID = 0x4001
	AttrColorCapabilities               datamodel.AttributeID = 0x400A
	AttrColorTempPhysicalMinMireds      datamodel.AttributeID = 0x400B
	AttrColorTempPhysicalMaxMireds      datamodel.AttributeID = 0x400C
	AttrCoupleColorTempToLevelMinMireds datamodel.AttributeID = 0x400D
	AttrStartUpColorTemperatureMireds   datamodel.AttributeID = 0x4010
)

// Command IDs.
const (
	CmdMoveToHue              datamodel.CommandID = 0x00
	CmdStepHue                datamodel.CommandID = 0x02
	CmdMoveToSaturation       datamodel.CommandID = 0x03
	CmdStepSaturation         datamodel.CommandID = 0x05
	CmdMoveToHueAndSaturation datamodel.CommandID = 0x06
	CmdMoveToColor            datamodel.CommandID = 0x07
	CmdMoveToColorTemperature datamodel.CommandID = 0x0A
	CmdStopMoveStep           datamodel.CommandID = 0x47
	CmdStepColorTemperature   datamodel.CommandID = 0x4C
)

// Feature bits. ColorCapabilities uses the same layout.
const (
	FeatureHueSaturation    uint32 = 1 << 0 // HS
	FeatureEnhancedHue      uint32 = 1 << 1 // EHUE
	FeatureColorLoop        uint32 = 1 << 2 // CL
	FeatureXY               uint32 = 1 << 3 // XY
	FeatureColorTemperature uint32 = 1 << 4 // CT
)

// ColorMode values.
const (
	ModeHueSaturation    uint8 = 0
	ModeXY               uint8 = 1
	ModeColorTemperature uint8 = 2
)

// Step modes.
const (
	StepUp   uint8 = 1
	StepDown uint8 = 3
)

// Value limits.
const (
	MaxHue        uint8  = 254
	MaxSaturation uint8  = 254
	MinMireds     uint16 = 1
	MaxMireds     uint16 = 0xFEFF
	MaxXY         uint16 = 0xFEFF
)

// HueSaturationConfig holds the HS feature attributes.
type HueSaturationConfig struct {
	CurrentHue        uint8
	CurrentSaturation uint8
}

// ColorTemperatureConfig holds the CT feature attributes.
type ColorTemperatureConfig struct {
	ColorTemperatureMireds          uint16
	ColorTempPhysicalMinMireds      uint16
	ColorTempPhysicalMaxMireds      uint16
	CoupleColorTempToLevelMinMireds uint16
	// StartUpColorTemperatureMireds nil keeps the persisted value.
	StartUpColorTemperatureMireds *uint16
}

// XYConfig holds the XY feature attributes.
type XYConfig struct {
	CurrentX uint16
	CurrentY uint16
}

// Config holds the mandatory attributes and the features to add.
type Config struct {
	ColorMode         uint8
	Options           uint8
	EnhancedColorMode uint8
	// NumberOfPrimaries nil is null.
	NumberOfPrimaries *uint8
	Features          uint32
	HueSaturation     HueSaturationConfig
	ColorTemperature  ColorTemperatureConfig
	XY                XYConfig
}

// DefaultConfig returns the extended color light defaults.
func DefaultConfig() *Config {
	return &Config{
		ColorMode:         ModeColorTemperature,
		EnhancedColorMode: ModeColorTemperature,
		Features:          FeatureHueSaturation | FeatureColorTemperature | FeatureXY,
		XY:                XYConfig{CurrentX: 0x616B, CurrentY: 0x607D},
		ColorTemperature:  DefaultColorTemperatureConfig(),
	}
}

// DefaultColorTemperatureConfig covers 2000K to 6500K.
func DefaultColorTemperatureConfig() ColorTemperatureConfig {
	return ColorTemperatureConfig{
		ColorTemperatureMireds:          0x00FA,
		ColorTempPhysicalMinMireds:      153,
		ColorTempPhysicalMaxMireds:      500,
		CoupleColorTempToLevelMinMireds: 153,
	}
}

var pluginInit = clusters.Once(func() {})

// Create adds the Color Control cluster to ep.
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
		} else {
			primaries := datamodel.NullUint8()
			if cfg.NumberOfPrimaries != nil {
				primaries = datamodel.NullableUint8(*cfg.NumberOfPrimaries)
			}
			if err := clusters.CreateAttributes(c,
				clusters.Attr{ID: AttrRemainingTime, Val: datamodel.Uint16(0)},
				clusters.Attr{ID: AttrColorMode, Flags: datamodel.AttributeFlagNonvolatile, Val: datamodel.Enum8(cfg.ColorMode)},
				clusters.Attr{ID: AttrOptions, Flags: datamodel.AttributeFlagWritable, Val: datamodel.Bitmap8(cfg.Options)},
				clusters.Attr{ID: AttrEnhancedColorMode, Flags: datamodel.AttributeFlagNonvolatile, Val: datamodel.Enum8(cfg.EnhancedColorMode)},
				clusters.Attr{ID: AttrColorCapabilities, Val: datamodel.Bitmap16(0)},
				clusters.Attr{ID: AttrNumberOfPrimaries, Flags: datamodel.AttributeFlagNullable, Val: primaries},
			); err != nil {
				return nil, clusters.Abort(c, err)
			}
		}
	}

	if err := clusters.CreateCommands(c,
		clusters.Cmd{ID: CmdStopMoveStep, Flags: datamodel.CommandFlagAccepted, Callback: handleStop(c)},
	); err != nil {
		return nil, clusters.Abort(c, err)
	}
	if cfg == nil {
		return c, nil
	}
	if cfg.Features&FeatureHueSaturation != 0 {
		if err := FeatureHueSaturationAdd(c, &cfg.HueSaturation); err != nil {
			return nil, clusters.Abort(c, err)
		}
	}
	if cfg.Features&FeatureColorTemperature != 0 {
		if err := FeatureColorTemperatureAdd(c, &cfg.ColorTemperature); err != nil {
			return nil, clusters.Abort(c, err)
		}
	}
	if cfg.Features&FeatureXY != 0 {
		if err := FeatureXYAdd(c, &cfg.XY); err != nil {
			return nil, clusters.Abort(c, err)
		}
	}
	return c, nil
}

// addFeature sets the feature bit and mirrors it into ColorCapabilities.
func addFeature(c *datamodel.Cluster, feature uint32) error {
	if err := clusters.AddFeature(c, feature); err != nil {
		return err
	}
	a := c.Attribute(AttrColorCapabilities)
	if a == nil {
		return nil
	}
	caps := datamodel.Bitmap16(uint16(a.Val().Uint()) | uint16(feature))
	if err := a.SetValInternal(caps, false); err != nil && !errors.Is(err, datamodel.ErrNotFinished) {
		return err
	}
	return nil
}

// FeatureHueSaturationAdd adds CurrentHue, CurrentSaturation and the hue
// and saturation commands.
func FeatureHueSaturationAdd(c *datamodel.Cluster, cfg *HueSaturationConfig) error {
	if cfg == nil {
		cfg = &HueSaturationConfig{}
	}
	if err := addFeature(c, FeatureHueSaturation); err != nil {
		return err
	}
	if err := clusters.CreateAttributes(c,
		clusters.Attr{ID: AttrCurrentHue, Flags: datamodel.AttributeFlagNonvolatile, Val: datamodel.Uint8(cfg.CurrentHue)},
		clusters.Attr{ID: AttrCurrentSaturation, Flags: datamodel.AttributeFlagNonvolatile, Val: datamodel.Uint8(cfg.CurrentSaturation)},
	); err != nil {
		return err
	}
	return clusters.CreateCommands(c,
		clusters.Cmd{ID: CmdMoveToHue, Flags: datamodel.CommandFlagAccepted, Callback: handleMoveToHue(c)},
		clusters.Cmd{ID: CmdStepHue, Flags: datamodel.CommandFlagAccepted, Callback: handleStepHue(c)},
		clusters.Cmd{ID: CmdMoveToSaturation, Flags: datamodel.CommandFlagAccepted, Callback: handleMoveToSaturation(c)},
		clusters.Cmd{ID: CmdStepSaturation, Flags: datamodel.CommandFlagAccepted, Callback: handleStepSaturation(c)},
		clusters.Cmd{ID: CmdMoveToHueAndSaturation, Flags: datamodel.CommandFlagAccepted, Callback: handleMoveToHueAndSaturation(c)},
	)
}

// FeatureColorTemperatureAdd adds the color temperature attributes and
// commands.
func FeatureColorTemperatureAdd(c *datamodel.Cluster, cfg *ColorTemperatureConfig) error {
	if cfg == nil {
		d := DefaultColorTemperatureConfig()
		cfg = &d
	}
	if err := addFeature(c, FeatureColorTemperature); err != nil {
		return err
	}
	startUp := datamodel.NullUint16()
	if cfg.StartUpColorTemperatureMireds != nil {
		startUp = datamodel.NullableUint16(*cfg.StartUpColorTemperatureMireds)
	}
	if err := clusters.CreateAttributes(c,
		clusters.Attr{ID: AttrColorTemperatureMireds, Flags: datamodel.AttributeFlagNonvolatile, Val: datamodel.Uint16(cfg.ColorTemperatureMireds)},
		clusters.Attr{ID: AttrColorTempPhysicalMinMireds, Val: datamodel.Uint16(cfg.ColorTempPhysicalMinMireds)},
		clusters.Attr{ID: AttrColorTempPhysicalMaxMireds, Val: datamodel.Uint16(cfg.ColorTempPhysicalMaxMireds)},
		clusters.Attr{ID: AttrCoupleColorTempToLevelMinMireds, Val: datamodel.Uint16(cfg.CoupleColorTempToLevelMinMireds)},
		clusters.Attr{
			ID:    AttrStartUpColorTemperatureMireds,
			Flags: datamodel.AttributeFlagWritable | datamodel.AttributeFlagNonvolatile | datamodel.AttributeFlagNullable,
			Val:   startUp,
		},
	); err != nil {
		return err
	}
	return clusters.CreateCommands(c,
		clusters.Cmd{ID: CmdMoveToColorTemperature, Flags: datamodel.CommandFlagAccepted, Callback: handleMoveToColorTemperature(c)},
		clusters.Cmd{ID: CmdStepColorTemperature, Flags: datamodel.CommandFlagAccepted, Callback: handleStepColorTemperature(c)},
	)
}

// FeatureXYAdd adds CurrentX, CurrentY and MoveToColor.
func FeatureXYAdd(c *datamodel.Cluster, cfg *XYConfig) error {
	if cfg == nil {
		cfg = &XYConfig{CurrentX: 0x616B, CurrentY: 0x607D}
	}
	if err := addFeature(c, FeatureXY); err != nil {
		return err
	}
	if err := clusters.CreateAttributes(c,
		clusters.Attr{ID: AttrCurrentX, Flags: datamodel.AttributeFlagNonvolatile, Val: datamodel.Uint16(cfg.CurrentX)},
		clusters.Attr{ID: AttrCurrentY, Flags: datamodel.AttributeFlagNonvolatile, Val: datamodel.Uint16(cfg.CurrentY)},
	); err != nil {
		return err
	}
	return clusters.CreateCommands(c,
		clusters.Cmd{ID: CmdMoveToColor, Flags: datamodel.CommandFlagAccepted, Callback: handleMoveToColor(c)},
	)
}

func addBounds(c *datamodel.Cluster) {
	if a := c.Attribute(AttrCurrentHue); a != nil {
		_ = a.AddBounds(datamodel.Uint8(0), datamodel.Uint8(MaxHue))
	}
	if a := c.Attribute(AttrCurrentSaturation); a != nil {
		_ = a.AddBounds(datamodel.Uint8(0), datamodel.Uint8(MaxSaturation))
	}
	if a := c.Attribute(AttrColorMode); a != nil {
		_ = a.AddBounds(datamodel.Enum8(ModeHueSaturation), datamodel.Enum8(ModeColorTemperature))
	}
	if a := c.Attribute(AttrColorTemperatureMireds); a != nil {
		lo, hi := miredsRange(c)
		_ = a.AddBounds(datamodel.Uint16(lo), datamodel.Uint16(hi))
	}
	for _, id := range []datamodel.AttributeID{AttrCurrentX, AttrCurrentY} {
		if a := c.Attribute(id); a != nil {
			_ = a.AddBounds(datamodel.Uint16(0), datamodel.Uint16(MaxXY))
		}
	}
}

func miredsRange(c *datamodel.Cluster) (uint16, uint16) {
	lo, hi := MinMireds, MaxMireds
	if v := clusters.Get(c, AttrColorTempPhysicalMinMireds); v.Type != datamodel.ValTypeInvalid && v.Uint() > 0 {
		lo = uint16(v.Uint())
	}
	if v := clusters.Get(c, AttrColorTempPhysicalMaxMireds); v.Type != datamodel.ValTypeInvalid && v.Uint() > 0 {
		hi = uint16(v.Uint())
	}
	return lo, hi
}

func applyStartUp(c *datamodel.Cluster) {
	v := clusters.Get(c, AttrStartUpColorTemperatureMireds)
	if v.Type == datamodel.ValTypeInvalid || v.IsNull() {
		return
	}
	_ = setMireds(c, int(v.Uint()))
}

func setMode(c *datamodel.Cluster, mode uint8) error {
	if err := clusters.Set(c, AttrColorMode, datamodel.Enum8(mode)); err != nil {
		return err
	}
	return clusters.Set(c, AttrEnhancedColorMode, datamodel.Enum8(mode))
}

func setHue(c *datamodel.Cluster, hue uint8) error {
	if err := setMode(c, ModeHueSaturation); err != nil {
		return err
	}
	return clusters.Set(c, AttrCurrentHue, datamodel.Uint8(hue))
}

func setSaturation(c *datamodel.Cluster, sat int) error {
	if err := setMode(c, ModeHueSaturation); err != nil {
		return err
	}
	return clusters.Set(c, AttrCurrentSaturation, datamodel.Uint8(uint8(min(max(sat, 0), int(MaxSaturation)))))
}

func setMireds(c *datamodel.Cluster, mireds int) error {
	lo, hi := miredsRange(c)
	if err := setMode(c, ModeColorTemperature); err != nil {
		return err
	}
	return clusters.Set(c, AttrColorTemperatureMireds, datamodel.Uint16(uint16(min(max(mireds, int(lo)), int(hi)))))
}

func handleMoveToHue(c *datamodel.Cluster) datamodel.CommandCallback {
	return func(ctx context.Context, path datamodel.CommandPath, r *tlv.Reader, priv any) ([]byte, error) {
		f, err := clusters.DecodeFields(r)
		if err != nil {
			return nil, err
		}
		hue, err := f.Uint(0)
		if err != nil {
			return nil, err
		}
		if hue > uint64(MaxHue) {
			return nil, clusters.ErrInvalidRequest
		}
		return nil, setHue(c, uint8(hue))
	}
}

// handleStepHue wraps around the 0-254 hue circle.
func handleStepHue(c *datamodel.Cluster) datamodel.CommandCallback {
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
		const span = int(MaxHue) + 1
		hue := int(clusters.Get(c, AttrCurrentHue).Uint())
		switch uint8(mode) {
		case StepUp:
			hue = (hue + int(size)) % span
		case StepDown:
			hue = ((hue-int(size))%span + span) % span
		default:
			return nil, clusters.ErrInvalidRequest
		}
		return nil, setHue(c, uint8(hue))
	}
}

func handleMoveToSaturation(c *datamodel.Cluster) datamodel.CommandCallback {
	return func(ctx context.Context, path datamodel.CommandPath, r *tlv.Reader, priv any) ([]byte, error) {
		f, err := clusters.DecodeFields(r)
		if err != nil {
			return nil, err
		}
		sat, err := f.Uint(0)
		if err != nil {
			return nil, err
		}
		if sat > uint64(MaxSaturation) {
			return nil, clusters.ErrInvalidRequest
		}
		return nil, setSaturation(c, int(sat))
	}
}

func handleStepSaturation(c *datamodel.Cluster) datamodel.CommandCallback {
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
		sat := int(clusters.Get(c, AttrCurrentSaturation).Uint())
		switch uint8(mode) {
		case StepUp:
			sat += int(size)
		case StepDown:
			sat -= int(size)
		default:
			return nil, clusters.ErrInvalidRequest
		}
		return nil, setSaturation(c, sat)
	}
}

func handleMoveToHueAndSaturation(c *datamodel.Cluster) datamodel.CommandCallback {
	return func(ctx context.Context, path datamodel.CommandPath, r *tlv.Reader, priv any) ([]byte, error) {
		f, err := clusters.DecodeFields(r)
		if err != nil {
			return nil, err
		}
		hue, err := f.Uint(0)
		if err != nil {
			return nil, err
		}
		sat, err := f.Uint(1)
		if err != nil {
			return nil, err
		}
		if hue > uint64(MaxHue) || sat > uint64(MaxSaturation) {
			return nil, clusters.ErrInvalidRequest
		}
		if err := setHue(c, uint8(hue)); err != nil {
			return nil, err
		}
		return nil, setSaturation(c, int(sat))
	}
}

func handleMoveToColor(c *datamodel.Cluster) datamodel.CommandCallback {
	return func(ctx context.Context, path datamodel.CommandPath, r *tlv.Reader, priv any) ([]byte, error) {
		f, err := clusters.DecodeFields(r)
		if err != nil {
			return nil, err
		}
		x, err := f.Uint(0)
		if err != nil {
			return nil, err
		}
		y, err := f.Uint(1)
		if err != nil {
			return nil, err
		}
		if x > uint64(MaxXY) || y > uint64(MaxXY) {
			return nil, clusters.ErrInvalidRequest
		}
		if err := setMode(c, ModeXY); err != nil {
			return nil, err
		}
		if err := clusters.Set(c, AttrCurrentX, datamodel.Uint16(uint16(x))); err != nil {
			return nil, err
		}
		return nil, clusters.Set(c, AttrCurrentY, datamodel.Uint16(uint16(y)))
	}
}

func handleMoveToColorTemperature(c *datamodel.Cluster) datamodel.CommandCallback {
	return func(ctx context.Context, path datamodel.CommandPath, r *tlv.Reader, priv any) ([]byte, error) {
		f, err := clusters.DecodeFields(r)
		if err != nil {
			return nil, err
		}
		mireds, err := f.Uint(0)
		if err != nil {
			return nil, err
		}
		if mireds > uint64(MaxMireds) {
			return nil, clusters.ErrInvalidRequest
		}
		return nil, setMireds(c, int(mireds))
	}
}

// handleStepColorTemperature honours the optional minimum (tag 3) and
// maximum (tag 4) fields on top of the physical range.
func handleStepColorTemperature(c *datamodel.Cluster) datamodel.CommandCallback {
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
		mireds := int(clusters.Get(c, AttrColorTemperatureMireds).Uint())
		switch uint8(mode) {
		case StepUp:
			mireds += int(size)
		case StepDown:
			mireds -= int(size)
		default:
			return nil, clusters.ErrInvalidRequest
		}
		if lo := int(f.UintOr(3, 0)); lo > 0 {
			mireds = max(mireds, lo)
		}
		if hi := int(f.UintOr(4, 0)); hi > 0 {
			mireds = min(mireds, hi)
		}
		return nil, setMireds(c, mireds)
	}
}

func handleStop(c *datamodel.Cluster) datamodel.CommandCallback {
	return func(ctx context.Context, path datamodel.CommandPath, r *tlv.Reader, priv any) ([]byte, error) {
		if c.Attribute(AttrRemainingTime) == nil {
			return nil, nil
		}
		return nil, clusters.Set(c, AttrRemainingTime, datamodel.Uint16(0))
	}
}
