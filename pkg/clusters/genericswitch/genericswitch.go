// Package genericswitch implements the Switch cluster (0x003B).
//
// A switch is either latching or momentary. The event helpers update
// CurrentPosition and emit the matching event; emitting an event whose
// feature is not supported fails with clusters.ErrEventNotFound.
package genericswitch

import (
	"fmt"

	"github.com/espressif/esp-matter-sub221/pkg/clusters"
	"github.com/espressif/esp-matter-sub221/pkg/datamodel"
)

// Cluster constants.
const (
	ClusterID       datamodel.ClusterID = 0x003B
	ClusterRevision uint16              = 1
)

// Attribute IDs.
const (
	AttrNumberOfPositions datamodel.AttributeID = 0x0000
	AttrCurrentPosition   datamodel.AttributeID = 0x0001
	AttrMultiPressMax     datamodel.AttributeID = 0x0002
)

// Event IDs.
const (
	EventSwitchLatched      datamodel.EventID = 0x00
	EventInitialPress       datamodel.EventID = 0x01
	EventLongPress          datamodel.EventID = 0x02
	EventShortRelease       datamodel.EventID = 0x03
	EventLongRelease        datamodel.EventID = 0x04
	EventMultiPressOngoing  datamodel.EventID = 0x05
	EventMultiPressComplete datamodel.EventID = 0x06
)

// Feature bits.
const (
	FeatureLatchingSwitch            uint32 = 1 << 0 // LS
	FeatureMomentarySwitch           uint32 = 1 << 1 // MS
	FeatureMomentarySwitchRelease    uint32 = 1 << 2 // MSR
	FeatureMomentarySwitchLongPress  uint32 = 1 << 3 // MSL
	FeatureMomentarySwitchMultiPress uint32 = 1 << 4 // MSM
)

// Config holds the initial attribute values and features. Exactly one of
// FeatureLatchingSwitch and FeatureMomentarySwitch is required.
type Config struct {
	NumberOfPositions uint8
	CurrentPosition   uint8
	MultiPressMax     uint8
	Features          uint32
}

// DefaultConfig returns a two position momentary switch with release and
// long press events.
func DefaultConfig() *Config {
	return &Config{
		NumberOfPositions: 2,
		MultiPressMax:     2,
		Features:          FeatureMomentarySwitch | FeatureMomentarySwitchRelease | FeatureMomentarySwitchLongPress,
	}
}

var pluginInit = clusters.Once(func() {})

// Create adds the Switch cluster to ep.
func Create(ep *datamodel.Endpoint, cfg *Config, flags datamodel.ClusterFlags) (*datamodel.Cluster, error) {
	c, err := clusters.Create(ep, clusters.Spec{
		ID:         ClusterID,
		Revision:   ClusterRevision,
		PluginInit: pluginInit,
	}, flags)
	if err != nil {
		return nil, err
	}
	if flags&datamodel.ClusterFlagServer == 0 {
		return c, nil
	}
	if cfg == nil {
		ep.Node().LoggerFactory().NewLogger("cluster").Errorf("Config is NULL. Cannot add some attributes.")
		return c, nil
	}
	if err := clusters.ValidateFeatures(cfg.Features, clusters.ExactlyOne,
		clusters.FeatureNames("LatchingSwitch", "MomentarySwitch"), FeatureLatchingSwitch, FeatureMomentarySwitch); err != nil {
		return nil, clusters.Abort(c, err)
	}
	if cfg.NumberOfPositions < 2 || cfg.CurrentPosition >= cfg.NumberOfPositions {
		return nil, clusters.Abort(c, fmt.Errorf("%w: %d positions, current %d",
			datamodel.ErrInvalidArg, cfg.NumberOfPositions, cfg.CurrentPosition))
	}
	if err := clusters.CreateAttributes(c,
		clusters.Attr{ID: AttrNumberOfPositions, Val: datamodel.Uint8(cfg.NumberOfPositions)},
		clusters.Attr{ID: AttrCurrentPosition, Flags: datamodel.AttributeFlagNonvolatile, Val: datamodel.Uint8(cfg.CurrentPosition)},
	); err != nil {
		return nil, clusters.Abort(c, err)
	}
	if err := addFeatures(c, cfg); err != nil {
		return nil, clusters.Abort(c, err)
	}
	return c, nil
}

func addFeatures(c *datamodel.Cluster, cfg *Config) error {
	if cfg.Features&FeatureLatchingSwitch != 0 {
		if cfg.Features&^FeatureLatchingSwitch != 0 {
			return fmt.Errorf("%w: momentary features on a latching switch", clusters.ErrInvalidFeatures)
		}
		if err := clusters.AddFeature(c, FeatureLatchingSwitch); err != nil {
			return err
		}
		return clusters.CreateEvents(c, EventSwitchLatched)
	}
	if err := clusters.AddFeature(c, FeatureMomentarySwitch); err != nil {
		return err
	}
	if err := clusters.CreateEvents(c, EventInitialPress); err != nil {
		return err
	}
	if cfg.Features&FeatureMomentarySwitchRelease != 0 {
		if err := clusters.AddFeature(c, FeatureMomentarySwitchRelease); err != nil {
			return err
		}
		if err := clusters.CreateEvents(c, EventShortRelease); err != nil {
			return err
		}
	}
	if cfg.Features&FeatureMomentarySwitchLongPress != 0 {
		if err := clusters.AddFeature(c, FeatureMomentarySwitchLongPress); err != nil {
			return err
		}
		if err := clusters.CreateEvents(c, EventLongPress, EventLongRelease); err != nil {
			return err
		}
	}
	if cfg.Features&FeatureMomentarySwitchMultiPress != 0 {
		if cfg.MultiPressMax < 2 {
			return fmt.Errorf("%w: MultiPressMax %d", datamodel.ErrInvalidArg, cfg.MultiPressMax)
		}
		if err := clusters.AddFeature(c, FeatureMomentarySwitchMultiPress); err != nil {
			return err
		}
		if err := clusters.CreateAttributes(c, clusters.Attr{ID: AttrMultiPressMax, Val: datamodel.Uint8(cfg.MultiPressMax)}); err != nil {
			return err
		}
		return clusters.CreateEvents(c, EventMultiPressOngoing, EventMultiPressComplete)
	}
	return nil
}

// CurrentPosition returns the CurrentPosition attribute of c.
func CurrentPosition(c *datamodel.Cluster) uint8 {
	return uint8(clusters.Get(c, AttrCurrentPosition).Uint())
}

func setPosition(c *datamodel.Cluster, pos uint8) error {
	if n := uint8(clusters.Get(c, AttrNumberOfPositions).Uint()); pos >= n {
		return fmt.Errorf("%w: position %d of %d", datamodel.ErrInvalidArg, pos, n)
	}
	return clusters.Set(c, AttrCurrentPosition, datamodel.Uint8(pos))
}

func emit(sink clusters.EventSink, c *datamodel.Cluster, id datamodel.EventID, e *clusters.CommandEncoder) error {
	payload, err := e.Finish()
	if err != nil {
		return err
	}
	return clusters.Emit(sink, c, id, payload)
}

// Latch moves a latching switch to pos.
func Latch(sink clusters.EventSink, c *datamodel.Cluster, pos uint8) error {
	if c.Event(EventSwitchLatched) == nil {
		return fmt.Errorf("%w: not a latching switch", clusters.ErrEventNotFound)
	}
	if err := setPosition(c, pos); err != nil {
		return err
	}
	return emit(sink, c, EventSwitchLatched, clusters.NewCommandEncoder().Uint(0, uint64(pos)))
}

// InitialPress reports a momentary switch pressed into pos.
func InitialPress(sink clusters.EventSink, c *datamodel.Cluster, pos uint8) error {
	if c.Event(EventInitialPress) == nil {
		return fmt.Errorf("%w: not a momentary switch", clusters.ErrEventNotFound)
	}
	if err := setPosition(c, pos); err != nil {
		return err
	}
	return emit(sink, c, EventInitialPress, clusters.NewCommandEncoder().Uint(0, uint64(pos)))
}

// LongPress reports that the switch has been held in pos.
func LongPress(sink clusters.EventSink, c *datamodel.Cluster, pos uint8) error {
	return emit(sink, c, EventLongPress, clusters.NewCommandEncoder().Uint(0, uint64(pos)))
}

// ShortRelease reports the release of a short press from previous.
func ShortRelease(sink clusters.EventSink, c *datamodel.Cluster, previous uint8) error {
	return release(sink, c, EventShortRelease, previous)
}

// LongRelease reports the release of a long press from previous.
func LongRelease(sink clusters.EventSink, c *datamodel.Cluster, previous uint8) error {
	return release(sink, c, EventLongRelease, previous)
}

func release(sink clusters.EventSink, c *datamodel.Cluster, id datamodel.EventID, previous uint8) error {
	if c.Event(id) == nil {
		return fmt.Errorf("%w: 0x%02X", clusters.ErrEventNotFound, uint32(id))
	}
	if err := setPosition(c, 0); err != nil {
		return err
	}
	return emit(sink, c, id, clusters.NewCommandEncoder().Uint(0, uint64(previous)))
}

// MultiPressOngoing reports count presses so far in a multi press
// sequence.
func MultiPressOngoing(sink clusters.EventSink, c *datamodel.Cluster, pos uint8, count uint8) error {
	return emit(sink, c, EventMultiPressOngoing,
		clusters.NewCommandEncoder().Uint(0, uint64(pos)).Uint(1, uint64(count)))
}

// MultiPressComplete reports the end of a multi press sequence of count
// presses.
func MultiPressComplete(sink clusters.EventSink, c *datamodel.Cluster, previous uint8, count uint8) error {
	if limit := uint8(clusters.Get(c, AttrMultiPressMax).Uint()); count > limit {
		count = 0
	}
	return emit(sink, c, EventMultiPressComplete,
		clusters.NewCommandEncoder().Uint(0, uint64(previous)).Uint(1, uint64(count)))
}
