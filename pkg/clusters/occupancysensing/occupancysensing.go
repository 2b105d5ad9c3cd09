// Package occupancysensing implements the Occupancy Sensing cluster
// (0x0406).
package occupancysensing

import (
	"github.com/espressif/esp-matter-sub221/pkg/clusters"
	"github.com/espressif/esp-matter-sub221/pkg/datamodel"
)

// Cluster constants.
const (
	ClusterID       datamodel.ClusterID = 0x0406
	ClusterRevision uint16              = 4
)

// Attribute IDs.
const (
	AttrOccupancy                 datamodel.AttributeID = 0x0000
	AttrOccupancySensorType       datamodel.AttributeID = 0x0001
	AttrOccupancySensorTypeBitmap datamodel.AttributeID = 0x0002
)

// EventOccupancyChanged carries the new Occupancy bitmap.
const EventOccupancyChanged datamodel.EventID = 0x00

// Occupancy bits.
const OccupancyOccupied uint8 = 1 << 0

// OccupancySensorType values.
const (
	SensorTypePIR              uint8 = 0
	SensorTypeUltrasonic       uint8 = 1
	SensorTypePIRAndUltrasonic uint8 = 2
	SensorTypePhysicalContact  uint8 = 3
)

// OccupancySensorTypeBitmap bits.
const (
	SensorTypeBitmapPIR             uint8 = 1 << 0
	SensorTypeBitmapUltrasonic      uint8 = 1 << 1
	SensorTypeBitmapPhysicalContact uint8 = 1 << 2
)

const sensorTypeBitmapMask = SensorTypeBitmapPIR | SensorTypeBitmapUltrasonic | SensorTypeBitmapPhysicalContact

// Config holds the initial attribute values.
type Config struct {
	Occupancy                 uint8
	OccupancySensorType       uint8
	OccupancySensorTypeBitmap uint8
}

// DefaultConfig returns a PIR sensor.
func DefaultConfig() *Config {
	return &Config{OccupancySensorType: SensorTypePIR, OccupancySensorTypeBitmap: SensorTypeBitmapPIR}
}

var pluginInit = clusters.Once(func() {})

// Create adds the Occupancy Sensing cluster to ep.
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
	c.SetAddBoundsCallback(addBounds)
	if cfg == nil {
		ep.Node().LoggerFactory().NewLogger("cluster").Errorf("Config is NULL. Cannot add some attributes.")
		return c, nil
	}
	if err := clusters.CreateAttributes(c,
		clusters.Attr{ID: AttrOccupancy, Val: datamodel.Bitmap8(cfg.Occupancy & OccupancyOccupied)},
		clusters.Attr{ID: AttrOccupancySensorType, Val: datamodel.Enum8(cfg.OccupancySensorType)},
		clusters.Attr{ID: AttrOccupancySensorTypeBitmap, Val: datamodel.Bitmap8(cfg.OccupancySensorTypeBitmap & sensorTypeBitmapMask)},
	); err != nil {
		return nil, clusters.Abort(c, err)
	}
	if err := clusters.CreateEvents(c, EventOccupancyChanged); err != nil {
		return nil, clusters.Abort(c, err)
	}
	return c, nil
}

func addBounds(c *datamodel.Cluster) {
	if a := c.Attribute(AttrOccupancySensorType); a != nil {
		_ = a.AddBounds(datamodel.Enum8(SensorTypePIR), datamodel.Enum8(SensorTypePhysicalContact))
	}
}

// SetOccupied updates Occupancy and sends OccupancyChanged to sink when
// the value changes. sink may be nil.
func SetOccupied(sink clusters.EventSink, c *datamodel.Cluster, occupied bool) error {
	var v uint8
	if occupied {
		v = OccupancyOccupied
	}
	if uint8(clusters.Get(c, AttrOccupancy).Uint()) == v {
		return nil
	}
	if err := clusters.Set(c, AttrOccupancy, datamodel.Bitmap8(v)); err != nil {
		return err
	}
	payload, err := clusters.NewCommandEncoder().Uint(0, uint64(v)).Finish()
	if err != nil {
		return err
	}
	return clusters.Emit(sink, c, EventOccupancyChanged, payload)
}

// Occupied reports the Occupancy attribute of c.
func Occupied(c *datamodel.Cluster) bool {
	return uint8(clusters.Get(c, AttrOccupancy).Uint())&OccupancyOccupied != 0
}
