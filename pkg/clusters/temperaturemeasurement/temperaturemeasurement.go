// Package temperaturemeasurement implements the Temperature Measurement
// cluster (0x0402). Values are in hundredths of a degree Celsius and null
// when unknown.
package temperaturemeasurement

import (
	"fmt"

	"github.com/espressif/esp-matter-sub221/pkg/clusters"
	"github.com/espressif/esp-matter-sub221/pkg/datamodel"
)

// Cluster constants.
const (
	ClusterID       datamodel.ClusterID = 0x0402
	ClusterRevision uint16              = 4
)

// Attribute IDs.
const (
	AttrMeasuredValue    datamodel.AttributeID = 0x0000
	AttrMinMeasuredValue datamodel.AttributeID = 0x0001
	AttrMaxMeasuredValue datamodel.AttributeID = 0x0002
	AttrTolerance        datamodel.AttributeID = 0x0003
)

// Config holds the initial attribute values. Nil fields are null.
type Config struct {
	MeasuredValue    *int16
	MinMeasuredValue *int16
	MaxMeasuredValue *int16
}

// ErrOutOfRange is returned by SetMeasuredValue for values outside
// [MinMeasuredValue, MaxMeasuredValue].
var ErrOutOfRange = fmt.Errorf("%w: measured value out of range", datamodel.ErrInvalidArg)

var pluginInit = clusters.Once(func() {})

// Create adds the Temperature Measurement cluster to ep.
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
	n := datamodel.AttributeFlagNullable
	if err := clusters.CreateAttributes(c,
		clusters.Attr{ID: AttrMeasuredValue, Flags: n, Val: nullable(cfg.MeasuredValue)},
		clusters.Attr{ID: AttrMinMeasuredValue, Flags: n, Val: nullable(cfg.MinMeasuredValue)},
		clusters.Attr{ID: AttrMaxMeasuredValue, Flags: n, Val: nullable(cfg.MaxMeasuredValue)},
	); err != nil {
		return nil, clusters.Abort(c, err)
	}
	return c, nil
}

// AttributeToleranceCreate adds the optional Tolerance attribute.
func AttributeToleranceCreate(c *datamodel.Cluster, tolerance uint16) error {
	return clusters.CreateAttributes(c, clusters.Attr{ID: AttrTolerance, Val: datamodel.Uint16(min(tolerance, 2048))})
}

func nullable(v *int16) datamodel.Val {
	if v == nil {
		return datamodel.NullInt16()
	}
	return datamodel.NullableInt16(*v)
}

// SetMeasuredValue reports a measurement, nil for unknown. Known bounds
// are enforced.
func SetMeasuredValue(c *datamodel.Cluster, v *int16) error {
	if v != nil {
		if lo := clusters.Get(c, AttrMinMeasuredValue); lo.Type != datamodel.ValTypeInvalid && !lo.IsNull() && int64(*v) < lo.Int() {
			return ErrOutOfRange
		}
		if hi := clusters.Get(c, AttrMaxMeasuredValue); hi.Type != datamodel.ValTypeInvalid && !hi.IsNull() && int64(*v) > hi.Int() {
			return ErrOutOfRange
		}
	}
	return clusters.Set(c, AttrMeasuredValue, nullable(v))
}

// MeasuredValue returns the last measurement and whether it is known.
func MeasuredValue(c *datamodel.Cluster) (int16, bool) {
	v := clusters.Get(c, AttrMeasuredValue)
	if v.Type == datamodel.ValTypeInvalid || v.IsNull() {
		return 0, false
	}
	return int16(v.Int()), true
}
