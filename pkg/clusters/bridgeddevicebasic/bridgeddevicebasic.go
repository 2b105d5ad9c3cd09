// Package bridgeddevicebasic implements the Bridged Device Basic
// Information cluster (0x0039) carried by each bridged endpoint.
package bridgeddevicebasic

import (
	"strings"

	"github.com/google/uuid"

	"github.com/espressif/esp-matter-sub221/pkg/clusters"
	"github.com/espressif/esp-matter-sub221/pkg/datamodel"
)

// Cluster constants.
const (
	ClusterID       datamodel.ClusterID = 0x0039
	ClusterRevision uint16              = 3
)

// Attribute IDs.
const (
	AttrVendorName            datamodel.AttributeID = 0x0001
	AttrVendorID              datamodel.AttributeID = 0x0002
	AttrProductName           datamodel.AttributeID = 0x0003
	AttrNodeLabel             datamodel.AttributeID = 0x0005
	AttrHardwareVersion       datamodel.AttributeID = 0x0007
	AttrHardwareVersionString datamodel.AttributeID = 0x0008
	AttrSoftwareVersion       datamodel.AttributeID = 0x0009
	AttrSoftwareVersionString datamodel.AttributeID = 0x000A
	AttrSerialNumber          datamodel.AttributeID = 0x000F
	AttrReachable             datamodel.AttributeID = 0x0011
	AttrUniqueID              datamodel.AttributeID = 0x0012
)

// Event IDs.
const (
	EventStartUp          datamodel.EventID = 0x00
	EventShutDown         datamodel.EventID = 0x01
	EventLeave            datamodel.EventID = 0x02
	EventReachableChanged datamodel.EventID = 0x03
)

// String attribute limits.
const (
	MaxNameLength     = 32
	MaxVersionLength  = 64
	MaxUniqueIDLength = 32
)

// Config holds the initial attribute values. Empty strings and zero
// numbers leave the optional attributes out. An empty UniqueID gets a
// random one.
type Config struct {
	VendorName            string
	VendorID              uint16
	ProductName           string
	NodeLabel             string
	HardwareVersion       uint16
	HardwareVersionString string
	SoftwareVersion       uint32
	SoftwareVersionString string
	SerialNumber          string
	Reachable             bool
	UniqueID              string
}

var pluginInit = clusters.Once(func() {})

// Create adds the Bridged Device Basic Information cluster to ep.
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
	uniqueID := cfg.UniqueID
	if uniqueID == "" {
		uniqueID = strings.ReplaceAll(uuid.NewString(), "-", "")
	}
	attrs := []clusters.Attr{
		{ID: AttrReachable, Val: datamodel.Bool(cfg.Reachable)},
		{ID: AttrUniqueID, Val: datamodel.CharString(uniqueID), MaxSize: MaxUniqueIDLength},
		{
			ID:      AttrNodeLabel,
			Flags:   datamodel.AttributeFlagWritable | datamodel.AttributeFlagNonvolatile,
			Val:     datamodel.CharString(cfg.NodeLabel),
			MaxSize: MaxNameLength,
		},
	}
	if cfg.VendorName != "" {
		attrs = append(attrs, clusters.Attr{ID: AttrVendorName, Val: datamodel.CharString(cfg.VendorName), MaxSize: MaxNameLength})
	}
	if cfg.VendorID != 0 {
		attrs = append(attrs, clusters.Attr{ID: AttrVendorID, Val: datamodel.Enum16(cfg.VendorID)})
	}
	if cfg.ProductName != "" {
		attrs = append(attrs, clusters.Attr{ID: AttrProductName, Val: datamodel.CharString(cfg.ProductName), MaxSize: MaxNameLength})
	}
	if cfg.HardwareVersion != 0 {
		attrs = append(attrs, clusters.Attr{ID: AttrHardwareVersion, Val: datamodel.Uint16(cfg.HardwareVersion)})
	}
	if cfg.HardwareVersionString != "" {
		attrs = append(attrs, clusters.Attr{ID: AttrHardwareVersionString, Val: datamodel.CharString(cfg.HardwareVersionString), MaxSize: MaxVersionLength})
	}
	if cfg.SoftwareVersion != 0 {
		attrs = append(attrs, clusters.Attr{ID: AttrSoftwareVersion, Val: datamodel.Uint32(cfg.SoftwareVersion)})
	}
	if cfg.SoftwareVersionString != "" {
		attrs = append(attrs, clusters.Attr{ID: AttrSoftwareVersionString, Val: datamodel.CharString(cfg.SoftwareVersionString), MaxSize: MaxVersionLength})
	}
	if cfg.SerialNumber != "" {
		attrs = append(attrs, clusters.Attr{ID: AttrSerialNumber, Val: datamodel.CharString(cfg.SerialNumber), MaxSize: MaxNameLength})
	}
	if err := clusters.CreateAttributes(c, attrs...); err != nil {
		return nil, clusters.Abort(c, err)
	}
	if err := clusters.CreateEvents(c, EventStartUp, EventShutDown, EventLeave, EventReachableChanged); err != nil {
		return nil, clusters.Abort(c, err)
	}
	return c, nil
}

// SetReachable updates Reachable and sends ReachableChanged to sink when
// it changes.
func SetReachable(sink clusters.EventSink, c *datamodel.Cluster, reachable bool) error {
	if Reachable(c) == reachable {
		return nil
	}
	if err := clusters.Set(c, AttrReachable, datamodel.Bool(reachable)); err != nil {
		return err
	}
	payload, err := clusters.NewCommandEncoder().Bool(0, reachable).Finish()
	if err != nil {
		return err
	}
	return clusters.Emit(sink, c, EventReachableChanged, payload)
}

// Reachable returns the Reachable attribute of c.
func Reachable(c *datamodel.Cluster) bool {
	return clusters.Get(c, AttrReachable).Bool()
}

// SetNodeLabel sets the user visible name of the bridged device.
func SetNodeLabel(c *datamodel.Cluster, label string) error {
	if len(label) > MaxNameLength {
		label = label[:MaxNameLength]
	}
	return clusters.Set(c, AttrNodeLabel, datamodel.CharString(label))
}
