// Package basic implements the Basic Information cluster (0x0028).
//
// The device identity attributes are managed internally and served from
// DeviceInfo. NodeLabel and Location are regular writable attributes kept
// in the data model.
//
// This cluster is mandatory on the root endpoint (endpoint 0).
package basic

import (
	"bytes"
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/espressif/esp-matter-sub221/pkg/clusters"
	"github.com/espressif/esp-matter-sub221/pkg/datamodel"
	"github.com/espressif/esp-matter-sub221/pkg/storage"
	"github.com/espressif/esp-matter-sub221/pkg/tlv"
)

// Cluster constants.
const (
	ClusterID       datamodel.ClusterID = 0x0028
	ClusterRevision uint16              = 3
)

// Attribute IDs.
const (
	AttrDataModelRevision    datamodel.AttributeID = 0x0000
	AttrVendorName           datamodel.AttributeID = 0x0001
	AttrVendorID             datamodel.AttributeID = 0x0002
	AttrProductName          datamodel.AttributeID = 0x0003
	AttrProductID            datamodel.AttributeID = 0x0004
	AttrNodeLabel            datamodel.AttributeID = 0x0005
	AttrLocation             datamodel.AttributeID = 0x0006
	AttrHardwareVersion      datamodel.AttributeID = 0x0007
	AttrHardwareVersionStr   datamodel.AttributeID = 0x0008
	AttrSoftwareVersion      datamodel.AttributeID = 0x0009
	AttrSoftwareVersionStr   datamodel.AttributeID = 0x000A
	AttrSerialNumber         datamodel.AttributeID = 0x000F
	AttrUniqueID             datamodel.AttributeID = 0x0012
	AttrCapabilityMinima     datamodel.AttributeID = 0x0013
	AttrSpecificationVersion datamodel.AttributeID = 0x0015
	AttrMaxPathsPerInvoke    datamodel.AttributeID = 0x0016
	AttrConfigurationVersion datamodel.AttributeID = 0x0018
)

// Event IDs.
const (
	EventStartUp  datamodel.EventID = 0x00
	EventShutDown datamodel.EventID = 0x01
	EventLeave    datamodel.EventID = 0x02
)

// Limits and defaults.
const (
	MaxNodeLabelLength = 32
	LocationLength     = 2
	DefaultLocation    = "XX"
)

// DataModelRevision and SpecificationVersion describe Matter 1.3.0.
const (
	DataModelRevision    uint16 = 17
	SpecificationVersion uint32 = 0x01030000
)

// Persistence of the generated UniqueID.
const (
	uniqueIDNamespace = "chip-config"
	uniqueIDKey       = "unique-id"
)

// CapabilityMinima provides constant values for system-wide capabilities.
type CapabilityMinima struct {
	CaseSessionsPerFabric  uint16
	SubscriptionsPerFabric uint16
}

// DeviceInfo provides static device information. These values are set at
// manufacturing time.
type DeviceInfo struct {
	VendorName            string
	VendorID              uint16
	ProductName           string
	ProductID             uint16
	HardwareVersion       uint16
	HardwareVersionString string
	SoftwareVersion       uint32
	SoftwareVersionString string
	SerialNumber          string
	// UniqueID empty generates a random UUID on first boot and persists it.
	UniqueID             string
	CapabilityMinima     CapabilityMinima
	MaxPathsPerInvoke    uint16
	ConfigurationVersion uint32
}

// Config holds the writable attributes and the device information.
type Config struct {
	NodeLabel  string
	Location   string
	DeviceInfo DeviceInfo
}

func (c *Config) applyDefaults() {
	if c.Location == "" {
		c.Location = DefaultLocation
	}
	if c.DeviceInfo.CapabilityMinima == (CapabilityMinima{}) {
		c.DeviceInfo.CapabilityMinima = CapabilityMinima{CaseSessionsPerFabric: 3, SubscriptionsPerFabric: 3}
	}
	if c.DeviceInfo.MaxPathsPerInvoke == 0 {
		c.DeviceInfo.MaxPathsPerInvoke = 1
	}
	if c.DeviceInfo.ConfigurationVersion == 0 {
		c.DeviceInfo.ConfigurationVersion = 1
	}
}

var pluginInit = clusters.Once(func() {})

// Create adds the Basic Information cluster to ep.
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
		if cfg == nil {
			ep.Node().LoggerFactory().NewLogger("cluster").Errorf("Config is NULL. Cannot add some attributes.")
			cfg = &Config{}
		}
		conf := *cfg
		conf.applyDefaults()
		if conf.DeviceInfo.UniqueID == "" {
			conf.DeviceInfo.UniqueID = loadUniqueID(ep.Node().Store())
		}
		if err := createAttributes(c, &conf); err != nil {
			return nil, clusters.Abort(c, err)
		}
		info := conf.DeviceInfo
		c.SetAttributeProvider(func(ctx context.Context, path datamodel.AttributePath, w *tlv.Writer, tag tlv.Tag) error {
			return info.read(path.Attribute, w, tag)
		})
	}
	if err := clusters.CreateEvents(c, EventStartUp); err != nil {
		return nil, clusters.Abort(c, err)
	}
	return c, nil
}

func createAttributes(c *datamodel.Cluster, cfg *Config) error {
	internal := datamodel.AttributeFlagManagedInternally
	attrs := []clusters.Attr{
		{ID: AttrDataModelRevision, Flags: internal, Val: datamodel.Uint16(0)},
		{ID: AttrVendorName, Flags: internal, Val: datamodel.CharString("")},
		{ID: AttrVendorID, Flags: internal, Val: datamodel.Uint16(0)},
		{ID: AttrProductName, Flags: internal, Val: datamodel.CharString("")},
		{ID: AttrProductID, Flags: internal, Val: datamodel.Uint16(0)},
		{ID: AttrHardwareVersion, Flags: internal, Val: datamodel.Uint16(0)},
		{ID: AttrHardwareVersionStr, Flags: internal, Val: datamodel.CharString("")},
		{ID: AttrSoftwareVersion, Flags: internal, Val: datamodel.Uint32(0)},
		{ID: AttrSoftwareVersionStr, Flags: internal, Val: datamodel.CharString("")},
		{ID: AttrUniqueID, Flags: internal, Val: datamodel.CharString("")},
		{ID: AttrCapabilityMinima, Flags: internal, Val: datamodel.Array(nil)},
		{ID: AttrSpecificationVersion, Flags: internal, Val: datamodel.Uint32(0)},
		{ID: AttrMaxPathsPerInvoke, Flags: internal, Val: datamodel.Uint16(0)},
		{ID: AttrConfigurationVersion, Flags: internal, Val: datamodel.Uint32(0)},
		{
			ID:      AttrNodeLabel,
			Flags:   datamodel.AttributeFlagWritable | datamodel.AttributeFlagNonvolatile,
			Val:     datamodel.CharString(cfg.NodeLabel),
			MaxSize: MaxNodeLabelLength,
		},
		{
			ID:      AttrLocation,
			Flags:   datamodel.AttributeFlagWritable | datamodel.AttributeFlagNonvolatile,
			Val:     datamodel.CharString(cfg.Location),
			MaxSize: LocationLength,
		},
	}
	if cfg.DeviceInfo.SerialNumber != "" {
		attrs = append(attrs, clusters.Attr{ID: AttrSerialNumber, Flags: internal, Val: datamodel.CharString("")})
	}
	return clusters.CreateAttributes(c, attrs...)
}

// loadUniqueID returns the persisted UniqueID or generates and stores a
// new one.
func loadUniqueID(store storage.Store) string {
	if store == nil {
		return uuid.NewString()
	}
	if b, err := store.Get(uniqueIDNamespace, uniqueIDKey); err == nil && len(b) > 0 {
		return string(b)
	}
	id := uuid.NewString()
	_ = store.Set(uniqueIDNamespace, uniqueIDKey, []byte(id))
	return id
}

func (d DeviceInfo) read(id datamodel.AttributeID, w *tlv.Writer, tag tlv.Tag) error {
	switch id {
	case AttrDataModelRevision:
		return w.PutUint(tag, uint64(DataModelRevision))
	case AttrVendorName:
		return w.PutString(tag, d.VendorName)
	case AttrVendorID:
		return w.PutUint(tag, uint64(d.VendorID))
	case AttrProductName:
		return w.PutString(tag, d.ProductName)
	case AttrProductID:
		return w.PutUint(tag, uint64(d.ProductID))
	case AttrHardwareVersion:
		return w.PutUint(tag, uint64(d.HardwareVersion))
	case AttrHardwareVersionStr:
		return w.PutString(tag, d.HardwareVersionString)
	case AttrSoftwareVersion:
		return w.PutUint(tag, uint64(d.SoftwareVersion))
	case AttrSoftwareVersionStr:
		return w.PutString(tag, d.SoftwareVersionString)
	case AttrSerialNumber:
		return w.PutString(tag, d.SerialNumber)
	case AttrUniqueID:
		return w.PutString(tag, d.UniqueID)
	case AttrCapabilityMinima:
		if err := w.StartStructure(tag); err != nil {
			return err
		}
		if err := w.PutUint(tlv.ContextTag(0), uint64(d.CapabilityMinima.CaseSessionsPerFabric)); err != nil {
			return err
		}
		if err := w.PutUint(tlv.ContextTag(1), uint64(d.CapabilityMinima.SubscriptionsPerFabric)); err != nil {
			return err
		}
		return w.EndContainer()
	case AttrSpecificationVersion:
		return w.PutUint(tag, uint64(SpecificationVersion))
	case AttrMaxPathsPerInvoke:
		return w.PutUint(tag, uint64(d.MaxPathsPerInvoke))
	case AttrConfigurationVersion:
		return w.PutUint(tag, uint64(d.ConfigurationVersion))
	}
	return datamodel.ErrUnsupportedRead
}

// UniqueID returns the UniqueID served by c.
func UniqueID(c *datamodel.Cluster) (string, error) {
	var buf bytes.Buffer
	path := datamodel.AttributePath{Endpoint: c.EndpointID(), Cluster: ClusterID, Attribute: AttrUniqueID}
	if err := c.Endpoint().Node().ReadAttribute(context.Background(), path, tlv.NewWriter(&buf), tlv.Anonymous()); err != nil {
		return "", err
	}
	r := tlv.NewReader(&buf)
	if err := r.Next(); err != nil {
		return "", err
	}
	return r.String()
}

// EraseUniqueID removes the persisted UniqueID so the next boot generates
// a new one.
func EraseUniqueID(store storage.Store) error {
	err := store.Delete(uniqueIDNamespace, uniqueIDKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	return err
}
