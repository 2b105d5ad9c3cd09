package matter

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pion/logging"
	piontransport "github.com/pion/transport/v3"

	"github.com/espressif/esp-matter-sub221/pkg/clusters"
	"github.com/espressif/esp-matter-sub221/pkg/commissioning"
	"github.com/espressif/esp-matter-sub221/pkg/datamodel"
	"github.com/espressif/esp-matter-sub221/pkg/discovery"
	"github.com/espressif/esp-matter-sub221/pkg/ota"
	"github.com/espressif/esp-matter-sub221/pkg/storage"
	"github.com/espressif/esp-matter-sub221/pkg/transport"
)

// DefaultPort is the default Matter port.
const DefaultPort = transport.DefaultPort

// Defaults applied by NewNode.
const (
	DefaultDiscoveryCapabilities = commissioning.RendezvousOnNetwork
	DefaultDeviceName            = "ESP Matter"
)

// NodeConfig holds all configuration for a Node. The fields tagged for
// TOML can be loaded with LoadConfig; the rest are runtime collaborators.
type NodeConfig struct {
	// Identity - Required
	VendorID  uint16 `toml:"vendor_id"`
	ProductID uint16 `toml:"product_id"`

	// Device Information - Optional
	DeviceName            string `toml:"device_name"` // max 32 chars, advertised as DN
	VendorName            string `toml:"vendor_name"`
	ProductName           string `toml:"product_name"`
	SerialNumber          string `toml:"serial_number"`
	HardwareVersion       uint16 `toml:"hardware_version"`
	HardwareVersionString string `toml:"hardware_version_string"`
	SoftwareVersion       uint32 `toml:"software_version"`
	SoftwareVersionString string `toml:"software_version_string"`

	// DeviceType is advertised as DT. Zero uses the first device type of
	// the first application endpoint.
	DeviceType uint32 `toml:"device_type"`

	// Network
	Port          int    `toml:"port"`           // default: 5540
	ListenAddress string `toml:"listen_address"` // default: ":<Port>"

	// Commissioning
	Discriminator         uint16                          `toml:"discriminator"`
	Passcode              uint32                          `toml:"passcode"`
	DiscoveryCapabilities commissioning.RendezvousFlags   `toml:"discovery_capabilities"`
	CommissioningFlow     commissioning.CommissioningFlow `toml:"commissioning_flow"`
	// CommissioningTimeout is the window opened on an uncommissioned
	// start. Default: commissioning.DefaultWindowTimeout.
	CommissioningTimeout time.Duration `toml:"commissioning_timeout"`

	// Data model
	EnableOTARequestor  bool `toml:"enable_ota_requestor"`
	MaxDynamicEndpoints int  `toml:"max_dynamic_endpoints"`

	// Storage - Required
	Storage storage.Store `toml:"-"`

	// DataModel is used instead of a fresh node when set. Its root
	// endpoint is created unless endpoint 0 already exists.
	DataModel *datamodel.Node    `toml:"-"`
	Reporter  datamodel.Reporter `toml:"-"`

	// EventSink receives cluster events such as Basic Information StartUp.
	EventSink clusters.EventSink `toml:"-"`

	// PacketHandler receives datagrams on the operational port. The
	// message layer lives in the stack; without a handler they are
	// dropped.
	PacketHandler transport.PacketHandler `toml:"-"`

	// OTARequestor, when set, runs its periodic query loop while the node
	// is started.
	OTARequestor *ota.Requestor `toml:"-"`

	// Callbacks - Optional
	OnEvent func(DeviceEvent) `toml:"-"`
	// Restart is invoked after a factory reset.
	Restart func() `toml:"-"`

	// Advanced - Internal use / Testing
	Network       piontransport.Net           `toml:"-"` // defaults to the host network
	ServerFactory discovery.MDNSServerFactory `toml:"-"`
	LoggerFactory logging.LoggerFactory       `toml:"-"`
}

// Validate checks the configuration for errors.
func (c *NodeConfig) Validate() error {
	if c.Storage == nil {
		return ErrStorageRequired
	}

	if c.VendorID == 0 {
		return ErrInvalidVendorID
	}

	if c.ProductID == 0 {
		return ErrInvalidProductID
	}

	if c.Discriminator > commissioning.MaxDiscriminator {
		return ErrInvalidDiscriminator
	}

	if !IsValidPasscode(c.Passcode) {
		return ErrInvalidPasscode
	}

	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d", ErrInvalidConfig, c.Port)
	}

	if c.CommissioningFlow > commissioning.FlowCustom {
		return fmt.Errorf("%w: commissioning flow %d", ErrInvalidConfig, c.CommissioningFlow)
	}

	if c.CommissioningTimeout < 0 || c.CommissioningTimeout > commissioning.MaxWindowTimeout {
		return fmt.Errorf("%w: commissioning timeout %s", ErrInvalidConfig, c.CommissioningTimeout)
	}

	return nil
}

// applyDefaults fills in default values for unset fields.
func (c *NodeConfig) applyDefaults() {
	if c.Port == 0 {
		c.Port = DefaultPort
	}

	if c.ListenAddress == "" {
		c.ListenAddress = fmt.Sprintf(":%d", c.Port)
	}

	if c.DiscoveryCapabilities == commissioning.RendezvousNone {
		c.DiscoveryCapabilities = DefaultDiscoveryCapabilities
	}

	if c.CommissioningTimeout == 0 {
		c.CommissioningTimeout = commissioning.DefaultWindowTimeout
	}

	if c.DeviceName == "" {
		c.DeviceName = DefaultDeviceName
	}

	// Truncate device name to the DN record limit
	if len(c.DeviceName) > discovery.MaxDeviceNameLength {
		c.DeviceName = c.DeviceName[:discovery.MaxDeviceNameLength]
	}

	if c.LoggerFactory == nil {
		c.LoggerFactory = logging.NewDefaultLoggerFactory()
	}
}

// LoadConfig decodes the TOML fields of a NodeConfig from path onto cfg.
// Keys absent from the file keep their current values; runtime
// collaborators such as Storage are left for the caller to fill in.
func LoadConfig(path string, cfg *NodeConfig) error {
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("matter: load config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("%w: unknown keys %v in %s", ErrInvalidConfig, undecoded, path)
	}
	return nil
}
