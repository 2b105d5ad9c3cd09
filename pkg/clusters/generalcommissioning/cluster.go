// Package generalcommissioning implements the General Commissioning cluster
// (0x0030).
//
// The cluster carries the breadcrumb and regulatory attributes on the root
// endpoint. Fail-safe arming and commissioning completion belong to the
// Matter stack, which the command handlers reach through FailSafeManager.
package generalcommissioning

import (
	"errors"

	"github.com/espressif/esp-matter-sub221/pkg/clusters"
	"github.com/espressif/esp-matter-sub221/pkg/datamodel"
)

// Cluster constants.
const (
	ClusterID       datamodel.ClusterID = 0x0030
	ClusterRevision uint16              = 1
)

// Attribute IDs.
const (
	AttrBreadcrumb                   datamodel.AttributeID = 0x0000
	AttrBasicCommissioningInfo       datamodel.AttributeID = 0x0001
	AttrRegulatoryConfig             datamodel.AttributeID = 0x0002
	AttrLocationCapability           datamodel.AttributeID = 0x0003
	AttrSupportsConcurrentConnection datamodel.AttributeID = 0x0004
)

// Command IDs.
const (
	CmdArmFailSafe                 datamodel.CommandID = 0x00
	CmdArmFailSafeResponse         datamodel.CommandID = 0x01
	CmdSetRegulatoryConfig         datamodel.CommandID = 0x02
	CmdSetRegulatoryConfigResponse datamodel.CommandID = 0x03
	CmdCommissioningComplete       datamodel.CommandID = 0x04
	CmdCommissioningCompleteResp   datamodel.CommandID = 0x05
)

// RegulatoryLocationType indicates the regulatory location type.
type RegulatoryLocationType uint8

const (
	RegulatoryIndoor        RegulatoryLocationType = 0
	RegulatoryOutdoor       RegulatoryLocationType = 1
	RegulatoryIndoorOutdoor RegulatoryLocationType = 2
)

// String returns the name of the regulatory location type.
func (r RegulatoryLocationType) String() string {
	switch r {
	case RegulatoryIndoor:
		return "Indoor"
	case RegulatoryOutdoor:
		return "Outdoor"
	case RegulatoryIndoorOutdoor:
		return "IndoorOutdoor"
	default:
		return "Unknown"
	}
}

// CommissioningErrorCode is the ErrorCode field of the command responses.
type CommissioningErrorCode uint8

const (
	CommissioningOK                    CommissioningErrorCode = 0
	CommissioningValueOutsideRange     CommissioningErrorCode = 1
	CommissioningInvalidAuthentication CommissioningErrorCode = 2
	CommissioningNoFailSafe            CommissioningErrorCode = 3
	CommissioningBusyWithOtherAdmin    CommissioningErrorCode = 4
)

// String returns the name of the commissioning error code.
func (c CommissioningErrorCode) String() string {
	switch c {
	case CommissioningOK:
		return "OK"
	case CommissioningValueOutsideRange:
		return "ValueOutsideRange"
	case CommissioningInvalidAuthentication:
		return "InvalidAuthentication"
	case CommissioningNoFailSafe:
		return "NoFailSafe"
	case CommissioningBusyWithOtherAdmin:
		return "BusyWithOtherAdmin"
	default:
		return "Unknown"
	}
}

// BasicCommissioningInfo holds the fail-safe timing constants.
type BasicCommissioningInfo struct {
	FailSafeExpiryLengthSeconds  uint16
	MaxCumulativeFailsafeSeconds uint16
}

// FailSafeManager is the stack's fail-safe context.
type FailSafeManager interface {
	// IsArmed reports whether the fail-safe timer is running.
	IsArmed() bool

	// ArmedFabricIndex returns the fabric that armed the fail-safe, or 0.
	ArmedFabricIndex() datamodel.FabricIndex

	// Arm starts the fail-safe timer.
	Arm(fabricIndex datamodel.FabricIndex, expirySeconds uint16) error

	// Disarm stops the fail-safe timer and rolls back pending changes.
	Disarm(fabricIndex datamodel.FabricIndex) error

	// ExtendArm restarts the running timer with a new expiry.
	ExtendArm(fabricIndex datamodel.FabricIndex, expirySeconds uint16) error

	// Complete commits the commissioning of fabricIndex.
	Complete(fabricIndex datamodel.FabricIndex) error
}

// CommissioningWindowManager reports the commissioning window state.
type CommissioningWindowManager interface {
	IsCommissioningWindowOpen() bool
}

// Config holds the attribute values and stack collaborators.
type Config struct {
	Breadcrumb                   uint64
	BasicCommissioningInfo       BasicCommissioningInfo
	RegulatoryConfig             RegulatoryLocationType
	LocationCapability           RegulatoryLocationType
	SupportsConcurrentConnection bool

	// FailSafe handles ArmFailSafe and CommissioningComplete. Without it
	// both commands succeed without side effects.
	FailSafe FailSafeManager

	// Window is optional. A nil window counts as closed.
	Window CommissioningWindowManager
}

// DefaultConfig returns the root endpoint defaults: a 60s fail-safe capped
// at 900s and an indoor/outdoor location capability.
func DefaultConfig() *Config {
	return &Config{
		BasicCommissioningInfo: BasicCommissioningInfo{
			FailSafeExpiryLengthSeconds:  60,
			MaxCumulativeFailsafeSeconds: 900,
		},
		RegulatoryConfig:             RegulatoryIndoorOutdoor,
		LocationCapability:           RegulatoryIndoorOutdoor,
		SupportsConcurrentConnection: true,
	}
}

// Errors a FailSafeManager may return.
var (
	ErrFailSafeNotArmed   = errors.New("generalcommissioning: fail-safe not armed")
	ErrBusyWithOtherAdmin = errors.New("generalcommissioning: busy with other admin")
)

var pluginInit = clusters.Once(func() {})

type server struct {
	c   *datamodel.Cluster
	cfg Config
}

// Create adds the General Commissioning cluster to ep.
func Create(ep *datamodel.Endpoint, cfg *Config, flags datamodel.ClusterFlags) (*datamodel.Cluster, error) {
	c, err := clusters.Create(ep, clusters.Spec{
		ID:         ClusterID,
		Revision:   ClusterRevision,
		PluginInit: pluginInit,
	}, flags)
	if err != nil {
		return nil, err
	}
	s := &server{c: c}
	if cfg != nil {
		s.cfg = *cfg
	}
	if flags&datamodel.ClusterFlagServer != 0 {
		if cfg == nil {
			ep.Node().LoggerFactory().NewLogger("cluster").Errorf("Config is NULL. Cannot add some attributes.")
		} else if err := clusters.CreateAttributes(c,
			clusters.Attr{ID: AttrBreadcrumb, Flags: datamodel.AttributeFlagWritable, Val: datamodel.Uint64(cfg.Breadcrumb)},
			clusters.Attr{ID: AttrBasicCommissioningInfo, Flags: datamodel.AttributeFlagManagedInternally, Val: datamodel.Array(nil)},
			clusters.Attr{ID: AttrRegulatoryConfig, Val: datamodel.Enum8(uint8(cfg.RegulatoryConfig))},
			clusters.Attr{ID: AttrLocationCapability, Val: datamodel.Enum8(uint8(cfg.LocationCapability))},
			clusters.Attr{ID: AttrSupportsConcurrentConnection, Val: datamodel.Bool(cfg.SupportsConcurrentConnection)},
		); err != nil {
			return nil, clusters.Abort(c, err)
		}
		c.SetAddBoundsCallback(addBounds)
		c.SetAttributeProvider(s.read)
	}
	if err := clusters.CreateCommands(c,
		clusters.Cmd{ID: CmdArmFailSafe, Flags: datamodel.CommandFlagAccepted, Callback: s.handleArmFailSafe},
		clusters.Cmd{ID: CmdSetRegulatoryConfig, Flags: datamodel.CommandFlagAccepted, Callback: s.handleSetRegulatoryConfig},
		clusters.Cmd{ID: CmdCommissioningComplete, Flags: datamodel.CommandFlagAccepted, Callback: s.handleCommissioningComplete},
		clusters.Cmd{ID: CmdArmFailSafeResponse, Flags: datamodel.CommandFlagGenerated},
		clusters.Cmd{ID: CmdSetRegulatoryConfigResponse, Flags: datamodel.CommandFlagGenerated},
		clusters.Cmd{ID: CmdCommissioningCompleteResp, Flags: datamodel.CommandFlagGenerated},
	); err != nil {
		return nil, clusters.Abort(c, err)
	}
	return c, nil
}

func addBounds(c *datamodel.Cluster) {
	if a := c.Attribute(AttrRegulatoryConfig); a != nil {
		_ = a.AddBounds(datamodel.Enum8(uint8(RegulatoryIndoor)), datamodel.Enum8(uint8(RegulatoryIndoorOutdoor)))
	}
}

// Breadcrumb returns the Breadcrumb attribute of c.
func Breadcrumb(c *datamodel.Cluster) uint64 {
	return clusters.Get(c, AttrBreadcrumb).Uint()
}

// RegulatoryConfig returns the RegulatoryConfig attribute of c.
func RegulatoryConfig(c *datamodel.Cluster) RegulatoryLocationType {
	return RegulatoryLocationType(clusters.Get(c, AttrRegulatoryConfig).Uint())
}
