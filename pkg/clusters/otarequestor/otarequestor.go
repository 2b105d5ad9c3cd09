// Package otarequestor implements the OTA Software Update Requestor cluster
// (0x002A).
//
// The cluster mirrors the requestor state machine in UpdateState and
// UpdateStateProgress and hands AnnounceOTAProvider to a Requestor.
package otarequestor

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/espressif/esp-matter-sub221/pkg/clusters"
	"github.com/espressif/esp-matter-sub221/pkg/datamodel"
	"github.com/espressif/esp-matter-sub221/pkg/tlv"
)

// Cluster constants.
const (
	ClusterID       datamodel.ClusterID = 0x002A
	ClusterRevision uint16              = 1
)

// Attribute IDs.
const (
	AttrDefaultOTAProviders datamodel.AttributeID = 0x0000
	AttrUpdatePossible      datamodel.AttributeID = 0x0001
	AttrUpdateState         datamodel.AttributeID = 0x0002
	AttrUpdateStateProgress datamodel.AttributeID = 0x0003
)

// CmdAnnounceOTAProvider is the only accepted command.
const CmdAnnounceOTAProvider datamodel.CommandID = 0x00

// Event IDs.
const (
	EventStateTransition datamodel.EventID = 0x00
	EventVersionApplied  datamodel.EventID = 0x01
	EventDownloadError   datamodel.EventID = 0x02
)

// UpdateState mirrors the requestor state machine.
type UpdateState uint8

const (
	StateUnknown              UpdateState = 0
	StateIdle                 UpdateState = 1
	StateQuerying             UpdateState = 2
	StateDelayedOnQuery       UpdateState = 3
	StateDownloading          UpdateState = 4
	StateApplying             UpdateState = 5
	StateDelayedOnApply       UpdateState = 6
	StateRollingBack          UpdateState = 7
	StateDelayedOnUserConsent UpdateState = 8
)

var stateNames = [...]string{
	"Unknown", "Idle", "Querying", "DelayedOnQuery", "Downloading",
	"Applying", "DelayedOnApply", "RollingBack", "DelayedOnUserConsent",
}

func (s UpdateState) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("UpdateState(%d)", uint8(s))
}

// ChangeReason is the reason field of the StateTransition event.
type ChangeReason uint8

const (
	ReasonUnknown         ChangeReason = 0
	ReasonSuccess         ChangeReason = 1
	ReasonFailure         ChangeReason = 2
	ReasonTimeOut         ChangeReason = 3
	ReasonDelayByProvider ChangeReason = 4
)

// AnnouncementReason is the reason field of AnnounceOTAProvider.
type AnnouncementReason uint8

const (
	AnnouncementSimple          AnnouncementReason = 0
	AnnouncementUpdateAvailable AnnouncementReason = 1
	AnnouncementUrgentUpdate    AnnouncementReason = 2
)

const (
	maxMetadataForNode = 512
	fabricIndexTag     = 0xFE
)

// ProviderLocation identifies an OTA provider on a fabric.
type ProviderLocation struct {
	NodeID      uint64
	Endpoint    datamodel.EndpointID
	FabricIndex datamodel.FabricIndex
}

// Announcement is a decoded AnnounceOTAProvider command.
type Announcement struct {
	Provider        ProviderLocation
	VendorID        uint16
	Reason          AnnouncementReason
	MetadataForNode []byte
}

// Requestor receives provider announcements. The ota package implements
// it.
type Requestor interface {
	AnnounceProvider(ctx context.Context, a Announcement) error
	DefaultProviders() []ProviderLocation
}

// Config holds the initial attribute values.
type Config struct {
	UpdatePossible bool
	UpdateState    UpdateState
	// Requestor is optional and may be set later with SetRequestor.
	Requestor Requestor
}

// DefaultConfig returns the values used on the root endpoint.
func DefaultConfig() *Config {
	return &Config{UpdatePossible: true, UpdateState: StateIdle}
}

// ErrNoRequestor is returned by AnnounceOTAProvider before a Requestor is
// attached.
var ErrNoRequestor = errors.New("otarequestor: no requestor attached")

var pluginInit = clusters.Once(func() {})

// Create adds the OTA Software Update Requestor cluster to ep. The
// Requestor from cfg is stored as the cluster delegate.
func Create(ep *datamodel.Endpoint, cfg *Config, flags datamodel.ClusterFlags) (*datamodel.Cluster, error) {
	c, err := clusters.Create(ep, clusters.Spec{
		ID:         ClusterID,
		Revision:   ClusterRevision,
		PluginInit: pluginInit,
	}, flags)
	if err != nil {
		return nil, err
	}
	if cfg != nil && cfg.Requestor != nil {
		SetRequestor(c, cfg.Requestor)
	}
	if flags&datamodel.ClusterFlagServer != 0 {
		if cfg == nil {
			ep.Node().LoggerFactory().NewLogger("cluster").Errorf("Config is NULL. Cannot add some attributes.")
		} else if err := clusters.CreateAttributes(c,
			clusters.Attr{
				ID:    AttrDefaultOTAProviders,
				Flags: datamodel.AttributeFlagManagedInternally | datamodel.AttributeFlagWritable,
				Val:   datamodel.Array(nil),
			},
			clusters.Attr{ID: AttrUpdatePossible, Val: datamodel.Bool(cfg.UpdatePossible)},
			clusters.Attr{ID: AttrUpdateState, Val: datamodel.Enum8(uint8(cfg.UpdateState))},
			clusters.Attr{ID: AttrUpdateStateProgress, Flags: datamodel.AttributeFlagNullable, Val: datamodel.NullUint8()},
		); err != nil {
			return nil, clusters.Abort(c, err)
		}
		c.SetAttributeProvider(func(ctx context.Context, path datamodel.AttributePath, w *tlv.Writer, tag tlv.Tag) error {
			return readProviders(ctx, c, path, w, tag)
		})
		if err := clusters.CreateEvents(c, EventStateTransition, EventVersionApplied, EventDownloadError); err != nil {
			return nil, clusters.Abort(c, err)
		}
	}
	if err := clusters.CreateCommands(c, clusters.Cmd{
		ID: CmdAnnounceOTAProvider, Flags: datamodel.CommandFlagAccepted, Callback: handleAnnounce(c),
	}); err != nil {
		return nil, clusters.Abort(c, err)
	}
	return c, nil
}

// SetRequestor attaches r to c as its delegate.
func SetRequestor(c *datamodel.Cluster, r Requestor) {
	c.SetDelegateAndInitCallback(nil, r)
}

func requestor(c *datamodel.Cluster) Requestor {
	d, _ := c.Delegate()
	r, _ := d.(Requestor)
	return r
}

func readProviders(ctx context.Context, c *datamodel.Cluster, path datamodel.AttributePath, w *tlv.Writer, tag tlv.Tag) error {
	if path.Attribute != AttrDefaultOTAProviders {
		return datamodel.ErrUnsupportedRead
	}
	var providers []ProviderLocation
	if r := requestor(c); r != nil {
		providers = r.DefaultProviders()
	}
	fabricIndex := datamodel.FabricIndexFromContext(ctx)
	if err := w.StartArray(tag); err != nil {
		return err
	}
	for _, p := range providers {
		if fabricIndex != 0 && p.FabricIndex != fabricIndex {
			continue
		}
		if err := writeProvider(w, p); err != nil {
			return err
		}
	}
	return w.EndContainer()
}

func writeProvider(w *tlv.Writer, p ProviderLocation) error {
	if err := w.StartStructure(tlv.Anonymous()); err != nil {
		return err
	}
	if err := w.PutUint(tlv.ContextTag(1), p.NodeID); err != nil {
		return err
	}
	if err := w.PutUint(tlv.ContextTag(2), uint64(p.Endpoint)); err != nil {
		return err
	}
	if err := w.PutUint(tlv.ContextTag(fabricIndexTag), uint64(p.FabricIndex)); err != nil {
		return err
	}
	return w.EndContainer()
}

func handleAnnounce(c *datamodel.Cluster) datamodel.CommandCallback {
	return func(ctx context.Context, path datamodel.CommandPath, r *tlv.Reader, priv any) ([]byte, error) {
		return announce(ctx, c, r)
	}
}

func announce(ctx context.Context, c *datamodel.Cluster, r *tlv.Reader) ([]byte, error) {
	f, err := clusters.DecodeFields(r)
	if err != nil {
		return nil, err
	}
	nodeID, err := f.Uint(0)
	if err != nil {
		return nil, err
	}
	vendorID, err := f.Uint(1)
	if err != nil {
		return nil, err
	}
	reason, err := f.Uint(2)
	if err != nil {
		return nil, err
	}
	endpoint, err := f.Uint(4)
	if err != nil {
		return nil, err
	}
	metadata, _ := f.Bytes(3)
	if vendorID > 0xFFFF || endpoint > 0xFFFE || reason > uint64(AnnouncementUrgentUpdate) || len(metadata) > maxMetadataForNode {
		return nil, clusters.ErrInvalidRequest
	}
	req := requestor(c)
	if req == nil {
		return nil, ErrNoRequestor
	}
	return nil, req.AnnounceProvider(ctx, Announcement{
		Provider: ProviderLocation{
			NodeID:      nodeID,
			Endpoint:    datamodel.EndpointID(endpoint),
			FabricIndex: datamodel.FabricIndexFromContext(ctx),
		},
		VendorID:        uint16(vendorID),
		Reason:          AnnouncementReason(reason),
		MetadataForNode: metadata,
	})
}

// SetUpdateState mirrors the requestor state into c. progress is the
// download percentage, or negative for null. Progress is only meaningful
// while downloading and reads null in every other state.
func SetUpdateState(c *datamodel.Cluster, state UpdateState, progress int) error {
	if err := clusters.Set(c, AttrUpdateState, datamodel.Enum8(uint8(state))); err != nil {
		return err
	}
	p := datamodel.NullUint8()
	if state == StateDownloading && progress >= 0 {
		p = datamodel.NullableUint8(uint8(min(progress, 100)))
	}
	return clusters.Set(c, AttrUpdateStateProgress, p)
}

// SetUpdatePossible sets the UpdatePossible attribute of c.
func SetUpdatePossible(c *datamodel.Cluster, possible bool) error {
	return clusters.Set(c, AttrUpdatePossible, datamodel.Bool(possible))
}

// State returns the UpdateState attribute of c.
func State(c *datamodel.Cluster) UpdateState {
	return UpdateState(clusters.Get(c, AttrUpdateState).Uint())
}

// StateTransitionEvent is the StateTransition payload.
type StateTransitionEvent struct {
	PreviousState UpdateState
	NewState      UpdateState
	Reason        ChangeReason
	// TargetSoftwareVersion is nil when unknown.
	TargetSoftwareVersion *uint32
}

// MarshalTLV encodes the event payload.
func (e StateTransitionEvent) MarshalTLV(w *tlv.Writer) error {
	if err := w.StartStructure(tlv.Anonymous()); err != nil {
		return err
	}
	if err := w.PutUint(tlv.ContextTag(0), uint64(e.PreviousState)); err != nil {
		return err
	}
	if err := w.PutUint(tlv.ContextTag(1), uint64(e.NewState)); err != nil {
		return err
	}
	if err := w.PutUint(tlv.ContextTag(2), uint64(e.Reason)); err != nil {
		return err
	}
	var err error
	if e.TargetSoftwareVersion != nil {
		err = w.PutUint(tlv.ContextTag(3), uint64(*e.TargetSoftwareVersion))
	} else {
		err = w.PutNull(tlv.ContextTag(3))
	}
	if err != nil {
		return err
	}
	return w.EndContainer()
}

// EmitStateTransition sends a StateTransition event for c to sink.
func EmitStateTransition(sink clusters.EventSink, c *datamodel.Cluster, ev StateTransitionEvent) error {
	var buf bytes.Buffer
	if err := ev.MarshalTLV(tlv.NewWriter(&buf)); err != nil {
		return err
	}
	return clusters.Emit(sink, c, EventStateTransition, buf.Bytes())
}

// EmitVersionApplied sends a VersionApplied event for c to sink.
func EmitVersionApplied(sink clusters.EventSink, c *datamodel.Cluster, softwareVersion uint32, productID uint16) error {
	payload, err := clusters.NewCommandEncoder().Uint(0, uint64(softwareVersion)).Uint(1, uint64(productID)).Finish()
	if err != nil {
		return err
	}
	return clusters.Emit(sink, c, EventVersionApplied, payload)
}

// EmitDownloadError sends a DownloadError event for c to sink.
// progress is negative for null.
func EmitDownloadError(sink clusters.EventSink, c *datamodel.Cluster, softwareVersion uint32, bytesDownloaded uint64, progress int) error {
	e := clusters.NewCommandEncoder().Uint(0, uint64(softwareVersion)).Uint(1, bytesDownloaded)
	if progress >= 0 {
		e.Uint(2, uint64(min(progress, 100)))
	} else {
		e.Null(2)
	}
	payload, err := e.Null(3).Finish()
	if err != nil {
		return err
	}
	return clusters.Emit(sink, c, EventDownloadError, payload)
}
