// Package groups implements the Groups cluster (0x0004).
//
// The group table is kept per endpoint and persisted in the node store as
// CBOR so memberships survive a restart.
package groups

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/fxamacker/cbor/v2"

	"github.com/espressif/esp-matter-sub221/pkg/clusters"
	"github.com/espressif/esp-matter-sub221/pkg/datamodel"
	"github.com/espressif/esp-matter-sub221/pkg/storage"
	"github.com/espressif/esp-matter-sub221/pkg/tlv"
)

// Cluster constants.
const (
	ClusterID       datamodel.ClusterID = 0x0004
	ClusterRevision uint16              = 4
)

// Attribute IDs.
const (
	AttrNameSupport datamodel.AttributeID = 0x0000
)

// Command IDs. Responses share the id of their request.
const (
	CmdAddGroup              datamodel.CommandID = 0x00
	CmdViewGroup             datamodel.CommandID = 0x01
	CmdGetGroupMembership    datamodel.CommandID = 0x02
	CmdRemoveGroup           datamodel.CommandID = 0x03
	CmdRemoveAllGroups       datamodel.CommandID = 0x04
	CmdAddGroupIfIdentifying datamodel.CommandID = 0x05
)

// FeatureGroupNames stores group names. NameSupport mirrors it in bit 7.
const FeatureGroupNames uint32 = 1 << 0

const nameSupportBit uint8 = 0x80

// Status codes carried in the responses.
const (
	StatusSuccess           uint8 = 0x00
	StatusConstraintError   uint8 = 0x87
	StatusResourceExhausted uint8 = 0x89
	StatusNotFound          uint8 = 0x8B
)

// Table limits.
const (
	DefaultCapacity = 8
	MaxNameLength   = 16
)

const storeNamespace = "groups"

// Config holds the group table options.
type Config struct {
	// GroupNames enables the GN feature.
	GroupNames bool
	// Capacity limits the table. Zero uses DefaultCapacity.
	Capacity int
}

var pluginInit = clusters.Once(func() {})

// Group is one table entry.
type Group struct {
	ID   uint16 `cbor:"1,keyasint"`
	Name string `cbor:"2,keyasint,omitempty"`
}

type table struct {
	c        *datamodel.Cluster
	capacity int

	mu     sync.Mutex
	groups []Group
}

// Create adds the Groups cluster to ep.
func Create(ep *datamodel.Endpoint, cfg *Config, flags datamodel.ClusterFlags) (*datamodel.Cluster, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	var features uint32
	if cfg.GroupNames {
		features = FeatureGroupNames
	}
	c, err := clusters.Create(ep, clusters.Spec{
		ID:         ClusterID,
		Revision:   ClusterRevision,
		FeatureMap: features,
		PluginInit: pluginInit,
	}, flags)
	if err != nil {
		return nil, err
	}
	t := &table{c: c, capacity: cfg.Capacity}
	if t.capacity <= 0 {
		t.capacity = DefaultCapacity
	}
	if flags&datamodel.ClusterFlagServer != 0 {
		var support uint8
		if cfg.GroupNames {
			support = nameSupportBit
		}
		if err := clusters.CreateAttributes(c, clusters.Attr{ID: AttrNameSupport, Val: datamodel.Bitmap8(support)}); err != nil {
			return nil, clusters.Abort(c, err)
		}
		t.load()
	}
	if err := clusters.CreateCommands(c,
		clusters.Cmd{ID: CmdAddGroup, Flags: datamodel.CommandFlagAccepted, Callback: t.handleAdd(false)},
		clusters.Cmd{ID: CmdViewGroup, Flags: datamodel.CommandFlagAccepted, Callback: t.handleView},
		clusters.Cmd{ID: CmdGetGroupMembership, Flags: datamodel.CommandFlagAccepted, Callback: t.handleMembership},
		clusters.Cmd{ID: CmdRemoveGroup, Flags: datamodel.CommandFlagAccepted, Callback: t.handleRemove},
		clusters.Cmd{ID: CmdRemoveAllGroups, Flags: datamodel.CommandFlagAccepted, Callback: t.handleRemoveAll},
		clusters.Cmd{ID: CmdAddGroupIfIdentifying, Flags: datamodel.CommandFlagAccepted, Callback: t.handleAdd(true)},
		clusters.Cmd{ID: CmdAddGroup, Flags: datamodel.CommandFlagGenerated},
		clusters.Cmd{ID: CmdViewGroup, Flags: datamodel.CommandFlagGenerated},
		clusters.Cmd{ID: CmdGetGroupMembership, Flags: datamodel.CommandFlagGenerated},
		clusters.Cmd{ID: CmdRemoveGroup, Flags: datamodel.CommandFlagGenerated},
	); err != nil {
		return nil, clusters.Abort(c, err)
	}
	return c, nil
}

func (t *table) store() storage.Store { return t.c.Endpoint().Node().Store() }

func storeKey(id datamodel.EndpointID) string { return fmt.Sprintf("ep_%x", uint16(id)) }

func (t *table) key() string { return storeKey(t.c.EndpointID()) }

func (t *table) load() {
	s := t.store()
	if s == nil {
		return
	}
	b, err := s.Get(storeNamespace, t.key())
	if err != nil {
		return
	}
	var groups []Group
	if err := cbor.Unmarshal(b, &groups); err != nil {
		t.c.Endpoint().Node().LoggerFactory().NewLogger("cluster").Warnf("Groups table on endpoint 0x%04X: %v", uint16(t.c.EndpointID()), err)
		return
	}
	t.groups = groups
}

// save persists the table. t.mu must be held.
func (t *table) save() {
	s := t.store()
	if s == nil {
		return
	}
	if len(t.groups) == 0 {
		_ = s.Delete(storeNamespace, t.key())
		return
	}
	b, err := cbor.Marshal(t.groups)
	if err != nil {
		return
	}
	if err := s.Set(storeNamespace, t.key(), b); err != nil {
		t.c.Endpoint().Node().LoggerFactory().NewLogger("cluster").Warnf("Groups table not persisted: %v", err)
	}
}

// Groups returns the persisted group table of the endpoint c belongs to.
func Groups(c *datamodel.Cluster) []Group {
	s := c.Endpoint().Node().Store()
	if s == nil {
		return nil
	}
	b, err := s.Get(storeNamespace, storeKey(c.EndpointID()))
	if err != nil {
		return nil
	}
	var groups []Group
	if err := cbor.Unmarshal(b, &groups); err != nil {
		return nil
	}
	return groups
}

func (t *table) add(id uint16, name string) uint8 {
	if id == 0 || len(name) > MaxNameLength {
		return StatusConstraintError
	}
	if !clusters.HasFeature(t.c, FeatureGroupNames) {
		name = ""
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if i := t.index(id); i >= 0 {
		t.groups[i].Name = name
		t.save()
		return StatusSuccess
	}
	if len(t.groups) >= t.capacity {
		return StatusResourceExhausted
	}
	t.groups = append(t.groups, Group{ID: id, Name: name})
	t.save()
	return StatusSuccess
}

func (t *table) index(id uint16) int {
	return slices.IndexFunc(t.groups, func(g Group) bool { return g.ID == id })
}

func statusResponse(status uint8, id uint16) ([]byte, error) {
	return clusters.NewCommandEncoder().Uint(0, uint64(status)).Uint(1, uint64(id)).Finish()
}

func groupID(f clusters.Fields) (uint16, error) {
	v, err := f.Uint(0)
	if err != nil {
		return 0, err
	}
	if v > 0xFFFF {
		return 0, clusters.ErrInvalidRequest
	}
	return uint16(v), nil
}

func (t *table) handleAdd(ifIdentifying bool) datamodel.CommandCallback {
	return func(ctx context.Context, path datamodel.CommandPath, r *tlv.Reader, priv any) ([]byte, error) {
		f, err := clusters.DecodeFields(r)
		if err != nil {
			return nil, err
		}
		id, err := groupID(f)
		if err != nil {
			return nil, err
		}
		name, _ := f.String(1)
		if ifIdentifying {
			ident := t.c.Endpoint().Identify()
			if ident == nil || !ident.Active() {
				return nil, nil
			}
			t.add(id, name)
			return nil, nil
		}
		return statusResponse(t.add(id, name), id)
	}
}

func (t *table) handleView(ctx context.Context, path datamodel.CommandPath, r *tlv.Reader, priv any) ([]byte, error) {
	f, err := clusters.DecodeFields(r)
	if err != nil {
		return nil, err
	}
	id, err := groupID(f)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	i := t.index(id)
	var g Group
	if i >= 0 {
		g = t.groups[i]
	}
	t.mu.Unlock()
	if id == 0 {
		return statusResponse(StatusConstraintError, id)
	}
	if i < 0 {
		return statusResponse(StatusNotFound, id)
	}
	return clusters.NewCommandEncoder().Uint(0, uint64(StatusSuccess)).Uint(1, uint64(id)).String(2, g.Name).Finish()
}

func (t *table) handleMembership(ctx context.Context, path datamodel.CommandPath, r *tlv.Reader, priv any) ([]byte, error) {
	f, err := clusters.DecodeFields(r)
	if err != nil {
		return nil, err
	}
	want, err := f.UintList(0)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	var ids []uint64
	for _, g := range t.groups {
		if len(want) == 0 || slices.Contains(want, uint64(g.ID)) {
			ids = append(ids, uint64(g.ID))
		}
	}
	capacity := t.capacity - len(t.groups)
	t.mu.Unlock()
	return clusters.NewCommandEncoder().Uint(0, uint64(min(capacity, 0xFE))).Uints(1, ids...).Finish()
}

func (t *table) handleRemove(ctx context.Context, path datamodel.CommandPath, r *tlv.Reader, priv any) ([]byte, error) {
	f, err := clusters.DecodeFields(r)
	if err != nil {
		return nil, err
	}
	id, err := groupID(f)
	if err != nil {
		return nil, err
	}
	if id == 0 {
		return statusResponse(StatusConstraintError, id)
	}
	t.mu.Lock()
	i := t.index(id)
	if i >= 0 {
		t.groups = slices.Delete(t.groups, i, i+1)
		t.save()
	}
	t.mu.Unlock()
	if i < 0 {
		return statusResponse(StatusNotFound, id)
	}
	return statusResponse(StatusSuccess, id)
}

func (t *table) handleRemoveAll(ctx context.Context, path datamodel.CommandPath, r *tlv.Reader, priv any) ([]byte, error) {
	t.mu.Lock()
	t.groups = nil
	t.save()
	t.mu.Unlock()
	return nil, nil
}
