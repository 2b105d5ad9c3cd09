// Package binding implements the Binding cluster (0x001E).
//
// The binding table is fabric scoped and persisted in the node store.
// Reads are served from the table; the commissioner's writes arrive
// through SetBindings, which replaces the entries of one fabric.
package binding

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/fxamacker/cbor/v2"

	"github.com/espressif/esp-matter-sub221/pkg/clusters"
	"github.com/espressif/esp-matter-sub221/pkg/datamodel"
	"github.com/espressif/esp-matter-sub221/pkg/tlv"
)

// Cluster constants.
const (
	ClusterID       datamodel.ClusterID = 0x001E
	ClusterRevision uint16              = 1
)

// AttrBinding is the binding list.
const AttrBinding datamodel.AttributeID = 0x0000

// DefaultCapacity is the binding table size across all fabrics.
const DefaultCapacity = 10

const (
	storeNamespace = "binding"
	fabricIndexTag = 0xFE
)

// Errors returned by SetBindings.
var (
	ErrInvalidTarget     = errors.New("binding: target needs a group or a node and endpoint")
	ErrResourceExhausted = errors.New("binding: table full")
)

// Target is one binding entry. A group binding sets Group; a unicast
// binding sets Node and Endpoint. Cluster optionally restricts the
// binding to one cluster.
type Target struct {
	Node        *uint64               `cbor:"1,keyasint,omitempty"`
	Group       *uint16               `cbor:"2,keyasint,omitempty"`
	Endpoint    *uint16               `cbor:"3,keyasint,omitempty"`
	Cluster     *uint32               `cbor:"4,keyasint,omitempty"`
	FabricIndex datamodel.FabricIndex `cbor:"5,keyasint"`
}

func (t Target) validate() error {
	if t.Group != nil {
		if t.Node != nil || t.Endpoint != nil || *t.Group == 0 {
			return ErrInvalidTarget
		}
		return nil
	}
	if t.Node == nil || t.Endpoint == nil || *t.Endpoint == 0xFFFF {
		return ErrInvalidTarget
	}
	return nil
}

// Config holds the table capacity and change notification.
type Config struct {
	Capacity int
	// OnChange is called with the whole table after every change.
	OnChange func(ep datamodel.EndpointID, targets []Target)
}

type table struct {
	c   *datamodel.Cluster
	cfg Config

	mu      sync.Mutex
	targets []Target
}

var pluginInit = clusters.Once(func() {})

// Create adds the Binding cluster to ep.
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
	t := &table{c: c}
	if cfg != nil {
		t.cfg = *cfg
	}
	if t.cfg.Capacity <= 0 {
		t.cfg.Capacity = DefaultCapacity
	}
	t.load()
	c.SetDelegateAndInitCallback(nil, t)
	if err := clusters.CreateAttributes(c, clusters.Attr{
		ID:    AttrBinding,
		Flags: datamodel.AttributeFlagManagedInternally | datamodel.AttributeFlagWritable | datamodel.AttributeFlagNonvolatile,
		Val:   datamodel.Array(nil),
	}); err != nil {
		return nil, clusters.Abort(c, err)
	}
	c.SetAttributeProvider(t.read)
	return c, nil
}

func delegate(c *datamodel.Cluster) *table {
	d, _ := c.Delegate()
	t, _ := d.(*table)
	return t
}

func (t *table) key() string { return fmt.Sprintf("ep_%x", uint16(t.c.EndpointID())) }

func (t *table) load() {
	s := t.c.Endpoint().Node().Store()
	if s == nil {
		return
	}
	b, err := s.Get(storeNamespace, t.key())
	if err != nil {
		return
	}
	if err := cbor.Unmarshal(b, &t.targets); err != nil {
		t.c.Endpoint().Node().LoggerFactory().NewLogger("cluster").Warnf("Binding table on endpoint 0x%04X: %v", uint16(t.c.EndpointID()), err)
		t.targets = nil
	}
}

// save persists the table. t.mu must be held.
func (t *table) save() {
	s := t.c.Endpoint().Node().Store()
	if s == nil {
		return
	}
	if len(t.targets) == 0 {
		_ = s.Delete(storeNamespace, t.key())
		return
	}
	b, err := cbor.Marshal(t.targets)
	if err != nil {
		return
	}
	if err := s.Set(storeNamespace, t.key(), b); err != nil {
		t.c.Endpoint().Node().LoggerFactory().NewLogger("cluster").Warnf("Binding table not persisted: %v", err)
	}
}

func (t *table) read(ctx context.Context, path datamodel.AttributePath, w *tlv.Writer, tag tlv.Tag) error {
	if path.Attribute != AttrBinding {
		return datamodel.ErrUnsupportedRead
	}
	fabricIndex := datamodel.FabricIndexFromContext(ctx)
	t.mu.Lock()
	targets := slices.Clone(t.targets)
	t.mu.Unlock()
	if err := w.StartArray(tag); err != nil {
		return err
	}
	for _, target := range targets {
		if fabricIndex != 0 && target.FabricIndex != fabricIndex {
			continue
		}
		if err := writeTarget(w, target); err != nil {
			return err
		}
	}
	return w.EndContainer()
}

func writeTarget(w *tlv.Writer, t Target) error {
	if err := w.StartStructure(tlv.Anonymous()); err != nil {
		return err
	}
	if t.Node != nil {
		if err := w.PutUint(tlv.ContextTag(1), *t.Node); err != nil {
			return err
		}
	}
	if t.Group != nil {
		if err := w.PutUint(tlv.ContextTag(2), uint64(*t.Group)); err != nil {
			return err
		}
	}
	if t.Endpoint != nil {
		if err := w.PutUint(tlv.ContextTag(3), uint64(*t.Endpoint)); err != nil {
			return err
		}
	}
	if t.Cluster != nil {
		if err := w.PutUint(tlv.ContextTag(4), uint64(*t.Cluster)); err != nil {
			return err
		}
	}
	if err := w.PutUint(tlv.ContextTag(fabricIndexTag), uint64(t.FabricIndex)); err != nil {
		return err
	}
	return w.EndContainer()
}

// SetBindings replaces the entries of fabricIndex with targets. The
// FabricIndex of each target is overwritten.
func SetBindings(c *datamodel.Cluster, fabricIndex datamodel.FabricIndex, targets []Target) error {
	t := delegate(c)
	if t == nil {
		return fmt.Errorf("%w: binding server", datamodel.ErrClusterNotFound)
	}
	for _, target := range targets {
		if err := target.validate(); err != nil {
			return err
		}
	}
	t.mu.Lock()
	kept := slices.DeleteFunc(slices.Clone(t.targets), func(e Target) bool { return e.FabricIndex == fabricIndex })
	if len(kept)+len(targets) > t.cfg.Capacity {
		t.mu.Unlock()
		return ErrResourceExhausted
	}
	for _, target := range targets {
		target.FabricIndex = fabricIndex
		kept = append(kept, target)
	}
	t.targets = kept
	t.save()
	snapshot := slices.Clone(t.targets)
	t.mu.Unlock()

	c.IncreaseDataVersion()
	if t.cfg.OnChange != nil {
		t.cfg.OnChange(c.EndpointID(), snapshot)
	}
	return nil
}

// RemoveFabric drops the entries of fabricIndex, as when the fabric is
// removed from the node.
func RemoveFabric(c *datamodel.Cluster, fabricIndex datamodel.FabricIndex) error {
	return SetBindings(c, fabricIndex, nil)
}

// Bindings returns a copy of the binding table.
func Bindings(c *datamodel.Cluster) []Target {
	t := delegate(c)
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.targets)
}
