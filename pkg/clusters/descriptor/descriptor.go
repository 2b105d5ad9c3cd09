// Package descriptor implements the Descriptor cluster (0x001D). Its list
// attributes are managed internally and computed from the node on every
// read.
package descriptor

import (
	"context"

	"github.com/espressif/esp-matter-sub221/pkg/clusters"
	"github.com/espressif/esp-matter-sub221/pkg/datamodel"
	"github.com/espressif/esp-matter-sub221/pkg/tlv"
)

// Cluster constants.
const (
	ClusterID       datamodel.ClusterID = 0x001D
	ClusterRevision uint16              = 2
)

// Attribute IDs.
const (
	AttrDeviceTypeList datamodel.AttributeID = 0x0000
	AttrServerList     datamodel.AttributeID = 0x0001
	AttrClientList     datamodel.AttributeID = 0x0002
	AttrPartsList      datamodel.AttributeID = 0x0003
	AttrTagList        datamodel.AttributeID = 0x0004
)

// FeatureTagList advertises the TagList attribute.
const FeatureTagList uint32 = 1 << 0

// Config configures the Descriptor cluster. It has no settable attributes.
type Config struct{}

var pluginInit = clusters.Once(func() {})

// Create adds the Descriptor cluster to ep.
func Create(ep *datamodel.Endpoint, _ *Config, flags datamodel.ClusterFlags) (*datamodel.Cluster, error) {
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
	internal := datamodel.AttributeFlagManagedInternally
	if err := clusters.CreateAttributes(c,
		clusters.Attr{ID: AttrDeviceTypeList, Flags: internal, Val: datamodel.Array(nil)},
		clusters.Attr{ID: AttrServerList, Flags: internal, Val: datamodel.Array(nil)},
		clusters.Attr{ID: AttrClientList, Flags: internal, Val: datamodel.Array(nil)},
		clusters.Attr{ID: AttrPartsList, Flags: internal, Val: datamodel.Array(nil)},
	); err != nil {
		return nil, err
	}
	c.SetAttributeProvider(func(ctx context.Context, path datamodel.AttributePath, w *tlv.Writer, tag tlv.Tag) error {
		return read(ep, path.Attribute, w, tag)
	})
	return c, nil
}

// FeatureTagListAdd adds the TagList attribute. The tags come from
// Endpoint.SetSemanticTags.
func FeatureTagListAdd(c *datamodel.Cluster) error {
	if err := clusters.AddFeature(c, FeatureTagList); err != nil {
		return err
	}
	return clusters.CreateAttributes(c, clusters.Attr{
		ID: AttrTagList, Flags: datamodel.AttributeFlagManagedInternally, Val: datamodel.Array(nil),
	})
}

func read(ep *datamodel.Endpoint, id datamodel.AttributeID, w *tlv.Writer, tag tlv.Tag) error {
	switch id {
	case AttrDeviceTypeList:
		return writeDeviceTypes(w, tag, ep.DeviceTypes())
	case AttrServerList:
		return writeIDs(w, tag, toUint(ep.ServerClusters()))
	case AttrClientList:
		return writeIDs(w, tag, toUint(ep.ClientClusters()))
	case AttrPartsList:
		return writeIDs(w, tag, PartsList(ep))
	case AttrTagList:
		return writeTags(w, tag, ep.SemanticTags())
	}
	return datamodel.ErrUnsupportedRead
}

// PartsList computes the PartsList of ep. The root endpoint lists every
// other endpoint. Full-family endpoints list all descendants and tree
// endpoints list their direct children.
func PartsList(ep *datamodel.Endpoint) []uint64 {
	all := ep.Node().Endpoints()
	var ids []uint64
	if ep.ID() == 0 {
		for _, e := range all {
			if e.ID() != 0 && e.IsEnabled() {
				ids = append(ids, uint64(e.ID()))
			}
		}
		return ids
	}
	parents := make(map[datamodel.EndpointID]datamodel.EndpointID, len(all))
	for _, e := range all {
		parents[e.ID()] = e.ParentEndpointID()
	}
	for _, e := range all {
		if e.ID() == ep.ID() || !e.IsEnabled() {
			continue
		}
		switch ep.CompositionPattern() {
		case datamodel.CompositionTree:
			if parents[e.ID()] == ep.ID() {
				ids = append(ids, uint64(e.ID()))
			}
		default:
			if isDescendant(e.ID(), ep.ID(), parents) {
				ids = append(ids, uint64(e.ID()))
			}
		}
	}
	return ids
}

// isDescendant walks the parent chain of child looking for ancestor.
func isDescendant(child, ancestor datamodel.EndpointID, parents map[datamodel.EndpointID]datamodel.EndpointID) bool {
	seen := map[datamodel.EndpointID]bool{}
	for cur := parents[child]; cur != datamodel.InvalidEndpointID && !seen[cur]; cur = parents[cur] {
		if cur == ancestor {
			return true
		}
		seen[cur] = true
	}
	return false
}

func toUint(ids []datamodel.ClusterID) []uint64 {
	out := make([]uint64, len(ids))
	for i, id := range ids {
		out[i] = uint64(id)
	}
	return out
}

func writeIDs(w *tlv.Writer, tag tlv.Tag, ids []uint64) error {
	if err := w.StartArray(tag); err != nil {
		return err
	}
	for _, id := range ids {
		if err := w.PutUint(tlv.Anonymous(), id); err != nil {
			return err
		}
	}
	return w.EndContainer()
}

func writeDeviceTypes(w *tlv.Writer, tag tlv.Tag, dts []datamodel.DeviceType) error {
	if err := w.StartArray(tag); err != nil {
		return err
	}
	for _, dt := range dts {
		if err := w.StartStructure(tlv.Anonymous()); err != nil {
			return err
		}
		if err := w.PutUint(tlv.ContextTag(0), uint64(dt.ID)); err != nil {
			return err
		}
		if err := w.PutUint(tlv.ContextTag(1), uint64(dt.Revision)); err != nil {
			return err
		}
		if err := w.EndContainer(); err != nil {
			return err
		}
	}
	return w.EndContainer()
}

func writeTags(w *tlv.Writer, tag tlv.Tag, tags []datamodel.SemanticTag) error {
	if err := w.StartArray(tag); err != nil {
		return err
	}
	for _, st := range tags {
		if err := w.StartStructure(tlv.Anonymous()); err != nil {
			return err
		}
		var err error
		if st.MfgCode == datamodel.NullMfgCode {
			err = w.PutNull(tlv.ContextTag(0))
		} else {
			err = w.PutUint(tlv.ContextTag(0), uint64(st.MfgCode))
		}
		if err != nil {
			return err
		}
		if err := w.PutUint(tlv.ContextTag(1), uint64(st.NamespaceID)); err != nil {
			return err
		}
		if err := w.PutUint(tlv.ContextTag(2), uint64(st.Tag)); err != nil {
			return err
		}
		if st.Label != "" {
			if err := w.PutString(tlv.ContextTag(3), st.Label); err != nil {
				return err
			}
		}
		if err := w.EndContainer(); err != nil {
			return err
		}
	}
	return w.EndContainer()
}
