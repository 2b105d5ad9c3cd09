// Package accesscontrol implements the Access Control cluster (0x001F).
//
// The ACL itself lives in the Matter stack. The cluster serves it read-only
// through an EntrySource and reports changes as AccessControlEntryChanged
// events.
package accesscontrol

import (
	"context"

	"github.com/espressif/esp-matter-sub221/pkg/clusters"
	"github.com/espressif/esp-matter-sub221/pkg/datamodel"
	"github.com/espressif/esp-matter-sub221/pkg/tlv"
)

// Cluster constants.
const (
	ClusterID       datamodel.ClusterID = 0x001F
	ClusterRevision uint16              = 1
)

// Attribute IDs.
const (
	AttrACL                           datamodel.AttributeID = 0x0000
	AttrExtension                     datamodel.AttributeID = 0x0001
	AttrSubjectsPerAccessControlEntry datamodel.AttributeID = 0x0002
	AttrTargetsPerAccessControlEntry  datamodel.AttributeID = 0x0003
	AttrAccessControlEntriesPerFabric datamodel.AttributeID = 0x0004
)

// Event IDs.
const (
	EventAccessControlEntryChanged     datamodel.EventID = 0x00
	EventAccessControlExtensionChanged datamodel.EventID = 0x01
)

// FeatureExtension adds the Extension attribute.
const FeatureExtension uint32 = 1 << 0

// Minimum limits a node must support.
const (
	MinSubjectsPerEntry = 4
	MinTargetsPerEntry  = 3
	MinEntriesPerFabric = 4
)

// fabricIndexTag is the context tag of the fabric index in fabric-scoped
// structures.
const fabricIndexTag = 0xFE

// Privilege is the access level an entry grants.
type Privilege uint8

const (
	PrivilegeView       Privilege = 1
	PrivilegeProxyView  Privilege = 2
	PrivilegeOperate    Privilege = 3
	PrivilegeManage     Privilege = 4
	PrivilegeAdminister Privilege = 5
)

func (p Privilege) String() string {
	switch p {
	case PrivilegeView:
		return "View"
	case PrivilegeProxyView:
		return "ProxyView"
	case PrivilegeOperate:
		return "Operate"
	case PrivilegeManage:
		return "Manage"
	case PrivilegeAdminister:
		return "Administer"
	default:
		return "Unknown"
	}
}

// AuthMode is the session type an entry applies to.
type AuthMode uint8

const (
	AuthModePASE  AuthMode = 1
	AuthModeCASE  AuthMode = 2
	AuthModeGroup AuthMode = 3
)

func (m AuthMode) String() string {
	switch m {
	case AuthModePASE:
		return "PASE"
	case AuthModeCASE:
		return "CASE"
	case AuthModeGroup:
		return "Group"
	default:
		return "Unknown"
	}
}

// ChangeType is the kind of change an AccessControlEntryChanged event
// reports.
type ChangeType uint8

const (
	ChangeChanged ChangeType = 0
	ChangeAdded   ChangeType = 1
	ChangeRemoved ChangeType = 2
)

// Target restricts an entry to a cluster, endpoint or device type. Nil
// fields are wildcards.
type Target struct {
	Cluster    *uint32
	Endpoint   *uint16
	DeviceType *uint32
}

// Entry is one access control entry.
type Entry struct {
	FabricIndex datamodel.FabricIndex
	Privilege   Privilege
	AuthMode    AuthMode
	// Subjects is nil for a wildcard subject.
	Subjects []uint64
	// Targets is nil for a wildcard target.
	Targets []Target
}

// EntrySource returns the current ACL. The stack implements it.
type EntrySource interface {
	Entries() []Entry
}

// EntriesFunc adapts a function to EntrySource.
type EntriesFunc func() []Entry

// Entries calls f.
func (f EntriesFunc) Entries() []Entry { return f() }

// Config holds the ACL limits and the entry source.
type Config struct {
	SubjectsPerEntry uint16
	TargetsPerEntry  uint16
	EntriesPerFabric uint16
	// Source serves the ACL attribute. Nil reads as an empty list.
	Source EntrySource
}

func (cfg *Config) applyDefaults() {
	cfg.SubjectsPerEntry = max(cfg.SubjectsPerEntry, MinSubjectsPerEntry)
	cfg.TargetsPerEntry = max(cfg.TargetsPerEntry, MinTargetsPerEntry)
	cfg.EntriesPerFabric = max(cfg.EntriesPerFabric, MinEntriesPerFabric)
}

var pluginInit = clusters.Once(func() {})

// Create adds the Access Control cluster to ep.
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
	var conf Config
	if cfg != nil {
		conf = *cfg
	}
	conf.applyDefaults()

	internal := datamodel.AttributeFlagManagedInternally
	if err := clusters.CreateAttributes(c,
		clusters.Attr{ID: AttrACL, Flags: internal | datamodel.AttributeFlagWritable, Val: datamodel.Array(nil)},
		clusters.Attr{ID: AttrSubjectsPerAccessControlEntry, Flags: internal, Val: datamodel.Uint16(conf.SubjectsPerEntry)},
		clusters.Attr{ID: AttrTargetsPerAccessControlEntry, Flags: internal, Val: datamodel.Uint16(conf.TargetsPerEntry)},
		clusters.Attr{ID: AttrAccessControlEntriesPerFabric, Flags: internal, Val: datamodel.Uint16(conf.EntriesPerFabric)},
	); err != nil {
		return nil, clusters.Abort(c, err)
	}
	c.SetAttributeProvider(func(ctx context.Context, path datamodel.AttributePath, w *tlv.Writer, tag tlv.Tag) error {
		switch path.Attribute {
		case AttrACL:
			var entries []Entry
			if conf.Source != nil {
				entries = conf.Source.Entries()
			}
			return writeEntries(w, tag, entries, datamodel.FabricIndexFromContext(ctx))
		case AttrSubjectsPerAccessControlEntry:
			return w.PutUint(tag, uint64(conf.SubjectsPerEntry))
		case AttrTargetsPerAccessControlEntry:
			return w.PutUint(tag, uint64(conf.TargetsPerEntry))
		case AttrAccessControlEntriesPerFabric:
			return w.PutUint(tag, uint64(conf.EntriesPerFabric))
		case AttrExtension:
			if err := w.StartArray(tag); err != nil {
				return err
			}
			return w.EndContainer()
		}
		return datamodel.ErrUnsupportedRead
	})
	if err := clusters.CreateEvents(c, EventAccessControlEntryChanged); err != nil {
		return nil, clusters.Abort(c, err)
	}
	return c, nil
}

// FeatureExtensionAdd adds the Extension attribute and its change event.
// Extensions are served as an empty list.
func FeatureExtensionAdd(c *datamodel.Cluster) error {
	if err := clusters.AddFeature(c, FeatureExtension); err != nil {
		return err
	}
	if err := clusters.CreateAttributes(c, clusters.Attr{
		ID:    AttrExtension,
		Flags: datamodel.AttributeFlagManagedInternally | datamodel.AttributeFlagWritable,
		Val:   datamodel.Array(nil),
	}); err != nil {
		return err
	}
	return clusters.CreateEvents(c, EventAccessControlExtensionChanged)
}

// writeEntries encodes the ACL. A non-zero accessing fabric filters the
// list to its own entries.
func writeEntries(w *tlv.Writer, tag tlv.Tag, entries []Entry, fabricIndex datamodel.FabricIndex) error {
	if err := w.StartArray(tag); err != nil {
		return err
	}
	for _, e := range entries {
		if fabricIndex != 0 && e.FabricIndex != fabricIndex {
			continue
		}
		if err := writeEntry(w, tlv.Anonymous(), e); err != nil {
			return err
		}
	}
	return w.EndContainer()
}

func writeEntry(w *tlv.Writer, tag tlv.Tag, e Entry) error {
	if err := w.StartStructure(tag); err != nil {
		return err
	}
	if err := w.PutUint(tlv.ContextTag(1), uint64(e.Privilege)); err != nil {
		return err
	}
	if err := w.PutUint(tlv.ContextTag(2), uint64(e.AuthMode)); err != nil {
		return err
	}
	if e.Subjects == nil {
		if err := w.PutNull(tlv.ContextTag(3)); err != nil {
			return err
		}
	} else {
		if err := w.StartArray(tlv.ContextTag(3)); err != nil {
			return err
		}
		for _, s := range e.Subjects {
			if err := w.PutUint(tlv.Anonymous(), s); err != nil {
				return err
			}
		}
		if err := w.EndContainer(); err != nil {
			return err
		}
	}
	if e.Targets == nil {
		if err := w.PutNull(tlv.ContextTag(4)); err != nil {
			return err
		}
	} else {
		if err := w.StartArray(tlv.ContextTag(4)); err != nil {
			return err
		}
		for _, t := range e.Targets {
			if err := writeTarget(w, t); err != nil {
				return err
			}
		}
		if err := w.EndContainer(); err != nil {
			return err
		}
	}
	if err := w.PutUint(tlv.ContextTag(fabricIndexTag), uint64(e.FabricIndex)); err != nil {
		return err
	}
	return w.EndContainer()
}

func writeTarget(w *tlv.Writer, t Target) error {
	if err := w.StartStructure(tlv.Anonymous()); err != nil {
		return err
	}
	fields := []struct {
		tag uint8
		set bool
		val uint64
	}{
		{0, t.Cluster != nil, deref32(t.Cluster)},
		{1, t.Endpoint != nil, uint64(deref16(t.Endpoint))},
		{2, t.DeviceType != nil, deref32(t.DeviceType)},
	}
	for _, f := range fields {
		var err error
		if f.set {
			err = w.PutUint(tlv.ContextTag(f.tag), f.val)
		} else {
			err = w.PutNull(tlv.ContextTag(f.tag))
		}
		if err != nil {
			return err
		}
	}
	return w.EndContainer()
}

func deref32(p *uint32) uint64 {
	if p == nil {
		return 0
	}
	return uint64(*p)
}

func deref16(p *uint16) uint16 {
	if p == nil {
		return 0
	}
	return *p
}
