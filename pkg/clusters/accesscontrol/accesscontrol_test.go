package accesscontrol

import (
	"bytes"
	"context"
	"testing"

	"github.com/espressif/esp-matter-sub221/pkg/clusters/clustertest"
	"github.com/espressif/esp-matter-sub221/pkg/datamodel"
	"github.com/espressif/esp-matter-sub221/pkg/tlv"
)

func testEntries() []Entry {
	cluster := uint32(0x0006)
	return []Entry{
		{FabricIndex: 1, Privilege: PrivilegeAdminister, AuthMode: AuthModeCASE, Subjects: []uint64{0x1122}},
		{FabricIndex: 2, Privilege: PrivilegeOperate, AuthMode: AuthModeGroup, Targets: []Target{{Cluster: &cluster}}},
	}
}

func newServer(t *testing.T, cfg *Config) *datamodel.Cluster {
	t.Helper()
	_, ep := clustertest.NewEndpoint(t)
	c, err := Create(ep, cfg, datamodel.ClusterFlagServer)
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	clustertest.Enable(t, ep)
	return c
}

// readPrivileges reads the ACL as fabric idx and returns the privilege of
// every entry.
func readPrivileges(t *testing.T, c *datamodel.Cluster, idx datamodel.FabricIndex) []uint64 {
	t.Helper()
	var buf bytes.Buffer
	path := datamodel.AttributePath{Endpoint: c.EndpointID(), Cluster: ClusterID, Attribute: AttrACL}
	ctx := datamodel.WithFabricIndex(context.Background(), idx)
	if err := c.Endpoint().Node().ReadAttribute(ctx, path, tlv.NewWriter(&buf), tlv.Anonymous()); err != nil {
		t.Fatalf("ReadAttribute(ACL) failed: %v", err)
	}
	r := tlv.NewReader(&buf)
	if err := r.Next(); err != nil {
		t.Fatal(err)
	}
	if err := r.EnterContainer(); err != nil {
		t.Fatal(err)
	}
	var privileges []uint64
	for {
		if err := r.Next(); err != nil {
			t.Fatal(err)
		}
		if r.IsEndOfContainer() {
			return privileges
		}
		if err := r.EnterContainer(); err != nil {
			t.Fatal(err)
		}
		for {
			if err := r.Next(); err != nil {
				t.Fatal(err)
			}
			if r.IsEndOfContainer() {
				break
			}
			if r.Tag().TagNumber() == 1 {
				v, err := r.Uint()
				if err != nil {
					t.Fatal(err)
				}
				privileges = append(privileges, v)
				continue
			}
			if err := r.Skip(); err != nil {
				t.Fatal(err)
			}
		}
		if err := r.ExitContainer(); err != nil {
			t.Fatal(err)
		}
	}
}

func TestACL(t *testing.T) {
	c := newServer(t, &Config{Source: EntriesFunc(testEntries)})
	tests := []struct {
		name   string
		fabric datamodel.FabricIndex
		want   []uint64
	}{
		{"NoFabric", 0, []uint64{uint64(PrivilegeAdminister), uint64(PrivilegeOperate)}},
		{"Fabric1", 1, []uint64{uint64(PrivilegeAdminister)}},
		{"Fabric2", 2, []uint64{uint64(PrivilegeOperate)}},
		{"UnknownFabric", 3, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := readPrivileges(t, c, tt.fabric)
			if len(got) != len(tt.want) {
				t.Fatalf("privileges = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("privileges = %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestACL_NoSource(t *testing.T) {
	c := newServer(t, nil)
	if got := readPrivileges(t, c, 0); len(got) != 0 {
		t.Errorf("ACL = %v, want empty", got)
	}
}

func TestLimits(t *testing.T) {
	c := newServer(t, &Config{SubjectsPerEntry: 8})
	tests := []struct {
		attr datamodel.AttributeID
		want uint64
	}{
		{AttrSubjectsPerAccessControlEntry, 8},
		{AttrTargetsPerAccessControlEntry, MinTargetsPerEntry},
		{AttrAccessControlEntriesPerFabric, MinEntriesPerFabric},
	}
	for _, tt := range tests {
		v, err := clustertest.Read(t, c, tt.attr).Uint()
		if err != nil || v != tt.want {
			t.Errorf("attribute 0x%04X = %d, %v, want %d", uint32(tt.attr), v, err, tt.want)
		}
	}
}

func TestACL_NotWritable(t *testing.T) {
	c := newServer(t, nil)
	var buf bytes.Buffer
	w := tlv.NewWriter(&buf)
	_ = w.StartArray(tlv.Anonymous())
	_ = w.EndContainer()
	r := tlv.NewReader(&buf)
	_ = r.Next()
	path := datamodel.AttributePath{Endpoint: c.EndpointID(), Cluster: ClusterID, Attribute: AttrACL}
	if err := c.Endpoint().Node().WriteAttribute(context.Background(), path, r); err == nil {
		t.Error("WriteAttribute(ACL) succeeded, want the stack to own ACL writes")
	}
}

func TestFeatureExtensionAdd(t *testing.T) {
	c := newServer(t, nil)
	if err := FeatureExtensionAdd(c); err != nil {
		t.Fatal(err)
	}
	if c.Attribute(AttrExtension) == nil || c.Event(EventAccessControlExtensionChanged) == nil {
		t.Error("Extension attribute or event missing")
	}
	r := clustertest.Read(t, c, AttrExtension)
	if r.Type() != tlv.ElementTypeArray {
		t.Errorf("Extension type = %s, want array", r.Type())
	}
}

func TestEmitEntryChanged(t *testing.T) {
	c := newServer(t, nil)
	var got []byte
	sink := func(ep datamodel.EndpointID, cl datamodel.ClusterID, ev datamodel.EventID, payload []byte) error {
		if cl != ClusterID || ev != EventAccessControlEntryChanged {
			t.Errorf("event %v/%v, want AccessControlEntryChanged", cl, ev)
		}
		got = payload
		return nil
	}
	admin := uint64(0x1122)
	entry := testEntries()[0]
	if err := EmitEntryChanged(sink, c, EntryChangedEvent{
		AdminNodeID: &admin, ChangeType: ChangeAdded, LatestValue: &entry, FabricIndex: 1,
	}); err != nil {
		t.Fatalf("EmitEntryChanged() failed: %v", err)
	}

	r := tlv.NewReader(bytes.NewReader(got))
	if err := r.Next(); err != nil {
		t.Fatal(err)
	}
	if err := r.EnterContainer(); err != nil {
		t.Fatal(err)
	}
	seen := map[uint32]tlv.ElementType{}
	for {
		if err := r.Next(); err != nil {
			t.Fatal(err)
		}
		if r.IsEndOfContainer() {
			break
		}
		seen[r.Tag().TagNumber()] = r.Type()
		if err := r.Skip(); err != nil {
			t.Fatal(err)
		}
	}
	if seen[2] != tlv.ElementTypeNull {
		t.Errorf("AdminPasscodeID type = %s, want null", seen[2])
	}
	if seen[4] != tlv.ElementTypeStruct {
		t.Errorf("LatestValue type = %s, want struct", seen[4])
	}
	if _, ok := seen[fabricIndexTag]; !ok {
		t.Error("FabricIndex missing")
	}
}
