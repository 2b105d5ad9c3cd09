package groups

import (
	"testing"

	"github.com/espressif/esp-matter-sub221/pkg/clusters"
	"github.com/espressif/esp-matter-sub221/pkg/clusters/clustertest"
	"github.com/espressif/esp-matter-sub221/pkg/clusters/identify"
	"github.com/espressif/esp-matter-sub221/pkg/datamodel"
	"github.com/espressif/esp-matter-sub221/pkg/storage"
)

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

func addGroup(t *testing.T, c *datamodel.Cluster, id uint16, name string) uint8 {
	t.Helper()
	fields, _ := clusters.NewCommandEncoder().Uint(0, uint64(id)).String(1, name).Finish()
	f := clustertest.Decode(t, clustertest.MustInvoke(t, c, CmdAddGroup, fields))
	return uint8(f.UintOr(0, 0xFF))
}

func TestNameSupport(t *testing.T) {
	tests := []struct {
		name string
		cfg  *Config
		want uint64
	}{
		{"Default", nil, 0},
		{"GroupNames", &Config{GroupNames: true}, 0x80},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newServer(t, tt.cfg)
			if got := clusters.Get(c, AttrNameSupport).Uint(); got != tt.want {
				t.Errorf("NameSupport = 0x%02X, want 0x%02X", got, tt.want)
			}
			if got := clusters.HasFeature(c, FeatureGroupNames); got != (tt.want != 0) {
				t.Errorf("HasFeature(GN) = %v", got)
			}
		})
	}
}

func TestAddViewRemove(t *testing.T) {
	c := newServer(t, &Config{GroupNames: true})

	if got := addGroup(t, c, 0x0101, "kitchen"); got != StatusSuccess {
		t.Fatalf("AddGroup status = 0x%02X", got)
	}
	if got := addGroup(t, c, 0, "zero"); got != StatusConstraintError {
		t.Errorf("AddGroup(0) status = 0x%02X, want CONSTRAINT_ERROR", got)
	}
	if got := addGroup(t, c, 2, "a name longer than sixteen"); got != StatusConstraintError {
		t.Errorf("AddGroup(long name) status = 0x%02X, want CONSTRAINT_ERROR", got)
	}

	fields, _ := clusters.NewCommandEncoder().Uint(0, 0x0101).Finish()
	f := clustertest.Decode(t, clustertest.MustInvoke(t, c, CmdViewGroup, fields))
	if s := f.UintOr(0, 0xFF); s != uint64(StatusSuccess) {
		t.Fatalf("ViewGroup status = 0x%02X", s)
	}
	if name, _ := f.String(2); name != "kitchen" {
		t.Errorf("ViewGroup name = %q", name)
	}

	f = clustertest.Decode(t, clustertest.MustInvoke(t, c, CmdRemoveGroup, fields))
	if s := f.UintOr(0, 0xFF); s != uint64(StatusSuccess) {
		t.Errorf("RemoveGroup status = 0x%02X", s)
	}
	f = clustertest.Decode(t, clustertest.MustInvoke(t, c, CmdRemoveGroup, fields))
	if s := f.UintOr(0, 0xFF); s != uint64(StatusNotFound) {
		t.Errorf("second RemoveGroup status = 0x%02X, want NOT_FOUND", s)
	}
	f = clustertest.Decode(t, clustertest.MustInvoke(t, c, CmdViewGroup, fields))
	if s := f.UintOr(0, 0xFF); s != uint64(StatusNotFound) {
		t.Errorf("ViewGroup(removed) status = 0x%02X, want NOT_FOUND", s)
	}
}

func TestNamesDroppedWithoutFeature(t *testing.T) {
	c := newServer(t, nil)
	addGroup(t, c, 7, "hall")
	groups := Groups(c)
	if len(groups) != 1 || groups[0].Name != "" {
		t.Errorf("Groups() = %+v, want one unnamed group", groups)
	}
}

func TestCapacity(t *testing.T) {
	c := newServer(t, &Config{Capacity: 2})
	addGroup(t, c, 1, "")
	addGroup(t, c, 2, "")
	if got := addGroup(t, c, 3, ""); got != StatusResourceExhausted {
		t.Errorf("AddGroup(full) status = 0x%02X, want RESOURCE_EXHAUSTED", got)
	}
	if got := addGroup(t, c, 2, ""); got != StatusSuccess {
		t.Errorf("AddGroup(existing) status = 0x%02X, want SUCCESS", got)
	}
}

func TestGetGroupMembership(t *testing.T) {
	c := newServer(t, nil)
	for _, id := range []uint16{1, 2, 3} {
		addGroup(t, c, id, "")
	}
	tests := []struct {
		name string
		want []uint64
		list []uint64
	}{
		{"All", nil, []uint64{1, 2, 3}},
		{"Filtered", []uint64{2, 3, 9}, []uint64{2, 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields, _ := clusters.NewCommandEncoder().Uints(0, tt.want...).Finish()
			f := clustertest.Decode(t, clustertest.MustInvoke(t, c, CmdGetGroupMembership, fields))
			if capacity := f.UintOr(0, 0); capacity != DefaultCapacity-3 {
				t.Errorf("Capacity = %d, want %d", capacity, DefaultCapacity-3)
			}
			got, err := f.UintList(1)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != len(tt.list) {
				t.Fatalf("GroupList = %v, want %v", got, tt.list)
			}
			for i := range got {
				if got[i] != tt.list[i] {
					t.Errorf("GroupList = %v, want %v", got, tt.list)
				}
			}
		})
	}
}

func TestRemoveAllGroups(t *testing.T) {
	c := newServer(t, nil)
	addGroup(t, c, 1, "")
	addGroup(t, c, 2, "")
	clustertest.MustInvoke(t, c, CmdRemoveAllGroups, nil)
	if got := Groups(c); len(got) != 0 {
		t.Errorf("Groups() = %+v after RemoveAllGroups", got)
	}
}

func TestAddGroupIfIdentifying(t *testing.T) {
	_, ep := clustertest.NewEndpoint(t)
	idc, err := identify.Create(ep, identify.DefaultConfig(), datamodel.ClusterFlagServer)
	if err != nil {
		t.Fatal(err)
	}
	c, err := Create(ep, nil, datamodel.ClusterFlagServer)
	if err != nil {
		t.Fatal(err)
	}
	clustertest.Enable(t, ep)

	fields, _ := clusters.NewCommandEncoder().Uint(0, 5).String(1, "").Finish()
	clustertest.MustInvoke(t, c, CmdAddGroupIfIdentifying, fields)
	if got := Groups(c); len(got) != 0 {
		t.Fatalf("group added while not identifying: %+v", got)
	}

	identifyFields, _ := clusters.NewCommandEncoder().Uint(0, 30).Finish()
	clustertest.MustInvoke(t, idc, identify.CmdIdentify, identifyFields)
	clustertest.MustInvoke(t, c, CmdAddGroupIfIdentifying, fields)
	if got := Groups(c); len(got) != 1 || got[0].ID != 5 {
		t.Errorf("Groups() = %+v, want group 5", got)
	}
}

func TestPersistence(t *testing.T) {
	store := storage.NewMemoryStore()
	build := func() *datamodel.Cluster {
		n := datamodel.NewNode(datamodel.Config{Store: store})
		ep, err := n.CreateEndpoint(datamodel.EndpointFlagNone, nil)
		if err != nil {
			t.Fatal(err)
		}
		c, err := Create(ep, &Config{GroupNames: true}, datamodel.ClusterFlagServer)
		if err != nil {
			t.Fatal(err)
		}
		clustertest.Enable(t, ep)
		return c
	}
	addGroup(t, build(), 9, "porch")

	c := build()
	fields, _ := clusters.NewCommandEncoder().Uint(0, 9).Finish()
	f := clustertest.Decode(t, clustertest.MustInvoke(t, c, CmdViewGroup, fields))
	if name, _ := f.String(2); name != "porch" {
		t.Errorf("ViewGroup name after restart = %q, want porch", name)
	}
}
