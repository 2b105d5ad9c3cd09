package descriptor

import (
	"reflect"
	"testing"

	"github.com/espressif/esp-matter-sub221/pkg/clusters/clustertest"
	"github.com/espressif/esp-matter-sub221/pkg/datamodel"
)

func TestCreate_ServerLists(t *testing.T) {
	_, ep := clustertest.NewEndpoint(t)
	c, err := Create(ep, nil, datamodel.ClusterFlagServer)
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	if _, err := datamodel.CreateCluster(ep, 0x0006, datamodel.ClusterFlagServer); err != nil {
		t.Fatal(err)
	}
	if _, err := datamodel.CreateCluster(ep, 0x0004, datamodel.ClusterFlagClient); err != nil {
		t.Fatal(err)
	}
	clustertest.Enable(t, ep)

	if got, want := clustertest.ReadUintList(t, c, AttrServerList), []uint64{0x1D, 0x06}; !reflect.DeepEqual(got, want) {
		t.Errorf("ServerList = %v, want %v", got, want)
	}
	if got, want := clustertest.ReadUintList(t, c, AttrClientList), []uint64{0x04}; !reflect.DeepEqual(got, want) {
		t.Errorf("ClientList = %v, want %v", got, want)
	}
}

func TestCreate_ClientHasNoAttributes(t *testing.T) {
	_, ep := clustertest.NewEndpoint(t)
	c, err := Create(ep, nil, datamodel.ClusterFlagClient)
	if err != nil {
		t.Fatal(err)
	}
	if n := len(c.Attributes()); n != 0 {
		t.Errorf("client cluster has %d attributes, want 0", n)
	}
}

func TestDeviceTypeList(t *testing.T) {
	_, ep := clustertest.NewEndpoint(t)
	c, _ := Create(ep, nil, datamodel.ClusterFlagServer)
	ep.AddDeviceType(0x0100, 3)
	clustertest.Enable(t, ep)

	r := clustertest.Read(t, c, AttrDeviceTypeList)
	if err := r.EnterContainer(); err != nil {
		t.Fatal(err)
	}
	if err := r.Next(); err != nil {
		t.Fatal(err)
	}
	if err := r.EnterContainer(); err != nil {
		t.Fatal(err)
	}
	var got []uint64
	for i := 0; i < 2; i++ {
		if err := r.Next(); err != nil {
			t.Fatal(err)
		}
		v, _ := r.Uint()
		got = append(got, v)
	}
	if !reflect.DeepEqual(got, []uint64{0x0100, 3}) {
		t.Errorf("device type entry = %v, want [256 3]", got)
	}
}

func TestPartsList(t *testing.T) {
	_, root := clustertest.NewEndpoint(t)
	n := root.Node()
	mk := func(parent *datamodel.Endpoint) *datamodel.Endpoint {
		ep, err := n.CreateEndpoint(datamodel.EndpointFlagNone, nil)
		if err != nil {
			t.Fatal(err)
		}
		if parent != nil {
			if err := ep.SetParentEndpoint(parent); err != nil {
				t.Fatal(err)
			}
		}
		clustertest.Enable(t, ep)
		return ep
	}
	// 1 is an aggregator with child 2, which has child 3. 4 is standalone.
	aggregator := mk(nil)
	child := mk(aggregator)
	mk(child)
	mk(nil)
	clustertest.Enable(t, root)

	tests := []struct {
		name string
		ep   *datamodel.Endpoint
		tree bool
		want []uint64
	}{
		{"root lists everything", root, false, []uint64{1, 2, 3, 4}},
		{"full family lists descendants", aggregator, false, []uint64{2, 3}},
		{"tree lists direct children", aggregator, true, []uint64{2}},
		{"leaf", n.Endpoint(3), false, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.tree {
				tt.ep.SetCompositionPattern(datamodel.CompositionTree)
				defer tt.ep.SetCompositionPattern(datamodel.CompositionFullFamily)
			}
			if got := PartsList(tt.ep); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("PartsList() = %v, want %v", got, tt.want)
			}
		})
	}

	c, _ := Create(aggregator, nil, datamodel.ClusterFlagServer)
	if got := clustertest.ReadUintList(t, c, AttrPartsList); !reflect.DeepEqual(got, []uint64{2, 3}) {
		t.Errorf("PartsList read = %v, want [2 3]", got)
	}
}

func TestFeatureTagListAdd(t *testing.T) {
	_, ep := clustertest.NewEndpoint(t)
	c, _ := Create(ep, nil, datamodel.ClusterFlagServer)
	if err := FeatureTagListAdd(c); err != nil {
		t.Fatal(err)
	}
	if c.Attribute(AttrTagList) == nil {
		t.Fatal("TagList not created")
	}
	ep.SetSemanticTags([]datamodel.SemanticTag{{MfgCode: datamodel.NullMfgCode, NamespaceID: 8, Tag: 2, Label: "left"}})
	clustertest.Enable(t, ep)
	r := clustertest.Read(t, c, AttrTagList)
	if err := r.EnterContainer(); err != nil {
		t.Fatal(err)
	}
	if err := r.Next(); err != nil || r.IsEndOfContainer() {
		t.Fatalf("TagList is empty: %v", err)
	}
}
