package onoff

import (
	"errors"
	"testing"

	"github.com/espressif/esp-matter-sub221/pkg/clusters"
	"github.com/espressif/esp-matter-sub221/pkg/clusters/clustertest"
	"github.com/espressif/esp-matter-sub221/pkg/datamodel"
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

func TestCreate(t *testing.T) {
	c := newServer(t, DefaultConfig())
	if c.Attribute(AttrOnOff) == nil {
		t.Fatal("OnOff attribute missing")
	}
	if c.Attribute(AttrOnOff).Flags()&datamodel.AttributeFlagNonvolatile == 0 {
		t.Error("OnOff is not nonvolatile")
	}
	for _, id := range []datamodel.CommandID{CmdOff, CmdOn, CmdToggle} {
		if c.Command(id) == nil {
			t.Errorf("command 0x%02X missing", id)
		}
	}
	if c.Attribute(AttrGlobalSceneControl) != nil {
		t.Error("LT attribute present without the feature")
	}
}

func TestCreate_ClientOnlyCreatesOff(t *testing.T) {
	_, ep := clustertest.NewEndpoint(t)
	c, err := Create(ep, nil, datamodel.ClusterFlagClient)
	if err != nil {
		t.Fatal(err)
	}
	if len(c.Attributes()) != 0 {
		t.Errorf("client has %d attributes", len(c.Attributes()))
	}
	if c.Command(CmdOff) == nil {
		t.Error("Off command missing on client")
	}
}

func TestCommands(t *testing.T) {
	c := newServer(t, DefaultConfig())
	steps := []struct {
		cmd  datamodel.CommandID
		want bool
	}{
		{CmdOn, true},
		{CmdOn, true},
		{CmdToggle, false},
		{CmdToggle, true},
		{CmdOff, false},
	}
	for _, s := range steps {
		clustertest.MustInvoke(t, c, s.cmd, nil)
		if got := clusters.Get(c, AttrOnOff).Bool(); got != s.want {
			t.Fatalf("after 0x%02X OnOff = %v, want %v", s.cmd, got, s.want)
		}
	}
}

func TestCommands_AttributeCallback(t *testing.T) {
	c := newServer(t, DefaultConfig())
	var seen []bool
	c.Endpoint().Node().SetAttributeCallback(func(typ datamodel.CallbackType, ep datamodel.EndpointID, cl datamodel.ClusterID,
		at datamodel.AttributeID, val *datamodel.Val, priv any) error {
		if typ == datamodel.PreUpdate && cl == ClusterID && at == AttrOnOff {
			seen = append(seen, val.Bool())
		}
		return nil
	})
	clustertest.MustInvoke(t, c, CmdToggle, nil)
	clustertest.MustInvoke(t, c, CmdToggle, nil)
	if len(seen) != 2 || !seen[0] || seen[1] {
		t.Errorf("PreUpdate values = %v, want [true false]", seen)
	}
}

func TestOffOnly(t *testing.T) {
	c := newServer(t, &Config{Features: FeatureOffOnly})
	if c.Command(CmdOn) != nil || c.Command(CmdToggle) != nil {
		t.Error("OFFONLY cluster has On/Toggle")
	}
	if !clusters.HasFeature(c, FeatureOffOnly) {
		t.Error("FeatureMap lacks OFFONLY")
	}
	if _, err := clustertest.Invoke(t, c, CmdOn, nil); !errors.Is(err, datamodel.ErrUnsupportedCommand) {
		t.Errorf("On = %v, want ErrUnsupportedCommand", err)
	}
}

func TestLighting(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Features = FeatureLighting
	c := newServer(t, cfg)

	clustertest.MustInvoke(t, c, CmdOn, nil)
	fields, _ := clusters.NewCommandEncoder().Uint(0, 0).Uint(1, 0).Finish()
	clustertest.MustInvoke(t, c, CmdOffWithEffect, fields)
	if clusters.Get(c, AttrOnOff).Bool() || clusters.Get(c, AttrGlobalSceneControl).Bool() {
		t.Fatal("OffWithEffect did not turn off and clear GlobalSceneControl")
	}
	clustertest.MustInvoke(t, c, CmdOnWithRecallGlobalScene, nil)
	if !clusters.Get(c, AttrOnOff).Bool() || !clusters.Get(c, AttrGlobalSceneControl).Bool() {
		t.Fatal("OnWithRecallGlobalScene did not turn on")
	}

	clustertest.MustInvoke(t, c, CmdOff, nil)
	fields, _ = clusters.NewCommandEncoder().Uint(0, 1).Uint(1, 100).Uint(2, 50).Finish()
	clustertest.MustInvoke(t, c, CmdOnWithTimedOff, fields)
	if clusters.Get(c, AttrOnOff).Bool() {
		t.Error("AcceptOnlyWhenOn turned the light on")
	}
	fields, _ = clusters.NewCommandEncoder().Uint(0, 0).Uint(1, 100).Uint(2, 50).Finish()
	clustertest.MustInvoke(t, c, CmdOnWithTimedOff, fields)
	if !clusters.Get(c, AttrOnOff).Bool() {
		t.Error("OnWithTimedOff did not turn on")
	}
	if got := clusters.Get(c, AttrOnTime).Uint(); got != 100 {
		t.Errorf("OnTime = %d, want 100", got)
	}
	if got := clusters.Get(c, AttrOffWaitTime).Uint(); got != 50 {
		t.Errorf("OffWaitTime = %d, want 50", got)
	}
}

func TestStartUpOnOff(t *testing.T) {
	tests := []struct {
		name    string
		initial bool
		startUp uint8
		want    bool
	}{
		{"off", true, StartUpOff, false},
		{"on", false, StartUpOn, true},
		{"toggle from off", false, StartUpToggle, true},
		{"toggle from on", true, StartUpToggle, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			startUp := tt.startUp
			c := newServer(t, &Config{
				OnOff:    tt.initial,
				Features: FeatureLighting,
				Lighting: LightingConfig{StartUpOnOff: &startUp},
			})
			if got := clusters.Get(c, AttrOnOff).Bool(); got != tt.want {
				t.Errorf("OnOff after init = %v, want %v", got, tt.want)
			}
		})
	}
}
