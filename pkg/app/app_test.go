package app

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/espressif/esp-matter-sub221/pkg/clusters"
	"github.com/espressif/esp-matter-sub221/pkg/clusters/clustertest"
	"github.com/espressif/esp-matter-sub221/pkg/clusters/colorcontrol"
	"github.com/espressif/esp-matter-sub221/pkg/clusters/levelcontrol"
	"github.com/espressif/esp-matter-sub221/pkg/clusters/onoff"
	"github.com/espressif/esp-matter-sub221/pkg/clusters/otarequestor"
	"github.com/espressif/esp-matter-sub221/pkg/datamodel"
	"github.com/espressif/esp-matter-sub221/pkg/endpoints"
	"github.com/espressif/esp-matter-sub221/pkg/hal/button"
	"github.com/espressif/esp-matter-sub221/pkg/hal/led"
	"github.com/espressif/esp-matter-sub221/pkg/ota"
	"github.com/espressif/esp-matter-sub221/pkg/storage"
	"github.com/pion/logging"
	"github.com/pion/transport/v3/test"
)

func newLight(t *testing.T, cfg *endpoints.ColorLightConfig) (*datamodel.Node, *Light, *led.Sim) {
	t.Helper()
	n := datamodel.NewNode(datamodel.Config{Store: storage.NewMemoryStore()})
	t.Cleanup(func() { _ = n.Destroy() })
	ep, err := endpoints.CreateExtendedColorLight(n, cfg, datamodel.EndpointFlagNone, nil)
	if err != nil {
		t.Fatalf("CreateExtendedColorLight() failed: %v", err)
	}
	sim := led.NewSim(logging.NewDefaultLoggerFactory().NewLogger("hal"))
	l := NewLight(sim, ep.ID(), nil)
	t.Cleanup(l.Close)
	return n, l, sim
}

func TestLight_AttributeUpdate(t *testing.T) {
	tests := []struct {
		name    string
		cluster datamodel.ClusterID
		attr    datamodel.AttributeID
		val     datamodel.Val
		check   func(led.State) bool
	}{
		{"power", onoff.ClusterID, onoff.AttrOnOff, datamodel.Bool(true),
			func(s led.State) bool { return s.On }},
		{"level", levelcontrol.ClusterID, levelcontrol.AttrCurrentLevel, datamodel.NullableUint8(127),
			func(s led.State) bool { return s.Brightness == 50 }},
		{"max level", levelcontrol.ClusterID, levelcontrol.AttrCurrentLevel, datamodel.NullableUint8(254),
			func(s led.State) bool { return s.Brightness == 100 }},
		{"hue", colorcontrol.ClusterID, colorcontrol.AttrCurrentHue, datamodel.Uint8(127),
			func(s led.State) bool { return s.Hue == 180 && s.ColorMode == led.ModeHS }},
		{"saturation", colorcontrol.ClusterID, colorcontrol.AttrCurrentSaturation, datamodel.Uint8(254),
			func(s led.State) bool { return s.Saturation == 100 }},
		{"temperature", colorcontrol.ClusterID, colorcontrol.AttrColorTemperatureMireds, datamodel.Uint16(250),
			func(s led.State) bool { return s.Temperature == 4000 && s.ColorMode == led.ModeTemperature }},
		{"null level ignored", levelcontrol.ClusterID, levelcontrol.AttrCurrentLevel, datamodel.NullUint8(),
			func(s led.State) bool { return s.Brightness == 100 }},
		{"zero mireds ignored", colorcontrol.ClusterID, colorcontrol.AttrColorTemperatureMireds, datamodel.Uint16(0),
			func(s led.State) bool { return s.Temperature == 4000 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, l, sim := newLight(t, nil)
			if err := l.AttributeUpdate(l.Endpoint(), tt.cluster, tt.attr, tt.val); err != nil {
				t.Fatalf("AttributeUpdate() failed: %v", err)
			}
			if st := sim.State(); !tt.check(st) {
				t.Errorf("LED state = %+v", st)
			}
		})
	}
}

func TestLight_IgnoresOtherEndpoints(t *testing.T) {
	_, l, sim := newLight(t, nil)
	if err := l.AttributeUpdate(l.Endpoint()+1, onoff.ClusterID, onoff.AttrOnOff, datamodel.Bool(true)); err != nil {
		t.Fatal(err)
	}
	if sim.State().On {
		t.Error("LED switched by another endpoint")
	}
}

func TestLight_SetDefaults(t *testing.T) {
	cfg := endpoints.DefaultExtendedColorLightConfig()
	cfg.OnOff.OnOff = true
	level := uint8(127)
	cfg.LevelControl.CurrentLevel = &level
	cfg.ColorControl.ColorTemperature.ColorTemperatureMireds = 370

	n, l, sim := newLight(t, cfg)
	if err := l.SetDefaults(n); err != nil {
		t.Fatalf("SetDefaults() failed: %v", err)
	}
	st := sim.State()
	if !st.On || st.Brightness != 50 || st.Temperature != 2702 || st.ColorMode != led.ModeTemperature {
		t.Errorf("LED state = %+v", st)
	}
}

func TestCallbacks(t *testing.T) {
	n, l, sim := newLight(t, nil)
	n.SetAttributeCallback(Callbacks(l, nil))

	if err := n.Update(l.Endpoint(), onoff.ClusterID, onoff.AttrOnOff, datamodel.Bool(true)); err != nil {
		t.Fatalf("Update() failed: %v", err)
	}
	if !sim.State().On {
		t.Error("PreUpdate did not reach the LED")
	}
	if err := n.Update(l.Endpoint(), colorcontrol.ClusterID, colorcontrol.AttrCurrentHue, datamodel.Uint8(254)); err != nil {
		t.Fatal(err)
	}
	if got := sim.State().Hue; got != 360 {
		t.Errorf("hue = %d, want 360", got)
	}
}

func TestCallbacks_NilLight(t *testing.T) {
	cb := Callbacks(nil, nil)
	v := datamodel.Bool(true)
	if err := cb(datamodel.PreUpdate, 1, onoff.ClusterID, onoff.AttrOnOff, &v, nil); err != nil {
		t.Errorf("callback failed: %v", err)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestIdentify(t *testing.T) {
	defer test.CheckRoutines(t)()

	_, l, sim := newLight(t, nil)
	if err := l.AttributeUpdate(l.Endpoint(), onoff.ClusterID, onoff.AttrOnOff, datamodel.Bool(true)); err != nil {
		t.Fatal(err)
	}

	if err := l.Identify(datamodel.IdentifyStart, l.Endpoint(), 0, 0, nil); err != nil {
		t.Fatal(err)
	}
	if !l.Blinking() {
		t.Fatal("not blinking after IdentifyStart")
	}
	// The first toggle switches the LED off.
	waitFor(t, func() bool { return !sim.State().On })

	// OnOff changes while blinking are remembered, not shown.
	if err := l.AttributeUpdate(l.Endpoint(), onoff.ClusterID, onoff.AttrOnOff, datamodel.Bool(false)); err != nil {
		t.Fatal(err)
	}
	if err := l.Identify(datamodel.IdentifyStop, l.Endpoint(), 0, 0, nil); err != nil {
		t.Fatal(err)
	}
	if l.Blinking() {
		t.Error("still blinking after IdentifyStop")
	}
	if sim.State().On {
		t.Error("LED not restored to off")
	}
}

func TestIdentify_Effect(t *testing.T) {
	defer test.CheckRoutines(t)()

	_, l, sim := newLight(t, nil)
	if err := l.AttributeUpdate(l.Endpoint(), onoff.ClusterID, onoff.AttrOnOff, datamodel.Bool(true)); err != nil {
		t.Fatal(err)
	}
	l.startBlink(5*time.Millisecond, 2)
	waitFor(t, func() bool { return !l.Blinking() })
	if !sim.State().On {
		t.Error("LED not restored after effect")
	}
	if err := l.Identify(datamodel.IdentifyEffect, l.Endpoint()+1, 0, 0, nil); err != nil || l.Blinking() {
		t.Errorf("effect on another endpoint: err %v, blinking %t", err, l.Blinking())
	}
}

func TestButtonHandler(t *testing.T) {
	defer test.CheckRoutines(t)()

	n, l, _ := newLight(t, nil)
	var resets atomic.Int32
	h := &ButtonHandler{
		Node:      n,
		Endpoint:  l.Endpoint(),
		ResetHold: 5 * time.Second,
		FactoryReset: func() error {
			resets.Add(1)
			return nil
		},
	}
	events := make(chan button.Event)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.Run(ctx, events)
	}()

	onOff := func() bool {
		v, err := n.GetVal(l.Endpoint(), onoff.ClusterID, onoff.AttrOnOff)
		if err != nil {
			t.Fatal(err)
		}
		return v.Bool()
	}

	events <- button.Event{Kind: button.SingleClick}
	waitFor(t, onOff)
	events <- button.Event{Kind: button.SingleClick}
	waitFor(t, func() bool { return !onOff() })

	// Released too early.
	events <- button.Event{Kind: button.LongPressStart, Held: 1500 * time.Millisecond}
	events <- button.Event{Kind: button.PressUp, Held: 2 * time.Second}
	// Held long enough.
	events <- button.Event{Kind: button.LongPressStart, Held: 1500 * time.Millisecond}
	events <- button.Event{Kind: button.PressUp, Held: 6 * time.Second}
	// A short press after a click never resets.
	events <- button.Event{Kind: button.PressUp, Held: 6 * time.Second}

	cancel()
	<-done
	if got := resets.Load(); got != 1 {
		t.Errorf("factory resets = %d, want 1", got)
	}
}

func TestInitOTA(t *testing.T) {
	n := datamodel.NewNode(datamodel.Config{Store: storage.NewMemoryStore()})
	t.Cleanup(func() { _ = n.Destroy() })
	part, err := ota.NewFilePartition(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	r, err := ota.NewRequestor(ota.RequestorConfig{
		Processor: ota.NewImageProcessor(part, nil),
		Resolve: func(ctx context.Context, loc otarequestor.ProviderLocation) (ota.Provider, error) {
			return ota.NewDirProvider(t.TempDir(), nil), nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := InitOTA(n, r, nil); !errors.Is(err, datamodel.ErrEndpointNotFound) {
		t.Errorf("InitOTA() without root = %v, want ErrEndpointNotFound", err)
	}
	root, err := endpoints.CreateRootNode(n, endpoints.DefaultRootNodeConfig(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := InitOTA(n, r, nil); !errors.Is(err, datamodel.ErrClusterNotFound) {
		t.Errorf("InitOTA() without cluster = %v, want ErrClusterNotFound", err)
	}
	if err := endpoints.AddOTARequestor(root, endpoints.DefaultOTARequestorConfig()); err != nil {
		t.Fatal(err)
	}
	if err := InitOTA(n, r, nil); err != nil {
		t.Fatalf("InitOTA() failed: %v", err)
	}

	ann, err := clusters.NewCommandEncoder().Uint(0, 0x55).Uint(1, 0xFFF1).Uint(2, 0).Uint(4, 0).Finish()
	if err != nil {
		t.Fatal(err)
	}
	clustertest.Enable(t, root)
	clustertest.MustInvoke(t, root.Cluster(otarequestor.ClusterID), otarequestor.CmdAnnounceOTAProvider, ann)
	if got := r.DefaultProviders(); len(got) != 1 || got[0].NodeID != 0x55 {
		t.Errorf("DefaultProviders() = %v", got)
	}
}
