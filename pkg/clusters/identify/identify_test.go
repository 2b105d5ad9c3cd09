package identify

import (
	"sync"
	"testing"
	"time"

	"github.com/espressif/esp-matter-sub221/pkg/clusters"
	"github.com/espressif/esp-matter-sub221/pkg/clusters/clustertest"
	"github.com/espressif/esp-matter-sub221/pkg/datamodel"
)

func init() { tick = 10 * time.Millisecond }

type event struct {
	typ    datamodel.IdentifyCallbackType
	effect uint8
}

type recorder struct {
	mu     sync.Mutex
	events []event
}

func (r *recorder) callback(typ datamodel.IdentifyCallbackType, ep datamodel.EndpointID, effect, variant uint8, priv any) error {
	r.mu.Lock()
	r.events = append(r.events, event{typ, effect})
	r.mu.Unlock()
	return nil
}

func (r *recorder) snapshot() []event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]event(nil), r.events...)
}

func newServer(t *testing.T) (*datamodel.Cluster, *recorder) {
	t.Helper()
	n, ep := clustertest.NewEndpoint(t)
	rec := &recorder{}
	n.SetIdentifyCallback(rec.callback)
	c, err := Create(ep, DefaultConfig(), datamodel.ClusterFlagServer)
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	clustertest.Enable(t, ep)
	if ep.Identify() == nil {
		t.Fatal("Enable() did not set up identification")
	}
	return c, rec
}

func TestIdentifyCommand(t *testing.T) {
	c, rec := newServer(t)
	fields, _ := clusters.NewCommandEncoder().Uint(0, 10).Finish()
	clustertest.MustInvoke(t, c, CmdIdentify, fields)
	if !c.Endpoint().Identify().Active() {
		t.Fatal("identification not active")
	}
	fields, _ = clusters.NewCommandEncoder().Uint(0, 0).Finish()
	clustertest.MustInvoke(t, c, CmdIdentify, fields)

	got := rec.snapshot()
	if len(got) != 2 || got[0].typ != datamodel.IdentifyStart || got[1].typ != datamodel.IdentifyStop {
		t.Errorf("callbacks = %v, want start, stop", got)
	}
}

func TestIdentifyTime_Expires(t *testing.T) {
	c, rec := newServer(t)
	if err := clusters.Set(c, AttrIdentifyTime, datamodel.Uint16(1)); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(3 * time.Second)
	for len(rec.snapshot()) < 2 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if got := rec.snapshot(); len(got) != 2 || got[1].typ != datamodel.IdentifyStop {
		t.Fatalf("callbacks = %v, want start, stop", got)
	}
	if c.Endpoint().Identify().Active() {
		t.Error("identification still active")
	}
	if got := clusters.Get(c, AttrIdentifyTime).Uint(); got != 0 {
		t.Errorf("IdentifyTime = %d, want 0", got)
	}
}

func TestIdentifyTime_CountsDown(t *testing.T) {
	c, rec := newServer(t)
	if err := clusters.Set(c, AttrIdentifyTime, datamodel.Uint16(5)); err != nil {
		t.Fatal(err)
	}
	last := uint64(5)
	seen := map[uint64]bool{}
	deadline := time.Now().Add(3 * time.Second)
	for last != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("IdentifyTime stuck at %d", last)
		}
		v := clusters.Get(c, AttrIdentifyTime).Uint()
		if v > last {
			t.Fatalf("IdentifyTime went up from %d to %d", last, v)
		}
		seen[v] = true
		last = v
		time.Sleep(time.Millisecond)
	}
	between := false
	for v := range seen {
		if v > 0 && v < 5 {
			between = true
		}
	}
	if !between {
		t.Errorf("no intermediate IdentifyTime observed, saw %v", seen)
	}
	deadline = time.Now().Add(time.Second)
	for len(rec.snapshot()) < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := rec.snapshot(); len(got) != 2 || got[0].typ != datamodel.IdentifyStart || got[1].typ != datamodel.IdentifyStop {
		t.Errorf("callbacks = %v, want start, stop", got)
	}
}

func TestIdentifyTime_WriteWhileCounting(t *testing.T) {
	c, rec := newServer(t)
	if err := clusters.Set(c, AttrIdentifyTime, datamodel.Uint16(100)); err != nil {
		t.Fatal(err)
	}
	if err := clusters.Set(c, AttrIdentifyTime, datamodel.Uint16(2)); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(3 * time.Second)
	for clusters.Get(c, AttrIdentifyTime).Uint() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("countdown did not reach zero from the new value")
		}
		time.Sleep(5 * time.Millisecond)
	}
	deadline = time.Now().Add(time.Second)
	for len(rec.snapshot()) < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := rec.snapshot(); len(got) != 2 || got[0].typ != datamodel.IdentifyStart || got[1].typ != datamodel.IdentifyStop {
		t.Errorf("callbacks = %v, want one start then stop", got)
	}
}

func TestTriggerEffect(t *testing.T) {
	c, rec := newServer(t)
	fields, _ := clusters.NewCommandEncoder().Uint(0, uint64(EffectBreathe)).Uint(1, 0).Finish()
	clustertest.MustInvoke(t, c, CmdTriggerEffect, fields)
	got := rec.snapshot()
	if len(got) != 1 || got[0].typ != datamodel.IdentifyEffect || got[0].effect != EffectBreathe {
		t.Errorf("callbacks = %v, want one breathe effect", got)
	}
}
