package datamodel

import (
	"errors"
	"testing"
	"time"

	"github.com/espressif/esp-matter-sub221/pkg/storage"
)

type callbackRecord struct {
	typ  CallbackType
	path AttributePath
	val  Val
}

// recorder captures attribute callbacks and can veto PreUpdate.
type recorder struct {
	calls []callbackRecord
	veto  error
}

func (r *recorder) callback(typ CallbackType, ep EndpointID, cl ClusterID, at AttributeID, val *Val, priv any) error {
	r.calls = append(r.calls, callbackRecord{typ, AttributePath{ep, cl, at}, *val})
	if typ == PreUpdate {
		return r.veto
	}
	return nil
}

func newAttrFixture(t *testing.T, store storage.Store) (*Node, *Cluster, *recorder) {
	t.Helper()
	rec := &recorder{}
	n := NewNode(Config{Store: store, AttributeCallback: rec.callback, DeferredPersistenceDelay: 20 * time.Millisecond})
	ep := mustEndpoint(t, n, EndpointFlagDestroyable)
	c := mustCluster(t, ep, 0x0008, ClusterFlagServer)
	return n, c, rec
}

func TestCreateAttribute_Idempotent(t *testing.T) {
	_, c, _ := newAttrFixture(t, nil)
	a1, err := CreateAttribute(c, 0, AttributeFlagNone, Uint8(5), 0)
	if err != nil {
		t.Fatal(err)
	}
	a2, err := CreateAttribute(c, 0, AttributeFlagWritable, Uint8(9), 0)
	if err != nil {
		t.Fatal(err)
	}
	if a1 != a2 {
		t.Error("CreateAttribute() created a duplicate")
	}
	if a1.Val().Uint() != 5 {
		t.Errorf("value = %d, want 5", a1.Val().Uint())
	}
	if len(c.Attributes()) != 1 {
		t.Errorf("len(Attributes()) = %d, want 1", len(c.Attributes()))
	}
}

func TestCreateAttribute_ManagedInternally(t *testing.T) {
	_, c, _ := newAttrFixture(t, nil)
	a, err := CreateAttribute(c, 0xFFFB, AttributeFlagManagedInternally, Uint8(5), 0)
	if err != nil {
		t.Fatal(err)
	}
	if a.Type() != ValTypeUint8 || a.Val().Uint() != 0 {
		t.Errorf("managed attribute holds %v, want type only", a.Val())
	}
	if err := a.SetValInternal(Uint8(1), true); !errors.Is(err, ErrNotSupported) {
		t.Errorf("SetValInternal() = %v, want ErrNotSupported", err)
	}
	if _, err := a.GetVal(); !errors.Is(err, ErrNotSupported) {
		t.Errorf("GetVal() = %v, want ErrNotSupported", err)
	}
}

func TestCreateAttribute_LoadsNonvolatile(t *testing.T) {
	store := storage.NewMemoryStore()
	_, c, _ := newAttrFixture(t, store)
	a, _ := CreateAttribute(c, 0, AttributeFlagNonvolatile, NullableUint8(10), 0)
	if err := a.SetValInternal(NullableUint8(200), false); err != nil {
		t.Fatal(err)
	}

	n2 := NewNode(Config{Store: store})
	ep := mustEndpoint(t, n2, EndpointFlagNone)
	if ep.ID() != c.EndpointID() {
		t.Fatalf("endpoint id mismatch")
	}
	c2 := mustCluster(t, ep, 0x0008, ClusterFlagServer)
	a2, _ := CreateAttribute(c2, 0, AttributeFlagNonvolatile, NullableUint8(10), 0)
	if got := a2.Val(); !got.Equal(NullableUint8(200)) {
		t.Errorf("restored value = %v, want 200", got)
	}
}

func TestSetValInternal(t *testing.T) {
	_, c, rec := newAttrFixture(t, nil)
	a, _ := CreateAttribute(c, 0, AttributeFlagWritable, NullableUint8(1), 0)
	if err := a.AddBounds(NullableUint8(1), NullableUint8(254)); err != nil {
		t.Fatal(err)
	}
	dv := c.DataVersion()

	tests := []struct {
		name    string
		val     Val
		wantErr error
	}{
		{"type mismatch", Uint8(5), ErrInvalidArg},
		{"below min", NullableUint8(0), ErrInvalidArg},
		{"unchanged", NullableUint8(1), ErrNotFinished},
		{"in range", NullableUint8(100), nil},
		{"null in range", NullUint8(), nil},
	}
	for _, tt := range tests {
		err := a.SetValInternal(tt.val, true)
		if tt.wantErr == nil && err != nil || tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
			t.Errorf("%s: SetValInternal() = %v, want %v", tt.name, err, tt.wantErr)
		}
	}
	if !a.Val().IsNull() {
		t.Errorf("value = %v, want null", a.Val())
	}
	if got := c.DataVersion() - dv; got != 2 {
		t.Errorf("data version advanced by %d, want 2", got)
	}
	// Two successful sets, each with PreUpdate and PostUpdate.
	if len(rec.calls) != 4 {
		t.Fatalf("callbacks = %d, want 4", len(rec.calls))
	}
	if rec.calls[0].typ != PreUpdate || rec.calls[1].typ != PostUpdate {
		t.Errorf("callback order = %v, %v", rec.calls[0].typ, rec.calls[1].typ)
	}
}

func TestSetValInternal_PreUpdateVeto(t *testing.T) {
	_, c, rec := newAttrFixture(t, nil)
	changed := 0
	c.SetFunctions(ClusterFunctions{AttributeChanged: func(AttributePath) { changed++ }})
	a, _ := CreateAttribute(c, 0, AttributeFlagNone, Uint8(0), 0)
	rec.veto = errors.New("busy")
	if err := a.SetValInternal(Uint8(3), true); err == nil {
		t.Fatal("SetValInternal() succeeded despite veto")
	}
	if a.Val().Uint() != 0 {
		t.Errorf("value changed to %d after veto", a.Val().Uint())
	}
	rec.veto = nil
	if err := a.SetValInternal(Uint8(3), true); err != nil {
		t.Fatal(err)
	}
	if changed != 1 {
		t.Errorf("attribute changed function ran %d times, want 1", changed)
	}
	if c.Flags()&ClusterFlagAttributeChangedFunction == 0 {
		t.Error("SetFunctions() did not set the function flag")
	}
}

func TestSetValInternal_Strings(t *testing.T) {
	_, c, _ := newAttrFixture(t, nil)
	a, _ := CreateAttribute(c, 5, AttributeFlagWritable, CharString("abc"), 8)
	if got := a.Val().Str(); got != "abc" {
		t.Fatalf("default = %q, want abc", got)
	}
	if err := a.SetValInternal(CharString("too long value"), false); !errors.Is(err, ErrNoMem) {
		t.Errorf("oversized string = %v, want ErrNoMem", err)
	}
	if err := a.SetValInternal(CharString(""), false); err != nil {
		t.Errorf("empty string = %v, want nil", err)
	}
	if got := a.Val().Str(); got != "abc" {
		t.Errorf("empty string changed value to %q", got)
	}
	if err := a.SetValInternal(NullString(ValTypeCharString), false); err != nil {
		t.Fatal(err)
	}
	if !a.Val().IsNull() {
		t.Error("null string not stored")
	}
}

func TestAddBounds(t *testing.T) {
	_, c, _ := newAttrFixture(t, nil)
	a, _ := CreateAttribute(c, 0, AttributeFlagNone, Uint8(250), 0)
	if _, err := a.Bounds(); !errors.Is(err, ErrBoundsNotSet) {
		t.Errorf("Bounds() = %v, want ErrBoundsNotSet", err)
	}
	if err := a.AddBounds(Uint16(1), Uint16(2)); !errors.Is(err, ErrInvalidArg) {
		t.Errorf("AddBounds(type mismatch) = %v, want ErrInvalidArg", err)
	}
	if err := a.AddBounds(Uint8(1), Uint8(200)); err != nil {
		t.Fatal(err)
	}
	if a.Val().Uint() != 200 {
		t.Errorf("value = %d, want clamped to 200", a.Val().Uint())
	}
	if a.Flags()&AttributeFlagMinMax == 0 {
		t.Error("MinMax flag not set")
	}

	s, _ := CreateAttribute(c, 1, AttributeFlagNone, CharString(""), 4)
	if err := s.AddBounds(CharString(""), CharString("z")); !errors.Is(err, ErrInvalidArg) {
		t.Errorf("AddBounds(string) = %v, want ErrInvalidArg", err)
	}
	b, _ := CreateAttribute(c, 2, AttributeFlagNone, Bool(false), 0)
	if err := b.AddBounds(Bool(false), Bool(true)); !errors.Is(err, ErrInvalidArg) {
		t.Errorf("AddBounds(bool) = %v, want ErrInvalidArg", err)
	}
}

func TestAddBounds_ClampPersists(t *testing.T) {
	store := storage.NewMemoryStore()
	_, c, _ := newAttrFixture(t, store)
	a, _ := CreateAttribute(c, 0, AttributeFlagNonvolatile, Uint8(0), 0)
	if err := a.SetValInternal(Uint8(250), false); err != nil {
		t.Fatal(err)
	}
	before := c.DataVersion()
	if err := a.AddBounds(Uint8(1), Uint8(200)); err != nil {
		t.Fatal(err)
	}
	if c.DataVersion() != before+1 {
		t.Errorf("DataVersion() = %d, want %d", c.DataVersion(), before+1)
	}

	n2 := NewNode(Config{Store: store})
	c2 := mustCluster(t, mustEndpoint(t, n2, EndpointFlagNone), c.ID(), ClusterFlagServer)
	a2, _ := CreateAttribute(c2, 0, AttributeFlagNonvolatile, Uint8(0), 0)
	if a2.Val().Uint() != 200 {
		t.Errorf("stored value = %d, want clamped 200", a2.Val().Uint())
	}

	// In range: nothing changes.
	before = c.DataVersion()
	if err := a.AddBounds(Uint8(0), Uint8(254)); err != nil {
		t.Fatal(err)
	}
	if c.DataVersion() != before {
		t.Error("DataVersion() bumped without a clamp")
	}
}

func TestOverrideCallback(t *testing.T) {
	_, c, _ := newAttrFixture(t, nil)
	a, _ := CreateAttribute(c, 0, AttributeFlagWritable, Uint16(1), 0)
	if err := a.SetOverrideCallback(func(typ CallbackType, _ EndpointID, _ ClusterID, _ AttributeID, v *Val, _ any) error {
		if typ == Read {
			*v = Uint16(42)
		}
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	v, err := a.GetVal()
	if err != nil || v.Uint() != 42 {
		t.Errorf("GetVal() = %v, %v; want 42", v, err)
	}
	if a.Val().Uint() != 1 {
		t.Errorf("stored value = %d, want 1", a.Val().Uint())
	}

	s, _ := CreateAttribute(c, 1, AttributeFlagNone, CharString(""), 4)
	if err := s.SetOverrideCallback(nil); !errors.Is(err, ErrNotSupported) {
		t.Errorf("SetOverrideCallback(string) = %v, want ErrNotSupported", err)
	}
}

func TestDeferredPersistence(t *testing.T) {
	store := storage.NewMemoryStore()
	_, c, _ := newAttrFixture(t, store)
	plain, _ := CreateAttribute(c, 1, AttributeFlagNone, Uint8(0), 0)
	if err := plain.SetDeferredPersistence(); !errors.Is(err, ErrInvalidArg) {
		t.Errorf("SetDeferredPersistence(volatile) = %v, want ErrInvalidArg", err)
	}

	a, _ := CreateAttribute(c, 0, AttributeFlagNonvolatile, Uint8(0), 0)
	if err := a.SetDeferredPersistence(); err != nil {
		t.Fatal(err)
	}
	for i := uint8(1); i <= 5; i++ {
		if err := a.SetValInternal(Uint8(i), false); err != nil {
			t.Fatal(err)
		}
	}
	ns, key := attributeLocation(c.EndpointID(), c.ID(), 0)
	if _, err := store.Get(ns, key); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("value stored before the deferral elapsed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := store.Get(ns, key); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("deferred value never stored")
		}
		time.Sleep(5 * time.Millisecond)
	}
	n2 := NewNode(Config{Store: store})
	c2 := mustCluster(t, mustEndpoint(t, n2, EndpointFlagNone), c.ID(), ClusterFlagServer)
	a2, _ := CreateAttribute(c2, 0, AttributeFlagNonvolatile, Uint8(0), 0)
	if a2.Val().Uint() != 5 {
		t.Errorf("persisted value = %d, want 5", a2.Val().Uint())
	}
}

func TestAttributeLocation(t *testing.T) {
	tests := []struct {
		ep      EndpointID
		cluster ClusterID
		attr    AttributeID
		want    string
	}{
		{0, 0x0008, 0, "0/8/0"},
		{1, 0x0300, 0x4001, "1/300/4001"},
		{0x1234, 0xFFF1FC01, 0xFFFD, "1234/fff1fc01/f"},
	}
	for _, tt := range tests {
		ns, key := attributeLocation(tt.ep, tt.cluster, tt.attr)
		if ns != KVSNamespace || key != tt.want {
			t.Errorf("attributeLocation(%d, 0x%X, 0x%X) = %s/%s, want %s/%s", tt.ep, tt.cluster, tt.attr, ns, key, KVSNamespace, tt.want)
		}
		if len(key) > storage.MaxKeyLength {
			t.Errorf("key %q longer than %d", key, storage.MaxKeyLength)
		}
	}
}

func TestNonvolatileStorageLayout(t *testing.T) {
	store := storage.NewMemoryStore()
	_, c, _ := newAttrFixture(t, store)
	if c.EndpointID() != 0 {
		t.Fatalf("fixture endpoint = %d, want 0", c.EndpointID())
	}
	a, _ := CreateAttribute(c, 0, AttributeFlagNonvolatile, Uint8(0), 0)
	if err := a.SetValInternal(Uint8(7), false); err != nil {
		t.Fatal(err)
	}

	ns, err := store.Namespaces()
	if err != nil {
		t.Fatal(err)
	}
	if len(ns) != 1 || ns[0] != KVSNamespace {
		t.Errorf("Namespaces() = %v, want [%s]", ns, KVSNamespace)
	}
	data, err := store.Get(KVSNamespace, "0/8/0")
	if err != nil {
		t.Fatalf("Get(%s, 0/8/0): %v", KVSNamespace, err)
	}
	var v Val
	if err := v.UnmarshalCBOR(data); err != nil {
		t.Fatal(err)
	}
	if v.Type != a.Val().Type || v.Uint() != 7 {
		t.Errorf("stored %v, want uint8 7", v)
	}

	n2 := NewNode(Config{Store: store})
	c2 := mustCluster(t, mustEndpoint(t, n2, EndpointFlagNone), 0x0008, ClusterFlagServer)
	a2, _ := CreateAttribute(c2, 0, AttributeFlagNonvolatile, Uint8(0), 0)
	if a2.Val().Uint() != 7 {
		t.Errorf("reloaded value = %d, want 7", a2.Val().Uint())
	}
}

func TestNode_SetVal(t *testing.T) {
	n, c, _ := newAttrFixture(t, nil)
	ep := c.EndpointID()
	CreateAttribute(c, 0, AttributeFlagNone, Uint8(0), 0)
	CreateAttribute(c, 1, AttributeFlagManagedInternally, Uint8(0), 0)

	tests := []struct {
		name    string
		attr    AttributeID
		val     Val
		wantErr error
	}{
		{"invalid", 0, Invalid(), ErrInvalidArg},
		{"array", 0, Array(nil), ErrNotSupported},
		{"missing", 9, Uint8(1), ErrAttributeNotFound},
		{"type", 0, Uint16(1), ErrInvalidArg},
		{"internal", 1, Uint8(1), ErrNotSupported},
		{"ok", 0, Uint8(1), nil},
	}
	for _, tt := range tests {
		err := n.SetVal(ep, c.ID(), tt.attr, tt.val, true)
		if tt.wantErr == nil && err != nil || tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
			t.Errorf("%s: SetVal() = %v, want %v", tt.name, err, tt.wantErr)
		}
	}
	v, err := n.GetVal(ep, c.ID(), 0)
	if err != nil || v.Uint() != 1 {
		t.Errorf("GetVal() = %v, %v; want 1", v, err)
	}
}

func TestUpdateAndReport(t *testing.T) {
	var dirty []AttributePath
	n, c, rec := newAttrFixture(t, nil)
	n.SetReporter(ReporterFunc(func(p AttributePath) { dirty = append(dirty, p) }))
	ep := c.EndpointID()
	CreateAttribute(c, 0, AttributeFlagNone, Uint8(0), 0)

	if err := n.Update(ep, c.ID(), 0, Uint8(3)); err != nil {
		t.Fatal(err)
	}
	if len(rec.calls) != 2 {
		t.Errorf("Update ran %d callbacks, want 2", len(rec.calls))
	}
	if err := n.Update(ep, c.ID(), 0, Uint8(3)); err != nil {
		t.Errorf("Update(unchanged) = %v, want nil", err)
	}
	if err := n.Update(ep, 0x9999, 0, Uint8(3)); err != nil {
		t.Errorf("Update(no server cluster) = %v, want nil", err)
	}

	rec.calls = nil
	if err := n.Report(ep, c.ID(), 0, Uint8(7)); err != nil {
		t.Fatal(err)
	}
	if len(rec.calls) != 0 {
		t.Error("Report ran callbacks")
	}
	if err := n.Report(ep, c.ID(), 0, Uint8(7)); err != nil {
		t.Fatal(err)
	}
	if err := n.Report(ep, c.ID(), 0, Uint16(7)); !errors.Is(err, ErrInvalidArg) {
		t.Errorf("Report(type mismatch) = %v, want ErrInvalidArg", err)
	}
	if len(dirty) != 3 {
		t.Errorf("dirty paths = %d, want 3", len(dirty))
	}
}
