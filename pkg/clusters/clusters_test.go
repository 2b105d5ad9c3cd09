package clusters

import (
	"bytes"
	"errors"
	"testing"

	"github.com/espressif/esp-matter-sub221/pkg/datamodel"
	"github.com/espressif/esp-matter-sub221/pkg/tlv"
)

func TestValidateFeatures(t *testing.T) {
	const a, b, c = 1 << 0, 1 << 1, 1 << 2
	tests := []struct {
		name    string
		fm      uint32
		policy  FeaturePolicy
		wantErr bool
	}{
		{"exact one ok", a, ExactlyOne, false},
		{"exact one none", 0, ExactlyOne, true},
		{"exact one two", a | b, ExactlyOne, true},
		{"at least one ok", a | c, AtLeastOne, false},
		{"at least one none", 1 << 5, AtLeastOne, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFeatures(tt.fm, tt.policy, FeatureNames("A", "B", "C"), a, b, c)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateFeatures() = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidFeatures) {
				t.Errorf("error %v does not wrap ErrInvalidFeatures", err)
			}
		})
	}
}

func TestOnce(t *testing.T) {
	calls := 0
	cb := Once(func() { calls++ })
	cb()
	cb()
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestCreate_GlobalAttributes(t *testing.T) {
	n := datamodel.NewNode(datamodel.Config{})
	ep, err := n.CreateEndpoint(datamodel.EndpointFlagNone, nil)
	if err != nil {
		t.Fatal(err)
	}
	c, err := Create(ep, Spec{ID: 0x0006, Revision: 6, FeatureMap: 1}, datamodel.ClusterFlagServer)
	if err != nil {
		t.Fatal(err)
	}
	if got := Get(c, datamodel.AttrClusterRevision).Uint(); got != 6 {
		t.Errorf("ClusterRevision = %d, want 6", got)
	}
	if !HasFeature(c, 1) || HasFeature(c, 2) {
		t.Errorf("FeatureMap = 0x%X, want 0x1", FeatureMap(c))
	}
	if err := AddFeature(c, 4); err != nil {
		t.Fatal(err)
	}
	if FeatureMap(c) != 5 {
		t.Errorf("FeatureMap = 0x%X, want 0x5", FeatureMap(c))
	}

	client, err := Create(ep, Spec{ID: 0x0008, Revision: 5}, datamodel.ClusterFlagClient)
	if err != nil {
		t.Fatal(err)
	}
	if len(client.Attributes()) != 0 {
		t.Error("client cluster got server attributes")
	}

	if err := Abort(client, ErrInvalidFeatures); !errors.Is(err, ErrInvalidFeatures) {
		t.Errorf("Abort() = %v", err)
	}
	if ep.Cluster(0x0008) != nil {
		t.Error("Abort() did not destroy the cluster")
	}
}

func TestSet(t *testing.T) {
	n := datamodel.NewNode(datamodel.Config{})
	ep, _ := n.CreateEndpoint(datamodel.EndpointFlagNone, nil)
	c, _ := Create(ep, Spec{ID: 0x0006, Revision: 6}, datamodel.ClusterFlagServer)
	if err := CreateAttributes(c, Attr{ID: 0, Val: datamodel.Bool(false)}); err != nil {
		t.Fatal(err)
	}
	if err := Set(c, 0, datamodel.Bool(false)); err != nil {
		t.Errorf("Set(unchanged) = %v, want nil", err)
	}
	if err := Set(c, 0, datamodel.Bool(true)); err != nil || !Get(c, 0).Bool() {
		t.Errorf("Set(true) = %v, value %v", err, Get(c, 0))
	}
	if err := Set(c, 9, datamodel.Bool(true)); !errors.Is(err, datamodel.ErrAttributeNotFound) {
		t.Errorf("Set(missing) = %v", err)
	}
	if Get(c, 9).Type != datamodel.ValTypeInvalid {
		t.Error("Get(missing) returned a valid value")
	}
}

func TestFields(t *testing.T) {
	data, err := NewCommandEncoder().
		Uint(0, 254).
		Int(1, -3).
		Bool(2, true).
		String(3, "x").
		Bytes(4, []byte{1}).
		Null(5).
		Finish()
	if err != nil {
		t.Fatal(err)
	}
	f, err := DecodeFields(tlv.NewReader(bytes.NewReader(data)))
	if err != nil {
		t.Fatalf("DecodeFields() failed: %v", err)
	}
	if v, err := f.Uint(0); err != nil || v != 254 {
		t.Errorf("Uint(0) = %v, %v", v, err)
	}
	if v, err := f.Int(1); err != nil || v != -3 {
		t.Errorf("Int(1) = %v, %v", v, err)
	}
	if _, err := f.Uint(1); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("Uint(negative) = %v, want ErrInvalidRequest", err)
	}
	if v, err := f.Bool(2); err != nil || !v {
		t.Errorf("Bool(2) = %v, %v", v, err)
	}
	if v, err := f.String(3); err != nil || v != "x" {
		t.Errorf("String(3) = %v, %v", v, err)
	}
	if v, err := f.Bytes(4); err != nil || len(v) != 1 {
		t.Errorf("Bytes(4) = %v, %v", v, err)
	}
	if !f.IsNull(5) || f.IsNull(0) {
		t.Error("IsNull() mismatch")
	}
	if _, err := f.Uint(9); !errors.Is(err, ErrMissingField) {
		t.Errorf("Uint(missing) = %v, want ErrMissingField", err)
	}
	if f.UintOr(9, 7) != 7 {
		t.Error("UintOr() did not return the default")
	}
}

func TestFields_UintList(t *testing.T) {
	data, err := NewCommandEncoder().Uints(0, 1, 2, 3).Uints(1).String(2, "x").Finish()
	if err != nil {
		t.Fatal(err)
	}
	f, err := DecodeFields(tlv.NewReader(bytes.NewReader(data)))
	if err != nil {
		t.Fatalf("DecodeFields() failed: %v", err)
	}
	got, err := f.UintList(0)
	if err != nil || len(got) != 3 || got[2] != 3 {
		t.Errorf("UintList(0) = %v, %v", got, err)
	}
	if got, err := f.UintList(1); err != nil || len(got) != 0 {
		t.Errorf("UintList(empty) = %v, %v", got, err)
	}
	if got, err := f.UintList(9); err != nil || got != nil {
		t.Errorf("UintList(missing) = %v, %v", got, err)
	}
	if _, err := f.UintList(2); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("UintList(string) = %v, want ErrInvalidRequest", err)
	}
}

func TestDecodeFields_Empty(t *testing.T) {
	f, err := DecodeFields(tlv.NewReader(bytes.NewReader(nil)))
	if err != nil || len(f) != 0 {
		t.Errorf("DecodeFields(empty) = %v, %v", f, err)
	}
	var buf bytes.Buffer
	_ = tlv.NewWriter(&buf).PutUint(tlv.Anonymous(), 1)
	if _, err := DecodeFields(tlv.NewReader(&buf)); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("DecodeFields(scalar) = %v, want ErrInvalidRequest", err)
	}
}

func TestEmit(t *testing.T) {
	n := datamodel.NewNode(datamodel.Config{})
	ep, _ := n.CreateEndpoint(datamodel.EndpointFlagNone, nil)
	c, _ := Create(ep, Spec{ID: 0x0028, Revision: 3}, datamodel.ClusterFlagServer)
	if err := CreateEvents(c, 0); err != nil {
		t.Fatal(err)
	}
	var got []datamodel.EventID
	sink := func(epID datamodel.EndpointID, cl datamodel.ClusterID, id datamodel.EventID, payload []byte) error {
		got = append(got, id)
		return nil
	}
	if err := Emit(sink, c, 0, nil); err != nil {
		t.Fatalf("Emit() failed: %v", err)
	}
	if err := Emit(sink, c, 1, nil); !errors.Is(err, ErrEventNotFound) {
		t.Errorf("Emit(undeclared) = %v, want ErrEventNotFound", err)
	}
	if err := Emit(nil, c, 0, nil); err != nil {
		t.Errorf("Emit(nil sink) = %v", err)
	}
	if len(got) != 1 {
		t.Errorf("sink saw %d events, want 1", len(got))
	}
}
