package temperaturemeasurement

import (
	"errors"
	"testing"

	"github.com/espressif/esp-matter-sub221/pkg/clusters/clustertest"
	"github.com/espressif/esp-matter-sub221/pkg/datamodel"
)

func ptr(v int16) *int16 { return &v }

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
	c := newServer(t, &Config{})
	for _, id := range []datamodel.AttributeID{AttrMeasuredValue, AttrMinMeasuredValue, AttrMaxMeasuredValue} {
		a := c.Attribute(id)
		if a == nil {
			t.Fatalf("attribute 0x%04X missing", uint32(id))
		}
		if !a.Val().IsNull() {
			t.Errorf("attribute 0x%04X = %v, want null", uint32(id), a.Val())
		}
	}
	if _, ok := MeasuredValue(c); ok {
		t.Error("MeasuredValue known before the first measurement")
	}
}

func TestSetMeasuredValue(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		v       *int16
		wantErr error
	}{
		{"Unbounded", Config{}, ptr(-4000), nil},
		{"InRange", Config{MinMeasuredValue: ptr(-1000), MaxMeasuredValue: ptr(5000)}, ptr(2150), nil},
		{"BelowMin", Config{MinMeasuredValue: ptr(-1000)}, ptr(-1001), ErrOutOfRange},
		{"AboveMax", Config{MaxMeasuredValue: ptr(5000)}, ptr(5001), ErrOutOfRange},
		{"Unknown", Config{MeasuredValue: ptr(100)}, nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newServer(t, &tt.cfg)
			err := SetMeasuredValue(c, tt.v)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("SetMeasuredValue() = %v, want %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			got, ok := MeasuredValue(c)
			if ok != (tt.v != nil) || (ok && got != *tt.v) {
				t.Errorf("MeasuredValue() = %d, %v", got, ok)
			}
		})
	}
}

func TestAttributeToleranceCreate(t *testing.T) {
	c := newServer(t, &Config{})
	if err := AttributeToleranceCreate(c, 5000); err != nil {
		t.Fatal(err)
	}
	if got := c.Attribute(AttrTolerance).Val().Uint(); got != 2048 {
		t.Errorf("Tolerance = %d, want 2048", got)
	}
}
