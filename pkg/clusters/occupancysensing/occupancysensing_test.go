package occupancysensing

import (
	"testing"

	"github.com/espressif/esp-matter-sub221/pkg/clusters/clustertest"
	"github.com/espressif/esp-matter-sub221/pkg/datamodel"
)

func TestCreate(t *testing.T) {
	_, ep := clustertest.NewEndpoint(t)
	c, err := Create(ep, &Config{Occupancy: 0xFF, OccupancySensorType: SensorTypeUltrasonic, OccupancySensorTypeBitmap: 0xFF}, datamodel.ClusterFlagServer)
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		id   datamodel.AttributeID
		typ  datamodel.ValType
		want uint64
	}{
		{AttrOccupancy, datamodel.ValTypeBitmap8, 0x01},
		{AttrOccupancySensorType, datamodel.ValTypeEnum8, uint64(SensorTypeUltrasonic)},
		{AttrOccupancySensorTypeBitmap, datamodel.ValTypeBitmap8, 0x07},
	}
	for _, tt := range tests {
		v := c.Attribute(tt.id).Val()
		if v.Type != tt.typ || v.Uint() != tt.want {
			t.Errorf("attribute 0x%04X = %v, want %s %d", uint32(tt.id), v, tt.typ, tt.want)
		}
	}
	if c.Event(EventOccupancyChanged) == nil {
		t.Error("OccupancyChanged event missing")
	}
}

func TestSetOccupied(t *testing.T) {
	_, ep := clustertest.NewEndpoint(t)
	c, err := Create(ep, DefaultConfig(), datamodel.ClusterFlagServer)
	if err != nil {
		t.Fatal(err)
	}
	clustertest.Enable(t, ep)
	events := 0
	sink := func(datamodel.EndpointID, datamodel.ClusterID, datamodel.EventID, []byte) error {
		events++
		return nil
	}
	steps := []struct {
		occupied   bool
		wantEvents int
	}{
		{true, 1},
		{true, 1},
		{false, 2},
		{false, 2},
	}
	for i, s := range steps {
		if err := SetOccupied(sink, c, s.occupied); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if Occupied(c) != s.occupied || events != s.wantEvents {
			t.Errorf("step %d: occupied = %v, events = %d", i, Occupied(c), events)
		}
	}
}
