package endpoints

import (
	"errors"
	"reflect"
	"testing"

	"github.com/espressif/esp-matter-sub221/pkg/clusters"
	"github.com/espressif/esp-matter-sub221/pkg/clusters/descriptor"
	"github.com/espressif/esp-matter-sub221/pkg/clusters/genericswitch"
	"github.com/espressif/esp-matter-sub221/pkg/clusters/onoff"
	"github.com/espressif/esp-matter-sub221/pkg/datamodel"
	"github.com/espressif/esp-matter-sub221/pkg/storage"
)

func newNode(t *testing.T) *datamodel.Node {
	t.Helper()
	n := datamodel.NewNode(datamodel.Config{Store: storage.NewMemoryStore()})
	t.Cleanup(func() { _ = n.Destroy() })
	return n
}

func ids(in []datamodel.ClusterID) []uint32 {
	out := make([]uint32, len(in))
	for i, id := range in {
		out[i] = uint32(id)
	}
	return out
}

func TestCreate_DeviceTypes(t *testing.T) {
	const flags = datamodel.EndpointFlagDestroyable
	tests := []struct {
		name    string
		create  func(*datamodel.Node) (*datamodel.Endpoint, error)
		devType datamodel.DeviceTypeID
		servers []uint32
		clients []uint32
	}{
		{
			name:    "root node",
			create:  func(n *datamodel.Node) (*datamodel.Endpoint, error) { return CreateRootNode(n, nil, nil) },
			devType: DeviceTypeRootNode,
			servers: []uint32{0x1D, 0x1F, 0x28, 0x30},
		},
		{
			name:    "ota requestor",
			create:  func(n *datamodel.Node) (*datamodel.Endpoint, error) { return CreateOTARequestor(n, nil, flags, nil) },
			devType: DeviceTypeOTARequestor,
			servers: []uint32{0x1D, 0x2A},
			clients: []uint32{0x29},
		},
		{
			name:    "on/off light",
			create:  func(n *datamodel.Node) (*datamodel.Endpoint, error) { return CreateOnOffLight(n, nil, flags, nil) },
			devType: DeviceTypeOnOffLight,
			servers: []uint32{0x1D, 0x03, 0x04, 0x06},
		},
		{
			name:    "dimmable light",
			create:  func(n *datamodel.Node) (*datamodel.Endpoint, error) { return CreateDimmableLight(n, nil, flags, nil) },
			devType: DeviceTypeDimmableLight,
			servers: []uint32{0x1D, 0x03, 0x04, 0x06, 0x08},
		},
		{
			name: "color temperature light",
			create: func(n *datamodel.Node) (*datamodel.Endpoint, error) {
				return CreateColorTemperatureLight(n, nil, flags, nil)
			},
			devType: DeviceTypeColorTemperatureLight,
			servers: []uint32{0x1D, 0x03, 0x04, 0x06, 0x08, 0x300},
		},
		{
			name:    "extended color light",
			create:  func(n *datamodel.Node) (*datamodel.Endpoint, error) { return CreateExtendedColorLight(n, nil, flags, nil) },
			devType: DeviceTypeExtendedColorLight,
			servers: []uint32{0x1D, 0x03, 0x04, 0x06, 0x08, 0x300},
		},
		{
			name:    "on/off plug-in unit",
			create:  func(n *datamodel.Node) (*datamodel.Endpoint, error) { return CreateOnOffPlugInUnit(n, nil, flags, nil) },
			devType: DeviceTypeOnOffPlugInUnit,
			servers: []uint32{0x1D, 0x03, 0x04, 0x06},
		},
		{
			name:    "dimmable plug-in unit",
			create:  func(n *datamodel.Node) (*datamodel.Endpoint, error) { return CreateDimmablePlugInUnit(n, nil, flags, nil) },
			devType: DeviceTypeDimmablePlugInUnit,
			servers: []uint32{0x1D, 0x03, 0x04, 0x06, 0x08},
		},
		{
			name:    "on/off light switch",
			create:  func(n *datamodel.Node) (*datamodel.Endpoint, error) { return CreateOnOffLightSwitch(n, nil, flags, nil) },
			devType: DeviceTypeOnOffLightSwitch,
			servers: []uint32{0x1D, 0x03, 0x1E},
			clients: []uint32{0x06},
		},
		{
			name:    "generic switch",
			create:  func(n *datamodel.Node) (*datamodel.Endpoint, error) { return CreateGenericSwitch(n, nil, flags, nil) },
			devType: DeviceTypeGenericSwitch,
			servers: []uint32{0x1D, 0x03, 0x3B},
		},
		{
			name:    "temperature sensor",
			create:  func(n *datamodel.Node) (*datamodel.Endpoint, error) { return CreateTemperatureSensor(n, nil, flags, nil) },
			devType: DeviceTypeTemperatureSensor,
			servers: []uint32{0x1D, 0x03, 0x402},
		},
		{
			name:    "occupancy sensor",
			create:  func(n *datamodel.Node) (*datamodel.Endpoint, error) { return CreateOccupancySensor(n, nil, flags, nil) },
			devType: DeviceTypeOccupancySensor,
			servers: []uint32{0x1D, 0x03, 0x406},
		},
		{
			name:    "contact sensor",
			create:  func(n *datamodel.Node) (*datamodel.Endpoint, error) { return CreateContactSensor(n, nil, flags, nil) },
			devType: DeviceTypeContactSensor,
			servers: []uint32{0x1D, 0x03, 0x45},
		},
		{
			name:    "fan",
			create:  func(n *datamodel.Node) (*datamodel.Endpoint, error) { return CreateFan(n, nil, flags, nil) },
			devType: DeviceTypeFan,
			servers: []uint32{0x1D, 0x03, 0x04, 0x202},
		},
		{
			name:    "thermostat",
			create:  func(n *datamodel.Node) (*datamodel.Endpoint, error) { return CreateThermostat(n, nil, flags, nil) },
			devType: DeviceTypeThermostat,
			servers: []uint32{0x1D, 0x03, 0x201},
		},
		{
			name:    "door lock",
			create:  func(n *datamodel.Node) (*datamodel.Endpoint, error) { return CreateDoorLock(n, nil, flags, nil) },
			devType: DeviceTypeDoorLock,
			servers: []uint32{0x1D, 0x03, 0x101},
		},
		{
			name:    "aggregator",
			create:  func(n *datamodel.Node) (*datamodel.Endpoint, error) { return CreateAggregator(n, flags, nil) },
			devType: DeviceTypeAggregator,
			servers: []uint32{0x1D},
		},
		{
			name:    "bridged node",
			create:  func(n *datamodel.Node) (*datamodel.Endpoint, error) { return CreateBridgedNode(n, nil, flags, nil) },
			devType: DeviceTypeBridgedNode,
			servers: []uint32{0x1D, 0x39},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ep, err := tt.create(newNode(t))
			if err != nil {
				t.Fatalf("create failed: %v", err)
			}
			want := []datamodel.DeviceType{{ID: tt.devType, Revision: Revision(tt.devType)}}
			if got := ep.DeviceTypes(); !reflect.DeepEqual(got, want) {
				t.Errorf("DeviceTypes() = %v, want %v", got, want)
			}
			if Revision(tt.devType) == 0 {
				t.Errorf("no revision for device type 0x%04X", uint32(tt.devType))
			}
			if got := ids(ep.ServerClusters()); !reflect.DeepEqual(got, tt.servers) {
				t.Errorf("ServerClusters() = %#x, want %#x", got, tt.servers)
			}
			if got := ids(ep.ClientClusters()); len(got) != len(tt.clients) || (len(got) > 0 && !reflect.DeepEqual(got, tt.clients)) {
				t.Errorf("ClientClusters() = %#x, want %#x", got, tt.clients)
			}
		})
	}
}

func TestCreate_LightingFeatures(t *testing.T) {
	n := newNode(t)
	ep, err := CreateColorTemperatureLight(n, nil, datamodel.EndpointFlagNone, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !clusters.HasFeature(ep.Cluster(onoff.ClusterID), onoff.FeatureLighting) {
		t.Error("OnOff lacks the lighting feature")
	}
	if got := clusters.FeatureMap(ep.Cluster(0x0300)); got != 1<<4 {
		t.Errorf("ColorControl FeatureMap = %#x, want CT only", got)
	}

	plug, err := CreateDimmablePlugInUnit(n, nil, datamodel.EndpointFlagNone, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := clusters.FeatureMap(plug.Cluster(0x0008)); got != 1 {
		t.Errorf("plug LevelControl FeatureMap = %#x, want OO only", got)
	}
}

func TestCreate_FailureDestroysEndpoint(t *testing.T) {
	n := newNode(t)
	cfg := DefaultGenericSwitchConfig()
	cfg.Switch = genericswitch.Config{NumberOfPositions: 2}

	ep, err := CreateGenericSwitch(n, cfg, datamodel.EndpointFlagDestroyable, nil)
	if !errors.Is(err, clusters.ErrInvalidFeatures) {
		t.Fatalf("CreateGenericSwitch() error = %v, want ErrInvalidFeatures", err)
	}
	if ep != nil {
		t.Error("endpoint returned on failure")
	}
	if got := n.EndpointCount(); got != 0 {
		t.Errorf("EndpointCount() = %d after failed create, want 0", got)
	}
}

func TestCreate_NilNode(t *testing.T) {
	if _, err := CreateOnOffLight(nil, nil, datamodel.EndpointFlagNone, nil); !errors.Is(err, datamodel.ErrNoNode) {
		t.Errorf("CreateOnOffLight(nil) error = %v, want ErrNoNode", err)
	}
	if err := AddOnOffLight(nil, nil); !errors.Is(err, ErrNilEndpoint) {
		t.Errorf("AddOnOffLight(nil) error = %v, want ErrNilEndpoint", err)
	}
}

func TestBridge(t *testing.T) {
	n := newNode(t)
	if _, err := CreateRootNode(n, nil, nil); err != nil {
		t.Fatal(err)
	}
	agg, err := CreateAggregator(n, datamodel.EndpointFlagNone, nil)
	if err != nil {
		t.Fatal(err)
	}
	bridged, err := CreateBridgedNode(n, DefaultBridgedNodeConfig(agg), datamodel.EndpointFlagDestroyable, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := AddOnOffLight(bridged, nil); err != nil {
		t.Fatalf("AddOnOffLight() failed: %v", err)
	}

	if bridged.Flags()&datamodel.EndpointFlagBridge == 0 {
		t.Error("bridged endpoint lacks EndpointFlagBridge")
	}
	if got := bridged.ParentEndpointID(); got != agg.ID() {
		t.Errorf("ParentEndpointID() = %d, want %d", got, agg.ID())
	}
	want := []datamodel.DeviceType{
		{ID: DeviceTypeBridgedNode, Revision: 2},
		{ID: DeviceTypeOnOffLight, Revision: 3},
	}
	if got := bridged.DeviceTypes(); !reflect.DeepEqual(got, want) {
		t.Errorf("DeviceTypes() = %v, want %v", got, want)
	}
	if got := len(bridged.Clusters()); got != 5 {
		t.Errorf("bridged endpoint has %d clusters, want 5 with a single descriptor", got)
	}
	if got := descriptor.PartsList(agg); !reflect.DeepEqual(got, []uint64{uint64(bridged.ID())}) {
		t.Errorf("aggregator PartsList = %v, want [%d]", got, bridged.ID())
	}

	id := bridged.ID()
	if err := n.DestroyEndpoint(bridged); err != nil {
		t.Fatal(err)
	}
	resumed, err := ResumeBridgedNode(n, DefaultBridgedNodeConfig(agg), id, datamodel.EndpointFlagDestroyable, nil)
	if err != nil {
		t.Fatalf("ResumeBridgedNode() failed: %v", err)
	}
	if resumed.ID() != id {
		t.Errorf("resumed id = %d, want %d", resumed.ID(), id)
	}
	if _, err := ResumeBridgedNode(n, nil, id, datamodel.EndpointFlagNone, nil); !errors.Is(err, datamodel.ErrEndpointExists) {
		t.Errorf("second ResumeBridgedNode() error = %v, want ErrEndpointExists", err)
	}
}
