// Package endpoints composes clusters into Matter device types.
//
// Every device type has a Config holding the configs of its clusters, a
// Create function that allocates a new endpoint and an Add function that
// puts the device type onto an existing endpoint. Every endpoint carries
// a Descriptor cluster. Device type revisions follow Matter 1.3.
package endpoints

import (
	"fmt"

	"github.com/espressif/esp-matter-sub221/pkg/clusters/descriptor"
	"github.com/espressif/esp-matter-sub221/pkg/datamodel"
)

// Device type IDs.
const (
	DeviceTypeRootNode              datamodel.DeviceTypeID = 0x0016
	DeviceTypeOTARequestor          datamodel.DeviceTypeID = 0x0012
	DeviceTypeOnOffLight            datamodel.DeviceTypeID = 0x0100
	DeviceTypeDimmableLight         datamodel.DeviceTypeID = 0x0101
	DeviceTypeColorTemperatureLight datamodel.DeviceTypeID = 0x010C
	DeviceTypeExtendedColorLight    datamodel.DeviceTypeID = 0x010D
	DeviceTypeOnOffPlugInUnit       datamodel.DeviceTypeID = 0x010A
	DeviceTypeDimmablePlugInUnit    datamodel.DeviceTypeID = 0x010B
	DeviceTypeOnOffLightSwitch      datamodel.DeviceTypeID = 0x0103
	DeviceTypeGenericSwitch         datamodel.DeviceTypeID = 0x000F
	DeviceTypeTemperatureSensor     datamodel.DeviceTypeID = 0x0302
	DeviceTypeOccupancySensor       datamodel.DeviceTypeID = 0x0107
	DeviceTypeContactSensor         datamodel.DeviceTypeID = 0x0015
	DeviceTypeFan                   datamodel.DeviceTypeID = 0x002B
	DeviceTypeThermostat            datamodel.DeviceTypeID = 0x0301
	DeviceTypeDoorLock              datamodel.DeviceTypeID = 0x000A
	DeviceTypeAggregator            datamodel.DeviceTypeID = 0x000E
	DeviceTypeBridgedNode           datamodel.DeviceTypeID = 0x0013
)

// revisions holds the device type revision of every supported type.
var revisions = map[datamodel.DeviceTypeID]uint8{
	DeviceTypeRootNode:              2,
	DeviceTypeOTARequestor:          1,
	DeviceTypeOnOffLight:            3,
	DeviceTypeDimmableLight:         3,
	DeviceTypeColorTemperatureLight: 4,
	DeviceTypeExtendedColorLight:    4,
	DeviceTypeOnOffPlugInUnit:       3,
	DeviceTypeDimmablePlugInUnit:    4,
	DeviceTypeOnOffLightSwitch:      3,
	DeviceTypeGenericSwitch:         2,
	DeviceTypeTemperatureSensor:     2,
	DeviceTypeOccupancySensor:       4,
	DeviceTypeContactSensor:         1,
	DeviceTypeFan:                   2,
	DeviceTypeThermostat:            3,
	DeviceTypeDoorLock:              3,
	DeviceTypeAggregator:            1,
	DeviceTypeBridgedNode:           2,
}

// Revision returns the revision of device type id, 0 if unknown.
func Revision(id datamodel.DeviceTypeID) uint8 { return revisions[id] }

// ErrNilEndpoint is returned by the Add functions for a nil endpoint.
var ErrNilEndpoint = fmt.Errorf("%w: endpoint is nil", datamodel.ErrInvalidArg)

// create allocates an endpoint on node and runs add on it. The endpoint
// is destroyed again when add fails and it is destroyable.
func create(node *datamodel.Node, flags datamodel.EndpointFlags, priv any, add func(*datamodel.Endpoint) error) (*datamodel.Endpoint, error) {
	if node == nil {
		return nil, datamodel.ErrNoNode
	}
	ep, err := node.CreateEndpoint(flags, priv)
	if err != nil {
		return nil, err
	}
	if err := add(ep); err != nil {
		node.LoggerFactory().NewLogger("endpoint").Errorf("Failed to add device type to endpoint 0x%04X: %v", uint16(ep.ID()), err)
		if flags&datamodel.EndpointFlagDestroyable != 0 {
			_ = node.DestroyEndpoint(ep)
		}
		return nil, err
	}
	return ep, nil
}

// addDeviceType puts device type id and a Descriptor onto ep.
func addDeviceType(ep *datamodel.Endpoint, id datamodel.DeviceTypeID) error {
	if ep == nil {
		return ErrNilEndpoint
	}
	if err := ep.AddDeviceType(id, revisions[id]); err != nil {
		return err
	}
	if ep.Cluster(descriptor.ClusterID) != nil {
		return nil
	}
	_, err := descriptor.Create(ep, nil, datamodel.ClusterFlagServer)
	return err
}

// step is one cluster creation in a device type.
type step func(ep *datamodel.Endpoint) error

// apply adds device type id to ep and runs steps in order.
func apply(ep *datamodel.Endpoint, id datamodel.DeviceTypeID, steps ...step) error {
	if err := addDeviceType(ep, id); err != nil {
		return err
	}
	for _, s := range steps {
		if err := s(ep); err != nil {
			return fmt.Errorf("device type 0x%04X: %w", uint32(id), err)
		}
	}
	return nil
}

// server and client wrap a cluster Create function as a step.
func server[C any](fn func(*datamodel.Endpoint, *C, datamodel.ClusterFlags) (*datamodel.Cluster, error), cfg *C) step {
	return func(ep *datamodel.Endpoint) error {
		_, err := fn(ep, cfg, datamodel.ClusterFlagServer)
		return err
	}
}

func client[C any](fn func(*datamodel.Endpoint, *C, datamodel.ClusterFlags) (*datamodel.Cluster, error)) step {
	return func(ep *datamodel.Endpoint) error {
		_, err := fn(ep, nil, datamodel.ClusterFlagClient)
		return err
	}
}

// clientID creates a client cluster that has no package of its own.
func clientID(id datamodel.ClusterID) step {
	return func(ep *datamodel.Endpoint) error {
		_, err := datamodel.CreateCluster(ep, id, datamodel.ClusterFlagClient)
		return err
	}
}
