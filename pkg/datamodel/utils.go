package datamodel

import (
	"errors"
	"fmt"
)

// Update writes val through the server write path with callbacks. It does
// nothing when the endpoint has no server instance of the cluster.
func (n *Node) Update(endpointID EndpointID, clusterID ClusterID, attributeID AttributeID, val Val) error {
	ep := n.Endpoint(endpointID)
	if ep == nil {
		return fmt.Errorf("%w: 0x%04X", ErrEndpointNotFound, uint16(endpointID))
	}
	c := ep.Cluster(clusterID)
	if c == nil || !c.IsServer() {
		return nil
	}
	a := c.Attribute(attributeID)
	if a == nil {
		return ErrAttributeNotFound
	}
	n.ValPrint(endpointID, clusterID, attributeID, val, false)
	err := a.SetValInternal(val, true)
	if errors.Is(err, ErrNotFinished) {
		return nil
	}
	return err
}

// Report stores val without callbacks and marks the attribute for
// reporting, for values changed by the device itself.
func (n *Node) Report(endpointID EndpointID, clusterID ClusterID, attributeID AttributeID, val Val) error {
	a := n.Attribute(endpointID, clusterID, attributeID)
	if a == nil {
		n.log.Errorf("Could not find attribute 0x%08X on cluster 0x%08X endpoint 0x%04X",
			uint32(attributeID), uint32(clusterID), uint16(endpointID))
		return ErrAttributeNotFound
	}
	if a.Type() != val.Type {
		return fmt.Errorf("%w: want %s, got %s", ErrInvalidArg, a.Type(), val.Type)
	}
	err := a.SetValInternal(val, false)
	switch {
	case errors.Is(err, ErrNotFinished):
		n.markDirty(a.Path())
		return nil
	case err != nil:
		return err
	}
	return nil
}

// ValPrint logs an attribute value read (R) or written (W).
func (n *Node) ValPrint(endpointID EndpointID, clusterID ClusterID, attributeID AttributeID, val Val, isRead bool) {
	action := 'W'
	if isRead {
		action = 'R'
	}
	n.log.Infof("********** %c : Endpoint 0x%04X's Cluster 0x%08X's Attribute 0x%08X is %s **********",
		action, uint16(endpointID), uint32(clusterID), uint32(attributeID), val)
}

// Update writes val on the process-wide node. See Node.Update.
func Update(endpointID EndpointID, clusterID ClusterID, attributeID AttributeID, val Val) error {
	n := Get()
	if n == nil {
		return ErrNoNode
	}
	return n.Update(endpointID, clusterID, attributeID, val)
}

// Report reports val on the process-wide node. See Node.Report.
func Report(endpointID EndpointID, clusterID ClusterID, attributeID AttributeID, val Val) error {
	n := Get()
	if n == nil {
		return ErrNoNode
	}
	return n.Report(endpointID, clusterID, attributeID, val)
}

// SetVal sets an attribute on the process-wide node. See Node.SetVal.
func SetVal(endpointID EndpointID, clusterID ClusterID, attributeID AttributeID, val Val, callCallbacks bool) error {
	n := Get()
	if n == nil {
		return ErrNoNode
	}
	return n.SetVal(endpointID, clusterID, attributeID, val, callCallbacks)
}

// GetVal reads an attribute on the process-wide node.
func GetVal(endpointID EndpointID, clusterID ClusterID, attributeID AttributeID) (Val, error) {
	n := Get()
	if n == nil {
		return Val{}, ErrNoNode
	}
	return n.GetVal(endpointID, clusterID, attributeID)
}

// SetCallback sets the application attribute callback of the process-wide node.
func SetCallback(cb AttributeCallback) error {
	n := Get()
	if n == nil {
		return ErrNoNode
	}
	n.SetAttributeCallback(cb)
	return nil
}
