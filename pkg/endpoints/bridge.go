package endpoints

import (
	"github.com/espressif/esp-matter-sub221/pkg/clusters/bridgeddevicebasic"
	"github.com/espressif/esp-matter-sub221/pkg/datamodel"
)

// CreateAggregator creates the aggregator endpoint of a bridge. Its parts
// list holds every bridged node below it.
func CreateAggregator(node *datamodel.Node, flags datamodel.EndpointFlags, priv any) (*datamodel.Endpoint, error) {
	return create(node, flags, priv, AddAggregator)
}

// AddAggregator adds the aggregator device type to ep.
func AddAggregator(ep *datamodel.Endpoint) error {
	if err := apply(ep, DeviceTypeAggregator); err != nil {
		return err
	}
	ep.SetCompositionPattern(datamodel.CompositionFullFamily)
	return nil
}

// BridgedNodeConfig configures a bridged node. Parent is usually the
// aggregator; nil leaves the endpoint at the top level.
type BridgedNodeConfig struct {
	Parent *datamodel.Endpoint
	Basic  bridgeddevicebasic.Config
}

// DefaultBridgedNodeConfig returns a reachable bridged node under parent.
func DefaultBridgedNodeConfig(parent *datamodel.Endpoint) *BridgedNodeConfig {
	return &BridgedNodeConfig{Parent: parent, Basic: bridgeddevicebasic.Config{Reachable: true}}
}

// CreateBridgedNode creates a bridged node endpoint. The device type of
// the bridged device is added to the same endpoint afterwards, e.g. with
// AddOnOffLight. EndpointFlagBridge is always set.
func CreateBridgedNode(node *datamodel.Node, cfg *BridgedNodeConfig, flags datamodel.EndpointFlags, priv any) (*datamodel.Endpoint, error) {
	return create(node, flags|datamodel.EndpointFlagBridge, priv, func(ep *datamodel.Endpoint) error {
		return AddBridgedNode(ep, cfg)
	})
}

// ResumeBridgedNode recreates a bridged node with a previously allocated
// endpoint id, typically after a reboot.
func ResumeBridgedNode(node *datamodel.Node, cfg *BridgedNodeConfig, id datamodel.EndpointID, flags datamodel.EndpointFlags, priv any) (*datamodel.Endpoint, error) {
	if node == nil {
		return nil, datamodel.ErrNoNode
	}
	ep, err := node.ResumeEndpoint(flags|datamodel.EndpointFlagBridge, id, priv)
	if err != nil {
		return nil, err
	}
	if err := AddBridgedNode(ep, cfg); err != nil {
		if flags&datamodel.EndpointFlagDestroyable != 0 {
			_ = node.DestroyEndpoint(ep)
		}
		return nil, err
	}
	return ep, nil
}

// AddBridgedNode adds the bridged node device type to ep.
func AddBridgedNode(ep *datamodel.Endpoint, cfg *BridgedNodeConfig) error {
	if cfg == nil {
		cfg = DefaultBridgedNodeConfig(nil)
	}
	if err := apply(ep, DeviceTypeBridgedNode, server(bridgeddevicebasic.Create, &cfg.Basic)); err != nil {
		return err
	}
	if cfg.Parent != nil {
		return ep.SetParentEndpoint(cfg.Parent)
	}
	return nil
}
