package endpoints

import (
	"github.com/espressif/esp-matter-sub221/pkg/clusters/accesscontrol"
	"github.com/espressif/esp-matter-sub221/pkg/clusters/basic"
	"github.com/espressif/esp-matter-sub221/pkg/clusters/generalcommissioning"
	"github.com/espressif/esp-matter-sub221/pkg/clusters/otarequestor"
	"github.com/espressif/esp-matter-sub221/pkg/datamodel"
)

// RootNodeConfig configures the root node endpoint.
type RootNodeConfig struct {
	Basic                basic.Config
	AccessControl        accesscontrol.Config
	GeneralCommissioning generalcommissioning.Config
}

// DefaultRootNodeConfig returns a root node with default commissioning
// parameters.
func DefaultRootNodeConfig() *RootNodeConfig {
	return &RootNodeConfig{GeneralCommissioning: *generalcommissioning.DefaultConfig()}
}

// CreateRootNode creates endpoint 0. It must be the first endpoint on
// node and is never destroyable.
func CreateRootNode(node *datamodel.Node, cfg *RootNodeConfig, priv any) (*datamodel.Endpoint, error) {
	return create(node, datamodel.EndpointFlagNone, priv, func(ep *datamodel.Endpoint) error {
		return AddRootNode(ep, cfg)
	})
}

// AddRootNode adds the root node device type to ep.
func AddRootNode(ep *datamodel.Endpoint, cfg *RootNodeConfig) error {
	if cfg == nil {
		cfg = DefaultRootNodeConfig()
	}
	return apply(ep, DeviceTypeRootNode,
		server(accesscontrol.Create, &cfg.AccessControl),
		server(basic.Create, &cfg.Basic),
		server(generalcommissioning.Create, &cfg.GeneralCommissioning),
	)
}

// OTAProviderClusterID is the OTA Software Update Provider cluster. Only
// its client role is modelled.
const OTAProviderClusterID datamodel.ClusterID = 0x0029

// OTARequestorConfig configures the OTA requestor device type.
type OTARequestorConfig struct {
	Requestor otarequestor.Config
}

// DefaultOTARequestorConfig returns an idle requestor.
func DefaultOTARequestorConfig() *OTARequestorConfig {
	return &OTARequestorConfig{Requestor: *otarequestor.DefaultConfig()}
}

// CreateOTARequestor creates an endpoint with the OTA requestor device
// type.
func CreateOTARequestor(node *datamodel.Node, cfg *OTARequestorConfig, flags datamodel.EndpointFlags, priv any) (*datamodel.Endpoint, error) {
	return create(node, flags, priv, func(ep *datamodel.Endpoint) error {
		return AddOTARequestor(ep, cfg)
	})
}

// AddOTARequestor adds the OTA requestor device type to ep. On a
// single-endpoint device this is the root node.
func AddOTARequestor(ep *datamodel.Endpoint, cfg *OTARequestorConfig) error {
	if cfg == nil {
		cfg = DefaultOTARequestorConfig()
	}
	return apply(ep, DeviceTypeOTARequestor,
		server(otarequestor.Create, &cfg.Requestor),
		clientID(OTAProviderClusterID),
	)
}
