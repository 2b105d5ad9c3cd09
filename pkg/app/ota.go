package app

import (
	"fmt"

	"github.com/espressif/esp-matter-sub221/pkg/clusters"
	"github.com/espressif/esp-matter-sub221/pkg/clusters/otarequestor"
	"github.com/espressif/esp-matter-sub221/pkg/datamodel"
	"github.com/espressif/esp-matter-sub221/pkg/ota"
)

// RootEndpoint hosts the OTA Software Update Requestor cluster.
const RootEndpoint datamodel.EndpointID = 0

// InitOTA hands the AnnounceOTAProvider command of the root endpoint's
// OTA requestor cluster to r and mirrors r's state into the cluster. The
// query loop itself is r.Run, started with the node.
func InitOTA(node *datamodel.Node, r *ota.Requestor, sink clusters.EventSink) error {
	if node == nil {
		return datamodel.ErrNoNode
	}
	ep := node.Endpoint(RootEndpoint)
	if ep == nil {
		return fmt.Errorf("%w: endpoint %d", datamodel.ErrEndpointNotFound, RootEndpoint)
	}
	c := ep.Cluster(otarequestor.ClusterID)
	if c == nil {
		return fmt.Errorf("%w: OTA requestor cluster on endpoint %d", datamodel.ErrClusterNotFound, RootEndpoint)
	}
	otarequestor.SetRequestor(c, r)
	if err := r.Attach(c, sink); err != nil {
		return err
	}
	node.LoggerFactory().NewLogger("app").Infof("OTA requestor initialized")
	return nil
}
