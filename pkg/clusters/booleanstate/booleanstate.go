// Package booleanstate implements the Boolean State cluster (0x0045),
// used by contact sensors.
package booleanstate

import (
	"github.com/espressif/esp-matter-sub221/pkg/clusters"
	"github.com/espressif/esp-matter-sub221/pkg/datamodel"
)

// Cluster constants.
const (
	ClusterID       datamodel.ClusterID = 0x0045
	ClusterRevision uint16              = 1
)

// AttrStateValue is the only attribute.
const AttrStateValue datamodel.AttributeID = 0x0000

// EventStateChange is sent when StateValue changes.
const EventStateChange datamodel.EventID = 0x00

// Config holds the initial attribute value.
type Config struct {
	StateValue bool
}

var pluginInit = clusters.Once(func() {})

// Create adds the Boolean State cluster to ep.
func Create(ep *datamodel.Endpoint, cfg *Config, flags datamodel.ClusterFlags) (*datamodel.Cluster, error) {
	c, err := clusters.Create(ep, clusters.Spec{
		ID:         ClusterID,
		Revision:   ClusterRevision,
		PluginInit: pluginInit,
	}, flags)
	if err != nil {
		return nil, err
	}
	if flags&datamodel.ClusterFlagServer == 0 {
		return c, nil
	}
	if cfg == nil {
		ep.Node().LoggerFactory().NewLogger("cluster").Errorf("Config is NULL. Cannot add some attributes.")
		return c, nil
	}
	if err := clusters.CreateAttributes(c, clusters.Attr{ID: AttrStateValue, Val: datamodel.Bool(cfg.StateValue)}); err != nil {
		return nil, clusters.Abort(c, err)
	}
	if err := clusters.CreateEvents(c, EventStateChange); err != nil {
		return nil, clusters.Abort(c, err)
	}
	return c, nil
}

// SetState updates StateValue and sends StateChange to sink when it
// changes.
func SetState(sink clusters.EventSink, c *datamodel.Cluster, state bool) error {
	if State(c) == state {
		return nil
	}
	if err := clusters.Set(c, AttrStateValue, datamodel.Bool(state)); err != nil {
		return err
	}
	payload, err := clusters.NewCommandEncoder().Bool(0, state).Finish()
	if err != nil {
		return err
	}
	return clusters.Emit(sink, c, EventStateChange, payload)
}

// State returns StateValue.
func State(c *datamodel.Cluster) bool {
	return clusters.Get(c, AttrStateValue).Bool()
}
