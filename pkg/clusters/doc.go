// Package clusters holds the helpers shared by the cluster builders in its
// subpackages: cluster creation with the global attributes, feature
// validation, one-shot plugin init callbacks and command field decoding.
//
// Each subpackage exposes the same shape:
//
//	cfg := onoff.Config{OnOff: true}
//	c, err := onoff.Create(ep, &cfg, datamodel.ClusterFlagServer)
//
// Server command handlers change attributes through the data model with
// callbacks enabled, so the application attribute callback sees every
// change no matter where it came from.
package clusters
