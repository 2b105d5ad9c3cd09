package datamodel

import "fmt"

type (
	// EndpointID is a 16-bit endpoint identifier.
	EndpointID uint16

	// ClusterID is a 32-bit cluster identifier.
	ClusterID uint32

	// AttributeID is a 32-bit attribute identifier.
	AttributeID uint32

	// CommandID is a 32-bit command identifier.
	CommandID uint32

	// EventID is a 32-bit event identifier.
	EventID uint32

	// DeviceTypeID is a 32-bit device type identifier.
	DeviceTypeID uint32

	// DataVersion is the per-cluster version bumped on every value change.
	DataVersion uint32
)

// Wildcard and invalid identifiers. ClusterCount treats the invalid
// endpoint and cluster ids as wildcards.
const (
	InvalidEndpointID  EndpointID  = 0xFFFF
	InvalidClusterID   ClusterID   = 0xFFFFFFFF
	InvalidAttributeID AttributeID = 0xFFFFFFFF
	InvalidCommandID   CommandID   = 0xFFFFFFFF
)

// Global attributes present on every cluster.
const (
	AttrGeneratedCommandList AttributeID = 0xFFF8
	AttrAcceptedCommandList  AttributeID = 0xFFF9
	AttrAttributeList        AttributeID = 0xFFFB
	AttrFeatureMap           AttributeID = 0xFFFC
	AttrClusterRevision      AttributeID = 0xFFFD
)

// AttributePath identifies a specific attribute within a cluster.
type AttributePath struct {
	Endpoint  EndpointID
	Cluster   ClusterID
	Attribute AttributeID
}

func (p AttributePath) String() string {
	return fmt.Sprintf("0x%04X/0x%08X/0x%08X", uint16(p.Endpoint), uint32(p.Cluster), uint32(p.Attribute))
}

// CommandPath identifies a specific command within a cluster.
type CommandPath struct {
	Endpoint EndpointID
	Cluster  ClusterID
	Command  CommandID
}

func (p CommandPath) String() string {
	return fmt.Sprintf("0x%04X/0x%08X/0x%08X", uint16(p.Endpoint), uint32(p.Cluster), uint32(p.Command))
}

// EndpointComposition defines endpoint composition patterns.
type EndpointComposition int

const (
	// CompositionFullFamily is a flat list of all descendant endpoints.
	// Used by Root Node and Aggregator device types.
	CompositionFullFamily EndpointComposition = iota

	// CompositionTree supports a general tree of endpoints.
	CompositionTree
)

func (c EndpointComposition) String() string {
	switch c {
	case CompositionTree:
		return "Tree"
	default:
		return "FullFamily"
	}
}
