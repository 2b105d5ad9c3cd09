package datamodel

// EndpointFlags control endpoint lifetime.
type EndpointFlags uint8

const (
	EndpointFlagNone EndpointFlags = 0
	// EndpointFlagDestroyable allows DestroyEndpoint.
	EndpointFlagDestroyable EndpointFlags = 0x01
	// EndpointFlagBridge marks endpoints that represent bridged devices.
	EndpointFlagBridge EndpointFlags = 0x02
)

// ClusterFlags carry the cluster role and which functions it has.
type ClusterFlags uint16

const (
	ClusterFlagNone                        ClusterFlags = 0
	ClusterFlagInitFunction                ClusterFlags = 0x01
	ClusterFlagAttributeChangedFunction    ClusterFlags = 0x02
	ClusterFlagShutdownFunction            ClusterFlags = 0x10
	ClusterFlagPreAttributeChangedFunction ClusterFlags = 0x20
	ClusterFlagServer                      ClusterFlags = 0x40
	ClusterFlagClient                      ClusterFlags = 0x80
)

// AttributeFlags describe attribute storage and access.
type AttributeFlags uint16

const (
	AttributeFlagNone     AttributeFlags = 0
	AttributeFlagWritable AttributeFlags = 0x01
	// AttributeFlagNonvolatile persists the value in the store.
	AttributeFlagNonvolatile AttributeFlags = 0x02
	// AttributeFlagMinMax is set by AddBounds.
	AttributeFlagMinMax            AttributeFlags = 0x04
	AttributeFlagTimedWrite        AttributeFlags = 0x08
	AttributeFlagExternalStorage   AttributeFlags = 0x10
	AttributeFlagNullable          AttributeFlags = 0x40
	AttributeFlagOverride          AttributeFlags = 0x80
	AttributeFlagDeferred          AttributeFlags = 0x100
	AttributeFlagManagedInternally AttributeFlags = 0x200
)

// CommandFlags carry the command direction.
type CommandFlags uint8

const (
	CommandFlagNone CommandFlags = 0
	// CommandFlagCustom routes the command to the node's custom callback.
	CommandFlagCustom CommandFlags = 0x01
	// CommandFlagAccepted marks client generated (request) commands.
	CommandFlagAccepted CommandFlags = 0x02
	// CommandFlagGenerated marks server generated (response) commands.
	CommandFlagGenerated CommandFlags = 0x04
)
