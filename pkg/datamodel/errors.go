package datamodel

import "errors"

// Errors returned by datamodel operations.
var (
	// ErrInvalidArg indicates a nil handle, a type mismatch or an
	// out-of-bounds value.
	ErrInvalidArg = errors.New("datamodel: invalid argument")

	// ErrNotSupported indicates the operation does not apply to the
	// attribute, typically because it is managed internally.
	ErrNotSupported = errors.New("datamodel: not supported")

	// ErrNotFinished is returned by value setters when the new value equals
	// the stored one. Nothing was written and no callback ran.
	ErrNotFinished = errors.New("datamodel: value unchanged")

	// ErrNoMem indicates a string larger than the attribute's max size.
	ErrNoMem = errors.New("datamodel: value exceeds attribute size")

	// ErrInvalidState indicates the node is not in the state the operation needs.
	ErrInvalidState = errors.New("datamodel: invalid state")

	// ErrNodeExists is returned by Create when the default node already exists.
	ErrNodeExists = errors.New("datamodel: node already exists")

	// ErrNoNode is returned by package-level helpers when no node was created.
	ErrNoNode = errors.New("datamodel: node not created")

	// ErrEndpointNotFound indicates the requested endpoint does not exist.
	ErrEndpointNotFound = errors.New("datamodel: endpoint not found")

	// ErrEndpointExists indicates an endpoint with the same ID already exists.
	ErrEndpointExists = errors.New("datamodel: endpoint already exists")

	// ErrEndpointLimit indicates the dynamic endpoint budget is exhausted.
	ErrEndpointLimit = errors.New("datamodel: too many endpoints")

	// ErrEndpointNotDestroyable indicates the endpoint lacks EndpointFlagDestroyable.
	ErrEndpointNotDestroyable = errors.New("datamodel: endpoint not destroyable")

	// ErrEndpointIDUnused indicates a resumed endpoint id was never allocated.
	ErrEndpointIDUnused = errors.New("datamodel: endpoint id was never allocated")

	// ErrClusterNotFound indicates the requested cluster does not exist.
	ErrClusterNotFound = errors.New("datamodel: cluster not found")

	// ErrClusterFlags indicates neither server nor client was requested.
	ErrClusterFlags = errors.New("datamodel: cluster needs server or client flag")

	// ErrAttributeNotFound indicates the requested attribute does not exist.
	ErrAttributeNotFound = errors.New("datamodel: attribute not found")

	// ErrCommandNotFound indicates the requested command does not exist.
	ErrCommandNotFound = errors.New("datamodel: command not found")

	// ErrDeviceTypeLimit indicates MaxDeviceTypeCount was reached.
	ErrDeviceTypeLimit = errors.New("datamodel: too many device types")

	// ErrSemanticTagLimit indicates more than MaxSemanticTagCount tags.
	ErrSemanticTagLimit = errors.New("datamodel: too many semantic tags")

	// ErrBoundsNotSet indicates the attribute has no bounds.
	ErrBoundsNotSet = errors.New("datamodel: bounds not set")

	// ErrUnsupportedRead is the status for reads the data model cannot serve.
	ErrUnsupportedRead = errors.New("datamodel: unsupported read")

	// ErrUnsupportedWrite is the status for writes to non-writable attributes.
	ErrUnsupportedWrite = errors.New("datamodel: unsupported write")

	// ErrUnsupportedCommand is the status for commands absent from the cluster.
	ErrUnsupportedCommand = errors.New("datamodel: unsupported command")

	// ErrFailure is the generic failure status returned when an application
	// callback rejects an operation.
	ErrFailure = errors.New("datamodel: failure")
)
