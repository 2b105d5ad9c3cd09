package datamodel

import (
	"context"

	"github.com/espressif/esp-matter-sub221/pkg/tlv"
)

// CallbackType tells an AttributeCallback which phase it is called for.
type CallbackType int

const (
	// PreUpdate runs before a value is stored. An error vetoes the update.
	PreUpdate CallbackType = iota
	// PostUpdate runs after a value was stored.
	PostUpdate
	// Read asks an override callback for the current value.
	Read
	// Write hands a written value to an override callback.
	Write
)

func (t CallbackType) String() string {
	switch t {
	case PreUpdate:
		return "PreUpdate"
	case PostUpdate:
		return "PostUpdate"
	case Read:
		return "Read"
	case Write:
		return "Write"
	}
	return "Unknown"
}

// AttributeCallback is the application hook for attribute changes. priv is
// the private data of the endpoint owning the attribute.
type AttributeCallback func(typ CallbackType, endpointID EndpointID, clusterID ClusterID,
	attributeID AttributeID, val *Val, priv any) error

// CommandCallback handles an invoked command. The returned bytes are the
// TLV encoded response fields, or nil for a status-only response.
type CommandCallback func(ctx context.Context, path CommandPath, r *tlv.Reader, priv any) ([]byte, error)

// CustomCommandCallback handles commands created with CommandFlagCustom.
// A nil error is reported as Success, anything else as Failure.
type CustomCommandCallback func(ctx context.Context, path CommandPath, r *tlv.Reader, priv any) error

// IdentifyCallbackType is the identification event kind.
type IdentifyCallbackType int

const (
	IdentifyStart IdentifyCallbackType = iota
	IdentifyStop
	IdentifyEffect
)

func (t IdentifyCallbackType) String() string {
	switch t {
	case IdentifyStart:
		return "Start"
	case IdentifyStop:
		return "Stop"
	case IdentifyEffect:
		return "Effect"
	}
	return "Unknown"
}

// IdentifyCallback is invoked for identification start, stop and effects.
type IdentifyCallback func(typ IdentifyCallbackType, endpointID EndpointID,
	effectID, effectVariant uint8, priv any) error

// PluginInitCallback initialises server logic for a cluster type. Cluster
// builders wrap it so it runs once per process.
type PluginInitCallback func()

// DelegateInitCallback attaches a delegate to the cluster on endpointID.
type DelegateInitCallback func(delegate any, endpointID EndpointID)

// AddBoundsCallback installs bounds on the attributes of c.
type AddBoundsCallback func(c *Cluster)

// InitCallback and ShutdownCallback run when a cluster is brought up or
// torn down on an endpoint.
type (
	InitCallback     func(endpointID EndpointID) error
	ShutdownCallback func(endpointID EndpointID)
)

// ClusterFunctions is the per-cluster function list. Setting it via
// SetFunctions also sets the matching cluster function flags.
type ClusterFunctions struct {
	Init                func(endpointID EndpointID)
	AttributeChanged    func(path AttributePath)
	Shutdown            func(endpointID EndpointID)
	PreAttributeChanged func(path AttributePath, val Val) error
}

// AttributeProvider serves reads of internally managed attributes.
type AttributeProvider func(ctx context.Context, path AttributePath, w *tlv.Writer, tag tlv.Tag) error

// Reporter receives attribute paths that must be reported to subscribers.
type Reporter interface {
	MarkDirty(path AttributePath)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(path AttributePath)

// MarkDirty calls f(path).
func (f ReporterFunc) MarkDirty(path AttributePath) { f(path) }
