package datamodel

import (
	"fmt"
	"sync"
)

// DeviceType is a device type id with its revision.
type DeviceType struct {
	ID       DeviceTypeID
	Revision uint8
}

// NullMfgCode marks a semantic tag from a standard namespace.
const NullMfgCode uint16 = 0xFFFF

// SemanticTag describes an endpoint in the Descriptor TagList.
type SemanticTag struct {
	MfgCode     uint16
	NamespaceID uint8
	Tag         uint8
	Label       string
}

// Endpoint is a set of clusters with a device type list.
type Endpoint struct {
	node *Node
	id   EndpointID

	mu           sync.RWMutex
	enabled      bool
	flags        EndpointFlags
	deviceTypes  []DeviceType
	parent       EndpointID
	composition  EndpointComposition
	semanticTags []SemanticTag
	priv         any
	identify     *Identify
	clusters     []*Cluster
}

// CreateEndpoint allocates the next endpoint id and appends a new
// endpoint. The id counter is persisted when the node is started.
func (n *Node) CreateEndpoint(flags EndpointFlags, priv any) (*Endpoint, error) {
	n.mu.Lock()
	if len(n.endpoints) >= n.maxEndpoints {
		n.mu.Unlock()
		n.log.Errorf("Dynamic endpoint count cannot be greater than %d", n.maxEndpoints)
		return nil, ErrEndpointLimit
	}
	ep := n.newEndpoint(n.minUnusedEndpointID, flags, priv)
	n.minUnusedEndpointID++
	n.endpoints = append(n.endpoints, ep)
	n.mu.Unlock()

	if n.Started() {
		if err := n.StoreMinUnusedEndpointID(); err != nil {
			n.log.Errorf("Error storing min unused endpoint id: %v", err)
		}
	}
	return ep, nil
}

// ResumeEndpoint recreates an endpoint under an id allocated in a previous
// run, typically a bridged device restored after reboot.
func (n *Node) ResumeEndpoint(flags EndpointFlags, id EndpointID, priv any) (*Endpoint, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, ep := range n.endpoints {
		if ep.id == id {
			n.log.Errorf("Could not resume an endpoint that has been added to the node")
			return nil, fmt.Errorf("%w: 0x%04X", ErrEndpointExists, uint16(id))
		}
	}
	if id >= n.minUnusedEndpointID {
		n.log.Errorf("The endpoint_id of the resumed endpoint should have been used")
		return nil, fmt.Errorf("%w: 0x%04X", ErrEndpointIDUnused, uint16(id))
	}
	if len(n.endpoints) >= n.maxEndpoints {
		return nil, ErrEndpointLimit
	}
	ep := n.newEndpoint(id, flags, priv)
	n.endpoints = append(n.endpoints, ep)
	return ep, nil
}

func (n *Node) newEndpoint(id EndpointID, flags EndpointFlags, priv any) *Endpoint {
	return &Endpoint{
		node:        n,
		id:          id,
		enabled:     true,
		flags:       flags,
		parent:      InvalidEndpointID,
		composition: CompositionFullFamily,
		priv:        priv,
	}
}

// DestroyEndpoint disables ep, destroys its clusters and unlinks it.
// Nonvolatile attribute values are erased from the store.
func (n *Node) DestroyEndpoint(ep *Endpoint) error {
	if ep == nil {
		return ErrInvalidArg
	}
	ep.mu.RLock()
	destroyable := ep.flags&EndpointFlagDestroyable != 0
	ep.mu.RUnlock()
	if !destroyable {
		n.log.Errorf("This endpoint cannot be deleted since the ENDPOINT_FLAG_DESTROYABLE is not set")
		return ErrEndpointNotDestroyable
	}

	if err := ep.Disable(); err != nil {
		return err
	}

	ep.mu.Lock()
	clusters := ep.clusters
	ep.clusters = nil
	if ep.identify != nil {
		ep.identify.cancel()
		ep.identify = nil
	}
	ep.mu.Unlock()
	for _, c := range clusters {
		c.destroy()
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	for i, e := range n.endpoints {
		if e == ep {
			n.endpoints = append(n.endpoints[:i], n.endpoints[i+1:]...)
			return nil
		}
	}
	return ErrEndpointNotFound
}

// Node returns the owning node.
func (e *Endpoint) Node() *Node { return e.node }

// ID returns the endpoint id.
func (e *Endpoint) ID() EndpointID { return e.id }

// Flags returns the endpoint flags.
func (e *Endpoint) Flags() EndpointFlags {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.flags
}

// Enable marks the endpoint enabled, sets up identification, runs the
// delegate init callbacks and initialises clusters not yet initialised.
func (e *Endpoint) Enable() error {
	e.mu.Lock()
	e.enabled = true
	e.mu.Unlock()
	if err := e.initIdentification(); err != nil {
		e.node.log.Warnf("Endpoint 0x%04X: identification not initialised: %v", uint16(e.id), err)
	}
	e.delegateInit()
	for _, c := range e.Clusters() {
		if err := c.runInit(); err != nil {
			e.node.log.Errorf("Endpoint 0x%04X cluster 0x%08X init failed: %v", uint16(e.id), uint32(c.id), err)
		}
	}
	return nil
}

// Disable marks the endpoint disabled and shuts its clusters down.
func (e *Endpoint) Disable() error {
	e.mu.Lock()
	e.enabled = false
	e.mu.Unlock()
	for _, c := range e.Clusters() {
		c.runShutdown()
	}
	return nil
}

// IsEnabled reports whether the endpoint is enabled.
func (e *Endpoint) IsEnabled() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.enabled
}

func (e *Endpoint) initIdentification() error {
	c := e.Cluster(IdentifyClusterID)
	if c == nil {
		return nil
	}
	e.mu.RLock()
	has := e.identify != nil
	e.mu.RUnlock()
	if has {
		return nil
	}
	attr := c.Attribute(IdentifyTypeAttributeID)
	if attr == nil {
		return ErrInvalidState
	}
	id := newIdentify(e, uint8(attr.Val().Uint()))
	e.mu.Lock()
	if e.identify == nil {
		e.identify = id
	}
	e.mu.Unlock()
	return nil
}

func (e *Endpoint) delegateInit() {
	for _, c := range e.Clusters() {
		delegate, cb := c.Delegate()
		if cb != nil {
			cb(delegate, e.id)
		}
	}
}

// AddDeviceType appends a device type. At most MaxDeviceTypeCount are kept.
func (e *Endpoint) AddDeviceType(id DeviceTypeID, revision uint8) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.deviceTypes) >= MaxDeviceTypeCount {
		e.node.log.Errorf("Could not add a new device type to the endpoint")
		return ErrDeviceTypeLimit
	}
	e.deviceTypes = append(e.deviceTypes, DeviceType{ID: id, Revision: revision})
	return nil
}

// DeviceTypes returns the device types in insertion order.
func (e *Endpoint) DeviceTypes() []DeviceType {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]DeviceType(nil), e.deviceTypes...)
}

// DeviceTypeAt returns the i-th device type.
func (e *Endpoint) DeviceTypeAt(i int) (DeviceType, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if i < 0 || i >= len(e.deviceTypes) {
		return DeviceType{}, ErrInvalidArg
	}
	return e.deviceTypes[i], nil
}

// SetParentEndpoint sets the parent used to build PartsList.
func (e *Endpoint) SetParentEndpoint(parent *Endpoint) error {
	if parent == nil {
		return ErrInvalidArg
	}
	e.mu.Lock()
	e.parent = parent.id
	e.mu.Unlock()
	return nil
}

// ParentEndpointID returns the parent id, InvalidEndpointID if none.
func (e *Endpoint) ParentEndpointID() EndpointID {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.parent
}

// SetCompositionPattern selects how PartsList is computed for e.
func (e *Endpoint) SetCompositionPattern(c EndpointComposition) {
	e.mu.Lock()
	e.composition = c
	e.mu.Unlock()
}

// CompositionPattern returns the composition pattern, full family by default.
func (e *Endpoint) CompositionPattern() EndpointComposition {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.composition
}

// SetSemanticTags replaces the semantic tags. Nil clears them.
func (e *Endpoint) SetSemanticTags(tags []SemanticTag) error {
	if len(tags) > MaxSemanticTagCount {
		return ErrSemanticTagLimit
	}
	e.mu.Lock()
	e.semanticTags = append([]SemanticTag(nil), tags...)
	e.mu.Unlock()
	return nil
}

// SemanticTags returns the semantic tags.
func (e *Endpoint) SemanticTags() []SemanticTag {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]SemanticTag(nil), e.semanticTags...)
}

func (e *Endpoint) SetPrivData(priv any) {
	e.mu.Lock()
	e.priv = priv
	e.mu.Unlock()
}

func (e *Endpoint) PrivData() any {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.priv
}

// SetIdentify replaces the identify handle.
func (e *Endpoint) SetIdentify(id *Identify) {
	e.mu.Lock()
	e.identify = id
	e.mu.Unlock()
}

// Identify returns the identify handle, nil when the endpoint has no
// enabled Identify cluster.
func (e *Endpoint) Identify() *Identify {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.identify
}

// Clusters returns the clusters in creation order.
func (e *Endpoint) Clusters() []*Cluster {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]*Cluster(nil), e.clusters...)
}

// Cluster returns the cluster with the given id, or nil.
func (e *Endpoint) Cluster(id ClusterID) *Cluster {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, c := range e.clusters {
		if c.id == id {
			return c
		}
	}
	return nil
}

// ServerClusters returns the ids of server clusters.
func (e *Endpoint) ServerClusters() []ClusterID { return e.clusterIDs(ClusterFlagServer) }

// ClientClusters returns the ids of client clusters.
func (e *Endpoint) ClientClusters() []ClusterID { return e.clusterIDs(ClusterFlagClient) }

func (e *Endpoint) clusterIDs(flag ClusterFlags) []ClusterID {
	var ids []ClusterID
	for _, c := range e.Clusters() {
		if c.Flags()&flag != 0 {
			ids = append(ids, c.id)
		}
	}
	return ids
}
