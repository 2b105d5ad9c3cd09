// Package datamodel is the ESP-Matter data model: a node owning endpoints,
// each endpoint owning clusters with their attributes, commands and
// events. Applications build the model with the Create* functions before
// the Matter stack starts, then observe changes through an
// AttributeCallback. The stack collaborator reaches the model through
// ReadAttribute, WriteAttribute and InvokeCommand.
package datamodel

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/espressif/esp-matter-sub221/pkg/storage"
	"github.com/pion/logging"
)

// Limits and defaults.
const (
	MaxDeviceTypeCount              = 16
	MaxSemanticTagCount             = 3
	DefaultMaxDynamicEndpointCount  = 16
	DefaultDeferredPersistenceDelay = 3 * time.Second
)

// Store namespaces and keys.
const (
	KVSNamespace           = "esp_matter_kvs"
	legacyNodeNamespace    = "node"
	minUnusedEndpointIDKey = "min_uu_ep_id"
)

// Config configures a Node.
type Config struct {
	// Store backs nonvolatile attributes and the endpoint id counter.
	// Nil disables persistence.
	Store storage.Store

	LoggerFactory logging.LoggerFactory

	// MaxDynamicEndpointCount caps the number of endpoints. Zero means
	// DefaultMaxDynamicEndpointCount.
	MaxDynamicEndpointCount int

	// DeferredPersistenceDelay is how long deferred attributes wait before
	// being stored. Zero means DefaultDeferredPersistenceDelay.
	DeferredPersistenceDelay time.Duration

	AttributeCallback AttributeCallback
	IdentifyCallback  IdentifyCallback

	// Reporter receives paths changed through Report and successful writes.
	Reporter Reporter
}

// Node is the root of the data model.
type Node struct {
	mu                  sync.RWMutex
	endpoints           []*Endpoint
	minUnusedEndpointID EndpointID

	started atomic.Bool

	store        storage.Store
	maxEndpoints int
	deferDelay   time.Duration
	factory      logging.LoggerFactory
	log          logging.LeveledLogger

	cbMu        sync.RWMutex
	attributeCb AttributeCallback
	identifyCb  IdentifyCallback
	customCb    CustomCommandCallback
	customPriv  any
	reporter    Reporter
}

// NewNode creates an independent node.
func NewNode(cfg Config) *Node {
	if cfg.LoggerFactory == nil {
		cfg.LoggerFactory = logging.NewDefaultLoggerFactory()
	}
	if cfg.MaxDynamicEndpointCount <= 0 {
		cfg.MaxDynamicEndpointCount = DefaultMaxDynamicEndpointCount
	}
	if cfg.DeferredPersistenceDelay <= 0 {
		cfg.DeferredPersistenceDelay = DefaultDeferredPersistenceDelay
	}
	return &Node{
		store:        cfg.Store,
		maxEndpoints: cfg.MaxDynamicEndpointCount,
		deferDelay:   cfg.DeferredPersistenceDelay,
		factory:      cfg.LoggerFactory,
		log:          cfg.LoggerFactory.NewLogger("datamodel"),
		attributeCb:  cfg.AttributeCallback,
		identifyCb:   cfg.IdentifyCallback,
		reporter:     cfg.Reporter,
	}
}

var (
	defaultMu   sync.Mutex
	defaultNode *Node
)

// Create creates the process-wide node.
func Create(cfg Config) (*Node, error) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultNode != nil {
		return nil, ErrNodeExists
	}
	defaultNode = NewNode(cfg)
	return defaultNode, nil
}

// Get returns the process-wide node, or nil before Create.
func Get() *Node {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	return defaultNode
}

// Destroy destroys the process-wide node.
func Destroy() error {
	defaultMu.Lock()
	n := defaultNode
	defaultNode = nil
	defaultMu.Unlock()
	if n == nil {
		return ErrNoNode
	}
	return n.Destroy()
}

// Destroy marks every endpoint destroyable, destroys it and clears the
// node callbacks.
func (n *Node) Destroy() error {
	n.SetAttributeCallback(nil)
	n.SetIdentifyCallback(nil)
	n.SetCustomCallback(nil, nil)

	var errs []error
	for _, ep := range n.Endpoints() {
		ep.mu.Lock()
		ep.flags |= EndpointFlagDestroyable
		ep.mu.Unlock()
		if err := n.DestroyEndpoint(ep); err != nil {
			errs = append(errs, err)
		}
	}
	n.started.Store(false)
	return errors.Join(errs...)
}

// LoggerFactory returns the factory cluster builders derive loggers from.
func (n *Node) LoggerFactory() logging.LoggerFactory { return n.factory }

// Store returns the backing store, which may be nil.
func (n *Node) Store() storage.Store { return n.store }

// SetStarted records whether the Matter stack is running. Endpoint id
// allocation persists the counter only on a started node.
func (n *Node) SetStarted(started bool) { n.started.Store(started) }

// Started reports the value last passed to SetStarted.
func (n *Node) Started() bool { return n.started.Load() }

// SetAttributeCallback sets the application attribute callback.
func (n *Node) SetAttributeCallback(cb AttributeCallback) {
	n.cbMu.Lock()
	n.attributeCb = cb
	n.cbMu.Unlock()
}

func (n *Node) attributeCallback() AttributeCallback {
	n.cbMu.RLock()
	defer n.cbMu.RUnlock()
	return n.attributeCb
}

// SetIdentifyCallback sets the identification callback.
func (n *Node) SetIdentifyCallback(cb IdentifyCallback) {
	n.cbMu.Lock()
	n.identifyCb = cb
	n.cbMu.Unlock()
}

func (n *Node) identifyCallback() IdentifyCallback {
	n.cbMu.RLock()
	defer n.cbMu.RUnlock()
	return n.identifyCb
}

// SetCustomCallback sets the handler for CommandFlagCustom commands.
func (n *Node) SetCustomCallback(cb CustomCommandCallback, priv any) {
	n.cbMu.Lock()
	n.customCb = cb
	n.customPriv = priv
	n.cbMu.Unlock()
}

// SetReporter sets the collaborator notified of reportable changes.
func (n *Node) SetReporter(r Reporter) {
	n.cbMu.Lock()
	n.reporter = r
	n.cbMu.Unlock()
}

func (n *Node) markDirty(path AttributePath) {
	n.cbMu.RLock()
	r := n.reporter
	n.cbMu.RUnlock()
	if r != nil {
		r.MarkDirty(path)
	}
}

// Endpoints returns the endpoints in creation order.
func (n *Node) Endpoints() []*Endpoint {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]*Endpoint, len(n.endpoints))
	copy(out, n.endpoints)
	return out
}

// EndpointCount returns the number of endpoints.
func (n *Node) EndpointCount() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.endpoints)
}

// Endpoint returns the endpoint with the given id, or nil.
func (n *Node) Endpoint(id EndpointID) *Endpoint {
	n.mu.RLock()
	defer n.mu.RUnlock()
	for _, ep := range n.endpoints {
		if ep.id == id {
			return ep
		}
	}
	return nil
}

// MinUnusedEndpointID is the id the next CreateEndpoint will use.
func (n *Node) MinUnusedEndpointID() EndpointID {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.minUnusedEndpointID
}

// ClusterCount counts clusters whose flags intersect flags, on enabled
// endpoints. InvalidEndpointID and InvalidClusterID match any endpoint or
// cluster.
func (n *Node) ClusterCount(endpointID EndpointID, clusterID ClusterID, flags ClusterFlags) int {
	count := 0
	for _, ep := range n.Endpoints() {
		if endpointID != InvalidEndpointID && ep.ID() != endpointID {
			continue
		}
		if !ep.IsEnabled() {
			continue
		}
		for _, c := range ep.Clusters() {
			if clusterID != InvalidClusterID && c.ID() != clusterID {
				continue
			}
			if c.Flags()&flags != 0 {
				count++
			}
		}
	}
	return count
}

// ServerClusterEndpointCount counts enabled endpoints with a server
// instance of clusterID.
func (n *Node) ServerClusterEndpointCount(clusterID ClusterID) int {
	return n.ClusterCount(InvalidEndpointID, clusterID, ClusterFlagServer)
}

// ClientClusterEndpointCount counts enabled endpoints with a client
// instance of clusterID.
func (n *Node) ClientClusterEndpointCount(clusterID ClusterID) int {
	return n.ClusterCount(InvalidEndpointID, clusterID, ClusterFlagClient)
}

// StoreMinUnusedEndpointID persists the endpoint id counter. The node must
// be started.
func (n *Node) StoreMinUnusedEndpointID() error {
	if !n.Started() {
		return fmt.Errorf("%w: node not started", ErrInvalidState)
	}
	if n.store == nil {
		return nil
	}
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], uint16(n.MinUnusedEndpointID()))
	if err := n.store.Set(KVSNamespace, minUnusedEndpointIDKey, b[:]); err != nil {
		n.log.Errorf("Failed to store min unused endpoint id: %v", err)
		return err
	}
	return nil
}

// LoadMinUnusedEndpointID restores the endpoint id counter. A value found
// only in the legacy namespace is migrated. The in-memory counter never
// moves backwards. When nothing is stored the current counter is stored.
func (n *Node) LoadMinUnusedEndpointID() error {
	if !n.Started() {
		return fmt.Errorf("%w: node not started", ErrInvalidState)
	}
	if n.store == nil {
		return nil
	}
	b, err := n.store.Get(KVSNamespace, minUnusedEndpointIDKey)
	if errors.Is(err, storage.ErrNotFound) {
		b, err = n.store.Get(legacyNodeNamespace, minUnusedEndpointIDKey)
		if errors.Is(err, storage.ErrNotFound) {
			return n.StoreMinUnusedEndpointID()
		}
		if err != nil {
			return err
		}
		n.log.Infof("Migrating min unused endpoint id from namespace %q", legacyNodeNamespace)
		if err := n.store.Delete(legacyNodeNamespace, minUnusedEndpointIDKey); err != nil {
			return err
		}
		n.setMinUnused(b)
		return n.StoreMinUnusedEndpointID()
	}
	if err != nil {
		return err
	}
	n.setMinUnused(b)
	return nil
}

func (n *Node) setMinUnused(b []byte) {
	if len(b) != 2 {
		n.log.Warnf("Ignoring malformed min unused endpoint id (%d bytes)", len(b))
		return
	}
	id := EndpointID(binary.LittleEndian.Uint16(b))
	n.mu.Lock()
	if id > n.minUnusedEndpointID {
		n.minUnusedEndpointID = id
	}
	n.mu.Unlock()
}

// EnableAll enables every endpoint.
func (n *Node) EnableAll() error {
	for _, ep := range n.Endpoints() {
		if err := ep.Enable(); err != nil {
			return err
		}
	}
	return nil
}

// PluginInitCallbackCommon runs every cluster's plugin server init callback.
func (n *Node) PluginInitCallbackCommon() {
	n.log.Info("Cluster plugin init common callback")
	for _, ep := range n.Endpoints() {
		for _, c := range ep.Clusters() {
			if cb := c.PluginServerInitCallback(); cb != nil {
				cb()
			}
		}
	}
}

// DelegateInitCallbackCommon runs every cluster's delegate init callback.
func (n *Node) DelegateInitCallbackCommon() {
	for _, ep := range n.Endpoints() {
		ep.delegateInit()
	}
}

// AddBoundsCallbackCommon runs every cluster's add-bounds callback.
func (n *Node) AddBoundsCallbackCommon() {
	for _, ep := range n.Endpoints() {
		for _, c := range ep.Clusters() {
			if cb := c.AddBoundsCallback(); cb != nil {
				cb(c)
			}
		}
	}
}

// Attribute looks up an attribute by path.
func (n *Node) Attribute(endpointID EndpointID, clusterID ClusterID, attributeID AttributeID) *Attribute {
	c := n.Cluster(endpointID, clusterID)
	if c == nil {
		return nil
	}
	return c.Attribute(attributeID)
}

// Cluster looks up a cluster by endpoint and cluster id.
func (n *Node) Cluster(endpointID EndpointID, clusterID ClusterID) *Cluster {
	ep := n.Endpoint(endpointID)
	if ep == nil {
		return nil
	}
	return ep.Cluster(clusterID)
}

// Command looks up a command by path.
func (n *Node) Command(endpointID EndpointID, clusterID ClusterID, commandID CommandID) *Command {
	c := n.Cluster(endpointID, clusterID)
	if c == nil {
		return nil
	}
	return c.Command(commandID)
}

// IsAttributeEnabled reports whether the attribute exists.
func (n *Node) IsAttributeEnabled(endpointID EndpointID, clusterID ClusterID, attributeID AttributeID) bool {
	return n.Attribute(endpointID, clusterID, attributeID) != nil
}

// IsCommandEnabled reports whether the command exists.
func (n *Node) IsCommandEnabled(endpointID EndpointID, clusterID ClusterID, commandID CommandID) bool {
	return n.Command(endpointID, clusterID, commandID) != nil
}
