package datamodel

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"
)

// Cluster is a server and/or client cluster instance on an endpoint.
type Cluster struct {
	endpoint *Endpoint
	id       ClusterID

	dataVersion atomic.Uint32

	mu          sync.RWMutex
	flags       ClusterFlags
	attributes  []*Attribute
	commands    []*Command
	events      []*Event
	initialized bool

	pluginInit   PluginInitCallback
	delegate     any
	delegateInit DelegateInitCallback
	addBounds    AddBoundsCallback
	functions    ClusterFunctions
	initCb       InitCallback
	shutdownCb   ShutdownCallback
	provider     AttributeProvider
}

// randomDataVersion returns a random initial data version.
func randomDataVersion() DataVersion {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 1
	}
	return DataVersion(binary.LittleEndian.Uint32(b[:]))
}

// CreateCluster adds cluster id to ep. flags must include ClusterFlagServer
// or ClusterFlagClient. If the cluster already exists the flags are merged
// into it and it is returned.
func CreateCluster(ep *Endpoint, id ClusterID, flags ClusterFlags) (*Cluster, error) {
	if ep == nil {
		return nil, ErrInvalidArg
	}
	if flags&(ClusterFlagServer|ClusterFlagClient) == 0 {
		ep.node.log.Errorf("Server or client cluster flag not set")
		return nil, ErrClusterFlags
	}
	ep.mu.Lock()
	defer ep.mu.Unlock()
	for _, c := range ep.clusters {
		if c.id == id {
			c.mu.Lock()
			c.flags |= flags
			c.mu.Unlock()
			return c, nil
		}
	}
	c := &Cluster{endpoint: ep, id: id, flags: flags}
	c.dataVersion.Store(uint32(randomDataVersion()))
	ep.clusters = append(ep.clusters, c)
	return c, nil
}

// Destroy removes c from its endpoint.
func (c *Cluster) Destroy() error {
	ep := c.endpoint
	ep.mu.Lock()
	idx := -1
	for i, x := range ep.clusters {
		if x == c {
			idx = i
			break
		}
	}
	if idx < 0 {
		ep.mu.Unlock()
		return ErrClusterNotFound
	}
	ep.clusters = append(ep.clusters[:idx], ep.clusters[idx+1:]...)
	ep.mu.Unlock()
	c.destroy()
	return nil
}

// destroy shuts the cluster down and destroys its commands, attributes and
// events in that order.
func (c *Cluster) destroy() {
	c.runShutdown()
	c.mu.Lock()
	attrs := c.attributes
	c.commands = nil
	c.attributes = nil
	c.events = nil
	c.mu.Unlock()
	for _, a := range attrs {
		a.destroy()
	}
}

// Endpoint returns the owning endpoint.
func (c *Cluster) Endpoint() *Endpoint { return c.endpoint }

// ID returns the cluster id.
func (c *Cluster) ID() ClusterID { return c.id }

// EndpointID returns the id of the owning endpoint.
func (c *Cluster) EndpointID() EndpointID { return c.endpoint.id }

// Flags returns the cluster flags.
func (c *Cluster) Flags() ClusterFlags {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.flags
}

// IsServer reports whether c has the server role.
func (c *Cluster) IsServer() bool { return c.Flags()&ClusterFlagServer != 0 }

// DataVersion returns the current data version.
func (c *Cluster) DataVersion() DataVersion { return DataVersion(c.dataVersion.Load()) }

// IncreaseDataVersion bumps the data version and returns the new value.
func (c *Cluster) IncreaseDataVersion() DataVersion {
	return DataVersion(c.dataVersion.Add(1))
}

// Attributes returns the attributes in creation order.
func (c *Cluster) Attributes() []*Attribute {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]*Attribute(nil), c.attributes...)
}

// Attribute returns the attribute with the given id, or nil.
func (c *Cluster) Attribute(id AttributeID) *Attribute {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, a := range c.attributes {
		if a.id == id {
			return a
		}
	}
	return nil
}

// Commands returns the commands in creation order.
func (c *Cluster) Commands() []*Command {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]*Command(nil), c.commands...)
}

// Command returns the command with the given id regardless of direction.
func (c *Cluster) Command(id CommandID) *Command {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, cmd := range c.commands {
		if cmd.id == id {
			return cmd
		}
	}
	return nil
}

// CommandIDs returns the ids of commands carrying flag.
func (c *Cluster) CommandIDs(flag CommandFlags) []CommandID {
	var ids []CommandID
	for _, cmd := range c.Commands() {
		if cmd.flags&flag != 0 {
			ids = append(ids, cmd.id)
		}
	}
	return ids
}

// Events returns the events in creation order.
func (c *Cluster) Events() []*Event {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]*Event(nil), c.events...)
}

// Event returns the event with the given id, or nil.
func (c *Cluster) Event(id EventID) *Event {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, e := range c.events {
		if e.id == id {
			return e
		}
	}
	return nil
}

// SetPluginServerInitCallback sets the plugin server init callback.
func (c *Cluster) SetPluginServerInitCallback(cb PluginInitCallback) {
	c.mu.Lock()
	c.pluginInit = cb
	c.mu.Unlock()
}

func (c *Cluster) PluginServerInitCallback() PluginInitCallback {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pluginInit
}

// SetDelegateAndInitCallback attaches a delegate and the callback that
// installs it when the endpoint is enabled.
func (c *Cluster) SetDelegateAndInitCallback(cb DelegateInitCallback, delegate any) {
	c.mu.Lock()
	c.delegateInit = cb
	c.delegate = delegate
	c.mu.Unlock()
}

// Delegate returns the delegate and its init callback.
func (c *Cluster) Delegate() (any, DelegateInitCallback) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.delegate, c.delegateInit
}

func (c *Cluster) SetAddBoundsCallback(cb AddBoundsCallback) {
	c.mu.Lock()
	c.addBounds = cb
	c.mu.Unlock()
}

func (c *Cluster) AddBoundsCallback() AddBoundsCallback {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.addBounds
}

// SetFunctions installs the function list and sets the matching flags.
func (c *Cluster) SetFunctions(fns ClusterFunctions) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.functions = fns
	if fns.Init != nil {
		c.flags |= ClusterFlagInitFunction
	}
	if fns.AttributeChanged != nil {
		c.flags |= ClusterFlagAttributeChangedFunction
	}
	if fns.Shutdown != nil {
		c.flags |= ClusterFlagShutdownFunction
	}
	if fns.PreAttributeChanged != nil {
		c.flags |= ClusterFlagPreAttributeChangedFunction
	}
}

// Functions returns the function list.
func (c *Cluster) Functions() ClusterFunctions {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.functions
}

// SetInitAndShutdownCallbacks sets the callbacks run when the endpoint is
// enabled and disabled.
func (c *Cluster) SetInitAndShutdownCallbacks(initCb InitCallback, shutdownCb ShutdownCallback) {
	c.mu.Lock()
	c.initCb = initCb
	c.shutdownCb = shutdownCb
	c.mu.Unlock()
}

func (c *Cluster) InitCallback() InitCallback {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.initCb
}

func (c *Cluster) ShutdownCallback() ShutdownCallback {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.shutdownCb
}

// SetAttributeProvider installs the reader for internally managed
// attributes of c.
func (c *Cluster) SetAttributeProvider(p AttributeProvider) {
	c.mu.Lock()
	c.provider = p
	c.mu.Unlock()
}

func (c *Cluster) attributeProvider() AttributeProvider {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.provider
}

// runInit runs the init function and callback once per enable.
func (c *Cluster) runInit() error {
	c.mu.Lock()
	if c.initialized {
		c.mu.Unlock()
		return nil
	}
	c.initialized = true
	fn, cb := c.functions.Init, c.initCb
	c.mu.Unlock()
	if fn != nil {
		fn(c.endpoint.id)
	}
	if cb != nil {
		if err := cb(c.endpoint.id); err != nil {
			return fmt.Errorf("cluster 0x%08X: %w", uint32(c.id), err)
		}
	}
	return nil
}

func (c *Cluster) runShutdown() {
	c.mu.Lock()
	if !c.initialized {
		c.mu.Unlock()
		return
	}
	c.initialized = false
	fn, cb := c.functions.Shutdown, c.shutdownCb
	c.mu.Unlock()
	if fn != nil {
		fn(c.endpoint.id)
	}
	if cb != nil {
		cb(c.endpoint.id)
	}
}
