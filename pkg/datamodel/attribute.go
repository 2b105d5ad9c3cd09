package datamodel

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/espressif/esp-matter-sub221/pkg/storage"
)

// Bounds is the inclusive range of a numeric attribute.
type Bounds struct {
	Min, Max Val
}

// Attribute is a single attribute of a cluster.
type Attribute struct {
	cluster *Cluster
	id      AttributeID

	mu         sync.RWMutex
	flags      AttributeFlags
	val        Val
	maxSize    int
	bounds     *Bounds
	override   AttributeCallback
	deferTimer *time.Timer
}

// CreateAttribute adds attribute id to c with val as default. For string
// types maxValSize caps the value length. Nonvolatile attributes start
// from the stored value when one exists. An existing attribute with the
// same id is returned unchanged.
func CreateAttribute(c *Cluster, id AttributeID, flags AttributeFlags, val Val, maxValSize int) (*Attribute, error) {
	if c == nil {
		return nil, ErrInvalidArg
	}
	log := c.endpoint.node.log
	c.mu.Lock()
	for _, a := range c.attributes {
		if a.id == id {
			c.mu.Unlock()
			log.Warnf("Attribute 0x%08X on cluster 0x%08X already exists. Not creating again.", uint32(id), uint32(c.id))
			return a, nil
		}
	}
	a := &Attribute{cluster: c, id: id, flags: flags, val: Zero(val.Type)}
	c.attributes = append(c.attributes, a)
	c.mu.Unlock()

	if flags&AttributeFlagManagedInternally != 0 {
		return a, nil
	}
	if val.Type.IsString() {
		a.maxSize = maxValSize
	}
	if flags&AttributeFlagNonvolatile != 0 {
		stored, err := c.endpoint.node.loadVal(a.Path(), val.Type)
		switch {
		case err == nil:
			a.val = stored
			return a, nil
		case !errors.Is(err, storage.ErrNotFound):
			log.Warnf("Attribute %s: ignoring stored value: %v", a.Path(), err)
		}
	}
	if err := a.SetValInternal(val, false); err != nil && !errors.Is(err, ErrNotFinished) {
		log.Warnf("Attribute %s: default value not applied: %v", a.Path(), err)
	}
	return a, nil
}

// destroy cancels deferred persistence and erases the stored value.
func (a *Attribute) destroy() {
	a.mu.Lock()
	if a.deferTimer != nil {
		a.deferTimer.Stop()
		a.deferTimer = nil
	}
	nv := a.flags&AttributeFlagNonvolatile != 0
	a.mu.Unlock()
	if nv {
		if err := a.node().eraseVal(a.Path()); err != nil {
			a.node().log.Errorf("Failed to erase attribute %s: %v", a.Path(), err)
		}
	}
}

func (a *Attribute) node() *Node { return a.cluster.endpoint.node }

// ID returns the attribute id.
func (a *Attribute) ID() AttributeID { return a.id }

// Cluster returns the owning cluster.
func (a *Attribute) Cluster() *Cluster { return a.cluster }

// Path returns the concrete path of a.
func (a *Attribute) Path() AttributePath {
	return AttributePath{Endpoint: a.cluster.endpoint.id, Cluster: a.cluster.id, Attribute: a.id}
}

// Flags returns the attribute flags.
func (a *Attribute) Flags() AttributeFlags {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.flags
}

// Type returns the value type.
func (a *Attribute) Type() ValType {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.val.Type
}

// MaxSize returns the string capacity given at creation.
func (a *Attribute) MaxSize() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.maxSize
}

// Val returns the stored value without consulting the override callback.
func (a *Attribute) Val() Val {
	a.mu.RLock()
	defer a.mu.RUnlock()
	v := a.val
	v.data = clone(v.data)
	return v
}

// GetVal returns the current value. Attributes with an override callback
// are read through it.
func (a *Attribute) GetVal() (Val, error) {
	a.mu.RLock()
	flags, override := a.flags, a.override
	a.mu.RUnlock()
	if flags&AttributeFlagManagedInternally != 0 {
		return Val{}, ErrNotSupported
	}
	if flags&AttributeFlagOverride != 0 && override != nil {
		v := Zero(a.Type())
		p := a.Path()
		if err := override(Read, p.Endpoint, p.Cluster, p.Attribute, &v, a.cluster.endpoint.PrivData()); err != nil {
			return Val{}, err
		}
		return v, nil
	}
	return a.Val(), nil
}

// SetValInternal stores val. It returns ErrNotFinished when val equals the
// stored value. With callCallbacks the PreUpdate callback may veto the
// change, and the PostUpdate callback and the cluster attribute-changed
// function run after it.
func (a *Attribute) SetValInternal(val Val, callCallbacks bool) error {
	n := a.node()
	path := a.Path()

	a.mu.RLock()
	flags, cur, bounds, maxSize := a.flags, a.val, a.bounds, a.maxSize
	a.mu.RUnlock()

	if flags&AttributeFlagManagedInternally != 0 {
		n.log.Debugf("Attribute %s is not managed by the data model", path)
		return ErrNotSupported
	}
	if cur.Type != val.Type {
		n.log.Errorf("Different value type : Expected Type : %s Attempted Type: %s", cur.Type, val.Type)
		return fmt.Errorf("%w: want %s, got %s", ErrInvalidArg, cur.Type, val.Type)
	}
	if flags&AttributeFlagMinMax != 0 && bounds != nil && compareWithBounds(val, *bounds) != 0 {
		return fmt.Errorf("%w: %s out of bounds", ErrInvalidArg, val)
	}
	if val.Equal(cur) {
		return ErrNotFinished
	}
	if callCallbacks {
		if err := n.executeCallback(PreUpdate, path, &val); err != nil {
			n.log.Errorf("Failed to execute pre update callback: %v", err)
			return err
		}
		if fn := a.cluster.Functions().PreAttributeChanged; fn != nil {
			if err := fn(path, val); err != nil {
				return err
			}
		}
	}

	a.mu.Lock()
	if val.Type.IsString() {
		switch size := val.Size(); {
		case val.null:
			a.val = Val{Type: val.Type, null: true}
		case size > 0:
			if size > maxSize {
				a.mu.Unlock()
				return ErrNoMem
			}
			a.val = Val{Type: val.Type, data: clone(val.data)}
		default:
			n.log.Debugf("Set val called with string with size 0")
		}
	} else {
		a.val = val
		a.val.data = clone(val.data)
	}
	a.mu.Unlock()

	if callCallbacks {
		_ = n.executeCallback(PostUpdate, path, &val)
		if fn := a.cluster.Functions().AttributeChanged; fn != nil {
			fn(path)
		}
	}
	if flags&AttributeFlagNonvolatile != 0 {
		if flags&AttributeFlagDeferred != 0 {
			a.scheduleDeferredStore()
		} else if err := n.storeVal(path, a.Val()); err != nil {
			n.log.Warnf("Attribute %s not persisted: %v", path, err)
		}
	}
	a.cluster.IncreaseDataVersion()
	n.markDirty(path)
	return nil
}

func (a *Attribute) scheduleDeferredStore() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.deferTimer != nil {
		return
	}
	a.deferTimer = time.AfterFunc(a.node().deferDelay, a.flushDeferred)
}

func (a *Attribute) flushDeferred() {
	a.mu.Lock()
	a.deferTimer = nil
	a.mu.Unlock()
	n := a.node()
	path := a.Path()
	n.log.Infof("Store the deferred attribute 0x%x of cluster 0x%X on endpoint 0x%x",
		uint32(path.Attribute), uint32(path.Cluster), uint16(path.Endpoint))
	if err := n.storeVal(path, a.Val()); err != nil {
		n.log.Warnf("Deferred attribute %s not persisted: %v", path, err)
	}
}

// FlushDeferred stores pending deferred values immediately.
func (n *Node) FlushDeferred() {
	for _, ep := range n.Endpoints() {
		for _, c := range ep.Clusters() {
			for _, a := range c.Attributes() {
				a.mu.Lock()
				t := a.deferTimer
				pending := t != nil && t.Stop()
				a.mu.Unlock()
				if pending {
					a.flushDeferred()
				}
			}
		}
	}
}

// AddBounds sets the inclusive range of a numeric attribute and clamps the
// current value into it. A clamped value is stored like any other update.
func (a *Attribute) AddBounds(min, max Val) error {
	n := a.node()
	a.mu.Lock()
	if a.flags&AttributeFlagManagedInternally != 0 {
		a.mu.Unlock()
		return ErrNotSupported
	}
	t := a.val.Type
	if !boundable(t) {
		a.mu.Unlock()
		n.log.Errorf("Bounds cannot be set for %s attribute", t)
		return fmt.Errorf("%w: bounds on %s", ErrInvalidArg, t)
	}
	if min.Type != t || max.Type != t {
		a.mu.Unlock()
		n.log.Errorf("Cannot set bounds because of val type mismatch: expected: %s, min: %s, max: %s", t, min.Type, max.Type)
		return fmt.Errorf("%w: bounds type mismatch", ErrInvalidArg)
	}
	a.flags |= AttributeFlagMinMax
	a.bounds = &Bounds{Min: min, Max: max}
	clamped := true
	switch compareWithBounds(a.val, *a.bounds) {
	case -1:
		a.val = min
	case 1:
		a.val = max
	default:
		clamped = false
	}
	flags, val := a.flags, a.val
	a.mu.Unlock()

	if !clamped {
		return nil
	}
	path := a.Path()
	if flags&AttributeFlagNonvolatile != 0 {
		if err := n.storeVal(path, val); err != nil {
			n.log.Warnf("Attribute %s not persisted: %v", path, err)
		}
	}
	a.cluster.IncreaseDataVersion()
	n.markDirty(path)
	return nil
}

// Bounds returns the bounds set by AddBounds.
func (a *Attribute) Bounds() (Bounds, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.flags&AttributeFlagMinMax == 0 || a.bounds == nil {
		return Bounds{}, ErrBoundsNotSet
	}
	return *a.bounds, nil
}

// compareWithBounds returns -1 below min, 1 above max and 0 in range.
// Null values are always in range.
func compareWithBounds(v Val, b Bounds) int {
	if v.IsNull() {
		return 0
	}
	if !b.Min.IsNull() && v.compare(b.Min) < 0 {
		return -1
	}
	if !b.Max.IsNull() && v.compare(b.Max) > 0 {
		return 1
	}
	return 0
}

// SetOverrideCallback routes reads and writes of a through cb.
func (a *Attribute) SetOverrideCallback(cb AttributeCallback) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.flags&AttributeFlagManagedInternally != 0 {
		return ErrNotSupported
	}
	if a.val.Type.IsString() || a.val.Type == ValTypeArray {
		a.node().log.Errorf("Override callback cannot be set for %s attribute", a.val.Type)
		return fmt.Errorf("%w: override on %s", ErrNotSupported, a.val.Type)
	}
	a.override = cb
	a.flags |= AttributeFlagOverride
	return nil
}

// OverrideCallback returns the override callback.
func (a *Attribute) OverrideCallback() AttributeCallback {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.override
}

// SetDeferredPersistence delays storing a nonvolatile attribute so bursts
// of updates cause a single write.
func (a *Attribute) SetDeferredPersistence() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.flags&AttributeFlagNonvolatile == 0 {
		a.node().log.Errorf("Attribute should be non-volatile to set a deferred persistence time")
		return ErrInvalidArg
	}
	a.flags |= AttributeFlagDeferred
	return nil
}

// executeCallback runs the application attribute callback.
func (n *Node) executeCallback(typ CallbackType, path AttributePath, val *Val) error {
	cb := n.attributeCallback()
	if cb == nil {
		return nil
	}
	var priv any
	if ep := n.Endpoint(path.Endpoint); ep != nil {
		priv = ep.PrivData()
	}
	return cb(typ, path.Endpoint, path.Cluster, path.Attribute, val, priv)
}

// executeOverrideCallback runs the attribute override callback, falling
// back to the application callback when none is set.
func (n *Node) executeOverrideCallback(a *Attribute, typ CallbackType, val *Val) error {
	path := a.Path()
	if cb := a.OverrideCallback(); cb != nil {
		return cb(typ, path.Endpoint, path.Cluster, path.Attribute, val, a.cluster.endpoint.PrivData())
	}
	return n.executeCallback(typ, path, val)
}

// SetVal sets an attribute by path.
func (n *Node) SetVal(endpointID EndpointID, clusterID ClusterID, attributeID AttributeID, val Val, callCallbacks bool) error {
	if val.Type == ValTypeInvalid {
		return ErrInvalidArg
	}
	if val.Type == ValTypeArray {
		return ErrNotSupported
	}
	a := n.Attribute(endpointID, clusterID, attributeID)
	if a == nil {
		return ErrAttributeNotFound
	}
	if a.Type() != val.Type {
		return fmt.Errorf("%w: want %s, got %s", ErrInvalidArg, a.Type(), val.Type)
	}
	if a.Flags()&AttributeFlagManagedInternally != 0 {
		return ErrNotSupported
	}
	return a.SetValInternal(val, callCallbacks)
}

// GetVal reads an attribute by path.
func (n *Node) GetVal(endpointID EndpointID, clusterID ClusterID, attributeID AttributeID) (Val, error) {
	a := n.Attribute(endpointID, clusterID, attributeID)
	if a == nil {
		return Val{}, ErrAttributeNotFound
	}
	return a.GetVal()
}
