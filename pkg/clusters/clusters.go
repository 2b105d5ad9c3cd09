package clusters

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/espressif/esp-matter-sub221/pkg/datamodel"
)

// ErrInvalidFeatures is returned by Create functions when the requested
// feature flags violate the cluster's feature conformance. The partially
// built cluster is destroyed.
var ErrInvalidFeatures = errors.New("clusters: invalid feature combination")

// FeaturePolicy is a feature conformance rule.
type FeaturePolicy int

const (
	// ExactlyOne requires exactly one feature of the set.
	ExactlyOne FeaturePolicy = iota
	// AtLeastOne requires one or more features of the set.
	AtLeastOne
)

func (p FeaturePolicy) String() string {
	if p == ExactlyOne {
		return "Exactly one"
	}
	return "At least one"
}

// ValidateFeatures checks featureMap against policy for the given feature
// bits. names describes the set in the error.
func ValidateFeatures(featureMap uint32, policy FeaturePolicy, names string, features ...uint32) error {
	count := 0
	for _, f := range features {
		if featureMap&f != 0 {
			count++
		}
	}
	ok := count >= 1
	if policy == ExactlyOne {
		ok = count == 1
	}
	if !ok {
		return fmt.Errorf("%w: %s of the feature(s) must be supported from (%s)", ErrInvalidFeatures, policy, names)
	}
	return nil
}

// Abort destroys a cluster whose creation failed and returns err.
func Abort(c *datamodel.Cluster, err error) error {
	c.Endpoint().Node().LoggerFactory().NewLogger("clusters").Errorf("Cluster 0x%08X: %v", uint32(c.ID()), err)
	_ = c.Destroy()
	return err
}

// Once returns a plugin init callback that runs fn the first time it is
// called and never again.
func Once(fn func()) datamodel.PluginInitCallback {
	var once sync.Once
	return func() { once.Do(fn) }
}

// Spec describes the common part of a cluster instance.
type Spec struct {
	ID         datamodel.ClusterID
	Revision   uint16
	FeatureMap uint32
	Functions  datamodel.ClusterFunctions
	PluginInit datamodel.PluginInitCallback
}

// Create creates the cluster on ep. Server instances get the plugin init
// callback, the function list and the FeatureMap and ClusterRevision
// global attributes.
func Create(ep *datamodel.Endpoint, s Spec, flags datamodel.ClusterFlags) (*datamodel.Cluster, error) {
	c, err := datamodel.CreateCluster(ep, s.ID, flags)
	if err != nil {
		return nil, fmt.Errorf("could not create cluster 0x%08X: %w", uint32(s.ID), err)
	}
	if flags&datamodel.ClusterFlagServer == 0 {
		return c, nil
	}
	if s.PluginInit != nil {
		c.SetPluginServerInitCallback(s.PluginInit)
	}
	if f := s.Functions; f.Init != nil || f.AttributeChanged != nil || f.Shutdown != nil || f.PreAttributeChanged != nil {
		c.SetFunctions(f)
	}
	if _, err := datamodel.CreateAttribute(c, datamodel.AttrFeatureMap, datamodel.AttributeFlagNone,
		datamodel.Bitmap32(s.FeatureMap), 0); err != nil {
		return nil, err
	}
	if _, err := datamodel.CreateAttribute(c, datamodel.AttrClusterRevision, datamodel.AttributeFlagNone,
		datamodel.Uint16(s.Revision), 0); err != nil {
		return nil, err
	}
	return c, nil
}

// FeatureMap returns the FeatureMap attribute of c.
func FeatureMap(c *datamodel.Cluster) uint32 {
	a := c.Attribute(datamodel.AttrFeatureMap)
	if a == nil {
		return 0
	}
	return uint32(a.Val().Uint())
}

// HasFeature reports whether c advertises feature.
func HasFeature(c *datamodel.Cluster, feature uint32) bool {
	return FeatureMap(c)&feature != 0
}

// AddFeature ORs feature into the FeatureMap of c.
func AddFeature(c *datamodel.Cluster, feature uint32) error {
	a := c.Attribute(datamodel.AttrFeatureMap)
	if a == nil {
		return datamodel.ErrAttributeNotFound
	}
	err := a.SetValInternal(datamodel.Bitmap32(uint32(a.Val().Uint())|feature), false)
	if errors.Is(err, datamodel.ErrNotFinished) {
		return nil
	}
	return err
}

// Attr is one attribute to create in a batch.
type Attr struct {
	ID      datamodel.AttributeID
	Flags   datamodel.AttributeFlags
	Val     datamodel.Val
	MaxSize int
}

// CreateAttributes creates attrs on c in order.
func CreateAttributes(c *datamodel.Cluster, attrs ...Attr) error {
	for _, a := range attrs {
		if _, err := datamodel.CreateAttribute(c, a.ID, a.Flags, a.Val, a.MaxSize); err != nil {
			return err
		}
	}
	return nil
}

// Cmd is one command to create in a batch.
type Cmd struct {
	ID       datamodel.CommandID
	Flags    datamodel.CommandFlags
	Callback datamodel.CommandCallback
}

// CreateCommands creates cmds on c in order.
func CreateCommands(c *datamodel.Cluster, cmds ...Cmd) error {
	for _, cmd := range cmds {
		if _, err := datamodel.CreateCommand(c, cmd.ID, cmd.Flags, cmd.Callback); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the value of attribute id of c, or an invalid value.
func Get(c *datamodel.Cluster, id datamodel.AttributeID) datamodel.Val {
	a := c.Attribute(id)
	if a == nil {
		return datamodel.Invalid()
	}
	return a.Val()
}

// Set changes attribute id of c with callbacks. An unchanged value is not
// an error.
func Set(c *datamodel.Cluster, id datamodel.AttributeID, v datamodel.Val) error {
	a := c.Attribute(id)
	if a == nil {
		return fmt.Errorf("%w: 0x%08X", datamodel.ErrAttributeNotFound, uint32(id))
	}
	err := a.SetValInternal(v, true)
	if errors.Is(err, datamodel.ErrNotFinished) {
		return nil
	}
	return err
}

// FeatureNames joins feature names for ValidateFeatures messages.
func FeatureNames(names ...string) string { return strings.Join(names, ",") }

// ErrEventNotFound is returned by Emit for events the cluster does not
// declare.
var ErrEventNotFound = errors.New("clusters: event not found")

// EventSink delivers an encoded event payload to the stack's event log.
type EventSink func(endpointID datamodel.EndpointID, clusterID datamodel.ClusterID, eventID datamodel.EventID, payload []byte) error

// Emit sends payload for event id of c to sink. A nil sink drops the
// event.
func Emit(sink EventSink, c *datamodel.Cluster, id datamodel.EventID, payload []byte) error {
	if c.Event(id) == nil {
		return fmt.Errorf("%w: 0x%08X", ErrEventNotFound, uint32(id))
	}
	if sink == nil {
		return nil
	}
	return sink(c.EndpointID(), c.ID(), id, payload)
}

// CreateEvents declares ids on c.
func CreateEvents(c *datamodel.Cluster, ids ...datamodel.EventID) error {
	for _, id := range ids {
		if _, err := datamodel.CreateEvent(c, id); err != nil {
			return err
		}
	}
	return nil
}
