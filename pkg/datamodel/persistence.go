package datamodel

import (
	"errors"
	"fmt"

	"github.com/espressif/esp-matter-sub221/pkg/storage"
	"github.com/fxamacker/cbor/v2"
)

// attributeLocation returns the namespace and key under which a
// nonvolatile attribute is stored: "endpoint/cluster/attribute" in hex,
// cut to storage.MaxKeyLength like NVS does.
func attributeLocation(endpointID EndpointID, clusterID ClusterID, attributeID AttributeID) (ns, key string) {
	key = fmt.Sprintf("%x/%x/%x", uint16(endpointID), uint32(clusterID), uint32(attributeID))
	if len(key) > storage.MaxKeyLength {
		key = key[:storage.MaxKeyLength]
	}
	return KVSNamespace, key
}

func (n *Node) storeVal(path AttributePath, v Val) error {
	if n.store == nil {
		return nil
	}
	data, err := v.MarshalCBOR()
	if err != nil {
		return err
	}
	ns, key := attributeLocation(path.Endpoint, path.Cluster, path.Attribute)
	if err := n.store.Set(ns, key, data); err != nil {
		n.log.Errorf("Failed to store attribute %s: %v", path, err)
		return err
	}
	return nil
}

// loadVal reads a stored value. It returns storage.ErrNotFound when the
// attribute was never stored and ErrInvalidArg when the stored type differs.
func (n *Node) loadVal(path AttributePath, t ValType) (Val, error) {
	if n.store == nil {
		return Val{}, storage.ErrNotFound
	}
	ns, key := attributeLocation(path.Endpoint, path.Cluster, path.Attribute)
	data, err := n.store.Get(ns, key)
	if err != nil {
		return Val{}, err
	}
	var v Val
	if err := cbor.Unmarshal(data, &v); err != nil {
		return Val{}, err
	}
	if v.Type != t {
		return Val{}, fmt.Errorf("%w: stored %s, want %s", ErrInvalidArg, v.Type, t)
	}
	return v, nil
}

func (n *Node) eraseVal(path AttributePath) error {
	if n.store == nil {
		return nil
	}
	ns, key := attributeLocation(path.Endpoint, path.Cluster, path.Attribute)
	if err := n.store.Delete(ns, key); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	return nil
}
