package datamodel

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/espressif/esp-matter-sub221/pkg/tlv"
)

// enabledEndpoint returns the endpoint when it exists and is enabled.
func (n *Node) enabledEndpoint(id EndpointID) (*Endpoint, error) {
	ep := n.Endpoint(id)
	if ep == nil || !ep.IsEnabled() {
		return nil, fmt.Errorf("%w: 0x%04X", ErrEndpointNotFound, uint16(id))
	}
	return ep, nil
}

// ReadAttribute serves a read from the Matter stack. The value is encoded
// as a single element with tag.
func (n *Node) ReadAttribute(ctx context.Context, path AttributePath, w *tlv.Writer, tag tlv.Tag) error {
	ep, err := n.enabledEndpoint(path.Endpoint)
	if err != nil {
		return err
	}
	c := ep.Cluster(path.Cluster)
	if c == nil {
		return ErrClusterNotFound
	}
	a := c.Attribute(path.Attribute)
	if a == nil {
		if ids, ok := globalListAttribute(c, path.Attribute); ok {
			return encodeIDList(w, tag, ids)
		}
		return ErrAttributeNotFound
	}
	if a.Flags()&AttributeFlagManagedInternally != 0 {
		if p := c.attributeProvider(); p != nil {
			return p(ctx, path, w, tag)
		}
		return ErrUnsupportedRead
	}

	var v Val
	if a.Flags()&AttributeFlagOverride != 0 {
		v = Zero(a.Type())
		if err := n.executeOverrideCallback(a, Read, &v); err != nil {
			return fmt.Errorf("%w: %v", ErrFailure, err)
		}
	} else {
		v = a.Val()
	}
	n.ValPrint(path.Endpoint, path.Cluster, path.Attribute, v, true)
	return v.EncodeTLV(w, tag)
}

// WriteAttribute serves a write from the Matter stack. r must be
// positioned on the value element.
func (n *Node) WriteAttribute(ctx context.Context, path AttributePath, r *tlv.Reader) error {
	ep, err := n.enabledEndpoint(path.Endpoint)
	if err != nil {
		return err
	}
	c := ep.Cluster(path.Cluster)
	if c == nil {
		return ErrClusterNotFound
	}
	a := c.Attribute(path.Attribute)
	if a == nil {
		return ErrAttributeNotFound
	}
	flags := a.Flags()
	if flags&AttributeFlagWritable == 0 || flags&AttributeFlagManagedInternally != 0 {
		return ErrUnsupportedWrite
	}
	v, err := DecodeVal(r, a.Type())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArg, err)
	}

	if flags&AttributeFlagOverride != 0 {
		if err := n.executeOverrideCallback(a, Write, &v); err != nil {
			return fmt.Errorf("%w: %v", ErrFailure, err)
		}
		return nil
	}
	n.ValPrint(path.Endpoint, path.Cluster, path.Attribute, v, false)
	return mapSetErr(a.SetValInternal(v, true))
}

// mapSetErr turns a SetValInternal error into a write status. An
// unchanged value is a successful write.
func mapSetErr(err error) error {
	switch {
	case err == nil, errors.Is(err, ErrNotFinished):
		return nil
	case errors.Is(err, ErrInvalidArg), errors.Is(err, ErrNoMem), errors.Is(err, ErrNotSupported):
		return err
	}
	return fmt.Errorf("%w: %v", ErrFailure, err)
}

// InvokeCommand serves a command invocation from the Matter stack. fields
// holds the TLV encoded command fields. The returned bytes are the
// response fields, nil for a status-only response.
func (n *Node) InvokeCommand(ctx context.Context, path CommandPath, fields []byte) ([]byte, error) {
	n.log.Infof("Received command 0x%04X for endpoint 0x%04X's cluster 0x%04X",
		uint32(path.Command), uint16(path.Endpoint), uint32(path.Cluster))
	ep, err := n.enabledEndpoint(path.Endpoint)
	if err != nil {
		return nil, err
	}
	cmd := n.Command(path.Endpoint, path.Cluster, path.Command)
	if cmd == nil || cmd.Flags()&(CommandFlagAccepted|CommandFlagCustom) == 0 {
		n.log.Errorf("Command 0x%04X not found", uint32(path.Command))
		return nil, ErrUnsupportedCommand
	}
	priv := ep.PrivData()

	if cmd.Flags()&CommandFlagCustom != 0 {
		n.cbMu.RLock()
		cb, cbPriv := n.customCb, n.customPriv
		n.cbMu.RUnlock()
		if cb == nil {
			return nil, ErrUnsupportedCommand
		}
		if err := cb(ctx, path, newFieldReader(fields), cbPriv); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrFailure, err)
		}
		return nil, nil
	}

	var resp []byte
	if cb := cmd.Callback(); cb != nil {
		resp, err = cb(ctx, path, newFieldReader(fields), priv)
		if err != nil {
			return nil, err
		}
	}
	if ucb := cmd.UserCallback(); ucb != nil {
		if _, err := ucb(ctx, path, newFieldReader(fields), priv); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrFailure, err)
		}
	}
	return resp, nil
}

func newFieldReader(fields []byte) *tlv.Reader {
	return tlv.NewReader(bytes.NewReader(fields))
}

// globalListAttribute computes AttributeList, AcceptedCommandList and
// GeneratedCommandList.
func globalListAttribute(c *Cluster, id AttributeID) ([]uint32, bool) {
	var ids []uint32
	switch id {
	case AttrAttributeList:
		for _, a := range c.Attributes() {
			ids = append(ids, uint32(a.id))
		}
		for _, g := range []AttributeID{AttrGeneratedCommandList, AttrAcceptedCommandList, AttrAttributeList} {
			if c.Attribute(g) == nil {
				ids = append(ids, uint32(g))
			}
		}
	case AttrAcceptedCommandList:
		for _, cmd := range c.CommandIDs(CommandFlagAccepted) {
			ids = append(ids, uint32(cmd))
		}
	case AttrGeneratedCommandList:
		for _, cmd := range c.CommandIDs(CommandFlagGenerated) {
			ids = append(ids, uint32(cmd))
		}
	default:
		return nil, false
	}
	return ids, true
}

func encodeIDList(w *tlv.Writer, tag tlv.Tag, ids []uint32) error {
	if err := w.StartArray(tag); err != nil {
		return err
	}
	for _, id := range ids {
		if err := w.PutUint(tlv.Anonymous(), uint64(id)); err != nil {
			return err
		}
	}
	return w.EndContainer()
}
