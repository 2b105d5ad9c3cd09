// Package clustertest provides helpers for cluster tests.
package clustertest

import (
	"bytes"
	"context"
	"testing"

	"github.com/espressif/esp-matter-sub221/pkg/clusters"
	"github.com/espressif/esp-matter-sub221/pkg/datamodel"
	"github.com/espressif/esp-matter-sub221/pkg/storage"
	"github.com/espressif/esp-matter-sub221/pkg/tlv"
)

// NewEndpoint returns a new, not yet enabled endpoint on a fresh node
// backed by a memory store.
func NewEndpoint(t *testing.T) (*datamodel.Node, *datamodel.Endpoint) {
	t.Helper()
	n := datamodel.NewNode(datamodel.Config{Store: storage.NewMemoryStore()})
	t.Cleanup(func() { _ = n.Destroy() })
	ep, err := n.CreateEndpoint(datamodel.EndpointFlagDestroyable, nil)
	if err != nil {
		t.Fatalf("CreateEndpoint() failed: %v", err)
	}
	return n, ep
}

// Enable enables ep and fails the test on error.
func Enable(t *testing.T, ep *datamodel.Endpoint) {
	t.Helper()
	if err := ep.Enable(); err != nil {
		t.Fatalf("Enable() failed: %v", err)
	}
}

// Invoke sends a command with the given encoded fields through the node
// dispatcher. fields may be nil.
func Invoke(t *testing.T, c *datamodel.Cluster, id datamodel.CommandID, fields []byte) ([]byte, error) {
	t.Helper()
	return InvokeContext(t, context.Background(), c, id, fields)
}

// InvokeContext is Invoke with a caller supplied context, typically one
// carrying the accessing fabric.
func InvokeContext(t *testing.T, ctx context.Context, c *datamodel.Cluster, id datamodel.CommandID, fields []byte) ([]byte, error) {
	t.Helper()
	path := datamodel.CommandPath{Endpoint: c.EndpointID(), Cluster: c.ID(), Command: id}
	return c.Endpoint().Node().InvokeCommand(ctx, path, fields)
}

// Decode decodes a command response.
func Decode(t *testing.T, resp []byte) clusters.Fields {
	t.Helper()
	f, err := clusters.DecodeFields(tlv.NewReader(bytes.NewReader(resp)))
	if err != nil {
		t.Fatalf("DecodeFields() failed: %v", err)
	}
	return f
}

// MustInvoke is Invoke that fails the test on error.
func MustInvoke(t *testing.T, c *datamodel.Cluster, id datamodel.CommandID, fields []byte) []byte {
	t.Helper()
	resp, err := Invoke(t, c, id, fields)
	if err != nil {
		t.Fatalf("InvokeCommand(0x%02X) failed: %v", uint32(id), err)
	}
	return resp
}

// Read reads an attribute through the node dispatcher and returns a reader
// positioned on the value.
func Read(t *testing.T, c *datamodel.Cluster, id datamodel.AttributeID) *tlv.Reader {
	t.Helper()
	return ReadContext(t, context.Background(), c, id)
}

// ReadContext is Read with a caller supplied context.
func ReadContext(t *testing.T, ctx context.Context, c *datamodel.Cluster, id datamodel.AttributeID) *tlv.Reader {
	t.Helper()
	var buf bytes.Buffer
	path := datamodel.AttributePath{Endpoint: c.EndpointID(), Cluster: c.ID(), Attribute: id}
	if err := c.Endpoint().Node().ReadAttribute(ctx, path, tlv.NewWriter(&buf), tlv.Anonymous()); err != nil {
		t.Fatalf("ReadAttribute(%s) failed: %v", path, err)
	}
	r := tlv.NewReader(&buf)
	if err := r.Next(); err != nil {
		t.Fatal(err)
	}
	return r
}

// CountListContext reads a list attribute and returns its element count.
func CountListContext(t *testing.T, ctx context.Context, c *datamodel.Cluster, id datamodel.AttributeID) int {
	t.Helper()
	r := ReadContext(t, ctx, c, id)
	if err := r.EnterContainer(); err != nil {
		t.Fatal(err)
	}
	n := 0
	for {
		if err := r.Next(); err != nil {
			t.Fatal(err)
		}
		if r.IsEndOfContainer() {
			return n
		}
		n++
		if err := r.Skip(); err != nil {
			t.Fatal(err)
		}
	}
}

// ReadUintList reads an array of unsigned integers.
func ReadUintList(t *testing.T, c *datamodel.Cluster, id datamodel.AttributeID) []uint64 {
	t.Helper()
	r := Read(t, c, id)
	if err := r.EnterContainer(); err != nil {
		t.Fatal(err)
	}
	var out []uint64
	for {
		if err := r.Next(); err != nil {
			t.Fatal(err)
		}
		if r.IsEndOfContainer() {
			break
		}
		v, err := r.Uint()
		if err != nil {
			t.Fatal(err)
		}
		out = append(out, v)
	}
	return out
}
