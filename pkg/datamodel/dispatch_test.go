package datamodel

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/espressif/esp-matter-sub221/pkg/tlv"
)

func encodeVal(t *testing.T, v Val) *tlv.Reader {
	t.Helper()
	var buf bytes.Buffer
	if err := v.EncodeTLV(tlv.NewWriter(&buf), tlv.Anonymous()); err != nil {
		t.Fatal(err)
	}
	r := tlv.NewReader(&buf)
	if err := r.Next(); err != nil {
		t.Fatal(err)
	}
	return r
}

func readVal(t *testing.T, n *Node, path AttributePath, typ ValType) (Val, error) {
	t.Helper()
	var buf bytes.Buffer
	if err := n.ReadAttribute(context.Background(), path, tlv.NewWriter(&buf), tlv.Anonymous()); err != nil {
		return Val{}, err
	}
	r := tlv.NewReader(&buf)
	if err := r.Next(); err != nil {
		t.Fatal(err)
	}
	return DecodeVal(r, typ)
}

func TestReadAttribute(t *testing.T) {
	n, c, _ := newAttrFixture(t, nil)
	CreateAttribute(c, 0, AttributeFlagNone, NullableUint8(77), 0)
	CreateAttribute(c, 1, AttributeFlagManagedInternally, Uint8(0), 0)
	ep := c.EndpointID()

	v, err := readVal(t, n, AttributePath{ep, c.ID(), 0}, ValTypeNullableUint8)
	if err != nil || v.Uint() != 77 {
		t.Errorf("ReadAttribute() = %v, %v; want 77", v, err)
	}
	if _, err := readVal(t, n, AttributePath{ep, c.ID(), 1}, ValTypeUint8); !errors.Is(err, ErrUnsupportedRead) {
		t.Errorf("read internal = %v, want ErrUnsupportedRead", err)
	}
	if _, err := readVal(t, n, AttributePath{ep, c.ID(), 5}, ValTypeUint8); !errors.Is(err, ErrAttributeNotFound) {
		t.Errorf("read missing = %v, want ErrAttributeNotFound", err)
	}
	if _, err := readVal(t, n, AttributePath{9, c.ID(), 0}, ValTypeUint8); !errors.Is(err, ErrEndpointNotFound) {
		t.Errorf("read missing endpoint = %v, want ErrEndpointNotFound", err)
	}

	c.SetAttributeProvider(func(ctx context.Context, p AttributePath, w *tlv.Writer, tag tlv.Tag) error {
		return w.PutUint(tag, 9)
	})
	v, err = readVal(t, n, AttributePath{ep, c.ID(), 1}, ValTypeUint8)
	if err != nil || v.Uint() != 9 {
		t.Errorf("read provided = %v, %v; want 9", v, err)
	}
}

func TestReadAttribute_GlobalLists(t *testing.T) {
	n, c, _ := newAttrFixture(t, nil)
	CreateAttribute(c, 0, AttributeFlagNone, Uint8(0), 0)
	CreateAttribute(c, AttrFeatureMap, AttributeFlagNone, Bitmap32(0), 0)
	CreateCommand(c, 0x00, CommandFlagAccepted, nil)
	CreateCommand(c, 0x01, CommandFlagAccepted, nil)
	CreateCommand(c, 0x02, CommandFlagGenerated, nil)

	count := func(id AttributeID) int {
		var buf bytes.Buffer
		if err := n.ReadAttribute(context.Background(), AttributePath{c.EndpointID(), c.ID(), id}, tlv.NewWriter(&buf), tlv.Anonymous()); err != nil {
			t.Fatalf("read 0x%X failed: %v", id, err)
		}
		r := tlv.NewReader(&buf)
		if err := r.Next(); err != nil {
			t.Fatal(err)
		}
		if err := r.EnterContainer(); err != nil {
			t.Fatal(err)
		}
		k := 0
		for {
			if err := r.Next(); err != nil {
				t.Fatal(err)
			}
			if r.IsEndOfContainer() {
				return k
			}
			k++
		}
	}
	if got := count(AttrAttributeList); got != 5 {
		t.Errorf("AttributeList entries = %d, want 5", got)
	}
	if got := count(AttrAcceptedCommandList); got != 2 {
		t.Errorf("AcceptedCommandList entries = %d, want 2", got)
	}
	if got := count(AttrGeneratedCommandList); got != 1 {
		t.Errorf("GeneratedCommandList entries = %d, want 1", got)
	}
}

func TestWriteAttribute(t *testing.T) {
	n, c, rec := newAttrFixture(t, nil)
	ep := c.EndpointID()
	CreateAttribute(c, 0, AttributeFlagWritable, Uint8(0), 0)
	CreateAttribute(c, 1, AttributeFlagNone, Uint8(0), 0)
	ctx := context.Background()

	if err := n.WriteAttribute(ctx, AttributePath{ep, c.ID(), 1}, encodeVal(t, Uint8(1))); !errors.Is(err, ErrUnsupportedWrite) {
		t.Errorf("write read-only = %v, want ErrUnsupportedWrite", err)
	}
	if err := n.WriteAttribute(ctx, AttributePath{ep, c.ID(), 0}, encodeVal(t, Uint8(4))); err != nil {
		t.Fatalf("WriteAttribute() failed: %v", err)
	}
	if len(rec.calls) != 2 || rec.calls[0].typ != PreUpdate || rec.calls[1].typ != PostUpdate {
		t.Errorf("callbacks = %+v", rec.calls)
	}

	rec.veto = errors.New("no")
	err := n.WriteAttribute(ctx, AttributePath{ep, c.ID(), 0}, encodeVal(t, Uint8(5)))
	if !errors.Is(err, ErrFailure) {
		t.Errorf("vetoed write = %v, want ErrFailure", err)
	}
	if got, _ := n.GetVal(ep, c.ID(), 0); got.Uint() != 4 {
		t.Errorf("value = %d after veto, want 4", got.Uint())
	}
}

func TestWriteAttribute_Override(t *testing.T) {
	n, c, rec := newAttrFixture(t, nil)
	a, _ := CreateAttribute(c, 0, AttributeFlagWritable, Uint8(0), 0)
	var written Val
	a.SetOverrideCallback(func(typ CallbackType, _ EndpointID, _ ClusterID, _ AttributeID, v *Val, _ any) error {
		if typ == Write {
			written = *v
		}
		return nil
	})
	if err := n.WriteAttribute(context.Background(), a.Path(), encodeVal(t, Uint8(8))); err != nil {
		t.Fatal(err)
	}
	if written.Uint() != 8 {
		t.Errorf("override saw %v, want 8", written)
	}
	if a.Val().Uint() != 0 || len(rec.calls) != 0 {
		t.Error("override write reached the stored value or the application callback")
	}
}

func TestInvokeCommand(t *testing.T) {
	n, c, _ := newAttrFixture(t, nil)
	ep := c.EndpointID()
	ctx := context.Background()

	var order []string
	cmd, _ := CreateCommand(c, 0x01, CommandFlagAccepted, func(ctx context.Context, p CommandPath, r *tlv.Reader, priv any) ([]byte, error) {
		order = append(order, "server")
		return []byte{0x18}, nil
	})
	cmd.SetUserCallback(func(ctx context.Context, p CommandPath, r *tlv.Reader, priv any) ([]byte, error) {
		order = append(order, "user")
		return nil, nil
	})
	resp, err := n.InvokeCommand(ctx, CommandPath{ep, c.ID(), 0x01}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(resp) != 1 || len(order) != 2 || order[0] != "server" || order[1] != "user" {
		t.Errorf("resp = %x, order = %v", resp, order)
	}

	if _, err := n.InvokeCommand(ctx, CommandPath{ep, c.ID(), 0x7F}, nil); !errors.Is(err, ErrUnsupportedCommand) {
		t.Errorf("missing command = %v, want ErrUnsupportedCommand", err)
	}
	CreateCommand(c, 0x02, CommandFlagGenerated, nil)
	if _, err := n.InvokeCommand(ctx, CommandPath{ep, c.ID(), 0x02}, nil); !errors.Is(err, ErrUnsupportedCommand) {
		t.Errorf("generated command = %v, want ErrUnsupportedCommand", err)
	}
}

func TestInvokeCommand_Custom(t *testing.T) {
	n, c, _ := newAttrFixture(t, nil)
	CreateCommand(c, 0x10, CommandFlagCustom|CommandFlagAccepted, nil)
	path := CommandPath{c.EndpointID(), c.ID(), 0x10}

	var got any
	n.SetCustomCallback(func(ctx context.Context, p CommandPath, r *tlv.Reader, priv any) error {
		got = priv
		if p.Command != 0x10 {
			return errors.New("wrong command")
		}
		return nil
	}, "ctx")
	if _, err := n.InvokeCommand(context.Background(), path, nil); err != nil {
		t.Fatalf("custom command failed: %v", err)
	}
	if got != "ctx" {
		t.Errorf("custom priv = %v, want ctx", got)
	}

	n.SetCustomCallback(func(context.Context, CommandPath, *tlv.Reader, any) error { return errors.New("x") }, nil)
	if _, err := n.InvokeCommand(context.Background(), path, nil); !errors.Is(err, ErrFailure) {
		t.Errorf("failing custom = %v, want ErrFailure", err)
	}
}

func TestCreateCommand_Idempotent(t *testing.T) {
	_, c, _ := newAttrFixture(t, nil)
	a, _ := CreateCommand(c, 1, CommandFlagAccepted, nil)
	b, _ := CreateCommand(c, 1, CommandFlagAccepted, nil)
	g, _ := CreateCommand(c, 1, CommandFlagGenerated, nil)
	if a != b {
		t.Error("same direction created twice")
	}
	if a == g {
		t.Error("generated command merged with accepted command")
	}
	e1, _ := CreateEvent(c, 3)
	e2, _ := CreateEvent(c, 3)
	if e1 != e2 || len(c.Events()) != 1 {
		t.Error("CreateEvent() is not idempotent")
	}
}

func TestCreateCluster(t *testing.T) {
	n := newTestNode(t, nil)
	ep := mustEndpoint(t, n, EndpointFlagNone)
	if _, err := CreateCluster(ep, 6, ClusterFlagNone); !errors.Is(err, ErrClusterFlags) {
		t.Errorf("CreateCluster(no role) = %v, want ErrClusterFlags", err)
	}
	s := mustCluster(t, ep, 6, ClusterFlagServer)
	cl := mustCluster(t, ep, 6, ClusterFlagClient)
	if s != cl {
		t.Fatal("second CreateCluster() created a new cluster")
	}
	if s.Flags() != ClusterFlagServer|ClusterFlagClient {
		t.Errorf("Flags() = 0x%X, want server|client", s.Flags())
	}
	before := s.DataVersion()
	if s.IncreaseDataVersion() != before+1 {
		t.Error("IncreaseDataVersion() did not increment")
	}
	if err := s.Destroy(); err != nil {
		t.Fatal(err)
	}
	if ep.Cluster(6) != nil {
		t.Error("cluster still present after Destroy")
	}
}
