package accesscontrol

import (
	"bytes"

	"github.com/espressif/esp-matter-sub221/pkg/clusters"
	"github.com/espressif/esp-matter-sub221/pkg/datamodel"
	"github.com/espressif/esp-matter-sub221/pkg/tlv"
)

// EntryChangedEvent is the AccessControlEntryChanged payload. Exactly one
// of AdminNodeID and AdminPasscodeID is set by the stack.
type EntryChangedEvent struct {
	AdminNodeID     *uint64
	AdminPasscodeID *uint16
	ChangeType      ChangeType
	LatestValue     *Entry
	FabricIndex     datamodel.FabricIndex
}

// MarshalTLV encodes the event payload.
func (e EntryChangedEvent) MarshalTLV(w *tlv.Writer) error {
	if err := w.StartStructure(tlv.Anonymous()); err != nil {
		return err
	}
	var err error
	if e.AdminNodeID != nil {
		err = w.PutUint(tlv.ContextTag(1), *e.AdminNodeID)
	} else {
		err = w.PutNull(tlv.ContextTag(1))
	}
	if err != nil {
		return err
	}
	if e.AdminPasscodeID != nil {
		err = w.PutUint(tlv.ContextTag(2), uint64(*e.AdminPasscodeID))
	} else {
		err = w.PutNull(tlv.ContextTag(2))
	}
	if err != nil {
		return err
	}
	if err := w.PutUint(tlv.ContextTag(3), uint64(e.ChangeType)); err != nil {
		return err
	}
	if e.LatestValue != nil {
		err = writeEntry(w, tlv.ContextTag(4), *e.LatestValue)
	} else {
		err = w.PutNull(tlv.ContextTag(4))
	}
	if err != nil {
		return err
	}
	if err := w.PutUint(tlv.ContextTag(fabricIndexTag), uint64(e.FabricIndex)); err != nil {
		return err
	}
	return w.EndContainer()
}

// EmitEntryChanged sends an AccessControlEntryChanged event for c to sink.
func EmitEntryChanged(sink clusters.EventSink, c *datamodel.Cluster, ev EntryChangedEvent) error {
	var buf bytes.Buffer
	if err := ev.MarshalTLV(tlv.NewWriter(&buf)); err != nil {
		return err
	}
	return clusters.Emit(sink, c, EventAccessControlEntryChanged, buf.Bytes())
}
