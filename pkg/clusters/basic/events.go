package basic

import (
	"bytes"

	"github.com/espressif/esp-matter-sub221/pkg/clusters"
	"github.com/espressif/esp-matter-sub221/pkg/datamodel"
	"github.com/espressif/esp-matter-sub221/pkg/tlv"
)

// StartUpEvent is emitted after boot or reboot.
type StartUpEvent struct {
	SoftwareVersion uint32
}

// MarshalTLV encodes the event payload.
func (e StartUpEvent) MarshalTLV(w *tlv.Writer) error {
	if err := w.StartStructure(tlv.Anonymous()); err != nil {
		return err
	}
	if err := w.PutUint(tlv.ContextTag(0), uint64(e.SoftwareVersion)); err != nil {
		return err
	}
	return w.EndContainer()
}

// EmitStartUp sends the StartUp event for softwareVersion to sink.
func EmitStartUp(sink clusters.EventSink, c *datamodel.Cluster, softwareVersion uint32) error {
	var buf bytes.Buffer
	if err := (StartUpEvent{SoftwareVersion: softwareVersion}).MarshalTLV(tlv.NewWriter(&buf)); err != nil {
		return err
	}
	return clusters.Emit(sink, c, EventStartUp, buf.Bytes())
}
