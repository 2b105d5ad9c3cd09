package matter

import (
	"github.com/espressif/esp-matter-sub221/pkg/commissioning"
)

// SetupPayload returns the onboarding payload of the node.
func (n *Node) SetupPayload() commissioning.SetupPayload {
	return n.payload
}

// QRCode returns the "MT:" QR code payload.
func (n *Node) QRCode() (string, error) {
	p := n.payload
	return commissioning.EncodeQRCode(&p)
}

// ManualPairingCode returns the 11 digit manual pairing code, or the 21
// digit form for a custom commissioning flow.
func (n *Node) ManualPairingCode() (string, error) {
	p := n.payload
	return commissioning.EncodeManualCode(&p)
}

func (n *Node) logOnboardingCodes() {
	qr, err := n.QRCode()
	if err != nil {
		n.log.Errorf("Failed to encode QR code: %v", err)
		return
	}
	manual, err := n.ManualPairingCode()
	if err != nil {
		n.log.Errorf("Failed to encode manual pairing code: %v", err)
		return
	}
	n.log.Infof("SetupQRCode: [%s]", qr)
	n.log.Infof("Manual pairing code: [%s]", commissioning.FormatManualCode(manual))
}
