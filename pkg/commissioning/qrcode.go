package commissioning

import (
	"fmt"
	"strings"
)

// QRCodePrefix starts every onboarding QR code.
const QRCodePrefix = "MT:"

// Field widths of the packed QR code payload, in bits.
var qrFields = [...]int{
	3,  // version
	16, // vendor id
	16, // product id
	2,  // commissioning flow
	8,  // rendezvous
	12, // discriminator
	27, // passcode
	4,  // padding
}

const qrPayloadBytes = 11

// EncodeQRCode returns the "MT:" QR code text for p.
func EncodeQRCode(p *SetupPayload) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}
	values := [len(qrFields)]uint64{
		uint64(p.Version),
		uint64(p.VendorID),
		uint64(p.ProductID),
		uint64(p.Flow),
		uint64(p.Rendezvous),
		uint64(p.Discriminator),
		uint64(p.Passcode),
		0,
	}
	buf := make([]byte, qrPayloadBytes)
	bit := 0
	for i, width := range qrFields {
		for j := range width {
			if values[i]>>j&1 != 0 {
				buf[bit/8] |= 1 << (bit % 8)
			}
			bit++
		}
	}
	return QRCodePrefix + base38Encode(buf), nil
}

// ParseQRCode decodes a QR code produced by EncodeQRCode. Optional TLV
// data after the packed fields is ignored.
func ParseQRCode(s string) (*SetupPayload, error) {
	rest, ok := strings.CutPrefix(s, QRCodePrefix)
	if !ok {
		return nil, fmt.Errorf("%w: missing %s prefix", ErrInvalidPayload, QRCodePrefix)
	}
	buf, err := base38Decode(rest)
	if err != nil {
		return nil, err
	}
	if len(buf) < qrPayloadBytes {
		return nil, fmt.Errorf("%w: %d byte payload", ErrInvalidPayload, len(buf))
	}
	var values [len(qrFields)]uint64
	bit := 0
	for i, width := range qrFields {
		for j := range width {
			if buf[bit/8]>>(bit%8)&1 != 0 {
				values[i] |= 1 << j
			}
			bit++
		}
	}
	if values[len(values)-1] != 0 {
		return nil, fmt.Errorf("%w: non-zero padding", ErrInvalidPayload)
	}
	return &SetupPayload{
		Version:       uint8(values[0]),
		VendorID:      uint16(values[1]),
		ProductID:     uint16(values[2]),
		Flow:          CommissioningFlow(values[3]),
		Rendezvous:    RendezvousFlags(values[4]),
		Discriminator: uint16(values[5]),
		Passcode:      uint32(values[6]),
	}, nil
}
