package discovery

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Commissionable TXT keys.
const (
	TXTKeyDiscriminator       = "D"
	TXTKeyVendorProduct       = "VP"
	TXTKeyCommissioningMode   = "CM"
	TXTKeyDeviceType          = "DT"
	TXTKeyDeviceName          = "DN"
	TXTKeyIdleInterval        = "SII"
	TXTKeyActiveInterval      = "SAI"
	TXTKeyPairingHint         = "PH"
	TXTKeyPairingInstructions = "PI"
)

// Limits of commissionable TXT values.
const (
	MaxDeviceNameLength          = 32
	MaxDiscriminator             = 0xFFF
	MaxPairingInstructionsLength = 128
)

// Pairing hint bits advertised in PH.
const (
	PairingHintPowerCycle    uint16 = 1 << 0
	PairingHintDeviceManual  uint16 = 1 << 1
	PairingHintPressReset    uint16 = 1 << 9
	PairingHintPressResetFor uint16 = 1 << 10
)

// CommissionableTXT is the TXT record of a _matterc._udp service.
type CommissionableTXT struct {
	Discriminator     uint16
	CommissioningMode CommissioningMode

	// VendorID and ProductID are published as VP=<vid>+<pid> when either
	// is set.
	VendorID  uint16
	ProductID uint16

	DeviceType uint32
	DeviceName string

	// IdleInterval and ActiveInterval are the node's MRP intervals.
	IdleInterval   time.Duration
	ActiveInterval time.Duration

	PairingHint         uint16
	PairingInstructions string
}

// ShortDiscriminator returns the upper 4 bits of the discriminator.
func (c *CommissionableTXT) ShortDiscriminator() uint8 {
	return uint8(c.Discriminator >> 8 & 0xF)
}

// Validate checks the values against the record limits.
func (c *CommissionableTXT) Validate() error {
	if c.Discriminator > MaxDiscriminator {
		return ErrInvalidDiscriminator
	}
	if len(c.DeviceName) > MaxDeviceNameLength {
		return ErrInvalidDeviceName
	}
	if len(c.PairingInstructions) > MaxPairingInstructionsLength {
		return fmt.Errorf("%w: pairing instructions too long", ErrInvalidTXTRecord)
	}
	if c.PairingInstructions != "" && c.PairingHint == 0 {
		return fmt.Errorf("%w: pairing instructions without hint", ErrInvalidTXTRecord)
	}
	return nil
}

// Encode returns the record as key=value strings.
func (c *CommissionableTXT) Encode() []string {
	txt := []string{
		fmt.Sprintf("%s=%d", TXTKeyDiscriminator, c.Discriminator),
		fmt.Sprintf("%s=%d", TXTKeyCommissioningMode, c.CommissioningMode),
	}
	if c.VendorID != 0 || c.ProductID != 0 {
		txt = append(txt, fmt.Sprintf("%s=%d+%d", TXTKeyVendorProduct, c.VendorID, c.ProductID))
	}
	if c.DeviceType != 0 {
		txt = append(txt, fmt.Sprintf("%s=%d", TXTKeyDeviceType, c.DeviceType))
	}
	if c.DeviceName != "" {
		txt = append(txt, fmt.Sprintf("%s=%s", TXTKeyDeviceName, c.DeviceName))
	}
	if c.IdleInterval > 0 {
		txt = append(txt, fmt.Sprintf("%s=%d", TXTKeyIdleInterval, c.IdleInterval.Milliseconds()))
	}
	if c.ActiveInterval > 0 {
		txt = append(txt, fmt.Sprintf("%s=%d", TXTKeyActiveInterval, c.ActiveInterval.Milliseconds()))
	}
	if c.PairingHint != 0 {
		txt = append(txt, fmt.Sprintf("%s=%d", TXTKeyPairingHint, c.PairingHint))
	}
	if c.PairingInstructions != "" {
		txt = append(txt, fmt.Sprintf("%s=%s", TXTKeyPairingInstructions, c.PairingInstructions))
	}
	return txt
}

// Subtypes returns the DNS-SD subtypes commissioners browse for.
func (c *CommissionableTXT) Subtypes() []string {
	subtypes := []string{
		fmt.Sprintf("_S%d", c.ShortDiscriminator()),
		fmt.Sprintf("_L%d", c.Discriminator),
	}
	if c.VendorID != 0 {
		subtypes = append(subtypes, fmt.Sprintf("_V%d", c.VendorID))
	}
	if c.DeviceType != 0 {
		subtypes = append(subtypes, fmt.Sprintf("_T%d", c.DeviceType))
	}
	if c.CommissioningMode > CommissioningModeDisabled {
		subtypes = append(subtypes, "_CM")
	}
	return subtypes
}

// ParseTXT splits key=value records into a map.
func ParseTXT(records []string) map[string]string {
	m := make(map[string]string, len(records))
	for _, r := range records {
		if k, v, ok := strings.Cut(r, "="); ok && k != "" {
			m[k] = v
		}
	}
	return m
}

// ParseCommissionableTXT decodes records produced by Encode.
func ParseCommissionableTXT(records []string) (*CommissionableTXT, error) {
	m := ParseTXT(records)
	txt := &CommissionableTXT{}
	num := func(key string, bits int) (uint64, bool, error) {
		v, ok := m[key]
		if !ok {
			return 0, false, nil
		}
		n, err := strconv.ParseUint(v, 10, bits)
		if err != nil {
			return 0, false, fmt.Errorf("%w: %s=%s", ErrInvalidTXTRecord, key, v)
		}
		return n, true, nil
	}

	d, ok, err := num(TXTKeyDiscriminator, 16)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: missing %s", ErrInvalidTXTRecord, TXTKeyDiscriminator)
	}
	if d > MaxDiscriminator {
		return nil, ErrInvalidDiscriminator
	}
	txt.Discriminator = uint16(d)

	cm, _, err := num(TXTKeyCommissioningMode, 8)
	if err != nil {
		return nil, err
	}
	txt.CommissioningMode = CommissioningMode(cm)
	if v, ok := m[TXTKeyVendorProduct]; ok {
		vid, pid, found := strings.Cut(v, "+")
		vn, err1 := strconv.ParseUint(vid, 10, 16)
		pn, err2 := strconv.ParseUint(pid, 10, 16)
		if !found || err1 != nil || err2 != nil {
			return nil, fmt.Errorf("%w: %s=%s", ErrInvalidTXTRecord, TXTKeyVendorProduct, v)
		}
		txt.VendorID, txt.ProductID = uint16(vn), uint16(pn)
	}
	dt, _, err := num(TXTKeyDeviceType, 32)
	if err != nil {
		return nil, err
	}
	txt.DeviceType = uint32(dt)
	txt.DeviceName = m[TXTKeyDeviceName]

	sii, _, err := num(TXTKeyIdleInterval, 32)
	if err != nil {
		return nil, err
	}
	txt.IdleInterval = time.Duration(sii) * time.Millisecond
	sai, _, err := num(TXTKeyActiveInterval, 32)
	if err != nil {
		return nil, err
	}
	txt.ActiveInterval = time.Duration(sai) * time.Millisecond

	ph, _, err := num(TXTKeyPairingHint, 16)
	if err != nil {
		return nil, err
	}
	txt.PairingHint = uint16(ph)
	txt.PairingInstructions = m[TXTKeyPairingInstructions]
	return txt, nil
}
