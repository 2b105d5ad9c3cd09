package commissioning

import (
	"errors"
	"fmt"
	"strings"
)

// RendezvousFlags is the discovery capabilities bitmap of a QR code.
type RendezvousFlags uint8

const (
	RendezvousNone      RendezvousFlags = 0
	RendezvousSoftAP    RendezvousFlags = 1 << 0
	RendezvousBLE       RendezvousFlags = 1 << 1
	RendezvousOnNetwork RendezvousFlags = 1 << 2
	RendezvousWiFiPAF   RendezvousFlags = 1 << 3
	RendezvousNFC       RendezvousFlags = 1 << 4

	rendezvousKnown = RendezvousSoftAP | RendezvousBLE | RendezvousOnNetwork | RendezvousWiFiPAF | RendezvousNFC
)

var rendezvousNames = []struct {
	flag RendezvousFlags
	name string
}{
	{RendezvousSoftAP, "softap"},
	{RendezvousBLE, "ble"},
	{RendezvousOnNetwork, "onnetwork"},
	{RendezvousWiFiPAF, "wifipaf"},
	{RendezvousNFC, "nfc"},
}

func (r RendezvousFlags) String() string {
	if r == RendezvousNone {
		return "none"
	}
	var names []string
	for _, n := range rendezvousNames {
		if r&n.flag != 0 {
			names = append(names, n.name)
		}
	}
	return strings.Join(names, "|")
}

// ParseRendezvous parses "none" or a '|' separated list of flag names.
func ParseRendezvous(s string) (RendezvousFlags, error) {
	if strings.EqualFold(s, "none") {
		return RendezvousNone, nil
	}
	var r RendezvousFlags
	for _, part := range strings.Split(s, "|") {
		found := false
		for _, n := range rendezvousNames {
			if strings.EqualFold(part, n.name) {
				r |= n.flag
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("%w: unknown rendezvous %q", ErrInvalidPayload, part)
		}
	}
	return r, nil
}

func (r RendezvousFlags) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *RendezvousFlags) UnmarshalText(b []byte) error {
	v, err := ParseRendezvous(string(b))
	if err != nil {
		return err
	}
	*r = v
	return nil
}

// CommissioningFlow tells a commissioner how the device enters pairing
// mode.
type CommissioningFlow uint8

const (
	FlowStandard   CommissioningFlow = 0
	FlowUserIntent CommissioningFlow = 1
	FlowCustom     CommissioningFlow = 2
)

func (f CommissioningFlow) String() string {
	switch f {
	case FlowStandard:
		return "Standard"
	case FlowUserIntent:
		return "UserIntent"
	case FlowCustom:
		return "Custom"
	}
	return fmt.Sprintf("CommissioningFlow(%d)", uint8(f))
}

// Setup code limits.
const (
	MaxDiscriminator = 0xFFF
	MaxPasscode      = 99999998
)

// Payload errors.
var (
	ErrInvalidPayload       = errors.New("commissioning: invalid setup payload")
	ErrInvalidPasscode      = errors.New("commissioning: invalid passcode")
	ErrInvalidDiscriminator = errors.New("commissioning: invalid discriminator")
)

var trivialPasscodes = map[uint32]bool{
	0: true, 11111111: true, 22222222: true, 33333333: true, 44444444: true,
	55555555: true, 66666666: true, 77777777: true, 88888888: true,
	99999999: true, 12345678: true, 87654321: true,
}

// ValidatePasscode rejects passcodes that are out of range or trivially
// guessable.
func ValidatePasscode(passcode uint32) error {
	if passcode == 0 || passcode > MaxPasscode || trivialPasscodes[passcode] {
		return fmt.Errorf("%w: %d", ErrInvalidPasscode, passcode)
	}
	return nil
}

// ValidateDiscriminator checks that d fits in 12 bits.
func ValidateDiscriminator(d uint16) error {
	if d > MaxDiscriminator {
		return fmt.Errorf("%w: %d", ErrInvalidDiscriminator, d)
	}
	return nil
}

// SetupPayload is the onboarding information of a node. Discriminator is
// the full 12-bit value, manual codes only carry its upper 4 bits.
type SetupPayload struct {
	Version       uint8
	VendorID      uint16
	ProductID     uint16
	Flow          CommissioningFlow
	Rendezvous    RendezvousFlags
	Discriminator uint16
	Passcode      uint32
}

// ShortDiscriminator returns the upper 4 bits of the discriminator.
func (p *SetupPayload) ShortDiscriminator() uint8 {
	return uint8(p.Discriminator >> 8)
}

// Validate checks the payload fields before encoding.
func (p *SetupPayload) Validate() error {
	if p.Version != 0 {
		return fmt.Errorf("%w: version %d", ErrInvalidPayload, p.Version)
	}
	if p.Flow > FlowCustom {
		return fmt.Errorf("%w: flow %d", ErrInvalidPayload, p.Flow)
	}
	if p.Rendezvous&^rendezvousKnown != 0 {
		return fmt.Errorf("%w: rendezvous 0x%02X", ErrInvalidPayload, uint8(p.Rendezvous))
	}
	if err := ValidateDiscriminator(p.Discriminator); err != nil {
		return err
	}
	return ValidatePasscode(p.Passcode)
}
