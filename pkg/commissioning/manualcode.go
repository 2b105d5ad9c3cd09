package commissioning

import (
	"fmt"
	"strconv"
	"strings"
)

// Manual pairing code lengths, check digit included.
const (
	ManualCodeLength     = 11
	LongManualCodeLength = 21
)

// EncodeManualCode returns the manual pairing code for p. Payloads with the
// custom commissioning flow get the 21-digit form carrying the vendor and
// product ids.
func EncodeManualCode(p *SetupPayload) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}
	long := p.Flow == FlowCustom
	disc := uint32(p.ShortDiscriminator())
	chunk1 := disc >> 2
	if long {
		chunk1 |= 1 << 2
	}
	chunk2 := p.Passcode&0x3FFF | (disc&0x3)<<14
	chunk3 := p.Passcode >> 14 & 0x1FFF

	code := fmt.Sprintf("%d%05d%04d", chunk1, chunk2, chunk3)
	if long {
		code += fmt.Sprintf("%05d%05d", p.VendorID, p.ProductID)
	}
	check, err := verhoeffCompute(code)
	if err != nil {
		return "", err
	}
	return code + string(check), nil
}

// FormatManualCode groups an 11-digit code as 4-3-4 digits.
func FormatManualCode(code string) string {
	if len(code) != ManualCodeLength {
		return code
	}
	return code[:4] + "-" + code[4:7] + "-" + code[7:]
}

// ParseManualCode decodes a manual pairing code. Dashes and spaces are
// ignored. Only the upper 4 bits of the discriminator are recovered.
func ParseManualCode(s string) (*SetupPayload, error) {
	code := strings.Map(func(r rune) rune {
		if r == '-' || r == ' ' {
			return -1
		}
		return r
	}, s)
	if len(code) != ManualCodeLength && len(code) != LongManualCodeLength {
		return nil, fmt.Errorf("%w: manual code length %d", ErrInvalidPayload, len(code))
	}
	if !verhoeffValidate(code) {
		return nil, fmt.Errorf("%w: bad check digit", ErrInvalidPayload)
	}
	digits := func(from, to int) uint32 {
		v, _ := strconv.ParseUint(code[from:to], 10, 32)
		return uint32(v)
	}
	chunk1, chunk2, chunk3 := digits(0, 1), digits(1, 6), digits(6, 10)
	if chunk1 > 7 || chunk2 > 0xFFFF || chunk3 > 0x1FFF {
		return nil, fmt.Errorf("%w: chunk out of range", ErrInvalidPayload)
	}
	long := chunk1&(1<<2) != 0
	if long != (len(code) == LongManualCodeLength) {
		return nil, fmt.Errorf("%w: vendor/product flag does not match length", ErrInvalidPayload)
	}
	p := &SetupPayload{
		Discriminator: uint16((chunk1&0x3)<<2|chunk2>>14) << 8,
		Passcode:      chunk2&0x3FFF | chunk3<<14,
	}
	if long {
		vid, pid := digits(10, 15), digits(15, 20)
		if vid > 0xFFFF || pid > 0xFFFF {
			return nil, fmt.Errorf("%w: vendor or product id out of range", ErrInvalidPayload)
		}
		p.VendorID, p.ProductID = uint16(vid), uint16(pid)
		p.Flow = FlowCustom
	}
	if err := ValidatePasscode(p.Passcode); err != nil {
		return nil, err
	}
	return p, nil
}
