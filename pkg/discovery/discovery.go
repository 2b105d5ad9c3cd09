// Package discovery advertises a commissionable node over DNS-SD.
//
// A node that has not joined any fabric, or that has an open commissioning
// window, publishes a _matterc._udp service. Commissioners filter on its
// subtypes (_L<discriminator>, _S<short discriminator>, _V<vendor>, _CM)
// and read the node's details from the TXT record.
package discovery

import "errors"

// DNS-SD names.
const (
	ServiceCommissionable = "_matterc._udp"
	DefaultDomain         = "local."
)

// DefaultPort is the Matter UDP port.
const DefaultPort = 5540

// CommissioningMode is the CM TXT value.
type CommissioningMode int

const (
	// CommissioningModeDisabled advertises for extended discovery only.
	CommissioningModeDisabled CommissioningMode = 0

	// CommissioningModeBasic is the window opened on first boot or by the
	// device itself.
	CommissioningModeBasic CommissioningMode = 1

	// CommissioningModeEnhanced is a window opened by an administrator.
	CommissioningModeEnhanced CommissioningMode = 2
)

func (c CommissioningMode) String() string {
	switch c {
	case CommissioningModeDisabled:
		return "Disabled"
	case CommissioningModeBasic:
		return "Basic"
	case CommissioningModeEnhanced:
		return "Enhanced"
	default:
		return "Unknown"
	}
}

// Discovery errors.
var (
	ErrClosed               = errors.New("discovery: closed")
	ErrAlreadyStarted       = errors.New("discovery: already started")
	ErrNotStarted           = errors.New("discovery: not started")
	ErrInvalidDiscriminator = errors.New("discovery: invalid discriminator (must be 0-4095)")
	ErrInvalidDeviceName    = errors.New("discovery: invalid device name (max 32 characters)")
	ErrInvalidTXTRecord     = errors.New("discovery: invalid TXT record format")
)
