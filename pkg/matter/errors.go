package matter

import (
	"errors"

	"github.com/espressif/esp-matter-sub221/pkg/commissioning"
)

// Package-level errors.
var (
	// ErrNotInitialized is returned when an operation requires an initialized node.
	ErrNotInitialized = errors.New("matter: node not initialized")

	// ErrAlreadyStarted is returned when Start() is called on a running node.
	ErrAlreadyStarted = errors.New("matter: node already started")

	// ErrNotStarted is returned when an operation requires a running node.
	ErrNotStarted = errors.New("matter: node not started")

	// ErrAlreadyStopped is returned when Stop() is called on a stopped node.
	ErrAlreadyStopped = errors.New("matter: node already stopped")

	// ErrInvalidConfig is returned when NodeConfig validation fails.
	ErrInvalidConfig = errors.New("matter: invalid configuration")

	// ErrStorageRequired is returned when Storage is nil.
	ErrStorageRequired = errors.New("matter: storage is required")

	ErrInvalidVendorID      = errors.New("matter: invalid vendor ID")
	ErrInvalidProductID     = errors.New("matter: invalid product ID")
	ErrInvalidDiscriminator = errors.New("matter: discriminator must be 0-4095")
	ErrInvalidPasscode      = errors.New("matter: invalid passcode")

	// ErrCommissioningWindowOpen is returned when a commissioning window is already open.
	ErrCommissioningWindowOpen = errors.New("matter: commissioning window already open")

	// ErrCommissioningWindowClosed is returned when no commissioning window is open.
	ErrCommissioningWindowClosed = errors.New("matter: no commissioning window open")

	// ErrFabricExists is returned when completing commissioning for a
	// fabric index already in use.
	ErrFabricExists = errors.New("matter: fabric already commissioned")

	// ErrFabricNotFound is returned when a fabric is not found.
	ErrFabricNotFound = errors.New("matter: fabric not found")

	// ErrInvalidFabricIndex is returned for fabric index 0 or 255.
	ErrInvalidFabricIndex = errors.New("matter: invalid fabric index")
)

// IsValidPasscode reports whether passcode may be used as a setup
// passcode: 1-99999998, excluding trivially guessable values.
func IsValidPasscode(passcode uint32) bool {
	return commissioning.ValidatePasscode(passcode) == nil
}
