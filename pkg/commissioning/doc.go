// Package commissioning produces the onboarding material of a commissionable
// node: the setup payload with its QR code and manual pairing code, the
// SPAKE2+ verifier derived from the setup passcode, and the commissioning
// window that bounds how long the node stays commissionable.
package commissioning
