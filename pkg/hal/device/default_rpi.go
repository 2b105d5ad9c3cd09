//go:build rpi

package device

const defaultProfile = RPiGPIO
