//go:build !rpi

package device

const defaultProfile = HostSim
