// Package transport owns the node's UDP sockets. Sockets are created
// through a pion transport.Net so that tests and simulations can swap the
// host network for a virtual one.
package transport

import (
	"fmt"
	"net"

	"github.com/pion/transport/v3"
	"github.com/pion/transport/v3/stdnet"
)

// NewNet returns the host network.
func NewNet() (transport.Net, error) {
	n, err := stdnet.NewNet()
	if err != nil {
		return nil, fmt.Errorf("transport: host network: %w", err)
	}
	return n, nil
}

// ListenPacket opens a UDP socket on n, or on the host network when n is
// nil.
func ListenPacket(n transport.Net, addr string) (net.PacketConn, error) {
	if n == nil {
		var err error
		if n, err = NewNet(); err != nil {
			return nil, err
		}
	}
	return n.ListenPacket("udp", addr)
}
