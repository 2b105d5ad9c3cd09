package transport

import (
	"net"
	"sync"
	"time"

	"github.com/pion/logging"
	"github.com/pion/transport/v3"
)

// DefaultPort is the Matter UDP port.
const DefaultPort = 5540

// MaxUDPMessageSize is the largest datagram the transport sends or reads,
// the IPv6 minimum MTU.
const MaxUDPMessageSize = 1280

// Packet is a received datagram.
type Packet struct {
	Data []byte
	Addr net.Addr
}

// PacketHandler consumes received datagrams. It runs on the read loop.
type PacketHandler func(Packet)

// UDP runs a read loop on a packet socket and hands every datagram to
// the configured handler.
type UDP struct {
	conn    net.PacketConn
	handler PacketHandler
	closeCh chan struct{}
	wg      sync.WaitGroup
	log     logging.LeveledLogger

	mu      sync.RWMutex
	started bool
	closed  bool
}

// UDPConfig configures the UDP transport.
type UDPConfig struct {
	// Conn is an optional pre-existing PacketConn to use.
	// If nil, a new socket is opened on Net at ListenAddr.
	Conn net.PacketConn

	// Net opens the socket when Conn is nil. Defaults to the host network.
	Net transport.Net

	// ListenAddr is the address to listen on (e.g., ":5540").
	// Ignored if Conn is provided.
	ListenAddr string

	// Handler is called for each received packet. Required.
	Handler PacketHandler

	LoggerFactory logging.LoggerFactory
}

// NewUDP creates a new UDP transport with the given configuration.
func NewUDP(config UDPConfig) (*UDP, error) {
	if config.Handler == nil {
		return nil, ErrNoHandler
	}
	if config.LoggerFactory == nil {
		config.LoggerFactory = logging.NewDefaultLoggerFactory()
	}

	u := &UDP{
		conn:    config.Conn,
		handler: config.Handler,
		closeCh: make(chan struct{}),
		log:     config.LoggerFactory.NewLogger("transport"),
	}

	if u.conn == nil {
		addr := config.ListenAddr
		if addr == "" {
			addr = ":0"
		}
		conn, err := ListenPacket(config.Net, addr)
		if err != nil {
			return nil, err
		}
		u.conn = conn
	}

	return u, nil
}

// Start begins the read loop.
func (u *UDP) Start() error {
	u.mu.Lock()
	if u.closed {
		u.mu.Unlock()
		return ErrClosed
	}
	if u.started {
		u.mu.Unlock()
		return ErrAlreadyStarted
	}
	u.started = true
	u.mu.Unlock()

	u.log.Infof("starting UDP transport on %s", u.conn.LocalAddr())

	u.wg.Add(1)
	go u.readLoop()

	return nil
}

// Stop closes the socket and waits for the read loop to exit.
func (u *UDP) Stop() error {
	u.mu.Lock()
	if u.closed {
		u.mu.Unlock()
		return ErrClosed
	}
	u.closed = true
	u.mu.Unlock()

	u.log.Info("stopping UDP transport")

	close(u.closeCh)

	// Unblock a pending read.
	_ = u.conn.SetReadDeadline(time.Now())
	err := u.conn.Close()
	u.wg.Wait()

	return err
}

// Send writes data to addr.
func (u *UDP) Send(data []byte, addr net.Addr) error {
	u.mu.RLock()
	closed := u.closed
	u.mu.RUnlock()
	if closed {
		return ErrClosed
	}
	if addr == nil {
		return ErrInvalidAddress
	}
	if len(data) > MaxUDPMessageSize {
		return ErrMessageTooLarge
	}

	u.log.Debugf("sending %d bytes to %v", len(data), addr)
	if _, err := u.conn.WriteTo(data, addr); err != nil {
		u.log.Warnf("send failed: %v", err)
		return err
	}
	return nil
}

// LocalAddr returns the local address the transport is listening on.
func (u *UDP) LocalAddr() net.Addr {
	return u.conn.LocalAddr()
}

func (u *UDP) readLoop() {
	defer u.wg.Done()

	buf := make([]byte, MaxUDPMessageSize)

	for {
		n, addr, err := u.conn.ReadFrom(buf)
		if err != nil {
			select {
			case <-u.closeCh:
				return
			default:
				u.log.Warnf("UDP read error: %v", err)
				continue
			}
		}
		if n == 0 {
			continue
		}

		data := make([]byte, n)
		copy(data, buf[:n])
		u.log.Tracef("received %d bytes from %v", n, addr)

		u.handler(Packet{Data: data, Addr: addr})
	}
}
