package discovery

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/grandcat/zeroconf"
	"github.com/pion/logging"
	"github.com/pion/transport/v3"
)

// MDNSServer is a registered DNS-SD service.
type MDNSServer interface {
	Shutdown()
}

// MDNSServerFactory registers DNS-SD services. Tests inject a mock.
type MDNSServerFactory interface {
	Register(instance, service, domain string, port int, txt []string, ifaces []net.Interface) (MDNSServer, error)
}

type zeroconfServerFactory struct{}

func (zeroconfServerFactory) Register(instance, service, domain string, port int, txt []string, ifaces []net.Interface) (MDNSServer, error) {
	return zeroconf.Register(instance, service, domain, port, txt, ifaces)
}

// AdvertiserConfig configures an Advertiser.
type AdvertiserConfig struct {
	// Port is the advertised UDP port. Defaults to DefaultPort.
	Port int

	// Interfaces restricts advertising to the given interfaces. When nil
	// and Net is set, the multicast capable interfaces of Net are used.
	// When both are nil all interfaces are used.
	Interfaces []net.Interface
	Net        transport.Net

	// ServerFactory defaults to zeroconf.
	ServerFactory MDNSServerFactory

	LoggerFactory logging.LoggerFactory
}

// Advertiser publishes the commissionable service.
type Advertiser struct {
	config  AdvertiserConfig
	factory MDNSServerFactory
	log     logging.LeveledLogger

	mu       sync.Mutex
	server   MDNSServer
	instance string
	closed   bool
}

// NewAdvertiser creates an Advertiser.
func NewAdvertiser(config AdvertiserConfig) *Advertiser {
	if config.Port <= 0 || config.Port > 65535 {
		config.Port = DefaultPort
	}
	if config.ServerFactory == nil {
		config.ServerFactory = zeroconfServerFactory{}
	}
	if config.LoggerFactory == nil {
		config.LoggerFactory = logging.NewDefaultLoggerFactory()
	}
	return &Advertiser{
		config:  config,
		factory: config.ServerFactory,
		log:     config.LoggerFactory.NewLogger("discovery"),
	}
}

// StartCommissionable registers _matterc._udp with a fresh random
// instance name.
func (a *Advertiser) StartCommissionable(txt CommissionableTXT) error {
	if err := txt.Validate(); err != nil {
		return fmt.Errorf("discovery: commissionable txt: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrClosed
	}
	if a.server != nil {
		return ErrAlreadyStarted
	}

	instance, err := randomInstanceName()
	if err != nil {
		return err
	}
	ifaces, err := a.interfaces()
	if err != nil {
		return err
	}
	subtypes := txt.Subtypes()
	// zeroconf takes subtypes as a comma separated suffix of the service.
	service := ServiceCommissionable + "," + strings.Join(subtypes, ",")
	records := txt.Encode()
	a.log.Debugf("Registering %s instance=%s port=%d subtypes=%v", ServiceCommissionable, instance, a.config.Port, subtypes)
	a.log.Tracef("TXT records: %v", records)

	server, err := a.factory.Register(instance, service, DefaultDomain, a.config.Port, records, ifaces)
	if err != nil {
		return fmt.Errorf("discovery: register %s: %w", ServiceCommissionable, err)
	}
	a.server = server
	a.instance = instance
	a.log.Infof("Advertising commissionable node %s (discriminator %d, mode %s)", instance, txt.Discriminator, txt.CommissioningMode)
	return nil
}

// StopCommissionable withdraws the commissionable service.
func (a *Advertiser) StopCommissionable() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrClosed
	}
	if a.server == nil {
		return ErrNotStarted
	}
	a.server.Shutdown()
	a.server = nil
	a.instance = ""
	a.log.Info("Stopped commissionable advertisement")
	return nil
}

// IsAdvertising reports whether the commissionable service is registered.
func (a *Advertiser) IsAdvertising() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.server != nil
}

// InstanceName returns the current instance name, or "" when not
// advertising.
func (a *Advertiser) InstanceName() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.instance
}

// Close withdraws any service. Further calls fail with ErrClosed.
func (a *Advertiser) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrClosed
	}
	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}
	a.closed = true
	return nil
}

func (a *Advertiser) interfaces() ([]net.Interface, error) {
	if a.config.Interfaces != nil || a.config.Net == nil {
		return a.config.Interfaces, nil
	}
	all, err := a.config.Net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("discovery: list interfaces: %w", err)
	}
	var ifaces []net.Interface
	for _, ifc := range all {
		if ifc.Flags&net.FlagUp == 0 || ifc.Flags&net.FlagMulticast == 0 || ifc.Flags&net.FlagLoopback != 0 {
			continue
		}
		ifaces = append(ifaces, ifc.Interface)
	}
	return ifaces, nil
}

// randomInstanceName returns 16 uppercase hex digits.
func randomInstanceName() (string, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	return fmt.Sprintf("%016X", binary.BigEndian.Uint64(buf[:])), nil
}
