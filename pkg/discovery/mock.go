package discovery

import (
	"errors"
	"net"
	"sync"
)

// MockRegistration records one Register call of a MockServerFactory.
type MockRegistration struct {
	Instance string
	Service  string
	Domain   string
	Port     int
	TXT      []string
	Ifaces   []net.Interface
}

// MockServerFactory is an MDNSServerFactory that records registrations
// without touching the network.
type MockServerFactory struct {
	mu            sync.Mutex
	registrations []MockRegistration
	active        int
	err           error
}

// NewMockServerFactory returns an empty mock factory.
func NewMockServerFactory() *MockServerFactory {
	return &MockServerFactory{}
}

// FailWith makes later Register calls return err.
func (m *MockServerFactory) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Register implements MDNSServerFactory.
func (m *MockServerFactory) Register(instance, service, domain string, port int, txt []string, ifaces []net.Interface) (MDNSServer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	if instance == "" || service == "" {
		return nil, errors.New("mock mdns: missing instance or service")
	}
	m.registrations = append(m.registrations, MockRegistration{
		Instance: instance,
		Service:  service,
		Domain:   domain,
		Port:     port,
		TXT:      append([]string(nil), txt...),
		Ifaces:   ifaces,
	})
	m.active++
	return &mockServer{factory: m}, nil
}

// Registrations returns all Register calls so far.
func (m *MockServerFactory) Registrations() []MockRegistration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockRegistration(nil), m.registrations...)
}

// Active returns the number of registered services not yet shut down.
func (m *MockServerFactory) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

type mockServer struct {
	factory *MockServerFactory
	once    sync.Once
}

func (s *mockServer) Shutdown() {
	s.once.Do(func() {
		s.factory.mu.Lock()
		s.factory.active--
		s.factory.mu.Unlock()
	})
}
