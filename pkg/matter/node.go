package matter

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/pion/logging"

	"github.com/espressif/esp-matter-sub221/pkg/clusters/basic"
	"github.com/espressif/esp-matter-sub221/pkg/clusters/binding"
	"github.com/espressif/esp-matter-sub221/pkg/clusters/otarequestor"
	"github.com/espressif/esp-matter-sub221/pkg/commissioning"
	"github.com/espressif/esp-matter-sub221/pkg/datamodel"
	"github.com/espressif/esp-matter-sub221/pkg/discovery"
	"github.com/espressif/esp-matter-sub221/pkg/endpoints"
	"github.com/espressif/esp-matter-sub221/pkg/transport"
)

// RootEndpointID is the endpoint of the root node device type.
const RootEndpointID datamodel.EndpointID = 0

// Node is a Matter device: the data model plus the platform services the
// stack needs around it. It owns the operational UDP port, the
// commissionable DNS-SD advertisement, the commissioning window and the
// onboarding codes.
type Node struct {
	config NodeConfig
	log    logging.LeveledLogger

	dm       *datamodel.Node
	payload  commissioning.SetupPayload
	pbkdf    commissioning.PBKDFParams
	verifier *commissioning.Verifier
	window   *commissioning.Window

	mu         sync.RWMutex
	state      NodeState
	fabrics    *fabricTable
	udp        *transport.UDP
	advertiser *discovery.Advertiser
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

// NewNode creates a Node in the Initialized state. The root endpoint is
// created on the data model unless it already exists.
func NewNode(config NodeConfig) (*Node, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config.applyDefaults()

	n := &Node{
		config: config,
		log:    config.LoggerFactory.NewLogger("matter"),
	}

	var err error
	if n.fabrics, err = loadFabricTable(config.Storage); err != nil {
		return nil, err
	}

	// Initialize commissionable data
	if err := n.initCommissionableData(); err != nil {
		return nil, err
	}

	n.window = &commissioning.Window{OnClose: n.onWindowClosed}

	if err := n.initDataModel(); err != nil {
		return nil, err
	}

	n.state = NodeStateInitialized
	return n, nil
}

// initCommissionableData derives the SPAKE2+ verifier and the setup payload.
func (n *Node) initCommissionableData() error {
	pbkdf, err := loadPBKDFParams(n.config.Storage)
	if err != nil {
		return err
	}
	verifier, err := commissioning.GenerateVerifier(n.config.Passcode, pbkdf.Salt, pbkdf.Iterations)
	if err != nil {
		return fmt.Errorf("matter: generate verifier: %w", err)
	}

	payload := commissioning.SetupPayload{
		VendorID:      n.config.VendorID,
		ProductID:     n.config.ProductID,
		Flow:          n.config.CommissioningFlow,
		Rendezvous:    n.config.DiscoveryCapabilities,
		Discriminator: n.config.Discriminator,
		Passcode:      n.config.Passcode,
	}
	if err := payload.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	n.pbkdf = pbkdf
	n.verifier = verifier
	n.payload = payload
	return nil
}

func (n *Node) initDataModel() error {
	dm := n.config.DataModel
	if dm == nil {
		dm = datamodel.NewNode(datamodel.Config{
			Store:                   n.config.Storage,
			LoggerFactory:           n.config.LoggerFactory,
			MaxDynamicEndpointCount: n.config.MaxDynamicEndpoints,
			Reporter:                n.config.Reporter,
		})
	} else if n.config.Reporter != nil {
		dm.SetReporter(n.config.Reporter)
	}
	n.dm = dm

	root := dm.Endpoint(RootEndpointID)
	if root == nil {
		var err error
		root, err = endpoints.CreateRootNode(dm, n.rootNodeConfig(), nil)
		if err != nil {
			return fmt.Errorf("matter: create root endpoint: %w", err)
		}
	}
	if n.config.EnableOTARequestor && root.Cluster(otarequestor.ClusterID) == nil {
		if err := endpoints.AddOTARequestor(root, nil); err != nil {
			return fmt.Errorf("matter: add OTA requestor: %w", err)
		}
	}
	return nil
}

func (n *Node) rootNodeConfig() *endpoints.RootNodeConfig {
	cfg := endpoints.DefaultRootNodeConfig()
	cfg.Basic.DeviceInfo = basic.DeviceInfo{
		VendorName:            n.config.VendorName,
		VendorID:              n.config.VendorID,
		ProductName:           n.config.ProductName,
		ProductID:             n.config.ProductID,
		HardwareVersion:       n.config.HardwareVersion,
		HardwareVersionString: n.config.HardwareVersionString,
		SoftwareVersion:       n.config.SoftwareVersion,
		SoftwareVersionString: n.config.SoftwareVersionString,
		SerialNumber:          n.config.SerialNumber,
	}
	cfg.GeneralCommissioning.Window = n
	return cfg
}

// Start enables the data model, binds the operational port and, when no
// fabric is commissioned, opens a commissioning window.
func (n *Node) Start(ctx context.Context) error {
	n.mu.Lock()

	if !n.state.CanStart() {
		state := n.state
		n.mu.Unlock()
		switch {
		case state.IsRunning():
			return ErrAlreadyStarted
		case state == NodeStateStopping || state == NodeStateStopped:
			return ErrAlreadyStopped
		}
		return ErrNotInitialized
	}

	n.state = NodeStateStarting

	if err := n.startLocked(ctx); err != nil {
		n.state = NodeStateInitialized
		n.mu.Unlock()
		return err
	}

	// Update state based on commissioning status
	commissioned := n.fabrics.count() > 0
	if commissioned {
		n.state = NodeStateCommissioned
	} else {
		n.state = NodeStateUncommissioned
	}
	n.log.Infof("node started, state=%s", n.state)
	n.mu.Unlock()

	n.logOnboardingCodes()

	// Auto-open commissioning window for uncommissioned devices
	if !commissioned {
		if err := n.OpenCommissioningWindow(n.config.CommissioningTimeout); err != nil {
			n.log.Errorf("Failed to open commissioning window: %v", err)
		}
	}

	n.emit(DeviceEvent{Type: EventStarted})
	return nil
}

func (n *Node) startLocked(ctx context.Context) error {
	dm := n.dm
	if err := dm.EnableAll(); err != nil {
		return fmt.Errorf("matter: enable endpoints: %w", err)
	}
	dm.PluginInitCallbackCommon()
	dm.DelegateInitCallbackCommon()
	dm.AddBoundsCallbackCommon()
	dm.SetStarted(true)
	if err := dm.LoadMinUnusedEndpointID(); err != nil {
		n.log.Warnf("Failed to load min unused endpoint id: %v", err)
	}

	if err := n.startTransport(); err != nil {
		dm.SetStarted(false)
		return err
	}

	n.advertiser = discovery.NewAdvertiser(discovery.AdvertiserConfig{
		Port:          n.operationalPort(),
		Net:           n.config.Network,
		ServerFactory: n.config.ServerFactory,
		LoggerFactory: n.config.LoggerFactory,
	})

	if root := dm.Endpoint(RootEndpointID); root != nil && n.config.EventSink != nil {
		if c := root.Cluster(basic.ClusterID); c != nil {
			if err := basic.EmitStartUp(n.config.EventSink, c, n.config.SoftwareVersion); err != nil {
				n.log.Warnf("Failed to emit StartUp event: %v", err)
			}
		}
	}

	// Create context for background operations
	runCtx, cancel := context.WithCancel(ctx)
	n.cancel = cancel
	if r := n.config.OTARequestor; r != nil {
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			if err := r.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				n.log.Errorf("OTA requestor stopped: %v", err)
			}
		}()
	}
	return nil
}

// startTransport binds the operational UDP port.
func (n *Node) startTransport() error {
	handler := n.config.PacketHandler
	if handler == nil {
		handler = func(p transport.Packet) {
			n.log.Tracef("Dropping %d bytes from %s: no message layer", len(p.Data), p.Addr)
		}
	}
	udp, err := transport.NewUDP(transport.UDPConfig{
		Net:           n.config.Network,
		ListenAddr:    n.config.ListenAddress,
		Handler:       handler,
		LoggerFactory: n.config.LoggerFactory,
	})
	if err != nil {
		return err
	}
	if err := udp.Start(); err != nil {
		return fmt.Errorf("matter: bind %s: %w", n.config.ListenAddress, err)
	}
	n.udp = udp
	return nil
}

// operationalPort returns the bound port, which differs from the
// configured one when listening on port 0.
func (n *Node) operationalPort() int {
	if n.udp != nil {
		if addr, ok := n.udp.LocalAddr().(*net.UDPAddr); ok && addr.Port != 0 {
			return addr.Port
		}
	}
	return n.config.Port
}

// Stop closes the commissioning window, withdraws the advertisement and
// releases the operational port.
func (n *Node) Stop() error {
	n.mu.Lock()
	if !n.state.CanStop() {
		state := n.state
		n.mu.Unlock()
		if state == NodeStateStopped || state == NodeStateStopping {
			return ErrAlreadyStopped
		}
		return ErrNotStarted
	}
	n.state = NodeStateStopping
	n.mu.Unlock()

	// The close callback takes n.mu.
	n.window.Close(commissioning.ClosedByRequest)

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.cancel != nil {
		n.cancel()
	}
	n.wg.Wait()

	var errs []error
	if n.advertiser != nil {
		if err := n.advertiser.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if n.udp != nil {
		if err := n.udp.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	n.dm.FlushDeferred()
	n.dm.SetStarted(false)

	n.state = NodeStateStopped
	n.log.Info("node stopped")
	return errors.Join(errs...)
}

// State returns the current node state.
func (n *Node) State() NodeState {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.state
}

// IsStarted reports whether the node is running.
func (n *Node) IsStarted() bool {
	return n.State().IsRunning()
}

// DataModel returns the node's data model.
func (n *Node) DataModel() *datamodel.Node {
	return n.dm
}

// LoggerFactory returns the node's logger factory.
func (n *Node) LoggerFactory() logging.LoggerFactory {
	return n.config.LoggerFactory
}

// LocalAddr returns the bound operational address, or nil before Start.
func (n *Node) LocalAddr() net.Addr {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.udp == nil {
		return nil
	}
	return n.udp.LocalAddr()
}

// Verifier returns the SPAKE2+ verifier and its PBKDF parameters, as
// served to the stack's PASE implementation.
func (n *Node) Verifier() (*commissioning.Verifier, commissioning.PBKDFParams) {
	return n.verifier, n.pbkdf
}

// OpenCommissioningWindow opens a basic commissioning window and starts
// commissionable advertising. A zero timeout uses
// commissioning.DefaultWindowTimeout.
func (n *Node) OpenCommissioningWindow(timeout time.Duration) error {
	if !n.IsStarted() {
		return ErrNotStarted
	}
	if timeout == 0 {
		timeout = commissioning.DefaultWindowTimeout
	}
	if err := n.window.Open(timeout); err != nil {
		if errors.Is(err, commissioning.ErrWindowOpen) {
			return ErrCommissioningWindowOpen
		}
		return err
	}

	n.mu.Lock()
	err := n.startAdvertisingLocked()
	if err == nil {
		n.state = NodeStateCommissioningOpen
	}
	n.mu.Unlock()

	if err != nil {
		n.window.Close(commissioning.ClosedByRequest)
		return err
	}
	n.log.Infof("Commissioning window opened for %s", timeout)
	n.emit(DeviceEvent{Type: EventCommissioningWindowOpened, Timeout: timeout})
	return nil
}

// CloseCommissioningWindow closes an open commissioning window.
func (n *Node) CloseCommissioningWindow() error {
	if !n.window.Close(commissioning.ClosedByRequest) {
		return ErrCommissioningWindowClosed
	}
	return nil
}

// IsCommissioningWindowOpen reports whether the node is commissionable.
func (n *Node) IsCommissioningWindowOpen() bool {
	return n.window.IsOpen()
}

func (n *Node) startAdvertisingLocked() error {
	if n.advertiser == nil || !n.state.IsRunning() {
		return ErrNotStarted
	}
	// The window may have expired before the lock was taken.
	if !n.window.IsOpen() {
		return ErrCommissioningWindowClosed
	}
	return n.advertiser.StartCommissionable(n.commissionableTXT())
}

func (n *Node) commissionableTXT() discovery.CommissionableTXT {
	return discovery.CommissionableTXT{
		Discriminator:     n.config.Discriminator,
		CommissioningMode: discovery.CommissioningModeBasic,
		VendorID:          n.config.VendorID,
		ProductID:         n.config.ProductID,
		DeviceType:        n.deviceType(),
		DeviceName:        n.config.DeviceName,
	}
}

// deviceType returns the configured DT value or the first device type of
// the first application endpoint.
func (n *Node) deviceType() uint32 {
	if n.config.DeviceType != 0 {
		return n.config.DeviceType
	}
	for _, ep := range n.dm.Endpoints() {
		if ep.ID() == RootEndpointID {
			continue
		}
		if types := ep.DeviceTypes(); len(types) > 0 {
			return uint32(types[0].ID)
		}
	}
	return 0
}

func (n *Node) onWindowClosed(reason commissioning.CloseReason) {
	n.mu.Lock()
	if n.advertiser != nil && n.advertiser.IsAdvertising() {
		if err := n.advertiser.StopCommissionable(); err != nil {
			n.log.Warnf("Failed to stop commissionable advertisement: %v", err)
		}
	}
	if n.state == NodeStateCommissioningOpen {
		if n.fabrics.count() > 0 {
			n.state = NodeStateCommissioned
		} else {
			n.state = NodeStateUncommissioned
		}
	}
	n.mu.Unlock()

	n.log.Infof("Commissioning window closed: %s", reason)
	n.emit(DeviceEvent{Type: EventCommissioningWindowClosed, CloseReason: reason})
}

// CommissioningComplete records fabricIndex as commissioned and closes the
// commissioning window. The stack calls it once the commissioner sent
// CommissioningComplete.
func (n *Node) CommissioningComplete(fabricIndex datamodel.FabricIndex) error {
	n.mu.Lock()
	if !n.state.IsRunning() {
		n.mu.Unlock()
		return ErrNotStarted
	}
	if err := n.fabrics.add(fabricIndex); err != nil {
		n.mu.Unlock()
		return err
	}
	if n.state == NodeStateUncommissioned {
		n.state = NodeStateCommissioned
	}
	n.mu.Unlock()

	n.window.Close(commissioning.ClosedByCommissioning)
	n.log.Infof("Commissioning complete, fabric %d", fabricIndex)
	n.emit(DeviceEvent{Type: EventCommissioningComplete, FabricIndex: fabricIndex})
	return nil
}

// RemoveFabric forgets fabricIndex and drops its bindings. Removing the
// last fabric reopens the commissioning window.
func (n *Node) RemoveFabric(fabricIndex datamodel.FabricIndex) error {
	n.mu.Lock()
	if err := n.fabrics.remove(fabricIndex); err != nil {
		n.mu.Unlock()
		return err
	}
	last := n.fabrics.count() == 0
	if last && n.state == NodeStateCommissioned {
		n.state = NodeStateUncommissioned
	}
	running := n.state.IsRunning()
	n.mu.Unlock()

	for _, ep := range n.dm.Endpoints() {
		if c := ep.Cluster(binding.ClusterID); c != nil {
			if err := binding.RemoveFabric(c, fabricIndex); err != nil {
				n.log.Warnf("Failed to remove bindings of fabric %d on endpoint %d: %v", fabricIndex, ep.ID(), err)
			}
		}
	}

	n.log.Infof("Fabric %d removed", fabricIndex)
	n.emit(DeviceEvent{Type: EventFabricRemoved, FabricIndex: fabricIndex})

	if last && running {
		if err := n.OpenCommissioningWindow(n.config.CommissioningTimeout); err != nil && !errors.Is(err, ErrCommissioningWindowOpen) {
			return err
		}
	}
	return nil
}

// IsCommissioned returns true if the node is commissioned to at least one fabric.
func (n *Node) IsCommissioned() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.fabrics.count() > 0
}

// Fabrics returns the commissioned fabric indexes in ascending order.
func (n *Node) Fabrics() []datamodel.FabricIndex {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.fabrics.list()
}

// FactoryReset stops the node, erases all persisted state and invokes the
// restart hook. The node cannot be used afterwards.
func (n *Node) FactoryReset() error {
	if err := n.Stop(); err != nil && !errors.Is(err, ErrNotStarted) && !errors.Is(err, ErrAlreadyStopped) {
		n.log.Warnf("Stop before factory reset: %v", err)
	}

	n.mu.Lock()
	err := n.config.Storage.EraseAll()
	if err == nil {
		n.fabrics.indexes = nil
	}
	n.state = NodeStateStopped
	n.mu.Unlock()
	if err != nil {
		return fmt.Errorf("matter: factory reset: %w", err)
	}

	n.log.Info("Factory reset done")
	n.emit(DeviceEvent{Type: EventFactoryReset})
	if n.config.Restart != nil {
		n.config.Restart()
	}
	return nil
}
