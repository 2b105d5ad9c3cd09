package matter

// NodeState represents the lifecycle state of a Node.
type NodeState int

const (
	// NodeStateUninitialized is the zero value, before NewNode completes.
	NodeStateUninitialized NodeState = iota

	// NodeStateInitialized means the data model is built but the node has
	// not been started.
	NodeStateInitialized

	// NodeStateStarting means Start() is enabling endpoints and binding
	// the operational port.
	NodeStateStarting

	// NodeStateUncommissioned means the node runs without any fabric and
	// no commissioning window is open.
	NodeStateUncommissioned

	// NodeStateCommissioningOpen means a commissioning window is open and
	// the node advertises _matterc._udp.
	NodeStateCommissioningOpen

	// NodeStateCommissioned means at least one fabric is commissioned.
	NodeStateCommissioned

	// NodeStateStopping means Stop() is tearing the node down.
	NodeStateStopping

	// NodeStateStopped means the node was stopped. A stopped node cannot
	// be restarted; create a new one.
	NodeStateStopped
)

// String returns a human-readable name for the state.
func (s NodeState) String() string {
	switch s {
	case NodeStateUninitialized:
		return "Uninitialized"
	case NodeStateInitialized:
		return "Initialized"
	case NodeStateStarting:
		return "Starting"
	case NodeStateUncommissioned:
		return "Uncommissioned"
	case NodeStateCommissioningOpen:
		return "CommissioningOpen"
	case NodeStateCommissioned:
		return "Commissioned"
	case NodeStateStopping:
		return "Stopping"
	case NodeStateStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// IsRunning returns true once Start() has completed and until Stop().
func (s NodeState) IsRunning() bool {
	switch s {
	case NodeStateUncommissioned, NodeStateCommissioningOpen, NodeStateCommissioned:
		return true
	default:
		return false
	}
}

// CanStart returns true if Start() can be called in this state.
func (s NodeState) CanStart() bool {
	return s == NodeStateInitialized
}

// CanStop returns true if Stop() can be called in this state.
func (s NodeState) CanStop() bool {
	return s.IsRunning()
}
