package button

// Sim is a button driven from code, used by the host simulation and
// tests.
type Sim struct {
	*Detector
}

// NewSim returns a simulated button with default timings and no
// debouncing.
func NewSim() *Sim {
	cfg := DefaultDetectorConfig()
	cfg.Debounce = 0
	return NewSimWithConfig(cfg)
}

// NewSimWithConfig returns a simulated button with the given timings.
func NewSimWithConfig(cfg DetectorConfig) *Sim {
	return &Sim{Detector: NewDetector(cfg)}
}

// Press pushes the button down.
func (s *Sim) Press() { s.Feed(true) }

// Release lets the button go.
func (s *Sim) Release() { s.Feed(false) }

// Click presses and releases the button.
func (s *Sim) Click() {
	s.Press()
	s.Release()
}
