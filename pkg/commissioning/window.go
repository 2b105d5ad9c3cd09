package commissioning

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Commissioning window limits.
const (
	DefaultWindowTimeout = 15 * time.Minute
	MaxWindowTimeout     = 15 * time.Minute
)

// Window errors.
var (
	ErrWindowOpen    = errors.New("commissioning: window already open")
	ErrWindowTimeout = errors.New("commissioning: invalid window timeout")
)

// CloseReason tells why a commissioning window closed.
type CloseReason int

const (
	ClosedByTimeout CloseReason = iota
	ClosedByCommissioning
	ClosedByRequest
)

func (r CloseReason) String() string {
	switch r {
	case ClosedByTimeout:
		return "timeout"
	case ClosedByCommissioning:
		return "commissioned"
	case ClosedByRequest:
		return "request"
	}
	return fmt.Sprintf("CloseReason(%d)", int(r))
}

// Window is a time limited period during which the node is commissionable.
// OnOpen and OnClose run without the window lock held; OnClose runs once per
// opening.
type Window struct {
	OnOpen  func(timeout time.Duration)
	OnClose func(reason CloseReason)

	mu       sync.Mutex
	open     bool
	gen      uint64
	timer    *time.Timer
	deadline time.Time
}

// Open opens the window for timeout, or DefaultWindowTimeout when zero.
func (w *Window) Open(timeout time.Duration) error {
	if timeout == 0 {
		timeout = DefaultWindowTimeout
	}
	if timeout < 0 || timeout > MaxWindowTimeout {
		return fmt.Errorf("%w: %s", ErrWindowTimeout, timeout)
	}
	w.mu.Lock()
	if w.open {
		w.mu.Unlock()
		return ErrWindowOpen
	}
	w.open = true
	w.gen++
	gen := w.gen
	w.deadline = time.Now().Add(timeout)
	w.timer = time.AfterFunc(timeout, func() { w.expire(gen) })
	w.mu.Unlock()
	if w.OnOpen != nil {
		w.OnOpen(timeout)
	}
	return nil
}

func (w *Window) expire(gen uint64) {
	w.mu.Lock()
	if !w.open || w.gen != gen {
		w.mu.Unlock()
		return
	}
	w.open = false
	w.timer = nil
	w.mu.Unlock()
	if w.OnClose != nil {
		w.OnClose(ClosedByTimeout)
	}
}

// Close closes an open window. It reports whether the window was open.
func (w *Window) Close(reason CloseReason) bool {
	w.mu.Lock()
	if !w.open {
		w.mu.Unlock()
		return false
	}
	w.open = false
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.mu.Unlock()
	if w.OnClose != nil {
		w.OnClose(reason)
	}
	return true
}

// IsOpen reports whether the window is open.
func (w *Window) IsOpen() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.open
}

// Remaining returns the time left before the window closes, or 0 when it
// is closed.
func (w *Window) Remaining() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.open {
		return 0
	}
	return max(time.Until(w.deadline), 0)
}
