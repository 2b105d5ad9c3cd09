package button

import (
	"sync"
	"time"
)

// Default detector timings.
const (
	DefaultDebounce    = 20 * time.Millisecond
	DefaultDoubleClick = 300 * time.Millisecond
	DefaultLongPress   = 1500 * time.Millisecond
	DefaultHoldRepeat  = 500 * time.Millisecond
)

// eventBuffer is the capacity of the event channel. Events are dropped
// when the consumer falls this far behind.
const eventBuffer = 32

// DetectorConfig holds the detector timings. A zero Debounce disables
// debouncing.
type DetectorConfig struct {
	Debounce    time.Duration
	DoubleClick time.Duration
	LongPress   time.Duration
	HoldRepeat  time.Duration
}

// DefaultDetectorConfig returns the default timings.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		Debounce:    DefaultDebounce,
		DoubleClick: DefaultDoubleClick,
		LongPress:   DefaultLongPress,
		HoldRepeat:  DefaultHoldRepeat,
	}
}

// Detector turns raw levels fed by a backend into events. It runs one
// goroutine until Close.
type Detector struct {
	cfg    DetectorConfig
	levels chan bool
	events chan Event
	done   chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

// NewDetector starts a detector. The button starts released.
func NewDetector(cfg DetectorConfig) *Detector {
	def := DefaultDetectorConfig()
	if cfg.DoubleClick <= 0 {
		cfg.DoubleClick = def.DoubleClick
	}
	if cfg.LongPress <= 0 {
		cfg.LongPress = def.LongPress
	}
	if cfg.HoldRepeat <= 0 {
		cfg.HoldRepeat = def.HoldRepeat
	}
	d := &Detector{
		cfg:    cfg,
		levels: make(chan bool, eventBuffer),
		events: make(chan Event, eventBuffer),
		done:   make(chan struct{}),
	}
	d.wg.Add(1)
	go d.run()
	return d
}

// Feed reports a raw level, true while pressed. It does not block once
// the detector is closed.
func (d *Detector) Feed(pressed bool) {
	select {
	case d.levels <- pressed:
	case <-d.done:
	}
}

// Events returns the event channel. It is closed by Close.
func (d *Detector) Events() <-chan Event { return d.events }

// Close stops the detector and closes the event channel.
func (d *Detector) Close() error {
	d.once.Do(func() {
		close(d.done)
		d.wg.Wait()
		close(d.events)
	})
	return nil
}

func (d *Detector) emit(k Kind, now time.Time, held time.Duration) {
	select {
	case d.events <- Event{Kind: k, Time: now, Held: held}:
	default:
	}
}

// timer is a stoppable timer whose channel is nil while inactive.
type timer struct {
	t *time.Timer
	c <-chan time.Time
}

func (t *timer) start(d time.Duration) {
	t.stop()
	t.t = time.NewTimer(d)
	t.c = t.t.C
}

func (t *timer) stop() {
	if t.t != nil {
		t.t.Stop()
	}
	t.t, t.c = nil, nil
}

func (d *Detector) run() {
	defer d.wg.Done()
	var (
		raw, stable bool
		pressedAt   time.Time
		long        bool
		clicks      int
		debounce    timer
		longPress   timer
		click       timer
		hold        timer
	)
	defer func() {
		debounce.stop()
		longPress.stop()
		click.stop()
		hold.stop()
	}()

	transition := func(pressed bool, now time.Time) {
		if pressed == stable {
			return
		}
		stable = pressed
		if pressed {
			pressedAt, long = now, false
			click.stop()
			d.emit(PressDown, now, 0)
			longPress.start(d.cfg.LongPress)
			return
		}
		held := now.Sub(pressedAt)
		longPress.stop()
		hold.stop()
		d.emit(PressUp, now, held)
		if long {
			clicks = 0
			return
		}
		clicks++
		if clicks == 2 {
			clicks = 0
			click.stop()
			d.emit(DoubleClick, now, 0)
			return
		}
		click.start(d.cfg.DoubleClick)
	}

	for {
		select {
		case <-d.done:
			return
		case level := <-d.levels:
			raw = level
			if d.cfg.Debounce <= 0 {
				transition(raw, time.Now())
				continue
			}
			debounce.start(d.cfg.Debounce)
		case now := <-debounce.c:
			debounce.stop()
			transition(raw, now)
		case now := <-longPress.c:
			longPress.stop()
			long = true
			clicks = 0
			click.stop()
			d.emit(LongPressStart, now, now.Sub(pressedAt))
			hold.start(d.cfg.HoldRepeat)
		case now := <-hold.c:
			d.emit(LongPressHold, now, now.Sub(pressedAt))
			hold.start(d.cfg.HoldRepeat)
		case now := <-click.c:
			click.stop()
			if clicks == 1 {
				d.emit(SingleClick, now, 0)
			}
			clicks = 0
		}
	}
}
