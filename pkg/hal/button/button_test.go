package button

import (
	"errors"
	"testing"
	"time"

	"github.com/pion/transport/v3/test"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
)

func next(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		if !ok {
			t.Fatal("event channel closed")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func expect(t *testing.T, ch <-chan Event, kinds ...Kind) {
	t.Helper()
	for _, want := range kinds {
		if got := next(t, ch); got.Kind != want {
			t.Fatalf("event = %v, want %v", got.Kind, want)
		}
	}
}

func expectNone(t *testing.T, ch <-chan Event, d time.Duration) {
	t.Helper()
	select {
	case ev := <-ch:
		t.Fatalf("unexpected event %v", ev.Kind)
	case <-time.After(d):
	}
}

func TestSim_SingleClick(t *testing.T) {
	defer test.CheckRoutines(t)()

	b := NewSimWithConfig(DetectorConfig{DoubleClick: 50 * time.Millisecond, LongPress: time.Second})
	defer b.Close()

	b.Click()
	expect(t, b.Events(), PressDown, PressUp, SingleClick)
}

func TestSim_DoubleClick(t *testing.T) {
	defer test.CheckRoutines(t)()

	b := NewSim()
	defer b.Close()

	b.Click()
	b.Click()
	expect(t, b.Events(), PressDown, PressUp, PressDown, PressUp, DoubleClick)
	expectNone(t, b.Events(), DefaultDoubleClick+100*time.Millisecond)
}

func TestSim_LongPress(t *testing.T) {
	defer test.CheckRoutines(t)()

	b := NewSimWithConfig(DetectorConfig{
		DoubleClick: 20 * time.Millisecond,
		LongPress:   30 * time.Millisecond,
		HoldRepeat:  20 * time.Millisecond,
	})
	defer b.Close()

	b.Press()
	expect(t, b.Events(), PressDown)
	start := next(t, b.Events())
	if start.Kind != LongPressStart || start.Held < 30*time.Millisecond {
		t.Fatalf("event = %+v, want LongPressStart after 30ms", start)
	}
	expect(t, b.Events(), LongPressHold)
	b.Release()
	for {
		ev := next(t, b.Events())
		if ev.Kind == LongPressHold {
			continue
		}
		if ev.Kind != PressUp {
			t.Fatalf("event = %v, want PressUp", ev.Kind)
		}
		break
	}
	expectNone(t, b.Events(), 60*time.Millisecond)
}

func TestDetector_Debounce(t *testing.T) {
	defer test.CheckRoutines(t)()

	d := NewDetector(DetectorConfig{Debounce: 30 * time.Millisecond, DoubleClick: 20 * time.Millisecond, LongPress: time.Second})
	defer d.Close()

	// Bounce on press.
	d.Feed(true)
	d.Feed(false)
	d.Feed(true)
	expect(t, d.Events(), PressDown)
	expectNone(t, d.Events(), 50*time.Millisecond)
	d.Feed(false)
	expect(t, d.Events(), PressUp, SingleClick)
}

func TestDetector_CloseClosesEvents(t *testing.T) {
	defer test.CheckRoutines(t)()

	d := NewDetector(DefaultDetectorConfig())
	if err := d.Close(); err != nil {
		t.Fatal(err)
	}
	if _, ok := <-d.Events(); ok {
		t.Error("Events() not closed")
	}
	d.Feed(true)
	if err := d.Close(); err != nil {
		t.Errorf("second Close() failed: %v", err)
	}
}

func TestGPIO(t *testing.T) {
	defer test.CheckRoutines(t)()
	defer test.TimeOut(10 * time.Second).Stop()

	pin := &gpiotest.Pin{N: "GPIO17", Num: 17, EdgesChan: make(chan gpio.Level)}
	b, err := NewGPIO(pin, true, DetectorConfig{DoubleClick: 20 * time.Millisecond, LongPress: time.Second})
	if err != nil {
		t.Fatalf("NewGPIO() failed: %v", err)
	}
	if pin.Pull() != gpio.PullUp {
		t.Errorf("pull = %v, want PullUp for an active-low button", pin.Pull())
	}

	pin.EdgesChan <- gpio.Low
	expect(t, b.Events(), PressDown)
	pin.EdgesChan <- gpio.High
	expect(t, b.Events(), PressUp, SingleClick)

	if err := b.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		typ     string
		wantErr error
	}{
		{"", nil},
		{TypeNone, nil},
		{TypeSim, nil},
		{"touch", ErrUnknownType},
	}
	for _, tt := range tests {
		d, err := New(Config{Type: tt.typ, LongPress: 2 * time.Second})
		if !errors.Is(err, tt.wantErr) {
			t.Errorf("New(%q) error = %v, want %v", tt.typ, err, tt.wantErr)
			continue
		}
		if d != nil {
			if err := d.Close(); err != nil {
				t.Errorf("Close() failed: %v", err)
			}
		}
	}
}

func TestKind_String(t *testing.T) {
	if got := LongPressStart.String(); got != "LongPressStart" {
		t.Errorf("String() = %q", got)
	}
	if got := Kind(42).String(); got != "Kind(42)" {
		t.Errorf("String() = %q", got)
	}
}
