package led

import (
	"errors"
	"testing"

	"github.com/pion/logging"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		typ     string
		wantErr error
	}{
		{"empty is none", "", nil},
		{"none", TypeNone, nil},
		{"sim", TypeSim, nil},
		{"unknown", "laser", ErrUnknownType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := New(Config{Type: tt.typ})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("New(%q) error = %v, want %v", tt.typ, err, tt.wantErr)
			}
			if err == nil {
				if err := d.SetPower(true); err != nil {
					t.Errorf("SetPower() failed: %v", err)
				}
				_ = d.Close()
			}
		})
	}
}

func TestRegister(t *testing.T) {
	var got Config
	Register("test-led", func(cfg Config) (Driver, error) {
		got = cfg
		return nop{}, nil
	})
	if _, err := New(Config{Type: "test-led", Pins: []string{"X"}}); err != nil {
		t.Fatal(err)
	}
	if len(got.Pins) != 1 || got.LoggerFactory == nil {
		t.Errorf("factory got %+v, want pins and a logger factory", got)
	}
}

func TestSim(t *testing.T) {
	s := NewSim(logging.NewDefaultLoggerFactory().NewLogger("hal"))
	if err := s.SetPower(true); err != nil {
		t.Fatal(err)
	}
	if err := s.SetBrightness(40); err != nil {
		t.Fatal(err)
	}
	if err := s.SetHue(120); err != nil {
		t.Fatal(err)
	}
	st := s.State()
	if !st.On || st.Brightness != 40 || st.Hue != 120 || st.ColorMode != ModeHS {
		t.Errorf("State() = %+v", st)
	}
	if err := s.SetTemperature(2700); err != nil {
		t.Fatal(err)
	}
	if st := s.State(); st.ColorMode != ModeTemperature || st.Temperature != 2700 {
		t.Errorf("State() after SetTemperature = %+v", st)
	}

	for name, err := range map[string]error{
		"brightness":  s.SetBrightness(101),
		"hue":         s.SetHue(361),
		"saturation":  s.SetSaturation(200),
		"temperature": s.SetTemperature(500),
	} {
		if !errors.Is(err, ErrOutOfRange) {
			t.Errorf("%s: error = %v, want ErrOutOfRange", name, err)
		}
	}

	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.SetPower(false); !errors.Is(err, ErrClosed) {
		t.Errorf("SetPower() after Close error = %v, want ErrClosed", err)
	}
}

func TestGPIO_Mono(t *testing.T) {
	p := &gpiotest.Pin{N: "GPIO18", Num: 18}
	g, err := NewGPIO([]gpio.PinOut{p}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if p.L != gpio.Low {
		t.Error("LED not off after NewGPIO")
	}
	if err := g.SetPower(true); err != nil {
		t.Fatal(err)
	}
	if p.D != gpio.DutyMax || p.F != DefaultPWMFrequency {
		t.Errorf("duty = %v at %v, want full duty at %v", p.D, p.F, DefaultPWMFrequency)
	}
	if err := g.SetBrightness(50); err != nil {
		t.Fatal(err)
	}
	if p.D != gpio.DutyHalf {
		t.Errorf("duty = %v, want %v", p.D, gpio.DutyHalf)
	}
	if err := g.Close(); err != nil {
		t.Fatal(err)
	}
	if p.L != gpio.Low {
		t.Error("LED not off after Close")
	}
}

func TestGPIO_RGB(t *testing.T) {
	r, gr, b := &gpiotest.Pin{N: "R"}, &gpiotest.Pin{N: "G"}, &gpiotest.Pin{N: "B"}
	g, err := NewGPIO([]gpio.PinOut{r, gr, b}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := g.SetPower(true); err != nil {
		t.Fatal(err)
	}
	if err := g.SetSaturation(100); err != nil {
		t.Fatal(err)
	}
	if err := g.SetHue(240); err != nil {
		t.Fatal(err)
	}
	if r.D != 0 || gr.D != 0 || b.D != gpio.DutyMax {
		t.Errorf("duties = %v %v %v, want pure blue", r.D, gr.D, b.D)
	}
}

func TestNewGPIO_Pins(t *testing.T) {
	pins := []gpio.PinOut{&gpiotest.Pin{}, &gpiotest.Pin{}}
	if _, err := NewGPIO(pins, 0); !errors.Is(err, ErrPins) {
		t.Errorf("NewGPIO(2 pins) error = %v, want ErrPins", err)
	}
}

func TestHSVToRGB(t *testing.T) {
	tests := []struct {
		hue      uint16
		sat, val uint8
		want     RGB
	}{
		{0, 100, 100, RGB{255, 0, 0}},
		{120, 100, 100, RGB{0, 255, 0}},
		{240, 100, 100, RGB{0, 0, 255}},
		{60, 100, 100, RGB{255, 255, 0}},
		{0, 0, 100, RGB{255, 255, 255}},
		{0, 100, 0, RGB{0, 0, 0}},
		{360, 100, 100, RGB{255, 0, 0}},
	}
	for _, tt := range tests {
		if got := HSVToRGB(tt.hue, tt.sat, tt.val); got != tt.want {
			t.Errorf("HSVToRGB(%d, %d, %d) = %v, want %v", tt.hue, tt.sat, tt.val, got, tt.want)
		}
	}
}

func TestKelvinToRGB(t *testing.T) {
	warm := KelvinToRGB(2700)
	if warm.R != 255 || warm.B >= warm.G {
		t.Errorf("KelvinToRGB(2700) = %v, want red dominated", warm)
	}
	cold := KelvinToRGB(10000)
	if cold.B != 255 || cold.R >= 255 {
		t.Errorf("KelvinToRGB(10000) = %v, want blue dominated", cold)
	}
	if got := KelvinToRGB(100); got != KelvinToRGB(MinTemperature) {
		t.Errorf("KelvinToRGB(100) = %v, want clamped to %d K", got, MinTemperature)
	}
}
