package commissioning

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestEncodeQRCode(t *testing.T) {
	tests := []struct {
		name    string
		payload SetupPayload
		want    string
	}{
		{
			name: "softap",
			payload: SetupPayload{
				VendorID:      12,
				ProductID:     1,
				Rendezvous:    RendezvousSoftAP,
				Discriminator: 128,
				Passcode:      2048,
			},
			want: "MT:M5L90MP500K64J00000",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EncodeQRCode(&tt.payload)
			if err != nil {
				t.Fatalf("EncodeQRCode() failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("EncodeQRCode() = %s, want %s", got, tt.want)
			}
			back, err := ParseQRCode(got)
			if err != nil {
				t.Fatalf("ParseQRCode() failed: %v", err)
			}
			if *back != tt.payload {
				t.Errorf("ParseQRCode() = %+v, want %+v", *back, tt.payload)
			}
		})
	}
}

func TestParseQRCode_Errors(t *testing.T) {
	for _, s := range []string{"", "M5L90MP500K64J00000", "MT:M5L90", "MT:M5L90MP500K64J0000!"} {
		if _, err := ParseQRCode(s); err == nil {
			t.Errorf("ParseQRCode(%q) succeeded", s)
		}
	}
}

func TestEncodeManualCode(t *testing.T) {
	tests := []struct {
		name    string
		payload SetupPayload
		want    string
	}{
		{"short", SetupPayload{Discriminator: 0xA00, Passcode: 12345679}, "24129507533"},
		{"long", SetupPayload{Discriminator: 0xA00, Passcode: 12345679, VendorID: 1, ProductID: 1, Flow: FlowCustom}, "641295075300001000017"},
		{"test device", SetupPayload{VendorID: 0xFFF1, ProductID: 0x8000, Discriminator: 3840, Passcode: 20202021}, "34970112332"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EncodeManualCode(&tt.payload)
			if err != nil {
				t.Fatalf("EncodeManualCode() failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("EncodeManualCode() = %s, want %s", got, tt.want)
			}
			back, err := ParseManualCode(FormatManualCode(got))
			if err != nil {
				t.Fatalf("ParseManualCode() failed: %v", err)
			}
			if back.Passcode != tt.payload.Passcode || back.ShortDiscriminator() != tt.payload.ShortDiscriminator() {
				t.Errorf("ParseManualCode() = %+v", back)
			}
			if tt.payload.Flow == FlowCustom && (back.VendorID != tt.payload.VendorID || back.ProductID != tt.payload.ProductID) {
				t.Errorf("ParseManualCode() ids = %d/%d", back.VendorID, back.ProductID)
			}
		})
	}
}

func TestParseManualCode_Errors(t *testing.T) {
	tests := []string{
		"24129507530",  // check digit
		"84129507534",  // reserved chunk1
		"2412950753",   // length
		"2412950753a3", // non-digit
	}
	for _, s := range tests {
		if _, err := ParseManualCode(s); !errors.Is(err, ErrInvalidPayload) {
			t.Errorf("ParseManualCode(%q) = %v, want ErrInvalidPayload", s, err)
		}
	}
}

func TestFormatManualCode(t *testing.T) {
	if got := FormatManualCode("34970112332"); got != "3497-011-2332" {
		t.Errorf("FormatManualCode() = %s", got)
	}
}

func TestSetupPayload_Validate(t *testing.T) {
	valid := SetupPayload{Discriminator: 3840, Passcode: 20202021}
	tests := []struct {
		name   string
		modify func(*SetupPayload)
		want   error
	}{
		{"valid", func(*SetupPayload) {}, nil},
		{"version", func(p *SetupPayload) { p.Version = 1 }, ErrInvalidPayload},
		{"flow", func(p *SetupPayload) { p.Flow = 3 }, ErrInvalidPayload},
		{"rendezvous", func(p *SetupPayload) { p.Rendezvous = 1 << 7 }, ErrInvalidPayload},
		{"discriminator", func(p *SetupPayload) { p.Discriminator = 0x1000 }, ErrInvalidDiscriminator},
		{"zero passcode", func(p *SetupPayload) { p.Passcode = 0 }, ErrInvalidPasscode},
		{"trivial passcode", func(p *SetupPayload) { p.Passcode = 12345678 }, ErrInvalidPasscode},
		{"passcode too large", func(p *SetupPayload) { p.Passcode = 99999999 }, ErrInvalidPasscode},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid
			tt.modify(&p)
			err := p.Validate()
			if tt.want == nil && err != nil || tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestParseRendezvous(t *testing.T) {
	tests := []struct {
		in   string
		want RendezvousFlags
		ok   bool
	}{
		{"none", RendezvousNone, true},
		{"ble", RendezvousBLE, true},
		{"OnNetwork", RendezvousOnNetwork, true},
		{"ble|onnetwork", RendezvousBLE | RendezvousOnNetwork, true},
		{"thread", 0, false},
	}
	for _, tt := range tests {
		got, err := ParseRendezvous(tt.in)
		if (err == nil) != tt.ok || got != tt.want {
			t.Errorf("ParseRendezvous(%q) = %v, %v", tt.in, got, err)
		}
	}
	if s := (RendezvousBLE | RendezvousOnNetwork).String(); s != "ble|onnetwork" {
		t.Errorf("String() = %s", s)
	}
}

func TestBase38(t *testing.T) {
	for _, data := range [][]byte{{}, {0}, {0xFF}, {1, 2}, {0xFF, 0xFF, 0xFF}, {1, 2, 3, 4, 5, 6, 7}} {
		enc := base38Encode(data)
		dec, err := base38Decode(enc)
		if err != nil || !bytes.Equal(dec, data) {
			t.Errorf("base38 %x -> %s -> %x, %v", data, enc, dec, err)
		}
	}
	if _, err := base38Decode("ZZZZZ"); err == nil {
		t.Error("base38Decode() accepted an overflowing chunk")
	}
}

func TestGenerateVerifier(t *testing.T) {
	salt := []byte("SPAKE2P Key Salt")
	v, err := GenerateVerifier(20202021, salt, 1000)
	if err != nil {
		t.Fatalf("GenerateVerifier() failed: %v", err)
	}
	if len(v.W0) != 32 || len(v.L) != 65 || v.L[0] != 0x04 {
		t.Errorf("verifier sizes %d/%d, L[0] = 0x%02X", len(v.W0), len(v.L), v.L[0])
	}
	again, _ := GenerateVerifier(20202021, salt, 1000)
	if !bytes.Equal(v.Bytes(), again.Bytes()) {
		t.Error("GenerateVerifier() is not deterministic")
	}
	other, _ := GenerateVerifier(20202022, salt, 1000)
	if bytes.Equal(v.W0, other.W0) {
		t.Error("different passcodes gave the same w0")
	}
	parsed, err := ParseVerifier(v.Bytes())
	if err != nil || !bytes.Equal(parsed.L, v.L) {
		t.Errorf("ParseVerifier() = %v, %v", parsed, err)
	}

	tests := []struct {
		name       string
		passcode   uint32
		salt       []byte
		iterations uint32
		want       error
	}{
		{"short salt", 20202021, make([]byte, 15), 1000, ErrInvalidSalt},
		{"long salt", 20202021, make([]byte, 33), 1000, ErrInvalidSalt},
		{"few iterations", 20202021, salt, 999, ErrInvalidIterations},
		{"many iterations", 20202021, salt, 100001, ErrInvalidIterations},
		{"bad passcode", 11111111, salt, 1000, ErrInvalidPasscode},
	}
	for _, tt := range tests {
		if _, err := GenerateVerifier(tt.passcode, tt.salt, tt.iterations); !errors.Is(err, tt.want) {
			t.Errorf("%s: GenerateVerifier() = %v, want %v", tt.name, err, tt.want)
		}
	}
}

func TestNewPBKDFParams(t *testing.T) {
	p, err := NewPBKDFParams()
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestWindow(t *testing.T) {
	var (
		mu      sync.Mutex
		opened  int
		reasons []CloseReason
	)
	closed := make(chan struct{}, 4)
	w := &Window{
		OnOpen: func(time.Duration) {
			mu.Lock()
			opened++
			mu.Unlock()
		},
		OnClose: func(r CloseReason) {
			mu.Lock()
			reasons = append(reasons, r)
			mu.Unlock()
			closed <- struct{}{}
		},
	}
	if err := w.Open(-time.Second); !errors.Is(err, ErrWindowTimeout) {
		t.Errorf("Open(negative) = %v", err)
	}
	if err := w.Open(time.Hour); !errors.Is(err, ErrWindowTimeout) {
		t.Errorf("Open(1h) = %v", err)
	}

	if err := w.Open(time.Minute); err != nil {
		t.Fatal(err)
	}
	if !w.IsOpen() || w.Remaining() <= 0 {
		t.Error("window not open")
	}
	if err := w.Open(time.Minute); !errors.Is(err, ErrWindowOpen) {
		t.Errorf("second Open() = %v, want ErrWindowOpen", err)
	}
	if !w.Close(ClosedByCommissioning) {
		t.Error("Close() = false")
	}
	if w.Close(ClosedByRequest) {
		t.Error("Close() on closed window = true")
	}

	if err := w.Open(20 * time.Millisecond); err != nil {
		t.Fatal(err)
	}
	<-closed
	<-closed
	if w.IsOpen() || w.Remaining() != 0 {
		t.Error("window still open after timeout")
	}
	mu.Lock()
	defer mu.Unlock()
	if opened != 2 || len(reasons) != 2 || reasons[0] != ClosedByCommissioning || reasons[1] != ClosedByTimeout {
		t.Errorf("opened %d, reasons %v", opened, reasons)
	}
}
