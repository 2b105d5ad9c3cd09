package ota

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
)

func buildImage(t *testing.T, h Header, payload []byte) []byte {
	t.Helper()
	if h.DigestType == 0 {
		h.DigestType = DigestSHA256
	}
	if h.SoftwareVersionString == "" {
		h.SoftwareVersionString = "1.0"
	}
	if h.DigestType == DigestSHA512 {
		sum := sha512.Sum512(payload)
		h.Digest = sum[:]
	} else {
		sum := sha256.Sum256(payload)
		h.Digest = sum[:]
	}
	h.PayloadSize = uint64(len(payload))
	head, err := EncodeHeader(&h)
	if err != nil {
		t.Fatalf("EncodeHeader() failed: %v", err)
	}
	return append(head, payload...)
}

func u32(v uint32) *uint32 { return &v }

func TestParseHeader(t *testing.T) {
	img := buildImage(t, Header{
		VendorID:              0xFFF1,
		ProductID:             0x8000,
		SoftwareVersion:       2,
		SoftwareVersionString: "v2.0",
		MinApplicableVersion:  u32(1),
		ReleaseNotesURL:       "https://example.com/notes",
		DigestType:            DigestSHA512,
	}, []byte("payload"))

	r := bytes.NewReader(img)
	h, err := ParseHeader(r)
	if err != nil {
		t.Fatalf("ParseHeader() failed: %v", err)
	}
	if h.VendorID != 0xFFF1 || h.ProductID != 0x8000 || h.SoftwareVersion != 2 || h.SoftwareVersionString != "v2.0" {
		t.Errorf("ParseHeader() = %+v", h)
	}
	if h.MinApplicableVersion == nil || *h.MinApplicableVersion != 1 || h.MaxApplicableVersion != nil {
		t.Errorf("applicable versions = %v, %v", h.MinApplicableVersion, h.MaxApplicableVersion)
	}
	if h.ReleaseNotesURL != "https://example.com/notes" || h.DigestType != DigestSHA512 || len(h.Digest) != 64 {
		t.Errorf("ParseHeader() = %+v", h)
	}
	if h.TotalSize() != uint64(len(img)) {
		t.Errorf("TotalSize() = %d, want %d", h.TotalSize(), len(img))
	}
	if rest := r.Len(); rest != len("payload") {
		t.Errorf("reader left %d bytes, want %d", rest, len("payload"))
	}
}

func TestParseHeader_Errors(t *testing.T) {
	good := buildImage(t, Header{VendorID: 1, ProductID: 2, SoftwareVersion: 3}, []byte("abc"))
	mutate := func(f func(b []byte) []byte) []byte {
		return f(append([]byte(nil), good...))
	}
	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"bad magic", mutate(func(b []byte) []byte { b[0] ^= 0xFF; return b }), ErrInvalidFileIdentifier},
		{"header too large", mutate(func(b []byte) []byte {
			binary.LittleEndian.PutUint32(b[12:16], MaxHeaderSize+1)
			return b
		}), ErrHeaderTooLarge},
		{"total size", mutate(func(b []byte) []byte {
			binary.LittleEndian.PutUint64(b[4:12], 1)
			return b
		}), ErrInvalidHeader},
		{"truncated header", good[:prefixSize+2], nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseHeader(bytes.NewReader(tt.data))
			if err == nil {
				t.Fatal("ParseHeader() succeeded")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("ParseHeader() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestEncodeHeader_UnsupportedDigest(t *testing.T) {
	h := &Header{SoftwareVersionString: "1", DigestType: 2, Digest: make([]byte, 32)}
	if _, err := EncodeHeader(h); !errors.Is(err, ErrUnsupportedDigest) {
		t.Errorf("EncodeHeader() = %v, want ErrUnsupportedDigest", err)
	}
}

func TestHeader_Applicable(t *testing.T) {
	tests := []struct {
		name    string
		h       Header
		current uint32
		want    bool
	}{
		{"newer", Header{SoftwareVersion: 2}, 1, true},
		{"same", Header{SoftwareVersion: 2}, 2, false},
		{"older", Header{SoftwareVersion: 2}, 3, false},
		{"below min", Header{SoftwareVersion: 5, MinApplicableVersion: u32(2)}, 1, false},
		{"above max", Header{SoftwareVersion: 5, MaxApplicableVersion: u32(3)}, 4, false},
		{"in range", Header{SoftwareVersion: 5, MinApplicableVersion: u32(2), MaxApplicableVersion: u32(3)}, 3, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.h.Applicable(tt.current); got != tt.want {
				t.Errorf("Applicable(%d) = %v, want %v", tt.current, got, tt.want)
			}
		})
	}
}

func newProcessor(t *testing.T) (*ImageProcessor, *FilePartition) {
	t.Helper()
	part, err := NewFilePartition(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return NewImageProcessor(part, nil), part
}

func feed(t *testing.T, p *ImageProcessor, img []byte, block int) {
	t.Helper()
	ctx := context.Background()
	for len(img) > 0 {
		n := min(block, len(img))
		if err := p.ProcessBlock(ctx, img[:n]); err != nil {
			t.Fatalf("ProcessBlock() failed: %v", err)
		}
		img = img[n:]
	}
}

func TestImageProcessor(t *testing.T) {
	ctx := context.Background()
	p, part := newProcessor(t)
	payload := bytes.Repeat([]byte("firmware"), 100)
	img := buildImage(t, Header{VendorID: 1, ProductID: 2, SoftwareVersion: 3}, payload)

	if err := p.ProcessBlock(ctx, img[:10]); !errors.Is(err, ErrNotPrepared) {
		t.Errorf("ProcessBlock() before PrepareDownload = %v", err)
	}
	if err := p.PrepareDownload(ctx); err != nil {
		t.Fatal(err)
	}
	if p.Progress() != -1 {
		t.Errorf("Progress() = %d before header", p.Progress())
	}
	feed(t, p, img, 7)
	if p.Progress() != 100 || p.BytesWritten() != uint64(len(payload)) {
		t.Errorf("Progress() = %d, BytesWritten() = %d", p.Progress(), p.BytesWritten())
	}
	h, err := p.Finalize(ctx)
	if err != nil {
		t.Fatalf("Finalize() failed: %v", err)
	}
	if h.SoftwareVersion != 3 {
		t.Errorf("SoftwareVersion = %d", h.SoftwareVersion)
	}
	got, err := os.ReadFile(filepath.Join(part.dir, ImageFile))
	if err != nil || !bytes.Equal(got, payload) {
		t.Fatalf("installed image mismatch: %v", err)
	}
	if err := p.Apply(ctx); err != nil {
		t.Fatalf("Apply() failed: %v", err)
	}
	if _, err := os.Stat(part.BootImage()); err != nil {
		t.Errorf("boot image missing: %v", err)
	}
	if err := p.Apply(ctx); !errors.Is(err, ErrNotFinalized) {
		t.Errorf("second Apply() = %v, want ErrNotFinalized", err)
	}
}

func TestImageProcessor_Zstd(t *testing.T) {
	ctx := context.Background()
	p, part := newProcessor(t)
	raw := bytes.Repeat([]byte("compressible firmware "), 500)
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		t.Fatal(err)
	}
	compressed := enc.EncodeAll(raw, nil)
	_ = enc.Close()

	img := buildImage(t, Header{VendorID: 1, ProductID: 2, SoftwareVersion: 3}, compressed)
	if err := p.PrepareDownload(ctx); err != nil {
		t.Fatal(err)
	}
	feed(t, p, img, 256)
	if _, err := p.Finalize(ctx); err != nil {
		t.Fatalf("Finalize() failed: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(part.dir, ImageFile))
	if err != nil || !bytes.Equal(got, raw) {
		t.Fatalf("decompressed image mismatch (%d bytes): %v", len(got), err)
	}
}

func TestImageProcessor_Errors(t *testing.T) {
	ctx := context.Background()
	payload := []byte("0123456789")
	img := buildImage(t, Header{VendorID: 1, ProductID: 2, SoftwareVersion: 3}, payload)

	t.Run("digest mismatch", func(t *testing.T) {
		p, part := newProcessor(t)
		bad := append([]byte(nil), img...)
		bad[len(bad)-1] ^= 0xFF
		_ = p.PrepareDownload(ctx)
		feed(t, p, bad, 5)
		if _, err := p.Finalize(ctx); !errors.Is(err, ErrDigestMismatch) {
			t.Errorf("Finalize() = %v, want ErrDigestMismatch", err)
		}
		if err := p.Abort(ctx); err != nil {
			t.Errorf("Abort() failed: %v", err)
		}
		if _, err := os.Stat(filepath.Join(part.dir, StagingFile)); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("staging file left after Abort: %v", err)
		}
	})
	t.Run("incomplete", func(t *testing.T) {
		p, _ := newProcessor(t)
		_ = p.PrepareDownload(ctx)
		feed(t, p, img[:len(img)-3], 64)
		if _, err := p.Finalize(ctx); !errors.Is(err, ErrIncomplete) {
			t.Errorf("Finalize() = %v, want ErrIncomplete", err)
		}
	})
	t.Run("overflow", func(t *testing.T) {
		p, _ := newProcessor(t)
		_ = p.PrepareDownload(ctx)
		feed(t, p, img, 64)
		if err := p.ProcessBlock(ctx, []byte{0}); !errors.Is(err, ErrPayloadOverflow) {
			t.Errorf("ProcessBlock() = %v, want ErrPayloadOverflow", err)
		}
	})
	t.Run("bad header", func(t *testing.T) {
		p, _ := newProcessor(t)
		_ = p.PrepareDownload(ctx)
		if err := p.ProcessBlock(ctx, make([]byte, 32)); !errors.Is(err, ErrInvalidFileIdentifier) {
			t.Errorf("ProcessBlock() = %v, want ErrInvalidFileIdentifier", err)
		}
	})
}

func writeImage(t *testing.T, dir, name string, h Header, payload []byte) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), buildImage(t, h, payload), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestDirProvider(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeImage(t, dir, "v2.ota", Header{VendorID: 1, ProductID: 2, SoftwareVersion: 2}, []byte("two"))
	writeImage(t, dir, "v3.ota", Header{VendorID: 1, ProductID: 2, SoftwareVersion: 3}, []byte("three"))
	writeImage(t, dir, "other.ota", Header{VendorID: 1, ProductID: 9, SoftwareVersion: 9}, []byte("other"))
	writeImage(t, dir, "ignored.bin", Header{VendorID: 1, ProductID: 2, SoftwareVersion: 8}, []byte("bin"))
	if err := os.WriteFile(filepath.Join(dir, "broken.ota"), []byte("junk"), 0o644); err != nil {
		t.Fatal(err)
	}
	p := NewDirProvider(dir, nil)

	tests := []struct {
		current    uint32
		wantStatus QueryStatus
		wantURI    string
	}{
		{1, StatusUpdateAvailable, "v3.ota"},
		{2, StatusUpdateAvailable, "v3.ota"},
		{3, StatusNotAvailable, ""},
	}
	for _, tt := range tests {
		resp, err := p.QueryImage(ctx, QueryImageRequest{VendorID: 1, ProductID: 2, SoftwareVersion: tt.current})
		if err != nil {
			t.Fatalf("QueryImage() failed: %v", err)
		}
		if resp.Status != tt.wantStatus || resp.ImageURI != tt.wantURI {
			t.Errorf("QueryImage(%d) = %s %q, want %s %q", tt.current, resp.Status, resp.ImageURI, tt.wantStatus, tt.wantURI)
		}
	}

	rc, err := p.Download(ctx, "v3.ota")
	if err != nil {
		t.Fatalf("Download() failed: %v", err)
	}
	h, err := ParseHeader(rc)
	_ = rc.Close()
	if err != nil || h.SoftwareVersion != 3 {
		t.Errorf("downloaded header = %v, %v", h, err)
	}
	for _, uri := range []string{"", "../v3.ota", "sub/v3.ota", ".hidden"} {
		if _, err := p.Download(ctx, uri); !errors.Is(err, ErrInvalidURI) {
			t.Errorf("Download(%q) = %v, want ErrInvalidURI", uri, err)
		}
	}
}
