package ota

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/sha512"
	"errors"
	"fmt"
	"hash"
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pion/logging"
)

// Image processor errors.
var (
	ErrNotPrepared     = errors.New("ota: download not prepared")
	ErrPayloadOverflow = errors.New("ota: block exceeds payload size")
	ErrIncomplete      = errors.New("ota: image incomplete")
	ErrDigestMismatch  = errors.New("ota: image digest mismatch")
	ErrNotFinalized    = errors.New("ota: image not finalized")
)

var zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}

type processorState int

const (
	processorIdle processorState = iota
	processorDownloading
	processorFinalized
)

// ImageProcessor consumes an OTA image block by block and stores the
// payload in a Partition.
type ImageProcessor struct {
	part Partition
	log  logging.LeveledLogger

	mu      sync.Mutex
	state   processorState
	pending []byte
	header  *Header
	hash    hash.Hash
	w       io.WriteSeeker
	written uint64
}

// NewImageProcessor creates a processor writing to part.
func NewImageProcessor(part Partition, lf logging.LoggerFactory) *ImageProcessor {
	if lf == nil {
		lf = logging.NewDefaultLoggerFactory()
	}
	return &ImageProcessor{part: part, log: lf.NewLogger("ota")}
}

// PrepareDownload resets the processor and the staging area.
func (p *ImageProcessor) PrepareDownload(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	w, err := p.part.Begin()
	if err != nil {
		return err
	}
	if _, err := w.Seek(0, io.SeekStart); err != nil {
		return err
	}
	p.reset()
	p.w = w
	p.state = processorDownloading
	return nil
}

func (p *ImageProcessor) reset() {
	p.state = processorIdle
	p.pending = nil
	p.header = nil
	p.hash = nil
	p.w = nil
	p.written = 0
}

// ProcessBlock consumes the next block of the image. Header bytes are
// buffered until the header can be parsed.
func (p *ImageProcessor) ProcessBlock(ctx context.Context, block []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != processorDownloading {
		return ErrNotPrepared
	}
	if p.header == nil {
		p.pending = append(p.pending, block...)
		if len(p.pending) < prefixSize {
			return nil
		}
		r := bytes.NewReader(p.pending)
		h, err := ParseHeader(r)
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		p.header = h
		p.hash = newDigest(h.DigestType)
		p.log.Infof("Image header: vendor 0x%04X product 0x%04X version %d (%s), payload %d bytes",
			h.VendorID, h.ProductID, h.SoftwareVersion, h.SoftwareVersionString, h.PayloadSize)
		block = p.pending[len(p.pending)-r.Len():]
		p.pending = nil
	}
	if p.written+uint64(len(block)) > p.header.PayloadSize {
		return fmt.Errorf("%w: %d bytes past %d", ErrPayloadOverflow, p.written+uint64(len(block))-p.header.PayloadSize, p.header.PayloadSize)
	}
	if _, err := p.w.Write(block); err != nil {
		return err
	}
	p.hash.Write(block)
	p.written += uint64(len(block))
	return nil
}

func newDigest(t DigestType) hash.Hash {
	if t == DigestSHA512 {
		return sha512.New()
	}
	return sha256.New()
}

// Header returns the parsed image header, or nil before it is complete.
func (p *ImageProcessor) Header() *Header {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.header
}

// BytesWritten returns the number of payload bytes stored so far.
func (p *ImageProcessor) BytesWritten() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written
}

// Progress returns the download progress in percent, or -1 before the
// header is parsed.
func (p *ImageProcessor) Progress() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.header == nil {
		return -1
	}
	if p.header.PayloadSize == 0 {
		return 100
	}
	return int(p.written * 100 / p.header.PayloadSize)
}

// Finalize verifies the payload digest and installs the image. A zstd
// compressed payload is decompressed on the way.
func (p *ImageProcessor) Finalize(ctx context.Context) (*Header, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != processorDownloading {
		return nil, ErrNotPrepared
	}
	if p.header == nil || p.written != p.header.PayloadSize {
		return nil, fmt.Errorf("%w: %d of %d bytes", ErrIncomplete, p.written, p.expected())
	}
	if sum := p.hash.Sum(nil); !bytes.Equal(sum, p.header.Digest) {
		return nil, fmt.Errorf("%w: got %x", ErrDigestMismatch, sum)
	}
	if err := p.install(); err != nil {
		return nil, err
	}
	p.state = processorFinalized
	p.log.Infof("Image %s verified (%s)", p.header.SoftwareVersionString, p.header.DigestType)
	return p.header, nil
}

func (p *ImageProcessor) expected() uint64 {
	if p.header == nil {
		return 0
	}
	return p.header.PayloadSize
}

func (p *ImageProcessor) install() error {
	rc, err := p.part.Staged()
	if err != nil {
		return err
	}
	defer rc.Close()
	var magic [4]byte
	n, err := io.ReadFull(rc, magic[:])
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return err
	}
	r := io.MultiReader(bytes.NewReader(magic[:n]), rc)
	if !bytes.Equal(magic[:n], zstdMagic) {
		return p.part.Install(r)
	}
	dec, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1), zstd.WithDecoderLowmem(true))
	if err != nil {
		return err
	}
	defer dec.Close()
	p.log.Debugf("Decompressing zstd payload")
	return p.part.Install(dec)
}

// Apply activates a finalized image.
func (p *ImageProcessor) Apply(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != processorFinalized {
		return ErrNotFinalized
	}
	if err := p.part.Activate(); err != nil {
		return err
	}
	p.log.Infof("Image %s activated", p.header.SoftwareVersionString)
	p.reset()
	return nil
}

// Abort discards any partial or finalized image.
func (p *ImageProcessor) Abort(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == processorIdle {
		return nil
	}
	p.reset()
	p.log.Warnf("Image download aborted")
	return p.part.Erase()
}
