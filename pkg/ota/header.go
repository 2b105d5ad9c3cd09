package ota

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/espressif/esp-matter-sub221/pkg/clusters"
	"github.com/espressif/esp-matter-sub221/pkg/tlv"
)

// Image file layout constants.
const (
	FileIdentifier uint32 = 0x1BEEF11E
	// MaxHeaderSize bounds the TLV header of an image.
	MaxHeaderSize = 1024
	// prefixSize covers the file identifier, total size and header size.
	prefixSize = 4 + 8 + 4
)

// DigestType is an IANA named-information hash algorithm identifier.
type DigestType uint8

// Supported image digests.
const (
	DigestSHA256 DigestType = 1
	DigestSHA512 DigestType = 7
)

// Size returns the digest length in bytes, or 0 for unsupported types.
func (d DigestType) Size() int {
	switch d {
	case DigestSHA256:
		return 32
	case DigestSHA512:
		return 64
	}
	return 0
}

func (d DigestType) String() string {
	switch d {
	case DigestSHA256:
		return "sha-256"
	case DigestSHA512:
		return "sha-512"
	}
	return fmt.Sprintf("DigestType(%d)", uint8(d))
}

// Header errors.
var (
	ErrInvalidFileIdentifier = errors.New("ota: invalid file identifier")
	ErrHeaderTooLarge        = errors.New("ota: header too large")
	ErrInvalidHeader         = errors.New("ota: invalid header")
	ErrUnsupportedDigest     = errors.New("ota: unsupported digest type")
)

// Header tags.
const (
	tagVendorID uint8 = iota
	tagProductID
	tagSoftwareVersion
	tagSoftwareVersionString
	tagPayloadSize
	tagMinApplicableVersion
	tagMaxApplicableVersion
	tagReleaseNotesURL
	tagDigestType
	tagDigest
)

// Header is the parsed header of an OTA image file.
type Header struct {
	VendorID              uint16
	ProductID             uint16
	SoftwareVersion       uint32
	SoftwareVersionString string
	PayloadSize           uint64
	// MinApplicableVersion and MaxApplicableVersion are nil when absent.
	MinApplicableVersion *uint32
	MaxApplicableVersion *uint32
	ReleaseNotesURL      string
	DigestType           DigestType
	Digest               []byte

	// HeaderSize is the length of the TLV header. It is filled by
	// ParseHeader and EncodeHeader.
	HeaderSize uint32
}

// PayloadOffset returns the offset of the payload in the image file.
func (h *Header) PayloadOffset() int64 {
	return prefixSize + int64(h.HeaderSize)
}

// TotalSize returns the size of the whole image file.
func (h *Header) TotalSize() uint64 {
	return prefixSize + uint64(h.HeaderSize) + h.PayloadSize
}

// Applicable reports whether the image may be applied on top of current.
func (h *Header) Applicable(current uint32) bool {
	if h.SoftwareVersion <= current {
		return false
	}
	if h.MinApplicableVersion != nil && current < *h.MinApplicableVersion {
		return false
	}
	if h.MaxApplicableVersion != nil && current > *h.MaxApplicableVersion {
		return false
	}
	return true
}

func (h *Header) validate() error {
	if len(h.SoftwareVersionString) == 0 || len(h.SoftwareVersionString) > 64 {
		return fmt.Errorf("%w: software version string length %d", ErrInvalidHeader, len(h.SoftwareVersionString))
	}
	if len(h.ReleaseNotesURL) > 256 {
		return fmt.Errorf("%w: release notes url too long", ErrInvalidHeader)
	}
	n := h.DigestType.Size()
	if n == 0 {
		return fmt.Errorf("%w: %d", ErrUnsupportedDigest, uint8(h.DigestType))
	}
	if len(h.Digest) != n {
		return fmt.Errorf("%w: digest length %d, want %d", ErrInvalidHeader, len(h.Digest), n)
	}
	return nil
}

// ParseHeader reads the image prefix and TLV header from r. On success r
// is positioned at the start of the payload.
func ParseHeader(r io.Reader) (*Header, error) {
	var prefix [prefixSize]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return nil, err
	}
	if binary.LittleEndian.Uint32(prefix[0:4]) != FileIdentifier {
		return nil, ErrInvalidFileIdentifier
	}
	total := binary.LittleEndian.Uint64(prefix[4:12])
	size := binary.LittleEndian.Uint32(prefix[12:16])
	if size > MaxHeaderSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrHeaderTooLarge, size)
	}
	raw := make([]byte, size)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, err
	}
	h, err := decodeHeader(raw)
	if err != nil {
		return nil, err
	}
	h.HeaderSize = size
	if h.TotalSize() != total {
		return nil, fmt.Errorf("%w: total size %d, want %d", ErrInvalidHeader, total, h.TotalSize())
	}
	return h, nil
}

func decodeHeader(raw []byte) (*Header, error) {
	f, err := clusters.DecodeFields(tlv.NewReader(bytes.NewReader(raw)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHeader, err)
	}
	h := &Header{}
	var vendor, product, version, digestType uint64
	for _, field := range []struct {
		tag uint8
		dst *uint64
		max uint64
	}{
		{tagVendorID, &vendor, 0xFFFF},
		{tagProductID, &product, 0xFFFF},
		{tagSoftwareVersion, &version, 0xFFFFFFFF},
		{tagPayloadSize, &h.PayloadSize, 1<<64 - 1},
		{tagDigestType, &digestType, 0xFF},
	} {
		v, err := f.Uint(uint32(field.tag))
		if err != nil || v > field.max {
			return nil, fmt.Errorf("%w: field %d", ErrInvalidHeader, field.tag)
		}
		*field.dst = v
	}
	h.VendorID = uint16(vendor)
	h.ProductID = uint16(product)
	h.SoftwareVersion = uint32(version)
	h.DigestType = DigestType(digestType)
	if h.SoftwareVersionString, err = f.String(uint32(tagSoftwareVersionString)); err != nil {
		return nil, fmt.Errorf("%w: software version string", ErrInvalidHeader)
	}
	if h.Digest, err = f.Bytes(uint32(tagDigest)); err != nil {
		return nil, fmt.Errorf("%w: digest", ErrInvalidHeader)
	}
	for tag, dst := range map[uint8]**uint32{
		tagMinApplicableVersion: &h.MinApplicableVersion,
		tagMaxApplicableVersion: &h.MaxApplicableVersion,
	} {
		if !f.Has(uint32(tag)) {
			continue
		}
		v, err := f.Uint(uint32(tag))
		if err != nil || v > 0xFFFFFFFF {
			return nil, fmt.Errorf("%w: field %d", ErrInvalidHeader, tag)
		}
		u := uint32(v)
		*dst = &u
	}
	if f.Has(uint32(tagReleaseNotesURL)) {
		if h.ReleaseNotesURL, err = f.String(uint32(tagReleaseNotesURL)); err != nil {
			return nil, fmt.Errorf("%w: release notes url", ErrInvalidHeader)
		}
	}
	if err := h.validate(); err != nil {
		return nil, err
	}
	return h, nil
}

// EncodeHeader returns the image prefix and TLV header for h. The payload
// follows directly. h.HeaderSize is updated.
func EncodeHeader(h *Header) ([]byte, error) {
	if err := h.validate(); err != nil {
		return nil, err
	}
	e := clusters.NewCommandEncoder().
		Uint(tagVendorID, uint64(h.VendorID)).
		Uint(tagProductID, uint64(h.ProductID)).
		Uint(tagSoftwareVersion, uint64(h.SoftwareVersion)).
		String(tagSoftwareVersionString, h.SoftwareVersionString).
		Uint(tagPayloadSize, h.PayloadSize)
	if h.MinApplicableVersion != nil {
		e.Uint(tagMinApplicableVersion, uint64(*h.MinApplicableVersion))
	}
	if h.MaxApplicableVersion != nil {
		e.Uint(tagMaxApplicableVersion, uint64(*h.MaxApplicableVersion))
	}
	if h.ReleaseNotesURL != "" {
		e.String(tagReleaseNotesURL, h.ReleaseNotesURL)
	}
	raw, err := e.Uint(tagDigestType, uint64(h.DigestType)).Bytes(tagDigest, h.Digest).Finish()
	if err != nil {
		return nil, err
	}
	if len(raw) > MaxHeaderSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrHeaderTooLarge, len(raw))
	}
	h.HeaderSize = uint32(len(raw))
	out := make([]byte, prefixSize, prefixSize+len(raw))
	binary.LittleEndian.PutUint32(out[0:4], FileIdentifier)
	binary.LittleEndian.PutUint64(out[4:12], h.TotalSize())
	binary.LittleEndian.PutUint32(out[12:16], h.HeaderSize)
	return append(out, raw...), nil
}
