package tlv

import (
	"io"
	"math"
	"unicode/utf8"
)

// maxStringLen bounds allocations for length-prefixed values.
const maxStringLen = 1 << 20

// Reader decodes TLV elements from an io.Reader.
type Reader struct {
	r     io.Reader
	depth int

	hasElement bool
	valueRead  bool
	elemType   ElementType
	tag        Tag
	value      uint64 // fixed-size value or string length
	buf        [8]byte
}

// NewReader creates a Reader that reads from r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

func (r *Reader) readN(n int) ([]byte, error) {
	if _, err := io.ReadFull(r.r, r.buf[:n]); err != nil {
		return nil, err
	}
	return r.buf[:n], nil
}

// Next advances to the next element. It returns io.EOF at the end of input.
// An unread string payload of the previous element is skipped.
func (r *Reader) Next() error {
	if err := r.discard(); err != nil {
		return err
	}
	ctrl, err := r.readN(1)
	if err != nil {
		return err
	}
	e, tc := splitControlOctet(ctrl[0])
	if e > ElementTypeEnd {
		return ErrInvalidElementType
	}
	tagBytes, err := r.readN(tc.Size())
	if err != nil {
		return unexpected(err)
	}
	r.tag = parseTag(tc, tagBytes)
	r.elemType = e
	r.value = 0
	if n := e.width(); n > 0 {
		b, err := r.readN(n)
		if err != nil {
			return unexpected(err)
		}
		r.value = readLE(b)
	}
	r.hasElement = true
	r.valueRead = false
	return nil
}

func unexpected(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}

// Type returns the type of the current element.
func (r *Reader) Type() ElementType { return r.elemType }

// Tag returns the tag of the current element.
func (r *Reader) Tag() Tag { return r.tag }

// IsEndOfContainer reports whether the current element closes a container.
func (r *Reader) IsEndOfContainer() bool {
	return r.hasElement && r.elemType == ElementTypeEnd
}

func (r *Reader) consume(ok bool) error {
	switch {
	case !r.hasElement:
		return ErrNoElement
	case r.valueRead:
		return ErrValueAlreadyRead
	case !ok:
		return ErrTypeMismatch
	}
	r.valueRead = true
	return nil
}

// Int returns the current signed integer.
func (r *Reader) Int() (int64, error) {
	if err := r.consume(r.elemType.IsSignedInt()); err != nil {
		return 0, err
	}
	shift := 64 - 8*r.elemType.width()
	return int64(r.value<<shift) >> shift, nil
}

// Uint returns the current unsigned integer.
func (r *Reader) Uint() (uint64, error) {
	if err := r.consume(r.elemType.IsUnsignedInt()); err != nil {
		return 0, err
	}
	return r.value, nil
}

// Bool returns the current boolean.
func (r *Reader) Bool() (bool, error) {
	if err := r.consume(r.elemType.IsBool()); err != nil {
		return false, err
	}
	return r.elemType == ElementTypeTrue, nil
}

// Float32 returns the current single precision float.
func (r *Reader) Float32() (float32, error) {
	if err := r.consume(r.elemType == ElementTypeFloat32); err != nil {
		return 0, err
	}
	return math.Float32frombits(uint32(r.value)), nil
}

// Float64 returns the current float. Float32 elements are widened.
func (r *Reader) Float64() (float64, error) {
	if err := r.consume(r.elemType.IsFloat()); err != nil {
		return 0, err
	}
	if r.elemType == ElementTypeFloat32 {
		return float64(math.Float32frombits(uint32(r.value))), nil
	}
	return math.Float64frombits(r.value), nil
}

// String returns the current UTF-8 string.
func (r *Reader) String() (string, error) {
	if err := r.consume(r.elemType.IsUTF8String()); err != nil {
		return "", err
	}
	b, err := r.payload()
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", ErrInvalidUTF8
	}
	return string(b), nil
}

// Bytes returns the current octet string.
func (r *Reader) Bytes() ([]byte, error) {
	if err := r.consume(r.elemType.IsBytes()); err != nil {
		return nil, err
	}
	return r.payload()
}

func (r *Reader) payload() ([]byte, error) {
	if r.value == 0 {
		return []byte{}, nil
	}
	if r.value > maxStringLen {
		return nil, ErrStringTooLong
	}
	b := make([]byte, r.value)
	if _, err := io.ReadFull(r.r, b); err != nil {
		return nil, unexpected(err)
	}
	return b, nil
}

// Null consumes the current null element.
func (r *Reader) Null() error {
	return r.consume(r.elemType == ElementTypeNull)
}

// EnterContainer descends into the current structure, array or list.
func (r *Reader) EnterContainer() error {
	if err := r.consume(r.elemType.IsContainer()); err != nil {
		return err
	}
	r.depth++
	r.hasElement = false
	return nil
}

// ExitContainer skips what is left of the innermost container and leaves it.
func (r *Reader) ExitContainer() error {
	if r.depth == 0 {
		return ErrNotInContainer
	}
	level := 1
	switch {
	case r.IsEndOfContainer():
		level = 0
	case r.hasElement && r.elemType.IsContainer() && !r.valueRead:
		level = 2
	}
	for level > 0 {
		if err := r.Next(); err != nil {
			return unexpected(err)
		}
		switch {
		case r.elemType == ElementTypeEnd:
			level--
		case r.elemType.IsContainer():
			level++
		}
	}
	r.depth--
	r.hasElement = false
	return nil
}

// Skip consumes the current element including any nested content.
func (r *Reader) Skip() error {
	if !r.hasElement {
		return ErrNoElement
	}
	if r.elemType.IsContainer() && !r.valueRead {
		if err := r.EnterContainer(); err != nil {
			return err
		}
		return r.ExitContainer()
	}
	return r.discard()
}

// ContainerDepth returns how many containers have been entered.
func (r *Reader) ContainerDepth() int { return r.depth }

func (r *Reader) discard() error {
	if !r.hasElement || r.valueRead {
		return nil
	}
	r.valueRead = true
	if r.elemType.IsString() && r.value > 0 {
		if _, err := io.CopyN(io.Discard, r.r, int64(r.value)); err != nil {
			return unexpected(err)
		}
	}
	return nil
}
