package clusters

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/espressif/esp-matter-sub221/pkg/tlv"
)

// Command field errors.
var (
	ErrInvalidRequest = errors.New("invalid command request")
	ErrMissingField   = errors.New("missing required field")
)

// Fields holds the context-tagged fields of a command request. Arrays of
// scalars are kept as []any, nested structures are skipped. A null field
// is stored as nil.
type Fields map[uint32]any

// DecodeFields reads a command request structure from r. An empty request
// yields empty Fields.
func DecodeFields(r *tlv.Reader) (Fields, error) {
	f := Fields{}
	if err := r.Next(); err != nil {
		if errors.Is(err, io.EOF) {
			return f, nil
		}
		return nil, err
	}
	if r.Type() != tlv.ElementTypeStruct {
		return nil, fmt.Errorf("%w: expected structure, got %s", ErrInvalidRequest, r.Type())
	}
	if err := r.EnterContainer(); err != nil {
		return nil, err
	}
	for {
		if err := r.Next(); err != nil {
			return nil, err
		}
		if r.IsEndOfContainer() {
			break
		}
		tag := r.Tag()
		if !tag.IsContext() {
			if err := r.Skip(); err != nil {
				return nil, err
			}
			continue
		}
		v, err := readScalar(r)
		if err != nil {
			return nil, err
		}
		f[tag.TagNumber()] = v
	}
	return f, r.ExitContainer()
}

func readScalar(r *tlv.Reader) (any, error) {
	switch t := r.Type(); {
	case t.IsSignedInt():
		return r.Int()
	case t.IsUnsignedInt():
		return r.Uint()
	case t.IsBool():
		return r.Bool()
	case t.IsFloat():
		return r.Float64()
	case t.IsUTF8String():
		return r.String()
	case t.IsBytes():
		return r.Bytes()
	case t == tlv.ElementTypeNull:
		return nil, r.Null()
	case t == tlv.ElementTypeArray || t == tlv.ElementTypeList:
		return readList(r)
	default:
		return struct{}{}, r.Skip()
	}
}

func readList(r *tlv.Reader) (any, error) {
	if err := r.EnterContainer(); err != nil {
		return nil, err
	}
	list := []any{}
	for {
		if err := r.Next(); err != nil {
			return nil, err
		}
		if r.IsEndOfContainer() {
			return list, r.ExitContainer()
		}
		v, err := readScalar(r)
		if err != nil {
			return nil, err
		}
		list = append(list, v)
	}
}

// Has reports whether field tag is present.
func (f Fields) Has(tag uint32) bool {
	_, ok := f[tag]
	return ok
}

// IsNull reports whether field tag is present and null.
func (f Fields) IsNull(tag uint32) bool {
	v, ok := f[tag]
	return ok && v == nil
}

// Uint returns an unsigned field. Non-negative signed values are accepted.
func (f Fields) Uint(tag uint32) (uint64, error) {
	switch v := f[tag].(type) {
	case uint64:
		return v, nil
	case int64:
		if v >= 0 {
			return uint64(v), nil
		}
	case nil:
		return 0, fmt.Errorf("%w: %d", ErrMissingField, tag)
	}
	return 0, fmt.Errorf("%w: field %d is not unsigned", ErrInvalidRequest, tag)
}

// Int returns a signed field. Unsigned values that fit are accepted.
func (f Fields) Int(tag uint32) (int64, error) {
	switch v := f[tag].(type) {
	case int64:
		return v, nil
	case uint64:
		if v <= 1<<63-1 {
			return int64(v), nil
		}
	case nil:
		return 0, fmt.Errorf("%w: %d", ErrMissingField, tag)
	}
	return 0, fmt.Errorf("%w: field %d is not signed", ErrInvalidRequest, tag)
}

// Bool returns a boolean field.
func (f Fields) Bool(tag uint32) (bool, error) {
	v, ok := f[tag].(bool)
	if !ok {
		return false, fmt.Errorf("%w: %d", ErrMissingField, tag)
	}
	return v, nil
}

// String returns a UTF-8 string field.
func (f Fields) String(tag uint32) (string, error) {
	v, ok := f[tag].(string)
	if !ok {
		return "", fmt.Errorf("%w: %d", ErrMissingField, tag)
	}
	return v, nil
}

// Bytes returns an octet string field.
func (f Fields) Bytes(tag uint32) ([]byte, error) {
	v, ok := f[tag].([]byte)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrMissingField, tag)
	}
	return v, nil
}

// UintOr returns an unsigned field or def when it is absent or null.
func (f Fields) UintOr(tag uint32, def uint64) uint64 {
	v, err := f.Uint(tag)
	if err != nil {
		return def
	}
	return v
}

// UintList returns an array field of unsigned integers. An absent field
// yields an empty list.
func (f Fields) UintList(tag uint32) ([]uint64, error) {
	v, ok := f[tag]
	if !ok || v == nil {
		return nil, nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: field %d is not a list", ErrInvalidRequest, tag)
	}
	out := make([]uint64, 0, len(list))
	for _, e := range list {
		u, ok := e.(uint64)
		if !ok {
			return nil, fmt.Errorf("%w: field %d has a non-unsigned element", ErrInvalidRequest, tag)
		}
		out = append(out, u)
	}
	return out, nil
}

// CommandEncoder builds TLV-encoded command requests and responses. The
// fields are wrapped in an anonymous structure.
type CommandEncoder struct {
	buf bytes.Buffer
	w   *tlv.Writer
}

// NewCommandEncoder creates an encoder with the structure already open.
func NewCommandEncoder() *CommandEncoder {
	e := &CommandEncoder{}
	e.w = tlv.NewWriter(&e.buf)
	_ = e.w.StartStructure(tlv.Anonymous())
	return e
}

// Writer returns the underlying TLV writer for encoding fields.
func (e *CommandEncoder) Writer() *tlv.Writer { return e.w }

// Uint writes an unsigned context field.
func (e *CommandEncoder) Uint(tag uint8, v uint64) *CommandEncoder {
	_ = e.w.PutUint(tlv.ContextTag(tag), v)
	return e
}

// Int writes a signed context field.
func (e *CommandEncoder) Int(tag uint8, v int64) *CommandEncoder {
	_ = e.w.PutInt(tlv.ContextTag(tag), v)
	return e
}

// Bool writes a boolean context field.
func (e *CommandEncoder) Bool(tag uint8, v bool) *CommandEncoder {
	_ = e.w.PutBool(tlv.ContextTag(tag), v)
	return e
}

// String writes a string context field.
func (e *CommandEncoder) String(tag uint8, v string) *CommandEncoder {
	_ = e.w.PutString(tlv.ContextTag(tag), v)
	return e
}

// Bytes writes an octet string context field.
func (e *CommandEncoder) Bytes(tag uint8, v []byte) *CommandEncoder {
	_ = e.w.PutBytes(tlv.ContextTag(tag), v)
	return e
}

// Null writes a null context field.
func (e *CommandEncoder) Null(tag uint8) *CommandEncoder {
	_ = e.w.PutNull(tlv.ContextTag(tag))
	return e
}

// Uints writes an array of unsigned integers as a context field.
func (e *CommandEncoder) Uints(tag uint8, vs ...uint64) *CommandEncoder {
	_ = e.w.StartArray(tlv.ContextTag(tag))
	for _, v := range vs {
		_ = e.w.PutUint(tlv.Anonymous(), v)
	}
	_ = e.w.EndContainer()
	return e
}

// Finish closes the structure and returns the encoded bytes.
func (e *CommandEncoder) Finish() ([]byte, error) {
	if err := e.w.EndContainer(); err != nil {
		return nil, err
	}
	return e.buf.Bytes(), nil
}
