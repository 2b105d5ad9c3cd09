package datamodel

import (
	"fmt"
	"math"

	"github.com/espressif/esp-matter-sub221/pkg/tlv"
	"github.com/fxamacker/cbor/v2"
)

// EncodeTLV writes v as a single TLV element.
func (v Val) EncodeTLV(w *tlv.Writer, tag tlv.Tag) error {
	if v.IsNull() {
		return w.PutNull(tag)
	}
	switch b := v.Type.Base(); {
	case b == ValTypeBoolean:
		return w.PutBool(tag, v.Bool())
	case b == ValTypeFloat:
		return w.PutFloat32(tag, v.f)
	case v.Type.signed():
		return w.PutInt(tag, v.Int())
	case v.Type.unsigned():
		return w.PutUint(tag, v.num)
	case b == ValTypeCharString || b == ValTypeLongCharString:
		return w.PutString(tag, string(v.data))
	case b == ValTypeOctetString || b == ValTypeLongOctetString:
		return w.PutBytes(tag, v.data)
	case b == ValTypeArray:
		if err := w.StartArray(tag); err != nil {
			return err
		}
		return w.EndContainer()
	}
	return fmt.Errorf("%w: cannot encode %s", ErrInvalidArg, v.Type)
}

// DecodeVal reads the current element of r as a value of type t. The
// reader must already be positioned on the element.
func DecodeVal(r *tlv.Reader, t ValType) (Val, error) {
	if r.Type() == tlv.ElementTypeNull {
		if err := r.Null(); err != nil {
			return Val{}, err
		}
		if t.IsString() {
			return NullString(t), nil
		}
		if !t.Nullable() {
			return Val{}, fmt.Errorf("%w: null for %s", ErrInvalidArg, t)
		}
		return nullVal(t), nil
	}
	switch b := t.Base(); {
	case b == ValTypeBoolean:
		x, err := r.Bool()
		if err != nil {
			return Val{}, err
		}
		return unsignedVal(t, b2u(x)), nil
	case b == ValTypeFloat:
		x, err := r.Float64()
		if err != nil {
			return Val{}, err
		}
		return Val{Type: t, f: float32(x)}, nil
	case t.signed():
		x, err := r.Int()
		if err != nil {
			return Val{}, err
		}
		bits := 8 * t.width()
		if bits < 64 && (x < -(1<<(bits-1)) || x > 1<<(bits-1)-1) {
			return Val{}, fmt.Errorf("%w: %d overflows %s", ErrInvalidArg, x, t)
		}
		return signedVal(t, x), nil
	case t.unsigned():
		x, err := r.Uint()
		if err != nil {
			return Val{}, err
		}
		if w := t.width(); w < 8 && x > 1<<(8*w)-1 {
			return Val{}, fmt.Errorf("%w: %d overflows %s", ErrInvalidArg, x, t)
		}
		return unsignedVal(t, x), nil
	case b == ValTypeCharString || b == ValTypeLongCharString:
		s, err := r.String()
		if err != nil {
			return Val{}, err
		}
		return Val{Type: t, data: []byte(s)}, nil
	case b == ValTypeOctetString || b == ValTypeLongOctetString:
		p, err := r.Bytes()
		if err != nil {
			return Val{}, err
		}
		return Val{Type: t, data: p}, nil
	}
	return Val{}, fmt.Errorf("%w: cannot decode %s", ErrNotSupported, t)
}

// storedVal is the persisted form of a Val.
type storedVal struct {
	Type  ValType `cbor:"1,keyasint"`
	Num   uint64  `cbor:"2,keyasint,omitempty"`
	Float uint32  `cbor:"3,keyasint,omitempty"`
	Data  []byte  `cbor:"4,keyasint,omitempty"`
	Null  bool    `cbor:"5,keyasint,omitempty"`
}

var cborEnc cbor.EncMode

func init() {
	var err error
	cborEnc, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
}

// MarshalCBOR encodes v in its persisted form.
func (v Val) MarshalCBOR() ([]byte, error) {
	return cborEnc.Marshal(storedVal{
		Type:  v.Type,
		Num:   v.num,
		Float: math.Float32bits(v.f),
		Data:  v.data,
		Null:  v.null,
	})
}

// UnmarshalCBOR decodes the persisted form written by MarshalCBOR.
func (v *Val) UnmarshalCBOR(data []byte) error {
	var s storedVal
	if err := cbor.Unmarshal(data, &s); err != nil {
		return err
	}
	*v = Val{
		Type: s.Type,
		num:  s.Num,
		f:    math.Float32frombits(s.Float),
		data: s.Data,
		null: s.Null,
	}
	return nil
}
