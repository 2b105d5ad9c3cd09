package datamodel

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ValType is the type tag of an attribute value.
type ValType uint8

// NullableBase is OR-ed into a ValType to form its nullable variant.
const NullableBase ValType = 0x80

// Value types.
const (
	ValTypeInvalid ValType = iota
	ValTypeBoolean
	ValTypeInteger
	ValTypeFloat
	ValTypeArray
	ValTypeCharString
	ValTypeOctetString
	ValTypeInt8
	ValTypeUint8
	ValTypeInt16
	ValTypeUint16
	ValTypeInt32
	ValTypeUint32
	ValTypeInt64
	ValTypeUint64
	ValTypeEnum8
	ValTypeBitmap8
	ValTypeBitmap16
	ValTypeBitmap32
	ValTypeEnum16
	ValTypeLongCharString
	ValTypeLongOctetString
)

// Nullable value types.
const (
	ValTypeNullableBoolean  = ValTypeBoolean | NullableBase
	ValTypeNullableInteger  = ValTypeInteger | NullableBase
	ValTypeNullableFloat    = ValTypeFloat | NullableBase
	ValTypeNullableInt8     = ValTypeInt8 | NullableBase
	ValTypeNullableUint8    = ValTypeUint8 | NullableBase
	ValTypeNullableInt16    = ValTypeInt16 | NullableBase
	ValTypeNullableUint16   = ValTypeUint16 | NullableBase
	ValTypeNullableInt32    = ValTypeInt32 | NullableBase
	ValTypeNullableUint32   = ValTypeUint32 | NullableBase
	ValTypeNullableInt64    = ValTypeInt64 | NullableBase
	ValTypeNullableUint64   = ValTypeUint64 | NullableBase
	ValTypeNullableEnum8    = ValTypeEnum8 | NullableBase
	ValTypeNullableBitmap8  = ValTypeBitmap8 | NullableBase
	ValTypeNullableBitmap16 = ValTypeBitmap16 | NullableBase
	ValTypeNullableBitmap32 = ValTypeBitmap32 | NullableBase
	ValTypeNullableEnum16   = ValTypeEnum16 | NullableBase
)

var valTypeNames = [...]string{
	ValTypeInvalid:         "invalid",
	ValTypeBoolean:         "boolean",
	ValTypeInteger:         "integer",
	ValTypeFloat:           "float",
	ValTypeArray:           "array",
	ValTypeCharString:      "char_string",
	ValTypeOctetString:     "octet_string",
	ValTypeInt8:            "int8",
	ValTypeUint8:           "uint8",
	ValTypeInt16:           "int16",
	ValTypeUint16:          "uint16",
	ValTypeInt32:           "int32",
	ValTypeUint32:          "uint32",
	ValTypeInt64:           "int64",
	ValTypeUint64:          "uint64",
	ValTypeEnum8:           "enum8",
	ValTypeBitmap8:         "bitmap8",
	ValTypeBitmap16:        "bitmap16",
	ValTypeBitmap32:        "bitmap32",
	ValTypeEnum16:          "enum16",
	ValTypeLongCharString:  "long_char_string",
	ValTypeLongOctetString: "long_octet_string",
}

func (t ValType) String() string {
	b := t.Base()
	if int(b) >= len(valTypeNames) {
		return fmt.Sprintf("ValType(0x%02x)", uint8(t))
	}
	if t.Nullable() {
		return "nullable_" + valTypeNames[b]
	}
	return valTypeNames[b]
}

// Base strips the nullable bit.
func (t ValType) Base() ValType { return t &^ NullableBase }

// Nullable reports whether t is a nullable variant.
func (t ValType) Nullable() bool { return t&NullableBase != 0 }

// IsString reports whether t is one of the four string types.
func (t ValType) IsString() bool {
	switch t.Base() {
	case ValTypeCharString, ValTypeOctetString, ValTypeLongCharString, ValTypeLongOctetString:
		return true
	}
	return false
}

// IsLongString reports whether t carries a 2-byte length.
func (t ValType) IsLongString() bool {
	b := t.Base()
	return b == ValTypeLongCharString || b == ValTypeLongOctetString
}

func (t ValType) signed() bool {
	switch t.Base() {
	case ValTypeInteger, ValTypeInt8, ValTypeInt16, ValTypeInt32, ValTypeInt64:
		return true
	}
	return false
}

func (t ValType) unsigned() bool {
	switch t.Base() {
	case ValTypeUint8, ValTypeUint16, ValTypeUint32, ValTypeUint64,
		ValTypeEnum8, ValTypeEnum16, ValTypeBitmap8, ValTypeBitmap16, ValTypeBitmap32:
		return true
	}
	return false
}

// width is the storage size in bytes of integer types.
func (t ValType) width() int {
	switch t.Base() {
	case ValTypeBoolean, ValTypeInt8, ValTypeUint8, ValTypeEnum8, ValTypeBitmap8:
		return 1
	case ValTypeInt16, ValTypeUint16, ValTypeEnum16, ValTypeBitmap16:
		return 2
	case ValTypeInteger, ValTypeFloat, ValTypeInt32, ValTypeUint32, ValTypeBitmap32:
		return 4
	case ValTypeInt64, ValTypeUint64:
		return 8
	}
	return 0
}

// nullLength is the string size that encodes a null string.
func (t ValType) nullLength() int {
	if t.IsLongString() {
		return 0xFFFF
	}
	return 0xFF
}

// nullRaw returns the reserved null pattern of an integer type. Signed
// values are stored sign extended.
func (t ValType) nullRaw() uint64 {
	w := t.width()
	switch {
	case t.Base() == ValTypeBoolean:
		return 0xFF
	case t.signed():
		return uint64(int64(-1) << (8*w - 1))
	case w == 8:
		return math.MaxUint64
	default:
		return 1<<(8*w) - 1
	}
}

// Val is a tagged attribute value.
type Val struct {
	Type ValType

	num  uint64
	f    float32
	data []byte
	null bool
}

func unsignedVal(t ValType, v uint64) Val { return Val{Type: t, num: v} }
func signedVal(t ValType, v int64) Val { return Val{Type: t, num: uint64(v)} }
func nullVal(t ValType) Val {
	if t.Base() == ValTypeFloat {
		return Val{Type: t, f: float32(math.NaN())}
	}
	return Val{Type: t, num: t.nullRaw()}
}

func b2u(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

// Invalid returns a value of ValTypeInvalid.
func Invalid() Val { return Val{} }

func Bool(b bool) Val { return unsignedVal(ValTypeBoolean, b2u(b)) }
func NullableBool(b bool) Val { return unsignedVal(ValTypeNullableBoolean, b2u(b)) }
func NullBool() Val { return nullVal(ValTypeNullableBoolean) }

// Int is the 32-bit ValTypeInteger.
func Int(v int32) Val { return signedVal(ValTypeInteger, int64(v)) }
func NullableInt(v int32) Val { return signedVal(ValTypeNullableInteger, int64(v)) }
func NullInt() Val { return nullVal(ValTypeNullableInteger) }

func Float(v float32) Val { return Val{Type: ValTypeFloat, f: v} }
func NullableFloat(v float32) Val { return Val{Type: ValTypeNullableFloat, f: v} }
func NullFloat() Val { return nullVal(ValTypeNullableFloat) }

func Int8(v int8) Val { return signedVal(ValTypeInt8, int64(v)) }
func NullableInt8(v int8) Val { return signedVal(ValTypeNullableInt8, int64(v)) }
func NullInt8() Val { return nullVal(ValTypeNullableInt8) }
func Int16(v int16) Val { return signedVal(ValTypeInt16, int64(v)) }
func NullableInt16(v int16) Val { return signedVal(ValTypeNullableInt16, int64(v)) }
func NullInt16() Val { return nullVal(ValTypeNullableInt16) }
func Int32(v int32) Val { return signedVal(ValTypeInt32, int64(v)) }
func NullableInt32(v int32) Val { return signedVal(ValTypeNullableInt32, int64(v)) }
func NullInt32() Val { return nullVal(ValTypeNullableInt32) }
func Int64(v int64) Val { return signedVal(ValTypeInt64, v) }
func NullableInt64(v int64) Val { return signedVal(ValTypeNullableInt64, v) }
func NullInt64() Val { return nullVal(ValTypeNullableInt64) }

func Uint8(v uint8) Val { return unsignedVal(ValTypeUint8, uint64(v)) }
func NullableUint8(v uint8) Val { return unsignedVal(ValTypeNullableUint8, uint64(v)) }
func NullUint8() Val { return nullVal(ValTypeNullableUint8) }
func Uint16(v uint16) Val { return unsignedVal(ValTypeUint16, uint64(v)) }
func NullableUint16(v uint16) Val { return unsignedVal(ValTypeNullableUint16, uint64(v)) }
func NullUint16() Val { return nullVal(ValTypeNullableUint16) }
func Uint32(v uint32) Val { return unsignedVal(ValTypeUint32, uint64(v)) }
func NullableUint32(v uint32) Val { return unsignedVal(ValTypeNullableUint32, uint64(v)) }
func NullUint32() Val { return nullVal(ValTypeNullableUint32) }
func Uint64(v uint64) Val { return unsignedVal(ValTypeUint64, v) }
func NullableUint64(v uint64) Val { return unsignedVal(ValTypeNullableUint64, v) }
func NullUint64() Val { return nullVal(ValTypeNullableUint64) }
func Enum8(v uint8) Val { return unsignedVal(ValTypeEnum8, uint64(v)) }
func NullableEnum8(v uint8) Val { return unsignedVal(ValTypeNullableEnum8, uint64(v)) }
func NullEnum8() Val { return nullVal(ValTypeNullableEnum8) }
func Enum16(v uint16) Val { return unsignedVal(ValTypeEnum16, uint64(v)) }
func NullableEnum16(v uint16) Val { return unsignedVal(ValTypeNullableEnum16, uint64(v)) }
func NullEnum16() Val { return nullVal(ValTypeNullableEnum16) }
func Bitmap8(v uint8) Val { return unsignedVal(ValTypeBitmap8, uint64(v)) }
func NullableBitmap8(v uint8) Val { return unsignedVal(ValTypeNullableBitmap8, uint64(v)) }
func NullBitmap8() Val { return nullVal(ValTypeNullableBitmap8) }
func Bitmap16(v uint16) Val { return unsignedVal(ValTypeBitmap16, uint64(v)) }
func NullableBitmap16(v uint16) Val { return unsignedVal(ValTypeNullableBitmap16, uint64(v)) }
func NullBitmap16() Val { return nullVal(ValTypeNullableBitmap16) }
func Bitmap32(v uint32) Val { return unsignedVal(ValTypeBitmap32, uint64(v)) }
func NullableBitmap32(v uint32) Val { return unsignedVal(ValTypeNullableBitmap32, uint64(v)) }
func NullBitmap32() Val { return nullVal(ValTypeNullableBitmap32) }

func CharString(s string) Val { return Val{Type: ValTypeCharString, data: []byte(s)} }
func LongCharString(s string) Val { return Val{Type: ValTypeLongCharString, data: []byte(s)} }
func OctetString(b []byte) Val { return Val{Type: ValTypeOctetString, data: clone(b)} }
func LongOctetString(b []byte) Val { return Val{Type: ValTypeLongOctetString, data: clone(b)} }

// NullString returns the null value of string type t.
func NullString(t ValType) Val { return Val{Type: t, null: true} }

// Array wraps raw array bytes. Arrays are backed by the stack and only
// their type is tracked here.
func Array(b []byte) Val { return Val{Type: ValTypeArray, data: clone(b)} }

// Zero returns the zero value of type t.
func Zero(t ValType) Val { return Val{Type: t} }

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}

// IsNull reports whether v holds its type's null representation.
func (v Val) IsNull() bool {
	if v.Type.IsString() {
		return v.null
	}
	if !v.Type.Nullable() {
		return false
	}
	if v.Type.Base() == ValTypeFloat {
		return math.IsNaN(float64(v.f))
	}
	return v.num == v.Type.nullRaw()
}

// IsNull reports whether v holds its type's null representation.
func IsNull(v Val) bool { return v.IsNull() }

func (v Val) Bool() bool { return v.num&0xFF == 1 }

// Int returns the value of a signed integer type.
func (v Val) Int() int64 { return int64(v.num) }

// Uint returns the value of an unsigned, enum or bitmap type.
func (v Val) Uint() uint64 { return v.num }

func (v Val) Float() float32 { return v.f }

// Str returns string data as a Go string.
func (v Val) Str() string { return string(v.data) }

// Bytes returns a copy of the string or array data.
func (v Val) Bytes() []byte { return clone(v.data) }

// Size is the string length, or the null length for a null string.
func (v Val) Size() int {
	if v.null {
		return v.Type.nullLength()
	}
	return len(v.data)
}

// Equal reports whether both values have the same type and content.
func (v Val) Equal(o Val) bool {
	if v.Type != o.Type {
		return false
	}
	switch {
	case v.Type.IsString() || v.Type == ValTypeArray:
		return v.null == o.null && string(v.data) == string(o.data)
	case v.Type.Base() == ValTypeFloat:
		if v.IsNull() || o.IsNull() {
			return v.IsNull() == o.IsNull()
		}
		return v.f == o.f
	default:
		return v.num == o.num
	}
}

// ValCompare reports whether a and b are equal.
func ValCompare(a, b Val) bool { return a.Equal(b) }

// compare orders two numeric values of the same base type.
func (v Val) compare(o Val) int {
	switch {
	case v.Type.Base() == ValTypeFloat:
		switch {
		case v.f < o.f:
			return -1
		case v.f > o.f:
			return 1
		}
		return 0
	case v.Type.signed():
		switch {
		case v.Int() < o.Int():
			return -1
		case v.Int() > o.Int():
			return 1
		}
		return 0
	default:
		switch {
		case v.num < o.num:
			return -1
		case v.num > o.num:
			return 1
		}
		return 0
	}
}

// boundable reports whether bounds apply to t.
func boundable(t ValType) bool {
	return t.signed() || t.unsigned() || t.Base() == ValTypeFloat
}

func (v Val) String() string {
	if v.IsNull() {
		return "null"
	}
	switch b := v.Type.Base(); {
	case b == ValTypeBoolean:
		return strconv.FormatUint(v.num&0xFF, 10)
	case b == ValTypeFloat:
		return strconv.FormatFloat(float64(v.f), 'f', 6, 32)
	case v.Type.signed():
		return strconv.FormatInt(v.Int(), 10)
	case v.Type.unsigned():
		return strconv.FormatUint(v.num, 10)
	case b == ValTypeCharString || b == ValTypeLongCharString:
		if len(v.data) == 0 {
			return "(empty)"
		}
		return string(v.data)
	case b == ValTypeOctetString || b == ValTypeLongOctetString:
		if len(v.data) == 0 {
			return "(empty)"
		}
		return fmt.Sprintf("%x", v.data)
	case b == ValTypeArray:
		return fmt.Sprintf("array(%d)", len(v.data))
	}
	return fmt.Sprintf("<invalid type: %d>", uint8(v.Type))
}

// ParseVal parses s as a value of type t. Nullable types accept "null".
// Integers accept any strconv base prefix.
func ParseVal(t ValType, s string) (Val, error) {
	if strings.EqualFold(s, "null") {
		switch {
		case t.IsString():
			return NullString(t), nil
		case t.Nullable():
			return nullVal(t), nil
		}
		return Val{}, fmt.Errorf("%w: %s is not nullable", ErrInvalidArg, t)
	}
	switch b := t.Base(); {
	case b == ValTypeBoolean:
		switch strings.ToLower(s) {
		case "1", "true", "on":
			return unsignedVal(t, 1), nil
		case "0", "false", "off":
			return unsignedVal(t, 0), nil
		}
		return Val{}, fmt.Errorf("%w: bad boolean %q", ErrInvalidArg, s)
	case b == ValTypeFloat:
		f, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return Val{}, fmt.Errorf("%w: %v", ErrInvalidArg, err)
		}
		return Val{Type: t, f: float32(f)}, nil
	case t.signed():
		n, err := strconv.ParseInt(s, 0, 8*t.width())
		if err != nil {
			return Val{}, fmt.Errorf("%w: %v", ErrInvalidArg, err)
		}
		return signedVal(t, n), nil
	case t.unsigned():
		n, err := strconv.ParseUint(s, 0, 8*t.width())
		if err != nil {
			return Val{}, fmt.Errorf("%w: %v", ErrInvalidArg, err)
		}
		return unsignedVal(t, n), nil
	case t.IsString():
		return Val{Type: t, data: []byte(s)}, nil
	}
	return Val{}, fmt.Errorf("%w: cannot parse %s", ErrNotSupported, t)
}
