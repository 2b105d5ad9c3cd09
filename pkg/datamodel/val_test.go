package datamodel

import (
	"bytes"
	"math"
	"testing"

	"github.com/espressif/esp-matter-sub221/pkg/tlv"
	"github.com/fxamacker/cbor/v2"
)

func TestVal_Null(t *testing.T) {
	tests := []struct {
		name string
		val  Val
		null bool
	}{
		{"uint8", Uint8(255), false},
		{"nullable uint8 max", NullableUint8(255), true},
		{"null uint8", NullUint8(), true},
		{"nullable uint8", NullableUint8(254), false},
		{"null int8", NullInt8(), true},
		{"nullable int8 min", NullableInt8(math.MinInt8), true},
		{"nullable int16", NullableInt16(-1), false},
		{"null uint64", NullUint64(), true},
		{"null bool", NullBool(), true},
		{"nullable bool", NullableBool(true), false},
		{"null float", NullFloat(), true},
		{"nullable float", NullableFloat(1.5), false},
		{"null string", NullString(ValTypeCharString), true},
		{"empty string", CharString(""), false},
		{"null enum16", NullEnum16(), true},
		{"null bitmap32", NullBitmap32(), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.val.IsNull(); got != tt.null {
				t.Errorf("IsNull() = %v, want %v", got, tt.null)
			}
		})
	}
}

func TestVal_Equal(t *testing.T) {
	if !Uint8(3).Equal(Uint8(3)) {
		t.Error("Uint8(3) != Uint8(3)")
	}
	if Uint8(3).Equal(Enum8(3)) {
		t.Error("values of different types compare equal")
	}
	if !CharString("a").Equal(CharString("a")) {
		t.Error("equal strings compare unequal")
	}
	if CharString("").Equal(NullString(ValTypeCharString)) {
		t.Error("empty string equals null string")
	}
	if !NullFloat().Equal(NullFloat()) {
		t.Error("null floats compare unequal")
	}
	if !ValCompare(Int16(-5), Int16(-5)) {
		t.Error("ValCompare(-5, -5) = false")
	}
}

func TestVal_String(t *testing.T) {
	tests := []struct {
		val  Val
		want string
	}{
		{Bool(true), "1"},
		{Int16(-12), "-12"},
		{Uint32(4000000000), "4000000000"},
		{NullableUint8(255), "null"},
		{CharString(""), "(empty)"},
		{CharString("lamp"), "lamp"},
		{OctetString([]byte{0xde, 0xad}), "dead"},
		{Float(1.5), "1.500000"},
	}
	for _, tt := range tests {
		if got := tt.val.String(); got != tt.want {
			t.Errorf("%s.String() = %q, want %q", tt.val.Type, got, tt.want)
		}
	}
}

func TestParseVal(t *testing.T) {
	tests := []struct {
		typ     ValType
		in      string
		want    Val
		wantErr bool
	}{
		{ValTypeBoolean, "1", Bool(true), false},
		{ValTypeBoolean, "off", Bool(false), false},
		{ValTypeUint8, "0x10", Uint8(16), false},
		{ValTypeUint8, "256", Val{}, true},
		{ValTypeInt16, "-300", Int16(-300), false},
		{ValTypeNullableUint8, "null", NullUint8(), false},
		{ValTypeUint8, "null", Val{}, true},
		{ValTypeCharString, "hello", CharString("hello"), false},
		{ValTypeBoolean, "maybe", Val{}, true},
		{ValTypeArray, "x", Val{}, true},
	}
	for _, tt := range tests {
		got, err := ParseVal(tt.typ, tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseVal(%s, %q) error = %v, wantErr %v", tt.typ, tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && !got.Equal(tt.want) {
			t.Errorf("ParseVal(%s, %q) = %v, want %v", tt.typ, tt.in, got, tt.want)
		}
	}
}

func TestVal_TLV(t *testing.T) {
	vals := []Val{
		Bool(true),
		NullableUint8(7),
		NullUint16(),
		Int32(-70000),
		Uint64(1 << 40),
		Float(2.25),
		CharString("kitchen"),
		OctetString([]byte{1, 2, 3}),
		Bitmap16(0x8001),
		Enum8(2),
	}
	for _, v := range vals {
		var buf bytes.Buffer
		if err := v.EncodeTLV(tlv.NewWriter(&buf), tlv.ContextTag(2)); err != nil {
			t.Fatalf("EncodeTLV(%s) failed: %v", v.Type, err)
		}
		r := tlv.NewReader(&buf)
		if err := r.Next(); err != nil {
			t.Fatalf("Next() failed: %v", err)
		}
		got, err := DecodeVal(r, v.Type)
		if err != nil {
			t.Fatalf("DecodeVal(%s) failed: %v", v.Type, err)
		}
		if !got.Equal(v) {
			t.Errorf("DecodeVal(%s) = %v, want %v", v.Type, got, v)
		}
	}
}

func TestDecodeVal_Overflow(t *testing.T) {
	var buf bytes.Buffer
	if err := tlv.NewWriter(&buf).PutUint(tlv.Anonymous(), 300); err != nil {
		t.Fatal(err)
	}
	r := tlv.NewReader(&buf)
	if err := r.Next(); err != nil {
		t.Fatal(err)
	}
	if _, err := DecodeVal(r, ValTypeUint8); err == nil {
		t.Error("DecodeVal(300 as uint8) succeeded, want error")
	}
}

func TestDecodeVal_NullForNonNullable(t *testing.T) {
	var buf bytes.Buffer
	if err := tlv.NewWriter(&buf).PutNull(tlv.Anonymous()); err != nil {
		t.Fatal(err)
	}
	r := tlv.NewReader(&buf)
	if err := r.Next(); err != nil {
		t.Fatal(err)
	}
	if _, err := DecodeVal(r, ValTypeUint8); err == nil {
		t.Error("DecodeVal(null as uint8) succeeded, want error")
	}
}

func TestVal_CBOR(t *testing.T) {
	for _, v := range []Val{NullableInt16(-4), NullFloat(), LongCharString("x"), NullString(ValTypeOctetString)} {
		data, err := cbor.Marshal(v)
		if err != nil {
			t.Fatalf("Marshal(%s) failed: %v", v.Type, err)
		}
		var got Val
		if err := cbor.Unmarshal(data, &got); err != nil {
			t.Fatalf("Unmarshal(%s) failed: %v", v.Type, err)
		}
		if !got.Equal(v) {
			t.Errorf("round trip %s = %v, want %v", v.Type, got, v)
		}
	}
}
