// Package tlv implements the subset of Matter TLV (Appendix A) used by the
// data model and the OTA image header: integers, booleans, floats, strings,
// null and the three container kinds, with anonymous, context and
// common-profile tags.
package tlv

// ElementType is the lower five bits of a control octet.
type ElementType uint8

const (
	ElementTypeInt8    ElementType = 0x00
	ElementTypeInt16   ElementType = 0x01
	ElementTypeInt32   ElementType = 0x02
	ElementTypeInt64   ElementType = 0x03
	ElementTypeUInt8   ElementType = 0x04
	ElementTypeUInt16  ElementType = 0x05
	ElementTypeUInt32  ElementType = 0x06
	ElementTypeUInt64  ElementType = 0x07
	ElementTypeFalse   ElementType = 0x08
	ElementTypeTrue    ElementType = 0x09
	ElementTypeFloat32 ElementType = 0x0A
	ElementTypeFloat64 ElementType = 0x0B
	ElementTypeUTF8_1  ElementType = 0x0C
	ElementTypeUTF8_2  ElementType = 0x0D
	ElementTypeUTF8_4  ElementType = 0x0E
	ElementTypeUTF8_8  ElementType = 0x0F
	ElementTypeBytes1  ElementType = 0x10
	ElementTypeBytes2  ElementType = 0x11
	ElementTypeBytes4  ElementType = 0x12
	ElementTypeBytes8  ElementType = 0x13
	ElementTypeNull    ElementType = 0x14
	ElementTypeStruct  ElementType = 0x15
	ElementTypeArray   ElementType = 0x16
	ElementTypeList    ElementType = 0x17
	ElementTypeEnd     ElementType = 0x18
)

var elementNames = [...]string{
	"Int8", "Int16", "Int32", "Int64",
	"UInt8", "UInt16", "UInt32", "UInt64",
	"False", "True", "Float32", "Float64",
	"UTF8_1", "UTF8_2", "UTF8_4", "UTF8_8",
	"Bytes1", "Bytes2", "Bytes4", "Bytes8",
	"Null", "Struct", "Array", "List", "EndOfContainer",
}

func (e ElementType) String() string {
	if int(e) < len(elementNames) {
		return elementNames[e]
	}
	return "Unknown"
}

// IsSignedInt reports whether e is Int8..Int64.
func (e ElementType) IsSignedInt() bool { return e <= ElementTypeInt64 }

// IsUnsignedInt reports whether e is UInt8..UInt64.
func (e ElementType) IsUnsignedInt() bool {
	return e >= ElementTypeUInt8 && e <= ElementTypeUInt64
}

// IsInt reports whether e is any integer type.
func (e ElementType) IsInt() bool { return e <= ElementTypeUInt64 }

// IsBool reports whether e is True or False.
func (e ElementType) IsBool() bool { return e == ElementTypeFalse || e == ElementTypeTrue }

// IsFloat reports whether e is Float32 or Float64.
func (e ElementType) IsFloat() bool { return e == ElementTypeFloat32 || e == ElementTypeFloat64 }

// IsUTF8String reports whether e is a UTF-8 string type.
func (e ElementType) IsUTF8String() bool {
	return e >= ElementTypeUTF8_1 && e <= ElementTypeUTF8_8
}

// IsBytes reports whether e is an octet string type.
func (e ElementType) IsBytes() bool {
	return e >= ElementTypeBytes1 && e <= ElementTypeBytes8
}

// IsString reports whether e carries a length-prefixed payload.
func (e ElementType) IsString() bool { return e.IsUTF8String() || e.IsBytes() }

// IsContainer reports whether e opens a structure, array or list.
func (e ElementType) IsContainer() bool {
	return e >= ElementTypeStruct && e <= ElementTypeList
}

// width returns the byte width of the fixed value or of the string length
// field. The two low bits select 1, 2, 4 or 8 bytes for every sized type.
func (e ElementType) width() int {
	switch {
	case e.IsInt(), e.IsString():
		return 1 << (e & 0x03)
	case e == ElementTypeFloat32:
		return 4
	case e == ElementTypeFloat64:
		return 8
	}
	return 0
}

const (
	elementTypeMask = 0x1F
	tagControlShift = 5
)

func controlOctet(e ElementType, tc TagControl) byte {
	return byte(e)&elementTypeMask | byte(tc)<<tagControlShift
}

func splitControlOctet(b byte) (ElementType, TagControl) {
	return ElementType(b & elementTypeMask), TagControl(b >> tagControlShift)
}
