package tlv

// TagControl is the upper three bits of a control octet.
type TagControl uint8

const (
	TagControlAnonymous      TagControl = 0
	TagControlContext        TagControl = 1
	TagControlCommonProfile2 TagControl = 2
	TagControlCommonProfile4 TagControl = 3
	TagControlImplicit2      TagControl = 4
	TagControlImplicit4      TagControl = 5
	TagControlFullyQual6     TagControl = 6
	TagControlFullyQual8     TagControl = 7
)

var tagSizes = [...]int{0, 1, 2, 4, 2, 4, 6, 8}

// Size returns the number of tag octets following the control octet.
func (tc TagControl) Size() int { return tagSizes[tc&0x07] }

// Tag identifies an element within its container.
type Tag struct {
	control TagControl
	vendor  uint16
	profile uint16
	number  uint32
}

// Anonymous returns the tag used for top-level elements and array members.
func Anonymous() Tag { return Tag{} }

// ContextTag returns a context-specific tag (0-255), the form used for
// structure fields.
func ContextTag(n uint8) Tag {
	return Tag{control: TagControlContext, number: uint32(n)}
}

// CommonProfileTag returns a Matter common-profile tag.
func CommonProfileTag(n uint32) Tag {
	if n > 0xFFFF {
		return Tag{control: TagControlCommonProfile4, number: n}
	}
	return Tag{control: TagControlCommonProfile2, number: n}
}

// Control returns the tag form.
func (t Tag) Control() TagControl { return t.control }

// IsAnonymous reports whether t carries no tag number.
func (t Tag) IsAnonymous() bool { return t.control == TagControlAnonymous }

// IsContext reports whether t is context-specific.
func (t Tag) IsContext() bool { return t.control == TagControlContext }

// TagNumber returns the tag number. Zero for anonymous tags.
func (t Tag) TagNumber() uint32 { return t.number }

// appendTo appends the little-endian tag octets to b.
func (t Tag) appendTo(b []byte) []byte {
	switch t.control {
	case TagControlContext:
		return append(b, byte(t.number))
	case TagControlCommonProfile2, TagControlImplicit2:
		return appendLE(b, uint64(t.number), 2)
	case TagControlCommonProfile4, TagControlImplicit4:
		return appendLE(b, uint64(t.number), 4)
	case TagControlFullyQual6:
		b = appendLE(b, uint64(t.vendor), 2)
		b = appendLE(b, uint64(t.profile), 2)
		return appendLE(b, uint64(t.number), 2)
	case TagControlFullyQual8:
		b = appendLE(b, uint64(t.vendor), 2)
		b = appendLE(b, uint64(t.profile), 2)
		return appendLE(b, uint64(t.number), 4)
	}
	return b
}

func parseTag(tc TagControl, b []byte) Tag {
	t := Tag{control: tc}
	switch tc {
	case TagControlContext:
		t.number = uint32(b[0])
	case TagControlCommonProfile2, TagControlImplicit2, TagControlCommonProfile4, TagControlImplicit4:
		t.number = uint32(readLE(b))
	case TagControlFullyQual6, TagControlFullyQual8:
		t.vendor = uint16(readLE(b[0:2]))
		t.profile = uint16(readLE(b[2:4]))
		t.number = uint32(readLE(b[4:]))
	}
	return t
}

func appendLE(b []byte, v uint64, n int) []byte {
	for i := 0; i < n; i++ {
		b = append(b, byte(v>>(8*i)))
	}
	return b
}

func readLE(b []byte) uint64 {
	var v uint64
	for i := len(b) - 1; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}
