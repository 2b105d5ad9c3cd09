package tlv

import "errors"

var (
	// ErrInvalidElementType is returned for control octets outside the known set.
	ErrInvalidElementType = errors.New("tlv: invalid element type")

	// ErrTypeMismatch is returned when a value is read as the wrong type.
	ErrTypeMismatch = errors.New("tlv: type mismatch")

	// ErrNotInContainer is returned when closing or exiting with no open container.
	ErrNotInContainer = errors.New("tlv: not in container")

	// ErrInvalidUTF8 is returned when a UTF-8 string holds invalid sequences.
	ErrInvalidUTF8 = errors.New("tlv: invalid UTF-8 string")

	// ErrNoElement is returned when a value is requested before Next.
	ErrNoElement = errors.New("tlv: no current element")

	// ErrValueAlreadyRead is returned when the same value is consumed twice.
	ErrValueAlreadyRead = errors.New("tlv: value already read")

	// ErrStringTooLong is returned when a string length does not fit in memory limits.
	ErrStringTooLong = errors.New("tlv: string too long")
)
