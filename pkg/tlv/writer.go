package tlv

import (
	"io"
	"math"
	"unicode/utf8"
)

// Writer encodes TLV elements to an io.Writer.
type Writer struct {
	w       io.Writer
	scratch []byte
	depth   int
}

// NewWriter creates a Writer that writes to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w, scratch: make([]byte, 0, 16)}
}

// emit writes the control octet, the tag and up to eight value octets.
func (w *Writer) emit(e ElementType, tag Tag, v uint64, n int) error {
	b := append(w.scratch[:0], controlOctet(e, tag.control))
	b = tag.appendTo(b)
	b = appendLE(b, v, n)
	w.scratch = b
	_, err := w.w.Write(b)
	return err
}

// PutInt writes v in the narrowest signed encoding that holds it.
func (w *Writer) PutInt(tag Tag, v int64) error {
	switch {
	case v >= math.MinInt8 && v <= math.MaxInt8:
		return w.emit(ElementTypeInt8, tag, uint64(v), 1)
	case v >= math.MinInt16 && v <= math.MaxInt16:
		return w.emit(ElementTypeInt16, tag, uint64(v), 2)
	case v >= math.MinInt32 && v <= math.MaxInt32:
		return w.emit(ElementTypeInt32, tag, uint64(v), 4)
	}
	return w.emit(ElementTypeInt64, tag, uint64(v), 8)
}

// PutUint writes v in the narrowest unsigned encoding that holds it.
func (w *Writer) PutUint(tag Tag, v uint64) error {
	switch {
	case v <= math.MaxUint8:
		return w.emit(ElementTypeUInt8, tag, v, 1)
	case v <= math.MaxUint16:
		return w.emit(ElementTypeUInt16, tag, v, 2)
	case v <= math.MaxUint32:
		return w.emit(ElementTypeUInt32, tag, v, 4)
	}
	return w.emit(ElementTypeUInt64, tag, v, 8)
}

// PutBool writes a boolean.
func (w *Writer) PutBool(tag Tag, v bool) error {
	if v {
		return w.emit(ElementTypeTrue, tag, 0, 0)
	}
	return w.emit(ElementTypeFalse, tag, 0, 0)
}

// PutFloat32 writes a single precision float.
func (w *Writer) PutFloat32(tag Tag, v float32) error {
	return w.emit(ElementTypeFloat32, tag, uint64(math.Float32bits(v)), 4)
}

// PutFloat64 writes a double precision float.
func (w *Writer) PutFloat64(tag Tag, v float64) error {
	return w.emit(ElementTypeFloat64, tag, math.Float64bits(v), 8)
}

// PutString writes a UTF-8 string.
func (w *Writer) PutString(tag Tag, v string) error {
	if !utf8.ValidString(v) {
		return ErrInvalidUTF8
	}
	return w.putSized(ElementTypeUTF8_1, tag, []byte(v))
}

// PutBytes writes an octet string.
func (w *Writer) PutBytes(tag Tag, v []byte) error {
	return w.putSized(ElementTypeBytes1, tag, v)
}

func (w *Writer) putSized(base ElementType, tag Tag, data []byte) error {
	n := uint64(len(data))
	var e ElementType
	switch {
	case n <= math.MaxUint8:
		e = base
	case n <= math.MaxUint16:
		e = base + 1
	case n <= math.MaxUint32:
		e = base + 2
	default:
		e = base + 3
	}
	if err := w.emit(e, tag, n, e.width()); err != nil {
		return err
	}
	_, err := w.w.Write(data)
	return err
}

// PutNull writes a null.
func (w *Writer) PutNull(tag Tag) error {
	return w.emit(ElementTypeNull, tag, 0, 0)
}

// StartStructure opens a structure.
func (w *Writer) StartStructure(tag Tag) error { return w.open(ElementTypeStruct, tag) }

// StartArray opens an array.
func (w *Writer) StartArray(tag Tag) error { return w.open(ElementTypeArray, tag) }

// StartList opens a list.
func (w *Writer) StartList(tag Tag) error { return w.open(ElementTypeList, tag) }

func (w *Writer) open(e ElementType, tag Tag) error {
	if err := w.emit(e, tag, 0, 0); err != nil {
		return err
	}
	w.depth++
	return nil
}

// EndContainer closes the innermost open container.
func (w *Writer) EndContainer() error {
	if w.depth == 0 {
		return ErrNotInContainer
	}
	w.depth--
	return w.emit(ElementTypeEnd, Anonymous(), 0, 0)
}

// ContainerDepth returns the number of open containers.
func (w *Writer) ContainerDepth() int { return w.depth }
