package jdwp

import (
	"github.com/jgallag88/libjdb/pkg/jdwp/wire"
)

// Identifiers handed out by the debuggee are opaque unsigned integers.
// Their width on the wire is negotiated per connection; in memory they
// are always held in a uint64, which is wide enough for any negotiated
// width. Method and field identifiers are only unique within their
// declaring reference type, not globally. Identifiers are meaningful only
// on the connection that produced them; reusing one across connections is
// not checked and has undefined results.
type (
	ObjectID        uint64
	ThreadID        uint64
	ReferenceTypeID uint64
	MethodID        uint64
	FieldID         uint64
	FrameID         uint64
)

func (id ObjectID) MarshalWire(e *wire.Encoder) error {
	e.ID(uint64(id), e.Sizes.Object)
	return nil
}

func (id *ObjectID) UnmarshalWire(d *wire.Decoder) error {
	v, err := d.ID(d.Sizes.Object)
	*id = ObjectID(v)
	return err
}

func (id ThreadID) MarshalWire(e *wire.Encoder) error {
	e.ID(uint64(id), e.Sizes.Object)
	return nil
}

func (id *ThreadID) UnmarshalWire(d *wire.Decoder) error {
	v, err := d.ID(d.Sizes.Object)
	*id = ThreadID(v)
	return err
}

func (id ReferenceTypeID) MarshalWire(e *wire.Encoder) error {
	e.ID(uint64(id), e.Sizes.ReferenceType)
	return nil
}

func (id *ReferenceTypeID) UnmarshalWire(d *wire.Decoder) error {
	v, err := d.ID(d.Sizes.ReferenceType)
	*id = ReferenceTypeID(v)
	return err
}

func (id MethodID) MarshalWire(e *wire.Encoder) error {
	e.ID(uint64(id), e.Sizes.Method)
	return nil
}

func (id *MethodID) UnmarshalWire(d *wire.Decoder) error {
	v, err := d.ID(d.Sizes.Method)
	*id = MethodID(v)
	return err
}

func (id FieldID) MarshalWire(e *wire.Encoder) error {
	e.ID(uint64(id), e.Sizes.Field)
	return nil
}

func (id *FieldID) UnmarshalWire(d *wire.Decoder) error {
	v, err := d.ID(d.Sizes.Field)
	*id = FieldID(v)
	return err
}

func (id FrameID) MarshalWire(e *wire.Encoder) error {
	e.ID(uint64(id), e.Sizes.Frame)
	return nil
}

func (id *FrameID) UnmarshalWire(d *wire.Decoder) error {
	v, err := d.ID(d.Sizes.Frame)
	*id = FrameID(v)
	return err
}

// TypeTag describes the kind of a reference type.
type TypeTag uint8

const (
	TagClass     TypeTag = 1
	TagInterface TypeTag = 2
	TagArray     TypeTag = 3
)

func (t TypeTag) String() string {
	switch t {
	case TagClass:
		return "class"
	case TagInterface:
		return "interface"
	case TagArray:
		return "array"
	}
	return "unknown"
}

// UnmarshalWire decodes a type tag byte. The mapping is closed: a byte
// outside the three defined values is a decode error, not a default.
func (t *TypeTag) UnmarshalWire(d *wire.Decoder) error {
	v, err := d.Uint8()
	if err != nil {
		return err
	}
	switch TypeTag(v) {
	case TagClass, TagInterface, TagArray:
		*t = TypeTag(v)
		return nil
	}
	return wire.NewDecodeError("%d is not a valid type tag", v)
}

// Location identifies a point in executing code: a method in a reference
// type plus a byte-code index within the method.
type Location struct {
	Tag    TypeTag
	Class  ReferenceTypeID
	Method MethodID
	Index  uint64
}
