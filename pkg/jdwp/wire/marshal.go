package wire

import (
	"fmt"
	"reflect"
)

// Marshaler is implemented by types that control their own wire form,
// such as identifiers with a negotiated width.
type Marshaler interface {
	MarshalWire(e *Encoder) error
}

// Unmarshaler is implemented by types that control their own wire form.
// Closed tag enumerations implement it to reject unmapped byte values.
type Unmarshaler interface {
	UnmarshalWire(d *Decoder) error
}

var marshalerType = reflect.TypeOf((*Marshaler)(nil)).Elem()

// Marshal appends the wire encoding of v to e.
//
// The encoding of a struct is the encoding of its exported fields in
// declared order; a slice encodes as a 4-byte signed count followed by
// its elements. Together with Unmarshal this is what turns a command
// declaration (argument list and reply struct) into its serialized form:
// the struct declaration is the single source of truth for field order on
// the wire.
func Marshal(e *Encoder, v interface{}) error {
	return marshalValue(e, reflect.ValueOf(v))
}

func marshalValue(e *Encoder, v reflect.Value) error {
	if v.Type().Implements(marshalerType) {
		return v.Interface().(Marshaler).MarshalWire(e)
	}
	switch v.Kind() {
	case reflect.Uint8:
		e.Uint8(uint8(v.Uint()))
	case reflect.Uint16:
		e.Uint16(uint16(v.Uint()))
	case reflect.Uint32:
		e.Uint32(uint32(v.Uint()))
	case reflect.Int32:
		e.Int32(int32(v.Int()))
	case reflect.Uint64:
		e.Uint64(v.Uint())
	case reflect.Int64:
		e.Int64(v.Int())
	case reflect.String:
		e.String(v.String())
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			if err := marshalValue(e, v.Field(i)); err != nil {
				return err
			}
		}
	case reflect.Slice:
		e.Int32(int32(v.Len()))
		for i := 0; i < v.Len(); i++ {
			if err := marshalValue(e, v.Index(i)); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("wire: cannot marshal %s", v.Type())
	}
	return nil
}

// Unmarshal decodes the wire encoding of *v from d. v must be a non-nil
// pointer. Struct fields are decoded in declared order; a slice decodes
// its 4-byte signed count first, and a negative count is a DecodeError,
// never an empty sequence.
func Unmarshal(d *Decoder, v interface{}) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return fmt.Errorf("wire: cannot unmarshal into %T", v)
	}
	return unmarshalValue(d, rv.Elem())
}

func unmarshalValue(d *Decoder, v reflect.Value) error {
	if v.CanAddr() {
		if u, ok := v.Addr().Interface().(Unmarshaler); ok {
			return u.UnmarshalWire(d)
		}
	}
	switch v.Kind() {
	case reflect.Uint8:
		x, err := d.Uint8()
		if err != nil {
			return err
		}
		v.SetUint(uint64(x))
	case reflect.Uint16:
		x, err := d.Uint16()
		if err != nil {
			return err
		}
		v.SetUint(uint64(x))
	case reflect.Uint32:
		x, err := d.Uint32()
		if err != nil {
			return err
		}
		v.SetUint(uint64(x))
	case reflect.Int32:
		x, err := d.Int32()
		if err != nil {
			return err
		}
		v.SetInt(int64(x))
	case reflect.Uint64:
		x, err := d.Uint64()
		if err != nil {
			return err
		}
		v.SetUint(x)
	case reflect.Int64:
		x, err := d.Int64()
		if err != nil {
			return err
		}
		v.SetInt(x)
	case reflect.String:
		s, err := d.String()
		if err != nil {
			return err
		}
		v.SetString(s)
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			if err := unmarshalValue(d, v.Field(i)); err != nil {
				return err
			}
		}
	case reflect.Slice:
		n, err := d.Int32()
		if err != nil {
			return err
		}
		if n < 0 {
			return decodeErrorf("negative sequence count %d", n)
		}
		// Every element consumes at least one byte, so a count larger
		// than the remaining input is malformed. Checked before the
		// allocation so a bad count cannot size it.
		if int(n) > d.Len() {
			return decodeErrorf("sequence count %d exceeds %d remaining bytes", n, d.Len())
		}
		v.Set(reflect.MakeSlice(v.Type(), int(n), int(n)))
		for i := 0; i < int(n); i++ {
			if err := unmarshalValue(d, v.Index(i)); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("wire: cannot unmarshal %s", v.Type())
	}
	return nil
}
