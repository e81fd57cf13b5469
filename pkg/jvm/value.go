package jvm

import "fmt"

// Kind identifies which variant of a Value is populated.
type Kind uint8

const (
	Invalid Kind = iota
	Boolean
	Char
	Float
	Double
	Byte
	Short
	Int
	Long
	Object
	Array
)

func (k Kind) String() string {
	switch k {
	case Boolean:
		return "boolean"
	case Char:
		return "char"
	case Float:
		return "float"
	case Double:
		return "double"
	case Byte:
		return "byte"
	case Short:
		return "short"
	case Int:
		return "int"
	case Long:
		return "long"
	case Object:
		return "object"
	case Array:
		return "array"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Value is a tagged union over the JVM primitive kinds plus object and
// array references. Backends populate the kinds they support; accessors
// report whether the requested variant is the one held.
type Value struct {
	kind Kind
	n    int64
	f    float64
	id   uint64
}

func BooleanValue(v bool) Value {
	n := int64(0)
	if v {
		n = 1
	}
	return Value{kind: Boolean, n: n}
}

func CharValue(v uint16) Value   { return Value{kind: Char, n: int64(v)} }
func ByteValue(v int8) Value     { return Value{kind: Byte, n: int64(v)} }
func ShortValue(v int16) Value   { return Value{kind: Short, n: int64(v)} }
func IntValue(v int32) Value     { return Value{kind: Int, n: int64(v)} }
func LongValue(v int64) Value    { return Value{kind: Long, n: v} }
func FloatValue(v float32) Value { return Value{kind: Float, f: float64(v)} }
func DoubleValue(v float64) Value {
	return Value{kind: Double, f: v}
}
func ObjectValue(id uint64) Value { return Value{kind: Object, id: id} }
func ArrayValue(id uint64) Value  { return Value{kind: Array, id: id} }

func (v Value) Kind() Kind { return v.kind }

func (v Value) AsBoolean() (bool, bool)  { return v.n != 0, v.kind == Boolean }
func (v Value) AsChar() (uint16, bool)   { return uint16(v.n), v.kind == Char }
func (v Value) AsByte() (int8, bool)     { return int8(v.n), v.kind == Byte }
func (v Value) AsShort() (int16, bool)   { return int16(v.n), v.kind == Short }
func (v Value) AsInt() (int32, bool)     { return int32(v.n), v.kind == Int }
func (v Value) AsLong() (int64, bool)    { return v.n, v.kind == Long }
func (v Value) AsFloat() (float32, bool) { return float32(v.f), v.kind == Float }
func (v Value) AsDouble() (float64, bool) {
	return v.f, v.kind == Double
}

// AsObjectID returns the referenced object's identifier for object and
// array values.
func (v Value) AsObjectID() (uint64, bool) {
	return v.id, v.kind == Object || v.kind == Array
}

func (v Value) String() string {
	switch v.kind {
	case Boolean:
		if v.n != 0 {
			return "true"
		}
		return "false"
	case Char:
		return fmt.Sprintf("%q", rune(v.n))
	case Byte, Short, Int, Long:
		return fmt.Sprintf("%d", v.n)
	case Float, Double:
		return fmt.Sprintf("%g", v.f)
	case Object:
		if v.id == 0 {
			return "null"
		}
		return fmt.Sprintf("object@%#x", v.id)
	case Array:
		return fmt.Sprintf("array@%#x", v.id)
	}
	return "<invalid>"
}
