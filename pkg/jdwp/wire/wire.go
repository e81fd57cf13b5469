// Package wire implements the primitive encoding used by the Java Debug
// Wire Protocol: big-endian fixed-width integers, strings with a 4-byte
// length prefix, sequences with a 4-byte signed count prefix, and object
// identifiers whose width is negotiated per connection.
package wire

import (
	"encoding/binary"
	"fmt"
)

// DecodeError is returned when a response body is malformed: truncated,
// carrying an unrecognized enumerated tag, or declaring a negative
// sequence count.
type DecodeError struct {
	msg string
}

func (err *DecodeError) Error() string {
	return "wire decode error: " + err.msg
}

func decodeErrorf(format string, args ...interface{}) *DecodeError {
	return &DecodeError{msg: fmt.Sprintf(format, args...)}
}

// NewDecodeError builds a DecodeError. Callers outside this package use
// it to report malformed values they decode themselves, such as closed
// tag enumerations.
func NewDecodeError(format string, args ...interface{}) *DecodeError {
	return decodeErrorf(format, args...)
}

// IDSizes holds the width in bytes of each identifier kind, as negotiated
// with the debuggee immediately after the handshake.
type IDSizes struct {
	Field         int
	Method        int
	Object        int
	ReferenceType int
	Frame         int
}

// DefaultIDSizes returns the widths used before negotiation completes.
// 64-bit JVMs report 8 bytes for every identifier kind.
func DefaultIDSizes() IDSizes {
	return IDSizes{Field: 8, Method: 8, Object: 8, ReferenceType: 8, Frame: 8}
}

// Encoder appends wire-encoded values to a buffer. Identifier widths are
// taken from Sizes.
type Encoder struct {
	Sizes IDSizes
	buf   []byte
}

func NewEncoder(sizes IDSizes) *Encoder {
	return &Encoder{Sizes: sizes}
}

// Bytes returns the encoded buffer.
func (e *Encoder) Bytes() []byte {
	return e.buf
}

func (e *Encoder) Uint8(v uint8) {
	e.buf = append(e.buf, v)
}

func (e *Encoder) Uint16(v uint16) {
	e.buf = append(e.buf, byte(v>>8), byte(v))
}

func (e *Encoder) Uint32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	e.buf = append(e.buf, b[:]...)
}

func (e *Encoder) Int32(v int32) {
	e.Uint32(uint32(v))
}

func (e *Encoder) Uint64(v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	e.buf = append(e.buf, b[:]...)
}

func (e *Encoder) Int64(v int64) {
	e.Uint64(uint64(v))
}

// String appends a UTF-8 string: 4-byte length prefix followed by the raw
// bytes, without a NUL terminator.
func (e *Encoder) String(s string) {
	e.Uint32(uint32(len(s)))
	e.buf = append(e.buf, s...)
}

// ID appends an identifier using the given width. The in-memory
// representation is always a uint64; only the low width bytes travel on
// the wire.
func (e *Encoder) ID(v uint64, width int) {
	for i := width - 1; i >= 0; i-- {
		e.buf = append(e.buf, byte(v>>(uint(i)*8)))
	}
}

// Decoder consumes wire-encoded values from a byte slice. Every read
// consumes exactly the bytes it declares; there is no lookahead and no
// backtracking.
type Decoder struct {
	Sizes IDSizes
	buf   []byte
	off   int
}

func NewDecoder(buf []byte, sizes IDSizes) *Decoder {
	return &Decoder{Sizes: sizes, buf: buf}
}

// Len returns the number of bytes that have not been consumed yet.
func (d *Decoder) Len() int {
	return len(d.buf) - d.off
}

func (d *Decoder) take(n int) ([]byte, error) {
	if n < 0 || d.Len() < n {
		return nil, decodeErrorf("truncated input: need %d bytes, have %d", n, d.Len())
	}
	b := d.buf[d.off : d.off+n]
	d.off += n
	return b, nil
}

func (d *Decoder) Uint8() (uint8, error) {
	b, err := d.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *Decoder) Uint16() (uint16, error) {
	b, err := d.take(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (d *Decoder) Uint32() (uint32, error) {
	b, err := d.take(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (d *Decoder) Int32() (int32, error) {
	v, err := d.Uint32()
	return int32(v), err
}

func (d *Decoder) Uint64() (uint64, error) {
	b, err := d.take(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

func (d *Decoder) Int64() (int64, error) {
	v, err := d.Uint64()
	return int64(v), err
}

// String reads a 4-byte length prefix followed by that many bytes of
// UTF-8 data.
func (d *Decoder) String() (string, error) {
	n, err := d.Uint32()
	if err != nil {
		return "", err
	}
	b, err := d.take(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ID reads an identifier of the given width into a uint64.
func (d *Decoder) ID(width int) (uint64, error) {
	b, err := d.take(width)
	if err != nil {
		return 0, err
	}
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v, nil
}

// Bytes reads n raw bytes.
func (d *Decoder) Bytes(n int) ([]byte, error) {
	return d.take(n)
}
