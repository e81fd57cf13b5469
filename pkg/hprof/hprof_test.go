package hprof

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jgallag88/libjdb/pkg/jvm"
)

// dumpBuilder assembles a syntactically valid hprof file in memory.
type dumpBuilder struct {
	buf    bytes.Buffer
	idSize int
}

func newDumpBuilder() *dumpBuilder {
	b := &dumpBuilder{idSize: 8}
	b.buf.WriteString("JAVA PROFILE 1.0.2")
	b.buf.WriteByte(0)
	b.u32(uint32(b.idSize))
	b.u32(0) // timestamp high word
	b.u32(0) // timestamp low word
	return b
}

func (b *dumpBuilder) u8(v uint8)   { b.buf.WriteByte(v) }
func (b *dumpBuilder) u16(v uint16) { binary.Write(&b.buf, binary.BigEndian, v) }
func (b *dumpBuilder) u32(v uint32) { binary.Write(&b.buf, binary.BigEndian, v) }
func (b *dumpBuilder) i32(v int32)  { binary.Write(&b.buf, binary.BigEndian, v) }
func (b *dumpBuilder) id(v uint64)  { binary.Write(&b.buf, binary.BigEndian, v) }

func (b *dumpBuilder) record(tag recordTag, body func(w *dumpBuilder)) {
	var w dumpBuilder
	w.idSize = b.idSize
	body(&w)
	b.u8(uint8(tag))
	b.u32(0) // time delta
	b.u32(uint32(w.buf.Len()))
	b.buf.Write(w.buf.Bytes())
}

func (b *dumpBuilder) bytes() []byte { return b.buf.Bytes() }

const (
	strThreadName  = 1
	strClassName   = 2
	strMethodRun   = 3
	strSourceFile  = 4
	strFieldCount  = 5
	strFieldName   = 6
	classObjectID  = 0x1000
	frameRunID     = 0x2000
	frameNativeID  = 0x2001
	threadObjectID = 0x3000
	objArrayID     = 0x4000
	primArrayID    = 0x4001
)

func buildTestDump() *dumpBuilder {
	b := newDumpBuilder()

	for id, s := range map[uint64]string{
		strThreadName: "main",
		strClassName:  "java/lang/Thread",
		strMethodRun:  "run",
		strSourceFile: "Thread.java",
		strFieldCount: "count",
		strFieldName:  "name",
	} {
		id, s := id, s
		b.record(tagUTF8String, func(w *dumpBuilder) {
			w.id(id)
			w.buf.WriteString(s)
		})
	}

	b.record(tagLoadClass, func(w *dumpBuilder) {
		w.u32(1) // class serial
		w.id(classObjectID)
		w.u32(0) // stack trace serial
		w.id(strClassName)
	})

	b.record(tagStackFrame, func(w *dumpBuilder) {
		w.id(frameRunID)
		w.id(strMethodRun)
		w.id(0) // method signature
		w.id(strSourceFile)
		w.u32(1) // class serial
		w.i32(42)
	})
	b.record(tagStackFrame, func(w *dumpBuilder) {
		w.id(frameNativeID)
		w.id(strMethodRun)
		w.id(0)
		w.id(strSourceFile)
		w.u32(1)
		w.i32(lineNative)
	})

	b.record(tagStackTrace, func(w *dumpBuilder) {
		w.u32(7) // trace serial
		w.u32(5) // thread serial
		w.u32(2)
		w.id(frameRunID)
		w.id(frameNativeID)
	})

	b.record(tagStartThread, func(w *dumpBuilder) {
		w.u32(5) // thread serial
		w.id(threadObjectID)
		w.u32(7) // trace serial
		w.id(strThreadName)
		w.id(0) // group name
		w.id(0) // group parent name
	})

	b.record(tagHeapDumpSegment, func(w *dumpBuilder) {
		w.u8(uint8(subClassDump))
		w.id(classObjectID)
		w.u32(0) // stack trace serial
		w.id(0)  // superclass
		w.id(0)  // class loader
		w.id(0)  // signers
		w.id(0)  // protection domain
		w.id(0)  // reserved
		w.id(0)  // reserved
		w.u32(8) // instance size
		w.u16(0) // constant pool
		w.u16(1) // static fields
		w.id(strFieldCount)
		w.u8(uint8(ftInt))
		w.i32(7)
		w.u16(1) // instance fields
		w.id(strFieldName)
		w.u8(uint8(ftNormalObject))

		w.u8(uint8(subInstanceDump))
		w.id(threadObjectID)
		w.u32(0)
		w.id(classObjectID)
		w.u32(8)
		w.id(0xdead) // value of the "name" field

		w.u8(uint8(subObjectArrayDump))
		w.id(objArrayID)
		w.u32(0) // stack trace serial
		w.u32(2) // element count
		w.id(classObjectID)
		w.id(threadObjectID)
		w.id(0)

		w.u8(uint8(subPrimArrayDump))
		w.id(primArrayID)
		w.u32(0)
		w.u32(3)
		w.u8(uint8(ftInt))
		w.i32(1)
		w.i32(2)
		w.i32(3)
	})

	b.record(tagHeapDumpEnd, func(w *dumpBuilder) {})
	return b
}

func parseTestDump(t *testing.T) *Snapshot {
	snap, err := Parse(buildTestDump().bytes())
	require.NoError(t, err)
	return snap
}

func TestParseHeader(t *testing.T) {
	snap := parseTestDump(t)
	assert.Equal(t, "JAVA PROFILE 1.0.2", snap.Format())
	assert.Equal(t, 8, snap.IdentifierSize())
}

func TestSnapshotIsReadOnly(t *testing.T) {
	snap := parseTestDump(t)
	assert.False(t, snap.CanBeModified())
	assert.Equal(t, jvm.ErrCannotBeModified, snap.Suspend())
	assert.Equal(t, jvm.ErrCannotBeModified, snap.Resume())
}

func TestThreadsAndFrames(t *testing.T) {
	snap := parseTestDump(t)
	threads, err := snap.AllThreads()
	require.NoError(t, err)
	require.Len(t, threads, 1)

	name, err := threads[0].Name()
	require.NoError(t, err)
	assert.Equal(t, "main", name)
	assert.Equal(t, uint64(threadObjectID), threads[0].UniqueID())

	frames, err := threads[0].Frames()
	require.NoError(t, err)
	require.Len(t, frames, 2)

	loc, err := frames[0].Location()
	require.NoError(t, err)
	line, ok, err := loc.LineNumber()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 42, line)

	m, err := loc.Method()
	require.NoError(t, err)
	mname, err := m.Name()
	require.NoError(t, err)
	assert.Equal(t, "run", mname)

	typ, err := loc.DeclaringType()
	require.NoError(t, err)
	tname, err := typ.Name()
	require.NoError(t, err)
	assert.Equal(t, "java.lang.Thread", tname)
}

func TestNativeFrameHasNoLineNumber(t *testing.T) {
	snap := parseTestDump(t)
	threads, err := snap.AllThreads()
	require.NoError(t, err)
	frames, err := threads[0].Frames()
	require.NoError(t, err)

	loc, err := frames[1].Location()
	require.NoError(t, err)
	_, ok, err := loc.LineNumber()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestThreadReferenceType(t *testing.T) {
	snap := parseTestDump(t)
	threads, err := snap.AllThreads()
	require.NoError(t, err)

	typ, err := threads[0].ReferenceType()
	require.NoError(t, err)
	name, err := typ.Name()
	require.NoError(t, err)
	assert.Equal(t, "java.lang.Thread", name)
}

func TestFieldsAndStaticValue(t *testing.T) {
	snap := parseTestDump(t)
	threads, err := snap.AllThreads()
	require.NoError(t, err)
	typ, err := threads[0].ReferenceType()
	require.NoError(t, err)

	fields, err := typ.Fields()
	require.NoError(t, err)
	require.Len(t, fields, 2)

	byName := map[string]jvm.Field{}
	for _, f := range fields {
		n, err := f.Name()
		require.NoError(t, err)
		byName[n] = f
	}

	v, err := typ.GetValue(byName["count"])
	require.NoError(t, err)
	n, ok := v.AsInt()
	assert.True(t, ok)
	assert.Equal(t, int32(7), n)

	_, err = typ.GetValue(byName["name"])
	assert.Error(t, err, "instance fields have no value at the type level")
}

func TestEndedThreadsAreHidden(t *testing.T) {
	b := buildTestDump()
	b.record(tagEndThread, func(w *dumpBuilder) {
		w.u32(5)
	})
	snap, err := Parse(b.bytes())
	require.NoError(t, err)
	threads, err := snap.AllThreads()
	require.NoError(t, err)
	assert.Empty(t, threads)
}

func TestArrayLength(t *testing.T) {
	snap := parseTestDump(t)

	n, err := snap.ArrayLength(objArrayID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = snap.ArrayLength(primArrayID)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = snap.ArrayLength(0xbeef)
	var nferr *NotFoundError
	require.ErrorAs(t, err, &nferr)
}

func TestUnknownRecordTag(t *testing.T) {
	b := newDumpBuilder()
	b.u8(0x42) // not a record tag
	b.u32(0)
	b.u32(0)
	_, err := Parse(b.bytes())
	assert.Error(t, err)
}

func TestUnknownFieldTypeTag(t *testing.T) {
	b := newDumpBuilder()
	b.record(tagHeapDumpSegment, func(w *dumpBuilder) {
		w.u8(uint8(subPrimArrayDump))
		w.id(0x1)
		w.u32(0)
		w.u32(0)
		w.u8(0x7f) // not a field type tag
	})
	_, err := Parse(b.bytes())
	assert.Error(t, err)
}
