package hprof

import (
	"math"

	"github.com/jgallag88/libjdb/pkg/jdwp/wire"
	"github.com/jgallag88/libjdb/pkg/jvm"
)

// HPROF is a sequence of tag-length-value records. The mappings from tag
// bytes to record kinds are closed: an unmapped byte is a decode error,
// never a default.
//
// Format references:
//   - OpenJDK 6/7 demo docs, src/share/demo/jvmti/hprof/manual.html
//   - OpenJDK 8 hprof_b_spec.h
//   - hotspot/share/services/heapDumper.cpp in current OpenJDK
type recordTag uint8

const (
	tagUTF8String      recordTag = 0x01
	tagLoadClass       recordTag = 0x02
	tagUnloadClass     recordTag = 0x03
	tagStackFrame      recordTag = 0x04
	tagStackTrace      recordTag = 0x05
	tagAllocSites      recordTag = 0x06
	tagHeapSummary     recordTag = 0x07
	tagStartThread     recordTag = 0x0A
	tagEndThread       recordTag = 0x0B
	tagHeapDump        recordTag = 0x0C
	tagCPUSamples      recordTag = 0x0D
	tagControlSettings recordTag = 0x0E

	// 1.0.2 record tags.
	tagHeapDumpSegment recordTag = 0x1C
	tagHeapDumpEnd     recordTag = 0x2C
)

func parseRecordTag(b uint8) (recordTag, error) {
	switch t := recordTag(b); t {
	case tagUTF8String, tagLoadClass, tagUnloadClass, tagStackFrame,
		tagStackTrace, tagAllocSites, tagHeapSummary, tagStartThread,
		tagEndThread, tagHeapDump, tagCPUSamples, tagControlSettings,
		tagHeapDumpSegment, tagHeapDumpEnd:
		return t, nil
	}
	return 0, wire.NewDecodeError("%#x is not a valid hprof record tag", b)
}

// fieldTag identifies the type of a field or array element.
type fieldTag uint8

const (
	ftArrayObject  fieldTag = 0x01
	ftNormalObject fieldTag = 0x02
	ftBoolean      fieldTag = 0x04
	ftChar         fieldTag = 0x05
	ftFloat        fieldTag = 0x06
	ftDouble       fieldTag = 0x07
	ftByte         fieldTag = 0x08
	ftShort        fieldTag = 0x09
	ftInt          fieldTag = 0x0A
	ftLong         fieldTag = 0x0B
)

func parseFieldTag(b uint8) (fieldTag, error) {
	switch t := fieldTag(b); t {
	case ftArrayObject, ftNormalObject, ftBoolean, ftChar, ftFloat,
		ftDouble, ftByte, ftShort, ftInt, ftLong:
		return t, nil
	}
	return 0, wire.NewDecodeError("%#x is not a valid hprof field type tag", b)
}

// size returns the number of bytes a value of this type occupies in the
// dump; object references occupy the file's identifier size.
func (t fieldTag) size(idSize int) int {
	switch t {
	case ftBoolean, ftByte:
		return 1
	case ftChar, ftShort:
		return 2
	case ftFloat, ftInt:
		return 4
	case ftDouble, ftLong:
		return 8
	}
	return idSize
}

// Sub-record tags inside a heap dump record. 0x01..0x08 and 0xFF are GC
// roots; the four dump tags carry the class/object payloads.
type subRecordTag uint8

const (
	subRootUnknown     subRecordTag = 0xFF
	subRootJNIGlobal   subRecordTag = 0x01
	subRootJNILocal    subRecordTag = 0x02
	subRootJavaFrame   subRecordTag = 0x03
	subRootNativeStack subRecordTag = 0x04
	subRootStickyClass subRecordTag = 0x05
	subRootThreadBlock subRecordTag = 0x06
	subRootMonitorUsed subRecordTag = 0x07
	subRootThreadObj   subRecordTag = 0x08
	subClassDump       subRecordTag = 0x20
	subInstanceDump    subRecordTag = 0x21
	subObjectArrayDump subRecordTag = 0x22
	subPrimArrayDump   subRecordTag = 0x23
)

func parseSubRecordTag(b uint8) (subRecordTag, error) {
	switch t := subRecordTag(b); t {
	case subRootUnknown, subRootJNIGlobal, subRootJNILocal, subRootJavaFrame,
		subRootNativeStack, subRootStickyClass, subRootThreadBlock,
		subRootMonitorUsed, subRootThreadObj, subClassDump, subInstanceDump,
		subObjectArrayDump, subPrimArrayDump:
		return t, nil
	}
	return 0, wire.NewDecodeError("%#x is not a valid heap dump sub-record tag", b)
}

type loadClassRecord struct {
	serial           uint32
	objectID         uint64
	stackTraceSerial uint32
	nameID           uint64
}

type stackFrameRecord struct {
	frameID      uint64
	methodNameID uint64
	methodSigID  uint64
	sourceNameID uint64
	classSerial  uint32
	line         int32
}

// Line number sentinels used by stack frame records.
const (
	lineUnknown  int32 = -1
	lineCompiled int32 = -2
	lineNative   int32 = -3
)

type stackTraceRecord struct {
	serial       uint32
	threadSerial uint32
	frameIDs     []uint64
}

type threadRecord struct {
	serial            uint32
	objectID          uint64
	stackTraceSerial  uint32
	nameID            uint64
	groupNameID       uint64
	groupParentNameID uint64
	ended             bool
}

type fieldDecl struct {
	nameID uint64
	typ    fieldTag
	// class that declares the field; fields inherited through the
	// superclass chain keep their declaring class here.
	declClass uint64
	static    bool
}

type staticField struct {
	nameID uint64
	typ    fieldTag
	value  jvm.Value
}

type classDump struct {
	objectID         uint64
	stackTraceSerial uint32
	superClassID     uint64
	loaderID         uint64
	signersID        uint64
	domainID         uint64
	instanceSize     uint32
	staticFields     []staticField
	instanceFields   []fieldDecl
}

type instanceDump struct {
	objectID         uint64
	stackTraceSerial uint32
	classObjectID    uint64
	// raw field values, this class first then up the superclass chain;
	// decoded lazily against the class layout.
	payload []byte
}

type objectArrayDump struct {
	objectID      uint64
	classObjectID uint64
	count         uint32
}

type primArrayDump struct {
	objectID uint64
	elemType fieldTag
	count    uint32
}

// parseValue reads one value of the given type from d.
func parseValue(d *wire.Decoder, typ fieldTag, idSize int) (jvm.Value, error) {
	switch typ {
	case ftBoolean:
		v, err := d.Uint8()
		return jvm.BooleanValue(v != 0), err
	case ftChar:
		v, err := d.Uint16()
		return jvm.CharValue(v), err
	case ftFloat:
		v, err := d.Uint32()
		return jvm.FloatValue(math.Float32frombits(v)), err
	case ftDouble:
		v, err := d.Uint64()
		return jvm.DoubleValue(math.Float64frombits(v)), err
	case ftByte:
		v, err := d.Uint8()
		return jvm.ByteValue(int8(v)), err
	case ftShort:
		v, err := d.Uint16()
		return jvm.ShortValue(int16(v)), err
	case ftInt:
		v, err := d.Uint32()
		return jvm.IntValue(int32(v)), err
	case ftLong:
		v, err := d.Uint64()
		return jvm.LongValue(int64(v)), err
	case ftNormalObject:
		v, err := d.ID(idSize)
		return jvm.ObjectValue(v), err
	case ftArrayObject:
		v, err := d.ID(idSize)
		return jvm.ArrayValue(v), err
	}
	return jvm.Value{}, wire.NewDecodeError("cannot read value of field type %#x", uint8(typ))
}
