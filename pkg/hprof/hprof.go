// Package hprof reads the HPROF binary heap dump format produced by
// HotSpot JVMs and exposes the result through the same object model as a
// live JDWP connection, making heap snapshots a second debugger backend.
package hprof

import (
	"bytes"
	"fmt"
	"io/ioutil"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/sirupsen/logrus"

	"github.com/jgallag88/libjdb/pkg/jdwp/wire"
	"github.com/jgallag88/libjdb/pkg/logflags"
)

// layoutCacheSize bounds the number of resolved instance field layouts
// kept in memory; real dumps contain tens of thousands of classes but
// only a few are inspected at a time.
const layoutCacheSize = 256

// Snapshot is a fully indexed heap dump. All lookups resolve against
// in-memory tables built while parsing, so unlike the live backend no
// accessor performs I/O after Open returns.
type Snapshot struct {
	format    string
	idSize    int
	timestamp time.Time

	strings        map[uint64]string
	classBySerial  map[uint32]*loadClassRecord
	classByID      map[uint64]*loadClassRecord
	frames         map[uint64]*stackFrameRecord
	traceBySerial  map[uint32]*stackTraceRecord
	traceByThread  map[uint32]*stackTraceRecord
	threads        []*threadRecord
	threadBySerial map[uint32]*threadRecord
	classDumps     map[uint64]*classDump
	instances      map[uint64]*instanceDump
	objectArrays   map[uint64]*objectArrayDump
	primArrays     map[uint64]*primArrayDump

	layouts *lru.Cache

	log *logrus.Entry
}

// Open reads and indexes the heap dump at path.
func Open(path string) (*Snapshot, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse indexes a heap dump held in memory.
func Parse(data []byte) (*Snapshot, error) {
	layouts, err := lru.New(layoutCacheSize)
	if err != nil {
		return nil, err
	}
	snap := &Snapshot{
		strings:        make(map[uint64]string),
		classBySerial:  make(map[uint32]*loadClassRecord),
		classByID:      make(map[uint64]*loadClassRecord),
		frames:         make(map[uint64]*stackFrameRecord),
		traceBySerial:  make(map[uint32]*stackTraceRecord),
		traceByThread:  make(map[uint32]*stackTraceRecord),
		threadBySerial: make(map[uint32]*threadRecord),
		classDumps:     make(map[uint64]*classDump),
		instances:      make(map[uint64]*instanceDump),
		objectArrays:   make(map[uint64]*objectArrayDump),
		primArrays:     make(map[uint64]*primArrayDump),
		layouts:        layouts,
		log:            logflags.HprofLogger(),
	}
	if err := snap.parse(data); err != nil {
		return nil, err
	}
	return snap, nil
}

// Format returns the format version string from the header, e.g.
// "JAVA PROFILE 1.0.2".
func (s *Snapshot) Format() string { return s.format }

// IdentifierSize returns the width in bytes of identifiers in this dump.
func (s *Snapshot) IdentifierSize() int { return s.idSize }

// Timestamp returns the time the dump was taken.
func (s *Snapshot) Timestamp() time.Time { return s.timestamp }

// ArrayLength returns the element count of the object or primitive array
// with the given object id.
func (s *Snapshot) ArrayLength(objectID uint64) (int, error) {
	if dump, ok := s.objectArrays[objectID]; ok {
		return int(dump.count), nil
	}
	if dump, ok := s.primArrays[objectID]; ok {
		return int(dump.count), nil
	}
	return 0, &NotFoundError{What: "array dump", ID: objectID}
}

func (s *Snapshot) parse(data []byte) error {
	// The header is a NUL-terminated format string followed by the
	// identifier size and a millisecond timestamp split across two
	// 32-bit words.
	nul := bytes.IndexByte(data, 0)
	if nul < 0 {
		return wire.NewDecodeError("missing hprof header terminator")
	}
	s.format = string(data[:nul])

	d := wire.NewDecoder(data[nul+1:], wire.DefaultIDSizes())
	idSize, err := d.Uint32()
	if err != nil {
		return err
	}
	if idSize != 4 && idSize != 8 {
		return wire.NewDecodeError("unsupported identifier size %d", idSize)
	}
	s.idSize = int(idSize)
	hi, err := d.Uint32()
	if err != nil {
		return err
	}
	lo, err := d.Uint32()
	if err != nil {
		return err
	}
	ms := uint64(hi)<<32 | uint64(lo)
	s.timestamp = time.Unix(int64(ms/1000), int64(ms%1000)*int64(time.Millisecond))

	for d.Len() > 0 {
		if err := s.parseRecord(d); err != nil {
			return err
		}
	}
	return nil
}

func (s *Snapshot) parseRecord(d *wire.Decoder) error {
	tagByte, err := d.Uint8()
	if err != nil {
		return err
	}
	tag, err := parseRecordTag(tagByte)
	if err != nil {
		return err
	}
	if _, err := d.Uint32(); err != nil { // time delta, unused
		return err
	}
	length, err := d.Uint32()
	if err != nil {
		return err
	}
	payload, err := d.Bytes(int(length))
	if err != nil {
		return err
	}
	if logflags.Hprof() {
		s.log.Debugf("record %#.2x (%d bytes)", uint8(tag), length)
	}

	rd := wire.NewDecoder(payload, wire.DefaultIDSizes())
	switch tag {
	case tagUTF8String:
		id, err := rd.ID(s.idSize)
		if err != nil {
			return err
		}
		value, err := rd.Bytes(rd.Len())
		if err != nil {
			return err
		}
		s.strings[id] = string(value)
	case tagLoadClass:
		return s.parseLoadClass(rd)
	case tagUnloadClass:
		serial, err := rd.Uint32()
		if err != nil {
			return err
		}
		delete(s.classBySerial, serial)
	case tagStackFrame:
		return s.parseStackFrame(rd)
	case tagStackTrace:
		return s.parseStackTrace(rd)
	case tagStartThread:
		return s.parseStartThread(rd)
	case tagEndThread:
		serial, err := rd.Uint32()
		if err != nil {
			return err
		}
		if t := s.threadBySerial[serial]; t != nil {
			t.ended = true
		}
	case tagHeapDump, tagHeapDumpSegment:
		return s.parseHeapDump(rd)
	case tagHeapDumpEnd:
		// no payload
	default:
		// Alloc sites, heap summaries, CPU samples and control settings
		// are indexed by nothing in the object model; their payload was
		// consumed above.
	}
	return nil
}

func (s *Snapshot) parseLoadClass(d *wire.Decoder) error {
	serial, err := d.Uint32()
	if err != nil {
		return err
	}
	objectID, err := d.ID(s.idSize)
	if err != nil {
		return err
	}
	stackTraceSerial, err := d.Uint32()
	if err != nil {
		return err
	}
	nameID, err := d.ID(s.idSize)
	if err != nil {
		return err
	}
	rec := &loadClassRecord{
		serial:           serial,
		objectID:         objectID,
		stackTraceSerial: stackTraceSerial,
		nameID:           nameID,
	}
	s.classBySerial[serial] = rec
	s.classByID[objectID] = rec
	return nil
}

func (s *Snapshot) parseStackFrame(d *wire.Decoder) error {
	rec := &stackFrameRecord{}
	var err error
	if rec.frameID, err = d.ID(s.idSize); err != nil {
		return err
	}
	if rec.methodNameID, err = d.ID(s.idSize); err != nil {
		return err
	}
	if rec.methodSigID, err = d.ID(s.idSize); err != nil {
		return err
	}
	if rec.sourceNameID, err = d.ID(s.idSize); err != nil {
		return err
	}
	if rec.classSerial, err = d.Uint32(); err != nil {
		return err
	}
	if rec.line, err = d.Int32(); err != nil {
		return err
	}
	s.frames[rec.frameID] = rec
	return nil
}

func (s *Snapshot) parseStackTrace(d *wire.Decoder) error {
	serial, err := d.Uint32()
	if err != nil {
		return err
	}
	threadSerial, err := d.Uint32()
	if err != nil {
		return err
	}
	nframes, err := d.Uint32()
	if err != nil {
		return err
	}
	rec := &stackTraceRecord{
		serial:       serial,
		threadSerial: threadSerial,
		frameIDs:     make([]uint64, nframes),
	}
	for i := range rec.frameIDs {
		if rec.frameIDs[i], err = d.ID(s.idSize); err != nil {
			return err
		}
	}
	s.traceBySerial[serial] = rec
	s.traceByThread[threadSerial] = rec
	return nil
}

func (s *Snapshot) parseStartThread(d *wire.Decoder) error {
	rec := &threadRecord{}
	var err error
	if rec.serial, err = d.Uint32(); err != nil {
		return err
	}
	if rec.objectID, err = d.ID(s.idSize); err != nil {
		return err
	}
	if rec.stackTraceSerial, err = d.Uint32(); err != nil {
		return err
	}
	if rec.nameID, err = d.ID(s.idSize); err != nil {
		return err
	}
	if rec.groupNameID, err = d.ID(s.idSize); err != nil {
		return err
	}
	if rec.groupParentNameID, err = d.ID(s.idSize); err != nil {
		return err
	}
	s.threads = append(s.threads, rec)
	s.threadBySerial[rec.serial] = rec
	return nil
}

// parseHeapDump walks the sub-records of a heap dump or heap dump
// segment payload.
func (s *Snapshot) parseHeapDump(d *wire.Decoder) error {
	for d.Len() > 0 {
		tagByte, err := d.Uint8()
		if err != nil {
			return err
		}
		tag, err := parseSubRecordTag(tagByte)
		if err != nil {
			return err
		}
		switch tag {
		case subClassDump:
			err = s.parseClassDump(d)
		case subInstanceDump:
			err = s.parseInstanceDump(d)
		case subObjectArrayDump:
			err = s.parseObjectArrayDump(d)
		case subPrimArrayDump:
			err = s.parsePrimArrayDump(d)
		default:
			err = s.skipRoot(d, tag)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// skipRoot consumes a GC root sub-record. Roots are not part of the
// object model; only their size matters here.
func (s *Snapshot) skipRoot(d *wire.Decoder, tag subRecordTag) error {
	n := s.idSize
	switch tag {
	case subRootJNIGlobal:
		n += s.idSize
	case subRootJNILocal, subRootJavaFrame:
		n += 8
	case subRootNativeStack, subRootThreadBlock:
		n += 4
	case subRootThreadObj:
		n += 8
	}
	_, err := d.Bytes(n)
	return err
}

func (s *Snapshot) parseClassDump(d *wire.Decoder) error {
	dump := &classDump{}
	var err error
	if dump.objectID, err = d.ID(s.idSize); err != nil {
		return err
	}
	if dump.stackTraceSerial, err = d.Uint32(); err != nil {
		return err
	}
	if dump.superClassID, err = d.ID(s.idSize); err != nil {
		return err
	}
	if dump.loaderID, err = d.ID(s.idSize); err != nil {
		return err
	}
	if dump.signersID, err = d.ID(s.idSize); err != nil {
		return err
	}
	if dump.domainID, err = d.ID(s.idSize); err != nil {
		return err
	}
	// two reserved identifier slots
	if _, err = d.ID(s.idSize); err != nil {
		return err
	}
	if _, err = d.ID(s.idSize); err != nil {
		return err
	}
	if dump.instanceSize, err = d.Uint32(); err != nil {
		return err
	}

	poolSize, err := d.Uint16()
	if err != nil {
		return err
	}
	for i := 0; i < int(poolSize); i++ {
		if _, err := d.Uint16(); err != nil { // constant pool index
			return err
		}
		typ, err := s.readFieldTag(d)
		if err != nil {
			return err
		}
		if _, err := d.Bytes(typ.size(s.idSize)); err != nil {
			return err
		}
	}

	nStatic, err := d.Uint16()
	if err != nil {
		return err
	}
	dump.staticFields = make([]staticField, 0, nStatic)
	for i := 0; i < int(nStatic); i++ {
		nameID, err := d.ID(s.idSize)
		if err != nil {
			return err
		}
		typ, err := s.readFieldTag(d)
		if err != nil {
			return err
		}
		value, err := parseValue(d, typ, s.idSize)
		if err != nil {
			return err
		}
		dump.staticFields = append(dump.staticFields, staticField{nameID: nameID, typ: typ, value: value})
	}

	nInstance, err := d.Uint16()
	if err != nil {
		return err
	}
	dump.instanceFields = make([]fieldDecl, 0, nInstance)
	for i := 0; i < int(nInstance); i++ {
		nameID, err := d.ID(s.idSize)
		if err != nil {
			return err
		}
		typ, err := s.readFieldTag(d)
		if err != nil {
			return err
		}
		dump.instanceFields = append(dump.instanceFields, fieldDecl{
			nameID:    nameID,
			typ:       typ,
			declClass: dump.objectID,
		})
	}

	s.classDumps[dump.objectID] = dump
	return nil
}

func (s *Snapshot) readFieldTag(d *wire.Decoder) (fieldTag, error) {
	b, err := d.Uint8()
	if err != nil {
		return 0, err
	}
	return parseFieldTag(b)
}

func (s *Snapshot) parseInstanceDump(d *wire.Decoder) error {
	dump := &instanceDump{}
	var err error
	if dump.objectID, err = d.ID(s.idSize); err != nil {
		return err
	}
	if dump.stackTraceSerial, err = d.Uint32(); err != nil {
		return err
	}
	if dump.classObjectID, err = d.ID(s.idSize); err != nil {
		return err
	}
	n, err := d.Uint32()
	if err != nil {
		return err
	}
	if dump.payload, err = d.Bytes(int(n)); err != nil {
		return err
	}
	s.instances[dump.objectID] = dump
	return nil
}

func (s *Snapshot) parseObjectArrayDump(d *wire.Decoder) error {
	dump := &objectArrayDump{}
	var err error
	if dump.objectID, err = d.ID(s.idSize); err != nil {
		return err
	}
	if _, err = d.Uint32(); err != nil { // stack trace serial
		return err
	}
	if dump.count, err = d.Uint32(); err != nil {
		return err
	}
	if dump.classObjectID, err = d.ID(s.idSize); err != nil {
		return err
	}
	if _, err = d.Bytes(int(dump.count) * s.idSize); err != nil {
		return err
	}
	s.objectArrays[dump.objectID] = dump
	return nil
}

func (s *Snapshot) parsePrimArrayDump(d *wire.Decoder) error {
	dump := &primArrayDump{}
	var err error
	if dump.objectID, err = d.ID(s.idSize); err != nil {
		return err
	}
	if _, err = d.Uint32(); err != nil { // stack trace serial
		return err
	}
	if dump.count, err = d.Uint32(); err != nil {
		return err
	}
	if dump.elemType, err = s.readFieldTag(d); err != nil {
		return err
	}
	if _, err = d.Bytes(int(dump.count) * dump.elemType.size(s.idSize)); err != nil {
		return err
	}
	s.primArrays[dump.objectID] = dump
	return nil
}

// NotFoundError is returned when a record another record refers to is
// absent from the dump.
type NotFoundError struct {
	What string
	ID   uint64
}

func (err *NotFoundError) Error() string {
	return fmt.Sprintf("hprof: no %s record for id %#x", err.What, err.ID)
}

func (s *Snapshot) lookupString(id uint64) (string, error) {
	v, ok := s.strings[id]
	if !ok {
		return "", &NotFoundError{What: "string", ID: id}
	}
	return v, nil
}

// instanceFieldLayout resolves the instance field layout of a class:
// its own fields followed by those inherited up the superclass chain,
// matching the value order of instance dump payloads. Layouts are
// memoized in an LRU cache since every instance of a class shares one.
func (s *Snapshot) instanceFieldLayout(classObjectID uint64) ([]fieldDecl, error) {
	if cached, ok := s.layouts.Get(classObjectID); ok {
		return cached.([]fieldDecl), nil
	}
	var layout []fieldDecl
	for id := classObjectID; id != 0; {
		dump, ok := s.classDumps[id]
		if !ok {
			return nil, &NotFoundError{What: "class dump", ID: id}
		}
		layout = append(layout, dump.instanceFields...)
		id = dump.superClassID
	}
	s.layouts.Add(classObjectID, layout)
	return layout, nil
}
