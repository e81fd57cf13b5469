package hprof

import (
	"fmt"
	"strings"

	"github.com/jgallag88/libjdb/pkg/jvm"
)

// The snapshot itself is the virtual machine: a static, read-only one.
var _ jvm.VirtualMachine = (*Snapshot)(nil)

func (s *Snapshot) AllThreads() ([]jvm.ThreadReference, error) {
	threads := make([]jvm.ThreadReference, 0, len(s.threads))
	for _, rec := range s.threads {
		if rec.ended {
			continue
		}
		threads = append(threads, &thread{snap: s, rec: rec})
	}
	return threads, nil
}

// CanBeModified reports false: a snapshot is immutable.
func (s *Snapshot) CanBeModified() bool {
	return false
}

func (s *Snapshot) Suspend() error {
	return jvm.ErrCannotBeModified
}

func (s *Snapshot) Resume() error {
	return jvm.ErrCannotBeModified
}

type thread struct {
	snap *Snapshot
	rec  *threadRecord
}

var _ jvm.ThreadReference = (*thread)(nil)

func (t *thread) UniqueID() uint64 {
	return t.rec.objectID
}

func (t *thread) Name() (string, error) {
	return t.snap.lookupString(t.rec.nameID)
}

func (t *thread) ReferenceType() (jvm.ReferenceType, error) {
	inst, ok := t.snap.instances[t.rec.objectID]
	if !ok {
		return nil, &NotFoundError{What: "instance dump", ID: t.rec.objectID}
	}
	return t.snap.referenceTypeByID(inst.classObjectID)
}

func (t *thread) Frames() ([]jvm.StackFrame, error) {
	trace, ok := t.snap.traceBySerial[t.rec.stackTraceSerial]
	if !ok {
		trace, ok = t.snap.traceByThread[t.rec.serial]
	}
	if !ok {
		return nil, &NotFoundError{What: "stack trace", ID: uint64(t.rec.serial)}
	}
	frames := make([]jvm.StackFrame, 0, len(trace.frameIDs))
	for _, id := range trace.frameIDs {
		rec, ok := t.snap.frames[id]
		if !ok {
			return nil, &NotFoundError{What: "stack frame", ID: id}
		}
		frames = append(frames, &frame{snap: t.snap, rec: rec})
	}
	return frames, nil
}

type frame struct {
	snap *Snapshot
	rec  *stackFrameRecord
}

var _ jvm.StackFrame = (*frame)(nil)

func (f *frame) Location() (jvm.Location, error) {
	return &location{snap: f.snap, rec: f.rec}, nil
}

type location struct {
	snap *Snapshot
	rec  *stackFrameRecord
}

var _ jvm.Location = (*location)(nil)

// LineNumber reads the line recorded with the frame. The negative
// sentinels (unknown, compiled, native) all mean no line is available.
func (l *location) LineNumber() (int, bool, error) {
	if l.rec.line > 0 {
		return int(l.rec.line), true, nil
	}
	return 0, false, nil
}

func (l *location) Method() (jvm.Method, error) {
	return &method{snap: l.snap, rec: l.rec}, nil
}

func (l *location) DeclaringType() (jvm.ReferenceType, error) {
	class, ok := l.snap.classBySerial[l.rec.classSerial]
	if !ok {
		return nil, &NotFoundError{What: "class", ID: uint64(l.rec.classSerial)}
	}
	return &referenceType{snap: l.snap, class: class}, nil
}

type method struct {
	snap *Snapshot
	rec  *stackFrameRecord
}

var _ jvm.Method = (*method)(nil)

func (m *method) Name() (string, error) {
	return m.snap.lookupString(m.rec.methodNameID)
}

type referenceType struct {
	snap  *Snapshot
	class *loadClassRecord
}

var _ jvm.ReferenceType = (*referenceType)(nil)

func (s *Snapshot) referenceTypeByID(classObjectID uint64) (jvm.ReferenceType, error) {
	class, ok := s.classByID[classObjectID]
	if !ok {
		return nil, &NotFoundError{What: "class", ID: classObjectID}
	}
	return &referenceType{snap: s, class: class}, nil
}

// Name returns the dotted class name. Class names in a dump use slashes
// as the package separator, e.g. "java/lang/Thread".
func (r *referenceType) Name() (string, error) {
	name, err := r.snap.lookupString(r.class.nameID)
	if err != nil {
		return "", err
	}
	return strings.ReplaceAll(name, "/", "."), nil
}

// Fields lists the static fields and instance field declarations of this
// type, including fields inherited from superclasses.
func (r *referenceType) Fields() ([]jvm.Field, error) {
	dump, ok := r.snap.classDumps[r.class.objectID]
	if !ok {
		return nil, &NotFoundError{What: "class dump", ID: r.class.objectID}
	}
	var fields []jvm.Field
	for _, sf := range dump.staticFields {
		fields = append(fields, &field{
			snap: r.snap,
			decl: fieldDecl{nameID: sf.nameID, typ: sf.typ, declClass: dump.objectID, static: true},
		})
	}
	layout, err := r.snap.instanceFieldLayout(r.class.objectID)
	if err != nil {
		return nil, err
	}
	for _, decl := range layout {
		fields = append(fields, &field{snap: r.snap, decl: decl})
	}
	return fields, nil
}

// GetValue reads a static field's value from the class dump. Instance
// fields have no value at the type level.
func (r *referenceType) GetValue(f jvm.Field) (jvm.Value, error) {
	hf, ok := f.(*field)
	if !ok {
		return jvm.Value{}, fmt.Errorf("hprof: field %v does not belong to this snapshot", f)
	}
	if !hf.decl.static {
		return jvm.Value{}, fmt.Errorf("hprof: field %#x is not static", hf.decl.nameID)
	}
	for id := r.class.objectID; id != 0; {
		dump, ok := r.snap.classDumps[id]
		if !ok {
			break
		}
		for _, sf := range dump.staticFields {
			if sf.nameID == hf.decl.nameID && id == hf.decl.declClass {
				return sf.value, nil
			}
		}
		id = dump.superClassID
	}
	return jvm.Value{}, &NotFoundError{What: "static field", ID: hf.decl.nameID}
}

type field struct {
	snap *Snapshot
	decl fieldDecl
}

var _ jvm.Field = (*field)(nil)

func (f *field) Name() (string, error) {
	return f.snap.lookupString(f.decl.nameID)
}
