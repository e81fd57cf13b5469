package jdwp

import (
	"errors"
	"strings"

	"github.com/jgallag88/libjdb/pkg/jvm"
)

// ErrValueAccessUnsupported is returned by ReferenceType.GetValue on the
// live backend; reading field values is not part of the command subset
// this client implements yet.
var ErrValueAccessUnsupported = errors.New("jdwp: field value access not supported")

// VM adapts a live JDWP connection to the jvm object model. All entities
// it hands out share the underlying connection and hold only the
// identifiers needed to query the debuggee again: unless noted otherwise
// every accessor is a fresh round trip, and nothing the debuggee reports
// is cached.
type VM struct {
	conn *Conn
}

var _ jvm.VirtualMachine = (*VM)(nil)

// Attach connects to the JVM debug port at addr and returns it as a
// jvm.VirtualMachine.
func Attach(addr string) (*VM, error) {
	conn, err := Dial(addr)
	if err != nil {
		return nil, err
	}
	return &VM{conn: conn}, nil
}

// NewVM wraps an existing connection.
func NewVM(conn *Conn) *VM {
	return &VM{conn: conn}
}

// Conn exposes the underlying connection for callers that want to issue
// commands directly.
func (vm *VM) Conn() *Conn {
	return vm.conn
}

func (vm *VM) Close() error {
	return vm.conn.Close()
}

func (vm *VM) AllThreads() ([]jvm.ThreadReference, error) {
	reply, err := vm.conn.AllThreads()
	if err != nil {
		return nil, err
	}
	threads := make([]jvm.ThreadReference, 0, len(reply.Threads))
	for _, id := range reply.Threads {
		threads = append(threads, &threadReference{conn: vm.conn, id: id})
	}
	return threads, nil
}

// CanBeModified reports true: a live VM can be suspended and resumed.
func (vm *VM) CanBeModified() bool {
	return true
}

func (vm *VM) Suspend() error {
	return vm.conn.Suspend()
}

func (vm *VM) Resume() error {
	return vm.conn.Resume()
}

type threadReference struct {
	conn *Conn
	id   ThreadID
}

var _ jvm.ThreadReference = (*threadReference)(nil)

func (t *threadReference) UniqueID() uint64 {
	return uint64(t.id)
}

func (t *threadReference) ReferenceType() (jvm.ReferenceType, error) {
	reply, err := t.conn.ReferenceTypeOf(ObjectID(t.id))
	if err != nil {
		return nil, err
	}
	return &referenceType{conn: t.conn, id: reply.TypeID}, nil
}

func (t *threadReference) Name() (string, error) {
	return t.conn.ThreadName(t.id)
}

// Frames fetches the thread's whole stack (start 0, length -1). The
// locations in the reply are kept on the frame handles, so Location does
// not go back to the debuggee.
func (t *threadReference) Frames() ([]jvm.StackFrame, error) {
	reply, err := t.conn.ThreadFrames(t.id, 0, -1)
	if err != nil {
		return nil, err
	}
	frames := make([]jvm.StackFrame, 0, len(reply.Frames))
	for _, f := range reply.Frames {
		frames = append(frames, &stackFrame{conn: t.conn, id: f.Frame, loc: f.Location})
	}
	return frames, nil
}

type stackFrame struct {
	conn *Conn
	id   FrameID
	loc  Location
}

var _ jvm.StackFrame = (*stackFrame)(nil)

func (f *stackFrame) Location() (jvm.Location, error) {
	return &location{conn: f.conn, loc: f.loc}, nil
}

type location struct {
	conn *Conn
	loc  Location
}

var _ jvm.Location = (*location)(nil)

// LineNumber fetches the method's line table and picks the entry with
// the highest code index that is still at or before this location's
// byte-code index. Native methods have no line table; the debuggee
// reports that either with the -1/-1 bounds sentinel or by rejecting the
// request, and both mean "no line number" rather than an error.
func (l *location) LineNumber() (int, bool, error) {
	table, err := l.conn.LineTable(l.loc.Class, l.loc.Method)
	if err != nil {
		if isNoLineInfo(err) {
			return 0, false, nil
		}
		return 0, false, err
	}
	if table.Start == -1 && table.End == -1 {
		return 0, false, nil
	}
	line, found := int32(0), false
	var bestIndex int64
	for _, entry := range table.Lines {
		if uint64(entry.CodeIndex) > l.loc.Index {
			continue
		}
		if !found || entry.CodeIndex >= bestIndex {
			line, bestIndex, found = entry.Line, entry.CodeIndex, true
		}
	}
	return int(line), found, nil
}

func (l *location) Method() (jvm.Method, error) {
	return &method{conn: l.conn, class: l.loc.Class, id: l.loc.Method}, nil
}

func (l *location) DeclaringType() (jvm.ReferenceType, error) {
	return &referenceType{conn: l.conn, id: l.loc.Class}, nil
}

type referenceType struct {
	conn *Conn
	id   ReferenceTypeID
}

var _ jvm.ReferenceType = (*referenceType)(nil)

func (r *referenceType) Name() (string, error) {
	reply, err := r.conn.TypeSignature(r.id)
	if err != nil {
		return "", err
	}
	return signatureToName(reply.Signature), nil
}

// Fields lists the fields declared by this type. The names in the reply
// are reused on the returned handles instead of being fetched again.
func (r *referenceType) Fields() ([]jvm.Field, error) {
	reply, err := r.conn.Fields(r.id)
	if err != nil {
		return nil, err
	}
	fields := make([]jvm.Field, 0, len(reply.Fields))
	for _, f := range reply.Fields {
		fields = append(fields, &field{conn: r.conn, class: r.id, id: f.Field, name: f.Name})
	}
	return fields, nil
}

func (r *referenceType) GetValue(f jvm.Field) (jvm.Value, error) {
	return jvm.Value{}, ErrValueAccessUnsupported
}

type method struct {
	conn  *Conn
	class ReferenceTypeID
	id    MethodID
}

var _ jvm.Method = (*method)(nil)

// Name lists all methods of the declaring class and matches this
// method's id; JDWP has no command to look up a single method.
func (m *method) Name() (string, error) {
	reply, err := m.conn.Methods(m.class)
	if err != nil {
		return "", err
	}
	for _, info := range reply.Methods {
		if info.Method == m.id {
			return info.Name, nil
		}
	}
	return "", &MethodNotFoundError{Class: m.class, Method: m.id}
}

type field struct {
	conn  *Conn
	class ReferenceTypeID
	id    FieldID
	name  string
}

var _ jvm.Field = (*field)(nil)

func (f *field) Name() (string, error) {
	return f.name, nil
}

// signatureToName turns a JNI class signature like "Ljava/lang/Thread;"
// into the dotted name "java.lang.Thread". Array signatures are returned
// with their element type converted and "[]" appended per dimension.
func signatureToName(sig string) string {
	dims := 0
	for strings.HasPrefix(sig, "[") {
		sig = sig[1:]
		dims++
	}
	name := sig
	if strings.HasPrefix(sig, "L") && strings.HasSuffix(sig, ";") {
		name = strings.ReplaceAll(sig[1:len(sig)-1], "/", ".")
	}
	return name + strings.Repeat("[]", dims)
}
