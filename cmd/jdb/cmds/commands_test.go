package cmds

import (
	"bytes"
	"strings"
	"testing"

	"github.com/jgallag88/libjdb/pkg/jvm"
)

type fakeVM struct {
	threads []jvm.ThreadReference
}

func (vm *fakeVM) AllThreads() ([]jvm.ThreadReference, error) { return vm.threads, nil }
func (vm *fakeVM) CanBeModified() bool                        { return false }
func (vm *fakeVM) Suspend() error                             { return jvm.ErrCannotBeModified }
func (vm *fakeVM) Resume() error                              { return jvm.ErrCannotBeModified }

type fakeThread struct {
	id     uint64
	name   string
	frames []jvm.StackFrame
}

func (t *fakeThread) UniqueID() uint64                          { return t.id }
func (t *fakeThread) ReferenceType() (jvm.ReferenceType, error) { return nil, nil }
func (t *fakeThread) Name() (string, error)                     { return t.name, nil }
func (t *fakeThread) Frames() ([]jvm.StackFrame, error)         { return t.frames, nil }

type fakeFrame struct {
	class, method string
	line          int
	hasLine       bool
}

func (f *fakeFrame) Location() (jvm.Location, error) { return f, nil }
func (f *fakeFrame) LineNumber() (int, bool, error)  { return f.line, f.hasLine, nil }
func (f *fakeFrame) Method() (jvm.Method, error)     { return &fakeMethod{f.method}, nil }
func (f *fakeFrame) DeclaringType() (jvm.ReferenceType, error) {
	return &fakeType{f.class}, nil
}

type fakeMethod struct{ name string }

func (m *fakeMethod) Name() (string, error) { return m.name, nil }

type fakeType struct{ name string }

func (r *fakeType) Name() (string, error)                 { return r.name, nil }
func (r *fakeType) Fields() ([]jvm.Field, error)          { return nil, nil }
func (r *fakeType) GetValue(jvm.Field) (jvm.Value, error) { return jvm.Value{}, nil }

func TestPrintStackTraces(t *testing.T) {
	vm := &fakeVM{threads: []jvm.ThreadReference{
		&fakeThread{id: 1, name: "main", frames: []jvm.StackFrame{
			&fakeFrame{class: "java.lang.Thread", method: "sleep"},
			&fakeFrame{class: "com.example.Main", method: "main", line: 17, hasLine: true},
		}},
	}}

	noColor = true
	defer func() { noColor = false }()

	var buf bytes.Buffer
	if err := printStackTraces(&buf, vm); err != nil {
		t.Fatalf("printStackTraces: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"Thread 1: main",
		"java.lang.Thread.sleep()\n",
		"com.example.Main.main():17\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\x1b[") {
		t.Errorf("expected no color escapes when writing to a buffer:\n%s", out)
	}
}

func TestPrintStackTracesFrameLimit(t *testing.T) {
	frames := make([]jvm.StackFrame, 5)
	for i := range frames {
		frames[i] = &fakeFrame{class: "com.example.Deep", method: "recurse", line: i + 1, hasLine: true}
	}
	vm := &fakeVM{threads: []jvm.ThreadReference{
		&fakeThread{id: 2, name: "worker", frames: frames},
	}}

	maxFrames = 2
	defer func() { maxFrames = 0 }()

	var buf bytes.Buffer
	if err := printStackTraces(&buf, vm); err != nil {
		t.Fatalf("printStackTraces: %v", err)
	}
	out := buf.String()
	if got := strings.Count(out, "com.example.Deep.recurse()"); got != 2 {
		t.Errorf("expected 2 frames printed, got %d:\n%s", got, out)
	}
	if !strings.Contains(out, "... 3 more") {
		t.Errorf("expected truncation marker:\n%s", out)
	}
}
