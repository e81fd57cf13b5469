// Package jvm defines a backend-agnostic object model for inspecting a
// Java virtual machine: threads, stack frames, source locations and type
// metadata. Concrete backends (a live JDWP connection, an offline heap
// snapshot) implement these interfaces so that consumer code can walk a
// VM without knowing where the data comes from.
package jvm

import "errors"

// ErrCannotBeModified is returned by Suspend and Resume on backends that
// represent a static snapshot rather than a live, controllable VM.
var ErrCannotBeModified = errors.New("virtual machine cannot be modified")

// VirtualMachine is the root of the object model.
type VirtualMachine interface {
	// AllThreads returns a handle for every thread in the VM.
	AllThreads() ([]ThreadReference, error)

	// CanBeModified reports whether this VM is live. Suspend and Resume
	// are only meaningful when it returns true.
	CanBeModified() bool

	Suspend() error
	Resume() error
}

// ObjectReference is an object in the debuggee's heap.
type ObjectReference interface {
	// UniqueID returns an identifier that distinguishes this object from
	// every other object in the same VM. It carries no meaning across
	// VMs.
	UniqueID() uint64

	ReferenceType() (ReferenceType, error)
}

// ThreadReference is a thread in the debuggee.
type ThreadReference interface {
	ObjectReference

	Name() (string, error)

	// Frames returns the thread's entire call stack, outermost frame
	// last. The thread must be suspended for the result to be coherent
	// on live backends.
	Frames() ([]StackFrame, error)
}

// StackFrame is one frame of a suspended thread's call stack.
type StackFrame interface {
	Location() (Location, error)
}

// Location identifies a point in executing code: a method plus a
// byte-code index within it.
type Location interface {
	// LineNumber resolves the source line for this location. ok is false
	// when no line information exists, for example in native methods.
	LineNumber() (line int, ok bool, err error)

	Method() (Method, error)
	DeclaringType() (ReferenceType, error)
}

// ReferenceType is a class, interface or array type.
type ReferenceType interface {
	// Name returns the fully qualified dotted name, e.g.
	// "java.lang.Thread".
	Name() (string, error)

	Fields() ([]Field, error)

	// GetValue reads the value of a static field. Not every backend
	// supports it.
	GetValue(f Field) (Value, error)
}

// TypeComponent is an element declared by a reference type.
type TypeComponent interface {
	Name() (string, error)
}

// Method is a method declared by a reference type.
type Method interface {
	TypeComponent
}

// Field is a field declared by a reference type.
type Field interface {
	TypeComponent
}
