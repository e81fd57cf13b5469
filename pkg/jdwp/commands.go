package jdwp

// JDWP commands live in a two-level numeric namespace: a command set id
// and a command id within the set. Each command below is declared once as
// a commandID; together with the argument order at its call site and the
// field order of its reply struct this fully determines the wire format,
// so a new command is added by declaring a commandID, a reply struct and
// a thin typed method. See
// https://docs.oracle.com/en/java/javase/11/docs/specs/jdwp/jdwp-protocol.html

type commandID struct {
	set  uint8
	cmd  uint8
	name string
}

// VirtualMachine command set.
var (
	vmVersion            = commandID{1, 1, "VirtualMachine.Version"}
	vmClassesBySignature = commandID{1, 2, "VirtualMachine.ClassesBySignature"}
	vmAllClasses         = commandID{1, 3, "VirtualMachine.AllClasses"}
	vmAllThreads         = commandID{1, 4, "VirtualMachine.AllThreads"}
	vmIDSizes            = commandID{1, 7, "VirtualMachine.IDSizes"}
	vmSuspend            = commandID{1, 8, "VirtualMachine.Suspend"}
	vmResume             = commandID{1, 9, "VirtualMachine.Resume"}
	vmExit               = commandID{1, 10, "VirtualMachine.Exit"}
)

// ReferenceType command set.
var (
	refTypeSignature = commandID{2, 1, "ReferenceType.Signature"}
	refTypeFields    = commandID{2, 4, "ReferenceType.Fields"}
	refTypeMethods   = commandID{2, 5, "ReferenceType.Methods"}
)

// Method command set.
var methodLineTable = commandID{6, 1, "Method.LineTable"}

// ObjectReference command set.
var objRefReferenceType = commandID{9, 1, "ObjectReference.ReferenceType"}

// ThreadReference command set.
var (
	threadRefName   = commandID{11, 1, "ThreadReference.Name"}
	threadRefFrames = commandID{11, 6, "ThreadReference.Frames"}
)

type VersionReply struct {
	Description string
	JDWPMajor   int32
	JDWPMinor   int32
	VMVersion   string
	VMName      string
}

// Version returns the debuggee's version description.
func (conn *Conn) Version() (*VersionReply, error) {
	var reply VersionReply
	if err := conn.call(vmVersion, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

type ClassBySignature struct {
	RefTypeTag uint8
	TypeID     ReferenceTypeID
	Status     uint32
}

type ClassesBySignatureReply struct {
	Classes []ClassBySignature
}

// ClassesBySignature returns the loaded reference types matching a JNI
// signature such as "Ljava/lang/Thread;".
func (conn *Conn) ClassesBySignature(signature string) (*ClassesBySignatureReply, error) {
	var reply ClassesBySignatureReply
	if err := conn.call(vmClassesBySignature, &reply, signature); err != nil {
		return nil, err
	}
	return &reply, nil
}

type ClassInfo struct {
	RefTypeTag uint8
	TypeID     ReferenceTypeID
	Signature  string
	Status     uint32
}

type AllClassesReply struct {
	Classes []ClassInfo
}

// AllClasses returns every reference type currently loaded in the
// debuggee.
func (conn *Conn) AllClasses() (*AllClassesReply, error) {
	var reply AllClassesReply
	if err := conn.call(vmAllClasses, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

type AllThreadsReply struct {
	Threads []ThreadID
}

// AllThreads returns the ids of all running threads.
func (conn *Conn) AllThreads() (*AllThreadsReply, error) {
	var reply AllThreadsReply
	if err := conn.call(vmAllThreads, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

type idSizesReply struct {
	FieldIDSize         int32
	MethodIDSize        int32
	ObjectIDSize        int32
	ReferenceTypeIDSize int32
	FrameIDSize         int32
}

func (conn *Conn) idSizes() (*idSizesReply, error) {
	var reply idSizesReply
	if err := conn.call(vmIDSizes, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

// Suspend suspends every thread in the debuggee.
func (conn *Conn) Suspend() error {
	return conn.call(vmSuspend, nil)
}

// Resume resumes threads suspended by Suspend. Suspensions nest; calling
// Resume without a matching prior Suspend is a caller error that this
// layer does not detect.
func (conn *Conn) Resume() error {
	return conn.call(vmResume, nil)
}

// Exit terminates the debuggee with the given exit code.
func (conn *Conn) Exit(code int32) error {
	return conn.call(vmExit, nil, code)
}

type SignatureReply struct {
	Signature string
}

// TypeSignature returns the JNI signature of a reference type.
func (conn *Conn) TypeSignature(id ReferenceTypeID) (*SignatureReply, error) {
	var reply SignatureReply
	if err := conn.call(refTypeSignature, &reply, id); err != nil {
		return nil, err
	}
	return &reply, nil
}

type FieldInfo struct {
	Field     FieldID
	Name      string
	Signature string
	ModBits   int32
}

type FieldsReply struct {
	Fields []FieldInfo
}

// Fields returns the fields declared directly by a reference type,
// excluding inherited ones. Field ids are only unique within the
// declaring type.
func (conn *Conn) Fields(id ReferenceTypeID) (*FieldsReply, error) {
	var reply FieldsReply
	if err := conn.call(refTypeFields, &reply, id); err != nil {
		return nil, err
	}
	return &reply, nil
}

type MethodInfo struct {
	Method    MethodID
	Name      string
	Signature string
	ModBits   int32
}

type MethodsReply struct {
	Methods []MethodInfo
}

// Methods returns the methods declared directly by a reference type.
// Method ids are only unique within the declaring type.
func (conn *Conn) Methods(id ReferenceTypeID) (*MethodsReply, error) {
	var reply MethodsReply
	if err := conn.call(refTypeMethods, &reply, id); err != nil {
		return nil, err
	}
	return &reply, nil
}

type LineTableEntry struct {
	CodeIndex int64
	Line      int32
}

type LineTableReply struct {
	Start int64
	End   int64
	Lines []LineTableEntry
}

// LineTable returns the mapping from byte-code indexes to source lines
// for a method. For native methods Start and End are both -1, or the
// debuggee rejects the request outright with a NATIVE_METHOD error.
func (conn *Conn) LineTable(class ReferenceTypeID, method MethodID) (*LineTableReply, error) {
	var reply LineTableReply
	if err := conn.call(methodLineTable, &reply, class, method); err != nil {
		return nil, err
	}
	return &reply, nil
}

type ReferenceTypeReply struct {
	RefTypeTag uint8
	TypeID     ReferenceTypeID
}

// ReferenceTypeOf returns the runtime type of an object.
func (conn *Conn) ReferenceTypeOf(id ObjectID) (*ReferenceTypeReply, error) {
	var reply ReferenceTypeReply
	if err := conn.call(objRefReferenceType, &reply, id); err != nil {
		return nil, err
	}
	return &reply, nil
}

type threadNameReply struct {
	Name string
}

// ThreadName returns the name of a thread.
func (conn *Conn) ThreadName(id ThreadID) (string, error) {
	var reply threadNameReply
	if err := conn.call(threadRefName, &reply, id); err != nil {
		return "", err
	}
	return reply.Name, nil
}

type FrameInfo struct {
	Frame    FrameID
	Location Location
}

type FramesReply struct {
	Frames []FrameInfo
}

// ThreadFrames returns frames of a suspended thread's call stack,
// starting at index start (0 is the current frame). A length of -1
// requests all remaining frames.
func (conn *Conn) ThreadFrames(id ThreadID, start, length int32) (*FramesReply, error) {
	var reply FramesReply
	if err := conn.call(threadRefFrames, &reply, id, start, length); err != nil {
		return nil, err
	}
	return &reply, nil
}
