package jdwp

import "fmt"

// HandshakeError is returned by Attach when the debuggee does not echo
// the expected handshake token.
type HandshakeError struct {
	Reply []byte
}

func (err *HandshakeError) Error() string {
	return fmt.Sprintf("jdwp handshake failed: got %q", string(err.Reply))
}

// ProtocolError is an error response from the debuggee: the reply frame
// carried a nonzero error code and no body.
type ProtocolError struct {
	Code uint16
	Cmd  string
}

func (err *ProtocolError) Error() string {
	if name, ok := errorCodeNames[err.Code]; ok {
		return fmt.Sprintf("jdwp error %s (%d) during %s", name, err.Code, err.Cmd)
	}
	return fmt.Sprintf("jdwp error %d during %s", err.Code, err.Cmd)
}

// FramingError is returned when a reply frame itself is malformed: a
// length shorter than the header, a correlation id that does not match
// the request, or a missing reply flag. Framing errors are fatal to the
// connection; no resynchronization is attempted.
type FramingError struct {
	Reason string
}

func (err *FramingError) Error() string {
	return "jdwp malformed reply: " + err.Reason
}

// MethodNotFoundError is returned when a method id is not present among
// the methods of its declaring class.
type MethodNotFoundError struct {
	Class  ReferenceTypeID
	Method MethodID
}

func (err *MethodNotFoundError) Error() string {
	return fmt.Sprintf("method %d not found in class %d", err.Method, err.Class)
}

// JDWP error code constants, as defined by the protocol specification.
// Only codes this client reacts to get named constants; the rest are
// still translated to names in error messages via errorCodeNames.
const (
	errAbsentInformation uint16 = 101
	errNativeMethod      uint16 = 512
)

var errorCodeNames = map[uint16]string{
	10:  "INVALID_THREAD",
	11:  "INVALID_THREAD_GROUP",
	12:  "INVALID_PRIORITY",
	13:  "THREAD_NOT_SUSPENDED",
	14:  "THREAD_SUSPENDED",
	15:  "THREAD_NOT_ALIVE",
	20:  "INVALID_OBJECT",
	21:  "INVALID_CLASS",
	22:  "CLASS_NOT_PREPARED",
	23:  "INVALID_METHODID",
	24:  "INVALID_LOCATION",
	25:  "INVALID_FIELDID",
	30:  "INVALID_FRAMEID",
	31:  "NO_MORE_FRAMES",
	32:  "OPAQUE_FRAME",
	33:  "NOT_CURRENT_FRAME",
	34:  "TYPE_MISMATCH",
	35:  "INVALID_SLOT",
	40:  "DUPLICATE",
	41:  "NOT_FOUND",
	50:  "INVALID_MONITOR",
	51:  "NOT_MONITOR_OWNER",
	52:  "INTERRUPT",
	60:  "INVALID_CLASS_FORMAT",
	61:  "CIRCULAR_CLASS_DEFINITION",
	62:  "FAILS_VERIFICATION",
	65:  "INVALID_TYPESTATE",
	68:  "UNSUPPORTED_VERSION",
	99:  "NOT_IMPLEMENTED",
	100: "NULL_POINTER",
	101: "ABSENT_INFORMATION",
	102: "INVALID_EVENT_TYPE",
	103: "ILLEGAL_ARGUMENT",
	110: "OUT_OF_MEMORY",
	111: "ACCESS_DENIED",
	112: "VM_DEAD",
	113: "INTERNAL",
	115: "UNATTACHED_THREAD",
	500: "INVALID_TAG",
	502: "ALREADY_INVOKING",
	503: "INVALID_INDEX",
	504: "INVALID_LENGTH",
	506: "INVALID_STRING",
	508: "INVALID_CLASS_LOADER",
	509: "INVALID_ARRAY",
	510: "TRANSPORT_LOAD",
	511: "TRANSPORT_INIT",
	512: "NATIVE_METHOD",
	514: "INVALID_COUNT",
}

// isNoLineInfo reports whether err is the debuggee's way of saying a
// method has no line table: native methods and methods compiled without
// debug information. This is an expected outcome, not a fault.
func isNoLineInfo(err error) bool {
	perr, ok := err.(*ProtocolError)
	if !ok {
		return false
	}
	return perr.Code == errNativeMethod || perr.Code == errAbsentInformation
}
