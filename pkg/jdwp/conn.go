// Package jdwp implements a client for the Java Debug Wire Protocol,
// the binary protocol a JVM exposes for external debuggers. It covers
// the command subset needed to enumerate threads, walk stack frames,
// resolve source locations and read type metadata; adding further
// commands is a data addition (see commands.go).
package jdwp

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/jgallag88/libjdb/pkg/jdwp/wire"
	"github.com/jgallag88/libjdb/pkg/logflags"
	"github.com/sirupsen/logrus"
)

// handshakeToken is exchanged verbatim in both directions when a
// connection is established.
const handshakeToken = "JDWP-Handshake"

// headerSize is the size of a request or reply frame header: length,
// correlation id, flags, and either command set + command or the error
// code.
const headerSize = 11

const replyFlag = 0x80

// Conn is a connection to the debug port of a running JVM. It owns the
// socket and the request correlation counter, and records the identifier
// widths negotiated after the handshake. Every object-model entity
// derived from the connection shares it; entities become useless once the
// connection is closed.
//
// A Conn allows exactly one outstanding request: execute is a synchronous
// send-then-receive and serializes callers with a mutex. JDWP servers
// process one request per socket at a time in practice, so request
// pipelining is not implemented even though the frame format would allow
// it.
type Conn struct {
	mu     sync.Mutex
	c      net.Conn
	rdr    *bufio.Reader
	nextID uint32
	closed bool

	sizes wire.IDSizes

	log *logrus.Entry
}

// Dial connects to the JVM debug port at addr, performs the handshake
// and negotiates identifier sizes. The returned connection is ready to
// execute commands.
func Dial(addr string) (*Conn, error) {
	c, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	conn := &Conn{
		c:     c,
		rdr:   bufio.NewReader(c),
		sizes: wire.DefaultIDSizes(),
		log:   logflags.JDWPWireLogger(),
	}
	if err := conn.handshake(); err != nil {
		c.Close()
		return nil, err
	}
	if err := conn.negotiateIDSizes(); err != nil {
		c.Close()
		return nil, err
	}
	return conn, nil
}

func (conn *Conn) handshake() error {
	if _, err := conn.c.Write([]byte(handshakeToken)); err != nil {
		return err
	}
	buf := make([]byte, len(handshakeToken))
	if _, err := io.ReadFull(conn.rdr, buf); err != nil {
		return err
	}
	if string(buf) != handshakeToken {
		return &HandshakeError{Reply: buf}
	}
	conn.log.Debug("handshake complete")
	return nil
}

// negotiateIDSizes issues VirtualMachine.IDSizes and records the widths
// for all subsequent identifier fields on this connection. The protocol
// is not defined entirely statically: until the reply arrives the
// connection uses the 8-byte defaults, which is also what the IDSizes
// reply itself is decoded with (it contains no identifiers).
func (conn *Conn) negotiateIDSizes() error {
	reply, err := conn.idSizes()
	if err != nil {
		return err
	}
	conn.sizes = wire.IDSizes{
		Field:         int(reply.FieldIDSize),
		Method:        int(reply.MethodIDSize),
		Object:        int(reply.ObjectIDSize),
		ReferenceType: int(reply.ReferenceTypeIDSize),
		Frame:         int(reply.FrameIDSize),
	}
	for _, sz := range []int{conn.sizes.Field, conn.sizes.Method, conn.sizes.Object, conn.sizes.ReferenceType, conn.sizes.Frame} {
		if sz <= 0 || sz > 8 {
			return &FramingError{Reason: fmt.Sprintf("unsupported identifier size %d", sz)}
		}
	}
	conn.log.Debugf("id sizes: field=%d method=%d object=%d reftype=%d frame=%d",
		conn.sizes.Field, conn.sizes.Method, conn.sizes.Object, conn.sizes.ReferenceType, conn.sizes.Frame)
	return nil
}

// IDSizes returns the identifier widths negotiated for this connection.
func (conn *Conn) IDSizes() wire.IDSizes {
	return conn.sizes
}

// Close tears down the connection. Entities derived from it keep their
// shared reference but any operation on them will fail afterwards.
func (conn *Conn) Close() error {
	conn.mu.Lock()
	defer conn.mu.Unlock()
	if conn.closed {
		return nil
	}
	conn.closed = true
	return conn.c.Close()
}

// execute sends one command frame and reads its reply frame. The reply's
// correlation id must match the request and its error code must be zero;
// otherwise no attempt is made to decode a body. All failures are
// surfaced immediately, nothing is retried.
func (conn *Conn) execute(set, cmd uint8, payload []byte, name string) ([]byte, error) {
	conn.mu.Lock()
	defer conn.mu.Unlock()

	if conn.closed {
		return nil, net.ErrClosed
	}

	id := conn.nextID
	conn.nextID++

	hdr := make([]byte, headerSize)
	binary.BigEndian.PutUint32(hdr[0:4], uint32(headerSize+len(payload)))
	binary.BigEndian.PutUint32(hdr[4:8], id)
	hdr[8] = 0 // flags are always zero for requests
	hdr[9] = set
	hdr[10] = cmd

	if logflags.JDWPWire() {
		conn.log.Debugf("<- %s id=%d (%d byte payload)", name, id, len(payload))
	}
	if _, err := conn.c.Write(hdr); err != nil {
		return nil, err
	}
	if _, err := conn.c.Write(payload); err != nil {
		return nil, err
	}

	if _, err := io.ReadFull(conn.rdr, hdr); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(hdr[0:4])
	replyID := binary.BigEndian.Uint32(hdr[4:8])
	flags := hdr[8]
	errCode := binary.BigEndian.Uint16(hdr[9:11])

	if length < headerSize {
		return nil, &FramingError{Reason: fmt.Sprintf("frame length %d shorter than header", length)}
	}
	if replyID != id {
		return nil, &FramingError{Reason: fmt.Sprintf("reply id %d does not match request id %d", replyID, id)}
	}
	if flags&replyFlag == 0 {
		return nil, &FramingError{Reason: fmt.Sprintf("reply flag not set (flags %#x)", flags)}
	}

	body := make([]byte, length-headerSize)
	if _, err := io.ReadFull(conn.rdr, body); err != nil {
		return nil, err
	}
	if logflags.JDWPWire() {
		conn.log.Debugf("-> %s id=%d err=%d (%d byte body)", name, replyID, errCode, len(body))
	}

	if errCode != 0 {
		return nil, &ProtocolError{Code: errCode, Cmd: name}
	}
	return body, nil
}

// call executes cmd with the given arguments and decodes the reply body
// into reply. Argument order at the call site and the field order of the
// reply struct are the single source of truth for the wire format of the
// command. A nil reply asserts that the command returns an empty body.
func (conn *Conn) call(cmd commandID, reply interface{}, args ...interface{}) error {
	e := wire.NewEncoder(conn.sizes)
	for _, arg := range args {
		if err := wire.Marshal(e, arg); err != nil {
			return err
		}
	}
	body, err := conn.execute(cmd.set, cmd.cmd, e.Bytes(), cmd.name)
	if err != nil {
		return err
	}
	d := wire.NewDecoder(body, conn.sizes)
	if reply != nil {
		if err := wire.Unmarshal(d, reply); err != nil {
			return err
		}
	}
	if d.Len() != 0 {
		return wire.NewDecodeError("%d trailing bytes in %s reply", d.Len(), cmd.name)
	}
	return nil
}
