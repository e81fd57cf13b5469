package jdwp

import (
	"encoding/binary"
	"errors"
	"io"
	"net"
	"sync"
	"testing"

	"github.com/jgallag88/libjdb/pkg/jdwp/wire"
)

// fakeServer speaks the server side of the protocol on a loopback
// listener: it answers the handshake, serves IDSizes, and delegates
// everything else to handler.
type fakeServer struct {
	t  *testing.T
	ln net.Listener

	handshakeReply []byte
	sizes          wire.IDSizes
	handler        func(set, cmd uint8, payload []byte) (errCode uint16, body []byte)
	rewriteID      func(id uint32) uint32

	once sync.Once

	mu         sync.Mutex
	requestIDs []uint32
}

func newFakeServer(t *testing.T) *fakeServer {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	s := &fakeServer{
		t:              t,
		ln:             ln,
		handshakeReply: []byte(handshakeToken),
		sizes:          wire.DefaultIDSizes(),
	}
	t.Cleanup(func() { ln.Close() })
	return s
}

// addr starts the server on first use, after the test has finished
// configuring it.
func (s *fakeServer) addr() string {
	s.once.Do(func() { go s.serve() })
	return s.ln.Addr().String()
}

func (s *fakeServer) seenRequestIDs() []uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uint32(nil), s.requestIDs...)
}

func (s *fakeServer) serve() {
	c, err := s.ln.Accept()
	if err != nil {
		return
	}
	defer c.Close()

	tok := make([]byte, len(handshakeToken))
	if _, err := io.ReadFull(c, tok); err != nil {
		return
	}
	if _, err := c.Write(s.handshakeReply); err != nil {
		return
	}

	hdr := make([]byte, headerSize)
	for {
		if _, err := io.ReadFull(c, hdr); err != nil {
			return
		}
		length := binary.BigEndian.Uint32(hdr[0:4])
		id := binary.BigEndian.Uint32(hdr[4:8])
		set, cmd := hdr[9], hdr[10]
		payload := make([]byte, length-headerSize)
		if _, err := io.ReadFull(c, payload); err != nil {
			return
		}

		s.mu.Lock()
		s.requestIDs = append(s.requestIDs, id)
		s.mu.Unlock()

		var errCode uint16
		var body []byte
		if set == 1 && cmd == 7 {
			e := wire.NewEncoder(s.sizes)
			e.Int32(int32(s.sizes.Field))
			e.Int32(int32(s.sizes.Method))
			e.Int32(int32(s.sizes.Object))
			e.Int32(int32(s.sizes.ReferenceType))
			e.Int32(int32(s.sizes.Frame))
			body = e.Bytes()
		} else if s.handler != nil {
			errCode, body = s.handler(set, cmd, payload)
		} else {
			errCode = 99 // NOT_IMPLEMENTED
		}

		if s.rewriteID != nil {
			id = s.rewriteID(id)
		}
		reply := make([]byte, headerSize+len(body))
		binary.BigEndian.PutUint32(reply[0:4], uint32(len(reply)))
		binary.BigEndian.PutUint32(reply[4:8], id)
		reply[8] = replyFlag
		binary.BigEndian.PutUint16(reply[9:11], errCode)
		copy(reply[headerSize:], body)
		if _, err := c.Write(reply); err != nil {
			return
		}
	}
}

// marshalReply encodes a reply struct the way the server would.
func marshalReply(t *testing.T, sizes wire.IDSizes, v interface{}) []byte {
	e := wire.NewEncoder(sizes)
	if err := wire.Marshal(e, v); err != nil {
		t.Fatal(err)
	}
	return e.Bytes()
}

func TestDialHandshake(t *testing.T) {
	s := newFakeServer(t)
	conn, err := Dial(s.addr())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	conn.Close()
}

func TestDialHandshakeMismatch(t *testing.T) {
	s := newFakeServer(t)
	s.handshakeReply = []byte("JDWP-Handsnake")
	_, err := Dial(s.addr())
	var herr *HandshakeError
	if !errors.As(err, &herr) {
		t.Fatalf("expected HandshakeError, got %v", err)
	}
}

func TestCorrelationIDs(t *testing.T) {
	s := newFakeServer(t)
	s.handler = func(set, cmd uint8, payload []byte) (uint16, []byte) {
		return 0, marshalReply(t, s.sizes, VersionReply{Description: "fake", VMName: "fake"})
	}
	conn, err := Dial(s.addr())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	if _, err := conn.Version(); err != nil {
		t.Fatal(err)
	}
	if _, err := conn.Version(); err != nil {
		t.Fatal(err)
	}
	ids := s.seenRequestIDs()
	if len(ids) != 3 {
		t.Fatalf("expected 3 requests (IDSizes + 2 Version), got %d", len(ids))
	}
	for i, id := range ids {
		if id != uint32(i) {
			t.Fatalf("expected correlation ids to count up from 0, got %v", ids)
		}
	}
}

func TestErrorCodePropagation(t *testing.T) {
	s := newFakeServer(t)
	s.handler = func(set, cmd uint8, payload []byte) (uint16, []byte) {
		// The body of an error reply is garbage and must not be decoded.
		return 35, []byte{0xde, 0xad, 0xbe, 0xef}
	}
	conn, err := Dial(s.addr())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	_, err = conn.Version()
	var perr *ProtocolError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ProtocolError, got %v", err)
	}
	if perr.Code != 35 {
		t.Fatalf("expected error code 35, got %d", perr.Code)
	}
}

func TestReplyIDMismatch(t *testing.T) {
	s := newFakeServer(t)
	s.rewriteID = func(id uint32) uint32 { return id + 100 }
	_, err := Dial(s.addr())
	var ferr *FramingError
	if !errors.As(err, &ferr) {
		t.Fatalf("expected FramingError for mismatched reply id, got %v", err)
	}
}

func TestNegotiatedIDWidths(t *testing.T) {
	s := newFakeServer(t)
	s.sizes = wire.IDSizes{Field: 4, Method: 4, Object: 4, ReferenceType: 4, Frame: 4}
	var mu sync.Mutex
	var namePayloadLen int
	s.handler = func(set, cmd uint8, payload []byte) (uint16, []byte) {
		switch {
		case set == 1 && cmd == 4:
			return 0, marshalReplyWith(t, s.sizes, func(e *wire.Encoder) {
				e.Int32(1)
				e.ID(0x1234, 4)
			})
		case set == 11 && cmd == 1:
			mu.Lock()
			namePayloadLen = len(payload)
			mu.Unlock()
			return 0, marshalReply(t, s.sizes, threadNameReply{Name: "main"})
		}
		return 99, nil
	}
	conn, err := Dial(s.addr())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	if conn.IDSizes().Object != 4 {
		t.Fatalf("expected negotiated 4-byte object ids, got %d", conn.IDSizes().Object)
	}
	threads, err := conn.AllThreads()
	if err != nil {
		t.Fatal(err)
	}
	if len(threads.Threads) != 1 || threads.Threads[0] != 0x1234 {
		t.Fatalf("bad threads reply: %+v", threads)
	}
	name, err := conn.ThreadName(threads.Threads[0])
	if err != nil {
		t.Fatal(err)
	}
	if name != "main" {
		t.Fatalf("expected thread name %q, got %q", "main", name)
	}
	mu.Lock()
	defer mu.Unlock()
	if namePayloadLen != 4 {
		t.Fatalf("expected a 4-byte thread id on the wire, got %d bytes", namePayloadLen)
	}
}

func marshalReplyWith(t *testing.T, sizes wire.IDSizes, fn func(e *wire.Encoder)) []byte {
	e := wire.NewEncoder(sizes)
	fn(e)
	return e.Bytes()
}

func TestTrailingBytesRejected(t *testing.T) {
	s := newFakeServer(t)
	s.handler = func(set, cmd uint8, payload []byte) (uint16, []byte) {
		body := marshalReply(t, s.sizes, VersionReply{})
		return 0, append(body, 0xff)
	}
	conn, err := Dial(s.addr())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	_, err = conn.Version()
	var derr *wire.DecodeError
	if !errors.As(err, &derr) {
		t.Fatalf("expected DecodeError for trailing bytes, got %v", err)
	}
}
