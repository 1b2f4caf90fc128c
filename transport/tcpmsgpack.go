package transport

import (
	"fmt"
	"net"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
)

// TCPMsgpackEndpoint is the binary-codec sibling of TCPJSONEndpoint: same
// persistent-TCP, one-message-per-frame shape, but encoded with
// MessagePack instead of JSON.
//
// Message values coming off this endpoint are plain Go values
// (map[string]interface{}, []interface{}, numbers, strings) like
// TCPJSONEndpoint's, with one difference: msgpack.Decoder keeps integers
// as Go integer types, where encoding/json.Unmarshal yields float64.
type TCPMsgpackEndpoint struct {
	conn    net.Conn
	enc     *msgpack.Encoder
	dec     *msgpack.Decoder
	onDebug func(format string, args ...interface{})

	mu       sync.Mutex
	handlers map[int]Handler
	nextID   int
	started  bool
}

// NewTCPMsgpack wraps an already-established net.Conn as a msgpack-framed
// Endpoint. The encoder and decoder read field names from the json struct
// tags so a wire.Request posted as a Go struct frames with the exact
// protocol field names ("id", "keyChain", ...) rather than the Go
// identifiers.
func NewTCPMsgpack(conn net.Conn) *TCPMsgpackEndpoint {
	enc := msgpack.NewEncoder(conn)
	enc.SetCustomStructTag("json")
	dec := msgpack.NewDecoder(conn)
	dec.SetCustomStructTag("json")
	return &TCPMsgpackEndpoint{
		conn:     conn,
		enc:      enc,
		dec:      dec,
		handlers: make(map[int]Handler),
	}
}

// DialMsgpack connects to a msgpack-framed TCP listener.
func DialMsgpack(address string) (*TCPMsgpackEndpoint, error) {
	conn, err := net.Dial("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", address, err)
	}
	return NewTCPMsgpack(conn), nil
}

// SetDebugLogger installs a sink for non-fatal decode/send diagnostics.
func (e *TCPMsgpackEndpoint) SetDebugLogger(f func(format string, args ...interface{})) {
	e.onDebug = f
}

func (e *TCPMsgpackEndpoint) debugf(format string, args ...interface{}) {
	if e.onDebug != nil {
		e.onDebug(format, args...)
	}
}

// Post encodes msg as one msgpack value on the connection.
func (e *TCPMsgpackEndpoint) Post(msg interface{}) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.enc.Encode(msg); err != nil {
		return fmt.Errorf("transport: send: %w", err)
	}
	return nil
}

// Subscribe registers h and starts the background read loop on first use,
// mirroring TCPJSONEndpoint.Subscribe: a frame that fails to decode never
// reaches a handler; it is logged and ends the read loop.
func (e *TCPMsgpackEndpoint) Subscribe(h Handler) func() {
	e.mu.Lock()
	id := e.nextID
	e.nextID++
	e.handlers[id] = h
	startNeeded := !e.started
	if startNeeded {
		e.started = true
	}
	e.mu.Unlock()

	if startNeeded {
		go e.readLoop()
	}

	return func() {
		e.mu.Lock()
		delete(e.handlers, id)
		e.mu.Unlock()
	}
}

func (e *TCPMsgpackEndpoint) readLoop() {
	for {
		var v interface{}
		if err := e.dec.Decode(&v); err != nil {
			e.debugf("transport: msgpack decode error, closing read loop: %v", err)
			return
		}

		e.mu.Lock()
		hs := make([]Handler, 0, len(e.handlers))
		for _, h := range e.handlers {
			hs = append(hs, h)
		}
		e.mu.Unlock()

		for _, h := range hs {
			h(v)
		}
	}
}

// Close closes the underlying TCP connection.
func (e *TCPMsgpackEndpoint) Close() error {
	return e.conn.Close()
}

// ListenMsgpack starts a TCP listener at address and hands each accepted
// connection to onConn wrapped as a msgpack Endpoint.
func ListenMsgpack(address string, onConn func(*TCPMsgpackEndpoint)) error {
	ln, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("transport: listen %s: %w", address, err)
	}
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go onConn(NewTCPMsgpack(conn))
	}
}
