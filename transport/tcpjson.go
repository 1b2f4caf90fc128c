package transport

import (
	"encoding/json"
	"fmt"
	"net"
	"sync"
)

// TCPJSONEndpoint is a JSON-framed Endpoint over a persistent TCP
// connection: one json.Decoder value per line of the stream. Text
// transports serialise to and from JSON and swallow parse failures rather
// than throw them into the core. The type is symmetric: it serves both
// sides depending on whether the caller Dials or wraps an accepted
// net.Conn.
type TCPJSONEndpoint struct {
	conn    net.Conn
	enc     *json.Encoder
	dec     *json.Decoder
	onDebug func(format string, args ...interface{})

	mu       sync.Mutex
	handlers map[int]Handler
	nextID   int
	started  bool
}

// NewTCPJSON wraps an already-established net.Conn as an Endpoint. Both
// Dial and Listen/Accept callers use this constructor; the resulting
// endpoint is symmetric.
func NewTCPJSON(conn net.Conn) *TCPJSONEndpoint {
	return &TCPJSONEndpoint{
		conn:     conn,
		enc:      json.NewEncoder(conn),
		dec:      json.NewDecoder(conn),
		handlers: make(map[int]Handler),
	}
}

// Dial connects to a TCP listener and returns a ready endpoint.
func Dial(address string) (*TCPJSONEndpoint, error) {
	conn, err := net.Dial("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", address, err)
	}
	return NewTCPJSON(conn), nil
}

// SetDebugLogger installs a sink for non-fatal decode/send diagnostics.
func (e *TCPJSONEndpoint) SetDebugLogger(f func(format string, args ...interface{})) {
	e.onDebug = f
}

func (e *TCPJSONEndpoint) debugf(format string, args ...interface{}) {
	if e.onDebug != nil {
		e.onDebug(format, args...)
	}
}

// Post JSON-encodes msg and writes it as one line to the connection.
func (e *TCPJSONEndpoint) Post(msg interface{}) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.enc.Encode(msg); err != nil {
		return fmt.Errorf("transport: send: %w", err)
	}
	return nil
}

// Subscribe registers h and, on the first subscription, starts the
// background read loop that decodes one JSON value per line and fans it
// out to every registered handler. Any well-formed JSON value is
// delivered, whatever its shape. A decode failure never reaches a
// handler: it is logged (if a debug logger is installed) and ends the
// read loop, so no further messages are delivered on this endpoint.
func (e *TCPJSONEndpoint) Subscribe(h Handler) func() {
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

func (e *TCPJSONEndpoint) readLoop() {
	for {
		var raw json.RawMessage
		if err := e.dec.Decode(&raw); err != nil {
			e.debugf("transport: decode error, closing read loop: %v", err)
			return
		}

		var v interface{}
		if err := json.Unmarshal(raw, &v); err != nil {
			e.debugf("transport: malformed JSON dropped: %v", err)
			continue
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

// Close closes the underlying TCP connection, which unblocks and ends the
// read loop on its next Decode call.
func (e *TCPJSONEndpoint) Close() error {
	return e.conn.Close()
}

// Listen starts a TCP listener at address and invokes onConn for every
// accepted connection, wrapped as an Endpoint. Listen blocks until the
// listener errors or is closed.
func Listen(address string, onConn func(*TCPJSONEndpoint)) error {
	ln, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("transport: listen %s: %w", address, err)
	}
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go onConn(NewTCPJSON(conn))
	}
}
