package transport

import (
	"errors"
	"sync"
)

// ErrClosed is returned by Post on an endpoint whose peer has been closed.
var ErrClosed = errors.New("transport: endpoint closed")

// InmemEndpoint is one side of an in-process duplex pipe. Two of them,
// created together by NewPair, hand every message posted on one straight
// to the handlers subscribed on the other, with no serialization and no network,
// suitable for same-process Wrap/Expose pairs and for exercising the core
// protocol in tests.
type InmemEndpoint struct {
	mu       sync.Mutex
	handlers map[int]Handler
	nextID   int
	peer     *InmemEndpoint
	closed   bool
}

// NewPair returns two endpoints, each other's peer: posting on one invokes
// every handler subscribed on the other. The concrete type is returned
// (rather than the bare Endpoint interface) so callers can call Close.
func NewPair() (*InmemEndpoint, *InmemEndpoint) {
	a := &InmemEndpoint{handlers: make(map[int]Handler)}
	b := &InmemEndpoint{handlers: make(map[int]Handler)}
	a.peer = b
	b.peer = a
	return a, b
}

func (e *InmemEndpoint) Post(msg interface{}) error {
	e.mu.Lock()
	peer := e.peer
	closed := e.closed
	e.mu.Unlock()
	if closed || peer == nil {
		return ErrClosed
	}

	peer.mu.Lock()
	if peer.closed {
		peer.mu.Unlock()
		return ErrClosed
	}
	// Snapshot handlers so a handler that subscribes/unsubscribes
	// re-entrantly doesn't race this delivery.
	hs := make([]Handler, 0, len(peer.handlers))
	for _, h := range peer.handlers {
		hs = append(hs, h)
	}
	peer.mu.Unlock()

	for _, h := range hs {
		h(msg)
	}
	return nil
}

func (e *InmemEndpoint) Subscribe(h Handler) func() {
	e.mu.Lock()
	id := e.nextID
	e.nextID++
	e.handlers[id] = h
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		delete(e.handlers, id)
		e.mu.Unlock()
	}
}

// Close marks the endpoint closed; further Posts on it or on its peer
// return ErrClosed. Subscribed handlers are simply never called again:
// there is no "close" message on the wire, and the core only ever
// observes teardown as permanent silence.
func (e *InmemEndpoint) Close() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
}
