// Package proxy is the public client half of the bridge: a lazy,
// chainable handle over a remote object graph exposed on the other end of
// a transport.Endpoint. Property access never talks to the wire; only
// Call, Construct, Await, and Release do.
//
// The implementation lives in internal/engine, shared with the dispatch
// package, since a wrapped callback argument must be servable by whichever
// side sent it and proxyable by whichever side received it; see
// internal/engine's package doc for why that forces a single shared
// implementation behind two public facades.
package proxy

import (
	"github.com/mathe42/comlink2/internal/engine"
	"github.com/mathe42/comlink2/internal/telemetry"
	"github.com/mathe42/comlink2/transport"
)

// Proxy is the client-side handle: a session paired with an accumulated
// key chain. Repeated Get calls for the same key on the same Proxy return
// the identical pointer.
type Proxy = engine.Node

// Wrap installs the client half of the bridge on ep and returns the root
// proxy.
func Wrap(ep transport.Endpoint) *Proxy {
	return engine.Wrap(ep)
}

// WrapLogging is Wrap with an explicit telemetry sink so proxy traffic is
// recorded to a session log rather than silently dropped.
func WrapLogging(ep transport.Endpoint, log *telemetry.Logger) *Proxy {
	return engine.WrapLogging(ep, log)
}
