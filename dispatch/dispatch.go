// Package dispatch is the public server half of the bridge: it walks an
// inbound request's key chain against an exposed root value via
// reflection, invokes or instantiates or awaits the resolved target, and
// replies with the encoded result or an error.
//
// The implementation lives in internal/engine; see that package's doc
// comment for why the client proxy and server dispatcher share one
// implementation behind two public facades.
package dispatch

import (
	"github.com/mathe42/comlink2/internal/engine"
	"github.com/mathe42/comlink2/internal/telemetry"
	"github.com/mathe42/comlink2/transport"
)

// Expose installs the server half of the bridge for root on ep. The
// returned func stops serving;
// calling it is equivalent to the peer sending a release request for the
// root, though it does not itself notify the peer.
func Expose(root interface{}, ep transport.Endpoint) (func(), error) {
	return engine.Serve(root, ep)
}

// ExposeLogging is Expose with an explicit telemetry sink.
func ExposeLogging(root interface{}, ep transport.Endpoint, log *telemetry.Logger) (func(), error) {
	return engine.ServeLogging(root, ep, log)
}
