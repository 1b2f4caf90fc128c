// Package engine fuses the client proxy and the server dispatcher into
// one implementation. The protocol itself forces this: the same
// wrap/expose protocol runs recursively inside every sub-channel, so a
// value wrapped as a call argument must be *served* by whichever side
// sent it, while a value wrapped in a response must be *proxied* by
// whichever side received it, and a single callback argument crosses
// that line in both directions over its own lifetime. Keeping Node
// (client) and Serve (server) in one package lets a dispatcher build a
// live callback stub with the very same machinery a top-level Wrap call
// uses, and lets a client expose an outgoing function argument with the
// very same machinery a top-level Expose call uses, without a circular
// dependency between two public packages.
//
// The public packages proxy and dispatch are thin facades over this
// engine.
package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/mathe42/comlink2/internal/codec"
	"github.com/mathe42/comlink2/internal/idgen"
	"github.com/mathe42/comlink2/internal/pending"
	"github.com/mathe42/comlink2/internal/telemetry"
	"github.com/mathe42/comlink2/internal/wire"
	"github.com/mathe42/comlink2/multiplex"
	"github.com/mathe42/comlink2/transport"
)

// session is the per-Wrap client state living on one endpoint: its own
// id allocator, pending-request table, mark set, and sub-channel registry
// (Serve keeps its own allocator and mark set in a dispatcher).
// Deliberately not package globals: two bridges in one process must not
// share ids or marks.
type session struct {
	ep       transport.Endpoint
	ids      *idgen.Allocator
	pend     *pending.Table
	marks    *codec.MarkSet
	channels *multiplex.Registry
	log      *telemetry.Logger

	unsubClient func()
}

// logf writes a debug or error line through this session's telemetry
// sink, if one is installed.
func (s *session) logf(debug bool, format string, args ...interface{}) {
	if s.log == nil {
		return
	}
	if debug {
		s.log.Debug(format, args...)
	} else {
		s.log.Error(format, args...)
	}
}

func newSession(ep transport.Endpoint) *session {
	return &session{
		ep:       ep,
		ids:      idgen.New(),
		pend:     pending.New(),
		marks:    codec.NewMarkSet(),
		channels: multiplex.NewRegistry(ep),
	}
}

// Node is the client-side proxy handle: a session paired with an
// accumulated key chain. All operations on it are explicit
// method dispatches (Get/Call/Construct/Await/Release) rather than
// language-level interception, since Go has no Proxy facility.
type Node struct {
	sess  *session
	chain []string

	mu       sync.Mutex
	children map[string]*Node

	// releaseTag is set when this Node is the root of a decoded wrapped
	// value (i.e. chain is empty and this Node's session talks to a
	// sub-channel the peer exposed); Release() is only meaningful then.
	releaseTag  interface{}
	releaseOnce sync.Once
}

// Wrap installs the client half of the bridge on ep and returns the root
// proxy node. Property access on the returned node never posts a message;
// only Call/Construct/Await/Release do.
func Wrap(ep transport.Endpoint) *Node {
	return WrapLogging(ep, nil)
}

// WrapLogging is Wrap with an explicit telemetry sink.
func WrapLogging(ep transport.Endpoint, log *telemetry.Logger) *Node {
	sess := newSession(ep)
	sess.log = log
	sess.unsubClient = ep.Subscribe(sess.handleClientMessage)
	return &Node{sess: sess, children: make(map[string]*Node)}
}

// StopClient unsubscribes this node's session from further incoming
// response/error traffic. Exposed mainly for tests and for Release().
func (n *Node) StopClient() {
	if n.sess.unsubClient != nil {
		n.sess.unsubClient()
	}
}

// Get returns the cached child proxy for key, creating it on first access.
// Repeated calls for the same key on the same node return the identical
// *Node pointer.
func (n *Node) Get(key string) *Node {
	n.mu.Lock()
	defer n.mu.Unlock()
	if c, ok := n.children[key]; ok {
		return c
	}
	child := &Node{
		sess:     n.sess,
		chain:    append(append([]string{}, n.chain...), key),
		children: make(map[string]*Node),
	}
	n.children[key] = child
	return child
}

// Chain returns this node's accumulated key chain.
func (n *Node) Chain() []string {
	return append([]string{}, n.chain...)
}

// MarkForWrap records v in this session's marked-for-wrap set: when v is
// later passed as an argument it travels wrapped (as a live sub-proxy on
// the peer) even though it carries no functions and would otherwise be
// inlined. Returns false if v's kind has no stable identity to mark
// (plain values that cannot alias are copied by the transport anyway).
func (n *Node) MarkForWrap(v interface{}) bool {
	return n.sess.marks.Mark(v)
}

// Call invokes the function at this node's key chain with args, blocking
// until the response or error arrives.
func (n *Node) Call(args ...interface{}) (interface{}, error) {
	return n.request(wire.TypeCall, args)
}

// Construct instantiates the constructor at this node's key chain with
// args. The dispatcher always wraps a construct result, so a successful
// Construct always yields a *Node.
func (n *Node) Construct(args ...interface{}) (interface{}, error) {
	return n.request(wire.TypeConstruct, args)
}

// Await resolves the value at this node's key chain without invoking
// anything: the explicit terminator standing in for awaiting a property
// chain directly.
func (n *Node) Await() (interface{}, error) {
	return n.request(wire.TypeAwait, nil)
}

// Release tells the exposing peer this sub-proxy is no longer needed so
// it can stop routing the sub-channel. It is a no-op on a node that isn't
// the root of a wrapped value. Release is fire-and-forget: it does not
// wait for any acknowledgement.
func (n *Node) Release() error {
	if n.releaseTag == nil {
		return nil
	}
	var err error
	n.releaseOnce.Do(func() {
		req := wire.Request{ID: n.sess.ids.Next(), Type: wire.TypeRelease, KeyChain: []string{}}
		err = n.sess.ep.Post(req)
		n.StopClient()
	})
	return err
}

func (n *Node) request(typ string, rawArgs []interface{}) (interface{}, error) {
	id := n.sess.ids.Next()

	encodedArgs, err := n.encodeArgs(rawArgs)
	if err != nil {
		return nil, fmt.Errorf("comlink2: encode arguments: %w", err)
	}

	chain := n.chain
	if chain == nil {
		chain = []string{}
	}
	req := wire.Request{ID: id, Type: typ, KeyChain: chain, Args: encodedArgs}

	type outcome struct {
		val interface{}
		err error
	}
	ch := make(chan outcome, 1)
	n.sess.pend.Insert(id, pending.Resolver{
		Resolve: func(data interface{}) { ch <- outcome{val: data} },
		Reject:  func(e error) { ch <- outcome{err: e} },
	})

	if err := n.sess.ep.Post(req); err != nil {
		// A failed send leaves the entry pending forever; surface the
		// failure synchronously since Go has no implicit timeout or
		// cancellation layer for the caller to otherwise observe it.
		n.sess.logf(false, "send failed for request %v: %v", id, err)
		return nil, fmt.Errorf("comlink2: send request: %w", err)
	}

	o := <-ch
	return o.val, o.err
}

// encodeArgs classifies each argument as inline or wrapped, exposing any
// must-wrap value (typically a callback function) over a freshly
// allocated sub-channel of this node's endpoint.
func (n *Node) encodeArgs(args []interface{}) ([]wire.EncodedValue, error) {
	out := make([]wire.EncodedValue, len(args))
	for i, a := range args {
		wrapped, tagOrData, err := codec.Encode(a, n.sess.marks, n.allocateTag, n.exposeOnTag)
		if err != nil {
			return nil, err
		}
		if wrapped {
			out[i] = wire.Wrapped(tagOrData)
		} else {
			out[i] = wire.Inline(tagOrData)
		}
	}
	return out, nil
}

func (n *Node) allocateTag() (interface{}, error) {
	return n.sess.ids.Next(), nil
}

func (n *Node) exposeOnTag(v interface{}, tag interface{}) error {
	derived := n.sess.channels.Get(tag)
	_, err := ServeLogging(v, derived, n.sess.log)
	return err
}

// handleClientMessage is the top-level handler installed by Wrap. It only
// ever reacts to response/error messages whose id is in this session's
// pending table; everything else (sub-channel frames, unmatched ids,
// request-shaped messages meant for a Serve() on the same endpoint) is
// silently ignored.
func (s *session) handleClientMessage(msg interface{}) {
	env, ok := sniff(msg)
	if !ok || env.HasChannel() {
		return
	}

	switch env.Type {
	case wire.TypeError:
		if env.Error == nil {
			return
		}
		s.pend.Reject(env.ID, errors.New(*env.Error))
	case wire.TypeResponse:
		var ev wire.EncodedValue
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, &ev); err != nil {
				s.logf(false, "malformed response data for %v: %v", env.ID, err)
				return
			}
		}
		val := s.decodeValue(ev)
		s.pend.Resolve(env.ID, val)
	default:
		// call/construct/await/release, or anything else: not ours.
	}
}

// decodeValue turns a response's EncodedValue into the value a caller's
// Call/Construct/Await sees: inline data as-is, or a fresh sub-proxy Node
// wrapping the named sub-channel.
func (s *session) decodeValue(ev wire.EncodedValue) interface{} {
	if !ev.IsWrapped() {
		return ev.Data
	}
	derived := s.channels.Get(ev.ID)
	child := WrapLogging(derived, s.log)
	child.releaseTag = ev.ID
	return child
}

// sniff classifies an arbitrary incoming message value by round-tripping
// it through JSON into the superset wire.Envelope shape. This works
// uniformly whether msg is a literal Go struct (posted by an in-memory
// endpoint) or a map[string]interface{} (decoded from JSON by a
// byte-stream endpoint).
func sniff(msg interface{}) (wire.Envelope, bool) {
	raw, err := json.Marshal(msg)
	if err != nil {
		return wire.Envelope{}, false
	}
	var env wire.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return wire.Envelope{}, false
	}
	return env, true
}
