// Package multiplex implements a sub-channel multiplexer: given a base
// Endpoint and a tag, it produces a derived Endpoint that only sees
// messages framed as {channel:tag, payload:...} and that frames its own
// outgoing posts the same way. Derivations sharing one tag broadcast:
// each receives a copy of every matching frame.
package multiplex

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/mathe42/comlink2/internal/wire"
	"github.com/mathe42/comlink2/transport"
)

// channelKey renders a tag (string or int) to a comparable map key.
func channelKey(tag interface{}) string {
	return fmt.Sprint(tag)
}

// subChannel is the Endpoint view of one (base, tag) pair.
type subChannel struct {
	base transport.Endpoint
	tag  interface{}
}

// New returns the derived endpoint E/tag over base. Posting on it frames
// the payload as {channel:tag, payload:v} on base; messages arriving on
// base whose channel field does not equal tag are invisible to it, and a
// bare-stream message (no channel field at all) is likewise invisible;
// it belongs to the RPC layer running directly on base.
func New(base transport.Endpoint, tag interface{}) transport.Endpoint {
	return &subChannel{base: base, tag: tag}
}

func (s *subChannel) Post(msg interface{}) error {
	return s.base.Post(wire.ChannelFrame{Channel: s.tag, Payload: msg})
}

func (s *subChannel) Subscribe(h transport.Handler) func() {
	want := channelKey(s.tag)
	return s.base.Subscribe(func(msg interface{}) {
		ch, payload, ok := sniffChannel(msg)
		if !ok || channelKey(ch) != want {
			return
		}
		h(payload)
	})
}

// sniffChannel re-marshals msg (which may be a literal Go struct posted by
// an in-memory endpoint, or a map[string]interface{} decoded from JSON by
// a byte-stream endpoint) through JSON to classify it uniformly, then
// reports whether it carries a top-level "channel" field and, if so, its
// tag and raw payload.
func sniffChannel(msg interface{}) (tag interface{}, payload interface{}, ok bool) {
	raw, err := json.Marshal(msg)
	if err != nil {
		return nil, nil, false
	}

	var frame struct {
		Channel interface{}     `json:"channel"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(raw, &frame); err != nil {
		return nil, nil, false
	}
	if frame.Channel == nil {
		return nil, nil, false
	}

	var payloadVal interface{}
	if err := json.Unmarshal(frame.Payload, &payloadVal); err != nil {
		return nil, nil, false
	}
	return frame.Channel, payloadVal, true
}

// Registry hands out unique derived-endpoint instances per tag so the
// client proxy can reuse the same sub-channel Endpoint for repeated
// access to the same wrapped object, instead of re-deriving (and
// re-subscribing) one per call. Multiple independent New() calls for the
// same tag still broadcast correctly; Registry is purely a convenience
// cache, not a uniqueness guarantee.
type Registry struct {
	base transport.Endpoint
	mu   sync.Mutex
	byID map[string]transport.Endpoint
}

// NewRegistry returns a Registry deriving sub-channels from base.
func NewRegistry(base transport.Endpoint) *Registry {
	return &Registry{base: base, byID: make(map[string]transport.Endpoint)}
}

// Get returns the cached derived endpoint for tag, creating it on first
// use.
func (r *Registry) Get(tag interface{}) transport.Endpoint {
	key := channelKey(tag)
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.byID[key]; ok {
		return e
	}
	e := New(r.base, tag)
	r.byID[key] = e
	return e
}
