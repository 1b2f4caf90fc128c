// Package wire defines the on-the-wire message shapes for the RPC bridge.
// Field names and the "wraped" spelling are fixed by the protocol and must
// not be changed: interoperating peers rely on the exact JSON shape.
package wire

import "encoding/json"

// Request message types, per the wire contract.
const (
	TypeCall      = "call"
	TypeConstruct = "construct"
	TypeAwait     = "await"
	TypeRelease   = "release"
	TypeResponse  = "response"
	TypeError     = "error"
)

// Request is the tagged-union request message sent by a client proxy.
// KeyChain and Args are only meaningful for the matching Type.
// KeyChain and Args deliberately lack omitempty: a zero-length chain (a
// call against the exposed root itself) and a zero-argument call must
// still serialize as an explicit empty array, not be omitted, since an
// absent key and an empty array mean different things to the validator,
// which requires args to be present, even if empty, for call/construct.
type Request struct {
	ID       interface{}    `json:"id"`
	Type     string         `json:"type"`
	KeyChain []string       `json:"keyChain"`
	Args     []EncodedValue `json:"args"`
}

// Response carries the encoded result of a successfully completed request.
type Response struct {
	ID   interface{}  `json:"id"`
	Type string       `json:"type"` // always "response"
	Data EncodedValue `json:"data"`
}

// ErrorMessage carries a request's failure back to the issuing proxy.
type ErrorMessage struct {
	ID    interface{} `json:"id"`
	Type  string      `json:"type"` // always "error"
	Error string      `json:"error"`
}

// EncodedValue is the inline/wrapped tagged union every argument, return
// value, and terminal result is encoded as. The misspelling "wraped" is
// part of the wire contract.
type EncodedValue struct {
	Type string      `json:"type"` // "any" or "wraped"
	Data interface{} `json:"data,omitempty"`
	ID   interface{} `json:"id,omitempty"`
}

// Inline wraps v as an {type:"any", data:v} encoded value.
func Inline(v interface{}) EncodedValue {
	return EncodedValue{Type: "any", Data: v}
}

// Wrapped wraps an object id as a {type:"wraped", id:id} encoded value.
func Wrapped(id interface{}) EncodedValue {
	return EncodedValue{Type: "wraped", ID: id}
}

// IsWrapped reports whether this encoded value refers to a sub-channel
// exposure rather than carrying inline data.
func (e EncodedValue) IsWrapped() bool {
	return e.Type == "wraped"
}

// Envelope is the superset shape used to sniff an inbound top-level message
// before deciding which concrete type to unmarshal into. It deliberately
// mirrors every field any of the five request/response/error shapes can
// carry plus the sub-channel frame shape, so a single decode pass can
// classify the message.
type Envelope struct {
	ID       interface{}     `json:"id"`
	Type     string          `json:"type"`
	KeyChain []string        `json:"keyChain,omitempty"`
	Args     json.RawMessage `json:"args,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
	Error    *string         `json:"error,omitempty"`

	// Sub-channel frame fields. A message carrying Channel belongs to a
	// derived endpoint, not the bare RPC stream.
	Channel interface{}     `json:"channel,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// HasChannel reports whether this message is a sub-channel frame rather
// than a bare-stream RPC message.
func (e Envelope) HasChannel() bool {
	return e.Channel != nil
}

// ChannelFrame is the wire shape a multiplexer wraps a payload in.
type ChannelFrame struct {
	Channel interface{} `json:"channel"`
	Payload interface{} `json:"payload"`
}
