// Package codec implements the bridge's wire codec: classifying a host
// value as inline or wrapped, allocating a sub-channel and recursively
// exposing a must-wrap value, and decoding an EncodedValue back into either
// plain data or a recursive sub-proxy.
package codec

import (
	"fmt"
	"reflect"
	"sync"
)

// Exposer is implemented by the session/dispatch layer: given a value and
// a sub-channel Endpoint (supplied indirectly via ChannelOpener), it
// recursively runs Expose(value, endpoint) so calls against the wrapped
// value's own key chain are served.
type Exposer func(value interface{}, channelTag interface{}) error

// ChannelOpener allocates a fresh channel tag (backed by an id allocator)
// for a value about to be wrapped, and is called exactly once per Encode
// that decides to wrap.
type ChannelOpener func() (tag interface{}, err error)

// Wrapper is implemented by the proxy layer: given a channel tag, produce
// the client-visible sub-proxy value a Decode of a wrapped EncodedValue
// should return.
type Wrapper func(channelTag interface{}) interface{}

// MarkSet tracks values explicitly marked for wrapping regardless of
// whether they structurally contain a function. It is keyed by pointer
// identity via reflect.Value.Pointer() where possible; values that aren't
// pointer-like (so can't alias) are never usefully "marked" and are
// ignored by Mark.
//
// A MarkSet belongs to one session, not the process, so two independent
// bridges in one program never share marked state.
type MarkSet struct {
	mu  sync.Mutex
	ids map[uintptr]struct{}
}

// NewMarkSet returns an empty, session-scoped mark set.
func NewMarkSet() *MarkSet {
	return &MarkSet{ids: make(map[uintptr]struct{})}
}

// Mark records v as always-wrap for the lifetime of this set. Returns
// false (and marks nothing) if v's kind has no stable pointer identity.
func (m *MarkSet) Mark(v interface{}) bool {
	ptr, ok := pointerOf(v)
	if !ok {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ids[ptr] = struct{}{}
	return true
}

func (m *MarkSet) contains(v interface{}) bool {
	ptr, ok := pointerOf(v)
	if !ok {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, found := m.ids[ptr]
	return found
}

func pointerOf(v interface{}) (uintptr, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Chan, reflect.Func, reflect.UnsafePointer, reflect.Slice:
		if rv.IsNil() {
			return 0, false
		}
		return rv.Pointer(), true
	default:
		return 0, false
	}
}

// MustWrap decides whether v must travel wrapped rather than inline: v is
// a function; v is a non-nil, non-array object whose enumerable
// fields/values contain at least one function; or v is in marks. Probing
// a value that refuses inspection is treated as "does not contain a
// function": any reflect panic during the scan is recovered and treated
// as false.
func MustWrap(v interface{}, marks *MarkSet) (result bool) {
	if v == nil {
		return false
	}
	if marks != nil && marks.contains(v) {
		return true
	}

	defer func() {
		if recover() != nil {
			result = false
		}
	}()

	return containsFunc(reflect.ValueOf(v), make(map[uintptr]bool))
}

func containsFunc(rv reflect.Value, seen map[uintptr]bool) bool {
	switch rv.Kind() {
	case reflect.Func:
		return !rv.IsNil()
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return false
		}
		return containsFunc(rv.Elem(), seen)
	case reflect.Struct:
		// Only exported fields count: they are the value's externally
		// visible properties.
		t := rv.Type()
		for i := 0; i < rv.NumField(); i++ {
			if t.Field(i).PkgPath != "" {
				continue // unexported, not "own enumerable"
			}
			if containsFunc(rv.Field(i), seen) {
				return true
			}
		}
		return false
	case reflect.Map:
		if rv.IsNil() {
			return false
		}
		ptr := rv.Pointer()
		if seen[ptr] {
			return false
		}
		seen[ptr] = true
		iter := rv.MapRange()
		for iter.Next() {
			if containsFunc(iter.Value(), seen) {
				return true
			}
		}
		return false
	case reflect.Array, reflect.Slice:
		// Arrays and slices are excluded from the must-wrap scan;
		// argument lists are encoded element-wise, so each element is
		// still classified individually.
		return false
	default:
		return false
	}
}

// Encode classifies v and returns its wire EncodedValue-shaped pair:
// (wrapped bool, data-or-tag, error). On wrapped=true, tagOrData is the
// freshly allocated channel tag and expose has already been invoked
// against it; on wrapped=false it is v itself, unchanged, for inline
// transport.
func Encode(v interface{}, marks *MarkSet, open ChannelOpener, expose Exposer) (wrapped bool, tagOrData interface{}, err error) {
	if !MustWrap(v, marks) {
		return false, v, nil
	}

	tag, err := open()
	if err != nil {
		return false, nil, fmt.Errorf("codec: allocate channel: %w", err)
	}
	if err := expose(v, tag); err != nil {
		return false, nil, fmt.Errorf("codec: expose wrapped value: %w", err)
	}
	return true, tag, nil
}

// Decode turns a decoded wire shape back into a host value: inline data
// returned as-is, or a wrap-resolved sub-proxy via wrapper.
func Decode(wrapped bool, tagOrData interface{}, wrapper Wrapper) interface{} {
	if !wrapped {
		return tagOrData
	}
	return wrapper(tagOrData)
}
