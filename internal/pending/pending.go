// Package pending implements the client-side pending-request table: a map
// from request id to a resolver pair, inserted when a request is emitted
// and removed exactly once on its terminal response or error.
package pending

import (
	"fmt"
	"sync"
)

// Resolver is the pair of continuations a pending request is waiting on.
type Resolver struct {
	Resolve func(data interface{})
	Reject  func(err error)
}

// Table tracks in-flight requests keyed by their wire id. Ids are
// compared by their fmt.Sprint form so both int64 counter ids and
// string/UUID fallback ids key the same map uniformly.
type Table struct {
	mu      sync.Mutex
	waiters map[string]Resolver
}

// New returns an empty pending-request table.
func New() *Table {
	return &Table{waiters: make(map[string]Resolver)}
}

func keyOf(id interface{}) string {
	return fmt.Sprint(id)
}

// Insert registers a resolver pair for id, called at the moment a request
// is posted. Re-entrant resolution is handled in Resolve/Reject, not here:
// this call itself never invokes a continuation.
func (t *Table) Insert(id interface{}, r Resolver) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.waiters[keyOf(id)] = r
}

// Resolve looks up and removes the waiter for id, then calls its Resolve
// continuation. The table entry is deleted before the continuation runs,
// so a callback that synchronously issues a new request and gets resolved
// before this call returns can never double-resolve the same entry.
// Unknown ids are silently ignored.
func (t *Table) Resolve(id interface{}, data interface{}) {
	t.mu.Lock()
	r, ok := t.waiters[keyOf(id)]
	if ok {
		delete(t.waiters, keyOf(id))
	}
	t.mu.Unlock()

	if ok && r.Resolve != nil {
		r.Resolve(data)
	}
}

// Reject looks up and removes the waiter for id, then calls its Reject
// continuation. Unknown ids are silently ignored.
func (t *Table) Reject(id interface{}, err error) {
	t.mu.Lock()
	r, ok := t.waiters[keyOf(id)]
	if ok {
		delete(t.waiters, keyOf(id))
	}
	t.mu.Unlock()

	if ok && r.Reject != nil {
		r.Reject(err)
	}
}

// Len reports how many requests are currently pending. Exposed for tests
// and diagnostics only; the table exposes no iteration API.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.waiters)
}
