// Package idgen allocates identifiers for RPC requests and wrapped objects.
// It is session-scoped rather than a single package-level global: a global
// counter would collide if two independent bridges shared one realm, so
// every Wrap/Expose call constructs its own Allocator.
package idgen

import (
	"crypto/rand"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// SafeLimit is the point past which the counter regime hands off to
// cryptographically random identifiers, chosen well below the platform
// int64 ceiling so the switch happens long before any realistic overflow.
const SafeLimit = 1<<53 - 1

// switchoverMargin is how far below SafeLimit the allocator starts minting
// random ids instead of incrementing.
const switchoverMargin = 1000

// Allocator hands out fresh ids: a cheap monotonic counter in the common
// case, a 128-bit random id once the counter nears SafeLimit so it can
// never wrap around and collide with an earlier id.
type Allocator struct {
	mu      sync.Mutex
	counter int64
}

// New returns a fresh Allocator with its counter at zero.
func New() *Allocator {
	return &Allocator{}
}

// Next returns the next id. Before the safe limit it is an int64 counter
// value; after, a 128-bit random identifier rendered as a string so the
// wire's polymorphic id field can carry either.
func (a *Allocator) Next() interface{} {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.counter < SafeLimit-switchoverMargin {
		a.counter++
		return a.counter
	}
	return randomID()
}

// randomID mints a 128-bit cryptographically random identifier. uuid.New
// already draws its bits from crypto/rand; a raw random id is also exposed
// for contexts (like multiplexer tags) that don't need the UUID textual
// format.
func randomID() string {
	return uuid.New().String()
}

// RandomTag returns a fresh 128-bit random value suitable for a sub-channel
// tag, independent of any Allocator's counter state.
func RandomTag() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("idgen: failed to read random tag: %w", err)
	}
	return fmt.Sprintf("%x", b), nil
}
