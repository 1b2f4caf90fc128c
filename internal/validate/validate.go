// Package validate implements the dispatcher-side message validator:
// structural checks on inbound requests plus the substring-based key-chain
// safety rule. The substring match is stricter than exact-name matching
// and knowingly rejects benign keys like "myConstructor". Every failure
// here is surfaced through the error-reply path, never by panicking into
// the transport handler.
package validate

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Dispatch/proxy code can errors.Is against these sentinels.
var (
	ErrProtocol        = errors.New("protocol error")
	ErrUnsafeKey       = errors.New("unsafe property names")
	ErrMissingProperty = errors.New("missing property")
	ErrNotFunction     = errors.New("not a function")
	ErrNotConstructor  = errors.New("not a constructor")
)

// reservedSubstrings are rejected anywhere they appear in a key, in any
// letter case, not just as exact matches.
var reservedSubstrings = []string{"__proto__", "prototype", "constructor"}

// KeyChain validates that every element of chain is safe to walk. It
// returns ErrUnsafeKey (wrapped with the offending key) on the first
// violation.
func KeyChain(chain []string) error {
	for _, k := range chain {
		lower := strings.ToLower(k)
		for _, bad := range reservedSubstrings {
			if strings.Contains(lower, bad) {
				return fmt.Errorf("%w: key %q contains reserved name %q", ErrUnsafeKey, k, bad)
			}
		}
	}
	return nil
}

// Request holds the minimal structural shape the validator checks inbound
// requests against, independent of the wire package so this validator has
// no import-cycle dependency on it.
type Request struct {
	ID       interface{}
	Type     string
	KeyChain []string
	HasArgs  bool
}

// Structural validates the message shape: a defined id and type, a
// well-formed key chain, and (for call/construct) a well-formed args
// array. It does not walk the chain against any root; the dispatcher does
// that itself since it requires the live object.
func Structural(r Request) error {
	if r.ID == nil {
		return fmt.Errorf("%w: missing id", ErrProtocol)
	}
	switch r.Type {
	case "call", "construct", "await", "release":
	default:
		return fmt.Errorf("%w: unknown request type %q", ErrProtocol, r.Type)
	}
	if r.KeyChain == nil {
		return fmt.Errorf("%w: missing keyChain", ErrProtocol)
	}
	if err := KeyChain(r.KeyChain); err != nil {
		return err
	}
	if (r.Type == "call" || r.Type == "construct") && !r.HasArgs {
		return fmt.Errorf("%w: %s requires an args array", ErrProtocol, r.Type)
	}
	return nil
}
