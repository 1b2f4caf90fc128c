package engine

import (
	"errors"
	"strings"
	"testing"

	"github.com/mathe42/comlink2/transport"
)

type mathAPI struct{}

func (mathAPI) Add(a, b int) int { return a + b }

func (mathAPI) Fail() (int, error) { return 0, errors.New("deliberate failure") }

func (mathAPI) NewCounter(start int) *apiCounter { return &apiCounter{value: start} }

type apiCounter struct{ value int }

func (c *apiCounter) Next() int { c.value++; return c.value }

func (mathAPI) Apply(f func(int) int, n int) int { return f(n) }

type secretHolder struct {
	password string
}

func TestResolveChainCannotReachUnexportedFields(t *testing.T) {
	serverEP, clientEP := transport.NewPair()
	defer serverEP.Close()
	defer clientEP.Close()

	stop, err := Serve(&secretHolder{password: "hunter2"}, serverEP)
	if err != nil {
		t.Fatalf("Serve: %v", err)
	}
	defer stop()

	root := Wrap(clientEP)
	defer root.StopClient()

	_, err = root.Get("password").Await()
	if err == nil {
		t.Fatalf("expected an error resolving an unexported field")
	}
}

func newPair(t *testing.T) (*Node, func()) {
	t.Helper()
	serverEP, clientEP := transport.NewPair()
	stop, err := Serve(mathAPI{}, serverEP)
	if err != nil {
		t.Fatalf("Serve: %v", err)
	}
	root := Wrap(clientEP)
	return root, func() {
		stop()
		serverEP.Close()
		clientEP.Close()
	}
}

func TestCallReturnsInlineResult(t *testing.T) {
	root, cleanup := newPair(t)
	defer cleanup()

	result, err := root.Get("Add").Call(2, 3)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if result != float64(5) && result != 5 {
		t.Errorf("expected 5, got %v (%T)", result, result)
	}
}

func TestCallOnMissingPropertyFails(t *testing.T) {
	root, cleanup := newPair(t)
	defer cleanup()

	_, err := root.Get("DoesNotExist").Call()
	if err == nil {
		t.Fatalf("expected an error for a missing property")
	}
}

func TestCallOnUnsafeKeyIsRejected(t *testing.T) {
	root, cleanup := newPair(t)
	defer cleanup()

	_, err := root.Get("__proto__").Call()
	if err == nil {
		t.Fatalf("expected an error for an unsafe key")
	}
}

func TestCallPropagatesUserError(t *testing.T) {
	root, cleanup := newPair(t)
	defer cleanup()

	_, err := root.Get("Fail").Call()
	if err == nil {
		t.Fatalf("expected an error from the exposed function")
	}
	if !strings.Contains(err.Error(), "deliberate failure") {
		t.Errorf("expected the error to mention the underlying failure, got %v", err)
	}
}

func TestConstructReturnsWrappedProxy(t *testing.T) {
	root, cleanup := newPair(t)
	defer cleanup()

	result, err := root.Get("NewCounter").Construct(10)
	if err != nil {
		t.Fatalf("Construct: %v", err)
	}
	counter, ok := result.(*Node)
	if !ok {
		t.Fatalf("expected Construct to return a wrapped *Node, got %T", result)
	}
	defer counter.Release()

	v, err := counter.Get("Next").Call()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if v != float64(11) && v != 11 {
		t.Errorf("expected 11, got %v", v)
	}
}

func TestGetIsIdempotentPerKey(t *testing.T) {
	root, cleanup := newPair(t)
	defer cleanup()

	a := root.Get("Add")
	b := root.Get("Add")
	if a != b {
		t.Errorf("expected repeated Get for the same key to return the identical node")
	}
}

func TestCallbackArgumentIsInvokedAcrossTheBridge(t *testing.T) {
	root, cleanup := newPair(t)
	defer cleanup()

	calls := 0
	cb := func(n int) int {
		calls++
		return n * 2
	}

	result, err := root.Get("Apply").Call(cb, 21)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected the callback to be invoked exactly once, got %d", calls)
	}
	if result != float64(42) && result != 42 {
		t.Errorf("expected 42, got %v", result)
	}
}

func TestAwaitResolvesDeepChainOnMapRoot(t *testing.T) {
	serverEP, clientEP := transport.NewPair()
	defer serverEP.Close()
	defer clientEP.Close()

	root := map[string]interface{}{
		"a": map[string]interface{}{
			"b": map[string]interface{}{"c": 7},
		},
	}
	stop, err := Serve(root, serverEP)
	if err != nil {
		t.Fatalf("Serve: %v", err)
	}
	defer stop()

	p := Wrap(clientEP)
	defer p.StopClient()

	v, err := p.Get("a").Get("b").Get("c").Await()
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	if v != float64(7) && v != 7 {
		t.Errorf("expected 7, got %v (%T)", v, v)
	}
}

func TestPropertyAccessPostsNoMessages(t *testing.T) {
	serverEP, clientEP := transport.NewPair()
	defer serverEP.Close()
	defer clientEP.Close()

	seen := 0
	serverEP.Subscribe(func(msg interface{}) { seen++ })

	root := Wrap(clientEP)
	defer root.StopClient()

	root.Get("A").Get("B").Get("C")
	if seen != 0 {
		t.Errorf("expected property access alone to post nothing, saw %d messages", seen)
	}
}

type labeled struct {
	Label string
}

func (mathAPI) Inspect(v interface{}) string {
	node, ok := v.(*Node)
	if !ok {
		return "inline"
	}
	label, err := node.Get("Label").Await()
	if err != nil {
		return "error: " + err.Error()
	}
	return "proxied: " + label.(string)
}

func TestMarkForWrapSendsValueAsSubProxy(t *testing.T) {
	root, cleanup := newPair(t)
	defer cleanup()

	unmarked, err := root.Get("Inspect").Call(&labeled{Label: "x"})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if unmarked != "inline" {
		t.Errorf("expected an unmarked value to travel inline, got %v", unmarked)
	}

	v := &labeled{Label: "y"}
	if !root.MarkForWrap(v) {
		t.Fatalf("expected MarkForWrap to accept a pointer value")
	}
	marked, err := root.Get("Inspect").Call(v)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if marked != "proxied: y" {
		t.Errorf("expected the marked value to arrive as a sub-proxy, got %v", marked)
	}
}

func TestReleaseTwiceReturnsNoError(t *testing.T) {
	root, cleanup := newPair(t)
	defer cleanup()

	result, err := root.Get("NewCounter").Construct(0)
	if err != nil {
		t.Fatalf("Construct: %v", err)
	}
	counter := result.(*Node)

	if err := counter.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := counter.Release(); err != nil {
		t.Errorf("expected a second Release to be a harmless no-op, got %v", err)
	}
}
