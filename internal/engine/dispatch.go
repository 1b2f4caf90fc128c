package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"github.com/mathe42/comlink2/internal/codec"
	"github.com/mathe42/comlink2/internal/idgen"
	"github.com/mathe42/comlink2/internal/telemetry"
	"github.com/mathe42/comlink2/internal/validate"
	"github.com/mathe42/comlink2/internal/wire"
	"github.com/mathe42/comlink2/multiplex"
	"github.com/mathe42/comlink2/transport"
)

var errMissingProperty = validate.ErrMissingProperty

// dispatcher is the server-side state for one exposed root on one
// endpoint: one handler per endpoint, a method-switch on the request
// type, always replying rather than panicking into the transport.
type dispatcher struct {
	root  interface{}
	ep    transport.Endpoint
	ids   *idgen.Allocator
	marks *codec.MarkSet
	log   *telemetry.Logger

	channels *releaseRegistry
	unsub    func()
}

// Serve installs the server half of the bridge for root on ep. It returns
// an unsubscribe function a caller can use to stop serving (also used
// internally by the release protocol).
func Serve(root interface{}, ep transport.Endpoint) (func(), error) {
	return ServeLogging(root, ep, nil)
}

// ServeLogging is Serve with an explicit telemetry sink.
func ServeLogging(root interface{}, ep transport.Endpoint, log *telemetry.Logger) (func(), error) {
	d := &dispatcher{
		root:     root,
		ep:       ep,
		ids:      idgen.New(),
		marks:    codec.NewMarkSet(),
		log:      log,
		channels: newReleaseRegistry(),
	}
	d.unsub = ep.Subscribe(d.handleMessage)
	return d.unsub, nil
}

// releaseRegistry tracks whether this dispatcher's exposure is still
// live; once released it stops reacting to further requests. The protocol
// has no acquire/refcount traffic, only the single release message, so a
// boolean is sufficient.
type releaseRegistry struct {
	released bool
}

func newReleaseRegistry() *releaseRegistry { return &releaseRegistry{} }

func (d *dispatcher) handleMessage(msg interface{}) {
	if d.channels.released {
		return
	}

	env, ok := sniff(msg)
	if !ok || env.HasChannel() {
		return
	}

	switch env.Type {
	case wire.TypeCall, wire.TypeConstruct, wire.TypeAwait, wire.TypeRelease:
	default:
		return // response/error, or foreign shape: not ours
	}

	if env.Type == wire.TypeRelease {
		d.channels.released = true
		if d.unsub != nil {
			d.unsub()
		}
		return
	}

	vr := validate.Request{
		ID:       env.ID,
		Type:     env.Type,
		KeyChain: env.KeyChain,
		HasArgs:  env.Args != nil,
	}
	if err := validate.Structural(vr); err != nil {
		d.replyError(env.ID, err)
		return
	}

	target, err := resolveChain(d.root, env.KeyChain)
	if err != nil {
		d.replyError(env.ID, err)
		return
	}

	switch env.Type {
	case wire.TypeAwait:
		d.handleAwait(env.ID, target)
	case wire.TypeCall:
		d.handleInvoke(env.ID, target, env.Args, false)
	case wire.TypeConstruct:
		d.handleInvoke(env.ID, target, env.Args, true)
	}
}

func (d *dispatcher) handleAwait(id interface{}, target reflect.Value) {
	if !target.CanInterface() {
		d.replyError(id, fmt.Errorf("%w: value not accessible", validate.ErrProtocol))
		return
	}
	d.replyValue(id, target.Interface(), false)
}

func (d *dispatcher) handleInvoke(id interface{}, target reflect.Value, rawArgs json.RawMessage, construct bool) {
	if target.Kind() != reflect.Func {
		if construct {
			d.replyError(id, fmt.Errorf("%w", validate.ErrNotConstructor))
		} else {
			d.replyError(id, fmt.Errorf("%w", validate.ErrNotFunction))
		}
		return
	}

	var encodedArgs []wire.EncodedValue
	if len(rawArgs) > 0 {
		if err := json.Unmarshal(rawArgs, &encodedArgs); err != nil {
			d.replyError(id, fmt.Errorf("%w: malformed args", validate.ErrProtocol))
			return
		}
	}

	argVals, err := d.decodeArgs(target.Type(), encodedArgs)
	if err != nil {
		d.replyError(id, err)
		return
	}

	results, callErr := safeCall(target, argVals)
	if callErr != nil {
		d.replyError(id, fmt.Errorf("%w: %s", errUser, callErr.Error()))
		return
	}

	result, callErr := firstResult(results)
	if callErr != nil {
		d.replyError(id, fmt.Errorf("%w: %s", errUser, callErr.Error()))
		return
	}

	// Construct results are always wrapped, never inlined, even if the
	// instance carries no functions at encode time.
	d.replyValue(id, result, construct)
}

var errUser = errors.New("user error")

// safeCall invokes fn with args, recovering a panic into an error so a
// misbehaving exposed function can never crash the dispatcher.
func safeCall(fn reflect.Value, args []reflect.Value) (results []reflect.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	results = fn.Call(args)
	return results, nil
}

// firstResult applies the Go (value, error) convention: if the last return
// value is a non-nil error, that is the failure; otherwise the first
// non-error return value (or nil, for a func with no returns) is the
// result.
func firstResult(results []reflect.Value) (interface{}, error) {
	if len(results) == 0 {
		return nil, nil
	}
	last := results[len(results)-1]
	if errType := reflect.TypeOf((*error)(nil)).Elem(); last.Type().Implements(errType) {
		if !last.IsNil() {
			return nil, last.Interface().(error)
		}
		if len(results) == 1 {
			return nil, nil
		}
		return results[0].Interface(), nil
	}
	return results[0].Interface(), nil
}

// decodeArgs converts wire-encoded arguments into reflect.Values assignable
// to fnType's parameters. Inline values are coerced to the exact parameter
// type (handling both literal Go values passed by an in-memory transport
// and JSON-decoded generic values from a byte-stream transport); wrapped
// values for func parameters become live callback stubs built with
// reflect.MakeFunc, bound to a Node over the argument's sub-channel, and
// wrapped values for other parameters become that Node itself.
func (d *dispatcher) decodeArgs(fnType reflect.Type, args []wire.EncodedValue) ([]reflect.Value, error) {
	variadic := fnType.IsVariadic()
	out := make([]reflect.Value, len(args))
	for i, a := range args {
		var paramType reflect.Type
		switch {
		case variadic && i >= fnType.NumIn()-1:
			paramType = fnType.In(fnType.NumIn() - 1).Elem()
		case i < fnType.NumIn():
			paramType = fnType.In(i)
		default:
			paramType = reflect.TypeOf((*interface{})(nil)).Elem()
		}

		v, err := d.decodeArg(a, paramType)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (d *dispatcher) decodeArg(a wire.EncodedValue, paramType reflect.Type) (reflect.Value, error) {
	if a.IsWrapped() {
		return d.makeCallbackStub(a.ID, paramType)
	}
	return coerce(a.Data, paramType)
}

// makeCallbackStub builds a reflect.Value assignable to paramType for a
// wrapped argument. A func parameter gets a stub that forwards every
// invocation to a Node over the named sub-channel, blocking for the
// response. Go has no implicit await, so a remote callback is
// necessarily synchronous from the caller's point of view.
func (d *dispatcher) makeCallbackStub(tag interface{}, paramType reflect.Type) (reflect.Value, error) {
	derived := multiplex.New(d.ep, tag)
	node := WrapLogging(derived, d.log)

	// A wrapped non-function argument (a value the caller marked for
	// wrapping) decodes to the sub-proxy itself; the parameter must be
	// able to hold a *Node.
	if paramType.Kind() != reflect.Func {
		nv := reflect.ValueOf(node)
		if !nv.Type().AssignableTo(paramType) {
			return reflect.Value{}, fmt.Errorf("%w: wrapped argument cannot satisfy parameter type %s", validate.ErrProtocol, paramType)
		}
		return nv, nil
	}

	stub := reflect.MakeFunc(paramType, func(in []reflect.Value) []reflect.Value {
		args := make([]interface{}, len(in))
		for i, v := range in {
			args[i] = v.Interface()
		}
		result, err := node.Call(args...)
		return makeCallResults(paramType, result, err)
	})
	return stub, nil
}

// makeCallResults adapts a remote call's (value, error) outcome to the
// static return shape paramType expects, zero-valuing results on error.
func makeCallResults(paramType reflect.Type, result interface{}, err error) []reflect.Value {
	numOut := paramType.NumOut()
	out := make([]reflect.Value, numOut)
	for i := 0; i < numOut; i++ {
		out[i] = reflect.Zero(paramType.Out(i))
	}
	if numOut == 0 {
		return out
	}
	if err != nil {
		return out
	}
	rv, convErr := coerce(result, paramType.Out(0))
	if convErr == nil {
		out[0] = rv
	}
	return out
}

func (d *dispatcher) replyValue(id interface{}, v interface{}, forceWrap bool) {
	wrapped, tagOrData, err := d.encodeResult(v, forceWrap)
	if err != nil {
		d.replyError(id, err)
		return
	}
	var ev wire.EncodedValue
	if wrapped {
		ev = wire.Wrapped(tagOrData)
	} else {
		ev = wire.Inline(tagOrData)
	}
	if err := d.ep.Post(wire.Response{ID: id, Type: wire.TypeResponse, Data: ev}); err != nil {
		d.logf("send response for %v failed: %v", id, err)
	}
}

func (d *dispatcher) encodeResult(v interface{}, forceWrap bool) (bool, interface{}, error) {
	if forceWrap {
		tag := d.ids.Next()
		if err := d.expose(v, tag); err != nil {
			return false, nil, err
		}
		return true, tag, nil
	}
	return codec.Encode(v, d.marks, func() (interface{}, error) { return d.ids.Next(), nil }, d.expose)
}

func (d *dispatcher) expose(v interface{}, tag interface{}) error {
	derived := multiplex.New(d.ep, tag)
	_, err := ServeLogging(v, derived, d.log)
	return err
}

func (d *dispatcher) replyError(id interface{}, err error) {
	d.logf("error reply for %v: %v", id, err)
	if err2 := d.ep.Post(wire.ErrorMessage{ID: id, Type: wire.TypeError, Error: err.Error()}); err2 != nil {
		d.logf("send error reply for %v failed: %v", id, err2)
	}
}

func (d *dispatcher) logf(format string, args ...interface{}) {
	if d.log != nil {
		d.log.Error(format, args...)
	}
}
