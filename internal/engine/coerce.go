package engine

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// coerce converts an inline wire value (already JSON-shaped: float64/string/
// bool/map[string]interface{}/[]interface{}/nil, or a literal Go value
// handed straight through by an in-memory transport) into a reflect.Value
// assignable to paramType. Go's static parameter types have no equivalent
// of a peer's dynamically typed argument passing, so a call whose exposed
// function takes, say, an int is satisfied by round-tripping the decoded
// value through JSON into that exact type, the same trick this codebase
// already uses to classify messages uniformly regardless of transport.
func coerce(data interface{}, paramType reflect.Type) (reflect.Value, error) {
	if data == nil {
		return reflect.Zero(paramType), nil
	}

	rv := reflect.ValueOf(data)
	if rv.Type().AssignableTo(paramType) {
		return rv, nil
	}
	if rv.Type().ConvertibleTo(paramType) && isNumericKind(rv.Kind()) && isNumericKind(paramType.Kind()) {
		return rv.Convert(paramType), nil
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return reflect.Value{}, fmt.Errorf("comlink2: encode argument for conversion: %w", err)
	}
	out := reflect.New(paramType)
	if err := json.Unmarshal(raw, out.Interface()); err != nil {
		return reflect.Value{}, fmt.Errorf("comlink2: argument does not match parameter type %s: %w", paramType, err)
	}
	return out.Elem(), nil
}

func isNumericKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	default:
		return false
	}
}
