package vibes

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"reflect"
)

const maxJSONPayloadBytes = 1 << 20

func builtinJSONParse(exec *Execution, receiver Value, args []Value, kwargs map[string]Value, block Value) (Value, error) {
	if len(args) != 1 || args[0].Kind() != KindString {
		return NewNil(), fmt.Errorf("JSON.parse expects a single JSON string argument")
	}
	raw := args[0].String()
	if len(raw) > maxJSONPayloadBytes {
		return NewNil(), fmt.Errorf("JSON.parse input exceeds limit %d bytes", maxJSONPayloadBytes)
	}
	decoded, err := decodeJSON([]byte(raw))
	if err != nil {
		return NewNil(), fmt.Errorf("JSON.parse invalid JSON: %w", err)
	}
	return FromGo(decoded)
}

func builtinJSONStringify(exec *Execution, receiver Value, args []Value, kwargs map[string]Value, block Value) (Value, error) {
	if len(args) != 1 {
		return NewNil(), fmt.Errorf("JSON.stringify expects a single value argument")
	}
	native, err := ToGo(args[0])
	if err != nil {
		return NewNil(), fmt.Errorf("JSON.stringify: %w", err)
	}
	out, err := json.Marshal(native)
	if err != nil {
		return NewNil(), fmt.Errorf("JSON.stringify: %w", err)
	}
	return NewString(string(out)), nil
}

func decodeJSON(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("unexpected trailing data")
	}
	return out, nil
}

// ErrNotData reports a value with no plain-data representation.
var ErrNotData = errors.New("value is not plain data")

// ToGo converts a data value (scalars, arrays, hashes) into plain Go
// values. Instances become maps of their attributes.
func ToGo(val Value) (any, error) {
	switch val.Kind() {
	case KindNil:
		return nil, nil
	case KindBool:
		return val.Bool(), nil
	case KindInt:
		return val.Int(), nil
	case KindFloat:
		return val.Float(), nil
	case KindString, KindSymbol:
		return val.String(), nil
	case KindArray:
		out := make([]any, len(val.Array()))
		for i, item := range val.Array() {
			native, err := ToGo(item)
			if err != nil {
				return nil, err
			}
			out[i] = native
		}
		return out, nil
	case KindHash:
		return hashToGo(val.Hash())
	case KindInstance:
		return hashToGo(val.Instance().Ivars)
	}
	return nil, fmt.Errorf("%w: %s", ErrNotData, val.TypeName())
}

func hashToGo(h map[string]Value) (map[string]any, error) {
	out := make(map[string]any, len(h))
	for k, item := range h {
		native, err := ToGo(item)
		if err != nil {
			return nil, err
		}
		out[k] = native
	}
	return out, nil
}

// FromGo converts plain Go data into script values. Values that are
// already script values pass through.
func FromGo(x any) (Value, error) {
	switch v := x.(type) {
	case nil:
		return NewNil(), nil
	case Value:
		return v, nil
	case bool:
		return NewBool(v), nil
	case string:
		return NewString(v), nil
	case int:
		return NewInt(int64(v)), nil
	case int64:
		return NewInt(v), nil
	case int32:
		return NewInt(int64(v)), nil
	case float32:
		return NewFloat(float64(v)), nil
	case float64:
		return NewFloat(v), nil
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return NewInt(i), nil
		}
		f, err := v.Float64()
		if err != nil || math.IsInf(f, 0) {
			return NewNil(), fmt.Errorf("invalid number %s", v)
		}
		return NewFloat(f), nil
	case []any:
		out := make([]Value, len(v))
		for i, item := range v {
			val, err := FromGo(item)
			if err != nil {
				return NewNil(), err
			}
			out[i] = val
		}
		return NewArray(out), nil
	case map[string]any:
		out := make(map[string]Value, len(v))
		for k, item := range v {
			val, err := FromGo(item)
			if err != nil {
				return NewNil(), err
			}
			out[k] = val
		}
		return NewHash(out), nil
	}

	rv := reflect.ValueOf(x)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return NewInt(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return NewInt(int64(rv.Uint())), nil
	case reflect.Slice, reflect.Array:
		out := make([]Value, rv.Len())
		for i := range rv.Len() {
			val, err := FromGo(rv.Index(i).Interface())
			if err != nil {
				return NewNil(), err
			}
			out[i] = val
		}
		return NewArray(out), nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			break
		}
		out := make(map[string]Value, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			val, err := FromGo(iter.Value().Interface())
			if err != nil {
				return NewNil(), err
			}
			out[iter.Key().String()] = val
		}
		return NewHash(out), nil
	}
	return NewNil(), fmt.Errorf("%w: unsupported Go type %T", ErrNotData, x)
}
