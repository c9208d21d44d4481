// Package bridge exposes Go service values to scripts. Every exported
// method becomes a snake_case member of a host object; arguments and
// results cross the boundary as plain data.
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"unicode"

	"github.com/mgomes/vibectx/vibes"
)

// MethodDocumenter lets a service attach one-line docs to its methods.
// Keys are the snake_case member names.
type MethodDocumenter interface {
	MethodDocs() map[string]string
}

// Methods that manage a service rather than belong to its script surface.
var hiddenMethods = map[string]bool{
	"Close":         true,
	"OnInject":      true,
	"OnDestroy":     true,
	"MethodDocs":    true,
	"MarshalBinary": true,
}

var (
	contextType = reflect.TypeFor[context.Context]()
	errorType   = reflect.TypeFor[error]()
	valueType   = reflect.TypeFor[vibes.Value]()
)

// Wrap exposes svc as a host object of the given type name. An empty name
// uses the Go type name. Script values pass through unchanged.
func Wrap(typeName string, svc any) (vibes.Value, error) {
	if val, ok := svc.(vibes.Value); ok {
		return val, nil
	}
	if svc == nil {
		return vibes.NewNil(), errors.New("bridge: cannot wrap nil service")
	}
	if typeName == "" {
		typeName = TypeName(svc)
	}
	rv := reflect.ValueOf(svc)
	members := map[string]vibes.Value{}
	docs := methodDocs(svc)
	for _, m := range exportedMethods(rv.Type()) {
		name := SnakeCase(m.Name)
		method := rv.MethodByName(m.Name)
		member := vibes.NewDocBuiltin(typeName+"."+name, docs[name], methodCaller(name, method))
		// Methods without script arguments read like attributes.
		member.Builtin().AutoInvoke = scriptArity(method.Type()) == 0 && !method.Type().IsVariadic()
		members[name] = member
	}
	return vibes.NewObject(&vibes.HostObject{TypeName: typeName, Members: members, Native: svc}), nil
}

// TypeName returns the bare Go type name of svc, dereferencing pointers.
func TypeName(svc any) string {
	t := reflect.TypeOf(svc)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return "nil"
	}
	return t.Name()
}

func methodDocs(svc any) map[string]string {
	if documented, ok := svc.(MethodDocumenter); ok {
		return documented.MethodDocs()
	}
	return nil
}

func exportedMethods(t reflect.Type) []reflect.Method {
	var out []reflect.Method
	for i := range t.NumMethod() {
		m := t.Method(i)
		if !m.IsExported() || hiddenMethods[m.Name] {
			continue
		}
		out = append(out, m)
	}
	return out
}

func scriptArity(mt reflect.Type) int {
	if mt.NumIn() > 0 && mt.In(0) == contextType {
		return mt.NumIn() - 1
	}
	return mt.NumIn()
}

func methodCaller(name string, method reflect.Value) vibes.BuiltinFunc {
	mt := method.Type()
	return func(exec *vibes.Execution, receiver vibes.Value, args []vibes.Value, kwargs map[string]vibes.Value, block vibes.Value) (vibes.Value, error) {
		if !block.IsNil() {
			return vibes.NewNil(), fmt.Errorf("%s does not accept blocks", name)
		}
		if len(kwargs) > 0 {
			args = append(slices.Clone(args), vibes.NewHash(kwargs))
		}

		in := make([]reflect.Value, 0, mt.NumIn())
		params := mt.NumIn()
		first := 0
		if params > 0 && mt.In(0) == contextType {
			in = append(in, reflect.ValueOf(exec.Context()))
			first = 1
		}
		fixed := params - first
		if mt.IsVariadic() {
			fixed--
		}
		if len(args) < fixed || (!mt.IsVariadic() && len(args) > fixed) {
			return vibes.NewNil(), fmt.Errorf("%s expects %d arguments, got %d", name, fixed, len(args))
		}
		for i, arg := range args {
			var target reflect.Type
			if i < fixed {
				target = mt.In(first + i)
			} else {
				target = mt.In(params - 1).Elem()
			}
			converted, err := toReflect(arg, target)
			if err != nil {
				return vibes.NewNil(), fmt.Errorf("%s argument %d: %w", name, i+1, err)
			}
			in = append(in, converted)
		}
		return fromResults(name, method.Call(in))
	}
}

func toReflect(val vibes.Value, target reflect.Type) (reflect.Value, error) {
	if target == valueType {
		return reflect.ValueOf(val), nil
	}
	if val.Kind() == vibes.KindObject {
		native := reflect.ValueOf(val.Object().Native)
		if native.IsValid() && native.Type().AssignableTo(target) {
			return native, nil
		}
	}
	native, err := vibes.ToGo(val)
	if err != nil {
		return reflect.Value{}, err
	}
	if native == nil {
		return reflect.Zero(target), nil
	}
	if rv := reflect.ValueOf(native); rv.Type().AssignableTo(target) {
		return rv, nil
	}
	raw, err := json.Marshal(native)
	if err != nil {
		return reflect.Value{}, err
	}
	out := reflect.New(target)
	if err := json.Unmarshal(raw, out.Interface()); err != nil {
		return reflect.Value{}, fmt.Errorf("expected %s, got %s", target, val.TypeName())
	}
	return out.Elem(), nil
}

func fromResults(name string, results []reflect.Value) (vibes.Value, error) {
	if n := len(results); n > 0 && results[n-1].Type() == errorType {
		if errVal := results[n-1]; !errVal.IsNil() {
			return vibes.NewNil(), errVal.Interface().(error)
		}
		results = results[:n-1]
	}
	switch len(results) {
	case 0:
		return vibes.NewNil(), nil
	case 1:
		return FromGo(results[0].Interface())
	}
	items := make([]vibes.Value, len(results))
	for i, result := range results {
		item, err := FromGo(result.Interface())
		if err != nil {
			return vibes.NewNil(), fmt.Errorf("%s result %d: %w", name, i+1, err)
		}
		items[i] = item
	}
	return vibes.NewArray(items), nil
}

// FromGo converts a Go result into a script value. Structs and other
// values without a direct data form go through their JSON encoding.
func FromGo(x any) (vibes.Value, error) {
	val, err := vibes.FromGo(x)
	if err == nil || !errors.Is(err, vibes.ErrNotData) {
		return val, err
	}
	raw, err := json.Marshal(x)
	if err != nil {
		return vibes.NewNil(), fmt.Errorf("bridge: %T: %w", x, err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return vibes.NewNil(), fmt.Errorf("bridge: %T: %w", x, err)
	}
	return vibes.FromGo(generic)
}

// SnakeCase converts a Go identifier such as PublishEvent or GetURL into
// publish_event and get_url.
func SnakeCase(name string) string {
	runes := []rune(name)
	var b strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) && i > 0 {
			prevLower := unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1])
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if prevLower || nextLower {
				b.WriteByte('_')
			}
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}
