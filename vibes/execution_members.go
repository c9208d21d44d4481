package vibes

import (
	"fmt"
)

type memberFn struct {
	fn   BuiltinFunc
	auto bool
}

func method(fn BuiltinFunc) memberFn   { return memberFn{fn: fn} }
func property(fn BuiltinFunc) memberFn { return memberFn{fn: fn, auto: true} }

var (
	universalMembers map[string]memberFn
	stringMembers    map[string]memberFn
	intMembers       map[string]memberFn
	floatMembers     map[string]memberFn
	arrayMembers     map[string]memberFn
	hashMembers      map[string]memberFn
	rangeMembers     map[string]memberFn
)

func init() {
	universalMembers = map[string]memberFn{
		"class": property(func(exec *Execution, receiver Value, args []Value, kwargs map[string]Value, block Value) (Value, error) {
			if receiver.Kind() == KindInstance {
				return NewClass(receiver.Instance().Class), nil
			}
			return NewString(receiver.TypeName()), nil
		}),
		"nil?": property(func(exec *Execution, receiver Value, args []Value, kwargs map[string]Value, block Value) (Value, error) {
			return NewBool(receiver.IsNil()), nil
		}),
		"to_s": property(func(exec *Execution, receiver Value, args []Value, kwargs map[string]Value, block Value) (Value, error) {
			return NewString(receiver.String()), nil
		}),
		"inspect": property(func(exec *Execution, receiver Value, args []Value, kwargs map[string]Value, block Value) (Value, error) {
			return NewString(receiver.Inspect()), nil
		}),
		"is_a?": method(func(exec *Execution, receiver Value, args []Value, kwargs map[string]Value, block Value) (Value, error) {
			if len(args) != 1 {
				return NewNil(), fmt.Errorf("is_a? expects a type")
			}
			name := args[0].String()
			if args[0].Kind() == KindClass {
				name = args[0].Class().Name
			}
			ty, _ := resolveType(name)
			return NewBool(valueMatchesType(receiver, &TypeExpr{Name: name, Kind: ty})), nil
		}),
		"respond_to?": method(func(exec *Execution, receiver Value, args []Value, kwargs map[string]Value, block Value) (Value, error) {
			if len(args) != 1 {
				return NewNil(), fmt.Errorf("respond_to? expects a member name")
			}
			_, err := exec.getMember(receiver, args[0].String(), Position{})
			return NewBool(err == nil), nil
		}),
	}
	initScalarMembers()
	initCollectionMembers()
}

func boundMember(name string, m memberFn) Value {
	if m.auto {
		return NewAutoBuiltin(name, m.fn)
	}
	return NewBuiltin(name, m.fn)
}

func (exec *Execution) getMember(obj Value, name string, pos Position) (Value, error) {
	var table map[string]memberFn
	switch obj.Kind() {
	case KindInstance:
		inst := obj.Instance()
		if val, ok := inst.Ivars[name]; ok {
			return val, nil
		}
		if fn, ok := inst.Class.Methods[name]; ok {
			return NewFunction(fn), nil
		}
	case KindClass:
		class := obj.Class()
		if fn, ok := class.ClassMethods[name]; ok {
			return NewFunction(fn), nil
		}
		switch name {
		case "new":
			return NewAutoBuiltin(class.Name+".new", func(exec *Execution, receiver Value, args []Value, kwargs map[string]Value, block Value) (Value, error) {
				return exec.instantiate(class, args, kwargs, block, pos)
			}), nil
		case "name":
			return NewString(class.Name), nil
		}
	case KindObject:
		if val, ok := obj.Object().Members[name]; ok {
			return val, nil
		}
	case KindFunction, KindBuiltin, KindBlock:
		switch name {
		case "call":
			callee := obj
			return NewBuiltin("call", func(exec *Execution, receiver Value, args []Value, kwargs map[string]Value, block Value) (Value, error) {
				return exec.invoke(callee, NewNil(), args, kwargs, block, pos)
			}), nil
		case "name":
			if obj.Kind() == KindFunction {
				return NewString(obj.Function().Name), nil
			}
		}
	case KindString, KindSymbol:
		table = stringMembers
	case KindInt:
		table = intMembers
	case KindFloat:
		table = floatMembers
	case KindArray:
		table = arrayMembers
	case KindHash:
		if val, ok := obj.Hash()[name]; ok {
			return val, nil
		}
		table = hashMembers
	case KindRange:
		table = rangeMembers
	}

	if m, ok := table[name]; ok {
		return boundMember(name, m), nil
	}
	if m, ok := universalMembers[name]; ok {
		return boundMember(name, m), nil
	}
	return NewNil(), exec.errorAt(pos, errTypeName, "undefined method '%s' for %s", name, obj.TypeName())
}

func argCount(name string, args []Value, want int) error {
	if len(args) != want {
		return fmt.Errorf("%s expects %d argument(s), got %d", name, want, len(args))
	}
	return nil
}

func requireBlock(name string, block Value) error {
	if block.IsNil() {
		return fmt.Errorf("%s requires a block", name)
	}
	return nil
}
