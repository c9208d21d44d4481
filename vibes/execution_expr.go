package vibes

import (
	"strings"
)

func (exec *Execution) evalExpression(expr Expression, env *Env) (Value, error) {
	return exec.evalExpressionWithAuto(expr, env, true)
}

func (exec *Execution) evalExpressionWithAuto(expr Expression, env *Env, autoCall bool) (Value, error) {
	if err := exec.step(); err != nil {
		return NewNil(), exec.wrapError(err, expr.Pos())
	}

	switch e := expr.(type) {
	case *Identifier:
		return exec.evalIdentifier(e, env, autoCall)
	case *IntegerLiteral:
		return NewInt(e.Value), nil
	case *FloatLiteral:
		return NewFloat(e.Value), nil
	case *StringLiteral:
		return NewString(e.Value), nil
	case *InterpolatedString:
		var b strings.Builder
		for _, part := range e.Parts {
			val, err := exec.evalExpression(part, env)
			if err != nil {
				return NewNil(), err
			}
			b.WriteString(val.String())
		}
		return NewString(b.String()), nil
	case *SymbolLiteral:
		return NewSymbol(e.Name), nil
	case *BoolLiteral:
		return NewBool(e.Value), nil
	case *NilLiteral:
		return NewNil(), nil
	case *SelfExpr:
		self, _ := env.Get("self")
		return self, nil
	case *IvarExpr:
		self, ok := env.Get("self")
		if !ok || self.Kind() != KindInstance {
			return NewNil(), exec.errorAt(e.Pos(), errTypeName, "instance variable @%s used outside of an instance", e.Name)
		}
		val, _ := self.Instance().Get(e.Name)
		return val, nil
	case *ArrayLiteral:
		elems := make([]Value, len(e.Elements))
		for i, el := range e.Elements {
			val, err := exec.evalExpression(el, env)
			if err != nil {
				return NewNil(), err
			}
			elems[i] = val
		}
		return NewArray(elems), nil
	case *HashLiteral:
		entries := make(map[string]Value, len(e.Pairs))
		for _, pair := range e.Pairs {
			keyVal, err := exec.evalExpression(pair.Key, env)
			if err != nil {
				return NewNil(), err
			}
			key, err := valueToHashKey(keyVal)
			if err != nil {
				return NewNil(), exec.errorAt(pair.Key.Pos(), errTypeType, "%s", err.Error())
			}
			val, err := exec.evalExpression(pair.Value, env)
			if err != nil {
				return NewNil(), err
			}
			entries[key] = val
		}
		return NewHash(entries), nil
	case *UnaryExpr:
		return exec.evalUnary(e, env)
	case *BinaryExpr:
		return exec.evalBinary(e, env)
	case *RangeExpr:
		start, err := exec.evalExpression(e.Start, env)
		if err != nil {
			return NewNil(), err
		}
		end, err := exec.evalExpression(e.End, env)
		if err != nil {
			return NewNil(), err
		}
		if start.Kind() != KindInt || end.Kind() != KindInt {
			return NewNil(), exec.errorAt(e.Pos(), errTypeType, "range bounds must be integers")
		}
		return NewRange(Range{Start: start.Int(), End: end.Int()}), nil
	case *CallExpr:
		return exec.evalCallExpr(e, env)
	case *MemberExpr:
		obj, err := exec.evalExpression(e.Object, env)
		if err != nil {
			return NewNil(), err
		}
		member, err := exec.getMember(obj, e.Property, e.Pos())
		if err != nil {
			return NewNil(), err
		}
		if autoCall {
			return exec.autoInvokeIfNeeded(member, obj, e.Pos())
		}
		return member, nil
	case *IndexExpr:
		return exec.evalIndex(e, env)
	case *BlockLiteral:
		self, _ := env.Get("self")
		return Value{kind: KindBlock, data: &Block{Params: e.Params, Body: e.Body, Env: env, self: self, source: exec.source}}, nil
	default:
		return NewNil(), exec.errorAt(expr.Pos(), errTypeRuntime, "unsupported expression %T", expr)
	}
}

func (exec *Execution) evalIdentifier(e *Identifier, env *Env, autoCall bool) (Value, error) {
	val, ok := env.Get(e.Name)
	if !ok {
		if self, method, found := exec.selfMethod(env, e.Name); found {
			if !autoCall {
				return NewFunction(method), nil
			}
			return exec.callFunction(method, self, nil, nil, NewNil(), e.Pos())
		}
		return NewNil(), exec.errorAt(e.Pos(), errTypeName, "undefined variable or method '%s'", e.Name)
	}
	if autoCall {
		return exec.autoInvokeIfNeeded(val, NewNil(), e.Pos())
	}
	return val, nil
}

// selfMethod finds an instance or class method on the current self.
func (exec *Execution) selfMethod(env *Env, name string) (Value, *ScriptFunction, bool) {
	self, ok := env.Get("self")
	if !ok {
		return NewNil(), nil, false
	}
	switch self.Kind() {
	case KindInstance:
		if fn, ok := self.Instance().Class.Methods[name]; ok {
			return self, fn, true
		}
	case KindClass:
		if fn, ok := self.Class().ClassMethods[name]; ok {
			return self, fn, true
		}
	}
	return NewNil(), nil, false
}

func (exec *Execution) evalUnary(e *UnaryExpr, env *Env) (Value, error) {
	right, err := exec.evalExpression(e.Right, env)
	if err != nil {
		return NewNil(), err
	}
	switch e.Operator {
	case tokenBang:
		return NewBool(!right.Truthy()), nil
	case tokenMinus:
		switch right.Kind() {
		case KindInt:
			return NewInt(-right.Int()), nil
		case KindFloat:
			return NewFloat(-right.Float()), nil
		}
		return NewNil(), exec.errorAt(e.Pos(), errTypeType, "unsupported operand for unary -: %s", right.Kind())
	}
	return NewNil(), exec.errorAt(e.Pos(), errTypeRuntime, "unsupported unary operator %s", e.Operator)
}

func (exec *Execution) evalBinary(e *BinaryExpr, env *Env) (Value, error) {
	left, err := exec.evalExpression(e.Left, env)
	if err != nil {
		return NewNil(), err
	}

	switch e.Operator {
	case tokenAnd:
		if !left.Truthy() {
			return left, nil
		}
		return exec.evalExpression(e.Right, env)
	case tokenOr:
		if left.Truthy() {
			return left, nil
		}
		return exec.evalExpression(e.Right, env)
	}

	right, err := exec.evalExpression(e.Right, env)
	if err != nil {
		return NewNil(), err
	}
	val, err := binaryOp(e.Operator, left, right)
	if err != nil {
		return NewNil(), exec.classifyOpError(err, e.Pos())
	}
	return val, nil
}

func (exec *Execution) classifyOpError(err error, pos Position) error {
	if err == errDivisionByZero {
		return exec.errorAt(pos, errTypeZeroDiv, "%s", err.Error())
	}
	return exec.errorAt(pos, errTypeType, "%s", err.Error())
}

func (exec *Execution) evalIndex(e *IndexExpr, env *Env) (Value, error) {
	obj, err := exec.evalExpression(e.Object, env)
	if err != nil {
		return NewNil(), err
	}
	idx, err := exec.evalExpression(e.Index, env)
	if err != nil {
		return NewNil(), err
	}
	val, err := indexValue(obj, idx)
	if err != nil {
		return NewNil(), exec.errorAt(e.Pos(), errTypeType, "%s", err.Error())
	}
	return val, nil
}

func (exec *Execution) evalAssign(s *AssignStmt, env *Env) (Value, error) {
	val, err := exec.evalExpression(s.Value, env)
	if err != nil {
		return NewNil(), err
	}
	if s.Operator != tokenAssign {
		current, err := exec.evalExpression(s.Target, env)
		if err != nil {
			return NewNil(), err
		}
		op := tokenPlus
		if s.Operator == tokenMinusAssign {
			op = tokenMinus
		}
		val, err = binaryOp(op, current, val)
		if err != nil {
			return NewNil(), exec.classifyOpError(err, s.Pos())
		}
	}
	return val, exec.assign(s.Target, val, env)
}

func (exec *Execution) assign(target Expression, val Value, env *Env) error {
	switch t := target.(type) {
	case *Identifier:
		env.Assign(t.Name, val)
		return nil
	case *IvarExpr:
		self, ok := env.Get("self")
		if !ok || self.Kind() != KindInstance {
			return exec.errorAt(t.Pos(), errTypeName, "instance variable @%s used outside of an instance", t.Name)
		}
		return exec.setAttribute(self.Instance(), t.Name, val, t.Pos())
	case *MemberExpr:
		obj, err := exec.evalExpression(t.Object, env)
		if err != nil {
			return err
		}
		switch obj.Kind() {
		case KindInstance:
			return exec.setAttribute(obj.Instance(), t.Property, val, t.Pos())
		case KindHash:
			obj.Hash()[t.Property] = val
			return nil
		case KindObject:
			if setter, ok := obj.Object().Members[t.Property+"="]; ok && setter.Callable() {
				_, err := exec.invoke(setter, obj, []Value{val}, nil, NewNil(), t.Pos())
				return err
			}
		}
		return exec.errorAt(t.Pos(), errTypeType, "cannot assign %s on %s", t.Property, obj.TypeName())
	case *IndexExpr:
		obj, err := exec.evalExpression(t.Object, env)
		if err != nil {
			return err
		}
		idx, err := exec.evalExpression(t.Index, env)
		if err != nil {
			return err
		}
		if err := setIndex(obj, idx, val); err != nil {
			return exec.errorAt(t.Pos(), errTypeType, "%s", err.Error())
		}
		return nil
	}
	return exec.errorAt(target.Pos(), errTypeRuntime, "invalid assignment target")
}

func (exec *Execution) setAttribute(inst *Instance, name string, val Value, pos Position) error {
	if prop, ok := inst.Class.Property(name); ok && prop.Type != nil && !valueMatchesType(val, prop.Type) {
		return exec.errorAt(pos, errTypeType, "property %s.%s expects %s, got %s", inst.Class.Name, name, formatTypeExpr(prop.Type), val.TypeName())
	}
	inst.Set(name, val)
	return nil
}
