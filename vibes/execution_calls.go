package vibes

import (
	"errors"
	"maps"
	"slices"
)

func (exec *Execution) evalCallExpr(e *CallExpr, env *Env) (Value, error) {
	args, kwargs, block, err := exec.evalCallArgs(e, env)
	if err != nil {
		return NewNil(), err
	}

	switch callee := e.Callee.(type) {
	case *Identifier:
		if val, ok := env.Get(callee.Name); ok {
			return exec.invoke(val, NewNil(), args, kwargs, block, e.Pos())
		}
		if self, method, found := exec.selfMethod(env, callee.Name); found {
			return exec.callFunction(method, self, args, kwargs, block, e.Pos())
		}
		return NewNil(), exec.errorAt(callee.Pos(), errTypeName, "undefined method '%s'", callee.Name)
	case *MemberExpr:
		obj, err := exec.evalExpression(callee.Object, env)
		if err != nil {
			return NewNil(), err
		}
		member, err := exec.getMember(obj, callee.Property, callee.Pos())
		if err != nil {
			return NewNil(), err
		}
		if err := exec.checkPrivate(member, callee); err != nil {
			return NewNil(), err
		}
		return exec.invoke(member, obj, args, kwargs, block, e.Pos())
	default:
		fn, err := exec.evalExpressionWithAuto(e.Callee, env, false)
		if err != nil {
			return NewNil(), err
		}
		return exec.invoke(fn, NewNil(), args, kwargs, block, e.Pos())
	}
}

func (exec *Execution) evalCallArgs(e *CallExpr, env *Env) ([]Value, map[string]Value, Value, error) {
	args := make([]Value, len(e.Args))
	for i, arg := range e.Args {
		val, err := exec.evalExpression(arg, env)
		if err != nil {
			return nil, nil, NewNil(), err
		}
		args[i] = val
	}
	var kwargs map[string]Value
	if len(e.KwArgs) > 0 {
		kwargs = make(map[string]Value, len(e.KwArgs))
		for _, kw := range e.KwArgs {
			val, err := exec.evalExpression(kw.Value, env)
			if err != nil {
				return nil, nil, NewNil(), err
			}
			kwargs[kw.Name] = val
		}
	}
	block := NewNil()
	if e.Block != nil {
		val, err := exec.evalExpression(e.Block, env)
		if err != nil {
			return nil, nil, NewNil(), err
		}
		block = val
	}
	return args, kwargs, block, nil
}

// checkPrivate rejects calls to private methods through an explicit
// receiver other than self.
func (exec *Execution) checkPrivate(member Value, callee *MemberExpr) error {
	if member.Kind() != KindFunction || !member.Function().Private {
		return nil
	}
	if _, ok := callee.Object.(*SelfExpr); ok {
		return nil
	}
	return exec.errorAt(callee.Pos(), errTypeName, "private method '%s' called", callee.Property)
}

func (exec *Execution) invoke(callee, receiver Value, args []Value, kwargs map[string]Value, block Value, pos Position) (Value, error) {
	switch callee.Kind() {
	case KindFunction:
		return exec.callFunction(callee.Function(), receiver, args, kwargs, block, pos)
	case KindBuiltin:
		b := callee.Builtin()
		val, err := b.Fn(exec, receiver, args, kwargs, block)
		if err != nil {
			return NewNil(), exec.wrapError(err, pos)
		}
		return val, nil
	case KindBlock:
		return exec.callBlock(callee.Block(), args, pos)
	}
	return NewNil(), exec.errorAt(pos, errTypeType, "%s is not callable", callee.TypeName())
}

func (exec *Execution) callFunction(fn *ScriptFunction, receiver Value, args []Value, kwargs map[string]Value, block Value, pos Position) (Value, error) {
	callEnv := newScopeEnv(fn.Env)
	switch receiver.Kind() {
	case KindInstance, KindClass:
		callEnv.Define("self", receiver)
	}
	if err := exec.bindFunctionArgs(fn, callEnv, args, kwargs, block, pos); err != nil {
		return NewNil(), err
	}

	if err := exec.pushFrame(fn.Name, pos, fn.Source); err != nil {
		return NewNil(), err
	}
	val, _, err := exec.evalStatements(fn.Body, callEnv)
	exec.popFrame()
	if err != nil {
		if isLoopSignal(err) {
			return NewNil(), exec.errorAt(pos, errTypeRuntime, "%s", err.Error())
		}
		return NewNil(), err
	}
	if fn.ReturnTy != nil && !valueMatchesType(val, fn.ReturnTy) {
		return NewNil(), exec.errorAt(fn.Pos, errTypeType, "%s must return %s, got %s", fn.Name, formatTypeExpr(fn.ReturnTy), val.TypeName())
	}
	return val, nil
}

func (exec *Execution) bindFunctionArgs(fn *ScriptFunction, env *Env, args []Value, kwargs map[string]Value, block Value, pos Position) error {
	usedKw := make(map[string]bool, len(kwargs))
	argIdx := 0

	for _, param := range fn.Params {
		var val Value
		switch kw, hasKw := kwargs[param.Name]; {
		case argIdx < len(args):
			val = args[argIdx]
			argIdx++
		case hasKw:
			val = kw
			usedKw[param.Name] = true
		case param.Name == "block" && !block.IsNil():
			val = block
		case param.DefaultVal != nil:
			defaultVal, err := exec.evalExpression(param.DefaultVal, env)
			if err != nil {
				return err
			}
			val = defaultVal
		default:
			return exec.errorAt(pos, errTypeArgument, "%s: missing argument %s", fn.Name, param.Name)
		}

		if param.Type != nil && !valueMatchesType(val, param.Type) {
			return exec.errorAt(pos, errTypeType, "%s: argument %s expects %s, got %s", fn.Name, param.Name, formatTypeExpr(param.Type), val.TypeName())
		}
		env.Define(param.Name, val)
	}

	if argIdx < len(args) {
		return exec.errorAt(pos, errTypeArgument, "%s: expected %d arguments, got %d", fn.Name, len(fn.Params), len(args))
	}
	for _, name := range sortedKeys(kwargs) {
		if !usedKw[name] {
			return exec.errorAt(pos, errTypeArgument, "%s: unexpected keyword argument %s", fn.Name, name)
		}
	}
	return nil
}

func requiredParams(fn *ScriptFunction) int {
	count := 0
	for _, param := range fn.Params {
		if param.DefaultVal == nil {
			count++
		}
	}
	return count
}

func (exec *Execution) callBlock(blk *Block, args []Value, pos Position) (Value, error) {
	env := newEnv(blk.Env)
	if !blk.self.IsNil() {
		env.Define("self", blk.self)
	}
	if len(blk.Params) > 1 && len(args) == 1 && args[0].Kind() == KindArray {
		args = args[0].Array()
	}
	for i, param := range blk.Params {
		val := NewNil()
		if i < len(args) {
			val = args[i]
		}
		if param.Type != nil && !valueMatchesType(val, param.Type) {
			return NewNil(), exec.errorAt(pos, errTypeType, "block argument %s expects %s, got %s", param.Name, formatTypeExpr(param.Type), val.TypeName())
		}
		env.Define(param.Name, val)
	}

	saved := exec.source
	if blk.source != "" {
		exec.source = blk.source
	}
	val, _, err := exec.evalStatements(blk.Body, env)
	exec.source = saved
	if errors.Is(err, errLoopNext) {
		return NewNil(), nil
	}
	return val, err
}

// CallBlock invokes a block or any other callable value from a builtin.
// A break inside the block surfaces as ErrBlockBreak so iterating
// builtins can stop early.
func (exec *Execution) CallBlock(block Value, args ...Value) (Value, error) {
	if block.Kind() == KindBlock {
		val, err := exec.callBlock(block.Block(), args, Position{})
		if errors.Is(err, errLoopBreak) {
			return NewNil(), ErrBlockBreak
		}
		return val, err
	}
	return exec.Call(block, args, nil)
}

// ErrBlockBreak reports a break executed inside a block.
var ErrBlockBreak = errLoopBreak

// Call invokes a callable script value with the given arguments.
func (exec *Execution) Call(callee Value, args []Value, kwargs map[string]Value) (Value, error) {
	return exec.invoke(callee, NewNil(), args, kwargs, NewNil(), Position{})
}

func (exec *Execution) autoInvokeIfNeeded(val, receiver Value, pos Position) (Value, error) {
	switch val.Kind() {
	case KindFunction:
		if requiredParams(val.Function()) == 0 {
			return exec.callFunction(val.Function(), receiver, nil, nil, NewNil(), pos)
		}
	case KindBuiltin:
		if val.Builtin().AutoInvoke {
			return exec.invoke(val, receiver, nil, nil, NewNil(), pos)
		}
	}
	return val, nil
}

func (exec *Execution) instantiate(class *ClassDef, args []Value, kwargs map[string]Value, block Value, pos Position) (Value, error) {
	inst := class.NewStub()
	self := NewInstance(inst)

	defaultsEnv := newScopeEnv(class.env)
	defaultsEnv.Define("self", self)
	for _, prop := range class.Properties {
		if prop.Default == nil {
			inst.Set(prop.Name, NewNil())
			continue
		}
		val, err := exec.evalExpression(prop.Default, defaultsEnv)
		if err != nil {
			return NewNil(), err
		}
		inst.Set(prop.Name, val)
	}

	if init, ok := class.Methods["initialize"]; ok {
		if _, err := exec.callFunction(init, self, args, kwargs, block, pos); err != nil {
			return NewNil(), err
		}
		return self, nil
	}

	if len(args) > 0 {
		return NewNil(), exec.errorAt(pos, errTypeArgument, "%s.new accepts only keyword arguments", class.Name)
	}
	keys := slices.Sorted(maps.Keys(kwargs))
	for _, name := range keys {
		if _, ok := class.Property(name); !ok {
			return NewNil(), exec.errorAt(pos, errTypeArgument, "%s has no property %s", class.Name, name)
		}
		if err := exec.setAttribute(inst, name, kwargs[name], pos); err != nil {
			return NewNil(), err
		}
	}
	return self, nil
}
