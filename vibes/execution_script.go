package vibes

import (
	"context"
	"fmt"
	"io"
)

// Script is a parsed unit ready to run inside a namespace.
type Script struct {
	engine  *Engine
	unit    string
	source  string
	program *Program
}

// RunOptions configures a Run or Call.
type RunOptions struct {
	// Stdout receives puts/print output. Output is discarded when nil.
	Stdout io.Writer
}

// Compile parses source as the named unit.
func (e *Engine) Compile(unit, source string) (*Script, error) {
	program, err := newParser(source).ParseProgram()
	if err != nil {
		return nil, err
	}
	return &Script{engine: e, unit: unit, source: source, program: program}, nil
}

// Check parses source and reports the first syntax errors, if any.
func (e *Engine) Check(source string) error {
	_, err := newParser(source).ParseProgram()
	return err
}

func (s *Script) Unit() string   { return s.unit }
func (s *Script) Source() string { return s.source }

func (e *Engine) newExecution(ctx context.Context, ns *Namespace, unit, source string, opts RunOptions) *Execution {
	if ctx == nil {
		ctx = context.Background()
	}
	stdout := opts.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	return &Execution{
		engine:         e,
		ctx:            ctx,
		ns:             ns,
		stdout:         stdout,
		unit:           unit,
		source:         source,
		quota:          e.config.StepQuota,
		recursionLimit: e.config.RecursionLimit,
	}
}

// Run evaluates the script's top-level statements directly in ns, so its
// definitions and assignments become namespace bindings, recorded with the
// script's unit as their origin. The value of the last statement is returned.
func (s *Script) Run(ctx context.Context, ns *Namespace, opts RunOptions) (Value, error) {
	if ns == nil {
		return NewNil(), fmt.Errorf("vibes: run %s: nil namespace", s.unit)
	}
	exec := s.engine.newExecution(ctx, ns, s.unit, s.source, opts)
	val, _, err := exec.evalStatements(s.program.Statements, ns.env)
	if err != nil {
		if isLoopSignal(err) {
			return NewNil(), exec.errorAt(Position{}, errTypeRuntime, "%s", err.Error())
		}
		return NewNil(), exec.wrapError(err, s.program.Pos())
	}
	for _, def := range s.Definitions() {
		if bound, ok := ns.Lookup(def.Name); ok {
			ns.Set(def.Name, bound, s.unit)
		}
	}
	return val, nil
}

// Call invokes a callable value in the context of ns.
func (e *Engine) Call(ctx context.Context, ns *Namespace, callee Value, args []Value, kwargs map[string]Value, opts RunOptions) (Value, error) {
	if !callee.Callable() {
		return NewNil(), fmt.Errorf("vibes: %s is not callable", callee.TypeName())
	}
	source := ""
	if callee.Kind() == KindFunction {
		source = callee.Function().Source
	}
	exec := e.newExecution(ctx, ns, ns.Name(), source, opts)
	return exec.invoke(callee, NewNil(), args, kwargs, NewNil(), Position{})
}

// Instantiate creates an instance of class the way Class.new does.
func (e *Engine) Instantiate(ctx context.Context, ns *Namespace, class *ClassDef, args []Value, kwargs map[string]Value) (Value, error) {
	exec := e.newExecution(ctx, ns, ns.Name(), class.Source, RunOptions{})
	return exec.instantiate(class, args, kwargs, NewNil(), Position{})
}

// PropertyDefault evaluates the declared default of a class property. The
// boolean is false when the property has no default.
func (e *Engine) PropertyDefault(ctx context.Context, ns *Namespace, class *ClassDef, name string) (Value, bool, error) {
	prop, ok := class.Property(name)
	if !ok || prop.Default == nil {
		return NewNil(), false, nil
	}
	exec := e.newExecution(ctx, ns, ns.Name(), class.Source, RunOptions{})
	env := newScopeEnv(class.env)
	if env.parent == nil {
		env = newScopeEnv(ns.env)
	}
	val, err := exec.evalExpression(prop.Default, env)
	if err != nil {
		return NewNil(), true, err
	}
	return val, true, nil
}
