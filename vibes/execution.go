package vibes

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Execution carries the state of one top-level run or call: quotas, the
// call stack used for error frames, and the writer puts prints to.
type Execution struct {
	engine         *Engine
	ctx            context.Context
	ns             *Namespace
	stdout         io.Writer
	unit           string
	source         string
	steps          int
	quota          int
	recursionLimit int
	callStack      []callFrame
}

type callFrame struct {
	Function string
	Pos      Position
	source   string
}

// StackFrame is one entry of a runtime error's call trace.
type StackFrame struct {
	Function string
	Pos      Position
}

// RuntimeError is raised by failing scripts. Type names the error class
// (NameError, TypeError, a raised class name, ...).
type RuntimeError struct {
	Type      string
	Message   string
	CodeFrame string
	Frames    []StackFrame
	Value     Value
	cause     error
}

const maxRenderedFrames = 8

func (re *RuntimeError) Error() string {
	var b strings.Builder
	if re.Type != "" {
		b.WriteString(re.Type)
		b.WriteString(": ")
	}
	b.WriteString(re.Message)
	if re.CodeFrame != "" {
		b.WriteString("\n")
		b.WriteString(re.CodeFrame)
	}
	frames := re.Frames
	if len(frames) > maxRenderedFrames {
		half := maxRenderedFrames / 2
		omitted := len(frames) - maxRenderedFrames
		frames = append(append(append([]StackFrame{}, frames[:half]...), StackFrame{Function: fmt.Sprintf("... %d more", omitted)}), frames[len(frames)-half:]...)
	}
	for _, frame := range frames {
		if frame.Pos.Line == 0 {
			fmt.Fprintf(&b, "\n  %s", frame.Function)
			continue
		}
		fmt.Fprintf(&b, "\n  at %s (%d:%d)", frame.Function, frame.Pos.Line, frame.Pos.Column)
	}
	return b.String()
}

// NewRuntimeError builds an error of the given script-visible type for
// builtins and host objects to return.
func NewRuntimeError(errType, format string, args ...any) *RuntimeError {
	return &RuntimeError{Type: errType, Message: fmt.Sprintf(format, args...)}
}

func (re *RuntimeError) Unwrap() error {
	return re.cause
}

const (
	errTypeRuntime   = "RuntimeError"
	errTypeName      = "NameError"
	errTypeType      = "TypeError"
	errTypeArgument  = "ArgumentError"
	errTypeZeroDiv   = "ZeroDivisionError"
	errTypeQuota     = "QuotaError"
	errTypeCancelled = "CancelledError"
)

var (
	errLoopBreak         = errors.New("break outside of loop")
	errLoopNext          = errors.New("next outside of loop")
	errStepQuotaExceeded = errors.New("step quota exceeded")
)

func isLoopSignal(err error) bool {
	return errors.Is(err, errLoopBreak) || errors.Is(err, errLoopNext)
}

func rescuable(err error) bool {
	var re *RuntimeError
	if !errors.As(err, &re) {
		return false
	}
	return re.Type != errTypeQuota && re.Type != errTypeCancelled
}

// Context returns the context the execution runs under.
func (exec *Execution) Context() context.Context {
	return exec.ctx
}

// Stdout returns the writer puts and print write to.
func (exec *Execution) Stdout() io.Writer {
	return exec.stdout
}

// Namespace returns the namespace the execution runs in.
func (exec *Execution) Namespace() *Namespace {
	return exec.ns
}

func (exec *Execution) step() error {
	exec.steps++
	if exec.quota > 0 && exec.steps > exec.quota {
		return errStepQuotaExceeded
	}
	if exec.steps&63 == 0 && exec.ctx != nil {
		if err := exec.ctx.Err(); err != nil {
			return err
		}
	}
	return nil
}

func (exec *Execution) frames() []StackFrame {
	frames := make([]StackFrame, 0, len(exec.callStack))
	for i := len(exec.callStack) - 1; i >= 0; i-- {
		frames = append(frames, StackFrame{Function: exec.callStack[i].Function, Pos: exec.callStack[i].Pos})
	}
	return frames
}

func (exec *Execution) errorAt(pos Position, errType string, format string, args ...any) error {
	return &RuntimeError{
		Type:      errType,
		Message:   fmt.Sprintf(format, args...),
		CodeFrame: formatCodeFrame(exec.source, pos),
		Frames:    exec.frames(),
	}
}

// wrapError converts host errors into runtime errors positioned at pos.
// Loop signals pass through untouched and runtime errors built by host code
// get their code frame filled in.
func (exec *Execution) wrapError(err error, pos Position) error {
	if err == nil || isLoopSignal(err) {
		return err
	}
	var re *RuntimeError
	if errors.As(err, &re) {
		if re.CodeFrame == "" && re.Frames == nil {
			re.CodeFrame = formatCodeFrame(exec.source, pos)
			re.Frames = exec.frames()
		}
		return err
	}
	errType := errTypeRuntime
	switch {
	case errors.Is(err, errStepQuotaExceeded):
		errType = errTypeQuota
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		errType = errTypeCancelled
	}
	return &RuntimeError{
		Type:      errType,
		Message:   err.Error(),
		CodeFrame: formatCodeFrame(exec.source, pos),
		Frames:    exec.frames(),
		cause:     err,
	}
}

func (exec *Execution) pushFrame(name string, pos Position, source string) error {
	if exec.recursionLimit > 0 && len(exec.callStack) >= exec.recursionLimit {
		return exec.errorAt(pos, errTypeRuntime, "recursion depth exceeded (limit %d)", exec.recursionLimit)
	}
	exec.callStack = append(exec.callStack, callFrame{Function: name, Pos: pos, source: exec.source})
	if source != "" {
		exec.source = source
	}
	return nil
}

func (exec *Execution) popFrame() {
	top := exec.callStack[len(exec.callStack)-1]
	exec.callStack = exec.callStack[:len(exec.callStack)-1]
	exec.source = top.source
}

func (exec *Execution) evalStatements(stmts []Statement, env *Env) (Value, bool, error) {
	result := NewNil()
	for _, stmt := range stmts {
		val, returned, err := exec.evalStatement(stmt, env)
		if err != nil {
			return NewNil(), false, err
		}
		if returned {
			return val, true, nil
		}
		result = val
	}
	return result, false, nil
}

func (exec *Execution) evalStatement(stmt Statement, env *Env) (Value, bool, error) {
	if err := exec.step(); err != nil {
		return NewNil(), false, exec.wrapError(err, stmt.Pos())
	}

	switch s := stmt.(type) {
	case *ExprStmt:
		val, err := exec.evalExpression(s.Expr, env)
		return val, false, err
	case *AssignStmt:
		val, err := exec.evalAssign(s, env)
		return val, false, err
	case *FunctionStmt:
		fn := exec.newFunction(s, env, nil)
		env.Define(s.Name, NewFunction(fn))
		return NewFunction(fn), false, nil
	case *ClassStmt:
		class, err := exec.defineClass(s, env)
		return class, false, err
	case *ReturnStmt:
		if s.Value == nil {
			return NewNil(), true, nil
		}
		val, err := exec.evalExpression(s.Value, env)
		if err != nil {
			return NewNil(), false, err
		}
		return val, true, nil
	case *RaiseStmt:
		return NewNil(), false, exec.evalRaise(s, env)
	case *IfStmt:
		return exec.evalIf(s, env)
	case *WhileStmt:
		return exec.evalWhile(s, env)
	case *ForStmt:
		return exec.evalFor(s, env)
	case *BreakStmt:
		return NewNil(), false, errLoopBreak
	case *NextStmt:
		return NewNil(), false, errLoopNext
	case *TryStmt:
		return exec.evalTry(s, env)
	default:
		return NewNil(), false, exec.errorAt(stmt.Pos(), errTypeRuntime, "unsupported statement %T", stmt)
	}
}

func (exec *Execution) newFunction(s *FunctionStmt, env *Env, owner *ClassDef) *ScriptFunction {
	return &ScriptFunction{
		Name:     s.Name,
		Params:   s.Params,
		ReturnTy: s.ReturnTy,
		Body:     s.Body,
		Pos:      s.Pos(),
		Env:      env,
		Private:  s.Private,
		Unit:     exec.unit,
		Decl:     s,
		Source:   exec.source,
		owner:    owner,
	}
}

func (exec *Execution) defineClass(s *ClassStmt, env *Env) (Value, error) {
	class := &ClassDef{
		Name:         s.Name,
		Methods:      make(map[string]*ScriptFunction, len(s.Methods)),
		ClassMethods: make(map[string]*ScriptFunction, len(s.ClassMethods)),
		Body:         s.Body,
		Decl:         s,
		Unit:         exec.unit,
		Source:       exec.source,
		env:          env,
	}
	for _, decl := range s.Properties {
		if _, exists := class.Property(decl.Name); exists {
			return NewNil(), exec.errorAt(decl.Pos(), errTypeName, "duplicate property %s in class %s", decl.Name, s.Name)
		}
		class.Properties = append(class.Properties, &PropertyDef{Name: decl.Name, Type: decl.Type, Default: decl.Default})
	}
	for _, method := range s.Methods {
		class.Methods[method.Name] = exec.newFunction(method, env, class)
	}
	for _, method := range s.ClassMethods {
		class.ClassMethods[method.Name] = exec.newFunction(method, env, class)
	}

	val := NewClass(class)
	env.Define(s.Name, val)

	if len(s.Body) > 0 {
		classEnv := newScopeEnv(env)
		classEnv.Define("self", val)
		if _, _, err := exec.evalStatements(s.Body, classEnv); err != nil {
			return NewNil(), err
		}
	}
	return val, nil
}

func (exec *Execution) evalRaise(s *RaiseStmt, env *Env) error {
	if s.Value == nil {
		return exec.errorAt(s.Pos(), errTypeRuntime, "unhandled exception")
	}
	val, err := exec.evalExpression(s.Value, env)
	if err != nil {
		return err
	}
	errType := errTypeRuntime
	message := val.String()
	switch val.Kind() {
	case KindInstance:
		inst := val.Instance()
		errType = inst.Class.Name
		if msg, ok := inst.Ivars["message"]; ok {
			message = msg.String()
		}
	case KindClass:
		errType = val.Class().Name
		message = errType
	}
	re := exec.errorAt(s.Pos(), errType, "%s", message).(*RuntimeError)
	re.Value = val
	return re
}

func (exec *Execution) evalIf(s *IfStmt, env *Env) (Value, bool, error) {
	cond, err := exec.evalExpression(s.Condition, env)
	if err != nil {
		return NewNil(), false, err
	}
	if cond.Truthy() {
		return exec.evalStatements(s.Consequent, env)
	}
	for _, clause := range s.ElseIf {
		cond, err := exec.evalExpression(clause.Condition, env)
		if err != nil {
			return NewNil(), false, err
		}
		if cond.Truthy() {
			return exec.evalStatements(clause.Consequent, env)
		}
	}
	if s.Alternate != nil {
		return exec.evalStatements(s.Alternate, env)
	}
	return NewNil(), false, nil
}

func (exec *Execution) evalWhile(s *WhileStmt, env *Env) (Value, bool, error) {
	for {
		cond, err := exec.evalExpression(s.Condition, env)
		if err != nil {
			return NewNil(), false, err
		}
		if !cond.Truthy() {
			return NewNil(), false, nil
		}
		val, returned, err := exec.evalStatements(s.Body, env)
		switch {
		case errors.Is(err, errLoopBreak):
			return NewNil(), false, nil
		case errors.Is(err, errLoopNext):
			continue
		case err != nil:
			return NewNil(), false, err
		case returned:
			return val, true, nil
		}
	}
}

func (exec *Execution) evalFor(s *ForStmt, env *Env) (Value, bool, error) {
	iterable, err := exec.evalExpression(s.Iterable, env)
	if err != nil {
		return NewNil(), false, err
	}
	items, err := iterationItems(iterable)
	if err != nil {
		return NewNil(), false, exec.errorAt(s.Iterable.Pos(), errTypeType, "%s", err.Error())
	}
	for _, item := range items {
		env.Assign(s.Iterator, item)
		val, returned, err := exec.evalStatements(s.Body, env)
		switch {
		case errors.Is(err, errLoopBreak):
			return NewNil(), false, nil
		case errors.Is(err, errLoopNext):
			continue
		case err != nil:
			return NewNil(), false, err
		case returned:
			return val, true, nil
		}
	}
	return iterable, false, nil
}

func iterationItems(val Value) ([]Value, error) {
	switch val.Kind() {
	case KindArray:
		return val.Array(), nil
	case KindRange:
		r := val.Range()
		if r.End < r.Start {
			return nil, nil
		}
		items := make([]Value, 0, r.End-r.Start+1)
		for i := r.Start; i <= r.End; i++ {
			items = append(items, NewInt(i))
		}
		return items, nil
	case KindHash:
		h := val.Hash()
		items := make([]Value, 0, len(h))
		for _, k := range sortedKeys(h) {
			items = append(items, NewArray([]Value{NewString(k), h[k]}))
		}
		return items, nil
	}
	return nil, fmt.Errorf("cannot iterate over %s", val.Kind())
}

func (exec *Execution) evalTry(s *TryStmt, env *Env) (val Value, returned bool, err error) {
	if s.Ensure != nil {
		defer func() {
			if _, _, ensureErr := exec.evalStatements(s.Ensure, env); ensureErr != nil && err == nil {
				err = ensureErr
			}
		}()
	}

	val, returned, err = exec.evalStatements(s.Body, env)
	if err == nil || s.Rescue == nil || !rescuable(err) {
		return val, returned, err
	}

	var re *RuntimeError
	errors.As(err, &re)
	if s.RescueVar != "" {
		env.Assign(s.RescueVar, errorObject(re))
	}
	return exec.evalStatements(s.Rescue, env)
}

func errorObject(re *RuntimeError) Value {
	return NewObject(&HostObject{
		TypeName: re.Type,
		Members: map[string]Value{
			"message": NewString(re.Message),
			"type":    NewString(re.Type),
			"value":   re.Value,
		},
		Native: re,
	})
}
