package vibectx

import (
	"bytes"
	"context"
	"fmt"
	"maps"

	"github.com/mgomes/vibectx/descriptor"
	"github.com/mgomes/vibectx/vibes"
)

// ExecOptions describes one execution. LocalArgs and LocalKwargs name
// namespace bindings passed as arguments; LocalKwargs maps argument name to
// binding name. Args and Kwargs are appended after them.
type ExecOptions struct {
	Code        string
	LocalArgs   []string
	LocalKwargs map[string]string
	Args        []vibes.Value
	Kwargs      map[string]vibes.Value
}

func (o ExecOptions) hasArgs() bool {
	return len(o.LocalArgs) > 0 || len(o.LocalKwargs) > 0 || len(o.Args) > 0 || len(o.Kwargs) > 0
}

// Result is what an execution produced.
type Result struct {
	Value      vibes.Value
	Output     string
	Descriptor *descriptor.Descriptor
}

// Execute optionally runs code inside the unit, then resolves target and
// calls it when callable. An empty target returns the value of code. The
// descriptor snapshot is taken even when execution fails, and the error is
// returned alongside the populated Result.
func (rt *Runtime) Execute(ctx context.Context, target string, opts ExecOptions) (Result, error) {
	if !rt.inflight.CompareAndSwap(false, true) {
		return Result{}, ErrReentrantExecute
	}
	defer rt.inflight.Store(false)
	if rt.closed.Load() {
		return Result{}, ErrRuntimeClosed
	}

	var out bytes.Buffer
	run := vibes.RunOptions{Stdout: &out}
	val, err := rt.execute(ctx, target, opts, run)
	result := Result{Value: val, Output: out.String(), Descriptor: rt.capture()}
	if err != nil {
		rt.logger.Debug("execution failed", "target", target, "err", err)
	}
	return result, err
}

// ExecutePending runs the descriptor's pending code, then target.
func (rt *Runtime) ExecutePending(ctx context.Context, target string, opts ExecOptions) (Result, error) {
	if rt.closed.Load() {
		return Result{}, ErrRuntimeClosed
	}
	opts.Code = rt.desc.PendingCode
	return rt.Execute(ctx, target, opts)
}

func (rt *Runtime) execute(ctx context.Context, target string, opts ExecOptions, run vibes.RunOptions) (vibes.Value, error) {
	val := vibes.NewNil()
	if opts.Code != "" {
		script, err := rt.engine.Compile(rt.name, opts.Code)
		if err != nil {
			return val, err
		}
		val, err = script.Run(ctx, rt.ns, run)
		if err != nil {
			return val, err
		}
	}
	if target == "" {
		return val, nil
	}

	callee, ok := rt.ns.Get(target)
	if !ok {
		return vibes.NewNil(), fmt.Errorf("%w: %s", ErrTargetMissing, target)
	}
	if !callee.Callable() {
		if opts.hasArgs() {
			return vibes.NewNil(), fmt.Errorf("%w: %s is %s", ErrNotCallable, target, callee.TypeName())
		}
		return callee, nil
	}

	args := make([]vibes.Value, 0, len(opts.LocalArgs)+len(opts.Args))
	for _, name := range opts.LocalArgs {
		arg, ok := rt.ns.Get(name)
		if !ok {
			return vibes.NewNil(), fmt.Errorf("%w: local argument %s", ErrTargetMissing, name)
		}
		args = append(args, arg)
	}
	args = append(args, opts.Args...)

	kwargs := make(map[string]vibes.Value, len(opts.LocalKwargs)+len(opts.Kwargs))
	for param, name := range opts.LocalKwargs {
		arg, ok := rt.ns.Get(name)
		if !ok {
			return vibes.NewNil(), fmt.Errorf("%w: local argument %s", ErrTargetMissing, name)
		}
		kwargs[param] = arg
	}
	maps.Copy(kwargs, opts.Kwargs)

	rt.logger.Debug("executing", "target", target, "args", len(args), "kwargs", len(kwargs))
	if hook, ok := lookupHook(rt.ns, hookExecute); ok {
		return rt.engine.Call(ctx, rt.ns, hook, []vibes.Value{callee, vibes.NewArray(args), vibes.NewHash(kwargs)}, nil, run)
	}
	return rt.engine.Call(ctx, rt.ns, callee, args, kwargs, run)
}

// capture writes persistable capability state back into the descriptor
// and returns a snapshot of it.
func (rt *Runtime) capture() *descriptor.Descriptor {
	inst := rt.caps.Instance()
	for _, name := range sortedKeys(inst.Ivars) {
		val := inst.Ivars[name]
		if !rt.restored[name] {
			if initial, ok := rt.initial[name]; ok && initial.Equal(val) {
				continue
			}
		}
		prop, err := descriptor.Encode(val)
		if err != nil {
			rt.logger.Warn("skipping property", "name", name, "err", err)
			continue
		}
		rt.desc.SetProperty(name, prop)
		rt.restored[name] = true
	}
	rt.desc.PendingCode = ""
	rt.desc.Executed = true
	return rt.desc.Clone()
}

// Lint parses code and returns a readable syntax error, or "" when the code
// parses.
func (rt *Runtime) Lint(code string) string {
	if err := rt.engine.Check(code); err != nil {
		return err.Error()
	}
	return ""
}
