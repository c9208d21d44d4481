package vibectx

import (
	"context"
	"errors"
	"fmt"

	"github.com/mgomes/vibectx/registry"
	"github.com/mgomes/vibectx/vibes"
)

// Well-known binding names a unit may define to change default behavior.
const (
	hookOnCompile       = "__on_compile__"
	hookOnReady         = "__on_ready__"
	hookAttrsPrompt     = "__attrs_prompt__"
	hookModulePrompt    = "__module_prompt__"
	hookExecute         = "__execute__"
	hookPromptOverrides = "__prompt_overrides__"
	testsBinding        = "TESTS"
)

// CapabilityBinding is the namespace name of the capability instance.
const CapabilityBinding = "caps"

// lookupHook returns a callable hook bound in ns.
func lookupHook(ns *vibes.Namespace, name string) (vibes.Value, bool) {
	val, ok := ns.Lookup(name)
	if !ok || !val.Callable() {
		return vibes.NewNil(), false
	}
	return val, true
}

func (c *Compiler) runCompileHook(ctx context.Context, unit *assembledUnit) error {
	hook, ok := lookupHook(unit.ns, hookOnCompile)
	if !ok {
		return nil
	}
	_, err := c.engine.Call(ctx, unit.ns, hook, []vibes.Value{c.handle(unit.ns)}, nil, vibes.RunOptions{})
	return err
}

// handle exposes the compiler to the pre-compile hook.
func (c *Compiler) handle(ns *vibes.Namespace) vibes.Value {
	bind := func(exec *vibes.Execution, receiver vibes.Value, args []vibes.Value, kwargs map[string]vibes.Value, block vibes.Value) (vibes.Value, error) {
		if len(args) != 2 {
			return vibes.NewNil(), errors.New("compiler.bind expects a key and a value or factory")
		}
		key := args[0].String()
		target := args[1]
		var err error
		if target.Callable() {
			err = c.Bind(key, registry.Factory(func(ctx context.Context, _ *registry.Registry) (any, error) {
				return c.engine.Call(ctx, ns, target, nil, nil, vibes.RunOptions{})
			}))
		} else {
			err = c.Bind(key, target)
		}
		return vibes.NewBool(err == nil), err
	}
	inject := func(exec *vibes.Execution, receiver vibes.Value, args []vibes.Value, kwargs map[string]vibes.Value, block vibes.Value) (vibes.Value, error) {
		if len(args) != 2 {
			return vibes.NewNil(), errors.New("compiler.inject expects a name and a value")
		}
		err := c.Inject(args[0].String(), args[1])
		return vibes.NewBool(err == nil), err
	}
	compile := func(exec *vibes.Execution, receiver vibes.Value, args []vibes.Value, kwargs map[string]vibes.Value, block vibes.Value) (vibes.Value, error) {
		_, err := c.Compile(exec.Context(), "")
		return vibes.NewNil(), err
	}
	return vibes.NewObject(&vibes.HostObject{
		TypeName: "Compiler",
		Native:   c,
		Members: map[string]vibes.Value{
			"bind":    vibes.NewBuiltin("compiler.bind", bind),
			"inject":  vibes.NewBuiltin("compiler.inject", inject),
			"compile": vibes.NewAutoBuiltin("compiler.compile", compile),
		},
	})
}

func (rt *Runtime) runReadyHook(ctx context.Context) error {
	hook, ok := lookupHook(rt.ns, hookOnReady)
	if !ok {
		return nil
	}
	_, err := rt.engine.Call(ctx, rt.ns, hook, []vibes.Value{rt.caps}, nil, vibes.RunOptions{})
	return err
}

// promptOverrides merges the unit's __prompt_overrides__ hash with the
// caller's map, the caller winning.
func (rt *Runtime) promptOverrides() map[string]string {
	out := map[string]string{}
	if val, ok := rt.ns.Lookup(hookPromptOverrides); ok && val.Kind() == vibes.KindHash {
		for name, text := range val.Hash() {
			out[name] = text.String()
		}
	}
	for name, text := range rt.overrides {
		out[name] = text
	}
	return out
}

// Tests returns the target names listed in the unit's TESTS binding.
func (rt *Runtime) Tests() ([]string, error) {
	if rt.closed.Load() {
		return nil, ErrRuntimeClosed
	}
	val, ok := rt.ns.Lookup(testsBinding)
	if !ok {
		return nil, nil
	}
	if val.Kind() != vibes.KindArray {
		return nil, fmt.Errorf("vibectx: %s must be an array, got %s", testsBinding, val.TypeName())
	}
	names := make([]string, 0, len(val.Array()))
	for _, item := range val.Array() {
		switch item.Kind() {
		case vibes.KindString, vibes.KindSymbol:
			names = append(names, item.String())
		case vibes.KindFunction:
			names = append(names, item.Function().Name)
		default:
			return nil, fmt.Errorf("vibectx: %s entries must be names, got %s", testsBinding, item.TypeName())
		}
	}
	return names, nil
}
