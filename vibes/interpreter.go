package vibes

import (
	"fmt"
	"maps"
)

// Config controls interpreter execution bounds.
type Config struct {
	StepQuota      int
	RecursionLimit int
}

// Engine compiles VibeScript units and runs them inside namespaces with
// deterministic limits. Builtins are shared by every namespace the engine
// creates and should be registered before scripts run.
type Engine struct {
	config  Config
	globals *Env
}

// NewEngine constructs an Engine with sane defaults and registers built-ins.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.StepQuota < 0 {
		return nil, fmt.Errorf("vibes: step quota must not be negative")
	}
	if cfg.RecursionLimit < 0 {
		return nil, fmt.Errorf("vibes: recursion limit must not be negative")
	}
	if cfg.StepQuota == 0 {
		cfg.StepQuota = 50000
	}
	if cfg.RecursionLimit == 0 {
		cfg.RecursionLimit = 64
	}

	engine := &Engine{
		config:  cfg,
		globals: newEnv(nil),
	}

	engine.RegisterBuiltin("puts", builtinPuts)
	engine.RegisterBuiltin("print", builtinPrint)
	engine.RegisterBuiltin("p", builtinP)
	engine.RegisterBuiltin("assert", builtinAssert)
	engine.RegisterBuiltin("assert_equal", builtinAssertEqual)
	engine.RegisterBuiltin("format", builtinFormat)
	engine.RegisterBuiltin("type_of", builtinTypeOf)
	engine.RegisterZeroArgBuiltin("now", builtinNow)
	engine.RegisterZeroArgBuiltin("uuid", builtinUUID)
	engine.RegisterObject("JSON", map[string]Value{
		"parse":     NewBuiltin("JSON.parse", builtinJSONParse),
		"stringify": NewBuiltin("JSON.stringify", builtinJSONStringify),
	})

	return engine, nil
}

// MustNewEngine constructs an Engine or panics if the config is invalid.
func MustNewEngine(cfg Config) *Engine {
	engine, err := NewEngine(cfg)
	if err != nil {
		panic(err)
	}
	return engine
}

// RegisterBuiltin registers a callable global available to scripts.
func (e *Engine) RegisterBuiltin(name string, fn BuiltinFunc) {
	e.globals.Define(name, NewBuiltin(name, fn))
}

// RegisterZeroArgBuiltin registers a builtin that can be invoked without arguments or parentheses.
func (e *Engine) RegisterZeroArgBuiltin(name string, fn BuiltinFunc) {
	e.globals.Define(name, NewAutoBuiltin(name, fn))
}

// RegisterObject registers a global host object such as JSON.
func (e *Engine) RegisterObject(name string, members map[string]Value) {
	e.globals.Define(name, NewObject(&HostObject{TypeName: name, Members: members}))
}

// Builtins returns a copy of the registered builtin map.
func (e *Engine) Builtins() map[string]Value {
	return maps.Clone(e.globals.values)
}

// IsBuiltin reports whether val is the engine's own binding for name.
func (e *Engine) IsBuiltin(name string, val Value) bool {
	builtin, ok := e.globals.values[name]
	return ok && builtin.data == val.data
}

// ConfigSummary provides a human-readable description of the interpreter limits.
func (e *Engine) ConfigSummary() string {
	return fmt.Sprintf("steps=%d recursion=%d", e.config.StepQuota, e.config.RecursionLimit)
}
