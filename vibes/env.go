package vibes

type Env struct {
	parent *Env
	values map[string]Value
	// scope marks a function frame. Assignments never escape a scope, so
	// locals in a def cannot clobber namespace bindings.
	scope bool
}

func newEnv(parent *Env) *Env {
	return &Env{parent: parent, values: make(map[string]Value)}
}

func newScopeEnv(parent *Env) *Env {
	env := newEnv(parent)
	env.scope = true
	return env
}

func (e *Env) Get(name string) (Value, bool) {
	for env := e; env != nil; env = env.parent {
		if val, ok := env.values[name]; ok {
			return val, true
		}
	}
	return Value{}, false
}

func (e *Env) Define(name string, val Value) {
	e.values[name] = val
}

// Assign updates the nearest existing binding inside the current scope and
// defines a local one otherwise.
func (e *Env) Assign(name string, val Value) {
	for env := e; env != nil; env = env.parent {
		if _, ok := env.values[name]; ok {
			env.values[name] = val
			return
		}
		if env.scope {
			break
		}
	}
	e.values[name] = val
}
