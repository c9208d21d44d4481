package vibes

// Namespace is the persistent top-level scope of a compiled unit. Every
// binding remembers the unit that declared it; bindings created by running
// code in the namespace belong to the namespace itself.
type Namespace struct {
	name    string
	env     *Env
	origins map[string]string
}

// NewNamespace creates an empty namespace whose lookups fall back to the
// engine builtins.
func (e *Engine) NewNamespace(name string) *Namespace {
	return &Namespace{
		name:    name,
		env:     newScopeEnv(e.globals),
		origins: map[string]string{},
	}
}

func (n *Namespace) Name() string { return n.name }

// Get looks a name up in the namespace and then in the engine builtins.
func (n *Namespace) Get(name string) (Value, bool) {
	return n.env.Get(name)
}

// Lookup returns only bindings owned by the namespace.
func (n *Namespace) Lookup(name string) (Value, bool) {
	val, ok := n.env.values[name]
	return val, ok
}

// Define binds a value declared by this namespace.
func (n *Namespace) Define(name string, val Value) {
	n.env.Define(name, val)
	delete(n.origins, name)
}

// Set binds a value and records the unit that declared it.
func (n *Namespace) Set(name string, val Value, origin string) {
	n.env.Define(name, val)
	if origin == "" || origin == n.name {
		delete(n.origins, name)
		return
	}
	n.origins[name] = origin
}

// Replace swaps the value of a binding while keeping its origin.
func (n *Namespace) Replace(name string, val Value) {
	n.env.Define(name, val)
}

func (n *Namespace) Delete(name string) {
	delete(n.env.values, name)
	delete(n.origins, name)
}

// Origin returns the declaring unit for name.
func (n *Namespace) Origin(name string) string {
	if origin, ok := n.origins[name]; ok {
		return origin
	}
	return n.name
}

// Names returns the namespace-owned binding names in sorted order.
func (n *Namespace) Names() []string {
	return sortedKeys(n.env.values)
}

// Len reports how many bindings the namespace owns.
func (n *Namespace) Len() int {
	return len(n.env.values)
}
