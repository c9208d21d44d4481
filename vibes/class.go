package vibes

// ClassDef is a compiled class. Properties keep declaration order so
// typed attributes can be resolved and described deterministically.
type ClassDef struct {
	Name         string
	Methods      map[string]*ScriptFunction
	ClassMethods map[string]*ScriptFunction
	Properties   []*PropertyDef
	Body         []Statement
	Decl         *ClassStmt
	Unit         string
	Source       string
	env          *Env
}

type PropertyDef struct {
	Name    string
	Type    *TypeExpr
	Default Expression
}

type Instance struct {
	Class *ClassDef
	Ivars map[string]Value
}

// NewClassDef returns an empty class with no source, useful as a default
// type for host-constructed instances.
func NewClassDef(name string) *ClassDef {
	return &ClassDef{
		Name:         name,
		Methods:      map[string]*ScriptFunction{},
		ClassMethods: map[string]*ScriptFunction{},
	}
}

func (c *ClassDef) Property(name string) (*PropertyDef, bool) {
	for _, prop := range c.Properties {
		if prop.Name == name {
			return prop, true
		}
	}
	return nil, false
}

// NewStub allocates an instance without running initialize or evaluating
// property defaults.
func (c *ClassDef) NewStub() *Instance {
	return &Instance{Class: c, Ivars: map[string]Value{}}
}

func (i *Instance) Get(name string) (Value, bool) {
	val, ok := i.Ivars[name]
	return val, ok
}

func (i *Instance) Set(name string, val Value) {
	i.Ivars[name] = val
}
