package vibes

type ValueKind int

const (
	KindNil ValueKind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindSymbol
	KindArray
	KindHash
	KindRange
	KindFunction
	KindBuiltin
	KindBlock
	KindClass
	KindInstance
	KindObject
)

type Value struct {
	kind ValueKind
	data any
}

type Builtin struct {
	Name       string
	Fn         BuiltinFunc
	AutoInvoke bool
	// Doc is an optional one-line description surfaced in prompts.
	Doc string
}

type BuiltinFunc func(exec *Execution, receiver Value, args []Value, kwargs map[string]Value, block Value) (Value, error)

type Range struct {
	Start int64
	End   int64
}

type Block struct {
	Params []Param
	Body   []Statement
	Env    *Env
	self   Value
	source string
}

// HostObject is a Go-side value exposed to scripts. Members are looked up
// by name; Native keeps the underlying Go value for lifecycle callbacks and
// persistence.
type HostObject struct {
	TypeName string
	Members  map[string]Value
	Native   any
}

// ScriptFunction is a compiled def. Unit names the unit whose source
// declared it.
type ScriptFunction struct {
	Name     string
	Params   []Param
	ReturnTy *TypeExpr
	Body     []Statement
	Pos      Position
	Env      *Env
	Private  bool
	Unit     string
	Decl     *FunctionStmt
	Source   string
	owner    *ClassDef
}

func NewNil() Value            { return Value{kind: KindNil} }
func NewBool(b bool) Value     { return Value{kind: KindBool, data: b} }
func NewInt(i int64) Value     { return Value{kind: KindInt, data: i} }
func NewFloat(f float64) Value { return Value{kind: KindFloat, data: f} }
func NewString(s string) Value { return Value{kind: KindString, data: s} }
func NewSymbol(name string) Value {
	return Value{kind: KindSymbol, data: name}
}
func NewArray(a []Value) Value { return Value{kind: KindArray, data: a} }
func NewHash(h map[string]Value) Value {
	if h == nil {
		h = map[string]Value{}
	}
	return Value{kind: KindHash, data: h}
}
func NewRange(r Range) Value { return Value{kind: KindRange, data: r} }

func NewFunction(fn *ScriptFunction) Value {
	return Value{kind: KindFunction, data: fn}
}

func NewClass(def *ClassDef) Value     { return Value{kind: KindClass, data: def} }
func NewInstance(inst *Instance) Value { return Value{kind: KindInstance, data: inst} }

// NewObject wraps a host object. A nil Members map is allocated.
func NewObject(obj *HostObject) Value {
	if obj.Members == nil {
		obj.Members = map[string]Value{}
	}
	return Value{kind: KindObject, data: obj}
}

func newBuiltin(name string, fn BuiltinFunc, autoInvoke bool) Value {
	return Value{kind: KindBuiltin, data: &Builtin{Name: name, Fn: fn, AutoInvoke: autoInvoke}}
}

func NewBuiltin(name string, fn BuiltinFunc) Value {
	return newBuiltin(name, fn, false)
}

// NewAutoBuiltin creates a builtin that is invoked when referenced without
// parentheses, like a zero-argument method.
func NewAutoBuiltin(name string, fn BuiltinFunc) Value {
	return newBuiltin(name, fn, true)
}

// NewDocBuiltin creates a builtin carrying a description for prompts.
func NewDocBuiltin(name, doc string, fn BuiltinFunc) Value {
	return Value{kind: KindBuiltin, data: &Builtin{Name: name, Fn: fn, Doc: doc}}
}

func (v Value) Kind() ValueKind { return v.kind }

func (v Value) IsNil() bool { return v.kind == KindNil }

func (v Value) Bool() bool {
	b, _ := v.data.(bool)
	return b
}

func (v Value) Int() int64 {
	i, _ := v.data.(int64)
	return i
}

func (v Value) Float() float64 {
	switch v.kind {
	case KindInt:
		return float64(v.data.(int64))
	case KindFloat:
		return v.data.(float64)
	}
	return 0
}

func (v Value) Array() []Value {
	arr, _ := v.data.([]Value)
	return arr
}

func (v Value) Hash() map[string]Value {
	h, _ := v.data.(map[string]Value)
	return h
}

func (v Value) Range() Range {
	r, _ := v.data.(Range)
	return r
}

func (v Value) Function() *ScriptFunction {
	fn, _ := v.data.(*ScriptFunction)
	return fn
}

func (v Value) Builtin() *Builtin {
	b, _ := v.data.(*Builtin)
	return b
}

func (v Value) Block() *Block {
	b, _ := v.data.(*Block)
	return b
}

func (v Value) Class() *ClassDef {
	c, _ := v.data.(*ClassDef)
	return c
}

func (v Value) Instance() *Instance {
	inst, _ := v.data.(*Instance)
	return inst
}

func (v Value) Object() *HostObject {
	obj, _ := v.data.(*HostObject)
	return obj
}

// Callable reports whether the value can be invoked with arguments.
func (v Value) Callable() bool {
	switch v.kind {
	case KindFunction, KindBuiltin, KindBlock:
		return true
	}
	return false
}

// TypeName returns the name type annotations match against: the class
// name for instances, the host type for objects, the kind otherwise.
func (v Value) TypeName() string {
	switch v.kind {
	case KindInstance:
		return v.Instance().Class.Name
	case KindObject:
		return v.Object().TypeName
	case KindBuiltin:
		return KindFunction.String()
	}
	return v.kind.String()
}
