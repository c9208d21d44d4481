package vibes

import (
	"strings"
)

type TypeKind int

const (
	TypeAny TypeKind = iota
	TypeInt
	TypeFloat
	TypeNumber
	TypeString
	TypeBool
	TypeNil
	TypeSymbol
	TypeArray
	TypeHash
	TypeFunction
	TypeNamed
	TypeUnion
)

// TypeExpr is a parsed type annotation. Names that are not builtin type
// names resolve to TypeNamed and match class instances or host objects
// carrying that type name.
type TypeExpr struct {
	Name     string
	Kind     TypeKind
	Nullable bool
	TypeArgs []*TypeExpr
	Union    []*TypeExpr
	position Position
}

func resolveType(name string) (TypeKind, bool) {
	nullable := false
	if strings.HasSuffix(name, "?") {
		nullable = true
		name = strings.TrimSuffix(name, "?")
	}
	switch strings.ToLower(name) {
	case "any":
		return TypeAny, nullable
	case "int":
		return TypeInt, nullable
	case "float":
		return TypeFloat, nullable
	case "number":
		return TypeNumber, nullable
	case "string":
		return TypeString, nullable
	case "bool":
		return TypeBool, nullable
	case "nil":
		return TypeNil, nullable
	case "symbol":
		return TypeSymbol, nullable
	case "array":
		return TypeArray, nullable
	case "hash":
		return TypeHash, nullable
	case "function":
		return TypeFunction, nullable
	}
	return TypeNamed, nullable
}

// BaseName returns the type name without the nullable marker.
func (t *TypeExpr) BaseName() string {
	if t == nil {
		return ""
	}
	return strings.TrimSuffix(t.Name, "?")
}

func (t *TypeExpr) String() string {
	return formatTypeExpr(t)
}

func formatTypeExpr(t *TypeExpr) string {
	if t == nil {
		return "any"
	}
	if t.Kind == TypeUnion {
		parts := make([]string, len(t.Union))
		for i, option := range t.Union {
			parts[i] = formatTypeExpr(option)
		}
		return strings.Join(parts, " | ")
	}
	if len(t.TypeArgs) == 0 {
		return t.Name
	}
	args := make([]string, len(t.TypeArgs))
	for i, arg := range t.TypeArgs {
		args[i] = formatTypeExpr(arg)
	}
	base := t.BaseName()
	out := base + "<" + strings.Join(args, ", ") + ">"
	if t.Nullable {
		out += "?"
	}
	return out
}

func valueMatchesType(val Value, ty *TypeExpr) bool {
	if ty == nil {
		return true
	}
	if val.Kind() == KindNil && (ty.Nullable || ty.Kind == TypeNil || ty.Kind == TypeAny) {
		return true
	}
	switch ty.Kind {
	case TypeAny:
		return true
	case TypeInt:
		return val.Kind() == KindInt
	case TypeFloat:
		return val.Kind() == KindFloat
	case TypeNumber:
		return val.Kind() == KindInt || val.Kind() == KindFloat
	case TypeString:
		return val.Kind() == KindString
	case TypeBool:
		return val.Kind() == KindBool
	case TypeNil:
		return val.Kind() == KindNil
	case TypeSymbol:
		return val.Kind() == KindSymbol
	case TypeArray:
		if val.Kind() != KindArray {
			return false
		}
		if len(ty.TypeArgs) == 1 {
			for _, elem := range val.Array() {
				if !valueMatchesType(elem, ty.TypeArgs[0]) {
					return false
				}
			}
		}
		return true
	case TypeHash:
		if val.Kind() != KindHash {
			return false
		}
		if len(ty.TypeArgs) == 2 {
			for _, elem := range val.Hash() {
				if !valueMatchesType(elem, ty.TypeArgs[1]) {
					return false
				}
			}
		}
		return true
	case TypeFunction:
		return val.Callable()
	case TypeNamed:
		return val.TypeName() == ty.BaseName()
	case TypeUnion:
		for _, option := range ty.Union {
			if valueMatchesType(val, option) {
				return true
			}
		}
		return false
	}
	return false
}

// Accepts reports whether val satisfies the annotation. A nil annotation
// accepts anything.
func (t *TypeExpr) Accepts(val Value) bool {
	return valueMatchesType(val, t)
}
