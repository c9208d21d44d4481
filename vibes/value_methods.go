package vibes

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

func (k ValueKind) String() string {
	switch k {
	case KindNil:
		return "nil"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindSymbol:
		return "symbol"
	case KindArray:
		return "array"
	case KindHash:
		return "hash"
	case KindRange:
		return "range"
	case KindFunction:
		return "function"
	case KindBuiltin:
		return "builtin"
	case KindBlock:
		return "block"
	case KindClass:
		return "class"
	case KindInstance:
		return "instance"
	case KindObject:
		return "object"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// String renders the value the way puts prints it.
func (v Value) String() string {
	switch v.kind {
	case KindString, KindSymbol:
		return v.data.(string)
	case KindNil:
		return ""
	default:
		return v.Inspect()
	}
}

// Inspect renders a literal-like representation with quoted strings and
// sorted hash keys.
func (v Value) Inspect() string {
	switch v.kind {
	case KindNil:
		return "nil"
	case KindBool:
		return strconv.FormatBool(v.Bool())
	case KindInt:
		return strconv.FormatInt(v.data.(int64), 10)
	case KindFloat:
		return formatFloat(v.data.(float64))
	case KindString:
		return strconv.Quote(v.data.(string))
	case KindSymbol:
		return ":" + v.data.(string)
	case KindArray:
		elems := v.Array()
		parts := make([]string, len(elems))
		for i, e := range elems {
			parts[i] = e.Inspect()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case KindHash:
		entries := v.Hash()
		if len(entries) == 0 {
			return "{}"
		}
		keys := sortedKeys(entries)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = fmt.Sprintf("%s: %s", k, entries[k].Inspect())
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case KindRange:
		r := v.Range()
		return fmt.Sprintf("%d..%d", r.Start, r.End)
	case KindFunction:
		return fmt.Sprintf("<function %s>", v.Function().Name)
	case KindBuiltin:
		return fmt.Sprintf("<builtin %s>", v.Builtin().Name)
	case KindBlock:
		return "<block>"
	case KindClass:
		return fmt.Sprintf("<Class %s>", v.Class().Name)
	case KindInstance:
		inst := v.Instance()
		if len(inst.Ivars) == 0 {
			return fmt.Sprintf("#<%s>", inst.Class.Name)
		}
		keys := sortedKeys(inst.Ivars)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = fmt.Sprintf("@%s=%s", k, inst.Ivars[k].Inspect())
		}
		return fmt.Sprintf("#<%s %s>", inst.Class.Name, strings.Join(parts, " "))
	case KindObject:
		return fmt.Sprintf("<%s>", v.Object().TypeName)
	default:
		return fmt.Sprintf("<%v>", v.kind)
	}
}

func formatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eEnN") {
		s += ".0"
	}
	return s
}

func (v Value) Truthy() bool {
	switch v.kind {
	case KindNil:
		return false
	case KindBool:
		return v.Bool()
	default:
		return true
	}
}

func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		if isNumeric(v) && isNumeric(other) {
			return v.Float() == other.Float()
		}
		return false
	}
	switch v.kind {
	case KindNil:
		return true
	case KindBool:
		return v.Bool() == other.Bool()
	case KindInt:
		return v.Int() == other.Int()
	case KindFloat:
		return v.data.(float64) == other.data.(float64)
	case KindString, KindSymbol:
		return v.data.(string) == other.data.(string)
	case KindArray:
		return slices.EqualFunc(v.Array(), other.Array(), Value.Equal)
	case KindHash:
		a, b := v.Hash(), other.Hash()
		if len(a) != len(b) {
			return false
		}
		for k, av := range a {
			bv, ok := b[k]
			if !ok || !av.Equal(bv) {
				return false
			}
		}
		return true
	case KindRange:
		return v.Range() == other.Range()
	case KindClass:
		return v.Class() == other.Class()
	case KindInstance:
		return v.Instance() == other.Instance()
	case KindObject:
		return v.Object() == other.Object()
	case KindFunction:
		return v.Function() == other.Function()
	case KindBuiltin:
		return v.Builtin() == other.Builtin()
	case KindBlock:
		return v.Block() == other.Block()
	default:
		return false
	}
}

func isNumeric(v Value) bool {
	return v.kind == KindInt || v.kind == KindFloat
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
