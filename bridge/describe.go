package bridge

import (
	"fmt"
	"reflect"
	"slices"
	"strings"
)

// Describe renders the script-visible surface of svc as a module outline:
// one signature per exported method, preceded by its doc when the service
// documents it.
func Describe(typeName string, svc any) string {
	if typeName == "" {
		typeName = TypeName(svc)
	}
	t := reflect.TypeOf(svc)
	docs := methodDocs(svc)

	type entry struct{ name, sig string }
	var entries []entry
	if t != nil {
		for _, m := range exportedMethods(t) {
			name := SnakeCase(m.Name)
			entries = append(entries, entry{name, signature(name, m.Type)})
		}
	}
	slices.SortFunc(entries, func(a, b entry) int { return strings.Compare(a.name, b.name) })

	var b strings.Builder
	fmt.Fprintf(&b, "module %s\n", typeName)
	for _, e := range entries {
		if doc := docs[e.name]; doc != "" {
			fmt.Fprintf(&b, "  # %s\n", doc)
		}
		fmt.Fprintf(&b, "  %s\n", e.sig)
	}
	b.WriteString("end")
	return b.String()
}

// signature formats a method type taken from reflect.Type.Method, whose
// first input is the receiver.
func signature(name string, mt reflect.Type) string {
	var params []string
	start := 1
	if mt.NumIn() > start && mt.In(start) == contextType {
		start++
	}
	for i := start; i < mt.NumIn(); i++ {
		pt := mt.In(i)
		label := scriptType(pt)
		if mt.IsVariadic() && i == mt.NumIn()-1 {
			params = append(params, fmt.Sprintf("*arg%d: %s", i-start+1, scriptType(pt.Elem())))
			continue
		}
		params = append(params, fmt.Sprintf("arg%d: %s", i-start+1, label))
	}

	var results []string
	for i := range mt.NumOut() {
		if out := mt.Out(i); out != errorType {
			results = append(results, scriptType(out))
		}
	}
	sig := "def " + name
	if len(params) > 0 {
		sig += "(" + strings.Join(params, ", ") + ")"
	}
	switch len(results) {
	case 0:
	case 1:
		sig += " -> " + results[0]
	default:
		sig += " -> array"
	}
	return sig
}

func scriptType(t reflect.Type) string {
	if t == valueType {
		return "any"
	}
	switch t.Kind() {
	case reflect.String:
		return "string"
	case reflect.Bool:
		return "bool"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "int"
	case reflect.Float32, reflect.Float64:
		return "float"
	case reflect.Slice, reflect.Array:
		return "array"
	case reflect.Map, reflect.Struct:
		return "hash"
	case reflect.Pointer:
		return scriptType(t.Elem())
	}
	return "any"
}
