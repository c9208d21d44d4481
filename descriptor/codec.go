package descriptor

import (
	"encoding"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/mgomes/vibectx/vibes"
)

// ErrSerializationUnsupported is returned when a value has no tagged
// encoding and no registered opaque fallback.
var ErrSerializationUnsupported = errors.New("descriptor: value is not serializable")

const (
	tagNil    = "nil"
	tagInt    = "int"
	tagFloat  = "float"
	tagString = "string"
	tagBool   = "bool"
	tagSymbol = "symbol"
	tagArray  = "array"
	tagHash   = "hash"

	recordPrefix = "record:"
	opaquePrefix = "opaque:"
)

// ClassResolver finds a script class by name when restoring records.
type ClassResolver func(name string) (*vibes.ClassDef, bool)

// OpaqueDecoder rebuilds a host value from the bytes its native value
// produced through encoding.BinaryMarshaler.
type OpaqueDecoder func(data []byte) (vibes.Value, error)

var (
	opaqueMu       sync.RWMutex
	opaqueDecoders = map[string]OpaqueDecoder{}
)

// RegisterOpaque installs the decoder for host objects whose TypeName is
// tag. Host objects of that type whose native value implements
// encoding.BinaryMarshaler become persistable.
func RegisterOpaque(tag string, decode OpaqueDecoder) {
	opaqueMu.Lock()
	defer opaqueMu.Unlock()
	if decode == nil {
		delete(opaqueDecoders, tag)
		return
	}
	opaqueDecoders[tag] = decode
}

func opaqueDecoder(tag string) (OpaqueDecoder, bool) {
	opaqueMu.RLock()
	defer opaqueMu.RUnlock()
	decode, ok := opaqueDecoders[tag]
	return decode, ok
}

// node is one level of the tagged value tree.
type node struct {
	T string          `json:"t"`
	V json.RawMessage `json:"v,omitempty"`
}

// Encode converts a script value into a persistable property. Values that
// contain themselves are rejected with ErrSerializationUnsupported.
func Encode(val vibes.Value) (Property, error) {
	n, err := newEncoder().node(val)
	if err != nil {
		return Property{}, err
	}
	content, err := json.Marshal(n)
	if err != nil {
		return Property{}, fmt.Errorf("descriptor: encode %s: %w", n.T, err)
	}
	return Property{Type: n.T, Content: string(content)}, nil
}

// Persistable reports whether Encode would succeed for val.
func Persistable(val vibes.Value) bool {
	_, err := newEncoder().node(val)
	return err == nil
}

// maxDepth bounds nesting for containers whose identity cannot be tracked.
const maxDepth = 512

// encoder tracks the instances and hashes on the current path.
type encoder struct {
	active map[uintptr]bool
	depth  int
}

func newEncoder() *encoder {
	return &encoder{active: map[uintptr]bool{}}
}

// enter marks ref as being encoded. It fails when ref is already on the
// path, or when nesting is too deep.
func (e *encoder) enter(ref uintptr) error {
	if e.depth >= maxDepth {
		return fmt.Errorf("%w: nesting deeper than %d", ErrSerializationUnsupported, maxDepth)
	}
	if ref != 0 {
		if e.active[ref] {
			return fmt.Errorf("%w: cyclic value", ErrSerializationUnsupported)
		}
		e.active[ref] = true
	}
	e.depth++
	return nil
}

func (e *encoder) leave(ref uintptr) {
	e.depth--
	delete(e.active, ref)
}

func (e *encoder) node(val vibes.Value) (node, error) {
	switch val.Kind() {
	case vibes.KindNil:
		return node{T: tagNil}, nil
	case vibes.KindInt:
		return leaf(tagInt, val.Int())
	case vibes.KindFloat:
		return leaf(tagFloat, strconv.FormatFloat(val.Float(), 'g', -1, 64))
	case vibes.KindString:
		return leaf(tagString, val.String())
	case vibes.KindSymbol:
		return leaf(tagSymbol, val.String())
	case vibes.KindBool:
		return leaf(tagBool, val.Bool())
	case vibes.KindArray:
		if err := e.enter(0); err != nil {
			return node{}, err
		}
		defer e.leave(0)
		items := val.Array()
		children := make([]node, len(items))
		for i, item := range items {
			child, err := e.node(item)
			if err != nil {
				return node{}, fmt.Errorf("[%d]: %w", i, err)
			}
			children[i] = child
		}
		return leaf(tagArray, children)
	case vibes.KindHash:
		fields := val.Hash()
		ref := reflect.ValueOf(fields).Pointer()
		if err := e.enter(ref); err != nil {
			return node{}, err
		}
		defer e.leave(ref)
		children, err := e.fields(fields)
		if err != nil {
			return node{}, err
		}
		return leaf(tagHash, children)
	case vibes.KindInstance:
		inst := val.Instance()
		ref := reflect.ValueOf(inst).Pointer()
		if err := e.enter(ref); err != nil {
			return node{}, fmt.Errorf("%s: %w", inst.Class.Name, err)
		}
		defer e.leave(ref)
		children, err := e.fields(inst.Ivars)
		if err != nil {
			return node{}, fmt.Errorf("%s: %w", inst.Class.Name, err)
		}
		return leaf(recordPrefix+inst.Class.Name, children)
	case vibes.KindObject:
		return encodeOpaque(val.Object())
	}
	return node{}, fmt.Errorf("%w: %s", ErrSerializationUnsupported, val.TypeName())
}

func (e *encoder) fields(fields map[string]vibes.Value) (map[string]node, error) {
	out := make(map[string]node, len(fields))
	for key, item := range fields {
		child, err := e.node(item)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		out[key] = child
	}
	return out, nil
}

func encodeOpaque(obj *vibes.HostObject) (node, error) {
	marshaler, ok := obj.Native.(encoding.BinaryMarshaler)
	if !ok {
		return node{}, fmt.Errorf("%w: %s", ErrSerializationUnsupported, obj.TypeName)
	}
	if _, ok := opaqueDecoder(obj.TypeName); !ok {
		return node{}, fmt.Errorf("%w: no opaque decoder for %s", ErrSerializationUnsupported, obj.TypeName)
	}
	data, err := marshaler.MarshalBinary()
	if err != nil {
		return node{}, fmt.Errorf("descriptor: marshal %s: %w", obj.TypeName, err)
	}
	// []byte marshals as base64.
	return leaf(opaquePrefix+obj.TypeName, data)
}

func leaf(tag string, v any) (node, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return node{}, fmt.Errorf("descriptor: encode %s: %w", tag, err)
	}
	return node{T: tag, V: raw}, nil
}

// Decode restores a property into a script value. Records are rebuilt as
// instances of the class resolve returns, without running initialize.
func Decode(p Property, resolve ClassResolver) (vibes.Value, error) {
	var n node
	if err := json.Unmarshal([]byte(p.Content), &n); err != nil {
		return vibes.NewNil(), fmt.Errorf("descriptor: decode %s: %w", p.Type, err)
	}
	if p.Type != "" && n.T != p.Type {
		return vibes.NewNil(), fmt.Errorf("descriptor: type tag %q does not match content %q", p.Type, n.T)
	}
	return decodeNode(n, resolve)
}

func decodeNode(n node, resolve ClassResolver) (vibes.Value, error) {
	switch n.T {
	case tagNil:
		return vibes.NewNil(), nil
	case tagInt:
		var i int64
		if err := json.Unmarshal(n.V, &i); err != nil {
			return vibes.NewNil(), fmt.Errorf("descriptor: int: %w", err)
		}
		return vibes.NewInt(i), nil
	case tagFloat:
		var s string
		if err := json.Unmarshal(n.V, &s); err != nil {
			return vibes.NewNil(), fmt.Errorf("descriptor: float: %w", err)
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return vibes.NewNil(), fmt.Errorf("descriptor: float: %w", err)
		}
		return vibes.NewFloat(f), nil
	case tagString, tagSymbol:
		var s string
		if err := json.Unmarshal(n.V, &s); err != nil {
			return vibes.NewNil(), fmt.Errorf("descriptor: %s: %w", n.T, err)
		}
		if n.T == tagSymbol {
			return vibes.NewSymbol(s), nil
		}
		return vibes.NewString(s), nil
	case tagBool:
		var b bool
		if err := json.Unmarshal(n.V, &b); err != nil {
			return vibes.NewNil(), fmt.Errorf("descriptor: bool: %w", err)
		}
		return vibes.NewBool(b), nil
	case tagArray:
		var children []node
		if err := json.Unmarshal(n.V, &children); err != nil {
			return vibes.NewNil(), fmt.Errorf("descriptor: array: %w", err)
		}
		items := make([]vibes.Value, len(children))
		for i, child := range children {
			item, err := decodeNode(child, resolve)
			if err != nil {
				return vibes.NewNil(), err
			}
			items[i] = item
		}
		return vibes.NewArray(items), nil
	case tagHash:
		fields, err := decodeFields(n, resolve)
		if err != nil {
			return vibes.NewNil(), err
		}
		return vibes.NewHash(fields), nil
	}

	switch {
	case strings.HasPrefix(n.T, recordPrefix):
		name := strings.TrimPrefix(n.T, recordPrefix)
		if resolve == nil {
			return vibes.NewNil(), fmt.Errorf("descriptor: no class resolver for record %s", name)
		}
		class, ok := resolve(name)
		if !ok {
			return vibes.NewNil(), fmt.Errorf("descriptor: unknown record class %s", name)
		}
		fields, err := decodeFields(n, resolve)
		if err != nil {
			return vibes.NewNil(), err
		}
		inst := class.NewStub()
		for _, key := range sortedNames(fields) {
			inst.Set(key, fields[key])
		}
		return vibes.NewInstance(inst), nil
	case strings.HasPrefix(n.T, opaquePrefix):
		tag := strings.TrimPrefix(n.T, opaquePrefix)
		decode, ok := opaqueDecoder(tag)
		if !ok {
			return vibes.NewNil(), fmt.Errorf("%w: no opaque decoder for %s", ErrSerializationUnsupported, tag)
		}
		var data []byte
		if err := json.Unmarshal(n.V, &data); err != nil {
			return vibes.NewNil(), fmt.Errorf("descriptor: opaque %s: %w", tag, err)
		}
		return decode(data)
	}
	return vibes.NewNil(), fmt.Errorf("descriptor: unknown type tag %q", n.T)
}

func decodeFields(n node, resolve ClassResolver) (map[string]vibes.Value, error) {
	var children map[string]node
	if err := json.Unmarshal(n.V, &children); err != nil {
		return nil, fmt.Errorf("descriptor: %s: %w", n.T, err)
	}
	out := make(map[string]vibes.Value, len(children))
	for key, child := range children {
		item, err := decodeNode(child, resolve)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		out[key] = item
	}
	return out, nil
}

func sortedNames[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
