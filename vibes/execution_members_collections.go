package vibes

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// eachItem runs block over items and stops early on break.
func eachItem(exec *Execution, items []Value, block Value, fn func(item, result Value) bool) error {
	for _, item := range items {
		result, err := exec.CallBlock(block, item)
		if err != nil {
			if errors.Is(err, ErrBlockBreak) {
				return nil
			}
			return err
		}
		if !fn(item, result) {
			return nil
		}
	}
	return nil
}

func initCollectionMembers() {
	arrayMembers = map[string]memberFn{
		"length": property(arrayLength),
		"size":   property(arrayLength),
		"count": method(func(exec *Execution, receiver Value, args []Value, kwargs map[string]Value, block Value) (Value, error) {
			if block.IsNil() {
				return arrayLength(exec, receiver, args, kwargs, block)
			}
			var n int64
			err := eachItem(exec, receiver.Array(), block, func(_, result Value) bool {
				if result.Truthy() {
					n++
				}
				return true
			})
			return NewInt(n), err
		}),
		"empty?": property(func(exec *Execution, receiver Value, args []Value, kwargs map[string]Value, block Value) (Value, error) {
			return NewBool(len(receiver.Array()) == 0), nil
		}),
		"first": property(func(exec *Execution, receiver Value, args []Value, kwargs map[string]Value, block Value) (Value, error) {
			arr := receiver.Array()
			if len(args) == 1 {
				n, err := valueToInt(args[0])
				if err != nil {
					return NewNil(), err
				}
				return NewArray(slices.Clone(arr[:min(max(n, 0), len(arr))])), nil
			}
			if len(arr) == 0 {
				return NewNil(), nil
			}
			return arr[0], nil
		}),
		"last": property(func(exec *Execution, receiver Value, args []Value, kwargs map[string]Value, block Value) (Value, error) {
			arr := receiver.Array()
			if len(args) == 1 {
				n, err := valueToInt(args[0])
				if err != nil {
					return NewNil(), err
				}
				return NewArray(slices.Clone(arr[len(arr)-min(max(n, 0), len(arr)):])), nil
			}
			if len(arr) == 0 {
				return NewNil(), nil
			}
			return arr[len(arr)-1], nil
		}),
		"push": method(func(exec *Execution, receiver Value, args []Value, kwargs map[string]Value, block Value) (Value, error) {
			out := slices.Clone(receiver.Array())
			return NewArray(append(out, args...)), nil
		}),
		"include?": method(func(exec *Execution, receiver Value, args []Value, kwargs map[string]Value, block Value) (Value, error) {
			if err := argCount("include?", args, 1); err != nil {
				return NewNil(), err
			}
			return NewBool(slices.ContainsFunc(receiver.Array(), args[0].Equal)), nil
		}),
		"index": method(func(exec *Execution, receiver Value, args []Value, kwargs map[string]Value, block Value) (Value, error) {
			if err := argCount("index", args, 1); err != nil {
				return NewNil(), err
			}
			if i := slices.IndexFunc(receiver.Array(), args[0].Equal); i >= 0 {
				return NewInt(int64(i)), nil
			}
			return NewNil(), nil
		}),
		"join": method(func(exec *Execution, receiver Value, args []Value, kwargs map[string]Value, block Value) (Value, error) {
			sep := ""
			if len(args) > 0 {
				sep = args[0].String()
			}
			parts := make([]string, len(receiver.Array()))
			for i, item := range receiver.Array() {
				parts[i] = item.String()
			}
			return NewString(strings.Join(parts, sep)), nil
		}),
		"reverse": property(func(exec *Execution, receiver Value, args []Value, kwargs map[string]Value, block Value) (Value, error) {
			out := slices.Clone(receiver.Array())
			slices.Reverse(out)
			return NewArray(out), nil
		}),
		"compact": property(func(exec *Execution, receiver Value, args []Value, kwargs map[string]Value, block Value) (Value, error) {
			out := slices.DeleteFunc(slices.Clone(receiver.Array()), Value.IsNil)
			return NewArray(out), nil
		}),
		"uniq": property(func(exec *Execution, receiver Value, args []Value, kwargs map[string]Value, block Value) (Value, error) {
			var out []Value
			for _, item := range receiver.Array() {
				if !slices.ContainsFunc(out, item.Equal) {
					out = append(out, item)
				}
			}
			return NewArray(out), nil
		}),
		"flatten": property(func(exec *Execution, receiver Value, args []Value, kwargs map[string]Value, block Value) (Value, error) {
			return NewArray(flatten(receiver.Array())), nil
		}),
		"sort": property(func(exec *Execution, receiver Value, args []Value, kwargs map[string]Value, block Value) (Value, error) {
			return sortValues(receiver.Array(), func(v Value) (Value, error) { return v, nil })
		}),
		"sort_by": method(func(exec *Execution, receiver Value, args []Value, kwargs map[string]Value, block Value) (Value, error) {
			if err := requireBlock("sort_by", block); err != nil {
				return NewNil(), err
			}
			return sortValues(receiver.Array(), func(v Value) (Value, error) { return exec.CallBlock(block, v) })
		}),
		"min": property(func(exec *Execution, receiver Value, args []Value, kwargs map[string]Value, block Value) (Value, error) {
			return extreme(receiver.Array(), -1)
		}),
		"max": property(func(exec *Execution, receiver Value, args []Value, kwargs map[string]Value, block Value) (Value, error) {
			return extreme(receiver.Array(), 1)
		}),
		"sum": property(func(exec *Execution, receiver Value, args []Value, kwargs map[string]Value, block Value) (Value, error) {
			total := NewInt(0)
			for _, item := range receiver.Array() {
				next, err := binaryOp(tokenPlus, total, item)
				if err != nil {
					return NewNil(), err
				}
				total = next
			}
			return total, nil
		}),
		"take": method(func(exec *Execution, receiver Value, args []Value, kwargs map[string]Value, block Value) (Value, error) {
			n, err := countArg("take", args)
			if err != nil {
				return NewNil(), err
			}
			arr := receiver.Array()
			return NewArray(slices.Clone(arr[:min(n, len(arr))])), nil
		}),
		"drop": method(func(exec *Execution, receiver Value, args []Value, kwargs map[string]Value, block Value) (Value, error) {
			n, err := countArg("drop", args)
			if err != nil {
				return NewNil(), err
			}
			arr := receiver.Array()
			return NewArray(slices.Clone(arr[min(n, len(arr)):])), nil
		}),
		"each": method(func(exec *Execution, receiver Value, args []Value, kwargs map[string]Value, block Value) (Value, error) {
			if err := requireBlock("each", block); err != nil {
				return NewNil(), err
			}
			return receiver, eachItem(exec, receiver.Array(), block, func(_, _ Value) bool { return true })
		}),
		"each_with_index": method(func(exec *Execution, receiver Value, args []Value, kwargs map[string]Value, block Value) (Value, error) {
			if err := requireBlock("each_with_index", block); err != nil {
				return NewNil(), err
			}
			for i, item := range receiver.Array() {
				if _, err := exec.CallBlock(block, item, NewInt(int64(i))); err != nil {
					if errors.Is(err, ErrBlockBreak) {
						break
					}
					return NewNil(), err
				}
			}
			return receiver, nil
		}),
		"map":    method(arrayMap),
		"select": method(arrayFilter("select", true)),
		"filter": method(arrayFilter("filter", true)),
		"reject": method(arrayFilter("reject", false)),
		"any?":   method(arrayQuantifier("any?", true)),
		"all?":   method(arrayQuantifier("all?", false)),
		"find": method(func(exec *Execution, receiver Value, args []Value, kwargs map[string]Value, block Value) (Value, error) {
			if err := requireBlock("find", block); err != nil {
				return NewNil(), err
			}
			found := NewNil()
			err := eachItem(exec, receiver.Array(), block, func(item, result Value) bool {
				if result.Truthy() {
					found = item
					return false
				}
				return true
			})
			return found, err
		}),
		"reduce": method(func(exec *Execution, receiver Value, args []Value, kwargs map[string]Value, block Value) (Value, error) {
			if err := requireBlock("reduce", block); err != nil {
				return NewNil(), err
			}
			items := receiver.Array()
			acc := NewNil()
			switch {
			case len(args) > 0:
				acc = args[0]
			case len(items) > 0:
				acc, items = items[0], items[1:]
			}
			for _, item := range items {
				next, err := exec.CallBlock(block, acc, item)
				if err != nil {
					if errors.Is(err, ErrBlockBreak) {
						break
					}
					return NewNil(), err
				}
				acc = next
			}
			return acc, nil
		}),
		"group_by": method(func(exec *Execution, receiver Value, args []Value, kwargs map[string]Value, block Value) (Value, error) {
			if err := requireBlock("group_by", block); err != nil {
				return NewNil(), err
			}
			groups := map[string]Value{}
			var keyErr error
			err := eachItem(exec, receiver.Array(), block, func(item, result Value) bool {
				key, err := valueToHashKey(result)
				if err != nil {
					keyErr = err
					return false
				}
				groups[key] = NewArray(append(groups[key].Array(), item))
				return true
			})
			return NewHash(groups), errors.Join(err, keyErr)
		}),
	}

	hashMembers = map[string]memberFn{
		"length": property(hashLength),
		"size":   property(hashLength),
		"empty?": property(func(exec *Execution, receiver Value, args []Value, kwargs map[string]Value, block Value) (Value, error) {
			return NewBool(len(receiver.Hash()) == 0), nil
		}),
		"keys": property(func(exec *Execution, receiver Value, args []Value, kwargs map[string]Value, block Value) (Value, error) {
			return stringsToArray(sortedKeys(receiver.Hash())), nil
		}),
		"values": property(func(exec *Execution, receiver Value, args []Value, kwargs map[string]Value, block Value) (Value, error) {
			h := receiver.Hash()
			out := make([]Value, 0, len(h))
			for _, k := range sortedKeys(h) {
				out = append(out, h[k])
			}
			return NewArray(out), nil
		}),
		"to_a": property(func(exec *Execution, receiver Value, args []Value, kwargs map[string]Value, block Value) (Value, error) {
			items, err := iterationItems(receiver)
			return NewArray(items), err
		}),
		"key?":     method(hashHasKey),
		"has_key?": method(hashHasKey),
		"include?": method(hashHasKey),
		"fetch": method(func(exec *Execution, receiver Value, args []Value, kwargs map[string]Value, block Value) (Value, error) {
			if len(args) == 0 || len(args) > 2 {
				return NewNil(), fmt.Errorf("fetch expects a key and optional default")
			}
			key, err := valueToHashKey(args[0])
			if err != nil {
				return NewNil(), err
			}
			if val, ok := receiver.Hash()[key]; ok {
				return val, nil
			}
			if len(args) == 2 {
				return args[1], nil
			}
			return NewNil(), fmt.Errorf("key not found: %s", key)
		}),
		"merge": method(func(exec *Execution, receiver Value, args []Value, kwargs map[string]Value, block Value) (Value, error) {
			out := maps.Clone(receiver.Hash())
			for _, arg := range args {
				if arg.Kind() != KindHash {
					return NewNil(), fmt.Errorf("merge expects hash arguments")
				}
				maps.Copy(out, arg.Hash())
			}
			maps.Copy(out, kwargs)
			return NewHash(out), nil
		}),
		"delete": method(func(exec *Execution, receiver Value, args []Value, kwargs map[string]Value, block Value) (Value, error) {
			if err := argCount("delete", args, 1); err != nil {
				return NewNil(), err
			}
			key, err := valueToHashKey(args[0])
			if err != nil {
				return NewNil(), err
			}
			val := receiver.Hash()[key]
			delete(receiver.Hash(), key)
			return val, nil
		}),
		"each": method(func(exec *Execution, receiver Value, args []Value, kwargs map[string]Value, block Value) (Value, error) {
			if err := requireBlock("each", block); err != nil {
				return NewNil(), err
			}
			items, _ := iterationItems(receiver)
			return receiver, eachItem(exec, items, block, func(_, _ Value) bool { return true })
		}),
		"map": method(func(exec *Execution, receiver Value, args []Value, kwargs map[string]Value, block Value) (Value, error) {
			items, _ := iterationItems(receiver)
			return arrayMap(exec, NewArray(items), args, kwargs, block)
		}),
		"select": method(func(exec *Execution, receiver Value, args []Value, kwargs map[string]Value, block Value) (Value, error) {
			if err := requireBlock("select", block); err != nil {
				return NewNil(), err
			}
			h := receiver.Hash()
			out := map[string]Value{}
			for _, k := range sortedKeys(h) {
				result, err := exec.CallBlock(block, NewString(k), h[k])
				if err != nil {
					return NewNil(), err
				}
				if result.Truthy() {
					out[k] = h[k]
				}
			}
			return NewHash(out), nil
		}),
	}

	rangeMembers = map[string]memberFn{
		"first": property(func(exec *Execution, receiver Value, args []Value, kwargs map[string]Value, block Value) (Value, error) {
			return NewInt(receiver.Range().Start), nil
		}),
		"last": property(func(exec *Execution, receiver Value, args []Value, kwargs map[string]Value, block Value) (Value, error) {
			return NewInt(receiver.Range().End), nil
		}),
		"size": property(func(exec *Execution, receiver Value, args []Value, kwargs map[string]Value, block Value) (Value, error) {
			r := receiver.Range()
			return NewInt(max(r.End-r.Start+1, 0)), nil
		}),
		"to_a": property(func(exec *Execution, receiver Value, args []Value, kwargs map[string]Value, block Value) (Value, error) {
			items, err := iterationItems(receiver)
			return NewArray(items), err
		}),
		"include?": method(func(exec *Execution, receiver Value, args []Value, kwargs map[string]Value, block Value) (Value, error) {
			if err := argCount("include?", args, 1); err != nil {
				return NewNil(), err
			}
			r := receiver.Range()
			n := args[0]
			return NewBool(n.Kind() == KindInt && n.Int() >= r.Start && n.Int() <= r.End), nil
		}),
		"each": method(func(exec *Execution, receiver Value, args []Value, kwargs map[string]Value, block Value) (Value, error) {
			if err := requireBlock("each", block); err != nil {
				return NewNil(), err
			}
			items, _ := iterationItems(receiver)
			return receiver, eachItem(exec, items, block, func(_, _ Value) bool { return true })
		}),
		"map": method(func(exec *Execution, receiver Value, args []Value, kwargs map[string]Value, block Value) (Value, error) {
			items, _ := iterationItems(receiver)
			return arrayMap(exec, NewArray(items), args, kwargs, block)
		}),
	}
}

func arrayLength(exec *Execution, receiver Value, args []Value, kwargs map[string]Value, block Value) (Value, error) {
	return NewInt(int64(len(receiver.Array()))), nil
}

func hashLength(exec *Execution, receiver Value, args []Value, kwargs map[string]Value, block Value) (Value, error) {
	return NewInt(int64(len(receiver.Hash()))), nil
}

func hashHasKey(exec *Execution, receiver Value, args []Value, kwargs map[string]Value, block Value) (Value, error) {
	if err := argCount("key?", args, 1); err != nil {
		return NewNil(), err
	}
	key, err := valueToHashKey(args[0])
	if err != nil {
		return NewNil(), err
	}
	_, ok := receiver.Hash()[key]
	return NewBool(ok), nil
}

func arrayMap(exec *Execution, receiver Value, args []Value, kwargs map[string]Value, block Value) (Value, error) {
	if err := requireBlock("map", block); err != nil {
		return NewNil(), err
	}
	out := make([]Value, 0, len(receiver.Array()))
	err := eachItem(exec, receiver.Array(), block, func(_, result Value) bool {
		out = append(out, result)
		return true
	})
	return NewArray(out), err
}

func arrayFilter(name string, keep bool) BuiltinFunc {
	return func(exec *Execution, receiver Value, args []Value, kwargs map[string]Value, block Value) (Value, error) {
		if err := requireBlock(name, block); err != nil {
			return NewNil(), err
		}
		var out []Value
		err := eachItem(exec, receiver.Array(), block, func(item, result Value) bool {
			if result.Truthy() == keep {
				out = append(out, item)
			}
			return true
		})
		return NewArray(out), err
	}
}

// arrayQuantifier implements any? (stop on first truthy) and all? (stop on
// first falsy).
func arrayQuantifier(name string, want bool) BuiltinFunc {
	return func(exec *Execution, receiver Value, args []Value, kwargs map[string]Value, block Value) (Value, error) {
		items := receiver.Array()
		if block.IsNil() {
			for _, item := range items {
				if item.Truthy() == want {
					return NewBool(want), nil
				}
			}
			return NewBool(!want), nil
		}
		result := !want
		err := eachItem(exec, items, block, func(_, out Value) bool {
			if out.Truthy() == want {
				result = want
				return false
			}
			return true
		})
		return NewBool(result), err
	}
}

func countArg(name string, args []Value) (int, error) {
	if err := argCount(name, args, 1); err != nil {
		return 0, err
	}
	n, err := valueToInt(args[0])
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("%s expects a non-negative count", name)
	}
	return n, nil
}

func flatten(items []Value) []Value {
	var out []Value
	for _, item := range items {
		if item.Kind() == KindArray {
			out = append(out, flatten(item.Array())...)
			continue
		}
		out = append(out, item)
	}
	return out
}

func sortValues(items []Value, keyFn func(Value) (Value, error)) (Value, error) {
	type keyed struct {
		key Value
		val Value
	}
	pairs := make([]keyed, len(items))
	for i, item := range items {
		key, err := keyFn(item)
		if err != nil {
			return NewNil(), err
		}
		pairs[i] = keyed{key: key, val: item}
	}
	var cmpErr error
	slices.SortStableFunc(pairs, func(a, b keyed) int {
		c, err := compareValues(a.key, b.key)
		if err != nil && cmpErr == nil {
			cmpErr = err
		}
		return c
	})
	if cmpErr != nil {
		return NewNil(), cmpErr
	}
	out := make([]Value, len(pairs))
	for i, p := range pairs {
		out[i] = p.val
	}
	return NewArray(out), nil
}

func extreme(items []Value, sign int) (Value, error) {
	if len(items) == 0 {
		return NewNil(), nil
	}
	best := items[0]
	for _, item := range items[1:] {
		c, err := compareValues(item, best)
		if err != nil {
			return NewNil(), err
		}
		if c*sign > 0 {
			best = item
		}
	}
	return best, nil
}
