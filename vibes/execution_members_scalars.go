package vibes

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
)

func initScalarMembers() {
	stringMembers = map[string]memberFn{
		"length": property(stringLength),
		"size":   property(stringLength),
		"empty?": property(func(exec *Execution, receiver Value, args []Value, kwargs map[string]Value, block Value) (Value, error) {
			return NewBool(receiver.String() == ""), nil
		}),
		"upcase":   property(stringTransform(strings.ToUpper)),
		"downcase": property(stringTransform(strings.ToLower)),
		"strip":    property(stringTransform(strings.TrimSpace)),
		"reverse": property(stringTransform(func(s string) string {
			runes := []rune(s)
			for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
				runes[i], runes[j] = runes[j], runes[i]
			}
			return string(runes)
		})),
		"capitalize": property(stringTransform(func(s string) string {
			runes := []rune(strings.ToLower(s))
			if len(runes) > 0 {
				runes[0] = unicode.ToUpper(runes[0])
			}
			return string(runes)
		})),
		"to_sym": property(func(exec *Execution, receiver Value, args []Value, kwargs map[string]Value, block Value) (Value, error) {
			return NewSymbol(receiver.String()), nil
		}),
		"to_i": property(func(exec *Execution, receiver Value, args []Value, kwargs map[string]Value, block Value) (Value, error) {
			n, err := strconv.ParseInt(strings.TrimSpace(receiver.String()), 10, 64)
			if err != nil {
				return NewInt(0), nil
			}
			return NewInt(n), nil
		}),
		"to_f": property(func(exec *Execution, receiver Value, args []Value, kwargs map[string]Value, block Value) (Value, error) {
			f, err := strconv.ParseFloat(strings.TrimSpace(receiver.String()), 64)
			if err != nil {
				return NewFloat(0), nil
			}
			return NewFloat(f), nil
		}),
		"chars": property(func(exec *Execution, receiver Value, args []Value, kwargs map[string]Value, block Value) (Value, error) {
			var out []Value
			for _, r := range receiver.String() {
				out = append(out, NewString(string(r)))
			}
			return NewArray(out), nil
		}),
		"lines": property(func(exec *Execution, receiver Value, args []Value, kwargs map[string]Value, block Value) (Value, error) {
			return stringsToArray(strings.Split(strings.TrimSuffix(receiver.String(), "\n"), "\n")), nil
		}),
		"split": method(func(exec *Execution, receiver Value, args []Value, kwargs map[string]Value, block Value) (Value, error) {
			if len(args) == 0 {
				return stringsToArray(strings.Fields(receiver.String())), nil
			}
			return stringsToArray(strings.Split(receiver.String(), args[0].String())), nil
		}),
		"include?":      method(stringPredicate("include?", strings.Contains)),
		"start_with?":   method(stringPredicate("start_with?", strings.HasPrefix)),
		"end_with?":     method(stringPredicate("end_with?", strings.HasSuffix)),
		"delete_prefix": method(stringEdit("delete_prefix", strings.TrimPrefix)),
		"delete_suffix": method(stringEdit("delete_suffix", strings.TrimSuffix)),
		"sub": method(func(exec *Execution, receiver Value, args []Value, kwargs map[string]Value, block Value) (Value, error) {
			if err := argCount("sub", args, 2); err != nil {
				return NewNil(), err
			}
			return NewString(strings.Replace(receiver.String(), args[0].String(), args[1].String(), 1)), nil
		}),
		"gsub": method(func(exec *Execution, receiver Value, args []Value, kwargs map[string]Value, block Value) (Value, error) {
			if err := argCount("gsub", args, 2); err != nil {
				return NewNil(), err
			}
			return NewString(strings.ReplaceAll(receiver.String(), args[0].String(), args[1].String())), nil
		}),
		"ljust": method(stringPad("ljust", false)),
		"rjust": method(stringPad("rjust", true)),
	}

	intMembers = map[string]memberFn{
		"to_i": property(func(exec *Execution, receiver Value, args []Value, kwargs map[string]Value, block Value) (Value, error) {
			return receiver, nil
		}),
		"to_f": property(func(exec *Execution, receiver Value, args []Value, kwargs map[string]Value, block Value) (Value, error) {
			return NewFloat(receiver.Float()), nil
		}),
		"abs": property(func(exec *Execution, receiver Value, args []Value, kwargs map[string]Value, block Value) (Value, error) {
			if n := receiver.Int(); n < 0 {
				return NewInt(-n), nil
			}
			return receiver, nil
		}),
		"even?": property(func(exec *Execution, receiver Value, args []Value, kwargs map[string]Value, block Value) (Value, error) {
			return NewBool(receiver.Int()%2 == 0), nil
		}),
		"odd?": property(func(exec *Execution, receiver Value, args []Value, kwargs map[string]Value, block Value) (Value, error) {
			return NewBool(receiver.Int()%2 != 0), nil
		}),
		"zero?": property(func(exec *Execution, receiver Value, args []Value, kwargs map[string]Value, block Value) (Value, error) {
			return NewBool(receiver.Int() == 0), nil
		}),
		"times": method(func(exec *Execution, receiver Value, args []Value, kwargs map[string]Value, block Value) (Value, error) {
			if err := requireBlock("times", block); err != nil {
				return NewNil(), err
			}
			for i := int64(0); i < receiver.Int(); i++ {
				if _, err := exec.CallBlock(block, NewInt(i)); err != nil {
					if errors.Is(err, ErrBlockBreak) {
						break
					}
					return NewNil(), err
				}
			}
			return receiver, nil
		}),
	}

	floatMembers = map[string]memberFn{
		"to_i": property(func(exec *Execution, receiver Value, args []Value, kwargs map[string]Value, block Value) (Value, error) {
			return NewInt(int64(receiver.Float())), nil
		}),
		"to_f": property(func(exec *Execution, receiver Value, args []Value, kwargs map[string]Value, block Value) (Value, error) {
			return receiver, nil
		}),
		"abs": property(func(exec *Execution, receiver Value, args []Value, kwargs map[string]Value, block Value) (Value, error) {
			return NewFloat(math.Abs(receiver.Float())), nil
		}),
		"floor": property(func(exec *Execution, receiver Value, args []Value, kwargs map[string]Value, block Value) (Value, error) {
			return NewInt(int64(math.Floor(receiver.Float()))), nil
		}),
		"ceil": property(func(exec *Execution, receiver Value, args []Value, kwargs map[string]Value, block Value) (Value, error) {
			return NewInt(int64(math.Ceil(receiver.Float()))), nil
		}),
		"round": method(func(exec *Execution, receiver Value, args []Value, kwargs map[string]Value, block Value) (Value, error) {
			if len(args) == 0 {
				return NewInt(int64(math.Round(receiver.Float()))), nil
			}
			digits, err := valueToInt(args[0])
			if err != nil {
				return NewNil(), err
			}
			scale := math.Pow(10, float64(digits))
			return NewFloat(math.Round(receiver.Float()*scale) / scale), nil
		}),
	}
}

func stringLength(exec *Execution, receiver Value, args []Value, kwargs map[string]Value, block Value) (Value, error) {
	return NewInt(int64(len([]rune(receiver.String())))), nil
}

func stringTransform(fn func(string) string) BuiltinFunc {
	return func(exec *Execution, receiver Value, args []Value, kwargs map[string]Value, block Value) (Value, error) {
		return NewString(fn(receiver.String())), nil
	}
}

func stringPredicate(name string, fn func(string, string) bool) BuiltinFunc {
	return func(exec *Execution, receiver Value, args []Value, kwargs map[string]Value, block Value) (Value, error) {
		if err := argCount(name, args, 1); err != nil {
			return NewNil(), err
		}
		return NewBool(fn(receiver.String(), args[0].String())), nil
	}
}

func stringEdit(name string, fn func(string, string) string) BuiltinFunc {
	return func(exec *Execution, receiver Value, args []Value, kwargs map[string]Value, block Value) (Value, error) {
		if err := argCount(name, args, 1); err != nil {
			return NewNil(), err
		}
		return NewString(fn(receiver.String(), args[0].String())), nil
	}
}

func stringPad(name string, left bool) BuiltinFunc {
	return func(exec *Execution, receiver Value, args []Value, kwargs map[string]Value, block Value) (Value, error) {
		if len(args) == 0 || len(args) > 2 {
			return NewNil(), fmt.Errorf("%s expects a width and optional padding", name)
		}
		width, err := valueToInt(args[0])
		if err != nil {
			return NewNil(), err
		}
		pad := " "
		if len(args) == 2 {
			pad = args[1].String()
		}
		s := receiver.String()
		missing := width - len([]rune(s))
		if missing <= 0 || pad == "" {
			return NewString(s), nil
		}
		fill := []rune(strings.Repeat(pad, missing))[:missing]
		if left {
			return NewString(string(fill) + s), nil
		}
		return NewString(s + string(fill)), nil
	}
}

func stringsToArray(parts []string) Value {
	out := make([]Value, len(parts))
	for i, part := range parts {
		out[i] = NewString(part)
	}
	return NewArray(out)
}
