package vibes

import (
	"errors"
	"fmt"
	"maps"
	"math"
	"strconv"
	"strings"
)

var errDivisionByZero = errors.New("division by zero")

func valueToHashKey(val Value) (string, error) {
	switch val.Kind() {
	case KindString, KindSymbol:
		return val.String(), nil
	case KindInt:
		return strconv.FormatInt(val.Int(), 10), nil
	case KindBool:
		return strconv.FormatBool(val.Bool()), nil
	}
	return "", fmt.Errorf("unsupported hash key type %s", val.Kind())
}

func valueToInt(val Value) (int, error) {
	switch val.Kind() {
	case KindInt:
		return int(val.Int()), nil
	case KindFloat:
		f := val.Float()
		if f != math.Trunc(f) {
			return 0, fmt.Errorf("expected integer, got %s", formatFloat(f))
		}
		return int(f), nil
	}
	return 0, fmt.Errorf("expected integer, got %s", val.Kind())
}

func binaryOp(op TokenType, left, right Value) (Value, error) {
	switch op {
	case tokenEQ:
		return NewBool(left.Equal(right)), nil
	case tokenNotEQ:
		return NewBool(!left.Equal(right)), nil
	case tokenPlus:
		return addValues(left, right)
	case tokenMinus:
		return arithmetic(op, left, right)
	case tokenAsterisk:
		if left.Kind() == KindString && right.Kind() == KindInt {
			if right.Int() < 0 {
				return NewNil(), fmt.Errorf("negative string repetition")
			}
			return NewString(strings.Repeat(left.String(), int(right.Int()))), nil
		}
		return arithmetic(op, left, right)
	case tokenSlash, tokenPercent:
		return arithmetic(op, left, right)
	case tokenLT, tokenLTE, tokenGT, tokenGTE:
		cmp, err := compareValues(left, right)
		if err != nil {
			return NewNil(), err
		}
		switch op {
		case tokenLT:
			return NewBool(cmp < 0), nil
		case tokenLTE:
			return NewBool(cmp <= 0), nil
		case tokenGT:
			return NewBool(cmp > 0), nil
		default:
			return NewBool(cmp >= 0), nil
		}
	}
	return NewNil(), fmt.Errorf("unsupported operator %s", op)
}

func addValues(left, right Value) (Value, error) {
	switch {
	case left.Kind() == KindString && right.Kind() == KindString:
		return NewString(left.String() + right.String()), nil
	case left.Kind() == KindString:
		return NewString(left.String() + right.String()), nil
	case left.Kind() == KindArray && right.Kind() == KindArray:
		out := make([]Value, 0, len(left.Array())+len(right.Array()))
		out = append(out, left.Array()...)
		return NewArray(append(out, right.Array()...)), nil
	case left.Kind() == KindHash && right.Kind() == KindHash:
		out := maps.Clone(left.Hash())
		maps.Copy(out, right.Hash())
		return NewHash(out), nil
	}
	return arithmetic(tokenPlus, left, right)
}

func arithmetic(op TokenType, left, right Value) (Value, error) {
	if !isNumeric(left) || !isNumeric(right) {
		return NewNil(), fmt.Errorf("unsupported operands for %s: %s and %s", op, left.Kind(), right.Kind())
	}
	if left.Kind() == KindInt && right.Kind() == KindInt {
		a, b := left.Int(), right.Int()
		switch op {
		case tokenPlus:
			return NewInt(a + b), nil
		case tokenMinus:
			return NewInt(a - b), nil
		case tokenAsterisk:
			return NewInt(a * b), nil
		case tokenSlash:
			if b == 0 {
				return NewNil(), errDivisionByZero
			}
			return NewInt(floorDiv(a, b)), nil
		case tokenPercent:
			if b == 0 {
				return NewNil(), errDivisionByZero
			}
			return NewInt(a - floorDiv(a, b)*b), nil
		}
	}
	a, b := left.Float(), right.Float()
	switch op {
	case tokenPlus:
		return NewFloat(a + b), nil
	case tokenMinus:
		return NewFloat(a - b), nil
	case tokenAsterisk:
		return NewFloat(a * b), nil
	case tokenSlash:
		if b == 0 {
			return NewNil(), errDivisionByZero
		}
		return NewFloat(a / b), nil
	case tokenPercent:
		if b == 0 {
			return NewNil(), errDivisionByZero
		}
		return NewFloat(a - math.Floor(a/b)*b), nil
	}
	return NewNil(), fmt.Errorf("unsupported operator %s", op)
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func compareValues(left, right Value) (int, error) {
	switch {
	case isNumeric(left) && isNumeric(right):
		if left.Kind() == KindInt && right.Kind() == KindInt {
			return cmpOrdered(left.Int(), right.Int()), nil
		}
		return cmpOrdered(left.Float(), right.Float()), nil
	case left.Kind() == KindString && right.Kind() == KindString:
		return strings.Compare(left.String(), right.String()), nil
	}
	return 0, fmt.Errorf("cannot compare %s with %s", left.Kind(), right.Kind())
}

func cmpOrdered[T int64 | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func normalizeIndex(idx, length int) (int, bool) {
	if idx < 0 {
		idx += length
	}
	return idx, idx >= 0 && idx < length
}

func indexValue(obj, idx Value) (Value, error) {
	switch obj.Kind() {
	case KindArray:
		i, err := valueToInt(idx)
		if err != nil {
			return NewNil(), err
		}
		arr := obj.Array()
		i, ok := normalizeIndex(i, len(arr))
		if !ok {
			return NewNil(), nil
		}
		return arr[i], nil
	case KindHash:
		key, err := valueToHashKey(idx)
		if err != nil {
			return NewNil(), err
		}
		return obj.Hash()[key], nil
	case KindString:
		i, err := valueToInt(idx)
		if err != nil {
			return NewNil(), err
		}
		runes := []rune(obj.String())
		i, ok := normalizeIndex(i, len(runes))
		if !ok {
			return NewNil(), nil
		}
		return NewString(string(runes[i])), nil
	case KindObject:
		key, err := valueToHashKey(idx)
		if err != nil {
			return NewNil(), err
		}
		return obj.Object().Members[key], nil
	}
	return NewNil(), fmt.Errorf("cannot index %s", obj.Kind())
}

func setIndex(obj, idx, val Value) error {
	switch obj.Kind() {
	case KindArray:
		i, err := valueToInt(idx)
		if err != nil {
			return err
		}
		arr := obj.Array()
		i, ok := normalizeIndex(i, len(arr))
		if !ok {
			return fmt.Errorf("index %d out of bounds", i)
		}
		arr[i] = val
		return nil
	case KindHash:
		key, err := valueToHashKey(idx)
		if err != nil {
			return err
		}
		obj.Hash()[key] = val
		return nil
	}
	return fmt.Errorf("cannot assign index on %s", obj.Kind())
}
