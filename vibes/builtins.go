package vibes

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
)

const errTypeAssertion = "AssertionError"

func writeLine(exec *Execution, text string) error {
	_, err := io.WriteString(exec.Stdout(), text)
	return err
}

func builtinPuts(exec *Execution, receiver Value, args []Value, kwargs map[string]Value, block Value) (Value, error) {
	if len(args) == 0 {
		return NewNil(), writeLine(exec, "\n")
	}
	var b strings.Builder
	for _, arg := range args {
		if arg.Kind() == KindArray {
			for _, item := range arg.Array() {
				b.WriteString(item.String())
				b.WriteByte('\n')
			}
			continue
		}
		text := arg.String()
		b.WriteString(text)
		if !strings.HasSuffix(text, "\n") {
			b.WriteByte('\n')
		}
	}
	return NewNil(), writeLine(exec, b.String())
}

func builtinPrint(exec *Execution, receiver Value, args []Value, kwargs map[string]Value, block Value) (Value, error) {
	var b strings.Builder
	for _, arg := range args {
		b.WriteString(arg.String())
	}
	return NewNil(), writeLine(exec, b.String())
}

func builtinP(exec *Execution, receiver Value, args []Value, kwargs map[string]Value, block Value) (Value, error) {
	parts := make([]string, len(args))
	for i, arg := range args {
		parts[i] = arg.Inspect()
	}
	if err := writeLine(exec, strings.Join(parts, "\n")+"\n"); err != nil {
		return NewNil(), err
	}
	if len(args) == 1 {
		return args[0], nil
	}
	return NewArray(args), nil
}

func builtinAssert(exec *Execution, receiver Value, args []Value, kwargs map[string]Value, block Value) (Value, error) {
	if len(args) == 0 {
		return NewNil(), fmt.Errorf("assert requires a condition argument")
	}
	if args[0].Truthy() {
		return NewNil(), nil
	}
	message := "assertion failed"
	if len(args) > 1 {
		message = args[1].String()
	} else if msg, ok := kwargs["message"]; ok {
		message = msg.String()
	}
	return NewNil(), NewRuntimeError(errTypeAssertion, "%s", message)
}

func builtinAssertEqual(exec *Execution, receiver Value, args []Value, kwargs map[string]Value, block Value) (Value, error) {
	if len(args) < 2 {
		return NewNil(), fmt.Errorf("assert_equal expects expected and actual values")
	}
	if args[0].Equal(args[1]) {
		return NewNil(), nil
	}
	message := fmt.Sprintf("expected %s, got %s", args[0].Inspect(), args[1].Inspect())
	if len(args) > 2 {
		message = args[2].String() + ": " + message
	}
	return NewNil(), NewRuntimeError(errTypeAssertion, "%s", message)
}

// builtinFormat interpolates %s, %d, %f and %p (inspect) verbs.
func builtinFormat(exec *Execution, receiver Value, args []Value, kwargs map[string]Value, block Value) (Value, error) {
	if len(args) == 0 || args[0].Kind() != KindString {
		return NewNil(), fmt.Errorf("format expects a format string")
	}
	tmpl := []rune(args[0].String())
	rest := args[1:]
	var b strings.Builder
	for i := 0; i < len(tmpl); i++ {
		if tmpl[i] != '%' || i+1 >= len(tmpl) {
			b.WriteRune(tmpl[i])
			continue
		}
		i++
		verb := tmpl[i]
		if verb == '%' {
			b.WriteRune('%')
			continue
		}
		if len(rest) == 0 {
			return NewNil(), fmt.Errorf("format: missing argument for %%%c", verb)
		}
		arg := rest[0]
		rest = rest[1:]
		switch verb {
		case 's':
			b.WriteString(arg.String())
		case 'd':
			n, err := valueToInt(arg)
			if err != nil {
				return NewNil(), fmt.Errorf("format: %w", err)
			}
			fmt.Fprintf(&b, "%d", n)
		case 'f':
			if !isNumeric(arg) {
				return NewNil(), fmt.Errorf("format: %%f expects a number, got %s", arg.Kind())
			}
			fmt.Fprintf(&b, "%.2f", arg.Float())
		case 'p':
			b.WriteString(arg.Inspect())
		default:
			return NewNil(), fmt.Errorf("format: unsupported verb %%%c", verb)
		}
	}
	if len(rest) > 0 {
		return NewNil(), fmt.Errorf("format: %d unused argument(s)", len(rest))
	}
	return NewString(b.String()), nil
}

func builtinTypeOf(exec *Execution, receiver Value, args []Value, kwargs map[string]Value, block Value) (Value, error) {
	if len(args) != 1 {
		return NewNil(), fmt.Errorf("type_of expects a single value")
	}
	return NewString(args[0].TypeName()), nil
}

func builtinNow(exec *Execution, receiver Value, args []Value, kwargs map[string]Value, block Value) (Value, error) {
	if len(args) > 0 {
		return NewNil(), fmt.Errorf("now does not take arguments")
	}
	return NewString(time.Now().UTC().Format(time.RFC3339)), nil
}

func builtinUUID(exec *Execution, receiver Value, args []Value, kwargs map[string]Value, block Value) (Value, error) {
	if len(args) > 0 {
		return NewNil(), fmt.Errorf("uuid does not take arguments")
	}
	id, err := uuid.NewRandom()
	if err != nil {
		return NewNil(), fmt.Errorf("uuid: %w", err)
	}
	return NewString(id.String()), nil
}
