package vibectx

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mgomes/vibectx/vibes"
)

// MagicPromptType is the host type name of unresolved magic prompt values.
const MagicPromptType = "MagicPrompt"

type magicKind int

const (
	magicInstancesOf magicKind = iota
	magicFunctionsLike
)

// magicPrompt is a placeholder whose text is computed from the unit's
// other bindings once compilation finishes.
type magicPrompt struct {
	kind magicKind
	arg  string
}

func magicConstructor(kind magicKind) vibes.BuiltinFunc {
	return func(exec *vibes.Execution, receiver vibes.Value, args []vibes.Value, kwargs map[string]vibes.Value, block vibes.Value) (vibes.Value, error) {
		if len(args) != 1 {
			return vibes.NewNil(), errors.New("magic prompt expects one argument")
		}
		arg := args[0]
		switch arg.Kind() {
		case vibes.KindString, vibes.KindSymbol:
		case vibes.KindClass:
			arg = vibes.NewString(arg.Class().Name)
		default:
			return vibes.NewNil(), fmt.Errorf("magic prompt expects a name, got %s", arg.TypeName())
		}
		return vibes.NewObject(&vibes.HostObject{
			TypeName: MagicPromptType,
			Native:   &magicPrompt{kind: kind, arg: arg.String()},
		}), nil
	}
}

func asMagicPrompt(val vibes.Value) (*magicPrompt, bool) {
	if val.Kind() != vibes.KindObject {
		return nil, false
	}
	mp, ok := val.Object().Native.(*magicPrompt)
	return mp, ok
}

// resolveMagicPrompts replaces every magic prompt binding in ns with its
// text. Magic prompts never see each other.
func resolveMagicPrompts(ns *vibes.Namespace) int {
	names := ns.Names()
	var pending []string
	for _, name := range names {
		val, _ := ns.Lookup(name)
		if _, ok := asMagicPrompt(val); ok {
			pending = append(pending, name)
		}
	}
	for _, name := range pending {
		val, _ := ns.Lookup(name)
		mp, _ := asMagicPrompt(val)
		ns.Replace(name, vibes.NewString(mp.render(ns, names)))
	}
	return len(pending)
}

func (mp *magicPrompt) render(ns *vibes.Namespace, names []string) string {
	var lines []string
	for _, name := range names {
		val, _ := ns.Lookup(name)
		if _, isMagic := asMagicPrompt(val); isMagic {
			continue
		}
		switch mp.kind {
		case magicInstancesOf:
			if (val.Kind() == vibes.KindInstance || val.Kind() == vibes.KindObject) && val.TypeName() == mp.arg {
				lines = append(lines, fmt.Sprintf("%s: %s", name, mp.arg))
			}
		case magicFunctionsLike:
			if val.Kind() != vibes.KindFunction || !strings.HasPrefix(name, mp.arg) {
				continue
			}
			if fn := val.Function(); !fn.Private && !isPrivateName(name) {
				lines = append(lines, vibes.FunctionSignature(fn))
			}
		}
	}
	return strings.Join(lines, "\n")
}
