package vibectx

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/mgomes/vibectx/bridge"
	"github.com/mgomes/vibectx/vibes"
)

// Prompter renders a Runtime's unit as text for a generator.
type Prompter struct {
	rt *Runtime
}

func (rt *Runtime) Prompter() *Prompter { return &Prompter{rt: rt} }

// SourceCode returns the unit source. With excludeHidden, hidden regions
// are stripped; otherwise the text is returned unchanged.
func (p *Prompter) SourceCode(excludeHidden bool) (string, error) {
	if p.rt.closed.Load() {
		return "", ErrRuntimeClosed
	}
	if excludeHidden {
		return StripHidden(p.rt.source), nil
	}
	return p.rt.source, nil
}

// hidden reports bindings no prompt describes: private names, the
// capability instance and the predefined capability class.
func hidden(name, origin string) bool {
	return isPrivateName(name) || name == CapabilityBinding || (origin == LocalsOrigin && name == DefaultCapabilityClass)
}

func (p *Prompter) ignoredOrigin(origin string) bool {
	for _, prefix := range p.rt.ignored {
		if prefix != "" && strings.HasPrefix(origin, prefix) {
			return true
		}
	}
	return false
}

// ImportedPrompt describes every public binding the unit did not declare
// itself: overrides verbatim, classes as outlines and functions as
// signatures. Data values and builtins are skipped.
func (p *Prompter) ImportedPrompt() (string, error) {
	if p.rt.closed.Load() {
		return "", ErrRuntimeClosed
	}
	ns := p.rt.ns
	overrides := p.rt.promptOverrides()
	var parts []string
	for _, name := range ns.Names() {
		origin := ns.Origin(name)
		if hidden(name, origin) || origin == ns.Name() {
			continue
		}
		if text, ok := overrides[name]; ok {
			parts = append(parts, text)
			continue
		}
		if p.ignoredOrigin(origin) {
			continue
		}
		val, _ := ns.Lookup(name)
		switch val.Kind() {
		case vibes.KindClass:
			parts = append(parts, val.Class().Outline())
		case vibes.KindFunction:
			parts = append(parts, val.Function().Describe())
		}
	}
	return strings.Join(parts, "\n\n"), nil
}

// Attribute prompt buckets, in output order.
const (
	bucketFunctions = "functions"
	bucketClasses   = "classes"
	bucketModules   = "modules"
	bucketOther     = "other"
)

var bucketOrder = []string{bucketFunctions, bucketClasses, bucketModules, bucketOther}

type attrEntry struct {
	bucket string
	label  string
	name   string
	origin string
	text   string
}

// attrEntries classifies the bindings worth describing: imported classes,
// functions, host modules and class aliases, plus each injected capability
// labelled <CapabilityClass>.<attr>.
func (p *Prompter) attrEntries(ctx context.Context, includes []string) ([]attrEntry, error) {
	if p.rt.closed.Load() {
		return nil, ErrRuntimeClosed
	}
	ns := p.rt.ns
	var entries []attrEntry
	for _, name := range ns.Names() {
		origin := ns.Origin(name)
		if hidden(name, origin) || origin == ns.Name() || p.ignoredOrigin(origin) {
			continue
		}
		val, _ := ns.Lookup(name)
		if entry, ok := describeBinding(name, val); ok {
			entry.name, entry.origin = name, origin
			entries = append(entries, entry)
		}
	}

	if inst := p.rt.caps.Instance(); inst != nil {
		for _, attr := range p.rt.injected {
			val, ok := inst.Get(attr)
			if !ok {
				continue
			}
			entry, ok := describeBinding(p.rt.capClass.Name+"."+attr, val)
			if !ok {
				continue
			}
			entry.name = attr
			entries = append(entries, entry)
		}
	}

	// A binding declared by a unit that is itself described is covered by
	// that unit's entry.
	labels := map[string]bool{}
	for _, entry := range entries {
		labels[entry.label] = true
	}
	entries = slices.DeleteFunc(entries, func(e attrEntry) bool {
		return e.origin != "" && labels[e.origin]
	})

	if len(includes) > 0 {
		entries = slices.DeleteFunc(entries, func(e attrEntry) bool {
			return !slices.Contains(includes, e.label) && !slices.Contains(includes, e.name)
		})
	}

	if hook, ok := lookupHook(ns, hookAttrsPrompt); ok {
		for i, entry := range entries {
			text, err := p.rt.engine.Call(ctx, ns, hook, []vibes.Value{vibes.NewString(entry.label), vibes.NewString(entry.name)}, nil, vibes.RunOptions{})
			if err != nil {
				return nil, fmt.Errorf("vibectx: %s %s: %w", hookAttrsPrompt, entry.label, err)
			}
			if !text.IsNil() {
				entries[i].text = text.String()
			}
		}
	}
	return entries, nil
}

func describeBinding(label string, val vibes.Value) (attrEntry, bool) {
	switch val.Kind() {
	case vibes.KindFunction:
		return attrEntry{bucket: bucketFunctions, label: label, text: val.Function().Describe()}, true
	case vibes.KindClass:
		class := val.Class()
		if class.Name != label && !strings.Contains(label, ".") {
			return attrEntry{bucket: bucketOther, label: label, text: fmt.Sprintf("%s = %s", label, class.Name)}, true
		}
		return attrEntry{bucket: bucketClasses, label: label, text: class.Outline()}, true
	case vibes.KindInstance:
		return attrEntry{bucket: bucketClasses, label: label, text: fmt.Sprintf("%s: %s\n%s", label, val.TypeName(), val.Instance().Class.Outline())}, true
	case vibes.KindObject:
		obj := val.Object()
		if obj.TypeName == MagicPromptType {
			return attrEntry{}, false
		}
		return attrEntry{bucket: bucketModules, label: label, text: describeObject(label, obj)}, true
	}
	return attrEntry{}, false
}

func describeObject(label string, obj *vibes.HostObject) string {
	if obj.Native != nil {
		return fmt.Sprintf("%s: %s\n%s", label, obj.TypeName, bridge.Describe(obj.TypeName, obj.Native))
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s\nmodule %s\n", label, obj.TypeName, obj.TypeName)
	names := make([]string, 0, len(obj.Members))
	for name := range obj.Members {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		member := obj.Members[name]
		if member.Kind() == vibes.KindBuiltin && member.Builtin().Doc != "" {
			fmt.Fprintf(&b, "  # %s\n", member.Builtin().Doc)
		}
		fmt.Fprintf(&b, "  def %s\n", name)
	}
	b.WriteString("end")
	return b.String()
}

// ImportedAttrsPrompt renders the classified bindings under bracketed
// bucket headings. includes restricts the output to the named bindings.
func (p *Prompter) ImportedAttrsPrompt(ctx context.Context, includes ...string) (string, error) {
	entries, err := p.attrEntries(ctx, includes)
	if err != nil {
		return "", err
	}
	var sections []string
	for _, bucket := range bucketOrder {
		var texts []string
		for _, entry := range entries {
			if entry.bucket == bucket {
				texts = append(texts, entry.text)
			}
		}
		if len(texts) > 0 {
			sections = append(sections, "["+bucket+"]\n"+strings.Join(texts, "\n\n"))
		}
	}
	return strings.Join(sections, "\n\n"), nil
}

// ModulePrompt renders the whole unit for a generator: the visible source
// followed by every attribute description as commentary. A unit-level
// __module_prompt__ replaces it.
func (p *Prompter) ModulePrompt(ctx context.Context) (string, error) {
	if p.rt.closed.Load() {
		return "", ErrRuntimeClosed
	}
	if hook, ok := lookupHook(p.rt.ns, hookModulePrompt); ok {
		text, err := p.rt.engine.Call(ctx, p.rt.ns, hook, nil, nil, vibes.RunOptions{})
		if err != nil {
			return "", fmt.Errorf("vibectx: %s: %w", hookModulePrompt, err)
		}
		return text.String(), nil
	}

	visible, err := p.SourceCode(true)
	if err != nil {
		return "", err
	}
	source := strings.TrimRight(visible, "\n")
	entries, err := p.attrEntries(ctx, nil)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return source + "\n", nil
	}
	var block strings.Builder
	for _, bucket := range bucketOrder {
		for _, entry := range entries {
			if entry.bucket != bucket {
				continue
			}
			fmt.Fprintf(&block, "@attr %s\n%s\n\n", entry.label, entry.text)
		}
	}
	var b strings.Builder
	if source != "" {
		b.WriteString(source)
		b.WriteString("\n\n")
	}
	b.WriteString(commentBlock(strings.TrimRight(block.String(), "\n")))
	b.WriteString("\n")
	return b.String(), nil
}

// commentBlock prefixes every line with "# " so it reads as commentary.
func commentBlock(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if line == "" {
			lines[i] = "#"
			continue
		}
		lines[i] = "# " + line
	}
	return strings.Join(lines, "\n")
}
