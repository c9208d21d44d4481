package vibectx

import (
	"context"
	"fmt"
	"strings"

	"github.com/mgomes/vibectx/vibes"
)

// Updater edits the unit's source text. Edits land in the descriptor's
// inline source and take effect on the next compile; the running
// namespace is not changed.
type Updater struct {
	rt *Runtime
}

func (rt *Runtime) Updater() *Updater { return &Updater{rt: rt} }

// Source returns the effective source: the inline override when set,
// otherwise the origin's text.
func (u *Updater) Source() string {
	if u.rt.desc != nil && u.rt.desc.InlineSource != "" {
		return u.rt.desc.InlineSource
	}
	return u.rt.originSource
}

func (u *Updater) set(source string) error {
	if u.rt.closed.Load() {
		return ErrRuntimeClosed
	}
	u.rt.desc.InlineSource = source
	return nil
}

// Append adds text after the current source, on a new line.
func (u *Updater) Append(text string) error {
	source := u.Source()
	if source != "" && !strings.HasSuffix(source, "\n") {
		source += "\n"
	}
	return u.set(source + text)
}

// Rewrite replaces the whole source.
func (u *Updater) Rewrite(source string) error {
	return u.set(source)
}

// ReplaceSymbol swaps the top-level def or class called name for text. The
// text is appended when no such definition exists.
func (u *Updater) ReplaceSymbol(name, text string) error {
	source := u.Source()
	script, err := u.rt.engine.Compile(u.rt.name, source)
	if err != nil {
		return fmt.Errorf("vibectx: replace %s: %w", name, err)
	}
	for _, def := range script.Definitions() {
		if def.Name != name || def.Kind == vibes.DefAssign {
			continue
		}
		lines := strings.SplitAfter(source, "\n")
		start, end := def.Start.Line-1, def.End.Line
		if end > len(lines) {
			end = len(lines)
		}
		replacement := text
		if end < len(lines) || strings.HasSuffix(lines[len(lines)-1], "\n") {
			replacement = strings.TrimSuffix(text, "\n") + "\n"
		}
		updated := strings.Join(lines[:start], "") + replacement + strings.Join(lines[end:], "")
		return u.set(updated)
	}
	return u.Append(text)
}

// Save stores the effective source under the unit's origin. With reload,
// the cached origin is dropped so later compiles load the new text. Only
// units compiled from an origin, named or loaded by unit name, can be saved.
func (u *Updater) Save(ctx context.Context, reload bool) error {
	if u.rt.closed.Load() {
		return ErrRuntimeClosed
	}
	origin := u.rt.desc.OriginRef
	if origin == "" {
		origin = u.rt.originName
	}
	if origin == "" || u.rt.units == nil {
		return ErrNotSavable
	}
	source := u.Source()
	if err := u.rt.units.SaveUnit(ctx, origin, source); err != nil {
		return fmt.Errorf("vibectx: save %s: %w", origin, err)
	}
	u.rt.originSource = source
	u.rt.desc.InlineSource = ""
	if reload && u.rt.origins != nil {
		u.rt.origins.Remove(origin)
	}
	u.rt.logger.Debug("saved unit", "origin", origin, "reload", reload)
	return nil
}
