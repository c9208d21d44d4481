package vibectx

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"sync"

	"github.com/mgomes/vibectx/vibes"
)

// UnitLoader loads and stores unit source text by name. Loaders report
// missing units with an error wrapping fs.ErrNotExist.
type UnitLoader interface {
	LoadUnit(ctx context.Context, name string) (string, error)
	SaveUnit(ctx context.Context, name, source string) error
}

// OriginUnit is a compiled origin: the namespace its source produced.
type OriginUnit struct {
	Name      string
	Source    string
	Namespace *vibes.Namespace
}

// OriginCache keeps compiled origin units between compiles. Reloading a
// unit removes its entry.
type OriginCache interface {
	Get(name string) (*OriginUnit, bool)
	Add(name string, unit *OriginUnit)
	Remove(name string)
}

// LocalsOrigin is the declaring unit recorded for caller-supplied and
// predefined local bindings.
const LocalsOrigin = "<locals>"

// DefaultCapabilityClass names the class the capability instance is built
// from when the unit does not choose one.
const DefaultCapabilityClass = "Capabilities"

type assembledUnit struct {
	ns           *vibes.Namespace
	source       string
	origin       string
	originSource string
}

// assemble evaluates the unit source into a fresh namespace and copies the
// origin's own top-level definitions over it.
func (c *Compiler) assemble(ctx context.Context, unitName string) (*assembledUnit, error) {
	unit := &assembledUnit{origin: c.desc.OriginRef}
	if c.desc.InlineSource == "" && unit.origin == "" {
		unit.origin = unitName
	}

	var originUnit *OriginUnit
	if unit.origin != "" && (c.units != nil || c.origins != nil) {
		loaded, err := c.loadOrigin(ctx, unit.origin, map[string]bool{})
		switch {
		case err == nil:
			originUnit = loaded
			unit.originSource = loaded.Source
		case errors.Is(err, fs.ErrNotExist) && (c.desc.InlineSource != "" || unit.origin == unitName):
			// A fresh unit has no stored source yet.
		default:
			return nil, err
		}
	} else if c.desc.OriginRef != "" && c.desc.InlineSource == "" {
		return nil, fmt.Errorf("origin %s: no unit loader configured", c.desc.OriginRef)
	}

	unit.source = c.desc.InlineSource
	if unit.source == "" {
		unit.source = unit.originSource
	}

	unit.ns = c.engine.NewNamespace(unitName)
	c.seed(unit.ns, map[string]bool{})
	if strings.TrimSpace(unit.source) != "" {
		script, err := c.engine.Compile(unitName, unit.source)
		if err != nil {
			return nil, err
		}
		if _, err := script.Run(ctx, unit.ns, vibes.RunOptions{}); err != nil {
			return nil, err
		}
	}
	if originUnit != nil && unit.origin != unitName {
		copyOriginDefinitions(originUnit, unit.ns)
	}
	return unit, nil
}

// seed binds the predefined locals every unit namespace starts with.
func (c *Compiler) seed(ns *vibes.Namespace, loading map[string]bool) {
	ns.Set(DefaultCapabilityClass, vibes.NewClass(vibes.NewClassDef(DefaultCapabilityClass)), LocalsOrigin)
	ns.Set("require", c.requireBuiltin(loading), LocalsOrigin)
	ns.Set("instances_of", vibes.NewBuiltin("instances_of", magicConstructor(magicInstancesOf)), LocalsOrigin)
	ns.Set("functions_like", vibes.NewBuiltin("functions_like", magicConstructor(magicFunctionsLike)), LocalsOrigin)
	for name, val := range c.locals {
		ns.Set(name, val, LocalsOrigin)
	}
}

// loadOrigin returns the compiled origin unit, from the cache when
// possible. loading tracks the require chain to reject cycles.
func (c *Compiler) loadOrigin(ctx context.Context, name string, loading map[string]bool) (*OriginUnit, error) {
	if c.origins != nil {
		if cached, ok := c.origins.Get(name); ok {
			return cached, nil
		}
	}
	if c.units == nil {
		return nil, fmt.Errorf("unit %s: %w", name, fs.ErrNotExist)
	}
	if loading[name] {
		return nil, fmt.Errorf("require cycle through %s", name)
	}
	loading[name] = true
	defer delete(loading, name)

	source, err := c.units.LoadUnit(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("load unit %s: %w", name, err)
	}
	ns := c.engine.NewNamespace(name)
	c.seed(ns, loading)
	script, err := c.engine.Compile(name, source)
	if err != nil {
		return nil, fmt.Errorf("unit %s: %w", name, err)
	}
	if _, err := script.Run(ctx, ns, vibes.RunOptions{}); err != nil {
		return nil, fmt.Errorf("unit %s: %w", name, err)
	}
	unit := &OriginUnit{Name: name, Source: source, Namespace: ns}
	if c.origins != nil {
		c.origins.Add(name, unit)
	}
	return unit, nil
}

// copyOriginDefinitions copies the functions and classes the origin itself
// declared into ns. Private and dunder names and re-exports stay behind.
func copyOriginDefinitions(origin *OriginUnit, ns *vibes.Namespace) int {
	copied := 0
	for _, name := range origin.Namespace.Names() {
		if isPrivateName(name) || origin.Namespace.Origin(name) != origin.Name {
			continue
		}
		val, _ := origin.Namespace.Lookup(name)
		if val.Kind() != vibes.KindFunction && val.Kind() != vibes.KindClass {
			continue
		}
		ns.Set(name, val, origin.Name)
		copied++
	}
	return copied
}

func isPrivateName(name string) bool {
	return strings.HasPrefix(name, "_")
}

// requireBuiltin loads another unit and copies its own top-level
// definitions into the calling namespace with their origin recorded.
func (c *Compiler) requireBuiltin(loading map[string]bool) vibes.Value {
	var mu sync.Mutex
	return vibes.NewDocBuiltin("require", "Loads the definitions of another unit.", func(exec *vibes.Execution, receiver vibes.Value, args []vibes.Value, kwargs map[string]vibes.Value, block vibes.Value) (vibes.Value, error) {
		if len(args) != 1 || (args[0].Kind() != vibes.KindString && args[0].Kind() != vibes.KindSymbol) {
			return vibes.NewNil(), errors.New("require expects a unit name")
		}
		name := args[0].String()
		mu.Lock()
		unit, err := c.loadOrigin(exec.Context(), name, loading)
		mu.Unlock()
		if err != nil {
			return vibes.NewNil(), err
		}
		return vibes.NewInt(int64(copyOriginDefinitions(unit, exec.Namespace()))), nil
	})
}
