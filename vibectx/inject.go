package vibectx

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/mgomes/vibectx/bridge"
	"github.com/mgomes/vibectx/descriptor"
	"github.com/mgomes/vibectx/vibes"
)

// Lifecycle is implemented by capabilities that want to know when they are
// attached to and released from a Runtime.
type Lifecycle interface {
	OnInject(rt *Runtime, attr string) error
	OnDestroy() error
}

type lifecycleEntry struct {
	attr string
	obj  Lifecycle
}

func lifecycleOf(v any) (Lifecycle, bool) {
	if val, ok := v.(vibes.Value); ok {
		if val.Kind() != vibes.KindObject {
			return nil, false
		}
		v = val.Object().Native
	}
	lc, ok := v.(Lifecycle)
	return lc, ok
}

// capabilityClass picks the class the capability instance is built from.
func (rt *Runtime) capabilityClass(override string) (*vibes.ClassDef, error) {
	name := override
	if name == "" {
		name = DefaultCapabilityClass
	}
	if val, ok := rt.ns.Get(name); ok && val.Kind() == vibes.KindClass {
		return val.Class(), nil
	}
	if override != "" {
		return nil, fmt.Errorf("%w: capability class %s not found", ErrUnresolvableCapability, override)
	}
	return vibes.NewClassDef(DefaultCapabilityClass), nil
}

func (rt *Runtime) resolveClass(name string) (*vibes.ClassDef, bool) {
	val, ok := rt.ns.Get(name)
	if !ok || val.Kind() != vibes.KindClass {
		return nil, false
	}
	return val.Class(), true
}

// assembleCapabilities builds the capability instance. Restored
// properties win over explicit injections, which win over the registry.
func (rt *Runtime) assembleCapabilities(ctx context.Context, override string, injectOrder []string, injections map[string]any) error {
	class, err := rt.capabilityClass(override)
	if err != nil {
		return err
	}
	inst := class.NewStub()
	rt.capClass = class
	rt.caps = vibes.NewInstance(inst)
	rt.restored = map[string]bool{}
	rt.initial = map[string]vibes.Value{}

	// Every captured key is restored, including attributes generated code
	// assigned without declaring them. Declared ones must still type check.
	for _, name := range sortedKeys(rt.desc.Properties) {
		val, err := descriptor.Decode(rt.desc.Properties[name], rt.resolveClass)
		if err != nil {
			rt.logger.Warn("skipping property", "name", name, "err", err)
			continue
		}
		if prop, ok := class.Property(name); ok && prop.Type != nil && !prop.Type.Accepts(val) {
			rt.logger.Warn("skipping property", "name", name, "want", prop.Type.String(), "got", val.TypeName())
			continue
		}
		inst.Set(name, val)
		rt.restored[name] = true
	}

	for _, name := range injectOrder {
		if _, set := inst.Get(name); set {
			continue
		}
		if err := rt.attach(inst, name, injections[name]); err != nil {
			return err
		}
	}

	for _, prop := range class.Properties {
		if _, set := inst.Get(prop.Name); set {
			continue
		}
		if prop.Type != nil && !isDataType(prop.Type) && rt.scope.Has(prop.Type.BaseName()) {
			svc, err := rt.scope.Get(ctx, prop.Type.BaseName())
			if err != nil {
				return fmt.Errorf("%w: %s: %w", ErrUnresolvableCapability, prop.Name, err)
			}
			if err := rt.attach(inst, prop.Name, svc); err != nil {
				return err
			}
			continue
		}
		val, hasDefault, err := rt.engine.PropertyDefault(ctx, rt.ns, class, prop.Name)
		if err != nil {
			return fmt.Errorf("vibectx: default for %s: %w", prop.Name, err)
		}
		switch {
		case hasDefault:
		case prop.Type == nil || prop.Type.Nullable:
			val = vibes.NewNil()
		default:
			return fmt.Errorf("%w: %s: %s", ErrUnresolvableCapability, prop.Name, prop.Type)
		}
		inst.Set(prop.Name, val)
		rt.initial[prop.Name] = val
	}

	rt.ns.Set(CapabilityBinding, rt.caps, LocalsOrigin)
	return nil
}

// attach assigns a service to a capability attribute, wrapping Go values
// and running OnInject for lifecycle-aware services.
func (rt *Runtime) attach(inst *vibes.Instance, attr string, svc any) error {
	typeName := ""
	if prop, ok := inst.Class.Property(attr); ok && prop.Type != nil {
		typeName = prop.Type.BaseName()
	}
	val, err := bridge.Wrap(typeName, svc)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrUnresolvableCapability, attr, err)
	}
	if prop, ok := inst.Class.Property(attr); ok && prop.Type != nil && !prop.Type.Accepts(val) {
		return fmt.Errorf("%w: %s expects %s, got %s", ErrUnresolvableCapability, attr, prop.Type, val.TypeName())
	}
	if lc, ok := lifecycleOf(svc); ok {
		if err := lc.OnInject(rt, attr); err != nil {
			return fmt.Errorf("vibectx: inject %s: %w", attr, err)
		}
		rt.lifecycles = append(rt.lifecycles, lifecycleEntry{attr: attr, obj: lc})
	}
	inst.Set(attr, val)
	rt.initial[attr] = val
	rt.injected = append(rt.injected, attr)
	rt.logger.Debug("injected capability", "attr", attr, "type", val.TypeName())
	return nil
}

// releaseLifecycles runs OnDestroy for every attached lifecycle service in
// reverse attach order.
func (rt *Runtime) releaseLifecycles() error {
	entries := rt.lifecycles
	rt.lifecycles = nil
	var errs []error
	for _, entry := range slices.Backward(entries) {
		if err := entry.obj.OnDestroy(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", entry.attr, err))
		}
	}
	return errors.Join(errs...)
}

// isDataType reports whether an annotation names a plain data type rather
// than a capability type the registry could supply.
func isDataType(ty *vibes.TypeExpr) bool {
	switch ty.Kind {
	case vibes.TypeNamed:
		return false
	case vibes.TypeUnion:
		for _, option := range ty.Union {
			if !isDataType(option) {
				return false
			}
		}
	}
	return true
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
