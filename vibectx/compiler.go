// Package vibectx compiles persisted capability contexts into runnable
// units, injects their declared capabilities, describes them as text for a
// generator and executes generated code against them.
package vibectx

import (
	"context"
	"fmt"
	"io"
	"maps"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/mgomes/vibectx/descriptor"
	"github.com/mgomes/vibectx/registry"
	"github.com/mgomes/vibectx/vibes"
)

// Option configures a Compiler.
type Option func(*Compiler)

// WithCapabilityRegistry makes the compiler's registry scope a child of r.
func WithCapabilityRegistry(r *registry.Registry) Option {
	return func(c *Compiler) { c.parent = r }
}

// WithDescriptor joins d into the compiler's descriptor.
func WithDescriptor(d *descriptor.Descriptor) Option {
	return func(c *Compiler) { c.JoinContext(d) }
}

// WithLocalBindings pre-seeds the unit namespace.
func WithLocalBindings(bindings map[string]vibes.Value) Option {
	return func(c *Compiler) { maps.Copy(c.locals, bindings) }
}

// WithIgnoredOriginPrefixes hides bindings declared by units whose name
// starts with any of the prefixes from generated prompts.
func WithIgnoredOriginPrefixes(prefixes ...string) Option {
	return func(c *Compiler) { c.ignored = append(c.ignored, prefixes...) }
}

// WithUnits sets where origin and required units are loaded from.
func WithUnits(loader UnitLoader) Option {
	return func(c *Compiler) { c.units = loader }
}

// WithOriginCache shares compiled origin units across compilers.
func WithOriginCache(cache OriginCache) Option {
	return func(c *Compiler) { c.origins = cache }
}

// WithPromptOverrides supplies per-binding prompt text.
func WithPromptOverrides(overrides map[string]string) Option {
	return func(c *Compiler) { maps.Copy(c.overrides, overrides) }
}

// WithCapabilityType names the class used for the capability instance
// instead of the unit's Capabilities class.
func WithCapabilityType(className string) Option {
	return func(c *Compiler) { c.capType = className }
}

// WithLogger sets the logger the compiler and its runtimes report to. A nil
// logger keeps the default.
func WithLogger(logger *log.Logger) Option {
	return func(c *Compiler) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Compiler turns a descriptor into a Runtime. A Compiler compiles at most
// once.
type Compiler struct {
	engine    *vibes.Engine
	parent    *registry.Registry
	scope     *registry.Registry
	desc      *descriptor.Descriptor
	locals    map[string]vibes.Value
	ignored   []string
	units     UnitLoader
	origins   OriginCache
	overrides map[string]string
	capType   string
	logger    *log.Logger

	mu         sync.Mutex
	injections map[string]any
	injectSeq  []string

	compiling   atomic.Bool
	used        atomic.Bool
	transferred atomic.Bool
	closed      atomic.Bool
}

// NewCompiler returns a compiler that evaluates units with engine.
func NewCompiler(engine *vibes.Engine, opts ...Option) *Compiler {
	c := &Compiler{
		engine:     engine,
		desc:       descriptor.New(),
		locals:     map[string]vibes.Value{},
		overrides:  map[string]string{},
		injections: map[string]any{},
		logger:     log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.parent != nil {
		c.scope = c.parent.NewScope()
	} else {
		c.scope = registry.New()
	}
	return c
}

// JoinContext merges d into the compiler's descriptor, d winning.
func (c *Compiler) JoinContext(d *descriptor.Descriptor) {
	c.desc = descriptor.Merge(c.desc, d)
}

// Scope returns the registry scope the compiler owns until Compile hands it
// to the Runtime.
func (c *Compiler) Scope() *registry.Registry { return c.scope }

// Inject supplies an explicit value for a capability attribute. Go values
// are exposed through the bridge when assigned.
func (c *Compiler) Inject(name string, value any) error {
	if c.closed.Load() {
		return ErrCompilerClosed
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.injections[name]; !exists {
		c.injectSeq = append(c.injectSeq, name)
	}
	c.injections[name] = value
	return nil
}

// Bind registers a value or factory in the compiler's scope under key.
// Factories are singletons within the scope.
func (c *Compiler) Bind(key string, valueOrFactory any) error {
	if c.closed.Load() {
		return ErrCompilerClosed
	}
	switch f := valueOrFactory.(type) {
	case registry.Factory:
		return c.scope.RegisterFactory(key, f, true)
	case func(context.Context, *registry.Registry) (any, error):
		return c.scope.RegisterFactory(key, f, true)
	}
	return c.scope.Set(key, valueOrFactory)
}

func (c *Compiler) injectionOrder() ([]string, map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.injectSeq), maps.Clone(c.injections)
}

// Compile builds the unit and its Runtime. An empty unitName derives the
// name from the origin, or generates one. On success the Runtime owns the
// compiler's registry scope; on failure the scope is shut down.
func (c *Compiler) Compile(ctx context.Context, unitName string) (rt *Runtime, err error) {
	if !c.compiling.CompareAndSwap(false, true) {
		return nil, ErrRecursiveCompile
	}
	defer c.compiling.Store(false)
	if !c.used.CompareAndSwap(false, true) {
		return nil, ErrCompilerReused
	}
	defer func() {
		if err == nil {
			c.transferred.Store(true)
		}
		if closeErr := c.Close(); closeErr != nil {
			c.logger.Warn("compiler scope shutdown failed", "err", closeErr)
		}
	}()

	if unitName == "" {
		unitName = c.desc.OriginRef
		if unitName == "" || c.desc.InlineSource != "" {
			unitName = "unit_" + uuid.NewString()
		}
	}
	logger := c.logger.With("unit", unitName)
	logger.Debug("compiling unit", "origin", c.desc.OriginRef, "inline", c.desc.InlineSource != "")

	unit, err := c.assemble(ctx, unitName)
	if err != nil {
		return nil, fmt.Errorf("vibectx: compile %s: %w", unitName, err)
	}

	if err := c.runCompileHook(ctx, unit); err != nil {
		return nil, fmt.Errorf("vibectx: %s %s: %w", hookOnCompile, unitName, err)
	}
	if n := resolveMagicPrompts(unit.ns); n > 0 {
		logger.Debug("resolved magic prompts", "count", n)
	}

	rt = &Runtime{
		engine:       c.engine,
		name:         unitName,
		ns:           unit.ns,
		desc:         c.desc,
		source:       unit.source,
		originName:   unit.origin,
		originSource: unit.originSource,
		scope:        c.scope,
		units:        c.units,
		origins:      c.origins,
		ignored:      slices.Clone(c.ignored),
		overrides:    maps.Clone(c.overrides),
		logger:       logger,
	}
	names, injections := c.injectionOrder()
	if err := rt.assembleCapabilities(ctx, c.capType, names, injections); err != nil {
		rt.releaseLifecycles()
		return nil, fmt.Errorf("vibectx: compile %s: %w", unitName, err)
	}
	if err := rt.runReadyHook(ctx); err != nil {
		rt.releaseLifecycles()
		return nil, fmt.Errorf("vibectx: %s %s: %w", hookOnReady, unitName, err)
	}
	logger.Debug("unit ready", "bindings", unit.ns.Len(), "injected", rt.injected)
	return rt, nil
}

// Close releases the compiler's registry scope unless a Runtime took
// ownership of it. It is idempotent.
func (c *Compiler) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	if c.transferred.Load() {
		return nil
	}
	return c.scope.Shutdown()
}
