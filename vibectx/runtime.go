package vibectx

import (
	"errors"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"

	"github.com/mgomes/vibectx/descriptor"
	"github.com/mgomes/vibectx/registry"
	"github.com/mgomes/vibectx/vibes"
)

// Runtime is a compiled unit with its capability instance. It executes at
// most one call at a time.
type Runtime struct {
	engine       *vibes.Engine
	name         string
	ns           *vibes.Namespace
	desc         *descriptor.Descriptor
	source       string
	originName   string
	originSource string

	caps       vibes.Value
	capClass   *vibes.ClassDef
	injected   []string
	restored   map[string]bool
	initial    map[string]vibes.Value
	lifecycles []lifecycleEntry

	scope     *registry.Registry
	units     UnitLoader
	origins   OriginCache
	ignored   []string
	overrides map[string]string
	logger    *log.Logger

	inflight  atomic.Bool
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// Name returns the unit name the namespace is keyed by.
func (rt *Runtime) Name() string { return rt.name }

// Origin returns the origin unit name, if any.
func (rt *Runtime) Origin() string { return rt.originName }

// Engine returns the engine the unit was compiled with.
func (rt *Runtime) Engine() *vibes.Engine { return rt.engine }

// Namespace returns the unit namespace, or nil once closed.
func (rt *Runtime) Namespace() *vibes.Namespace { return rt.ns }

// Capabilities returns the capability instance.
func (rt *Runtime) Capabilities() vibes.Value { return rt.caps }

// Injected lists the attributes set by injection or registry resolution,
// in assignment order.
func (rt *Runtime) Injected() []string { return slices.Clone(rt.injected) }

// Descriptor returns the live descriptor, mutated by every Execute. It is
// nil once the Runtime is closed.
func (rt *Runtime) Descriptor() *descriptor.Descriptor { return rt.desc }

// Scope returns the registry scope the runtime owns.
func (rt *Runtime) Scope() *registry.Registry { return rt.scope }

// Closed reports whether Close has been called.
func (rt *Runtime) Closed() bool { return rt.closed.Load() }

// Close releases lifecycle capabilities, shuts the registry scope down and
// drops the namespace and descriptor. Closing twice is a no-op.
func (rt *Runtime) Close() error {
	rt.closeOnce.Do(func() {
		rt.closed.Store(true)
		var errs []error
		if err := rt.releaseLifecycles(); err != nil {
			errs = append(errs, err)
		}
		if rt.scope != nil {
			if err := rt.scope.Shutdown(); err != nil {
				errs = append(errs, err)
			}
		}
		rt.ns = nil
		rt.desc = nil
		rt.caps = vibes.NewNil()
		rt.closeErr = errors.Join(errs...)
		rt.logger.Debug("runtime closed")
	})
	return rt.closeErr
}
