// Package registry is a scoped dependency container for capability
// services. Scopes resolve locally first and then through their parent;
// shutting a scope down cascades to its children.
package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"sync"
)

var (
	ErrNotFound = errors.New("registry: key not registered")
	ErrShutdown = errors.New("registry: scope is shut down")
)

// Factory builds a value on resolution. It receives the scope that is
// resolving the key so it can pull its own dependencies.
type Factory func(ctx context.Context, r *Registry) (any, error)

type factoryEntry struct {
	fn        Factory
	singleton bool

	mu    sync.Mutex
	built bool
	value any
}

// Registry is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	parent    *Registry
	values    map[string]any
	factories map[string]*factoryEntry
	children  map[*Registry]struct{}
	owned     []io.Closer
	closed    bool
}

// New returns an empty root scope.
func New() *Registry {
	return &Registry{
		values:    map[string]any{},
		factories: map[string]*factoryEntry{},
		children:  map[*Registry]struct{}{},
	}
}

// NewScope returns a child scope. Resolutions fall back to r; shutting r
// down also shuts the child down.
func (r *Registry) NewScope() *Registry {
	child := New()
	child.parent = r
	r.mu.Lock()
	if r.closed {
		child.closed = true
	} else {
		r.children[child] = struct{}{}
	}
	r.mu.Unlock()
	return child
}

// Parent returns the enclosing scope, or nil for a root.
func (r *Registry) Parent() *Registry { return r.parent }

// Set binds a concrete value. Values set directly are owned by the caller
// and are not closed on shutdown. Set replaces any factory for key.
func (r *Registry) Set(key string, value any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrShutdown
	}
	delete(r.factories, key)
	r.values[key] = value
	return nil
}

// RegisterFactory binds key to a factory. Singleton factories run at most
// once per registering scope; the value they produce is owned by that scope
// and closed on shutdown when it implements io.Closer. Non-singleton
// factories run on every resolution.
func (r *Registry) RegisterFactory(key string, factory Factory, singleton bool) error {
	if factory == nil {
		return fmt.Errorf("registry: nil factory for %s", key)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrShutdown
	}
	delete(r.values, key)
	r.factories[key] = &factoryEntry{fn: factory, singleton: singleton}
	return nil
}

// Has reports whether key resolves in this scope or an ancestor.
func (r *Registry) Has(key string) bool {
	for scope := r; scope != nil; scope = scope.parent {
		scope.mu.RLock()
		_, isValue := scope.values[key]
		_, isFactory := scope.factories[key]
		scope.mu.RUnlock()
		if isValue || isFactory {
			return true
		}
	}
	return false
}

// Get resolves key, walking up the scope chain.
func (r *Registry) Get(ctx context.Context, key string) (any, error) {
	r.mu.RLock()
	closed := r.closed
	r.mu.RUnlock()
	if closed {
		return nil, ErrShutdown
	}
	for scope := r; scope != nil; scope = scope.parent {
		scope.mu.RLock()
		value, isValue := scope.values[key]
		entry, isFactory := scope.factories[key]
		scope.mu.RUnlock()
		if isValue {
			return value, nil
		}
		if isFactory {
			return scope.build(ctx, key, entry, r)
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
}

func (r *Registry) build(ctx context.Context, key string, entry *factoryEntry, resolver *Registry) (any, error) {
	if !entry.singleton {
		value, err := entry.fn(ctx, resolver)
		if err != nil {
			return nil, fmt.Errorf("registry: build %s: %w", key, err)
		}
		return value, nil
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.built {
		return entry.value, nil
	}
	value, err := entry.fn(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("registry: build %s: %w", key, err)
	}
	entry.value, entry.built = value, true
	if closer, ok := value.(io.Closer); ok {
		r.mu.Lock()
		r.owned = append(r.owned, closer)
		r.mu.Unlock()
	}
	return value, nil
}

// Keys lists the keys bound directly in this scope.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := slices.Collect(maps.Keys(r.values))
	keys = slices.AppendSeq(keys, maps.Keys(r.factories))
	slices.Sort(keys)
	return keys
}

// Shutdown shuts down every child scope, then closes owned singletons in
// reverse creation order. It is idempotent.
func (r *Registry) Shutdown() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	children := slices.Collect(maps.Keys(r.children))
	r.children = map[*Registry]struct{}{}
	owned := r.owned
	r.owned = nil
	r.mu.Unlock()

	var errs []error
	for _, child := range children {
		if err := child.Shutdown(); err != nil {
			errs = append(errs, err)
		}
	}
	for i := len(owned) - 1; i >= 0; i-- {
		if err := owned[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if r.parent != nil {
		r.parent.mu.Lock()
		delete(r.parent.children, r)
		r.parent.mu.Unlock()
	}
	return errors.Join(errs...)
}

// Closed reports whether Shutdown has run.
func (r *Registry) Closed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.closed
}
