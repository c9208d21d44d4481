package registry

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type closer struct {
	name  string
	log   *[]string
	mu    *sync.Mutex
	calls atomic.Int32
}

func (c *closer) Close() error {
	c.calls.Add(1)
	c.mu.Lock()
	*c.log = append(*c.log, c.name)
	c.mu.Unlock()
	return nil
}

func TestGetSetAndScopes(t *testing.T) {
	ctx := context.Background()
	root := New()
	require.NoError(t, root.Set("kv", "root-kv"))
	child := root.NewScope()
	require.NoError(t, child.Set("events", "child-events"))

	v, err := child.Get(ctx, "kv")
	require.NoError(t, err)
	assert.Equal(t, "root-kv", v)

	_, err = root.Get(ctx, "events")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.True(t, child.Has("kv"))
	assert.False(t, root.Has("events"))
	assert.Equal(t, []string{"events"}, child.Keys())
}

func TestSingletonFactoryRunsOnceUnderConcurrency(t *testing.T) {
	ctx := context.Background()
	r := New()
	var builds atomic.Int32
	require.NoError(t, r.RegisterFactory("svc", func(context.Context, *Registry) (any, error) {
		builds.Add(1)
		return new(int), nil
	}, true))

	var wg sync.WaitGroup
	results := make([]any, 32)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := r.Get(ctx, "svc")
			assert.NoError(t, err)
			results[i] = v
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), builds.Load())
	for _, v := range results {
		assert.Same(t, results[0], v)
	}
}

func TestTransientFactoryBuildsEveryTime(t *testing.T) {
	ctx := context.Background()
	r := New()
	require.NoError(t, r.RegisterFactory("job", func(context.Context, *Registry) (any, error) {
		return new(int), nil
	}, false))
	a, err := r.Get(ctx, "job")
	require.NoError(t, err)
	b, err := r.Get(ctx, "job")
	require.NoError(t, err)
	assert.NotSame(t, a, b)
}

func TestFailedSingletonIsRetried(t *testing.T) {
	ctx := context.Background()
	r := New()
	var attempts int
	require.NoError(t, r.RegisterFactory("flaky", func(context.Context, *Registry) (any, error) {
		attempts++
		if attempts == 1 {
			return nil, errors.New("not yet")
		}
		return "ok", nil
	}, true))

	_, err := r.Get(ctx, "flaky")
	require.Error(t, err)
	v, err := r.Get(ctx, "flaky")
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

func TestShutdownCascadesAndClosesOwnedSingletons(t *testing.T) {
	ctx := context.Background()
	var (
		mu     sync.Mutex
		closed []string
	)
	root := New()
	child := root.NewScope()
	grandchild := child.NewScope()

	rootSvc := &closer{name: "root", log: &closed, mu: &mu}
	childSvc := &closer{name: "child", log: &closed, mu: &mu}
	external := &closer{name: "external", log: &closed, mu: &mu}

	require.NoError(t, root.RegisterFactory("a", func(context.Context, *Registry) (any, error) { return rootSvc, nil }, true))
	require.NoError(t, grandchild.RegisterFactory("b", func(context.Context, *Registry) (any, error) { return childSvc, nil }, true))
	require.NoError(t, root.Set("ext", external))

	_, err := grandchild.Get(ctx, "a")
	require.NoError(t, err)
	_, err = grandchild.Get(ctx, "b")
	require.NoError(t, err)

	require.NoError(t, root.Shutdown())
	require.NoError(t, root.Shutdown())

	assert.Equal(t, []string{"child", "root"}, closed)
	assert.Equal(t, int32(1), rootSvc.calls.Load())
	assert.Zero(t, external.calls.Load())
	assert.True(t, grandchild.Closed())

	_, err = grandchild.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrShutdown)
	assert.ErrorIs(t, root.Set("x", 1), ErrShutdown)
	assert.True(t, root.NewScope().Closed())
}

func TestChildShutdownLeavesParentUsable(t *testing.T) {
	ctx := context.Background()
	root := New()
	require.NoError(t, root.Set("kv", 1))
	child := root.NewScope()
	require.NoError(t, child.Shutdown())

	v, err := root.Get(ctx, "kv")
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}
