package vibectx

import (
	"context"
	"fmt"
	"io/fs"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mgomes/vibectx/descriptor"
	"github.com/mgomes/vibectx/vibes"
)

type memUnits struct {
	mu    sync.Mutex
	src   map[string]string
	saves int
}

func newMemUnits(units map[string]string) *memUnits {
	src := map[string]string{}
	for k, v := range units {
		src[k] = v
	}
	return &memUnits{src: src}
}

func (m *memUnits) LoadUnit(_ context.Context, name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	src, ok := m.src[name]
	if !ok {
		return "", fmt.Errorf("unit %s: %w", name, fs.ErrNotExist)
	}
	return src, nil
}

func (m *memUnits) SaveUnit(_ context.Context, name, source string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.src[name] = source
	m.saves++
	return nil
}

type mapCache struct {
	mu      sync.Mutex
	units   map[string]*OriginUnit
	removed []string
}

func newMapCache() *mapCache { return &mapCache{units: map[string]*OriginUnit{}} }

func (c *mapCache) Get(name string) (*OriginUnit, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	u, ok := c.units[name]
	return u, ok
}

func (c *mapCache) Add(name string, unit *OriginUnit) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.units[name] = unit
}

func (c *mapCache) Remove(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.units, name)
	c.removed = append(c.removed, name)
}

// KV is a lifecycle-aware sample service.
type KV struct {
	mu         sync.Mutex
	data       map[string]string
	injectedAs string
	destroyed  int
}

func newKV() *KV { return &KV{data: map[string]string{}} }

func (k *KV) Get(key string) string {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.data[key]
}

func (k *KV) Put(key, value string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.data[key] = value
}

func (k *KV) OnInject(_ *Runtime, attr string) error {
	k.injectedAs = attr
	return nil
}

func (k *KV) OnDestroy() error {
	k.destroyed++
	return nil
}

func testEngine() *vibes.Engine {
	return vibes.MustNewEngine(vibes.Config{})
}

func inline(source string) *descriptor.Descriptor {
	d := descriptor.New()
	d.InlineSource = source
	return d
}

func compileInline(t *testing.T, source string, opts ...Option) *Runtime {
	t.Helper()
	opts = append([]Option{WithDescriptor(inline(source))}, opts...)
	rt, err := NewCompiler(testEngine(), opts...).Compile(context.Background(), "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })
	return rt
}

func capAttr(t *testing.T, rt *Runtime, name string) vibes.Value {
	t.Helper()
	val, ok := rt.Capabilities().Instance().Get(name)
	require.True(t, ok, "capability attribute %s missing", name)
	return val
}
