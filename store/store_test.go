package store

import (
	"context"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mgomes/vibectx/descriptor"
	"github.com/mgomes/vibectx/vibectx"
	"github.com/mgomes/vibectx/vibes"
)

func exerciseBackend(t *testing.T, b Backend) {
	t.Helper()
	ctx := context.Background()

	_, err := b.Get(ctx, "units/missing.vibe")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, err, fs.ErrNotExist)

	require.NoError(t, b.Put(ctx, "units/a.vibe", []byte("a = 1")))
	require.NoError(t, b.Put(ctx, "/units/nested/b.vibe", []byte("b = 2")))
	require.NoError(t, b.Put(ctx, "descriptors/x.json", []byte("{}")))

	got, err := b.Get(ctx, "units/a.vibe")
	require.NoError(t, err)
	assert.Equal(t, "a = 1", string(got))

	require.NoError(t, b.Put(ctx, "units/a.vibe", []byte("a = 3")))
	got, err = b.Get(ctx, "units/a.vibe")
	require.NoError(t, err)
	assert.Equal(t, "a = 3", string(got))

	keys, err := b.List(ctx, "units")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.vibe", "nested/b.vibe"}, keys)

	all, err := b.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	require.NoError(t, b.Delete(ctx, "units/a.vibe"))
	assert.ErrorIs(t, b.Delete(ctx, "units/a.vibe"), ErrNotFound)

	assert.Error(t, b.Put(ctx, "", nil))
	assert.Error(t, b.Put(ctx, "units/../escape", nil))
	require.NoError(t, b.Close())
}

func TestMemoryStore(t *testing.T) {
	exerciseBackend(t, NewMemoryStore())
}

func TestFileStore(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	exerciseBackend(t, s)

	_, err = NewFileStore(" ")
	assert.Error(t, err)
}

func TestMemoryStoreCopiesContent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	content := []byte("abc")
	require.NoError(t, s.Put(ctx, "k", content))
	content[0] = 'x'
	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	b, err := Open(ctx, Config{})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, b)

	b, err = Open(ctx, Config{Kind: "FILE", Dir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, b)

	_, err = Open(ctx, Config{Kind: KindS3})
	assert.ErrorContains(t, err, "endpoint is required")

	_, err = Open(ctx, Config{Kind: "tape"})
	assert.ErrorContains(t, err, "unknown backend")
}

func TestNewS3StoreValidatesConfig(t *testing.T) {
	_, err := NewS3Store(S3Config{Endpoint: "localhost:9000", Bucket: "units"})
	assert.ErrorContains(t, err, "access key")

	_, err = NewS3Store(S3Config{Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "b"})
	assert.ErrorContains(t, err, "bucket is required")

	s, err := NewS3Store(S3Config{Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "b", Bucket: "units", Prefix: "/team/"})
	require.NoError(t, err)
	assert.Equal(t, "us-east-1", s.region)
	key, err := s.objectKey("units/a.vibe")
	require.NoError(t, err)
	assert.Equal(t, "team/units/a.vibe", key)
}

func TestUnits(t *testing.T) {
	ctx := context.Background()
	u := NewUnits(NewMemoryStore())

	_, err := u.LoadUnit(ctx, "base")
	assert.ErrorIs(t, err, fs.ErrNotExist)

	require.NoError(t, u.SaveUnit(ctx, "base", "def f\n  1\nend\n"))
	require.NoError(t, u.SaveUnit(ctx, "tools/http.vibe", "x = 1\n"))
	src, err := u.LoadUnit(ctx, "base.vibe")
	require.NoError(t, err)
	assert.Equal(t, "def f\n  1\nend\n", src)

	names, err := u.ListUnits(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"base", "tools/http"}, names)

	d := descriptor.New()
	d.OriginRef = "base"
	d.Executed = true
	require.NoError(t, u.SaveDescriptor(ctx, "turn-1", d))
	loaded, err := u.LoadDescriptor(ctx, "turn-1")
	require.NoError(t, err)
	assert.Equal(t, "base", loaded.OriginRef)
	assert.True(t, loaded.Executed)

	require.NoError(t, u.DeleteUnit(ctx, "base"))
	_, err = u.LoadUnit(ctx, "base")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOriginCacheEvicts(t *testing.T) {
	c, err := NewOriginCache(2)
	require.NoError(t, err)
	c.Add("a", &vibectx.OriginUnit{Name: "a"})
	c.Add("b", &vibectx.OriginUnit{Name: "b"})
	c.Add("c", &vibectx.OriginUnit{Name: "c"})

	_, ok := c.Get("a")
	assert.False(t, ok)
	got, ok := c.Get("c")
	require.True(t, ok)
	assert.Equal(t, "c", got.Name)

	c.Remove("c")
	assert.Equal(t, 1, c.Len())
	c.Purge()
	assert.Equal(t, 0, c.Len())
}

func TestCompileFromStoredUnits(t *testing.T) {
	ctx := context.Background()
	units := NewUnits(NewMemoryStore())
	require.NoError(t, units.SaveUnit(ctx, "helpers", "def twice(n)\n  n * 2\nend\n"))
	require.NoError(t, units.SaveUnit(ctx, "base", "require \"helpers\"\n\ndef run\n  twice(21)\nend\n"))
	cache, err := NewOriginCache(0)
	require.NoError(t, err)

	engine := vibes.MustNewEngine(vibes.Config{})
	rt, err := vibectx.NewCompiler(engine, vibectx.WithUnits(units), vibectx.WithOriginCache(cache)).Compile(ctx, "base")
	require.NoError(t, err)
	defer rt.Close()

	res, err := rt.Execute(ctx, "run", vibectx.ExecOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(42), res.Value.Int())
	assert.Equal(t, 2, cache.Len())
}
