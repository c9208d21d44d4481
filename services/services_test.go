package services

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mgomes/vibectx/descriptor"
	"github.com/mgomes/vibectx/store"
	"github.com/mgomes/vibectx/vibectx"
	"github.com/mgomes/vibectx/vibes"
)

func compileWith(t *testing.T, source string, inject map[string]any) *vibectx.Runtime {
	t.Helper()
	d := descriptor.New()
	d.InlineSource = source
	c := vibectx.NewCompiler(vibes.MustNewEngine(vibes.Config{}), vibectx.WithDescriptor(d))
	for name, svc := range inject {
		require.NoError(t, c.Inject(name, svc))
	}
	rt, err := c.Compile(context.Background(), "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })
	return rt
}

func TestKV(t *testing.T) {
	ctx := context.Background()
	backend := store.NewMemoryStore()
	kv := NewKV(backend, "")

	val, err := kv.Get(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, val)

	require.NoError(t, kv.Set(ctx, "user", map[string]any{"name": "ada", "age": 36}))
	val, err = kv.Get(ctx, "user")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "ada", "age": int64(36)}, val)

	raw, err := backend.Get(ctx, "kv/user")
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"ada","age":36}`, string(raw))

	keys, err := kv.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"user"}, keys)

	existed, err := kv.Delete(ctx, "user")
	require.NoError(t, err)
	assert.True(t, existed)
	existed, err = kv.Delete(ctx, "user")
	require.NoError(t, err)
	assert.False(t, existed)

	assert.Error(t, kv.Set(ctx, " ", 1))
}

func TestKVFromScript(t *testing.T) {
	rt := compileWith(t, `class Capabilities
  property kv: KV
end

def remember(caps)
  caps.kv.set("count", 41)
  caps.kv.get("count") + 1
end`, map[string]any{"kv": NewKV(nil, "")})

	res, err := rt.Execute(context.Background(), "remember", vibectx.ExecOptions{LocalArgs: []string{vibectx.CapabilityBinding}})
	require.NoError(t, err)
	assert.Equal(t, int64(42), res.Value.Int())
	assert.Empty(t, res.Descriptor.Properties, "services are not persisted")

	text, err := rt.Prompter().ImportedAttrsPrompt(context.Background())
	require.NoError(t, err)
	assert.Contains(t, text, "Capabilities.kv: KV")
	assert.Contains(t, text, "  # Stores a data value under key.\n  def set(arg1: string, arg2: any)")
}

func TestEvents(t *testing.T) {
	var seen []Event
	events := NewEvents(func(ev Event) { seen = append(seen, ev) })
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	events.now = func() time.Time { return fixed }

	rt := compileWith(t, `class Capabilities
  property events: Events
end

def notify(caps)
  caps.events.publish("user.created", {id: 7}, priority: "high")
  caps.events.publish("user.deleted", {id: 8})
  caps.events.published("user.created").length
end`, map[string]any{"events": events})

	res, err := rt.Execute(context.Background(), "notify", vibectx.ExecOptions{LocalArgs: []string{vibectx.CapabilityBinding}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Value.Int())

	require.Len(t, seen, 2)
	first := seen[0]
	assert.Equal(t, "user.created", first.Topic)
	assert.Equal(t, rt.Name()+".events", first.Source)
	assert.Equal(t, fixed, first.At)
	assert.Equal(t, int64(7), first.Payload["id"])
	assert.Equal(t, map[string]any{"priority": "high"}, first.Payload["options"])
	assert.NotEmpty(t, first.ID)
	assert.Len(t, events.Published(""), 2)

	_, err = events.Publish(context.Background(), " ", nil)
	assert.Error(t, err)

	require.NoError(t, rt.Close())
	assert.Empty(t, events.source)
}

func TestJobs(t *testing.T) {
	var runs atomic.Int32
	var flaky atomic.Bool
	flaky.Store(true)
	jobs := NewJobs(map[string]JobHandler{
		"count": func(ctx context.Context, payload map[string]any) error {
			runs.Add(1)
			return nil
		},
		"flaky": func(ctx context.Context, payload map[string]any) error {
			if flaky.Load() {
				return errors.New("not yet")
			}
			return nil
		},
	}, 2, nil)
	ctx := context.Background()

	for range 3 {
		_, err := jobs.Enqueue(ctx, "count", map[string]any{"n": 1})
		require.NoError(t, err)
	}
	first, err := jobs.Enqueue(ctx, "count", nil, map[string]any{"key": "once"})
	require.NoError(t, err)
	again, err := jobs.Enqueue(ctx, "count", nil, map[string]any{"key": "once"})
	require.NoError(t, err)
	assert.Equal(t, first, again)

	failing, err := jobs.Enqueue(ctx, "flaky", nil)
	require.NoError(t, err)
	missing, err := jobs.Enqueue(ctx, "nobody", nil)
	require.NoError(t, err)
	jobs.wait()

	assert.Equal(t, int32(4), runs.Load())
	status, err := jobs.Status(failing)
	require.NoError(t, err)
	assert.Equal(t, JobFailed, status)
	status, _ = jobs.Status(missing)
	assert.Equal(t, JobFailed, status)

	_, err = jobs.Retry(ctx, first)
	assert.ErrorContains(t, err, "only failed jobs")

	flaky.Store(false)
	id, err := jobs.Retry(ctx, failing)
	require.NoError(t, err)
	assert.Equal(t, failing, id)
	jobs.wait()
	status, _ = jobs.Status(failing)
	assert.Equal(t, JobSucceeded, status)

	_, err = jobs.Enqueue(ctx, "count", nil, map[string]any{"delay": int64(-1)})
	assert.Error(t, err)
	_, err = jobs.Enqueue(ctx, "count", nil, map[string]any{"when": "now"})
	assert.ErrorContains(t, err, "unknown option")

	delayed, err := jobs.Enqueue(ctx, "count", nil, map[string]any{"delay": int64(3600)})
	require.NoError(t, err)
	require.NoError(t, jobs.Close())
	status, _ = jobs.Status(delayed)
	assert.Equal(t, JobFailed, status)
	_, err = jobs.Enqueue(ctx, "count", nil)
	assert.ErrorIs(t, err, ErrJobsClosed)
	require.NoError(t, jobs.Close())
}

func TestShell(t *testing.T) {
	sh := NewShell(t.TempDir())
	ctx := context.Background()

	res, err := sh.Run(ctx, "echo hi\necho oops >&2\nexit 3")
	require.NoError(t, err)
	assert.Equal(t, ShellResult{Stdout: "hi\n", Stderr: "oops\n", ExitCode: 3}, res)

	res, err = sh.Run(ctx, `echo "$1-$2"`, "a", "-b")
	require.NoError(t, err)
	assert.Equal(t, "a--b\n", res.Stdout)

	res, err = sh.Run(ctx, "definitely-not-allowed --flag")
	require.NoError(t, err)
	assert.Equal(t, 127, res.ExitCode)
	assert.Contains(t, res.Stderr, "command not allowed")

	_, err = sh.Run(ctx, "if then fi (")
	assert.ErrorContains(t, err, "parse")
	assert.Error(t, sh.Check("echo ("))
	assert.NoError(t, sh.Check("echo ok"))
}

func TestShellFromScript(t *testing.T) {
	rt := compileWith(t, `class Capabilities
  property shell: Shell
end

def greet(caps)
  result = caps.shell.run("echo hello")
  result["stdout"].strip
end`, map[string]any{"shell": NewShell(t.TempDir())})

	res, err := rt.Execute(context.Background(), "greet", vibectx.ExecOptions{LocalArgs: []string{vibectx.CapabilityBinding}})
	require.NoError(t, err)
	assert.Equal(t, "hello", res.Value.String())
}

func init() {
	sql.Register("services-fake", fakeDriver{})
}

type fakeDriver struct{}

func (fakeDriver) Open(string) (driver.Conn, error) { return fakeConn{}, nil }

type fakeConn struct{}

func (fakeConn) Prepare(query string) (driver.Stmt, error) { return fakeStmt{}, nil }
func (fakeConn) Close() error                              { return nil }
func (fakeConn) Begin() (driver.Tx, error)                 { return nil, errors.New("no transactions") }

type fakeStmt struct{}

func (fakeStmt) Close() error  { return nil }
func (fakeStmt) NumInput() int { return -1 }
func (fakeStmt) Exec(args []driver.Value) (driver.Result, error) {
	return driver.RowsAffected(len(args)), nil
}

func (fakeStmt) Query(args []driver.Value) (driver.Rows, error) {
	return &fakeRows{data: [][]driver.Value{
		{int64(1), []byte("ada")},
		{int64(2), []byte("bob")},
	}}, nil
}

type fakeRows struct {
	data [][]driver.Value
	next int
}

func (r *fakeRows) Columns() []string { return []string{"id", "name"} }
func (r *fakeRows) Close() error      { return nil }
func (r *fakeRows) Next(dest []driver.Value) error {
	if r.next >= len(r.data) {
		return io.EOF
	}
	copy(dest, r.data[r.next])
	r.next++
	return nil
}

func TestSQL(t *testing.T) {
	db, err := sql.Open("services-fake", "")
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()

	s := NewSQL(db)
	rows, err := s.Query(ctx, "SELECT id, name FROM users")
	require.NoError(t, err)
	assert.Equal(t, []map[string]any{
		{"id": int64(1), "name": "ada"},
		{"id": int64(2), "name": "bob"},
	}, rows)

	row, err := s.QueryOne(ctx, "SELECT id, name FROM users WHERE id = $1", 1)
	require.NoError(t, err)
	assert.Equal(t, "ada", row["name"])

	n, err := s.Exec(ctx, "UPDATE users SET name = $1 WHERE id = $2", "eve", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = NewSQL(db, MaxRows(1)).Query(ctx, "SELECT id, name FROM users")
	assert.ErrorContains(t, err, "more than 1 rows")

	_, err = NewSQL(db, ReadOnly()).Exec(ctx, "DELETE FROM users")
	assert.ErrorContains(t, err, "read-only")
	require.NoError(t, s.Close())
}
