package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// Job states.
const (
	JobQueued    = "queued"
	JobRunning   = "running"
	JobSucceeded = "succeeded"
	JobFailed    = "failed"
)

var ErrJobsClosed = errors.New("jobs: queue is closed")

// JobHandler runs one job of a given name.
type JobHandler func(ctx context.Context, payload map[string]any) error

type job struct {
	id      string
	name    string
	key     string
	payload map[string]any
	status  string
	err     error
	timer   *time.Timer
}

// Jobs is a background job queue capability. Jobs are handled by a fixed
// pool of workers; the handler for each job name is supplied by the host.
type Jobs struct {
	handlers map[string]JobHandler
	logger   *log.Logger

	mu     sync.Mutex
	jobs   map[string]*job
	byKey  map[string]string
	closed bool

	queue  chan *job
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	active sync.WaitGroup
}

func NewJobs(handlers map[string]JobHandler, workers int, logger *log.Logger) *Jobs {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	ctx, cancel := context.WithCancel(context.Background())
	j := &Jobs{
		handlers: handlers,
		logger:   logger,
		jobs:     map[string]*job{},
		byKey:    map[string]string{},
		queue:    make(chan *job, 64),
		ctx:      ctx,
		cancel:   cancel,
	}
	for range workers {
		j.wg.Add(1)
		go j.work()
	}
	return j
}

func (j *Jobs) work() {
	defer j.wg.Done()
	for jb := range j.queue {
		j.run(jb)
		j.active.Done()
	}
}

func (j *Jobs) run(jb *job) {
	j.mu.Lock()
	jb.status = JobRunning
	handler := j.handlers[jb.name]
	j.mu.Unlock()

	var err error
	if handler == nil {
		err = fmt.Errorf("jobs: no handler for %s", jb.name)
	} else {
		err = handler(j.ctx, jb.payload)
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	jb.err = err
	if err != nil {
		jb.status = JobFailed
		j.logger.Warn("job failed", "id", jb.id, "name", jb.name, "err", err)
		return
	}
	jb.status = JobSucceeded
	j.logger.Debug("job finished", "id", jb.id, "name", jb.name)
}

// submit hands jb to the workers, after delay when positive. Callers hold
// j.mu.
func (j *Jobs) submit(jb *job, delay time.Duration) {
	jb.status = JobQueued
	j.active.Add(1)
	if delay <= 0 {
		go func() { j.queue <- jb }()
		return
	}
	jb.timer = time.AfterFunc(delay, func() { j.queue <- jb })
}

// Enqueue schedules name with payload and returns the job id. The delay
// option postpones the job by that many seconds; jobs sharing a key are
// enqueued once and return the first job's id.
func (j *Jobs) Enqueue(ctx context.Context, name string, payload map[string]any, options ...map[string]any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("jobs.enqueue expects a job name")
	}
	if len(options) > 1 {
		return "", fmt.Errorf("jobs.enqueue expects name and payload")
	}
	var (
		delay time.Duration
		key   string
	)
	if len(options) == 1 {
		for k, v := range options[0] {
			switch k {
			case "delay":
				seconds, ok := toSeconds(v)
				if !ok || seconds < 0 {
					return "", fmt.Errorf("jobs.enqueue delay must be a non-negative number")
				}
				delay = time.Duration(seconds * float64(time.Second))
			case "key":
				s, ok := v.(string)
				if !ok || s == "" {
					return "", fmt.Errorf("jobs.enqueue key must be a non-empty string")
				}
				key = s
			default:
				return "", fmt.Errorf("jobs.enqueue unknown option %s", k)
			}
		}
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return "", ErrJobsClosed
	}
	if key != "" {
		if id, ok := j.byKey[key]; ok {
			return id, nil
		}
	}
	jb := &job{id: uuid.NewString(), name: name, key: key, payload: payload}
	j.jobs[jb.id] = jb
	if key != "" {
		j.byKey[key] = jb.id
	}
	j.submit(jb, delay)
	return jb.id, nil
}

func toSeconds(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// Status returns the state of job id.
func (j *Jobs) Status(id string) (string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	jb, ok := j.jobs[id]
	if !ok {
		return "", fmt.Errorf("jobs: unknown job %s", id)
	}
	return jb.status, nil
}

// Retry requeues a failed job under the same id.
func (j *Jobs) Retry(ctx context.Context, id string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return "", ErrJobsClosed
	}
	jb, ok := j.jobs[id]
	if !ok {
		return "", fmt.Errorf("jobs: unknown job %s", id)
	}
	if jb.status != JobFailed {
		return "", fmt.Errorf("jobs: job %s is %s, only failed jobs can be retried", id, jb.status)
	}
	jb.err = nil
	j.submit(jb, 0)
	return jb.id, nil
}

// wait blocks until every submitted job has finished.
func (j *Jobs) wait() { j.active.Wait() }

// Close stops accepting jobs, drops delayed jobs not yet due, lets queued
// ones finish and stops the workers.
func (j *Jobs) Close() error {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return nil
	}
	j.closed = true
	for _, jb := range j.jobs {
		if jb.timer != nil && jb.timer.Stop() {
			jb.status = JobFailed
			jb.err = ErrJobsClosed
			j.active.Done()
		}
	}
	j.mu.Unlock()

	j.active.Wait()
	close(j.queue)
	j.wg.Wait()
	j.cancel()
	return nil
}

func (j *Jobs) MethodDocs() map[string]string {
	return map[string]string{
		"enqueue": "Schedules a job; accepts delay: seconds and key: dedupe key. Returns the job id.",
		"status":  "Returns queued, running, succeeded or failed.",
		"retry":   "Requeues a failed job.",
	}
}
