package vibectx

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/mgomes/vibectx/descriptor"
	"github.com/mgomes/vibectx/registry"
	"github.com/mgomes/vibectx/vibes"
)

// Harness runs many targets of one unit, each against its own freshly
// compiled Runtime.
type Harness struct {
	Engine     *vibes.Engine
	Descriptor *descriptor.Descriptor
	Registry   *registry.Registry
	// Targets to run. When empty they are read from the unit's TESTS.
	Targets []string
	// Concurrency caps the number of workers; zero runs every target at
	// once.
	Concurrency int
	// Options are applied to every compiler the harness creates.
	Options []Option
	Logger  *log.Logger
}

// TestResult is one target's outcome. Err holds a compile or execution
// failure.
type TestResult struct {
	Name     string
	Result   Result
	Err      error
	Duration time.Duration
}

func (r TestResult) Passed() bool { return r.Err == nil }

type Report struct {
	Passed int
	Failed int
}

func (r Report) Total() int { return r.Passed + r.Failed }

func (h *Harness) logger() *log.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return log.New(io.Discard)
}

func (h *Harness) compiler() *Compiler {
	opts := append([]Option{
		WithCapabilityRegistry(h.Registry),
		WithDescriptor(h.Descriptor.Clone()),
		WithLogger(h.logger()),
	}, h.Options...)
	return NewCompiler(h.Engine, opts...)
}

// Discover compiles the unit once and returns the names in its TESTS
// binding.
func (h *Harness) Discover(ctx context.Context) ([]string, error) {
	rt, err := h.compiler().Compile(ctx, "")
	if err != nil {
		return nil, err
	}
	defer rt.Close()
	return rt.Tests()
}

// Run executes every target and calls onResult once per target, in
// completion order, from the calling goroutine.
func (h *Harness) Run(ctx context.Context, onResult func(TestResult)) (Report, error) {
	targets := h.Targets
	if len(targets) == 0 {
		discovered, err := h.Discover(ctx)
		if err != nil {
			return Report{}, fmt.Errorf("vibectx: discover tests: %w", err)
		}
		targets = discovered
	}

	results := make(chan TestResult, len(targets))
	var g errgroup.Group
	if h.Concurrency > 0 {
		g.SetLimit(h.Concurrency)
	}
	go func() {
		for _, name := range targets {
			g.Go(func() error {
				results <- h.runOne(ctx, name)
				return nil
			})
		}
		_ = g.Wait()
		close(results)
	}()

	var report Report
	for res := range results {
		if res.Passed() {
			report.Passed++
		} else {
			report.Failed++
		}
		h.logger().Debug("test finished", "name", res.Name, "passed", res.Passed(), "duration", res.Duration)
		if onResult != nil {
			onResult(res)
		}
	}
	return report, nil
}

func (h *Harness) runOne(ctx context.Context, name string) TestResult {
	start := time.Now()
	res := TestResult{Name: name}
	rt, err := h.compiler().Compile(ctx, "")
	if err != nil {
		res.Err = err
		res.Duration = time.Since(start)
		return res
	}
	defer rt.Close()
	res.Result, res.Err = rt.Execute(ctx, name, ExecOptions{LocalArgs: []string{CapabilityBinding}})
	res.Duration = time.Since(start)
	return res
}
