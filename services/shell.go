package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"
)

// ShellResult is what one snippet produced.
type ShellResult struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exit_code"`
}

// Shell interprets POSIX shell snippets in process. Shell builtins always
// work; external programs run only when listed in Allow.
type Shell struct {
	Dir     string
	Env     []string
	Allow   []string
	Timeout time.Duration
}

func NewShell(dir string, allow ...string) *Shell {
	return &Shell{Dir: dir, Allow: allow, Timeout: 30 * time.Second}
}

// Run interprets script. A non-zero exit status is reported in the result,
// not as an error.
func (s *Shell) Run(ctx context.Context, script string, args ...string) (ShellResult, error) {
	prog, err := syntax.NewParser().Parse(strings.NewReader(script), "script")
	if err != nil {
		return ShellResult{}, fmt.Errorf("shell: parse: %w", err)
	}

	dir := s.Dir
	if dir == "" {
		if dir, err = os.Getwd(); err != nil {
			return ShellResult{}, err
		}
	}
	var stdout, stderr bytes.Buffer
	opts := []interp.RunnerOption{
		interp.Dir(dir),
		interp.Env(expand.ListEnviron(s.Env...)),
		interp.StdIO(nil, &stdout, &stderr),
		interp.ExecHandlers(s.execHandler),
	}
	if len(args) > 0 {
		opts = append(opts, interp.Params(append([]string{"--"}, args...)...))
	}
	runner, err := interp.New(opts...)
	if err != nil {
		return ShellResult{}, fmt.Errorf("shell: %w", err)
	}

	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}
	var result ShellResult
	if err := runner.Run(ctx, prog); err != nil {
		var status interp.ExitStatus
		if !errors.As(err, &status) {
			return ShellResult{Stdout: stdout.String(), Stderr: stderr.String(), ExitCode: 1}, fmt.Errorf("shell: %w", err)
		}
		result.ExitCode = int(status)
	}
	result.Stdout = stdout.String()
	result.Stderr = stderr.String()
	return result, nil
}

// Check parses script without running it.
func (s *Shell) Check(script string) error {
	_, err := syntax.NewParser().Parse(strings.NewReader(script), "script")
	return err
}

func (s *Shell) execHandler(next interp.ExecHandlerFunc) interp.ExecHandlerFunc {
	return func(ctx context.Context, args []string) error {
		if len(args) > 0 && !slices.Contains(s.Allow, args[0]) {
			hc := interp.HandlerCtx(ctx)
			fmt.Fprintf(hc.Stderr, "%s: command not allowed\n", args[0])
			return interp.ExitStatus(127)
		}
		return next(ctx, args)
	}
}

func (s *Shell) MethodDocs() map[string]string {
	return map[string]string{
		"run":   "Runs a shell snippet; returns stdout, stderr and exit_code.",
		"check": "Parses a snippet and raises on syntax errors.",
	}
}
