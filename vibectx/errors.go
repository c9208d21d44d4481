package vibectx

import (
	"context"
	"errors"

	"github.com/mgomes/vibectx/vibes"
)

// Configuration errors. These are fatal to the calling turn.
var (
	ErrCompilerReused         = errors.New("vibectx: compiler already used")
	ErrRecursiveCompile       = errors.New("vibectx: compile re-entered while compiling")
	ErrUnresolvableCapability = errors.New("vibectx: capability cannot be resolved")
	ErrCompilerClosed         = errors.New("vibectx: compiler is closed")
)

// Generator errors. These describe a problem with generated code and are
// meant to be reported back to the generator.
var (
	ErrTargetMissing = errors.New("vibectx: target not found")
	ErrNotCallable   = errors.New("vibectx: target is not callable")
)

var (
	ErrReentrantExecute = errors.New("vibectx: execute already in progress")
	ErrRuntimeClosed    = errors.New("vibectx: runtime is closed")
	ErrNotSavable       = errors.New("vibectx: unit has no origin to save to")
)

// IsGeneratorError reports whether err should be surfaced to the
// generator as feedback rather than treated as a host failure.
func IsGeneratorError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrTargetMissing) || errors.Is(err, ErrNotCallable) {
		return true
	}
	if vibes.IsSyntaxError(err) {
		return true
	}
	var rerr *vibes.RuntimeError
	return errors.As(err, &rerr)
}
