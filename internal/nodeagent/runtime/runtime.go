// Package runtime implements the node agent's pluggable task-spawn backends:
// a native fork/exec path and an alternate containerd-backed path, selected
// per spec.md §4.5 step 4 ("fork one child per task ... exec argv").
package runtime

import (
	"context"
	"io"
	"syscall"
)

// RlimitSpec names one resource limit propagated into a spawned task, per
// spec.md §4.5 step 3.
type RlimitSpec struct {
	Name string
	Soft uint64
	Hard uint64
}

// TaskSpec fully describes one OS-level process a backend must start.
type TaskSpec struct {
	GlobalID int
	LocalID  int
	Argv     []string
	Env      []string
	Dir      string
	UID      uint32
	GID      uint32
	Rlimits  []RlimitSpec

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Handle is a running task, returned by Backend.Spawn.
type Handle interface {
	Pid() int
	// Signal delivers sig to the task's process group.
	Signal(sig syscall.Signal) error
	// Wait blocks until the task exits and reports its terminal status.
	Wait() (exitCode int, signaled bool, err error)
}

// Backend spawns one task per call. Implementations must not block past
// process creation: Spawn returns as soon as the task is running.
type Backend interface {
	Name() string
	Spawn(ctx context.Context, spec TaskSpec) (Handle, error)
}
