package nodeagent

import (
	"context"
	"syscall"
	"time"

	"github.com/ridgehpc/ridge/internal/log"
	ridgeruntime "github.com/ridgehpc/ridge/internal/nodeagent/runtime"
	"github.com/ridgehpc/ridge/internal/rpcwire"
)

// terminateGrace is how long Terminate waits between SIGTERM and SIGKILL,
// per spec.md §4.5.
const terminateGrace = 30 * time.Second

// sigintEscalateWindow is how close together two SIGINTs delivered to the
// same step must land to escalate straight to Terminate, per spec.md §4.7's
// double-interrupt behavior.
const sigintEscalateWindow = 1 * time.Second

// Signal implements rpcwire.NodeAgentServer.Signal: deliver signo to every
// task process belonging to the named step. A second SIGINT arriving within
// sigintEscalateWindow of the first escalates to Terminate instead of being
// forwarded again, matching the interactive double-interrupt convention.
func (a *Agent) Signal(ctx context.Context, req *rpcwire.SignalStepRequest) (*rpcwire.OKResponse, error) {
	key := stepKey{jobID: req.JobID, stepID: req.StepID}
	step, ok := a.lookupStep(key)
	if !ok {
		return &rpcwire.OKResponse{OK: true}, nil
	}

	if syscall.Signal(req.Signo) == syscall.SIGINT {
		now := time.Now()
		step.mu.Lock()
		escalate := !step.lastSIGINT.IsZero() && now.Sub(step.lastSIGINT) <= sigintEscalateWindow
		step.lastSIGINT = now
		step.mu.Unlock()
		if escalate {
			return a.Terminate(ctx, &rpcwire.TerminateStepRequest{JobID: req.JobID, StepID: req.StepID})
		}
	}

	step.mu.Lock()
	handles := make([]ridgeruntime.Handle, 0, len(step.tasks))
	for _, h := range step.tasks {
		handles = append(handles, h)
	}
	step.mu.Unlock()

	for _, h := range handles {
		_ = h.Signal(syscall.Signal(req.Signo))
	}
	return &rpcwire.OKResponse{OK: true}, nil
}

// Terminate implements rpcwire.NodeAgentServer.Terminate: SIGTERM, grace
// wait, SIGKILL, per spec.md §4.5's termination sequence.
func (a *Agent) Terminate(ctx context.Context, req *rpcwire.TerminateStepRequest) (*rpcwire.OKResponse, error) {
	key := stepKey{jobID: req.JobID, stepID: req.StepID}
	step, ok := a.lookupStep(key)
	if !ok {
		return &rpcwire.OKResponse{OK: true}, nil
	}

	lg := log.WithStepID(req.JobID, req.StepID)

	step.mu.Lock()
	pending := len(step.tasks)
	for _, h := range step.tasks {
		_ = h.Signal(syscall.SIGTERM)
	}
	step.mu.Unlock()
	if pending == 0 {
		return &rpcwire.OKResponse{OK: true}, nil
	}

	go func() {
		time.Sleep(terminateGrace)
		step.mu.Lock()
		remaining := step.tasks
		step.mu.Unlock()
		if len(remaining) == 0 {
			return
		}
		lg.Warn().Int("remaining", len(remaining)).Msg("escalating to SIGKILL after grace period")
		for _, h := range remaining {
			_ = h.Signal(syscall.SIGKILL)
		}
	}()

	return &rpcwire.OKResponse{OK: true}, nil
}
