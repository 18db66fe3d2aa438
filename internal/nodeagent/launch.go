package nodeagent

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/ridgehpc/ridge/internal/credential"
	"github.com/ridgehpc/ridge/internal/domain"
	"github.com/ridgehpc/ridge/internal/log"
	ridgeruntime "github.com/ridgehpc/ridge/internal/nodeagent/runtime"
	"github.com/ridgehpc/ridge/internal/rpcwire"
	"github.com/ridgehpc/ridge/internal/stepshim"
	"golang.org/x/sync/errgroup"
)

// runningStep is the node agent's view of one step it hosts tasks for.
type runningStep struct {
	mu         sync.Mutex
	tasks      map[int]ridgeruntime.Handle
	shim       *stepshim.Shim // non-nil only on the lead node
	shimAddr   string
	lastSIGINT time.Time // zero until the first SIGINT is delivered
}

func toDomainCredential(c *rpcwire.Credential) *domain.Credential {
	return &domain.Credential{
		JobID: c.JobID, StepID: c.StepID, UID: c.UID, GID: c.GID,
		Nodes: c.Nodes, Deadline: c.Deadline.AsTime(), Nonce: c.Nonce, Signature: c.Signature,
	}
}

func toRouteMode(mode string) stepshim.RouteMode {
	switch mode {
	case "none":
		return stepshim.RouteNone
	case "task":
		return stepshim.RouteTask
	case "pattern":
		return stepshim.RoutePattern
	default:
		return stepshim.RouteAll
	}
}

// Launch implements rpcwire.NodeAgentServer.Launch, following spec.md
// §4.5's five-step node-agent launch protocol.
func (a *Agent) Launch(ctx context.Context, req *rpcwire.LaunchRequest) (*rpcwire.LaunchResponse, error) {
	lg := log.WithStepID(req.Spec.JobID, req.Spec.StepID)

	if a.isDraining() {
		return &rpcwire.LaunchResponse{OK: false, Error: "AGENT_DRAINING"}, nil
	}

	cred := toDomainCredential(req.Credential)
	if err := credential.Verify(a.cfg.Signer, cred, a.cfg.NodeName, time.Now()); err != nil {
		lg.Warn().Err(err).Msg("rejected launch: invalid credential")
		return &rpcwire.LaunchResponse{OK: false, Error: "INVALID_CRED"}, nil
	}

	id := credential.ID(cred)
	if err := a.seen.CheckAndMark(id, cred.Deadline, time.Now()); err != nil {
		lg.Warn().Msg("rejected launch: already launched")
		return &rpcwire.LaunchResponse{OK: false, Error: "ALREADY_LAUNCHED"}, nil
	}

	key := stepKey{jobID: req.Spec.JobID, stepID: req.Spec.StepID}
	step := a.getOrCreateStep(key)

	shimAddr := req.ShimAddr
	if req.IsLead {
		addr, err := a.startShim(req)
		if err != nil {
			return &rpcwire.LaunchResponse{OK: false, Error: err.Error()}, nil
		}
		step.mu.Lock()
		step.shimAddr = addr
		step.mu.Unlock()
		shimAddr = addr
	}

	pids, err := a.spawnTasks(ctx, req, step, shimAddr)
	if err != nil {
		lg.Error().Err(err).Msg("launch failed")
		return &rpcwire.LaunchResponse{OK: false, Error: err.Error()}, nil
	}

	return &rpcwire.LaunchResponse{OK: true, Pids: pids, ShimAddr: shimAddr}, nil
}

func (a *Agent) startShim(req *rpcwire.LaunchRequest) (string, error) {
	spec := req.Spec
	routing := stepshim.Routing{
		Mode:      toRouteMode(spec.IOMode),
		TaskID:    spec.IOTaskID,
		Pattern:   spec.IOPattern,
		JobID:     spec.JobID,
		StepID:    spec.StepID,
		NodeNames: spec.NodeNames,
	}
	shim := stepshim.NewShim(spec.JobID, spec.StepID, spec.TaskCount, routing)
	addr, err := shim.Listen(net.JoinHostPort(a.cfg.ShimBindHost, "0"))
	if err != nil {
		return "", fmt.Errorf("start step shim: %w", err)
	}

	key := stepKey{jobID: spec.JobID, stepID: spec.StepID}
	step := a.getOrCreateStep(key)
	step.mu.Lock()
	step.shim = shim
	step.mu.Unlock()
	return addr, nil
}

// spawnTasks forks one child per task this node owns, per spec.md §4.5
// step 4, and starts a background exit-watcher per task.
func (a *Agent) spawnTasks(ctx context.Context, req *rpcwire.LaunchRequest, step *runningStep, shimAddr string) ([]int32, error) {
	spec := req.Spec
	pids := make([]int32, len(req.GlobalTaskIDs))

	g, gctx := errgroup.WithContext(ctx)
	for i, globalID := range req.GlobalTaskIDs {
		i, globalID := i, globalID
		localID := i
		g.Go(func() error {
			env := buildTaskEnv(spec, globalID, localID, req.NodeIndex)

			stdout, _ := dialShimStream(shimAddr, globalID, req.NodeIndex, "stdout")
			stderr, _ := dialShimStream(shimAddr, globalID, req.NodeIndex, "stderr")
			stdin, _ := dialShimStream(shimAddr, globalID, req.NodeIndex, "stdin")

			taskSpec := ridgeruntime.TaskSpec{
				GlobalID: globalID,
				LocalID:  localID,
				Argv:     spec.Argv,
				Env:      append(append([]string(nil), spec.Envp...), env...),
				Dir:      spec.Cwd,
				UID:      spec.UID,
				GID:      spec.GID,
				Rlimits:  toRuntimeRlimits(spec.Rlimits),
				Stdin:    stdin,
				Stdout:   stdout,
				Stderr:   stderr,
			}

			handle, err := a.cfg.Backend.Spawn(gctx, taskSpec)
			if err != nil {
				return fmt.Errorf("spawn task %d: %w", globalID, err)
			}

			step.mu.Lock()
			step.tasks[globalID] = handle
			step.mu.Unlock()

			pids[i] = int32(handle.Pid())
			go a.watchTaskExit(spec.JobID, spec.StepID, globalID, handle)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return pids, nil
}

func toRuntimeRlimits(specs []rpcwire.RlimitSpec) []ridgeruntime.RlimitSpec {
	out := make([]ridgeruntime.RlimitSpec, len(specs))
	for i, s := range specs {
		out[i] = ridgeruntime.RlimitSpec{Name: s.Name, Soft: s.Soft, Hard: s.Hard}
	}
	return out
}

// buildTaskEnv sets the environment variables named in spec.md §6, "names
// preserved for application compatibility".
func buildTaskEnv(spec *rpcwire.StepSpec, globalID, localID, nodeIdx int) []string {
	cpusPerNode := "0"
	if nodeIdx < len(spec.CPUsPerNode) {
		cpusPerNode = fmt.Sprint(spec.CPUsPerNode[nodeIdx])
	}
	distribution := spec.Distribution
	if distribution == "" {
		distribution = "block"
	}
	return []string{
		fmt.Sprintf("JOB_ID=%d", spec.JobID),
		fmt.Sprintf("JOB_STEP_ID=%d", spec.StepID),
		fmt.Sprintf("JOB_NUM_NODES=%d", len(spec.TasksPerNode)),
		"JOB_NODELIST=" + strings.Join(spec.NodeNames, ","),
		"JOB_CPUS_PER_NODE=" + cpusPerNode,
		fmt.Sprintf("STEP_NUM_TASKS=%d", spec.TaskCount),
		fmt.Sprintf("PROCID=%d", globalID),
		fmt.Sprintf("LOCALID=%d", localID),
		fmt.Sprintf("NODEID=%d", nodeIdx),
		fmt.Sprintf("NPROCS=%d", spec.TaskCount),
		"DISTRIBUTION=" + distribution,
		"CPU_BIND=" + spec.CPUBind,
		"MEM_BIND=" + spec.MemBind,
		fmt.Sprintf("PMI_RANK=%d", globalID),
		fmt.Sprintf("PMI_SIZE=%d", spec.TaskCount),
		"PMI_SPAWNED=0",
	}
}

// dialShimStream opens one of a task's three stdio connections to the step
// shim, sending the "IO <taskId> <stream> <nodeIndex>" handshake the
// shim's ioRouter expects.
func dialShimStream(shimAddr string, taskID, nodeIdx int, stream string) (net.Conn, error) {
	conn, err := net.Dial("tcp", shimAddr)
	if err != nil {
		return nil, err
	}
	handshake := fmt.Sprintf("IO %d %s %d\n", taskID, stream, nodeIdx)
	if _, err := conn.Write([]byte(handshake)); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

func (a *Agent) watchTaskExit(jobID uint64, stepID uint32, globalID int, handle ridgeruntime.Handle) {
	exitCode, signaled, err := handle.Wait()
	if err != nil {
		log.WithStepID(jobID, stepID).Warn().Err(err).Int("task", globalID).Msg("task wait failed")
	}

	key := stepKey{jobID: jobID, stepID: stepID}
	step, ok := a.lookupStep(key)
	if !ok {
		return
	}
	step.mu.Lock()
	delete(step.tasks, globalID)
	remaining := len(step.tasks)
	step.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, reportErr := a.ctrl.ReportTaskExit(ctx, &rpcwire.ReportTaskExitRequest{
		JobID: jobID, StepID: stepID,
		Tasks: []rpcwire.TaskExit{{GlobalID: globalID, ExitCode: int32(exitCode), Signaled: signaled}},
	})
	if reportErr != nil {
		log.WithStepID(jobID, stepID).Error().Err(reportErr).Msg("failed to report task exit")
	}

	if remaining == 0 {
		step.mu.Lock()
		shim := step.shim
		step.mu.Unlock()
		if shim != nil {
			shim.Finalize()
		}
		a.dropStep(key)
	}
}
