package controller

import (
	"context"
	"crypto/tls"
	"fmt"
	"sync"
	"time"

	"github.com/ridgehpc/ridge/internal/domain"
	"github.com/ridgehpc/ridge/internal/events"
	"github.com/ridgehpc/ridge/internal/metrics"
	"github.com/ridgehpc/ridge/internal/rpcwire"
	"github.com/ridgehpc/ridge/internal/security"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
)

// agentPool caches gRPC connections to node agents, dialed lazily and kept
// for the controller's lifetime, secured with the cluster's internal mTLS
// material per spec.md §7's ambient security stack.
type agentPool struct {
	mu    sync.Mutex
	conns map[string]*grpc.ClientConn
	cert  *tls.Certificate
	root  []byte
}

func newAgentPool(cert *tls.Certificate, rootDER []byte) *agentPool {
	return &agentPool{conns: make(map[string]*grpc.ClientConn), cert: cert, root: rootDER}
}

func (p *agentPool) client(addr string) (*rpcwire.NodeAgentClient, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	conn, ok := p.conns[addr]
	if !ok {
		tlsCfg, err := security.ClientTLSConfig(p.cert, p.root, "")
		if err != nil {
			return nil, fmt.Errorf("build client tls config: %w", err)
		}
		conn, err = grpc.NewClient(addr, grpc.WithTransportCredentials(credentials.NewTLS(tlsCfg)))
		if err != nil {
			return nil, fmt.Errorf("dial node agent %s: %w", addr, err)
		}
		p.conns[addr] = conn
	}
	return rpcwire.NewNodeAgentClient(conn), nil
}

// globalTaskIDs computes, for each node in tasksPerNode order, the
// contiguous slice of global task ids that node must spawn, per spec.md
// §4.3's "global task id" / "per-task node assignment" fields.
func globalTaskIDs(tasksPerNode []int) [][]int {
	out := make([][]int, len(tasksPerNode))
	next := 0
	for i, n := range tasksPerNode {
		ids := make([]int, n)
		for j := 0; j < n; j++ {
			ids[j] = next
			next++
		}
		out[i] = ids
	}
	return out
}

// launchStepOnNodes fans the step's launch out to every node in its
// allocation, per spec.md §4.5: a step transitions to FAILED if any
// required node fails to confirm within launch_timeout, and the controller
// broadcasts a terminate to nodes that did confirm.
//
// The first node in the allocation is the step's "lead" node (spec.md §2):
// it is dispatched first so its node agent can stand up the step shim and
// hand back the shim's I/O/PMI listen address, which is then threaded into
// every other node's launch request so their tasks can dial the same shim.
func (c *Controller) launchStepOnNodes(job *domain.Job, step *domain.Step, nodeAddrs []string, spec *rpcwire.StepSpec, cred *rpcwire.Credential) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.LaunchFanoutDuration)

	timeout := c.cfg.LaunchTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if len(nodeAddrs) == 0 {
		return fmt.Errorf("step has no allocated nodes")
	}
	taskIDs := globalTaskIDs(step.TasksPerNode)

	dispatch := func(nodeIdx int, isLead bool, shimAddr string) (*rpcwire.LaunchResponse, error) {
		cl, err := c.agents.client(nodeAddrs[nodeIdx])
		if err != nil {
			return nil, err
		}
		var gids []int
		if nodeIdx < len(taskIDs) {
			gids = taskIDs[nodeIdx]
		}
		return cl.Launch(ctx, &rpcwire.LaunchRequest{
			Spec: spec, Credential: cred,
			NodeIndex: nodeIdx, IsLead: isLead, ShimAddr: shimAddr, GlobalTaskIDs: gids,
		})
	}

	leadResp, err := dispatch(0, true, "")
	if err == nil && !leadResp.OK {
		err = fmt.Errorf("%s", leadResp.Error)
	}
	if err != nil {
		step.State = domain.StepFailed
		step.FailReason = err.Error()
		c.applyStep(opUpdateStep, step)
		c.publish(events.StepEnded, "step launch failed on lead node", map[string]string{
			"job_id": fmt.Sprint(job.ID), "step_id": fmt.Sprint(step.StepID),
		})
		metrics.LaunchRejectedTotal.WithLabelValues("lead_launch_error").Inc()
		return err
	}
	shimAddr := leadResp.ShimAddr

	rest := nodeAddrs[1:]
	var mu sync.Mutex
	confirmed := []string{nodeAddrs[0]}
	var firstErr error

	var g errgroup.Group
	for i := range rest {
		nodeIdx := i + 1
		addr := nodeAddrs[nodeIdx]
		g.Go(func() error {
			resp, err := dispatch(nodeIdx, false, shimAddr)
			if err == nil && !resp.OK {
				err = fmt.Errorf("%s", resp.Error)
			}
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				metrics.LaunchRejectedTotal.WithLabelValues("launch_error").Inc()
				return nil
			}
			confirmed = append(confirmed, addr)
			return nil
		})
	}
	_ = g.Wait()

	if firstErr != nil {
		c.broadcastTerminate(confirmed, job.ID, step.StepID)
		step.State = domain.StepFailed
		step.FailReason = firstErr.Error()
		c.applyStep(opUpdateStep, step)
		c.publish(events.StepEnded, "step launch failed", map[string]string{
			"job_id": fmt.Sprint(job.ID), "step_id": fmt.Sprint(step.StepID),
		})
		return firstErr
	}

	step.State = domain.StepRunning
	step.LaunchedAt = time.Now()
	c.applyStep(opUpdateStep, step)
	c.publish(events.StepRunning, "step launched", map[string]string{
		"job_id": fmt.Sprint(job.ID), "step_id": fmt.Sprint(step.StepID),
	})
	return nil
}

func (c *Controller) broadcastTerminate(nodeAddrs []string, jobID uint64, stepID uint32) {
	for _, addr := range nodeAddrs {
		addr := addr
		go func() {
			cl, err := c.agents.client(addr)
			if err != nil {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_, _ = cl.Terminate(ctx, &rpcwire.TerminateStepRequest{JobID: jobID, StepID: stepID})
		}()
	}
}

func (c *Controller) signalStep(nodeAddrs []string, jobID uint64, stepID uint32, signo int32) {
	for _, addr := range nodeAddrs {
		addr := addr
		go func() {
			cl, err := c.agents.client(addr)
			if err != nil {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_, _ = cl.Signal(ctx, &rpcwire.SignalStepRequest{JobID: jobID, StepID: stepID, Signo: signo})
		}()
	}
}

// terminateJobSteps dispatches TerminateStep to every node holding a
// running step of job, used by the deadline sweeper on TIMEOUT.
func (c *Controller) terminateJobSteps(job *domain.Job) {
	steps, err := c.store.ListSteps(job.ID)
	if err != nil {
		return
	}
	addrs := c.nodeAddresses(job)
	for _, step := range steps {
		if step.State != domain.StepRunning && step.State != domain.StepStarting {
			continue
		}
		c.broadcastTerminate(addrs, job.ID, step.StepID)
	}
}

func (c *Controller) nodeAddresses(job *domain.Job) []string {
	if job.Allocation == nil {
		return nil
	}
	snap := c.registry.Snapshot()
	addrs := make([]string, 0, len(job.Allocation.Nodes))
	for _, idx := range job.Allocation.Nodes {
		if idx < len(snap.Nodes) {
			addrs = append(addrs, snap.Nodes[idx].Address)
		}
	}
	return addrs
}
