package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ridgehpc/ridge/internal/credential"
	"github.com/ridgehpc/ridge/internal/domain"
	"github.com/ridgehpc/ridge/internal/events"
	"github.com/ridgehpc/ridge/internal/metrics"
	"github.com/ridgehpc/ridge/internal/rpcwire"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// Server implements rpcwire.ControllerServer over a Controller, per the
// control-plane RPC table in spec.md §6.
type Server struct {
	ctrl *Controller
}

// NewServer wraps ctrl for registration with a grpc.Server.
func NewServer(ctrl *Controller) *Server {
	return &Server{ctrl: ctrl}
}

func (s *Server) instrument(method string) func(err *error) {
	timer := metrics.NewTimer()
	return func(err *error) {
		status := "ok"
		if *err != nil {
			status = "error"
		}
		timer.ObserveDurationVec(metrics.APIRequestDuration, method)
		metrics.APIRequestsTotal.WithLabelValues(method, status).Inc()
	}
}

func (s *Server) SubmitJob(ctx context.Context, req *rpcwire.SubmitJobRequest) (resp *rpcwire.SubmitJobResponse, err error) {
	defer s.instrument("SubmitJob")(&err)

	job, rejectReason := s.buildJob(req.Spec)
	if rejectReason != "" {
		return &rpcwire.SubmitJobResponse{Rejected: true, Reason: rejectReason}, nil
	}

	job.ID = s.ctrl.nextJobID.Add(1) - 1
	if err := s.ctrl.store.CreateJob(job); err != nil {
		return nil, err
	}
	s.ctrl.publish(events.JobSubmitted, "job submitted", map[string]string{"job_id": fmt.Sprint(job.ID)})
	s.ctrl.scheduler.Wake()

	return &rpcwire.SubmitJobResponse{JobID: job.ID}, nil
}

func (s *Server) AllocateBlocking(ctx context.Context, req *rpcwire.AllocateBlockingRequest) (resp *rpcwire.AllocateBlockingResponse, err error) {
	defer s.instrument("AllocateBlocking")(&err)

	job, rejectReason := s.buildJob(req.Spec)
	if rejectReason != "" {
		return &rpcwire.AllocateBlockingResponse{Rejected: true, Reason: rejectReason}, nil
	}
	job.ID = s.ctrl.nextJobID.Add(1) - 1
	if err := s.ctrl.store.CreateJob(job); err != nil {
		return nil, err
	}
	s.ctrl.publish(events.JobSubmitted, "job submitted", map[string]string{"job_id": fmt.Sprint(job.ID)})
	s.ctrl.scheduler.Wake()

	timeout := time.Duration(req.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		cur, err := s.ctrl.store.GetJob(job.ID)
		if err != nil {
			return nil, err
		}
		switch {
		case cur.State.Allocated():
			return &rpcwire.AllocateBlockingResponse{Allocation: s.wireAllocation(cur.Allocation)}, nil
		case cur.State == domain.JobFailed:
			return &rpcwire.AllocateBlockingResponse{Rejected: true, Reason: cur.FailReason}, nil
		}
		select {
		case <-ctx.Done():
			return &rpcwire.AllocateBlockingResponse{TimedOut: true}, nil
		case <-time.After(250 * time.Millisecond):
		}
	}
	return &rpcwire.AllocateBlockingResponse{TimedOut: true}, nil
}

func (s *Server) WillRun(ctx context.Context, req *rpcwire.WillRunRequest) (resp *rpcwire.WillRunResponse, err error) {
	defer s.instrument("WillRun")(&err)

	part, ok := s.ctrl.partitions.Lookup(req.Spec.Partition)
	if !ok || part.Availability == domain.PartitionDown || part.Availability == domain.PartitionInactive {
		return &rpcwire.WillRunResponse{Feasible: false, Reason: "partition unavailable"}, nil
	}

	snap := s.ctrl.registry.Snapshot()
	backend := s.ctrl.scheduler.backendFor(part)
	preq := s.toPlacementRequest(snap, req.Spec)
	_, reject := backend.Place(snap, part, preq)
	if reject != 0 {
		return &rpcwire.WillRunResponse{Feasible: false, Reason: reject.String()}, nil
	}
	return &rpcwire.WillRunResponse{Feasible: true}, nil
}

func (s *Server) LookupAllocation(ctx context.Context, req *rpcwire.LookupAllocationRequest) (resp *rpcwire.LookupAllocationResponse, err error) {
	defer s.instrument("LookupAllocation")(&err)

	job, getErr := s.ctrl.store.GetJob(req.JobID)
	if getErr != nil {
		return &rpcwire.LookupAllocationResponse{NotFound: true}, nil
	}
	if job.Allocation == nil {
		return &rpcwire.LookupAllocationResponse{NotFound: true}, nil
	}
	if time.Now().After(job.Allocation.Deadline) {
		return &rpcwire.LookupAllocationResponse{Expired: true}, nil
	}
	return &rpcwire.LookupAllocationResponse{Allocation: s.wireAllocation(job.Allocation)}, nil
}

func (s *Server) LaunchStep(ctx context.Context, req *rpcwire.LaunchStepRequest) (resp *rpcwire.LaunchStepResponse, err error) {
	defer s.instrument("LaunchStep")(&err)

	spec := req.Spec
	job, getErr := s.ctrl.store.GetJob(spec.JobID)
	if getErr != nil || job.Allocation == nil {
		return &rpcwire.LaunchStepResponse{OK: false, Error: "no allocation for job"}, nil
	}

	existing, _ := s.ctrl.store.ListSteps(spec.JobID)
	stepID := uint32(len(existing))
	spec.StepID = stepID
	spec.NodeNames = s.nodeNamesOf(job)
	spec.CPUsPerNode = job.Allocation.PerNodeCPU
	if spec.Distribution == "" {
		spec.Distribution = "block"
	}
	step := &domain.Step{
		JobID:        spec.JobID,
		StepID:       stepID,
		TaskCount:    spec.TaskCount,
		TasksPerNode: spec.TasksPerNode,
		Bind:         domain.BindPolicy{CPUBind: spec.CPUBind, MemBind: spec.MemBind},
		IO:           domain.IORouting{Mode: parseIOMode(spec.IOMode), TaskID: spec.IOTaskID, Pattern: spec.IOPattern},
		Argv:         spec.Argv,
		Envp:         spec.Envp,
		Cwd:          spec.Cwd,
		UID:          spec.UID,
		GID:          spec.GID,
		PropagateRlimits: spec.PropagateRlimits,
		State:        domain.StepLaunching,
	}
	step.Tasks, step.TaskNode = buildTasks(spec.TasksPerNode, job.Allocation.Nodes)
	if err := s.ctrl.store.CreateStep(step); err != nil {
		return nil, err
	}
	s.ctrl.publish(events.StepLaunching, "step launching", map[string]string{
		"job_id": fmt.Sprint(job.ID), "step_id": fmt.Sprint(stepID),
	})

	cred, err := credential.Issue(s.ctrl.signer, job.ID, stepID, job.UID, job.GID, s.nodeNamesOf(job), job.Allocation.Deadline)
	if err != nil {
		return nil, err
	}

	addrs := s.ctrl.nodeAddresses(job)
	wireCred := &rpcwire.Credential{
		JobID: cred.JobID, StepID: cred.StepID, UID: cred.UID, GID: cred.GID,
		Nodes: cred.Nodes, Deadline: timestamppb.New(cred.Deadline), Nonce: cred.Nonce, Signature: cred.Signature,
	}

	if err := s.ctrl.launchStepOnNodes(job, step, addrs, spec, wireCred); err != nil {
		return &rpcwire.LaunchStepResponse{OK: false, StepID: stepID, Error: err.Error()}, nil
	}
	return &rpcwire.LaunchStepResponse{OK: true, StepID: stepID}, nil
}

func (s *Server) SignalStep(ctx context.Context, req *rpcwire.SignalStepRequest) (resp *rpcwire.OKResponse, err error) {
	defer s.instrument("SignalStep")(&err)

	job, getErr := s.ctrl.store.GetJob(req.JobID)
	if getErr != nil {
		return &rpcwire.OKResponse{OK: false}, nil
	}
	s.ctrl.signalStep(s.ctrl.nodeAddresses(job), req.JobID, req.StepID, req.Signo)
	return &rpcwire.OKResponse{OK: true}, nil
}

func (s *Server) TerminateStep(ctx context.Context, req *rpcwire.TerminateStepRequest) (resp *rpcwire.OKResponse, err error) {
	defer s.instrument("TerminateStep")(&err)

	job, getErr := s.ctrl.store.GetJob(req.JobID)
	if getErr != nil {
		return &rpcwire.OKResponse{OK: false}, nil
	}
	s.ctrl.broadcastTerminate(s.ctrl.nodeAddresses(job), req.JobID, req.StepID)
	return &rpcwire.OKResponse{OK: true}, nil
}

func (s *Server) Complete(ctx context.Context, req *rpcwire.CompleteRequest) (resp *rpcwire.OKResponse, err error) {
	defer s.instrument("Complete")(&err)

	job, getErr := s.ctrl.store.GetJob(req.JobID)
	if getErr != nil {
		return &rpcwire.OKResponse{OK: false}, nil
	}
	// Idempotence: a replayed Complete for a job already in a terminal state
	// must have no further side effects, per spec.md §8.
	if job.State.Terminal() {
		return &rpcwire.OKResponse{OK: true}, nil
	}
	if job.Allocation != nil {
		s.ctrl.registry.ReleaseAllocation(job.Allocation.Nodes, job.Allocation.PerNodeCPU)
		s.ctrl.registry.ReleaseWiring(job.Allocation.WiringPlan)
		job.Allocation = nil
	}
	if req.ExitStatus == 0 {
		job.State = domain.JobCompleted
	} else {
		job.State = domain.JobFailed
		job.FailReason = fmt.Sprintf("exit status %d", req.ExitStatus)
	}
	job.EndedAt = time.Now()
	if err := s.ctrl.applyJob(opUpdateJob, job); err != nil {
		return nil, err
	}
	s.ctrl.publish(events.JobCompleted, "job completed", map[string]string{"job_id": fmt.Sprint(job.ID)})
	s.ctrl.scheduler.Wake()
	return &rpcwire.OKResponse{OK: true}, nil
}

func (s *Server) ListJobs(ctx context.Context, req *rpcwire.ListJobsRequest) (resp *rpcwire.ListJobsResponse, err error) {
	defer s.instrument("ListJobs")(&err)

	jobs, listErr := s.ctrl.store.ListJobs()
	if listErr != nil {
		return nil, listErr
	}
	out := &rpcwire.ListJobsResponse{}
	for _, j := range jobs {
		if req.Filter != nil {
			if req.Filter.Partition != "" && j.Partition != req.Filter.Partition {
				continue
			}
			if req.Filter.User != "" && j.User != req.Filter.User {
				continue
			}
			if req.Filter.State != "" && j.State.String() != req.Filter.State {
				continue
			}
		}
		rec := &rpcwire.JobRecord{
			ID: j.ID, User: j.User, Partition: j.Partition, State: j.State.String(),
			SubmittedAt: timestamppb.New(j.SubmittedAt),
		}
		if !j.StartedAt.IsZero() {
			rec.StartedAt = timestamppb.New(j.StartedAt)
		}
		out.Jobs = append(out.Jobs, rec)
	}
	return out, nil
}

func (s *Server) ListNodes(ctx context.Context, req *rpcwire.ListNodesRequest) (resp *rpcwire.ListNodesResponse, err error) {
	defer s.instrument("ListNodes")(&err)

	snap := s.ctrl.registry.Snapshot()
	out := &rpcwire.ListNodesResponse{}
	for _, n := range snap.Nodes {
		out.Nodes = append(out.Nodes, &rpcwire.NodeRecord{Name: n.Name, State: n.State.String(), CPUs: n.CPUs, CPUsFree: n.CPUsFree})
	}
	return out, nil
}

func (s *Server) ListPartitions(ctx context.Context, req *rpcwire.ListPartitionsRequest) (resp *rpcwire.ListPartitionsResponse, err error) {
	defer s.instrument("ListPartitions")(&err)

	parts, listErr := s.ctrl.store.ListPartitions()
	if listErr != nil {
		return nil, listErr
	}
	out := &rpcwire.ListPartitionsResponse{}
	for _, p := range parts {
		out.Partitions = append(out.Partitions, &rpcwire.PartitionRecord{
			Name: p.Name, Availability: string(p.Availability), NodeCount: len(p.NodeIndices),
		})
	}
	return out, nil
}

func (s *Server) UpdateNode(ctx context.Context, req *rpcwire.UpdateNodeRequest) (resp *rpcwire.OKResponse, err error) {
	defer s.instrument("UpdateNode")(&err)

	snap := s.ctrl.registry.Snapshot()
	idx, ok := snap.ByName(req.Name)
	if !ok {
		return &rpcwire.OKResponse{OK: false}, nil
	}
	switch {
	case req.Drain:
		s.ctrl.registry.Drain([]int{idx}, req.Reason)
	case req.Resume:
		s.ctrl.registry.Resume([]int{idx})
	case req.Down:
		s.ctrl.registry.Down([]int{idx}, req.Reason)
	}
	if len(req.Features) > 0 {
		features := make(map[string]struct{}, len(req.Features))
		for _, f := range req.Features {
			features[f] = struct{}{}
		}
		s.ctrl.registry.SetFeatures([]int{idx}, features)
	}
	s.ctrl.publish(events.NodeStateChange, "node updated", map[string]string{"node": req.Name})
	return &rpcwire.OKResponse{OK: true}, nil
}

func (s *Server) UpdatePartition(ctx context.Context, req *rpcwire.UpdatePartitionRequest) (resp *rpcwire.OKResponse, err error) {
	defer s.instrument("UpdatePartition")(&err)

	part, ok := s.ctrl.partitions.Lookup(req.Name)
	if !ok {
		return &rpcwire.OKResponse{OK: false}, nil
	}
	if req.Availability != "" {
		part.Availability = domain.PartitionAvailability(req.Availability)
	}
	if req.Priority != nil {
		part.Priority = *req.Priority
	}
	data, marshalErr := json.Marshal(part)
	if marshalErr != nil {
		return nil, marshalErr
	}
	if err := s.ctrl.apply(Command{Op: opUpdatePartition, Data: data}); err != nil {
		return nil, err
	}
	return &rpcwire.OKResponse{OK: true}, nil
}

// Heartbeat records a node agent's liveness and free-CPU observation, per
// spec.md §4.1's UpdateHeartbeat contract.
func (s *Server) Heartbeat(ctx context.Context, req *rpcwire.HeartbeatRequest) (resp *rpcwire.HeartbeatResponse, err error) {
	defer s.instrument("Heartbeat")(&err)

	snap := s.ctrl.registry.Snapshot()
	idx, ok := snap.ByName(req.NodeName)
	if !ok {
		return &rpcwire.HeartbeatResponse{OK: false}, nil
	}
	s.ctrl.registry.UpdateHeartbeat(idx, time.Now(), req.CPUsFree)
	return &rpcwire.HeartbeatResponse{OK: true}, nil
}

// ReportTaskExit aggregates a node's task exit statuses into the step
// record and, once every task across every node has exited, transitions
// the step to ENDED/FAILED, per spec.md §4.5 step 5. It releases no CPU:
// steps hold no CPU reservation of their own, and the allocation's CPUs
// return to the nodes only when the job completes.
func (s *Server) ReportTaskExit(ctx context.Context, req *rpcwire.ReportTaskExitRequest) (resp *rpcwire.ReportTaskExitResponse, err error) {
	defer s.instrument("ReportTaskExit")(&err)

	step, getErr := s.ctrl.store.GetStep(req.JobID, req.StepID)
	if getErr != nil {
		return &rpcwire.ReportTaskExitResponse{OK: false}, nil
	}

	anyFailed := false
	for _, te := range req.Tasks {
		for i := range step.Tasks {
			if step.Tasks[i].GlobalID == te.GlobalID {
				step.Tasks[i].Exited = true
				step.Tasks[i].ExitCode = int(te.ExitCode)
				step.Tasks[i].Signaled = te.Signaled
				if te.ExitCode != 0 || te.Signaled {
					anyFailed = true
				}
			}
		}
	}

	allExited := true
	for _, t := range step.Tasks {
		if !t.Exited {
			allExited = false
			break
		}
		if t.ExitCode != 0 || t.Signaled {
			anyFailed = true
		}
	}
	if allExited {
		step.EndedAt = time.Now()
		if anyFailed {
			step.State = domain.StepFailed
			step.FailReason = "one or more tasks exited non-zero"
		} else {
			step.State = domain.StepEnded
		}
		s.ctrl.publish(events.StepEnded, "step ended", map[string]string{
			"job_id": fmt.Sprint(req.JobID), "step_id": fmt.Sprint(req.StepID),
		})
	}
	if err := s.ctrl.applyStep(opUpdateStep, step); err != nil {
		return nil, err
	}
	return &rpcwire.ReportTaskExitResponse{OK: true}, nil
}

func (s *Server) buildJob(spec *rpcwire.JobSpec) (*domain.Job, string) {
	part, ok := s.ctrl.partitions.Lookup(spec.Partition)
	if !ok {
		return nil, "unknown partition"
	}
	if !part.AllowsGroup(spec.Group) {
		return nil, "user not in allowed groups"
	}

	features := make(map[string]struct{}, len(spec.Features))
	for _, f := range spec.Features {
		features[f] = struct{}{}
	}

	job := &domain.Job{
		User:         spec.User,
		Group:        spec.Group,
		UID:          spec.UID,
		GID:          spec.GID,
		Partition:    spec.Partition,
		MinNodes:     spec.MinNodes,
		MaxNodes:     spec.MaxNodes,
		TimeLimit:    time.Duration(spec.TimeLimitSec) * time.Second,
		DependsOn:    spec.DependsOn,
		Features:     features,
		IncludeNodes: spec.IncludeNodes,
		ExcludeNodes: spec.ExcludeNodes,
		Priority:     spec.Priority,
		Nice:         spec.Nice,
		Contiguous:   spec.Contiguous,
		NoKill:       spec.NoKill,
		Geometry:     spec.Geometry,
		ConnType:     spec.ConnType,
		Rotate:       spec.Rotate,
		Elongate:     spec.Elongate,
		State:        domain.JobPending,
		SubmittedAt:  time.Now(),
	}
	return job, ""
}
