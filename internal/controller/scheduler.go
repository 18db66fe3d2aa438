package controller

import (
	"fmt"
	"sort"
	"time"

	"github.com/ridgehpc/ridge/internal/credential"
	"github.com/ridgehpc/ridge/internal/domain"
	"github.com/ridgehpc/ridge/internal/events"
	"github.com/ridgehpc/ridge/internal/log"
	"github.com/ridgehpc/ridge/internal/metrics"
	"github.com/ridgehpc/ridge/internal/partition"
	"github.com/ridgehpc/ridge/internal/registry"
	"github.com/rs/zerolog"
)

// Scheduler is the single-writer loop over controller state described in
// spec.md §4.4, grounded on the teacher's pkg/scheduler.Scheduler: a ticker
// goroutine wakes a schedule pass, and job submit/completion can also
// request an immediate pass via wake.
type Scheduler struct {
	ctrl   *Controller
	logger zerolog.Logger
	wakeCh chan struct{}
	stopCh chan struct{}
}

func newScheduler(c *Controller) *Scheduler {
	return &Scheduler{
		ctrl:   c,
		logger: log.WithComponent("scheduler"),
		wakeCh: make(chan struct{}, 1),
		stopCh: make(chan struct{}),
	}
}

// Start begins the scheduler loop.
func (s *Scheduler) Start() { go s.run() }

// Stop stops the scheduler loop.
func (s *Scheduler) Stop() { close(s.stopCh) }

// Wake requests an immediate scheduling pass, per spec.md §4.4's
// job-submit and job/step-completion triggers.
func (s *Scheduler) Wake() {
	select {
	case s.wakeCh <- struct{}{}:
	default:
	}
}

func (s *Scheduler) run() {
	interval := s.ctrl.cfg.SchedInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.pass()
		case <-s.wakeCh:
			s.pass()
		case <-s.stopCh:
			return
		}
	}
}

// commit is a single job's successful placement, pending atomic application
// to live state at the end of the pass.
type commit struct {
	job  *domain.Job
	plan *partition.Plan
}

// pass runs one scheduling pass over a consistent snapshot, per spec.md
// §4.4's four-step algorithm.
func (s *Scheduler) pass() {
	if !s.ctrl.IsLeader() {
		return
	}
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.SchedulingPassDuration)

	// 1. Take a consistent snapshot of node and partition state, after
	// flagging nodes whose heartbeat is older than slurmdTimeout.
	s.ctrl.registry.SweepNoRespond(time.Now())
	snap := s.ctrl.registry.Snapshot()

	jobs, err := s.ctrl.store.ListJobs()
	if err != nil {
		s.logger.Error().Err(err).Msg("list jobs failed")
		return
	}
	pending := pendingQueue(jobs)

	var commits []commit
	reserved := make(map[int]int)         // node index -> cpus reserved this pass
	reservedWires := make(map[[2]int]bool) // switch cable -> reserved this pass

	// 2-3. Iterate the PENDING queue in priority order, applying the
	// placement backend to a snapshot adjusted for this pass's reservations.
	for _, job := range pending {
		part, ok := s.ctrl.partitions.Lookup(job.Partition)
		if !ok || part.Availability == domain.PartitionDown || part.Availability == domain.PartitionInactive {
			s.failJob(job, "partition unavailable")
			continue
		}
		if !part.AllowsGroup(job.Group) {
			s.failJob(job, "user not in allowed groups")
			continue
		}
		if job.DependsOn != 0 && !dependencySatisfied(jobs, job.DependsOn) {
			continue // retry next pass
		}

		working := applyReservations(snap, reserved, reservedWires)
		backend := s.backendFor(part)
		req := partition.Request{
			MinNodes:     job.MinNodes,
			MaxNodes:     job.MaxNodes,
			CPUsPerNode:  1,
			Features:     job.Features,
			Contiguous:   job.Contiguous,
			IncludeNodes: resolveIndices(working, job.IncludeNodes),
			ExcludeNodes: resolveIndexSet(working, job.ExcludeNodes),
			Geometry:     job.Geometry,
			ConnType:     partition.ParseConnType(job.ConnType),
			Rotate:       job.Rotate,
			Elongate:     job.Elongate,
		}

		plan, reject := backend.Place(working, part, req)
		if reject == partition.RejectNone {
			for i, nodeIdx := range plan.Nodes {
				reserved[nodeIdx] += plan.PerNodeCPU[i]
			}
			if plan.Wiring != nil {
				for _, e := range plan.Wiring.Edges() {
					reservedWires[e] = true
				}
			}
			commits = append(commits, commit{job: job, plan: plan})
			continue
		}
		if reject == partition.RejectTooLarge || reject == partition.RejectNoWires {
			s.failJob(job, fmt.Sprintf("placement rejected: %s", reject))
		}
		// RejectNoFit: retry next pass.
	}

	// 4. Apply all commits atomically to live state.
	for _, cm := range commits {
		s.applyCommit(cm)
	}
}

func (s *Scheduler) backendFor(part *domain.Partition) partition.Backend {
	if part.Features != nil {
		if _, ok := part.Features["topology"]; ok {
			return &partition.Topology{Dims: s.ctrl.cfg.TopologyDims}
		}
	}
	return &partition.Linear{}
}

func (s *Scheduler) applyCommit(cm commit) {
	job := cm.job
	plan := cm.plan

	nodeNames := make([]string, len(plan.Nodes))
	snap := s.ctrl.registry.Snapshot()
	for i, idx := range plan.Nodes {
		nodeNames[i] = snap.Nodes[idx].Name
	}

	deadline := time.Now().Add(job.TimeLimit)
	cred, err := credential.Issue(s.ctrl.signer, job.ID, 0, job.UID, job.GID, nodeNames, deadline)
	if err != nil {
		s.logger.Error().Err(err).Uint64("job_id", job.ID).Msg("failed to issue allocation credential")
		s.failJob(job, "credential issuance failed")
		return
	}

	s.ctrl.registry.ApplyAllocation(plan.Nodes, plan.PerNodeCPU)
	s.ctrl.registry.ApplyWiring(job.ID, plan.Wiring)

	job.Allocation = &domain.Allocation{
		JobID:      job.ID,
		Nodes:      plan.Nodes,
		PerNodeCPU: plan.PerNodeCPU,
		Credential: cred,
		Deadline:   deadline,
		WiringPlan: plan.Wiring,
	}
	job.State = domain.JobRunning
	job.StartedAt = time.Now()

	if err := s.ctrl.applyJob(opUpdateJob, job); err != nil {
		s.logger.Error().Err(err).Uint64("job_id", job.ID).Msg("failed to commit allocation")
		return
	}

	metrics.JobsScheduledTotal.Inc()
	s.ctrl.publish(events.JobAllocated, "job allocated", map[string]string{"job_id": fmt.Sprint(job.ID)})
	s.logger.Info().Uint64("job_id", job.ID).Strs("nodes", nodeNames).Msg("job allocated")
}

func (s *Scheduler) failJob(job *domain.Job, reason string) {
	job.State = domain.JobFailed
	job.FailReason = reason
	job.EndedAt = time.Now()
	if err := s.ctrl.applyJob(opUpdateJob, job); err != nil {
		s.logger.Error().Err(err).Uint64("job_id", job.ID).Msg("failed to commit job failure")
		return
	}
	metrics.JobsFailedTotal.WithLabelValues("placement").Inc()
	s.ctrl.publish(events.JobFailed, reason, map[string]string{"job_id": fmt.Sprint(job.ID)})
}

// pendingQueue returns PENDING jobs ordered per spec.md §4.4's tie-break:
// priority desc, submit time asc, job id asc.
func pendingQueue(jobs []*domain.Job) []*domain.Job {
	var pending []*domain.Job
	for _, j := range jobs {
		if j.State == domain.JobPending {
			pending = append(pending, j)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		a, b := pending[i], pending[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if !a.SubmittedAt.Equal(b.SubmittedAt) {
			return a.SubmittedAt.Before(b.SubmittedAt)
		}
		return a.ID < b.ID
	})
	return pending
}

func resolveIndices(snap registry.Snapshot, names []string) []int {
	var out []int
	for _, name := range names {
		if idx, ok := snap.ByName(name); ok {
			out = append(out, idx)
		}
	}
	return out
}

func resolveIndexSet(snap registry.Snapshot, names []string) map[int]struct{} {
	out := make(map[int]struct{}, len(names))
	for _, name := range names {
		if idx, ok := snap.ByName(name); ok {
			out[idx] = struct{}{}
		}
	}
	return out
}

func dependencySatisfied(jobs []*domain.Job, dependsOn uint64) bool {
	for _, j := range jobs {
		if j.ID == dependsOn {
			return j.State == domain.JobCompleted
		}
	}
	return false
}

// applyReservations returns a copy of snap with this pass's tentative CPU
// and switch-wire reservations debited, so later jobs in the same pass see
// an accurate picture without touching live registry state until commit
// time.
func applyReservations(snap registry.Snapshot, reserved map[int]int, reservedWires map[[2]int]bool) registry.Snapshot {
	out := registry.Snapshot{Nodes: make([]domain.Node, len(snap.Nodes)), Taken: snap.Taken}
	copy(out.Nodes, snap.Nodes)
	for idx, cpus := range reserved {
		out.Nodes[idx].CPUsFree -= cpus
		if out.Nodes[idx].CPUsFree < 0 {
			out.Nodes[idx].CPUsFree = 0
		}
	}

	out.Wires = make(map[[2]int]uint64, len(snap.Wires)+len(reservedWires))
	for k, v := range snap.Wires {
		out.Wires[k] = v
	}
	for e := range reservedWires {
		out.Wires[e] = 0
	}
	return out
}
