package controller

import (
	"fmt"
	"time"

	"github.com/ridgehpc/ridge/internal/domain"
	"github.com/ridgehpc/ridge/internal/events"
	"github.com/ridgehpc/ridge/internal/log"
	"github.com/rs/zerolog"
)

// deadlineSweeper scans RUNNING jobs for expired time limits, per spec.md
// §4.4: "a separate deadline sweeper scans RUNNING jobs every 30s; jobs
// whose start + timeLimit is in the past transition to TIMEOUT and a
// termination is dispatched."
type deadlineSweeper struct {
	ctrl   *Controller
	logger zerolog.Logger
	stopCh chan struct{}
}

func newDeadlineSweeper(c *Controller) *deadlineSweeper {
	return &deadlineSweeper{
		ctrl:   c,
		logger: log.WithComponent("deadline-sweeper"),
		stopCh: make(chan struct{}),
	}
}

func (d *deadlineSweeper) Start() { go d.run() }
func (d *deadlineSweeper) Stop()  { close(d.stopCh) }

func (d *deadlineSweeper) run() {
	interval := d.ctrl.cfg.DeadlineScan
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.sweep()
		case <-d.stopCh:
			return
		}
	}
}

func (d *deadlineSweeper) sweep() {
	if !d.ctrl.IsLeader() {
		return
	}

	jobs, err := d.ctrl.store.ListJobs()
	if err != nil {
		d.logger.Error().Err(err).Msg("list jobs failed")
		return
	}

	now := time.Now()
	for _, job := range jobs {
		if job.State != domain.JobRunning {
			continue
		}
		if job.StartedAt.IsZero() || job.TimeLimit <= 0 {
			continue
		}
		if now.Before(job.StartedAt.Add(job.TimeLimit)) {
			continue
		}

		job.State = domain.JobTimeout
		job.FailReason = "time limit exceeded"
		job.EndedAt = now
		if err := d.ctrl.applyJob(opUpdateJob, job); err != nil {
			d.logger.Error().Err(err).Uint64("job_id", job.ID).Msg("failed to commit timeout")
			continue
		}

		d.logger.Warn().Uint64("job_id", job.ID).Msg("job exceeded time limit, dispatching termination")
		d.ctrl.publish(events.JobFailed, "time limit exceeded", map[string]string{"job_id": fmt.Sprint(job.ID)})

		if job.Allocation != nil {
			go d.ctrl.terminateJobSteps(job)
		}
	}
}
