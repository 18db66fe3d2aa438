package controller

import (
	"context"
	"testing"
	"time"

	"github.com/ridgehpc/ridge/internal/domain"
	"github.com/ridgehpc/ridge/internal/rpcwire"
	"github.com/stretchr/testify/require"
)

func TestSubmitJobRejectsUnknownPartition(t *testing.T) {
	ctrl := newTestController(t, []domain.Node{testNode(0, "n0", 4)}, []*domain.Partition{testPartition("batch", 0)})
	srv := NewServer(ctrl)

	resp, err := srv.SubmitJob(context.Background(), &rpcwire.SubmitJobRequest{
		Spec: &rpcwire.JobSpec{Partition: "nope", MinNodes: 1, MaxNodes: 1},
	})
	require.NoError(t, err)
	require.True(t, resp.Rejected)
}

func TestSubmitJobThenScheduleThenComplete(t *testing.T) {
	ctrl := newTestController(t, []domain.Node{testNode(0, "n0", 4)}, []*domain.Partition{testPartition("batch", 0)})
	srv := NewServer(ctrl)
	ctx := context.Background()

	submitResp, err := srv.SubmitJob(ctx, &rpcwire.SubmitJobRequest{
		Spec: &rpcwire.JobSpec{User: "alice", Partition: "batch", MinNodes: 1, MaxNodes: 1, TimeLimitSec: 3600},
	})
	require.NoError(t, err)
	require.False(t, submitResp.Rejected)

	ctrl.scheduler.pass()

	job, err := ctrl.store.GetJob(submitResp.JobID)
	require.NoError(t, err)
	require.Equal(t, domain.JobRunning, job.State)
	require.Equal(t, 3, ctrl.registry.Snapshot().Nodes[0].CPUsFree)

	okResp, err := srv.Complete(ctx, &rpcwire.CompleteRequest{JobID: submitResp.JobID, ExitStatus: 0})
	require.NoError(t, err)
	require.True(t, okResp.OK)

	job, err = ctrl.store.GetJob(submitResp.JobID)
	require.NoError(t, err)
	require.Equal(t, domain.JobCompleted, job.State)
	require.Nil(t, job.Allocation)
	require.Equal(t, 4, ctrl.registry.Snapshot().Nodes[0].CPUsFree)
}

// TestCompleteIsIdempotent is the regression case for the bug where a
// replayed Complete re-released an allocation and re-published a
// completion event after the job had already terminated.
func TestCompleteIsIdempotent(t *testing.T) {
	ctrl := newTestController(t, []domain.Node{testNode(0, "n0", 4)}, []*domain.Partition{testPartition("batch", 0)})
	srv := NewServer(ctrl)
	ctx := context.Background()

	submitResp, err := srv.SubmitJob(ctx, &rpcwire.SubmitJobRequest{
		Spec: &rpcwire.JobSpec{User: "alice", Partition: "batch", MinNodes: 1, MaxNodes: 1, TimeLimitSec: 3600},
	})
	require.NoError(t, err)
	ctrl.scheduler.pass()

	_, err = srv.Complete(ctx, &rpcwire.CompleteRequest{JobID: submitResp.JobID, ExitStatus: 0})
	require.NoError(t, err)
	freeAfterFirst := ctrl.registry.Snapshot().Nodes[0].CPUsFree
	jobAfterFirst, err := ctrl.store.GetJob(submitResp.JobID)
	require.NoError(t, err)
	endedAtFirst := jobAfterFirst.EndedAt

	time.Sleep(5 * time.Millisecond)

	replayResp, err := srv.Complete(ctx, &rpcwire.CompleteRequest{JobID: submitResp.JobID, ExitStatus: 0})
	require.NoError(t, err)
	require.True(t, replayResp.OK)

	require.Equal(t, freeAfterFirst, ctrl.registry.Snapshot().Nodes[0].CPUsFree, "CPUs must not be credited twice")
	jobAfterReplay, err := ctrl.store.GetJob(submitResp.JobID)
	require.NoError(t, err)
	require.Equal(t, domain.JobCompleted, jobAfterReplay.State)
	require.True(t, jobAfterReplay.EndedAt.Equal(endedAtFirst), "replayed Complete must not re-run the completion transition")
}

func TestGlobalTaskIDsAssignsContiguousRangesPerNode(t *testing.T) {
	ids := globalTaskIDs([]int{2, 0, 3})
	require.Equal(t, [][]int{{0, 1}, {}, {2, 3, 4}}, ids)
}
