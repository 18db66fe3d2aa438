package controller

import (
	"testing"
	"time"

	"github.com/ridgehpc/ridge/internal/credential"
	"github.com/ridgehpc/ridge/internal/domain"
	"github.com/stretchr/testify/require"
)

// newTestController builds a single-node, self-bootstrapped controller
// backed by real raft/boltdb state under a temp dir, so these tests exercise
// the same apply/commit path production traffic does rather than a mock.
func newTestController(t *testing.T, nodes []domain.Node, parts []*domain.Partition) *Controller {
	t.Helper()

	ctrl, err := New(Config{
		NodeID:          "test-node",
		BindAddr:        "127.0.0.1:0",
		RaftAddr:        "127.0.0.1:0",
		DataDir:         t.TempDir(),
		Nodes:           nodes,
		Partitions:      parts,
		Signer:          credential.NewHMACSigner([]byte("test-hmac-key")),
		SlurmdTimeout:   time.Minute,
		LaunchTimeout:   5 * time.Second,
		CredentialGrace: time.Minute,
	})
	require.NoError(t, err)
	require.NoError(t, ctrl.Bootstrap())

	require.Eventually(t, ctrl.IsLeader, 5*time.Second, 10*time.Millisecond, "controller never became raft leader")

	t.Cleanup(ctrl.Stop)
	return ctrl
}

func testNode(idx int, name string, cpus int) domain.Node {
	return domain.Node{
		Index: idx, Name: name, Address: "127.0.0.1:0",
		CPUs: cpus, CPUsFree: cpus, State: domain.NodeIdle,
		Features: map[string]struct{}{},
	}
}

func testPartition(name string, indices ...int) *domain.Partition {
	idx := make(map[int]struct{}, len(indices))
	for _, i := range indices {
		idx[i] = struct{}{}
	}
	return &domain.Partition{
		Name: name, NodeIndices: idx,
		MaxTimeLimit: time.Hour,
		Availability: domain.PartitionUp,
		Features:     map[string]struct{}{},
	}
}
