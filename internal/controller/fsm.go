package controller

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/ridgehpc/ridge/internal/domain"
	"github.com/ridgehpc/ridge/internal/store"
	"github.com/hashicorp/raft"
)

// FSM applies committed raft log entries to the durable store, giving the
// controller's job/node/partition tables the same linearized-commit
// guarantee a raft-backed service needs for leader failover.
type FSM struct {
	mu    sync.RWMutex
	store store.Store
}

// NewFSM creates a new FSM over store.
func NewFSM(s store.Store) *FSM {
	return &FSM{store: s}
}

// Command is one state-change operation in the raft log.
type Command struct {
	Op   string          `json:"op"`
	Data json.RawMessage `json:"data"`
}

const (
	opCreateNode      = "create_node"
	opUpdateNode      = "update_node"
	opCreatePartition = "create_partition"
	opUpdatePartition = "update_partition"
	opDeletePartition = "delete_partition"
	opCreateJob       = "create_job"
	opUpdateJob       = "update_job"
	opCreateStep      = "create_step"
	opUpdateStep      = "update_step"
)

// Apply applies a committed raft log entry to the FSM.
func (f *FSM) Apply(l *raft.Log) interface{} {
	var cmd Command
	if err := json.Unmarshal(l.Data, &cmd); err != nil {
		return fmt.Errorf("unmarshal command: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch cmd.Op {
	case opCreateNode, opUpdateNode:
		var node domain.Node
		if err := json.Unmarshal(cmd.Data, &node); err != nil {
			return err
		}
		return f.store.UpdateNode(&node)

	case opCreatePartition:
		var part domain.Partition
		if err := json.Unmarshal(cmd.Data, &part); err != nil {
			return err
		}
		return f.store.CreatePartition(&part)

	case opUpdatePartition:
		var part domain.Partition
		if err := json.Unmarshal(cmd.Data, &part); err != nil {
			return err
		}
		return f.store.UpdatePartition(&part)

	case opDeletePartition:
		var name string
		if err := json.Unmarshal(cmd.Data, &name); err != nil {
			return err
		}
		return f.store.DeletePartition(name)

	case opCreateJob:
		var job domain.Job
		if err := json.Unmarshal(cmd.Data, &job); err != nil {
			return err
		}
		return f.store.CreateJob(&job)

	case opUpdateJob:
		var job domain.Job
		if err := json.Unmarshal(cmd.Data, &job); err != nil {
			return err
		}
		return f.store.UpdateJob(&job)

	case opCreateStep:
		var step domain.Step
		if err := json.Unmarshal(cmd.Data, &step); err != nil {
			return err
		}
		return f.store.CreateStep(&step)

	case opUpdateStep:
		var step domain.Step
		if err := json.Unmarshal(cmd.Data, &step); err != nil {
			return err
		}
		return f.store.UpdateStep(&step)

	default:
		return fmt.Errorf("unknown command: %s", cmd.Op)
	}
}

// Snapshot captures a point-in-time copy of all tables for raft log
// compaction.
func (f *FSM) Snapshot() (raft.FSMSnapshot, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	nodes, err := f.store.ListNodes()
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}
	partitions, err := f.store.ListPartitions()
	if err != nil {
		return nil, fmt.Errorf("list partitions: %w", err)
	}
	jobs, err := f.store.ListJobs()
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}

	var allSteps []*domain.Step
	for _, j := range jobs {
		steps, err := f.store.ListSteps(j.ID)
		if err != nil {
			return nil, fmt.Errorf("list steps for job %d: %w", j.ID, err)
		}
		allSteps = append(allSteps, steps...)
	}

	return &snapshot{
		Nodes:      nodes,
		Partitions: partitions,
		Jobs:       jobs,
		Steps:      allSteps,
	}, nil
}

// Restore replaces the store's contents with a previously captured
// snapshot.
func (f *FSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()

	var snap snapshot
	if err := json.NewDecoder(rc).Decode(&snap); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	for _, n := range snap.Nodes {
		if err := f.store.UpdateNode(n); err != nil {
			return fmt.Errorf("restore node: %w", err)
		}
	}
	for _, p := range snap.Partitions {
		if err := f.store.CreatePartition(p); err != nil {
			return fmt.Errorf("restore partition: %w", err)
		}
	}
	for _, j := range snap.Jobs {
		if err := f.store.CreateJob(j); err != nil {
			return fmt.Errorf("restore job: %w", err)
		}
	}
	for _, s := range snap.Steps {
		if err := f.store.CreateStep(s); err != nil {
			return fmt.Errorf("restore step: %w", err)
		}
	}
	return nil
}

type snapshot struct {
	Nodes      []*domain.Node
	Partitions []*domain.Partition
	Jobs       []*domain.Job
	Steps      []*domain.Step
}

func (s *snapshot) Persist(sink raft.SnapshotSink) error {
	err := func() error {
		if err := json.NewEncoder(sink).Encode(s); err != nil {
			return err
		}
		return sink.Close()
	}()
	if err != nil {
		sink.Cancel()
	}
	return err
}

func (s *snapshot) Release() {}
