package controller

import (
	"net/http"

	"github.com/ridgehpc/ridge/internal/controller/watch"
)

// WatchHandler returns the read-only HTTP+WebSocket watch surface described
// in spec.md §6's external interfaces, for a binary to mount alongside the
// gRPC listener.
func (c *Controller) WatchHandler() http.Handler {
	return watch.NewServer(c, c.broker)
}

// SnapshotJobs, SnapshotNodes and SnapshotPartitions implement watch.Lister,
// giving a newly-connected watcher the same view ListJobs/ListNodes/
// ListPartitions would return, before it starts receiving live events.

func (c *Controller) SnapshotJobs() ([]watch.JobView, error) {
	jobs, err := c.store.ListJobs()
	if err != nil {
		return nil, err
	}
	out := make([]watch.JobView, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, watch.JobView{ID: j.ID, User: j.User, Partition: j.Partition, State: j.State.String()})
	}
	return out, nil
}

func (c *Controller) SnapshotNodes() ([]watch.NodeView, error) {
	snap := c.registry.Snapshot()
	out := make([]watch.NodeView, 0, len(snap.Nodes))
	for _, n := range snap.Nodes {
		out = append(out, watch.NodeView{Name: n.Name, State: n.State.String(), CPUs: n.CPUs, CPUsFree: n.CPUsFree})
	}
	return out, nil
}

func (c *Controller) SnapshotPartitions() ([]watch.PartitionView, error) {
	parts, err := c.store.ListPartitions()
	if err != nil {
		return nil, err
	}
	out := make([]watch.PartitionView, 0, len(parts))
	for _, p := range parts {
		out = append(out, watch.PartitionView{Name: p.Name, Availability: string(p.Availability), NodeCount: len(p.NodeIndices)})
	}
	return out, nil
}
