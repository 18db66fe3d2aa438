// Package store defines the durable state interface backing the
// controller's Raft FSM: one bucket per table (nodes, partitions, jobs,
// steps), JSON-marshaled records keyed by id, per spec.md §4.3.
package store

import "github.com/ridgehpc/ridge/internal/domain"

// Store is the controller's durable state interface.
type Store interface {
	CreateNode(n *domain.Node) error
	GetNode(index int) (*domain.Node, error)
	ListNodes() ([]*domain.Node, error)
	UpdateNode(n *domain.Node) error

	CreatePartition(p *domain.Partition) error
	GetPartition(name string) (*domain.Partition, error)
	ListPartitions() ([]*domain.Partition, error)
	UpdatePartition(p *domain.Partition) error
	DeletePartition(name string) error

	CreateJob(j *domain.Job) error
	GetJob(id uint64) (*domain.Job, error)
	ListJobs() ([]*domain.Job, error)
	UpdateJob(j *domain.Job) error

	CreateStep(s *domain.Step) error
	GetStep(jobID uint64, stepID uint32) (*domain.Step, error)
	ListSteps(jobID uint64) ([]*domain.Step, error)
	UpdateStep(s *domain.Step) error

	Close() error
}
