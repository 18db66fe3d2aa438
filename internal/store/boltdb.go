package store

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/ridgehpc/ridge/internal/domain"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketNodes      = []byte("nodes")
	bucketPartitions = []byte("partitions")
	bucketJobs       = []byte("jobs")
	bucketSteps      = []byte("steps")
)

// BoltStore implements Store using go.etcd.io/bbolt, matching the teacher's
// pkg/storage/boltdb.go layout: one bucket per table, JSON-marshaled
// records keyed by id.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if absent) the controller's database under
// dataDir.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "ridge.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketNodes, bucketPartitions, bucketJobs, bucketSteps} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error { return s.db.Close() }

func nodeKey(index int) []byte { return []byte(strconv.Itoa(index)) }

func (s *BoltStore) CreateNode(n *domain.Node) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(n)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketNodes).Put(nodeKey(n.Index), data)
	})
}

func (s *BoltStore) GetNode(index int) (*domain.Node, error) {
	var n domain.Node
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketNodes).Get(nodeKey(index))
		if data == nil {
			return fmt.Errorf("node not found: %d", index)
		}
		return json.Unmarshal(data, &n)
	})
	return &n, err
}

func (s *BoltStore) ListNodes() ([]*domain.Node, error) {
	var nodes []*domain.Node
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketNodes).ForEach(func(k, v []byte) error {
			var n domain.Node
			if err := json.Unmarshal(v, &n); err != nil {
				return err
			}
			nodes = append(nodes, &n)
			return nil
		})
	})
	return nodes, err
}

func (s *BoltStore) UpdateNode(n *domain.Node) error { return s.CreateNode(n) }

func (s *BoltStore) CreatePartition(p *domain.Partition) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(p)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketPartitions).Put([]byte(p.Name), data)
	})
}

func (s *BoltStore) GetPartition(name string) (*domain.Partition, error) {
	var p domain.Partition
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketPartitions).Get([]byte(name))
		if data == nil {
			return fmt.Errorf("partition not found: %s", name)
		}
		return json.Unmarshal(data, &p)
	})
	return &p, err
}

func (s *BoltStore) ListPartitions() ([]*domain.Partition, error) {
	var parts []*domain.Partition
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPartitions).ForEach(func(k, v []byte) error {
			var p domain.Partition
			if err := json.Unmarshal(v, &p); err != nil {
				return err
			}
			parts = append(parts, &p)
			return nil
		})
	})
	return parts, err
}

func (s *BoltStore) UpdatePartition(p *domain.Partition) error { return s.CreatePartition(p) }

func (s *BoltStore) DeletePartition(name string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPartitions).Delete([]byte(name))
	})
}

func jobKey(id uint64) []byte { return []byte(strconv.FormatUint(id, 10)) }

func (s *BoltStore) CreateJob(j *domain.Job) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(j)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketJobs).Put(jobKey(j.ID), data)
	})
}

func (s *BoltStore) GetJob(id uint64) (*domain.Job, error) {
	var j domain.Job
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketJobs).Get(jobKey(id))
		if data == nil {
			return fmt.Errorf("job not found: %d", id)
		}
		return json.Unmarshal(data, &j)
	})
	return &j, err
}

func (s *BoltStore) ListJobs() ([]*domain.Job, error) {
	var jobs []*domain.Job
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketJobs).ForEach(func(k, v []byte) error {
			var j domain.Job
			if err := json.Unmarshal(v, &j); err != nil {
				return err
			}
			jobs = append(jobs, &j)
			return nil
		})
	})
	return jobs, err
}

func (s *BoltStore) UpdateJob(j *domain.Job) error { return s.CreateJob(j) }

func stepKey(jobID uint64, stepID uint32) []byte {
	return []byte(fmt.Sprintf("%d/%d", jobID, stepID))
}

func (s *BoltStore) CreateStep(st *domain.Step) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(st)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketSteps).Put(stepKey(st.JobID, st.StepID), data)
	})
}

func (s *BoltStore) GetStep(jobID uint64, stepID uint32) (*domain.Step, error) {
	var st domain.Step
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketSteps).Get(stepKey(jobID, stepID))
		if data == nil {
			return fmt.Errorf("step not found: %d/%d", jobID, stepID)
		}
		return json.Unmarshal(data, &st)
	})
	return &st, err
}

func (s *BoltStore) ListSteps(jobID uint64) ([]*domain.Step, error) {
	prefix := []byte(fmt.Sprintf("%d/", jobID))
	var steps []*domain.Step
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketSteps).Cursor()
		for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
			var st domain.Step
			if err := json.Unmarshal(v, &st); err != nil {
				return err
			}
			steps = append(steps, &st)
		}
		return nil
	})
	return steps, err
}

func (s *BoltStore) UpdateStep(st *domain.Step) error { return s.CreateStep(st) }

func hasPrefix(b, prefix []byte) bool {
	if len(b) < len(prefix) {
		return false
	}
	for i := range prefix {
		if b[i] != prefix[i] {
			return false
		}
	}
	return true
}
