// Package controller implements Ridge's cluster controller: the
// single-writer scheduler loop, the raft-replicated job/node/partition
// state, the credentialed launch fan-out, and the deadline sweeper
// described in spec.md §4.
package controller

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ridgehpc/ridge/internal/credential"
	"github.com/ridgehpc/ridge/internal/domain"
	"github.com/ridgehpc/ridge/internal/events"
	"github.com/ridgehpc/ridge/internal/log"
	"github.com/ridgehpc/ridge/internal/metrics"
	"github.com/ridgehpc/ridge/internal/partition"
	"github.com/ridgehpc/ridge/internal/registry"
	"github.com/ridgehpc/ridge/internal/security"
	"github.com/ridgehpc/ridge/internal/store"
	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"
	"github.com/rs/zerolog"
)

// Config configures a Controller.
type Config struct {
	NodeID       string
	BindAddr     string
	RaftAddr     string
	DataDir      string
	Nodes        []domain.Node
	Partitions   []*domain.Partition
	Signer       credential.Signer
	TopologyDims [3]int

	SchedInterval   time.Duration
	SlurmdTimeout   time.Duration
	LaunchTimeout   time.Duration
	DeadlineScan    time.Duration
	CredentialGrace time.Duration
	MaxRetries      int
}

// Controller owns the raft-replicated cluster state and runs the
// scheduler and deadline sweeper goroutines over it.
type Controller struct {
	cfg Config

	nodeID   string
	bindAddr string
	dataDir  string

	raftNode *raft.Raft
	fsm      *FSM
	store    store.Store

	registry   *registry.Registry
	partitions *partition.Table

	signer credential.Signer
	seen   *credential.SeenSet

	ca     *security.CertAuthority
	cert   *tls.Certificate
	agents *agentPool

	broker *events.Broker
	logger zerolog.Logger

	nextJobID atomic.Uint64
	jobMu     sync.Mutex // serializes submit -> id assignment -> store create

	scheduler *Scheduler
	deadlines *deadlineSweeper

	stopCh chan struct{}
}

// New builds a Controller from cfg. It does not start the raft node or
// the background loops; call Bootstrap then Start.
func New(cfg Config) (*Controller, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	st, err := store.NewBoltStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	reg := registry.New(cfg.Nodes, cfg.SlurmdTimeout)
	parts := partition.NewTable(cfg.Partitions)

	broker := events.NewBroker()
	broker.Start()

	ca := security.NewCertAuthority()
	if err := ca.LoadOrInitialize(filepath.Join(cfg.DataDir, "ca")); err != nil {
		return nil, fmt.Errorf("load or initialize CA: %w", err)
	}
	cert, err := ca.IssueNodeCertificate(cfg.NodeID, "controller", []string{cfg.NodeID}, nil)
	if err != nil {
		return nil, fmt.Errorf("issue controller certificate: %w", err)
	}

	c := &Controller{
		cfg:        cfg,
		nodeID:     cfg.NodeID,
		bindAddr:   cfg.BindAddr,
		dataDir:    cfg.DataDir,
		fsm:        NewFSM(st),
		store:      st,
		registry:   reg,
		partitions: parts,
		signer:     cfg.Signer,
		seen:       credential.NewSeenSet(cfg.CredentialGrace),
		ca:         ca,
		cert:       cert,
		agents:     newAgentPool(cert, ca.GetRootCACert()),
		broker:     broker,
		logger:     log.WithComponent("controller"),
		stopCh:     make(chan struct{}),
	}

	c.scheduler = newScheduler(c)
	c.deadlines = newDeadlineSweeper(c)

	for _, j := range mustListJobs(st) {
		if j.ID >= c.nextJobID.Load() {
			c.nextJobID.Store(j.ID + 1)
		}
	}

	return c, nil
}

func mustListJobs(st store.Store) []*domain.Job {
	jobs, err := st.ListJobs()
	if err != nil {
		return nil
	}
	return jobs
}

// Bootstrap initializes a new single-node raft cluster rooted at this
// controller, grounded on the teacher's pkg/manager.Manager.Bootstrap.
func (c *Controller) Bootstrap() error {
	raftCfg := raft.DefaultConfig()
	raftCfg.LocalID = raft.ServerID(c.nodeID)

	addr, err := net.ResolveTCPAddr("tcp", c.cfg.RaftAddr)
	if err != nil {
		return fmt.Errorf("resolve raft address: %w", err)
	}

	transport, err := raft.NewTCPTransport(c.cfg.RaftAddr, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return fmt.Errorf("create raft transport: %w", err)
	}

	snapshotStore, err := raft.NewFileSnapshotStore(c.dataDir, 2, os.Stderr)
	if err != nil {
		return fmt.Errorf("create snapshot store: %w", err)
	}

	logStore, err := raftboltdb.NewBoltStore(filepath.Join(c.dataDir, "raft-log.db"))
	if err != nil {
		return fmt.Errorf("create raft log store: %w", err)
	}
	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(c.dataDir, "raft-stable.db"))
	if err != nil {
		return fmt.Errorf("create raft stable store: %w", err)
	}

	r, err := raft.NewRaft(raftCfg, c.fsm, logStore, stableStore, snapshotStore, transport)
	if err != nil {
		return fmt.Errorf("create raft node: %w", err)
	}
	c.raftNode = r

	cfgFuture := r.BootstrapCluster(raft.Configuration{
		Servers: []raft.Server{{ID: raftCfg.LocalID, Address: transport.LocalAddr()}},
	})
	if err := cfgFuture.Error(); err != nil {
		return fmt.Errorf("bootstrap raft cluster: %w", err)
	}

	return nil
}

// Start launches the scheduler and deadline sweeper goroutines.
func (c *Controller) Start() {
	c.scheduler.Start()
	c.deadlines.Start()
}

// Stop halts the background loops and event broker.
func (c *Controller) Stop() {
	c.scheduler.Stop()
	c.deadlines.Stop()
	c.broker.Stop()
}

// ServerTLSConfig builds the mTLS config the controller's gRPC listener
// should serve with.
func (c *Controller) ServerTLSConfig() (*tls.Config, error) {
	return security.ServerTLSConfig(c.cert, c.ca.GetRootCACert())
}

// RootCACert returns the cluster CA's DER-encoded certificate, distributed
// to node agents out of band so they can dial the controller.
func (c *Controller) RootCACert() []byte { return c.ca.GetRootCACert() }

// IssueNodeCertificate issues a leaf certificate for a node agent, used by
// the node bootstrap flow described in spec.md §7.
func (c *Controller) IssueNodeCertificate(nodeID string, dnsNames []string) (*tls.Certificate, error) {
	return c.ca.IssueNodeCertificate(nodeID, "node-agent", dnsNames, nil)
}

// IsLeader reports whether this controller currently holds raft leadership.
func (c *Controller) IsLeader() bool {
	if c.raftNode == nil {
		return false
	}
	return c.raftNode.State() == raft.Leader
}

// apply submits a command to the raft log and waits for it to commit.
func (c *Controller) apply(cmd Command) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.RaftApplyDuration)

	if c.raftNode == nil {
		return fmt.Errorf("raft not initialized")
	}

	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}

	future := c.raftNode.Apply(data, 5*time.Second)
	if err := future.Error(); err != nil {
		return fmt.Errorf("apply command: %w", err)
	}
	if resp := future.Response(); resp != nil {
		if err, ok := resp.(error); ok && err != nil {
			return err
		}
	}
	return nil
}

func (c *Controller) applyJob(op string, job *domain.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return c.apply(Command{Op: op, Data: data})
}

func (c *Controller) applyStep(op string, step *domain.Step) error {
	data, err := json.Marshal(step)
	if err != nil {
		return err
	}
	return c.apply(Command{Op: op, Data: data})
}

func (c *Controller) applyNode(node *domain.Node) error {
	data, err := json.Marshal(node)
	if err != nil {
		return err
	}
	return c.apply(Command{Op: opUpdateNode, Data: data})
}

func (c *Controller) publish(typ events.Type, msg string, meta map[string]string) {
	c.broker.Publish(&events.Event{Type: typ, Timestamp: time.Now(), Message: msg, Metadata: meta})
}
