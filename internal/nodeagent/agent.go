// Package nodeagent implements the per-node process described in spec.md
// §4.5: it receives credentialed step launches from the controller, spawns
// one OS process per task, reports task exits, and relays signals and
// termination to a step's tasks.
package nodeagent

import (
	"crypto/tls"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/ridgehpc/ridge/internal/credential"
	ridgeruntime "github.com/ridgehpc/ridge/internal/nodeagent/runtime"
	"github.com/ridgehpc/ridge/internal/rpcwire"
	"github.com/ridgehpc/ridge/internal/security"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
)

// Config wires an Agent's dependencies at process start.
type Config struct {
	NodeName        string
	ControllerAddr  string
	Cert            *tls.Certificate
	RootDER         []byte
	Signer          credential.Signer
	CredentialGrace time.Duration
	Backend         ridgeruntime.Backend
	ShimBindHost    string // host the step shim listener binds, port always 0 (OS-assigned)
}

// Agent is the node agent's in-process state: the steps it currently hosts
// tasks for, the controller connection used for heartbeats and exit
// reporting, and the replay-rejection set for launch credentials.
type Agent struct {
	cfg  Config
	seen *credential.SeenSet

	ctrlConn *grpc.ClientConn
	ctrl     *rpcwire.ControllerClient

	mu       sync.Mutex
	steps    map[stepKey]*runningStep
	draining bool
}

// SetDraining toggles whether the agent accepts new step launches, per the
// ShutdownAgent RPC's drain semantics.
func (a *Agent) SetDraining(v bool) {
	a.mu.Lock()
	a.draining = v
	a.mu.Unlock()
}

func (a *Agent) isDraining() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.draining
}

type stepKey struct {
	jobID  uint64
	stepID uint32
}

// New builds an Agent and dials the controller for heartbeats/exit
// reporting. Step launches arrive separately via the NodeAgentServer.
func New(cfg Config) (*Agent, error) {
	if cfg.ShimBindHost == "" {
		cfg.ShimBindHost = "0.0.0.0"
	}
	grace := cfg.CredentialGrace
	if grace <= 0 {
		grace = 5 * time.Minute
	}

	a := &Agent{cfg: cfg, seen: credential.NewSeenSet(grace), steps: make(map[stepKey]*runningStep)}

	tlsCfg, err := security.ClientTLSConfig(cfg.Cert, cfg.RootDER, "")
	if err != nil {
		return nil, fmt.Errorf("build controller tls config: %w", err)
	}
	conn, err := grpc.NewClient(cfg.ControllerAddr, grpc.WithTransportCredentials(credentials.NewTLS(tlsCfg)))
	if err != nil {
		return nil, fmt.Errorf("dial controller %s: %w", cfg.ControllerAddr, err)
	}
	a.ctrlConn = conn
	a.ctrl = rpcwire.NewControllerClient(conn)
	return a, nil
}

func (a *Agent) Close() error {
	if a.ctrlConn != nil {
		return a.ctrlConn.Close()
	}
	return nil
}

// freeCPUs estimates the node's currently idle CPU budget by subtracting
// one core per locally running task from the host's core count, per the
// UpdateHeartbeat contract's `cpusFree` observation.
func (a *Agent) freeCPUs() int {
	a.mu.Lock()
	running := 0
	for _, st := range a.steps {
		st.mu.Lock()
		running += len(st.tasks)
		st.mu.Unlock()
	}
	a.mu.Unlock()

	free := runtime.NumCPU() - running
	if free < 0 {
		free = 0
	}
	return free
}

func (a *Agent) getOrCreateStep(key stepKey) *runningStep {
	a.mu.Lock()
	defer a.mu.Unlock()
	st, ok := a.steps[key]
	if !ok {
		st = &runningStep{tasks: make(map[int]ridgeruntime.Handle)}
		a.steps[key] = st
	}
	return st
}

func (a *Agent) lookupStep(key stepKey) (*runningStep, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	st, ok := a.steps[key]
	return st, ok
}

func (a *Agent) dropStep(key stepKey) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.steps, key)
}
