// Package stepshim implements the per-step process the node agent spawns on
// a step's lead node, per spec.md §2 and §4.6/§4.7: it owns the PMI
// key-value rendezvous, the legacy PMGR collective dialect, and the I/O
// fan-in/fan-out for every task in the step.
package stepshim

import (
	"bufio"
	"fmt"
	"net"
	"strings"

	"github.com/ridgehpc/ridge/internal/log"
	"github.com/ridgehpc/ridge/internal/metrics"
)

// Shim is the combined PMI + I/O endpoint for one step. One Shim instance
// backs exactly one (jobId, stepId).
type Shim struct {
	JobID  uint64
	StepID uint32
	Size   int

	kvs  *kvStore
	pmgr *pmgrCoordinator
	io   *ioRouter
}

// NewShim builds a shim for a step with size tasks and the given I/O
// routing policy.
func NewShim(jobID uint64, stepID uint32, size int, routing Routing) *Shim {
	return &Shim{
		JobID:  jobID,
		StepID: stepID,
		Size:   size,
		kvs:    newKVStore(size),
		pmgr:   newPMGRCoordinator(size),
		io:     newIORouter(routing),
	}
}

// Listen starts accepting connections on addr and returns the address it
// actually bound (useful when addr's port is ":0"). Connections are
// dispatched by their first handshake line: "PMI", "PMGR", or
// "IO <taskId> <stream> <nodeIndex>".
func (s *Shim) Listen(addr string) (string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("listen step shim: %w", err)
	}
	go s.acceptLoop(ln)
	return ln.Addr().String(), nil
}

func (s *Shim) acceptLoop(ln net.Listener) {
	lg := log.WithStepID(s.JobID, s.StepID)
	for {
		conn, err := ln.Accept()
		if err != nil {
			lg.Debug().Err(err).Msg("step shim listener closed")
			return
		}
		go s.dispatch(conn)
	}
}

func (s *Shim) dispatch(conn net.Conn) {
	r := bufio.NewReader(conn)
	line, err := r.ReadString('\n')
	if err != nil {
		conn.Close()
		return
	}
	line = strings.TrimSpace(line)
	fields := strings.Fields(line)
	if len(fields) == 0 {
		conn.Close()
		return
	}

	switch fields[0] {
	case "PMI":
		s.servePMI(conn, r, fields[1:])
	case "PMGR":
		s.servePMGR(conn, r, fields[1:])
	case "IO":
		s.io.attach(conn, r, fields[1:])
	default:
		conn.Close()
	}
}

// Finalize tears down the step's rendezvous: any task still blocked in a
// barrier is released with PEER_LOST. The barrier-on-exit itself is each
// task's own "finalize" PMI op, served in servePMI.
func (s *Shim) Finalize() {
	s.kvs.abortWaiters(errPeerLost)
	metrics.PMIBarrierPeerLostTotal.Add(0) // keep the series registered even if unused this run
}
