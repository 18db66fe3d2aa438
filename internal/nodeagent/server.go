package nodeagent

import (
	"context"
	"fmt"

	"github.com/ridgehpc/ridge/internal/rpcwire"
)

// Server adapts an *Agent to rpcwire.NodeAgentServer for registration with
// a grpc.Server.
type Server struct {
	agent *Agent
}

// NewServer wraps agent for gRPC registration.
func NewServer(agent *Agent) *Server { return &Server{agent: agent} }

func (s *Server) Launch(ctx context.Context, req *rpcwire.LaunchRequest) (*rpcwire.LaunchResponse, error) {
	return s.agent.Launch(ctx, req)
}

func (s *Server) Signal(ctx context.Context, req *rpcwire.SignalStepRequest) (*rpcwire.OKResponse, error) {
	return s.agent.Signal(ctx, req)
}

func (s *Server) Terminate(ctx context.Context, req *rpcwire.TerminateStepRequest) (*rpcwire.OKResponse, error) {
	return s.agent.Terminate(ctx, req)
}

// ReattachIO returns the step shim address for a still-running step, so a
// disconnected client can resubscribe to its tasks' I/O streams.
func (s *Server) ReattachIO(ctx context.Context, req *rpcwire.ReattachIORequest) (*rpcwire.ReattachIOResponse, error) {
	step, ok := s.agent.lookupStep(stepKey{jobID: req.JobID, stepID: req.StepID})
	if !ok {
		return &rpcwire.ReattachIOResponse{OK: false}, nil
	}
	step.mu.Lock()
	addr := step.shimAddr
	step.mu.Unlock()
	if addr == "" {
		return &rpcwire.ReattachIOResponse{OK: false, Address: fmt.Sprintf("no shim on this node for job %d step %d", req.JobID, req.StepID)}, nil
	}
	return &rpcwire.ReattachIOResponse{OK: true, Address: addr}, nil
}

// ShutdownAgent begins a graceful agent shutdown: new launches are refused
// once Drain is set, but already-running steps are left to finish.
func (s *Server) ShutdownAgent(ctx context.Context, req *rpcwire.ShutdownAgentRequest) (*rpcwire.OKResponse, error) {
	s.agent.SetDraining(req.Drain)
	return &rpcwire.OKResponse{OK: true}, nil
}
