package rpcwire

import (
	"context"

	"google.golang.org/grpc"
)

const nodeAgentServiceName = "rpcwire.NodeAgent"

// NodeAgentServer is the node-agent RPC surface: the controller calls these
// methods on every node holding part of an allocation, per spec.md §4.5.
type NodeAgentServer interface {
	Launch(context.Context, *LaunchRequest) (*LaunchResponse, error)
	Signal(context.Context, *SignalStepRequest) (*OKResponse, error)
	Terminate(context.Context, *TerminateStepRequest) (*OKResponse, error)
	ReattachIO(context.Context, *ReattachIORequest) (*ReattachIOResponse, error)
	ShutdownAgent(context.Context, *ShutdownAgentRequest) (*OKResponse, error)
}

// RegisterNodeAgentServer registers srv's handlers with an in-process or
// network grpc.Server.
func RegisterNodeAgentServer(s grpc.ServiceRegistrar, srv NodeAgentServer) {
	s.RegisterService(&nodeAgentServiceDesc, srv)
}

var nodeAgentServiceDesc = grpc.ServiceDesc{
	ServiceName: nodeAgentServiceName,
	HandlerType: (*NodeAgentServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Launch", Handler: _NodeAgent_Launch_Handler},
		{MethodName: "Signal", Handler: _NodeAgent_Signal_Handler},
		{MethodName: "Terminate", Handler: _NodeAgent_Terminate_Handler},
		{MethodName: "ReattachIO", Handler: _NodeAgent_ReattachIO_Handler},
		{MethodName: "ShutdownAgent", Handler: _NodeAgent_ShutdownAgent_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "ridge/nodeagent.proto",
}

func _NodeAgent_Launch_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(LaunchRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(NodeAgentServer).Launch(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + nodeAgentServiceName + "/Launch"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(NodeAgentServer).Launch(ctx, req.(*LaunchRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _NodeAgent_Signal_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(SignalStepRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(NodeAgentServer).Signal(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + nodeAgentServiceName + "/Signal"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(NodeAgentServer).Signal(ctx, req.(*SignalStepRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _NodeAgent_Terminate_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(TerminateStepRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(NodeAgentServer).Terminate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + nodeAgentServiceName + "/Terminate"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(NodeAgentServer).Terminate(ctx, req.(*TerminateStepRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _NodeAgent_ReattachIO_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ReattachIORequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(NodeAgentServer).ReattachIO(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + nodeAgentServiceName + "/ReattachIO"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(NodeAgentServer).ReattachIO(ctx, req.(*ReattachIORequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _NodeAgent_ShutdownAgent_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ShutdownAgentRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(NodeAgentServer).ShutdownAgent(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + nodeAgentServiceName + "/ShutdownAgent"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(NodeAgentServer).ShutdownAgent(ctx, req.(*ShutdownAgentRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// NodeAgentClient is the client stub for NodeAgentServer, used by the
// controller to reach each node agent.
type NodeAgentClient struct {
	cc grpc.ClientConnInterface
}

// NewNodeAgentClient wraps a dialed connection.
func NewNodeAgentClient(cc grpc.ClientConnInterface) *NodeAgentClient {
	return &NodeAgentClient{cc: cc}
}

func (c *NodeAgentClient) Launch(ctx context.Context, in *LaunchRequest, opts ...grpc.CallOption) (*LaunchResponse, error) {
	out := new(LaunchResponse)
	if err := c.cc.Invoke(ctx, "/"+nodeAgentServiceName+"/Launch", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *NodeAgentClient) Signal(ctx context.Context, in *SignalStepRequest, opts ...grpc.CallOption) (*OKResponse, error) {
	out := new(OKResponse)
	if err := c.cc.Invoke(ctx, "/"+nodeAgentServiceName+"/Signal", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *NodeAgentClient) Terminate(ctx context.Context, in *TerminateStepRequest, opts ...grpc.CallOption) (*OKResponse, error) {
	out := new(OKResponse)
	if err := c.cc.Invoke(ctx, "/"+nodeAgentServiceName+"/Terminate", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *NodeAgentClient) ReattachIO(ctx context.Context, in *ReattachIORequest, opts ...grpc.CallOption) (*ReattachIOResponse, error) {
	out := new(ReattachIOResponse)
	if err := c.cc.Invoke(ctx, "/"+nodeAgentServiceName+"/ReattachIO", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *NodeAgentClient) ShutdownAgent(ctx context.Context, in *ShutdownAgentRequest, opts ...grpc.CallOption) (*OKResponse, error) {
	out := new(OKResponse)
	if err := c.cc.Invoke(ctx, "/"+nodeAgentServiceName+"/ShutdownAgent", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
