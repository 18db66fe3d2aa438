package rpcwire

import (
	"context"

	"google.golang.org/grpc"
)

const controllerServiceName = "rpcwire.Controller"

// ControllerServer is the control-plane RPC surface, per spec.md §6.
type ControllerServer interface {
	SubmitJob(context.Context, *SubmitJobRequest) (*SubmitJobResponse, error)
	AllocateBlocking(context.Context, *AllocateBlockingRequest) (*AllocateBlockingResponse, error)
	WillRun(context.Context, *WillRunRequest) (*WillRunResponse, error)
	LookupAllocation(context.Context, *LookupAllocationRequest) (*LookupAllocationResponse, error)
	LaunchStep(context.Context, *LaunchStepRequest) (*LaunchStepResponse, error)
	SignalStep(context.Context, *SignalStepRequest) (*OKResponse, error)
	TerminateStep(context.Context, *TerminateStepRequest) (*OKResponse, error)
	Complete(context.Context, *CompleteRequest) (*OKResponse, error)
	ListJobs(context.Context, *ListJobsRequest) (*ListJobsResponse, error)
	ListNodes(context.Context, *ListNodesRequest) (*ListNodesResponse, error)
	ListPartitions(context.Context, *ListPartitionsRequest) (*ListPartitionsResponse, error)
	UpdateNode(context.Context, *UpdateNodeRequest) (*OKResponse, error)
	UpdatePartition(context.Context, *UpdatePartitionRequest) (*OKResponse, error)
	Heartbeat(context.Context, *HeartbeatRequest) (*HeartbeatResponse, error)
	ReportTaskExit(context.Context, *ReportTaskExitRequest) (*ReportTaskExitResponse, error)
}

// RegisterControllerServer registers srv's handlers with an in-process or
// network grpc.Server.
func RegisterControllerServer(s grpc.ServiceRegistrar, srv ControllerServer) {
	s.RegisterService(&controllerServiceDesc, srv)
}

var controllerServiceDesc = grpc.ServiceDesc{
	ServiceName: controllerServiceName,
	HandlerType: (*ControllerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "SubmitJob", Handler: _Controller_SubmitJob_Handler},
		{MethodName: "AllocateBlocking", Handler: _Controller_AllocateBlocking_Handler},
		{MethodName: "WillRun", Handler: _Controller_WillRun_Handler},
		{MethodName: "LookupAllocation", Handler: _Controller_LookupAllocation_Handler},
		{MethodName: "LaunchStep", Handler: _Controller_LaunchStep_Handler},
		{MethodName: "SignalStep", Handler: _Controller_SignalStep_Handler},
		{MethodName: "TerminateStep", Handler: _Controller_TerminateStep_Handler},
		{MethodName: "Complete", Handler: _Controller_Complete_Handler},
		{MethodName: "ListJobs", Handler: _Controller_ListJobs_Handler},
		{MethodName: "ListNodes", Handler: _Controller_ListNodes_Handler},
		{MethodName: "ListPartitions", Handler: _Controller_ListPartitions_Handler},
		{MethodName: "UpdateNode", Handler: _Controller_UpdateNode_Handler},
		{MethodName: "UpdatePartition", Handler: _Controller_UpdatePartition_Handler},
		{MethodName: "Heartbeat", Handler: _Controller_Heartbeat_Handler},
		{MethodName: "ReportTaskExit", Handler: _Controller_ReportTaskExit_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "ridge/controller.proto",
}

func _Controller_SubmitJob_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(SubmitJobRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ControllerServer).SubmitJob(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + controllerServiceName + "/SubmitJob"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ControllerServer).SubmitJob(ctx, req.(*SubmitJobRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Controller_AllocateBlocking_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(AllocateBlockingRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ControllerServer).AllocateBlocking(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + controllerServiceName + "/AllocateBlocking"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ControllerServer).AllocateBlocking(ctx, req.(*AllocateBlockingRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Controller_WillRun_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(WillRunRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ControllerServer).WillRun(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + controllerServiceName + "/WillRun"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ControllerServer).WillRun(ctx, req.(*WillRunRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Controller_LookupAllocation_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(LookupAllocationRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ControllerServer).LookupAllocation(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + controllerServiceName + "/LookupAllocation"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ControllerServer).LookupAllocation(ctx, req.(*LookupAllocationRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Controller_LaunchStep_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(LaunchStepRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ControllerServer).LaunchStep(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + controllerServiceName + "/LaunchStep"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ControllerServer).LaunchStep(ctx, req.(*LaunchStepRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Controller_SignalStep_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(SignalStepRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ControllerServer).SignalStep(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + controllerServiceName + "/SignalStep"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ControllerServer).SignalStep(ctx, req.(*SignalStepRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Controller_TerminateStep_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(TerminateStepRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ControllerServer).TerminateStep(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + controllerServiceName + "/TerminateStep"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ControllerServer).TerminateStep(ctx, req.(*TerminateStepRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Controller_Complete_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(CompleteRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ControllerServer).Complete(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + controllerServiceName + "/Complete"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ControllerServer).Complete(ctx, req.(*CompleteRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Controller_ListJobs_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ListJobsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ControllerServer).ListJobs(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + controllerServiceName + "/ListJobs"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ControllerServer).ListJobs(ctx, req.(*ListJobsRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Controller_ListNodes_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ListNodesRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ControllerServer).ListNodes(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + controllerServiceName + "/ListNodes"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ControllerServer).ListNodes(ctx, req.(*ListNodesRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Controller_ListPartitions_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ListPartitionsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ControllerServer).ListPartitions(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + controllerServiceName + "/ListPartitions"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ControllerServer).ListPartitions(ctx, req.(*ListPartitionsRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Controller_UpdateNode_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(UpdateNodeRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ControllerServer).UpdateNode(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + controllerServiceName + "/UpdateNode"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ControllerServer).UpdateNode(ctx, req.(*UpdateNodeRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Controller_UpdatePartition_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(UpdatePartitionRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ControllerServer).UpdatePartition(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + controllerServiceName + "/UpdatePartition"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ControllerServer).UpdatePartition(ctx, req.(*UpdatePartitionRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Controller_Heartbeat_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(HeartbeatRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ControllerServer).Heartbeat(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + controllerServiceName + "/Heartbeat"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ControllerServer).Heartbeat(ctx, req.(*HeartbeatRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Controller_ReportTaskExit_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ReportTaskExitRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ControllerServer).ReportTaskExit(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + controllerServiceName + "/ReportTaskExit"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ControllerServer).ReportTaskExit(ctx, req.(*ReportTaskExitRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// ControllerClient is the client stub for ControllerServer.
type ControllerClient struct {
	cc grpc.ClientConnInterface
}

// NewControllerClient wraps a dialed connection.
func NewControllerClient(cc grpc.ClientConnInterface) *ControllerClient {
	return &ControllerClient{cc: cc}
}

func (c *ControllerClient) SubmitJob(ctx context.Context, in *SubmitJobRequest, opts ...grpc.CallOption) (*SubmitJobResponse, error) {
	out := new(SubmitJobResponse)
	if err := c.cc.Invoke(ctx, "/"+controllerServiceName+"/SubmitJob", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ControllerClient) AllocateBlocking(ctx context.Context, in *AllocateBlockingRequest, opts ...grpc.CallOption) (*AllocateBlockingResponse, error) {
	out := new(AllocateBlockingResponse)
	if err := c.cc.Invoke(ctx, "/"+controllerServiceName+"/AllocateBlocking", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ControllerClient) WillRun(ctx context.Context, in *WillRunRequest, opts ...grpc.CallOption) (*WillRunResponse, error) {
	out := new(WillRunResponse)
	if err := c.cc.Invoke(ctx, "/"+controllerServiceName+"/WillRun", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ControllerClient) LookupAllocation(ctx context.Context, in *LookupAllocationRequest, opts ...grpc.CallOption) (*LookupAllocationResponse, error) {
	out := new(LookupAllocationResponse)
	if err := c.cc.Invoke(ctx, "/"+controllerServiceName+"/LookupAllocation", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ControllerClient) LaunchStep(ctx context.Context, in *LaunchStepRequest, opts ...grpc.CallOption) (*LaunchStepResponse, error) {
	out := new(LaunchStepResponse)
	if err := c.cc.Invoke(ctx, "/"+controllerServiceName+"/LaunchStep", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ControllerClient) SignalStep(ctx context.Context, in *SignalStepRequest, opts ...grpc.CallOption) (*OKResponse, error) {
	out := new(OKResponse)
	if err := c.cc.Invoke(ctx, "/"+controllerServiceName+"/SignalStep", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ControllerClient) TerminateStep(ctx context.Context, in *TerminateStepRequest, opts ...grpc.CallOption) (*OKResponse, error) {
	out := new(OKResponse)
	if err := c.cc.Invoke(ctx, "/"+controllerServiceName+"/TerminateStep", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ControllerClient) Complete(ctx context.Context, in *CompleteRequest, opts ...grpc.CallOption) (*OKResponse, error) {
	out := new(OKResponse)
	if err := c.cc.Invoke(ctx, "/"+controllerServiceName+"/Complete", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ControllerClient) ListJobs(ctx context.Context, in *ListJobsRequest, opts ...grpc.CallOption) (*ListJobsResponse, error) {
	out := new(ListJobsResponse)
	if err := c.cc.Invoke(ctx, "/"+controllerServiceName+"/ListJobs", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ControllerClient) ListNodes(ctx context.Context, in *ListNodesRequest, opts ...grpc.CallOption) (*ListNodesResponse, error) {
	out := new(ListNodesResponse)
	if err := c.cc.Invoke(ctx, "/"+controllerServiceName+"/ListNodes", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ControllerClient) ListPartitions(ctx context.Context, in *ListPartitionsRequest, opts ...grpc.CallOption) (*ListPartitionsResponse, error) {
	out := new(ListPartitionsResponse)
	if err := c.cc.Invoke(ctx, "/"+controllerServiceName+"/ListPartitions", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ControllerClient) UpdateNode(ctx context.Context, in *UpdateNodeRequest, opts ...grpc.CallOption) (*OKResponse, error) {
	out := new(OKResponse)
	if err := c.cc.Invoke(ctx, "/"+controllerServiceName+"/UpdateNode", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ControllerClient) UpdatePartition(ctx context.Context, in *UpdatePartitionRequest, opts ...grpc.CallOption) (*OKResponse, error) {
	out := new(OKResponse)
	if err := c.cc.Invoke(ctx, "/"+controllerServiceName+"/UpdatePartition", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ControllerClient) Heartbeat(ctx context.Context, in *HeartbeatRequest, opts ...grpc.CallOption) (*HeartbeatResponse, error) {
	out := new(HeartbeatResponse)
	if err := c.cc.Invoke(ctx, "/"+controllerServiceName+"/Heartbeat", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ControllerClient) ReportTaskExit(ctx context.Context, in *ReportTaskExitRequest, opts ...grpc.CallOption) (*ReportTaskExitResponse, error) {
	out := new(ReportTaskExitResponse)
	if err := c.cc.Invoke(ctx, "/"+controllerServiceName+"/ReportTaskExit", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
