package server

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "actionguard.v1.ActionGuardService"

const (
	processMethod = "/" + ServiceName + "/Process"
	checkMethod   = "/" + ServiceName + "/Check"
)

// ActionGuardServiceServer is the server API for ActionGuardService.
// Requests and responses are google.protobuf.Struct values holding the same
// JSON shapes as the HTTP API.
type ActionGuardServiceServer interface {
	Process(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Check(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RegisterActionGuardServiceServer registers srv on s.
func RegisterActionGuardServiceServer(s grpc.ServiceRegistrar, srv ActionGuardServiceServer) {
	s.RegisterService(&ActionGuardServiceDesc, srv)
}

// ActionGuardServiceDesc describes ActionGuardService for grpc.ServiceRegistrar.
var ActionGuardServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ActionGuardServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Process", Handler: processHandler},
		{MethodName: "Check", Handler: checkHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "actionguard/v1/action_guard.proto",
}

func processHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ActionGuardServiceServer).Process(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: processMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ActionGuardServiceServer).Process(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func checkHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ActionGuardServiceServer).Check(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: checkMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ActionGuardServiceServer).Check(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// ActionGuardServiceClient is a client for ActionGuardService.
type ActionGuardServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewActionGuardServiceClient creates a client over cc.
func NewActionGuardServiceClient(cc grpc.ClientConnInterface) *ActionGuardServiceClient {
	return &ActionGuardServiceClient{cc: cc}
}

func (c *ActionGuardServiceClient) Process(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, processMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ActionGuardServiceClient) Check(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, checkMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
