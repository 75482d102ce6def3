package engine

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// #region method-names
const (
	serviceName = "cropnet.inference.v1.InferenceService"

	queryMethod          = "/" + serviceName + "/Query"
	doInterventionMethod = "/" + serviceName + "/DoIntervention"
	resetDoMethod        = "/" + serviceName + "/ResetDo"
)

// #endregion method-names

// #region client-interface
// InferenceServiceClient is the client API of the engine service. Payloads
// are free-form structs so the Python side needs no generated stubs.
type InferenceServiceClient interface {
	Query(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	DoIntervention(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	ResetDo(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type inferenceServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewInferenceServiceClient binds the service to a connection.
func NewInferenceServiceClient(cc grpc.ClientConnInterface) InferenceServiceClient {
	return &inferenceServiceClient{cc: cc}
}

func (c *inferenceServiceClient) Query(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, queryMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *inferenceServiceClient) DoIntervention(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, doInterventionMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *inferenceServiceClient) ResetDo(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, resetDoMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// #endregion client-interface

// #region server-interface
// InferenceServiceServer is the server API of the engine service.
type InferenceServiceServer interface {
	Query(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DoIntervention(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ResetDo(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RegisterInferenceServiceServer registers srv on s.
func RegisterInferenceServiceServer(s grpc.ServiceRegistrar, srv InferenceServiceServer) {
	s.RegisterService(&inferenceServiceDesc, srv)
}

func unaryHandler(method string, call func(InferenceServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(InferenceServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(InferenceServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var inferenceServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*InferenceServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Query",
			Handler:    unaryHandler(queryMethod, InferenceServiceServer.Query),
		},
		{
			MethodName: "DoIntervention",
			Handler:    unaryHandler(doInterventionMethod, InferenceServiceServer.DoIntervention),
		},
		{
			MethodName: "ResetDo",
			Handler:    unaryHandler(resetDoMethod, InferenceServiceServer.ResetDo),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "cropnet/inference/v1/inference.proto",
}

// #endregion server-interface
