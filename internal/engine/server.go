package engine

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/cropnet/internal/inference"
)

// EngineServer exposes any inference.Engine over the service, so a Go-side
// engine (or a stub in tests) can stand in for the Python one.
type EngineServer struct {
	engine inference.Engine
}

var _ InferenceServiceServer = (*EngineServer)(nil)

// NewEngineServer wraps e.
func NewEngineServer(e inference.Engine) *EngineServer {
	return &EngineServer{engine: e}
}

func (s *EngineServer) Query(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	obs, err := decodeQuery(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	results, err := s.engine.Query(ctx, obs)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return encodeResults(results)
}

func (s *EngineServer) DoIntervention(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	fields := in.GetFields()
	variable := fields["variable"].GetStringValue()
	if variable == "" {
		return nil, status.Error(codes.InvalidArgument, "variable is required")
	}
	bucket, err := bucketValue(fields["bucket"])
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if err := s.engine.DoIntervention(ctx, variable, bucket); err != nil {
		return nil, status.Error(codes.FailedPrecondition, err.Error())
	}
	return &structpb.Struct{}, nil
}

func (s *EngineServer) ResetDo(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	variable := in.GetFields()["variable"].GetStringValue()
	if variable == "" {
		return nil, status.Error(codes.InvalidArgument, "variable is required")
	}
	if err := s.engine.ResetDo(ctx, variable); err != nil {
		return nil, status.Error(codes.FailedPrecondition, err.Error())
	}
	return &structpb.Struct{}, nil
}
