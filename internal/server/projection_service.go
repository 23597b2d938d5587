package server

import (
	"context"
	"encoding/json"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/alfredjeanlab/marketplace/internal/store"
)

// ProjectionServiceName is the fully qualified name of the gRPC
// administration service.
const ProjectionServiceName = "marketplace.v1.ProjectionService"

// ProjectionServiceServer is the gRPC administration API of the projection
// host. Responses are well-known protobuf types carrying the same JSON
// documents as the HTTP API.
type ProjectionServiceServer interface {
	// ListProjections returns {"projections": [...]}.
	ListProjections(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	// ListCheckpoints returns {"checkpoints": [...]}.
	ListCheckpoints(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	// ResetCheckpoint deletes the checkpoint of the named projection.
	ResetCheckpoint(context.Context, *wrapperspb.StringValue) (*emptypb.Empty, error)
}

// ProjectionServiceDesc describes ProjectionServiceServer to grpc.Server.
var ProjectionServiceDesc = grpc.ServiceDesc{
	ServiceName: ProjectionServiceName,
	HandlerType: (*ProjectionServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "ListProjections",
			Handler:    unaryHandler("ListProjections", ProjectionServiceServer.ListProjections),
		},
		{
			MethodName: "ListCheckpoints",
			Handler:    unaryHandler("ListCheckpoints", ProjectionServiceServer.ListCheckpoints),
		},
		{
			MethodName: "ResetCheckpoint",
			Handler:    unaryHandler("ResetCheckpoint", ProjectionServiceServer.ResetCheckpoint),
		},
	},
	Streams: []grpc.StreamDesc{},
}

// unaryHandler decodes the request and routes the call through the
// server's interceptor chain, the way generated service code does.
func unaryHandler[Req any, Resp any](method string, call func(ProjectionServiceServer, context.Context, *Req) (Resp, error)) grpc.MethodHandler {
	fullMethod := "/" + ProjectionServiceName + "/" + method
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(ProjectionServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(ProjectionServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// projectionService implements ProjectionServiceServer on top of Server.
type projectionService struct {
	s *Server
}

func (p projectionService) ListProjections(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	return toStruct("projections", p.s.status.Snapshot())
}

func (p projectionService) ListCheckpoints(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	checkpoints, err := p.s.checkpoints.ListCheckpoints(ctx)
	if err != nil {
		p.s.logger.Error("list checkpoints failed", "err", err)
		return nil, status.Errorf(codes.Internal, "failed to list checkpoints: %v", err)
	}
	return toStruct("checkpoints", checkpoints)
}

func (p projectionService) ResetCheckpoint(ctx context.Context, req *wrapperspb.StringValue) (*emptypb.Empty, error) {
	name := req.GetValue()
	if name == "" {
		return nil, status.Error(codes.InvalidArgument, "projection name is required")
	}
	err := p.s.checkpoints.DeleteCheckpoint(ctx, name)
	switch {
	case errors.Is(err, store.ErrCheckpointNotFound):
		return nil, status.Error(codes.NotFound, "checkpoint not found")
	case err != nil:
		p.s.logger.Error("reset checkpoint failed", "projection", name, "err", err)
		return nil, status.Errorf(codes.Internal, "failed to reset checkpoint: %v", err)
	}
	p.s.logger.Info("checkpoint reset", "projection", name)
	return &emptypb.Empty{}, nil
}

// toStruct wraps v under key, using the JSON field names of the HTTP API.
func toStruct(key string, v any) (*structpb.Struct, error) {
	b, err := json.Marshal(map[string]any{key: v})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode %s: %v", key, err)
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(b, out); err != nil {
		return nil, status.Errorf(codes.Internal, "encode %s: %v", key, err)
	}
	return out, nil
}
