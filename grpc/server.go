package grpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog/log"
	grpc "google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"sticky-bot/models"
	"sticky-bot/repeater"
)

// ServiceName is the fully qualified name of the admin service.
const ServiceName = "sticky.admin.v1.RepeaterAdmin"

// RepeaterAdmin is what the admin service needs from the engine; *repeater.Registry satisfies it.
type RepeaterAdmin interface {
	List(ctx context.Context, guildID string) ([]*models.Repeater, error)
	Toggle(ctx context.Context, guildID string, id int64, enabled bool) (*models.Repeater, error)
	Delete(ctx context.Context, guildID string, id int64) error
}

// adminHandler is the handler type of the service descriptor.
type adminHandler interface {
	List(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	Toggle(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	Delete(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

var adminServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*adminHandler)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "List", Handler: unary("List", adminHandler.List)},
		{MethodName: "Toggle", Handler: unary("Toggle", adminHandler.Toggle)},
		{MethodName: "Delete", Handler: unary("Delete", adminHandler.Delete)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "sticky/admin/v1/admin.proto",
}

func unary(method string, call func(adminHandler, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		h := srv.(adminHandler)
		if interceptor == nil {
			return call(h, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + method}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(h, ctx, req.(*structpb.Struct))
		})
	}
}

// Server hosts the admin and health services.
type Server struct {
	srv    *grpc.Server
	health *health.Server
}

// NewServer registers the admin service for admin.
func NewServer(admin RepeaterAdmin) *Server {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(logInterceptor))
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	srv.RegisterService(&adminServiceDesc, &adminServer{admin: admin})
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	return &Server{srv: srv, health: hs}
}

// Serve blocks serving lis until Stop.
func (s *Server) Serve(lis net.Listener) error {
	return s.srv.Serve(lis)
}

// Start listens on addr and serves in the background.
func (s *Server) Start(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	go func() {
		if err := s.srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			log.Error().Err(err).Msg("admin gRPC server stopped")
		}
	}()
	log.Info().Str("address", lis.Addr().String()).Msg("admin gRPC server listening")
	return nil
}

// Stop marks the services as not serving and drains in-flight calls.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.srv.GracefulStop()
}

func logInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	log.Debug().Str("method", info.FullMethod).Dur("took", time.Since(start)).
		Str("code", status.Code(err).String()).Msg("admin call")
	return resp, err
}

type adminServer struct {
	admin RepeaterAdmin
}

func (a *adminServer) List(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	guildID, err := requireString(in, "guild_id")
	if err != nil {
		return nil, err
	}
	reps, err := a.admin.List(ctx, guildID)
	if err != nil {
		return nil, toStatus(err)
	}
	items := make([]any, 0, len(reps))
	for _, rep := range reps {
		items = append(items, summaryOf(rep).fields())
	}
	return structpb.NewStruct(map[string]any{"repeaters": items})
}

func (a *adminServer) Toggle(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	guildID, id, err := target(in)
	if err != nil {
		return nil, err
	}
	enabled, ok := in.GetFields()["enabled"]
	if !ok {
		return nil, status.Error(codes.InvalidArgument, "enabled is required")
	}
	rep, err := a.admin.Toggle(ctx, guildID, id, enabled.GetBoolValue())
	if err != nil {
		return nil, toStatus(err)
	}
	return structpb.NewStruct(summaryOf(rep).fields())
}

func (a *adminServer) Delete(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	guildID, id, err := target(in)
	if err != nil {
		return nil, err
	}
	if err := a.admin.Delete(ctx, guildID, id); err != nil {
		return nil, toStatus(err)
	}
	return structpb.NewStruct(map[string]any{"deleted": id})
}

func requireString(in *structpb.Struct, key string) (string, error) {
	v := in.GetFields()[key].GetStringValue()
	if v == "" {
		return "", status.Errorf(codes.InvalidArgument, "%s is required", key)
	}
	return v, nil
}

func target(in *structpb.Struct) (string, int64, error) {
	guildID, err := requireString(in, "guild_id")
	if err != nil {
		return "", 0, err
	}
	id := int64(in.GetFields()["id"].GetNumberValue())
	if id <= 0 {
		return "", 0, status.Error(codes.InvalidArgument, "id must be positive")
	}
	return guildID, id, nil
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, repeater.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, repeater.ErrInvalidRepeater):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
