// Package grpc exposes the classifier and a standard health service over gRPC.
package grpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/ekisa-team/leafsight/internal/inference"
	"github.com/ekisa-team/leafsight/internal/service"
	"github.com/ekisa-team/leafsight/internal/vision"
)

// Server serves leafsight.v1.Classifier and grpc.health.v1.Health.
type Server struct {
	grpc    *grpc.Server
	health  *health.Server
	service *service.Classifier
	port    int
}

// NewServer creates a gRPC server on port. Messages up to maxRecvBytes are accepted.
func NewServer(port int, classifier *service.Classifier, maxRecvBytes int) *Server {
	opts := []grpc.ServerOption{grpc.ChainUnaryInterceptor(logUnary)}
	if maxRecvBytes > 0 {
		opts = append(opts, grpc.MaxRecvMsgSize(maxRecvBytes))
	}

	s := &Server{
		grpc:    grpc.NewServer(opts...),
		health:  health.NewServer(),
		service: classifier,
		port:    port,
	}

	healthpb.RegisterHealthServer(s.grpc, s.health)
	RegisterClassifierServer(s.grpc, s)
	s.SetServing(false)

	return s
}

// SetServing updates the health status of the server and the classifier service.
func (s *Server) SetServing(serving bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
}

// Classify implements ClassifierServer.
func (s *Server) Classify(ctx context.Context, in *wrapperspb.BytesValue) (*structpb.Struct, error) {
	p, err := s.service.Classify(ctx, in.GetValue(), service.Options{TopK: topK(ctx)})
	if err != nil {
		return nil, statusError(err)
	}

	out, err := toStruct(p)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode prediction: %v", err)
	}
	return out, nil
}

// Serve accepts connections on l until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("gRPC server listening", "addr", l.Addr().String())
		errCh <- s.grpc.Serve(l)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("Shutting down gRPC server")
	s.health.Shutdown()
	s.grpc.GracefulStop()
	return nil
}

// ListenAndServe listens on the configured port and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.port)
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("grpc listen %s: %w", addr, err)
	}
	return s.Serve(ctx, l)
}

func topK(ctx context.Context) int {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return 0
	}
	values := md.Get(TopKMetadata)
	if len(values) == 0 {
		return 0
	}
	k, err := strconv.Atoi(values[0])
	if err != nil {
		return 0
	}
	return k
}

// statusError maps pipeline failures to gRPC codes, mirroring the HTTP API.
func statusError(err error) error {
	switch {
	case errors.Is(err, vision.ErrDecode), errors.Is(err, vision.ErrPreprocess):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, service.ErrUnavailable):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, inference.ErrShapeMismatch), errors.Is(err, inference.ErrInference):
		return status.Error(codes.Internal, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Unknown, err.Error())
	}
}

// toStruct converts p through its JSON form, so the Struct matches the HTTP body.
func toStruct(p *service.Prediction) (*structpb.Struct, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}

	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}

func logUnary(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)

	attrs := []any{
		"method", info.FullMethod,
		"code", status.Code(err).String(),
		"elapsed", time.Since(start).Round(time.Millisecond),
	}
	if err != nil {
		slog.Warn("gRPC request failed", append(attrs, "error", err)...)
	} else {
		slog.Debug("gRPC request", attrs...)
	}
	return resp, err
}
