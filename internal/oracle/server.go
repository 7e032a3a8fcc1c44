package oracle

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/midcourse-planner/internal/logging"
	"github.com/signalsfoundry/midcourse-planner/internal/observability"
)

// ServiceName is the fully-qualified gRPC service exposing the oracle.
const ServiceName = "planner.oracle.v1.VisibilityOracle"

const (
	queryMethod          = "/" + ServiceName + "/QueryVisibility"
	requestIDMetadataKey = "x-request-id"
)

// visibilityService is the handler type registered with grpc.
type visibilityService interface {
	queryVisibility(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*visibilityService)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "QueryVisibility", Handler: queryVisibilityHandler},
	},
	Streams: []grpc.StreamDesc{},
}

func queryVisibilityHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(visibilityService).queryVisibility(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: queryMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(visibilityService).queryVisibility(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// Server exposes any Oracle over gRPC.
type Server struct {
	backend Oracle
	log     logging.Logger
}

// NewServer wraps backend.
func NewServer(backend Oracle, log logging.Logger) *Server {
	if log == nil {
		log = logging.Noop()
	}
	return &Server{backend: backend, log: log}
}

// Register attaches the oracle service to s.
func (s *Server) Register(gs *grpc.Server) {
	gs.RegisterService(&serviceDesc, s)
}

func (s *Server) queryVisibility(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := logging.FromContext(ctx, s.log)

	q, err := decodeQuery(req)
	if err != nil {
		return nil, ToStatus(fmt.Errorf("%w: %v", ErrInvalidQuery, err))
	}
	ivs, err := s.backend.QueryVisibility(ctx, q.SatelliteID, q.MissileID, q.Start, q.End)
	if err != nil {
		log.Warn(ctx, "visibility query failed",
			logging.String("satellite_id", q.SatelliteID),
			logging.Missile(q.MissileID),
			logging.Err(err),
		)
		return nil, ToStatus(err)
	}
	resp, err := encodeIntervals(ivs)
	if err != nil {
		return nil, ToStatus(err)
	}
	log.Debug(ctx, "visibility query served",
		logging.String("satellite_id", q.SatelliteID),
		logging.Missile(q.MissileID),
		logging.Int("intervals", len(ivs)),
	)
	return resp, nil
}

// ServerOptions returns the interceptor and stats handler chain used by the
// oracle server.
func ServerOptions(log logging.Logger, collector *observability.OracleCollector) []grpc.ServerOption {
	return []grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			RequestIDUnaryServerInterceptor(log),
			TracingUnaryServerInterceptor(),
			collector.UnaryServerInterceptor(),
		),
	}
}

// RequestIDUnaryServerInterceptor ensures a request_id is present on the
// context, sourcing it from inbound metadata if provided, and attaches a
// per-request logger annotated with request_id and method.
func RequestIDUnaryServerInterceptor(base logging.Logger) grpc.UnaryServerInterceptor {
	if base == nil {
		base = logging.Noop()
	}
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if vals := md.Get(requestIDMetadataKey); len(vals) > 0 && vals[0] != "" {
				ctx = logging.ContextWithRequestID(ctx, vals[0])
			}
		}
		ctx, id := logging.EnsureRequestID(ctx)
		reqLog := base.With(logging.String("request_id", id), logging.String("method", info.FullMethod))
		return handler(logging.ContextWithLogger(ctx, reqLog), req)
	}
}

// TracingUnaryServerInterceptor names the server span after the oracle
// method, starting one when no stats handler created it.
func TracingUnaryServerInterceptor() grpc.UnaryServerInterceptor {
	tracer := otel.Tracer(observability.TracerName)

	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		service, method := observability.SplitMethod(info.FullMethod)
		name := fmt.Sprintf("Oracle/%s/%s", service, method)
		span := trace.SpanFromContext(ctx)
		created := false
		if !span.SpanContext().IsValid() {
			ctx, span = tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindServer))
			created = true
		} else {
			span.SetName(name)
		}

		attrs := []attribute.KeyValue{
			attribute.String("rpc.system", "grpc"),
			attribute.String("rpc.service", service),
			attribute.String("rpc.method", method),
			attribute.String("rpc.full_method", strings.TrimPrefix(info.FullMethod, "/")),
		}
		if reqID := logging.RequestIDFromContext(ctx); reqID != "" {
			attrs = append(attrs, attribute.String("request_id", reqID))
		}
		span.SetAttributes(attrs...)

		resp, err := handler(ctx, req)
		if err != nil {
			span.RecordError(err)
		}
		if created {
			span.End()
		}
		return resp, err
	}
}
