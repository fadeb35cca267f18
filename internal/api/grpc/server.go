package grpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	sdserrors "github.com/arkilian/sds/internal/errors"
	"github.com/arkilian/sds/internal/service"
	"github.com/arkilian/sds/pkg/types"
)

// Server implements DataServer over a Service.
type Server struct {
	svc    *service.Service
	logger *slog.Logger
}

var _ DataServer = (*Server)(nil)

// NewServer creates a data server.
func NewServer(svc *service.Service, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{svc: svc, logger: logger}
}

// NewGRPCServer builds a grpc.Server serving the data service and the
// standard health service. The returned health server reports SERVING for
// the data service until it is shut down.
func NewGRPCServer(svc *service.Service, logger *slog.Logger, opts ...grpc.ServerOption) (*grpc.Server, *health.Server) {
	srv := NewServer(svc, logger)
	opts = append([]grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(srv.requestInterceptor),
	}, opts...)
	s := grpc.NewServer(opts...)
	RegisterDataServer(s, srv)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	return s, hs
}

// extractRequestID extracts or generates a request ID from the gRPC context.
func extractRequestID(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if ids := md.Get("x-request-id"); len(ids) > 0 {
			return ids[0]
		}
	}
	return uuid.New().String()
}

func (s *Server) requestInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	requestID := extractRequestID(ctx)
	grpc.SetHeader(ctx, metadata.Pairs("x-request-id", requestID))
	start := time.Now()
	resp, err := handler(ctx, req)
	s.logger.Debug("rpc served",
		"method", info.FullMethod,
		"code", status.Code(err).String(),
		"duration", time.Since(start),
		"request_id", requestID)
	return resp, err
}

// CodeFor maps an error to its gRPC status code.
func CodeFor(err error) codes.Code {
	switch {
	case err == nil:
		return codes.OK
	case errors.Is(err, sdserrors.ErrNotFound):
		return codes.NotFound
	case errors.Is(err, sdserrors.ErrConflict):
		switch sdserrors.GetCode(err) {
		case sdserrors.CodeDuplicateKey, sdserrors.CodeDefinitionDiffer:
			return codes.AlreadyExists
		}
		return codes.FailedPrecondition
	case errors.Is(err, sdserrors.ErrInvalidDefinition):
		return codes.InvalidArgument
	}
	return codes.Internal
}

func toStatus(err error) error {
	if err == nil {
		return nil
	}
	return status.Error(CodeFor(err), err.Error())
}

func invalidArgument(format string, args ...any) error {
	return status.Errorf(codes.InvalidArgument, format, args...)
}

// request wraps the fields of an incoming message.
type request struct {
	fields map[string]*structpb.Value
}

func newRequest(in *structpb.Struct) request {
	return request{fields: in.GetFields()}
}

func (r request) str(name string) string {
	return r.fields[name].GetStringValue()
}

func (r request) streamID() (string, error) {
	id := r.str("stream_id")
	if id == "" {
		return "", invalidArgument("stream_id is required")
	}
	return id, nil
}

func (r request) options() service.ReadOptions {
	return service.ReadOptions{ViewID: r.str("view_id"), Index: r.str("secondary_index")}
}

func (r request) boundary() (types.BoundaryType, error) {
	s := r.str("boundary_type")
	if s == "" {
		return types.BoundaryExact, nil
	}
	b, ok := types.ParseBoundaryType(s)
	if !ok {
		return 0, invalidArgument("unknown boundary_type %q", s)
	}
	return b, nil
}

func (r request) events() ([]types.Event, error) {
	list := r.fields["events"].GetListValue()
	if list == nil {
		return nil, invalidArgument("events must be a list")
	}
	out := make([]types.Event, len(list.GetValues()))
	for i, v := range list.GetValues() {
		st := v.GetStructValue()
		if st == nil {
			return nil, invalidArgument("events[%d] must be an object", i)
		}
		out[i] = types.Event(st.AsMap())
	}
	return out, nil
}

func (s *Server) key(streamID string, r request, name string, opts service.ReadOptions) (types.Key, error) {
	text := r.str(name)
	if text == "" {
		return nil, invalidArgument("%s is required", name)
	}
	k, err := s.svc.ParseIndex(streamID, text, opts)
	if err != nil {
		return nil, toStatus(err)
	}
	return k, nil
}

// encodeEvent renders canonical values into protobuf values. Times become
// RFC 3339 strings.
func encodeEvent(ev types.Event) (*structpb.Value, error) {
	m := make(map[string]any, len(ev))
	for k, v := range ev {
		switch x := v.(type) {
		case time.Time:
			m[k] = types.FormatValue(x)
		default:
			m[k] = x
		}
	}
	st, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode event: %v", err)
	}
	return structpb.NewStructValue(st), nil
}

func eventResponse(ev types.Event) (*structpb.Struct, error) {
	v, err := encodeEvent(ev)
	if err != nil {
		return nil, err
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{"event": v}}, nil
}

func eventsResponse(events []types.Event) (*structpb.Struct, error) {
	values := make([]*structpb.Value, len(events))
	for i, ev := range events {
		v, err := encodeEvent(ev)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	list := structpb.NewListValue(&structpb.ListValue{Values: values})
	return &structpb.Struct{Fields: map[string]*structpb.Value{"events": list}}, nil
}

func (s *Server) write(in *structpb.Struct, apply func(string, []types.Event) error) (*structpb.Struct, error) {
	r := newRequest(in)
	id, err := r.streamID()
	if err != nil {
		return nil, err
	}
	events, err := r.events()
	if err != nil {
		return nil, err
	}
	if err := apply(id, events); err != nil {
		return nil, toStatus(err)
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"count": structpb.NewNumberValue(float64(len(events))),
	}}, nil
}

// Insert adds a batch of events.
func (s *Server) Insert(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return s.write(in, s.svc.InsertBatch)
}

// Update upserts a batch of events.
func (s *Server) Update(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return s.write(in, s.svc.UpdateBatch)
}

// GetAt returns the event at index.
func (s *Server) GetAt(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	r := newRequest(in)
	id, err := r.streamID()
	if err != nil {
		return nil, err
	}
	b, err := r.boundary()
	if err != nil {
		return nil, err
	}
	opts := r.options()
	k, err := s.key(id, r, "index", opts)
	if err != nil {
		return nil, err
	}
	ev, err := s.svc.GetAt(id, k, b, opts)
	if err != nil {
		return nil, toStatus(err)
	}
	return eventResponse(ev)
}

// GetWindow returns the events between start_index and end_index.
func (s *Server) GetWindow(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	r := newRequest(in)
	id, err := r.streamID()
	if err != nil {
		return nil, err
	}
	b, err := r.boundary()
	if err != nil {
		return nil, err
	}
	opts := r.options()
	start, err := s.key(id, r, "start_index", opts)
	if err != nil {
		return nil, err
	}
	end, err := s.key(id, r, "end_index", opts)
	if err != nil {
		return nil, err
	}
	events, err := s.svc.GetWindowFiltered(id, start, end, b, r.str("filter"), opts)
	if err != nil {
		return nil, toStatus(err)
	}
	return eventsResponse(events)
}

// GetLast returns the last event.
func (s *Server) GetLast(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	r := newRequest(in)
	id, err := r.streamID()
	if err != nil {
		return nil, err
	}
	ev, err := s.svc.GetLast(id, r.options())
	if err != nil {
		return nil, toStatus(err)
	}
	return eventResponse(ev)
}

// String names the served service.
func (s *Server) String() string {
	return fmt.Sprintf("%s server", ServiceName)
}
