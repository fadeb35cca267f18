package grpc

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/arkilian/sds/internal/catalog"
	sdserrors "github.com/arkilian/sds/internal/errors"
	"github.com/arkilian/sds/internal/service"
	"github.com/arkilian/sds/pkg/types"
)

func newTestClient(t *testing.T) (*DataClient, *grpc.ClientConn, *service.Service) {
	t.Helper()
	ctx := context.Background()
	svc := service.New(catalog.New())
	_, err := svc.CreateOrUpdateType(ctx, &types.Type{
		ID: "WaveData",
		Properties: []types.Property{
			{ID: "Order", DataType: types.DataTypeInt32, IsKey: true},
			{ID: "Sin", DataType: types.DataTypeFloat64},
		},
	})
	require.NoError(t, err)
	_, err = svc.CreateOrGetStream(ctx, &types.Stream{ID: "s1", TypeID: "WaveData"})
	require.NoError(t, err)

	lis := bufconn.Listen(1 << 20)
	s, _ := NewGRPCServer(svc, slog.New(slog.NewTextHandler(io.Discard, nil)))
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return NewDataClient(conn), conn, svc
}

func mustStruct(t *testing.T, m map[string]any) *structpb.Struct {
	t.Helper()
	st, err := structpb.NewStruct(m)
	require.NoError(t, err)
	return st
}

func insertWaves(t *testing.T, c *DataClient) {
	t.Helper()
	req := mustStruct(t, map[string]any{
		"stream_id": "s1",
		"events": []any{
			map[string]any{"Order": 1, "Sin": 0.5},
			map[string]any{"Order": 2, "Sin": 1.5},
			map[string]any{"Order": 3, "Sin": 2.5},
		},
	})
	resp, err := c.Invoke(context.Background(), MethodInsert, req)
	require.NoError(t, err)
	assert.Equal(t, float64(3), resp.AsMap()["count"])
}

func TestServer_InsertAndRead(t *testing.T) {
	c, _, _ := newTestClient(t)
	insertWaves(t, c)
	ctx := context.Background()

	resp, err := c.Invoke(ctx, MethodGetLast, mustStruct(t, map[string]any{"stream_id": "s1"}))
	require.NoError(t, err)
	last := resp.AsMap()["event"].(map[string]any)
	assert.Equal(t, float64(3), last["Order"])

	resp, err = c.Invoke(ctx, MethodGetAt, mustStruct(t, map[string]any{
		"stream_id": "s1", "index": "2",
	}))
	require.NoError(t, err)
	assert.Equal(t, 1.5, resp.AsMap()["event"].(map[string]any)["Sin"])

	resp, err = c.Invoke(ctx, MethodGetWindow, mustStruct(t, map[string]any{
		"stream_id": "s1", "start_index": "1", "end_index": "3", "filter": "Sin gt 1",
	}))
	require.NoError(t, err)
	events := resp.AsMap()["events"].([]any)
	require.Len(t, events, 2)
	assert.Equal(t, float64(2), events[0].(map[string]any)["Order"])
}

func TestServer_UpdateUpserts(t *testing.T) {
	c, _, svc := newTestClient(t)
	insertWaves(t, c)

	_, err := c.Invoke(context.Background(), MethodUpdate, mustStruct(t, map[string]any{
		"stream_id": "s1",
		"events":    []any{map[string]any{"Order": 2, "Sin": 9}, map[string]any{"Order": 4, "Sin": 4}},
	}))
	require.NoError(t, err)

	ev, err := svc.GetLast("s1", service.ReadOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(4), ev["Order"])
}

func TestServer_StatusCodes(t *testing.T) {
	c, _, _ := newTestClient(t)
	insertWaves(t, c)
	ctx := context.Background()

	tests := []struct {
		name   string
		method string
		req    map[string]any
		code   codes.Code
	}{
		{"missing stream", MethodGetLast, map[string]any{"stream_id": "nope"}, codes.NotFound},
		{"no stream id", MethodGetLast, map[string]any{}, codes.InvalidArgument},
		{"duplicate", MethodInsert, map[string]any{"stream_id": "s1", "events": []any{map[string]any{"Order": 1}}}, codes.AlreadyExists},
		{"bad events", MethodInsert, map[string]any{"stream_id": "s1", "events": "x"}, codes.InvalidArgument},
		{"bad index", MethodGetAt, map[string]any{"stream_id": "s1", "index": "abc"}, codes.InvalidArgument},
		{"bad boundary", MethodGetAt, map[string]any{"stream_id": "s1", "index": "1", "boundary_type": "Sideways"}, codes.InvalidArgument},
		{"absent event", MethodGetAt, map[string]any{"stream_id": "s1", "index": "10"}, codes.NotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Invoke(ctx, tt.method, mustStruct(t, tt.req))
			require.Error(t, err)
			assert.Equal(t, tt.code, status.Code(err))
		})
	}
}

func TestServer_Health(t *testing.T) {
	_, conn, _ := newTestClient(t)
	resp, err := healthpb.NewHealthClient(conn).Check(context.Background(),
		&healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}

func TestCodeFor(t *testing.T) {
	assert.Equal(t, codes.OK, CodeFor(nil))
	assert.Equal(t, codes.NotFound, CodeFor(sdserrors.EmptyStream("s")))
	assert.Equal(t, codes.AlreadyExists, CodeFor(sdserrors.Conflict(sdserrors.CodeDefinitionDiffer, "differs")))
	assert.Equal(t, codes.FailedPrecondition, CodeFor(sdserrors.Conflict(sdserrors.CodeTypeInUse, "in use")))
	assert.Equal(t, codes.InvalidArgument, CodeFor(sdserrors.InvalidDefinition(sdserrors.CodeInvalidFilter, "bad")))
	assert.Equal(t, codes.Internal, CodeFor(errors.New("boom")))
}
