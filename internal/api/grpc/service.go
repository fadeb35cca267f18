// Package grpc provides the gRPC adapter of the sds store.
//
// The data service carries events as google.protobuf.Struct messages, so
// it is declared here without generated stubs. Numbers travel as doubles
// and times as RFC 3339 strings; the store coerces them into the stream's
// property types on write.
package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified data service name.
const ServiceName = "sds.v1.DataService"

// Method names.
const (
	MethodInsert    = "Insert"
	MethodUpdate    = "Update"
	MethodGetAt     = "GetAt"
	MethodGetWindow = "GetWindow"
	MethodGetLast   = "GetLast"
)

// DataServer is the server API of the data service.
//
// Requests carry stream_id, plus events for writes; index and
// boundary_type for GetAt; start_index, end_index, boundary_type and filter
// for GetWindow. Reads accept view_id and secondary_index. Responses carry
// event or events.
type DataServer interface {
	Insert(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Update(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetAt(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetWindow(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetLast(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type call func(DataServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(name string, fn call) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return fn(srv.(DataServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return fn(srv.(DataServer), ctx, req.(*structpb.Struct))
			})
		},
	}
}

// FullMethod returns the invocation path of a data service method.
func FullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

// DataServiceDesc describes the data service for grpc.Server.RegisterService.
var DataServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*DataServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(MethodInsert, DataServer.Insert),
		unary(MethodUpdate, DataServer.Update),
		unary(MethodGetAt, DataServer.GetAt),
		unary(MethodGetWindow, DataServer.GetWindow),
		unary(MethodGetLast, DataServer.GetLast),
	},
	Metadata: "sds/v1/data.proto",
}

// RegisterDataServer registers srv on s.
func RegisterDataServer(s grpc.ServiceRegistrar, srv DataServer) {
	s.RegisterService(&DataServiceDesc, srv)
}

// DataClient calls the data service over a connection.
type DataClient struct {
	cc grpc.ClientConnInterface
}

// NewDataClient creates a client over cc.
func NewDataClient(cc grpc.ClientConnInterface) *DataClient {
	return &DataClient{cc: cc}
}

// Invoke calls method with req.
func (c *DataClient) Invoke(ctx context.Context, method string, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, FullMethod(method), req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
