// gRPC service descriptor and client for the entity service.
// Messages are google.protobuf.Struct so no generated code is needed.
package server

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name
const ServiceName = "entitystore.v1.EntityService"

// Full method names
const (
	MethodPersist      = "/" + ServiceName + "/Persist"
	MethodFind         = "/" + ServiceName + "/Find"
	MethodDelete       = "/" + ServiceName + "/Delete"
	MethodFindByColumn = "/" + ServiceName + "/FindByColumn"
)

// EntityServiceServer is the server API of the entity service.
//
//	Persist      {class, entity}        -> {class, key}
//	Find         {class, key}           -> {found, entity?}
//	Delete       {class, key}           -> {deleted}
//	FindByColumn {class, field, value}  -> {entities}
type EntityServiceServer interface {
	Persist(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Find(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Delete(context.Context, *structpb.Struct) (*structpb.Struct, error)
	FindByColumn(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryCall func(EntityServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call unaryCall) func(interface{}, context.Context, func(interface{}) error, grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(EntityServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: fullMethod,
		}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(EntityServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// EntityServiceDesc describes the entity service for grpc.Server.RegisterService
var EntityServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*EntityServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Persist", Handler: unaryHandler(MethodPersist, EntityServiceServer.Persist)},
		{MethodName: "Find", Handler: unaryHandler(MethodFind, EntityServiceServer.Find)},
		{MethodName: "Delete", Handler: unaryHandler(MethodDelete, EntityServiceServer.Delete)},
		{MethodName: "FindByColumn", Handler: unaryHandler(MethodFindByColumn, EntityServiceServer.FindByColumn)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "entitystore/v1/entity_service.proto",
}

// RegisterEntityServiceServer registers srv with s
func RegisterEntityServiceServer(s grpc.ServiceRegistrar, srv EntityServiceServer) {
	s.RegisterService(&EntityServiceDesc, srv)
}

// EntityServiceClient calls the entity service
type EntityServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewEntityServiceClient creates a client over cc
func NewEntityServiceClient(cc grpc.ClientConnInterface) *EntityServiceClient {
	return &EntityServiceClient{cc: cc}
}

func (c *EntityServiceClient) invoke(ctx context.Context, method string, in *structpb.Struct, opts []grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Persist stores an entity
func (c *EntityServiceClient) Persist(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodPersist, in, opts)
}

// Find loads an entity by key
func (c *EntityServiceClient) Find(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodFind, in, opts)
}

// Delete removes an entity by key
func (c *EntityServiceClient) Delete(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodDelete, in, opts)
}

// FindByColumn loads entities whose attribute equals a value
func (c *EntityServiceClient) FindByColumn(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodFindByColumn, in, opts)
}
