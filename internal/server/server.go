// Package server implements the gRPC entity service
package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/nainya/entitystore/internal/logger"
	"github.com/nainya/entitystore/pkg/client"
	"github.com/nainya/entitystore/pkg/errs"
	"github.com/nainya/entitystore/pkg/schema"
)

// Server implements EntityServiceServer over schema-defined records
type Server struct {
	client *client.Client
	schema *schema.Schema
	health *health.Server
	log    *logger.Logger
}

// NewServer creates the entity service
func NewServer(c *client.Client, s *schema.Schema, log *logger.Logger) *Server {
	return &Server{
		client: c,
		schema: s,
		health: health.NewServer(),
		log:    log,
	}
}

// Register adds the entity service and the standard health service to gs
func (s *Server) Register(gs *grpc.Server) {
	RegisterEntityServiceServer(gs, s)
	healthpb.RegisterHealthServer(gs, s.health)
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
}

// Shutdown marks every service as not serving
func (s *Server) Shutdown() {
	s.health.Shutdown()
}

// ========== Entity Operations ==========

func (s *Server) Persist(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	start := time.Now()
	class := stringField(req, "class")
	entity, err := s.entity(class)
	if err != nil {
		return nil, err
	}

	payload, ok := req.GetFields()["entity"]
	if !ok || payload.GetStructValue() == nil {
		return nil, status.Error(codes.InvalidArgument, "entity is required")
	}
	rec, err := entity.NewRecord(payload.GetStructValue().AsMap())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	key, err := entity.Metadata().RowKey(rec)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	err = s.client.Persist(ctx, rec)
	s.log.LogStoreOperation("persist", class, time.Since(start), err)
	if err != nil {
		return nil, toStatus(err)
	}

	return structpb.NewStruct(map[string]interface{}{
		"class": class,
		"key":   key,
	})
}

func (s *Server) Find(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	start := time.Now()
	class, key := stringField(req, "class"), stringField(req, "key")
	if _, err := s.entity(class); err != nil {
		return nil, err
	}
	if key == "" {
		return nil, status.Error(codes.InvalidArgument, "key is required")
	}

	found, err := s.client.Find(ctx, class, key)
	s.log.LogStoreOperation("find", class, time.Since(start), err)
	if err != nil {
		return nil, toStatus(err)
	}
	if found == nil {
		return structpb.NewStruct(map[string]interface{}{"found": false})
	}

	out, err := recordValue(found)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return structpb.NewStruct(map[string]interface{}{
		"found":  true,
		"entity": out,
	})
}

func (s *Server) Delete(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	start := time.Now()
	class, key := stringField(req, "class"), stringField(req, "key")
	if _, err := s.entity(class); err != nil {
		return nil, err
	}
	if key == "" {
		return nil, status.Error(codes.InvalidArgument, "key is required")
	}

	err := s.client.DeleteByKey(ctx, class, key)
	s.log.LogStoreOperation("delete", class, time.Since(start), err)
	if err != nil {
		return nil, toStatus(err)
	}
	return structpb.NewStruct(map[string]interface{}{"deleted": true})
}

func (s *Server) FindByColumn(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	start := time.Now()
	class, field := stringField(req, "class"), stringField(req, "field")
	entity, err := s.entity(class)
	if err != nil {
		return nil, err
	}
	typ, ok := entity.Type(field)
	if !ok {
		return nil, status.Errorf(codes.InvalidArgument, "%s has no attribute %q", class, field)
	}

	// Compare against the value's stored string form
	raw, ok := req.GetFields()["value"]
	if !ok {
		return nil, status.Error(codes.InvalidArgument, "value is required")
	}
	v, err := schema.Convert(typ, raw.AsInterface())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	probe := schema.NewRecord(class)
	probe.Set(field, v)
	attr, _ := entity.Metadata().Attribute(field)
	value, _, err := attr.Access.String(probe)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	found, err := s.client.FindByColumn(ctx, class, field, value)
	s.log.LogStoreOperation("find_by_column", class, time.Since(start), err)
	if err != nil {
		return nil, toStatus(err)
	}

	list := make([]interface{}, 0, len(found))
	for _, e := range found {
		out, err := recordValue(e)
		if err != nil {
			return nil, status.Error(codes.Internal, err.Error())
		}
		list = append(list, out)
	}
	return structpb.NewStruct(map[string]interface{}{"entities": list})
}

// entity resolves a schema entity or answers with a gRPC status
func (s *Server) entity(class string) (*schema.Entity, error) {
	if class == "" {
		return nil, status.Error(codes.InvalidArgument, "class is required")
	}
	e, ok := s.schema.Entity(class)
	if !ok {
		return nil, status.Errorf(codes.NotFound, "unknown entity class %q", class)
	}
	return e, nil
}

func stringField(req *structpb.Struct, name string) string {
	return req.GetFields()[name].GetStringValue()
}

func recordValue(entity any) (map[string]interface{}, error) {
	rec, ok := entity.(*schema.Record)
	if !ok {
		return nil, fmt.Errorf("unexpected entity type %T", entity)
	}
	out := make(map[string]interface{}, len(rec.Names()))
	for name, v := range rec.Fields() {
		out[name] = schema.Export(v)
	}
	return out, nil
}

// toStatus maps store error kinds onto gRPC codes
func toStatus(err error) error {
	if st := status.FromContextError(err); st.Code() != codes.Unknown {
		return st.Err()
	}

	code := codes.Internal
	switch {
	case errors.Is(err, errs.ErrNotRegistered):
		code = codes.NotFound
	case errors.Is(err, errs.ErrFieldAccess):
		code = codes.InvalidArgument
	case errors.Is(err, errs.ErrConnection):
		code = codes.Unavailable
	case errors.Is(err, errs.ErrUnsupported):
		code = codes.Unimplemented
	}
	return status.Error(code, err.Error())
}
