// Integration tests for the entity gRPC service
package server

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/nainya/entitystore/internal/logger"
	"github.com/nainya/entitystore/internal/metrics"
	"github.com/nainya/entitystore/pkg/client"
	"github.com/nainya/entitystore/pkg/indexer"
	"github.com/nainya/entitystore/pkg/schema"
	"github.com/nainya/entitystore/pkg/search/blevesink"
	"github.com/nainya/entitystore/pkg/storage"
)

const bufSize = 1024 * 1024

const testSchema = `
entities:
  - class: Person
    table: person
    id: id
    attributes:
      - name: id
        type: int
      - name: name
        indexed: true
      - name: age
        type: int
        indexed: true
      - name: joined
        type: time
`

type testEnv struct {
	client  *EntityServiceClient
	health  healthpb.HealthClient
	store   *storage.MemoryStore
	metrics *metrics.Metrics
	sink    *blevesink.Sink
}

func setupTestServer(t *testing.T, opts ...client.Option) *testEnv {
	t.Helper()

	s, err := schema.Parse([]byte(testSchema))
	if err != nil {
		t.Fatalf("Failed to parse schema: %v", err)
	}

	store := storage.NewMemoryStore()
	sink, err := blevesink.NewMemory(zerolog.Nop())
	if err != nil {
		t.Fatalf("Failed to create search sink: %v", err)
	}
	m := metrics.New(prometheus.NewRegistry())
	log := logger.Nop()

	opts = append([]client.Option{
		client.WithIndexer(indexer.New(indexer.NewBuilder(zerolog.Nop()), sink)),
		client.WithRecorder(m),
	}, opts...)
	c := client.New(store, s.Registry(), opts...)

	srv := NewServer(c, s, log)
	lis := bufconn.Listen(bufSize)
	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(GrpcMetricsInterceptor(m, log)))
	srv.Register(grpcServer)

	go func() {
		// Serve returns once the server is stopped during cleanup
		grpcServer.Serve(lis)
	}()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) {
			return lis.Dial()
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("Failed to dial bufnet: %v", err)
	}

	t.Cleanup(func() {
		conn.Close()
		srv.Shutdown()
		grpcServer.Stop()
		lis.Close()
		sink.Close()
	})

	return &testEnv{
		client:  NewEntityServiceClient(conn),
		health:  healthpb.NewHealthClient(conn),
		store:   store,
		metrics: m,
		sink:    sink,
	}
}

func mustStruct(t *testing.T, m map[string]interface{}) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(m)
	if err != nil {
		t.Fatalf("Failed to build struct: %v", err)
	}
	return s
}

func TestPersistAndFind(t *testing.T) {
	env := setupTestServer(t)
	ctx := context.Background()

	resp, err := env.client.Persist(ctx, mustStruct(t, map[string]interface{}{
		"class": "Person",
		"entity": map[string]interface{}{
			"id":     42,
			"name":   "Bob",
			"age":    30,
			"joined": "2024-03-01T09:30:00Z",
		},
	}))
	if err != nil {
		t.Fatalf("Persist failed: %v", err)
	}
	if got := resp.Fields["key"].GetStringValue(); got != "42" {
		t.Errorf("Expected key 42, got %q", got)
	}

	found, err := env.client.Find(ctx, mustStruct(t, map[string]interface{}{"class": "Person", "key": "42"}))
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if !found.Fields["found"].GetBoolValue() {
		t.Fatalf("Expected entity to be found")
	}
	entity := found.Fields["entity"].GetStructValue().AsMap()
	if entity["name"] != "Bob" || entity["age"] != float64(30) || entity["id"] != float64(42) {
		t.Errorf("Unexpected entity: %v", entity)
	}
	if entity["joined"] != "2024-03-01T09:30:00Z" {
		t.Errorf("Unexpected joined: %v", entity["joined"])
	}

	count, err := env.sink.DocCount()
	if err != nil || count != 1 {
		t.Errorf("Expected 1 search document, got %d (%v)", count, err)
	}
	if got := testutil.ToFloat64(env.metrics.StoreOperationsTotal.WithLabelValues("persist", "success")); got != 1 {
		t.Errorf("Expected 1 persist recorded, got %v", got)
	}
	if got := testutil.ToFloat64(env.metrics.GrpcRequestsTotal.WithLabelValues(MethodPersist, "success")); got != 1 {
		t.Errorf("Expected 1 gRPC persist recorded, got %v", got)
	}
}

func TestFindMissing(t *testing.T) {
	env := setupTestServer(t)

	resp, err := env.client.Find(context.Background(), mustStruct(t, map[string]interface{}{"class": "Person", "key": "404"}))
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if resp.Fields["found"].GetBoolValue() {
		t.Error("Expected not found")
	}
	if _, ok := resp.Fields["entity"]; ok {
		t.Error("Missing entity must not carry a payload")
	}
}

func TestFindByColumnAndDelete(t *testing.T) {
	env := setupTestServer(t)
	ctx := context.Background()

	for i, name := range []string{"Bob", "Eve", "Bob"} {
		_, err := env.client.Persist(ctx, mustStruct(t, map[string]interface{}{
			"class":  "Person",
			"entity": map[string]interface{}{"id": i + 1, "name": name, "age": 30 + i},
		}))
		if err != nil {
			t.Fatalf("Persist %d failed: %v", i, err)
		}
	}

	resp, err := env.client.FindByColumn(ctx, mustStruct(t, map[string]interface{}{
		"class": "Person", "field": "name", "value": "Bob",
	}))
	if err != nil {
		t.Fatalf("FindByColumn failed: %v", err)
	}
	if n := len(resp.Fields["entities"].GetListValue().GetValues()); n != 2 {
		t.Errorf("Expected 2 entities, got %d", n)
	}

	// Numeric values are matched on their stored form
	resp, err = env.client.FindByColumn(ctx, mustStruct(t, map[string]interface{}{
		"class": "Person", "field": "age", "value": 31,
	}))
	if err != nil {
		t.Fatalf("FindByColumn failed: %v", err)
	}
	if n := len(resp.Fields["entities"].GetListValue().GetValues()); n != 1 {
		t.Errorf("Expected 1 entity aged 31, got %d", n)
	}

	if _, err := env.client.Delete(ctx, mustStruct(t, map[string]interface{}{"class": "Person", "key": "1"})); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	resp, err = env.client.FindByColumn(ctx, mustStruct(t, map[string]interface{}{
		"class": "Person", "field": "name", "value": "Bob",
	}))
	if err != nil {
		t.Fatalf("FindByColumn failed: %v", err)
	}
	if n := len(resp.Fields["entities"].GetListValue().GetValues()); n != 1 {
		t.Errorf("Expected 1 entity after delete, got %d", n)
	}
}

func TestErrorCodes(t *testing.T) {
	env := setupTestServer(t, client.WithStrictLookups(true))
	ctx := context.Background()

	cases := []struct {
		name string
		call func() error
		code codes.Code
	}{
		{"missing class", func() error {
			_, err := env.client.Find(ctx, mustStruct(t, map[string]interface{}{"key": "1"}))
			return err
		}, codes.InvalidArgument},
		{"unknown class", func() error {
			_, err := env.client.Find(ctx, mustStruct(t, map[string]interface{}{"class": "Invoice", "key": "1"}))
			return err
		}, codes.NotFound},
		{"bad value", func() error {
			_, err := env.client.Persist(ctx, mustStruct(t, map[string]interface{}{
				"class": "Person", "entity": map[string]interface{}{"id": 1, "age": "old"},
			}))
			return err
		}, codes.InvalidArgument},
		{"missing id", func() error {
			_, err := env.client.Persist(ctx, mustStruct(t, map[string]interface{}{
				"class": "Person", "entity": map[string]interface{}{"name": "Bob"},
			}))
			return err
		}, codes.InvalidArgument},
		{"unknown field", func() error {
			_, err := env.client.FindByColumn(ctx, mustStruct(t, map[string]interface{}{
				"class": "Person", "field": "nickname", "value": "B",
			}))
			return err
		}, codes.InvalidArgument},
		{"store down", func() error {
			env.store.Close()
			defer env.store.Reopen()
			_, err := env.client.Find(ctx, mustStruct(t, map[string]interface{}{"class": "Person", "key": "1"}))
			return err
		}, codes.Unavailable},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.call()
			if got := status.Code(err); got != tc.code {
				t.Errorf("Expected %v, got %v (%v)", tc.code, got, err)
			}
		})
	}
}

func TestLookupOutageReportedAsMiss(t *testing.T) {
	env := setupTestServer(t)
	env.store.Close()

	resp, err := env.client.Find(context.Background(), mustStruct(t, map[string]interface{}{"class": "Person", "key": "1"}))
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if resp.Fields["found"].GetBoolValue() {
		t.Error("Expected not found")
	}
	if got := testutil.ToFloat64(env.metrics.LookupMissesTotal); got != 1 {
		t.Errorf("Expected 1 lookup miss, got %v", got)
	}
}

func TestHealthService(t *testing.T) {
	env := setupTestServer(t)

	resp, err := env.health.Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		t.Fatalf("Health check failed: %v", err)
	}
	if resp.Status != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("Expected SERVING, got %v", resp.Status)
	}
}

func TestObservabilityHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics.New(reg)

	var down atomic.Bool
	srv := httptest.NewServer(ObservabilityHandler(reg, func(context.Context) error {
		if down.Load() {
			return io.ErrUnexpectedEOF
		}
		return nil
	}))
	defer srv.Close()

	get := func(path string) (int, string) {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s failed: %v", path, err)
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, string(body)
	}

	code, body := get("/health")
	var health map[string]string
	if err := json.Unmarshal([]byte(body), &health); err != nil || code != http.StatusOK || health["service"] != "entitystore" {
		t.Errorf("Unexpected /health: %d %s", code, body)
	}

	if code, _ := get("/ready"); code != http.StatusOK {
		t.Errorf("Expected ready, got %d", code)
	}
	down.Store(true)
	if code, _ := get("/ready"); code != http.StatusServiceUnavailable {
		t.Errorf("Expected unavailable, got %d", code)
	}

	code, body = get("/metrics")
	if code != http.StatusOK || !strings.Contains(body, "entitystore_server_uptime_seconds") {
		t.Errorf("Unexpected /metrics: %d", code)
	}
}
