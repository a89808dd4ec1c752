package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	"github.com/nainya/entitystore/internal/config"
	"github.com/nainya/entitystore/internal/logger"
	"github.com/nainya/entitystore/internal/metrics"
	"github.com/nainya/entitystore/internal/server"
	"github.com/nainya/entitystore/pkg/client"
	"github.com/nainya/entitystore/pkg/indexer"
	"github.com/nainya/entitystore/pkg/schema"
	"github.com/nainya/entitystore/pkg/search/blevesink"
	"github.com/nainya/entitystore/pkg/storage"
	"github.com/nainya/entitystore/pkg/storage/redisstore"
)

var schemaPath string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the gRPC entity service",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		if schemaPath != "" {
			cfg.Schema.Path = schemaPath
		}
		if cfg.Schema.Path == "" {
			fatal("Error starting server", fmt.Errorf("a schema file is required (--schema or schema.path)"))
		}
		if err := serve(cfg); err != nil {
			fatal("Error running server", err)
		}
	},
}

func init() {
	serveCmd.Flags().StringVarP(&schemaPath, "schema", "s", "", "Entity schema file")
	rootCmd.AddCommand(serveCmd)
}

// backend is the primary store plus its readiness probe
type backend struct {
	pool  storage.Pool
	ready server.ReadyFunc
	close func() error
}

func openBackend(cfg config.StoreConfig) backend {
	if cfg.Backend == config.StoreRedis {
		r := cfg.Redis
		store := redisstore.New(redisstore.Options{
			Addr:         r.Addr,
			Username:     r.Username,
			Password:     r.Password,
			DB:           r.DB,
			PoolSize:     r.PoolSize,
			DialTimeout:  r.DialTimeout,
			ReadTimeout:  r.ReadTimeout,
			WriteTimeout: r.WriteTimeout,
		})
		return backend{pool: store, ready: store.Ping, close: store.Close}
	}

	store := storage.NewMemoryStore()
	return backend{
		pool: store,
		close: func() error {
			store.Close()
			return nil
		},
	}
}

func openSearch(cfg config.SearchConfig, log *logger.Logger) (*blevesink.Sink, error) {
	switch cfg.Backend {
	case config.SearchMemory:
		return blevesink.NewMemory(log.Zerolog())
	case config.SearchDisk:
		return blevesink.Open(cfg.Path, log.Zerolog())
	}
	return nil, nil
}

func serve(cfg *config.Config) error {
	log := newLogger(cfg)

	s, err := schema.Load(cfg.Schema.Path)
	if err != nil {
		return err
	}
	log.LogSchemaLoaded(cfg.Schema.Path, s.Classes())

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	store := openBackend(cfg.Store)
	defer store.close()

	opts := []client.Option{
		client.WithLogger(log.Component("client").Zerolog()),
		client.WithRecorder(m),
		client.WithStrictLookups(!cfg.Lookups.ConnectionErrorAsMiss),
	}
	sink, err := openSearch(cfg.Search, log)
	if err != nil {
		return err
	}
	if sink != nil {
		defer sink.Close()
		m.WatchDocumentCount(sink.DocCount)
		opts = append(opts, client.WithIndexer(indexer.New(indexer.NewBuilder(log.Zerolog()), sink)))
	}

	c := client.New(store.pool, s.Registry(), opts...)
	srv := server.NewServer(c, s, log)

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.GrpcPort))
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	grpcServer := grpc.NewServer(
		grpc.UnaryInterceptor(server.GrpcMetricsInterceptor(m, log)),
	)
	srv.Register(grpcServer)
	reflection.Register(grpcServer)

	var obs *server.ObservabilityServer
	if cfg.Server.MetricsPort != 0 {
		obs = server.NewObservabilityServer(cfg.Server.MetricsPort, reg, store.ready, log.Component("observability"))
		go func() {
			if err := obs.Start(); err != nil {
				log.Error("Observability server failed").Err(err).Send()
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.LogServerShutdown(sig.String())
		srv.Shutdown()
		if obs != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			obs.Shutdown(ctx)
		}
		grpcServer.GracefulStop()
	}()

	log.LogServerStart(logger.ServerInfo{
		GrpcPort:    cfg.Server.GrpcPort,
		MetricsPort: cfg.Server.MetricsPort,
		Store:       cfg.Store.Backend,
		Search:      cfg.Search.Backend,
	})
	if err := grpcServer.Serve(lis); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}
