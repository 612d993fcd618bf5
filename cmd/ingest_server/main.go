package main

import (
	"context"
	"flag"
	"net"

	protoTrace "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	_ "google.golang.org/grpc/encoding/gzip"

	"github.com/tracelet/spanstore/pkg/cassandra/bootstrapper"
	"github.com/tracelet/spanstore/pkg/cassandra/client"
	"github.com/tracelet/spanstore/pkg/config"
	traceServer "github.com/tracelet/spanstore/pkg/trace/server"
	traceService "github.com/tracelet/spanstore/pkg/trace/service"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the yaml config file")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	session, err := client.NewGocqlSession(
		cfg.Cassandra.Hosts,
		cfg.Cassandra.Keyspace,
		cfg.Cassandra.ConnectTimeout,
	)
	if err != nil {
		logger.Fatal("Failed to create cassandra session", zap.Error(err))
	}
	defer session.Close()

	bs := bootstrapper.NewBootstrapper(session, logger)
	if err := bs.BootstrapCassandra(context.Background()); err != nil {
		logger.Fatal("Failed to bootstrap cassandra", zap.Error(err))
	}

	settings := traceService.Settings{
		StrictTraceID:       cfg.Storage.StrictTraceID,
		DedupTTL:            cfg.Storage.DedupTTL,
		BucketWindow:        cfg.Storage.BucketWindow,
		LongestValueToIndex: cfg.Storage.LongestValueToIndex,
	}
	dedupExecutor, err := traceService.NewDeduplicatingExecutor(session, settings.DedupTTL, logger)
	if err != nil {
		logger.Fatal("Failed to create deduplicating executor", zap.Error(err))
	}
	consumer := traceService.NewSpanConsumerService(session, dedupExecutor, settings, logger)

	listener, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		logger.Fatal("Failed to listen", zap.Error(err))
	}

	srv := grpc.NewServer()
	traceServiceServer := traceServer.NewTraceServiceServerImpl(logger, consumer)
	protoTrace.RegisterTraceServiceServer(srv, traceServiceServer)
	logger.Info(
		"gRPC service started, listening for OpenTelemetry traces...",
		zap.String("address", cfg.ListenAddress),
	)

	if err := srv.Serve(listener); err != nil {
		logger.Fatal("Failed to serve", zap.Error(err))
	}
}
