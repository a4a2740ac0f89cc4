package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/rl1809/armory-atlas/internal/adapter/handler"
	"github.com/rl1809/armory-atlas/internal/adapter/messaging"
	"github.com/rl1809/armory-atlas/internal/adapter/storage"
	"github.com/rl1809/armory-atlas/internal/config"
	"github.com/rl1809/armory-atlas/internal/core/service"
	"github.com/rl1809/armory-atlas/internal/port"
)

const shutdownTimeout = 5 * time.Second

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	logger, err := cfg.NewLogger()
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Storage
	store, closeStore, err := storage.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()
	if err := store.CreateAll(ctx); err != nil {
		return err
	}
	logger.Info("storage ready", zap.String("backend", cfg.Storage))

	// Redis request guard, optional
	var idempotency port.IdempotencyStore
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			PoolSize: 100,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return err
		}
		idempotency = storage.NewRedisAdapter(rdb)
		logger.Info("connected to redis", zap.String("addr", cfg.RedisAddr))
	}

	// Kafka loan events, optional
	opts := []service.LendingOption{service.WithLogger(logger)}
	if len(cfg.KafkaBrokers) > 0 {
		publisher := messaging.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer publisher.Close()
		opts = append(opts, service.WithEventPublisher(publisher))
		logger.Info("publishing loan events",
			zap.Strings("brokers", cfg.KafkaBrokers),
			zap.String("topic", cfg.KafkaTopic))
	}

	lending := service.NewLendingService(store, opts...)
	catalog := service.NewCatalogService(store, logger)
	guard := service.NewRequestGuard(idempotency, logger)

	// gRPC server
	grpcServer := grpc.NewServer()
	handler.RegisterLendingServer(grpcServer, handler.NewGRPCHandler(lending, catalog, guard, logger))

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return err
	}

	// HTTP server
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler.NewHTTPHandler(lending, catalog, guard, logger).Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("gRPC server listening", zap.String("addr", cfg.GRPCAddr))
		return grpcServer.Serve(lis)
	})
	g.Go(func() error {
		logger.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := httpServer.Shutdown(shutdownCtx)
		logger.Info("HTTP server stopped")

		grpcServer.GracefulStop()
		logger.Info("gRPC server stopped")
		return err
	})

	return g.Wait()
}
