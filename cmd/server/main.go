package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/rl1809/pizzahub/internal/adapter/handler"
	"github.com/rl1809/pizzahub/internal/adapter/handler/pb"
	"github.com/rl1809/pizzahub/internal/adapter/notify"
	"github.com/rl1809/pizzahub/internal/adapter/storage"
	"github.com/rl1809/pizzahub/internal/config"
	"github.com/rl1809/pizzahub/internal/core/service"
	"github.com/rl1809/pizzahub/internal/discovery"
	"github.com/rl1809/pizzahub/internal/port"
)

const shutdownTimeout = 5 * time.Second

func main() {
	cfg := config.Load()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if err := run(cfg, logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		catalog port.IngredientCatalog
		orders  port.OrderStore
		guard   port.IdempotencyGuard
	)

	var db *sql.DB
	if cfg.NeedsMySQL() {
		var err error
		db, err = openMySQL(ctx, cfg.MySQLDSN)
		if err != nil {
			return err
		}
		defer db.Close()
		logger.Info("connected to mysql")
	}

	switch cfg.IngredientStore {
	case config.StoreRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			PoolSize: 100,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect redis: %w", err)
		}
		defer rdb.Close()
		logger.Info("connected to redis", "addr", cfg.RedisAddr)

		redisAdapter := storage.NewRedisAdapter(rdb)
		catalog, guard = redisAdapter, redisAdapter
	case config.StoreMySQL:
		catalog = storage.NewMySQLIngredientStore(db)
	default:
		catalog = storage.NewMemoryIngredientStore()
	}

	switch cfg.OrderStore {
	case config.StoreMySQL:
		orders = storage.NewMySQLOrderStore(db)
	default:
		orders = storage.NewMemoryOrderStore()
	}

	var notifier port.LowStockNotifier
	switch cfg.Notifier {
	case config.NotifierAMQP:
		mq, err := notify.NewRabbitMQ(cfg.AMQPURL, logger)
		if err != nil {
			return err
		}
		defer mq.Close()
		publisher, err := notify.NewLowStockPublisher(mq)
		if err != nil {
			return err
		}
		notifier = publisher
	default:
		notifier = notify.NewLogNotifier(logger)
	}

	alerts := service.NewLowStockQueue(notifier, cfg.AlertQueueSize, logger)
	alerts.Start(cfg.AlertWorkers)
	defer alerts.Close()
	logger.Info("started alert workers", "workers", cfg.AlertWorkers)

	opts := []service.Option{
		service.WithLogger(logger),
		service.WithStoreTimeout(cfg.StoreTimeout),
	}
	if guard != nil {
		opts = append(opts, service.WithIdempotency(guard))
	}
	orderService := service.NewOrderService(catalog, orders, alerts, opts...)
	ingredientService := service.NewIngredientService(catalog, alerts, logger)

	g, gctx := errgroup.WithContext(ctx)

	var httpServer *http.Server
	if cfg.HTTPAddr != "" {
		if cfg.LogLevel > slog.LevelDebug {
			gin.SetMode(gin.ReleaseMode)
		}
		httpServer = &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           handler.NewHTTPHandler(orderService, ingredientService, logger).Router(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
			if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
	}

	var grpcServer *grpc.Server
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", cfg.GRPCAddr, err)
		}
		grpcServer = grpc.NewServer()
		pb.RegisterOrderServiceServer(grpcServer, handler.NewGRPCHandler(orderService, logger))
		g.Go(func() error {
			logger.Info("gRPC server listening", "addr", cfg.GRPCAddr)
			if err := grpcServer.Serve(lis); err != nil {
				return fmt.Errorf("grpc server: %w", err)
			}
			return nil
		})
	}

	if cfg.ConsulAddr != "" && cfg.HTTPAddr != "" {
		deregister, err := register(cfg, logger)
		if err != nil {
			logger.Warn("service registration skipped", "error", err)
		} else {
			defer deregister()
		}
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if httpServer != nil {
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("HTTP shutdown failed", "error", err)
			}
			logger.Info("HTTP server stopped")
		}
		if grpcServer != nil {
			grpcServer.GracefulStop()
			logger.Info("gRPC server stopped")
		}
		return nil
	})

	return g.Wait()
}

func openMySQL(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open mysql: %w", err)
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping mysql: %w", err)
	}
	if err := storage.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func register(cfg *config.Config, logger *slog.Logger) (func(), error) {
	port, err := discovery.PortFromAddr(cfg.HTTPAddr)
	if err != nil {
		return nil, err
	}
	consul, err := discovery.NewConsulClient(cfg.ConsulAddr, logger)
	if err != nil {
		return nil, err
	}
	err = consul.Register(discovery.ServiceConfig{
		Name: "pizzahub",
		ID:   cfg.ServiceID,
		Port: port,
		Tags: []string{"http", "grpc", "orders"},
	})
	if err != nil {
		return nil, err
	}
	return func() {
		if err := consul.Deregister(cfg.ServiceID); err != nil {
			logger.Warn("deregistration failed", "error", err)
		}
	}, nil
}
