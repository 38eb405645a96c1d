package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/triage-ai/palisade/services/action_guard/internal/api"
	"github.com/triage-ai/palisade/services/action_guard/internal/app"
	"github.com/triage-ai/palisade/services/action_guard/internal/auth"
	"github.com/triage-ai/palisade/services/action_guard/internal/config"
	"github.com/triage-ai/palisade/services/action_guard/internal/erp"
	"github.com/triage-ai/palisade/services/action_guard/internal/metrics"
	"github.com/triage-ai/palisade/services/action_guard/internal/server"
	"github.com/triage-ai/palisade/services/action_guard/internal/storage"
	"github.com/triage-ai/palisade/services/action_guard/internal/telemetry"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Logger
	logger := mustBuildLogger(cfg.LogLevel)
	defer logger.Sync() //nolint:errcheck // best-effort flush

	logger.Info("starting action guard server",
		zap.String("grpc_port", cfg.GRPCPort),
		zap.String("http_port", cfg.HTTPPort),
		zap.Int("verify_timeout_ms", cfg.VerifyTimeoutMs),
		zap.Int("max_concurrency", cfg.MaxConcurrency),
	)

	// Tracing
	shutdownTracing, err := telemetry.Setup(context.Background(), "action-guard", cfg.OTLPEndpoint, logger)
	if err != nil {
		logger.Warn("tracing setup failed, continuing without traces", zap.Error(err))
		shutdownTracing = func(context.Context) error { return nil }
	}

	// Pipeline
	m := metrics.New()
	components, err := app.Build(app.Options{
		VerifyTimeout:         cfg.VerifyTimeout(),
		MaxConcurrency:        cfg.MaxConcurrency,
		Currency:              cfg.DefaultCurrency,
		LargeInvoiceThreshold: cfg.LargeInvoiceThreshold,
		AdapterCacheTTL:       cfg.AdapterCacheTTL(),
		MaxAdapters:           cfg.MaxAdapters,
		Metrics:               m,
	}, logger)
	if err != nil {
		logger.Fatal("failed to build pipeline", zap.Error(err))
	}
	defer components.Provider.Close()

	// Storage: ClickHouse or LogWriter fallback
	var writer storage.EventWriter
	if cfg.ClickHouseDSN != "" {
		chWriter, err := storage.NewClickHouseWriter(cfg.ClickHouseDSN, logger)
		if err != nil {
			logger.Warn("clickhouse connection failed, falling back to log writer",
				zap.Error(err),
			)
			writer = storage.NewLogWriter(logger)
		} else {
			writer = chWriter
			logger.Info("clickhouse writer connected")
		}
	} else {
		writer = storage.NewLogWriter(logger)
		logger.Info("no CLICKHOUSE_DSN set, using log writer")
	}
	defer writer.Close()

	// Auth: Postgres if DSN provided, otherwise static
	var authenticator auth.Authenticator
	if cfg.PostgresDSN != "" {
		db, err := erp.OpenPostgres(context.Background(), cfg.PostgresDSN)
		if err != nil {
			logger.Fatal("failed to open postgres", zap.Error(err))
		}
		defer func() { _ = db.Close() }()
		authenticator = auth.NewPostgresAuthenticator(auth.PostgresAuthConfig{
			DB:       db,
			CacheTTL: cfg.AuthCacheTTL(),
			FailOpen: cfg.AuthFailOpen,
			Logger:   logger,
		})
		logger.Info("postgres authenticator connected")
	} else {
		authenticator = auth.NewStaticAuthenticator()
		logger.Info("using static authenticator (no POSTGRES_DSN)")
	}

	// gRPC server
	var grpcServer *grpc.Server
	var healthServer *health.Server
	if cfg.GRPCPort != "" {
		grpcServer = grpc.NewServer(
			grpc.KeepaliveParams(keepalive.ServerParameters{
				MaxConnectionIdle:     5 * time.Minute,
				MaxConnectionAge:      30 * time.Minute,
				MaxConnectionAgeGrace: 10 * time.Second,
				Time:                  30 * time.Second,
				Timeout:               5 * time.Second,
			}),
			grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
				MinTime:             10 * time.Second,
				PermitWithoutStream: true,
			}),
			grpc.MaxRecvMsgSize(4*1024*1024),
			grpc.MaxSendMsgSize(4*1024*1024),
		)

		srv := server.NewActionGuardServer(components.Pipeline, authenticator, writer, logger)
		server.RegisterActionGuardServiceServer(grpcServer, srv)

		healthServer = health.NewServer()
		healthpb.RegisterHealthServer(grpcServer, healthServer)
		healthServer.SetServingStatus(server.ServiceName, healthpb.HealthCheckResponse_SERVING)

		reflection.Register(grpcServer)

		lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
		if err != nil {
			logger.Fatal("failed to listen", zap.String("port", cfg.GRPCPort), zap.Error(err))
		}
		go func() {
			logger.Info("grpc server listening", zap.String("addr", lis.Addr().String()))
			if err := grpcServer.Serve(lis); err != nil {
				logger.Fatal("grpc server failed", zap.Error(err))
			}
		}()
	}

	// HTTP API server
	var httpServer *http.Server
	if cfg.HTTPPort != "" {
		deps := &api.Dependencies{
			Pipeline:  components.Pipeline,
			Previewer: components.Previewer,
			Auth:      authenticator,
			Writer:    writer,
			Metrics:   m,
			Logger:    logger,
			Currency:  cfg.DefaultCurrency,
		}
		httpServer = &http.Server{
			Addr:         ":" + cfg.HTTPPort,
			Handler:      api.NewRouter(deps),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
		go func() {
			logger.Info("http server listening", zap.String("addr", httpServer.Addr))
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Fatal("http server failed", zap.Error(err))
			}
		}()
	}

	// Block until shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received signal, shutting down", zap.String("signal", sig.String()))

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if httpServer != nil {
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", zap.Error(err))
		}
	}
	if grpcServer != nil {
		healthServer.SetServingStatus(server.ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
		grpcServer.GracefulStop()
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("tracer shutdown error", zap.Error(err))
	}

	logger.Info("action guard server stopped")
}

func mustBuildLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         "json",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to build logger: %v", err))
	}
	return logger
}
