package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/pesio-ai/be-sales-proposals/internal/client"
	"github.com/pesio-ai/be-sales-proposals/internal/config"
	"github.com/pesio-ai/be-sales-proposals/internal/handler"
	"github.com/pesio-ai/be-sales-proposals/internal/platform/database"
	"github.com/pesio-ai/be-sales-proposals/internal/platform/logger"
	"github.com/pesio-ai/be-sales-proposals/internal/platform/middleware"
	"github.com/pesio-ai/be-sales-proposals/internal/repository"
	"github.com/pesio-ai/be-sales-proposals/internal/service"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(logger.Config{
		Level:       cfg.Service.LogLevel,
		Environment: cfg.Service.Environment,
		ServiceName: cfg.Service.Name,
		Version:     cfg.Service.Version,
	})

	log.Info().
		Str("service", cfg.Service.Name).
		Str("version", cfg.Service.Version).
		Str("environment", cfg.Service.Environment).
		Msg("Starting Sales Proposals Service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize storage
	var (
		proposals repository.ProposalStore
		workflows repository.WorkflowStore
		audit     repository.AuditStore
	)
	switch cfg.Database.Driver {
	case "memory":
		store := repository.NewMemoryStore()
		proposals, workflows, audit = store.Proposals(), store.Workflows(), store.Audit()
		log.Warn().Msg("Using in-memory store; data is lost on restart")
	default:
		db, err := database.New(ctx, database.Config{
			Host:        cfg.Database.Host,
			Port:        cfg.Database.Port,
			User:        cfg.Database.User,
			Password:    cfg.Database.Password,
			Database:    cfg.Database.Database,
			SSLMode:     cfg.Database.SSLMode,
			MaxConns:    cfg.Database.MaxConns,
			MinConns:    cfg.Database.MinConns,
			MaxConnTime: cfg.Database.MaxConnTime,
			MaxIdleTime: cfg.Database.MaxIdleTime,
			HealthCheck: cfg.Database.HealthCheck,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer db.Close()
		log.Info().Msg("Database connection established")

		if cfg.Database.Migrate {
			if err := repository.Migrate(ctx, db); err != nil {
				log.Fatal().Err(err).Msg("Failed to apply database schema")
			}
			log.Info().Msg("Database schema applied")
		}

		proposals = repository.NewProposalRepository(db)
		workflows = repository.NewWorkflowRepository(db)
		audit = repository.NewAuditRepository(db)
	}

	// NATS is optional: without it notifications are dropped, never fatal
	var natsConn *nats.Conn
	if cfg.NATS.URL != "" {
		natsConn, err = client.ConnectNATS(cfg.NATS.URL, cfg.Service.Name, log.Logger)
		if err != nil {
			log.Warn().Err(err).Str("url", cfg.NATS.URL).Msg("NATS unavailable, notifications disabled")
			natsConn = nil
		} else {
			defer natsConn.Drain()
			log.Info().Str("url", cfg.NATS.URL).Msg("NATS connection established")
		}
	}
	publisher := client.NewNotificationPublisher(natsConn, cfg.NATS.SubjectPrefix, log.Logger)

	// Initialize upstream clients
	var catalog client.CatalogClientInterface
	if cfg.Catalog.BaseURL != "" {
		catalog = client.NewCatalogClient(cfg.Catalog.BaseURL, cfg.Catalog.Timeout)
	}
	var directory client.DirectoryClientInterface = client.PassthroughDirectory{}
	if cfg.Directory.BaseURL != "" {
		directory = client.NewDirectoryClient(cfg.Directory.BaseURL, cfg.Directory.Timeout)
	}

	log.Info().
		Str("catalog_url", cfg.Catalog.BaseURL).
		Str("directory_url", cfg.Directory.BaseURL).
		Msg("Upstream clients initialized")

	// Initialize services
	locks := service.NewProposalLocks()
	proposalService := service.NewProposalService(proposals, workflows, audit, catalog, publisher, locks, log.With("proposals"))
	approvalService := service.NewApprovalService(proposals, workflows, audit, directory, publisher, locks, log.With("approvals"))

	// Setup HTTP routes
	mux := http.NewServeMux()
	handler.NewHTTPHandler(proposalService, approvalService, log).RegisterRoutes(mux)

	// Apply middleware
	var h http.Handler = mux
	h = middleware.Timeout(cfg.Server.RequestTimeout)(h)
	h = middleware.CORS(cfg.Server.AllowedOrigins)(h)
	h = middleware.Recovery(&log.Logger)(h)
	h = middleware.Logger(&log.Logger)(h)
	h = middleware.RequestID(h)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      h,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	}()

	// Start gRPC server
	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(handler.UnaryRequestID(log.Logger)))
	handler.NewGRPCHandler(proposalService, approvalService, log.Logger).Register(grpcServer)

	healthServer := health.NewServer()
	healthServer.SetServingStatus(handler.PricingServiceDesc.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(handler.ApprovalServiceDesc.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)

	grpcListener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.GRPCPort))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create gRPC listener")
	}

	go func() {
		log.Info().Int("port", cfg.Server.GRPCPort).Msg("Starting gRPC server")
		if err := grpcServer.Serve(grpcListener); err != nil {
			log.Error().Err(err).Msg("gRPC server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")
	healthServer.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	grpcServer.GracefulStop()

	log.Info().Msg("Server stopped")
}
