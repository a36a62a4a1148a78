// Package main is the entry point for the YardLink API.
//
// It loads configuration, opens the Postgres pool and SQS client,
// wires the domain services and HTTP handlers onto the core chassis,
// and serves requests. Inside AWS Lambda the chi router is bridged to
// API Gateway through the chiadapter proxy; locally (APP_ENV=local) it
// runs as a standard HTTP server with graceful shutdown on SIGINT and
// SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	chiadapter "github.com/awslabs/aws-lambda-go-api-proxy/chi"
	"github.com/jackc/pgx/v5/pgxpool"

	"yardlink/internal/api/handlers"
	"yardlink/internal/config"
	"yardlink/internal/core"
	"yardlink/internal/db"
	"yardlink/internal/eligibility"
	"yardlink/internal/external"
	"yardlink/internal/jobs"
	"yardlink/internal/payments"
	"yardlink/internal/queue"
	"yardlink/internal/reviews"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	cfg, err := config.LoadConfig(secretProvider())
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("yardlink API starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
	)

	ctx := context.Background()

	pool, err := newPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database pool: %w", err)
	}

	sqsClient, err := newSQSClient(ctx, cfg.AWS)
	if err != nil {
		pool.Close()
		return fmt.Errorf("creating SQS client: %w", err)
	}

	// Repositories.
	jobRepo := db.NewJobRepository(pool)
	disputeRepo := db.NewDisputeRepository(pool)
	proposalRepo := db.NewProposalRepository(pool)
	autopayRepo := db.NewAutopayRepository(pool)
	payoutRepo := db.NewPayoutRepository(pool)
	providerRepo := db.NewProviderRepository(pool)
	reviewRepo := db.NewReviewRepository(pool)
	userRepo := db.NewUserRepository(pool)

	// Queue publishers. Notification dispatch is fire-and-forget from
	// the services' point of view.
	notifier := queue.NewNotificationPublisher(sqsClient, cfg.AWS, logger)
	invoices := queue.NewInvoicePublisher(sqsClient, cfg.AWS, logger)

	// Payment gateway.
	gateway := external.NewStripeGateway(
		&http.Client{Timeout: 15 * time.Second},
		external.StripeGatewayConfig{
			SecretKey:     cfg.Payments.StripeSecretKey.Unmask(),
			WebhookSecret: cfg.Payments.StripeWebhookSecret.Unmask(),
			SuccessURL:    cfg.Payments.CheckoutSuccessURL,
			CancelURL:     cfg.Payments.CheckoutCancelURL,
			Logger:        logger,
		},
	)

	// Domain services.
	gates := eligibility.NewService(providerRepo)
	jobSvc := jobs.NewService(jobRepo, disputeRepo, proposalRepo, gates, notifier, time.Now)
	reviewSvc := reviews.NewService(reviewRepo, jobRepo, notifier, time.Now)
	reconciler := payments.NewReconciler(
		jobRepo, gateway, notifier, invoices, userRepo,
		cfg.Payments.AllowSimulated, time.Now,
	)

	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		pool.Close()
		return fmt.Errorf("creating server: %w", err)
	}

	jobHandler := handlers.NewJobHandler(jobSvc, reviewSvc, srv.Validator, logger)
	paymentHandler := handlers.NewPaymentHandler(reconciler, srv.Validator, logger)
	autopayHandler := handlers.NewAutopayHandler(autopayRepo, srv.Validator, logger, time.Now)
	reviewHandler := handlers.NewReviewHandler(reviewSvc, srv.Validator, logger)
	providerHandler := handlers.NewProviderHandler(gates, providerRepo, payoutRepo, srv.Validator, logger)

	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars,
		jobHandler.RegisterRoutes,
		paymentHandler.RegisterRoutes,
		autopayHandler.RegisterRoutes,
		reviewHandler.RegisterRoutes,
		providerHandler.RegisterRoutes,
	)
	srv.HealthProbes = append(srv.HealthProbes, &dbProbe{pool: pool})

	srv.MountRoutes()

	if isLambdaEnvironment() {
		return runLambda(srv, logger)
	}

	defer pool.Close()
	return runHTTPServer(srv, cfg, logger)
}

// secretProvider returns the SSM-backed provider for deployed
// environments. Local development resolves everything from the
// environment and .env, so no provider is needed.
func secretProvider() config.SecretProvider {
	if os.Getenv("APP_ENV") == "local" {
		return nil
	}
	return config.NewSSMProvider(os.Getenv("AWS_REGION"))
}

// newPool opens the pgx connection pool and verifies connectivity.
func newPool(ctx context.Context, dbCfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(dbCfg.URL.Unmask())
	if err != nil {
		return nil, fmt.Errorf("parsing database URL: %w", err)
	}

	poolCfg.MaxConns = int32(dbCfg.MaxConns)
	poolCfg.MinConns = int32(dbCfg.MinConns)
	poolCfg.MaxConnLifetime = dbCfg.MaxConnLifetime
	poolCfg.HealthCheckPeriod = dbCfg.HealthCheckPeriod

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, dbCfg.AcquireTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}

// newSQSClient builds the SQS client, honoring the LocalStack endpoint
// override when set.
func newSQSClient(ctx context.Context, awsCfg config.AWSConfig) (*sqs.Client, error) {
	sdkCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(awsCfg.Region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS SDK config: %w", err)
	}

	return sqs.NewFromConfig(sdkCfg, func(o *sqs.Options) {
		if awsCfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(awsCfg.EndpointURL)
		}
	}), nil
}

// dbProbe reports database connectivity for GET /health.
type dbProbe struct {
	pool *pgxpool.Pool
}

func (p *dbProbe) Name() string { return "database" }

func (p *dbProbe) Check(ctx context.Context) error {
	if err := p.pool.Ping(ctx); err != nil {
		return errors.New("database unreachable")
	}
	return nil
}

// isLambdaEnvironment returns true if the process is running inside AWS Lambda.
func isLambdaEnvironment() bool {
	_, hasRuntimeAPI := os.LookupEnv("AWS_LAMBDA_RUNTIME_API")
	_, hasServerPort := os.LookupEnv("_LAMBDA_SERVER_PORT")
	return hasRuntimeAPI || hasServerPort
}

// runLambda bridges API Gateway proxy events to the chi router. The
// pool stays open for the lifetime of the execution environment.
func runLambda(srv *core.Server, logger *slog.Logger) error {
	logger.Info("starting in Lambda mode")
	adapter := chiadapter.New(srv.Router())
	lambda.Start(adapter.ProxyWithContext)
	return nil
}

// runHTTPServer starts the server in standard HTTP mode with graceful shutdown.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)

	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	return slog.New(handler)
}
