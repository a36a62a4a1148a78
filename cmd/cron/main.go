// Package main is the entry point for the cron multiplexer Lambda.
//
// EventBridge rules invoke this function with a CronPayload naming one
// of the batch tasks: autopay job generation, auto-completion sweeping,
// or provider payout batching. The payload's service token is verified
// against a bcrypt hash before any database access. A best-effort
// advisory lock keeps overlapping invocations of the same task from
// running concurrently, and every run is recorded in job_history and
// emitted to CloudWatch.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"yardlink/internal/config"
	"yardlink/internal/db"
	"yardlink/internal/metrics"
	"yardlink/internal/queue"
	"yardlink/internal/scheduler"
	"yardlink/internal/types"
)

// lockTTL bounds how long a crashed invocation can hold a task lock.
const lockTTL = 10 * time.Minute

// autopayDB adapts the autopay repository and its transactional store
// to the scheduler's AutopayDB contract.
type autopayDB struct {
	repo *db.AutopayRepository
	txs  *db.AutopayTxStore
}

func (a *autopayDB) ListEnabled(ctx context.Context) ([]*types.AutopaySettings, error) {
	return a.repo.ListEnabled(ctx)
}

func (a *autopayDB) BeginTx(ctx context.Context) (scheduler.AutopayFireTx, error) {
	return a.txs.BeginTx(ctx)
}

// payoutDB composes the payout ledger with the completed-job listing,
// which lives on the job repository.
type payoutDB struct {
	payouts *db.PayoutRepository
	jobs    *db.JobRepository
}

func (p *payoutDB) LatestPayoutDate(ctx context.Context) (time.Time, error) {
	return p.payouts.LatestPayoutDate(ctx)
}

func (p *payoutDB) PaidJobIDs(ctx context.Context) (map[string]struct{}, error) {
	return p.payouts.PaidJobIDs(ctx)
}

func (p *payoutDB) ListCompletedForPayout(ctx context.Context) ([]*types.JobRequest, error) {
	return p.jobs.ListCompletedForPayout(ctx)
}

func (p *payoutDB) CreatePayout(ctx context.Context, payout *types.ProviderPayout) error {
	return p.payouts.Create(ctx, payout)
}

// Handler holds the dependencies for the cron Lambda handler.
type Handler struct {
	cfg      *config.Config
	autopay  *scheduler.AutopayService
	sweeper  *scheduler.SweeperService
	payouts  *scheduler.PayoutService
	locks    *db.JobLockRepository
	history  *db.CronHistoryRepository
	emitter  *metrics.Emitter
	workerID string
	logger   *slog.Logger
}

// Handle runs a single batch task. The service token is checked before
// anything touches the database; an invalid token is an authentication
// failure, not a retryable error.
func (h *Handler) Handle(ctx context.Context, payload scheduler.CronPayload) error {
	if err := bcrypt.CompareHashAndPassword(
		[]byte(h.cfg.Security.CronTokenHash.Unmask()),
		[]byte(payload.ServiceToken),
	); err != nil {
		h.logger.WarnContext(ctx, "cron invocation rejected: bad service token", "task", payload.Task)
		return types.NewAppError(types.ErrCodeAuthCronToken, "invalid service token", nil)
	}

	now := time.Now().UTC()
	if payload.ReferenceTime != nil {
		now = payload.ReferenceTime.UTC()
	}

	logger := h.logger.With("task", string(payload.Task), "reference_time", now.Format(time.RFC3339))

	if payload.Task == scheduler.TaskAutopayGenerate && !h.cfg.Feature.EnableAutopay {
		logger.InfoContext(ctx, "autopay generation disabled by feature flag, skipping")
		return nil
	}

	acquired, err := h.locks.Acquire(ctx, string(payload.Task), h.workerID, lockTTL)
	if err != nil {
		return err
	}
	if !acquired {
		logger.InfoContext(ctx, "task lock held by another worker, skipping")
		return nil
	}

	historyID, err := h.history.Start(ctx, string(payload.Task))
	if err != nil {
		return err
	}

	start := time.Now()
	items, metadata, runErr := h.runTask(ctx, payload.Task, now)
	duration := time.Since(start)

	status := "success"
	result := "success"
	if runErr != nil {
		status = "failed"
		result = "error"
	}

	if metadata == nil {
		metadata = map[string]any{}
	}
	metadata["reference_time"] = now.Format(time.RFC3339)

	if err := h.history.Finish(ctx, historyID, status, items, runErr, metadata); err != nil {
		logger.ErrorContext(ctx, "failed to record run history", "error", err)
	}

	h.emitter.RecordCronRun(ctx, string(payload.Task), result, items, duration)

	if runErr != nil {
		logger.ErrorContext(ctx, "task run failed", "items", items, "error", runErr)
		return runErr
	}

	logger.InfoContext(ctx, "task run finished", "items", items, "duration_ms", duration.Milliseconds())
	return nil
}

// runTask dispatches to the task's service and normalizes the result
// into an item count plus run metadata.
func (h *Handler) runTask(ctx context.Context, task scheduler.TaskType, now time.Time) (int, map[string]any, error) {
	switch task {
	case scheduler.TaskAutopayGenerate:
		generated, err := h.autopay.GenerateDue(ctx, now)
		return generated, map[string]any{"jobs_generated": generated}, err

	case scheduler.TaskAutoComplete:
		swept, err := h.sweeper.SweepOverdue(ctx, now)
		return swept, map[string]any{"jobs_completed": swept}, err

	case scheduler.TaskProviderPayouts:
		summary, err := h.payouts.Run(ctx, now)
		if summary == nil {
			return 0, nil, err
		}
		metadata := map[string]any{"summary": summary}
		return len(summary.Results), metadata, err

	default:
		return 0, nil, fmt.Errorf("unknown cron task %q", task)
	}
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	logger.Info("cron Lambda initializing (cold start)")

	cfg, err := config.LoadConfig(secretProvider())
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL.Unmask())
	if err != nil {
		logger.Error("failed to parse database URL", "error", err)
		os.Exit(1)
	}
	poolCfg.MaxConns = int32(cfg.Database.MaxConns)
	poolCfg.MinConns = int32(cfg.Database.MinConns)
	poolCfg.MaxConnLifetime = cfg.Database.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		logger.Error("failed to create database pool", "error", err)
		os.Exit(1)
	}

	sdkCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		logger.Error("failed to load AWS SDK config", "error", err)
		os.Exit(1)
	}

	sqsClient := sqs.NewFromConfig(sdkCfg, func(o *sqs.Options) {
		if cfg.AWS.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
		}
	})
	cwClient := cloudwatch.NewFromConfig(sdkCfg)

	notifier := queue.NewNotificationPublisher(sqsClient, cfg.AWS, logger)
	emitter := metrics.NewEmitter(cwClient, cfg.Observability.MetricNamespace, logger)

	jobRepo := db.NewJobRepository(pool)
	disputeRepo := db.NewDisputeRepository(pool)
	autopayRepo := db.NewAutopayRepository(pool)
	payoutRepo := db.NewPayoutRepository(pool)

	handler := &Handler{
		cfg: cfg,
		autopay: scheduler.NewAutopayService(
			&autopayDB{repo: autopayRepo, txs: db.NewAutopayTxStore(pool)},
			notifier, logger,
		),
		sweeper: scheduler.NewSweeperService(jobRepo, disputeRepo, notifier, logger),
		payouts: scheduler.NewPayoutService(
			&payoutDB{payouts: payoutRepo, jobs: jobRepo},
			notifier, logger,
		),
		locks:    db.NewJobLockRepository(pool),
		history:  db.NewCronHistoryRepository(pool),
		emitter:  emitter,
		workerID: "cron-" + uuid.NewString(),
		logger:   logger,
	}

	logger.Info("cron Lambda initialized",
		"environment", cfg.Environment,
		"metric_namespace", cfg.Observability.MetricNamespace,
		"worker_id", handler.workerID,
	)

	// Local mode: read the payload from stdin instead of starting the
	// Lambda runtime.
	// Usage: echo '{"task":"auto_complete","service_token":"..."}' | go run cmd/cron/main.go
	if os.Getenv("APP_ENV") == "local" {
		logger.Info("APP_ENV=local: reading payload from stdin")
		raw, err := io.ReadAll(os.Stdin)
		if err != nil {
			logger.Error("failed to read stdin", "error", err)
			os.Exit(1)
		}
		var payload scheduler.CronPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			logger.Error("failed to parse payload", "error", err)
			os.Exit(1)
		}
		if err := handler.Handle(ctx, payload); err != nil {
			logger.Error("handler execution failed", "error", err)
			os.Exit(1)
		}
		logger.Info("handler execution completed successfully")
		pool.Close()
		return
	}

	lambda.Start(handler.Handle)
}

// secretProvider returns the SSM-backed provider for deployed
// environments; local development resolves from the environment only.
func secretProvider() config.SecretProvider {
	if os.Getenv("APP_ENV") == "local" {
		return nil
	}
	return config.NewSSMProvider(os.Getenv("AWS_REGION"))
}

// Compile-time assertions that the adapters satisfy the scheduler
// contracts.
var (
	_ scheduler.AutopayDB = (*autopayDB)(nil)
	_ scheduler.PayoutDB  = (*payoutDB)(nil)
)
