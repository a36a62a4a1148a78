package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"yardlink/internal/payments"
	"yardlink/internal/types"
)

// GracePeriod is how long a job may sit in pending_completion before
// the sweeper force-completes it.
const GracePeriod = 30 * time.Hour

// SweeperDB is the job surface the sweeper needs.
type SweeperDB interface {
	// ListPendingCompletionBefore returns jobs in pending_completion
	// whose provider_completed_at is older than the cutoff.
	ListPendingCompletionBefore(ctx context.Context, cutoff time.Time) ([]*types.JobRequest, error)

	// CompleteFromPending conditionally completes a pending_completion
	// job, writing the split. Zero rows affected surfaces as a
	// conflict error.
	CompleteFromPending(ctx context.Context, jobID string, platformFee, providerPayout float64, now time.Time) error
}

// DisputeCounter supplies the provider's dispute count for the
// completion month.
type DisputeCounter interface {
	CountForProviderInMonth(ctx context.Context, providerID string, monthStart, monthEnd time.Time) (int, error)
}

// SweeperNotifier enqueues the best-effort completion notifications.
type SweeperNotifier interface {
	Publish(ctx context.Context, msg types.NotificationMessage) error
}

// SweeperService force-completes jobs whose confirmation window has
// lapsed, applying the dispute-sensitive payout split.
type SweeperService struct {
	db       SweeperDB
	disputes DisputeCounter
	notifier SweeperNotifier
	logger   *slog.Logger
}

// NewSweeperService creates the auto-completion sweeper.
func NewSweeperService(db SweeperDB, disputes DisputeCounter, notifier SweeperNotifier, logger *slog.Logger) *SweeperService {
	if logger == nil {
		logger = slog.Default()
	}
	return &SweeperService{db: db, disputes: disputes, notifier: notifier, logger: logger}
}

// SweepOverdue completes every job stuck in pending_completion past
// the grace period.
//
// Per job: the provider's dispute count for the calendar month of the
// sweep picks the payout rate, and the conditional complete consumes
// the row. A concurrent sweep (or a racing customer confirmation)
// loses the conditional update and the job is simply skipped. One
// job's failure never aborts the rest of the sweep.
//
// Returns the number of jobs completed.
func (s *SweeperService) SweepOverdue(ctx context.Context, now time.Time) (int, error) {
	now = now.UTC()
	cutoff := now.Add(-GracePeriod)

	overdue, err := s.db.ListPendingCompletionBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("listing overdue jobs: %w", err)
	}

	if len(overdue) == 0 {
		s.logger.InfoContext(ctx, "no overdue jobs to sweep")
		return 0, nil
	}

	s.logger.InfoContext(ctx, "sweeping overdue jobs",
		"count", len(overdue),
		"cutoff", cutoff.Format(time.RFC3339),
	)

	completed := 0
	for _, job := range overdue {
		if err := s.sweepJob(ctx, job, now); err != nil {
			var appErr *types.AppError
			if errors.As(err, &appErr) && appErr.Code == types.ErrCodeConflictStateChanged {
				// Consumed by a concurrent sweep or a customer
				// confirmation since the list query ran.
				continue
			}
			s.logger.ErrorContext(ctx, "auto-completion failed",
				"job_id", job.ID,
				"error", err,
			)
			continue
		}
		completed++
	}

	s.logger.InfoContext(ctx, "sweep complete",
		"completed", completed,
		"overdue", len(overdue),
	)

	return completed, nil
}

func (s *SweeperService) sweepJob(ctx context.Context, job *types.JobRequest, now time.Time) error {
	if job.AcceptedProviderID == nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "pending completion without an accepted provider", nil)
	}
	providerID := *job.AcceptedProviderID

	monthStart, monthEnd := payments.MonthWindow(now)
	disputeCount, err := s.disputes.CountForProviderInMonth(ctx, providerID, monthStart, monthEnd)
	if err != nil {
		return fmt.Errorf("counting provider disputes: %w", err)
	}

	finalPrice := job.BasePrice
	if job.FinalPrice != nil && *job.FinalPrice > 0 {
		finalPrice = *job.FinalPrice
	}
	platformFee, providerPayout := payments.SplitAtCompletion(finalPrice, disputeCount)

	if err := s.db.CompleteFromPending(ctx, job.ID, platformFee, providerPayout, now); err != nil {
		return err
	}

	// Both parties are told; neither send can undo the completion.
	s.notify(ctx, job, job.CustomerID, map[string]any{"auto_completed": true}, now)
	s.notify(ctx, job, providerID, map[string]any{
		"auto_completed":  true,
		"provider_payout": providerPayout,
	}, now)
	return nil
}

func (s *SweeperService) notify(ctx context.Context, job *types.JobRequest, recipientID string, data map[string]any, now time.Time) {
	msg := types.NotificationMessage{
		MessageID:      "ntf_" + uuid.NewString(),
		Type:           types.NotifJobCompleted,
		RecipientID:    recipientID,
		JobID:          job.ID,
		JobTitle:       job.Title,
		CreatedAt:      now.UTC(),
		AdditionalData: data,
	}
	if err := s.notifier.Publish(ctx, msg); err != nil {
		s.logger.ErrorContext(ctx, "sweep notification failed",
			"job_id", job.ID,
			"recipient_id", recipientID,
			"error", err,
		)
	}
}
