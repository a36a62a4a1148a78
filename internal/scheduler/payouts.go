package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"yardlink/internal/types"
)

// PayoutInterval is the minimum gap between two payout runs. The
// EventBridge rule may fire more often; this guard enforces the real
// cadence.
const PayoutInterval = 14 * 24 * time.Hour

// PayoutDB is the persistence surface the batcher needs.
type PayoutDB interface {
	// LatestPayoutDate returns the most recent payout_date across all
	// providers, or the zero time when no payouts exist.
	LatestPayoutDate(ctx context.Context) (time.Time, error)

	// PaidJobIDs returns the union of job_ids across every payout row.
	// Recomputed fresh each run; this set is the sole de-duplication
	// mechanism.
	PaidJobIDs(ctx context.Context) (map[string]struct{}, error)

	// ListCompletedForPayout returns completed jobs with a non-null
	// accepted provider and completed_at.
	ListCompletedForPayout(ctx context.Context) ([]*types.JobRequest, error)

	// CreatePayout appends one immutable ledger row.
	CreatePayout(ctx context.Context, p *types.ProviderPayout) error
}

// PayoutNotifier enqueues the best-effort payout notification per
// provider.
type PayoutNotifier interface {
	Publish(ctx context.Context, msg types.NotificationMessage) error
}

// PayoutService batches completed-job earnings into per-provider
// payout ledger rows.
type PayoutService struct {
	db       PayoutDB
	notifier PayoutNotifier
	logger   *slog.Logger
}

// NewPayoutService creates the payout batcher.
func NewPayoutService(db PayoutDB, notifier PayoutNotifier, logger *slog.Logger) *PayoutService {
	if logger == nil {
		logger = slog.Default()
	}
	return &PayoutService{db: db, notifier: notifier, logger: logger}
}

// Run executes one batcher invocation.
//
// The 14-day guard short-circuits early runs into a skipped summary.
// Otherwise: completed jobs not already covered by any payout row are
// grouped by provider and summed, one ledger row is inserted per
// provider with a strictly positive total, and each provider failure
// is isolated into the run's result list.
func (s *PayoutService) Run(ctx context.Context, now time.Time) (*types.PayoutRunSummary, error) {
	now = now.UTC()

	latest, err := s.db.LatestPayoutDate(ctx)
	if err != nil {
		return nil, fmt.Errorf("looking up latest payout date: %w", err)
	}
	if !latest.IsZero() && now.Sub(latest) < PayoutInterval {
		reason := fmt.Sprintf("last payout %s is within the %d-day interval",
			latest.Format("2006-01-02"), int(PayoutInterval.Hours()/24))
		s.logger.InfoContext(ctx, "payout run skipped", "reason", reason)
		return &types.PayoutRunSummary{Skipped: true, SkipReason: reason}, nil
	}

	alreadyPaid, err := s.db.PaidJobIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("building already-paid set: %w", err)
	}

	completed, err := s.db.ListCompletedForPayout(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing completed jobs: %w", err)
	}

	groups := groupPayable(completed, alreadyPaid)

	// Deterministic processing order.
	providerIDs := make([]string, 0, len(groups))
	for id := range groups {
		providerIDs = append(providerIDs, id)
	}
	sort.Strings(providerIDs)

	summary := &types.PayoutRunSummary{}
	for _, providerID := range providerIDs {
		group := groups[providerID]
		if group.total <= 0 {
			// No empty or negative payout rows.
			continue
		}

		result := types.PayoutRunResult{
			ProviderID: providerID,
			Amount:     group.total,
			JobsCount:  len(group.jobIDs),
		}

		payout := &types.ProviderPayout{
			ID:         "po_" + uuid.NewString(),
			ProviderID: providerID,
			Amount:     group.total,
			JobsCount:  len(group.jobIDs),
			JobIDs:     group.jobIDs,
			PayoutDate: now,
		}
		if err := s.db.CreatePayout(ctx, payout); err != nil {
			s.logger.ErrorContext(ctx, "payout insert failed",
				"provider_id", providerID,
				"amount", group.total,
				"error", err,
			)
			result.Succeeded = false
			result.Error = "payout insert failed"
			summary.Results = append(summary.Results, result)
			// Other providers in this run are unaffected; the jobs
			// stay unpaid and are retried next run.
			continue
		}

		result.Succeeded = true
		summary.Results = append(summary.Results, result)

		s.notify(ctx, providerID, payout, now)
	}

	s.logger.InfoContext(ctx, "payout run complete",
		"providers", len(summary.Results),
		"eligible_jobs", len(completed),
	)

	return summary, nil
}

type payoutGroup struct {
	total  float64
	jobIDs []string
}

// groupPayable filters out already-paid jobs and groups the remainder
// by provider, summing on provider_payout with final_price then
// base_price as legacy-data fallbacks.
func groupPayable(completed []*types.JobRequest, alreadyPaid map[string]struct{}) map[string]*payoutGroup {
	groups := make(map[string]*payoutGroup)
	for _, job := range completed {
		if job.AcceptedProviderID == nil {
			continue
		}
		if _, paid := alreadyPaid[job.ID]; paid {
			continue
		}

		amount := job.ProviderPayout
		if amount == 0 {
			if job.FinalPrice != nil && *job.FinalPrice > 0 {
				amount = *job.FinalPrice
			} else {
				amount = job.BasePrice
			}
		}

		providerID := *job.AcceptedProviderID
		group := groups[providerID]
		if group == nil {
			group = &payoutGroup{}
			groups[providerID] = group
		}
		group.total += amount
		group.jobIDs = append(group.jobIDs, job.ID)
	}
	return groups
}

func (s *PayoutService) notify(ctx context.Context, providerID string, payout *types.ProviderPayout, now time.Time) {
	msg := types.NotificationMessage{
		MessageID:   "ntf_" + uuid.NewString(),
		Type:        types.NotifPayoutSent,
		RecipientID: providerID,
		CreatedAt:   now.UTC(),
		AdditionalData: map[string]any{
			"payout_id":   payout.ID,
			"amount":      payout.Amount,
			"jobs_count":  payout.JobsCount,
			"payout_date": payout.PayoutDate.Format("2006-01-02"),
		},
	}
	if err := s.notifier.Publish(ctx, msg); err != nil {
		s.logger.ErrorContext(ctx, "payout notification failed",
			"provider_id", providerID,
			"payout_id", payout.ID,
			"error", err,
		)
	}
}
