package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"yardlink/internal/types"
)

// PayoutRepository provides data access for the provider_payouts ledger.
// Rows are append-only: created by the payout batcher, never updated or
// deleted, forming the audit trail the "already paid" set is rebuilt
// from on every run.
type PayoutRepository struct {
	db DBTX
}

// NewPayoutRepository creates a new PayoutRepository backed by the given
// database connection (pool or transaction).
func NewPayoutRepository(db DBTX) *PayoutRepository {
	return &PayoutRepository{db: db}
}

// Create inserts one payout ledger row. The caller must set the ID
// (prefixed UUID, "po_...").
func (r *PayoutRepository) Create(ctx context.Context, p *types.ProviderPayout) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO provider_payouts (
			id, provider_id, amount, jobs_count, job_ids, payout_date, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, NOW())`,
		p.ID,
		p.ProviderID,
		p.Amount,
		p.JobsCount,
		p.JobIDs,
		p.PayoutDate,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create provider payout", err)
	}
	return nil
}

// LatestPayoutDate returns the most recent payout_date across all
// providers, or the zero time when the ledger is empty. The batcher's
// 14-day guard keys off this value.
func (r *PayoutRepository) LatestPayoutDate(ctx context.Context) (time.Time, error) {
	var latest time.Time
	err := r.db.QueryRow(ctx,
		`SELECT payout_date FROM provider_payouts
		 ORDER BY payout_date DESC
		 LIMIT 1`,
	).Scan(&latest)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, nil
		}
		return time.Time{}, types.NewAppError(types.ErrCodeInternalDB, "failed to read latest payout date", err)
	}
	return latest, nil
}

// PaidJobIDs returns the union of job_ids across every payout row.
// Recomputed fresh each batcher run rather than tracked via a per-job
// flag; this full-history scan is what makes the no-double-pay
// invariant hold across arbitrary run sequences.
func (r *PayoutRepository) PaidJobIDs(ctx context.Context) (map[string]struct{}, error) {
	rows, err := r.db.Query(ctx,
		`SELECT unnest(job_ids) FROM provider_payouts`,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to read paid job ids", err)
	}
	defer rows.Close()

	paid := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan paid job id", err)
		}
		paid[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating paid job ids", err)
	}
	return paid, nil
}

// ListByProvider returns a provider's payout history, newest first.
func (r *PayoutRepository) ListByProvider(ctx context.Context, providerID string) ([]*types.ProviderPayout, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, provider_id, amount, jobs_count, job_ids, payout_date, created_at
		 FROM provider_payouts
		 WHERE provider_id = $1
		 ORDER BY payout_date DESC`,
		providerID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list provider payouts", err)
	}
	defer rows.Close()

	var results []*types.ProviderPayout
	for rows.Next() {
		var p types.ProviderPayout
		if err := rows.Scan(&p.ID, &p.ProviderID, &p.Amount, &p.JobsCount, &p.JobIDs, &p.PayoutDate, &p.CreatedAt); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan payout row", err)
		}
		results = append(results, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating payout rows", err)
	}
	return results, nil
}
