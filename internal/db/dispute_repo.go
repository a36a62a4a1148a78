package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"yardlink/internal/types"
)

// DisputeRepository provides data access for disputes and their refund
// side records. Resolution is a conditional update from the open
// status, so two admins racing to resolve the same dispute cannot both
// win.
type DisputeRepository struct {
	db DBTX
}

func NewDisputeRepository(db DBTX) *DisputeRepository {
	return &DisputeRepository{db: db}
}

const disputeColumns = `id, job_id, provider_id, customer_id, reason, status, resolved_by, resolved_at, created_at`

func scanDispute(row pgx.Row) (*types.Dispute, error) {
	var d types.Dispute
	err := row.Scan(&d.ID, &d.JobID, &d.ProviderID, &d.CustomerID, &d.Reason,
		&d.Status, &d.ResolvedBy, &d.ResolvedAt, &d.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// Create inserts a new open dispute.
func (r *DisputeRepository) Create(ctx context.Context, d *types.Dispute) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO disputes (id, job_id, provider_id, customer_id, reason, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, 'open', NOW())`,
		d.ID, d.JobID, d.ProviderID, d.CustomerID, d.Reason,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create dispute", err)
	}
	return nil
}

// GetByID fetches a dispute by its identifier.
func (r *DisputeRepository) GetByID(ctx context.Context, id string) (*types.Dispute, error) {
	d, err := scanDispute(r.db.QueryRow(ctx,
		`SELECT `+disputeColumns+` FROM disputes WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundDispute, "dispute not found", err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get dispute", err)
	}
	return d, nil
}

// GetOpenByJob returns the open dispute for a job, if any. pgx.ErrNoRows
// is passed through so callers can treat absence as a non-error.
func (r *DisputeRepository) GetOpenByJob(ctx context.Context, jobID string) (*types.Dispute, error) {
	d, err := scanDispute(r.db.QueryRow(ctx,
		`SELECT `+disputeColumns+` FROM disputes WHERE job_id = $1 AND status = 'open'`, jobID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get open dispute", err)
	}
	return d, nil
}

// Resolve moves an open dispute to a terminal status. Zero rows
// affected means the dispute was already resolved (or never existed);
// the caller gets a conflict either way since resolution is terminal.
func (r *DisputeRepository) Resolve(ctx context.Context, id string, status types.DisputeStatus, resolvedBy string, now time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE disputes
		 SET status = $1, resolved_by = $2, resolved_at = $3
		 WHERE id = $4 AND status = 'open'`,
		status, resolvedBy, now, id,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to resolve dispute", err)
	}
	if tag.RowsAffected() == 0 {
		return r.resolveConflict(ctx, id)
	}
	return nil
}

func (r *DisputeRepository) resolveConflict(ctx context.Context, id string) error {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM disputes WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to check dispute existence", err)
	}
	if !exists {
		return types.NewAppError(types.ErrCodeNotFoundDispute, "dispute not found", nil)
	}
	return types.NewAppError(types.ErrCodeConflictStateChanged, "dispute already resolved", nil)
}

// CountForProviderInMonth counts disputes filed against a provider
// within [monthStart, monthEnd). The sweeper uses this to pick the
// dispute-sensitive fee split.
func (r *DisputeRepository) CountForProviderInMonth(ctx context.Context, providerID string, monthStart, monthEnd time.Time) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM disputes
		 WHERE provider_id = $1 AND created_at >= $2 AND created_at < $3`,
		providerID, monthStart, monthEnd,
	).Scan(&count)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count provider disputes", err)
	}
	return count, nil
}

// CreateRefundRequest records the refund side effect of a resolution
// that favors the customer. The job's payment row is never mutated.
func (r *DisputeRepository) CreateRefundRequest(ctx context.Context, rr *types.RefundRequest) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO refund_requests (id, job_id, customer_id, amount, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, NOW())`,
		rr.ID, rr.JobID, rr.CustomerID, rr.Amount, rr.Status,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create refund request", err)
	}
	return nil
}
