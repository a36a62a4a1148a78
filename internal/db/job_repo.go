package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"yardlink/internal/types"
)

// JobRepository provides data access for the job_requests table, the
// system of record for the marketplace. Lifecycle transitions are
// expressed as conditional updates: the WHERE clause carries the
// expected current state, and a zero affected-row count is reported as
// a conflict (distinct from not-found) so callers don't retry blindly.
type JobRepository struct {
	db DBTX
}

// NewJobRepository creates a new JobRepository backed by the given
// database connection (pool or transaction).
func NewJobRepository(db DBTX) *JobRepository {
	return &JobRepository{db: db}
}

// jobColumns is the standard set of columns selected for job queries.
const jobColumns = `j.id, j.customer_id, j.accepted_provider_id,
	j.base_price, j.customer_offer, j.final_price, j.platform_fee, j.provider_payout,
	j.title, j.description, j.location, j.parish, j.lawn_size,
	j.additional_requirements, j.preferred_date, j.preferred_time,
	j.status, j.payment_status, j.payment_reference,
	j.payment_confirmed_at, j.payment_confirmed_by,
	j.created_at, j.updated_at, j.provider_completed_at, j.completed_at`

// scanJob scans a single job row. The column order must match jobColumns.
func scanJob(row pgx.Row) (*types.JobRequest, error) {
	var j types.JobRequest
	var (
		additionalRequirements *string
		preferredDate          *string
		preferredTime          *string
		paymentReference       *string
	)

	err := row.Scan(
		&j.ID,
		&j.CustomerID,
		&j.AcceptedProviderID,
		&j.BasePrice,
		&j.CustomerOffer,
		&j.FinalPrice,
		&j.PlatformFee,
		&j.ProviderPayout,
		&j.Title,
		&j.Description,
		&j.Location,
		&j.Parish,
		&j.LawnSize,
		&additionalRequirements,
		&preferredDate,
		&preferredTime,
		&j.Status,
		&j.PaymentStatus,
		&paymentReference,
		&j.PaymentConfirmedAt,
		&j.PaymentConfirmedBy,
		&j.CreatedAt,
		&j.UpdatedAt,
		&j.ProviderCompletedAt,
		&j.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	if additionalRequirements != nil {
		j.AdditionalRequirements = *additionalRequirements
	}
	if preferredDate != nil {
		j.PreferredDate = *preferredDate
	}
	if preferredTime != nil {
		j.PreferredTime = *preferredTime
	}
	if paymentReference != nil {
		j.PaymentReference = *paymentReference
	}

	return &j, nil
}

// Create inserts a new job request. The caller must set the ID
// (prefixed UUID, "job_...") and required fields before calling.
func (r *JobRepository) Create(ctx context.Context, j *types.JobRequest) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO job_requests (
			id, customer_id, accepted_provider_id,
			base_price, customer_offer, final_price, platform_fee, provider_payout,
			title, description, location, parish, lawn_size,
			additional_requirements, preferred_date, preferred_time,
			status, payment_status, payment_reference,
			created_at, updated_at
		) VALUES (
			$1, $2, $3,
			$4, $5, $6, $7, $8,
			$9, $10, $11, $12, $13,
			$14, $15, $16,
			$17, $18, $19,
			COALESCE($20, NOW()), COALESCE($21, NOW())
		)`,
		j.ID,
		j.CustomerID,
		j.AcceptedProviderID,
		j.BasePrice,
		j.CustomerOffer,
		j.FinalPrice,
		j.PlatformFee,
		j.ProviderPayout,
		j.Title,
		j.Description,
		j.Location,
		j.Parish,
		j.LawnSize,
		nilIfEmpty(j.AdditionalRequirements),
		nilIfEmpty(j.PreferredDate),
		nilIfEmpty(j.PreferredTime),
		j.Status,
		j.PaymentStatus,
		nilIfEmpty(j.PaymentReference),
		nilIfZeroTime(j.CreatedAt),
		nilIfZeroTime(j.UpdatedAt),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create job request", err)
	}
	return nil
}

// GetByID retrieves a job by its ID. Returns ErrCodeNotFoundJob if no
// row exists.
func (r *JobRepository) GetByID(ctx context.Context, id string) (*types.JobRequest, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM job_requests j WHERE j.id = $1`, id)

	j, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundJob, "job not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve job", err)
	}
	return j, nil
}

// DeleteProvisional removes an unpaid open job abandoned mid-checkout.
// This is the only physical deletion the job store permits: the WHERE
// clause refuses to touch anything that has been accepted or paid.
func (r *JobRepository) DeleteProvisional(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM job_requests
		 WHERE id = $1
		   AND status = 'open'
		   AND payment_status = 'pending'
		   AND accepted_provider_id IS NULL`,
		id,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to delete provisional job", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeConflictStateChanged, "job is no longer a provisional row", nil)
	}
	return nil
}

// ListOpenByParish retrieves open jobs a provider may browse, newest
// first. An empty parish lists across all parishes.
func (r *JobRepository) ListOpenByParish(ctx context.Context, parish types.Parish, limit int) ([]*types.JobRequest, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	query := `SELECT ` + jobColumns + `
		 FROM job_requests j
		 WHERE j.status = 'open'`
	args := []any{limit}
	if parish != "" {
		query += ` AND j.parish = $2`
		args = append(args, parish)
	}
	query += ` ORDER BY j.created_at DESC LIMIT $1`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list open jobs", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// ListByCustomer retrieves a customer's jobs, newest first.
func (r *JobRepository) ListByCustomer(ctx context.Context, customerID string) ([]*types.JobRequest, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+jobColumns+`
		 FROM job_requests j
		 WHERE j.customer_id = $1
		 ORDER BY j.created_at DESC`,
		customerID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list customer jobs", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// ListByProvider retrieves the jobs a provider has accepted, newest first.
func (r *JobRepository) ListByProvider(ctx context.Context, providerID string) ([]*types.JobRequest, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+jobColumns+`
		 FROM job_requests j
		 WHERE j.accepted_provider_id = $1
		 ORDER BY j.created_at DESC`,
		providerID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list provider jobs", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// Accept transitions open -> accepted, setting the accepted provider and
// freezing the final price. The WHERE clause requires the job to still
// be open and unclaimed, so a concurrent double-accept loses cleanly.
// A job created already paid (the autopay path) has no later payment
// event to release escrow, so acceptance takes it straight to
// in_progress.
func (r *JobRepository) Accept(ctx context.Context, jobID string, providerID string, finalPrice float64) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE job_requests SET
			status = CASE WHEN payment_status = 'paid' THEN 'in_progress' ELSE 'accepted' END,
			accepted_provider_id = $1,
			final_price = $2,
			updated_at = NOW()
		 WHERE id = $3
		   AND status = 'open'
		   AND accepted_provider_id IS NULL`,
		providerID, finalPrice, jobID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to accept job", err)
	}
	if tag.RowsAffected() == 0 {
		return r.conflictOrNotFound(ctx, jobID, "job is no longer open for acceptance")
	}
	return nil
}

// SetAwaitingConfirmation records a manual payment reference submitted
// by the customer, moving the payment sub-state from pending to
// awaiting_confirmation. Only the receiving provider's confirmation
// moves it onward to paid.
func (r *JobRepository) SetAwaitingConfirmation(ctx context.Context, jobID string, reference string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE job_requests SET
			payment_status = 'awaiting_confirmation',
			payment_reference = $1,
			updated_at = NOW()
		 WHERE id = $2
		   AND status = 'accepted'
		   AND payment_status = 'pending'`,
		reference, jobID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to record payment reference", err)
	}
	if tag.RowsAffected() == 0 {
		return r.conflictOrNotFound(ctx, jobID, "job is not awaiting a payment reference")
	}
	return nil
}

// MarkPaid applies the paid transition: payment_status becomes paid and
// the job simultaneously moves accepted -> in_progress (the escrow
// release). The predicate excludes already-paid rows so the transition
// is applied exactly once per payment attempt, no matter how many
// webhook retries or confirmations race.
func (r *JobRepository) MarkPaid(ctx context.Context, jobID string, reference string, confirmedBy string, now time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE job_requests SET
			payment_status = 'paid',
			status = 'in_progress',
			payment_reference = COALESCE(NULLIF($1, ''), payment_reference),
			payment_confirmed_at = $2,
			payment_confirmed_by = $3,
			updated_at = NOW()
		 WHERE id = $4
		   AND status = 'accepted'
		   AND payment_status IN ('pending', 'awaiting_confirmation')`,
		reference, now, confirmedBy, jobID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark job paid", err)
	}
	if tag.RowsAffected() == 0 {
		j, getErr := r.GetByID(ctx, jobID)
		if getErr != nil {
			return getErr
		}
		if j.PaymentStatus == types.PaymentPaid {
			return types.NewAppError(types.ErrCodeConflictAlreadyPaid, "payment already confirmed", nil)
		}
		return types.NewAppError(types.ErrCodeConflictStateChanged, "job is not in a payable state", nil)
	}
	return nil
}

// MarkPaymentFailed records a failed payment attempt. Paid rows are
// never reverted; the predicate only touches pending attempts.
func (r *JobRepository) MarkPaymentFailed(ctx context.Context, jobID string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE job_requests SET
			payment_status = 'failed',
			updated_at = NOW()
		 WHERE id = $1
		   AND payment_status = 'pending'`,
		jobID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark payment failed", err)
	}
	if tag.RowsAffected() == 0 {
		return r.conflictOrNotFound(ctx, jobID, "payment is not pending")
	}
	return nil
}

// GetPaymentStatus reads the payment sub-state. Used by the
// redirect-return poll, which never mutates state.
func (r *JobRepository) GetPaymentStatus(ctx context.Context, jobID string) (types.PaymentStatus, error) {
	var status types.PaymentStatus
	err := r.db.QueryRow(ctx,
		`SELECT payment_status FROM job_requests WHERE id = $1`, jobID,
	).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", types.NewAppError(types.ErrCodeNotFoundJob, "job not found", nil)
		}
		return "", types.NewAppError(types.ErrCodeInternalDB, "failed to read payment status", err)
	}
	return status, nil
}

// MarkProviderCompleted transitions in_progress -> pending_completion,
// stamping provider_completed_at. Scoped to the accepted provider.
func (r *JobRepository) MarkProviderCompleted(ctx context.Context, jobID string, providerID string, now time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE job_requests SET
			status = 'pending_completion',
			provider_completed_at = $1,
			updated_at = NOW()
		 WHERE id = $2
		   AND accepted_provider_id = $3
		   AND status = 'in_progress'`,
		now, jobID, providerID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark job completed by provider", err)
	}
	if tag.RowsAffected() == 0 {
		return r.conflictOrNotFound(ctx, jobID, "job is not in progress for this provider")
	}
	return nil
}

// CompleteFromPending transitions pending_completion -> completed with
// the computed fee split, stamping completed_at exactly once. Both the
// customer confirmation path and the auto-completion sweeper funnel
// through this predicate, so a row is consumed by at most one of them.
func (r *JobRepository) CompleteFromPending(ctx context.Context, jobID string, platformFee, providerPayout float64, now time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE job_requests SET
			status = 'completed',
			platform_fee = $1,
			provider_payout = $2,
			completed_at = $3,
			updated_at = NOW()
		 WHERE id = $4
		   AND status = 'pending_completion'`,
		platformFee, providerPayout, now, jobID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to complete job", err)
	}
	if tag.RowsAffected() == 0 {
		return r.conflictOrNotFound(ctx, jobID, "job is not pending completion")
	}
	return nil
}

// MarkDisputed moves a job onto the dispute side-branch. Only reachable
// from pending_completion or completed; resolution never re-enters the
// main chain.
func (r *JobRepository) MarkDisputed(ctx context.Context, jobID string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE job_requests SET
			status = 'disputed',
			updated_at = NOW()
		 WHERE id = $1
		   AND status IN ('pending_completion', 'completed')`,
		jobID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark job disputed", err)
	}
	if tag.RowsAffected() == 0 {
		return r.conflictOrNotFound(ctx, jobID, "job cannot be disputed from its current state")
	}
	return nil
}

// ListPendingCompletionBefore returns jobs stuck in pending_completion
// whose provider_completed_at is older than the cutoff. This query
// filter is the sweeper's sole gate; the subsequent conditional
// CompleteFromPending consumes each row at most once.
func (r *JobRepository) ListPendingCompletionBefore(ctx context.Context, cutoff time.Time) ([]*types.JobRequest, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+jobColumns+`
		 FROM job_requests j
		 WHERE j.status = 'pending_completion'
		   AND j.provider_completed_at < $1
		 ORDER BY j.provider_completed_at ASC`,
		cutoff,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list overdue pending-completion jobs", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// ListCompletedForPayout returns every completed job with an accepted
// provider and a stamped completed_at. The payout batcher filters out
// already-paid jobs itself against the payout ledger.
func (r *JobRepository) ListCompletedForPayout(ctx context.Context) ([]*types.JobRequest, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+jobColumns+`
		 FROM job_requests j
		 WHERE j.status = 'completed'
		   AND j.accepted_provider_id IS NOT NULL
		   AND j.completed_at IS NOT NULL
		 ORDER BY j.completed_at ASC`,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list completed jobs for payout", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// collectJobs drains a pgx.Rows result set into job structs.
func collectJobs(rows pgx.Rows) ([]*types.JobRequest, error) {
	var results []*types.JobRequest
	for rows.Next() {
		j, scanErr := scanJob(rows)
		if scanErr != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan job row", scanErr)
		}
		results = append(results, j)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating job rows", err)
	}
	return results, nil
}

// conflictOrNotFound distinguishes a conditional update that matched no
// rows because the job does not exist (404) from one whose state
// predicate failed (409). Callers must not retry conflicts blindly.
func (r *JobRepository) conflictOrNotFound(ctx context.Context, jobID string, msg string) error {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM job_requests WHERE id = $1)`, jobID,
	).Scan(&exists)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to check job existence", err)
	}
	if !exists {
		return types.NewAppError(types.ErrCodeNotFoundJob, "job not found", nil)
	}
	return types.NewAppError(types.ErrCodeConflictStateChanged, msg, nil)
}
