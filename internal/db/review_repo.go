package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"yardlink/internal/types"
)

// pgUniqueViolation is the PostgreSQL error code for unique constraint
// violations, used to map duplicate reviews onto a conflict error.
const pgUniqueViolation = "23505"

// ReviewRepository provides data access for the reviews table. The
// UNIQUE (job_id, reviewer_id) constraint is the source of truth for
// the one-review-per-party rule; the repository translates violations
// instead of pre-checking.
type ReviewRepository struct {
	db DBTX
}

// NewReviewRepository creates a new ReviewRepository backed by the
// given database connection (pool or transaction).
func NewReviewRepository(db DBTX) *ReviewRepository {
	return &ReviewRepository{db: db}
}

// Create inserts a review. A duplicate (job_id, reviewer_id) pair is
// reported as ErrCodeConflictDuplicate.
func (r *ReviewRepository) Create(ctx context.Context, rv *types.Review) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO reviews (id, job_id, reviewer_id, reviewee_id, rating, comment, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW())`,
		rv.ID, rv.JobID, rv.ReviewerID, rv.RevieweeID, rv.Rating, nilIfEmpty(rv.Comment),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return types.NewAppError(types.ErrCodeConflictDuplicate, "review already submitted for this job", err)
		}
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create review", err)
	}
	return nil
}

// ListPendingForCustomer returns the completed jobs a customer has not
// yet reviewed. This query backs the blocking review gate: the client
// is expected to force a rating for each returned job before other
// flows proceed. Only the customer-side review blocks.
func (r *ReviewRepository) ListPendingForCustomer(ctx context.Context, customerID string) ([]*types.JobRequest, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+jobColumns+`
		 FROM job_requests j
		 WHERE j.customer_id = $1
		   AND j.status = 'completed'
		   AND NOT EXISTS (
			SELECT 1 FROM reviews rv
			WHERE rv.job_id = j.id AND rv.reviewer_id = $1
		   )
		 ORDER BY j.completed_at ASC`,
		customerID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list pending reviews", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// ListForReviewee returns the reviews received by a user, newest first.
func (r *ReviewRepository) ListForReviewee(ctx context.Context, revieweeID string) ([]*types.Review, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, job_id, reviewer_id, reviewee_id, rating, COALESCE(comment, ''), created_at
		 FROM reviews
		 WHERE reviewee_id = $1
		 ORDER BY created_at DESC`,
		revieweeID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list reviews", err)
	}
	defer rows.Close()

	var results []*types.Review
	for rows.Next() {
		var rv types.Review
		if err := rows.Scan(&rv.ID, &rv.JobID, &rv.ReviewerID, &rv.RevieweeID, &rv.Rating, &rv.Comment, &rv.CreatedAt); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan review row", err)
		}
		results = append(results, &rv)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating review rows", err)
	}
	return results, nil
}
