// Package reviews implements the review store rules and the
// pending-review gate: a customer with unreviewed completed jobs is
// handed the blocking list until each gets a rating.
package reviews

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"yardlink/internal/types"
)

// ReviewStore is the persistence surface for reviews. Implemented by
// db.ReviewRepository. Duplicate (job, reviewer) pairs surface as
// conflict errors from Create.
type ReviewStore interface {
	Create(ctx context.Context, rv *types.Review) error
	ListPendingForCustomer(ctx context.Context, customerID string) ([]*types.JobRequest, error)
	ListForReviewee(ctx context.Context, revieweeID string) ([]*types.Review, error)
}

// JobLookup fetches the job under review for party and status checks.
type JobLookup interface {
	GetByID(ctx context.Context, id string) (*types.JobRequest, error)
}

// Notifier enqueues a notification for asynchronous delivery.
type Notifier interface {
	Publish(ctx context.Context, msg types.NotificationMessage) error
}

// Service enforces review rules.
type Service struct {
	store    ReviewStore
	jobs     JobLookup
	notifier Notifier
	now      func() time.Time
}

func NewService(store ReviewStore, jobs JobLookup, notifier Notifier, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{store: store, jobs: jobs, notifier: notifier, now: now}
}

// PendingForCustomer returns the completed jobs the customer has not
// yet reviewed. A non-empty list is the blocking signal; the
// provider-side review never blocks anything.
func (s *Service) PendingForCustomer(ctx context.Context, customerID string) ([]*types.JobRequest, error) {
	return s.store.ListPendingForCustomer(ctx, customerID)
}

// Create records a review on a completed job. The reviewer must be a
// party to the job; the reviewee is the opposite party.
func (s *Service) Create(ctx context.Context, jobID string, reviewerID string, rating int, comment string) (*types.Review, error) {
	if rating < 1 || rating > 5 {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidRating, "rating must be between 1 and 5", nil)
	}

	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != types.JobStatusCompleted {
		return nil, types.NewAppError(types.ErrCodeConflictStateChanged, "only completed jobs can be reviewed", nil)
	}
	if job.AcceptedProviderID == nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "completed job without an accepted provider", nil)
	}

	var revieweeID string
	switch reviewerID {
	case job.CustomerID:
		revieweeID = *job.AcceptedProviderID
	case *job.AcceptedProviderID:
		revieweeID = job.CustomerID
	default:
		return nil, types.NewAppError(types.ErrCodePermissionNotOwner, "not a party to this job", nil)
	}

	review := &types.Review{
		ID:         "rev_" + uuid.NewString(),
		JobID:      job.ID,
		ReviewerID: reviewerID,
		RevieweeID: revieweeID,
		Rating:     rating,
		Comment:    comment,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.store.Create(ctx, review); err != nil {
		return nil, err
	}

	msg := types.NotificationMessage{
		MessageID:   "ntf_" + uuid.NewString(),
		Type:        types.NotifReviewReceived,
		RecipientID: revieweeID,
		JobID:       job.ID,
		JobTitle:    job.Title,
		CreatedAt:   s.now().UTC(),
		AdditionalData: map[string]any{
			"rating": rating,
		},
	}
	if err := s.notifier.Publish(ctx, msg); err != nil {
		slog.ErrorContext(ctx, "notification dispatch failed",
			"type", string(msg.Type),
			"job_id", msg.JobID,
			"error", err)
	}

	return review, nil
}

// ListForReviewee returns the reviews a user has received.
func (s *Service) ListForReviewee(ctx context.Context, revieweeID string) ([]*types.Review, error) {
	return s.store.ListForReviewee(ctx, revieweeID)
}
