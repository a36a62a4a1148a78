package jobs

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"yardlink/internal/payments"
	"yardlink/internal/types"
)

// JobStore is the minimal job persistence interface the lifecycle
// service needs. Implemented by db.JobRepository. Every mutating
// method is a conditional update that returns a conflict error when
// the row is no longer in the expected state.
type JobStore interface {
	Create(ctx context.Context, j *types.JobRequest) error
	GetByID(ctx context.Context, id string) (*types.JobRequest, error)
	DeleteProvisional(ctx context.Context, id string) error
	ListOpenByParish(ctx context.Context, parish types.Parish, limit int) ([]*types.JobRequest, error)
	ListByCustomer(ctx context.Context, customerID string) ([]*types.JobRequest, error)
	ListByProvider(ctx context.Context, providerID string) ([]*types.JobRequest, error)
	Accept(ctx context.Context, jobID string, providerID string, finalPrice float64) error
	MarkProviderCompleted(ctx context.Context, jobID string, providerID string, now time.Time) error
	CompleteFromPending(ctx context.Context, jobID string, platformFee, providerPayout float64, now time.Time) error
	MarkDisputed(ctx context.Context, jobID string) error
}

// DisputeStore persists disputes and their refund side records.
// Implemented by db.DisputeRepository.
type DisputeStore interface {
	Create(ctx context.Context, d *types.Dispute) error
	GetByID(ctx context.Context, id string) (*types.Dispute, error)
	Resolve(ctx context.Context, id string, status types.DisputeStatus, resolvedBy string, now time.Time) error
	CountForProviderInMonth(ctx context.Context, providerID string, monthStart, monthEnd time.Time) (int, error)
	CreateRefundRequest(ctx context.Context, rr *types.RefundRequest) error
}

// ProposalStore persists provider expressions of interest. Implemented
// by db.ProposalRepository, whose unique constraint rejects doubles.
type ProposalStore interface {
	Create(ctx context.Context, p *types.Proposal) error
	ListForJob(ctx context.Context, jobID string) ([]*types.Proposal, error)
}

// EligibilityChecker is the gate consulted before a provider may
// accept a job. Implemented by eligibility.Service.
type EligibilityChecker interface {
	Check(ctx context.Context, providerID string) (types.EligibilityResult, error)
}

// Notifier enqueues a notification for asynchronous delivery.
// Implemented by queue.NotificationPublisher. Dispatch failures are
// the publisher's problem to log; the service never propagates them.
type Notifier interface {
	Publish(ctx context.Context, msg types.NotificationMessage) error
}

// Service drives the job request lifecycle. All clock reads go through
// the injected now function so tests control time.
type Service struct {
	store     JobStore
	disputes  DisputeStore
	proposals ProposalStore
	gates     EligibilityChecker
	notifier  Notifier
	now       func() time.Time
}

// NewService creates the lifecycle service.
func NewService(store JobStore, disputes DisputeStore, proposals ProposalStore, gates EligibilityChecker, notifier Notifier, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{
		store:     store,
		disputes:  disputes,
		proposals: proposals,
		gates:     gates,
		notifier:  notifier,
		now:       now,
	}
}

// CreateJobInput is the validated payload for creating a job request.
type CreateJobInput struct {
	CustomerID             string
	Title                  string
	Description            string
	Location               string
	Parish                 types.Parish
	LawnSize               types.LawnSize
	AdditionalRequirements string
	PreferredDate          string // YYYY-MM-DD, optional
	PreferredTime          string
	CustomerOffer          *float64
}

// Create opens a new job request priced from the lawn-size table, with
// an optional customer offer that will become final_price if a
// provider accepts it.
func (s *Service) Create(ctx context.Context, in CreateJobInput) (*types.JobRequest, error) {
	if in.CustomerID == "" || in.Title == "" || in.Location == "" {
		return nil, types.NewAppError(types.ErrCodeValidationMissingField, "customer, title and location are required", nil)
	}
	if !types.ValidParish(in.Parish) {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidParish, "unknown parish: "+string(in.Parish), nil)
	}
	if in.PreferredDate != "" {
		if _, err := time.Parse("2006-01-02", in.PreferredDate); err != nil {
			return nil, types.NewAppError(types.ErrCodeValidationInvalidDate, "preferred_date must be YYYY-MM-DD", err)
		}
	}
	if in.CustomerOffer != nil && *in.CustomerOffer <= 0 {
		return nil, types.NewAppError(types.ErrCodeValidationMissingField, "customer_offer must be positive", nil)
	}

	now := s.now().UTC()
	job := &types.JobRequest{
		ID:                     NewJobID(),
		CustomerID:             in.CustomerID,
		BasePrice:              payments.BasePriceFor(in.LawnSize),
		CustomerOffer:          in.CustomerOffer,
		Title:                  in.Title,
		Description:            in.Description,
		Location:               in.Location,
		Parish:                 in.Parish,
		LawnSize:               in.LawnSize,
		AdditionalRequirements: in.AdditionalRequirements,
		PreferredDate:          in.PreferredDate,
		PreferredTime:          in.PreferredTime,
		Status:                 types.JobStatusOpen,
		PaymentStatus:          types.PaymentPending,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	if err := s.store.Create(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// Get returns a job visible to the given actor: the customer, the
// accepted provider, or an admin.
func (s *Service) Get(ctx context.Context, jobID string, actor types.Actor) (*types.JobRequest, error) {
	job, err := s.store.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !isParty(job, actor) {
		return nil, types.NewAppError(types.ErrCodePermissionNotOwner, "not a party to this job", nil)
	}
	return job, nil
}

// Withdraw deletes a customer's own job while it is still open,
// unclaimed, and unpaid. Once a provider has accepted or a payment has
// started, the delete underneath affects zero rows and the caller gets
// a conflict instead.
func (s *Service) Withdraw(ctx context.Context, jobID string, customerID string) error {
	job, err := s.store.GetByID(ctx, jobID)
	if err != nil {
		return err
	}
	if job.CustomerID != customerID {
		return types.NewAppError(types.ErrCodePermissionNotOwner, "not a party to this job", nil)
	}
	return s.store.DeleteProvisional(ctx, jobID)
}

// ListOpen returns open jobs in a parish along with the caller's
// eligibility summary. Browsing is never blocked; the hard gates bite
// at acceptance. The summary lets the client surface the soft
// profile-completeness prompt.
func (s *Service) ListOpen(ctx context.Context, providerID string, parish types.Parish, limit int) ([]*types.JobRequest, types.EligibilityResult, error) {
	if !types.ValidParish(parish) {
		return nil, types.EligibilityResult{}, types.NewAppError(types.ErrCodeValidationInvalidParish, "unknown parish: "+string(parish), nil)
	}
	elig, err := s.gates.Check(ctx, providerID)
	if err != nil {
		return nil, types.EligibilityResult{}, err
	}
	list, err := s.store.ListOpenByParish(ctx, parish, limit)
	if err != nil {
		return nil, types.EligibilityResult{}, err
	}
	return list, elig, nil
}

// ListForCustomer returns a customer's jobs, newest first.
func (s *Service) ListForCustomer(ctx context.Context, customerID string) ([]*types.JobRequest, error) {
	return s.store.ListByCustomer(ctx, customerID)
}

// ListForProvider returns the jobs a provider has accepted.
func (s *Service) ListForProvider(ctx context.Context, providerID string) ([]*types.JobRequest, error) {
	return s.store.ListByProvider(ctx, providerID)
}

// Propose records a provider's interest in an open job and notifies
// the customer. The hard gates apply here as well as at acceptance so
// customers never see interest from providers who could not take the
// job. Doubles are rejected by the store's unique constraint.
func (s *Service) Propose(ctx context.Context, jobID string, providerID string, message string) (*types.Proposal, error) {
	elig, err := s.gates.Check(ctx, providerID)
	if err != nil {
		return nil, err
	}
	if !elig.CanAcceptJobs() {
		return nil, types.NewAppErrorWithDetails(
			types.ErrCodeProviderNotEligible,
			"provider has not completed verification",
			nil,
			map[string]any{
				"id_verified":      elig.IDVerified,
				"banking_verified": elig.BankingVerified,
			},
		)
	}

	job, err := s.store.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != types.JobStatusOpen {
		return nil, types.NewAppError(types.ErrCodeConflictStateChanged, "job is no longer open", nil)
	}

	p := &types.Proposal{
		ID:         "prp_" + uuid.NewString(),
		JobID:      job.ID,
		ProviderID: providerID,
		Message:    strings.TrimSpace(message),
		CreatedAt:  s.now().UTC(),
	}
	if err := s.proposals.Create(ctx, p); err != nil {
		return nil, err
	}

	s.dispatch(ctx, types.NotificationMessage{
		Type:        types.NotifProposalReceived,
		RecipientID: job.CustomerID,
		JobID:       job.ID,
		JobTitle:    job.Title,
		AdditionalData: map[string]any{
			"provider_id": providerID,
		},
	})

	return p, nil
}

// ListProposals returns the proposals on a job, visible to the job
// owner and admins only.
func (s *Service) ListProposals(ctx context.Context, jobID string, actor types.Actor) ([]*types.Proposal, error) {
	job, err := s.store.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.CustomerID != actor.ID && actor.Role != types.RoleAdmin {
		return nil, types.NewAppError(types.ErrCodePermissionNotOwner, "not a party to this job", nil)
	}
	return s.proposals.ListForJob(ctx, jobID)
}

// Accept moves an open job to accepted on behalf of a provider.
//
// The eligibility hard gates (ID approved AND banking verified) are
// checked before the write. The final price is frozen here: the
// customer's offer when present, otherwise the base price. The accept
// itself is a conditional update, so a second provider racing on the
// same job loses with a conflict rather than overwriting.
func (s *Service) Accept(ctx context.Context, jobID string, providerID string) (*types.JobRequest, error) {
	elig, err := s.gates.Check(ctx, providerID)
	if err != nil {
		return nil, err
	}
	if !elig.CanAcceptJobs() {
		return nil, types.NewAppErrorWithDetails(
			types.ErrCodeProviderNotEligible,
			"provider has not completed verification",
			nil,
			map[string]any{
				"id_verified":      elig.IDVerified,
				"banking_verified": elig.BankingVerified,
			},
		)
	}

	job, err := s.store.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	finalPrice := job.BasePrice
	if job.CustomerOffer != nil && *job.CustomerOffer > 0 {
		finalPrice = *job.CustomerOffer
	}

	if err := s.store.Accept(ctx, jobID, providerID, finalPrice); err != nil {
		return nil, err
	}

	s.dispatch(ctx, types.NotificationMessage{
		Type:        types.NotifProposalAccepted,
		RecipientID: job.CustomerID,
		JobID:       job.ID,
		JobTitle:    job.Title,
		AdditionalData: map[string]any{
			"provider_id": providerID,
			"final_price": finalPrice,
		},
	})

	return s.store.GetByID(ctx, jobID)
}

// ProviderComplete marks an in-progress job as finished by the
// provider, starting the customer's confirmation window.
func (s *Service) ProviderComplete(ctx context.Context, jobID string, providerID string) (*types.JobRequest, error) {
	now := s.now().UTC()
	if err := s.store.MarkProviderCompleted(ctx, jobID, providerID, now); err != nil {
		return nil, err
	}
	job, err := s.store.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}

	s.dispatch(ctx, types.NotificationMessage{
		Type:        types.NotifJobCompleted,
		RecipientID: job.CustomerID,
		JobID:       job.ID,
		JobTitle:    job.Title,
		AdditionalData: map[string]any{
			"awaiting_confirmation": true,
		},
	})
	return job, nil
}

// CustomerConfirm completes a pending_completion job on the customer's
// explicit confirmation, computing the dispute-adjusted payout split
// at that moment. completed_at is stamped exactly once by the
// conditional update underneath.
func (s *Service) CustomerConfirm(ctx context.Context, jobID string, customerID string) (*types.JobRequest, error) {
	job, err := s.store.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.CustomerID != customerID {
		return nil, types.NewAppError(types.ErrCodePermissionNotOwner, "not a party to this job", nil)
	}
	if job.Status != types.JobStatusPendingCompletion {
		return nil, types.NewAppError(types.ErrCodeConflictStateChanged, "job is not awaiting completion confirmation", nil)
	}
	if job.AcceptedProviderID == nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "pending completion without an accepted provider", nil)
	}

	now := s.now().UTC()
	monthStart, monthEnd := payments.MonthWindow(now)
	disputeCount, err := s.disputes.CountForProviderInMonth(ctx, *job.AcceptedProviderID, monthStart, monthEnd)
	if err != nil {
		return nil, err
	}

	finalPrice := priceForSettlement(job)
	platformFee, providerPayout := payments.SplitAtCompletion(finalPrice, disputeCount)
	if err := s.store.CompleteFromPending(ctx, jobID, platformFee, providerPayout, now); err != nil {
		return nil, err
	}

	s.dispatch(ctx, types.NotificationMessage{
		Type:        types.NotifJobCompleted,
		RecipientID: *job.AcceptedProviderID,
		JobID:       job.ID,
		JobTitle:    job.Title,
		AdditionalData: map[string]any{
			"provider_payout": providerPayout,
		},
	})

	return s.store.GetByID(ctx, jobID)
}

// FileDispute opens a dispute on a pending_completion or completed
// job. The job row flips to disputed and an open dispute record is
// created for admin resolution.
func (s *Service) FileDispute(ctx context.Context, jobID string, customerID string, reason string) (*types.Dispute, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, types.NewAppError(types.ErrCodeValidationMissingField, "dispute reason is required", nil)
	}
	job, err := s.store.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.CustomerID != customerID {
		return nil, types.NewAppError(types.ErrCodePermissionNotOwner, "not a party to this job", nil)
	}
	if !CanTransition(job.Status, types.JobStatusDisputed) {
		return nil, types.NewAppError(types.ErrCodeConflictStateChanged, "job cannot be disputed from its current state", nil)
	}
	if job.AcceptedProviderID == nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "disputable job without an accepted provider", nil)
	}

	if err := s.store.MarkDisputed(ctx, jobID); err != nil {
		return nil, err
	}

	dispute := &types.Dispute{
		ID:         "dsp_" + uuid.NewString(),
		JobID:      job.ID,
		ProviderID: *job.AcceptedProviderID,
		CustomerID: customerID,
		Reason:     reason,
		Status:     types.DisputeOpen,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.disputes.Create(ctx, dispute); err != nil {
		return nil, err
	}
	return dispute, nil
}

// ResolveDispute is the admin-only terminal action on an open dispute.
// Approval records a refund request for the job's settled amount; the
// payment row itself is never reverted.
func (s *Service) ResolveDispute(ctx context.Context, disputeID string, actor types.Actor, approve bool) (*types.Dispute, error) {
	if actor.Role != types.RoleAdmin {
		return nil, types.NewAppError(types.ErrCodePermissionAdminOnly, "dispute resolution is admin only", nil)
	}

	dispute, err := s.disputes.GetByID(ctx, disputeID)
	if err != nil {
		return nil, err
	}

	status := types.DisputeRejected
	if approve {
		status = types.DisputeApproved
	}
	now := s.now().UTC()
	if err := s.disputes.Resolve(ctx, disputeID, status, actor.ID, now); err != nil {
		return nil, err
	}

	if approve {
		job, err := s.store.GetByID(ctx, dispute.JobID)
		if err != nil {
			return nil, err
		}
		rr := &types.RefundRequest{
			ID:         "rf_" + uuid.NewString(),
			JobID:      job.ID,
			CustomerID: job.CustomerID,
			Amount:     priceForSettlement(job),
			Status:     types.RefundRequested,
			CreatedAt:  now,
		}
		if err := s.disputes.CreateRefundRequest(ctx, rr); err != nil {
			return nil, err
		}
	}

	return s.disputes.GetByID(ctx, disputeID)
}

// dispatch enqueues a notification and swallows any failure. A queue
// outage must never roll back or block the state change that preceded
// it.
func (s *Service) dispatch(ctx context.Context, msg types.NotificationMessage) {
	msg.MessageID = "ntf_" + uuid.NewString()
	msg.CreatedAt = s.now().UTC()
	if err := s.notifier.Publish(ctx, msg); err != nil {
		slog.ErrorContext(ctx, "notification dispatch failed",
			"type", string(msg.Type),
			"job_id", msg.JobID,
			"error", err)
	}
}

// NewJobID mints a prefixed job identifier.
func NewJobID() string {
	return "job_" + uuid.NewString()
}

// priceForSettlement picks the amount disputes and completion math run
// on: final_price once frozen, base_price for legacy rows without one.
func priceForSettlement(job *types.JobRequest) float64 {
	if job.FinalPrice != nil && *job.FinalPrice > 0 {
		return *job.FinalPrice
	}
	return job.BasePrice
}

func isParty(job *types.JobRequest, actor types.Actor) bool {
	if actor.Role == types.RoleAdmin {
		return true
	}
	if job.CustomerID == actor.ID {
		return true
	}
	return job.AcceptedProviderID != nil && *job.AcceptedProviderID == actor.ID
}
