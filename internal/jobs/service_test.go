package jobs

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yardlink/internal/types"
)

var testNow = func() time.Time {
	return time.Date(2026, time.June, 15, 12, 0, 0, 0, time.UTC)
}

type fakeJobStore struct {
	jobs map[string]*types.JobRequest

	acceptErr    error
	completeErr  error
	disputeErr   error
	deleteCalled []string

	acceptedFinalPrice float64
	completedFee       float64
	completedPayout    float64
}

func newFakeJobStore(jobs ...*types.JobRequest) *fakeJobStore {
	s := &fakeJobStore{jobs: map[string]*types.JobRequest{}}
	for _, j := range jobs {
		s.jobs[j.ID] = j
	}
	return s
}

func (s *fakeJobStore) Create(_ context.Context, j *types.JobRequest) error {
	s.jobs[j.ID] = j
	return nil
}

func (s *fakeJobStore) GetByID(_ context.Context, id string) (*types.JobRequest, error) {
	j, ok := s.jobs[id]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundJob, "job not found", nil)
	}
	return j, nil
}

func (s *fakeJobStore) DeleteProvisional(_ context.Context, id string) error {
	s.deleteCalled = append(s.deleteCalled, id)
	j, ok := s.jobs[id]
	if !ok || j.Status != types.JobStatusOpen || j.PaymentStatus != types.PaymentPending {
		return types.NewAppError(types.ErrCodeConflictStateChanged, "job is no longer provisional", nil)
	}
	delete(s.jobs, id)
	return nil
}

func (s *fakeJobStore) ListOpenByParish(_ context.Context, parish types.Parish, _ int) ([]*types.JobRequest, error) {
	var out []*types.JobRequest
	for _, j := range s.jobs {
		if j.Status == types.JobStatusOpen && j.Parish == parish {
			out = append(out, j)
		}
	}
	return out, nil
}

func (s *fakeJobStore) ListByCustomer(_ context.Context, customerID string) ([]*types.JobRequest, error) {
	var out []*types.JobRequest
	for _, j := range s.jobs {
		if j.CustomerID == customerID {
			out = append(out, j)
		}
	}
	return out, nil
}

func (s *fakeJobStore) ListByProvider(_ context.Context, providerID string) ([]*types.JobRequest, error) {
	var out []*types.JobRequest
	for _, j := range s.jobs {
		if j.AcceptedProviderID != nil && *j.AcceptedProviderID == providerID {
			out = append(out, j)
		}
	}
	return out, nil
}

func (s *fakeJobStore) Accept(_ context.Context, jobID string, providerID string, finalPrice float64) error {
	if s.acceptErr != nil {
		return s.acceptErr
	}
	j := s.jobs[jobID]
	// Mirrors the repository: an already-paid job has no later payment
	// event to release escrow, so acceptance lands in in_progress.
	if j.PaymentStatus == types.PaymentPaid {
		j.Status = types.JobStatusInProgress
	} else {
		j.Status = types.JobStatusAccepted
	}
	j.AcceptedProviderID = &providerID
	j.FinalPrice = &finalPrice
	s.acceptedFinalPrice = finalPrice
	return nil
}

func (s *fakeJobStore) MarkProviderCompleted(_ context.Context, jobID string, providerID string, now time.Time) error {
	j, ok := s.jobs[jobID]
	if !ok {
		return types.NewAppError(types.ErrCodeNotFoundJob, "job not found", nil)
	}
	if j.Status != types.JobStatusInProgress || j.AcceptedProviderID == nil || *j.AcceptedProviderID != providerID {
		return types.NewAppError(types.ErrCodeConflictStateChanged, "job state changed", nil)
	}
	j.Status = types.JobStatusPendingCompletion
	j.ProviderCompletedAt = &now
	return nil
}

func (s *fakeJobStore) CompleteFromPending(_ context.Context, jobID string, platformFee, providerPayout float64, now time.Time) error {
	if s.completeErr != nil {
		return s.completeErr
	}
	j := s.jobs[jobID]
	j.Status = types.JobStatusCompleted
	j.PlatformFee = platformFee
	j.ProviderPayout = providerPayout
	j.CompletedAt = &now
	s.completedFee = platformFee
	s.completedPayout = providerPayout
	return nil
}

func (s *fakeJobStore) MarkDisputed(_ context.Context, jobID string) error {
	if s.disputeErr != nil {
		return s.disputeErr
	}
	s.jobs[jobID].Status = types.JobStatusDisputed
	return nil
}

type fakeDisputeStore struct {
	disputes     map[string]*types.Dispute
	refunds      []*types.RefundRequest
	monthCount   int
	monthCountBy string
}

func newFakeDisputeStore() *fakeDisputeStore {
	return &fakeDisputeStore{disputes: map[string]*types.Dispute{}}
}

func (s *fakeDisputeStore) Create(_ context.Context, d *types.Dispute) error {
	s.disputes[d.ID] = d
	return nil
}

func (s *fakeDisputeStore) GetByID(_ context.Context, id string) (*types.Dispute, error) {
	d, ok := s.disputes[id]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundDispute, "dispute not found", nil)
	}
	return d, nil
}

func (s *fakeDisputeStore) Resolve(_ context.Context, id string, status types.DisputeStatus, resolvedBy string, now time.Time) error {
	d := s.disputes[id]
	d.Status = status
	d.ResolvedBy = &resolvedBy
	d.ResolvedAt = &now
	return nil
}

func (s *fakeDisputeStore) CountForProviderInMonth(_ context.Context, providerID string, _, _ time.Time) (int, error) {
	s.monthCountBy = providerID
	return s.monthCount, nil
}

func (s *fakeDisputeStore) CreateRefundRequest(_ context.Context, rr *types.RefundRequest) error {
	s.refunds = append(s.refunds, rr)
	return nil
}

type fakeGates struct {
	result types.EligibilityResult
	err    error
}

func (g *fakeGates) Check(_ context.Context, providerID string) (types.EligibilityResult, error) {
	if g.err != nil {
		return types.EligibilityResult{}, g.err
	}
	r := g.result
	r.ProviderID = providerID
	return r, nil
}

type fakeNotifier struct {
	published []types.NotificationMessage
	err       error
}

func (n *fakeNotifier) Publish(_ context.Context, msg types.NotificationMessage) error {
	n.published = append(n.published, msg)
	return n.err
}

func eligible() *fakeGates {
	return &fakeGates{result: types.EligibilityResult{IDVerified: true, BankingVerified: true, ProfileComplete: true}}
}

type fakeProposalStore struct {
	proposals []*types.Proposal
	createErr error
}

func (p *fakeProposalStore) Create(_ context.Context, prop *types.Proposal) error {
	if p.createErr != nil {
		return p.createErr
	}
	p.proposals = append(p.proposals, prop)
	return nil
}

func (p *fakeProposalStore) ListForJob(_ context.Context, jobID string) ([]*types.Proposal, error) {
	var out []*types.Proposal
	for _, prop := range p.proposals {
		if prop.JobID == jobID {
			out = append(out, prop)
		}
	}
	return out, nil
}

func newTestService(store *fakeJobStore, disputes *fakeDisputeStore, gates *fakeGates, notifier *fakeNotifier) *Service {
	return NewService(store, disputes, &fakeProposalStore{}, gates, notifier, testNow)
}

func openJob(id, customerID string) *types.JobRequest {
	return &types.JobRequest{
		ID:            id,
		CustomerID:    customerID,
		BasePrice:     5500,
		Title:         "Backyard trim",
		Location:      "12 Hope Road",
		Parish:        types.ParishStAndrew,
		LawnSize:      types.LawnMedium,
		Status:        types.JobStatusOpen,
		PaymentStatus: types.PaymentPending,
	}
}

func TestCreateValidation(t *testing.T) {
	svc := newTestService(newFakeJobStore(), newFakeDisputeStore(), eligible(), &fakeNotifier{})
	ctx := context.Background()

	base := CreateJobInput{
		CustomerID: "cus_1",
		Title:      "Front lawn",
		Location:   "4 Barbican Road",
		Parish:     types.ParishKingston,
		LawnSize:   types.LawnSmall,
	}

	t.Run("missing title", func(t *testing.T) {
		in := base
		in.Title = ""
		_, err := svc.Create(ctx, in)
		assertCode(t, err, types.ErrCodeValidationMissingField)
	})

	t.Run("unknown parish", func(t *testing.T) {
		in := base
		in.Parish = "Narnia"
		_, err := svc.Create(ctx, in)
		assertCode(t, err, types.ErrCodeValidationInvalidParish)
	})

	t.Run("bad preferred date", func(t *testing.T) {
		in := base
		in.PreferredDate = "15/06/2026"
		_, err := svc.Create(ctx, in)
		assertCode(t, err, types.ErrCodeValidationInvalidDate)
	})

	t.Run("non positive offer", func(t *testing.T) {
		in := base
		offer := -100.0
		in.CustomerOffer = &offer
		_, err := svc.Create(ctx, in)
		assertCode(t, err, types.ErrCodeValidationMissingField)
	})
}

func TestCreatePricesFromLawnSize(t *testing.T) {
	store := newFakeJobStore()
	svc := newTestService(store, newFakeDisputeStore(), eligible(), &fakeNotifier{})

	offer := 6000.0
	job, err := svc.Create(context.Background(), CreateJobInput{
		CustomerID:    "cus_1",
		Title:         "Full yard",
		Location:      "2 Trafalgar Road",
		Parish:        types.ParishKingston,
		LawnSize:      types.LawnLarge,
		PreferredDate: "2026-06-20",
		CustomerOffer: &offer,
	})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(job.ID, "job_"))
	assert.Equal(t, 8000.0, job.BasePrice)
	require.NotNil(t, job.CustomerOffer)
	assert.Equal(t, 6000.0, *job.CustomerOffer)
	assert.Equal(t, types.JobStatusOpen, job.Status)
	assert.Equal(t, types.PaymentPending, job.PaymentStatus)
	assert.Equal(t, testNow().UTC(), job.CreatedAt)
	assert.Contains(t, store.jobs, job.ID)
}

func TestAcceptGateDenied(t *testing.T) {
	store := newFakeJobStore(openJob("job_1", "cus_1"))
	gates := &fakeGates{result: types.EligibilityResult{IDVerified: true, BankingVerified: false}}
	svc := newTestService(store, newFakeDisputeStore(), gates, &fakeNotifier{})

	_, err := svc.Accept(context.Background(), "job_1", "pro_1")

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeProviderNotEligible, appErr.Code)
	assert.Equal(t, true, appErr.Details["id_verified"])
	assert.Equal(t, false, appErr.Details["banking_verified"])
	assert.Equal(t, types.JobStatusOpen, store.jobs["job_1"].Status, "denied accept must not touch the job")
}

func TestAcceptFreezesFinalPrice(t *testing.T) {
	t.Run("offer wins over base price", func(t *testing.T) {
		job := openJob("job_1", "cus_1")
		offer := 4200.0
		job.CustomerOffer = &offer
		store := newFakeJobStore(job)
		notifier := &fakeNotifier{}
		svc := newTestService(store, newFakeDisputeStore(), eligible(), notifier)

		accepted, err := svc.Accept(context.Background(), "job_1", "pro_1")
		require.NoError(t, err)

		assert.Equal(t, 4200.0, store.acceptedFinalPrice)
		require.NotNil(t, accepted.AcceptedProviderID)
		assert.Equal(t, "pro_1", *accepted.AcceptedProviderID)

		require.Len(t, notifier.published, 1)
		msg := notifier.published[0]
		assert.Equal(t, types.NotifProposalAccepted, msg.Type)
		assert.Equal(t, "cus_1", msg.RecipientID)
		assert.Equal(t, 4200.0, msg.AdditionalData["final_price"])
		assert.True(t, strings.HasPrefix(msg.MessageID, "ntf_"))
	})

	t.Run("no offer falls back to base price", func(t *testing.T) {
		store := newFakeJobStore(openJob("job_1", "cus_1"))
		svc := newTestService(store, newFakeDisputeStore(), eligible(), &fakeNotifier{})

		_, err := svc.Accept(context.Background(), "job_1", "pro_1")
		require.NoError(t, err)
		assert.Equal(t, 5500.0, store.acceptedFinalPrice)
	})

	t.Run("racing accept surfaces the conflict", func(t *testing.T) {
		store := newFakeJobStore(openJob("job_1", "cus_1"))
		store.acceptErr = types.NewAppError(types.ErrCodeConflictStateChanged, "job state changed", nil)
		notifier := &fakeNotifier{}
		svc := newTestService(store, newFakeDisputeStore(), eligible(), notifier)

		_, err := svc.Accept(context.Background(), "job_1", "pro_2")
		assertCode(t, err, types.ErrCodeConflictStateChanged)
		assert.Empty(t, notifier.published, "losing accept must not notify")
	})
}

func TestAcceptPaidJobReleasesEscrowImmediately(t *testing.T) {
	// Autopay-generated jobs arrive open and already paid; acceptance
	// must take them straight to in_progress so the provider can work
	// and complete without a payment event that will never come.
	job := openJob("job_1", "cus_1")
	job.PaymentStatus = types.PaymentPaid
	job.PaymentReference = "autopay:ap_1"
	store := newFakeJobStore(job)
	svc := newTestService(store, newFakeDisputeStore(), eligible(), &fakeNotifier{})

	accepted, err := svc.Accept(context.Background(), "job_1", "pro_1")
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusInProgress, accepted.Status)
	assert.Equal(t, types.PaymentPaid, accepted.PaymentStatus)

	done, err := svc.ProviderComplete(context.Background(), "job_1", "pro_1")
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusPendingCompletion, done.Status)
}

func TestPropose(t *testing.T) {
	t.Run("records interest and notifies the customer", func(t *testing.T) {
		store := newFakeJobStore(openJob("job_1", "cus_1"))
		props := &fakeProposalStore{}
		notifier := &fakeNotifier{}
		svc := NewService(store, newFakeDisputeStore(), props, eligible(), notifier, testNow)

		p, err := svc.Propose(context.Background(), "job_1", "pro_1", "  Can start Thursday  ")
		require.NoError(t, err)

		assert.True(t, strings.HasPrefix(p.ID, "prp_"))
		assert.Equal(t, "job_1", p.JobID)
		assert.Equal(t, "pro_1", p.ProviderID)
		assert.Equal(t, "Can start Thursday", p.Message)
		assert.Equal(t, testNow().UTC(), p.CreatedAt)
		require.Len(t, props.proposals, 1)

		require.Len(t, notifier.published, 1)
		msg := notifier.published[0]
		assert.Equal(t, types.NotifProposalReceived, msg.Type)
		assert.Equal(t, "cus_1", msg.RecipientID)
		assert.Equal(t, "pro_1", msg.AdditionalData["provider_id"])
	})

	t.Run("unverified provider is rejected", func(t *testing.T) {
		store := newFakeJobStore(openJob("job_1", "cus_1"))
		props := &fakeProposalStore{}
		gates := &fakeGates{result: types.EligibilityResult{IDVerified: false, BankingVerified: true}}
		svc := NewService(store, newFakeDisputeStore(), props, gates, &fakeNotifier{}, testNow)

		_, err := svc.Propose(context.Background(), "job_1", "pro_1", "")
		assertCode(t, err, types.ErrCodeProviderNotEligible)
		assert.Empty(t, props.proposals)
	})

	t.Run("claimed job is a conflict", func(t *testing.T) {
		job := openJob("job_1", "cus_1")
		job.Status = types.JobStatusAccepted
		store := newFakeJobStore(job)
		svc := NewService(store, newFakeDisputeStore(), &fakeProposalStore{}, eligible(), &fakeNotifier{}, testNow)

		_, err := svc.Propose(context.Background(), "job_1", "pro_1", "")
		assertCode(t, err, types.ErrCodeConflictStateChanged)
	})

	t.Run("duplicate passes through without notifying", func(t *testing.T) {
		store := newFakeJobStore(openJob("job_1", "cus_1"))
		props := &fakeProposalStore{
			createErr: types.NewAppError(types.ErrCodeConflictDuplicate, "proposal already submitted for this job", nil),
		}
		notifier := &fakeNotifier{}
		svc := NewService(store, newFakeDisputeStore(), props, eligible(), notifier, testNow)

		_, err := svc.Propose(context.Background(), "job_1", "pro_1", "")
		assertCode(t, err, types.ErrCodeConflictDuplicate)
		assert.Empty(t, notifier.published)
	})
}

func TestListProposals(t *testing.T) {
	store := newFakeJobStore(openJob("job_1", "cus_1"))
	props := &fakeProposalStore{proposals: []*types.Proposal{
		{ID: "prp_1", JobID: "job_1", ProviderID: "pro_1"},
		{ID: "prp_2", JobID: "job_other", ProviderID: "pro_2"},
	}}
	svc := NewService(store, newFakeDisputeStore(), props, eligible(), &fakeNotifier{}, testNow)

	t.Run("owner sees the job's proposals", func(t *testing.T) {
		list, err := svc.ListProposals(context.Background(), "job_1", types.Actor{ID: "cus_1", Role: types.RoleCustomer})
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "prp_1", list[0].ID)
	})

	t.Run("admin sees them too", func(t *testing.T) {
		list, err := svc.ListProposals(context.Background(), "job_1", types.Actor{ID: "adm_1", Role: types.RoleAdmin})
		require.NoError(t, err)
		assert.Len(t, list, 1)
	})

	t.Run("strangers do not", func(t *testing.T) {
		_, err := svc.ListProposals(context.Background(), "job_1", types.Actor{ID: "pro_9", Role: types.RoleProvider})
		assertCode(t, err, types.ErrCodePermissionNotOwner)
	})
}

func TestWithdraw(t *testing.T) {
	t.Run("owner can withdraw an open job", func(t *testing.T) {
		store := newFakeJobStore(openJob("job_1", "cus_1"))
		svc := newTestService(store, newFakeDisputeStore(), eligible(), &fakeNotifier{})

		require.NoError(t, svc.Withdraw(context.Background(), "job_1", "cus_1"))
		assert.NotContains(t, store.jobs, "job_1")
	})

	t.Run("non owner is rejected before any delete", func(t *testing.T) {
		store := newFakeJobStore(openJob("job_1", "cus_1"))
		svc := newTestService(store, newFakeDisputeStore(), eligible(), &fakeNotifier{})

		err := svc.Withdraw(context.Background(), "job_1", "cus_2")
		assertCode(t, err, types.ErrCodePermissionNotOwner)
		assert.Empty(t, store.deleteCalled)
	})

	t.Run("accepted job cannot be withdrawn", func(t *testing.T) {
		job := openJob("job_1", "cus_1")
		job.Status = types.JobStatusAccepted
		store := newFakeJobStore(job)
		svc := newTestService(store, newFakeDisputeStore(), eligible(), &fakeNotifier{})

		err := svc.Withdraw(context.Background(), "job_1", "cus_1")
		assertCode(t, err, types.ErrCodeConflictStateChanged)
	})
}

func TestCustomerConfirm(t *testing.T) {
	pendingJob := func() *types.JobRequest {
		j := openJob("job_1", "cus_1")
		provider := "pro_1"
		final := 5500.0
		j.Status = types.JobStatusPendingCompletion
		j.AcceptedProviderID = &provider
		j.FinalPrice = &final
		return j
	}

	t.Run("standard split below the dispute threshold", func(t *testing.T) {
		store := newFakeJobStore(pendingJob())
		disputes := newFakeDisputeStore()
		disputes.monthCount = 2
		notifier := &fakeNotifier{}
		svc := newTestService(store, disputes, eligible(), notifier)

		job, err := svc.CustomerConfirm(context.Background(), "job_1", "cus_1")
		require.NoError(t, err)

		assert.Equal(t, "pro_1", disputes.monthCountBy)
		assert.Equal(t, 3850.0, store.completedPayout)
		assert.Equal(t, 1650.0, store.completedFee)
		assert.Equal(t, types.JobStatusCompleted, job.Status)

		require.Len(t, notifier.published, 1)
		assert.Equal(t, types.NotifJobCompleted, notifier.published[0].Type)
		assert.Equal(t, "pro_1", notifier.published[0].RecipientID)
		assert.Equal(t, 3850.0, notifier.published[0].AdditionalData["provider_payout"])
	})

	t.Run("reduced split at three disputes", func(t *testing.T) {
		store := newFakeJobStore(pendingJob())
		disputes := newFakeDisputeStore()
		disputes.monthCount = 3
		svc := newTestService(store, disputes, eligible(), &fakeNotifier{})

		_, err := svc.CustomerConfirm(context.Background(), "job_1", "cus_1")
		require.NoError(t, err)
		assert.Equal(t, 3300.0, store.completedPayout)
		assert.Equal(t, 2200.0, store.completedFee)
	})

	t.Run("wrong state", func(t *testing.T) {
		j := pendingJob()
		j.Status = types.JobStatusInProgress
		svc := newTestService(newFakeJobStore(j), newFakeDisputeStore(), eligible(), &fakeNotifier{})

		_, err := svc.CustomerConfirm(context.Background(), "job_1", "cus_1")
		assertCode(t, err, types.ErrCodeConflictStateChanged)
	})

	t.Run("only the customer may confirm", func(t *testing.T) {
		svc := newTestService(newFakeJobStore(pendingJob()), newFakeDisputeStore(), eligible(), &fakeNotifier{})

		_, err := svc.CustomerConfirm(context.Background(), "job_1", "pro_1")
		assertCode(t, err, types.ErrCodePermissionNotOwner)
	})
}

func TestFileDispute(t *testing.T) {
	disputableJob := func(status types.JobStatus) *types.JobRequest {
		j := openJob("job_1", "cus_1")
		provider := "pro_1"
		j.Status = status
		j.AcceptedProviderID = &provider
		return j
	}

	t.Run("from pending_completion", func(t *testing.T) {
		store := newFakeJobStore(disputableJob(types.JobStatusPendingCompletion))
		disputes := newFakeDisputeStore()
		svc := newTestService(store, disputes, eligible(), &fakeNotifier{})

		d, err := svc.FileDispute(context.Background(), "job_1", "cus_1", "grass left uncut")
		require.NoError(t, err)

		assert.True(t, strings.HasPrefix(d.ID, "dsp_"))
		assert.Equal(t, "pro_1", d.ProviderID)
		assert.Equal(t, types.DisputeOpen, d.Status)
		assert.Equal(t, types.JobStatusDisputed, store.jobs["job_1"].Status)
	})

	t.Run("from completed", func(t *testing.T) {
		store := newFakeJobStore(disputableJob(types.JobStatusCompleted))
		svc := newTestService(store, newFakeDisputeStore(), eligible(), &fakeNotifier{})

		_, err := svc.FileDispute(context.Background(), "job_1", "cus_1", "damage to fence")
		require.NoError(t, err)
	})

	t.Run("open job is not disputable", func(t *testing.T) {
		svc := newTestService(newFakeJobStore(openJob("job_1", "cus_1")), newFakeDisputeStore(), eligible(), &fakeNotifier{})

		_, err := svc.FileDispute(context.Background(), "job_1", "cus_1", "reason")
		assertCode(t, err, types.ErrCodeConflictStateChanged)
	})

	t.Run("blank reason", func(t *testing.T) {
		svc := newTestService(newFakeJobStore(), newFakeDisputeStore(), eligible(), &fakeNotifier{})

		_, err := svc.FileDispute(context.Background(), "job_1", "cus_1", "   ")
		assertCode(t, err, types.ErrCodeValidationMissingField)
	})
}

func TestResolveDispute(t *testing.T) {
	seed := func() (*fakeJobStore, *fakeDisputeStore) {
		provider := "pro_1"
		final := 8000.0
		job := openJob("job_1", "cus_1")
		job.Status = types.JobStatusDisputed
		job.AcceptedProviderID = &provider
		job.FinalPrice = &final

		disputes := newFakeDisputeStore()
		disputes.disputes["dsp_1"] = &types.Dispute{
			ID:         "dsp_1",
			JobID:      "job_1",
			ProviderID: provider,
			CustomerID: "cus_1",
			Status:     types.DisputeOpen,
		}
		return newFakeJobStore(job), disputes
	}

	t.Run("admin only", func(t *testing.T) {
		store, disputes := seed()
		svc := newTestService(store, disputes, eligible(), &fakeNotifier{})

		_, err := svc.ResolveDispute(context.Background(), "dsp_1", types.Actor{ID: "cus_1", Role: types.RoleCustomer}, true)
		assertCode(t, err, types.ErrCodePermissionAdminOnly)
	})

	t.Run("approval records a refund for the settled amount", func(t *testing.T) {
		store, disputes := seed()
		svc := newTestService(store, disputes, eligible(), &fakeNotifier{})

		d, err := svc.ResolveDispute(context.Background(), "dsp_1", types.Actor{ID: "adm_1", Role: types.RoleAdmin}, true)
		require.NoError(t, err)

		assert.Equal(t, types.DisputeApproved, d.Status)
		require.NotNil(t, d.ResolvedBy)
		assert.Equal(t, "adm_1", *d.ResolvedBy)

		require.Len(t, disputes.refunds, 1)
		rr := disputes.refunds[0]
		assert.True(t, strings.HasPrefix(rr.ID, "rf_"))
		assert.Equal(t, 8000.0, rr.Amount)
		assert.Equal(t, "cus_1", rr.CustomerID)
		assert.Equal(t, types.RefundRequested, rr.Status)
	})

	t.Run("rejection leaves no refund", func(t *testing.T) {
		store, disputes := seed()
		svc := newTestService(store, disputes, eligible(), &fakeNotifier{})

		d, err := svc.ResolveDispute(context.Background(), "dsp_1", types.Actor{ID: "adm_1", Role: types.RoleAdmin}, false)
		require.NoError(t, err)
		assert.Equal(t, types.DisputeRejected, d.Status)
		assert.Empty(t, disputes.refunds)
	})
}

func TestGetVisibility(t *testing.T) {
	provider := "pro_1"
	job := openJob("job_1", "cus_1")
	job.AcceptedProviderID = &provider
	svc := newTestService(newFakeJobStore(job), newFakeDisputeStore(), eligible(), &fakeNotifier{})
	ctx := context.Background()

	for _, actor := range []types.Actor{
		{ID: "cus_1", Role: types.RoleCustomer},
		{ID: "pro_1", Role: types.RoleProvider},
		{ID: "adm_9", Role: types.RoleAdmin},
	} {
		got, err := svc.Get(ctx, "job_1", actor)
		require.NoError(t, err, "actor %s", actor.ID)
		assert.Equal(t, "job_1", got.ID)
	}

	_, err := svc.Get(ctx, "job_1", types.Actor{ID: "pro_2", Role: types.RoleProvider})
	assertCode(t, err, types.ErrCodePermissionNotOwner)
}

func TestDispatchSwallowsPublishFailure(t *testing.T) {
	store := newFakeJobStore(openJob("job_1", "cus_1"))
	notifier := &fakeNotifier{err: errors.New("queue unavailable")}
	svc := newTestService(store, newFakeDisputeStore(), eligible(), notifier)

	_, err := svc.Accept(context.Background(), "job_1", "pro_1")
	require.NoError(t, err, "a queue outage must not fail the accept")
	assert.Len(t, notifier.published, 1)
}

func assertCode(t *testing.T, err error, want types.ErrorCode) {
	t.Helper()
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, want, appErr.Code)
}
