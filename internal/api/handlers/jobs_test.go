package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yardlink/internal/core"
	"yardlink/internal/jobs"
	"yardlink/internal/types"
)

type fakeJobService struct {
	createIn  jobs.CreateJobInput
	createJob *types.JobRequest
	createErr error

	acceptJobID    string
	acceptProvider string
	acceptJob      *types.JobRequest
	acceptErr      error

	withdrawErr error

	openJobs []*types.JobRequest
	openElig types.EligibilityResult

	confirmJob *types.JobRequest
	confirmErr error

	dispute    *types.Dispute
	disputeErr error

	proposeJobID   string
	proposeMessage string
	proposal       *types.Proposal
	proposeErr     error
}

func (f *fakeJobService) Create(_ context.Context, in jobs.CreateJobInput) (*types.JobRequest, error) {
	f.createIn = in
	return f.createJob, f.createErr
}

func (f *fakeJobService) Get(_ context.Context, jobID string, _ types.Actor) (*types.JobRequest, error) {
	return &types.JobRequest{ID: jobID}, nil
}

func (f *fakeJobService) Withdraw(context.Context, string, string) error {
	return f.withdrawErr
}

func (f *fakeJobService) ListOpen(context.Context, string, types.Parish, int) ([]*types.JobRequest, types.EligibilityResult, error) {
	return f.openJobs, f.openElig, nil
}

func (f *fakeJobService) ListForCustomer(context.Context, string) ([]*types.JobRequest, error) {
	return []*types.JobRequest{{ID: "job_cus"}}, nil
}

func (f *fakeJobService) ListForProvider(context.Context, string) ([]*types.JobRequest, error) {
	return []*types.JobRequest{{ID: "job_pro"}}, nil
}

func (f *fakeJobService) Propose(_ context.Context, jobID string, _ string, message string) (*types.Proposal, error) {
	f.proposeJobID = jobID
	f.proposeMessage = message
	return f.proposal, f.proposeErr
}

func (f *fakeJobService) ListProposals(_ context.Context, jobID string, _ types.Actor) ([]*types.Proposal, error) {
	return []*types.Proposal{{ID: "prp_1", JobID: jobID}}, nil
}

func (f *fakeJobService) Accept(_ context.Context, jobID string, providerID string) (*types.JobRequest, error) {
	f.acceptJobID = jobID
	f.acceptProvider = providerID
	return f.acceptJob, f.acceptErr
}

func (f *fakeJobService) ProviderComplete(_ context.Context, jobID string, _ string) (*types.JobRequest, error) {
	return &types.JobRequest{ID: jobID, Status: types.JobStatusPendingCompletion}, nil
}

func (f *fakeJobService) CustomerConfirm(context.Context, string, string) (*types.JobRequest, error) {
	return f.confirmJob, f.confirmErr
}

func (f *fakeJobService) FileDispute(context.Context, string, string, string) (*types.Dispute, error) {
	return f.dispute, f.disputeErr
}

func (f *fakeJobService) ResolveDispute(context.Context, string, types.Actor, bool) (*types.Dispute, error) {
	return f.dispute, f.disputeErr
}

type fakePendingLookup struct {
	pending []*types.JobRequest
	err     error
}

func (f *fakePendingLookup) PendingForCustomer(context.Context, string) ([]*types.JobRequest, error) {
	return f.pending, f.err
}

func newJobRouter(svc JobService, pending PendingReviewLookup) http.Handler {
	h := NewJobHandler(svc, pending, core.NewValidator(), nil)
	r := chi.NewRouter()
	r.Use(core.ActorMiddleware)
	r.Route("/v1", func(r chi.Router) {
		h.RegisterRoutes(r)
	})
	return r
}

func doRequest(h http.Handler, method, path, body string, actorID string, role types.ActorRole) *httptest.ResponseRecorder {
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	if actorID != "" {
		r.Header.Set("X-User-Id", actorID)
		r.Header.Set("X-User-Role", string(role))
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func decodeErr(t *testing.T, w *httptest.ResponseRecorder) core.APIErrorResponse {
	t.Helper()
	var resp core.APIErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestCreateJobEndpoint(t *testing.T) {
	validBody := `{"title":"Front lawn","location":"4 Barbican Road","parish":"Kingston","lawn_size":"small"}`

	t.Run("creates a job for the authenticated customer", func(t *testing.T) {
		svc := &fakeJobService{createJob: &types.JobRequest{ID: "job_1", Status: types.JobStatusOpen}}
		router := newJobRouter(svc, &fakePendingLookup{})

		w := doRequest(router, http.MethodPost, "/v1/jobs", validBody, "cus_1", types.RoleCustomer)

		assert.Equal(t, http.StatusCreated, w.Code)
		assert.Equal(t, "cus_1", svc.createIn.CustomerID)
		assert.Equal(t, types.ParishKingston, svc.createIn.Parish)
		assert.Equal(t, types.LawnSmall, svc.createIn.LawnSize)
	})

	t.Run("requires authentication", func(t *testing.T) {
		router := newJobRouter(&fakeJobService{}, &fakePendingLookup{})

		w := doRequest(router, http.MethodPost, "/v1/jobs", validBody, "", "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("rejects an unknown parish at the validator", func(t *testing.T) {
		router := newJobRouter(&fakeJobService{}, &fakePendingLookup{})

		body := `{"title":"x","location":"y","parish":"Atlantis","lawn_size":"small"}`
		w := doRequest(router, http.MethodPost, "/v1/jobs", body, "cus_1", types.RoleCustomer)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, string(types.ErrCodeValidationInvalidParish), decodeErr(t, w).Error.Code)
	})

	t.Run("rejects malformed JSON", func(t *testing.T) {
		router := newJobRouter(&fakeJobService{}, &fakePendingLookup{})

		w := doRequest(router, http.MethodPost, "/v1/jobs", `{"title":`, "cus_1", types.RoleCustomer)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, string(types.ErrCodeValidationInvalidJSON), decodeErr(t, w).Error.Code)
	})

	t.Run("blocks a customer with unreviewed completed jobs", func(t *testing.T) {
		pending := &fakePendingLookup{pending: []*types.JobRequest{{ID: "job_9"}, {ID: "job_8"}}}
		svc := &fakeJobService{}
		router := newJobRouter(svc, pending)

		w := doRequest(router, http.MethodPost, "/v1/jobs", validBody, "cus_1", types.RoleCustomer)

		assert.Equal(t, http.StatusForbidden, w.Code)
		resp := decodeErr(t, w)
		assert.Equal(t, string(types.ErrCodePendingReviewsOutstanding), resp.Error.Code)
		assert.ElementsMatch(t, []any{"job_9", "job_8"}, resp.Error.Details["pending_job_ids"])
		assert.Empty(t, svc.createIn.CustomerID, "a blocked create must not reach the service")
	})
}

func TestAcceptJobEndpoint(t *testing.T) {
	t.Run("provider accepts", func(t *testing.T) {
		svc := &fakeJobService{acceptJob: &types.JobRequest{ID: "job_1", Status: types.JobStatusAccepted}}
		router := newJobRouter(svc, &fakePendingLookup{})

		w := doRequest(router, http.MethodPost, "/v1/jobs/job_1/accept", "", "pro_1", types.RoleProvider)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "job_1", svc.acceptJobID)
		assert.Equal(t, "pro_1", svc.acceptProvider)
	})

	t.Run("customers cannot hit the accept route", func(t *testing.T) {
		router := newJobRouter(&fakeJobService{}, &fakePendingLookup{})

		w := doRequest(router, http.MethodPost, "/v1/jobs/job_1/accept", "", "cus_1", types.RoleCustomer)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("eligibility denial passes through with details", func(t *testing.T) {
		svc := &fakeJobService{acceptErr: types.NewAppErrorWithDetails(
			types.ErrCodeProviderNotEligible, "provider has not completed verification", nil,
			map[string]any{"id_verified": false, "banking_verified": true},
		)}
		router := newJobRouter(svc, &fakePendingLookup{})

		w := doRequest(router, http.MethodPost, "/v1/jobs/job_1/accept", "", "pro_1", types.RoleProvider)

		assert.Equal(t, http.StatusForbidden, w.Code)
		resp := decodeErr(t, w)
		assert.Equal(t, false, resp.Error.Details["id_verified"])
	})
}

func TestProposeEndpoint(t *testing.T) {
	t.Run("provider proposes with a message", func(t *testing.T) {
		svc := &fakeJobService{proposal: &types.Proposal{ID: "prp_1", JobID: "job_1", ProviderID: "pro_1"}}
		router := newJobRouter(svc, &fakePendingLookup{})

		w := doRequest(router, http.MethodPost, "/v1/jobs/job_1/proposals", `{"message":"Can start Thursday"}`, "pro_1", types.RoleProvider)

		assert.Equal(t, http.StatusCreated, w.Code)
		assert.Equal(t, "job_1", svc.proposeJobID)
		assert.Equal(t, "Can start Thursday", svc.proposeMessage)
	})

	t.Run("empty body is an interest ping", func(t *testing.T) {
		svc := &fakeJobService{proposal: &types.Proposal{ID: "prp_1", JobID: "job_1"}}
		router := newJobRouter(svc, &fakePendingLookup{})

		w := doRequest(router, http.MethodPost, "/v1/jobs/job_1/proposals", "", "pro_1", types.RoleProvider)

		assert.Equal(t, http.StatusCreated, w.Code)
		assert.Empty(t, svc.proposeMessage)
	})

	t.Run("customers cannot propose", func(t *testing.T) {
		router := newJobRouter(&fakeJobService{}, &fakePendingLookup{})

		w := doRequest(router, http.MethodPost, "/v1/jobs/job_1/proposals", "", "cus_1", types.RoleCustomer)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("duplicate proposal is a conflict", func(t *testing.T) {
		svc := &fakeJobService{proposeErr: types.NewAppError(types.ErrCodeConflictDuplicate, "proposal already submitted for this job", nil)}
		router := newJobRouter(svc, &fakePendingLookup{})

		w := doRequest(router, http.MethodPost, "/v1/jobs/job_1/proposals", "", "pro_1", types.RoleProvider)
		assert.Equal(t, http.StatusConflict, w.Code)
	})
}

func TestListProposalsEndpoint(t *testing.T) {
	router := newJobRouter(&fakeJobService{}, &fakePendingLookup{})

	w := doRequest(router, http.MethodGet, "/v1/jobs/job_1/proposals", "", "cus_1", types.RoleCustomer)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data []*types.Proposal `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "prp_1", resp.Data[0].ID)
}

func TestWithdrawJobEndpoint(t *testing.T) {
	t.Run("successful withdraw is 204", func(t *testing.T) {
		router := newJobRouter(&fakeJobService{}, &fakePendingLookup{})

		w := doRequest(router, http.MethodDelete, "/v1/jobs/job_1", "", "cus_1", types.RoleCustomer)
		assert.Equal(t, http.StatusNoContent, w.Code)
	})

	t.Run("conflict surfaces as 409", func(t *testing.T) {
		svc := &fakeJobService{withdrawErr: types.NewAppError(types.ErrCodeConflictStateChanged, "job is no longer provisional", nil)}
		router := newJobRouter(svc, &fakePendingLookup{})

		w := doRequest(router, http.MethodDelete, "/v1/jobs/job_1", "", "cus_1", types.RoleCustomer)
		assert.Equal(t, http.StatusConflict, w.Code)
	})
}

func TestListOpenJobsEndpoint(t *testing.T) {
	t.Run("returns jobs with the eligibility summary", func(t *testing.T) {
		svc := &fakeJobService{
			openJobs: []*types.JobRequest{{ID: "job_1"}},
			openElig: types.EligibilityResult{ProviderID: "pro_1", IDVerified: true},
		}
		router := newJobRouter(svc, &fakePendingLookup{})

		w := doRequest(router, http.MethodGet, "/v1/jobs/open?parish=Kingston", "", "pro_1", types.RoleProvider)
		require.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Data OpenJobsResponse `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Len(t, resp.Data.Jobs, 1)
		assert.True(t, resp.Data.Eligibility.IDVerified)
	})

	t.Run("bad limit is a 400", func(t *testing.T) {
		router := newJobRouter(&fakeJobService{}, &fakePendingLookup{})

		w := doRequest(router, http.MethodGet, "/v1/jobs/open?parish=Kingston&limit=9000", "", "pro_1", types.RoleProvider)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestListJobsEndpointSplitsByRole(t *testing.T) {
	router := newJobRouter(&fakeJobService{}, &fakePendingLookup{})

	w := doRequest(router, http.MethodGet, "/v1/jobs", "", "cus_1", types.RoleCustomer)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "job_cus")

	w = doRequest(router, http.MethodGet, "/v1/jobs", "", "pro_1", types.RoleProvider)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "job_pro")
}

func TestFileDisputeEndpoint(t *testing.T) {
	t.Run("customer files a dispute", func(t *testing.T) {
		svc := &fakeJobService{dispute: &types.Dispute{ID: "dsp_1", Status: types.DisputeOpen}}
		router := newJobRouter(svc, &fakePendingLookup{})

		w := doRequest(router, http.MethodPost, "/v1/jobs/job_1/dispute",
			`{"reason":"grass left uncut"}`, "cus_1", types.RoleCustomer)

		assert.Equal(t, http.StatusCreated, w.Code)
	})

	t.Run("missing reason fails validation", func(t *testing.T) {
		router := newJobRouter(&fakeJobService{}, &fakePendingLookup{})

		w := doRequest(router, http.MethodPost, "/v1/jobs/job_1/dispute", `{}`, "cus_1", types.RoleCustomer)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestResolveDisputeEndpoint(t *testing.T) {
	t.Run("admin resolves", func(t *testing.T) {
		svc := &fakeJobService{dispute: &types.Dispute{ID: "dsp_1", Status: types.DisputeApproved}}
		router := newJobRouter(svc, &fakePendingLookup{})

		w := doRequest(router, http.MethodPost, "/v1/disputes/dsp_1/resolve",
			`{"approve":true}`, "adm_1", types.RoleAdmin)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("non-admin is blocked at the route", func(t *testing.T) {
		router := newJobRouter(&fakeJobService{}, &fakePendingLookup{})

		w := doRequest(router, http.MethodPost, "/v1/disputes/dsp_1/resolve",
			`{"approve":true}`, "cus_1", types.RoleCustomer)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}
