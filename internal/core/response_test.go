package core

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yardlink/internal/types"
)

func TestJSONWritesEnvelope(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/v1/jobs", nil)

	JSON(w, r, http.StatusCreated, APIResponse{Data: map[string]string{"id": "job_1"}})

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var got APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, map[string]interface{}{"id": "job_1"}, got.Data)
}

func TestErrorMapsAppErrors(t *testing.T) {
	t.Run("app error uses its status and code", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/v1/jobs/job_1", nil)
		r = r.WithContext(types.WithRequestID(r.Context(), "req-123"))

		Error(w, r, types.NewAppError(types.ErrCodeNotFoundJob, "job not found", nil))

		assert.Equal(t, http.StatusNotFound, w.Code)

		var got APIErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		assert.Equal(t, "not_found_job", got.Error.Code)
		assert.Equal(t, "job not found", got.Error.Message)
		assert.Equal(t, "req-123", got.Error.RequestID)
	})

	t.Run("details are carried through", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/v1/jobs/job_1/accept", nil)

		Error(w, r, types.NewAppErrorWithDetails(
			types.ErrCodeProviderNotEligible, "provider has not completed verification", nil,
			map[string]any{"id_verified": false},
		))

		assert.Equal(t, http.StatusForbidden, w.Code)
		var got APIErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		assert.Equal(t, false, got.Error.Details["id_verified"])
	})

	t.Run("unknown errors are sanitized into a 500", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/v1/jobs", nil)

		Error(w, r, errors.New("pq: connection refused at 10.0.3.7:5432"))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.NotContains(t, w.Body.String(), "10.0.3.7", "driver detail must not leak")

		var envelope APIErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
		assert.Equal(t, string(types.ErrCodeInternalUnexpected), envelope.Error.Code)
		assert.Equal(t, "an unexpected error occurred", envelope.Error.Message)
	})

	t.Run("wrapped app error is unwrapped", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/v1/jobs", nil)

		inner := types.NewAppError(types.ErrCodeConflictAlreadyPaid, "payment already settled", nil)
		Error(w, r, errors.Join(errors.New("outer"), inner))

		assert.Equal(t, http.StatusConflict, w.Code)
	})
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Title string `json:"title"`
	}

	decode := func(body string) error {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/v1/jobs", strings.NewReader(body))
		var dst payload
		return DecodeJSON(w, r, &dst)
	}

	t.Run("valid body", func(t *testing.T) {
		assert.NoError(t, decode(`{"title":"Front lawn"}`))
	})

	t.Run("empty body", func(t *testing.T) {
		assertDecodeErr(t, decode(""))
	})

	t.Run("malformed JSON", func(t *testing.T) {
		assertDecodeErr(t, decode(`{"title":`))
	})

	t.Run("unknown field", func(t *testing.T) {
		assertDecodeErr(t, decode(`{"title":"x","bogus":true}`))
	})

	t.Run("wrong type carries field details", func(t *testing.T) {
		err := decode(`{"title":42}`)
		var appErr *types.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, types.ErrCodeValidationInvalidJSON, appErr.Code)
		assert.Equal(t, "title", appErr.Details["field"])
	})

	t.Run("trailing JSON value", func(t *testing.T) {
		assertDecodeErr(t, decode(`{"title":"x"}{"title":"y"}`))
	})
}

func assertDecodeErr(t *testing.T, err error) {
	t.Helper()
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeValidationInvalidJSON, appErr.Code)
}
