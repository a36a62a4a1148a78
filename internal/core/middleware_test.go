package core

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yardlink/internal/types"
)

func TestRequestIDMiddleware(t *testing.T) {
	t.Run("incoming header is propagated", func(t *testing.T) {
		var seen string
		h := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = types.GetRequestID(r.Context())
		}))

		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("X-Request-Id", "req-abc")
		h.ServeHTTP(w, r)

		assert.Equal(t, "req-abc", seen)
		assert.Equal(t, "req-abc", w.Header().Get("X-Request-Id"))
	})

	t.Run("missing header generates one", func(t *testing.T) {
		var seen string
		h := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = types.GetRequestID(r.Context())
		}))

		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.NotEmpty(t, seen)
		assert.Equal(t, seen, w.Header().Get("X-Request-Id"))
	})
}

func TestActorMiddleware(t *testing.T) {
	extract := func(r *http.Request) (types.Actor, bool) {
		var actor types.Actor
		var ok bool
		h := ActorMiddleware(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			actor, ok = types.GetActor(req.Context())
		}))
		h.ServeHTTP(httptest.NewRecorder(), r)
		return actor, ok
	}

	t.Run("identity headers inject the actor", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("X-User-Id", "pro_1")
		r.Header.Set("X-User-Role", "provider")

		actor, ok := extract(r)
		require.True(t, ok)
		assert.Equal(t, types.Actor{ID: "pro_1", Role: types.RoleProvider}, actor)
	})

	t.Run("unknown role defaults to customer", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("X-User-Id", "u_1")
		r.Header.Set("X-User-Role", "superuser")

		actor, ok := extract(r)
		require.True(t, ok)
		assert.Equal(t, types.RoleCustomer, actor.Role)
	})

	t.Run("no identity passes through unauthenticated", func(t *testing.T) {
		_, ok := extract(httptest.NewRequest(http.MethodGet, "/", nil))
		assert.False(t, ok)
	})
}

func TestRequireActor(t *testing.T) {
	h := RequireActor(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	t.Run("rejects anonymous requests", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		var resp APIErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, string(types.ErrCodeAuthMissing), resp.Error.Code)
	})

	t.Run("passes authenticated requests", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r = r.WithContext(types.WithActor(r.Context(), types.Actor{ID: "cus_1", Role: types.RoleCustomer}))
		h.ServeHTTP(w, r)

		assert.Equal(t, http.StatusNoContent, w.Code)
	})
}

func TestRequireRole(t *testing.T) {
	h := RequireRole(types.RoleProvider)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	serve := func(actor *types.Actor) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		if actor != nil {
			r = r.WithContext(types.WithActor(r.Context(), *actor))
		}
		h.ServeHTTP(w, r)
		return w
	}

	t.Run("matching role passes", func(t *testing.T) {
		w := serve(&types.Actor{ID: "pro_1", Role: types.RoleProvider})
		assert.Equal(t, http.StatusNoContent, w.Code)
	})

	t.Run("admin passes every role check", func(t *testing.T) {
		w := serve(&types.Actor{ID: "adm_1", Role: types.RoleAdmin})
		assert.Equal(t, http.StatusNoContent, w.Code)
	})

	t.Run("wrong role is forbidden", func(t *testing.T) {
		w := serve(&types.Actor{ID: "cus_1", Role: types.RoleCustomer})
		assert.Equal(t, http.StatusUnauthorized, w.Code)

		var resp APIErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, string(types.ErrCodeAuthNotPermitted), resp.Error.Code)
	})

	t.Run("anonymous is rejected", func(t *testing.T) {
		w := serve(nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestRecoverer(t *testing.T) {
	srv := &Server{Logger: slog.New(slog.NewTextHandler(testWriter{t}, nil))}
	h := srv.Recoverer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	var resp APIErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, string(types.ErrCodeInternalUnexpected), resp.Error.Code)
	assert.NotContains(t, w.Body.String(), "boom", "panic values must not leak to clients")
}

func TestSecurityHeadersMiddleware(t *testing.T) {
	srv := &Server{}
	h := srv.SecurityHeadersMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
}

func TestCORSMiddleware(t *testing.T) {
	t.Run("allowed origin is echoed", func(t *testing.T) {
		h := NewCORSMiddleware([]string{"https://app.yardlink.io"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Origin", "https://app.yardlink.io")
		h.ServeHTTP(w, r)

		assert.Equal(t, "https://app.yardlink.io", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "Origin", w.Header().Get("Vary"))
	})

	t.Run("unknown origin gets no CORS headers", func(t *testing.T) {
		h := NewCORSMiddleware([]string{"https://app.yardlink.io"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Origin", "https://evil.example.com")
		h.ServeHTTP(w, r)

		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("wildcard allows any origin", func(t *testing.T) {
		h := NewCORSMiddleware([]string{"*"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Origin", "https://anywhere.example.com")
		h.ServeHTTP(w, r)

		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("preflight is answered directly", func(t *testing.T) {
		called := false
		h := NewCORSMiddleware([]string{"*"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
		}))

		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodOptions, "/", nil)
		r.Header.Set("Origin", "https://app.yardlink.io")
		h.ServeHTTP(w, r)

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.False(t, called)
	})
}

// testWriter routes middleware log output through the test log.
type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}
