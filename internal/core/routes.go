package core

import (
	"time"

	"github.com/go-chi/chi/v5"
)

// defaultRequestTimeout is the soft request deadline. On Lambda this
// should stay below the function timeout so handlers clean up first.
const defaultRequestTimeout = 29 * time.Second

// defaultRedactedHeaders lists header names masked in request logs.
var defaultRedactedHeaders = []string{
	"Authorization",
	"Cookie",
	"Stripe-Signature",
}

// MountRoutes registers the global middleware chain, the /v1 route
// groups, and the health endpoint.
//
// Middleware ordering:
//  1. Recoverer        - outermost so all panics are caught
//  2. ContextTimeout   - soft deadline before the Lambda hard timeout
//  3. RequestID        - correlation ID for logs and traces
//  4. SecurityHeaders  - present on every response including errors
//  5. RequestLogger    - structured logging with redacted headers
//  6. CORS             - browser preflight and origin headers
//  7. Actor            - upstream identity injection; enforcement is
//     per-route because the payment webhook carries no user identity
func (s *Server) MountRoutes() {
	s.router.Use(s.Recoverer)
	s.router.Use(ContextTimeoutMiddleware(defaultRequestTimeout))
	s.router.Use(RequestIDMiddleware)
	s.router.Use(s.SecurityHeadersMiddleware)
	s.router.Use(RequestLogger(s.Logger, defaultRedactedHeaders))
	s.router.Use(NewCORSMiddleware(s.corsAllowedOrigins()))
	s.router.Use(ActorMiddleware)

	s.router.Route("/v1", func(r chi.Router) {
		for _, registrar := range s.V1RouteRegistrars {
			registrar(r)
		}
	})

	s.router.Get("/health", s.HandleHealth)
}

func (s *Server) corsAllowedOrigins() []string {
	if s.Config != nil && len(s.Config.Security.CorsAllowedOrigins) > 0 {
		return s.Config.Security.CorsAllowedOrigins
	}
	return []string{"*"}
}
