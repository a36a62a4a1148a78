package external

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"yardlink/internal/payments"
	"yardlink/internal/types"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

// stripeAPIBase is the default Stripe API base URL.
// Overridable in tests via StripeGatewayConfig.BaseURL.
const stripeAPIBase = "https://api.stripe.com"

// StripeGatewayConfig holds the configuration for creating a StripeGateway.
type StripeGatewayConfig struct {
	SecretKey     string
	WebhookSecret string
	SuccessURL    string
	CancelURL     string
	BaseURL       string // Override for testing; defaults to stripeAPIBase
	Logger        *slog.Logger
}

// StripeGateway implements payments.Gateway by calling the Stripe REST
// API directly through BaseClient. Checkout sessions carry the job id
// in both metadata and client_reference_id so webhook deliveries can be
// correlated back to the job row without any session-id bookkeeping on
// our side.
type StripeGateway struct {
	base          *BaseClient
	secretKey     string
	webhookSecret string
	successURL    string
	cancelURL     string
	baseURL       string
	logger        *slog.Logger
}

// NewStripeGateway creates a new StripeGateway. The httpClient timeout
// should be around 20 seconds; checkout session creation is the slowest
// Stripe call we make.
func NewStripeGateway(httpClient *http.Client, cfg StripeGatewayConfig) *StripeGateway {
	base := NewBaseClient(
		httpClient,
		"stripe",
		RetryPolicy{
			MaxRetries: 2,
			MinWait:    500 * time.Millisecond,
			MaxWait:    5 * time.Second,
		},
		"YardLink/1.0",
	)

	return NewStripeGatewayWithBase(base, cfg)
}

// NewStripeGatewayWithBase creates a StripeGateway with a pre-configured
// BaseClient. Useful in tests to control retry and breaker behavior.
func NewStripeGatewayWithBase(base *BaseClient, cfg StripeGatewayConfig) *StripeGateway {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = stripeAPIBase
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &StripeGateway{
		base:          base,
		secretKey:     cfg.SecretKey,
		webhookSecret: cfg.WebhookSecret,
		successURL:    cfg.SuccessURL,
		cancelURL:     cfg.CancelURL,
		baseURL:       strings.TrimSuffix(baseURL, "/"),
		logger:        logger,
	}
}

// CreateCheckoutSession creates a one-time payment Checkout Session for
// the job's settled price and returns the hosted page URL. Amounts are
// JMD whole dollars in the job row and JMD cents on the wire.
func (s *StripeGateway) CreateCheckoutSession(ctx context.Context, job *types.JobRequest, customerEmail string) (string, error) {
	amount := job.BasePrice
	if job.FinalPrice != nil && *job.FinalPrice > 0 {
		amount = *job.FinalPrice
	}

	params := url.Values{}
	params.Set("mode", "payment")
	params.Set("client_reference_id", job.ID)
	params.Set("customer_email", customerEmail)
	params.Set("success_url", s.successURL)
	params.Set("cancel_url", s.cancelURL)
	params.Set("metadata[job_id]", job.ID)
	params.Set("payment_intent_data[metadata][job_id]", job.ID)
	params.Set("line_items[0][quantity]", "1")
	params.Set("line_items[0][price_data][currency]", "jmd")
	params.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(int64(math.Round(amount*100)), 10))
	params.Set("line_items[0][price_data][product_data][name]", job.Title)

	resp, err := s.doPost(ctx, "/v1/checkout/sessions", params)
	if err != nil {
		return "", s.wrapStripeError("CreateCheckoutSession", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", s.handleErrorResponse(resp, "CreateCheckoutSession")
	}

	var session stripeCheckoutSession
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return "", types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to decode Stripe checkout session response",
			err,
		)
	}

	return session.URL, nil
}

// VerifyWebhook authenticates a webhook delivery with stripe-go's
// signature verification (HMAC-SHA256 with timestamp tolerance) and
// extracts the checkout outcome. Event types we do not act on return
// ok=false with no error so the endpoint still acknowledges them.
func (s *StripeGateway) VerifyWebhook(payload []byte, signatureHeader string) (payments.CheckoutEvent, bool, error) {
	event, err := webhook.ConstructEvent(payload, signatureHeader, s.webhookSecret)
	if err != nil {
		return payments.CheckoutEvent{}, false, err
	}

	switch event.Type {
	case "checkout.session.completed",
		"checkout.session.async_payment_succeeded",
		"checkout.session.async_payment_failed",
		"checkout.session.expired":
	default:
		return payments.CheckoutEvent{}, false, nil
	}

	var session stripeWebhookSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return payments.CheckoutEvent{}, false, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to decode Stripe webhook session object",
			err,
		)
	}

	jobID := session.Metadata["job_id"]
	if jobID == "" {
		jobID = session.ClientReferenceID
	}
	if jobID == "" {
		// A session we did not create. Acknowledge and move on.
		s.logger.Warn("stripe webhook session has no job reference",
			"event_type", string(event.Type),
			"session_id", session.ID,
		)
		return payments.CheckoutEvent{}, false, nil
	}

	reference := session.PaymentIntent
	if reference == "" {
		reference = session.ID
	}

	succeeded := false
	switch event.Type {
	case "checkout.session.completed":
		// Async payment methods complete the session before the money
		// moves; those settle via async_payment_succeeded instead.
		if session.PaymentStatus != "paid" {
			return payments.CheckoutEvent{}, false, nil
		}
		succeeded = true
	case "checkout.session.async_payment_succeeded":
		succeeded = true
	}

	return payments.CheckoutEvent{
		JobID:     jobID,
		Reference: reference,
		Succeeded: succeeded,
	}, true, nil
}

// doPost performs an authenticated POST to the Stripe API with a
// form-encoded body.
func (s *StripeGateway) doPost(ctx context.Context, path string, params url.Values) (*http.Response, error) {
	reqURL := s.baseURL + path
	body := params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, strings.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+s.secretKey)
	req.Header.Set("Stripe-Version", stripe.APIVersion)

	return s.base.Do(req)
}

// stripeErrorResponse represents the JSON error body returned by the
// Stripe API.
type stripeErrorResponse struct {
	Error stripeErrorBody `json:"error"`
}

type stripeErrorBody struct {
	Type        string `json:"type"`
	Code        string `json:"code"`
	DeclineCode string `json:"decline_code"`
	Message     string `json:"message"`
	Param       string `json:"param"`
}

// handleErrorResponse reads a Stripe error response and maps it to a
// types.AppError.
func (s *StripeGateway) handleErrorResponse(resp *http.Response, operation string) error {
	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return types.NewAppError(
			types.ErrCodeUpstreamGateway,
			fmt.Sprintf("%s: Stripe returned status %d and response body was unreadable", operation, resp.StatusCode),
			readErr,
		)
	}

	var stripeErr stripeErrorResponse
	if jsonErr := json.Unmarshal(body, &stripeErr); jsonErr != nil {
		return types.NewAppError(
			types.ErrCodeUpstreamGateway,
			fmt.Sprintf("%s: Stripe returned status %d with non-JSON body", operation, resp.StatusCode),
			jsonErr,
		)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return types.NewAppError(
			types.ErrCodeUpstreamRateLimited,
			fmt.Sprintf("%s: Stripe rate limit exceeded", operation),
			nil,
		)
	case resp.StatusCode >= 500:
		return types.NewAppError(
			types.ErrCodeUpstreamGateway,
			fmt.Sprintf("%s: Stripe server error: %s", operation, stripeErr.Error.Message),
			nil,
		)
	default:
		return types.NewAppError(
			types.ErrCodeUpstreamGateway,
			fmt.Sprintf("%s: Stripe error (%d): %s", operation, resp.StatusCode, stripeErr.Error.Message),
			nil,
		)
	}
}

// wrapStripeError wraps a BaseClient transport error with context.
func (s *StripeGateway) wrapStripeError(operation string, err error) error {
	// BaseClient errors already carry the right upstream code.
	if _, ok := err.(*types.AppError); ok {
		return err
	}
	return types.NewAppError(
		types.ErrCodeUpstreamGateway,
		fmt.Sprintf("%s: Stripe request failed: %v", operation, err),
		err,
	)
}

// Stripe response shapes we deserialize.

type stripeCheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type stripeWebhookSession struct {
	ID                string            `json:"id"`
	ClientReferenceID string            `json:"client_reference_id"`
	PaymentIntent     string            `json:"payment_intent"`
	PaymentStatus     string            `json:"payment_status"`
	Metadata          map[string]string `json:"metadata"`
}

var _ payments.Gateway = (*StripeGateway)(nil)
