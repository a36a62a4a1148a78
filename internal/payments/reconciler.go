package payments

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"yardlink/internal/db"
	"yardlink/internal/types"
)

const (
	// Redirect-return poll bounds. The webhook remains the
	// authoritative writer; the poll only reads.
	pollAttempts = 5
	pollDelay    = 2 * time.Second
)

// PaymentStore is the job persistence surface the reconciler needs.
// Implemented by db.JobRepository.
type PaymentStore interface {
	GetByID(ctx context.Context, id string) (*types.JobRequest, error)
	GetPaymentStatus(ctx context.Context, jobID string) (types.PaymentStatus, error)
	SetAwaitingConfirmation(ctx context.Context, jobID string, reference string) error
	MarkPaid(ctx context.Context, jobID string, reference string, confirmedBy string, now time.Time) error
	MarkPaymentFailed(ctx context.Context, jobID string) error
}

// CheckoutEvent is the normalized result of a verified gateway
// webhook: which job it concerns and what happened.
type CheckoutEvent struct {
	JobID     string
	Reference string
	Succeeded bool
}

// Gateway is the hosted card-payment provider. Implemented by
// external.StripeGateway.
type Gateway interface {
	// CreateCheckoutSession returns the hosted payment page URL for a
	// job's final price.
	CreateCheckoutSession(ctx context.Context, job *types.JobRequest, customerEmail string) (string, error)

	// VerifyWebhook authenticates a raw webhook delivery and extracts
	// the checkout outcome. Deliveries that are valid but irrelevant
	// (other event types) return ok=false with no error.
	VerifyWebhook(payload []byte, signatureHeader string) (CheckoutEvent, bool, error)
}

// Notifier enqueues a notification for asynchronous delivery.
type Notifier interface {
	Publish(ctx context.Context, msg types.NotificationMessage) error
}

// InvoiceSender enqueues an invoice snapshot for asynchronous
// delivery.
type InvoiceSender interface {
	PublishInvoice(ctx context.Context, msg types.InvoiceMessage) error
}

// ContactLookup resolves a user id to name and email for the invoice
// snapshot. Implemented by db.UserRepository.
type ContactLookup interface {
	GetContact(ctx context.Context, userID string) (*db.Contact, error)
}

// Reconciler moves payment_status through its sub-states. Every write
// goes through a conditional update in the store, so racing paths
// (webhook vs. provider confirmation vs. simulated) settle on exactly
// one winner and the invoice is dispatched exactly once.
type Reconciler struct {
	store    PaymentStore
	gateway  Gateway
	notifier Notifier
	invoices InvoiceSender
	contacts ContactLookup

	// allowSimulated gates the test payment path to non-production
	// configurations.
	allowSimulated bool

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewReconciler creates the payment reconciler. now and sleep default
// to the real clock when nil.
func NewReconciler(store PaymentStore, gateway Gateway, notifier Notifier, invoices InvoiceSender, contacts ContactLookup, allowSimulated bool, now func() time.Time) *Reconciler {
	if now == nil {
		now = time.Now
	}
	return &Reconciler{
		store:          store,
		gateway:        gateway,
		notifier:       notifier,
		invoices:       invoices,
		contacts:       contacts,
		allowSimulated: allowSimulated,
		now:            now,
		sleep:          sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// StartCheckout creates a hosted checkout session for an accepted,
// unpaid job and returns the redirect URL. Gateway failures surface as
// upstream errors; the job row is untouched either way.
func (r *Reconciler) StartCheckout(ctx context.Context, jobID string, customerID string) (string, error) {
	job, err := r.store.GetByID(ctx, jobID)
	if err != nil {
		return "", err
	}
	if job.CustomerID != customerID {
		return "", types.NewAppError(types.ErrCodePermissionNotOwner, "not a party to this job", nil)
	}
	if job.Status != types.JobStatusAccepted || job.PaymentStatus != types.PaymentPending {
		return "", types.NewAppError(types.ErrCodeConflictStateChanged, "job is not awaiting payment", nil)
	}

	contact, err := r.contacts.GetContact(ctx, customerID)
	if err != nil {
		return "", err
	}

	url, err := r.gateway.CreateCheckoutSession(ctx, job, contact.Email)
	if err != nil {
		return "", types.NewAppError(types.ErrCodeUpstreamGateway, "payment gateway unavailable", err)
	}
	return url, nil
}

// HandleWebhook processes a raw gateway webhook delivery. The webhook
// is the authoritative writer for the card path: a verified successful
// checkout marks the job paid and in progress via conditional update.
// Redeliveries of an already-applied event are acknowledged without
// effect.
func (r *Reconciler) HandleWebhook(ctx context.Context, payload []byte, signatureHeader string) error {
	event, ok, err := r.gateway.VerifyWebhook(payload, signatureHeader)
	if err != nil {
		return types.NewAppError(types.ErrCodeAuthMissing, "webhook signature verification failed", err)
	}
	if !ok {
		return nil
	}

	if !event.Succeeded {
		if err := r.store.MarkPaymentFailed(ctx, event.JobID); err != nil {
			var appErr *types.AppError
			if errors.As(err, &appErr) && appErr.Code == types.ErrCodeConflictStateChanged {
				// A late failure event (an expired session, say) for a
				// payment that already settled through another path.
				// Acknowledge it so the gateway stops redelivering.
				return nil
			}
			return err
		}
		return nil
	}

	if err := r.store.MarkPaid(ctx, event.JobID, event.Reference, "gateway", r.now().UTC()); err != nil {
		var appErr *types.AppError
		if errors.As(err, &appErr) && appErr.Code == types.ErrCodeConflictAlreadyPaid {
			// Redelivered webhook for a settled payment.
			return nil
		}
		return err
	}

	r.afterConfirmation(ctx, event.JobID, event.Reference)
	return nil
}

// PollAfterRedirect reads payment_status with bounded retries after
// the customer returns from the hosted page. It never mutates: if the
// webhook has not landed within the window, the caller gets a
// verification-pending signal and the status stays pending.
func (r *Reconciler) PollAfterRedirect(ctx context.Context, jobID string, customerID string) (*types.JobRequest, error) {
	job, err := r.store.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.CustomerID != customerID {
		return nil, types.NewAppError(types.ErrCodePermissionNotOwner, "not a party to this job", nil)
	}

	for attempt := 0; attempt < pollAttempts; attempt++ {
		if attempt > 0 {
			if err := r.sleep(ctx, pollDelay); err != nil {
				return nil, types.NewAppError(types.ErrCodePaymentUnresolved, "payment verification interrupted", err)
			}
		}
		status, err := r.store.GetPaymentStatus(ctx, jobID)
		if err != nil {
			return nil, err
		}
		switch status {
		case types.PaymentPaid:
			return r.store.GetByID(ctx, jobID)
		case types.PaymentFailed:
			return nil, types.NewAppError(types.ErrCodePaymentNotPaid, "payment failed", nil)
		}
	}

	return nil, types.NewAppError(types.ErrCodePaymentUnresolved, "payment verification still pending", nil)
}

// SubmitManualReference records a customer's free-text transaction
// reference, moving the payment to awaiting_confirmation. The
// reference is not verified against anything; the receiving provider
// attests by confirming.
func (r *Reconciler) SubmitManualReference(ctx context.Context, jobID string, customerID string, reference string) (*types.JobRequest, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, types.NewAppError(types.ErrCodeValidationMissingField, "transaction reference is required", nil)
	}
	job, err := r.store.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.CustomerID != customerID {
		return nil, types.NewAppError(types.ErrCodePermissionNotOwner, "not a party to this job", nil)
	}

	if err := r.store.SetAwaitingConfirmation(ctx, jobID, reference); err != nil {
		return nil, err
	}

	if job.AcceptedProviderID != nil {
		r.dispatch(ctx, types.NotificationMessage{
			Type:        types.NotifPaymentSubmitted,
			RecipientID: *job.AcceptedProviderID,
			JobID:       job.ID,
			JobTitle:    job.Title,
			AdditionalData: map[string]any{
				"payment_reference": reference,
			},
		})
	}

	return r.store.GetByID(ctx, jobID)
}

// ConfirmManual is the provider's attestation that a manually
// referenced payment arrived, moving it to paid and the job to in
// progress.
func (r *Reconciler) ConfirmManual(ctx context.Context, jobID string, providerID string) (*types.JobRequest, error) {
	job, err := r.store.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.AcceptedProviderID == nil || *job.AcceptedProviderID != providerID {
		return nil, types.NewAppError(types.ErrCodePermissionNotOwner, "not the accepted provider for this job", nil)
	}
	if job.PaymentStatus != types.PaymentAwaitingConfirmation {
		return nil, types.NewAppError(types.ErrCodePaymentWrongMethod, "no manual payment awaiting confirmation", nil)
	}

	if err := r.store.MarkPaid(ctx, jobID, "", providerID, r.now().UTC()); err != nil {
		return nil, err
	}

	r.afterConfirmation(ctx, jobID, job.PaymentReference)
	return r.store.GetByID(ctx, jobID)
}

// Simulate settles a payment immediately without any gateway. Rejected
// in production configuration.
func (r *Reconciler) Simulate(ctx context.Context, jobID string, customerID string) (*types.JobRequest, error) {
	if !r.allowSimulated {
		return nil, types.NewAppError(types.ErrCodePaymentWrongMethod, "simulated payments are not available", nil)
	}
	job, err := r.store.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.CustomerID != customerID {
		return nil, types.NewAppError(types.ErrCodePermissionNotOwner, "not a party to this job", nil)
	}

	ref := "sim_" + uuid.NewString()
	if err := r.store.MarkPaid(ctx, jobID, ref, customerID, r.now().UTC()); err != nil {
		return nil, err
	}

	r.afterConfirmation(ctx, jobID, ref)
	return r.store.GetByID(ctx, jobID)
}

// afterConfirmation runs the fire-and-forget side effects of a
// successful confirmation: the invoice snapshot and the customer
// notification. It executes at most once per payment because every
// path reaches it only after winning the conditional MarkPaid.
func (r *Reconciler) afterConfirmation(ctx context.Context, jobID string, reference string) {
	job, err := r.store.GetByID(ctx, jobID)
	if err != nil {
		slog.ErrorContext(ctx, "post-confirmation reload failed", "job_id", jobID, "error", err)
		return
	}

	contact, err := r.contacts.GetContact(ctx, job.CustomerID)
	if err != nil {
		slog.ErrorContext(ctx, "invoice contact lookup failed", "job_id", jobID, "error", err)
	} else {
		inv := types.InvoiceMessage{
			MessageID:        "inv_" + uuid.NewString(),
			JobID:            job.ID,
			CustomerID:       job.CustomerID,
			CustomerEmail:    contact.Email,
			CustomerName:     contact.Name,
			Location:         job.Location,
			Parish:           job.Parish,
			LawnSize:         job.LawnSize,
			Amount:           settledAmount(job),
			PlatformFee:      job.PlatformFee,
			PaymentReference: reference,
			ConfirmedAt:      r.now().UTC(),
		}
		if err := r.invoices.PublishInvoice(ctx, inv); err != nil {
			slog.ErrorContext(ctx, "invoice dispatch failed", "job_id", jobID, "error", err)
		}
	}

	r.dispatch(ctx, types.NotificationMessage{
		Type:        types.NotifPaymentConfirmed,
		RecipientID: job.CustomerID,
		JobID:       job.ID,
		JobTitle:    job.Title,
		AdditionalData: map[string]any{
			"amount": settledAmount(job),
		},
	})
}

func (r *Reconciler) dispatch(ctx context.Context, msg types.NotificationMessage) {
	msg.MessageID = "ntf_" + uuid.NewString()
	msg.CreatedAt = r.now().UTC()
	if err := r.notifier.Publish(ctx, msg); err != nil {
		slog.ErrorContext(ctx, "notification dispatch failed",
			"type", string(msg.Type),
			"job_id", msg.JobID,
			"error", err)
	}
}

func settledAmount(job *types.JobRequest) float64 {
	if job.FinalPrice != nil && *job.FinalPrice > 0 {
		return *job.FinalPrice
	}
	return job.BasePrice
}
