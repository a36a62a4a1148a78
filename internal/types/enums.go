package types

// JobStatus represents the lifecycle state of a job request.
//
// The main chain is open -> accepted -> in_progress -> pending_completion
// -> completed. The disputed branch is entered only from
// pending_completion or completed and never returns to the main chain.
type JobStatus string

const (
	JobStatusOpen              JobStatus = "open"
	JobStatusAccepted          JobStatus = "accepted"
	JobStatusInProgress        JobStatus = "in_progress"
	JobStatusPendingCompletion JobStatus = "pending_completion"
	JobStatusCompleted         JobStatus = "completed"
	JobStatusDisputed          JobStatus = "disputed"
)

// PaymentStatus is the payment sub-state of a job, independent of JobStatus.
// Once paid, it is never reverted; refunds are separate refund_request records.
type PaymentStatus string

const (
	PaymentPending              PaymentStatus = "pending"
	PaymentAwaitingConfirmation PaymentStatus = "awaiting_confirmation"
	PaymentPaid                 PaymentStatus = "paid"
	PaymentFailed               PaymentStatus = "failed"
)

// PaymentMethod identifies which reconciliation path a payment attempt uses.
type PaymentMethod string

const (
	// MethodCard is the hosted-gateway redirect path. The gateway webhook
	// is the authoritative writer for this method.
	MethodCard PaymentMethod = "card"
	// MethodManualReference is the peer-to-peer mobile-money path. The
	// reference string is unverified; the receiving provider attests.
	MethodManualReference PaymentMethod = "manual_reference"
	// MethodSimulated bypasses any gateway. Non-production only.
	MethodSimulated PaymentMethod = "simulated"
	// MethodAutopay marks jobs created already paid by the scheduler.
	MethodAutopay PaymentMethod = "autopay"
)

// AutopayFrequency controls how many cut dates a schedule carries.
type AutopayFrequency string

const (
	FrequencyMonthly   AutopayFrequency = "monthly"
	FrequencyBimonthly AutopayFrequency = "bimonthly"
)

// LawnSize buckets drive the fixed price table for autopay-generated jobs.
type LawnSize string

const (
	LawnSmall  LawnSize = "small"
	LawnMedium LawnSize = "medium"
	LawnLarge  LawnSize = "large"
	LawnXLarge LawnSize = "xlarge"
)

// Parish enumerates the 14 Jamaican parishes a job may be located in.
type Parish string

const (
	ParishKingston     Parish = "Kingston"
	ParishStAndrew     Parish = "St. Andrew"
	ParishStThomas     Parish = "St. Thomas"
	ParishPortland     Parish = "Portland"
	ParishStMary       Parish = "St. Mary"
	ParishStAnn        Parish = "St. Ann"
	ParishTrelawny     Parish = "Trelawny"
	ParishStJames      Parish = "St. James"
	ParishHanover      Parish = "Hanover"
	ParishWestmoreland Parish = "Westmoreland"
	ParishStElizabeth  Parish = "St. Elizabeth"
	ParishManchester   Parish = "Manchester"
	ParishClarendon    Parish = "Clarendon"
	ParishStCatherine  Parish = "St. Catherine"
)

// AllParishes is the closed set used by request validation.
var AllParishes = []Parish{
	ParishKingston, ParishStAndrew, ParishStThomas, ParishPortland,
	ParishStMary, ParishStAnn, ParishTrelawny, ParishStJames,
	ParishHanover, ParishWestmoreland, ParishStElizabeth,
	ParishManchester, ParishClarendon, ParishStCatherine,
}

// ValidParish reports whether p is one of the 14 parishes.
func ValidParish(p Parish) bool {
	for _, known := range AllParishes {
		if p == known {
			return true
		}
	}
	return false
}

// VerificationStatus is shared by the ID-verification and banking workflows.
type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "pending"
	VerificationApproved VerificationStatus = "approved"
	VerificationRejected VerificationStatus = "rejected"
)

// DisputeStatus tracks the admin-only resolution of a filed dispute.
type DisputeStatus string

const (
	DisputeOpen     DisputeStatus = "open"
	DisputeApproved DisputeStatus = "approved"
	DisputeRejected DisputeStatus = "rejected"
)

// RefundStatus tracks a refund request raised by dispute resolution.
type RefundStatus string

const (
	RefundRequested RefundStatus = "requested"
	RefundProcessed RefundStatus = "processed"
	RefundDeclined  RefundStatus = "declined"
)

// NotificationType identifies the kind of event pushed to the
// notification queue. Matches the dispatcher contract consumed by the
// notify worker.
type NotificationType string

const (
	NotifProposalReceived NotificationType = "proposal_received"
	NotifProposalAccepted NotificationType = "proposal_accepted"
	NotifPaymentSubmitted NotificationType = "payment_submitted"
	NotifPaymentConfirmed NotificationType = "payment_confirmed"
	NotifJobCompleted     NotificationType = "job_completed"
	NotifReviewReceived   NotificationType = "review_received"
	NotifJobScheduled     NotificationType = "job_scheduled"
	NotifPayoutSent       NotificationType = "payout_sent"
)

// ActorRole describes who is performing a mutating call.
type ActorRole string

const (
	RoleCustomer ActorRole = "customer"
	RoleProvider ActorRole = "provider"
	RoleAdmin    ActorRole = "admin"
)
