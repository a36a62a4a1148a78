package types

import (
	"time"
)

// JobRequest is the central entity of the marketplace: a customer's
// request for lawn care, carrying both the lifecycle status and the
// independent payment sub-state.
//
// Invariants maintained by the repositories and services:
//   - AcceptedProviderID is nil while Status == open, non-nil after.
//   - FinalPrice == PlatformFee + ProviderPayout once both are set.
//   - CompletedAt is stamped exactly once, on the transition into completed.
type JobRequest struct {
	ID         string `json:"id" db:"id"`
	CustomerID string `json:"customer_id" db:"customer_id"`

	// AcceptedProviderID is set by proposal acceptance and never cleared.
	AcceptedProviderID *string `json:"accepted_provider_id,omitempty" db:"accepted_provider_id"`

	// Commercial fields. JMD amounts, whole-dollar rounding.
	BasePrice      float64  `json:"base_price" db:"base_price"`
	CustomerOffer  *float64 `json:"customer_offer,omitempty" db:"customer_offer"`
	FinalPrice     *float64 `json:"final_price,omitempty" db:"final_price"`
	PlatformFee    float64  `json:"platform_fee" db:"platform_fee"`
	ProviderPayout float64  `json:"provider_payout" db:"provider_payout"`

	// Descriptive fields.
	Title                  string   `json:"title" db:"title"`
	Description            string   `json:"description" db:"description"`
	Location               string   `json:"location" db:"location"`
	Parish                 Parish   `json:"parish" db:"parish"`
	LawnSize               LawnSize `json:"lawn_size" db:"lawn_size"`
	AdditionalRequirements string   `json:"additional_requirements,omitempty" db:"additional_requirements"`
	PreferredDate          string   `json:"preferred_date,omitempty" db:"preferred_date"` // YYYY-MM-DD
	PreferredTime          string   `json:"preferred_time,omitempty" db:"preferred_time"`

	// Status fields.
	Status             JobStatus     `json:"status" db:"status"`
	PaymentStatus      PaymentStatus `json:"payment_status" db:"payment_status"`
	PaymentReference   string        `json:"payment_reference,omitempty" db:"payment_reference"`
	PaymentConfirmedAt *time.Time    `json:"payment_confirmed_at,omitempty" db:"payment_confirmed_at"`
	PaymentConfirmedBy *string       `json:"payment_confirmed_by,omitempty" db:"payment_confirmed_by"`

	CreatedAt           time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at" db:"updated_at"`
	ProviderCompletedAt *time.Time `json:"provider_completed_at,omitempty" db:"provider_completed_at"`
	CompletedAt         *time.Time `json:"completed_at,omitempty" db:"completed_at"`
}

// AutopaySettings is one recurring schedule for a customer. A customer
// may hold several, distinguished by LocationName.
type AutopaySettings struct {
	ID           string `json:"id" db:"id"`
	CustomerID   string `json:"customer_id" db:"customer_id"`
	LocationName string `json:"location_name" db:"location_name"`

	Enabled   bool             `json:"enabled" db:"enabled"`
	Frequency AutopayFrequency `json:"frequency" db:"frequency"`

	// RecurringDay anchors date advancement: each fired cut moves to
	// this day in the following month, clamped to month-end when the
	// month is short. New schedules are constrained to 1..28 at the
	// API; imported rows may carry 29..31 and still keep their day.
	RecurringDay  int  `json:"recurring_day" db:"recurring_day"`
	RecurringDay2 *int `json:"recurring_day_2,omitempty" db:"recurring_day_2"`

	// Cut dates are calendar dates (YYYY-MM-DD), advanced independently.
	NextScheduledDate  string  `json:"next_scheduled_date" db:"next_scheduled_date"`
	NextScheduledDate2 *string `json:"next_scheduled_date_2,omitempty" db:"next_scheduled_date_2"`

	// Job template snapshot copied onto every generated JobRequest.
	Location               string   `json:"location" db:"location"`
	Parish                 Parish   `json:"parish" db:"parish"`
	LawnSize               LawnSize `json:"lawn_size" db:"lawn_size"`
	JobType                string   `json:"job_type" db:"job_type"`
	AdditionalRequirements string   `json:"additional_requirements,omitempty" db:"additional_requirements"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// ProviderPayout is an append-only ledger row produced by the payout
// batcher. JobIDs across all rows for a provider are pairwise disjoint;
// that disjointness is the batcher's core correctness property.
type ProviderPayout struct {
	ID         string    `json:"id" db:"id"`
	ProviderID string    `json:"provider_id" db:"provider_id"`
	Amount     float64   `json:"amount" db:"amount"`
	JobsCount  int       `json:"jobs_count" db:"jobs_count"`
	JobIDs     []string  `json:"job_ids" db:"job_ids"`
	PayoutDate time.Time `json:"payout_date" db:"payout_date"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// ProviderVerification is the ID-verification workflow record.
type ProviderVerification struct {
	ProviderID string             `json:"provider_id" db:"provider_id"`
	Status     VerificationStatus `json:"status" db:"status"`
	ReviewedBy *string            `json:"reviewed_by,omitempty" db:"reviewed_by"`
	UpdatedAt  time.Time          `json:"updated_at" db:"updated_at"`
}

// ProviderBankingDetails is the banking-verification workflow record.
// Account fields are stored but never returned through the API.
type ProviderBankingDetails struct {
	ProviderID    string             `json:"provider_id" db:"provider_id"`
	BankName      string             `json:"-" db:"bank_name"`
	AccountNumber SecretString       `json:"-" db:"account_number"`
	Status        VerificationStatus `json:"status" db:"status"`
	UpdatedAt     time.Time          `json:"updated_at" db:"updated_at"`
}

// ProviderProfile carries the fields behind the soft completeness gate.
type ProviderProfile struct {
	ProviderID string `json:"provider_id" db:"provider_id"`
	AvatarURL  string `json:"avatar_url,omitempty" db:"avatar_url"`
	Bio        string `json:"bio,omitempty" db:"bio"`
}

// Proposal is a provider's expression of interest in an open job. At
// most one per (JobID, ProviderID). Acceptance happens through the job
// transition, not by mutating the proposal row.
type Proposal struct {
	ID         string    `json:"id" db:"id"`
	JobID      string    `json:"job_id" db:"job_id"`
	ProviderID string    `json:"provider_id" db:"provider_id"`
	Message    string    `json:"message,omitempty" db:"message"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// Review is a rating left on a completed job. At most one review per
// (JobID, ReviewerID); a job carries up to two (customer->provider and
// provider->customer).
type Review struct {
	ID         string    `json:"id" db:"id"`
	JobID      string    `json:"job_id" db:"job_id"`
	ReviewerID string    `json:"reviewer_id" db:"reviewer_id"`
	RevieweeID string    `json:"reviewee_id" db:"reviewee_id"`
	Rating     int       `json:"rating" db:"rating"`
	Comment    string    `json:"comment,omitempty" db:"comment"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// Dispute is filed by a customer from pending_completion or completed.
// Resolution is admin-only and terminal.
type Dispute struct {
	ID         string        `json:"id" db:"id"`
	JobID      string        `json:"job_id" db:"job_id"`
	ProviderID string        `json:"provider_id" db:"provider_id"`
	CustomerID string        `json:"customer_id" db:"customer_id"`
	Reason     string        `json:"reason" db:"reason"`
	Status     DisputeStatus `json:"status" db:"status"`
	ResolvedBy *string       `json:"resolved_by,omitempty" db:"resolved_by"`
	ResolvedAt *time.Time    `json:"resolved_at,omitempty" db:"resolved_at"`
	CreatedAt  time.Time     `json:"created_at" db:"created_at"`
}

// RefundRequest records a refund side effect of dispute resolution.
// A paid job is never flipped back to pending; the refund lives here.
type RefundRequest struct {
	ID         string       `json:"id" db:"id"`
	JobID      string       `json:"job_id" db:"job_id"`
	CustomerID string       `json:"customer_id" db:"customer_id"`
	Amount     float64      `json:"amount" db:"amount"`
	Status     RefundStatus `json:"status" db:"status"`
	CreatedAt  time.Time    `json:"created_at" db:"created_at"`
}

// EligibilityResult is the read-only gate summary consulted before a
// provider may browse or accept jobs. IDVerified and BankingVerified
// are hard gates; ProfileComplete is a soft, dismissible prompt.
type EligibilityResult struct {
	ProviderID      string `json:"provider_id"`
	IDVerified      bool   `json:"id_verified"`
	BankingVerified bool   `json:"banking_verified"`
	ProfileComplete bool   `json:"profile_complete"`
}

// CanAcceptJobs reports whether the hard gates pass. Profile
// completeness is deliberately excluded (soft gate).
func (e EligibilityResult) CanAcceptJobs() bool {
	return e.IDVerified && e.BankingVerified
}

// CronRun tracks one scheduled job execution for operational history.
type CronRun struct {
	ID         int64      `json:"id" db:"id"`
	JobType    string     `json:"job_type" db:"job_type"`
	StartedAt  time.Time  `json:"started_at" db:"started_at"`
	FinishedAt *time.Time `json:"finished_at" db:"finished_at"`
	Status     string     `json:"status" db:"status"`
	ItemsCount int        `json:"items_count" db:"items_count"`
	Error      string     `json:"error,omitempty" db:"error"`
	Metadata   []byte     `json:"-" db:"metadata"` // zstd-compressed JSON
}

// PayoutRunResult reports one provider's outcome within a batcher run.
// Failures are isolated per provider, never all-or-nothing.
type PayoutRunResult struct {
	ProviderID string  `json:"provider_id"`
	Amount     float64 `json:"amount"`
	JobsCount  int     `json:"jobs_count"`
	Succeeded  bool    `json:"succeeded"`
	Error      string  `json:"error,omitempty"`
}

// PayoutRunSummary is the overall result of one batcher invocation.
type PayoutRunSummary struct {
	Skipped    bool              `json:"skipped"`
	SkipReason string            `json:"skip_reason,omitempty"`
	Results    []PayoutRunResult `json:"results,omitempty"`
}
