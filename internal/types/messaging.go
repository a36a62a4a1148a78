package types

import "time"

// NotificationMessage is the SQS payload for the notification dispatcher.
// This is the contract between the state-changing services and the
// notify worker: dispatch is fire-and-forget, and a failed enqueue is
// logged and swallowed so a queue outage can never roll back or block a
// job/payment state change.
type NotificationMessage struct {
	MessageID   string           `json:"message_id"` // "ntf_..." unique for deduplication
	Type        NotificationType `json:"type"`
	RecipientID string           `json:"recipient_id"`
	JobID       string           `json:"job_id"`
	JobTitle    string           `json:"job_title"`
	CreatedAt   time.Time        `json:"created_at"`

	// AdditionalData carries type-specific fields (amounts, payout ids,
	// dispute reasons). Free-form by contract.
	AdditionalData map[string]any `json:"additional_data,omitempty"`
}

// InvoiceMessage is the SQS payload for the invoice dispatcher. Sent
// exactly once per successful payment confirmation, independent of
// which payment path produced it.
type InvoiceMessage struct {
	MessageID        string    `json:"message_id"` // "inv_..."
	JobID            string    `json:"job_id"`
	CustomerID       string    `json:"customer_id"`
	CustomerEmail    string    `json:"customer_email"`
	CustomerName     string    `json:"customer_name"`
	Location         string    `json:"location"`
	Parish           Parish    `json:"parish"`
	LawnSize         LawnSize  `json:"lawn_size"`
	Amount           float64   `json:"amount"`
	PlatformFee      float64   `json:"platform_fee"`
	PaymentReference string    `json:"payment_reference,omitempty"`
	ConfirmedAt      time.Time `json:"confirmed_at"`
}
