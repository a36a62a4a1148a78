package external

import "context"

// EmailAddress is a sender or recipient address with an optional
// display name.
type EmailAddress struct {
	Address string
	Name    string
}

// EmailInput is the provider-agnostic send request. The workers render
// the subject and bodies; the provider client only transmits them.
type EmailInput struct {
	To      EmailAddress
	From    EmailAddress
	Subject string
	HTML    string
	Text    string

	// ReferenceID correlates the provider's delivery events back to the
	// originating message (a "ntf_" or "inv_" id).
	ReferenceID string
}

// EmailProvider transmits a single email and returns the provider's
// message id on success.
type EmailProvider interface {
	Send(ctx context.Context, input EmailInput) (string, error)
}
