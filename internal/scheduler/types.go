// Package scheduler implements the cron-invoked batch services: the
// autopay job generator, the auto-completion sweeper, and the provider
// payout batcher. All three are invoked through the cron multiplexer
// Lambda, take an explicit reference time, and rely on conditional
// row updates rather than locks for cross-invocation correctness.
package scheduler

import "time"

// TaskType identifies which batch service an EventBridge event routes
// to in the cron multiplexer.
type TaskType string

const (
	TaskAutopayGenerate TaskType = "autopay_generate"
	TaskAutoComplete    TaskType = "auto_complete"
	TaskProviderPayouts TaskType = "provider_payouts"
)

// CronPayload is the JSON payload sent by EventBridge to the cron
// Lambda. ServiceToken authenticates the caller and is verified before
// any database access.
//
//	{
//	  "task": "autopay_generate",
//	  "service_token": "...",
//	  "reference_time": "2026-08-31T06:00:00Z"  // optional
//	}
type CronPayload struct {
	Task TaskType `json:"task"`

	// ServiceToken is the shared cron credential, checked against a
	// bcrypt hash from configuration.
	ServiceToken string `json:"service_token"`

	// ReferenceTime lets manual invocation pin "now" for deterministic
	// execution and backfilling. If nil, time.Now().UTC() is used.
	ReferenceTime *time.Time `json:"reference_time,omitempty"`
}
