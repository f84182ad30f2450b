package domain

import "time"

// MaxReportedErrors caps the error sample in a run result so the response
// stays bounded no matter how large the audience is.
const MaxReportedErrors = 8

// TriggerKind records what started a dispatch run.
type TriggerKind string

const (
	TriggerCron   TriggerKind = "cron"
	TriggerManual TriggerKind = "manual"
)

// EmailMessage is the fully-composed message ready for the transport.
// By the time a message reaches this struct all template substitution is
// complete and both bodies are independently legible.
type EmailMessage struct {
	To          string `json:"to"`
	Subject     string `json:"subject"`
	TextContent string `json:"text_content"`
	HTMLContent string `json:"html_content"`
}

// SendOutcome is the transport's verdict on a single message. Exactly one
// of Delivered/Skipped is set on a non-error return; transport failures are
// returned as errors instead.
type SendOutcome struct {
	Delivered  bool   `json:"delivered"`
	Skipped    bool   `json:"skipped"`
	SkipReason string `json:"skip_reason,omitempty"`
	MessageID  string `json:"message_id,omitempty"`
}

// DispatchStats aggregates one run's per-subscriber outcomes.
type DispatchStats struct {
	Total   int `json:"total"`
	Sent    int `json:"sent"`
	Skipped int `json:"skipped"`
	Errors  int `json:"errors"`
}

// DispatchError is one entry in the bounded error sample.
type DispatchError struct {
	Email   string `json:"email"`
	Message string `json:"message"`
}

// DispatchResult is the ephemeral outcome of one run. It is returned to
// the caller and logged to the run history but never drives behavior;
// idempotency lives in the per-subscriber markers.
type DispatchResult struct {
	Campaign   CampaignType    `json:"campaign"`
	Trigger    TriggerKind     `json:"trigger"`
	Stats      DispatchStats   `json:"stats"`
	Errors     []DispatchError `json:"errors,omitempty"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
}

// AddError counts a per-subscriber failure and appends it to the sample
// unless the cap is already reached.
func (r *DispatchResult) AddError(email, message string) {
	r.Stats.Errors++
	if len(r.Errors) < MaxReportedErrors {
		r.Errors = append(r.Errors, DispatchError{Email: email, Message: message})
	}
}

// DispatchRun is the persisted history row for one completed run.
type DispatchRun struct {
	ID         string        `json:"id" db:"id"`
	Campaign   CampaignType  `json:"campaign" db:"campaign"`
	Trigger    TriggerKind   `json:"trigger" db:"trigger"`
	Stats      DispatchStats `json:"stats" db:"stats"`
	StartedAt  time.Time     `json:"started_at" db:"started_at"`
	FinishedAt time.Time     `json:"finished_at" db:"finished_at"`
}
