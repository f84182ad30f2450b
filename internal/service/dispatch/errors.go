package dispatch

import "errors"

// Sentinel errors for the dispatch engine.
var (
	// ErrSendingDisabled is the safety-interlock refusal: a broadcast-style
	// send was attempted without an enabled, non-empty test allowlist.
	// Not retryable; the operator has to change the interlock first.
	ErrSendingDisabled = errors.New("broadcast sending is disabled: test mode must be enabled with at least one allowlisted recipient")

	// ErrRunInProgress means another invocation holds this campaign's run
	// lock. Callers report it as a skip, not a failure.
	ErrRunInProgress = errors.New("a dispatch run for this campaign is already in progress")

	// ErrSettingsNotFound means no settings record exists for the campaign.
	ErrSettingsNotFound = errors.New("campaign settings not found")

	// ErrSubscriberNotFound is returned by repositories for unknown ids
	// or manage tokens.
	ErrSubscriberNotFound = errors.New("subscriber not found")
)
