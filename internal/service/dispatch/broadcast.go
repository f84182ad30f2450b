package dispatch

import (
	"context"
	"fmt"
	"strings"

	"github.com/proshano/kcru-mailer/internal/compose"
	"github.com/proshano/kcru-mailer/internal/domain"
	"github.com/proshano/kcru-mailer/internal/pkg/logger"
)

// BroadcastInput is an operator-authored one-off announcement.
type BroadcastInput struct {
	// Topic selects the audience; empty defaults to the newsletter topic.
	Topic   string `json:"topic"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

func (in *BroadcastInput) validate() error {
	if strings.TrimSpace(in.Subject) == "" {
		return fmt.Errorf("broadcast subject is required")
	}
	if strings.TrimSpace(in.Body) == "" {
		return fmt.Errorf("broadcast body is required")
	}
	return nil
}

// Broadcast sends a one-off message to every deliverable subscriber of a
// topic. Broadcasts carry no idempotency marker, so the safety interlock
// is strict: without an enabled, non-empty allowlist the call is refused
// outright rather than risking a mass send.
func (e *Engine) Broadcast(ctx context.Context, in BroadcastInput) (*domain.DispatchResult, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	topic := in.Topic
	if topic == "" {
		topic = domain.TopicNewsletter
	}

	testCfg, err := e.settings.TestMode(ctx)
	if err != nil {
		return nil, fmt.Errorf("load test mode: %w", err)
	}
	if err := AssertBroadcastAllowed(testCfg); err != nil {
		return nil, err
	}

	subs, err := e.subscribers.ListDeliverable(ctx, topic)
	if err != nil {
		return nil, fmt.Errorf("query broadcast audience: %w", err)
	}
	subs = ApplyAllowlist(subs, testCfg)

	now := e.now()
	result := &domain.DispatchResult{
		Campaign:  domain.CampaignBroadcast,
		Trigger:   domain.TriggerManual,
		StartedAt: now,
	}

	logger.Info("broadcast starting", "topic", topic, "recipients", len(subs))

	for i := range subs {
		sub := &subs[i]
		result.Stats.Total++

		msg := e.composer.ComposeBroadcast(sub, in.Subject, in.Body, compose.Meta{
			ManageBaseURL:    e.manageBaseURL,
			OrganizationName: e.organizationName,
			Now:              now,
		})

		outcome, err := e.sender.Send(ctx, msg)
		if err != nil {
			result.AddError(sub.Email, err.Error())
			continue
		}
		if outcome.Skipped {
			result.Stats.Skipped++
			continue
		}
		result.Stats.Sent++
	}

	result.FinishedAt = e.now()
	e.recordRun(ctx, result)

	logger.Info("broadcast finished",
		"topic", topic, "sent", result.Stats.Sent,
		"skipped", result.Stats.Skipped, "errors", result.Stats.Errors)

	return result, nil
}
