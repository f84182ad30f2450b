package dispatch

import (
	"context"
	"time"

	"github.com/proshano/kcru-mailer/internal/domain"
)

// SubscriberRepository is the subscriber data access the engine needs.
// Implementations must be safe for concurrent use.
type SubscriberRepository interface {
	// ListEligible returns deliverable subscribers opted into the
	// campaign's topic, in a stable order. When cutoff is non-nil, only
	// subscribers whose campaign marker is unset or older than the cutoff
	// are returned; force bypasses the marker check but never
	// deliverability. The SQL predicate must agree with Eligible: the
	// policy lives there and the query is its bulk evaluation.
	ListEligible(ctx context.Context, campaign domain.CampaignType, cutoff *time.Time, force bool) ([]domain.Subscriber, error)

	// ListDeliverable returns every deliverable subscriber holding the
	// given correspondence topic (broadcast audiences).
	ListDeliverable(ctx context.Context, topic string) ([]domain.Subscriber, error)

	// SetMarker persists a campaign's last-sent timestamp for one
	// subscriber. Called only after the transport confirms delivery.
	SetMarker(ctx context.Context, subscriberID string, campaign domain.CampaignType, sentAt time.Time) error

	// GetByManageToken resolves a manage token to a subscriber.
	// Returns ErrSubscriberNotFound for unknown tokens.
	GetByManageToken(ctx context.Context, token string) (*domain.Subscriber, error)

	// UpdatePreferences mutates only the preference fields (topics,
	// interest areas, subscription status).
	UpdatePreferences(ctx context.Context, subscriberID string, topics, areas []string, allAreas bool, status domain.SubscriptionStatus) error
}

// SettingsRepository provides campaign settings and the test-mode config.
type SettingsRepository interface {
	// CampaignSettings returns the settings record for one campaign.
	// Returns ErrSettingsNotFound if missing.
	CampaignSettings(ctx context.Context, campaign domain.CampaignType) (*domain.CampaignSettings, error)

	// TestMode returns the safety-interlock allowlist. A missing record
	// is returned as a disabled config, not an error.
	TestMode(ctx context.Context) (*domain.TestModeConfig, error)

	// SaveTestMode replaces the allowlist config.
	SaveTestMode(ctx context.Context, cfg *domain.TestModeConfig) error
}

// ContentSource provides the read-only campaign feeds. The study list is
// pre-filtered upstream to recruiting studies accepting referrals; the
// publication slice is the full local cache, windowed per subscriber.
type ContentSource interface {
	Studies(ctx context.Context) ([]domain.Study, error)
	Publications(ctx context.Context) ([]domain.Publication, error)
}

// EmailSender is the outbound transport. A SendOutcome with Skipped set
// means the provider declined without failing (for example, unconfigured
// credentials); an error means this subscriber's send failed.
type EmailSender interface {
	Send(ctx context.Context, msg domain.EmailMessage) (domain.SendOutcome, error)
}

// RunRecorder persists run history for the cron dashboard. Recording is
// best-effort; a recorder failure never fails the run.
type RunRecorder interface {
	RecordRun(ctx context.Context, run domain.DispatchRun) error
	ListRuns(ctx context.Context, limit int) ([]domain.DispatchRun, error)
}

// LockFactory creates the per-campaign run lock. A nil factory disables
// run-level locking (tests, single-process deployments that accept the
// marker-only guarantee).
type LockFactory func(campaign domain.CampaignType) RunLock

// RunLock is the subset of distlock.Lock the engine uses.
type RunLock interface {
	TryAcquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}
