package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/proshano/kcru-mailer/internal/compose"
	"github.com/proshano/kcru-mailer/internal/content"
	"github.com/proshano/kcru-mailer/internal/domain"
	"github.com/proshano/kcru-mailer/internal/pkg/logger"
)

// Engine orchestrates one dispatch run end to end: interlock, load,
// per-subscriber loop, bookkeeping.
type Engine struct {
	subscribers SubscriberRepository
	settings    SettingsRepository
	content     ContentSource
	sender      EmailSender
	runs        RunRecorder // optional
	locks       LockFactory // optional
	composer    *compose.Composer

	manageBaseURL    string
	organizationName string

	// now is swappable for tests; defaults to time.Now().UTC.
	now func() time.Time
}

// NewEngine wires a dispatch engine from its collaborators. runs and
// locks may be nil.
func NewEngine(
	subscribers SubscriberRepository,
	settings SettingsRepository,
	contentSource ContentSource,
	sender EmailSender,
	runs RunRecorder,
	locks LockFactory,
	manageBaseURL, organizationName string,
) *Engine {
	return &Engine{
		subscribers:      subscribers,
		settings:         settings,
		content:          contentSource,
		sender:           sender,
		runs:             runs,
		locks:            locks,
		composer:         compose.NewComposer(),
		manageBaseURL:    manageBaseURL,
		organizationName: organizationName,
		now:              func() time.Time { return time.Now().UTC() },
	}
}

// RunOptions control one invocation of Run.
type RunOptions struct {
	Trigger domain.TriggerKind
	// Force bypasses the time-since-last-send check (manual trigger).
	Force bool
	// SubjectOverride, when set, wins over the settings subject template.
	SubjectOverride string
}

// Run executes one recurring-campaign dispatch. One subscriber's failure
// never aborts the run; their error is counted and the loop continues.
// If the platform cuts the run short, the already-written markers let the
// next invocation resume with exactly the remaining subscribers.
func (e *Engine) Run(ctx context.Context, campaign domain.CampaignType, opts RunOptions) (*domain.DispatchResult, error) {
	now := e.now()

	if e.locks != nil {
		lock := e.locks(campaign)
		ok, err := lock.TryAcquire(ctx)
		if err != nil {
			return nil, fmt.Errorf("acquire run lock: %w", err)
		}
		if !ok {
			return nil, ErrRunInProgress
		}
		defer func() {
			if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
				logger.Warn("run lock release failed", "campaign", string(campaign), "error", err.Error())
			}
		}()
	}

	settings, err := e.settings.CampaignSettings(ctx, campaign)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	testCfg, err := e.settings.TestMode(ctx)
	if err != nil {
		return nil, fmt.Errorf("load test mode: %w", err)
	}

	cutoff := EligibilityCutoff(settings, now, opts.Force)
	subs, err := e.subscribers.ListEligible(ctx, campaign, cutoff, opts.Force)
	if err != nil {
		return nil, fmt.Errorf("query eligible subscribers: %w", err)
	}

	// Test mode shrinks the audience before anything else happens to it.
	subs = ApplyAllowlist(subs, testCfg)

	studies, pubs, err := e.loadFeed(ctx, campaign)
	if err != nil {
		return nil, err
	}

	result := &domain.DispatchResult{
		Campaign:  campaign,
		Trigger:   opts.Trigger,
		StartedAt: now,
	}

	logger.Info("dispatch run starting",
		"campaign", string(campaign), "trigger", string(opts.Trigger),
		"candidates", len(subs), "force", opts.Force)

	for i := range subs {
		sub := &subs[i]

		// The query already filtered in bulk; re-checking the policy here
		// keeps the two from drifting apart.
		if !Eligible(sub, settings, now, opts.Force) {
			continue
		}
		result.Stats.Total++

		windowStart := ContentWindowStart(sub, settings, now)
		var items []domain.ContentItem
		if campaign == domain.CampaignStudyUpdate {
			items = content.SelectStudies(sub, studies, settings.MaxItems)
		} else {
			items = content.SelectPublications(pubs, windowStart, settings.MaxItems)
		}

		if len(items) == 0 && !settings.SendEmpty {
			result.Stats.Skipped++
			continue
		}

		msg := e.composer.Compose(sub, items, settings, compose.Meta{
			Campaign:         campaign,
			PeriodLabel:      periodLabel(settings, windowStart, now),
			SubjectOverride:  opts.SubjectOverride,
			ManageBaseURL:    e.manageBaseURL,
			OrganizationName: e.organizationName,
			Now:              now,
		})

		outcome, err := e.sender.Send(ctx, msg)
		if err != nil {
			result.AddError(sub.Email, err.Error())
			logger.Warn("send failed", "campaign", string(campaign), "subscriber", sub.Email, "error", err.Error())
			continue
		}
		if outcome.Skipped {
			result.Stats.Skipped++
			logger.Debug("send skipped", "subscriber", sub.Email, "reason", outcome.SkipReason)
			continue
		}

		// Marker write happens-after the confirmed send; it is the sole
		// idempotency mechanism across re-runs.
		if err := e.subscribers.SetMarker(ctx, sub.ID, campaign, now); err != nil {
			result.AddError(sub.Email, fmt.Sprintf("sent but marker write failed: %v", err))
			continue
		}
		result.Stats.Sent++
	}

	result.FinishedAt = e.now()
	e.recordRun(ctx, result)

	logger.Info("dispatch run finished",
		"campaign", string(campaign),
		"total", result.Stats.Total, "sent", result.Stats.Sent,
		"skipped", result.Stats.Skipped, "errors", result.Stats.Errors)

	return result, nil
}

func (e *Engine) loadFeed(ctx context.Context, campaign domain.CampaignType) ([]domain.Study, []domain.Publication, error) {
	if campaign == domain.CampaignStudyUpdate {
		studies, err := e.content.Studies(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("load study feed: %w", err)
		}
		return studies, nil, nil
	}
	pubs, err := e.content.Publications(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load publication cache: %w", err)
	}
	return nil, pubs, nil
}

func (e *Engine) recordRun(ctx context.Context, result *domain.DispatchResult) {
	if e.runs == nil {
		return
	}
	run := domain.DispatchRun{
		Campaign:   result.Campaign,
		Trigger:    result.Trigger,
		Stats:      result.Stats,
		StartedAt:  result.StartedAt,
		FinishedAt: result.FinishedAt,
	}
	if err := e.runs.RecordRun(ctx, run); err != nil {
		logger.Warn("run history write failed", "campaign", string(result.Campaign), "error", err.Error())
	}
}

// periodLabel names the window a run covers, for subjects and intros.
func periodLabel(settings *domain.CampaignSettings, windowStart, now time.Time) string {
	if settings.WindowMode == domain.WindowRollingDays {
		return fmt.Sprintf("%s – %s", windowStart.Format("January 2"), now.Format("January 2, 2006"))
	}
	return now.Format("January 2006")
}
