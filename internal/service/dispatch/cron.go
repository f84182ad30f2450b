package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/proshano/kcru-mailer/internal/domain"
	"github.com/proshano/kcru-mailer/internal/pkg/logger"
	"github.com/proshano/kcru-mailer/internal/schedule"
)

// ScheduleSet holds the send windows for both recurring campaigns.
type ScheduleSet struct {
	StudyUpdate schedule.Window
	Newsletter  schedule.Window
}

// Window returns the send window for one campaign.
func (s ScheduleSet) Window(campaign domain.CampaignType) schedule.Window {
	if campaign == domain.CampaignStudyUpdate {
		return s.StudyUpdate
	}
	return s.Newsletter
}

// CronOutcome reports what the cron tick did for one campaign.
type CronOutcome struct {
	Campaign domain.CampaignType    `json:"campaign"`
	Ran      bool                   `json:"ran"`
	Reason   string                 `json:"reason,omitempty"`
	Result   *domain.DispatchResult `json:"result,omitempty"`
}

// RunScheduled evaluates both campaigns' send windows against the current
// time and runs whichever are due. The external trigger fires far more
// often than sends happen; a closed window is the normal outcome, not an
// error. Per-campaign failures are reported in the outcome so one
// campaign's fault never blocks the other's evaluation.
func (e *Engine) RunScheduled(ctx context.Context, schedules ScheduleSet) []CronOutcome {
	now := e.now()
	campaigns := []domain.CampaignType{domain.CampaignStudyUpdate, domain.CampaignPublicationNewsletter}

	outcomes := make([]CronOutcome, 0, len(campaigns))
	for _, campaign := range campaigns {
		outcomes = append(outcomes, e.runIfDue(ctx, campaign, schedules.Window(campaign), now))
	}
	return outcomes
}

func (e *Engine) runIfDue(ctx context.Context, campaign domain.CampaignType, window schedule.Window, now time.Time) CronOutcome {
	outcome := CronOutcome{Campaign: campaign}

	due, err := window.ShouldRunNow(now)
	if err != nil {
		outcome.Reason = "schedule evaluation failed: " + err.Error()
		logger.Error("schedule evaluation failed", "campaign", string(campaign), "error", err.Error())
		return outcome
	}
	if !due {
		outcome.Reason = "outside send window"
		return outcome
	}

	result, err := e.Run(ctx, campaign, RunOptions{Trigger: domain.TriggerCron})
	if err != nil {
		if errors.Is(err, ErrRunInProgress) {
			outcome.Reason = "run already in progress"
			return outcome
		}
		outcome.Reason = err.Error()
		logger.Error("scheduled run failed", "campaign", string(campaign), "error", err.Error())
		return outcome
	}

	outcome.Ran = true
	outcome.Result = result
	return outcome
}
