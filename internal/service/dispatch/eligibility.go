package dispatch

import (
	"time"

	"github.com/proshano/kcru-mailer/internal/domain"
)

// fallbackWindowDays bounds the content window for a last_sent-mode
// subscriber who has never been sent anything.
const fallbackWindowDays = 30

// Eligible is the inclusion policy for one subscriber and one run. The
// eligibility query in the repository evaluates the same policy in bulk;
// the engine re-applies this function to whatever the query returns so
// the two can never silently disagree.
//
// force bypasses the time-since-last-send check only. Deliverability and
// topic opt-in always hold: a manual trigger can re-send early, but it can
// never reach an unsubscribed or suppressed address.
func Eligible(sub *domain.Subscriber, settings *domain.CampaignSettings, now time.Time, force bool) bool {
	if !sub.Deliverable() {
		return false
	}
	if !sub.HasTopic(settings.Campaign.Topic()) {
		return false
	}
	if force {
		return true
	}

	switch settings.WindowMode {
	case domain.WindowLastSent:
		// Every deliverable, opted-in subscriber is a candidate each run;
		// the marker narrows their content window, not their inclusion.
		return true
	case domain.WindowRollingDays:
		last := sub.LastSentAt(settings.Campaign)
		if last == nil {
			return true
		}
		cutoff := now.AddDate(0, 0, -settings.WindowDays)
		return last.Before(cutoff)
	}
	return false
}

// EligibilityCutoff returns the marker cutoff the repository query should
// apply, or nil when inclusion does not depend on the marker (last_sent
// mode, or any forced run).
func EligibilityCutoff(settings *domain.CampaignSettings, now time.Time, force bool) *time.Time {
	if force || settings.WindowMode != domain.WindowRollingDays {
		return nil
	}
	cutoff := now.AddDate(0, 0, -settings.WindowDays)
	return &cutoff
}

// ContentWindowStart computes the start of one subscriber's content
// window: the rolling cutoff, or their own last-sent marker so the email
// contains exactly what is new since their previous one.
func ContentWindowStart(sub *domain.Subscriber, settings *domain.CampaignSettings, now time.Time) time.Time {
	switch settings.WindowMode {
	case domain.WindowLastSent:
		if last := sub.LastSentAt(settings.Campaign); last != nil {
			return *last
		}
		days := settings.WindowDays
		if days <= 0 {
			days = fallbackWindowDays
		}
		return now.AddDate(0, 0, -days)
	default:
		return now.AddDate(0, 0, -settings.WindowDays)
	}
}
