// Package schedule decides whether "now" falls inside a campaign's local
// send window. The external cron fires on UTC instants (often twice, to
// straddle daylight-saving shifts); this package is the single source of
// truth for "is this the one true local-time slot".
package schedule

import (
	"fmt"
	"time"
)

// Window is one campaign's local-time send slot.
type Window struct {
	// Timezone is an IANA zone name. Conversion always goes through the
	// zone database, never a fixed UTC offset, so the slot stays correct
	// across daylight-saving transitions.
	Timezone string
	// TargetDay is a required day of month; nil means any day.
	TargetDay *int
	// TargetHour is the local hour the window opens.
	TargetHour int
	// WindowMinutes is the width of the slot: minutes [0, WindowMinutes)
	// past the hour match.
	WindowMinutes int
}

// ShouldRunNow reports whether nowUTC falls inside the window. A resolver
// mismatch is a schedule no-op for the caller, not an error; errors are
// reserved for unresolvable timezones, which are a configuration fault.
//
// Retries that land inside the same open window are NOT filtered here;
// the per-subscriber idempotency markers are the double-send guard.
func (w Window) ShouldRunNow(nowUTC time.Time) (bool, error) {
	loc, err := time.LoadLocation(w.Timezone)
	if err != nil {
		return false, fmt.Errorf("load timezone %q: %w", w.Timezone, err)
	}

	local := nowUTC.In(loc)

	if w.TargetDay != nil && local.Day() != *w.TargetDay {
		return false, nil
	}
	if local.Hour() != w.TargetHour {
		return false, nil
	}
	return local.Minute() < w.WindowMinutes, nil
}
