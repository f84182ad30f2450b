package content

import (
	"strings"
	"time"

	"github.com/proshano/kcru-mailer/internal/domain"
)

// monthsByName resolves full month names and common bibliographic
// abbreviations ("Jan", "Sept", "2024 Mar-Apr").
var monthsByName = map[string]time.Month{
	"january": time.January, "jan": time.January,
	"february": time.February, "feb": time.February,
	"march": time.March, "mar": time.March,
	"april": time.April, "apr": time.April,
	"may":  time.May,
	"june": time.June, "jun": time.June,
	"july": time.July, "jul": time.July,
	"august": time.August, "aug": time.August,
	"september": time.September, "sep": time.September, "sept": time.September,
	"october": time.October, "oct": time.October,
	"november": time.November, "nov": time.November,
	"december": time.December, "dec": time.December,
}

// EffectiveDate resolves a publication's best-effort date. Bibliographic
// upstreams frequently omit the precise publish date, so the fallback
// chain is: explicit date → year plus a month name parsed from the
// free-text date field (day defaulted to the last day of that month) →
// year alone (treated as December 31). A publication with no year at all
// resolves to the zero time and falls outside every window.
func EffectiveDate(p domain.Publication) time.Time {
	if p.PublishedAt != nil {
		return *p.PublishedAt
	}
	if p.Year == 0 {
		return time.Time{}
	}

	month := time.December
	if m, ok := firstMonthIn(p.DateText); ok {
		month = m
	}
	return lastDayOfMonth(p.Year, month)
}

// firstMonthIn scans free text for the first recognizable month token.
func firstMonthIn(text string) (time.Month, bool) {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z')
	})
	for _, f := range fields {
		if m, ok := monthsByName[f]; ok {
			return m, true
		}
	}
	return 0, false
}

// lastDayOfMonth returns midnight UTC on the final day of the month.
// Day zero of the next month normalizes to it.
func lastDayOfMonth(year int, month time.Month) time.Time {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC)
}
