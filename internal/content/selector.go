// Package content selects the bounded, ordered list of campaign items
// relevant to one subscriber, and maintains the publication cache behind
// the newsletter.
package content

import (
	"sort"
	"strings"
	"time"

	"github.com/proshano/kcru-mailer/internal/domain"
)

// SelectStudies narrows the pre-filtered recruiting-study feed to the
// subscriber's interest areas and truncates to maxItems. Studies carry no
// time window: the feed is "currently recruiting", so recency is not a
// relevance signal. Order is featured first, then title, so repeated runs
// over the same feed produce identical emails.
func SelectStudies(sub *domain.Subscriber, studies []domain.Study, maxItems int) []domain.ContentItem {
	var matched []domain.Study
	for _, st := range studies {
		if !st.Recruiting || !st.AcceptsReferral {
			continue
		}
		if !sub.AllAreas && !areasOverlap(sub.InterestAreas, st.Areas) {
			continue
		}
		matched = append(matched, st)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].Featured != matched[j].Featured {
			return matched[i].Featured
		}
		return matched[i].Title < matched[j].Title
	})

	var out []domain.ContentItem
	for _, st := range matched {
		out = append(out, domain.ContentItem{
			Title:    st.Title,
			Subtitle: st.Summary,
			URL:      st.URL,
			Date:     st.UpdatedAt,
		})
	}
	return truncate(out, maxItems)
}

// SelectPublications filters the publication cache to items dated at or
// after windowStart, newest first, ties broken by title, truncated to
// maxItems. Individually excluded items never appear regardless of date.
func SelectPublications(pubs []domain.Publication, windowStart time.Time, maxItems int) []domain.ContentItem {
	var out []domain.ContentItem
	for _, p := range pubs {
		if p.Exclude {
			continue
		}
		d := EffectiveDate(p)
		if d.Before(windowStart) {
			continue
		}
		subtitle := p.Authors
		if p.Journal != "" {
			subtitle = strings.TrimSpace(subtitle + " — " + p.Journal)
		}
		out = append(out, domain.ContentItem{
			Title:    p.Title,
			Subtitle: subtitle,
			URL:      p.URL,
			Date:     d,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].Title < out[j].Title
	})

	return truncate(out, maxItems)
}

func truncate(items []domain.ContentItem, maxItems int) []domain.ContentItem {
	if maxItems > 0 && len(items) > maxItems {
		return items[:maxItems]
	}
	return items
}

func areasOverlap(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if strings.EqualFold(x, y) {
				return true
			}
		}
	}
	return false
}
