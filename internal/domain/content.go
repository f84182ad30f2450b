package domain

import "time"

// Study is one entry in the recruiting-study list. The feed handed to the
// dispatch engine is pre-filtered upstream to recruiting studies that
// accept referrals; the selector only narrows by interest area.
type Study struct {
	ID              string    `json:"id" db:"id"`
	Title           string    `json:"title" db:"title"`
	Summary         string    `json:"summary" db:"summary"`
	URL             string    `json:"url" db:"url"`
	Areas           []string  `json:"areas" db:"areas"`
	Featured        bool      `json:"featured" db:"featured"`
	Recruiting      bool      `json:"recruiting" db:"recruiting"`
	AcceptsReferral bool      `json:"accepts_referral" db:"accepts_referral"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

// Publication is one entry in the publication cache. Upstream bibliographic
// data is often partial: PublishedAt may be absent while Year and a
// free-text DateText ("2024 Mar-Apr") are present. The selector resolves an
// effective date from whichever fields exist.
type Publication struct {
	ID          string     `json:"id" db:"id"`
	Title       string     `json:"title" db:"title"`
	Authors     string     `json:"authors" db:"authors"`
	Journal     string     `json:"journal" db:"journal"`
	URL         string     `json:"url" db:"url"`
	Exclude     bool       `json:"exclude" db:"exclude"`
	PublishedAt *time.Time `json:"published_at" db:"published_at"`
	Year        int        `json:"year" db:"year"`
	DateText    string     `json:"date_text" db:"date_text"`
	FetchedAt   time.Time  `json:"fetched_at" db:"fetched_at"`
}

// ContentItem is the campaign-agnostic shape both content feeds reduce to
// before composition. Date is the effective date used for windowing and
// ordering; studies use their last update.
type ContentItem struct {
	Title    string    `json:"title"`
	Subtitle string    `json:"subtitle"`
	URL      string    `json:"url"`
	Date     time.Time `json:"date"`
}
