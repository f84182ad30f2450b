package domain

import "fmt"

// CampaignType identifies one of the two fixed recurring campaigns.
type CampaignType string

const (
	CampaignStudyUpdate           CampaignType = "study_update"
	CampaignPublicationNewsletter CampaignType = "publication_newsletter"

	// CampaignBroadcast labels one-off announcement runs in the run
	// history. It is not a recurring campaign and never parses from URLs.
	CampaignBroadcast CampaignType = "broadcast"
)

// ParseCampaignType validates a campaign identifier from a URL or queue.
func ParseCampaignType(s string) (CampaignType, error) {
	switch CampaignType(s) {
	case CampaignStudyUpdate, CampaignPublicationNewsletter:
		return CampaignType(s), nil
	}
	return "", fmt.Errorf("unknown campaign type %q", s)
}

// Topic returns the correspondence topic a subscriber must hold to
// receive this campaign.
func (c CampaignType) Topic() string {
	if c == CampaignStudyUpdate {
		return TopicStudyUpdates
	}
	return TopicNewsletter
}

// MarkerColumn returns the subscriber column holding this campaign's
// idempotency marker.
func (c CampaignType) MarkerColumn() string {
	if c == CampaignStudyUpdate {
		return "last_study_update_sent_at"
	}
	return "last_publication_newsletter_sent_at"
}

// WindowMode is the policy for computing the content-relevance cutoff.
type WindowMode string

const (
	// WindowRollingDays uses cutoff = now − WindowDays for both subscriber
	// eligibility and content selection.
	WindowRollingDays WindowMode = "rolling_days"
	// WindowLastSent makes every deliverable, opted-in subscriber a
	// candidate on every run; only the content window shrinks to "since
	// that subscriber's own last send".
	WindowLastSent WindowMode = "last_sent"
)

// CampaignSettings is the per-campaign configuration record.
type CampaignSettings struct {
	Campaign CampaignType `json:"campaign" db:"campaign"`

	SubjectTemplate    string `json:"subject_template" db:"subject_template"`
	IntroTemplate      string `json:"intro_template" db:"intro_template"`
	EmptyIntroTemplate string `json:"empty_intro_template" db:"empty_intro_template"`
	OutroTemplate      string `json:"outro_template" db:"outro_template"`
	Signature          string `json:"signature" db:"signature"`

	WindowMode WindowMode `json:"window_mode" db:"window_mode"`
	WindowDays int        `json:"window_days" db:"window_days"`
	MaxItems   int        `json:"max_items" db:"max_items"`
	SendEmpty  bool       `json:"send_empty" db:"send_empty"`
}

// Validate rejects settings the dispatch engine cannot act on.
func (s *CampaignSettings) Validate() error {
	switch s.WindowMode {
	case WindowRollingDays, WindowLastSent:
	default:
		return fmt.Errorf("campaign %s: unknown window mode %q", s.Campaign, s.WindowMode)
	}
	if s.WindowMode == WindowRollingDays && s.WindowDays <= 0 {
		return fmt.Errorf("campaign %s: rolling window requires window_days > 0", s.Campaign)
	}
	if s.MaxItems <= 0 {
		return fmt.Errorf("campaign %s: max_items must be > 0", s.Campaign)
	}
	return nil
}

// TestModeConfig is the safety-interlock allowlist. While enabled, every
// campaign's audience is intersected with Recipients before any subscriber
// is contacted, and broadcast sends are refused entirely unless it is
// enabled and non-empty.
type TestModeConfig struct {
	Enabled    bool     `json:"enabled" db:"enabled"`
	Recipients []string `json:"recipients" db:"recipients"`
}

// Allows reports whether an email passes the allowlist
// (case-insensitive match).
func (t *TestModeConfig) Allows(email string) bool {
	for _, r := range t.Recipients {
		if equalFoldEmail(r, email) {
			return true
		}
	}
	return false
}
