package domain

import (
	"strings"
	"time"
)

// SubscriptionStatus is the user-driven axis of a subscriber's lifecycle.
type SubscriptionStatus string

const (
	StatusSubscribed   SubscriptionStatus = "subscribed"
	StatusUnsubscribed SubscriptionStatus = "unsubscribed"
)

// DeliveryStatus is the provider-driven axis, independent of subscription.
// A bounce or complaint suppresses delivery without changing the
// subscriber's own opt-in choice.
type DeliveryStatus string

const (
	DeliveryActive     DeliveryStatus = "active"
	DeliverySuppressed DeliveryStatus = "suppressed"
)

// Correspondence topic tags a subscriber can opt into.
const (
	TopicStudyUpdates = "study updates"
	TopicNewsletter   = "newsletter"
)

// Subscriber is a single recipient of the recurring campaigns.
type Subscriber struct {
	ID          string `json:"id" db:"id"`
	Email       string `json:"email" db:"email"`
	DisplayName string `json:"display_name" db:"display_name"`

	// Preferences
	Topics        []string `json:"topics" db:"topics"`
	InterestAreas []string `json:"interest_areas" db:"interest_areas"`
	AllAreas      bool     `json:"all_areas" db:"all_areas"`

	SubscriptionStatus SubscriptionStatus `json:"subscription_status" db:"subscription_status"`
	DeliveryStatus     DeliveryStatus     `json:"delivery_status" db:"delivery_status"`

	// ManageToken builds the one-click preferences/unsubscribe link that is
	// embedded in every send. Stable and unguessable; never logged.
	ManageToken string `json:"-" db:"manage_token"`

	// Idempotency markers, one per campaign, written only after a confirmed
	// send. These are the sole re-run guard for the dispatch loop.
	LastStudyUpdateSentAt           *time.Time `json:"last_study_update_sent_at" db:"last_study_update_sent_at"`
	LastPublicationNewsletterSentAt *time.Time `json:"last_publication_newsletter_sent_at" db:"last_publication_newsletter_sent_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Deliverable reports whether any campaign may contact this subscriber.
// Evaluated at read time, never cached.
func (s *Subscriber) Deliverable() bool {
	return s.SubscriptionStatus == StatusSubscribed && s.DeliveryStatus == DeliveryActive
}

// HasTopic reports whether the subscriber opted into a correspondence topic.
func (s *Subscriber) HasTopic(topic string) bool {
	for _, t := range s.Topics {
		if strings.EqualFold(t, topic) {
			return true
		}
	}
	return false
}

// LastSentAt returns the idempotency marker for the given campaign,
// or nil if the subscriber has never been sent that campaign.
func (s *Subscriber) LastSentAt(campaign CampaignType) *time.Time {
	switch campaign {
	case CampaignStudyUpdate:
		return s.LastStudyUpdateSentAt
	case CampaignPublicationNewsletter:
		return s.LastPublicationNewsletterSentAt
	}
	return nil
}
