package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proshano/kcru-mailer/internal/domain"
	"github.com/proshano/kcru-mailer/internal/schedule"
)

// memStore is the in-memory backing for engine tests. It implements
// SubscriberRepository, SettingsRepository, ContentSource and RunRecorder.
type memStore struct {
	mu       sync.Mutex
	subs     []domain.Subscriber
	settings map[domain.CampaignType]*domain.CampaignSettings
	testMode *domain.TestModeConfig
	studies  []domain.Study
	pubs     []domain.Publication
	runs     []domain.DispatchRun
}

func newMemStore() *memStore {
	return &memStore{
		settings: make(map[domain.CampaignType]*domain.CampaignSettings),
		testMode: &domain.TestModeConfig{},
	}
}

func (m *memStore) ListEligible(_ context.Context, campaign domain.CampaignType, cutoff *time.Time, force bool) ([]domain.Subscriber, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Subscriber
	for _, s := range m.subs {
		if !s.Deliverable() || !s.HasTopic(campaign.Topic()) {
			continue
		}
		if !force && cutoff != nil {
			if marker := s.LastSentAt(campaign); marker != nil && !marker.Before(*cutoff) {
				continue
			}
		}
		out = append(out, s)
	}
	return out, nil
}

func (m *memStore) ListDeliverable(_ context.Context, topic string) ([]domain.Subscriber, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Subscriber
	for _, s := range m.subs {
		if s.Deliverable() && s.HasTopic(topic) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memStore) SetMarker(_ context.Context, subscriberID string, campaign domain.CampaignType, sentAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.subs {
		if m.subs[i].ID != subscriberID {
			continue
		}
		t := sentAt
		if campaign == domain.CampaignStudyUpdate {
			m.subs[i].LastStudyUpdateSentAt = &t
		} else {
			m.subs[i].LastPublicationNewsletterSentAt = &t
		}
		return nil
	}
	return ErrSubscriberNotFound
}

func (m *memStore) GetByManageToken(_ context.Context, token string) (*domain.Subscriber, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.subs {
		if m.subs[i].ManageToken == token {
			s := m.subs[i]
			return &s, nil
		}
	}
	return nil, ErrSubscriberNotFound
}

func (m *memStore) UpdatePreferences(_ context.Context, subscriberID string, topics, areas []string, allAreas bool, status domain.SubscriptionStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.subs {
		if m.subs[i].ID == subscriberID {
			m.subs[i].Topics = topics
			m.subs[i].InterestAreas = areas
			m.subs[i].AllAreas = allAreas
			m.subs[i].SubscriptionStatus = status
			return nil
		}
	}
	return ErrSubscriberNotFound
}

func (m *memStore) CampaignSettings(_ context.Context, campaign domain.CampaignType) (*domain.CampaignSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.settings[campaign]
	if !ok {
		return nil, ErrSettingsNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memStore) TestMode(_ context.Context) (*domain.TestModeConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *m.testMode
	return &cp, nil
}

func (m *memStore) SaveTestMode(_ context.Context, cfg *domain.TestModeConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *cfg
	m.testMode = &cp
	return nil
}

func (m *memStore) Studies(_ context.Context) ([]domain.Study, error)          { return m.studies, nil }
func (m *memStore) Publications(_ context.Context) ([]domain.Publication, error) { return m.pubs, nil }

func (m *memStore) RecordRun(_ context.Context, run domain.DispatchRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, run)
	return nil
}

func (m *memStore) ListRuns(_ context.Context, limit int) ([]domain.DispatchRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit > len(m.runs) {
		limit = len(m.runs)
	}
	return m.runs[:limit], nil
}

func (m *memStore) marker(id string, campaign domain.CampaignType) *time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.subs {
		if m.subs[i].ID == id {
			return m.subs[i].LastSentAt(campaign)
		}
	}
	return nil
}

// memSender records sends and can fail or skip per recipient.
type memSender struct {
	mu      sync.Mutex
	sent    []domain.EmailMessage
	failFor map[string]error
	skipAll bool
}

func (s *memSender) Send(_ context.Context, msg domain.EmailMessage) (domain.SendOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.failFor[msg.To]; ok {
		return domain.SendOutcome{}, err
	}
	if s.skipAll {
		return domain.SendOutcome{Skipped: true, SkipReason: "email provider not configured"}, nil
	}
	s.sent = append(s.sent, msg)
	return domain.SendOutcome{Delivered: true, MessageID: fmt.Sprintf("msg-%d", len(s.sent))}, nil
}

func (s *memSender) recipients() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.sent))
	for i, m := range s.sent {
		out[i] = m.To
	}
	return out
}

type fakeLock struct {
	mu   sync.Mutex
	held bool
}

func (l *fakeLock) TryAcquire(context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held {
		return false, nil
	}
	l.held = true
	return true, nil
}

func (l *fakeLock) Release(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held = false
	return nil
}

var fixedNow = time.Date(2025, time.June, 16, 11, 0, 0, 0, time.UTC)

func newTestEngine(store *memStore, sender *memSender) *Engine {
	e := NewEngine(store, store, store, sender, store, nil,
		"https://kidneyclinicalresearch.ca", "Kidney Clinical Research Unit")
	e.now = func() time.Time { return fixedNow }
	return e
}

func studySettings() *domain.CampaignSettings {
	return &domain.CampaignSettings{
		Campaign:   domain.CampaignStudyUpdate,
		WindowMode: domain.WindowRollingDays,
		WindowDays: 30,
		MaxItems:   8,
	}
}

func newsletterSettings() *domain.CampaignSettings {
	return &domain.CampaignSettings{
		Campaign:   domain.CampaignPublicationNewsletter,
		WindowMode: domain.WindowLastSent,
		WindowDays: 30,
		MaxItems:   8,
	}
}

func studySubscriber(n int) domain.Subscriber {
	return domain.Subscriber{
		ID:                 fmt.Sprintf("sub-%d", n),
		Email:              fmt.Sprintf("patient%d@example.org", n),
		DisplayName:        fmt.Sprintf("Patient %d", n),
		Topics:             []string{domain.TopicStudyUpdates, domain.TopicNewsletter},
		AllAreas:           true,
		SubscriptionStatus: domain.StatusSubscribed,
		DeliveryStatus:     domain.DeliveryActive,
		ManageToken:        fmt.Sprintf("token-%d", n),
	}
}

func recruitingStudy(title string) domain.Study {
	return domain.Study{
		ID:              title,
		Title:           title,
		URL:             "https://kidneyclinicalresearch.ca/studies/" + title,
		Recruiting:      true,
		AcceptsReferral: true,
		UpdatedAt:       fixedNow.AddDate(0, 0, -3),
	}
}

func TestRunIsIdempotentAcrossInvocations(t *testing.T) {
	store := newMemStore()
	store.settings[domain.CampaignStudyUpdate] = studySettings()
	store.studies = []domain.Study{recruitingStudy("alpha")}
	for i := 1; i <= 3; i++ {
		store.subs = append(store.subs, studySubscriber(i))
	}
	sender := &memSender{}
	engine := newTestEngine(store, sender)

	first, err := engine.Run(context.Background(), domain.CampaignStudyUpdate, RunOptions{Trigger: domain.TriggerCron})
	require.NoError(t, err)
	assert.Equal(t, 3, first.Stats.Sent)
	assert.Equal(t, 0, first.Stats.Errors)

	// Same trigger again, as a cron retry would do. Markers written by the
	// first run must keep every subscriber out of the second.
	second, err := engine.Run(context.Background(), domain.CampaignStudyUpdate, RunOptions{Trigger: domain.TriggerCron})
	require.NoError(t, err)
	assert.Equal(t, 0, second.Stats.Sent)
	assert.Len(t, sender.recipients(), 3)
}

func TestForceBypassesMarkerButNotDeliverability(t *testing.T) {
	store := newMemStore()
	store.settings[domain.CampaignStudyUpdate] = studySettings()
	store.studies = []domain.Study{recruitingStudy("alpha")}

	recent := studySubscriber(1)
	sentYesterday := fixedNow.AddDate(0, 0, -1)
	recent.LastStudyUpdateSentAt = &sentYesterday

	unsubscribed := studySubscriber(2)
	unsubscribed.SubscriptionStatus = domain.StatusUnsubscribed

	suppressed := studySubscriber(3)
	suppressed.DeliveryStatus = domain.DeliverySuppressed

	store.subs = []domain.Subscriber{recent, unsubscribed, suppressed}
	sender := &memSender{}
	engine := newTestEngine(store, sender)

	result, err := engine.Run(context.Background(), domain.CampaignStudyUpdate, RunOptions{
		Trigger: domain.TriggerManual,
		Force:   true,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Stats.Sent)
	assert.Equal(t, []string{recent.Email}, sender.recipients())
}

func TestTestModeShrinksAudience(t *testing.T) {
	store := newMemStore()
	store.settings[domain.CampaignStudyUpdate] = studySettings()
	store.studies = []domain.Study{recruitingStudy("alpha")}
	for i := 1; i <= 5; i++ {
		store.subs = append(store.subs, studySubscriber(i))
	}
	store.testMode = &domain.TestModeConfig{
		Enabled:    true,
		Recipients: []string{"PATIENT2@example.org"},
	}
	sender := &memSender{}
	engine := newTestEngine(store, sender)

	result, err := engine.Run(context.Background(), domain.CampaignStudyUpdate, RunOptions{Trigger: domain.TriggerCron})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Stats.Sent)
	assert.Equal(t, []string{"patient2@example.org"}, sender.recipients())

	// Nobody outside the allowlist got a marker.
	assert.Nil(t, store.marker("sub-1", domain.CampaignStudyUpdate))
	assert.NotNil(t, store.marker("sub-2", domain.CampaignStudyUpdate))
}

func TestEmptyContentSkipsWithoutMarker(t *testing.T) {
	store := newMemStore()
	store.settings[domain.CampaignStudyUpdate] = studySettings()
	store.subs = []domain.Subscriber{studySubscriber(1)}
	sender := &memSender{}
	engine := newTestEngine(store, sender)

	result, err := engine.Run(context.Background(), domain.CampaignStudyUpdate, RunOptions{Trigger: domain.TriggerCron})
	require.NoError(t, err)

	assert.Equal(t, 0, result.Stats.Sent)
	assert.Equal(t, 1, result.Stats.Skipped)
	assert.Empty(t, sender.recipients())
	// A skip leaves the marker untouched so the subscriber stays eligible.
	assert.Nil(t, store.marker("sub-1", domain.CampaignStudyUpdate))
}

func TestSendEmptyDeliversZeroItemEdition(t *testing.T) {
	store := newMemStore()
	settings := studySettings()
	settings.SendEmpty = true
	store.settings[domain.CampaignStudyUpdate] = settings
	store.subs = []domain.Subscriber{studySubscriber(1)}
	sender := &memSender{}
	engine := newTestEngine(store, sender)

	result, err := engine.Run(context.Background(), domain.CampaignStudyUpdate, RunOptions{Trigger: domain.TriggerCron})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Stats.Sent)
	assert.NotNil(t, store.marker("sub-1", domain.CampaignStudyUpdate))
}

func TestOneFailureDoesNotAbortTheRun(t *testing.T) {
	store := newMemStore()
	store.settings[domain.CampaignStudyUpdate] = studySettings()
	store.studies = []domain.Study{recruitingStudy("alpha")}
	for i := 1; i <= 5; i++ {
		store.subs = append(store.subs, studySubscriber(i))
	}
	sender := &memSender{failFor: map[string]error{
		"patient2@example.org": errors.New("mailbox full"),
	}}
	engine := newTestEngine(store, sender)

	result, err := engine.Run(context.Background(), domain.CampaignStudyUpdate, RunOptions{Trigger: domain.TriggerCron})
	require.NoError(t, err)

	assert.Equal(t, 4, result.Stats.Sent)
	assert.Equal(t, 1, result.Stats.Errors)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "patient2@example.org", result.Errors[0].Email)
	assert.Contains(t, result.Errors[0].Message, "mailbox full")

	// The failed subscriber keeps a nil marker and remains eligible.
	assert.Nil(t, store.marker("sub-2", domain.CampaignStudyUpdate))
	assert.NotNil(t, store.marker("sub-3", domain.CampaignStudyUpdate))
}

func TestErrorSampleIsCapped(t *testing.T) {
	store := newMemStore()
	store.settings[domain.CampaignStudyUpdate] = studySettings()
	store.studies = []domain.Study{recruitingStudy("alpha")}
	sender := &memSender{failFor: map[string]error{}}
	for i := 1; i <= 12; i++ {
		sub := studySubscriber(i)
		store.subs = append(store.subs, sub)
		sender.failFor[sub.Email] = errors.New("transient provider fault")
	}
	engine := newTestEngine(store, sender)

	result, err := engine.Run(context.Background(), domain.CampaignStudyUpdate, RunOptions{Trigger: domain.TriggerCron})
	require.NoError(t, err)

	assert.Equal(t, 12, result.Stats.Errors)
	assert.Len(t, result.Errors, domain.MaxReportedErrors)
}

func TestUnconfiguredProviderSkipsWithoutMarker(t *testing.T) {
	store := newMemStore()
	store.settings[domain.CampaignStudyUpdate] = studySettings()
	store.studies = []domain.Study{recruitingStudy("alpha")}
	store.subs = []domain.Subscriber{studySubscriber(1)}
	sender := &memSender{skipAll: true}
	engine := newTestEngine(store, sender)

	result, err := engine.Run(context.Background(), domain.CampaignStudyUpdate, RunOptions{Trigger: domain.TriggerCron})
	require.NoError(t, err)

	assert.Equal(t, 0, result.Stats.Sent)
	assert.Equal(t, 1, result.Stats.Skipped)
	assert.Nil(t, store.marker("sub-1", domain.CampaignStudyUpdate))
}

func TestConcurrentRunRefusedWhileLockHeld(t *testing.T) {
	store := newMemStore()
	store.settings[domain.CampaignStudyUpdate] = studySettings()
	sender := &memSender{}

	lock := &fakeLock{held: true}
	engine := NewEngine(store, store, store, sender, store,
		func(domain.CampaignType) RunLock { return lock },
		"https://kidneyclinicalresearch.ca", "Kidney Clinical Research Unit")
	engine.now = func() time.Time { return fixedNow }

	_, err := engine.Run(context.Background(), domain.CampaignStudyUpdate, RunOptions{Trigger: domain.TriggerCron})
	assert.ErrorIs(t, err, ErrRunInProgress)

	// Once released, the same engine runs normally.
	require.NoError(t, lock.Release(context.Background()))
	_, err = engine.Run(context.Background(), domain.CampaignStudyUpdate, RunOptions{Trigger: domain.TriggerCron})
	assert.NoError(t, err)
	assert.False(t, lock.held)
}

func TestNewsletterWindowSinceLastSend(t *testing.T) {
	store := newMemStore()
	store.settings[domain.CampaignPublicationNewsletter] = newsletterSettings()

	sub := studySubscriber(1)
	lastSent := fixedNow.AddDate(0, 0, -40)
	sub.LastPublicationNewsletterSentAt = &lastSent
	store.subs = []domain.Subscriber{sub}

	inWindow1 := fixedNow.AddDate(0, 0, -10)
	inWindow2 := fixedNow.AddDate(0, 0, -35)
	tooOld := fixedNow.AddDate(0, 0, -60)
	store.pubs = []domain.Publication{
		{ID: "p1", Title: "Outcomes in dialysis cohorts", PublishedAt: &inWindow1, Journal: "Kidney Intl"},
		{ID: "p2", Title: "Transplant biomarker panel", PublishedAt: &inWindow2, Journal: "CJASN"},
		{ID: "p3", Title: "Archive paper", PublishedAt: &tooOld},
	}
	sender := &memSender{}
	engine := newTestEngine(store, sender)

	result, err := engine.Run(context.Background(), domain.CampaignPublicationNewsletter, RunOptions{Trigger: domain.TriggerCron})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Stats.Sent)
	require.Len(t, sender.sent, 1)
	body := sender.sent[0].TextContent
	assert.Contains(t, body, "Outcomes in dialysis cohorts")
	assert.Contains(t, body, "Transplant biomarker panel")
	assert.NotContains(t, body, "Archive paper")

	marker := store.marker("sub-1", domain.CampaignPublicationNewsletter)
	require.NotNil(t, marker)
	assert.True(t, marker.Equal(fixedNow))
}

func TestRunRecordsHistory(t *testing.T) {
	store := newMemStore()
	store.settings[domain.CampaignStudyUpdate] = studySettings()
	store.studies = []domain.Study{recruitingStudy("alpha")}
	store.subs = []domain.Subscriber{studySubscriber(1)}
	sender := &memSender{}
	engine := newTestEngine(store, sender)

	_, err := engine.Run(context.Background(), domain.CampaignStudyUpdate, RunOptions{Trigger: domain.TriggerManual})
	require.NoError(t, err)

	require.Len(t, store.runs, 1)
	assert.Equal(t, domain.CampaignStudyUpdate, store.runs[0].Campaign)
	assert.Equal(t, domain.TriggerManual, store.runs[0].Trigger)
	assert.Equal(t, 1, store.runs[0].Stats.Sent)
}

func TestBroadcastRefusedWithoutAllowlist(t *testing.T) {
	store := newMemStore()
	store.subs = []domain.Subscriber{studySubscriber(1)}
	sender := &memSender{}
	engine := newTestEngine(store, sender)

	in := BroadcastInput{Subject: "Clinic holiday hours", Body: "The unit closes early on July 1."}

	_, err := engine.Broadcast(context.Background(), in)
	assert.ErrorIs(t, err, ErrSendingDisabled)

	// Enabled but empty is just as unsafe.
	store.testMode = &domain.TestModeConfig{Enabled: true}
	_, err = engine.Broadcast(context.Background(), in)
	assert.ErrorIs(t, err, ErrSendingDisabled)

	assert.Empty(t, sender.recipients())
}

func TestBroadcastReachesOnlyAllowlist(t *testing.T) {
	store := newMemStore()
	for i := 1; i <= 4; i++ {
		store.subs = append(store.subs, studySubscriber(i))
	}
	store.testMode = &domain.TestModeConfig{
		Enabled:    true,
		Recipients: []string{"patient3@example.org"},
	}
	sender := &memSender{}
	engine := newTestEngine(store, sender)

	result, err := engine.Broadcast(context.Background(), BroadcastInput{
		Subject: "New parking instructions",
		Body:    "Hello {{name}}, visitor parking moved to lot B.",
	})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Stats.Sent)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "patient3@example.org", sender.sent[0].To)
	assert.Contains(t, sender.sent[0].TextContent, "Hello Patient 3")
	assert.Equal(t, domain.CampaignBroadcast, result.Campaign)
}

func TestScheduledRunRespectsWindows(t *testing.T) {
	store := newMemStore()
	store.settings[domain.CampaignStudyUpdate] = studySettings()
	store.settings[domain.CampaignPublicationNewsletter] = newsletterSettings()
	store.studies = []domain.Study{recruitingStudy("alpha")}
	store.subs = []domain.Subscriber{studySubscriber(1)}
	sender := &memSender{}
	engine := newTestEngine(store, sender)

	// fixedNow is 11:00 UTC = 07:00 EDT on June 16; the study window is
	// open and the newsletter window (17th) is not.
	day16 := 16
	day17 := 17
	schedules := ScheduleSet{
		StudyUpdate: schedule.Window{Timezone: "America/Toronto", TargetDay: &day16, TargetHour: 7, WindowMinutes: 10},
		Newsletter:  schedule.Window{Timezone: "America/Toronto", TargetDay: &day17, TargetHour: 7, WindowMinutes: 10},
	}

	outcomes := engine.RunScheduled(context.Background(), schedules)
	require.Len(t, outcomes, 2)

	assert.True(t, outcomes[0].Ran)
	require.NotNil(t, outcomes[0].Result)
	assert.Equal(t, 1, outcomes[0].Result.Stats.Sent)

	assert.False(t, outcomes[1].Ran)
	assert.Equal(t, "outside send window", outcomes[1].Reason)
}
