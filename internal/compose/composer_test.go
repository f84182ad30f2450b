package compose

import (
	"strings"
	"testing"
	"time"

	"github.com/proshano/kcru-mailer/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMeta() Meta {
	return Meta{
		Campaign:         domain.CampaignPublicationNewsletter,
		PeriodLabel:      "June 2025",
		ManageBaseURL:    "https://kcru.example.org",
		OrganizationName: "Kidney Clinical Research Unit",
		Now:              time.Date(2025, time.June, 15, 12, 0, 0, 0, time.UTC),
	}
}

func testSettings() *domain.CampaignSettings {
	return &domain.CampaignSettings{
		Campaign:           domain.CampaignPublicationNewsletter,
		SubjectTemplate:    "New publications for {{month}} ({{count}})",
		IntroTemplate:      "We published {{count}} new papers.",
		EmptyIntroTemplate: "No new papers this time.",
		WindowMode:         domain.WindowRollingDays,
		WindowDays:         30,
		MaxItems:           8,
	}
}

func testSubscriber() *domain.Subscriber {
	return &domain.Subscriber{
		Email:       "pat@example.org",
		DisplayName: "Pat",
		ManageToken: "tok-123",
	}
}

func oneItem() []domain.ContentItem {
	return []domain.ContentItem{{
		Title:    "CKD Progression Study",
		Subtitle: "Doe J, et al. — Kidney Intl",
		URL:      "https://doi.org/10.0/example",
		Date:     time.Now(),
	}}
}

func TestComposeSubjectFromTemplate(t *testing.T) {
	msg := NewComposer().Compose(testSubscriber(), oneItem(), testSettings(), testMeta())
	assert.Equal(t, "New publications for June 2025 (1)", msg.Subject)
}

func TestComposeSubjectOverrideWins(t *testing.T) {
	meta := testMeta()
	meta.SubjectOverride = "  Special   issue  "
	msg := NewComposer().Compose(testSubscriber(), oneItem(), testSettings(), meta)
	assert.Equal(t, "Special issue", msg.Subject, "override is sanitized and wins")
}

func TestComposeSubjectFallback(t *testing.T) {
	settings := testSettings()
	settings.SubjectTemplate = ""
	msg := NewComposer().Compose(testSubscriber(), oneItem(), settings, testMeta())
	assert.Equal(t, "Publication newsletter — June 2025", msg.Subject)
}

func TestComposeUnknownTokenRendersEmpty(t *testing.T) {
	settings := testSettings()
	settings.SubjectTemplate = "Update{{nonsense}} for {{month}}"
	msg := NewComposer().Compose(testSubscriber(), oneItem(), settings, testMeta())
	assert.Equal(t, "Update for June 2025", msg.Subject)
	assert.NotContains(t, msg.Subject, "{{")
}

func TestComposeIntroSlots(t *testing.T) {
	c := NewComposer()

	withItems := c.Compose(testSubscriber(), oneItem(), testSettings(), testMeta())
	assert.Contains(t, withItems.TextContent, "We published 1 new papers.")

	empty := c.Compose(testSubscriber(), nil, testSettings(), testMeta())
	assert.Contains(t, empty.TextContent, "No new papers this time.")
	assert.NotContains(t, empty.TextContent, "We published")
}

func TestComposeManageLinkInBothBodies(t *testing.T) {
	msg := NewComposer().Compose(testSubscriber(), oneItem(), testSettings(), testMeta())

	want := "https://kcru.example.org/preferences/tok-123"
	assert.Contains(t, msg.TextContent, want)
	assert.Contains(t, msg.HTMLContent, want)
}

func TestComposeSignatureFallback(t *testing.T) {
	msg := NewComposer().Compose(testSubscriber(), oneItem(), testSettings(), testMeta())
	assert.Contains(t, msg.TextContent, "Kidney Clinical Research Unit")

	settings := testSettings()
	settings.Signature = "The KCRU Team"
	msg = NewComposer().Compose(testSubscriber(), oneItem(), settings, testMeta())
	assert.Contains(t, msg.TextContent, "The KCRU Team")
}

func TestComposeBodiesAreIndependentlyComplete(t *testing.T) {
	msg := NewComposer().Compose(testSubscriber(), oneItem(), testSettings(), testMeta())

	for _, body := range []string{msg.TextContent, msg.HTMLContent} {
		assert.Contains(t, body, "CKD Progression Study")
		assert.Contains(t, body, "https://doi.org/10.0/example")
	}
	assert.False(t, strings.Contains(msg.TextContent, "<li>"), "text body carries no markup")
	assert.Contains(t, msg.HTMLContent, "<ul>")
}

func TestComposeHTMLEscapesContent(t *testing.T) {
	items := []domain.ContentItem{{Title: "A <b>bold</b> claim", URL: "https://example.org/x"}}
	msg := NewComposer().Compose(testSubscriber(), items, testSettings(), testMeta())

	assert.Contains(t, msg.HTMLContent, "A &lt;b&gt;bold&lt;/b&gt; claim")
	assert.Contains(t, msg.TextContent, "A <b>bold</b> claim")
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "a b c", Sanitize("  a\n\tb   c "))
	assert.Equal(t, "", Sanitize("   "))
}

func TestTemplateEngineBadTemplateFallsBack(t *testing.T) {
	e := NewTemplateEngine()
	out := e.Render("{% broken", map[string]interface{}{})
	require.Equal(t, "{% broken", out)
}
