package compose

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/proshano/kcru-mailer/internal/domain"
)

// Meta carries the per-run values available as template tokens.
type Meta struct {
	Campaign domain.CampaignType
	// PeriodLabel names the period the email covers ("June 2025" or
	// "May 16 – June 15, 2025" depending on window mode).
	PeriodLabel string
	// SubjectOverride, when non-empty, wins over the settings template.
	SubjectOverride string
	// ManageBaseURL is the site prefix the manage link is built from.
	ManageBaseURL string
	// OrganizationName is the signature fallback.
	OrganizationName string
	Now              time.Time
}

// Composer renders campaign emails. Safe for concurrent use.
type Composer struct {
	engine *TemplateEngine
}

// NewComposer creates a composer with a fresh template engine.
func NewComposer() *Composer {
	return &Composer{engine: NewTemplateEngine()}
}

// Compose builds the full message for one subscriber. Plain text and HTML
// are produced in parallel from the same data; the text body is never a
// tag-stripped derivative of the HTML.
func (c *Composer) Compose(sub *domain.Subscriber, items []domain.ContentItem, settings *domain.CampaignSettings, meta Meta) domain.EmailMessage {
	bindings := map[string]interface{}{
		"month": meta.Now.Format("January 2006"),
		"range": meta.PeriodLabel,
		"count": len(items),
		"name":  sub.DisplayName,
	}

	subject := c.resolveSubject(settings, meta, bindings)
	intro := c.resolveIntro(len(items), settings, meta, bindings)
	outro := ""
	if settings.OutroTemplate != "" {
		outro = c.engine.Render(settings.OutroTemplate, bindings)
	}
	signature := Sanitize(settings.Signature)
	if signature == "" {
		signature = meta.OrganizationName
	}
	manageURL := ManageLink(meta.ManageBaseURL, sub.ManageToken)

	return domain.EmailMessage{
		To:          sub.Email,
		Subject:     subject,
		TextContent: c.renderText(sub, items, intro, outro, signature, manageURL),
		HTMLContent: c.renderHTML(sub, items, intro, outro, signature, manageURL),
	}
}

// ManageLink builds the one-click preferences/unsubscribe URL.
func ManageLink(baseURL, token string) string {
	return strings.TrimRight(baseURL, "/") + "/preferences/" + token
}

func (c *Composer) resolveSubject(settings *domain.CampaignSettings, meta Meta, bindings map[string]interface{}) string {
	if meta.SubjectOverride != "" {
		return Sanitize(meta.SubjectOverride)
	}
	if settings.SubjectTemplate != "" {
		if s := Sanitize(c.engine.Render(settings.SubjectTemplate, bindings)); s != "" {
			return s
		}
	}
	label := "Study update"
	if settings.Campaign == domain.CampaignPublicationNewsletter {
		label = "Publication newsletter"
	}
	return fmt.Sprintf("%s — %s", label, meta.PeriodLabel)
}

// resolveIntro picks between the non-empty and empty intro slots. These
// are two independent templates, not one conditional string: the zero-item
// email has its own editorial voice.
func (c *Composer) resolveIntro(itemCount int, settings *domain.CampaignSettings, meta Meta, bindings map[string]interface{}) string {
	if itemCount > 0 {
		if settings.IntroTemplate != "" {
			return c.engine.Render(settings.IntroTemplate, bindings)
		}
		return fmt.Sprintf("Here is what's new from %s for %s.", meta.OrganizationName, meta.PeriodLabel)
	}
	if settings.EmptyIntroTemplate != "" {
		return c.engine.Render(settings.EmptyIntroTemplate, bindings)
	}
	return "There are no new items this period, but we wanted to stay in touch."
}

func (c *Composer) renderText(sub *domain.Subscriber, items []domain.ContentItem, intro, outro, signature, manageURL string) string {
	var b strings.Builder

	greeting := "Hello"
	if sub.DisplayName != "" {
		greeting = "Hello " + sub.DisplayName
	}
	fmt.Fprintf(&b, "%s,\n\n%s\n\n", greeting, intro)

	for _, item := range items {
		fmt.Fprintf(&b, "- %s\n", item.Title)
		if item.Subtitle != "" {
			fmt.Fprintf(&b, "  %s\n", item.Subtitle)
		}
		if item.URL != "" {
			fmt.Fprintf(&b, "  %s\n", item.URL)
		}
		b.WriteString("\n")
	}

	if outro != "" {
		fmt.Fprintf(&b, "%s\n\n", outro)
	}
	fmt.Fprintf(&b, "%s\n\n", signature)
	fmt.Fprintf(&b, "Manage your email preferences or unsubscribe: %s\n", manageURL)

	return b.String()
}

func (c *Composer) renderHTML(sub *domain.Subscriber, items []domain.ContentItem, intro, outro, signature, manageURL string) string {
	var b strings.Builder

	b.WriteString("<!DOCTYPE html><html><body style=\"font-family:Arial,Helvetica,sans-serif;color:#222;max-width:600px;margin:0 auto;\">")

	greeting := "Hello"
	if sub.DisplayName != "" {
		greeting = "Hello " + html.EscapeString(sub.DisplayName)
	}
	fmt.Fprintf(&b, "<p>%s,</p><p>%s</p>", greeting, html.EscapeString(intro))

	if len(items) > 0 {
		b.WriteString("<ul>")
		for _, item := range items {
			b.WriteString("<li>")
			if item.URL != "" {
				fmt.Fprintf(&b, "<a href=\"%s\">%s</a>", html.EscapeString(item.URL), html.EscapeString(item.Title))
			} else {
				b.WriteString(html.EscapeString(item.Title))
			}
			if item.Subtitle != "" {
				fmt.Fprintf(&b, "<br><small>%s</small>", html.EscapeString(item.Subtitle))
			}
			b.WriteString("</li>")
		}
		b.WriteString("</ul>")
	}

	if outro != "" {
		fmt.Fprintf(&b, "<p>%s</p>", html.EscapeString(outro))
	}
	fmt.Fprintf(&b, "<p>%s</p>", html.EscapeString(signature))
	fmt.Fprintf(&b, "<p style=\"font-size:12px;color:#888;\"><a href=\"%s\">Manage your email preferences or unsubscribe</a></p>", html.EscapeString(manageURL))
	b.WriteString("</body></html>")

	return b.String()
}
