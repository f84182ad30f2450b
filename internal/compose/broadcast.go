package compose

import (
	"fmt"
	"html"
	"strings"

	"github.com/proshano/kcru-mailer/internal/domain"
)

// ComposeBroadcast builds a one-off announcement for one subscriber. The
// subject and body come straight from the operator; only the {{name}}
// token is bound, and the manage-link footer is appended the same way as
// for recurring campaigns.
func (c *Composer) ComposeBroadcast(sub *domain.Subscriber, subject, body string, meta Meta) domain.EmailMessage {
	bindings := map[string]interface{}{
		"name": sub.DisplayName,
	}

	renderedSubject := Sanitize(c.engine.Render(subject, bindings))
	renderedBody := strings.TrimSpace(c.engine.Render(body, bindings))
	signature := meta.OrganizationName
	manageURL := ManageLink(meta.ManageBaseURL, sub.ManageToken)

	var text strings.Builder
	fmt.Fprintf(&text, "%s\n\n%s\n\n", renderedBody, signature)
	fmt.Fprintf(&text, "Manage your email preferences or unsubscribe: %s\n", manageURL)

	var htm strings.Builder
	htm.WriteString("<!DOCTYPE html><html><body style=\"font-family:Arial,Helvetica,sans-serif;color:#222;max-width:600px;margin:0 auto;\">")
	for _, para := range strings.Split(renderedBody, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		fmt.Fprintf(&htm, "<p>%s</p>", html.EscapeString(para))
	}
	fmt.Fprintf(&htm, "<p>%s</p>", html.EscapeString(signature))
	fmt.Fprintf(&htm, "<p style=\"font-size:12px;color:#888;\"><a href=\"%s\">Manage your email preferences or unsubscribe</a></p>", html.EscapeString(manageURL))
	htm.WriteString("</body></html>")

	return domain.EmailMessage{
		To:          sub.Email,
		Subject:     renderedSubject,
		TextContent: text.String(),
		HTMLContent: htm.String(),
	}
}
