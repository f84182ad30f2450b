// Package compose renders the subject, plain-text, and HTML bodies of a
// campaign email from settings-driven templates plus per-subscriber data.
package compose

import (
	"fmt"
	"html"
	"strings"
	"sync"

	"github.com/osteele/liquid"
	"github.com/proshano/kcru-mailer/internal/pkg/logger"
)

// TemplateEngine renders {{token}} templates with caching. Rendering is
// lax: a missing token renders as empty string, never as the literal
// placeholder, and a template that fails to parse falls back to its raw
// text so a bad settings edit degrades the email rather than the run.
type TemplateEngine struct {
	engine *liquid.Engine
	cache  sync.Map // template source -> *liquid.Template
}

// NewTemplateEngine creates an engine with the filters our templates use.
func NewTemplateEngine() *TemplateEngine {
	e := liquid.NewEngine()

	e.RegisterFilter("default", func(value interface{}, fallback string) interface{} {
		if value == nil {
			return fallback
		}
		if s := fmt.Sprintf("%v", value); s == "" || s == "<nil>" {
			return fallback
		}
		return value
	})
	e.RegisterFilter("escape", func(s string) string {
		return html.EscapeString(s)
	})

	return &TemplateEngine{engine: e}
}

// Render substitutes bindings into the template source. Every binding
// value is sanitized (whitespace collapsed, trimmed) before substitution.
func (te *TemplateEngine) Render(source string, bindings map[string]interface{}) string {
	clean := make(map[string]interface{}, len(bindings))
	for k, v := range bindings {
		if s, ok := v.(string); ok {
			clean[k] = Sanitize(s)
		} else {
			clean[k] = v
		}
	}

	tpl, err := te.parse(source)
	if err != nil {
		logger.Warn("template parse failed, using raw text", "error", err.Error())
		return source
	}

	out, err := tpl.RenderString(clean)
	if err != nil {
		logger.Warn("template render failed, using raw text", "error", err.Error())
		return source
	}
	return out
}

func (te *TemplateEngine) parse(source string) (*liquid.Template, error) {
	if cached, ok := te.cache.Load(source); ok {
		return cached.(*liquid.Template), nil
	}
	tpl, err := te.engine.ParseString(source)
	if err != nil {
		return nil, err
	}
	te.cache.Store(source, tpl)
	return tpl, nil
}

// Sanitize collapses internal whitespace runs and trims the ends.
// Template token values come from free-text settings fields and feed
// data; this keeps subjects single-line.
func Sanitize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
