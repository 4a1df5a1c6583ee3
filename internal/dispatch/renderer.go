package dispatch

import (
	"strings"

	"relaypoint/internal/types"
)

// Renderer substitutes %token% placeholders in rule templates using the
// context the trigger's producer built for the event.
//
// Substitution is a single left-to-right pass: substituted values are never
// re-scanned, so a context value containing %tokens% of its own renders
// literally. Tokens without a context entry pass through unchanged and are
// warn-logged — a typo'd template stays visible in the delivered message
// instead of silently vanishing, and the rule author gets a pointer to it.
type Renderer struct{}

// NewRenderer creates a Renderer.
func NewRenderer() *Renderer {
	return &Renderer{}
}

// RenderTemplate renders all three template fields against the context. The
// logger should already carry the rule and event fields so unresolved-token
// warnings identify the template they came from.
func (r *Renderer) RenderTemplate(log types.Logger, tmpl types.RuleTemplate, context map[string]string) types.RuleTemplate {
	return types.RuleTemplate{
		Pretext: r.Render(log, tmpl.Pretext, context),
		Title:   r.Render(log, tmpl.Title, context),
		Body:    r.Render(log, tmpl.Body, context),
	}
}

// Render substitutes %token% placeholders in s. Tokens are runs of letters,
// digits, and underscores between two percent signs.
func (r *Renderer) Render(log types.Logger, s string, context map[string]string) string {
	if !strings.ContainsRune(s, '%') {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))

	i := 0
	for i < len(s) {
		c := s[i]
		if c != '%' {
			b.WriteByte(c)
			i++
			continue
		}

		// Scan for the closing percent of a candidate token.
		j := i + 1
		for j < len(s) && isTokenByte(s[j]) {
			j++
		}
		if j < len(s) && s[j] == '%' && j > i+1 {
			token := s[i+1 : j]
			if value, ok := context[token]; ok {
				b.WriteString(value)
			} else {
				// Unknown token: keep the literal placeholder and tell the
				// rule author about it. Never blocks dispatch.
				log.Warn("template token has no context value", "token", token)
				b.WriteString(s[i : j+1])
			}
			i = j + 1
			continue
		}

		// Not a token (lone %, %%, or unterminated). Keep the percent and
		// move on; the scan resumes at the next character so "100%%50%" can
		// still find a later token.
		b.WriteByte('%')
		i++
	}

	return b.String()
}

func isTokenByte(c byte) bool {
	return c == '_' ||
		(c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9')
}
