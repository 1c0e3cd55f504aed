package render

import (
	"html"
	"strings"
)

// Text substitutes {{var}} placeholders in tmpl with values from vars,
// leaving unknown placeholders untouched. No escaping is applied: callers
// rendering into HTML must use HTML instead.
func Text(tmpl string, vars map[string]string) string {
	return substitute(tmpl, vars, false)
}

// HTML substitutes {{var}} placeholders the same way Text does, but
// HTML-escapes every substituted value so a recipient-controlled field
// (a display name, a comment excerpt) cannot inject markup into an email
// body.
func HTML(tmpl string, vars map[string]string) string {
	return substitute(tmpl, vars, true)
}

func substitute(tmpl string, vars map[string]string, escape bool) string {
	var b strings.Builder
	b.Grow(len(tmpl))

	for {
		start := strings.Index(tmpl, "{{")
		if start == -1 {
			b.WriteString(tmpl)
			break
		}
		end := strings.Index(tmpl[start:], "}}")
		if end == -1 {
			b.WriteString(tmpl)
			break
		}
		end += start

		b.WriteString(tmpl[:start])
		name := strings.TrimSpace(tmpl[start+2 : end])
		if val, ok := vars[name]; ok {
			if escape {
				val = html.EscapeString(val)
			}
			b.WriteString(val)
		} else {
			b.WriteString(tmpl[start : end+2])
		}
		tmpl = tmpl[end+2:]
	}
	return b.String()
}
