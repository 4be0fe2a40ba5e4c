// Package template substitutes named placeholders in nested output
// templates with live execution context values.
package template

import "regexp"

// placeholderPattern matches {{name}} tokens inside string leaves.
// Names are dotted identifiers so prior-step results can be referenced
// as {{step.field}}.
var placeholderPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_][a-zA-Z0-9_.-]*)\s*\}\}`)

// Render returns a structurally identical copy of the template with
// every matched placeholder in a string leaf replaced by its context
// value. Placeholders with no context entry are left verbatim so
// configuration gaps stay visible in the output instead of failing the
// run. Non-string leaves (numbers, booleans, nil) pass through
// unchanged. Render is pure: the same template and context always
// produce the same value, and the input is never mutated.
func Render(tmpl any, context map[string]string) any {
	switch v := tmpl.(type) {
	case string:
		return renderString(v, context)
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, value := range v {
			out[key] = Render(value, context)
		}

		return out
	case []any:
		out := make([]any, len(v))
		for i, value := range v {
			out[i] = Render(value, context)
		}

		return out
	default:
		return v
	}
}

func renderString(s string, context map[string]string) string {
	return placeholderPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]

		value, ok := context[name]
		if !ok {
			return match
		}

		return value
	})
}
