// internal/workflow/template.go
package workflow

import (
	"regexp"

	"github.com/solatis/formflow/internal/rules"
	"github.com/solatis/formflow/internal/types"
)

var placeholder = regexp.MustCompile(`\{\{(\w+)\}\}`)

// Interpolate replaces {{field}} placeholders with values from values.
// Missing and null fields render as the empty string.
func Interpolate(template string, values types.Values) string {
	if template == "" {
		return ""
	}
	return placeholder.ReplaceAllStringFunc(template, func(m string) string {
		field := placeholder.FindStringSubmatch(m)[1]
		v, ok := values.Lookup(field)
		if !ok || v == nil {
			return ""
		}
		return rules.ToString(v)
	})
}

// Placeholders returns the field ids referenced by template in order of
// first appearance.
func Placeholders(template string) []string {
	var out []string
	seen := map[string]bool{}
	for _, m := range placeholder.FindAllStringSubmatch(template, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			out = append(out, m[1])
		}
	}
	return out
}
