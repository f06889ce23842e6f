package message

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/linjianyan0229/linbot2/pkg/errors"
)

var placeholderPattern = regexp.MustCompile(`\{([a-zA-Z0-9_]+)\}`)

// Template is a message text with {name} placeholders.
type Template struct {
	text string
}

// NewTemplate creates a template from raw text.
func NewTemplate(text string) *Template {
	return &Template{text: text}
}

// Placeholders lists the distinct placeholder names in order of first
// appearance.
func (t *Template) Placeholders() []string {
	seen := make(map[string]bool)
	var names []string
	for _, m := range placeholderPattern.FindAllStringSubmatch(t.text, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return names
}

// Render substitutes every placeholder from values. If any placeholder has
// no value the render fails, naming all unresolved placeholders.
func (t *Template) Render(values map[string]string) (string, error) {
	var missing []string
	out := placeholderPattern.ReplaceAllStringFunc(t.text, func(m string) string {
		name := m[1 : len(m)-1]
		v, ok := values[name]
		if !ok {
			missing = append(missing, name)
			return m
		}
		return v
	})
	if len(missing) > 0 {
		return "", errors.ErrMessageParse(fmt.Sprintf("unresolved placeholders: %s", strings.Join(dedup(missing), ", ")))
	}
	return out, nil
}

func dedup(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
