package catalog

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// displayName returns a human readable label. Provider names that arrive as
// slugs ("anna_business-casual") are title cased; names that already carry
// capitalization are kept as-is.
func displayName(name, id string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		name = strings.TrimSpace(id)
	}
	if name == "" {
		return "Unnamed"
	}
	if strings.ToLower(name) != name && !strings.ContainsAny(name, "_") {
		return name
	}
	cleaned := strings.Builder{}
	prevSpace := false
	for _, r := range name {
		switch {
		case unicode.IsLetter(r) || unicode.IsNumber(r) || r == '(' || r == ')':
			cleaned.WriteRune(r)
			prevSpace = false
		case unicode.IsSpace(r) || r == '-' || r == '_' || r == '.':
			if !prevSpace {
				cleaned.WriteRune(' ')
				prevSpace = true
			}
		}
	}
	label := strings.TrimSpace(cleaned.String())
	if label == "" {
		return strings.TrimSpace(id)
	}
	return cases.Title(language.Und).String(label)
}
