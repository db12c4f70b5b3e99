package extract

import (
	"strings"
	"unicode"
)

const fence = "```"

// Sanitize removes a markdown code fence wrapped around model output.
//
// Only an opening fence at the very start (with an optional language tag such
// as "json") and a closing fence at the very end are removed, together with
// surrounding whitespace. Everything between them is returned untouched; no
// attempt is made to repair the JSON itself.
func Sanitize(raw string) string {
	s := strings.TrimSpace(raw)
	if rest, ok := strings.CutPrefix(s, fence); ok {
		s = stripLanguageTag(rest)
	}
	if rest, ok := strings.CutSuffix(s, fence); ok {
		s = rest
	}
	return strings.TrimSpace(s)
}

func stripLanguageTag(s string) string {
	if end := strings.IndexFunc(s, unicode.IsSpace); end > 0 && isLanguageTag(s[:end]) {
		return s[end:]
	}
	if len(s) >= 4 && strings.EqualFold(s[:4], "json") {
		return s[4:]
	}
	return s
}

func isLanguageTag(tag string) bool {
	for i, r := range tag {
		switch {
		case r < unicode.MaxASCII && unicode.IsLetter(r):
		case i > 0 && (unicode.IsDigit(r) || r == '_' || r == '-' || r == '+'):
		default:
			return false
		}
	}
	return tag != ""
}
