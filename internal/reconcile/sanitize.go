package reconcile

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	scriptBlock = regexp.MustCompile(`(?is)<script[^>]*>.*?</script\s*>`)
	htmlTag     = regexp.MustCompile(`(?s)<[^>]*>`)
	jsScheme    = regexp.MustCompile(`(?i)javascript\s*:`)
	eventAttr   = regexp.MustCompile(`(?i)\bon[a-z]+\s*=`)
	spaces      = regexp.MustCompile(`\s+`)
)

// StripInjection removes script blocks, tags, javascript: schemes and inline
// event handlers, and collapses whitespace. Case and accents are kept.
func StripInjection(s string) string {
	s = scriptBlock.ReplaceAllString(s, " ")
	s = htmlTag.ReplaceAllString(s, " ")
	s = jsScheme.ReplaceAllString(s, "")
	s = eventAttr.ReplaceAllString(s, "")
	return strings.TrimSpace(spaces.ReplaceAllString(s, " "))
}

// FoldAccents strips combining marks so "Pérez" and "Perez" compare equal.
func FoldAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// Key is the comparison form of a field: injection-free, accent-folded,
// lowercase, with single spaces.
func Key(s string) string {
	return strings.ToLower(FoldAccents(StripInjection(s)))
}
