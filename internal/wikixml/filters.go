package wikixml

import (
	"regexp"
	"strings"
	"unicode"
)

const redirectMarker = "#redirect"

// disambigTemplates matches the fixed set of disambiguation template
// markers, tolerating whitespace and template arguments.
var disambigTemplates = regexp.MustCompile(`(?i)\{\{\s*(disambiguation|disambig|dab)\s*[|}]`)

// IsRedirectText reports whether the page body is a redirect: a
// #redirect marker at the start, case-insensitive, leading whitespace
// ignored. The check is bounded and does not copy the body.
func IsRedirectText(text string) bool {
	trimmed := strings.TrimLeftFunc(text, unicode.IsSpace)

	return len(trimmed) >= len(redirectMarker) &&
		strings.EqualFold(trimmed[:len(redirectMarker)], redirectMarker)
}

// IsDisambiguation reports whether the page is a disambiguation page,
// detected by the title substring or a known template marker in the body.
func IsDisambiguation(title, text string) bool {
	if strings.Contains(title, "(disambiguation)") {
		return true
	}

	return disambigTemplates.MatchString(text)
}
