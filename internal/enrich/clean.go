package enrich

import (
	"regexp"
	"strings"
)

var (
	urlPattern     = regexp.MustCompile(`https?://\S+`)
	mentionPattern = regexp.MustCompile(`@\w+`)
	hashtagPattern = regexp.MustCompile(`#\w+`)
	whitespaceRun  = regexp.MustCompile(`\s+`)
)

// Clean strips URLs, @mentions, and #hashtags and collapses whitespace,
// matching the original enrichment pipeline's text normalization exactly.
func Clean(text string) string {
	text = urlPattern.ReplaceAllString(text, "")
	text = mentionPattern.ReplaceAllString(text, "")
	text = hashtagPattern.ReplaceAllString(text, "")
	text = whitespaceRun.ReplaceAllString(text, " ")

	return strings.TrimSpace(text)
}
