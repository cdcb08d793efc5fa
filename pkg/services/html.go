package services

import (
	"html"
	"regexp"
	"strings"
)

var (
	scriptBlockRe = regexp.MustCompile(`(?is)<(script|style|noscript)\b.*?</(script|style|noscript)>`)
	blockEndRe    = regexp.MustCompile(`(?i)</(p|div|li|h[1-6]|tr|br)>|<br\s*/?>`)
	tagRe         = regexp.MustCompile(`(?s)<[^>]*>`)
	whitespaceRe  = regexp.MustCompile(`[ \t]+`)
	blankLinesRe  = regexp.MustCompile(`\n{3,}`)
)

// stripHTML reduces an HTML document to its visible text so the text
// detector sees prose, not markup.
func stripHTML(doc string) string {
	out := scriptBlockRe.ReplaceAllString(doc, " ")
	// Keep block boundaries as line breaks so sentence detection survives.
	out = blockEndRe.ReplaceAllString(out, "\n")
	out = tagRe.ReplaceAllString(out, " ")
	out = html.UnescapeString(out)
	out = whitespaceRe.ReplaceAllString(out, " ")

	lines := strings.Split(out, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	out = strings.Join(lines, "\n")
	out = blankLinesRe.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out)
}
