// Package sanitize cleans post text before it is stored or sent to a model.
package sanitize

import (
	"html"
	"regexp"
	"strings"
)

var (
	// scriptTagRegex matches <script>...</script> and <style>...</style> blocks
	scriptTagRegex = regexp.MustCompile(`(?is)<(script|style)\b[^>]*>.*?</(script|style)>`)

	// htmlTagRegex matches any remaining HTML tag
	htmlTagRegex = regexp.MustCompile(`(?s)<[^<>]+>`)

	// blankLinesRegex matches runs of three or more newlines
	blankLinesRegex = regexp.MustCompile(`\n{3,}`)

	// spaceRunRegex matches runs of horizontal whitespace
	spaceRunRegex = regexp.MustCompile(`[ \t\f\v]+`)
)

// removedMarkers are bodies Reddit returns for removed or deleted posts.
var removedMarkers = map[string]struct{}{
	"[removed]": {},
	"[deleted]": {},
}

// StripHTML removes script and style blocks and all HTML tags from text.
func StripHTML(text string) string {
	text = scriptTagRegex.ReplaceAllString(text, "")
	return htmlTagRegex.ReplaceAllString(text, "")
}

// IsRemoved checks if the text is a removed or deleted placeholder.
func IsRemoved(text string) bool {
	_, ok := removedMarkers[strings.ToLower(strings.TrimSpace(text))]
	return ok
}

// Clean performs full cleaning on post text.
// This is the main function to use before storing any post content.
func Clean(text string) string {
	if IsRemoved(text) {
		return ""
	}
	// Tags first, so escaped markup such as "&lt;b&gt;" survives as text.
	text = StripHTML(text)
	text = html.UnescapeString(text)
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = spaceRunRegex.ReplaceAllString(text, " ")
	text = blankLinesRegex.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// Truncate cuts text to at most n runes.
func Truncate(text string, n int) string {
	if n <= 0 {
		return text
	}
	r := []rune(text)
	if len(r) <= n {
		return text
	}
	return string(r[:n])
}
