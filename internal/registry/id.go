package registry

import (
	"regexp"
	"strings"
)

var (
	idStripRe    = regexp.MustCompile(`[^A-Za-z0-9\s_-]`)
	idCollapseRe = regexp.MustCompile(`[\s_-]+`)
)

// GenerateID derives a feature identifier from a title: lowercase,
// punctuation stripped, runs of whitespace/underscore/hyphen collapsed to
// a single hyphen, trimmed, and truncated to 50 code points.
// The function is idempotent: GenerateID(GenerateID(x)) == GenerateID(x).
func GenerateID(title string) string {
	id := strings.ToLower(title)
	id = idStripRe.ReplaceAllString(id, "")
	id = idCollapseRe.ReplaceAllString(id, "-")
	id = strings.Trim(id, "-")

	runes := []rune(id)
	if len(runes) > 50 {
		id = strings.Trim(string(runes[:50]), "-")
	}
	return id
}
