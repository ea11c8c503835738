package textutil

import (
	"regexp"
	"strings"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

// NormalizeName folds case and collapses runs of whitespace to a single
// space, so names typed by humans compare equal to names the portals render.
func NormalizeName(name string) string {
	name = strings.ToLower(name)
	name = strings.TrimSpace(name)
	name = whitespaceRegex.ReplaceAllString(name, " ")
	return name
}
