package login

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeUsername folds a username into the form used for derived ids:
// NFKC-normalized, lower case, trimmed, with runs of whitespace collapsed to
// a single space.
func NormalizeUsername(username string) string {
	folded := strings.ToLower(norm.NFKC.String(username))
	return strings.Join(strings.Fields(folded), " ")
}
