package shared

import (
	"strings"

	"golang.org/x/text/cases"
)

// NormalizeName folds usernames and role names for case-insensitive uniqueness.
// A Caser is stateful, so one is built per call.
func NormalizeName(name string) string {
	return cases.Fold().String(strings.TrimSpace(name))
}
