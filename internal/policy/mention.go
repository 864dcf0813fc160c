package policy

import (
	"strings"

	"siftgram/internal/platform"
)

// Mentions reports whether text addresses self: "@username" anywhere in
// the text, or the full first+last name, both case-insensitive. Empty or
// whitespace-only text never mentions anyone.
func Mentions(text string, self platform.Entity) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}

	lower := strings.ToLower(text)
	if u := strings.ToLower(strings.TrimSpace(self.Username)); u != "" {
		if strings.Contains(lower, "@"+u) {
			return true
		}
	}

	name := strings.TrimSpace(strings.TrimSpace(self.FirstName) + " " + strings.TrimSpace(self.LastName))
	if name == "" {
		return false
	}
	return strings.Contains(lower, strings.ToLower(name))
}
