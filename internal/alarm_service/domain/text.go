package domain

import "unicode/utf8"

// ShortText cuts s to at most n bytes on a character boundary and marks the
// cut with "...". The result is valid UTF-8 when s is.
func ShortText(s string, n int) string {
	if n < 0 {
		n = 0
	}
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
