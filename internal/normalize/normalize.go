// Package normalize holds the canonical forms used for storage and comparisons.
package normalize

import (
	"html"
	"sort"
	"strings"
	"unicode/utf8"
)

// Email returns a normalized form of an email address suitable for
// storage and comparisons. Normalization currently trims surrounding
// whitespace and lower-cases the address.
func Email(e string) string {
	return strings.ToLower(strings.TrimSpace(e))
}

// ID trims an opaque identifier received from a client.
func ID(id string) string {
	return strings.TrimSpace(id)
}

// PairKey returns the order-independent key of a two-user conversation.
// PairKey(a, b) == PairKey(b, a).
func PairKey(a, b string) string {
	ids := []string{ID(a), ID(b)}
	sort.Strings(ids)
	return ids[0] + ":" + ids[1]
}

// MessageText trims the text and escapes HTML so stored messages are
// safe to render. An empty result means the message is blank.
func MessageText(text string) string {
	return html.EscapeString(strings.TrimSpace(text))
}

// Preview shortens text to at most max runes, adding an ellipsis when cut.
func Preview(text string, max int) string {
	if max <= 0 || utf8.RuneCountInString(text) <= max {
		return text
	}
	r := []rune(text)
	return string(r[:max]) + "…"
}
