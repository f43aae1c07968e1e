// Package timestamp renders the UTC timestamps persisted inside documents.
package timestamp

import "time"

// Layout is RFC 3339 with microseconds and a literal Z. Attachment pins
// compare these strings verbatim, so every writer must use the same layout.
const Layout = "2006-01-02T15:04:05.000000Z"

// Now returns the current UTC time in the persisted layout.
func Now() string {
	return time.Now().UTC().Format(Layout)
}

// Format renders t in the persisted layout.
func Format(t time.Time) string {
	return t.UTC().Format(Layout)
}
