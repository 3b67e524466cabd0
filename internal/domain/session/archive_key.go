package session

import (
	"strings"
	"time"
)

// archiveTimeLayout is ISO-8601 in UTC with ':' as '-', 'T' as '--' and no
// fractional seconds, so keys are path-safe and sort by time.
const archiveTimeLayout = "2006-01-02--15-04-05"

// ArchiveKey derives the label under which a session's logs are archived.
func ArchiveKey(name string, closedAt time.Time) string {
	return SanitizeName(name) + "/" + closedAt.UTC().Format(archiveTimeLayout)
}

// SanitizeName strips every character outside [A-Za-z0-9]. A name with no
// such characters becomes "unknown".
func SanitizeName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "unknown"
	}
	return b.String()
}
