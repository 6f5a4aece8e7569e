package feed

import (
	"fmt"
	"strings"
	"unicode"
)

// ConnectorID derives the stable connector identifier from the charger name,
// the connector type and the connector's 1-based ordinal within that type.
// The upstream feed carries no identifier of its own, so the ordinal position
// is the only handle we have; if the upstream reorders connectors of the same
// type the derived IDs silently swap. Known data-quality risk.
func ConnectorID(chargerName, connectorType string, ordinal int) string {
	return fmt.Sprintf("%s-%s-%d", slug(chargerName), slug(connectorType), ordinal)
}

func slug(s string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastDash = false
		case !lastDash:
			b.WriteByte('-')
			lastDash = true
		}
	}
	return strings.TrimRight(b.String(), "-")
}
