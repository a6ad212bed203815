// Package identity normalizes raw contact input (phone numbers, JIDs) into
// canonical provider JIDs and classifies JID kinds.
package identity

import (
	"fmt"
	"strings"

	"gitlab.com/timkado/api/daisi-wa-dispatch-service/internal/apperrors"
)

const (
	// UserSuffix is the provider suffix for individual user JIDs.
	UserSuffix = "@s.whatsapp.net"
	// GroupSuffix marks group JIDs.
	GroupSuffix = "@g.us"
	// BroadcastSuffix marks broadcast-list JIDs.
	BroadcastSuffix = "@broadcast"
	// NewsletterSuffix marks channel/newsletter JIDs.
	NewsletterSuffix = "@newsletter"

	// StatusBroadcastJID is the provider's status pseudo-recipient.
	StatusBroadcastJID = "status@broadcast"

	minDigits = 8
	// Numbers at or below this length are treated as national and get the
	// country hint prepended.
	maxNationalDigits = 9
)

// Kind classifies a normalized JID.
type Kind string

const (
	KindUser       Kind = "individual"
	KindGroup      Kind = "group"
	KindBroadcast  Kind = "broadcast"
	KindNewsletter Kind = "channel"
)

// Normalize converts raw contact input into a canonical user JID.
// Inputs that already carry a provider suffix pass through unchanged, so
// Normalize(Normalize(x)) == Normalize(x). defaultCountry is the dialing
// code (digits, no "+") prepended to short national numbers.
func Normalize(raw, defaultCountry string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", apperrors.NewInvalidIdentity(raw, "empty input")
	}
	if strings.ContainsRune(trimmed, '@') {
		if hasProviderSuffix(trimmed) {
			return trimmed, nil
		}
		return "", apperrors.NewInvalidIdentity(raw, "unrecognized provider suffix")
	}

	var b strings.Builder
	for _, r := range trimmed {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	digits = strings.TrimPrefix(digits, "00")

	if defaultCountry != "" &&
		!strings.HasPrefix(digits, defaultCountry) &&
		len(digits) <= maxNationalDigits {
		digits = defaultCountry + digits
	}

	if len(digits) < minDigits {
		return "", apperrors.NewInvalidIdentity(raw, fmt.Sprintf("only %d digits after normalization", len(digits)))
	}

	return digits + UserSuffix, nil
}

func hasProviderSuffix(jid string) bool {
	return strings.HasSuffix(jid, UserSuffix) ||
		strings.HasSuffix(jid, GroupSuffix) ||
		strings.HasSuffix(jid, BroadcastSuffix) ||
		strings.HasSuffix(jid, NewsletterSuffix)
}

// Classify reports the kind of a JID based on its provider suffix.
func Classify(jid string) Kind {
	switch {
	case strings.HasSuffix(jid, GroupSuffix):
		return KindGroup
	case jid == StatusBroadcastJID || strings.HasSuffix(jid, BroadcastSuffix):
		return KindBroadcast
	case strings.HasSuffix(jid, NewsletterSuffix):
		return KindNewsletter
	default:
		return KindUser
	}
}

// IsIndividual reports whether a JID addresses a single user. Group,
// broadcast and newsletter recipients are excluded from automated replies
// and bulk sends.
func IsIndividual(jid string) bool {
	return Classify(jid) == KindUser
}

// BareNumber strips the provider suffix from a user JID, returning the
// phone digits. Non-user JIDs are returned unchanged.
func BareNumber(jid string) string {
	return strings.TrimSuffix(jid, UserSuffix)
}
