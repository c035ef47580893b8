package session

import "strings"

// NormalizePhone strips everything but ASCII digits.
func NormalizePhone(phone string) string {
	var b strings.Builder
	b.Grow(len(phone))
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// identityPhone extracts the phone part of a network identity like "15551234567:12@host".
func identityPhone(identity string) string {
	if i := strings.IndexAny(identity, ":@"); i >= 0 {
		identity = identity[:i]
	}
	return identity
}
