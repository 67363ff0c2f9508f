package runtime

import "strings"

// normalizeIdentifier keeps digits and a single leading plus sign.
// "+1 (555) 123-4567" becomes "+15551234567". A plus that appears after the
// first digit is dropped. Returns "" when no digit is present.
func normalizeIdentifier(s string) string {
	var b strings.Builder
	seenDigit := false
	plus := false
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			seenDigit = true
			b.WriteRune(r)
		case r == '+' && !seenDigit && !plus:
			plus = true
		}
	}
	if !seenDigit {
		return ""
	}
	if plus {
		return "+" + b.String()
	}
	return b.String()
}

// digitsOnly strips everything except ASCII digits.
func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// containsAny reports whether the lower-cased text contains one of the phrases.
// Apostrophes are dropped so "that's" and "thats" match alike.
func containsAny(text string, phrases ...string) bool {
	t := strings.ReplaceAll(strings.ToLower(text), "'", "")
	for _, p := range phrases {
		if strings.Contains(t, strings.ReplaceAll(p, "'", "")) {
			return true
		}
	}
	return false
}
