// Package phone canonicalizes raw phone number strings into 10-digit NANP keys.
package phone

import "strings"

// KeyLength is the length of a valid normalized phone key.
const KeyLength = 10

// Normalize strips every non-digit character from raw and drops a single
// leading country-code "1" when the result has 11 digits. The returned value
// is not validated; callers check IsValid before using it as a lookup key.
func Normalize(raw string) string {
	digits := Digits(raw)
	if len(digits) == KeyLength+1 && digits[0] == '1' {
		return digits[1:]
	}
	return digits
}

// Digits returns raw with every character outside '0'-'9' removed.
func Digits(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for i := 0; i < len(raw); i++ {
		if c := raw[i]; c >= '0' && c <= '9' {
			b.WriteByte(c)
		}
	}
	return b.String()
}

// IsValid reports whether key is exactly 10 ASCII digits.
func IsValid(key string) bool {
	if len(key) != KeyLength {
		return false
	}
	for i := 0; i < len(key); i++ {
		if key[i] < '0' || key[i] > '9' {
			return false
		}
	}
	return true
}

// AreaCode returns the first three digits of a valid key, or "" otherwise.
func AreaCode(key string) string {
	if !IsValid(key) {
		return ""
	}
	return key[:3]
}

// Unique returns the distinct valid keys in first-seen order.
func Unique(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if !IsValid(k) {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
