// Package identity normalizes the keys used to detect duplicate clients,
// lands and lots.
package identity

import (
	"regexp"
	"strings"
)

var (
	multiSpaceRegex = regexp.MustCompile(`\s+`)
	lotPrefixRegex  = regexp.MustCompile(`^(block|blk|lot|lt|b|l)\.?\s*`)
)

// NormalizeEmail lowercases and trims an address. Client emails are unique
// in this form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizeName collapses whitespace in a person or land name.
func NormalizeName(name string) string {
	return multiSpaceRegex.ReplaceAllString(strings.TrimSpace(name), " ")
}

// LotKey identifies a lot within its land. "Blk 03" / "Lot 7" and "3" / "7"
// give the same key.
func LotKey(block, lot string) string {
	return normalizeLotPart(block) + "/" + normalizeLotPart(lot)
}

func normalizeLotPart(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = lotPrefixRegex.ReplaceAllString(s, "")
	s = strings.TrimLeft(s, "0")
	if s == "" {
		return "0"
	}
	return s
}
