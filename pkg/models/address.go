package models

import (
	"regexp"
	"strings"
)

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// NormalizeTokenAddress validates an EVM address (0x + 40 hex chars) and
// returns it lowercased. Addresses are lowercase everywhere past the API
// boundary.
func NormalizeTokenAddress(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if !addressPattern.MatchString(s) {
		return "", false
	}
	return strings.ToLower(s), true
}
