package domain

import (
	"regexp"
	"strings"
)

// addressPattern matches long alphanumeric tokens: EVM "0x" + 40 hex and base58 mints alike.
var addressPattern = regexp.MustCompile(`^[A-Za-z0-9]{32,}$`)

// IsAddress reports whether the trimmed identifier looks like an on-chain contract address.
func IsAddress(identifier string) bool {
	return addressPattern.MatchString(strings.TrimSpace(identifier))
}

// CanonicalSymbol returns the uppercase ticker form used to match price updates to holdings.
func CanonicalSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
