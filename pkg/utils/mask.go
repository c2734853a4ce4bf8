package utils

import "regexp"

var dsnPasswordRegex = regexp.MustCompile(`(:)([^:@/]+)(@)`)

// MaskDSN hides the password portion of a connection string.
func MaskDSN(dsn string) string {
	return dsnPasswordRegex.ReplaceAllString(dsn, ":***@")
}

// MaskAddress shortens a wallet address or hash to 0x1234…abcd for logs.
func MaskAddress(addr string) string {
	if len(addr) <= 12 {
		return addr
	}
	return addr[:6] + "..." + addr[len(addr)-4:]
}

// MaskSecret keeps the last four characters of an API key or token.
func MaskSecret(secret string) string {
	if len(secret) <= 4 {
		return "***"
	}
	return "***" + secret[len(secret)-4:]
}
