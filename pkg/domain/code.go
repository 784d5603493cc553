package domain

import (
	"strings"
)

// Alphabet is the character set codes are drawn from. Visually ambiguous
// characters (0/O, 1/I/L, 8/B) are excluded so codes survive being read
// aloud or retyped from another screen. 29 characters, deliberately not a
// power of two; minting must use rejection sampling to stay unbiased.
const Alphabet = "2345679ACDEFGHJKMNPQRSTUVWXYZ"

// NormalizeCode upper-cases and trims a client-supplied code. Codes are
// case-insensitive on input and stored upper-case.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidCode reports whether a normalized code has the given length and uses
// only Alphabet characters.
func ValidCode(code string, length int) bool {
	if len(code) != length {
		return false
	}
	for i := 0; i < len(code); i++ {
		if !strings.ContainsRune(Alphabet, rune(code[i])) {
			return false
		}
	}
	return true
}
