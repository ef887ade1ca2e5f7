package ir

import (
	"crypto/sha1"
	"encoding/base64"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// isSpace matches the ECMAScript \s class: unicode.IsSpace plus the byte
// order mark, without NEL.
func isSpace(r rune) bool {
	switch r {
	case '\uFEFF':
		return true
	case '\u0085':
		return false
	}
	return unicode.IsSpace(r)
}

func stripSpace(text string) string {
	return strings.Map(func(r rune) rune {
		if isSpace(r) {
			return -1
		}
		return r
	}, text)
}

// Normalize removes every whitespace rune from text. Re-indentation or
// re-serialization by the server must not register as a change. No Unicode
// normalization is applied: composed and decomposed text are different
// JavaScript source.
func Normalize(text string) string {
	return stripSpace(text)
}

// Digest returns the base64 SHA-1 of the normalized text.
// Equal digests are treated as equal source; collisions are not guarded.
func Digest(text string) string {
	sum := sha1.Sum([]byte(Normalize(text)))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// SameSource reports whether two texts fingerprint identically.
func SameSource(a, b string) bool {
	return Digest(a) == Digest(b)
}

// NormalizationOnly reports whether a and b fingerprint differently but
// become equal under Unicode NFC. Such pairs still count as a change; this
// only explains the change to an operator.
func NormalizationOnly(a, b string) bool {
	if SameSource(a, b) {
		return false
	}
	return Normalize(norm.NFC.String(a)) == Normalize(norm.NFC.String(b))
}
