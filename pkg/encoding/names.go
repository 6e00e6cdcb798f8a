// Package encoding provides text normalization for names and paths stored in asset metadata.
package encoding

import (
	"path"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// NormalizeName returns s as valid, NFC-normalized UTF-8 with surrounding whitespace and
// NUL padding removed. Invalid byte sequences are replaced with U+FFFD.
func NormalizeName(s string) string {
	s = strings.TrimRight(s, "\x00")
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "\uFFFD")
	}
	return norm.NFC.String(strings.TrimSpace(s))
}

// NormalizePath converts a source path into the provenance form recorded in metadata:
// forward slashes, cleaned, NFC-normalized. Case is preserved.
func NormalizePath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	if p == "" {
		return ""
	}
	return NormalizeName(path.Clean(p))
}

// NameOr returns NormalizeName(s), or fallback when the normalized name is empty.
func NameOr(s, fallback string) string {
	if n := NormalizeName(s); n != "" {
		return n
	}
	return fallback
}
