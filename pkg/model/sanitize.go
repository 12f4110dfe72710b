package model

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MaxNameLength is the cap for entity/property/relationship identifiers.
const MaxNameLength = 128

// stripDiacritics decomposes accented characters and removes the combining
// marks, so "Señal" sanitizes to "Senal" instead of "Se_al".
var stripDiacritics = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// SanitizeName derives a Fabric identifier matching
// ^[A-Za-z][A-Za-z0-9_]{0,127}$ from an arbitrary source name.
func SanitizeName(raw string) string {
	return sanitize(raw, MaxNameLength)
}

// SanitizeWithLimit is SanitizeName with a caller-supplied length cap
// (the API display-name rule caps at 90).
func SanitizeWithLimit(raw string, maxLen int) string {
	return sanitize(raw, maxLen)
}

func sanitize(raw string, maxLen int) string {
	if folded, _, err := transform.String(stripDiacritics, raw); err == nil {
		raw = folded
	}

	var b strings.Builder
	for _, r := range raw {
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '_':
			b.WriteByte('_')
		case r == ' ', r == '-', r == '.', r == ':', r == '/', r == '#', r == ';':
			b.WriteByte('_')
		default:
			// Everything else is dropped rather than replaced, to avoid
			// runs of underscores from multi-byte punctuation.
		}
	}
	s := b.String()
	s = strings.Trim(s, "_")
	for strings.Contains(s, "__") {
		s = strings.ReplaceAll(s, "__", "_")
	}
	if s == "" {
		s = "Unnamed"
	}
	if !unicode.IsLetter(rune(s[0])) || s[0] >= 0x80 {
		s = "T_" + s
	}
	if len(s) > maxLen {
		s = s[:maxLen]
		s = strings.TrimRight(s, "_")
	}
	return s
}

// LocalName extracts the fragment or last path segment of a URI, the raw
// material for SanitizeName.
func LocalName(uri string) string {
	if i := strings.LastIndexByte(uri, '#'); i >= 0 && i+1 < len(uri) {
		return uri[i+1:]
	}
	trimmed := strings.TrimRight(uri, "/")
	if i := strings.LastIndexByte(trimmed, '/'); i >= 0 {
		return trimmed[i+1:]
	}
	if i := strings.LastIndexByte(trimmed, ':'); i >= 0 {
		return trimmed[i+1:]
	}
	return trimmed
}
