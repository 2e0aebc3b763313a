package assets

import (
	"path/filepath"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// maxSlugLen caps the readable part of an asset name.
const maxSlugLen = 48

// removeDiacritics removes diacritical marks from a string (e.g., "Jiří" -> "Jiri").
func removeDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

// slugFilename turns an uploaded filename into a safe, readable slug used as
// the suffix of the stored asset name. Returns "" when nothing usable is left.
func slugFilename(name string) string {
	name = filepath.Base(name)
	name = removeDiacritics(name)
	name = strings.ToLower(name)

	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '-':
			b.WriteRune(r)
		case r == ' ', r == '_':
			b.WriteRune('-')
		}
	}

	slug := strings.Trim(b.String(), "-.")
	if len(slug) > maxSlugLen {
		slug = slug[len(slug)-maxSlugLen:]
	}
	return slug
}
