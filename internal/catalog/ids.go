package catalog

import (
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var lower = cases.Lower(language.Und)

// Slug folds accents, lower-cases and hyphenates name ("Chapter 1: Réal" → "chapter-1-real").
func Slug(name string) string {
	fold := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(fold, name)
	if err != nil {
		folded = name
	}
	folded = lower.String(folded)

	var b strings.Builder
	dash := false
	for _, r := range folded {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// NewID derives an id for an admin-created node from its display name and
// the creation time.
func NewID(name string, now time.Time) string {
	slug := Slug(name)
	if slug == "" {
		slug = "item"
	}
	return slug + "-" + strconv.FormatInt(now.UnixMilli(), 36)
}
