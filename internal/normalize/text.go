// Package normalize turns scraped free text into canonical values: publication
// dates, organization names, slugs, and deduplicated string lists.
package normalize

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	lower        = cases.Lower(language.Spanish)
	nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)
)

// Fold lower-cases s and strips combining marks, so "Publicación" and
// "publicacion" compare equal.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return lower.String(out)
}

// Slugify renders s as a lowercase ASCII slug joined by dashes.
func Slugify(s string) string {
	return strings.Trim(nonSlugChars.ReplaceAllString(Fold(s), "-"), "-")
}

// CleanText collapses every whitespace run into a single space.
func CleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Dedupe trims and drops empty or repeated entries, keeping first-seen order.
func Dedupe(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = CleanText(item)
		if item == "" {
			continue
		}
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out
}

// SortedSet returns the deduplicated items in lexical order.
func SortedSet(items []string) []string {
	out := Dedupe(items)
	sort.Strings(out)
	return out
}
