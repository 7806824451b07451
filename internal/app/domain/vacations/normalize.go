package vacations

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize lowercases and strips diacritics so a search for "pediatrie"
// matches a post titled "Pédiatrie". Specialty and city names in French are
// full of accents and nobody types them consistently.
func Normalize(s string) string {
	chain := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(chain, s)
	if err != nil {
		return strings.ToLower(s)
	}
	return strings.ToLower(out)
}

// searchText builds the denormalized haystack stored alongside each vacation.
func searchText(title, specialty, location, description string) string {
	return Normalize(strings.Join([]string{title, specialty, location, description}, " "))
}
