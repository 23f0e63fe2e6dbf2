package match

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// legalSuffixes lists entity suffixes stripped during name normalization.
var legalSuffixes = []string{
	" SL", " S.L.", " S.L",
	" SA", " S.A.", " S.A",
	" SLU", " S.L.U.",
	" SC", " S.C.",
	" CB", " C.B.",
	" RESTAURANTE", " BAR", " SALA",
}

var multiSpaceRe = regexp.MustCompile(`\s{2,}`)

// accentFold decomposes to NFD, drops combining marks and recomposes,
// so "Café Peñón" and "Cafe Penon" normalize identically.
var accentFold = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NormalizeName standardizes a business or lead name for matching by:
//  1. Trimming whitespace
//  2. Folding accents
//  3. Converting to uppercase
//  4. Removing common legal/venue suffixes
//  5. Stripping punctuation
//  6. Collapsing multiple spaces
func NormalizeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}

	if folded, _, err := transform.String(accentFold, name); err == nil {
		name = folded
	}
	name = strings.ToUpper(name)

	for _, suffix := range legalSuffixes {
		if strings.HasSuffix(name, suffix) {
			name = strings.TrimSuffix(name, suffix)
			break
		}
	}

	name = strings.NewReplacer(
		",", "",
		".", "",
		"'", "",
		"\"", "",
		"&", " Y ",
		"-", " ",
		"·", " ",
		"¡", "",
		"!", "",
		"¿", "",
		"?", "",
	).Replace(name)

	name = multiSpaceRe.ReplaceAllString(name, " ")
	return strings.TrimSpace(name)
}
