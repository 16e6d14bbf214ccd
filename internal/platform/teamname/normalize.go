// Package teamname canonicalizes club names so the odds and statistics
// providers can be compared. Output is for comparison only, never display.
package teamname

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// clubPrefixes are stripped only when the lower-cased name starts with them.
var clubPrefixes = []string{
	"sk ", "fc ", "sc ", "cf ", "ac ", "as ", "rc ", "fk ", "if ", "bk ",
	"1. ", "1 ", "2. ", "3. ", "cd ", "ud ", "sd ", "fc. ", "sc. ",
	"royale ", "royal ", "r. ", "r ", "h. ", "h ", "v. ", "v ", "vs ", "vs. ",
	"the ", "of ", "de ", "la ", "le ", "los ", "las ", "el ", "der ", "die ", "das ",
	"afc ", "cfc ", "dfc ", "sfc ", "pfc ", "kfc ", "bfc ", "vfc ", "tsv ", "fsv ",
	"vv ", "vv. ", "vvv ", "vvv-", "vvv. ",
}

var diacriticFolder = strings.NewReplacer(
	"ø", "o", "æ", "ae", "å", "aa",
	"ö", "o", "ü", "u", "ä", "a", "ß", "ss",
	"ñ", "n", "ç", "c",
	"é", "e", "è", "e", "ê", "e", "ë", "e",
	"à", "a", "á", "a", "â", "a", "ã", "a",
	"í", "i", "î", "i", "ï", "i",
	"ó", "o", "ô", "o", "õ", "o",
	"ú", "u", "û", "u",
	"ý", "y",
)

// Normalize lower-cases name, strips club prefixes, folds diacritics and
// drops everything that is not a letter or digit. Normalize is idempotent.
//
// The name is composed (NFC) before the diacritic table so composed and
// decomposed spellings fold alike. The table runs again after the NFD strip
// because letters such as ǿ only expose a table entry (ø) once their mark
// is removed.
func Normalize(name string) string {
	s := strings.TrimSpace(strings.ToLower(name))
	if s == "" {
		return ""
	}

	s = stripPrefixes(s)
	s = diacriticFolder.Replace(norm.NFC.String(s))

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range norm.NFD.String(s) {
		switch {
		case unicode.Is(unicode.Mn, r):
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return diacriticFolder.Replace(b.String())
}

func stripPrefixes(s string) string {
	for {
		stripped := false
		for _, prefix := range clubPrefixes {
			if len(s) > len(prefix) && strings.HasPrefix(s, prefix) {
				s = strings.TrimSpace(s[len(prefix):])
				stripped = true
			}
		}
		if !stripped {
			return s
		}
	}
}

// Variants normalizes every alias and returns the distinct non-empty forms
// in first-seen order.
func Variants(names ...string) []string {
	out := make([]string, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		n := Normalize(name)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

// Agree reports whether two normalized names refer to the same club:
// equal, or one containing the other when both have at least three runes.
func Agree(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	if a == b {
		return true
	}
	if len([]rune(a)) < 3 || len([]rune(b)) < 3 {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}

// AgreesWithAny reports whether name agrees with any of the variants.
func AgreesWithAny(name string, variants []string) bool {
	for _, v := range variants {
		if Agree(name, v) {
			return true
		}
	}
	return false
}
