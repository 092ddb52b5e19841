package reputation

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// upperConfusables are mapped before lower-casing. Only the upper-case form
// is a confusable: "I" reads as "l", but "i" must stay "i".
var upperConfusables = map[rune]rune{
	'I': 'l',
}

// confusables map digits, symbols, and Cyrillic/Greek homoglyphs onto the
// Latin letter they imitate. Applied after lower-casing.
var confusables = map[rune]rune{
	// digits and symbols
	'0': 'o', '1': 'l', '3': 'e', '5': 's', '6': 'g', '8': 'b',
	'@': 'a', '$': 's', '!': 'i', '¡': 'i', '|': 'l',

	// Cyrillic
	'а': 'a', 'е': 'e', 'о': 'o', 'р': 'p', 'с': 'c', 'х': 'x',
	'у': 'y', 'і': 'i', 'ј': 'j', 'ѕ': 's', 'ԁ': 'd', 'һ': 'h', 'ӏ': 'l',

	// Greek
	'α': 'a', 'β': 'b', 'ε': 'e', 'ι': 'i', 'κ': 'k', 'ν': 'v',
	'ο': 'o', 'ρ': 'p', 'τ': 't', 'υ': 'u', 'χ': 'x',
}

// NormalizeLabel folds a domain label to the plain ASCII form a reader would
// see: NFKD, combining marks dropped, confusables mapped, lower-cased, and
// anything outside [a-z0-9-] removed. NormalizeLabel(NormalizeLabel(x)) ==
// NormalizeLabel(x).
func NormalizeLabel(label string) string {
	decomposed := norm.NFKD.String(label)

	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		if mapped, ok := upperConfusables[r]; ok {
			r = mapped
		}
		r = unicode.ToLower(r)
		if mapped, ok := confusables[r]; ok {
			r = mapped
		}
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// countLetters counts Unicode letters in the raw label, before any
// confusable mapping turns digits into letters.
func countLetters(label string) int {
	n := 0
	for _, r := range label {
		if unicode.IsLetter(r) {
			n++
		}
	}
	return n
}
