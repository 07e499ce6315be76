package shared

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var lowerCaser = cases.Lower(language.Und)

// persianFold maps Arabic letter variants and Eastern digits to a canonical form.
func persianFold(r rune) rune {
	switch {
	case r == 'ي' || r == 'ى':
		return 'ی'
	case r == 'ك':
		return 'ک'
	case r == 'ة':
		return 'ه'
	case r >= '۰' && r <= '۹':
		return '0' + (r - '۰')
	case r >= '٠' && r <= '٩':
		return '0' + (r - '٠')
	case r == '‌' || r == '‏' || r == '‎':
		return ' '
	}
	return r
}

// NormalizeText canonicalises names and identifiers typed in mixed Persian,
// Arabic and Latin keyboards so lookups match regardless of input method.
func NormalizeText(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), runes.Map(persianFold), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	out = lowerCaser.String(out)
	return strings.Join(strings.Fields(out), " ")
}

// NormalizeDigits converts Eastern Arabic and Persian digits to ASCII and strips separators.
func NormalizeDigits(s string) string {
	out, _, err := transform.String(runes.Map(persianFold), s)
	if err != nil {
		out = s
	}
	return strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' || r == ',' {
			return -1
		}
		return r
	}, out)
}
