package names

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// localizedPrefixes are stripped before a title is used as a name. Longer
// prefixes come first so "Parashat " wins over "Parsha ".
var localizedPrefixes = []string{
	"Portion of ",
	"Reading of ",
	"Parashat ",
	"Parashas ",
	"Parshat ",
	"Parshas ",
	"Parasha ",
	"Parsha ",
	"פרשת ",
	"פָּרָשַׁת ",
}

// StripPrefixes removes one known localized prefix ("Parashat ", "פרשת ",
// "Portion of " ...) from a display title, case-insensitively.
func StripPrefixes(title string) string {
	s := strings.TrimSpace(title)
	lower := strings.ToLower(s)
	for _, p := range localizedPrefixes {
		if strings.HasPrefix(lower, strings.ToLower(p)) {
			return strings.TrimSpace(s[len(p):])
		}
	}
	return s
}

// stripMarks decomposes, drops nonspacing marks (Latin diacritics, Hebrew
// niqqud and cantillation) and recomposes.
func stripMarks(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// Normalize produces the lookup form of a name: prefixes stripped,
// diacritics removed, lowercased, and punctuation and whitespace dropped.
func Normalize(s string) string {
	s = stripMarks(StripPrefixes(s))
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// foldPairs collapse spelling variants of one sound. Order matters: digraphs
// are rewritten before the single letters they contain.
var foldPairs = []struct{ from, to string }{
	{"kh", "h"},
	{"ch", "h"},
	{"tz", "z"},
	{"ts", "z"},
	{"ph", "f"},
	{"ck", "k"},
	{"ee", "i"},
	{"ei", "e"},
	{"ey", "e"},
	{"ai", "a"},
	{"ay", "a"},
	{"oo", "u"},
	{"c", "k"},
	{"q", "k"},
	{"w", "v"},
	{"y", "i"},
}

// Fold applies transliteration folding to an already normalized string.
// Doubled letters collapse and a trailing "h" after a vowel is dropped, so
// "chayeisarah" and "chayeisara" fold to the same value.
func Fold(s string) string {
	for _, p := range foldPairs {
		s = strings.ReplaceAll(s, p.from, p.to)
	}
	var b strings.Builder
	b.Grow(len(s))
	var prev rune
	for i, r := range s {
		if i > 0 && r == prev {
			continue
		}
		b.WriteRune(r)
		prev = r
	}
	out := b.String()
	if n := len(out); n > 2 && out[n-1] == 'h' && strings.ContainsRune("aeiou", rune(out[n-2])) {
		out = out[:n-1]
	}
	return out
}
