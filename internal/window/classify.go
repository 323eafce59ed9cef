package window

import (
	"strings"

	"shabbatcal/internal/model"
	"shabbatcal/internal/names"
)

// canonicalFasts maps normalized keyword fragments to the display name used
// for the fast. Order matters: the first matching entry wins.
var canonicalFasts = []struct {
	keys []string
	name string
}{
	{[]string{"gedaliah", "gedalia"}, "Tzom Gedaliah"},
	{[]string{"asarabtevet", "asarabteves", "tenthoftevet"}, "Asara B'Tevet"},
	{[]string{"taanitesther", "fastofesther"}, "Ta'anit Esther"},
	{[]string{"bechorot", "bekhorot", "firstborn"}, "Ta'anit Bechorot"},
	{[]string{"tzomtammuz", "tzomtamuz", "17tammuz", "17oftammuz", "shivaasarbtammuz"}, "Tzom Tammuz"},
	{[]string{"tishabav", "tishaabav", "9av", "ninthofav"}, "Tish'a B'Av"},
}

// fastKeywords are generic normalized markers of a fast day.
var fastKeywords = []string{"tzom", "taanit", "fast"}

var evePrefixes = []string{"erev "}

var intermediateMarkers = []string{"ch''m", "ch\"m", "chol hamoed", "chol ha-moed", "hoshana raba"}

var romanNumerals = map[string]bool{
	"i": true, "ii": true, "iii": true, "iv": true,
	"v": true, "vi": true, "vii": true, "viii": true,
}

// IsFast reports whether a holiday fragment is a fast day, by subcategory or
// keyword. Eves are never fasts.
func IsFast(f model.Fragment) bool {
	if f.Kind != model.KindHoliday || f.Subcategory == model.SubRoshChodesh || isEve(f.Title) {
		return false
	}
	if f.Subcategory == model.SubFast {
		return true
	}
	n := names.Normalize(f.Title)
	for _, kw := range fastKeywords {
		if strings.Contains(n, kw) {
			return true
		}
	}
	for _, cf := range canonicalFasts {
		for _, k := range cf.keys {
			if strings.Contains(n, k) {
				return true
			}
		}
	}
	return false
}

// IsSecondary reports whether a holiday fragment is the eve or an
// intermediate day of a major holiday.
func IsSecondary(f model.Fragment) bool {
	if f.Kind != model.KindHoliday {
		return false
	}
	switch f.Subcategory {
	case model.SubMinor, model.SubModern, model.SubFast, model.SubRoshChodesh:
		return false
	}
	return isEve(f.Title) || isIntermediate(f.Title)
}

// IsMajor reports whether a holiday fragment is a primary major observance.
func IsMajor(f model.Fragment) bool {
	if f.Kind != model.KindHoliday || IsSecondary(f) || IsFast(f) {
		return false
	}
	return f.Major || f.Subcategory == model.SubMajor
}

// LogicalName reduces a holiday title to the holiday it belongs to, so that
// "Erev Pesach", "Pesach I" and "Pesach III (CH''M)" all yield "Pesach".
func LogicalName(title string) string {
	s := strings.TrimSpace(title)
	lower := strings.ToLower(s)
	for _, p := range evePrefixes {
		if strings.HasPrefix(lower, p) {
			s = strings.TrimSpace(s[len(p):])
			break
		}
	}
	if i := strings.IndexAny(s, "(:"); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}

	fields := strings.Fields(s)
	for len(fields) > 1 {
		last := strings.ToLower(fields[len(fields)-1])
		if !romanNumerals[last] && !isDigits(last) {
			break
		}
		fields = fields[:len(fields)-1]
	}
	return strings.Join(fields, " ")
}

// FastName returns the canonical display name for a fast title.
func FastName(title string) string {
	n := names.Normalize(title)
	for _, cf := range canonicalFasts {
		for _, k := range cf.keys {
			if strings.Contains(n, k) {
				return cf.name
			}
		}
	}
	return strings.TrimSpace(names.StripPrefixes(title))
}

func isEve(title string) bool {
	lower := strings.ToLower(strings.TrimSpace(title))
	for _, p := range evePrefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return false
}

func isIntermediate(title string) bool {
	lower := strings.ToLower(title)
	for _, m := range intermediateMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
