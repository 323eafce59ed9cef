package names

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	Name   string
	Hebrew string
}

func hebrew(r record) string { return r.Hebrew }

var portions = map[string]record{
	"Bereshit":     {Name: "Bereshit", Hebrew: "בְּרֵאשִׁית"},
	"Noach":        {Name: "Noach", Hebrew: "נֹחַ"},
	"Chayei Sarah": {Name: "Chayei Sarah", Hebrew: "חַיֵּי שָׂרָה"},
	"Tazria":       {Name: "Tazria", Hebrew: "תַזְרִיעַ"},
	"Metzora":      {Name: "Metzora", Hebrew: "מְּצֹרָע"},
	"Ki Teitzei":   {Name: "Ki Teitzei", Hebrew: "כִּי־תֵצֵא"},
	"Shemot":       {Name: "Shemot", Hebrew: "שְׁמוֹת"},
	"Shemini":      {Name: "Shemini", Hebrew: "שְּׁמִינִי"},
}

func TestResolveSpellingVariants(t *testing.T) {
	a, ok := Resolve("Chayei Sara", portions, hebrew)
	require.True(t, ok)
	b, ok := Resolve("Chayei Sarah", portions, hebrew)
	require.True(t, ok)
	assert.Equal(t, a, b)
	assert.Equal(t, "Chayei Sarah", a.Name)
}

func TestResolveCombinedPortion(t *testing.T) {
	combined, ok := Resolve("Tazria-Metzora", portions, hebrew)
	require.True(t, ok)
	single, ok := Resolve("Tazria", portions, hebrew)
	require.True(t, ok)
	assert.Equal(t, single, combined)
}

func TestResolveStages(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  string
	}{
		{"exact", "Noach", "Noach"},
		{"prefix and case", "Parashat NOACH", "Noach"},
		{"punctuation and spaces", "Ki-Teitzei", "Ki Teitzei"},
		{"transliteration", "Ki Tetze", "Ki Teitzei"},
		{"transliteration kh", "Noakh", "Noach"},
		{"diacritics", "Bérêshit", "Bereshit"},
		{"reverse hebrew", "נֹחַ", "Noach"},
		{"reverse hebrew with prefix, no niqqud", "פרשת נח", "Noach"},
		{"combined falls back to first part", "Tazria-Unknownpart", "Tazria"},
		{"leading characters", "Shemoth", "Shemot"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Resolve(tt.query, portions, hebrew)
			require.True(t, ok, "query %q", tt.query)
			assert.Equal(t, tt.want, got.Name)
		})
	}
}

func TestResolveNoMatch(t *testing.T) {
	_, ok := Resolve("", portions, hebrew)
	assert.False(t, ok)

	_, ok = Resolve("Zzzz", map[string]record{"Noach": portions["Noach"]}, hebrew)
	assert.False(t, ok)

	_, err := Lookup("Zzzz", map[string]record{"Noach": portions["Noach"]}, nil)
	assert.ErrorIs(t, err, ErrNoMatch)
}

func TestResolveWithoutSecondary(t *testing.T) {
	idx := map[string]int{"Pesach": 1, "Purim": 2}
	v, ok := Resolve("Passover Pesach I", idx, nil)
	require.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestResolveIsDeterministic(t *testing.T) {
	first, _ := Resolve("Shem", portions, hebrew)
	for i := 0; i < 20; i++ {
		got, _ := Resolve("Shem", portions, hebrew)
		assert.Equal(t, first, got)
	}
}

func TestStripPrefixes(t *testing.T) {
	assert.Equal(t, "Noach", StripPrefixes("Parashat Noach"))
	assert.Equal(t, "Noach", StripPrefixes("portion of Noach"))
	assert.Equal(t, "נח", StripPrefixes("פרשת נח"))
	assert.Equal(t, "Pesach I", StripPrefixes("  Pesach I "))
}

func TestNormalizeAndFold(t *testing.T) {
	assert.Equal(t, "chayeisarah", Normalize("Chayei Sarah"))
	assert.Equal(t, Fold(Normalize("Chayei Sara")), Fold(Normalize("Chayei Sarah")))
	assert.Equal(t, "beresit", Fold("beresit"))
	assert.Equal(t, "kiteze", Fold(Normalize("Ki Teitzei")))
}
