package content

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shabbatcal/internal/names"
)

func TestIndicesLoad(t *testing.T) {
	p, err := Portions()
	require.NoError(t, err)
	assert.Len(t, p, 54)
	assert.Equal(t, "Genesis", p["Noach"].Book)

	h, err := Holidays()
	require.NoError(t, err)
	assert.Equal(t, "fast", h["Tish'a B'Av"].Category)

	// Callers get a copy.
	delete(p, "Noach")
	again, err := Portions()
	require.NoError(t, err)
	assert.Contains(t, again, "Noach")
}

func TestLookupPortion(t *testing.T) {
	cases := map[string]string{
		"Noach":            "Noach",
		"Parashat Noach":   "Noach",
		"Chayei Sarah":     "Chayei Sara",
		"Chayei Sara":      "Chayei Sara",
		"Tazria-Metzora":   "Tazria",
		"Vayakhel-Pekudei": "Vayakhel",
		"Matot-Masei":      "Matot",
		"Behar-Bechukotai": "Behar",
		"Ki Tetze":         "Ki Teitzei",
		"Lech Lecha":       "Lech-Lecha",
		"Beha'aloscha":     "Beha'alotcha",
	}
	for query, want := range cases {
		t.Run(query, func(t *testing.T) {
			got, err := LookupPortion(query)
			require.NoError(t, err)
			assert.Equal(t, want, got.Name)
		})
	}
}

func TestLookupHoliday(t *testing.T) {
	cases := map[string]string{
		"Pesach I":          "Pesach",
		"Rosh Hashana 5787": "Rosh Hashana",
		"Tisha B'Av":        "Tish'a B'Av",
		"Yom Kippur":        "Yom Kippur",
	}
	for query, want := range cases {
		t.Run(query, func(t *testing.T) {
			got, err := LookupHoliday(query)
			require.NoError(t, err)
			assert.Equal(t, want, got.Name)
		})
	}
}

func TestLookupByHebrewName(t *testing.T) {
	got, err := LookupHoliday("שָׁבוּעוֹת")
	require.NoError(t, err)
	assert.Equal(t, "Shavuot", got.Name)

	portion, err := LookupPortion("פרשת נח")
	require.NoError(t, err)
	assert.Equal(t, "Noach", portion.Name)

	portion, err = LookupPortion("Parashat Vezot Haberakhah")
	require.NoError(t, err)
	assert.Equal(t, "Vezot Haberakhah", portion.Name)
}

func TestLookupNoMatch(t *testing.T) {
	_, err := LookupHoliday("Quux Zyzzyva")
	assert.ErrorIs(t, err, names.ErrNoMatch)
}

func TestLookupByIndex(t *testing.T) {
	v, err := Lookup(IndexPortions, "Noach")
	require.NoError(t, err)
	assert.Equal(t, "Noach", v.(Portion).Name)

	v, err = Lookup(IndexHolidays, "Purim")
	require.NoError(t, err)
	assert.Equal(t, "Purim", v.(Holiday).Name)

	_, err = Lookup("recipes", "Noach")
	assert.Error(t, err)
}
