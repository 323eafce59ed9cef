package provider

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shabbatcal/internal/model"
)

var weekICS = strings.ReplaceAll(`BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//shabbatcal//test//EN
BEGIN:VEVENT
UID:havdalah-20261024
DTSTAMP:20261001T000000Z
DTSTART:20261024T183000Z
DTEND:20261024T183000Z
SUMMARY:Havdalah (50 min)
CATEGORIES:Holiday
END:VEVENT
BEGIN:VEVENT
UID:candles-20261023
DTSTAMP:20261001T000000Z
DTSTART:20261023T173000Z
DTEND:20261023T173000Z
SUMMARY:Candle lighting
CATEGORIES:Holiday
END:VEVENT
BEGIN:VEVENT
UID:parashat-20261024
DTSTAMP:20261001T000000Z
DTSTART;VALUE=DATE:20261024
DTEND;VALUE=DATE:20261025
SUMMARY:Parashat Noach
CATEGORIES:Parashat
END:VEVENT
BEGIN:VEVENT
UID:shiur-weekly
DTSTAMP:20261001T000000Z
DTSTART:20261016T060000Z
DTEND:20261016T070000Z
RRULE:FREQ=WEEKLY;COUNT=4
EXDATE:20261030T060000Z
SUMMARY:Weekly shiur
CATEGORIES:Other
END:VEVENT
BEGIN:VEVENT
DTSTAMP:20261001T000000Z
DTSTART:20261022T120000Z
SUMMARY:No UID
END:VEVENT
END:VCALENDAR
`, "\n", "\r\n")

func TestDecodeICSClassifiesAndExpands(t *testing.T) {
	from := time.Date(2026, time.October, 18, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, time.October, 26, 0, 0, 0, 0, time.UTC)

	p, err := DecodeICS([]byte(weekICS), time.UTC, from, to)
	require.NoError(t, err)
	require.Len(t, p.Fragments, 4)

	shiur := p.Fragments[0]
	assert.Equal(t, model.KindUnknown, shiur.Kind)
	assert.True(t, shiur.Date.Equal(time.Date(2026, time.October, 23, 6, 0, 0, 0, time.UTC)))

	assert.Equal(t, model.KindStart, p.Fragments[1].Kind)
	assert.True(t, p.Fragments[1].Timed)

	portion := p.Fragments[2]
	assert.Equal(t, model.KindPortion, portion.Kind)
	assert.False(t, portion.Timed)
	assert.Equal(t, "Parashat Noach", portion.Title)
	assert.Equal(t, time.Date(2026, time.October, 24, 0, 0, 0, 0, time.UTC), portion.Day())

	assert.Equal(t, model.KindEnd, p.Fragments[3].Kind)
}

func TestDecodeICSExdateRemovesOccurrence(t *testing.T) {
	from := time.Date(2026, time.October, 29, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, time.November, 1, 0, 0, 0, 0, time.UTC)

	p, err := DecodeICS([]byte(weekICS), time.UTC, from, to)
	require.NoError(t, err)
	assert.Empty(t, p.Fragments)
}

func TestDecodeICSRejectsGarbage(t *testing.T) {
	_, err := DecodeICS(nil, time.UTC, time.Now(), time.Now())
	assert.ErrorIs(t, err, ErrDecodeFailed)
}

func TestRangeICSFormat(t *testing.T) {
	var gotCfg string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotCfg = r.URL.Query().Get("cfg")
		w.Header().Set("Content-Type", "text/calendar")
		_, _ = w.Write([]byte(weekICS))
	}, Options{Format: FormatICS})

	now := time.Date(2026, time.October, 20, 9, 0, 0, 0, time.UTC)
	p, err := c.Current(context.Background(), Query{Date: now, Coord: jerusalem, Location: time.UTC})
	require.NoError(t, err)
	assert.Equal(t, "ics", gotCfg)

	kinds := make([]model.FragmentKind, 0, len(p.Fragments))
	for _, f := range p.Fragments {
		kinds = append(kinds, f.Kind)
	}
	assert.Contains(t, kinds, model.KindStart)
	assert.Contains(t, kinds, model.KindEnd)
	assert.Contains(t, kinds, model.KindPortion)
}

func TestICSCategory(t *testing.T) {
	cases := map[string]struct {
		summary, categories, want string
	}{
		"candles":       {"Candle lighting", "Holiday", "candles"},
		"havdalah":      {"Havdalah (50 min)", "Holiday", "havdalah"},
		"fast begins":   {"Fast begins", "Holiday", "zmanim"},
		"portion":       {"Parashat Bereshit", "", "parashat"},
		"holiday":       {"Sukkot I", "Holiday", "holiday"},
		"uncategorized": {"Chanukah: 1 Candle", "", "holiday"},
		"other":         {"Weekly shiur", "Other", "other"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, icsCategory(tc.summary, tc.categories))
		})
	}
	assert.Equal(t, "major", icsSubcategory("Sukkot I", "Holiday,Major"))
	assert.Equal(t, "roshchodesh", icsSubcategory("Rosh Chodesh Cheshvan", "Holiday"))
}
