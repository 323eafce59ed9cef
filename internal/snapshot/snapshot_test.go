package snapshot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shabbatcal/internal/model"
)

var friday = time.Date(2026, time.October, 23, 0, 0, 0, 0, time.UTC)

func on(offset, hour, min int) time.Time {
	return friday.AddDate(0, 0, offset).Add(time.Duration(hour)*time.Hour + time.Duration(min)*time.Minute)
}

func frag(kind model.FragmentKind, t time.Time, title string) model.Fragment {
	return model.Fragment{Date: t, Timed: t.Hour() != 0, Kind: kind, Title: title}
}

func hol(offset int, title string, sub model.Subcategory, major bool) model.Fragment {
	return model.Fragment{Date: friday.AddDate(0, 0, offset), Kind: model.KindHoliday, Subcategory: sub, Title: title, Major: major}
}

func TestParseRegularWeek(t *testing.T) {
	portion := frag(model.KindPortion, on(1, 0, 0), "Parashat Noach")
	portion.LocalizedTitle = "פרשת נח"
	p := model.Payload{
		LocationLabel: "Jerusalem, Israel",
		Fragments: []model.Fragment{
			frag(model.KindStart, on(0, 16, 56), "Candle lighting"),
			portion,
			frag(model.KindEnd, on(1, 18, 10), "Havdalah"),
		},
	}

	snap, rest, err := Parse(p)
	require.NoError(t, err)
	assert.Equal(t, on(0, 16, 56), snap.ObservanceStart)
	assert.Equal(t, on(1, 18, 10), snap.ObservanceEnd)
	assert.Equal(t, "Jerusalem, Israel", snap.LocationLabel)
	assert.Equal(t, "Noach", snap.Name)
	assert.Equal(t, "נח", snap.LocalizedName)
	assert.Equal(t, model.NameFromPortion, snap.NameSource)
	assert.False(t, snap.Estimated)

	require.Len(t, rest, 2)
	for _, f := range rest {
		assert.NotEqual(t, model.KindPortion, f.Kind)
	}
}

func TestParseEndMustFollowStart(t *testing.T) {
	p := model.Payload{Fragments: []model.Fragment{
		frag(model.KindEnd, on(-6, 18, 20), "Havdalah"), // previous cycle
		frag(model.KindStart, on(0, 16, 56), "Candle lighting"),
		frag(model.KindEnd, on(1, 18, 10), "Havdalah"),
	}}
	snap, _, err := Parse(p)
	require.NoError(t, err)
	assert.Equal(t, on(1, 18, 10), snap.ObservanceEnd)
}

func TestParseMissingStart(t *testing.T) {
	p := model.Payload{Fragments: []model.Fragment{
		frag(model.KindEnd, on(1, 18, 10), "Havdalah"),
		hol(1, "Shmini Atzeret", model.SubMajor, true),
	}}
	_, rest, err := Parse(p)
	assert.ErrorIs(t, err, ErrIncompleteSnapshot)
	assert.Len(t, rest, 2, "fragments still flow to windowing")
}

func TestParseMissingEnd(t *testing.T) {
	p := model.Payload{Fragments: []model.Fragment{
		frag(model.KindStart, on(0, 16, 56), "Candle lighting"),
	}}
	_, _, err := Parse(p)
	assert.ErrorIs(t, err, ErrIncompleteSnapshot)
}

func TestParseHolidayNameRanking(t *testing.T) {
	cases := []struct {
		name     string
		holidays []model.Fragment
		want     string
	}{
		{
			name: "primary beats secondary and fast",
			holidays: []model.Fragment{
				hol(0, "Erev Sukkot", model.SubMajor, false),
				hol(0, "Tzom Gedaliah", model.SubFast, false),
				hol(1, "Sukkot I", model.SubMajor, true),
			},
			want: "Sukkot I",
		},
		{
			name: "first primary wins",
			holidays: []model.Fragment{
				hol(0, "Shmini Atzeret", model.SubMajor, true),
				hol(1, "Simchat Torah", model.SubMajor, true),
			},
			want: "Shmini Atzeret",
		},
		{
			name: "secondary beats fast",
			holidays: []model.Fragment{
				hol(1, "Fast of Gedalia", model.SubNone, false),
				hol(1, "Sukkot IV (CH''M)", model.SubMajor, false),
			},
			want: "Sukkot IV (CH''M)",
		},
		{
			name: "fast uses canonical name",
			holidays: []model.Fragment{
				hol(1, "Chanukah: 8 Candles", model.SubMinor, false),
				hol(1, "Fast of Gedalia", model.SubNone, false),
			},
			want: "Tzom Gedaliah",
		},
		{
			name:     "holiday outside the cycle is ignored",
			holidays: []model.Fragment{hol(3, "Sukkot I", model.SubMajor, true)},
			want:     "",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			frags := append([]model.Fragment{
				frag(model.KindStart, on(0, 16, 56), "Candle lighting"),
				frag(model.KindEnd, on(1, 18, 10), "Havdalah"),
			}, tc.holidays...)
			snap, _, err := Parse(model.Payload{Fragments: frags})
			require.NoError(t, err)
			assert.Equal(t, tc.want, snap.Name)
		})
	}
}

func TestParsePortionBeatsHoliday(t *testing.T) {
	frags := []model.Fragment{
		frag(model.KindStart, on(0, 16, 56), "Candle lighting"),
		hol(1, "Rosh Chodesh Cheshvan", model.SubRoshChodesh, false),
		frag(model.KindPortion, on(1, 0, 0), "Portion of Noach"),
		frag(model.KindEnd, on(1, 18, 10), "Havdalah"),
	}
	snap, _, err := Parse(model.Payload{Fragments: frags})
	require.NoError(t, err)
	assert.Equal(t, "Noach", snap.Name)
}
