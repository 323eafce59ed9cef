package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shabbatcal/internal/model"
)

const weekJSON = `{
  "title": "Hebcal Jerusalem October 2026",
  "location": {"title": "Jerusalem, Israel", "city": "Jerusalem"},
  "items": [
    {"title": "Candle lighting: 17:30", "title_orig": "Candle lighting", "hebrew": "הדלקת נרות",
     "date": "2026-10-23T17:30:00+00:00", "category": "candles", "memo": "Parashat Noach"},
    {"title": "Parashat Noach", "hebrew": "פרשת נח", "date": "2026-10-24", "category": "parashat"},
    {"title": "Havdalah: 18:30", "title_orig": "Havdalah", "hebrew": "הבדלה",
     "date": "2026-10-24T18:30:00+00:00", "category": "havdalah"}
  ]
}`

var jerusalem = model.Coord{Lat: 31.7683, Lon: 35.2137}

func newTestClient(t *testing.T, h http.HandlerFunc, opts Options) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	opts.BaseURL = srv.URL
	opts.RatePerSecond = 1000
	return NewClient(opts)
}

func TestCurrentDecodesJSON(t *testing.T) {
	var gotPath string
	var gotQuery map[string][]string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(weekJSON))
	}, Options{})

	now := time.Date(2026, time.October, 20, 9, 0, 0, 0, time.UTC)
	p, err := c.Current(context.Background(), Query{Date: now, Coord: jerusalem, Location: time.UTC})
	require.NoError(t, err)

	assert.Equal(t, "/shabbat", gotPath)
	assert.Equal(t, []string{"json"}, gotQuery["cfg"])
	assert.Equal(t, []string{"2026"}, gotQuery["gy"])
	assert.Equal(t, []string{"10"}, gotQuery["gm"])
	assert.Equal(t, []string{"20"}, gotQuery["gd"])
	assert.Equal(t, []string{"31.7683"}, gotQuery["latitude"])
	assert.Equal(t, []string{"35.2137"}, gotQuery["longitude"])
	assert.Equal(t, []string{"UTC"}, gotQuery["tzid"])
	assert.Equal(t, []string{"18"}, gotQuery["b"])
	assert.Equal(t, []string{"50"}, gotQuery["m"])

	assert.Equal(t, "Jerusalem, Israel", p.LocationLabel)
	require.Len(t, p.Fragments, 3)

	start := p.Fragments[0]
	assert.Equal(t, model.KindStart, start.Kind)
	assert.True(t, start.Timed)
	assert.Equal(t, "Candle lighting", start.Title)
	assert.True(t, start.Date.Equal(time.Date(2026, time.October, 23, 17, 30, 0, 0, time.UTC)))

	portion := p.Fragments[1]
	assert.Equal(t, model.KindPortion, portion.Kind)
	assert.False(t, portion.Timed)
	assert.Equal(t, "פרשת נח", portion.LocalizedTitle)
	assert.Equal(t, time.Date(2026, time.October, 24, 0, 0, 0, 0, time.UTC), portion.Day())

	assert.Equal(t, model.KindEnd, p.Fragments[2].Kind)
}

func TestRangeSendsWindowParameters(t *testing.T) {
	var gotPath string
	var gotQuery map[string][]string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query()
		_, _ = w.Write([]byte(`{"items": []}`))
	}, Options{Language: "he"})

	start := time.Date(2026, time.October, 20, 0, 0, 0, 0, time.UTC)
	p, err := c.Range(context.Background(), RangeQuery{
		Start: start, End: start.AddDate(0, 0, 7), Coord: jerusalem, Location: time.UTC,
	})
	require.NoError(t, err)
	assert.Empty(t, p.Fragments)

	assert.Equal(t, "/hebcal", gotPath)
	assert.Equal(t, []string{"2026-10-20"}, gotQuery["start"])
	assert.Equal(t, []string{"2026-10-27"}, gotQuery["end"])
	assert.Equal(t, []string{"on"}, gotQuery["maj"])
	assert.Equal(t, []string{"on"}, gotQuery["mf"])
	assert.Equal(t, []string{"he"}, gotQuery["lg"])
}

func TestRangeRejectsInvertedRange(t *testing.T) {
	c := NewClient(Options{BaseURL: "http://127.0.0.1:1"})
	start := time.Date(2026, time.October, 20, 0, 0, 0, 0, time.UTC)
	_, err := c.Range(context.Background(), RangeQuery{Start: start, End: start.AddDate(0, 0, -1)})
	assert.ErrorIs(t, err, ErrFetchFailed)
}

func TestNonOKStatusIsFetchFailure(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}, Options{})

	_, err := c.Current(context.Background(), Query{Date: time.Now(), Coord: jerusalem, Location: time.UTC})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFetchFailed)
	assert.False(t, IsDecodeError(err))
}

func TestUnreachableProviderIsFetchFailure(t *testing.T) {
	c := NewClient(Options{BaseURL: "http://127.0.0.1:1", Timeout: time.Second})
	_, err := c.Current(context.Background(), Query{Date: time.Now(), Coord: jerusalem, Location: time.UTC})
	assert.ErrorIs(t, err, ErrFetchFailed)
}

func TestMalformedBodyIsDecodeFailure(t *testing.T) {
	for name, body := range map[string]string{
		"not json":      "<html>maintenance</html>",
		"missing items": `{"title": "x"}`,
		"wrong shape":   `{"items": {"a": 1}}`,
	} {
		t.Run(name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(body))
			}, Options{})
			_, err := c.Current(context.Background(), Query{Date: time.Now(), Coord: jerusalem, Location: time.UTC})
			assert.ErrorIs(t, err, ErrDecodeFailed)
			assert.True(t, IsDecodeError(err))
		})
	}
}

func TestNotModifiedServesCachedBody(t *testing.T) {
	var hits, conditional atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("If-None-Match") == `"v1"` {
			conditional.Add(1)
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte(weekJSON))
	}, Options{CacheDir: t.TempDir()})

	q := Query{Date: time.Date(2026, time.October, 20, 9, 0, 0, 0, time.UTC), Coord: jerusalem, Location: time.UTC}
	first, err := c.Current(context.Background(), q)
	require.NoError(t, err)
	second, err := c.Current(context.Background(), q)
	require.NoError(t, err)

	assert.Equal(t, int32(2), hits.Load())
	assert.Equal(t, int32(1), conditional.Load())
	assert.Equal(t, first, second)
}

func TestCancelledContextIsFetchFailure(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(weekJSON))
	}, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Current(ctx, Query{Date: time.Now(), Coord: jerusalem, Location: time.UTC})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFetchFailed))
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name   string
		item   wireItem
		kind   model.FragmentKind
		sub    model.Subcategory
		marker model.Marker
		major  bool
	}{
		{"candles", wireItem{Title: "Candle lighting", Date: "2026-10-23T17:30:00Z", Category: "candles"}, model.KindStart, model.SubNone, model.MarkerNone, false},
		{"havdalah", wireItem{Title: "Havdalah", Date: "2026-10-24T18:30:00Z", Category: "havdalah"}, model.KindEnd, model.SubNone, model.MarkerNone, false},
		{"major holiday", wireItem{Title: "Sukkot I", Date: "2026-09-26", Category: "holiday", Subcat: "major", Yomtov: true}, model.KindHoliday, model.SubMajor, model.MarkerNone, true},
		{"fast", wireItem{Title: "Tzom Gedaliah", Date: "2026-09-14", Category: "holiday", Subcat: "fast"}, model.KindHoliday, model.SubFast, model.MarkerNone, false},
		{"fast begins", wireItem{Title: "Fast begins", Date: "2026-09-14T04:21:00Z", Category: "zmanim"}, model.KindTimedMarker, model.SubNone, model.MarkerFastBegin, false},
		{"fast ends", wireItem{Title: "Fast ends", Date: "2026-09-14T16:40:00Z", Category: "zmanim"}, model.KindTimedMarker, model.SubNone, model.MarkerFastEnd, false},
		{"portion", wireItem{Title: "Parashat Noach", Date: "2026-10-24", Category: "Parashat"}, model.KindPortion, model.SubNone, model.MarkerNone, false},
		{"unknown", wireItem{Title: "Omer day", Date: "2026-04-05", Category: "omer"}, model.KindUnknown, model.SubNone, model.MarkerNone, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f, err := classify(tc.item, time.UTC)
			require.NoError(t, err)
			assert.Equal(t, tc.kind, f.Kind)
			assert.Equal(t, tc.sub, f.Subcategory)
			assert.Equal(t, tc.marker, f.Marker)
			assert.Equal(t, tc.major, f.Major)
		})
	}
}

func TestClassifyPrefersOriginalTitle(t *testing.T) {
	f, err := classify(wireItem{Title: "הדלקת נרות", TitleOrig: "Candle lighting", Date: "2026-10-23T17:30:00Z", Category: "candles"}, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, "Candle lighting", f.Title)
}

func TestClassifyAllSkipsBadDates(t *testing.T) {
	frags := classifyAll([]wireItem{
		{Title: "Candle lighting", Date: "Friday evening", Category: "candles"},
		{Title: "Havdalah", Date: "2026-10-24T18:30:00Z", Category: "havdalah"},
	}, time.UTC)
	require.Len(t, frags, 1)
	assert.Equal(t, model.KindEnd, frags[0].Kind)
}

func TestParseDateConvertsToLocation(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	d, timed, err := parseDate("2026-10-23T22:30:00Z", ny)
	require.NoError(t, err)
	assert.True(t, timed)
	assert.Equal(t, 18, d.Hour())
	assert.Equal(t, ny, d.Location())

	d, timed, err = parseDate("2026-10-24", ny)
	require.NoError(t, err)
	assert.False(t, timed)
	assert.Equal(t, time.Date(2026, time.October, 24, 0, 0, 0, 0, ny), d)
}

func TestRedactURLDropsCoordinates(t *testing.T) {
	got := redactURL("https://www.hebcal.com/shabbat?latitude=31.7&longitude=35.2")
	assert.Equal(t, "https://www.hebcal.com/shabbat?...(redacted)", got)
	assert.False(t, strings.Contains(got, "31.7"))
}
