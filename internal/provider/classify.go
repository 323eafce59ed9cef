package provider

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"shabbatcal/internal/model"
)

// wireItem is one provider record as it appears on the wire. It never leaves
// this package: classify maps it to a model.Fragment.
type wireItem struct {
	Title     string `json:"title"`
	TitleOrig string `json:"title_orig,omitempty"`
	Hebrew    string `json:"hebrew,omitempty"`
	Date      string `json:"date"`
	Category  string `json:"category"`
	Subcat    string `json:"subcat,omitempty"`
	Yomtov    bool   `json:"yomtov,omitempty"`
	Memo      string `json:"memo,omitempty"`
}

var categoryKinds = map[string]model.FragmentKind{
	"candles":  model.KindStart,
	"havdalah": model.KindEnd,
	"holiday":  model.KindHoliday,
	"zmanim":   model.KindTimedMarker,
	"parashat": model.KindPortion,
}

var subcategories = map[string]model.Subcategory{
	"major":       model.SubMajor,
	"minor":       model.SubMinor,
	"fast":        model.SubFast,
	"modern":      model.SubModern,
	"shabbat":     model.SubShabbat,
	"roshchodesh": model.SubRoshChodesh,
}

// classify maps raw category text to the closed fragment taxonomy. Unknown
// categories yield model.KindUnknown rather than an error; only an
// unparseable date is an error.
func classify(it wireItem, loc *time.Location) (model.Fragment, error) {
	date, timed, err := parseDate(it.Date, loc)
	if err != nil {
		return model.Fragment{}, err
	}

	title := strings.TrimSpace(it.Title)
	if it.TitleOrig != "" {
		title = strings.TrimSpace(it.TitleOrig)
	}

	f := model.Fragment{
		Date:           date,
		Timed:          timed,
		Kind:           categoryKinds[strings.ToLower(strings.TrimSpace(it.Category))],
		Subcategory:    subcategories[strings.ToLower(strings.TrimSpace(it.Subcat))],
		Title:          title,
		LocalizedTitle: strings.TrimSpace(it.Hebrew),
		Major:          it.Yomtov,
		Note:           strings.TrimSpace(it.Memo),
	}

	if f.Kind == model.KindTimedMarker {
		lower := strings.ToLower(title)
		switch {
		case strings.HasPrefix(lower, "fast begins"):
			f.Marker = model.MarkerFastBegin
		case strings.HasPrefix(lower, "fast ends"):
			f.Marker = model.MarkerFastEnd
		}
	}
	return f, nil
}

// parseDate accepts a date-only value (local midnight in loc) or an
// RFC 3339 timestamp (converted to loc).
func parseDate(v string, loc *time.Location) (time.Time, bool, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, false, errors.New("empty date")
	}
	if loc == nil {
		loc = time.Local
	}
	if len(v) == len(time.DateOnly) {
		t, err := time.ParseInLocation(time.DateOnly, v, loc)
		if err != nil {
			return time.Time{}, false, fmt.Errorf("date %q: %w", v, err)
		}
		return t, false, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("date %q: %w", v, err)
	}
	return t.In(loc), true, nil
}
