package provider

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "shabbatcal/internal/log"
	"shabbatcal/internal/model"
)

// icsEvent is the normalized representation of one VEVENT before
// recurrence expansion.
type icsEvent struct {
	UID         string
	Summary     string
	Description string
	Categories  string

	Start  time.Time
	End    time.Time
	AllDay bool

	RawRRule   string
	ExDates    []time.Time
	Recurrence *time.Time // RECURRENCE-ID, if present
	IsOverride bool
}

// DecodeICS decodes an iCalendar feed into fragments. Recurring events are
// expanded inside [rangeStart, rangeEnd). VEVENTs that fail to parse are
// logged and skipped.
func DecodeICS(body []byte, loc *time.Location, rangeStart, rangeEnd time.Time) (model.Payload, error) {
	if len(body) == 0 {
		return model.Payload{}, fmt.Errorf("%w: empty ICS body", ErrDecodeFailed)
	}
	loc = locationOrLocal(loc)

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return model.Payload{}, fmt.Errorf("%w: %w", ErrDecodeFailed, err)
	}

	events := make([]icsEvent, 0)
	for _, comp := range cal.Events() {
		ev, perr := parseVEvent(comp, loc)
		if perr != nil {
			appLog.Error("ics vevent parse failed", perr)
			continue
		}
		events = append(events, ev)
	}

	occs := expandOccurrences(events, rangeStart, rangeEnd)
	items := make([]wireItem, 0, len(occs))
	for _, occ := range occs {
		items = append(items, occ.wireItem(loc))
	}

	appLog.Debug("ics decode completed", "event_count", len(events), "occurrence_count", len(occs))
	return model.Payload{Fragments: classifyAll(items, loc)}, nil
}

func parseVEvent(ve *ical.VEvent, loc *time.Location) (icsEvent, error) {
	var out icsEvent

	uidProp := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uidProp == nil || uidProp.Value == "" {
		return out, errors.New("missing UID")
	}
	out.UID = uidProp.Value

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Summary = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		out.Description = p.Value
	}
	if p := ve.GetProperty("CATEGORIES"); p != nil {
		out.Categories = p.Value
	}

	start, err := ve.GetStartAt()
	if err != nil {
		return out, fmt.Errorf("DTSTART: %w", err)
	}
	end, err := ve.GetEndAt()
	if err != nil {
		end = start
	}
	out.Start = start
	out.End = end

	// VALUE=DATE or a value without a time part means all-day.
	if dtStartProp := ve.GetProperty(ical.ComponentPropertyDtStart); dtStartProp != nil {
		if params := dtStartProp.ICalParameters; params != nil {
			if vs, ok := params["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
				out.AllDay = true
			}
		}
		if !strings.Contains(dtStartProp.Value, "T") {
			out.AllDay = true
		}
	}

	// Date-only values parse in time.Local; pin them to the feed's zone.
	if out.AllDay {
		out.Start = rebaseDay(out.Start, loc)
		out.End = rebaseDay(out.End, loc)
	}

	if rruleProp := ve.GetProperty(ical.ComponentPropertyRrule); rruleProp != nil {
		out.RawRRule = rruleProp.Value
	}

	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if t, err := parseICSTime(part, out.Start.Location()); err == nil {
				out.ExDates = append(out.ExDates, t)
			}
		}
	}

	if ridProp := ve.GetProperty("RECURRENCE-ID"); ridProp != nil {
		if t, err := parseICSTime(ridProp.Value, out.Start.Location()); err == nil {
			out.Recurrence = &t
			out.IsOverride = true
		}
	}

	return out, nil
}

func rebaseDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// parseICSTime parses a basic DATE / DATE-TIME / UTC value.
func parseICSTime(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("empty time value")
	}
	if strings.HasSuffix(v, "Z") {
		return time.Parse("20060102T150405Z", v)
	}
	if strings.Contains(v, "T") {
		return time.ParseInLocation("20060102T150405", v, loc)
	}
	return time.ParseInLocation("20060102", v, loc)
}

// wireItem maps an occurrence onto the same wire shape the JSON decoder
// sees, so both formats share one classification step.
func (o icsOccurrence) wireItem(loc *time.Location) wireItem {
	it := wireItem{
		Title:    strings.TrimSpace(o.Event.Summary),
		Category: icsCategory(o.Event.Summary, o.Event.Categories),
		Subcat:   icsSubcategory(o.Event.Summary, o.Event.Categories),
		Yomtov:   hasToken(o.Event.Categories, "yomtov", "yom tov"),
		Memo:     strings.TrimSpace(o.Event.Description),
	}
	if o.Event.AllDay {
		it.Date = o.Start.Format(time.DateOnly)
	} else {
		it.Date = o.Start.In(loc).Format(time.RFC3339)
	}
	return it
}

func icsCategory(summary, categories string) string {
	s := strings.ToLower(strings.TrimSpace(summary))
	switch {
	case strings.HasPrefix(s, "candle lighting"):
		return "candles"
	case strings.HasPrefix(s, "havdalah"):
		return "havdalah"
	case strings.HasPrefix(s, "fast begins"), strings.HasPrefix(s, "fast ends"):
		return "zmanim"
	case strings.HasPrefix(s, "parashat "), hasToken(categories, "parashat"):
		return "parashat"
	case categories == "", hasToken(categories, "holiday"):
		return "holiday"
	default:
		return strings.ToLower(strings.TrimSpace(categories))
	}
}

func icsSubcategory(summary, categories string) string {
	for _, sub := range []string{"major", "minor", "fast", "modern", "roshchodesh"} {
		if hasToken(categories, sub) {
			return sub
		}
	}
	if strings.HasPrefix(strings.ToLower(summary), "rosh chodesh") {
		return "roshchodesh"
	}
	return ""
}

// hasToken reports whether a comma-separated CATEGORIES value contains one
// of tokens, case-insensitively.
func hasToken(categories string, tokens ...string) bool {
	for _, part := range strings.Split(categories, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		for _, tok := range tokens {
			if part == tok {
				return true
			}
		}
	}
	return false
}

func sortOccurrences(occs []icsOccurrence) {
	sort.SliceStable(occs, func(i, j int) bool {
		if !occs[i].Start.Equal(occs[j].Start) {
			return occs[i].Start.Before(occs[j].Start)
		}
		return occs[i].Event.Summary < occs[j].Event.Summary
	})
}
