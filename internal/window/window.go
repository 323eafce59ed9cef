// Package window assembles classified Events from fragments spread over
// several days and truncates them to a visibility horizon.
package window

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"shabbatcal/internal/estimate"
	appLog "shabbatcal/internal/log"
	"shabbatcal/internal/model"
)

// DefaultHorizonDays is the number of days after the reference date that
// Events remain visible.
const DefaultHorizonDays = 7

// endLookaheadDays bounds the forward scan for a multi-day observance end.
const endLookaheadDays = 3

// fastBeginNextDayHour is the hour at or after which a fast-begin marker may
// belong to the following day's fast.
const fastBeginNextDayHour = 12

const defaultFastName = "Fast"

var eventNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("shabbatcal/events"))

// dayIndex holds the per-day lookups built by the index pass. Keys are
// model.DateKey values.
type dayIndex struct {
	starts     map[string]time.Time
	ends       map[string]time.Time
	fastBegins map[string]time.Time
	fastEnds   map[string]time.Time
	fastNames  map[string]string
	majorDays  map[string]bool
}

type eventKey struct {
	kind model.EventKind
	name string
	day  string
}

// builder accumulates events in creation order and remembers which slots
// hold placeholders.
type builder struct {
	idx    dayIndex
	events []model.Event
	slots  map[eventKey]int
	ref    time.Time
}

// Build produces the deduplicated Event list for frags, restricted to
// [referenceDate, referenceDate+horizonDays] by calendar day and sorted by
// date. Unrecognized fragments are logged and skipped; Build never fails.
// It is deterministic: the same input always yields the same output.
func Build(frags []model.Fragment, referenceDate time.Time, horizonDays int) []model.Event {
	if horizonDays < 0 {
		horizonDays = DefaultHorizonDays
	}
	ref := model.DayOf(referenceDate)

	b := &builder{
		idx:   index(frags),
		slots: make(map[eventKey]int),
		ref:   ref,
	}

	for _, f := range frags {
		switch f.Kind {
		case model.KindHoliday:
			b.holiday(f)
		case model.KindTimedMarker:
			b.marker(f)
		case model.KindStart, model.KindEnd, model.KindPortion:
			// Indexed only.
		default:
			appLog.Debug("window: skipping unrecognized fragment", "kind", f.Kind.String(), "title", f.Title)
		}
	}

	last := ref.AddDate(0, 0, horizonDays)
	out := make([]model.Event, 0, len(b.events))
	for _, ev := range b.events {
		if ev.Date.Before(ref) || ev.Date.After(last) {
			continue
		}
		out = append(out, ev)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.Before(out[j].Date)
	})
	return out
}

func index(frags []model.Fragment) dayIndex {
	idx := dayIndex{
		starts:     make(map[string]time.Time),
		ends:       make(map[string]time.Time),
		fastBegins: make(map[string]time.Time),
		fastEnds:   make(map[string]time.Time),
		fastNames:  make(map[string]string),
		majorDays:  make(map[string]bool),
	}
	var begins []time.Time
	for _, f := range frags {
		day := model.DateKey(f.Day())
		switch f.Kind {
		case model.KindStart:
			keepEarliest(idx.starts, day, f.Date)
		case model.KindEnd:
			keepEarliest(idx.ends, day, f.Date)
		case model.KindTimedMarker:
			switch f.Marker {
			case model.MarkerFastBegin:
				begins = append(begins, f.Date)
			case model.MarkerFastEnd:
				keepEarliest(idx.fastEnds, day, f.Date)
			}
		case model.KindHoliday:
			if IsFast(f) {
				if _, ok := idx.fastNames[day]; !ok {
					idx.fastNames[day] = FastName(f.Title)
				}
			} else if IsMajor(f) {
				idx.majorDays[day] = true
			}
		}
	}
	// Begin markers need the holiday days above to pick their day.
	for _, t := range begins {
		keepEarliest(idx.fastBegins, model.DateKey(idx.fastBeginDay(t)), t)
	}
	return idx
}

// fastBeginDay attributes a fast-begin marker to a day. An afternoon or
// evening marker moves to the next day only when that day holds a fast or
// major holiday and the marker's own day holds no fast.
func (idx dayIndex) fastBeginDay(t time.Time) time.Time {
	day := model.DayOf(t)
	if t.Hour() < fastBeginNextDayHour {
		return day
	}
	if _, ok := idx.fastNames[model.DateKey(day)]; ok {
		return day
	}
	next := day.AddDate(0, 0, 1)
	nk := model.DateKey(next)
	if _, ok := idx.fastNames[nk]; ok || idx.majorDays[nk] {
		return next
	}
	return day
}

func keepEarliest(m map[string]time.Time, day string, t time.Time) {
	if cur, ok := m[day]; !ok || t.Before(cur) {
		m[day] = t
	}
}

func (b *builder) holiday(f model.Fragment) {
	switch {
	case IsFast(f):
		b.fast(f.Day(), f.LocalizedTitle, f.Note)
	case IsSecondary(f):
		b.major(f, true)
	case IsMajor(f):
		b.major(f, false)
	default:
		appLog.Debug("window: holiday is neither major nor fast", "title", f.Title)
	}
}

func (b *builder) marker(f model.Fragment) {
	var day time.Time
	switch f.Marker {
	case model.MarkerFastBegin:
		day = b.idx.fastBeginDay(f.Date)
	case model.MarkerFastEnd:
		day = f.Day()
	default:
		appLog.Debug("window: skipping unrecognized timed marker", "title", f.Title)
		return
	}
	// A major holiday that happens to carry fast markers is not a fast event.
	if b.idx.majorDays[model.DateKey(day)] {
		return
	}
	b.fast(day, "", "")
}

// major emits or replaces a Major Event keyed by (logical name, day). A
// primary replaces a placeholder; nothing replaces a primary. An eve is
// keyed under the following day, where its evening belongs.
func (b *builder) major(f model.Fragment, secondary bool) {
	day := f.Day()
	keyDay := day
	if secondary && isEve(f.Title) {
		keyDay = day.AddDate(0, 0, 1)
	}
	key := eventKey{kind: model.EventMajor, name: LogicalName(f.Title), day: model.DateKey(keyDay)}

	if i, ok := b.slots[key]; ok {
		if secondary || !b.events[i].Secondary {
			return
		}
		b.events[i] = b.newMajor(f, day, key, false)
		return
	}
	b.slots[key] = len(b.events)
	b.events = append(b.events, b.newMajor(f, day, key, secondary))
}

func (b *builder) newMajor(f model.Fragment, day time.Time, key eventKey, secondary bool) model.Event {
	ev := model.Event{
		ID:            eventID(key),
		Name:          f.Title,
		LocalizedName: f.LocalizedTitle,
		Kind:          model.EventMajor,
		Date:          day,
		ReferenceDate: b.ref,
		Note:          f.Note,
		Secondary:     secondary,
	}
	if t, ok := b.startFor(day); ok {
		ev.Start = &t
	}
	if t, ok := b.endFor(day); ok {
		ev.End = &t
	}
	return ev
}

// fast emits at most one Fast Event per day.
func (b *builder) fast(day time.Time, localized, note string) {
	dk := model.DateKey(day)
	name, ok := b.idx.fastNames[dk]
	if !ok {
		name = defaultFastName
	}
	key := eventKey{kind: model.EventFast, day: dk}
	if i, ok := b.slots[key]; ok {
		if b.events[i].LocalizedName == "" {
			b.events[i].LocalizedName = localized
		}
		if b.events[i].Note == "" {
			b.events[i].Note = note
		}
		return
	}

	ev := model.Event{
		ID:            eventID(eventKey{kind: model.EventFast, name: name, day: dk}),
		Name:          name,
		LocalizedName: localized,
		Kind:          model.EventFast,
		Date:          day,
		ReferenceDate: b.ref,
		Note:          note,
	}
	if t, ok := b.idx.fastBegins[dk]; ok {
		ev.FastStart = &t
	}
	end := b.fastEndFor(day)
	ev.FastEnd = &end

	b.slots[key] = len(b.events)
	b.events = append(b.events, ev)
}

// startFor prefers the previous evening's boundary start, since a dated
// holiday begins the night before.
func (b *builder) startFor(day time.Time) (time.Time, bool) {
	if t, ok := b.idx.starts[model.DateKey(day.AddDate(0, 0, -1))]; ok {
		return t, true
	}
	t, ok := b.idx.starts[model.DateKey(day)]
	return t, ok
}

func (b *builder) endFor(day time.Time) (time.Time, bool) {
	for i := 0; i <= endLookaheadDays; i++ {
		if t, ok := b.idx.ends[model.DateKey(day.AddDate(0, 0, i))]; ok {
			return t, true
		}
	}
	return time.Time{}, false
}

func (b *builder) fastEndFor(day time.Time) time.Time {
	dk := model.DateKey(day)
	if t, ok := b.idx.fastEnds[dk]; ok {
		return t
	}
	if t, ok := b.idx.starts[dk]; ok {
		return t
	}
	return estimate.Nightfall(day)
}

func eventID(k eventKey) string {
	return uuid.NewSHA1(eventNamespace, []byte(k.kind.String()+"|"+k.name+"|"+k.day)).String()
}
