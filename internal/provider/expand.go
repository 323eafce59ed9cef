package provider

import (
	"errors"
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	appLog "shabbatcal/internal/log"
)

const maxOccurrencesPerEvent = 500

// icsOccurrence is one concrete instance of an icsEvent.
type icsOccurrence struct {
	Event icsEvent
	Start time.Time
}

// expandOccurrences expands events into occurrences inside
// [rangeStart, rangeEnd), applying EXDATE and RECURRENCE-ID overrides.
// The result is sorted by start time.
func expandOccurrences(events []icsEvent, rangeStart, rangeEnd time.Time) []icsOccurrence {
	baseByUID := make(map[string][]icsEvent)
	overridesByUID := make(map[string][]icsEvent)
	for _, ev := range events {
		if ev.IsOverride && ev.Recurrence != nil {
			overridesByUID[ev.UID] = append(overridesByUID[ev.UID], ev)
		} else {
			baseByUID[ev.UID] = append(baseByUID[ev.UID], ev)
		}
	}

	uids := make([]string, 0, len(baseByUID))
	for uid := range baseByUID {
		uids = append(uids, uid)
	}
	sort.Strings(uids)

	out := make([]icsOccurrence, 0)
	for _, uid := range uids {
		for _, ev := range baseByUID[uid] {
			if ev.RawRRule == "" {
				if inRange(ev.Start, rangeStart, rangeEnd) {
					out = append(out, applyOverride(ev, overridesByUID[uid], ev.Start))
				}
				continue
			}
			out = append(out, expandRecurring(ev, overridesByUID[uid], rangeStart, rangeEnd)...)
		}
	}

	sortOccurrences(out)
	return out
}

func expandRecurring(ev icsEvent, overrides []icsEvent, rangeStart, rangeEnd time.Time) []icsOccurrence {
	r, err := rrule.StrToRRule(ev.RawRRule)
	if err != nil {
		appLog.Error("ics: failed to parse RRULE", err, "uid", ev.UID, "rrule", ev.RawRRule)
		return nil
	}
	r.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	// Between is inclusive; the end of the range is exclusive here.
	times := set.Between(rangeStart.In(ev.Start.Location()), rangeEnd.In(ev.Start.Location()), true)
	if len(times) > maxOccurrencesPerEvent {
		appLog.Error("ics: truncated occurrences for UID due to cap",
			errors.New("max occurrences reached"),
			"uid", ev.UID,
			"cap", maxOccurrencesPerEvent,
		)
		times = times[:maxOccurrencesPerEvent]
	}

	out := make([]icsOccurrence, 0, len(times))
	for _, t := range times {
		if !t.Before(rangeEnd) {
			continue
		}
		out = append(out, applyOverride(ev, overrides, t))
	}
	return out
}

// applyOverride returns the occurrence at start, replaced by an override
// whose RECURRENCE-ID matches it exactly.
func applyOverride(ev icsEvent, overrides []icsEvent, start time.Time) icsOccurrence {
	for _, ov := range overrides {
		if ov.Recurrence != nil && ov.Recurrence.Equal(start) {
			return icsOccurrence{Event: ov, Start: ov.Start}
		}
	}
	return icsOccurrence{Event: ev, Start: start}
}

func inRange(t, start, end time.Time) bool {
	return !t.Before(start) && t.Before(end)
}
