// Package snapshot extracts the current observance boundaries and the
// period's published name from a decoded provider payload.
package snapshot

import (
	"errors"
	"fmt"
	"strings"

	"shabbatcal/internal/model"
	"shabbatcal/internal/names"
	"shabbatcal/internal/window"
)

// ErrIncompleteSnapshot reports a payload without a boundary start or a
// boundary end for the primary cycle.
var ErrIncompleteSnapshot = errors.New("snapshot: incomplete")

// Holiday name ranks; lower wins.
const (
	rankPrimary = iota
	rankSecondary
	rankFast
	rankOther
)

// Parse returns the primary cycle's Snapshot and the fragments left for
// windowing. When a boundary is missing it returns ErrIncompleteSnapshot
// together with the remaining fragments, so events can still be built.
func Parse(p model.Payload) (model.Snapshot, []model.Fragment, error) {
	remaining := make([]model.Fragment, 0, len(p.Fragments))
	for _, f := range p.Fragments {
		if f.Kind != model.KindPortion {
			remaining = append(remaining, f)
		}
	}

	snap := model.Snapshot{LocationLabel: p.LocationLabel}

	start, ok := firstOf(p.Fragments, func(f model.Fragment) bool {
		return f.Kind == model.KindStart
	})
	if !ok {
		return snap, remaining, fmt.Errorf("%w: no boundary start", ErrIncompleteSnapshot)
	}
	end, ok := firstOf(p.Fragments, func(f model.Fragment) bool {
		return f.Kind == model.KindEnd && !f.Date.Before(start.Date)
	})
	if !ok {
		return snap, remaining, fmt.Errorf("%w: no boundary end after %s", ErrIncompleteSnapshot, start.Date.Format("2006-01-02 15:04"))
	}

	snap.ObservanceStart = start.Date
	snap.ObservanceEnd = end.Date
	snap.Name, snap.LocalizedName, snap.NameSource = periodName(p.Fragments, start, end)
	return snap, remaining, nil
}

func firstOf(frags []model.Fragment, match func(model.Fragment) bool) (model.Fragment, bool) {
	for _, f := range frags {
		if match(f) {
			return f, true
		}
	}
	return model.Fragment{}, false
}

// periodName picks the weekly portion inside the cycle, or else the highest
// ranked holiday inside it. Ties go to the first fragment in provider order.
func periodName(frags []model.Fragment, start, end model.Fragment) (string, string, model.NameSource) {
	first, last := start.Day(), end.Day()
	inCycle := func(f model.Fragment) bool {
		d := f.Day()
		return !d.Before(first) && !d.After(last)
	}

	if portion, ok := firstOf(frags, func(f model.Fragment) bool {
		return f.Kind == model.KindPortion && inCycle(f)
	}); ok {
		return cleanTitle(portion.Title), cleanTitle(portion.LocalizedTitle), model.NameFromPortion
	}

	best, bestRank := model.Fragment{}, -1
	for _, f := range frags {
		if f.Kind != model.KindHoliday || !inCycle(f) {
			continue
		}
		r := rank(f)
		if bestRank < 0 || r < bestRank {
			best, bestRank = f, r
		}
	}
	switch {
	case bestRank < 0:
		return "", "", ""
	case bestRank == rankFast:
		return window.FastName(best.Title), cleanTitle(best.LocalizedTitle), model.NameFromHoliday
	default:
		return cleanTitle(best.Title), cleanTitle(best.LocalizedTitle), model.NameFromHoliday
	}
}

func rank(f model.Fragment) int {
	switch {
	case window.IsMajor(f):
		return rankPrimary
	case window.IsSecondary(f):
		return rankSecondary
	case window.IsFast(f):
		return rankFast
	default:
		return rankOther
	}
}

func cleanTitle(s string) string {
	return strings.TrimSpace(names.StripPrefixes(s))
}
