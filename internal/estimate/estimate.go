// Package estimate produces deterministic seasonal boundary times used when
// provider data is missing, so published state is never empty.
package estimate

import (
	"time"

	"shabbatcal/internal/model"
	"shabbatcal/internal/week"
)

// startOfDay is the approximate local onset time per month, as minutes after
// midnight. It tracks mid-latitude sunset minus the customary lead time.
var startOfDay = [12]int{
	16*60 + 30, // Jan
	17*60 + 0,  // Feb
	17*60 + 30, // Mar
	18*60 + 45, // Apr
	19*60 + 15, // May
	19*60 + 35, // Jun
	19*60 + 30, // Jul
	19*60 + 0,  // Aug
	18*60 + 15, // Sep
	17*60 + 30, // Oct
	16*60 + 15, // Nov
	16*60 + 10, // Dec
}

// nightfallLead is the gap between a day's onset estimate and nightfall.
const nightfallLead = 60 * time.Minute

// Onset returns the estimated onset time on day's calendar date.
func Onset(day time.Time) time.Time {
	y, m, d := day.Date()
	mins := startOfDay[m-1]
	// Wall-clock construction keeps the estimate stable across DST changes.
	return time.Date(y, m, d, mins/60, mins%60, 0, 0, day.Location())
}

// Nightfall returns the estimated nightfall on day's calendar date.
func Nightfall(day time.Time) time.Time {
	return Onset(day).Add(nightfallLead)
}

// Snapshot estimates the observance boundaries of the cycle containing now.
// Start is the onset on the cycle's Friday; end is Saturday at the same wall
// clock time plus the nightfall interval.
func Snapshot(now time.Time, id week.Identifier, label string) model.Snapshot {
	friday := id.Boundary(now)
	start := Onset(friday)
	y, m, d := friday.Date()
	end := time.Date(y, m, d+1, start.Hour(), start.Minute(), 0, 0, friday.Location()).Add(nightfallLead)
	return model.Snapshot{
		ObservanceStart: start,
		ObservanceEnd:   end,
		LocationLabel:   label,
		Estimated:       true,
	}
}
