// Package week maps wall-clock time to the observance cycle it belongs to.
package week

import (
	"fmt"
	"time"

	"shabbatcal/internal/model"
)

// DefaultThresholdHour is the Saturday hour (local) at which the cycle rolls
// forward to the next Friday.
const DefaultThresholdHour = 22

// Identifier computes WeekKeys. The zero value uses DefaultThresholdHour.
type Identifier struct {
	// ThresholdHour is the Saturday hour, 1-23, at or after which the next
	// cycle begins. Zero selects DefaultThresholdHour, so a midnight
	// rollover cannot be expressed; other out-of-range values also use the
	// default.
	ThresholdHour int
}

// Identify is Identifier{}.Identify.
func Identify(now time.Time) model.WeekKey {
	return Identifier{}.Identify(now)
}

// Identify returns the key of the cycle that is current at now. It is pure:
// the result depends only on the weekday, hour and date of now in its own
// location.
func (id Identifier) Identify(now time.Time) model.WeekKey {
	return model.WeekKey(model.DateKey(id.Boundary(now)))
}

// Boundary returns local midnight of the cycle's Friday.
func (id Identifier) Boundary(now time.Time) time.Time {
	y, m, d := now.Date()
	// Calendar arithmetic on the date keeps DST transitions out of the result.
	return time.Date(y, m, d+id.offset(now), 0, 0, 0, 0, now.Location())
}

func (id Identifier) threshold() int {
	if id.ThresholdHour <= 0 || id.ThresholdHour > 23 {
		return DefaultThresholdHour
	}
	return id.ThresholdHour
}

// offset is the number of days from now's date to the cycle's Friday.
func (id Identifier) offset(now time.Time) int {
	switch now.Weekday() {
	case time.Sunday:
		return 5
	case time.Monday:
		return 4
	case time.Tuesday:
		return 3
	case time.Wednesday:
		return 2
	case time.Thursday:
		return 1
	case time.Friday:
		return 0
	default: // Saturday
		if now.Hour() < id.threshold() {
			return -1
		}
		return 6
	}
}

// ParseKey converts a key back to local midnight of its Friday in loc.
func ParseKey(k model.WeekKey, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation(time.DateOnly, string(k), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("week: invalid key %q: %w", k, err)
	}
	return t, nil
}
